package providers

import (
	"github.com/samber/do/v2"

	"github.com/seedhypermedia/wxr-importer/internal/blocks"
	"github.com/seedhypermedia/wxr-importer/internal/config"
	"github.com/seedhypermedia/wxr-importer/internal/daemon"
	"github.com/seedhypermedia/wxr-importer/internal/logger"
	"github.com/seedhypermedia/wxr-importer/internal/media"
)

// DaemonClientHandle wraps the daemon gateway client with shutdown capability.
type DaemonClientHandle struct {
	*daemon.Client
}

// Shutdown implements do.Shutdownable.
func (h *DaemonClientHandle) Shutdown() error {
	h.Client.Close()
	return nil
}

// ProvideDaemonClient provides the document daemon client.
func ProvideDaemonClient(i do.Injector) (*DaemonClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client, err := daemon.New(daemon.Config{
		BaseURL:           cfg.Daemon.URL,
		RequestsPerSecond: cfg.Daemon.RequestsPerSecond,
		Timeout:           cfg.Daemon.Timeout,
	}, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Daemon client initialized",
		"url", cfg.Daemon.URL,
		"rps", cfg.Daemon.RequestsPerSecond,
	)

	return &DaemonClientHandle{Client: client}, nil
}

// RehosterHandle wraps the image rehoster. Rehoster is nil when rehosting is disabled.
type RehosterHandle struct {
	*media.Rehoster
}

// Shutdown implements do.Shutdownable.
func (h *RehosterHandle) Shutdown() error {
	if h.Rehoster != nil {
		h.Close()
	}
	return nil
}

// ProvideRehoster provides the image rehoster when IMPORT_REHOST_IMAGES is set.
func ProvideRehoster(i do.Injector) (*RehosterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Import.RehostImages {
		log.Info("Image rehosting disabled, posts keep their original image URLs")
		return &RehosterHandle{}, nil
	}

	clientHandle := do.MustInvoke[*DaemonClientHandle](i)
	log.Info("Image rehosting enabled")
	return &RehosterHandle{Rehoster: media.NewRehoster(clientHandle.Client, log.Logger)}, nil
}

// ProvideConverter provides the HTML to blocks converter.
func ProvideConverter(i do.Injector) (blocks.Converter, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return blocks.NewHTMLConverter(log.Logger), nil
}
