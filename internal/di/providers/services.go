package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/seedhypermedia/wxr-importer/internal/blocks"
	"github.com/seedhypermedia/wxr-importer/internal/logger"
	"github.com/seedhypermedia/wxr-importer/internal/service"
)

// ImportServiceHandle wraps the import service so running imports stop on shutdown.
type ImportServiceHandle struct {
	*service.ImportService
}

// Shutdown implements do.Shutdownable. Interrupted sessions stay resumable.
func (h *ImportServiceHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.ImportService.Shutdown(ctx)
}

// ProvideImportService provides the import orchestrator.
func ProvideImportService(i do.Injector) (*ImportServiceHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	clientHandle := do.MustInvoke[*DaemonClientHandle](i)
	rehoster := do.MustInvoke[*RehosterHandle](i)
	converter := do.MustInvoke[blocks.Converter](i)

	svc := service.NewImportService(storeHandle.Store, service.Collaborators{
		Keys:      clientHandle.Client,
		Documents: clientHandle.Client,
		Access:    clientHandle.Client,
		Converter: converter,
		Images:    rehoster.Rehoster,
	}, sseHandle.Manager, log.Logger)

	return &ImportServiceHandle{ImportService: svc}, nil
}
