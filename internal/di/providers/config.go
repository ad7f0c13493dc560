// Package providers contains dependency injection providers for the WXR import service.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/seedhypermedia/wxr-importer/internal/config"
	"github.com/seedhypermedia/wxr-importer/internal/logger"
)

// Args holds the command-line arguments configuration is loaded from.
type Args []string

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	args := do.MustInvoke[Args](i)
	return config.LoadConfig(args)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting WXR import service",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"daemon_url", cfg.Daemon.URL,
	)

	return log, nil
}
