// Package di provides dependency injection configuration for the WXR import service.
package di

import (
	"github.com/samber/do/v2"

	"github.com/seedhypermedia/wxr-importer/internal/auth"
	"github.com/seedhypermedia/wxr-importer/internal/blocks"
	"github.com/seedhypermedia/wxr-importer/internal/config"
	"github.com/seedhypermedia/wxr-importer/internal/di/providers"
	"github.com/seedhypermedia/wxr-importer/internal/logger"
)

// NewContainer creates and configures the DI container with all providers.
// args are the command-line arguments configuration is loaded from.
func NewContainer(args []string) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, providers.Args(args))

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Database layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)

	// Daemon layer
	do.Provide(injector, providers.ProvideDaemonClient)
	do.Provide(injector, providers.ProvideRehoster)
	do.Provide(injector, providers.ProvideConverter)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideImportService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}

	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.DaemonClientHandle](injector)
	_ = do.MustInvoke[*providers.RehosterHandle](injector)
	_ = do.MustInvoke[blocks.Converter](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)
	_ = do.MustInvoke[*providers.ImportServiceHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
