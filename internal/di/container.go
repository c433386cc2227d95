// Package di provides dependency injection configuration for the tickit-sync server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/tickitapp/tickit-sync/internal/auth"
	"github.com/tickitapp/tickit-sync/internal/config"
	"github.com/tickitapp/tickit-sync/internal/di/providers"
	"github.com/tickitapp/tickit-sync/internal/ratelimit"
	"github.com/tickitapp/tickit-sync/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer(flags providers.Flags) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, flags)
	do.Provide(injector, providers.ProvideConfigPath)
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)

	// Auth layer
	do.Provide(injector, providers.ProvideKeyring)
	do.Provide(injector, providers.ProvideRateLimiter)
	do.Provide(injector, providers.ProvideConfigWatcher)

	// Business services
	do.Provide(injector, providers.ProvideSyncService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services. Config and store errors surface here
// rather than panicking inside the lazy providers.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.LoggerHandle](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*auth.Keyring](injector)
	_ = do.MustInvoke[*ratelimit.KeyedRateLimiter](injector)
	if _, err := do.Invoke[*config.Watcher](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*service.SyncService](injector)

	// Server
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}

	return nil
}
