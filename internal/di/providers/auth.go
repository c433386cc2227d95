package providers

import (
	"github.com/samber/do/v2"

	"github.com/tickitapp/tickit-sync/internal/auth"
	"github.com/tickitapp/tickit-sync/internal/config"
	"github.com/tickitapp/tickit-sync/internal/ratelimit"
)

// ProvideKeyring provides the set of device tokens accepted by the server.
func ProvideKeyring(i do.Injector) (*auth.Keyring, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	keyring := auth.NewKeyring(cfg.Tokens)
	if keyring.Len() == 0 {
		log.Warn("No tokens configured; every sync request will be rejected. Add one with: tickit-sync token --name <device>")
	} else {
		log.Info("Tokens loaded", "count", keyring.Len())
	}

	return keyring, nil
}

// ProvideRateLimiter provides the per-token sync rate limiter.
func ProvideRateLimiter(i do.Injector) (*ratelimit.KeyedRateLimiter, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return ratelimit.New(cfg.Sync.RateLimitPerMinute, cfg.Sync.RateLimitBurst), nil
}

// ProvideConfigWatcher reloads the token list when the config file changes,
// so tokens added with the token command apply without a restart.
func ProvideConfigWatcher(i do.Injector) (*config.Watcher, error) {
	path := do.MustInvoke[ConfigPath](i)
	keyring := do.MustInvoke[*auth.Keyring](i)
	log := do.MustInvoke[*LoggerHandle](i)

	watcher, err := config.NewWatcher(string(path), func(cfg *config.Config) {
		keyring.Replace(cfg.Tokens)
		log.Info("Tokens reloaded", "count", keyring.Len())
	}, log.Logger.Logger)
	if err != nil {
		return nil, err
	}

	if err := watcher.Start(); err != nil {
		// Non-fatal: the server works, token changes just need a restart.
		log.WithError(err).Warn("Config watcher unavailable", "path", string(path))
	}

	return watcher, nil
}
