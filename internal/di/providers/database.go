package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/tickitapp/tickit-sync/internal/config"
	"github.com/tickitapp/tickit-sync/internal/sse"
	"github.com/tickitapp/tickit-sync/internal/store"
	"github.com/tickitapp/tickit-sync/internal/store/badger"
	"github.com/tickitapp/tickit-sync/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Manager.Shutdown(ctx)
	h.cancel()
	return err
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*LoggerHandle](i)

	manager := sse.NewManager(log.Component("sse"))

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// OpenStore opens the backend selected by [database] driver.
func OpenStore(cfg config.DatabaseConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.Path, logger)
	case config.DriverBadger:
		return badger.Open(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

// ProvideStore provides the database store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	st, err := OpenStore(cfg.Database, log.Component("store"))
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", cfg.Database.Path, "driver", cfg.Database.Driver)

	return &StoreHandle{Store: st}, nil
}
