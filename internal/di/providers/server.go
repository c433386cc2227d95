package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/tickitapp/tickit-sync/internal/api"
	"github.com/tickitapp/tickit-sync/internal/auth"
	"github.com/tickitapp/tickit-sync/internal/config"
	"github.com/tickitapp/tickit-sync/internal/ratelimit"
	"github.com/tickitapp/tickit-sync/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server. The listener is bound before
// returning so an address in use fails startup instead of a goroutine.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	flags := do.MustInvoke[Flags](i)
	log := do.MustInvoke[*LoggerHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	syncService := do.MustInvoke[*service.SyncService](i)
	keyring := do.MustInvoke[*auth.Keyring](i)
	limiter := do.MustInvoke[*ratelimit.KeyedRateLimiter](i)

	handler := api.NewServer(api.Options{
		Store:       storeHandle.Store,
		Sync:        syncService,
		Keyring:     keyring,
		Limiter:     limiter,
		SSE:         sseHandle.Manager,
		CORSOrigins: cfg.Server.CORSOrigins,
		Version:     flags.Version,
	}, log.Logger.Logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	// Start in background
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	log.Info("Server running", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv}, nil
}
