// Package api exposes the sync engine over HTTP: a huma API on a chi
// router, bearer-token auth, per-token rate limiting and the event stream.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tickitapp/tickit-sync/internal/auth"
	"github.com/tickitapp/tickit-sync/internal/ratelimit"
	"github.com/tickitapp/tickit-sync/internal/service"
	"github.com/tickitapp/tickit-sync/internal/sse"
	"github.com/tickitapp/tickit-sync/internal/store"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "tickit-sync"

// Options carries the server's dependencies.
type Options struct {
	Store   store.Store
	Sync    *service.SyncService
	Keyring *auth.Keyring
	// Limiter may be nil to disable rate limiting.
	Limiter *ratelimit.KeyedRateLimiter
	// SSE may be nil; the event stream route is then not mounted.
	SSE         *sse.Manager
	CORSOrigins []string
	Version     string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      store.Store
	sync       *service.SyncService
	keyring    *auth.Keyring
	limiter    *ratelimit.KeyedRateLimiter
	sseManager *sse.Manager
	router     *chi.Mux
	api        huma.API
	version    string
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(opts Options, logger *slog.Logger) *Server {
	s := &Server{
		store:      opts.Store,
		sync:       opts.Sync,
		keyring:    opts.Keyring,
		limiter:    opts.Limiter,
		sseManager: opts.SSE,
		router:     chi.NewRouter(),
		version:    opts.Version,
		logger:     logger,
	}
	if s.version == "" {
		s.version = "dev"
	}

	s.setupMiddleware(opts.CORSOrigins)

	humaConfig := huma.DefaultConfig("tickit-sync API", s.version)
	humaConfig.Info.Description = "Sync server for Tickit task lists, tasks and tags."
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:   "http",
			Scheme: "bearer",
		},
	}
	s.api = humachi.New(s.router, humaConfig)
	s.api.UseMiddleware(s.authMiddleware, s.rateLimitMiddleware)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerSyncRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the underlying huma API (used for OpenAPI generation and tests).
func (s *Server) API() huma.API {
	return s.api
}

// setupMiddleware configures the router-level middleware stack.
func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))
}
