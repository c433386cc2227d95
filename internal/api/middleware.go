package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"

	domainerrors "github.com/tickitapp/tickit-sync/internal/errors"
	"github.com/tickitapp/tickit-sync/internal/http/response"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const contextKeyTokenName contextKey = "token_name"

// TokenName returns the name of the config token that authenticated the
// request, or "" for unauthenticated routes.
func TokenName(ctx context.Context) string {
	name, _ := ctx.Value(contextKeyTokenName).(string)
	return name
}

func withTokenName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, contextKeyTokenName, name)
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// authenticate resolves an Authorization header to a token name.
func (s *Server) authenticate(header string) (string, *domainerrors.Error) {
	token, ok := bearerToken(header)
	if !ok {
		return "", domainerrors.Unauthorized("Missing or invalid Authorization header")
	}
	name, ok := s.keyring.Authenticate(token)
	if !ok {
		return "", domainerrors.Unauthorized("Invalid API token")
	}
	return name, nil
}

// requiresAuth reports whether the operation declares a security requirement.
func requiresAuth(op *huma.Operation) bool {
	return op != nil && len(op.Security) > 0
}

// authMiddleware authenticates huma operations that declare bearer security.
func (s *Server) authMiddleware(ctx huma.Context, next func(huma.Context)) {
	if !requiresAuth(ctx.Operation()) {
		next(ctx)
		return
	}

	name, err := s.authenticate(ctx.Header("Authorization"))
	if err != nil {
		s.logger.Warn("rejected sync request",
			slog.String("path", ctx.URL().Path),
			slog.String("reason", err.Message))
		ctx.SetHeader("WWW-Authenticate", `Bearer realm="tickit-sync"`)
		_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, err.Message, err)
		return
	}

	next(huma.WithValue(ctx, contextKeyTokenName, name))
}

// rateLimitMiddleware limits authenticated operations per token.
func (s *Server) rateLimitMiddleware(ctx huma.Context, next func(huma.Context)) {
	name := TokenName(ctx.Context())
	if s.limiter == nil || name == "" {
		next(ctx)
		return
	}

	if !s.limiter.Allow(name) {
		s.logger.Warn("Rate limit exceeded",
			slog.String("token", name),
			slog.String("path", ctx.URL().Path))
		if retry := s.limiter.RetryAfter(); retry > 0 {
			ctx.SetHeader("Retry-After", strconv.Itoa(int((retry+time.Second-1)/time.Second)))
		}
		err := domainerrors.RateLimited("Too many requests. Please try again later.")
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, err.Message, err)
		return
	}

	next(ctx)
}

// requireBearer is the chi equivalent of authMiddleware for routes that
// huma cannot serve, such as the event stream.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, err := s.authenticate(r.Header.Get("Authorization"))
		if err != nil {
			response.Unauthorized(w, err.Message, s.logger)
			return
		}

		if s.limiter != nil && !s.limiter.Allow(name) {
			response.TooManyRequests(w, "Too many requests. Please try again later.", s.limiter.RetryAfter(), s.logger)
			return
		}

		next.ServeHTTP(w, r.WithContext(withTokenName(r.Context(), name)))
	})
}

// requestLogger logs one line per request with slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				level := slog.LevelDebug
				if ww.Status() >= http.StatusInternalServerError {
					level = slog.LevelError
				} else if r.URL.Path != "/health" {
					level = slog.LevelInfo
				}
				logger.LogAttrs(r.Context(), level, "http request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("remote", r.RemoteAddr))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
