// Package response writes JSON responses for handlers that sit outside huma,
// such as the event stream route and router-level middleware.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	domainerrors "github.com/tickitapp/tickit-sync/internal/errors"
)

// ErrorBody is the error shape shared with the huma operations.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

// Error writes an error body with the given status code.
func Error(w http.ResponseWriter, status int, code domainerrors.Code, message string, logger *slog.Logger) {
	JSON(w, status, ErrorBody{Code: string(code), Message: message}, logger)
}

// Unauthorized writes a 401 with a bearer challenge.
func Unauthorized(w http.ResponseWriter, message string, logger *slog.Logger) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tickit-sync"`)
	Error(w, http.StatusUnauthorized, domainerrors.CodeUnauthorized, message, logger)
}

// TooManyRequests writes a 429, advertising retryAfter when positive.
func TooManyRequests(w http.ResponseWriter, message string, retryAfter time.Duration, logger *slog.Logger) {
	if retryAfter > 0 {
		secs := int((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	Error(w, http.StatusTooManyRequests, domainerrors.CodeRateLimited, message, logger)
}

// HandleError maps a domain error to its status. Anything else, and
// storage failures, become a generic 500 so internals do not leak.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var domainErr *domainerrors.Error
	if domainerrors.As(err, &domainErr) && domainErr.Code != domainerrors.CodeStoreIO && domainErr.Code != domainerrors.CodeInternal {
		JSON(w, domainErr.HTTPStatus(), ErrorBody{
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		}, logger)
		return
	}

	if logger != nil {
		logger.Error("Unhandled error", "error", err)
	}
	Error(w, http.StatusInternalServerError, domainerrors.CodeInternal, "internal server error", logger)
}
