package api

import (
	"errors"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/tickitapp/tickit-sync/internal/errors"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

var registerErrorHandler sync.Once

// RegisterErrorHandler configures huma to render domain errors.
// huma.NewError is package global, so this only takes effect once.
func RegisterErrorHandler() {
	registerErrorHandler.Do(func() {
		huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
			for _, err := range errs {
				if apiErr := fromDomain(err); apiErr != nil {
					return apiErr
				}
			}

			return &APIError{
				status:  status,
				Code:    statusToCode(status),
				Message: message,
			}
		}
	})
}

// errInternal is what clients see for storage and unexpected failures.
var errInternal = domainerrors.Internal("internal server error")

// toAPIError converts any handler error into an APIError.
func toAPIError(err error) *APIError {
	if apiErr := fromDomain(err); apiErr != nil {
		return apiErr
	}
	return fromDomain(errInternal)
}

func fromDomain(err error) *APIError {
	var domainErr *domainerrors.Error
	if !errors.As(err, &domainErr) {
		return nil
	}

	switch domainErr.Code {
	case domainerrors.CodeStoreIO, domainerrors.CodeInternal:
		domainErr = errInternal
	}
	return &APIError{
		status:  domainErr.HTTPStatus(),
		Code:    string(domainErr.Code),
		Message: domainErr.Message,
		Details: domainErr.Details,
	}
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return string(domainerrors.CodeMalformedRecord)
	case http.StatusUnauthorized:
		return string(domainerrors.CodeUnauthorized)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusTooManyRequests:
		return string(domainerrors.CodeRateLimited)
	default:
		return string(domainerrors.CodeInternal)
	}
}
