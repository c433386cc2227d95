package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	domainerrors "github.com/tickitapp/tickit-sync/internal/errors"
)

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "malformed record keeps message",
			err:     domainerrors.MalformedRecordf("bad %s", "task"),
			status:  http.StatusBadRequest,
			code:    "MALFORMED_RECORD",
			message: "bad task",
		},
		{
			name:    "unauthorized",
			err:     domainerrors.Unauthorized("nope"),
			status:  http.StatusUnauthorized,
			code:    "UNAUTHORIZED",
			message: "nope",
		},
		{
			name:    "store failure is hidden",
			err:     domainerrors.StoreIOf(errors.New("disk on fire"), "write %s", "task"),
			status:  http.StatusInternalServerError,
			code:    "INTERNAL",
			message: "internal server error",
		},
		{
			name:    "plain error is internal",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			code:    "INTERNAL",
			message: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := toAPIError(tt.err)
			assert.Equal(t, tt.status, apiErr.GetStatus())
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestStatusToCode(t *testing.T) {
	assert.Equal(t, "MALFORMED_RECORD", statusToCode(http.StatusUnprocessableEntity))
	assert.Equal(t, "MALFORMED_RECORD", statusToCode(http.StatusRequestEntityTooLarge))
	assert.Equal(t, "UNAUTHORIZED", statusToCode(http.StatusUnauthorized))
	assert.Equal(t, "NOT_FOUND", statusToCode(http.StatusNotFound))
	assert.Equal(t, "RATE_LIMITED", statusToCode(http.StatusTooManyRequests))
	assert.Equal(t, "INTERNAL", statusToCode(http.StatusTeapot))
}
