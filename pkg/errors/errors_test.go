package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryStatusAndSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("session"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"unauthorized", Unauthorized("no token"), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden("missing permission"), "FORBIDDEN", http.StatusForbidden, ErrForbidden},
		{"bad request", BadRequest("bad body"), "BAD_REQUEST", http.StatusBadRequest, ErrBadRequest},
		{"conflict", Conflict("already completed"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"internal", Internal("boom"), "INTERNAL_ERROR", http.StatusInternalServerError, ErrInternal},
		{"token expired", TokenExpired(), "TOKEN_EXPIRED", http.StatusUnauthorized, ErrTokenExpired},
		{"token invalid", TokenInvalid(), "TOKEN_INVALID", http.StatusUnauthorized, ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.True(t, Is(tt.err, tt.sentinel))
		})
	}
}

func TestValidationCarriesDetails(t *testing.T) {
	err := Validation(map[string]string{"barcode": "this field is required"})

	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "this field is required", err.Details["barcode"])
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, "REGISTRY_UNAVAILABLE", "product registry unreachable", http.StatusBadGateway)

	assert.True(t, Is(err, cause))
	assert.Contains(t, err.Error(), "product registry unreachable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithDetails(t *testing.T) {
	err := New("SESSION_LOCKED", "session is locked", http.StatusConflict).
		WithDetails(map[string]string{"session_id": "abc"})

	assert.Equal(t, "abc", err.Details["session_id"])
}

func TestAsUnwrapsAppError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NotFound("vendor"))

	var appErr *AppError
	require.True(t, As(wrapped, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
}
