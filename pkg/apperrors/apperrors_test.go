package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeUnauthenticated, http.StatusUnauthorized},
		{CodeUnauthorized, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeInvalidState, http.StatusConflict},
		{CodeConflict, http.StatusConflict},
		{CodeNotConfigured, http.StatusPreconditionFailed},
		{CodeInsufficientBalance, http.StatusBadRequest},
		{CodeTransferFailed, http.StatusBadGateway},
		{CodeValidation, http.StatusBadRequest},
		{CodeInternal, http.StatusInternalServerError},
		{Code("UNKNOWN"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.code), "code %s", tt.code)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(CodeTransferFailed, cause, "transfer failed")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "transfer failed", err.Message())
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCodeOf(t *testing.T) {
	err := New(CodeConflict, "already assigned")
	assert.Equal(t, CodeConflict, CodeOf(err))

	wrapped := fmt.Errorf("accepting order: %w", err)
	assert.Equal(t, CodeConflict, CodeOf(wrapped))

	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestHasCode(t *testing.T) {
	err := Newf(CodeInvalidState, "order is %s", "completed")
	assert.True(t, HasCode(err, CodeInvalidState))
	assert.False(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(nil, CodeInvalidState))
}
