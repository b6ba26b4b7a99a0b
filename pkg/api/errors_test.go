package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waitroomhq/waitroom/pkg/auth"
	"github.com/waitroomhq/waitroom/pkg/captcha"
	"github.com/waitroomhq/waitroom/pkg/coordinator"
	"github.com/waitroomhq/waitroom/pkg/shortcode"
	"github.com/waitroomhq/waitroom/pkg/store"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unknown code", shortcode.ErrUnknownCode, http.StatusNotFound, ""},
		{"store not found", store.ErrNotFound, http.StatusNotFound, ""},
		{"party not found", coordinator.ErrPartyNotFound, http.StatusNotFound, ""},
		{"queue closed", coordinator.ErrQueueClosed, http.StatusConflict, "queue_closed"},
		{"queue full", coordinator.ErrQueueFull, http.StatusConflict, "queue_full"},
		{"already joined", coordinator.ErrAlreadyJoined, http.StatusConflict, "already_joined"},
		{"terminal state", coordinator.ErrTerminalState, http.StatusConflict, "terminal_state"},
		{"auth required", coordinator.ErrAuthRequired, http.StatusUnauthorized, ""},
		{"busy", coordinator.ErrBusy, http.StatusServiceUnavailable, ""},
		{"captcha", captcha.ErrFailed, http.StatusBadRequest, "captcha_failed"},
		{"invalid session", auth.ErrInvalidSession, http.StatusUnauthorized, ""},
		{"invalid exchange", auth.ErrInvalidExchange, http.StatusUnauthorized, ""},
		{"unknown provider", auth.ErrUnknownProvider, http.StatusNotFound, ""},
		{"validation", coordinator.NewValidationError("size", "out of range"), http.StatusBadRequest, ""},
		{"wrapped storage", fmt.Errorf("join: %w", coordinator.ErrStorage), http.StatusInternalServerError, "storage_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapError(tt.err)
			assert.Equal(t, tt.status, he.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, he.Message)
			}
		})
	}
}
