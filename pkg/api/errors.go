package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/waitroomhq/waitroom/pkg/auth"
	"github.com/waitroomhq/waitroom/pkg/captcha"
	"github.com/waitroomhq/waitroom/pkg/coordinator"
	"github.com/waitroomhq/waitroom/pkg/shortcode"
	"github.com/waitroomhq/waitroom/pkg/store"
)

// mapError maps domain errors to HTTP errors. Conflict responses carry the
// stable sentinel strings clients switch on.
func mapError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	var validErr *coordinator.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}

	switch {
	case errors.Is(err, shortcode.ErrUnknownCode),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, coordinator.ErrPartyNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, coordinator.ErrQueueClosed):
		return echo.NewHTTPError(http.StatusConflict, "queue_closed")
	case errors.Is(err, coordinator.ErrQueueFull):
		return echo.NewHTTPError(http.StatusConflict, "queue_full")
	case errors.Is(err, coordinator.ErrAlreadyJoined):
		return echo.NewHTTPError(http.StatusConflict, "already_joined")
	case errors.Is(err, coordinator.ErrTerminalState):
		return echo.NewHTTPError(http.StatusConflict, "terminal_state")
	case errors.Is(err, coordinator.ErrAuthRequired):
		return echo.NewHTTPError(http.StatusUnauthorized, "sign-in required to join this queue")
	case errors.Is(err, coordinator.ErrBusy):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "queue is busy, try again")
	case errors.Is(err, captcha.ErrFailed):
		return echo.NewHTTPError(http.StatusBadRequest, "captcha_failed")
	case errors.Is(err, auth.ErrInvalidSession):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
	case errors.Is(err, auth.ErrInvalidExchange):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid exchange token")
	case errors.Is(err, auth.ErrUnknownProvider):
		return echo.NewHTTPError(http.StatusNotFound, "unknown provider")
	case errors.Is(err, auth.ErrRedirectNotAllowed):
		return echo.NewHTTPError(http.StatusBadRequest, "redirect uri not allowed")
	case errors.Is(err, coordinator.ErrStorage):
		slog.Error("Storage error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "storage_error")
	}

	slog.Error("Unexpected error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
