package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/waitroomhq/waitroom/pkg/events"
	"github.com/waitroomhq/waitroom/pkg/models"
	"github.com/waitroomhq/waitroom/pkg/shortcode"
)

// vapidHandler handles GET /api/push/vapid.
func (s *Server) vapidHandler(c *echo.Context) error {
	if s.cfg.Push.VAPIDPublicKey == "" {
		return echo.NewHTTPError(http.StatusNotFound, "push not configured")
	}
	return c.JSON(http.StatusOK, &VAPIDResponse{PublicKey: s.cfg.Push.VAPIDPublicKey})
}

// pushSubscribeHandler handles POST /api/push/subscribe: binds a browser
// push endpoint to a party and confirms with a join_confirm notification.
func (s *Server) pushSubscribeHandler(c *echo.Context) error {
	var req SubscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "endpoint and keys are required")
	}
	if req.PartyID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "partyId is required")
	}

	code := shortcode.Canonicalize(req.Code)
	if !shortcode.Valid(code) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown queue code")
	}
	sessionID, err := s.directory.Resolve(c.Request().Context(), code)
	if err != nil {
		return mapError(err)
	}

	party, err := s.store.GetParty(c.Request().Context(), sessionID, req.PartyID)
	if err != nil {
		return mapError(err)
	}

	sub := &models.PushSubscription{
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		SessionID: sessionID,
		PartyID:   party.ID,
		CreatedAt: time.Now(),
	}
	if err := s.store.UpsertPushSubscription(c.Request().Context(), sub); err != nil {
		return mapError(err)
	}

	if party.Status.Live() {
		s.dispatcher.Notify(events.Notification{
			SessionID: sessionID,
			PartyID:   party.ID,
			Kind:      events.KindJoinConfirm,
			Title:     "You're in line",
			Body:      "We'll notify you when it's almost your turn.",
		})
	}
	return c.NoContent(http.StatusCreated)
}
