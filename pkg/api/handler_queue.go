package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/waitroomhq/waitroom/pkg/auth"
	"github.com/waitroomhq/waitroom/pkg/coordinator"
	"github.com/waitroomhq/waitroom/pkg/events"
	"github.com/waitroomhq/waitroom/pkg/models"
	"github.com/waitroomhq/waitroom/pkg/shortcode"
	"github.com/waitroomhq/waitroom/pkg/store"
)

// createQueueHandler handles POST /api/queue/create.
func (s *Server) createQueueHandler(c *echo.Context) error {
	var req CreateQueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validateCreateQueue(&req); err != nil {
		return err
	}
	if err := s.verifier.Verify(c.Request().Context(), req.CaptchaToken, c.RealIP()); err != nil {
		return mapError(err)
	}

	user, err := s.currentUser(c)
	if err != nil {
		return mapError(err)
	}

	q := &models.Queue{
		SessionID:    uuid.New().String(),
		Status:       models.QueueStatusActive,
		EventName:    req.EventName,
		MaxGuests:    req.MaxGuests,
		Location:     req.Location,
		ContactInfo:  req.ContactInfo,
		OpenTime:     req.OpenTime,
		CloseTime:    req.CloseTime,
		RequiresAuth: req.RequiresAuth,
		CreatedAt:    time.Now(),
	}
	if user != nil {
		q.OwnerID = &user.ID
	}

	// Re-roll the short code on collision, bounded.
	created := false
	for attempt := 0; attempt < shortcode.MaxAttempts; attempt++ {
		code, err := shortcode.New()
		if err != nil {
			return mapError(err)
		}
		q.ShortCode = code
		err = s.store.CreateQueue(c.Request().Context(), q)
		if err == nil {
			created = true
			break
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return mapError(err)
		}
	}
	if !created {
		return echo.NewHTTPError(http.StatusInternalServerError, "storage_error")
	}

	s.directory.Put(c.Request().Context(), q.ShortCode, q.SessionID)
	s.recorder.RecordQueue(events.TypeQueueCreated, q.SessionID, map[string]any{
		"code": q.ShortCode, "max_guests": q.MaxGuests,
	})

	hostTok := auth.HostToken(s.authSvc.HostSecret(), q.SessionID)
	http.SetCookie(c.Response(), auth.NewHostCookie(hostTok, s.authSvc.HostCookieMaxAge()))

	return c.JSON(http.StatusCreated, &CreateQueueResponse{
		Code:          q.ShortCode,
		SessionID:     q.SessionID,
		JoinURL:       fmt.Sprintf("%s/?code=%s", s.cfg.Server.AppBaseURL, q.ShortCode),
		WsURL:         fmt.Sprintf("/api/queue/%s/connect", q.ShortCode),
		HostAuthToken: hostTok,
		EventName:     q.EventName,
		MaxGuests:     q.MaxGuests,
		RequiresAuth:  q.RequiresAuth,
	})
}

func validateCreateQueue(req *CreateQueueRequest) error {
	req.EventName = strings.TrimSpace(req.EventName)
	if req.EventName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "eventName is required")
	}
	if len(req.EventName) > models.MaxEventNameLength {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("eventName must be at most %d characters", models.MaxEventNameLength))
	}
	if req.MaxGuests == 0 {
		req.MaxGuests = 50
	}
	if req.MaxGuests < models.MinMaxGuests || req.MaxGuests > models.MaxMaxGuests {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("maxGuests must be between %d and %d", models.MinMaxGuests, models.MaxMaxGuests))
	}
	if err := models.ValidateClockTime(req.OpenTime); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid openTime: "+err.Error())
	}
	if err := models.ValidateClockTime(req.CloseTime); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid closeTime: "+err.Error())
	}
	if req.OpenTime != "" && req.CloseTime != "" && req.OpenTime >= req.CloseTime {
		return echo.NewHTTPError(http.StatusBadRequest, "openTime must be before closeTime")
	}
	return nil
}

// joinHandler handles POST /api/queue/{code}/join.
func (s *Server) joinHandler(c *echo.Context) error {
	var req JoinQueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.verifier.Verify(c.Request().Context(), req.CaptchaToken, c.RealIP()); err != nil {
		return mapError(err)
	}

	co, err := s.coordinatorFor(c.Request().Context(), c.Param("code"))
	if err != nil {
		return mapError(err)
	}

	user, err := s.currentUser(c)
	if err != nil {
		return mapError(err)
	}

	join := coordinator.JoinRequest{Name: req.Name, Size: 1}
	if req.Size != nil {
		join.Size = *req.Size
	}
	if user != nil {
		join.UserID = &user.ID
	}

	s.recorder.RecordQueue(events.TypeJoinStarted, co.SessionID(), nil)
	p, err := co.Join(c.Request().Context(), join)
	if err != nil {
		return mapError(err)
	}
	s.recorder.RecordParty(events.TypeJoinCompleted, co.SessionID(), p.ID, nil)

	resp := &JoinQueueResponse{
		PartyID:   p.ID,
		SessionID: co.SessionID(),
		Code:      co.ShortCode(),
	}
	if snap := co.Snapshot(); snap != nil {
		if v := snap.PartyByID(p.ID); v != nil {
			resp.Position = v.Position
			resp.EstimatedWaitMs = v.EstimatedWaitMs
		}
	}
	return c.JSON(http.StatusCreated, resp)
}

// declareNearbyHandler handles POST /api/queue/{code}/declare-nearby.
func (s *Server) declareNearbyHandler(c *echo.Context) error {
	co, partyID, err := s.partyAction(c)
	if err != nil {
		return err
	}
	if err := co.DeclareNearby(c.Request().Context(), partyID); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// leaveHandler handles POST /api/queue/{code}/leave.
func (s *Server) leaveHandler(c *echo.Context) error {
	co, partyID, err := s.partyAction(c)
	if err != nil {
		return err
	}
	if err := co.Leave(c.Request().Context(), partyID); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// partyAction decodes the common guest-action body and resolves the queue.
func (s *Server) partyAction(c *echo.Context) (*coordinator.Coordinator, string, error) {
	var req PartyActionRequest
	if err := c.Bind(&req); err != nil {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PartyID == "" {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, "partyId is required")
	}
	co, err := s.coordinatorFor(c.Request().Context(), c.Param("code"))
	if err != nil {
		return nil, "", mapError(err)
	}
	return co, req.PartyID, nil
}

// advanceHandler handles POST /api/queue/{code}/advance.
func (s *Server) advanceHandler(c *echo.Context) error {
	co, err := s.coordinatorFor(c.Request().Context(), c.Param("code"))
	if err != nil {
		return mapError(err)
	}
	if err := s.authorizeHost(c, co); err != nil {
		return err
	}

	var req AdvanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := co.Advance(c.Request().Context(), coordinator.AdvanceRequest{
		ServedParty: req.ServedParty,
		NextParty:   req.NextParty,
	}); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, co.Snapshot())
}

// kickHandler handles POST /api/queue/{code}/kick.
func (s *Server) kickHandler(c *echo.Context) error {
	co, err := s.coordinatorFor(c.Request().Context(), c.Param("code"))
	if err != nil {
		return mapError(err)
	}
	if err := s.authorizeHost(c, co); err != nil {
		return err
	}

	var req KickRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PartyID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "partyId is required")
	}
	if err := co.Kick(c.Request().Context(), req.PartyID); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, co.Snapshot())
}

// closeHandler handles POST /api/queue/{code}/close.
func (s *Server) closeHandler(c *echo.Context) error {
	co, err := s.coordinatorFor(c.Request().Context(), c.Param("code"))
	if err != nil {
		return mapError(err)
	}
	if err := s.authorizeHost(c, co); err != nil {
		return err
	}

	stats, err := co.Close(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	code := co.ShortCode()
	s.directory.Invalidate(c.Request().Context(), code)
	s.registry.Evict(co.SessionID())

	return c.JSON(http.StatusOK, &CloseQueueResponse{Code: code, Stats: stats})
}

// snapshotHandler handles GET /api/queue/{code}/snapshot. The snapshot
// version doubles as the ETag.
func (s *Server) snapshotHandler(c *echo.Context) error {
	co, err := s.coordinatorFor(c.Request().Context(), c.Param("code"))
	if err != nil {
		return mapError(err)
	}
	snap := co.Snapshot()
	if snap == nil {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	etag := fmt.Sprintf(`"v%d"`, snap.Version)
	if c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}
	c.Response().Header().Set("ETag", etag)
	c.Response().Header().Set("Cache-Control", "no-cache")
	return c.JSON(http.StatusOK, snap)
}

// partyHandler handles GET /api/queue/{code}/party/{id}, the reconnect
// read for guests.
func (s *Server) partyHandler(c *echo.Context) error {
	co, err := s.coordinatorFor(c.Request().Context(), c.Param("code"))
	if err != nil {
		return mapError(err)
	}
	p, pos, err := co.PartyState(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &PartyStateResponse{Party: p, Position: pos})
}

// queueRedirectHandler handles GET /queue/{code}: the QR/link target,
// bouncing guests into the app with the code prefilled.
func (s *Server) queueRedirectHandler(c *echo.Context) error {
	code := shortcode.Canonicalize(c.Param("code"))
	if !shortcode.Valid(code) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown queue code")
	}
	if sessionID, err := s.directory.Resolve(c.Request().Context(), code); err == nil {
		s.recorder.RecordQueue(events.TypeQRScanned, sessionID, nil)
	}
	return c.Redirect(http.StatusFound, fmt.Sprintf("%s/?code=%s", s.cfg.Server.AppBaseURL, code))
}
