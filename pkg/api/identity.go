package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/waitroomhq/waitroom/pkg/auth"
	"github.com/waitroomhq/waitroom/pkg/coordinator"
	"github.com/waitroomhq/waitroom/pkg/models"
)

// sessionToken pulls the raw user-session token from the Authorization
// bearer header or the session cookie.
func sessionToken(c *echo.Context) string {
	if h := c.Request().Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if cookie, err := c.Request().Cookie("session_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// currentUser resolves the request's user session, nil when absent. An
// explicitly presented but invalid token is an error; a missing token is
// simply anonymous.
func (s *Server) currentUser(c *echo.Context) (*models.User, error) {
	raw := sessionToken(c)
	if raw == "" {
		return nil, nil
	}
	u, err := s.authSvc.ValidateSession(c.Request().Context(), raw)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// hostToken pulls the host auth token from the cookie or the x-host-auth
// header (native clients and cross-origin flows).
func hostToken(c *echo.Context) string {
	if h := c.Request().Header.Get(auth.HostAuthHeader); h != "" {
		return h
	}
	if cookie, err := c.Request().Cookie(auth.HostCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// authorizeHost allows a host mutation when the request carries a valid
// host token for this queue, or a user session belonging to the queue's
// owner. 401 when no credential is present, 403 when one is and fails.
func (s *Server) authorizeHost(c *echo.Context, co *coordinator.Coordinator) error {
	token := hostToken(c)
	if token != "" {
		if auth.VerifyHostToken(s.authSvc.HostSecret(), token, co.SessionID()) {
			return nil
		}
		return echo.NewHTTPError(http.StatusForbidden, "invalid host credentials")
	}

	raw := sessionToken(c)
	if raw == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "host credentials required")
	}
	u, err := s.authSvc.ValidateSession(c.Request().Context(), raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "invalid host credentials")
	}
	if owner := co.OwnerID(); owner != nil && *owner == u.ID {
		return nil
	}
	return echo.NewHTTPError(http.StatusForbidden, "not the queue owner")
}

// requireAdmin resolves the session and checks the admin allow-list. 401
// without a session, 403 with a non-admin one.
func (s *Server) requireAdmin(c *echo.Context) (*models.User, error) {
	raw := sessionToken(c)
	if raw == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	u, err := s.authSvc.ValidateSession(c.Request().Context(), raw)
	if err != nil {
		return nil, mapError(err)
	}
	if !s.authSvc.IsAdmin(u) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "admin access required")
	}
	return u, nil
}
