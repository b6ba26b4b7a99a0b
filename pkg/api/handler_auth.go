package api

import (
	"fmt"
	"net/http"
	"net/url"

	echo "github.com/labstack/echo/v5"

	"github.com/waitroomhq/waitroom/pkg/events"
)

// sessionCookieName carries the user session for same-origin web clients.
// Cross-origin and native clients get a bearer token via /api/auth/exchange.
const sessionCookieName = "session_token"

// authBeginHandler handles GET/POST /api/auth/{provider}: allocates state
// and bounces the client to the provider.
func (s *Server) authBeginHandler(c *echo.Context) error {
	authURL, err := s.flow.Begin(
		c.Request().Context(),
		c.Param("provider"),
		c.Request().FormValue("platform"),
		c.Request().FormValue("redirect_uri"),
		c.Request().FormValue("return_to"),
	)
	if err != nil {
		return mapError(err)
	}
	return c.Redirect(http.StatusFound, authURL)
}

// authCallbackHandler handles GET/POST /api/auth/{provider}/callback.
// Some providers return the grant as a POST form, so parameters are read
// from query or body. Errors redirect into the app with ?auth=error so
// users land somewhere sensible rather than on a JSON blob.
func (s *Server) authCallbackHandler(c *echo.Context) error {
	if errCode := c.Request().FormValue("error"); errCode != "" {
		return s.authErrorRedirect(c, errCode)
	}

	user, state, err := s.flow.Callback(
		c.Request().Context(),
		c.Param("provider"),
		c.Request().FormValue("code"),
		c.Request().FormValue("state"),
	)
	if err != nil {
		s.logger.Warn("OAuth callback failed", "provider", c.Param("provider"), "error", err)
		return s.authErrorRedirect(c, "oauth_failed")
	}
	s.recorder.Record(events.TypeUserLogin, nil, nil, map[string]any{
		"user_id": user.ID, "provider": c.Param("provider"),
	})

	// Cross-origin or native: hand the login over via a one-shot token in
	// the redirect URL.
	if state.RedirectURI != "" {
		exchange, err := s.authSvc.MintExchangeToken(c.Request().Context(), user.ID)
		if err != nil {
			return s.authErrorRedirect(c, "internal")
		}
		return c.Redirect(http.StatusFound, appendQuery(state.RedirectURI, "token", exchange))
	}

	// Same-origin web: plant the session cookie and return to the app.
	token, err := s.authSvc.CreateSession(c.Request().Context(), user.ID)
	if err != nil {
		return s.authErrorRedirect(c, "internal")
	}
	http.SetCookie(c.Response(), &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		MaxAge:   int(s.cfg.Auth.SessionTTL.Seconds()),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	returnTo := state.ReturnTo
	if returnTo == "" {
		returnTo = "/"
	}
	return c.Redirect(http.StatusFound, s.cfg.Server.AppBaseURL+returnTo)
}

func (s *Server) authErrorRedirect(c *echo.Context, code string) error {
	return c.Redirect(http.StatusFound,
		fmt.Sprintf("%s/?auth=error&error=%s", s.cfg.Server.AppBaseURL, url.QueryEscape(code)))
}

// authExchangeHandler handles POST /api/auth/exchange: redeems a one-shot
// token for a session. Exactly one concurrent redeem wins.
func (s *Server) authExchangeHandler(c *echo.Context) error {
	var req ExchangeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	token, user, err := s.authSvc.RedeemExchangeToken(c.Request().Context(), req.Token)
	if err != nil {
		return mapError(err)
	}
	s.recorder.Record(events.TypeSessionExchanged, nil, nil, map[string]any{"user_id": user.ID})

	return c.JSON(http.StatusOK, &ExchangeResponse{SessionToken: token, User: user})
}

// authMeHandler handles GET /api/auth/me.
func (s *Server) authMeHandler(c *echo.Context) error {
	raw := sessionToken(c)
	if raw == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	user, err := s.authSvc.ValidateSession(c.Request().Context(), raw)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// authLogoutHandler handles POST /api/auth/logout.
func (s *Server) authLogoutHandler(c *echo.Context) error {
	if raw := sessionToken(c); raw != "" {
		if err := s.authSvc.DeleteSession(c.Request().Context(), raw); err != nil {
			return mapError(err)
		}
	}
	http.SetCookie(c.Response(), &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.NoContent(http.StatusNoContent)
}

// appendQuery adds one query parameter to a URL, tolerating URLs that
// already carry a query string.
func appendQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
