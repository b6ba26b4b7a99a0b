package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/waitroomhq/waitroom/pkg/logging"
)

// adminQueueLimit caps the ops listing.
const adminQueueLimit = 200

// adminQueuesHandler handles GET /api/admin/queues: active queues with
// live counts, newest first.
func (s *Server) adminQueuesHandler(c *echo.Context) error {
	if _, err := s.requireAdmin(c); err != nil {
		return err
	}
	queues, err := s.store.ListActiveQueues(c.Request().Context(), adminQueueLimit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"queues": queues, "count": len(queues)})
}

// adminGetLogLevelHandler handles GET /api/admin/log-level.
func (s *Server) adminGetLogLevelHandler(c *echo.Context) error {
	if _, err := s.requireAdmin(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &LogLevelResponse{
		Level: strings.ToLower(logging.GetLevel().String()),
	})
}

// adminSetLogLevelHandler handles PUT /api/admin/log-level: adjusts the
// global level without a restart.
func (s *Server) adminSetLogLevelHandler(c *echo.Context) error {
	if _, err := s.requireAdmin(c); err != nil {
		return err
	}
	var req LogLevelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	level, err := logging.ParseLevel(req.Level)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "level must be debug, info, warn, or error")
	}
	logging.SetLevel(level)
	s.logger.Info("Log level changed", "level", req.Level)
	return c.JSON(http.StatusOK, &LogLevelResponse{
		Level: strings.ToLower(level.String()),
	})
}
