package api

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/waitroomhq/waitroom/pkg/models"
)

// wsMessage is the frame envelope on the snapshot stream.
type wsMessage struct {
	Type string           `json:"type"`
	Data *models.Snapshot `json:"data"`
}

// connectHandler handles GET /api/queue/{code}/connect: upgrades to a
// websocket and streams snapshots as JSON text frames. ?since=<version>
// suppresses snapshots the client has already seen.
func (s *Server) connectHandler(c *echo.Context) error {
	co, err := s.coordinatorFor(c.Request().Context(), c.Param("code"))
	if err != nil {
		return mapError(err)
	}

	var since uint64
	if v := c.QueryParam("since"); v != "" {
		since, _ = strconv.ParseUint(v, 10, 64)
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.Server.AllowedOrigins),
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	snapshots, cancel := co.Subscribe(since)
	defer cancel()

	// CloseRead surfaces client disconnect through ctx while discarding
	// any frames the client sends.
	ctx := conn.CloseRead(c.Request().Context())

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				// Dropped for falling behind.
				conn.Close(websocket.StatusPolicyViolation, "too slow")
				return nil
			}
			data, err := json.Marshal(wsMessage{Type: "queue_update", Data: snap})
			if err != nil {
				s.logger.Error("Failed to marshal snapshot", "error", err)
				return nil
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return nil
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}
}

// originPatterns converts the CORS origin allow-list into websocket host
// patterns.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}
