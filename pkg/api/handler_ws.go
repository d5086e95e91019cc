package api

import (
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// streamEvents handles GET /api/v1/runs/:id/stream. The stream serves any
// run with recorded events, including runs already evicted from the
// registry, so late subscribers can still replay history.
func (s *Server) streamEvents(c *gin.Context) {
	runID := c.Param("id")

	opts := &websocket.AcceptOptions{OriginPatterns: s.wsOrigins}
	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		s.logger.Warn("WebSocket accept failed", "run_id", runID, "error", err)
		return
	}

	s.streamer.Serve(c.Request.Context(), conn, runID)
}
