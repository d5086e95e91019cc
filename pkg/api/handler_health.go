package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/IShalkin/manoe-sub005/pkg/database"
)

// health handles GET /health: database reachability plus the run registry
// size. Without a database client only the registry is reported.
func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":     "healthy",
		"activeRuns": s.orch.Registry().Len(),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := database.Health(ctx, s.db.Pool())
		body["database"] = dbHealth
		if err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}

	c.JSON(http.StatusOK, body)
}
