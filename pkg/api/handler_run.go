package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// startGeneration handles POST /api/v1/generate.
func (s *Server) startGeneration(c *gin.Context) {
	var req startGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := s.orch.StartGeneration(c.Request.Context(), req.toStartRequest())
	if err != nil {
		code, msg := mapOrchestratorError(err)
		s.logger.Warn("Start generation rejected", "error", err)
		c.JSON(code, gin.H{"error": msg})
		return
	}

	s.logger.Info("Generation started", "run_id", status.RunID, "project_id", status.ProjectID)
	c.JSON(http.StatusAccepted, gin.H{
		"runId":      status.RunID,
		"streamPath": fmt.Sprintf("/api/v1/runs/%s/stream", status.RunID),
	})
}

// getStatus handles GET /api/v1/runs/:id.
func (s *Server) getStatus(c *gin.Context) {
	status, err := s.orch.Status(c.Param("id"))
	if err != nil {
		code, msg := mapOrchestratorError(err)
		c.JSON(code, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, status)
}

// listRuns handles GET /api/v1/runs.
func (s *Server) listRuns(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.List())
}

func (s *Server) pauseRun(c *gin.Context) {
	s.runAction(c, "paused", s.orch.Pause)
}

func (s *Server) resumeRun(c *gin.Context) {
	s.runAction(c, "resumed", s.orch.Resume)
}

func (s *Server) cancelRun(c *gin.Context) {
	s.runAction(c, "cancelled", s.orch.Cancel)
}

func (s *Server) runAction(c *gin.Context, verb string, action func(runID string) error) {
	runID := c.Param("id")
	if err := action(runID); err != nil {
		code, msg := mapOrchestratorError(err)
		c.JSON(code, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, actionResponse{
		Success: true,
		Message: fmt.Sprintf("run %s %s", runID, verb),
	})
}
