package api

import (
	"errors"
	"net/http"

	"github.com/IShalkin/manoe-sub005/pkg/orchestrator"
)

// mapOrchestratorError maps orchestrator errors to HTTP status codes.
func mapOrchestratorError(err error) (int, string) {
	switch {
	case errors.Is(err, orchestrator.ErrRunNotFound):
		return http.StatusNotFound, "run not found"
	case errors.Is(err, orchestrator.ErrRunTerminal):
		return http.StatusConflict, "run already terminal"
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
