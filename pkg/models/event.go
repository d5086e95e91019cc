package models

import "time"

// Event is one record in a run's append-only stream. ID is monotonic
// within a run.
type Event struct {
	ID        int64          `json:"id"`
	RunID     string         `json:"runId"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Event types emitted by the pipeline.
const (
	EventGenerationStarted   = "generation_started"
	EventPhaseStart          = "phase_start"
	EventPhaseComplete       = "phase_complete"
	EventSceneDraftStart     = "scene_draft_start"
	EventSceneBeatStart      = "scene_beat_start"
	EventSceneBeatComplete   = "scene_beat_complete"
	EventSceneBeatError      = "scene_beat_error"
	EventSceneDraftComplete  = "scene_draft_complete"
	EventSceneExpandStart    = "scene_expand_start"
	EventSceneExpandComplete = "scene_expand_complete"
	EventSceneCritiqueStart  = "scene_critique_start"
	EventSceneCritiqueDone   = "scene_critique_complete"
	EventSceneRevisionStart  = "scene_revision_start"
	EventSceneRevisionDone   = "scene_revision_complete"
	EventScenePolishStart    = "scene_polish_start"
	EventScenePolishComplete = "scene_polish_complete"
	EventArchivistStart      = "archivist_start"
	EventArchivistComplete   = "archivist_complete"
	EventNewDevelopments     = "new_developments_collected"
	EventValidationError     = "validation_error"
	EventShutdownInitiated   = "shutdown_initiated"
	EventRunRestored         = "run_restored"
	EventError               = "ERROR"
	EventGenerationError     = "generation_error"
	EventGenerationCompleted = "generation_completed"

	// EventHeartbeat is injected at the transport layer only; it never
	// occupies an event id.
	EventHeartbeat = "heartbeat"
	// EventConnected is the first frame a stream subscriber receives.
	EventConnected = "connected"
)

// Polish statuses carried by scene_polish_complete.
const (
	PolishStatusPolished    = "polished"
	PolishStatusRejected    = "polish_rejected"
	PolishStatusSkippedHigh = "skipped_high_score"
	PolishStatusNotApproved = "not_approved"
)

// IsTerminalEvent reports whether subscribers should stop listening after
// seeing this event type.
func IsTerminalEvent(eventType string) bool {
	return eventType == EventError || eventType == EventGenerationCompleted
}
