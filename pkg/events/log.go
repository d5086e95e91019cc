// Package events is the append-only per-run event stream: Publish appends,
// Range reads from an offset, Tail follows live. The Postgres
// implementation persists to the events table and fans out via NOTIFY; the
// in-memory implementation backs tests and single-process runs.
//
// Late joiners use a two-step protocol: first catch up with
// Range(runID, 0, limit), then switch to Tail(runID, FromHead). A tailer
// that falls behind may miss live events and must re-enter the same way.
package events

import (
	"context"
	"strings"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

// FromHead asks Tail for only events published strictly after the call.
const FromHead int64 = -1

// Log is the per-run event stream.
type Log interface {
	// Publish appends an event and returns its id. Ids are strictly
	// increasing within a run.
	Publish(ctx context.Context, runID, eventType string, data map[string]any) (int64, error)

	// Range returns up to limit events with id greater than fromID, in id
	// order. fromID 0 reads from the beginning.
	Range(ctx context.Context, runID string, fromID int64, limit int) ([]models.Event, error)

	// Tail returns a channel of events with id greater than fromID,
	// including ones published later. The channel closes after a terminal
	// event, or when ctx is done. Slow consumers may miss live events;
	// they re-enter via Range.
	Tail(ctx context.Context, runID string, fromID int64) (<-chan models.Event, error)

	// Purge deletes the run's stored events. Purging an unknown run is
	// not an error.
	Purge(ctx context.Context, runID string) error
}

// RunChannel derives the NOTIFY channel name for a run.
func RunChannel(runID string) string {
	return "run_events_" + strings.ReplaceAll(runID, "-", "_")
}
