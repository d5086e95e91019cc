package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

// subscriber buffer; a tailer that falls this far behind starts missing
// live events and must re-join via Range.
const subBuffer = 256

// MemoryLog is the in-process Log used by tests and single-node runs.
type MemoryLog struct {
	mu   sync.Mutex
	runs map[string]*memoryRun
}

type memoryRun struct {
	events []models.Event
	nextID int64
	subs   map[int]chan models.Event
	subSeq int
}

// NewMemoryLog returns an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{runs: map[string]*memoryRun{}}
}

func (l *MemoryLog) run(runID string) *memoryRun {
	r, ok := l.runs[runID]
	if !ok {
		r = &memoryRun{nextID: 1, subs: map[int]chan models.Event{}}
		l.runs[runID] = r
	}
	return r
}

// Publish appends the event and fans it out to live tailers without
// blocking. A full subscriber buffer drops the event for that subscriber.
func (l *MemoryLog) Publish(_ context.Context, runID, eventType string, data map[string]any) (int64, error) {
	l.mu.Lock()
	r := l.run(runID)
	ev := models.Event{
		ID:        r.nextID,
		RunID:     runID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	r.nextID++
	r.events = append(r.events, ev)
	subs := make([]chan models.Event, 0, len(r.subs))
	for _, ch := range r.subs {
		subs = append(subs, ch)
	}
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("Dropping event for slow tailer", "run_id", runID, "event_id", ev.ID, "type", eventType)
		}
	}
	return ev.ID, nil
}

// Range returns up to limit events with id greater than fromID.
func (l *MemoryLog) Range(_ context.Context, runID string, fromID int64, limit int) ([]models.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.runs[runID]
	if !ok {
		return nil, nil
	}
	var out []models.Event
	for _, ev := range r.events {
		if ev.ID <= fromID {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Purge drops the run's stored events. Live tailers keep their channels;
// they simply see nothing further.
func (l *MemoryLog) Purge(_ context.Context, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.runs, runID)
	return nil
}

// Tail streams events after fromID, replaying stored history first so a
// subscriber that joins mid-run sees everything exactly once.
func (l *MemoryLog) Tail(ctx context.Context, runID string, fromID int64) (<-chan models.Event, error) {
	l.mu.Lock()
	r := l.run(runID)

	// Subscribe before snapshotting history so no publish can fall
	// between replay and live delivery.
	live := make(chan models.Event, subBuffer)
	id := r.subSeq
	r.subSeq++
	r.subs[id] = live

	var replay []models.Event
	lastSent := r.nextID - 1 // current head; FromHead delivers only newer
	if fromID != FromHead {
		lastSent = fromID
		for _, ev := range r.events {
			if ev.ID > fromID {
				replay = append(replay, ev)
			}
		}
	}
	l.mu.Unlock()

	out := make(chan models.Event, subBuffer)
	go func() {
		defer func() {
			l.mu.Lock()
			delete(r.subs, id)
			l.mu.Unlock()
			close(out)
		}()

		deliver := func(ev models.Event) bool {
			if ev.ID <= lastSent {
				return true
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return false
			}
			lastSent = ev.ID
			return !models.IsTerminalEvent(ev.Type)
		}

		for _, ev := range replay {
			if !deliver(ev) {
				return
			}
		}
		for {
			select {
			case ev := <-live:
				if !deliver(ev) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
