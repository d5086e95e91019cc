package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

// notifyLimit is kept under PostgreSQL's 8000-byte NOTIFY payload cap;
// larger events go over the wire as a truncation envelope and tailers
// re-fetch the full row.
const notifyLimit = 7900

// PostgresLog persists events to the events table and fans them out to
// tailers through LISTEN/NOTIFY. The insert and the pg_notify run in one
// transaction, so a committed event is always observable by both Range and
// live tailers.
type PostgresLog struct {
	pool     *pgxpool.Pool
	listener *NotifyListener
	logger   *slog.Logger

	mu   sync.Mutex
	hubs map[string]*runHub
}

type runHub struct {
	subs   map[int]chan models.Event
	subSeq int
}

// NewPostgresLog builds the log. Call Start before tailing.
func NewPostgresLog(pool *pgxpool.Pool, connString string, logger *slog.Logger) *PostgresLog {
	if logger == nil {
		logger = slog.Default()
	}
	l := &PostgresLog{
		pool:   pool,
		logger: logger,
		hubs:   map[string]*runHub{},
	}
	l.listener = NewNotifyListener(connString, l.dispatch)
	return l
}

// Start opens the dedicated LISTEN connection.
func (l *PostgresLog) Start(ctx context.Context) error {
	return l.listener.Start(ctx)
}

// Stop closes the LISTEN connection.
func (l *PostgresLog) Stop(ctx context.Context) {
	l.listener.Stop(ctx)
}

type notifyEnvelope struct {
	ID        int64          `json:"id"`
	RunID     string         `json:"runId"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Truncated bool           `json:"truncated,omitempty"`
}

// Publish inserts the event and fires pg_notify in a single transaction.
func (l *PostgresLog) Publish(ctx context.Context, runID, eventType string, data map[string]any) (int64, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event data: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	var eventID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO events (run_id, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		runID, eventType, dataJSON, now,
	).Scan(&eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to persist event: %w", err)
	}

	payload, err := buildNotifyPayload(notifyEnvelope{
		ID:        eventID,
		RunID:     runID,
		Type:      eventType,
		Timestamp: now,
		Data:      data,
	})
	if err != nil {
		return 0, err
	}

	// pg_notify is transactional; the notification is held until COMMIT.
	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", RunChannel(runID), payload); err != nil {
		return 0, fmt.Errorf("pg_notify failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return eventID, nil
}

func buildNotifyPayload(env notifyEnvelope) (string, error) {
	full, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal notify payload: %w", err)
	}
	if len(full) <= notifyLimit {
		return string(full), nil
	}
	truncated, err := json.Marshal(notifyEnvelope{
		ID:        env.ID,
		RunID:     env.RunID,
		Type:      env.Type,
		Timestamp: env.Timestamp,
		Truncated: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated notify payload: %w", err)
	}
	return string(truncated), nil
}

// Range reads up to limit events with id greater than fromID in id order.
func (l *PostgresLog) Range(ctx context.Context, runID string, fromID int64, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, event_type, data, created_at
		 FROM events
		 WHERE run_id = $1 AND id > $2
		 ORDER BY id ASC
		 LIMIT $3`,
		runID, fromID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var (
			ev       models.Event
			dataJSON []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &dataJSON, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.RunID = runID
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &ev.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Purge deletes the run's persisted events.
func (l *PostgresLog) Purge(ctx context.Context, runID string) error {
	if _, err := l.pool.Exec(ctx, "DELETE FROM events WHERE run_id = $1", runID); err != nil {
		return fmt.Errorf("failed to purge events: %w", err)
	}
	return nil
}

// Tail subscribes to the run's NOTIFY channel, replays history after
// fromID, then forwards live events. The returned channel closes after a
// terminal event or when ctx is done.
func (l *PostgresLog) Tail(ctx context.Context, runID string, fromID int64) (<-chan models.Event, error) {
	if err := l.listener.Subscribe(ctx, RunChannel(runID)); err != nil {
		return nil, fmt.Errorf("failed to subscribe to run channel: %w", err)
	}

	// Register the live subscriber before the catchup query so nothing can
	// land between the two.
	l.mu.Lock()
	hub, ok := l.hubs[runID]
	if !ok {
		hub = &runHub{subs: map[int]chan models.Event{}}
		l.hubs[runID] = hub
	}
	live := make(chan models.Event, subBuffer)
	subID := hub.subSeq
	hub.subSeq++
	hub.subs[subID] = live
	l.mu.Unlock()

	var replay []models.Event
	if fromID != FromHead {
		var err error
		replay, err = l.Range(ctx, runID, fromID, 0)
		if err != nil {
			l.removeSub(runID, subID)
			return nil, err
		}
	}

	out := make(chan models.Event, subBuffer)
	go func() {
		defer func() {
			l.removeSub(runID, subID)
			close(out)
		}()

		lastSent := fromID
		if fromID == FromHead {
			// no replay; live events dedupe against what has been sent
			lastSent = 0
		}

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

func (l *PostgresLog) removeSub(runID string, subID int) {
	l.mu.Lock()
	hub, ok := l.hubs[runID]
	var last bool
	if ok {
		delete(hub.subs, subID)
		if len(hub.subs) == 0 {
			delete(l.hubs, runID)
			last = true
		}
	}
	l.mu.Unlock()

	if last {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.listener.Unsubscribe(ctx, RunChannel(runID)); err != nil {
			l.logger.Warn("Failed to UNLISTEN run channel", "run_id", runID, "error", err)
		}
	}
}

// dispatch routes a NOTIFY payload to the run's live subscribers.
// Truncated envelopes are re-fetched from the events table first.
func (l *PostgresLog) dispatch(channel string, payload []byte) {
	var env notifyEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		l.logger.Error("Failed to decode NOTIFY payload", "channel", channel, "error", err)
		return
	}

	ev := models.Event{
		ID:        env.ID,
		RunID:     env.RunID,
		Type:      env.Type,
		Timestamp: env.Timestamp,
		Data:      env.Data,
	}
	if env.Truncated {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		fetched, err := l.Range(ctx, env.RunID, env.ID-1, 1)
		cancel()
		if err != nil || len(fetched) == 0 || fetched[0].ID != env.ID {
			l.logger.Warn("Failed to re-fetch truncated event", "run_id", env.RunID, "event_id", env.ID, "error", err)
		} else {
			ev = fetched[0]
		}
	}

	l.mu.Lock()
	hub, ok := l.hubs[env.RunID]
	var subs []chan models.Event
	if ok {
		subs = make([]chan models.Event, 0, len(hub.subs))
		for _, ch := range hub.subs {
			subs = append(subs, ch)
		}
	}
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			l.logger.Warn("Dropping event for slow tailer", "run_id", env.RunID, "event_id", ev.ID)
		}
	}
}
