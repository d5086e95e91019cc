package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

const (
	// heartbeatInterval keeps intermediaries from idling out the socket;
	// the contract is one keepalive at most every 15s.
	heartbeatInterval = 10 * time.Second
	defaultWriteWait  = 10 * time.Second
	replayBatch       = 10000
)

// Streamer serves one run's event history and live tail over a WebSocket.
// The wire protocol: a connected frame, full replay via Range, then live
// events from Tail, with heartbeat frames in between. The socket closes
// after a terminal event.
type Streamer struct {
	log          Log
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewStreamer builds a streamer over the given log.
func NewStreamer(log Log, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{log: log, writeTimeout: defaultWriteWait, logger: logger}
}

type streamFrame struct {
	ID        int64          `json:"id,omitempty"`
	Type      string         `json:"type"`
	RunID     string         `json:"runId"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Serve drives one connection until the run terminates, the client goes
// away, or ctx is cancelled.
func (s *Streamer) Serve(ctx context.Context, conn *websocket.Conn, runID string) {
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// Reads are discarded; the stream is server-to-client only. CloseRead
	// also surfaces client disconnects through the returned context.
	ctx = conn.CloseRead(ctx)

	if err := s.send(ctx, conn, streamFrame{
		Type:      models.EventConnected,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return
	}

	// Two-step join: full history first, then live tail from the last
	// replayed id. Tail re-replays nothing because we hand it the offset.
	var lastID int64
	history, err := s.log.Range(ctx, runID, 0, replayBatch)
	if err != nil {
		s.logger.Error("Event replay failed", "run_id", runID, "error", err)
		return
	}
	for _, ev := range history {
		if err := s.send(ctx, conn, frameFromEvent(ev)); err != nil {
			return
		}
		lastID = ev.ID
		if models.IsTerminalEvent(ev.Type) {
			return
		}
	}

	tail, err := s.log.Tail(ctx, runID, lastID)
	if err != nil {
		s.logger.Error("Event tail failed", "run_id", runID, "error", err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-tail:
			if !ok {
				return
			}
			if err := s.send(ctx, conn, frameFromEvent(ev)); err != nil {
				return
			}
			if models.IsTerminalEvent(ev.Type) {
				return
			}
		case <-heartbeat.C:
			if err := s.send(ctx, conn, streamFrame{
				Type:      models.EventHeartbeat,
				RunID:     runID,
				Timestamp: time.Now().UTC(),
			}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func frameFromEvent(ev models.Event) streamFrame {
	return streamFrame{
		ID:        ev.ID,
		Type:      ev.Type,
		RunID:     ev.RunID,
		Timestamp: ev.Timestamp,
		Data:      ev.Data,
	}
}

func (s *Streamer) send(ctx context.Context, conn *websocket.Conn, frame streamFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
