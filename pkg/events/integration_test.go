package events

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

// setupPostgresLog spins up a disposable Postgres, creates the events
// table, and wires a started PostgresLog against it.
func setupPostgresLog(t *testing.T) *PostgresLog {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in -short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("manoe_test"),
		tcpostgres.WithUsername("manoe"),
		tcpostgres.WithPassword("manoe"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE TABLE events (
			id         BIGSERIAL PRIMARY KEY,
			run_id     TEXT NOT NULL,
			event_type TEXT NOT NULL,
			data       JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX events_run_id_id_idx ON events (run_id, id);
	`)
	require.NoError(t, err)

	log := NewPostgresLog(pool, connString, nil)
	require.NoError(t, log.Start(ctx))
	t.Cleanup(func() { log.Stop(context.Background()) })
	return log
}

func TestPostgresLogPublishRangeTail(t *testing.T) {
	log := setupPostgresLog(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	runID := "11111111-2222-3333-4444-555555555555"

	id1, err := log.Publish(ctx, runID, models.EventGenerationStarted, map[string]any{"projectId": "p1", "mode": "full"})
	require.NoError(t, err)
	id2, err := log.Publish(ctx, runID, models.EventPhaseStart, map[string]any{"phase": "genesis"})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	history, err := log.Range(ctx, runID, 0, 100)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.EventGenerationStarted, history[0].Type)
	assert.Equal(t, "p1", history[0].Data["projectId"])

	// live tail picks up replay plus a later publish, then closes on the
	// terminal event
	ch, err := log.Tail(ctx, runID, 0)
	require.NoError(t, err)

	// give the LISTEN round-trip a moment before publishing live events
	time.Sleep(200 * time.Millisecond)
	_, err = log.Publish(ctx, runID, models.EventGenerationCompleted, map[string]any{"totalScenes": 0})
	require.NoError(t, err)

	got := collect(t, ch, 3)
	assert.Equal(t, models.EventGenerationStarted, got[0].Type)
	assert.Equal(t, models.EventPhaseStart, got[1].Type)
	assert.Equal(t, models.EventGenerationCompleted, got[2].Type)

	select {
	case _, open := <-ch:
		assert.False(t, open, "tail must close after terminal event")
	case <-time.After(5 * time.Second):
		t.Fatal("tail did not close after terminal event")
	}

	require.NoError(t, log.Purge(ctx, runID))
	purged, err := log.Range(ctx, runID, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, purged)
}

func TestPostgresLogOversizeEventRefetched(t *testing.T) {
	log := setupPostgresLog(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	runID := "66666666-7777-8888-9999-000000000000"

	ch, err := log.Tail(ctx, runID, FromHead)
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	// over the NOTIFY payload cap; tailers get a truncation envelope and
	// the log re-fetches the full row
	big := make([]byte, 12000)
	for i := range big {
		big[i] = 'a'
	}
	_, err = log.Publish(ctx, runID, models.EventSceneDraftComplete, map[string]any{
		"sceneNum": 1,
		"content":  string(big),
	})
	require.NoError(t, err)

	got := collect(t, ch, 1)
	assert.Equal(t, models.EventSceneDraftComplete, got[0].Type)
	content, _ := got[0].Data["content"].(string)
	assert.Len(t, content, 12000, "full payload must be restored from the events table")
}
