package artifacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists artifacts in the artifacts table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, runID, kind string, value any) error {
	doc, err := marshalSnake(kind, value)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO artifacts (run_id, kind, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (run_id, kind)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		runID, kind, doc)
	if err != nil {
		return fmt.Errorf("failed to save %s artifact for run %s: %w", kind, runID, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, runID, kind string, out any) error {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		"SELECT data FROM artifacts WHERE run_id = $1 AND kind = $2",
		runID, kind).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", runID, kind, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load %s artifact for run %s: %w", kind, runID, err)
	}
	return unmarshalCamel(kind, doc, out)
}

func (s *PostgresStore) ListRuns(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT run_id FROM artifacts WHERE kind = $1 ORDER BY run_id", kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s artifacts: %w", kind, err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		runs = append(runs, runID)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, runID, kind string) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM artifacts WHERE run_id = $1 AND kind = $2", runID, kind)
	if err != nil {
		return fmt.Errorf("failed to delete %s artifact for run %s: %w", kind, runID, err)
	}
	return nil
}
