package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolHealth reports connectivity and pgx pool utilization for the
// health endpoint.
type PoolHealth struct {
	Status         string `json:"status"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	AcquiredConns  int32  `json:"acquired_conns"`
	IdleConns      int32  `json:"idle_conns"`
	TotalConns     int32  `json:"total_conns"`
	MaxConns       int32  `json:"max_conns"`
	EmptyAcquires  int64  `json:"empty_acquires"`
}

// Health pings the pool and reports its utilization. A pool with every
// connection acquired and a climbing empty-acquire count is the usual
// precursor to event publish timeouts, so those counters ride along with
// reachability.
func Health(ctx context.Context, pool *pgxpool.Pool) (*PoolHealth, error) {
	start := time.Now()

	if err := pool.Ping(ctx); err != nil {
		return &PoolHealth{
			Status:         "unhealthy",
			ResponseTimeMs: time.Since(start).Milliseconds(),
		}, err
	}

	stat := pool.Stat()
	return &PoolHealth{
		Status:         "healthy",
		ResponseTimeMs: time.Since(start).Milliseconds(),
		AcquiredConns:  stat.AcquiredConns(),
		IdleConns:      stat.IdleConns(),
		TotalConns:     stat.TotalConns(),
		MaxConns:       stat.MaxConns(),
		EmptyAcquires:  stat.EmptyAcquireCount(),
	}, nil
}
