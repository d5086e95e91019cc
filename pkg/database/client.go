// Package database provides the PostgreSQL connection pool and embedded
// migrations. Application queries and NOTIFY traffic go through pgxpool;
// a database/sql handle exists only while migrations run.
package database

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for the migration handle
)

// Client owns the application connection pool.
type Client struct {
	pool *pgxpool.Pool
	dsn  string
}

// NewClient applies pending migrations, then opens and verifies the pool.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dsn := cfg.DSN()

	// golang-migrate drives database/sql; the handle closes as soon as
	// migrations finish
	mdb, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	if err := mdb.PingContext(ctx); err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(mdb); err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := mdb.Close(); err != nil {
		return nil, fmt.Errorf("failed to close migration connection: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}
	poolCfg.MaxConns = cfg.PoolMaxConns
	poolCfg.MinConns = cfg.PoolMinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping connection pool: %w", err)
	}

	return &Client{pool: pool, dsn: dsn}, nil
}

// Pool returns the pgx pool for application queries.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// DSN returns the connection string, needed for dedicated LISTEN
// connections outside the pool.
func (c *Client) DSN() string {
	return c.dsn
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}
