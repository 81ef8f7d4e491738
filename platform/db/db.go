// Package db provides database connection infrastructure.
// This is part of the platform layer and contains no business logic.
package db

import (
	"context"
	"time"

	"leadpipe/platform/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultMaxConns sizes the pool when the caller does not.
const DefaultMaxConns = 10

// NewPool creates a Postgres connection pool. maxConns should cover every
// worker that may hold a connection at once plus the read surface; values
// below 1 use DefaultMaxConns.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, maxConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDatabaseURL())
	if err != nil {
		return nil, err
	}

	if maxConns < 1 {
		maxConns = DefaultMaxConns
	}
	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = min(2, maxConns)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
