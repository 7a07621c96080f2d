// Package db is the State Store: durable Users/Documents/ManualReviews
// persistence over PostgreSQL via pgx/pgxpool, grounded on the teacher's
// PostgresDB wrapper and StateStore's direct-SQL, RowsAffected-checked
// update pattern.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps a pgxpool.Pool with the connection lifecycle the engine needs;
// all repositories share one Pool.
type Pool struct {
	pool *pgxpool.Pool
}

// Open creates a connection pool against dsn and verifies it is reachable.
func Open(ctx context.Context, dsn string, maxConns int32, connectTimeout time.Duration) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("db: create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	return &Pool{pool: pool}, nil
}

func (p *Pool) Close() { p.pool.Close() }

// Ping is used by the health endpoint.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Raw exposes the underlying pgxpool.Pool for repositories in this package.
func (p *Pool) Raw() *pgxpool.Pool { return p.pool }
