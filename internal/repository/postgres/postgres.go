// Package postgres backs the opinion repository with the ingestion
// database. The query service only reads from it; ingestion owns the
// schema and the writes.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the shared pgx connection pool behind the repositories.
type Pool struct {
	pool *pgxpool.Pool
}

// Option adjusts pool construction.
type Option func(*poolSettings)

type poolSettings struct {
	maxConns    int32
	pingTimeout time.Duration
}

// WithMaxConns caps the number of open connections.
func WithMaxConns(n int32) Option {
	return func(s *poolSettings) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

// WithPingTimeout bounds the startup connectivity check.
func WithPingTimeout(d time.Duration) Option {
	return func(s *poolSettings) {
		if d > 0 {
			s.pingTimeout = d
		}
	}
}

// Connect opens a pool against databaseURL and verifies connectivity
// before handing it out.
func Connect(ctx context.Context, databaseURL string, opts ...Option) (*Pool, error) {
	settings := poolSettings{pingTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if settings.maxConns > 0 {
		cfg.MaxConns = settings.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, settings.pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Close releases all pooled connections.
func (p *Pool) Close() {
	p.pool.Close()
}
