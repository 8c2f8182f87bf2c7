// Package postgres persists subjects and effects in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/demonlord/internal/config"
)

// pingTimeout bounds a single readiness probe.
const pingTimeout = 2 * time.Second

// Connect opens a pool sized by cfg and waits for the first successful ping.
//
// Precondition: cfg.Driver is "postgres" and the connection fields are set.
// Postcondition: Returns a live pool the caller must Close, or a non-nil error.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing dsn for %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reaching %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return pool, nil
}

// Ping reports whether the database answers within a short timeout. It backs the
// evaluator's health status.
func (r *SubjectRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return r.db.Ping(ctx)
}
