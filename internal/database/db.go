package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is the generic missing-record error; repositories map it to
// the matching domain sentinel before it leaves this package.
var ErrNotFound = errors.New("record not found")

// DB wraps the connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a connection pool sized for a single booking/chat instance.
// The workload is many short queries (auth lookups, participant checks,
// message inserts), so a modest pool with a long idle window fits.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 4
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Health reports whether the database is reachable, backing /readyz
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
