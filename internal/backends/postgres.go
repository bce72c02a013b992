package backends

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/FairForge/perfharness/internal/config"
)

// PostgresClient is the relational backend: a bounded database/sql pool over lib/pq.
type PostgresClient struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgres opens the pool and verifies it with a ping.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*PostgresClient, error) {
	if cfg.DSN == "" {
		return nil, &InitializationError{Backend: Postgres, Err: ErrNotConfigured}
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, &InitializationError{Backend: Postgres, Err: fmt.Errorf("open database: %w", err)}
	}

	if cfg.Pool.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.Pool.MaxConns)
	}
	if cfg.Pool.MinConns > 0 {
		db.SetMaxIdleConns(cfg.Pool.MinConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	p := &PostgresClient{db: db, timeout: cfg.Pool.CommandTimeout}

	pingCtx, cancel := p.withTimeout(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &InitializationError{Backend: Postgres, Err: fmt.Errorf("ping: %w", err)}
	}
	return p, nil
}

// NewPostgresFromDB wraps an existing pool.
func NewPostgresFromDB(db *sql.DB, timeout time.Duration) *PostgresClient {
	return &PostgresClient{db: db, timeout: timeout}
}

// Name returns the backend identifier.
func (p *PostgresClient) Name() string { return Postgres }

// DB exposes the pool to workload generators.
func (p *PostgresClient) DB() *sql.DB { return p.db }

// CommandTimeout is the per-command deadline, zero meaning none.
func (p *PostgresClient) CommandTimeout() time.Duration { return p.timeout }

// Close closes the pool.
func (p *PostgresClient) Close() error {
	return p.db.Close()
}

// Ping verifies the database connection
func (p *PostgresClient) Ping(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.db.PingContext(ctx)
}

// Query runs a read statement and drains the rows.
func (p *PostgresClient) Query(ctx context.Context, query string, args ...any) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
	}
	return rows.Err()
}

// Exec runs a write statement.
func (p *PostgresClient) Exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx, query, args...)
	return err
}

// ConnectionCount counts sessions attached to the current database.
func (p *PostgresClient) ConnectionCount(ctx context.Context) (int, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM pg_stat_activity WHERE datname = current_database()`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("backends: postgres connection count: %w", err)
	}
	return n, nil
}

// CountActive runs a single-value counting query, used for active-user estimates.
func (p *PostgresClient) CountActive(ctx context.Context, query string) (int, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var n sql.NullInt64
	if err := p.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("backends: postgres count query: %w", err)
	}
	return int(n.Int64), nil
}

// PoolStats returns database/sql pool statistics.
func (p *PostgresClient) PoolStats() sql.DBStats {
	return p.db.Stats()
}

func (p *PostgresClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}
