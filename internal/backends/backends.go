// Package backends wraps the relational, graph and cache clients exercised by
// the stress coordinator and polled by the performance sampler.
package backends

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/FairForge/perfharness/internal/config"
	"go.uber.org/zap"
)

// Backend identifiers
const (
	Postgres = "postgres"
	Neo4j    = "neo4j"
	Redis    = "redis"
)

// ErrNotConfigured marks a backend with no connection string.
var ErrNotConfigured = errors.New("backends: not configured")

// InitializationError reports a backend whose client could not be built.
// It is fatal for that backend only.
type InitializationError struct {
	Backend string
	Err     error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("backends: initialize %s: %v", e.Backend, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// ConnectionCounter reports the number of open connections on a backend.
type ConnectionCounter interface {
	Name() string
	ConnectionCount(ctx context.Context) (int, error)
}

// Set holds whichever clients initialized successfully.
type Set struct {
	Postgres *PostgresClient
	Neo4j    *Neo4jClient
	Redis    *RedisClient

	// Unavailable maps backend name to its initialization failure.
	Unavailable map[string]error
}

// Open initializes every configured backend. A failure on one backend is
// recorded in Unavailable and never prevents the others from opening.
func Open(ctx context.Context, s *config.Settings, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("backends")
	set := &Set{Unavailable: make(map[string]error)}

	if pg, err := NewPostgres(ctx, s.Postgres); err != nil {
		set.markUnavailable(logger, Postgres, err)
	} else {
		set.Postgres = pg
	}

	if n4j, err := NewNeo4j(ctx, s.Neo4j); err != nil {
		set.markUnavailable(logger, Neo4j, err)
	} else {
		set.Neo4j = n4j
	}

	if rc, err := NewRedis(ctx, s.Redis); err != nil {
		set.markUnavailable(logger, Redis, err)
	} else {
		set.Redis = rc
	}

	logger.Info("backends opened",
		zap.Strings("available", set.Available()),
		zap.Int("unavailable", len(set.Unavailable)))
	return set
}

func (s *Set) markUnavailable(logger *zap.Logger, name string, err error) {
	var initErr *InitializationError
	if !errors.As(err, &initErr) {
		err = &InitializationError{Backend: name, Err: err}
	}
	s.Unavailable[name] = err
	if errors.Is(err, ErrNotConfigured) {
		logger.Info("backend not configured", zap.String("backend", name))
		return
	}
	logger.Error("backend unavailable", zap.String("backend", name), zap.Error(err))
}

// Available lists the initialized backends in sorted order.
func (s *Set) Available() []string {
	var names []string
	if s.Postgres != nil {
		names = append(names, Postgres)
	}
	if s.Neo4j != nil {
		names = append(names, Neo4j)
	}
	if s.Redis != nil {
		names = append(names, Redis)
	}
	sort.Strings(names)
	return names
}

// Counters returns a ConnectionCounter for each initialized backend.
func (s *Set) Counters() []ConnectionCounter {
	var out []ConnectionCounter
	if s.Postgres != nil {
		out = append(out, s.Postgres)
	}
	if s.Neo4j != nil {
		out = append(out, s.Neo4j)
	}
	if s.Redis != nil {
		out = append(out, s.Redis)
	}
	return out
}

// UnavailableReasons flattens Unavailable into printable strings.
func (s *Set) UnavailableReasons() map[string]string {
	out := make(map[string]string, len(s.Unavailable))
	for name, err := range s.Unavailable {
		out[name] = err.Error()
	}
	return out
}

// Close releases every open client.
func (s *Set) Close(ctx context.Context) error {
	var errs []error
	if s.Postgres != nil {
		errs = append(errs, s.Postgres.Close())
	}
	if s.Neo4j != nil {
		errs = append(errs, s.Neo4j.Close(ctx))
	}
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	return errors.Join(errs...)
}
