package workload

import (
	"context"
	"fmt"
)

// RelationalStore is the slice of the postgres client the generator needs.
type RelationalStore interface {
	Query(ctx context.Context, query string, args ...any) error
	Exec(ctx context.Context, query string, args ...any) error
}

// Statements used by the relational generator against its scratch table.
const (
	createEventsTable = `CREATE TABLE IF NOT EXISTS perf_events (
		id BIGSERIAL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	createEventsIndex = `CREATE INDEX IF NOT EXISTS perf_events_created_at_idx ON perf_events (created_at)`

	selectEventByID   = `SELECT id, actor_id, kind, payload FROM perf_events WHERE id = $1`
	selectRecent      = `SELECT id, actor_id, kind FROM perf_events WHERE created_at > NOW() - INTERVAL '1 hour' ORDER BY created_at DESC LIMIT $1`
	countByKind       = `SELECT kind, COUNT(*) FROM perf_events GROUP BY kind`
	insertEvent       = `INSERT INTO perf_events (actor_id, kind, payload, score) VALUES ($1, $2, $3, $4)`
	updateEventScore  = `UPDATE perf_events SET score = $1 WHERE id = $2`
	maxRelationalRows = 100000
)

var eventKinds = []string{"query", "follow_up", "stream", "feedback", "session_start"}

// Relational generates point lookups, range scans and aggregates for reads and
// inserts or updates for writes.
type Relational struct {
	store RelationalStore
	rng   *source
}

// NewRelational returns a relational generator seeded with seed.
func NewRelational(store RelationalStore, seed uint64) *Relational {
	return &Relational{store: store, rng: newSource(seed)}
}

func (g *Relational) Backend() string { return "postgres" }

// Prepare creates the scratch table used by the generator.
func (g *Relational) Prepare(ctx context.Context) error {
	if err := g.store.Exec(ctx, createEventsTable); err != nil {
		return fmt.Errorf("workload: create events table: %w", err)
	}
	if err := g.store.Exec(ctx, createEventsIndex); err != nil {
		return fmt.Errorf("workload: create events index: %w", err)
	}
	return nil
}

func (g *Relational) Read(ctx context.Context) error {
	switch g.rng.intN(3) {
	case 0:
		return g.store.Query(ctx, selectEventByID, g.rng.intRange(1, maxRelationalRows))
	case 1:
		return g.store.Query(ctx, selectRecent, g.rng.intRange(10, 100))
	default:
		return g.store.Query(ctx, countByKind)
	}
}

func (g *Relational) Write(ctx context.Context) error {
	if g.rng.intN(4) == 0 {
		return g.store.Exec(ctx, updateEventScore, g.rng.float64(), g.rng.intRange(1, maxRelationalRows))
	}
	return g.store.Exec(ctx, insertEvent,
		fmt.Sprintf("actor-%d", g.rng.intRange(1, 1000)),
		g.rng.pick(eventKinds),
		g.rng.text(g.rng.intRange(32, 256)),
		g.rng.float64())
}
