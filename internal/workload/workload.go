// Package workload produces randomized backend operations for the stress coordinator.
package workload

import (
	"context"
	"math/rand/v2"
	"sync"
)

// Generator issues one read or write against a single backend per call.
// Implementations must be safe for concurrent use; burst rounds call them in parallel.
type Generator interface {
	Backend() string
	Read(ctx context.Context) error
	Write(ctx context.Context) error
}

// Preparer is implemented by generators that need scratch structures before a run.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// source is a mutex-guarded seeded PRNG shared by a generator's goroutines.
type source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSource(seed uint64) *source {
	return &source{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *source) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func (s *source) intRange(lo, hi int) int {
	return lo + s.intN(hi-lo+1)
}

func (s *source) float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *source) pick(items []string) string {
	return items[s.intN(len(items))]
}

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func (s *source) text(n int) string {
	b := make([]byte, n)
	s.mu.Lock()
	for i := range b {
		b[i] = alphabet[s.rng.IntN(len(alphabet))]
	}
	s.mu.Unlock()
	return string(b)
}
