package loadtest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// OperationKind distinguishes reads from writes.
type OperationKind string

const (
	OpRead  OperationKind = "read"
	OpWrite OperationKind = "write"
)

// OperationResult records one attempted operation. It is never modified after creation.
type OperationResult struct {
	Backend   string        `json:"backend"`
	Scenario  string        `json:"scenario"`
	Kind      OperationKind `json:"kind"`
	Latency   float64       `json:"latency"`
	Success   bool          `json:"success"`
	Timeout   bool          `json:"timeout,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// TestResult aggregates one backend's run of one scenario. Latencies are in seconds
// and derived from successful operations only.
type TestResult struct {
	Backend              string    `json:"backend"`
	Scenario             string    `json:"scenario"`
	TotalOperations      int       `json:"total_operations"`
	SuccessfulOperations int       `json:"successful_operations"`
	FailedOperations     int       `json:"failed_operations"`
	Timeouts             int       `json:"timeouts"`
	Reads                int       `json:"reads"`
	Writes               int       `json:"writes"`
	AvgLatency           float64   `json:"avg_latency"`
	P95Latency           float64   `json:"p95_latency"`
	P99Latency           float64   `json:"p99_latency"`
	MaxLatency           float64   `json:"max_latency"`
	OperationsPerSecond  float64   `json:"operations_per_second"`
	ErrorRate            float64   `json:"error_rate"`
	Duration             float64   `json:"duration"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
}

// Summarize derives a TestResult from an operation history.
func Summarize(backend, scenario string, ops []OperationResult, start, end time.Time) TestResult {
	res := TestResult{
		Backend:   backend,
		Scenario:  scenario,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start).Seconds(),
	}

	latencies := make([]float64, 0, len(ops))
	for _, op := range ops {
		res.TotalOperations++
		if op.Kind == OpRead {
			res.Reads++
		} else {
			res.Writes++
		}
		if op.Success {
			res.SuccessfulOperations++
			latencies = append(latencies, op.Latency)
			continue
		}
		res.FailedOperations++
		if op.Timeout {
			res.Timeouts++
		}
	}

	stats := ComputeLatencyStats(latencies)
	res.AvgLatency = stats.Avg
	res.P95Latency = stats.P95
	res.P99Latency = stats.P99
	res.MaxLatency = stats.Max

	if res.Duration > 0 {
		res.OperationsPerSecond = float64(res.TotalOperations) / res.Duration
	}
	if res.TotalOperations > 0 {
		res.ErrorRate = float64(res.FailedOperations) / float64(res.TotalOperations)
	}
	return res
}

// Store is the per-run arena of stress results and operation history.
// The coordinator appends to it only after its backend tasks have joined.
type Store struct {
	mu         sync.RWMutex
	results    []TestResult
	operations []OperationResult
	excluded   map[string]string
}

// NewStore returns an empty run store.
func NewStore() *Store {
	return &Store{excluded: make(map[string]string)}
}

// Append adds a backend's result and its operation history.
func (s *Store) Append(res TestResult, ops []OperationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	s.operations = append(s.operations, ops...)
}

// Exclude records a backend that produced no result, with the reason.
func (s *Store) Exclude(backend, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excluded[backend] = reason
}

// Results returns a copy of the accumulated TestResults in append order.
func (s *Store) Results() []TestResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TestResult(nil), s.results...)
}

// Operations returns a copy of the operation history.
func (s *Store) Operations() []OperationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]OperationResult(nil), s.operations...)
}

// Excluded returns backends that were skipped with their reasons.
func (s *Store) Excluded() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.excluded))
	for k, v := range s.excluded {
		out[k] = v
	}
	return out
}

// OperationCounter keeps cumulative operation and failure totals while a run
// is in flight. It satisfies Observer.
type OperationCounter struct {
	total  atomic.Uint64
	failed atomic.Uint64
}

// ObserveOperation counts one completed operation.
func (c *OperationCounter) ObserveOperation(_, _ string, _ OperationKind, _ time.Duration, err error) {
	c.total.Add(1)
	if err != nil {
		c.failed.Add(1)
	}
}

// Counters returns the totals in the shape a monitoring.CounterSource reads.
func (c *OperationCounter) Counters(context.Context) (total, failed uint64, err error) {
	return c.total.Load(), c.failed.Load(), nil
}

// Observers fans each operation out to every non-nil observer.
type Observers []Observer

// ObserveOperation implements Observer.
func (o Observers) ObserveOperation(backend, scenario string, kind OperationKind, latency time.Duration, err error) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveOperation(backend, scenario, kind, latency, err)
		}
	}
}
