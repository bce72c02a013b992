package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time view of one named series, latencies in seconds.
type Snapshot struct {
	Name      string  `json:"name"`
	Attempts  uint64  `json:"attempts"`
	Successes uint64  `json:"successes"`
	Failures  uint64  `json:"failures"`
	Retries   uint64  `json:"retries"`
	Avg       float64 `json:"avg_latency"`
	P50       float64 `json:"p50_latency"`
	P95       float64 `json:"p95_latency"`
	P99       float64 `json:"p99_latency"`
	Max       float64 `json:"max_latency"`
}

// Series counts outcomes and keeps a latency histogram of successful attempts.
type Series struct {
	attempts  atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64
	retries   atomic.Uint64
	latency   *SafeHistogram
}

func newSeries() *Series {
	return &Series{latency: NewSafeHistogram()}
}

func (s *Series) Success(latency time.Duration) {
	s.attempts.Add(1)
	s.successes.Add(1)
	_ = s.latency.Record(latency)
}

func (s *Series) Failure() {
	s.attempts.Add(1)
	s.failures.Add(1)
}

// Retry counts an attempt that will be rescheduled; it is neither success nor failure.
func (s *Series) Retry() {
	s.attempts.Add(1)
	s.retries.Add(1)
}

func (s *Series) snapshot(name string) Snapshot {
	snap := Snapshot{
		Name:      name,
		Attempts:  s.attempts.Load(),
		Successes: s.successes.Load(),
		Failures:  s.failures.Load(),
		Retries:   s.retries.Load(),
	}
	if s.latency.TotalCount() > 0 {
		snap.Avg = s.latency.Mean().Seconds()
		snap.P50 = s.latency.Quantile(50).Seconds()
		snap.P95 = s.latency.Quantile(95).Seconds()
		snap.P99 = s.latency.Quantile(99).Seconds()
		snap.Max = s.latency.Max().Seconds()
	}
	return snap
}

// Recorder holds one Series per name, created on first use.
type Recorder struct {
	mu     sync.RWMutex
	series map[string]*Series
}

func NewRecorder() *Recorder {
	return &Recorder{series: make(map[string]*Series)}
}

// Series returns the named series, creating it if needed.
func (r *Recorder) Series(name string) *Series {
	r.mu.RLock()
	s, ok := r.series[name]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.series[name]; ok {
		return s
	}
	s = newSeries()
	r.series[name] = s
	return s
}

// Snapshot returns every series sorted by name.
func (r *Recorder) Snapshot() []Snapshot {
	r.mu.RLock()
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		out = append(out, r.Series(name).snapshot(name))
	}
	return out
}

// Totals sums attempts, failures and retries across all series.
func (r *Recorder) Totals() (attempts, failures, retries uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.series {
		attempts += s.attempts.Load()
		failures += s.failures.Load()
		retries += s.retries.Load()
	}
	return attempts, failures, retries
}
