package loadtest

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/config"
	"github.com/FairForge/perfharness/internal/workload"
)

type fakeGenerator struct {
	name    string
	delay   time.Duration
	failN   int64 // every failN-th call fails when > 0
	panicky bool

	calls    atomic.Int64
	reads    atomic.Int64
	writes   atomic.Int64
	inflight atomic.Int64
	maxSeen  atomic.Int64
}

func (f *fakeGenerator) Backend() string { return f.name }

func (f *fakeGenerator) do(ctx context.Context) error {
	n := f.calls.Add(1)
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.panicky && n%5 == 0 {
		panic("driver exploded")
	}
	if f.failN > 0 && n%f.failN == 0 {
		return errors.New("driver error")
	}
	return nil
}

func (f *fakeGenerator) Read(ctx context.Context) error {
	f.reads.Add(1)
	return f.do(ctx)
}

func (f *fakeGenerator) Write(ctx context.Context) error {
	f.writes.Add(1)
	return f.do(ctx)
}

type countingObserver struct {
	mu     sync.Mutex
	total  int
	failed int
}

func (o *countingObserver) ObserveOperation(_, _ string, _ OperationKind, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.total++
	if err != nil {
		o.failed++
	}
}

func scenario(mix config.Mix, d time.Duration) config.ScenarioConfig {
	return config.ScenarioConfig{Name: string(mix), Mix: mix, Duration: d, BurstIntensity: 10}
}

func TestChooseKind_ReadHeavyRatio(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1))
	reads, writes := 0, 0
	for i := 0; i < 20000; i++ {
		if chooseKind(rng, config.MixReadHeavy.ReadRatio()) == OpRead {
			reads++
		} else {
			writes++
		}
	}

	ratio := float64(reads) / float64(writes)
	if ratio < 3.7 || ratio > 4.3 {
		t.Errorf("expected read:write near 4:1, got %.2f (%d/%d)", ratio, reads, writes)
	}
}

func TestCoordinator_ReadHeavyMix(t *testing.T) {
	gen := &fakeGenerator{name: "redis"}
	c := NewCoordinator(CoordinatorConfig{InterOpDelay: time.Microsecond, Seed: 7}, zap.NewNop(), nil)

	results := c.Run(context.Background(), scenario(config.MixReadHeavy, 300*time.Millisecond),
		map[string]workload.Generator{"redis": gen}, NewStore())

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.TotalOperations < 100 {
		t.Fatalf("expected at least 100 operations, got %d", res.TotalOperations)
	}
	frac := float64(res.Reads) / float64(res.TotalOperations)
	if frac < 0.7 || frac > 0.9 {
		t.Errorf("expected ~80%% reads, got %.2f", frac)
	}
	if int64(res.Reads) != gen.reads.Load() {
		t.Errorf("result reads %d != generator reads %d", res.Reads, gen.reads.Load())
	}
}

func TestCoordinator_BurstRounds(t *testing.T) {
	gen := &fakeGenerator{name: "postgres", delay: 5 * time.Millisecond}
	c := NewCoordinator(CoordinatorConfig{Seed: 1}, zap.NewNop(), nil)

	results := c.Run(context.Background(), scenario(config.MixBurst, 200*time.Millisecond),
		map[string]workload.Generator{"postgres": gen}, nil)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.TotalOperations == 0 || res.TotalOperations%10 != 0 {
		t.Errorf("expected whole rounds of 10, got %d operations", res.TotalOperations)
	}
	if got := gen.maxSeen.Load(); got != 10 {
		t.Errorf("expected exactly 10 concurrent operations per round, saw %d", got)
	}
}

func TestCoordinator_FailureIsolation(t *testing.T) {
	flaky := &fakeGenerator{name: "neo4j", failN: 3, panicky: true}
	healthy := &fakeGenerator{name: "redis"}
	store := NewStore()
	obs := &countingObserver{}
	c := NewCoordinator(CoordinatorConfig{InterOpDelay: time.Millisecond, Seed: 3}, zap.NewNop(), obs)

	results := c.Run(context.Background(), scenario(config.MixBalanced, 150*time.Millisecond),
		map[string]workload.Generator{
			"neo4j":    flaky,
			"redis":    healthy,
			"postgres": nil,
		}, store)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	excluded := store.Excluded()
	if _, ok := excluded["postgres"]; !ok {
		t.Errorf("expected postgres to be excluded, got %v", excluded)
	}

	var total int
	for _, res := range results {
		if res.TotalOperations != res.SuccessfulOperations+res.FailedOperations {
			t.Errorf("%s: total %d != %d + %d", res.Backend, res.TotalOperations,
				res.SuccessfulOperations, res.FailedOperations)
		}
		total += res.TotalOperations
		switch res.Backend {
		case "neo4j":
			if res.FailedOperations == 0 {
				t.Error("expected flaky backend to record failures")
			}
		case "redis":
			if res.FailedOperations != 0 {
				t.Errorf("healthy backend recorded %d failures", res.FailedOperations)
			}
		}
	}

	if obs.total != total {
		t.Errorf("observer saw %d operations, results report %d", obs.total, total)
	}
	if len(store.Operations()) != total {
		t.Errorf("store holds %d operations, results report %d", len(store.Operations()), total)
	}
	if len(store.Results()) != 2 {
		t.Errorf("expected 2 stored results, got %d", len(store.Results()))
	}
}

func TestCoordinator_OperationTimeout(t *testing.T) {
	gen := &fakeGenerator{name: "postgres", delay: 100 * time.Millisecond}
	c := NewCoordinator(CoordinatorConfig{OperationTimeout: 10 * time.Millisecond, InterOpDelay: time.Millisecond},
		zap.NewNop(), nil)

	results := c.Run(context.Background(), scenario(config.MixWriteHeavy, 80*time.Millisecond),
		map[string]workload.Generator{"postgres": gen}, nil)

	res := results[0]
	if res.TotalOperations == 0 {
		t.Fatal("expected operations to run")
	}
	if res.Timeouts != res.TotalOperations || res.FailedOperations != res.TotalOperations {
		t.Errorf("expected every operation to time out, got %+v", res)
	}
	if res.ErrorRate != 1 {
		t.Errorf("expected error rate 1, got %v", res.ErrorRate)
	}
}

func TestCoordinator_BackendTimeouts(t *testing.T) {
	slow := &fakeGenerator{name: "neo4j", delay: 30 * time.Millisecond}
	fast := &fakeGenerator{name: "redis", delay: 30 * time.Millisecond}
	c := NewCoordinator(CoordinatorConfig{
		OperationTimeout: time.Second,
		BackendTimeouts:  map[string]time.Duration{"redis": 5 * time.Millisecond},
		InterOpDelay:     time.Millisecond,
	}, zap.NewNop(), nil)

	results := c.Run(context.Background(), scenario(config.MixBalanced, 120*time.Millisecond),
		map[string]workload.Generator{"neo4j": slow, "redis": fast}, nil)

	byBackend := map[string]TestResult{}
	for _, r := range results {
		byBackend[r.Backend] = r
	}
	if r := byBackend["neo4j"]; r.TotalOperations == 0 || r.Timeouts != 0 {
		t.Errorf("neo4j should use the default timeout, got %+v", r)
	}
	if r := byBackend["redis"]; r.TotalOperations == 0 || r.Timeouts != r.TotalOperations {
		t.Errorf("redis should time out on its own limit, got %+v", r)
	}
}

func TestOperationCounter(t *testing.T) {
	counter := &OperationCounter{}
	other := &countingObserver{}
	gen := &fakeGenerator{name: "postgres", failN: 4}
	c := NewCoordinator(CoordinatorConfig{InterOpDelay: time.Millisecond}, zap.NewNop(), Observers{counter, nil, other})

	results := c.Run(context.Background(), scenario(config.MixBalanced, 60*time.Millisecond),
		map[string]workload.Generator{"postgres": gen}, nil)

	total, failed, err := counter.Counters(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if int(total) != results[0].TotalOperations || int(failed) != results[0].FailedOperations {
		t.Errorf("counter %d/%d does not match result %+v", total, failed, results[0])
	}
	if failed == 0 {
		t.Error("expected some failures to be counted")
	}
	other.mu.Lock()
	defer other.mu.Unlock()
	if other.total != int(total) {
		t.Errorf("fan-out observer saw %d operations, counter saw %d", other.total, total)
	}
}

func TestCoordinator_StopsOnCancel(t *testing.T) {
	gen := &fakeGenerator{name: "redis"}
	c := NewCoordinator(CoordinatorConfig{InterOpDelay: time.Millisecond}, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	results := c.Run(ctx, scenario(config.MixBalanced, 10*time.Second),
		map[string]workload.Generator{"redis": gen}, nil)

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("coordinator ignored cancellation, ran %v", elapsed)
	}
	if len(results) != 1 {
		t.Fatalf("expected partial result, got %d", len(results))
	}
}

func TestOperationError(t *testing.T) {
	err := error(&OperationError{Backend: "redis", Kind: OpRead, Err: &TimeoutError{Backend: "redis", Timeout: time.Second}})

	if !IsTimeout(err) {
		t.Error("expected wrapped timeout to be detected")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected timeout to wrap context.DeadlineExceeded")
	}
	if IsTimeout(&OperationError{Backend: "redis", Kind: OpRead, Err: errors.New("nope")}) {
		t.Error("plain errors are not timeouts")
	}
}
