package loadtest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FairForge/perfharness/internal/config"
	"github.com/FairForge/perfharness/internal/workload"
)

// DefaultInterOpDelay keeps non-burst loops from spinning.
const DefaultInterOpDelay = 10 * time.Millisecond

// Observer receives every completed operation. Implementations must be safe
// for concurrent use.
type Observer interface {
	ObserveOperation(backend, scenario string, kind OperationKind, latency time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, string, OperationKind, time.Duration, error) {}

// CoordinatorConfig tunes a Coordinator.
type CoordinatorConfig struct {
	// OperationTimeout bounds each attempt; zero disables it.
	OperationTimeout time.Duration
	// BackendTimeouts overrides OperationTimeout per backend.
	BackendTimeouts map[string]time.Duration
	// InterOpDelay is slept between non-burst operations.
	InterOpDelay time.Duration
	// Seed makes read/write choices reproducible; zero picks a time-based seed.
	Seed uint64
}

// ApplyDefaults fills in default values
func (c *CoordinatorConfig) ApplyDefaults() {
	if c.InterOpDelay == 0 {
		c.InterOpDelay = DefaultInterOpDelay
	}
	if c.Seed == 0 {
		c.Seed = uint64(time.Now().UnixNano())
	}
}

// Coordinator runs one scenario concurrently across every backend.
type Coordinator struct {
	config   CoordinatorConfig
	logger   *zap.Logger
	observer Observer
}

// NewCoordinator creates a coordinator. A nil observer discards operation events.
func NewCoordinator(cfg CoordinatorConfig, logger *zap.Logger, observer Observer) *Coordinator {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Coordinator{
		config:   cfg,
		logger:   logger.Named("coordinator"),
		observer: observer,
	}
}

type taskOutcome struct {
	backend string
	result  TestResult
	ops     []OperationResult
	err     error
}

// Run drives every non-nil generator for the scenario duration and appends one
// TestResult per backend to store. A backend whose generator is nil is logged
// and excluded; it never affects the others. Cancelling ctx ends each loop at
// its next iteration without interrupting operations in flight.
func (c *Coordinator) Run(ctx context.Context, sc config.ScenarioConfig, gens map[string]workload.Generator, store *Store) []TestResult {
	names := make([]string, 0, len(gens))
	for name := range gens {
		names = append(names, name)
	}
	sort.Strings(names)

	outcomes := make([]taskOutcome, len(names))
	var g errgroup.Group

	for i, name := range names {
		gen := gens[name]
		outcomes[i].backend = name
		if gen == nil {
			outcomes[i].err = ErrNoGenerator
			continue
		}

		idx := i
		rng := rand.New(rand.NewPCG(c.config.Seed, uint64(idx)+1))
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("loadtest: %s task panicked: %v", name, r)
					outcomes[idx].err = err
				}
			}()
			res, ops := c.runTask(ctx, sc, name, gen, rng)
			outcomes[idx].result = res
			outcomes[idx].ops = ops
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.logger.Error("backend task failed", zap.String("scenario", sc.Name), zap.Error(err))
	}

	var results []TestResult
	for _, out := range outcomes {
		if out.err != nil {
			c.logger.Warn("backend excluded from scenario",
				zap.String("backend", out.backend),
				zap.String("scenario", sc.Name),
				zap.Error(out.err))
			if store != nil {
				store.Exclude(out.backend, out.err.Error())
			}
			continue
		}
		results = append(results, out.result)
		if store != nil {
			store.Append(out.result, out.ops)
		}
	}
	return results
}

func (c *Coordinator) runTask(ctx context.Context, sc config.ScenarioConfig, backend string, gen workload.Generator, rng *rand.Rand) (TestResult, []OperationResult) {
	logger := c.logger.With(zap.String("backend", backend), zap.String("scenario", sc.Name))
	logger.Info("stress task started", zap.Duration("duration", sc.Duration), zap.String("mix", string(sc.Mix)))

	start := time.Now()
	deadline := start.Add(sc.Duration)
	ops := make([]OperationResult, 0, 1024)

	if sc.Mix == config.MixBurst {
		ops = c.burstLoop(ctx, sc, backend, gen, rng, deadline, ops)
	} else {
		ops = c.steadyLoop(ctx, sc, backend, gen, rng, deadline, ops)
	}

	res := Summarize(backend, sc.Name, ops, start, time.Now())
	logger.Info("stress task finished",
		zap.Int("total", res.TotalOperations),
		zap.Int("failed", res.FailedOperations),
		zap.Float64("ops_per_sec", res.OperationsPerSecond),
		zap.Float64("p95_seconds", res.P95Latency))
	return res, ops
}

func (c *Coordinator) steadyLoop(ctx context.Context, sc config.ScenarioConfig, backend string, gen workload.Generator,
	rng *rand.Rand, deadline time.Time, ops []OperationResult) []OperationResult {
	readRatio := sc.Mix.ReadRatio()

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		ops = append(ops, c.attempt(ctx, sc.Name, backend, gen, chooseKind(rng, readRatio)))

		if !sleepUntil(ctx, c.config.InterOpDelay, deadline) {
			break
		}
	}
	return ops
}

func (c *Coordinator) burstLoop(ctx context.Context, sc config.ScenarioConfig, backend string, gen workload.Generator,
	rng *rand.Rand, deadline time.Time, ops []OperationResult) []OperationResult {
	k := sc.BurstIntensity
	readRatio := sc.Mix.ReadRatio()
	batch := make([]OperationResult, k)
	kinds := make([]OperationKind, k)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		for i := range kinds {
			kinds[i] = chooseKind(rng, readRatio)
		}

		var wg sync.WaitGroup
		wg.Add(k)
		for i := 0; i < k; i++ {
			go func(slot int) {
				defer wg.Done()
				batch[slot] = c.attempt(ctx, sc.Name, backend, gen, kinds[slot])
			}(i)
		}
		wg.Wait()
		ops = append(ops, batch...)
	}
	return ops
}

func chooseKind(rng *rand.Rand, readRatio float64) OperationKind {
	if rng.Float64() < readRatio {
		return OpRead
	}
	return OpWrite
}

// attempt times one operation and converts every failure, including panics
// and timeouts, into a failed OperationResult.
func (c *Coordinator) attempt(ctx context.Context, scenario, backend string, gen workload.Generator, kind OperationKind) OperationResult {
	timeout := c.timeoutFor(backend)
	opCtx := context.WithoutCancel(ctx)
	cancel := func() {}
	if timeout > 0 {
		opCtx, cancel = context.WithTimeout(opCtx, timeout)
	}
	defer cancel()

	started := time.Now()
	err := invoke(opCtx, gen, kind)
	latency := time.Since(started)

	if err == nil && timeout > 0 && latency > timeout {
		err = context.DeadlineExceeded
	}

	res := OperationResult{
		Backend:   backend,
		Scenario:  scenario,
		Kind:      kind,
		Latency:   latency.Seconds(),
		Success:   err == nil,
		Timestamp: started,
	}

	if err != nil {
		if IsTimeout(err) {
			err = &TimeoutError{Backend: backend, Timeout: timeout}
			res.Timeout = true
		}
		opErr := &OperationError{Backend: backend, Kind: kind, Err: err}
		res.Error = opErr.Error()
		c.logger.Debug("operation failed",
			zap.String("backend", backend),
			zap.String("kind", string(kind)),
			zap.Bool("timeout", res.Timeout),
			zap.Error(opErr))
		err = opErr
	}

	c.observer.ObserveOperation(backend, scenario, kind, latency, err)
	return res
}

func (c *Coordinator) timeoutFor(backend string) time.Duration {
	if d, ok := c.config.BackendTimeouts[backend]; ok {
		return d
	}
	return c.config.OperationTimeout
}

func invoke(ctx context.Context, gen workload.Generator, kind OperationKind) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if kind == OpRead {
		return gen.Read(ctx)
	}
	return gen.Write(ctx)
}

// sleepUntil waits d, returning false if ctx ends or the deadline passes first.
func sleepUntil(ctx context.Context, d time.Duration, deadline time.Time) bool {
	if d <= 0 {
		return true
	}
	if remaining := time.Until(deadline); remaining < d {
		d = remaining
		if d <= 0 {
			return false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
