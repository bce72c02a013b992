// Package harness wires backends, workloads, the stress coordinator, the
// performance sampler and the user simulator into scenario runs.
package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/api"
	"github.com/FairForge/perfharness/internal/backends"
	"github.com/FairForge/perfharness/internal/config"
	"github.com/FairForge/perfharness/internal/loadtest"
	"github.com/FairForge/perfharness/internal/metrics"
	"github.com/FairForge/perfharness/internal/monitoring"
	"github.com/FairForge/perfharness/internal/report"
	"github.com/FairForge/perfharness/internal/simulator"
	"github.com/FairForge/perfharness/internal/workload"
)

// RunRequest selects what a scenario run does.
type RunRequest struct {
	Scenarios []string
	Overrides config.Override
	// Users also drives simulated users against the target service.
	Users bool
	// UsersOnly skips the stress coordinator and implies Users.
	UsersOnly bool
	// HistoryPath, when set, receives the raw sample history.
	HistoryPath string
}

// Runner executes scenario runs and monitoring sessions.
type Runner struct {
	settings *config.Settings
	registry *config.Registry
	logger   *zap.Logger

	metrics     *metrics.Collector
	state       *api.RunState
	coordinator loadtest.CoordinatorConfig
	host        monitoring.HostSampler
	generators  map[string]workload.Generator
	seed        uint64
	thinkScale  float64
}

// Option customizes a Runner.
type Option func(*Runner)

// WithGenerators bypasses backend initialization and drives the given generators.
// A nil entry marks that backend unavailable.
func WithGenerators(gens map[string]workload.Generator) Option {
	return func(r *Runner) { r.generators = gens }
}

// WithHostSampler replaces the gopsutil host sampler.
func WithHostSampler(h monitoring.HostSampler) Option {
	return func(r *Runner) { r.host = h }
}

func WithCoordinator(cfg loadtest.CoordinatorConfig) Option {
	return func(r *Runner) { r.coordinator = cfg }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

func WithRunState(s *api.RunState) Option {
	return func(r *Runner) { r.state = s }
}

// WithSeed makes workload and persona draws reproducible.
func WithSeed(seed uint64) Option {
	return func(r *Runner) { r.seed = seed }
}

// WithThinkScale scales simulated-user think times.
func WithThinkScale(scale float64) Option {
	return func(r *Runner) { r.thinkScale = scale }
}

// NewRunner creates a runner. A nil registry uses the built-in scenarios.
func NewRunner(settings *config.Settings, registry *config.Registry, logger *zap.Logger, opts ...Option) *Runner {
	if registry == nil {
		registry = config.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		settings: settings,
		registry: registry,
		logger:   logger.Named("harness"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewCollector()
	}
	if r.state == nil {
		r.state = api.NewRunState()
	}
	if r.seed == 0 {
		r.seed = uint64(time.Now().UnixNano())
	}
	r.coordinator.Seed = r.seed
	if r.coordinator.BackendTimeouts == nil {
		r.coordinator.BackendTimeouts = backendTimeouts(settings)
	}
	return r
}

// backendTimeouts maps each backend to its own configured command timeout.
func backendTimeouts(settings *config.Settings) map[string]time.Duration {
	timeouts := make(map[string]time.Duration, 3)
	for name, d := range map[string]time.Duration{
		backends.Postgres: settings.Postgres.Pool.CommandTimeout,
		backends.Neo4j:    settings.Neo4j.Pool.CommandTimeout,
		backends.Redis:    settings.Redis.Pool.CommandTimeout,
	} {
		if d > 0 {
			timeouts[name] = d
		}
	}
	return timeouts
}

// Metrics exposes the runner's collector.
func (r *Runner) Metrics() *metrics.Collector { return r.metrics }

// State exposes the run state served at /status.
func (r *Runner) State() *api.RunState { return r.state }

// Run executes each scenario in turn and returns the aggregated report. Only a
// bad request returns an error; backend failures are reported, not raised.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*report.Report, error) {
	if len(req.Scenarios) == 0 {
		return nil, errors.New("harness: no scenarios requested")
	}
	scenarios := make([]config.ScenarioConfig, 0, len(req.Scenarios))
	for _, name := range req.Scenarios {
		sc, err := r.registry.Lookup(name, req.Overrides)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	if req.UsersOnly {
		req.Users = true
	}

	stopServer := r.startStatusServer()
	defer stopServer()

	start := time.Now()
	r.state.SetPhase(api.PhaseStarting, "")

	var (
		gens        map[string]workload.Generator
		counters    []monitoring.ConnectionCounter
		activeUsers monitoring.ActiveUserSource
		unavailable = make(map[string]error)
	)
	if !req.UsersOnly {
		env := r.openEnvironment(ctx)
		defer env.close()
		gens, counters, activeUsers = env.generators, env.counters, env.activeUsers
		for name, err := range env.unavailable {
			unavailable[name] = err
		}
	}

	store := loadtest.NewStore()
	ops := &loadtest.OperationCounter{}
	coordinator := loadtest.NewCoordinator(r.coordinator, r.logger, loadtest.Observers{r.metrics, ops})

	var (
		samples     []monitoring.PerformanceSample
		simulations []scenarioSimulation
	)
	for _, sc := range scenarios {
		if ctx.Err() != nil {
			r.logger.Warn("run cancelled, skipping remaining scenarios", zap.String("next", sc.Name))
			break
		}

		var sim *simulator.Simulator
		if req.Users {
			var err error
			sim, err = r.newSimulator(sc)
			if err != nil {
				return nil, err
			}
		}

		var opsReader monitoring.CounterReader
		if !req.UsersOnly {
			opsReader = ops.Counters
		}
		sampler := r.newSampler(sc, r.settings.Monitoring.SampleInterval, counters, activeUsers, sim, opsReader)
		r.state.AttachSampler(sampler)
		if err := sampler.Start(ctx); err != nil {
			return nil, fmt.Errorf("harness: start sampler: %w", err)
		}

		var wg sync.WaitGroup
		if sim != nil {
			r.state.AttachSimulation(sim.Summary)
			simCtx, cancel := context.WithTimeout(ctx, sc.Duration)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer cancel()
				simulations = append(simulations, scenarioSimulation{scenario: sc.Name, summary: sim.Run(simCtx)})
			}()
		}

		if req.UsersOnly {
			r.state.SetPhase(api.PhaseSimulating, sc.Name)
		} else {
			r.state.SetPhase(api.PhaseStress, sc.Name)
			coordinator.Run(ctx, sc, gens, store)
		}
		wg.Wait()

		sampler.Stop()
		samples = append(samples, sampler.Samples()...)
	}

	r.state.SetPhase(api.PhaseReporting, "")
	perf := monitoring.Summarize(samples)
	if req.HistoryPath != "" {
		if err := monitoring.ExportHistory(req.HistoryPath, samples); err != nil {
			r.logger.Error("history export failed", zap.String("path", req.HistoryPath), zap.Error(err))
		}
	}

	in := report.Input{
		Scenarios:   req.Scenarios,
		Results:     store.Results(),
		Unavailable: unavailable,
		Performance: &perf,
		Start:       start,
		End:         time.Now(),
	}
	if req.Users {
		merged := mergeSimulations(simulations)
		in.Simulation = &merged
	}
	rep := report.NewAggregator(nil, r.logger).Build(in)
	r.state.SetPhase(api.PhaseDone, "")
	return rep, nil
}

// startStatusServer serves /metrics, /status and /healthz when a listen
// address is configured. The returned func shuts it down.
func (r *Runner) startStatusServer() func() {
	addr := r.settings.Monitoring.ListenAddr
	if addr == "" {
		return func() {}
	}
	srv := api.NewServer(addr, r.state, r.metrics.Handler(), r.logger)
	if err := srv.Start(); err != nil {
		r.logger.Error("status server not started", zap.String("addr", addr), zap.Error(err))
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
