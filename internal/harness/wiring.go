package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/alerting"
	"github.com/FairForge/perfharness/internal/backends"
	"github.com/FairForge/perfharness/internal/config"
	"github.com/FairForge/perfharness/internal/monitoring"
	"github.com/FairForge/perfharness/internal/simulator"
	"github.com/FairForge/perfharness/internal/stats"
	"github.com/FairForge/perfharness/internal/workload"
)

// environment is the backend side of one run.
type environment struct {
	generators  map[string]workload.Generator
	counters    []monitoring.ConnectionCounter
	activeUsers monitoring.ActiveUserSource
	unavailable map[string]error
	close       func()
}

// openEnvironment opens the configured backends and prepares their
// generators. Backends that are simply not configured are left out entirely;
// ones that fail to open or prepare are reported as unavailable.
func (r *Runner) openEnvironment(ctx context.Context) *environment {
	env := &environment{unavailable: make(map[string]error), close: func() {}}

	if r.generators != nil {
		env.generators = make(map[string]workload.Generator, len(r.generators))
		for name, gen := range r.generators {
			env.generators[name] = gen
			if gen == nil {
				env.unavailable[name] = &backends.InitializationError{Backend: name, Err: errors.New("no generator")}
			}
		}
		r.prepare(ctx, env)
		return env
	}

	set := backends.Open(ctx, r.settings, r.logger)
	env.close = func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := set.Close(closeCtx); err != nil {
			r.logger.Warn("closing backends", zap.Error(err))
		}
	}

	env.generators = workload.FromSet(set, r.seed)
	for name, err := range set.Unavailable {
		if errors.Is(err, backends.ErrNotConfigured) {
			delete(env.generators, name)
			continue
		}
		env.unavailable[name] = err
	}
	for _, c := range set.Counters() {
		env.counters = append(env.counters, c)
	}
	if set.Postgres != nil && r.settings.Monitoring.ActiveUserQuery != "" {
		env.activeUsers = monitoring.NewSQLActiveUsers(set.Postgres, r.settings.Monitoring.ActiveUserQuery)
	}
	r.prepare(ctx, env)
	return env
}

// prepare runs Prepare on generators that need it; a failure makes that
// backend unavailable for the run.
func (r *Runner) prepare(ctx context.Context, env *environment) {
	for name, gen := range env.generators {
		p, ok := gen.(workload.Preparer)
		if !ok {
			continue
		}
		if err := p.Prepare(ctx); err != nil {
			r.logger.Error("workload preparation failed", zap.String("backend", name), zap.Error(err))
			env.generators[name] = nil
			env.unavailable[name] = &backends.InitializationError{Backend: name, Err: fmt.Errorf("prepare: %w", err)}
		}
	}
}

// newSampler builds a sampler whose thresholds follow sc. Throughput and error
// rate come from Prometheus when configured, otherwise from the simulator's
// request counters when users are simulated, otherwise from ops.
func (r *Runner) newSampler(sc config.ScenarioConfig, interval time.Duration, counters []monitoring.ConnectionCounter, activeUsers monitoring.ActiveUserSource, sim *simulator.Simulator, ops monitoring.CounterReader) *monitoring.Sampler {
	mon := r.settings.Monitoring
	thresholds := alerting.ThresholdsFor(sc, mon, r.settings.ConnectionCaps())
	evaluator := alerting.NewEvaluator(thresholds, r.logger)

	collectors := monitoring.Collectors{
		Host:        r.host,
		Counters:    counters,
		Prober:      monitoring.NewHTTPProber(r.settings.Target.URL, sc.Endpoints, sc.SampleQueries, mon.ProbeTimeout),
		Metrics:     r.metricsSource(sim, ops),
		ActiveUsers: activeUsers,
		Evaluator:   evaluator,
		Observer:    r.metrics,
	}
	if activeUsers == nil && sim != nil {
		collectors.ActiveUsers = monitoring.ActiveUsersFunc(func(context.Context) (int, error) {
			return int(sim.Summary().Sessions), nil
		})
	}
	return monitoring.NewSampler(monitoring.SamplerConfig{
		Interval:     interval,
		ProbeTimeout: mon.ProbeTimeout,
	}, collectors, r.logger)
}

func (r *Runner) metricsSource(sim *simulator.Simulator, ops monitoring.CounterReader) monitoring.MetricsSource {
	mon := r.settings.Monitoring
	if mon.PrometheusURL != "" {
		src, err := monitoring.NewPrometheusSource(mon.PrometheusURL, mon.ThroughputQuery, mon.ErrorRateQuery, r.logger)
		if err == nil {
			return src
		}
		r.logger.Warn("prometheus source unavailable", zap.String("url", mon.PrometheusURL), zap.Error(err))
	}
	if sim != nil {
		return monitoring.NewCounterSource(sim.Client().Counters)
	}
	if ops != nil {
		return monitoring.NewCounterSource(ops)
	}
	return nil
}

func (r *Runner) newSimulator(sc config.ScenarioConfig) (*simulator.Simulator, error) {
	return simulator.NewSimulator(simulator.Config{
		BaseURL:         r.settings.Target.URL,
		Users:           sc.Users,
		SpawnRate:       sc.SpawnRate,
		ResponseTimeP95: sc.ResponseTimeP95,
		HTTPTimeout:     r.settings.Target.HTTPTimeout,
		ThinkScale:      r.thinkScale,
		Seed:            r.seed,
	}, r.logger, r.metrics)
}

type scenarioSimulation struct {
	scenario string
	summary  simulator.Summary
}

// mergeSimulations sums per-scenario simulation summaries. Task series are
// prefixed with their scenario when more than one scenario ran.
func mergeSimulations(runs []scenarioSimulation) simulator.Summary {
	out := simulator.Summary{Personas: make(map[string]int), Tasks: []stats.Snapshot{}}
	for _, run := range runs {
		s := run.summary
		out.Users += s.Users
		out.Sessions += s.Sessions
		out.SessionFailures += s.SessionFailures
		out.Attempts += s.Attempts
		out.Failures += s.Failures
		out.RateLimited += s.RateLimited
		out.SlowResponses += s.SlowResponses
		out.Duration += s.Duration
		for k, v := range s.Personas {
			out.Personas[k] += v
		}
		for _, t := range s.Tasks {
			if len(runs) > 1 {
				t.Name = run.scenario + "/" + t.Name
			}
			out.Tasks = append(out.Tasks, t)
		}
	}
	return out
}
