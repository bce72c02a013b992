package harness

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/api"
	"github.com/FairForge/perfharness/internal/config"
	"github.com/FairForge/perfharness/internal/monitoring"
)

// monitorScenario supplies thresholds and endpoints for standalone monitoring.
const monitorScenario = "baseline"

// MonitorRequest configures a standalone monitoring session.
type MonitorRequest struct {
	Interval time.Duration
	// Duration bounds the session; zero runs until ctx is cancelled.
	Duration time.Duration
	// HistoryPath, when set, receives the raw sample history.
	HistoryPath string
}

// MonitorResult is the outcome of a monitoring session.
type MonitorResult struct {
	Summary monitoring.Summary             `json:"summary"`
	Samples []monitoring.PerformanceSample `json:"samples"`
}

// Monitor samples the target and backends without generating load.
func (r *Runner) Monitor(ctx context.Context, req MonitorRequest) (MonitorResult, error) {
	if req.Interval < 0 || req.Duration < 0 {
		return MonitorResult{}, errors.New("harness: interval and duration must be non-negative")
	}
	sc, err := r.registry.Lookup(monitorScenario)
	if err != nil {
		sc = config.ScenarioConfig{
			Name:               monitorScenario,
			ResponseTimeP95:    2 * time.Second,
			ErrorRateThreshold: 0.05,
			Endpoints:          config.DefaultEndpoints,
			SampleQueries:      config.DefaultQueries,
		}
	}

	stopServer := r.startStatusServer()
	defer stopServer()

	env := r.openEnvironment(ctx)
	defer env.close()

	interval := req.Interval
	if interval == 0 {
		interval = r.settings.Monitoring.SampleInterval
	}
	sampler := r.newSampler(sc, interval, env.counters, env.activeUsers, nil, nil)

	runCtx := ctx
	if req.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Duration)
		defer cancel()
	}

	r.state.AttachSampler(sampler)
	r.state.SetPhase(api.PhaseMonitoring, "")
	r.logger.Info("monitoring session started",
		zap.Duration("interval", interval),
		zap.Duration("duration", req.Duration))
	sampler.Run(runCtx)
	r.state.SetPhase(api.PhaseDone, "")

	samples := sampler.Samples()
	res := MonitorResult{Summary: monitoring.Summarize(samples), Samples: samples}
	if req.HistoryPath != "" {
		if err := monitoring.ExportHistory(req.HistoryPath, samples); err != nil {
			return res, err
		}
	}
	return res, nil
}
