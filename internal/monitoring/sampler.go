package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/alerting"
)

// ConnectionCounter reports open connections on one backend.
type ConnectionCounter interface {
	Name() string
	ConnectionCount(ctx context.Context) (int, error)
}

// SampleObserver is notified after each sample is recorded.
type SampleObserver interface {
	ObserveSample(s PerformanceSample)
}

// SamplerConfig configures the sampling loop.
type SamplerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// ApplyDefaults fills in default values
func (c *SamplerConfig) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
}

// Collectors are the measurement sources a sampler polls. Any of them may be nil.
type Collectors struct {
	Host        HostSampler
	Counters    []ConnectionCounter
	Prober      EndpointProber
	Metrics     MetricsSource
	ActiveUsers ActiveUserSource
	Evaluator   *alerting.Evaluator
	Observer    SampleObserver
}

// Sampler runs a single periodic loop that appends to its own sample history.
type Sampler struct {
	config     SamplerConfig
	collectors Collectors
	logger     *zap.Logger

	prev *HostReading

	mu      sync.RWMutex
	samples []PerformanceSample

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSampler creates a sampler
func NewSampler(cfg SamplerConfig, collectors Collectors, logger *zap.Logger) *Sampler {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if collectors.Host == nil {
		collectors.Host = SystemHost{}
	}
	return &Sampler{
		config:     cfg,
		collectors: collectors,
		logger:     logger.Named("sampler"),
	}
}

// Run samples until ctx is cancelled. Cancellation is observed only at the top
// of an iteration or while waiting for the next tick, so a sample in progress
// always completes; stop latency is bounded by the interval.
func (s *Sampler) Run(ctx context.Context) {
	s.logger.Info("sampling started", zap.Duration("interval", s.config.Interval))
	defer s.logger.Info("sampling stopped", zap.Int("samples", s.Len()))

	for {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		s.record(s.Collect(context.WithoutCancel(ctx)))

		wait := s.config.Interval - time.Since(started)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// Start launches Run in the background. It returns an error if already running.
// Each start begins with a fresh baseline sample.
func (s *Sampler) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done != nil {
		return errors.New("monitoring: sampler already running")
	}

	s.prev = nil
	if r, ok := s.collectors.Metrics.(interface{ Reset() }); ok {
		r.Reset()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		s.Run(runCtx)
	}(s.done)
	return nil
}

// Stop signals the loop and waits for the current sample to finish.
func (s *Sampler) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Collect takes one sample, evaluates alerts and returns it without recording it.
// Only the loop goroutine may call Collect while the sampler is running.
func (s *Sampler) Collect(ctx context.Context) PerformanceSample {
	sample := PerformanceSample{
		Timestamp:       time.Now(),
		Connections:     make(map[string]int, len(s.collectors.Counters)),
		EndpointLatency: map[string]float64{},
		Throughput:      Unavailable,
		ErrorRate:       Unavailable,
		ActiveUsers:     Unavailable,
	}

	hostCtx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
	reading := s.collectors.Host.Read(hostCtx)
	cancel()

	sample.CPUPercent = reading.CPUPercent
	sample.MemoryPercent = reading.MemoryPercent
	if s.prev == nil {
		sample.Baseline = true
		sample.DiskReadBytes, sample.DiskWriteBytes = Unavailable, Unavailable
		sample.NetSentBytes, sample.NetRecvBytes = Unavailable, Unavailable
	} else {
		sample.DiskReadBytes = counterDelta(s.prev.DiskRead, reading.DiskRead, s.prev.DiskOK, reading.DiskOK)
		sample.DiskWriteBytes = counterDelta(s.prev.DiskWrite, reading.DiskWrite, s.prev.DiskOK, reading.DiskOK)
		sample.NetSentBytes = counterDelta(s.prev.NetSent, reading.NetSent, s.prev.NetOK, reading.NetOK)
		sample.NetRecvBytes = counterDelta(s.prev.NetRecv, reading.NetRecv, s.prev.NetOK, reading.NetOK)
	}
	s.prev = &reading

	for _, c := range s.collectors.Counters {
		cctx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
		n, err := c.ConnectionCount(cctx)
		cancel()
		if err != nil {
			s.logger.Debug("connection count unavailable", zap.String("backend", c.Name()), zap.Error(err))
			n = Unavailable
		}
		sample.Connections[c.Name()] = n
	}

	if s.collectors.Prober != nil {
		sample.EndpointLatency = s.collectors.Prober.Probe(ctx)
	}

	if s.collectors.Metrics != nil {
		mctx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
		rates, err := s.collectors.Metrics.Rates(mctx)
		cancel()
		if err != nil {
			s.logger.Debug("service metrics unavailable", zap.Error(err))
		} else {
			sample.Throughput = rates.Throughput
			sample.ErrorRate = rates.ErrorRate
		}
	}

	if s.collectors.ActiveUsers != nil {
		actx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
		n, err := s.collectors.ActiveUsers.ActiveUsers(actx)
		cancel()
		if err != nil {
			s.logger.Debug("active users unavailable", zap.Error(err))
		} else {
			sample.ActiveUsers = n
		}
	}

	if s.collectors.Evaluator != nil {
		sample.Alerts = s.collectors.Evaluator.Evaluate(sample.observation())
	}
	return sample
}

func (s *Sampler) record(sample PerformanceSample) {
	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()

	if s.collectors.Observer != nil {
		s.collectors.Observer.ObserveSample(sample)
	}
	s.logger.Debug("sample recorded",
		zap.Float64("cpu_percent", sample.CPUPercent),
		zap.Float64("memory_percent", sample.MemoryPercent),
		zap.Float64("throughput", sample.Throughput),
		zap.Int("alerts", len(sample.Alerts)))
}

// Samples returns a copy of the history in order.
func (s *Sampler) Samples() []PerformanceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PerformanceSample(nil), s.samples...)
}

// Latest returns the most recent sample, if any.
func (s *Sampler) Latest() (PerformanceSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return PerformanceSample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Len returns the number of recorded samples.
func (s *Sampler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Summary aggregates the recorded history.
func (s *Sampler) Summary() Summary {
	return Summarize(s.Samples())
}
