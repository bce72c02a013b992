package monitoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/alerting"
)

type fakeHost struct {
	cpu   float64
	ticks atomic.Uint64
	reset bool
}

func (h *fakeHost) Read(context.Context) HostReading {
	n := h.ticks.Add(1)
	r := HostReading{
		CPUPercent:    h.cpu,
		MemoryPercent: 40,
		DiskOK:        true,
		DiskRead:      1000 * n,
		DiskWrite:     500 * n,
		NetOK:         true,
		NetSent:       2000 * n,
		NetRecv:       3000 * n,
	}
	if h.reset && n == 3 {
		r.NetSent = 0
	}
	return r
}

type fakeCounter struct {
	name string
	n    int
	err  error
}

func (c fakeCounter) Name() string { return c.name }

func (c fakeCounter) ConnectionCount(context.Context) (int, error) { return c.n, c.err }

type fakeProber map[string]float64

func (p fakeProber) Probe(context.Context) map[string]float64 {
	out := make(map[string]float64, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

type fakeRates struct {
	rates Rates
	err   error
}

func (f fakeRates) Rates(context.Context) (Rates, error) { return f.rates, f.err }

type recordingObserver struct{ n atomic.Int64 }

func (o *recordingObserver) ObserveSample(PerformanceSample) { o.n.Add(1) }

func newTestSampler(host HostSampler, eval *alerting.Evaluator) *Sampler {
	return NewSampler(SamplerConfig{Interval: 10 * time.Millisecond}, Collectors{
		Host: host,
		Counters: []ConnectionCounter{
			fakeCounter{name: "redis", n: 0},
			fakeCounter{name: "postgres", err: errors.New("permission denied")},
		},
		Prober:      fakeProber{"/health": 0.02, "/api/search": Unavailable},
		Metrics:     fakeRates{rates: Rates{Throughput: 12, ErrorRate: 0.5}},
		ActiveUsers: ActiveUsersFunc(func(context.Context) (int, error) { return 0, errors.New("no table") }),
		Evaluator:   eval,
	}, zap.NewNop())
}

func TestSampler_Collect(t *testing.T) {
	eval := alerting.NewEvaluator(alerting.Thresholds{CPUPercent: 80, ErrorRate: 0.1}, zap.NewNop())
	s := newTestSampler(&fakeHost{cpu: 50}, eval)
	ctx := context.Background()

	first := s.Collect(ctx)
	assert.True(t, first.Baseline)
	assert.Equal(t, float64(Unavailable), first.DiskReadBytes)
	assert.Equal(t, float64(Unavailable), first.NetRecvBytes)
	assert.Empty(t, first.Alerts, "baseline sample must not raise rate alerts")

	t.Run("sentinels versus zero", func(t *testing.T) {
		assert.Equal(t, 0, first.Connections["redis"])
		assert.Equal(t, Unavailable, first.Connections["postgres"])
		assert.Equal(t, float64(Unavailable), first.EndpointLatency["/api/search"])
		assert.Equal(t, 0.02, first.EndpointLatency["/health"])
		assert.Equal(t, Unavailable, first.ActiveUsers)
		assert.Equal(t, 12.0, first.Throughput)
	})

	second := s.Collect(ctx)
	assert.False(t, second.Baseline)
	assert.Equal(t, 1000.0, second.DiskReadBytes)
	assert.Equal(t, 500.0, second.DiskWriteBytes)
	assert.Equal(t, 2000.0, second.NetSentBytes)
	assert.Equal(t, 3000.0, second.NetRecvBytes)
	require.Len(t, second.Alerts, 1)
	assert.Equal(t, alerting.MetricErrorRate, second.Alerts[0].Metric)
}

func TestSampler_DeltasNonNegative(t *testing.T) {
	s := newTestSampler(&fakeHost{cpu: 10, reset: true}, nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		sample := s.Collect(ctx)
		for _, v := range []float64{sample.DiskReadBytes, sample.DiskWriteBytes, sample.NetSentBytes, sample.NetRecvBytes} {
			assert.True(t, v >= 0 || v == Unavailable, "delta %v", v)
		}
		if i == 2 {
			assert.Equal(t, float64(Unavailable), sample.NetSentBytes, "counter reset reports unavailable")
		}
	}
}

func TestSampler_StartStop(t *testing.T) {
	obs := &recordingObserver{}
	s := NewSampler(SamplerConfig{Interval: 5 * time.Millisecond}, Collectors{
		Host:     &fakeHost{cpu: 90},
		Observer: obs,
	}, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "second start is rejected")

	require.Eventually(t, func() bool { return s.Len() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	n := s.Len()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, s.Len(), "no samples after stop")
	assert.Equal(t, int64(n), obs.n.Load())

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 90.0, latest.CPUPercent)

	s.Stop()
}

func TestSampler_RestartTakesFreshBaseline(t *testing.T) {
	var reqs atomic.Uint64
	src := NewCounterSource(func(context.Context) (uint64, uint64, error) {
		return reqs.Add(10), 0, nil
	})
	s := NewSampler(SamplerConfig{Interval: 5 * time.Millisecond}, Collectors{
		Host:    &fakeHost{cpu: 20},
		Metrics: src,
	}, nil)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Len() >= 2 }, time.Second, time.Millisecond)
	s.Stop()
	first := s.Len()

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Len() >= first+2 }, time.Second, time.Millisecond)
	s.Stop()

	samples := s.Samples()
	restarted := samples[first]
	assert.True(t, restarted.Baseline)
	assert.Equal(t, float64(Unavailable), restarted.DiskReadBytes)
	assert.Equal(t, float64(Unavailable), restarted.Throughput)
	assert.False(t, samples[first+1].Baseline)
	assert.GreaterOrEqual(t, samples[first+1].Throughput, 0.0)
}

func TestSampler_RunHonoursCancel(t *testing.T) {
	s := NewSampler(SamplerConfig{Interval: time.Hour}, Collectors{Host: &fakeHost{}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop after cancel")
	}
}
