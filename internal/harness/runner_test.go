package harness

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/api"
	"github.com/FairForge/perfharness/internal/config"
	"github.com/FairForge/perfharness/internal/mockservice"
	"github.com/FairForge/perfharness/internal/monitoring"
	"github.com/FairForge/perfharness/internal/report"
	"github.com/FairForge/perfharness/internal/workload"
)

type fakeGen struct {
	backend string
	reads   atomic.Int64
	writes  atomic.Int64
}

func (g *fakeGen) Backend() string { return g.backend }
func (g *fakeGen) Read(context.Context) error {
	g.reads.Add(1)
	return nil
}
func (g *fakeGen) Write(context.Context) error {
	g.writes.Add(1)
	return nil
}

type preparingGen struct {
	fakeGen
	err error
}

func (g *preparingGen) Prepare(context.Context) error { return g.err }

type fakeHost struct{ n atomic.Uint64 }

func (h *fakeHost) Read(context.Context) monitoring.HostReading {
	n := h.n.Add(1)
	return monitoring.HostReading{
		CPUPercent: 12, MemoryPercent: 30,
		DiskOK: true, DiskRead: n * 100, DiskWrite: n * 50,
		NetOK: true, NetSent: n * 10, NetRecv: n * 20,
	}
}

func testSettings(t *testing.T, target string) *config.Settings {
	t.Helper()
	if target == "" {
		target = "http://127.0.0.1:1"
	}
	return &config.Settings{
		Target: config.TargetConfig{URL: target, HTTPTimeout: time.Second},
		Monitoring: config.MonitoringConfig{
			SampleInterval:  50 * time.Millisecond,
			ProbeTimeout:    200 * time.Millisecond,
			CPUThreshold:    80,
			MemoryThreshold: 85,
		},
	}
}

func TestRunner_RunStressScenario(t *testing.T) {
	redis := &fakeGen{backend: "redis"}
	state := api.NewRunState()
	r := NewRunner(testSettings(t, ""), nil, zap.NewNop(),
		WithGenerators(map[string]workload.Generator{"redis": redis, "neo4j": nil}),
		WithHostSampler(&fakeHost{}),
		WithRunState(state),
		WithSeed(7))

	rep, err := r.Run(context.Background(), RunRequest{
		Scenarios: []string{"read_heavy"},
		Overrides: config.Override{Duration: "300ms"},
	})
	require.NoError(t, err)

	require.Len(t, rep.Results, 1)
	res := rep.Results[0]
	assert.Equal(t, "redis", res.Backend)
	assert.Equal(t, "read_heavy", res.Scenario)
	assert.Equal(t, res.TotalOperations, res.SuccessfulOperations+res.FailedOperations)
	assert.Greater(t, redis.reads.Load(), redis.writes.Load())

	assert.Contains(t, rep.Unavailable, "neo4j")
	assert.Equal(t, report.StatusDegraded, rep.Status)
	require.NotNil(t, rep.Performance)
	assert.GreaterOrEqual(t, rep.Performance.SampleCount, 1)
	assert.Nil(t, rep.Simulation)

	assert.Equal(t, api.PhaseDone, state.Snapshot().Phase)
}

func TestRunner_StressOnlyRunSamplesThroughput(t *testing.T) {
	redis := &fakeGen{backend: "redis"}
	r := NewRunner(testSettings(t, ""), nil, zap.NewNop(),
		WithGenerators(map[string]workload.Generator{"redis": redis}),
		WithHostSampler(&fakeHost{}))

	rep, err := r.Run(context.Background(), RunRequest{
		Scenarios: []string{"balanced"},
		Overrides: config.Override{Duration: "400ms"},
	})
	require.NoError(t, err)

	require.NotNil(t, rep.Performance)
	require.GreaterOrEqual(t, rep.Performance.SampleCount, 2)
	assert.GreaterOrEqual(t, rep.Performance.Throughput.Samples, 1)
	assert.Greater(t, rep.Performance.Throughput.Max, 0.0)
	assert.GreaterOrEqual(t, rep.Performance.ErrorRate.Samples, 1)
	assert.Zero(t, rep.Performance.ErrorRate.Max)
}

func TestBackendTimeouts(t *testing.T) {
	s := testSettings(t, "")
	s.Postgres.Pool.CommandTimeout = 30 * time.Second
	s.Neo4j.Pool.CommandTimeout = 20 * time.Second
	s.Redis.Pool.CommandTimeout = 5 * time.Second

	r := NewRunner(s, nil, zap.NewNop())
	assert.Equal(t, map[string]time.Duration{
		"postgres": 30 * time.Second,
		"neo4j":    20 * time.Second,
		"redis":    5 * time.Second,
	}, r.coordinator.BackendTimeouts)

	s.Neo4j.Pool.CommandTimeout = 0
	assert.NotContains(t, backendTimeouts(s), "neo4j")
}

func TestRunner_UnknownScenario(t *testing.T) {
	r := NewRunner(testSettings(t, ""), nil, zap.NewNop(), WithGenerators(map[string]workload.Generator{}))

	_, err := r.Run(context.Background(), RunRequest{Scenarios: []string{"nope"}})
	assert.ErrorIs(t, err, config.ErrUnknownScenario)

	_, err = r.Run(context.Background(), RunRequest{})
	assert.Error(t, err)
}

func TestRunner_PrepareFailureMarksBackendUnavailable(t *testing.T) {
	pg := &preparingGen{fakeGen: fakeGen{backend: "postgres"}, err: errors.New("permission denied for schema public")}
	redis := &fakeGen{backend: "redis"}
	r := NewRunner(testSettings(t, ""), nil, zap.NewNop(),
		WithGenerators(map[string]workload.Generator{"postgres": pg, "redis": redis}),
		WithHostSampler(&fakeHost{}))

	rep, err := r.Run(context.Background(), RunRequest{
		Scenarios: []string{"balanced"},
		Overrides: config.Override{Duration: "150ms"},
	})
	require.NoError(t, err)

	assert.Contains(t, rep.Unavailable["postgres"], "permission denied")
	assert.Zero(t, pg.reads.Load()+pg.writes.Load())
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "redis", rep.Results[0].Backend)
}

func TestRunner_UsersAgainstMockService(t *testing.T) {
	svc, err := mockservice.New(mockservice.Config{Seed: 3}, zap.NewNop())
	require.NoError(t, err)
	srv := httptest.NewServer(svc)
	defer srv.Close()

	r := NewRunner(testSettings(t, srv.URL), nil, zap.NewNop(),
		WithHostSampler(&fakeHost{}),
		WithThinkScale(0.001),
		WithSeed(5))

	rep, err := r.Run(context.Background(), RunRequest{
		Scenarios: []string{"baseline"},
		Overrides: config.Override{Duration: "400ms", Users: 3, SpawnRate: 50},
		UsersOnly: true,
	})
	require.NoError(t, err)

	assert.Empty(t, rep.Results)
	require.NotNil(t, rep.Simulation)
	assert.Equal(t, 3, rep.Simulation.Users)
	assert.Equal(t, uint64(3), rep.Simulation.Sessions)
	assert.Zero(t, rep.Simulation.Failures)
	assert.NotEqual(t, report.StatusFail, rep.Status)

	requests, _ := svc.Counters()
	assert.Positive(t, requests)
}

func TestRunner_Monitor(t *testing.T) {
	r := NewRunner(testSettings(t, ""), nil, zap.NewNop(),
		WithGenerators(map[string]workload.Generator{}),
		WithHostSampler(&fakeHost{}))

	path := filepath.Join(t.TempDir(), "history.json.zst")
	res, err := r.Monitor(context.Background(), MonitorRequest{
		Interval:    40 * time.Millisecond,
		Duration:    250 * time.Millisecond,
		HistoryPath: path,
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(res.Samples), 2)
	assert.True(t, res.Samples[0].Baseline)
	assert.Equal(t, float64(monitoring.Unavailable), res.Samples[0].DiskReadBytes)
	assert.Equal(t, 100.0, res.Samples[1].DiskReadBytes)
	for ep, v := range res.Samples[1].EndpointLatency {
		assert.Equal(t, float64(monitoring.Unavailable), v, "unreachable target endpoint %s", ep)
	}
	assert.Equal(t, len(res.Samples), res.Summary.SampleCount)

	hist, err := monitoring.ReadHistory(path)
	require.NoError(t, err)
	assert.Len(t, hist.Samples, len(res.Samples))
}

func TestRunner_MonitorRejectsNegative(t *testing.T) {
	r := NewRunner(testSettings(t, ""), nil, zap.NewNop(), WithGenerators(map[string]workload.Generator{}))
	_, err := r.Monitor(context.Background(), MonitorRequest{Duration: -time.Second})
	assert.Error(t, err)
}
