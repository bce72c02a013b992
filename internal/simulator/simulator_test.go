package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeService struct {
	rateLimitChat atomic.Bool
	malformed     atomic.Bool
	sessions      atomic.Int64
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		n := f.sessions.Add(1)
		writeJSON(w, map[string]string{"session_id": fmt.Sprintf("s-%d", n)})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if f.rateLimitChat.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]string{"response": "a sufficiently detailed clinical answer", "session_id": "s"})
	})
	mux.HandleFunc("/api/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		if f.malformed.Load() {
			fmt.Fprint(w, "data: {broken\n\n")
			return
		}
		fmt.Fprint(w, "data: {\"content\":\"streamed answer that is long enough\"}\n\ndata: [DONE]\n\n")
	})
	health := func(w http.ResponseWriter, r *http.Request) { writeJSON(w, map[string]string{"status": "healthy"}) }
	mux.HandleFunc("/health", health)
	mux.HandleFunc("/health/detailed", health)
	mux.HandleFunc("/api/status", health)
	return mux
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *recordingObserver) ObserveTask(persona, task, outcome string, latency time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome]++
}

func newTestSimulator(t *testing.T, url string, weights []Weighted[Task], obs TaskObserver) *Simulator {
	t.Helper()
	sim, err := NewSimulator(Config{
		BaseURL:     url,
		Users:       4,
		SpawnRate:   1000,
		ThinkScale:  0.001,
		Backoff:     5 * time.Millisecond,
		HTTPTimeout: time.Second,
		Seed:        11,
		TaskWeights: weights,
	}, zap.NewNop(), obs)
	require.NoError(t, err)
	return sim
}

func TestSimulator_RateLimitNeverCountedAsFailure(t *testing.T) {
	svc := &fakeService{}
	svc.rateLimitChat.Store(true)
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	obs := &recordingObserver{}
	sim := newTestSimulator(t, srv.URL, []Weighted[Task]{{Weight: 100, Value: TaskQuery}}, obs)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	sum := sim.Run(ctx)

	assert.Equal(t, 4, sum.Users)
	assert.Equal(t, uint64(4), sum.Sessions)
	assert.Greater(t, sum.RateLimited, uint64(0))
	assert.Zero(t, sum.Failures)

	_, errs, _ := sim.Client().Counters(context.Background())
	assert.Zero(t, errs, "rate limits are not errors")

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Zero(t, obs.outcomes["failure"])
	assert.Positive(t, obs.outcomes["rate_limited"])
}

func TestSimulator_MalformedFrameFailsOnlyTheAttempt(t *testing.T) {
	svc := &fakeService{}
	svc.malformed.Store(true)
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	sim := newTestSimulator(t, srv.URL, []Weighted[Task]{
		{Weight: 50, Value: TaskStream},
		{Weight: 50, Value: TaskHealth},
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	sum := sim.Run(ctx)

	byTask := make(map[string]uint64)
	for _, s := range sum.Tasks {
		byTask[s.Name+".failures"] = s.Failures
		byTask[s.Name+".successes"] = s.Successes
	}
	assert.Positive(t, byTask["stream.failures"])
	assert.Zero(t, byTask["stream.successes"])
	assert.Positive(t, byTask["health.successes"], "users keep running after a bad stream")
	assert.Equal(t, uint64(4), sum.Sessions, "sessions are not re-created after a failed attempt")
}

func TestSimulator_HealthyRun(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	sim := newTestSimulator(t, srv.URL, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	sum := sim.Run(ctx)

	assert.Zero(t, sum.Failures)
	assert.Positive(t, sum.Attempts)
	total := 0
	for _, n := range sum.Personas {
		total += n
	}
	assert.Equal(t, 4, total)

	reqs, errs, err := sim.Client().Counters(context.Background())
	require.NoError(t, err)
	assert.Positive(t, reqs)
	assert.Zero(t, errs)
}

func TestSimulator_SessionInitRetried(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"session_id":"late"}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sim, err := NewSimulator(Config{
		BaseURL: srv.URL, Users: 1, SpawnRate: 100, ThinkScale: 0.001, Seed: 1,
		TaskWeights: []Weighted[Task]{{Weight: 100, Value: TaskHealth}},
	}, zap.NewNop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	sum := sim.Run(ctx)

	assert.Equal(t, uint64(2), sum.SessionFailures)
	assert.Equal(t, uint64(1), sum.Sessions)
	assert.Positive(t, sum.Attempts)
}

func TestConfig_Validate(t *testing.T) {
	_, err := NewSimulator(Config{}, zap.NewNop(), nil)
	assert.Error(t, err)

	_, err = NewSimulator(Config{BaseURL: "http://x", Users: -1}, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestNewSimulator_NilLogger(t *testing.T) {
	var sim *Simulator
	require.NotPanics(t, func() {
		var err error
		sim, err = NewSimulator(Config{BaseURL: "http://127.0.0.1:1", Users: 1, SpawnRate: 1}, nil, nil)
		require.NoError(t, err)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := sim.Run(ctx)
	assert.Zero(t, sum.Attempts)
}
