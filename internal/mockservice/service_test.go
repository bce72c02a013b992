package mockservice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/monitoring"
	"github.com/FairForge/perfharness/internal/simulator"
)

func newService(t *testing.T, cfg Config) *Service {
	t.Helper()
	cfg.Seed = 42
	s, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return s
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf)))
	return rec
}

func session(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := post(t, h, "/api/sessions", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["session_id"]
}

func TestConfig_Validate(t *testing.T) {
	_, err := New(Config{RateLimitProbability: 1.5}, zap.NewNop())
	assert.Error(t, err)
	_, err = New(Config{Jitter: -time.Second}, zap.NewNop())
	assert.Error(t, err)
}

func TestService_ChatRequiresSession(t *testing.T) {
	s := newService(t, Config{})

	rec := post(t, s, "/api/chat", map[string]string{"session_id": "nope", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id := session(t, s)
	rec = post(t, s, "/api/chat", map[string]string{"session_id": id, "message": "dosing for amoxicillin"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, id, body["session_id"])
	assert.NotEmpty(t, body["response"])
}

func TestService_StreamEndsWithDone(t *testing.T) {
	s := newService(t, Config{StreamChunks: 3})
	id := session(t, s)

	rec := post(t, s, "/api/chat/stream", map[string]string{"session_id": id, "message": "q"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	content, frames, err := simulator.ReadStream(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 3, frames)
	assert.Greater(t, len(content), simulator.DefaultMinContentLength)
}

func TestService_RateLimitProbability(t *testing.T) {
	s := newService(t, Config{RateLimitProbability: 1, RetryAfter: 2})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is never rate limited")

	requests, errors := s.Counters()
	assert.Equal(t, uint64(2), requests)
	assert.Zero(t, errors)
}

func TestService_TokenBucket(t *testing.T) {
	s := newService(t, Config{RequestsPerSecond: 1})

	codes := make(map[int]int)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		codes[rec.Code]++
	}
	assert.Equal(t, 1, codes[http.StatusOK])
	assert.Equal(t, 4, codes[http.StatusTooManyRequests])
}

func TestService_InjectedErrorsCounted(t *testing.T) {
	s := newService(t, Config{ErrorProbability: 1})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	_, errors := s.Counters()
	assert.Equal(t, uint64(1), errors)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), `http_requests_total{path="/api/status",status="500"} 1`))
}

func TestService_ServesProberAndSimulator(t *testing.T) {
	s := newService(t, Config{Jitter: time.Millisecond})
	srv := httptest.NewServer(s)
	defer srv.Close()

	prober := monitoring.NewHTTPProber(srv.URL, []string{"/health", "/api/search", "/api/status"}, nil, time.Second)
	latencies := prober.Probe(context.Background())
	for ep, v := range latencies {
		assert.GreaterOrEqual(t, v, 0.0, ep)
	}

	sim, err := simulator.NewSimulator(simulator.Config{
		BaseURL: srv.URL, Users: 3, SpawnRate: 100, ThinkScale: 0.001, Seed: 5,
	}, zap.NewNop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	sum := sim.Run(ctx)

	assert.Equal(t, uint64(3), sum.Sessions)
	assert.Positive(t, sum.Attempts)
	assert.Zero(t, sum.Failures)
}
