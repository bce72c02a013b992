// Package mockservice is a local stand-in for the monitored chat/search
// service, used by tests and the mock-service command.
package mockservice

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config shapes the fake service's behavior.
type Config struct {
	// Latency is the base delay added to every API call.
	Latency time.Duration
	// Jitter is the upper bound of extra random delay.
	Jitter time.Duration
	// RateLimitProbability is the chance an API call answers 429.
	RateLimitProbability float64
	// ErrorProbability is the chance an API call answers 500.
	ErrorProbability float64
	// RequestsPerSecond caps API calls with a token bucket; zero disables it.
	RequestsPerSecond float64
	// RetryAfter is sent with every 429, in whole seconds; zero omits the header.
	RetryAfter int
	// StreamChunks is the number of SSE frames per streamed answer.
	StreamChunks int
	Seed         uint64
}

func (c *Config) ApplyDefaults() {
	if c.StreamChunks <= 0 {
		c.StreamChunks = 5
	}
	if c.Seed == 0 {
		c.Seed = uint64(time.Now().UnixNano())
	}
}

func (c *Config) Validate() error {
	for name, p := range map[string]float64{
		"rate limit probability": c.RateLimitProbability,
		"error probability":      c.ErrorProbability,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("mockservice: %s must be within [0, 1], got %v", name, p)
		}
	}
	if c.Latency < 0 || c.Jitter < 0 || c.RequestsPerSecond < 0 || c.RetryAfter < 0 {
		return fmt.Errorf("mockservice: latency, jitter, rate and retry-after must be non-negative")
	}
	return nil
}

// Service is the fake monitored service.
type Service struct {
	cfg     Config
	logger  *zap.Logger
	router  chi.Router
	limiter *rate.Limiter

	rngMu sync.Mutex
	rng   *rand.Rand

	sessions sync.Map
	started  time.Time

	registry     *prometheus.Registry
	httpRequests *prometheus.CounterVec
	requests     atomic.Uint64
	errors       atomic.Uint64
}

// New builds the service and its routes.
func New(cfg Config, logger *zap.Logger) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	s := &Service{
		cfg:      cfg,
		logger:   logger.Named("mockservice"),
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>1)),
		started:  time.Now(),
		registry: reg,
		httpRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Requests served by the mock service",
		}, []string{"path", "status"}),
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	s.routes()
	return s, nil
}

func (s *Service) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.count)

	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleHealthDetailed)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.chaos)
		r.Get("/api/status", s.handleStatus)
		r.Post("/api/sessions", s.handleCreateSession)
		r.Post("/api/chat", s.handleChat)
		r.Post("/api/chat/stream", s.handleChatStream)
		r.Post("/api/search", s.handleSearch)
	})
	s.router = r
}

// ServeHTTP makes Service an http.Handler.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Counters reports cumulative requests and 5xx responses.
func (s *Service) Counters() (requests, errors uint64) {
	return s.requests.Load(), s.errors.Load()
}

// count records every response by path and status.
func (s *Service) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requests.Add(1)
		if status >= 500 {
			s.errors.Add(1)
		}
		s.httpRequests.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
	})
}

// chaos applies latency, rate limiting and injected failures to API calls.
func (s *Service) chaos(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delay, limited, failed := s.roll()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if limited || (s.limiter != nil && !s.limiter.Allow()) {
			if s.cfg.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(s.cfg.RetryAfter))
			}
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		if failed {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) roll() (delay time.Duration, limited, failed bool) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	delay = s.cfg.Latency
	if s.cfg.Jitter > 0 {
		delay += time.Duration(s.rng.Int64N(int64(s.cfg.Jitter)))
	}
	limited = s.rng.Float64() < s.cfg.RateLimitProbability
	failed = s.rng.Float64() < s.cfg.ErrorProbability
	return delay, limited, failed
}

func (s *Service) pick(items []string) string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return items[s.rng.IntN(len(items))]
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

var answers = []string{
	"Based on current guidelines, the recommended first-line approach depends on severity and local resistance patterns.",
	"Dosing should be weight-based and adjusted for renal function; monitor for adverse effects during the first week.",
	"The combination increases bleeding risk; consider dose reduction and closer INR monitoring.",
	"Differential diagnosis includes cardiac, pulmonary, gastrointestinal and musculoskeletal causes.",
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Service) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.started).Seconds(),
		"components": map[string]string{
			"database": "healthy",
			"graph":    "healthy",
			"cache":    "healthy",
		},
	})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessions := 0
	s.sessions.Range(func(_, _ any) bool { sessions++; return true })
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "operational",
		"active_sessions": sessions,
		"requests":        s.requests.Load(),
	})
}

func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Persona string `json:"persona"`
	}
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	id := uuid.NewString()
	s.sessions.Store(id, req.UserID)
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

type chatRequest struct {
	SessionID  string `json:"session_id"`
	Message    string `json:"message"`
	SearchMode string `json:"search_mode"`
	Context    string `json:"context"`
}

func (s *Service) readChat(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return req, false
	}
	if _, ok := s.sessions.Load(req.SessionID); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session"})
		return req, false
	}
	return req, true
}

func (s *Service) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readChat(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"response":    s.pick(answers),
		"session_id":  req.SessionID,
		"search_mode": req.SearchMode,
		"sources":     []string{"guideline-2024", "formulary"},
	})
}

func (s *Service) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.readChat(w, r); !ok {
		return
	}
	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	words := strings.Fields(s.pick(answers))
	chunk := (len(words) + s.cfg.StreamChunks - 1) / s.cfg.StreamChunks
	for i := 0; i < len(words); i += chunk {
		end := min(i+chunk, len(words))
		frame, _ := json.Marshal(map[string]string{"content": strings.Join(words[i:end], " ") + " "})
		fmt.Fprintf(w, "data: %s\n\n", frame)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string `json:"query"`
		SearchMode string `json:"search_mode"`
		Limit      int    `json:"limit"`
	}
	if err := decode(w, r, &req); err != nil || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}
	results := make([]map[string]any, 0, req.Limit)
	for i := 0; i < req.Limit; i++ {
		results = append(results, map[string]any{
			"id":    fmt.Sprintf("doc-%d", i+1),
			"score": 1 - float64(i)*0.1,
			"title": s.pick(answers)[:24],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":       req.Query,
		"search_mode": req.SearchMode,
		"results":     results,
		"total":       len(results),
	})
}
