package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FairForge/perfharness/internal/stats"
)

// TaskObserver receives every counted task attempt.
type TaskObserver interface {
	ObserveTask(persona, task, outcome string, latency time.Duration)
}

// Config drives one simulation.
type Config struct {
	BaseURL          string
	Users            int
	SpawnRate        float64
	ResponseTimeP95  time.Duration
	HTTPTimeout      time.Duration
	ThinkScale       float64
	Backoff          time.Duration
	MinContentLength int
	Seed             uint64
	TaskWeights      []Weighted[Task]
}

func (c *Config) ApplyDefaults() {
	if c.Users == 0 {
		c.Users = 10
	}
	if c.SpawnRate == 0 {
		c.SpawnRate = 2
	}
	if c.ResponseTimeP95 == 0 {
		c.ResponseTimeP95 = 2 * time.Second
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.ThinkScale == 0 {
		c.ThinkScale = 1
	}
	if c.Backoff == 0 {
		c.Backoff = DefaultBackoff
	}
	if c.Seed == 0 {
		c.Seed = uint64(time.Now().UnixNano())
	}
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("simulator: base url is required")
	}
	if c.Users <= 0 {
		return fmt.Errorf("simulator: users must be positive, got %d", c.Users)
	}
	if c.SpawnRate <= 0 {
		return fmt.Errorf("simulator: spawn rate must be positive, got %v", c.SpawnRate)
	}
	if c.ThinkScale < 0 {
		return fmt.Errorf("simulator: think scale must be non-negative, got %v", c.ThinkScale)
	}
	return nil
}

// Summary is the simulation outcome included in the run report.
type Summary struct {
	Users           int              `json:"users"`
	Personas        map[string]int   `json:"personas"`
	Sessions        uint64           `json:"sessions"`
	SessionFailures uint64           `json:"session_failures"`
	Attempts        uint64           `json:"task_attempts"`
	Failures        uint64           `json:"task_failures"`
	RateLimited     uint64           `json:"rate_limited"`
	SlowResponses   uint64           `json:"slow_responses"`
	Tasks           []stats.Snapshot `json:"tasks"`
	Duration        float64          `json:"duration"`
}

// Simulator spawns synthetic users against the monitored service.
type Simulator struct {
	cfg      Config
	logger   *zap.Logger
	observer TaskObserver
	client   *Client
	tasks    *DispatchTable[Task]
	recorder *stats.Recorder

	mu       sync.Mutex
	personas map[string]int

	sessions        atomic.Uint64
	sessionFailures atomic.Uint64
	slow            atomic.Uint64
}

// NewSimulator validates cfg and builds the HTTP client. observer may be nil.
func NewSimulator(cfg Config, logger *zap.Logger, observer TaskObserver) (*Simulator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	validator, err := NewValidator(cfg.MinContentLength)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		cfg:      cfg,
		logger:   logger.Named("simulator"),
		observer: observer,
		client:   NewClient(cfg.BaseURL, cfg.HTTPTimeout, validator),
		tasks:    NewTaskTable(cfg.TaskWeights),
		recorder: stats.NewRecorder(),
		personas: make(map[string]int),
	}, nil
}

// Client exposes the HTTP client, whose counters feed a monitoring.CounterSource.
func (s *Simulator) Client() *Client { return s.client }

// Run spawns up to cfg.Users users at cfg.SpawnRate and returns once ctx is
// cancelled and every user has stopped.
func (s *Simulator) Run(ctx context.Context) Summary {
	start := time.Now()
	limiter := rate.NewLimiter(rate.Limit(s.cfg.SpawnRate), 1)
	spawnRNG := rand.New(rand.NewPCG(s.cfg.Seed, 0))

	s.logger.Info("simulation starting",
		zap.Int("users", s.cfg.Users),
		zap.Float64("spawn_rate", s.cfg.SpawnRate),
		zap.String("target", s.cfg.BaseURL))

	var wg sync.WaitGroup
	spawned := 0
	for ; spawned < s.cfg.Users; spawned++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		persona, err := NewPersona(pickPersona(spawnRNG))
		if err != nil {
			s.logger.Error("persona construction failed", zap.Error(err))
			continue
		}
		s.mu.Lock()
		s.personas[string(persona.Type)]++
		s.mu.Unlock()

		u := &user{
			sim:     s,
			persona: persona,
			rng:     rand.New(rand.NewPCG(s.cfg.Seed, uint64(spawned)+1)),
			logger:  s.logger.With(zap.String("persona", string(persona.Type)), zap.String("user_id", persona.UserID)),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.run(ctx)
		}()
	}
	wg.Wait()

	sum := s.Summary()
	sum.Users = spawned
	sum.Duration = time.Since(start).Seconds()
	s.logger.Info("simulation finished",
		zap.Int("users", spawned),
		zap.Uint64("attempts", sum.Attempts),
		zap.Uint64("failures", sum.Failures),
		zap.Uint64("rate_limited", sum.RateLimited))
	return sum
}

// Summary returns live totals; safe to call while Run is in progress.
func (s *Simulator) Summary() Summary {
	s.mu.Lock()
	personas := make(map[string]int, len(s.personas))
	users := 0
	for k, v := range s.personas {
		personas[k] = v
		users += v
	}
	s.mu.Unlock()

	attempts, failures, retries := s.recorder.Totals()
	return Summary{
		Users:           users,
		Personas:        personas,
		Sessions:        s.sessions.Load(),
		SessionFailures: s.sessionFailures.Load(),
		Attempts:        attempts,
		Failures:        failures,
		RateLimited:     retries,
		SlowResponses:   s.slow.Load(),
		Tasks:           s.recorder.Snapshot(),
	}
}

func (s *Simulator) record(p *Persona, task Task, res Result) {
	series := s.recorder.Series(string(task))
	switch res.Outcome {
	case Success:
		series.Success(res.Latency)
		if res.Latency > s.cfg.ResponseTimeP95 {
			s.slow.Add(1)
			s.logger.Warn("response slower than p95 threshold",
				zap.String("task", string(task)),
				zap.Duration("latency", res.Latency),
				zap.Duration("threshold", s.cfg.ResponseTimeP95))
		}
	case Retryable:
		series.Retry()
	default:
		series.Failure()
		s.logger.Debug("task failed", zap.String("task", string(task)), zap.Error(res.Err))
	}
	if s.observer != nil {
		s.observer.ObserveTask(string(p.Type), string(task), res.Outcome.String(), res.Latency)
	}
}
