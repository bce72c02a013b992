package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Mix selects how the stress coordinator interleaves reads and writes.
type Mix string

const (
	MixReadHeavy  Mix = "read_heavy"
	MixWriteHeavy Mix = "write_heavy"
	MixBalanced   Mix = "balanced"
	MixBurst      Mix = "burst_load"
)

// ReadRatio returns the probability of choosing a read for a non-burst mix.
func (m Mix) ReadRatio() float64 {
	switch m {
	case MixReadHeavy:
		return 0.8
	case MixWriteHeavy:
		return 0.2
	default:
		return 0.5
	}
}

// Valid reports whether m is one of the known mixes.
func (m Mix) Valid() bool {
	switch m {
	case MixReadHeavy, MixWriteHeavy, MixBalanced, MixBurst:
		return true
	}
	return false
}

// ErrUnknownScenario is wrapped by ConfigError when a lookup misses.
var ErrUnknownScenario = errors.New("config: unknown scenario")

// ConfigError reports an unknown or invalid scenario.
type ConfigError struct {
	Scenario string
	Reason   string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("config: scenario %q: %v", e.Scenario, e.Err)
	}
	return fmt.Sprintf("config: scenario %q: %s", e.Scenario, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ScenarioConfig is an immutable parameter set for one named load profile.
// It is passed by value and never modified after Lookup returns it.
type ScenarioConfig struct {
	Name               string         `yaml:"name" json:"name"`
	Mix                Mix            `yaml:"mix" json:"mix"`
	Users              int            `yaml:"users" json:"users"`
	SpawnRate          float64        `yaml:"spawn_rate" json:"spawn_rate"`
	Duration           time.Duration  `yaml:"-" json:"duration"`
	RawDuration        string         `yaml:"duration" json:"-"`
	BurstIntensity     int            `yaml:"burst_intensity" json:"burst_intensity"`
	ResponseTimeP95    time.Duration  `yaml:"-" json:"response_time_p95"`
	RawResponseTimeP95 string         `yaml:"response_time_p95" json:"-"`
	ErrorRateThreshold float64        `yaml:"error_rate_threshold" json:"error_rate_threshold"`
	TargetThroughput   float64        `yaml:"target_throughput" json:"target_throughput"`
	Endpoints          []string       `yaml:"endpoints" json:"endpoints"`
	SampleQueries      []string       `yaml:"sample_queries" json:"sample_queries"`
	ConnectionCaps     map[string]int `yaml:"connection_caps" json:"connection_caps,omitempty"`
}

// Override replaces selected fields of a registered scenario before validation.
// Zero values leave the registered value untouched.
type Override struct {
	Duration  string
	Users     int
	SpawnRate float64
}

// DefaultEndpoints are probed by the sampler unless a scenario lists its own.
var DefaultEndpoints = []string{"/health", "/api/search", "/api/status"}

// DefaultQueries seed workload and probe parameters.
var DefaultQueries = []string{
	"first-line treatment for community acquired pneumonia",
	"drug interactions between warfarin and amiodarone",
	"pediatric dosing for amoxicillin",
	"differential diagnosis of acute chest pain",
	"contraindications for beta blockers in asthma",
	"management of diabetic ketoacidosis",
}

func (c *ScenarioConfig) applyDefaults() {
	if c.Mix == "" {
		c.Mix = MixBalanced
	}
	if c.Users == 0 {
		c.Users = 10
	}
	if c.SpawnRate == 0 {
		c.SpawnRate = 2
	}
	if c.RawDuration == "" && c.Duration == 0 {
		c.RawDuration = "60s"
	}
	if c.Mix == MixBurst && c.BurstIntensity == 0 {
		c.BurstIntensity = 10
	}
	if c.RawResponseTimeP95 == "" && c.ResponseTimeP95 == 0 {
		c.ResponseTimeP95 = 2 * time.Second
	}
	if c.ErrorRateThreshold == 0 {
		c.ErrorRateThreshold = 0.05
	}
	if len(c.Endpoints) == 0 {
		c.Endpoints = append([]string(nil), DefaultEndpoints...)
	}
	if len(c.SampleQueries) == 0 {
		c.SampleQueries = append([]string(nil), DefaultQueries...)
	}
}

func (c *ScenarioConfig) validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if !c.Mix.Valid() {
		return fmt.Errorf("unknown mix %q", c.Mix)
	}
	if c.RawDuration != "" {
		d, err := ParseDuration(c.RawDuration)
		if err != nil {
			return err
		}
		c.Duration = d
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", c.Duration)
	}
	if c.RawResponseTimeP95 != "" {
		d, err := ParseDuration(c.RawResponseTimeP95)
		if err != nil {
			return fmt.Errorf("response_time_p95: %w", err)
		}
		c.ResponseTimeP95 = d
	}
	if c.SpawnRate <= 0 {
		return fmt.Errorf("spawn rate must be positive, got %v", c.SpawnRate)
	}
	if c.Users <= 0 {
		return fmt.Errorf("users must be positive, got %d", c.Users)
	}
	if c.Mix == MixBurst && c.BurstIntensity <= 0 {
		return fmt.Errorf("burst intensity must be positive, got %d", c.BurstIntensity)
	}
	if c.ResponseTimeP95 < 0 || c.ErrorRateThreshold < 0 || c.TargetThroughput < 0 {
		return errors.New("thresholds must be non-negative")
	}
	for backend, limit := range c.ConnectionCaps {
		if limit < 0 {
			return fmt.Errorf("connection cap for %s must be non-negative", backend)
		}
	}
	return nil
}

// ParseDuration accepts Go duration strings ("90s", "5m") and bare integer seconds ("60").
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("duration is empty")
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %q", raw)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", raw)
	}
	return d, nil
}

// Registry holds scenario definitions keyed by name.
type Registry struct {
	mu        sync.RWMutex
	scenarios map[string]ScenarioConfig
}

// NewRegistry returns a registry preloaded with the built-in scenarios.
func NewRegistry() *Registry {
	r := &Registry{scenarios: make(map[string]ScenarioConfig)}
	for _, sc := range builtinScenarios() {
		r.scenarios[sc.Name] = sc
	}
	return r
}

// Register adds or replaces a scenario definition. The definition is
// validated with defaults applied so a broken file fails at load time.
func (r *Registry) Register(sc ScenarioConfig) error {
	probe := sc
	probe.applyDefaults()
	if err := probe.validate(); err != nil {
		return &ConfigError{Scenario: sc.Name, Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenarios[sc.Name] = sc
	return nil
}

// Names returns the registered scenario names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.scenarios))
	for name := range r.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a fully defaulted, validated copy of the named scenario.
func (r *Registry) Lookup(name string, overrides ...Override) (ScenarioConfig, error) {
	r.mu.RLock()
	sc, ok := r.scenarios[name]
	r.mu.RUnlock()
	if !ok {
		return ScenarioConfig{}, &ConfigError{Scenario: name, Err: ErrUnknownScenario}
	}

	sc = sc.clone()
	for _, o := range overrides {
		if o.Duration != "" {
			sc.RawDuration = o.Duration
		}
		if o.Users > 0 {
			sc.Users = o.Users
		}
		if o.SpawnRate > 0 {
			sc.SpawnRate = o.SpawnRate
		}
	}

	sc.applyDefaults()
	if err := sc.validate(); err != nil {
		return ScenarioConfig{}, &ConfigError{Scenario: name, Reason: err.Error()}
	}
	return sc, nil
}

func (c ScenarioConfig) clone() ScenarioConfig {
	c.Endpoints = append([]string(nil), c.Endpoints...)
	c.SampleQueries = append([]string(nil), c.SampleQueries...)
	if c.ConnectionCaps != nil {
		caps := make(map[string]int, len(c.ConnectionCaps))
		for k, v := range c.ConnectionCaps {
			caps[k] = v
		}
		c.ConnectionCaps = caps
	}
	return c
}

func builtinScenarios() []ScenarioConfig {
	return []ScenarioConfig{
		{Name: "read_heavy", Mix: MixReadHeavy, Users: 20, SpawnRate: 5, RawDuration: "60s", TargetThroughput: 100},
		{Name: "write_heavy", Mix: MixWriteHeavy, Users: 20, SpawnRate: 5, RawDuration: "60s", TargetThroughput: 50},
		{Name: "balanced", Mix: MixBalanced, Users: 20, SpawnRate: 5, RawDuration: "60s", TargetThroughput: 75},
		{Name: "burst_load", Mix: MixBurst, Users: 50, SpawnRate: 10, RawDuration: "30s", BurstIntensity: 10,
			ResponseTimeP95: 5 * time.Second, ErrorRateThreshold: 0.10, TargetThroughput: 200},

		{Name: "baseline", Mix: MixBalanced, Users: 10, SpawnRate: 2, RawDuration: "60s",
			ResponseTimeP95: 2 * time.Second, ErrorRateThreshold: 0.01, TargetThroughput: 20},
		{Name: "peak", Mix: MixReadHeavy, Users: 100, SpawnRate: 10, RawDuration: "300s",
			ResponseTimeP95: 3 * time.Second, ErrorRateThreshold: 0.02, TargetThroughput: 150},
		{Name: "stress", Mix: MixBurst, Users: 300, SpawnRate: 25, RawDuration: "600s", BurstIntensity: 25,
			ResponseTimeP95: 8 * time.Second, ErrorRateThreshold: 0.10, TargetThroughput: 400},
	}
}
