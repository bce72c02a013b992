// internal/api/state.go
package api

import (
	"sync"
	"time"

	"github.com/FairForge/perfharness/internal/monitoring"
	"github.com/FairForge/perfharness/internal/simulator"
)

// Phase is the coarse progress of a run.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseStarting   Phase = "starting"
	PhaseStress     Phase = "stress"
	PhaseSimulating Phase = "simulating"
	PhaseMonitoring Phase = "monitoring"
	PhaseReporting  Phase = "reporting"
	PhaseDone       Phase = "done"
)

// LatestSampler is the read side of a running sampler.
type LatestSampler interface {
	Latest() (monitoring.PerformanceSample, bool)
	Len() int
}

// SimulationSource returns live simulated-user totals.
type SimulationSource func() simulator.Summary

// Status is the body served at /status.
type Status struct {
	Phase      Phase                         `json:"phase"`
	Scenario   string                        `json:"scenario,omitempty"`
	StartedAt  time.Time                     `json:"started_at"`
	Elapsed    float64                       `json:"elapsed_seconds"`
	Samples    int                           `json:"samples"`
	Latest     *monitoring.PerformanceSample `json:"latest_sample,omitempty"`
	Simulation *simulator.Summary            `json:"user_simulation,omitempty"`
}

// RunState is shared between the harness, which writes it, and the status
// handler, which reads it.
type RunState struct {
	mu         sync.RWMutex
	phase      Phase
	scenario   string
	startedAt  time.Time
	sampler    LatestSampler
	simulation SimulationSource
	now        func() time.Time
}

func NewRunState() *RunState {
	return &RunState{phase: PhaseIdle, startedAt: time.Now(), now: time.Now}
}

// SetPhase records the current phase and scenario.
func (s *RunState) SetPhase(phase Phase, scenario string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	s.scenario = scenario
}

// AttachSampler exposes a sampler's latest sample; nil detaches.
func (s *RunState) AttachSampler(sampler LatestSampler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampler = sampler
}

// AttachSimulation exposes live simulation totals; nil detaches.
func (s *RunState) AttachSimulation(src SimulationSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulation = src
}

// Snapshot returns the current status.
func (s *RunState) Snapshot() Status {
	s.mu.RLock()
	sampler, simulation := s.sampler, s.simulation
	st := Status{
		Phase:     s.phase,
		Scenario:  s.scenario,
		StartedAt: s.startedAt,
		Elapsed:   s.now().Sub(s.startedAt).Seconds(),
	}
	s.mu.RUnlock()

	if sampler != nil {
		st.Samples = sampler.Len()
		if latest, ok := sampler.Latest(); ok {
			st.Latest = &latest
		}
	}
	if simulation != nil {
		sum := simulation()
		st.Simulation = &sum
	}
	return st
}
