// internal/alerting/thresholds.go
package alerting

import (
	"errors"

	"github.com/FairForge/perfharness/internal/config"
)

// Thresholds are the limits a sample is checked against. Every comparison is
// strict, so a value exactly at its limit never fires. A zero limit disables
// its rule, as does a missing or zero connection cap.
type Thresholds struct {
	CPUPercent       float64        `json:"cpu_percent"`
	MemoryPercent    float64        `json:"memory_percent"`
	EndpointLatency  float64        `json:"endpoint_latency"`
	ErrorRate        float64        `json:"error_rate"`
	TargetThroughput float64        `json:"target_throughput"`
	ConnectionCaps   map[string]int `json:"connection_caps,omitempty"`
}

// DefaultThresholds returns the host limits with no scenario-specific checks.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUPercent:    80,
		MemoryPercent: 85,
	}
}

// Validate checks configuration
func (t *Thresholds) Validate() error {
	if t.CPUPercent < 0 || t.MemoryPercent < 0 || t.EndpointLatency < 0 ||
		t.ErrorRate < 0 || t.TargetThroughput < 0 {
		return errors.New("alerting: thresholds must be non-negative")
	}
	for _, limit := range t.ConnectionCaps {
		if limit < 0 {
			return errors.New("alerting: connection caps must be non-negative")
		}
	}
	return nil
}

// ThresholdsFor merges the scenario limits with the monitoring settings.
// Scenario connection caps take precedence over the configured ones.
func ThresholdsFor(sc config.ScenarioConfig, mon config.MonitoringConfig, caps map[string]int) Thresholds {
	t := DefaultThresholds()
	if mon.CPUThreshold > 0 {
		t.CPUPercent = mon.CPUThreshold
	}
	if mon.MemoryThreshold > 0 {
		t.MemoryPercent = mon.MemoryThreshold
	}
	t.EndpointLatency = sc.ResponseTimeP95.Seconds()
	t.ErrorRate = sc.ErrorRateThreshold
	t.TargetThroughput = sc.TargetThroughput

	t.ConnectionCaps = make(map[string]int, len(caps)+len(sc.ConnectionCaps))
	for k, v := range caps {
		t.ConnectionCaps[k] = v
	}
	for k, v := range sc.ConnectionCaps {
		t.ConnectionCaps[k] = v
	}
	return t
}
