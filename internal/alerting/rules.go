// internal/alerting/rules.go
package alerting

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severities
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Metric names carried on alerts
const (
	MetricCPU             = "cpu_percent"
	MetricMemory          = "memory_percent"
	MetricEndpointLatency = "endpoint_latency"
	MetricErrorRate       = "error_rate"
	MetricThroughput      = "throughput"
	MetricConnections     = "connections"
)

// Unavailable marks a measurement that could not be taken.
const Unavailable = -1

// criticalFactor escalates an alert when the value overshoots its limit by this ratio.
const criticalFactor = 1.25

// criticalPercent escalates host utilization alerts.
const criticalPercent = 95.0

// Alert represents a fired threshold breach. It is purely observational.
type Alert struct {
	ID        string    `json:"id"`
	Metric    string    `json:"metric"`
	Subject   string    `json:"subject,omitempty"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	FiredAt   time.Time `json:"fired_at"`
}

// Observation is the slice of a performance sample alerting looks at.
// Negative values are unavailable and never fire.
type Observation struct {
	Timestamp       time.Time
	Baseline        bool
	CPUPercent      float64
	MemoryPercent   float64
	EndpointLatency map[string]float64
	ErrorRate       float64
	Throughput      float64
	Connections     map[string]int
}

// Evaluator checks observations against thresholds.
type Evaluator struct {
	thresholds Thresholds
	logger     *zap.Logger
	callbacks  []func(Alert)
	mu         sync.RWMutex
}

// NewEvaluator creates an evaluator
func NewEvaluator(thresholds Thresholds, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{thresholds: thresholds, logger: logger.Named("alerting")}
}

// Thresholds returns the configured limits.
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// OnAlert registers a callback invoked for every fired alert.
func (e *Evaluator) OnAlert(cb func(Alert)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = append(e.callbacks, cb)
}

// Evaluate returns the alerts that fire for obs, logging each one.
// Rate-derived checks are skipped on a baseline observation.
func (e *Evaluator) Evaluate(obs Observation) []Alert {
	t := e.thresholds
	at := obs.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	var alerts []Alert
	fire := func(metric, subject string, value, threshold float64, severity, msg string) {
		alerts = append(alerts, Alert{
			ID:        uuid.New().String(),
			Metric:    metric,
			Subject:   subject,
			Value:     value,
			Threshold: threshold,
			Severity:  severity,
			Message:   msg,
			FiredAt:   at,
		})
	}

	if above(obs.CPUPercent, t.CPUPercent) {
		fire(MetricCPU, "", obs.CPUPercent, t.CPUPercent, severityPercent(obs.CPUPercent),
			fmt.Sprintf("CPU usage %.1f%% exceeds %.1f%%", obs.CPUPercent, t.CPUPercent))
	}
	if above(obs.MemoryPercent, t.MemoryPercent) {
		fire(MetricMemory, "", obs.MemoryPercent, t.MemoryPercent, severityPercent(obs.MemoryPercent),
			fmt.Sprintf("memory usage %.1f%% exceeds %.1f%%", obs.MemoryPercent, t.MemoryPercent))
	}

	if t.EndpointLatency > 0 {
		for _, endpoint := range sortedKeys(obs.EndpointLatency) {
			v := obs.EndpointLatency[endpoint]
			if above(v, t.EndpointLatency) {
				fire(MetricEndpointLatency, endpoint, v, t.EndpointLatency, severityAbove(v, t.EndpointLatency),
					fmt.Sprintf("%s latency %.3fs exceeds %.3fs", endpoint, v, t.EndpointLatency))
			}
		}
	}

	if !obs.Baseline {
		if t.ErrorRate > 0 && above(obs.ErrorRate, t.ErrorRate) {
			fire(MetricErrorRate, "", obs.ErrorRate, t.ErrorRate, severityAbove(obs.ErrorRate, t.ErrorRate),
				fmt.Sprintf("error rate %.2f%% exceeds %.2f%%", obs.ErrorRate*100, t.ErrorRate*100))
		}
		floor := t.TargetThroughput * 0.5
		if t.TargetThroughput > 0 && obs.Throughput >= 0 && obs.Throughput < floor {
			severity := SeverityWarning
			if obs.Throughput < t.TargetThroughput*0.25 {
				severity = SeverityCritical
			}
			fire(MetricThroughput, "", obs.Throughput, floor, severity,
				fmt.Sprintf("throughput %.1f req/s below %.1f req/s", obs.Throughput, floor))
		}
	}

	for _, backend := range sortedKeys(obs.Connections) {
		limit, ok := t.ConnectionCaps[backend]
		if !ok || limit <= 0 {
			continue
		}
		n := obs.Connections[backend]
		if n >= 0 && n > limit {
			fire(MetricConnections, backend, float64(n), float64(limit), severityAbove(float64(n), float64(limit)),
				fmt.Sprintf("%s has %d connections, cap is %d", backend, n, limit))
		}
	}

	e.mu.RLock()
	callbacks := e.callbacks
	e.mu.RUnlock()

	for _, a := range alerts {
		e.logger.Warn("alert fired",
			zap.String("metric", a.Metric),
			zap.String("subject", a.Subject),
			zap.Float64("value", a.Value),
			zap.Float64("threshold", a.Threshold),
			zap.String("severity", a.Severity))
		for _, cb := range callbacks {
			cb(a)
		}
	}
	return alerts
}

func above(value, threshold float64) bool {
	return value >= 0 && threshold > 0 && value > threshold
}

func severityAbove(value, threshold float64) string {
	if value > threshold*criticalFactor {
		return SeverityCritical
	}
	return SeverityWarning
}

func severityPercent(value float64) string {
	if value > criticalPercent {
		return SeverityCritical
	}
	return SeverityWarning
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
