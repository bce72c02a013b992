// Package monitoring samples host, backend and service health while a run is in progress.
package monitoring

import (
	"errors"
	"time"

	"github.com/FairForge/perfharness/internal/alerting"
)

// Unavailable marks a measurement that could not be taken. It is distinct from a measured zero.
const Unavailable = alerting.Unavailable

// ErrMetricsUnavailable is returned when a metrics source cannot answer.
var ErrMetricsUnavailable = errors.New("monitoring: metrics unavailable")

// PerformanceSample is one tick of the sampler. Byte fields are deltas against
// the previous sample; on the first sample they are Unavailable and Baseline is set.
type PerformanceSample struct {
	Timestamp       time.Time          `json:"timestamp"`
	Baseline        bool               `json:"baseline,omitempty"`
	CPUPercent      float64            `json:"cpu_percent"`
	MemoryPercent   float64            `json:"memory_percent"`
	DiskReadBytes   float64            `json:"disk_read_bytes"`
	DiskWriteBytes  float64            `json:"disk_write_bytes"`
	NetSentBytes    float64            `json:"net_sent_bytes"`
	NetRecvBytes    float64            `json:"net_recv_bytes"`
	Connections     map[string]int     `json:"connections"`
	EndpointLatency map[string]float64 `json:"endpoint_latency"`
	Throughput      float64            `json:"throughput"`
	ErrorRate       float64            `json:"error_rate"`
	ActiveUsers     int                `json:"active_users"`
	Alerts          []alerting.Alert   `json:"alerts,omitempty"`
}

func (s *PerformanceSample) observation() alerting.Observation {
	return alerting.Observation{
		Timestamp:       s.Timestamp,
		Baseline:        s.Baseline,
		CPUPercent:      s.CPUPercent,
		MemoryPercent:   s.MemoryPercent,
		EndpointLatency: s.EndpointLatency,
		ErrorRate:       s.ErrorRate,
		Throughput:      s.Throughput,
		Connections:     s.Connections,
	}
}
