package monitoring

import (
	"sort"
	"time"

	"github.com/FairForge/perfharness/internal/loadtest"
)

// MetricSummary is the mean and max of the available values of one metric.
type MetricSummary struct {
	Mean    float64 `json:"mean"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// Summary aggregates a sample history. Unavailable values are excluded from
// every mean, max and percentile; a metric with no available values reports
// Samples == 0.
type Summary struct {
	Start           time.Time                        `json:"start"`
	End             time.Time                        `json:"end"`
	SampleCount     int                              `json:"sample_count"`
	CPUPercent      MetricSummary                    `json:"cpu_percent"`
	MemoryPercent   MetricSummary                    `json:"memory_percent"`
	DiskReadBytes   MetricSummary                    `json:"disk_read_bytes"`
	DiskWriteBytes  MetricSummary                    `json:"disk_write_bytes"`
	NetSentBytes    MetricSummary                    `json:"net_sent_bytes"`
	NetRecvBytes    MetricSummary                    `json:"net_recv_bytes"`
	Throughput      MetricSummary                    `json:"throughput"`
	ErrorRate       MetricSummary                    `json:"error_rate"`
	ActiveUsers     MetricSummary                    `json:"active_users"`
	Connections     map[string]MetricSummary         `json:"connections"`
	EndpointLatency map[string]loadtest.LatencyStats `json:"endpoint_latency"`
	AlertCount      int                              `json:"alert_count"`
	AlertsByMetric  map[string]int                   `json:"alerts_by_metric,omitempty"`
}

type accumulator struct {
	sum   float64
	max   float64
	count int
}

func (a *accumulator) add(v float64) {
	if v < 0 {
		return
	}
	if a.count == 0 || v > a.max {
		a.max = v
	}
	a.sum += v
	a.count++
}

func (a *accumulator) summary() MetricSummary {
	if a.count == 0 {
		return MetricSummary{}
	}
	return MetricSummary{Mean: a.sum / float64(a.count), Max: a.max, Samples: a.count}
}

// Summarize aggregates samples into mean/max per metric and a percentile
// breakdown per endpoint.
func Summarize(samples []PerformanceSample) Summary {
	out := Summary{
		SampleCount:     len(samples),
		Connections:     map[string]MetricSummary{},
		EndpointLatency: map[string]loadtest.LatencyStats{},
		AlertsByMetric:  map[string]int{},
	}
	if len(samples) == 0 {
		return out
	}
	out.Start = samples[0].Timestamp
	out.End = samples[len(samples)-1].Timestamp

	var cpu, memory, diskR, diskW, netS, netR, tput, errRate, users accumulator
	conns := map[string]*accumulator{}
	endpoints := map[string][]float64{}

	for _, s := range samples {
		cpu.add(s.CPUPercent)
		memory.add(s.MemoryPercent)
		diskR.add(s.DiskReadBytes)
		diskW.add(s.DiskWriteBytes)
		netS.add(s.NetSentBytes)
		netR.add(s.NetRecvBytes)
		tput.add(s.Throughput)
		errRate.add(s.ErrorRate)
		users.add(float64(s.ActiveUsers))

		for backend, n := range s.Connections {
			acc, ok := conns[backend]
			if !ok {
				acc = &accumulator{}
				conns[backend] = acc
			}
			acc.add(float64(n))
		}
		for ep, v := range s.EndpointLatency {
			if _, ok := endpoints[ep]; !ok {
				endpoints[ep] = nil
			}
			if v >= 0 {
				endpoints[ep] = append(endpoints[ep], v)
			}
		}
		for _, a := range s.Alerts {
			out.AlertCount++
			out.AlertsByMetric[a.Metric]++
		}
	}

	out.CPUPercent = cpu.summary()
	out.MemoryPercent = memory.summary()
	out.DiskReadBytes = diskR.summary()
	out.DiskWriteBytes = diskW.summary()
	out.NetSentBytes = netS.summary()
	out.NetRecvBytes = netR.summary()
	out.Throughput = tput.summary()
	out.ErrorRate = errRate.summary()
	out.ActiveUsers = users.summary()
	for backend, acc := range conns {
		out.Connections[backend] = acc.summary()
	}
	for ep, values := range endpoints {
		out.EndpointLatency[ep] = loadtest.ComputeLatencyStats(values)
	}
	return out
}

// Endpoints returns the summarized endpoint names in sorted order.
func (s Summary) Endpoints() []string {
	names := make([]string, 0, len(s.EndpointLatency))
	for name := range s.EndpointLatency {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
