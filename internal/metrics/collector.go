// internal/metrics/collector.go
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FairForge/perfharness/internal/loadtest"
	"github.com/FairForge/perfharness/internal/monitoring"
)

const namespace = "perfharness"

// Collector holds every harness metric on its own registry so parallel runs
// and tests never collide on the default registerer.
type Collector struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	hostCPU         prometheus.Gauge
	hostMemory      prometheus.Gauge
	connections     *prometheus.GaugeVec
	endpointLatency *prometheus.GaugeVec
	serviceRate     *prometheus.GaugeVec
	samplesTotal    prometheus.Counter
	alertsTotal     *prometheus.CounterVec

	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with Go runtime and process collectors attached.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stress_operations_total",
			Help:      "Stress operations attempted, by backend, scenario, kind and outcome",
		}, []string{"backend", "scenario", "kind", "outcome"}),

		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stress_operation_duration_seconds",
			Help:      "Stress operation latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"backend", "kind"}),

		hostCPU: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_cpu_percent",
			Help:      "Host CPU utilization from the latest sample",
		}),

		hostMemory: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_memory_percent",
			Help:      "Host memory utilization from the latest sample",
		}),

		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_connections",
			Help:      "Open connections per backend from the latest sample",
		}, []string{"backend"}),

		endpointLatency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_latency_seconds",
			Help:      "Probe latency per monitored endpoint from the latest sample",
		}, []string{"endpoint"}),

		serviceRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_rate",
			Help:      "Service throughput (req/s) and error rate from the latest sample",
		}, []string{"kind"}),

		samplesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Performance samples recorded",
		}),

		alertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Threshold alerts fired, by metric and severity",
		}, []string{"metric", "severity"}),

		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulated_tasks_total",
			Help:      "Simulated user task attempts, by persona, task and outcome",
		}, []string{"persona", "task", "outcome"}),

		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulated_task_duration_seconds",
			Help:      "Simulated user task latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveOperation records one stress operation.
func (c *Collector) ObserveOperation(backend, scenario string, kind loadtest.OperationKind, latency time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		var te *loadtest.TimeoutError
		if errors.As(err, &te) {
			outcome = "timeout"
		}
	}
	c.operationsTotal.WithLabelValues(backend, scenario, string(kind), outcome).Inc()
	if err == nil {
		c.operationDuration.WithLabelValues(backend, string(kind)).Observe(latency.Seconds())
	}
}

// ObserveSample mirrors the latest sample into gauges. Unavailable values
// leave the previous gauge value in place.
func (c *Collector) ObserveSample(s monitoring.PerformanceSample) {
	c.samplesTotal.Inc()
	if s.CPUPercent >= 0 {
		c.hostCPU.Set(s.CPUPercent)
	}
	if s.MemoryPercent >= 0 {
		c.hostMemory.Set(s.MemoryPercent)
	}
	for backend, n := range s.Connections {
		if n >= 0 {
			c.connections.WithLabelValues(backend).Set(float64(n))
		}
	}
	for endpoint, v := range s.EndpointLatency {
		if v >= 0 {
			c.endpointLatency.WithLabelValues(endpoint).Set(v)
		}
	}
	if s.Throughput >= 0 {
		c.serviceRate.WithLabelValues("throughput").Set(s.Throughput)
	}
	if s.ErrorRate >= 0 {
		c.serviceRate.WithLabelValues("error_rate").Set(s.ErrorRate)
	}
	for _, a := range s.Alerts {
		c.alertsTotal.WithLabelValues(a.Metric, a.Severity).Inc()
	}
}

// ObserveTask records one simulated user task attempt.
func (c *Collector) ObserveTask(persona, task, outcome string, latency time.Duration) {
	c.tasksTotal.WithLabelValues(persona, task, outcome).Inc()
	c.taskDuration.WithLabelValues(task).Observe(latency.Seconds())
}
