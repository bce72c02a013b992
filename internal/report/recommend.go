// internal/report/recommend.go
package report

import (
	"fmt"
	"sort"
)

// Severity indicates how urgent a recommendation is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Category identifies what a recommendation is about.
type Category string

const (
	CategoryErrorRate    Category = "error_rate"
	CategoryLatency      Category = "latency"
	CategoryThroughput   Category = "throughput"
	CategoryAvailability Category = "availability"
	CategoryAlerts       Category = "alerts"
	CategorySimulation   Category = "user_simulation"
)

// Recommendation is one finding with a suggested action.
type Recommendation struct {
	Backend    string             `json:"backend,omitempty"`
	Category   Category           `json:"category"`
	Severity   Severity           `json:"severity"`
	Message    string             `json:"message"`
	Suggestion string             `json:"suggestion"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// Rules holds the recommendation and status thresholds.
type Rules struct {
	// ErrorRate above which a backend gets a pool/query recommendation.
	ErrorRate float64
	// AvgLatency in seconds above which a backend gets an indexing recommendation.
	AvgLatency float64
	// MinOpsPerSecond below which a backend is flagged as a bottleneck.
	MinOpsPerSecond float64
	// FailErrorRate above which the whole run fails.
	FailErrorRate float64
	// CriticalFactor escalates a finding to critical when exceeded by this multiple.
	CriticalFactor float64
}

// DefaultRules returns the standard thresholds.
func DefaultRules() *Rules {
	return &Rules{
		ErrorRate:       0.05,
		AvgLatency:      1.0,
		MinOpsPerSecond: 10,
		FailErrorRate:   0.25,
		CriticalFactor:  2,
	}
}

func (r *Rules) severity(value, threshold float64, above bool) Severity {
	if above && value > threshold*r.CriticalFactor {
		return SeverityCritical
	}
	if !above && value < threshold/r.CriticalFactor {
		return SeverityCritical
	}
	return SeverityWarning
}

// Recommend derives recommendations from a partially built report.
func (r *Rules) Recommend(rep *Report) []Recommendation {
	recs := []Recommendation{}

	for _, name := range rep.BackendNames() {
		b := rep.Backends[name]
		if b.AvgErrorRate > r.ErrorRate {
			recs = append(recs, Recommendation{
				Backend:    name,
				Category:   CategoryErrorRate,
				Severity:   r.severity(b.AvgErrorRate, r.ErrorRate, true),
				Message:    fmt.Sprintf("%s error rate %.1f%% exceeds %.1f%%", name, b.AvgErrorRate*100, r.ErrorRate*100),
				Suggestion: "Review connection pool sizing and optimize failing queries",
				Metrics:    map[string]float64{"error_rate": b.AvgErrorRate, "threshold": r.ErrorRate},
			})
		}
		if b.AvgLatency > r.AvgLatency {
			recs = append(recs, Recommendation{
				Backend:    name,
				Category:   CategoryLatency,
				Severity:   r.severity(b.AvgLatency, r.AvgLatency, true),
				Message:    fmt.Sprintf("%s average latency %.3fs exceeds %.3fs", name, b.AvgLatency, r.AvgLatency),
				Suggestion: "Add indexes for hot lookups and optimize slow queries",
				Metrics:    map[string]float64{"avg_latency": b.AvgLatency, "threshold": r.AvgLatency},
			})
		}
		if b.AvgOpsPerSecond < r.MinOpsPerSecond {
			recs = append(recs, Recommendation{
				Backend:    name,
				Category:   CategoryThroughput,
				Severity:   r.severity(b.AvgOpsPerSecond, r.MinOpsPerSecond, false),
				Message:    fmt.Sprintf("%s sustained only %.1f ops/sec (minimum %.1f)", name, b.AvgOpsPerSecond, r.MinOpsPerSecond),
				Suggestion: "Likely bottleneck: check pool saturation, locks and server resources",
				Metrics:    map[string]float64{"ops_per_second": b.AvgOpsPerSecond, "threshold": r.MinOpsPerSecond},
			})
		}
	}

	unavailable := make([]string, 0, len(rep.Unavailable))
	for name := range rep.Unavailable {
		unavailable = append(unavailable, name)
	}
	sort.Strings(unavailable)
	for _, name := range unavailable {
		recs = append(recs, Recommendation{
			Backend:    name,
			Category:   CategoryAvailability,
			Severity:   SeverityCritical,
			Message:    fmt.Sprintf("%s was unavailable: %s", name, rep.Unavailable[name]),
			Suggestion: "Verify the connection settings and that the backend is reachable",
		})
	}

	if p := rep.Performance; p != nil && p.AlertCount > 0 {
		metrics := make([]string, 0, len(p.AlertsByMetric))
		for m := range p.AlertsByMetric {
			metrics = append(metrics, m)
		}
		sort.Strings(metrics)
		for _, m := range metrics {
			recs = append(recs, Recommendation{
				Category:   CategoryAlerts,
				Severity:   SeverityWarning,
				Message:    fmt.Sprintf("%d %s alerts fired during the run", p.AlertsByMetric[m], m),
				Suggestion: "Inspect the sample history around the alert timestamps",
				Metrics:    map[string]float64{"alerts": float64(p.AlertsByMetric[m])},
			})
		}
	}

	if s := rep.Simulation; s != nil {
		if rate := simulationFailureRate(s.Attempts, s.Failures, s.RateLimited); rate > r.ErrorRate {
			recs = append(recs, Recommendation{
				Category:   CategorySimulation,
				Severity:   r.severity(rate, r.ErrorRate, true),
				Message:    fmt.Sprintf("simulated users saw %.1f%% failed tasks", rate*100),
				Suggestion: "Check service logs for validation failures and 5xx responses",
				Metrics:    map[string]float64{"failure_rate": rate},
			})
		}
		if s.RateLimited > 0 {
			recs = append(recs, Recommendation{
				Category:   CategorySimulation,
				Severity:   SeverityInfo,
				Message:    fmt.Sprintf("%d task attempts were rate limited and rescheduled", s.RateLimited),
				Suggestion: "Raise service rate limits or lower the spawn rate if this is unexpected",
			})
		}
	}
	return recs
}

// Status derives the verdict. A run fails when nothing ran, every backend was
// unavailable, or any backend or the simulation exceeds FailErrorRate.
// Otherwise any warning-level finding degrades it.
func (r *Rules) Status(rep *Report) Status {
	if len(rep.Results) == 0 && rep.Simulation == nil {
		return StatusFail
	}
	if len(rep.Unavailable) > 0 && len(rep.Backends) == 0 && rep.Simulation == nil {
		return StatusFail
	}
	for _, b := range rep.Backends {
		if b.AvgErrorRate > r.FailErrorRate {
			return StatusFail
		}
	}
	if s := rep.Simulation; s != nil {
		if simulationFailureRate(s.Attempts, s.Failures, s.RateLimited) > r.FailErrorRate {
			return StatusFail
		}
	}
	for _, rec := range rep.Recommendations {
		if rec.Severity != SeverityInfo {
			return StatusDegraded
		}
	}
	return StatusPass
}

// simulationFailureRate excludes rate-limited attempts, which are rescheduled.
func simulationFailureRate(attempts, failures, retries uint64) float64 {
	counted := attempts - retries
	if attempts < retries || counted == 0 {
		return 0
	}
	return float64(failures) / float64(counted)
}
