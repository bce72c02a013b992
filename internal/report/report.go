// internal/report/report.go
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/loadtest"
	"github.com/FairForge/perfharness/internal/monitoring"
	"github.com/FairForge/perfharness/internal/simulator"
)

// Status is the overall verdict of a run.
type Status string

const (
	StatusPass     Status = "pass"
	StatusDegraded Status = "degraded"
	StatusFail     Status = "fail"
)

// TestSummary describes the run as a whole.
type TestSummary struct {
	RunID                string    `json:"run_id"`
	Timestamp            time.Time `json:"timestamp"`
	Scenarios            []string  `json:"scenarios"`
	TotalTests           int       `json:"total_tests"`
	TotalOperations      int       `json:"total_operations"`
	SuccessfulOperations int       `json:"successful_operations"`
	FailedOperations     int       `json:"failed_operations"`
	Duration             float64   `json:"duration"`
}

// BackendSummary aggregates one backend across every scenario it ran.
type BackendSummary struct {
	Backend              string   `json:"backend"`
	Scenarios            []string `json:"scenarios"`
	TotalOperations      int      `json:"total_operations"`
	SuccessfulOperations int      `json:"successful_operations"`
	FailedOperations     int      `json:"failed_operations"`
	Timeouts             int      `json:"timeouts"`
	AvgOpsPerSecond      float64  `json:"avg_ops_per_second"`
	AvgLatency           float64  `json:"avg_latency"`
	MaxLatency           float64  `json:"max_latency"`
	AvgErrorRate         float64  `json:"avg_error_rate"`
}

// Report is the JSON document produced at the end of a run.
type Report struct {
	Summary         TestSummary               `json:"test_summary"`
	Status          Status                    `json:"status"`
	Backends        map[string]BackendSummary `json:"performance_by_backend"`
	Recommendations []Recommendation          `json:"recommendations"`
	Unavailable     map[string]string         `json:"unavailable_backends,omitempty"`
	Performance     *monitoring.Summary       `json:"performance_summary,omitempty"`
	Simulation      *simulator.Summary        `json:"user_simulation,omitempty"`
	Results         []loadtest.TestResult     `json:"detailed_results"`
}

// Input is everything a run hands to the aggregator.
type Input struct {
	Scenarios   []string
	Results     []loadtest.TestResult
	Unavailable map[string]error
	Performance *monitoring.Summary
	Simulation  *simulator.Summary
	Start       time.Time
	End         time.Time
}

// Aggregator turns run results into a Report.
type Aggregator struct {
	rules  *Rules
	logger *zap.Logger
}

// NewAggregator returns an aggregator using rules, or DefaultRules when nil.
func NewAggregator(rules *Rules, logger *zap.Logger) *Aggregator {
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{rules: rules, logger: logger.Named("report")}
}

// Build groups results by backend, derives recommendations and a status.
func (a *Aggregator) Build(in Input) *Report {
	r := &Report{
		Summary: TestSummary{
			RunID:      uuid.NewString(),
			Timestamp:  in.End,
			Scenarios:  append([]string(nil), in.Scenarios...),
			TotalTests: len(in.Results),
			Duration:   in.End.Sub(in.Start).Seconds(),
		},
		Backends:        ByBackend(in.Results),
		Performance:     in.Performance,
		Simulation:      in.Simulation,
		Results:         append([]loadtest.TestResult(nil), in.Results...),
		Recommendations: []Recommendation{},
	}
	if r.Summary.Timestamp.IsZero() {
		r.Summary.Timestamp = time.Now()
	}
	for _, res := range in.Results {
		r.Summary.TotalOperations += res.TotalOperations
		r.Summary.SuccessfulOperations += res.SuccessfulOperations
		r.Summary.FailedOperations += res.FailedOperations
	}
	if len(in.Unavailable) > 0 {
		r.Unavailable = make(map[string]string, len(in.Unavailable))
		for name, err := range in.Unavailable {
			r.Unavailable[name] = err.Error()
		}
	}

	r.Recommendations = a.rules.Recommend(r)
	r.Status = a.rules.Status(r)

	a.logger.Info("report built",
		zap.String("run_id", r.Summary.RunID),
		zap.String("status", string(r.Status)),
		zap.Int("tests", r.Summary.TotalTests),
		zap.Int("recommendations", len(r.Recommendations)),
		zap.Int("unavailable_backends", len(r.Unavailable)))
	return r
}

// ByBackend computes cross-scenario aggregates per backend.
func ByBackend(results []loadtest.TestResult) map[string]BackendSummary {
	type acc struct {
		sum        BackendSummary
		opsSum     float64
		latencySum float64
		errSum     float64
		n          int
	}
	accs := make(map[string]*acc)
	for _, res := range results {
		a, ok := accs[res.Backend]
		if !ok {
			a = &acc{sum: BackendSummary{Backend: res.Backend}}
			accs[res.Backend] = a
		}
		a.n++
		a.sum.Scenarios = append(a.sum.Scenarios, res.Scenario)
		a.sum.TotalOperations += res.TotalOperations
		a.sum.SuccessfulOperations += res.SuccessfulOperations
		a.sum.FailedOperations += res.FailedOperations
		a.sum.Timeouts += res.Timeouts
		a.opsSum += res.OperationsPerSecond
		a.latencySum += res.AvgLatency
		a.errSum += res.ErrorRate
		if res.MaxLatency > a.sum.MaxLatency {
			a.sum.MaxLatency = res.MaxLatency
		}
	}

	out := make(map[string]BackendSummary, len(accs))
	for name, a := range accs {
		n := float64(a.n)
		a.sum.AvgOpsPerSecond = a.opsSum / n
		a.sum.AvgLatency = a.latencySum / n
		a.sum.AvgErrorRate = a.errSum / n
		out[name] = a.sum
	}
	return out
}

// BackendNames returns the report's backends in sorted order.
func (r *Report) BackendNames() []string {
	names := make([]string, 0, len(r.Backends))
	for name := range r.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failed reports whether the run should exit non-zero.
func (r *Report) Failed() bool { return r.Status == StatusFail }

// Encode writes the report as indented JSON.
func (r *Report) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteJSON writes the report to path.
func (r *Report) WriteJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := r.Encode(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("report: encode: %w", err)
	}
	return f.Close()
}

// ReadJSON loads a report written by WriteJSON.
func ReadJSON(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("report: read %s: %w", path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: decode %s: %w", path, err)
	}
	return &r, nil
}
