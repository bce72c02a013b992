package monitoring

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// Rates are the service-level request figures for one sample.
type Rates struct {
	Throughput float64
	ErrorRate  float64
}

// MetricsSource derives throughput and error rate on a best-effort basis.
// Errors wrap ErrMetricsUnavailable.
type MetricsSource interface {
	Rates(ctx context.Context) (Rates, error)
}

// PrometheusSource evaluates instant queries against the Prometheus HTTP API.
type PrometheusSource struct {
	api             v1.API
	throughputQuery string
	errorRateQuery  string
	logger          *zap.Logger
}

// NewPrometheusSource creates a source for the given server address.
func NewPrometheusSource(address, throughputQuery, errorRateQuery string, logger *zap.Logger) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("monitoring: prometheus client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrometheusSource{
		api:             v1.NewAPI(client),
		throughputQuery: throughputQuery,
		errorRateQuery:  errorRateQuery,
		logger:          logger.Named("prometheus"),
	}, nil
}

// Rates runs both queries. A NaN error rate (no traffic) is reported as zero.
func (p *PrometheusSource) Rates(ctx context.Context) (Rates, error) {
	throughput, err := p.scalar(ctx, p.throughputQuery)
	if err != nil {
		return Rates{}, err
	}
	errorRate, err := p.scalar(ctx, p.errorRateQuery)
	if err != nil {
		return Rates{}, err
	}
	if math.IsNaN(errorRate) {
		errorRate = 0
	}
	return Rates{Throughput: throughput, ErrorRate: errorRate}, nil
}

func (p *PrometheusSource) scalar(ctx context.Context, query string) (float64, error) {
	value, warnings, err := p.api.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMetricsUnavailable, err)
	}
	for _, w := range warnings {
		p.logger.Debug("query warning", zap.String("query", query), zap.String("warning", w))
	}

	switch v := value.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, fmt.Errorf("%w: empty result for %q", ErrMetricsUnavailable, query)
		}
		return float64(v[0].Value), nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("%w: unexpected result type %s", ErrMetricsUnavailable, value.Type())
	}
}

// CounterReader returns cumulative request and error counts.
type CounterReader func(ctx context.Context) (requests, errors uint64, err error)

// CounterSource turns cumulative counters into rates. The first read only
// seeds the baseline, as does a read after the counters go backwards.
type CounterSource struct {
	read CounterReader
	now  func() time.Time

	mu       sync.Mutex
	seeded   bool
	prevReqs uint64
	prevErrs uint64
	prevAt   time.Time
}

// NewCounterSource wraps a counter reader.
func NewCounterSource(read CounterReader) *CounterSource {
	return &CounterSource{read: read, now: time.Now}
}

// Rates returns request and error rates since the previous call.
func (c *CounterSource) Rates(ctx context.Context) (Rates, error) {
	reqs, errs, err := c.read(ctx)
	if err != nil {
		return Rates{}, fmt.Errorf("%w: %v", ErrMetricsUnavailable, err)
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	prevReqs, prevErrs, prevAt, seeded := c.prevReqs, c.prevErrs, c.prevAt, c.seeded
	c.prevReqs, c.prevErrs, c.prevAt, c.seeded = reqs, errs, now, true

	if !seeded {
		return Rates{}, fmt.Errorf("%w: baseline", ErrMetricsUnavailable)
	}
	if reqs < prevReqs || errs < prevErrs {
		return Rates{}, fmt.Errorf("%w: counters reset", ErrMetricsUnavailable)
	}
	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return Rates{}, fmt.Errorf("%w: no elapsed time", ErrMetricsUnavailable)
	}

	dReqs := reqs - prevReqs
	r := Rates{Throughput: float64(dReqs) / elapsed}
	if dReqs > 0 {
		r.ErrorRate = float64(errs-prevErrs) / float64(dReqs)
	}
	return r, nil
}

// Reset drops the baseline so the next read seeds a new one.
func (c *CounterSource) Reset() {
	c.mu.Lock()
	c.seeded = false
	c.mu.Unlock()
}

// ActiveUserSource estimates the number of recently active users.
type ActiveUserSource interface {
	ActiveUsers(ctx context.Context) (int, error)
}

// QueryCounter runs a counting query; the postgres client satisfies it.
type QueryCounter interface {
	CountActive(ctx context.Context, query string) (int, error)
}

// SQLActiveUsers estimates active users with a distinct-recent-actors query.
type SQLActiveUsers struct {
	db    QueryCounter
	query string
}

// NewSQLActiveUsers binds a query to a counter.
func NewSQLActiveUsers(db QueryCounter, query string) *SQLActiveUsers {
	return &SQLActiveUsers{db: db, query: query}
}

func (s *SQLActiveUsers) ActiveUsers(ctx context.Context) (int, error) {
	return s.db.CountActive(ctx, s.query)
}

// ActiveUsersFunc adapts a function to ActiveUserSource.
type ActiveUsersFunc func(ctx context.Context) (int, error)

func (f ActiveUsersFunc) ActiveUsers(ctx context.Context) (int, error) { return f(ctx) }
