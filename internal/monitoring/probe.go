package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// EndpointProber times live requests against the monitored service.
type EndpointProber interface {
	Probe(ctx context.Context) map[string]float64
}

// HTTPProber issues one request per endpoint. Search endpoints receive a POST
// with a sample query; everything else is a GET.
type HTTPProber struct {
	baseURL   string
	endpoints []string
	queries   []string
	client    *http.Client
}

// NewHTTPProber creates a prober. A zero timeout defaults to 10s.
func NewHTTPProber(baseURL string, endpoints, queries []string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProber{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: endpoints,
		queries:   queries,
		client:    &http.Client{Timeout: timeout},
	}
}

// Probe returns seconds per endpoint, Unavailable for any endpoint that errored
// or answered with a non-2xx status.
func (p *HTTPProber) Probe(ctx context.Context) map[string]float64 {
	out := make(map[string]float64, len(p.endpoints))
	for _, ep := range p.endpoints {
		latency, err := p.probeOne(ctx, ep)
		if err != nil {
			out[ep] = Unavailable
			continue
		}
		out[ep] = latency.Seconds()
	}
	return out
}

func (p *HTTPProber) probeOne(ctx context.Context, endpoint string) (time.Duration, error) {
	req, err := p.request(ctx, endpoint)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("monitoring: %s returned %d", endpoint, resp.StatusCode)
	}
	return elapsed, nil
}

func (p *HTTPProber) request(ctx context.Context, endpoint string) (*http.Request, error) {
	url := p.baseURL + endpoint
	if !strings.Contains(endpoint, "search") {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}

	query := "health check"
	if len(p.queries) > 0 {
		query = p.queries[rand.IntN(len(p.queries))]
	}
	body, err := json.Marshal(map[string]any{"query": query, "search_mode": "hybrid", "limit": 5})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
