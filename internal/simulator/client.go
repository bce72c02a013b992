package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const maxBodyBytes = 4 << 20

// Client talks to the monitored chat/search service and counts every request
// it completes, so a CounterSource can derive throughput and error rate.
type Client struct {
	baseURL   string
	http      *http.Client
	validator *Validator

	requests atomic.Uint64
	errors   atomic.Uint64
}

// NewClient returns a client with the given per-call timeout.
func NewClient(baseURL string, timeout time.Duration, validator *Validator) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: timeout},
		validator: validator,
	}
}

// Counters reports cumulative requests and errors. Rate-limited responses are
// requests but not errors.
func (c *Client) Counters(context.Context) (requests, errors uint64, err error) {
	return c.requests.Load(), c.errors.Load(), nil
}

type chatRequest struct {
	SessionID  string     `json:"session_id"`
	UserID     string     `json:"user_id"`
	Message    string     `json:"message"`
	SearchMode SearchMode `json:"search_mode"`
	Context    string     `json:"context,omitempty"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// CreateSession opens a session for the persona and returns its id.
func (c *Client) CreateSession(ctx context.Context, p *Persona) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{
		"user_id": p.UserID,
		"persona": string(p.Type),
	})
	if err != nil {
		return "", err
	}
	if err := c.validator.Session(body); err != nil {
		return "", c.invalid(err)
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", c.invalid(&ValidationError{Task: "session_init", Reason: err.Error()})
	}
	return resp.SessionID, nil
}

// Chat sends one message and validates the answer.
func (c *Client) Chat(ctx context.Context, task Task, req chatRequest) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/chat", req)
	if err != nil {
		return "", err
	}
	var resp chatResponse
	_ = json.Unmarshal(body, &resp)
	if err := c.validator.Chat(task, body, resp.Response); err != nil {
		return "", c.invalid(err)
	}
	return resp.Response, nil
}

// Stream sends one message to the streaming endpoint and consumes the frames.
func (c *Client) Stream(ctx context.Context, req chatRequest) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, "/api/chat/stream", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	content, _, err := ReadStream(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", c.invalid(err)
	}
	if err := c.validator.Content(TaskStream, content); err != nil {
		return "", c.invalid(err)
	}
	return content, nil
}

// Probe GETs a health or status path and validates its shape.
func (c *Client) Probe(ctx context.Context, task Task, path string) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := c.validator.Health(task, body); err != nil {
		return c.invalid(err)
	}
	return nil
}

func (c *Client) invalid(err error) error {
	c.errors.Add(1)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.errors.Add(1)
		return nil, fmt.Errorf("simulator: read %s: %w", path, err)
	}
	return body, nil
}

// send performs the request and maps 429 and non-2xx statuses to typed errors.
// On success the caller owns resp.Body.
func (c *Client) send(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.requests.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		c.errors.Add(1)
		return nil, fmt.Errorf("simulator: %s %s: %w", method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		c.errors.Add(1)
		return nil, &StatusError{Path: path, Code: resp.StatusCode}
	}
	return resp, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date; anything else is zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
