package simulator

import (
	"errors"
	"fmt"
	"time"
)

// Outcome classifies one task attempt.
type Outcome int

const (
	Success Outcome = iota
	// Retryable attempts are requeued after Result.Delay and never counted as failures.
	Retryable
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "rate_limited"
	default:
		return "failure"
	}
}

// Result is the outcome of one task attempt.
type Result struct {
	Outcome Outcome
	Latency time.Duration
	Delay   time.Duration
	Err     error
}

// DefaultBackoff applies when a rate-limited response carries no usable Retry-After.
const DefaultBackoff = 2 * time.Second

// ValidationError reports a response that is missing fields, too short, or
// carries a malformed stream frame.
type ValidationError struct {
	Task   Task
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("simulator: %s response invalid: %s", e.Task, e.Reason)
}

// RateLimitedError reports a 429 from the monitored service.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("simulator: rate limited, retry after %v", e.RetryAfter)
}

// StatusError reports any other non-2xx response.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("simulator: %s returned %d", e.Path, e.Code)
}

// classify converts an attempt error into a three-way result. backoff applies
// when a rate limit carries no delay of its own.
func classify(latency time.Duration, err error, backoff time.Duration) Result {
	if err == nil {
		return Result{Outcome: Success, Latency: latency}
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		delay := rl.RetryAfter
		if delay <= 0 {
			delay = backoff
		}
		return Result{Outcome: Retryable, Latency: latency, Delay: delay, Err: err}
	}
	return Result{Outcome: Fatal, Latency: latency, Err: err}
}
