package loadtest

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoGenerator marks a backend task that could not start.
var ErrNoGenerator = errors.New("loadtest: backend client not initialized")

// OperationError is a single failed stress operation. It is counted, never fatal.
type OperationError struct {
	Backend string
	Kind    OperationKind
	Err     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("loadtest: %s %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// TimeoutError is an operation that exceeded its command timeout.
type TimeoutError struct {
	Backend string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("loadtest: %s operation exceeded %v", e.Backend, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// IsTimeout reports whether err is or wraps a timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}
