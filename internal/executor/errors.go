package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/promptgrid/internal/adapter"
)

// TimeoutError reports an attempt that did not finish within the step
// timeout.
type TimeoutError struct {
	ID      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s", e.ID, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// CancelledError is returned by Run when the run was cancelled before every
// step started.
type CancelledError struct {
	Skipped int
	Cause   error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled, %d step(s) skipped: %v", e.Skipped, e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// errNotStarted marks steps the run never started.
var errNotStarted = errors.New("run stopped before the step started")

type writeError struct {
	err error
}

func (e *writeError) Error() string { return "failed to write artifact: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

type adapterError struct {
	err error
}

func (e *adapterError) Error() string { return e.err.Error() }
func (e *adapterError) Unwrap() error { return e.err }

// Retryable reports whether a failed attempt may be repeated.
func Retryable(err error) bool {
	var te *TimeoutError
	return adapter.IsTransient(err) || errors.As(err, &te)
}

// classify maps the final error of a step to its state and kind.
func classify(err error) (State, ErrorKind) {
	var (
		te *TimeoutError
		we *writeError
		ae *adapterError
	)
	switch {
	case err == nil:
		return Succeeded, KindNone
	case errors.As(err, &te):
		return TimedOut, KindTimeout
	case errors.As(err, &we):
		return Failed, KindWrite
	case errors.As(err, &ae):
		return Failed, KindAdapter
	case adapter.IsTransient(err):
		return Failed, KindTransient
	default:
		return Failed, KindPermanent
	}
}
