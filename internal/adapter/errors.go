package adapter

import (
	"errors"
	"fmt"
)

// TransientError is a failure that may succeed when retried: connection
// problems, server errors and rate limiting.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: server returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a failure that retrying cannot fix, such as a rejected
// payload or an unusable response.
type PermanentError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: server returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err wraps a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// statusError classifies a non-2xx HTTP status.
func statusError(op string, status int, body string) error {
	err := errors.New(body)
	if body == "" {
		err = errors.New("empty response body")
	}
	if status == 408 || status == 429 || status >= 500 {
		return &TransientError{Op: op, StatusCode: status, Err: err}
	}
	return &PermanentError{Op: op, StatusCode: status, Err: err}
}
