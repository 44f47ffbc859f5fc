package reportsvc

import (
	"errors"
)

// RetryableError marks a failure worth retrying (rate limits, server
// hiccups, timeouts).
type RetryableError struct {
	err error
}

func (e *RetryableError) Error() string {
	return e.err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.err
}

// NewRetryableError wraps an error as retryable.
func NewRetryableError(err error) error {
	return &RetryableError{err: err}
}

// TerminalError marks a failure that retrying will not fix (bad
// request, auth, malformed response).
type TerminalError struct {
	err error
}

func (e *TerminalError) Error() string {
	return e.err.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.err
}

// NewTerminalError wraps an error as terminal.
func NewTerminalError(err error) error {
	return &TerminalError{err: err}
}

// IsRetryable returns true when the error should be retried.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

// IsTerminal returns true when retrying cannot help.
func IsTerminal(err error) bool {
	var t *TerminalError
	return errors.As(err, &t)
}
