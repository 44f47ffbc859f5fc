package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
)

// WrapKind tags an underlying error with an operation and a sentinel
// kind so handlers can classify it with errors.Is.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// NewKind tags a sentinel kind with an operation.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}
