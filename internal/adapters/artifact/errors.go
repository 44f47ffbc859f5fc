package artifact

import "errors"

var (
	// ErrNotFound is returned when no document exists for a reference.
	ErrNotFound = errors.New("artifact not found")

	// ErrEmptyKey is returned when Put is called with an empty key.
	ErrEmptyKey = errors.New("artifact key is empty")
)
