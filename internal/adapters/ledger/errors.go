package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateID       = errors.New("duplicate record id")
	ErrDuplicateEvent    = errors.New("duplicate event id")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrConflict          = errors.New("concurrent modification conflict")
	ErrInvalidated       = errors.New("record is soft-invalidated")
)
