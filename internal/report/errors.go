package report

import "errors"

var (
	// ErrEmptyNarrative is returned when the service hands back no
	// usable content.
	ErrEmptyNarrative = errors.New("narrative content is empty")

	// ErrNarrativeTooLarge is returned when the content exceeds the
	// configured size bound.
	ErrNarrativeTooLarge = errors.New("narrative content exceeds size bound")

	// ErrNotReady is returned when an artifact is requested for a
	// report that has not reached the ready state.
	ErrNotReady = errors.New("report is not ready")
)
