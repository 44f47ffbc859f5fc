package model

import (
	"fmt"
	"time"
)

// ProgressEvent is an immutable record of incremental advancement toward a
// pledge's target. Corrections are new events, never edits.
type ProgressEvent struct {
	EventID    string    // unique id for idempotency
	PledgeID   string    // owning pledge
	Value      float64   // non-negative delta contribution in the pledge's unit
	OccurredAt time.Time // must not precede the pledge's start date
	AuthorID   string
	Note       string
}

// Validate checks event invariants against its owning pledge.
func (e *ProgressEvent) Validate(pledge *Pledge) error {
	if e.PledgeID == "" || (pledge != nil && e.PledgeID != pledge.ID) {
		return fmt.Errorf("event %q: %w", e.EventID, ErrPledgeMismatch)
	}
	if e.Value < 0 {
		return fmt.Errorf("event %q: value %v: %w", e.EventID, e.Value, ErrNegativeValue)
	}
	if pledge != nil && e.OccurredAt.Before(pledge.StartDate) {
		return fmt.Errorf("event %q: occurred %s before pledge start %s: %w",
			e.EventID, e.OccurredAt.Format(time.RFC3339), pledge.StartDate.Format(time.RFC3339), ErrBeforePledgeStart)
	}
	return nil
}
