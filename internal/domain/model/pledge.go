// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// PledgeStatus is the lifecycle state of a pledge.
type PledgeStatus string

// Pledge lifecycle states. Transitions are monotonic:
// draft -> active -> {completed, cancelled}.
const (
	PledgeDraft     PledgeStatus = "draft"
	PledgeActive    PledgeStatus = "active"
	PledgeCompleted PledgeStatus = "completed"
	PledgeCancelled PledgeStatus = "cancelled"
)

// CanTransitionTo reports whether a status change is allowed.
// Reverse transitions and transitions out of a terminal state are rejected.
func (s PledgeStatus) CanTransitionTo(next PledgeStatus) bool {
	switch s {
	case PledgeDraft:
		return next == PledgeActive
	case PledgeActive:
		return next == PledgeCompleted || next == PledgeCancelled
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s PledgeStatus) Terminal() bool {
	return s == PledgeCompleted || s == PledgeCancelled
}

// Pledge represents a tracked sustainability commitment with a numeric target.
type Pledge struct {
	ID         string
	OwnerID    string
	Department string
	Title      string
	Target     float64 // target value in Unit, must be > 0
	Unit       string  // e.g. "kWh", "hours", "trees"
	StartDate  time.Time
	EndDate    time.Time
	Status     PledgeStatus
	SDGTags    []string // e.g. "SDG7", "SDG13"
	Notes      string
	Invalid    bool // soft-invalidated, excluded from aggregation
}

// Validate checks the creation invariants of a pledge.
func (p *Pledge) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("pledge %q: %w", p.ID, ErrMissingTitle)
	}
	if p.Target <= 0 {
		return fmt.Errorf("pledge %q: target %v: %w", p.ID, p.Target, ErrNonPositiveTarget)
	}
	if !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
		return fmt.Errorf("pledge %q: %w", p.ID, ErrEndBeforeStart)
	}
	return nil
}
