// Package progress computes achieved values and completion ratios from a
// pledge's progress event series. All computations are pure read-time
// derivations over an immutable snapshot; callers may run them in parallel
// without coordination.
package progress

import (
	"fmt"

	"github.com/niavasha/greenledger/internal/domain/model"
)

// Result is the aggregation outcome for a single pledge.
type Result struct {
	PledgeID string
	// Achieved is the running sum clamped to the pledge target. It feeds
	// the completion ratio and dashboard displays.
	Achieved float64
	// Raw is the unclamped running sum. Over-target evidence is preserved
	// here for audit; a late correction must not silently destroy it.
	Raw float64
	// CompletionRatio is Achieved divided by the target, always in [0, 1].
	CompletionRatio float64
	// Events is the number of events that contributed to the sums.
	Events int
}

// ComputeAchieved folds a time-ordered event sequence into an achieved value
// and completion ratio. Events must be sorted by OccurredAt with ties broken
// by ascending EventID; the caller upholds that contract and unsorted input
// is rejected, never silently re-sorted. Target > 0 is a pledge creation
// invariant, so no division-by-zero path exists here.
func ComputeAchieved(pledge *model.Pledge, events []model.ProgressEvent) (Result, error) {
	res := Result{PledgeID: pledge.ID}

	for i := range events {
		e := &events[i]
		if e.Value < 0 {
			return Result{}, fmt.Errorf("event %q: value %v: %w", e.EventID, e.Value, ErrInvalidEventValue)
		}
		if i > 0 {
			prev := &events[i-1]
			if e.OccurredAt.Before(prev.OccurredAt) ||
				(e.OccurredAt.Equal(prev.OccurredAt) && e.EventID < prev.EventID) {
				return Result{}, fmt.Errorf("event %q after %q: %w", e.EventID, prev.EventID, ErrOutOfOrderEvent)
			}
		}
		res.Raw += e.Value
		res.Events++
	}

	res.Achieved = res.Raw
	if res.Achieved > pledge.Target {
		res.Achieved = pledge.Target
	}
	res.CompletionRatio = res.Achieved / pledge.Target
	return res, nil
}

// Series returns the per-prefix aggregation of an event sequence: element i
// is the result after events[0..i]. Used by the KPI engine for velocity and
// by callers needing a progress curve. Shares the validation rules of
// ComputeAchieved.
func Series(pledge *model.Pledge, events []model.ProgressEvent) ([]Result, error) {
	if _, err := ComputeAchieved(pledge, events); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(events))
	var raw float64
	for i := range events {
		raw += events[i].Value
		achieved := raw
		if achieved > pledge.Target {
			achieved = pledge.Target
		}
		out = append(out, Result{
			PledgeID:        pledge.ID,
			Achieved:        achieved,
			Raw:             raw,
			CompletionRatio: achieved / pledge.Target,
			Events:          i + 1,
		})
	}
	return out, nil
}
