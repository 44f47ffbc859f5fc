package model

import (
	"fmt"
	"sort"
)

// Formula names the supported KPI derivations.
type Formula string

const (
	FormulaCompletionRatio Formula = "completion-ratio"
	FormulaVelocity        Formula = "velocity"
	FormulaTimeToTarget    Formula = "time-to-target"
)

// Known reports whether the formula is a supported derivation.
func (f Formula) Known() bool {
	switch f {
	case FormulaCompletionRatio, FormulaVelocity, FormulaTimeToTarget:
		return true
	}
	return false
}

// Threshold maps a lower bound to a status label. Matching is
// inclusive-lower, exclusive-upper against the next boundary.
type Threshold struct {
	Lower float64
	Label string
}

// ThresholdSet is an ordered, non-overlapping set of classification
// boundaries. It is immutable after validation; concurrent reads are safe.
type ThresholdSet []Threshold

// Validate checks that boundaries are totally ordered with no duplicates
// and that every boundary carries a label.
func (t ThresholdSet) Validate() error {
	if len(t) == 0 {
		return ErrEmptyThresholds
	}
	if !sort.SliceIsSorted(t, func(i, j int) bool { return t[i].Lower < t[j].Lower }) {
		return ErrUnorderedThresholds
	}
	for i, b := range t {
		if b.Label == "" {
			return fmt.Errorf("boundary %d: %w", i, ErrUnlabeledThreshold)
		}
		if i > 0 && t[i-1].Lower == b.Lower {
			return fmt.Errorf("boundary %d duplicates %v: %w", i, b.Lower, ErrUnorderedThresholds)
		}
	}
	return nil
}

// Classify selects the label of the highest boundary whose lower bound is
// <= value. Values below the first boundary get the first (strictest) label.
func (t ThresholdSet) Classify(value float64) string {
	label := t[0].Label
	for _, b := range t {
		if value < b.Lower {
			break
		}
		label = b.Label
	}
	return label
}

// KPIScope selects the pledges a KPI spans.
type KPIScope struct {
	PledgeID  string   // single-pledge scope when set
	PledgeIDs []string // aggregate scope; combined per formula combinator
}

// Aggregate reports whether the scope spans multiple pledges.
func (s KPIScope) Aggregate() bool { return s.PledgeID == "" }

// KPI is a derived metric with a classification threshold set.
type KPI struct {
	ID         string
	Name       string
	Scope      KPIScope
	Formula    Formula
	Thresholds ThresholdSet
}
