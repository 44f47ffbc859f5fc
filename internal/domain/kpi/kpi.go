// Package kpi derives named metrics from pledge progress series and
// classifies them against configured thresholds. Evaluation is pure and
// side-effect free; an Engine may be shared by concurrent readers.
package kpi

import (
	"fmt"
	"time"

	"github.com/niavasha/greenledger/internal/domain/model"
	"github.com/niavasha/greenledger/internal/domain/progress"
)

// hoursPerDay converts durations to the day-based rate unit used by
// velocity and time-to-target values.
const hoursPerDay = 24

// ResultKind distinguishes a numeric result from its defined degenerate
// outcomes.
type ResultKind string

const (
	// KindValue is a plain numeric result classified against thresholds.
	KindValue ResultKind = "value"
	// KindInsufficientData marks a velocity request with fewer than two
	// events; returned instead of dividing by zero.
	KindInsufficientData ResultKind = "insufficient-data"
	// KindUnbounded marks a time-to-target with non-positive velocity.
	KindUnbounded ResultKind = "unbounded"
)

// Result is the evaluation outcome of a KPI.
type Result struct {
	KPIID string
	Kind  ResultKind
	// Value carries the metric when Kind is KindValue: a ratio in [0, 1]
	// for completion-ratio, units per day for velocity, days for
	// time-to-target.
	Value float64
	// Label is the threshold classification, set only for KindValue.
	Label string
}

// Series bundles a pledge with its complete time-ordered event sequence.
// The ordering contract is the aggregator's: by timestamp, ties by
// ascending event id.
type Series struct {
	Pledge *model.Pledge
	Events []model.ProgressEvent
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWindow sets the trailing window for velocity. Zero keeps the default
// of the pledge's elapsed active duration.
func WithWindow(window time.Duration) Option {
	return func(e *Engine) {
		if window > 0 {
			e.window = window
		}
	}
}

// WithClock overrides the time source. Used by tests for determinism.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine evaluates KPI formulas over aggregated series.
type Engine struct {
	window time.Duration // 0 means the pledge's elapsed active duration
	now    func() time.Time
}

// New creates an Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate computes the KPI value over the given series and classifies it.
// Fails with ErrUnknownFormula for unsupported formulas and never silently
// returns zero. Aggregate scopes combine per-pledge results with an explicit
// combinator: target-weighted average for ratios, sum for rates.
func (e *Engine) Evaluate(k *model.KPI, series []Series) (Result, error) {
	if !k.Formula.Known() {
		return Result{}, fmt.Errorf("kpi %q: formula %q: %w", k.ID, k.Formula, ErrUnknownFormula)
	}
	if err := k.Thresholds.Validate(); err != nil {
		return Result{}, fmt.Errorf("kpi %q: %w", k.ID, err)
	}
	if len(series) == 0 {
		return Result{}, fmt.Errorf("kpi %q: %w", k.ID, ErrEmptyScope)
	}

	var (
		value float64
		kind  ResultKind
		err   error
	)
	switch k.Formula {
	case model.FormulaCompletionRatio:
		value, err = e.completionRatio(series)
		kind = KindValue
	case model.FormulaVelocity:
		value, kind, err = e.velocity(series)
	case model.FormulaTimeToTarget:
		value, kind, err = e.timeToTarget(series)
	}
	if err != nil {
		return Result{}, fmt.Errorf("kpi %q: %w", k.ID, err)
	}

	res := Result{KPIID: k.ID, Kind: kind, Value: value}
	if kind == KindValue {
		res.Label = k.Thresholds.Classify(value)
	}
	return res, nil
}

// completionRatio combines per-pledge ratios with a target-weighted average
// so large commitments are not understated by an arithmetic mean.
func (e *Engine) completionRatio(series []Series) (float64, error) {
	var weighted, totalWeight float64
	for i := range series {
		s := &series[i]
		res, err := progress.ComputeAchieved(s.Pledge, s.Events)
		if err != nil {
			return 0, err
		}
		weighted += res.CompletionRatio * s.Pledge.Target
		totalWeight += s.Pledge.Target
	}
	return weighted / totalWeight, nil
}

// velocity is the average achieved-value delta per day over the trailing
// window. Per-pledge rates are summed across an aggregate scope.
func (e *Engine) velocity(series []Series) (float64, ResultKind, error) {
	var total float64
	for i := range series {
		s := &series[i]
		v, ok, err := e.pledgeVelocity(s)
		if err != nil {
			return 0, "", err
		}
		if !ok {
			return 0, KindInsufficientData, nil
		}
		total += v
	}
	return total, KindValue, nil
}

func (e *Engine) pledgeVelocity(s *Series) (float64, bool, error) {
	// Validate the full sequence before windowing.
	if _, err := progress.ComputeAchieved(s.Pledge, s.Events); err != nil {
		return 0, false, err
	}

	now := e.now()
	window := e.window
	if window <= 0 {
		// Default trailing window: the pledge's elapsed active duration.
		window = now.Sub(s.Pledge.StartDate)
	}
	cutoff := now.Add(-window)

	var inWindow []model.ProgressEvent
	for _, ev := range s.Events {
		if !ev.OccurredAt.Before(cutoff) {
			inWindow = append(inWindow, ev)
		}
	}
	if len(inWindow) < 2 {
		return 0, false, nil
	}

	first, last := inWindow[0], inWindow[len(inWindow)-1]
	elapsed := last.OccurredAt.Sub(first.OccurredAt)
	if elapsed <= 0 {
		return 0, false, nil
	}

	var delta float64
	for _, ev := range inWindow[1:] {
		delta += ev.Value
	}
	return delta / elapsed.Hours() * hoursPerDay, true, nil
}

// timeToTarget extrapolates linearly from the current velocity to full
// completion. Non-positive velocity yields the defined unbounded result.
func (e *Engine) timeToTarget(series []Series) (float64, ResultKind, error) {
	var remaining float64
	for i := range series {
		s := &series[i]
		res, err := progress.ComputeAchieved(s.Pledge, s.Events)
		if err != nil {
			return 0, "", err
		}
		remaining += s.Pledge.Target - res.Achieved
	}
	if remaining <= 0 {
		return 0, KindValue, nil
	}

	rate, kind, err := e.velocity(series)
	if err != nil {
		return 0, "", err
	}
	if kind != KindValue {
		return 0, kind, nil
	}
	if rate <= 0 {
		return 0, KindUnbounded, nil
	}
	return remaining / rate, KindValue, nil
}
