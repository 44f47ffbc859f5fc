package kpi_test

import (
	"errors"
	"testing"
	"time"

	"github.com/niavasha/greenledger/internal/domain/kpi"
	"github.com/niavasha/greenledger/internal/domain/model"
	"github.com/niavasha/greenledger/internal/domain/progress"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	testStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	testNow   = time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)

	defaultThresholds = model.ThresholdSet{
		{Lower: 0, Label: "off-track"},
		{Lower: 0.5, Label: "at-risk"},
		{Lower: 0.8, Label: "on-track"},
	}
)

func newEngine() *kpi.Engine {
	return kpi.New(kpi.WithClock(func() time.Time { return testNow }))
}

func seriesOf(id string, target float64, values ...float64) kpi.Series {
	pledge := &model.Pledge{
		ID:        id,
		Title:     "pledge " + id,
		Target:    target,
		StartDate: testStart,
		Status:    model.PledgeActive,
	}
	events := make([]model.ProgressEvent, len(values))
	for i, v := range values {
		events[i] = model.ProgressEvent{
			EventID:    id + "-evt-" + string(rune('a'+i)),
			PledgeID:   id,
			Value:      v,
			OccurredAt: testStart.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	return kpi.Series{Pledge: pledge, Events: events}
}

func TestEvaluateCompletionRatio(t *testing.T) {
	Convey("Given a completion-ratio KPI", t, func() {
		engine := newEngine()
		k := &model.KPI{
			ID:         "kpi-ratio",
			Name:       "Completion",
			Formula:    model.FormulaCompletionRatio,
			Thresholds: defaultThresholds,
		}

		Convey("When a single pledge is 75% complete", func() {
			res, err := engine.Evaluate(k, []kpi.Series{seriesOf("p1", 100, 20, 30, 25)})

			Convey("Then the value and label follow the thresholds", func() {
				So(err, ShouldBeNil)
				So(res.Kind, ShouldEqual, kpi.KindValue)
				So(res.Value, ShouldEqual, 0.75)
				So(res.Label, ShouldEqual, "at-risk")
			})
		})

		Convey("When the scope spans two pledges of unequal size", func() {
			// 90/100 and 0/900: target-weighted average, not arithmetic mean.
			res, err := engine.Evaluate(k, []kpi.Series{
				seriesOf("small", 100, 90),
				seriesOf("large", 900),
			})

			Convey("Then large commitments are not understated", func() {
				So(err, ShouldBeNil)
				So(res.Value, ShouldAlmostEqual, 0.09, 1e-9)
				So(res.Label, ShouldEqual, "off-track")
			})
		})

		Convey("When an event in the series is invalid", func() {
			bad := seriesOf("p1", 100, 20)
			bad.Events[0].Value = -1
			_, err := engine.Evaluate(k, []kpi.Series{bad})

			Convey("Then the aggregator error surfaces", func() {
				So(errors.Is(err, progress.ErrInvalidEventValue), ShouldBeTrue)
			})
		})
	})
}

func TestEvaluateVelocity(t *testing.T) {
	Convey("Given a velocity KPI", t, func() {
		engine := newEngine()
		k := &model.KPI{
			ID:      "kpi-velocity",
			Name:    "Daily progress",
			Formula: model.FormulaVelocity,
			Thresholds: model.ThresholdSet{
				{Lower: 0, Label: "off-track"},
				{Lower: 5, Label: "on-track"},
			},
		}

		Convey("When the pledge has one event per day of 10 units", func() {
			res, err := engine.Evaluate(k, []kpi.Series{seriesOf("p1", 1000, 10, 10, 10)})

			Convey("Then velocity is 10 units per day", func() {
				So(err, ShouldBeNil)
				So(res.Kind, ShouldEqual, kpi.KindValue)
				So(res.Value, ShouldAlmostEqual, 10, 1e-9)
				So(res.Label, ShouldEqual, "on-track")
			})
		})

		Convey("When the pledge has a single event", func() {
			res, err := engine.Evaluate(k, []kpi.Series{seriesOf("p1", 1000, 10)})

			Convey("Then the defined insufficient-data result is returned", func() {
				So(err, ShouldBeNil)
				So(res.Kind, ShouldEqual, kpi.KindInsufficientData)
				So(res.Label, ShouldBeEmpty)
			})
		})

		Convey("When the pledge has no events", func() {
			res, err := engine.Evaluate(k, []kpi.Series{seriesOf("p1", 1000)})

			Convey("Then insufficient-data is returned, not a division failure", func() {
				So(err, ShouldBeNil)
				So(res.Kind, ShouldEqual, kpi.KindInsufficientData)
			})
		})

		Convey("When a trailing window excludes older events", func() {
			windowed := kpi.New(
				kpi.WithClock(func() time.Time { return testNow }),
				kpi.WithWindow(36*time.Hour),
			)
			s := seriesOf("p1", 1000)
			for i, offset := range []time.Duration{-72, -48, -24, 0} {
				s.Events = append(s.Events, model.ProgressEvent{
					EventID:    "p1-evt-" + string(rune('a'+i)),
					PledgeID:   "p1",
					Value:      []float64{40, 40, 10, 20}[i],
					OccurredAt: testNow.Add(offset * time.Hour),
				})
			}
			res, err := windowed.Evaluate(k, []kpi.Series{s})

			Convey("Then only in-window deltas contribute", func() {
				So(err, ShouldBeNil)
				So(res.Kind, ShouldEqual, kpi.KindValue)
				So(res.Value, ShouldAlmostEqual, 20, 1e-9)
			})
		})

		Convey("When the scope spans two pledges", func() {
			res, err := engine.Evaluate(k, []kpi.Series{
				seriesOf("p1", 1000, 10, 10),
				seriesOf("p2", 1000, 5, 5),
			})

			Convey("Then per-pledge rates are summed", func() {
				So(err, ShouldBeNil)
				So(res.Value, ShouldAlmostEqual, 15, 1e-9)
			})
		})
	})
}

func TestEvaluateTimeToTarget(t *testing.T) {
	Convey("Given a time-to-target KPI", t, func() {
		engine := newEngine()
		k := &model.KPI{
			ID:      "kpi-eta",
			Name:    "Days to target",
			Formula: model.FormulaTimeToTarget,
			Thresholds: model.ThresholdSet{
				{Lower: 0, Label: "on-track"},
				{Lower: 30, Label: "at-risk"},
				{Lower: 90, Label: "off-track"},
			},
		}

		Convey("When 80 of 100 units remain at 10 units per day", func() {
			res, err := engine.Evaluate(k, []kpi.Series{seriesOf("p1", 100, 10, 10)})

			Convey("Then eight days remain", func() {
				So(err, ShouldBeNil)
				So(res.Kind, ShouldEqual, kpi.KindValue)
				So(res.Value, ShouldAlmostEqual, 8, 1e-9)
				So(res.Label, ShouldEqual, "on-track")
			})
		})

		Convey("When the target is already met", func() {
			res, err := engine.Evaluate(k, []kpi.Series{seriesOf("p1", 100, 60, 60)})

			Convey("Then zero days remain", func() {
				So(err, ShouldBeNil)
				So(res.Kind, ShouldEqual, kpi.KindValue)
				So(res.Value, ShouldEqual, 0)
			})
		})

		Convey("When velocity is zero", func() {
			res, err := engine.Evaluate(k, []kpi.Series{seriesOf("p1", 100, 0, 0)})

			Convey("Then the explicit unbounded result is returned", func() {
				So(err, ShouldBeNil)
				So(res.Kind, ShouldEqual, kpi.KindUnbounded)
				So(res.Label, ShouldBeEmpty)
			})
		})

		Convey("When there are not enough events for a velocity", func() {
			res, err := engine.Evaluate(k, []kpi.Series{seriesOf("p1", 100, 10)})

			Convey("Then insufficient-data propagates", func() {
				So(err, ShouldBeNil)
				So(res.Kind, ShouldEqual, kpi.KindInsufficientData)
			})
		})
	})
}

func TestEvaluateFailures(t *testing.T) {
	Convey("Given the engine", t, func() {
		engine := newEngine()

		Convey("When the formula is unknown", func() {
			k := &model.KPI{ID: "kpi-x", Formula: "median-magic", Thresholds: defaultThresholds}
			_, err := engine.Evaluate(k, []kpi.Series{seriesOf("p1", 100, 10)})

			Convey("Then it fails instead of silently returning zero", func() {
				So(errors.Is(err, kpi.ErrUnknownFormula), ShouldBeTrue)
			})
		})

		Convey("When the threshold set is malformed", func() {
			k := &model.KPI{
				ID:         "kpi-x",
				Formula:    model.FormulaCompletionRatio,
				Thresholds: model.ThresholdSet{{Lower: 1, Label: "a"}, {Lower: 0, Label: "b"}},
			}
			_, err := engine.Evaluate(k, []kpi.Series{seriesOf("p1", 100, 10)})

			Convey("Then validation rejects it", func() {
				So(errors.Is(err, model.ErrUnorderedThresholds), ShouldBeTrue)
			})
		})

		Convey("When the scope resolves to no pledges", func() {
			k := &model.KPI{ID: "kpi-x", Formula: model.FormulaCompletionRatio, Thresholds: defaultThresholds}
			_, err := engine.Evaluate(k, nil)

			Convey("Then the empty scope is an explicit error", func() {
				So(errors.Is(err, kpi.ErrEmptyScope), ShouldBeTrue)
			})
		})
	})
}
