// Package dashboard builds ephemeral dashboard snapshots. A snapshot is a
// pure function of the pledge, progress, and threshold state it is handed;
// it is recomputed on demand and never cached or independently mutated.
package dashboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/niavasha/greenledger/internal/domain/kpi"
	"github.com/niavasha/greenledger/internal/domain/model"
	"github.com/niavasha/greenledger/internal/domain/progress"
)

// PledgeSummary is the per-pledge line of a snapshot.
type PledgeSummary struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Department      string  `json:"department,omitempty"`
	Unit            string  `json:"unit"`
	Status          string  `json:"status"`
	Target          float64 `json:"target"`
	Achieved        float64 `json:"achieved"`
	Raw             float64 `json:"raw"`
	CompletionRatio float64 `json:"completion_ratio"`
	Label           string  `json:"label"`
}

// DepartmentStats aggregates the pledges of one department.
type DepartmentStats struct {
	Pledges       int     `json:"pledges"`
	Completed     int     `json:"completed"`
	AvgCompletion float64 `json:"avg_completion"`
}

// Snapshot is a dashboard-ready view over current store contents.
type Snapshot struct {
	TakenAt       time.Time                  `json:"taken_at"`
	TotalPledges  int                        `json:"total_pledges"`
	Draft         int                        `json:"draft"`
	Active        int                        `json:"active"`
	Completed     int                        `json:"completed"`
	Cancelled     int                        `json:"cancelled"`
	AvgCompletion float64                    `json:"avg_completion"`
	UnitTotals    map[string]float64         `json:"unit_totals"`
	Departments   map[string]DepartmentStats `json:"departments,omitempty"`
	Pledges       []PledgeSummary            `json:"pledges"`
}

// Build derives a snapshot from the given series. Draft and soft-invalidated
// pledges are counted but excluded from averages and unit totals, matching
// how the roll-ups treat not-yet-started commitments.
func Build(takenAt time.Time, series []kpi.Series, thresholds model.ThresholdSet) (Snapshot, error) {
	if err := thresholds.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("dashboard thresholds: %w", err)
	}

	snap := Snapshot{
		TakenAt:     takenAt,
		UnitTotals:  make(map[string]float64),
		Departments: make(map[string]DepartmentStats),
	}

	var ratioSum float64
	var measured int
	for i := range series {
		s := &series[i]
		p := s.Pledge
		if p.Invalid {
			continue
		}

		snap.TotalPledges++
		switch p.Status {
		case model.PledgeDraft:
			snap.Draft++
		case model.PledgeActive:
			snap.Active++
		case model.PledgeCompleted:
			snap.Completed++
		case model.PledgeCancelled:
			snap.Cancelled++
		}

		res, err := progress.ComputeAchieved(p, s.Events)
		if err != nil {
			return Snapshot{}, fmt.Errorf("pledge %q: %w", p.ID, err)
		}

		summary := PledgeSummary{
			ID:              p.ID,
			Title:           p.Title,
			Department:      p.Department,
			Unit:            p.Unit,
			Status:          string(p.Status),
			Target:          p.Target,
			Achieved:        res.Achieved,
			Raw:             res.Raw,
			CompletionRatio: res.CompletionRatio,
			Label:           thresholds.Classify(res.CompletionRatio),
		}
		snap.Pledges = append(snap.Pledges, summary)

		if p.Status == model.PledgeDraft {
			continue
		}
		ratioSum += res.CompletionRatio
		measured++
		snap.UnitTotals[p.Unit] += res.Achieved
		dept := snap.Departments[p.Department]
		dept.Pledges++
		if p.Status == model.PledgeCompleted {
			dept.Completed++
		}
		dept.AvgCompletion += res.CompletionRatio
		snap.Departments[p.Department] = dept
	}

	if measured > 0 {
		snap.AvgCompletion = ratioSum / float64(measured)
	}
	for name, dept := range snap.Departments {
		if dept.Pledges > 0 {
			dept.AvgCompletion /= float64(dept.Pledges)
		}
		snap.Departments[name] = dept
	}
	// Stable output for canonical serialization downstream.
	sort.Slice(snap.Pledges, func(i, j int) bool { return snap.Pledges[i].ID < snap.Pledges[j].ID })
	return snap, nil
}
