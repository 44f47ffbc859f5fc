// Package report orchestrates report generation: it builds a
// deterministic payload from aggregated pledge data, drives the
// report lifecycle in the ledger, calls the narrative service, and
// persists the rendered artifact.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/niavasha/greenledger/internal/domain/dashboard"
)

// Payload is the canonical input of one report generation. Two
// requests with identical payloads hash identically and share a
// Ready report instead of triggering a second external call.
type Payload struct {
	SubjectID       string             `json:"subject_id"`
	Period          string             `json:"period"`
	Snapshot        dashboard.Snapshot `json:"snapshot"`
	Recommendations []string           `json:"recommendations"`
	Summary         string             `json:"summary"`
}

// BuildPayload derives the payload for a subject from a dashboard
// snapshot. The snapshot's wall-clock timestamp is dropped so that
// unchanged underlying data keeps producing the same hash.
func BuildPayload(subjectID, period string, snap dashboard.Snapshot) Payload {
	snap.TakenAt = time.Time{}
	return Payload{
		SubjectID:       subjectID,
		Period:          period,
		Snapshot:        snap,
		Recommendations: recommendations(snap),
		Summary:         localSummary(period, snap),
	}
}

// Hash returns the hex SHA-256 of the canonical JSON serialization.
// encoding/json emits struct fields in declaration order and map keys
// sorted, so equal payloads serialize byte-identically.
func (p Payload) Hash() string {
	blob, err := json.Marshal(p)
	if err != nil {
		// Payload contains only marshalable types; this is unreachable
		// short of memory corruption.
		panic(fmt.Sprintf("marshal report payload: %v", err))
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// recommendations derives rule-based follow-ups from aggregate ratios.
func recommendations(snap dashboard.Snapshot) []string {
	var recs []string

	offTrack := 0
	for i := range snap.Pledges {
		if snap.Pledges[i].Label == "off-track" {
			offTrack++
		}
	}
	if offTrack > 0 {
		recs = append(recs, fmt.Sprintf("Review the %d off-track initiative(s) and rebalance resources toward them.", offTrack))
	}
	if snap.AvgCompletion < 0.5 && snap.TotalPledges > 0 {
		recs = append(recs, "Overall completion is below half; consider revisiting targets or timelines.")
	}
	if snap.Completed > 0 {
		recs = append(recs, "Document lessons from completed initiatives and share them across departments.")
	}
	if len(recs) == 0 {
		recs = append(recs, "Maintain current momentum and continue regular progress logging.")
	}
	return recs
}

// localSummary is a deterministic text summary computed without the
// narrative service. It rides along in the payload and stands in as
// fallback prose in the rendered document.
func localSummary(period string, snap dashboard.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d initiatives tracked (%d active, %d completed, %d cancelled, %d draft). ",
		period, snap.TotalPledges, snap.Active, snap.Completed, snap.Cancelled, snap.Draft)
	fmt.Fprintf(&b, "Average completion %.1f%%.", snap.AvgCompletion*100)

	if len(snap.UnitTotals) > 0 {
		units := make([]string, 0, len(snap.UnitTotals))
		for unit := range snap.UnitTotals {
			units = append(units, unit)
		}
		sort.Strings(units)
		parts := make([]string, 0, len(units))
		for _, unit := range units {
			parts = append(parts, fmt.Sprintf("%.0f %s", snap.UnitTotals[unit], unit))
		}
		fmt.Fprintf(&b, " Totals: %s.", strings.Join(parts, ", "))
	}
	return b.String()
}

// buildPrompt renders the payload into the prompt sent to the
// narrative service.
func buildPrompt(p Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are generating a sustainability progress report.\n\n")
	fmt.Fprintf(&b, "Report Period: %s\n", p.Period)
	fmt.Fprintf(&b, "Subject: %s\n\n", p.SubjectID)

	fmt.Fprintf(&b, "Key Statistics:\n")
	fmt.Fprintf(&b, "- Total Initiatives: %d\n", p.Snapshot.TotalPledges)
	fmt.Fprintf(&b, "- Completed: %d\n", p.Snapshot.Completed)
	fmt.Fprintf(&b, "- Active: %d\n", p.Snapshot.Active)
	fmt.Fprintf(&b, "- Average Completion: %.1f%%\n\n", p.Snapshot.AvgCompletion*100)

	if len(p.Snapshot.Departments) > 0 {
		fmt.Fprintf(&b, "Department Performance:\n")
		names := make([]string, 0, len(p.Snapshot.Departments))
		for name := range p.Snapshot.Departments {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			d := p.Snapshot.Departments[name]
			label := name
			if label == "" {
				label = "Unassigned"
			}
			fmt.Fprintf(&b, "- %s: %d initiative(s), %d completed, average completion %.1f%%\n",
				label, d.Pledges, d.Completed, d.AvgCompletion*100)
		}
		b.WriteString("\n")
	}

	if len(p.Snapshot.Pledges) > 0 {
		fmt.Fprintf(&b, "Top Initiatives:\n")
		top := make([]dashboard.PledgeSummary, len(p.Snapshot.Pledges))
		copy(top, p.Snapshot.Pledges)
		sort.SliceStable(top, func(i, j int) bool { return top[i].CompletionRatio > top[j].CompletionRatio })
		if len(top) > 5 {
			top = top[:5]
		}
		for i := range top {
			fmt.Fprintf(&b, "- %s: %.1f%% (%s)\n", top[i].Title, top[i].CompletionRatio*100, top[i].Status)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Summary: %s\n\n", p.Summary)
	fmt.Fprintf(&b, "Recommendations under consideration:\n")
	for _, r := range p.Recommendations {
		fmt.Fprintf(&b, "- %s\n", r)
	}

	b.WriteString("\nWrite a professional report with an executive summary, key achievements, departmental analysis, impact metrics, recommendations, and a conclusion.")
	return b.String()
}
