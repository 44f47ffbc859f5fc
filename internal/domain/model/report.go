package model

import "time"

// ReportStatus is the lifecycle state of a report.
type ReportStatus string

// Report lifecycle states. pending -> generating -> {ready, failed}.
// Terminal states are final; regeneration creates a new report.
const (
	ReportPending    ReportStatus = "pending"
	ReportGenerating ReportStatus = "generating"
	ReportReady      ReportStatus = "ready"
	ReportFailed     ReportStatus = "failed"
)

// CanTransitionTo reports whether a status change is allowed. No transition
// skips generating and no transition leaves a terminal state.
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	switch s {
	case ReportPending:
		return next == ReportGenerating
	case ReportGenerating:
		return next == ReportReady || next == ReportFailed
	default:
		return false
	}
}

// Terminal reports whether the report has finished its lifecycle.
func (s ReportStatus) Terminal() bool {
	return s == ReportReady || s == ReportFailed
}

// Report is a generated narrative artifact summarizing pledge or aggregate
// status. Owned by the report pipeline until it reaches a terminal state,
// then read-only history.
type Report struct {
	ID          string
	SubjectID   string // pledge id or aggregate scope key
	RequestedAt time.Time
	GeneratedAt time.Time // set on the ready transition
	Status      ReportStatus
	PayloadHash string // sha256 of the canonical payload, for idempotence
	ArtifactRef string // opaque handle into the artifact store
	ErrorDetail string // present only when failed
	Invalid     bool   // soft-invalidated when the subject pledge is removed
}
