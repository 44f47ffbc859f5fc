// Package ledger defines the durable store boundary for pledges, progress
// events, and reports. Implementations must provide transactional writes and
// a compare-and-set on report status so the report pipeline can enforce one
// in-flight generation per subject across processes.
package ledger

import (
	"context"
	"time"

	"github.com/niavasha/greenledger/internal/domain/model"
)

// PledgeFilter narrows ListPledges results. Zero values match everything.
type PledgeFilter struct {
	Status     model.PledgeStatus
	Department string
	Unit       string
	// IncludeInvalid also returns soft-invalidated pledges.
	IncludeInvalid bool
}

// Store provides read/write access to the ledger.
//
// Progress events are append-only: there is no update or delete operation
// for them anywhere on this interface, corrections are new events.
type Store interface {
	// CreatePledge persists a new pledge after validation.
	CreatePledge(ctx context.Context, p model.Pledge) error

	// GetPledge returns a pledge by id, ErrNotFound if unknown.
	GetPledge(ctx context.Context, id string) (model.Pledge, error)

	// ListPledges returns pledges matching the filter, ordered by id.
	ListPledges(ctx context.Context, f PledgeFilter) ([]model.Pledge, error)

	// UpdatePledgeStatus applies a monotonic status transition.
	// Illegal transitions fail with ErrIllegalTransition.
	UpdatePledgeStatus(ctx context.Context, id string, next model.PledgeStatus) error

	// InvalidatePledge soft-invalidates a pledge and cascades the mark to
	// its events and any reports referencing it. Nothing is orphaned and
	// nothing is physically removed.
	InvalidatePledge(ctx context.Context, id string) error

	// AppendEvent appends an immutable progress event. Reusing an event id
	// fails with ErrDuplicateEvent.
	AppendEvent(ctx context.Context, e model.ProgressEvent) error

	// EventsByPledge returns a pledge's events ordered by timestamp,
	// ties broken by ascending event id.
	EventsByPledge(ctx context.Context, pledgeID string) ([]model.ProgressEvent, error)

	// CreateReport persists a new report record.
	CreateReport(ctx context.Context, r model.Report) error

	// GetReport returns a report by id, ErrNotFound if unknown.
	GetReport(ctx context.Context, id string) (model.Report, error)

	// FindReadyReport returns the most recent ready report for the subject
	// carrying the given payload hash, ErrNotFound if there is none.
	FindReadyReport(ctx context.Context, subjectID, payloadHash string) (model.Report, error)

	// FindActiveReport returns a pending or generating report for the
	// subject, ErrNotFound if there is none.
	FindActiveReport(ctx context.Context, subjectID string) (model.Report, error)

	// CASReportStatus atomically moves a report from one status to another.
	// It returns false when the report was not in the expected status, which
	// is how concurrent pipeline callers lose the dispatch race.
	CASReportStatus(ctx context.Context, id string, from, to model.ReportStatus) (bool, error)

	// SetReportPayloadHash re-stamps a report with the hash of the payload
	// actually being generated, so later short-circuits by hash match the
	// data behind the artifact.
	SetReportPayloadHash(ctx context.Context, id, payloadHash string) error

	// CompleteReport moves generating -> ready, recording the artifact
	// reference and generation time. The artifact must already be durable:
	// persistence precedes publication.
	CompleteReport(ctx context.Context, id, artifactRef string, generatedAt time.Time) error

	// FailReport moves generating -> failed with the retained error detail.
	FailReport(ctx context.Context, id, detail string) error
}
