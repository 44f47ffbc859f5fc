package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/niavasha/greenledger/internal/adapters/artifact"
	"github.com/niavasha/greenledger/internal/adapters/ledger"
	"github.com/niavasha/greenledger/internal/adapters/reportsvc"
	"github.com/niavasha/greenledger/internal/domain/model"
	"github.com/niavasha/greenledger/pkg/logger"
	"github.com/niavasha/greenledger/pkg/metrics"
)

// defaultMaxNarrativeBytes bounds accepted narrative content.
const defaultMaxNarrativeBytes = 1 << 20 // 1MB

// Ledger is the slice of the ledger store the pipeline drives report
// lifecycles through.
type Ledger interface {
	CreateReport(ctx context.Context, r model.Report) error
	GetReport(ctx context.Context, id string) (model.Report, error)
	FindReadyReport(ctx context.Context, subjectID, payloadHash string) (model.Report, error)
	FindActiveReport(ctx context.Context, subjectID string) (model.Report, error)
	CASReportStatus(ctx context.Context, id string, from, to model.ReportStatus) (bool, error)
	SetReportPayloadHash(ctx context.Context, id, payloadHash string) error
	CompleteReport(ctx context.Context, id, artifactRef string, generatedAt time.Time) error
	FailReport(ctx context.Context, id, detail string) error
}

// inflightRun lets concurrent requests for the same subject observe
// the winner's outcome instead of dispatching a duplicate call.
type inflightRun struct {
	done     chan struct{}
	reportID string
}

// Pipeline owns the report state machine. All transitions go through
// it; the service client and artifact store never touch report state.
type Pipeline struct {
	store     Ledger
	artifacts artifact.Store
	client    reportsvc.Client

	maxNarrativeBytes int
	now               func() time.Time
	logger            logger.Logger

	mu       sync.Mutex
	inflight map[string]*inflightRun
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxNarrativeBytes bounds accepted narrative size.
func WithMaxNarrativeBytes(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxNarrativeBytes = n
		}
	}
}

// WithClock substitutes the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline wires a pipeline over its three boundaries.
func NewPipeline(store Ledger, artifacts artifact.Store, client reportsvc.Client, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:             store,
		artifacts:         artifacts,
		client:            client,
		maxNarrativeBytes: defaultMaxNarrativeBytes,
		now:               time.Now,
		logger:            logger.Get().Named("report"),
		inflight:          make(map[string]*inflightRun),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate drives one report request to a terminal observation.
//
// Identical payloads short-circuit to the existing Ready report.
// Concurrent requests for one subject resolve to a single external
// call: the winner of the Pending→Generating transition dispatches
// it, everyone else waits for and observes the winner's outcome.
// A Failed report is returned along with the failure so callers can
// inspect it; re-requesting after a failure starts a fresh report.
func (p *Pipeline) Generate(ctx context.Context, payload Payload) (model.Report, error) {
	metrics.RecordReportRequested()
	hash := payload.Hash()

	if r, err := p.store.FindReadyReport(ctx, payload.SubjectID, hash); err == nil {
		metrics.RecordReportDeduped()
		return r, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return model.Report{}, fmt.Errorf("look up ready report: %w", err)
	}

	p.mu.Lock()
	if run, ok := p.inflight[payload.SubjectID]; ok {
		p.mu.Unlock()
		return p.observe(ctx, run)
	}
	run := &inflightRun{done: make(chan struct{})}
	p.inflight[payload.SubjectID] = run
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.inflight, payload.SubjectID)
		p.mu.Unlock()
		close(run.done)
	}()

	return p.run(ctx, payload, hash, run)
}

// observe waits for the in-flight run on the same subject.
func (p *Pipeline) observe(ctx context.Context, run *inflightRun) (model.Report, error) {
	select {
	case <-ctx.Done():
		return model.Report{}, ctx.Err()
	case <-run.done:
	}
	if run.reportID == "" {
		return model.Report{}, errors.New("concurrent generation produced no report")
	}
	r, err := p.store.GetReport(ctx, run.reportID)
	if err != nil {
		return model.Report{}, fmt.Errorf("observe concurrent report: %w", err)
	}
	if r.Status == model.ReportFailed {
		return r, fmt.Errorf("report generation failed: %s", r.ErrorDetail)
	}
	return r, nil
}

// run is the winner's path: claim the report row, call the service,
// persist the artifact, publish the terminal state.
func (p *Pipeline) run(ctx context.Context, payload Payload, hash string, run *inflightRun) (model.Report, error) {
	rep, err := p.store.FindActiveReport(ctx, payload.SubjectID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		rep = model.Report{
			ID:          uuid.NewString(),
			SubjectID:   payload.SubjectID,
			RequestedAt: p.now(),
			Status:      model.ReportPending,
			PayloadHash: hash,
		}
		if err := p.store.CreateReport(ctx, rep); err != nil {
			return model.Report{}, fmt.Errorf("create report: %w", err)
		}
	case err != nil:
		return model.Report{}, fmt.Errorf("look up active report: %w", err)
	case rep.Status == model.ReportGenerating:
		// Another process is already on it. Hand back the in-flight
		// report rather than racing it.
		run.reportID = rep.ID
		return rep, nil
	}
	run.reportID = rep.ID

	won, err := p.store.CASReportStatus(ctx, rep.ID, model.ReportPending, model.ReportGenerating)
	if err != nil {
		return model.Report{}, fmt.Errorf("claim report %s: %w", rep.ID, err)
	}
	if !won {
		// Lost the store-level race to another process; observe
		// whatever state it left behind.
		r, err := p.store.GetReport(ctx, rep.ID)
		if err != nil {
			return model.Report{}, fmt.Errorf("observe claimed report: %w", err)
		}
		return r, nil
	}

	if rep.PayloadHash != hash {
		// Claimed a pending row left behind by another process. The
		// artifact will reflect this payload, so the stored hash must
		// too, or a stale hash would short-circuit future requests to
		// data it was never built from.
		if err := p.store.SetReportPayloadHash(ctx, rep.ID, hash); err != nil {
			return p.fail(ctx, rep.ID, fmt.Errorf("restamp payload hash: %w", err))
		}
		rep.PayloadHash = hash
	}

	// The external call is shared with every waiter, so a single
	// caller abandoning interest must not cancel it.
	callCtx := context.WithoutCancel(ctx)

	resp, err := p.client.Generate(callCtx, reportsvc.Request{
		Prompt:   buildPrompt(payload),
		Filename: rep.ID + ".html",
	})
	if err != nil {
		return p.fail(callCtx, rep.ID, err)
	}

	if err := p.validateNarrative(resp.Narrative); err != nil {
		return p.fail(callCtx, rep.ID, err)
	}

	doc, err := renderDocument(payload, resp.Narrative)
	if err != nil {
		return p.fail(callCtx, rep.ID, err)
	}

	// Write-then-publish: the artifact must be durable before the
	// report turns Ready.
	ref, err := p.artifacts.Put(callCtx, "reports/"+rep.ID+".html", "text/html", doc)
	if err != nil {
		return p.fail(callCtx, rep.ID, fmt.Errorf("persist artifact: %w", err))
	}

	generatedAt := p.now()
	if err := p.store.CompleteReport(callCtx, rep.ID, ref, generatedAt); err != nil {
		return model.Report{}, fmt.Errorf("publish report %s: %w", rep.ID, err)
	}
	metrics.RecordReportReady()

	rep.Status = model.ReportReady
	rep.ArtifactRef = ref
	rep.GeneratedAt = generatedAt
	return rep, nil
}

// fail records the terminal failure and surfaces the cause.
func (p *Pipeline) fail(ctx context.Context, id string, cause error) (model.Report, error) {
	metrics.RecordReportFailed()
	p.logger.Error(ctx, "report generation failed",
		logger.String("reportID", id),
		logger.Error(cause),
	)
	if err := p.store.FailReport(ctx, id, cause.Error()); err != nil {
		return model.Report{}, errors.Join(cause, fmt.Errorf("record failure for report %s: %w", id, err))
	}
	r, err := p.store.GetReport(ctx, id)
	if err != nil {
		return model.Report{}, errors.Join(cause, err)
	}
	return r, cause
}

func (p *Pipeline) validateNarrative(narrative string) error {
	if len(narrative) == 0 {
		return ErrEmptyNarrative
	}
	if len(narrative) > p.maxNarrativeBytes {
		return fmt.Errorf("%w: %d bytes over %d bound", ErrNarrativeTooLarge, len(narrative), p.maxNarrativeBytes)
	}
	return nil
}
