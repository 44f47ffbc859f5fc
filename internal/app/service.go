// Package service wires the domain components together and exposes
// the operations the HTTP API and scheduled jobs call.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/niavasha/greenledger/internal/adapters/artifact"
	"github.com/niavasha/greenledger/internal/adapters/ledger"
	eventqueue "github.com/niavasha/greenledger/internal/adapters/mq/queue"
	workerpool "github.com/niavasha/greenledger/internal/adapters/mq/worker"
	"github.com/niavasha/greenledger/internal/adapters/reportsvc"
	"github.com/niavasha/greenledger/internal/domain/dashboard"
	"github.com/niavasha/greenledger/internal/domain/dedupe"
	"github.com/niavasha/greenledger/internal/domain/kpi"
	"github.com/niavasha/greenledger/internal/domain/model"
	"github.com/niavasha/greenledger/internal/domain/progress"
	"github.com/niavasha/greenledger/internal/domain/types"
	"github.com/niavasha/greenledger/internal/report"
	"github.com/niavasha/greenledger/pkg/logger"
	"github.com/niavasha/greenledger/pkg/metrics"
)

// SubjectAll is the aggregate report subject spanning every pledge.
const SubjectAll = "all"

// ErrNoReportClient is returned when report generation is requested
// but no narrative service client was configured.
var ErrNoReportClient = errors.New("no report service client configured")

// Service implements the pledge tracking operations.
type Service struct {
	mu sync.RWMutex

	store     ledger.Store
	artifacts artifact.Store
	client    reportsvc.Client
	tracker   dedupe.Tracker
	queue     eventqueue.Queue
	pool      *workerpool.Pool
	engine    *kpi.Engine
	pipeline  *report.Pipeline

	workerCount       int
	queueSize         int
	dedupeSize        int
	thresholds        model.ThresholdSet
	velocityWindow    time.Duration
	maxNarrativeBytes int
	now               func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the ledger store backend.
func WithStore(store ledger.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithArtifacts sets the artifact store backend.
func WithArtifacts(store artifact.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.artifacts = store
		}
	}
}

// WithReportClient sets the narrative service client.
func WithReportClient(client reportsvc.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.client = client
		}
	}
}

// WithWorkerCount sets the number of intake workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize caps the intake queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the replay tracker.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithThresholds sets the classification thresholds used by the
// dashboard and KPI evaluation.
func WithThresholds(ts model.ThresholdSet) Option {
	return func(s *Service) {
		if len(ts) > 0 {
			s.thresholds = ts
		}
	}
}

// WithVelocityWindow sets the trailing window for velocity KPIs. Zero
// means each pledge's elapsed active duration.
func WithVelocityWindow(window time.Duration) Option {
	return func(s *Service) {
		s.velocityWindow = window
	}
}

// WithMaxNarrativeBytes bounds accepted report narrative size.
func WithMaxNarrativeBytes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxNarrativeBytes = n
		}
	}
}

// WithClock substitutes the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// DefaultThresholds is the classification used when none is
// configured: on-track at 80%+, at-risk from 50%, off-track below.
func DefaultThresholds() model.ThresholdSet {
	return model.ThresholdSet{
		{Lower: 0, Label: "off-track"},
		{Lower: 0.5, Label: "at-risk"},
		{Lower: 0.8, Label: "on-track"},
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU() * 2,
		queueSize:   100000,
		dedupeSize:  50000,
		thresholds:  DefaultThresholds(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the components and launches the intake workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if err := s.thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	s.logger.Info(ctx, "starting pledge service...")

	if s.store == nil {
		s.store = ledger.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory ledger store")
	}
	if s.artifacts == nil {
		s.artifacts = artifact.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory artifact store")
	}

	s.tracker = dedupe.NewMemoryTracker(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.queue = eventqueue.NewMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.store)
	s.pool.Start(ctx)

	engineOpts := []kpi.Option{kpi.WithClock(s.now)}
	if s.velocityWindow > 0 {
		engineOpts = append(engineOpts, kpi.WithWindow(s.velocityWindow))
	}
	s.engine = kpi.New(engineOpts...)

	if s.client != nil {
		pipeOpts := []report.Option{report.WithClock(s.now)}
		if s.maxNarrativeBytes > 0 {
			pipeOpts = append(pipeOpts, report.WithMaxNarrativeBytes(s.maxNarrativeBytes))
		}
		s.pipeline = report.NewPipeline(s.store, s.artifacts, s.client, pipeOpts...)
	}

	s.started = true
	s.logger.Info(ctx, "pledge service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the intake queue and shuts the components down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping pledge service...")

	if s.pool != nil {
		_ = s.pool.Shutdown(ctx)
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	s.started = false
	s.logger.Info(ctx, "pledge service stopped")
}

// CreatePledge validates and stores a new pledge. A missing ID is
// assigned; a missing status starts the pledge as a draft.
func (s *Service) CreatePledge(ctx context.Context, p model.Pledge) (model.Pledge, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.PledgeDraft
	}
	if err := p.Validate(); err != nil {
		return model.Pledge{}, err
	}
	if err := s.store.CreatePledge(ctx, p); err != nil {
		return model.Pledge{}, err
	}
	metrics.RecordPledgeCreated()
	return p, nil
}

// GetPledge fetches one pledge.
func (s *Service) GetPledge(ctx context.Context, id string) (model.Pledge, error) {
	return s.store.GetPledge(ctx, id)
}

// ListPledges returns pledges matching the filter.
func (s *Service) ListPledges(ctx context.Context, f ledger.PledgeFilter) ([]model.Pledge, error) {
	return s.store.ListPledges(ctx, f)
}

// TransitionPledge moves a pledge along its lifecycle.
func (s *Service) TransitionPledge(ctx context.Context, id string, to model.PledgeStatus) (model.Pledge, error) {
	if err := s.store.UpdatePledgeStatus(ctx, id, to); err != nil {
		return model.Pledge{}, err
	}
	return s.store.GetPledge(ctx, id)
}

// InvalidatePledge soft-invalidates a pledge, its events, and any
// reports referencing it.
func (s *Service) InvalidatePledge(ctx context.Context, id string) error {
	return s.store.InvalidatePledge(ctx, id)
}

// LogProgress accepts a progress event for asynchronous intake. A
// replay of an already-accepted event acks as a duplicate; a full
// queue acks with Accepted=false so the caller can back off.
func (s *Service) LogProgress(ctx context.Context, e model.ProgressEvent) (types.IntakeAck, error) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.PledgeID == "" {
		return types.IntakeAck{}, model.ErrPledgeMismatch
	}
	ack := types.IntakeAck{EventID: e.EventID}

	if s.tracker.SeenAndRecord(ctx, e.EventID) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate event skipped",
			logger.String("eventID", e.EventID),
		)
		ack.Accepted = true
		ack.Duplicate = true
		return ack, nil
	}

	if !s.queue.Enqueue(ctx, e) {
		// Give the event back so a retry can get through once the
		// queue has room.
		s.tracker.Forget(ctx, e.EventID)
		return ack, nil
	}
	ack.Accepted = true
	return ack, nil
}

// EventsByPledge returns a pledge's events in canonical order.
func (s *Service) EventsByPledge(ctx context.Context, pledgeID string) ([]model.ProgressEvent, error) {
	return s.store.EventsByPledge(ctx, pledgeID)
}

// Progress computes the current standing of one pledge.
func (s *Service) Progress(ctx context.Context, pledgeID string) (types.ProgressView, error) {
	series, err := s.seriesFor(ctx, pledgeID)
	if err != nil {
		return types.ProgressView{}, err
	}
	res, err := progress.ComputeAchieved(series.Pledge, series.Events)
	if err != nil {
		return types.ProgressView{}, err
	}
	return types.ProgressView{
		PledgeID:        pledgeID,
		Achieved:        res.Achieved,
		Raw:             res.Raw,
		CompletionRatio: res.CompletionRatio,
		Label:           s.thresholds.Classify(res.CompletionRatio),
	}, nil
}

// EvaluateKPI evaluates a KPI definition over its scope.
func (s *Service) EvaluateKPI(ctx context.Context, k model.KPI) (kpi.Result, error) {
	ids := k.Scope.PledgeIDs
	if k.Scope.PledgeID != "" {
		ids = []string{k.Scope.PledgeID}
	}

	series := make([]kpi.Series, 0, len(ids))
	for _, id := range ids {
		sr, err := s.seriesFor(ctx, id)
		if err != nil {
			return kpi.Result{}, err
		}
		series = append(series, sr)
	}
	return s.engine.Evaluate(&k, series)
}

// Dashboard builds a snapshot over current store contents.
func (s *Service) Dashboard(ctx context.Context) (dashboard.Snapshot, error) {
	series, err := s.allSeries(ctx)
	if err != nil {
		return dashboard.Snapshot{}, err
	}
	return dashboard.Build(s.now(), series, s.thresholds)
}

// RequestReport generates (or returns the existing) report for a
// subject: a pledge ID, or SubjectAll for the aggregate view.
func (s *Service) RequestReport(ctx context.Context, subjectID, period string) (model.Report, error) {
	if s.pipeline == nil {
		return model.Report{}, ErrNoReportClient
	}
	if subjectID == "" {
		subjectID = SubjectAll
	}

	var series []kpi.Series
	var err error
	if subjectID == SubjectAll {
		series, err = s.allSeries(ctx)
	} else {
		var one kpi.Series
		one, err = s.seriesFor(ctx, subjectID)
		series = []kpi.Series{one}
	}
	if err != nil {
		return model.Report{}, err
	}

	snap, err := dashboard.Build(s.now(), series, s.thresholds)
	if err != nil {
		return model.Report{}, err
	}
	return s.pipeline.Generate(ctx, report.BuildPayload(subjectID, period, snap))
}

// GetReport fetches one report.
func (s *Service) GetReport(ctx context.Context, id string) (model.Report, error) {
	return s.store.GetReport(ctx, id)
}

// ReportArtifact fetches the rendered document of a Ready report.
func (s *Service) ReportArtifact(ctx context.Context, id string) ([]byte, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != model.ReportReady {
		return nil, fmt.Errorf("report %s is %s: %w", id, r.Status, report.ErrNotReady)
	}
	return s.artifacts.Get(ctx, r.ArtifactRef)
}

// Stats reports service counters for monitoring.
func (s *Service) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(context.Background())
		stats["trackedEvents"] = s.tracker.Len()
	}
	return stats
}

// QueueLen exposes the intake backlog size.
func (s *Service) QueueLen(ctx context.Context) int {
	return s.queue.Len(ctx)
}

// seriesFor loads one pledge with its ordered events.
func (s *Service) seriesFor(ctx context.Context, pledgeID string) (kpi.Series, error) {
	p, err := s.store.GetPledge(ctx, pledgeID)
	if err != nil {
		return kpi.Series{}, err
	}
	events, err := s.store.EventsByPledge(ctx, pledgeID)
	if err != nil {
		return kpi.Series{}, err
	}
	return kpi.Series{Pledge: &p, Events: events}, nil
}

// allSeries loads every non-invalidated pledge with its events.
func (s *Service) allSeries(ctx context.Context) ([]kpi.Series, error) {
	pledges, err := s.store.ListPledges(ctx, ledger.PledgeFilter{})
	if err != nil {
		return nil, err
	}
	series := make([]kpi.Series, 0, len(pledges))
	for i := range pledges {
		events, err := s.store.EventsByPledge(ctx, pledges[i].ID)
		if err != nil {
			return nil, err
		}
		series = append(series, kpi.Series{Pledge: &pledges[i], Events: events})
	}
	return series, nil
}
