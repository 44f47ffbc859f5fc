// Package worker drains the intake queue and appends progress events
// to the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/niavasha/greenledger/internal/adapters/ledger"
	"github.com/niavasha/greenledger/internal/domain/model"
	"github.com/niavasha/greenledger/pkg/logger"
	"github.com/niavasha/greenledger/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Event is what workers read off the queue.
type Event = model.ProgressEvent

// Ledger is the slice of the ledger store workers write through.
type Ledger interface {
	GetPledge(ctx context.Context, id string) (model.Pledge, error)
	AppendEvent(ctx context.Context, e model.ProgressEvent) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes intake events until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is cancelled.
	Run(ctx context.Context)

	// Shutdown stops the worker, waiting for the in-flight event.
	Shutdown(ctx context.Context) error
}

// IntakeWorker implements Worker over a ledger store.
type IntakeWorker struct {
	queue  Queue
	store  Ledger
	name   string
	logger logger.Logger

	shutdown chan struct{}
	done     chan struct{}
}

// NewIntakeWorker creates a worker with configuration options.
func NewIntakeWorker(q Queue, store Ledger, opts ...Option) *IntakeWorker {
	w := &IntakeWorker{
		queue:    q,
		store:    store,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *IntakeWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := w.processEvent(ctx, e); err != nil {
				w.logger.Error(ctx, "event intake failed", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker.
func (w *IntakeWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *IntakeWorker) processEvent(ctx context.Context, e Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordIntakeLatency(float64(time.Since(start).Milliseconds()))
	}()

	pledge, err := w.store.GetPledge(ctx, e.PledgeID)
	if err != nil {
		metrics.RecordEventRejected("unknown_pledge")
		w.logger.Error(ctx, "pledge lookup failed",
			logger.String("eventID", e.EventID),
			logger.String("pledgeID", e.PledgeID),
			logger.Error(err),
		)
		return fmt.Errorf("pledge %s for event %s: %w", e.PledgeID, e.EventID, err)
	}

	if err := e.Validate(&pledge); err != nil {
		metrics.RecordEventRejected("invalid")
		w.logger.Warn(ctx, "event rejected",
			logger.String("eventID", e.EventID),
			logger.Error(err),
		)
		return fmt.Errorf("event %s rejected: %w", e.EventID, err)
	}

	if err := w.store.AppendEvent(ctx, e); err != nil {
		if errors.Is(err, ledger.ErrDuplicateEvent) {
			// Replay that slipped past the intake tracker. Already
			// recorded, so nothing to do.
			metrics.RecordEventDuplicate()
			return nil
		}
		metrics.RecordEventRejected("append_failed")
		w.logger.Error(ctx, "ledger append failed",
			logger.String("eventID", e.EventID),
			logger.Error(err),
		)
		return fmt.Errorf("append event %s: %w", e.EventID, err)
	}

	metrics.RecordEventIngested()
	return nil
}

// Pool manages a set of intake workers over one queue.
type Pool struct {
	workers []*IntakeWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one
// defaults to a multiple of the CPU count.
func NewPool(workerCount int, q Queue, store Ledger) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*IntakeWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewIntakeWorker(q, store, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
