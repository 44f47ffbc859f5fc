// Package queue buffers incoming progress events between the HTTP
// intake and the workers that append them to the ledger.
package queue

import (
	"context"
	"sync"

	"github.com/niavasha/greenledger/internal/domain/model"
	"github.com/niavasha/greenledger/pkg/metrics"
)

const (
	defaultCapacity   = 100000
	defaultBufferSize = 100000
)

// Event is the payload type flowing through the queue.
type Event = model.ProgressEvent

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds an event. Returns false when the queue is full or
	// closed and the event was not accepted.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns a channel receiving events as they arrive. The
	// channel closes when the queue closes.
	Dequeue(ctx context.Context) <-chan Event

	// Len returns the current number of buffered events.
	Len(ctx context.Context) int

	// Close stops intake. Buffered events still drain to consumers.
	Close() error

	IsClosed() bool
}

// MemoryQueue implements Queue over a buffered channel.
type MemoryQueue struct {
	events   chan Event
	capacity int
	buffer   int
	mu       sync.RWMutex
	closed   bool
}

// NewMemoryQueue creates an in-memory queue.
func NewMemoryQueue(opts ...Option) *MemoryQueue {
	q := &MemoryQueue{
		capacity: defaultCapacity,
		buffer:   defaultBufferSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.buffer)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

func (q *MemoryQueue) Enqueue(ctx context.Context, e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueReject("closed")
		return false
	}
	if len(q.events) >= q.capacity {
		metrics.RecordQueueReject("full")
		return false
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.events))
		return true
	case <-ctx.Done():
		metrics.RecordQueueReject("cancelled")
		return false
	default:
		metrics.RecordQueueReject("full")
		return false
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for e := range q.events {
			select {
			case out <- e:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.events))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (q *MemoryQueue) Len(_ context.Context) int {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	return size
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

func (q *MemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
