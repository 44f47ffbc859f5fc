// Package dedupe tracks already-seen progress event IDs so the intake
// path can drop replays before they ever reach the ledger.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Tracker records seen event IDs for at-most-once intake.
type Tracker interface {
	// SeenAndRecord atomically checks whether id was seen and records
	// it if not. Returns true when id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Forget removes an ID so its event can be retried. Used when an
	// event was recorded here but could not be handed downstream.
	Forget(ctx context.Context, id string)

	Len() int64
}

// memoryTracker keeps IDs in a map with an optional FIFO bound. When
// the bound is reached the oldest recorded ID is evicted, so a replay
// older than the retention window may slip through; the ledger's own
// uniqueness check still catches it there.
type memoryTracker struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string
	oldest  int
	maxSize int
	size    atomic.Int64
}

// NewMemoryTracker returns a Tracker bounded to the configured number
// of IDs (50000 by default, unbounded when the bound is zero or less).
func NewMemoryTracker(opts ...Option) Tracker {
	t := &memoryTracker{maxSize: 50000}
	for _, opt := range opts {
		opt(t)
	}
	t.seen = make(map[string]struct{})
	if t.maxSize > 0 {
		t.order = make([]string, 0, t.maxSize)
	}
	return t
}

func (t *memoryTracker) SeenAndRecord(_ context.Context, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[id]; ok {
		return true
	}

	if t.maxSize > 0 {
		if len(t.seen) >= t.maxSize {
			t.evictOldest()
		}
		t.order = append(t.order, id)
	}
	t.seen[id] = struct{}{}
	t.size.Add(1)
	return false
}

func (t *memoryTracker) Forget(_ context.Context, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[id]; !ok {
		return
	}
	delete(t.seen, id)
	t.size.Add(-1)
	// The stale slot in order is skipped at eviction time.
}

// evictOldest drops the oldest still-recorded ID. Slots whose ID was
// already forgotten are skipped. Caller holds t.mu.
func (t *memoryTracker) evictOldest() {
	for t.oldest < len(t.order) {
		id := t.order[t.oldest]
		t.oldest++
		if _, ok := t.seen[id]; ok {
			delete(t.seen, id)
			t.size.Add(-1)
			break
		}
	}
	// Compact once the consumed prefix dominates the slice.
	if t.oldest > len(t.order)/2 && t.oldest > 1024 {
		t.order = append(t.order[:0:0], t.order[t.oldest:]...)
		t.oldest = 0
	}
}

func (t *memoryTracker) Len() int64 {
	return t.size.Load()
}
