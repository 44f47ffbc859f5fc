package dedupe

// Option applies a configuration option to the memory tracker.
type Option func(*memoryTracker)

// WithMaxSize bounds the number of IDs kept in memory. A bound of
// zero or less disables eviction entirely.
func WithMaxSize(maxSize int) Option {
	return func(t *memoryTracker) {
		t.maxSize = maxSize
	}
}
