package queue

// Option applies a configuration option to the MemoryQueue.
type Option func(*MemoryQueue)

// WithCapacity caps how many events the queue will hold.
func WithCapacity(capacity int) Option {
	return func(q *MemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithBufferSize sets the underlying channel buffer.
func WithBufferSize(size int) Option {
	return func(q *MemoryQueue) {
		if size > 0 {
			q.buffer = size
		}
	}
}
