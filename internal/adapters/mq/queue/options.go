package queue

// Option applies a configuration option to an InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the logical queue capacity.
func WithCapacity(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithBufferSize sets the underlying channel buffer size.
func WithBufferSize(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.bufferSize = n
		}
	}
}
