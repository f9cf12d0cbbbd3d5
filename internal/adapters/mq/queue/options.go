package queue

import "context"

// Option configures an InMemoryQueue.
type Option func(*InMemoryQueue)

// DropFunc observes an event the queue refused. reason is one of "closed",
// "capacity_exceeded", "context_cancelled" or "queue_full".
type DropFunc func(ctx context.Context, e Event, reason string)

// WithCapacity bounds the number of buffered vote events. Values below one
// keep the default.
func WithCapacity(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithOnDrop registers fn to be called for every refused event.
func WithOnDrop(fn DropFunc) Option {
	return func(q *InMemoryQueue) {
		q.onDrop = fn
	}
}
