package bus

import (
	"context"
	"sync"

	"tickdb/pkg/exception"
)

// Queue is a bounded, non-blocking queue with a single consumer. It feeds
// the durable store writer: producers never block, they only see a full
// error on backpressure.
type Queue[T any] struct {
	ch chan T

	// mu orders publishes against Close so a publish never races the
	// channel close. Publishers share the lock; Close takes it exclusively.
	mu     sync.RWMutex
	closed bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryPublish enqueues an item without blocking.
func (q *Queue[T]) TryPublish(item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return exception.ErrWriterClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return exception.ErrWriterQueueFull
	}
}

// Publish enqueues an item, blocking on backpressure until the context is done.
func (q *Queue[T]) Publish(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return exception.ErrWriterClosed
	}
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue from accepting new items. Buffered items remain
// readable by the consumer.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Run consumes items until the context is done or the queue is closed and
// drained.
func (q *Queue[T]) Run(ctx context.Context, handler func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-q.ch:
			if !ok {
				return
			}
			handler(item)
		}
	}
}

// Len reports the number of buffered items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}
