// Package queue defines the contract for enqueuing and consuming units of
// conversion work.
package queue

import (
	"context"
	"sync"

	"github.com/okian/bidsify/internal/domain/model"
	"github.com/okian/bidsify/pkg/metrics"
)

const defaultQueueCapacity = 64

// Unit represents the payload type flowing through the queue.
type Unit = model.Unit

// Queue provides blocking submit and channel-based dequeue semantics.
type Queue interface {
	// Submit adds a unit, waiting for room until ctx is done.
	Submit(ctx context.Context, u Unit) error

	// Dequeue returns a channel that will receive units as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Unit

	// Close stops accepting units. Units already queued are still delivered.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	units    chan Unit
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.units = make(chan Unit, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a unit without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, u Unit) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.units <- u:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.units))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Submit adds a unit, waiting for room. Consumers must be running, and
// Close waits for pending submits to finish.
func (q *InMemoryQueue) Submit(ctx context.Context, u Unit) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}
	select {
	case q.units <- u:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.units))
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return ctx.Err()
	}
}

// Dequeue returns a channel that will receive units as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Unit {
	out := make(chan Unit)
	go func() {
		defer close(out)
		for u := range q.units {
			select {
			case out <- u:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.units))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close stops accepting units.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.units)
	q.closed = true
	return nil
}
