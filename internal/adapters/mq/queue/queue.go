// Package queue defines the contract for buffering verified submissions
// awaiting asynchronous merge.
//
// Only the bulk ingestion path goes through the queue; single submissions
// are merged synchronously so the response can echo the aggregate. The
// event log makes at-least-once delivery from the queue safe.
package queue

import (
	"context"
	"sync"

	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/pkg/metrics"
)

// defaultCapacity bounds the queue when no option is given.
const defaultCapacity = 10000

// Submission is the payload type flowing through the queue.
type Submission = model.Submission

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a submission to the queue.
	// Returns false if the queue is full and the submission was dropped.
	Enqueue(ctx context.Context, s Submission) bool

	// Dequeue returns a channel receiving submissions as they arrive.
	// The channel closes when the queue is closed.
	Dequeue(ctx context.Context) <-chan Submission

	// Len returns the current number of queued submissions.
	Len(ctx context.Context) int

	// Close shuts the queue down; no further enqueues succeed.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan Submission
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan Submission, q.capacity)
	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a submission to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, s Submission) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return false
	}

	select {
	case q.items <- s:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.items))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return false
	default:
		metrics.RecordQueueEnqueueError()
		return false // queue is full
	}
}

// Dequeue returns a channel receiving submissions as they arrive.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Submission {
	out := make(chan Submission)
	go func() {
		defer close(out)
		for s := range q.items {
			select {
			case out <- s:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.items))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued submissions.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	return len(q.items)
}

// Close shuts the queue down.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	close(q.items)
	q.closed = true
	return nil
}
