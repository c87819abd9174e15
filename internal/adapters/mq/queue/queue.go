// Package queue defines the bounded in-memory queue feeding one serializer
// shard.
package queue

import (
	"context"
	"sync"

	"github.com/okian/shobdo/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Job is one unit of keyed work. Result is buffered so the worker never blocks
// on a caller that has gone away.
type Job struct {
	ID     string
	Key    string
	Ctx    context.Context //nolint:containedctx // the caller's context travels with the job
	Run    func(ctx context.Context) error
	Result chan error
}

// NewJob creates a job with a one-slot result channel.
func NewJob(ctx context.Context, id, key string, run func(ctx context.Context) error) *Job {
	return &Job{ID: id, Key: key, Ctx: ctx, Run: run, Result: make(chan error, 1)}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job to the queue.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, j *Job) bool

	// Dequeue returns the channel jobs are delivered on. It is closed by Close.
	Dequeue(ctx context.Context) <-chan *Job

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close stops accepting jobs. Queued jobs stay readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan *Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.jobs = make(chan *Job, q.capacity)
	metrics.AddQueueCapacity(q.capacity)

	return q
}

// Capacity returns the maximum number of queued jobs.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue adds a job to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j *Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		metrics.AddQueueSize(1)
		metrics.UpdateQueueUtilization(float64(len(q.jobs)) / float64(q.capacity))
		return true
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns the job channel. Consumers report the dequeue with Taken.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan *Job {
	return q.jobs
}

// Taken records that a consumer removed one job.
func (q *InMemoryQueue) Taken() {
	metrics.RecordQueueDequeue()
	metrics.AddQueueSize(-1)
	metrics.UpdateQueueUtilization(float64(len(q.jobs)) / float64(q.capacity))
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.jobs)
}

// Close stops accepting jobs and closes the dequeue channel.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.jobs)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
