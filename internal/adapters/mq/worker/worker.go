// Package worker runs keyed jobs so that all jobs sharing a key execute one at
// a time, in arrival order.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/shobdo/internal/adapters/mq/queue"
	"github.com/okian/shobdo/pkg/logger"
	"github.com/okian/shobdo/pkg/metrics"
)

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan *queue.Job
	// Taken is called once per received job.
	Taken()
}

// Worker consumes one queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the worker. Jobs still queued fail with ErrStopped.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker executes jobs from a single queue sequentially.
type InMemoryWorker struct {
	queue Queue
	name  string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	processed atomic.Int64
	failed    atomic.Int64

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Done is closed after Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Processed returns the number of jobs executed.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Failed returns the number of executed jobs that returned an error.
func (w *InMemoryWorker) Failed() int64 { return w.failed.Load() }

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			w.drain(jobs)
			return
		case <-w.shutdown:
			w.drain(jobs)
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.queue.Taken()
			w.process(job)
		}
	}
}

// drain fails every job still buffered without blocking.
func (w *InMemoryWorker) drain(jobs <-chan *queue.Job) {
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.queue.Taken()
			job.Result <- ErrStopped
		default:
			return
		}
	}
}

// Shutdown stops the worker and waits for the current job to finish.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(job *queue.Job) {
	// a caller that already gave up never sees a write
	if err := job.Ctx.Err(); err != nil {
		job.Result <- err
		return
	}

	start := time.Now()
	err := w.run(job)
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)

	w.processed.Add(1)
	if err != nil {
		w.failed.Add(1)
		metrics.RecordWorkerError()
		w.logger.Debug(job.Ctx, "job returned error",
			logger.String("job_id", job.ID),
			logger.String("key", job.Key),
			logger.Error(err),
		)
	}
	job.Result <- err
}

func (w *InMemoryWorker) run(job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(job.Ctx, "job panicked",
				logger.String("job_id", job.ID),
				logger.String("key", job.Key),
				logger.Any("panic", r),
			)
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(job.Ctx)
}
