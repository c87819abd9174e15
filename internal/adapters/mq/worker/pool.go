package worker

import (
	"context"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/okian/shobdo/internal/adapters/mq/queue"
	"github.com/okian/shobdo/pkg/logger"
	"github.com/okian/shobdo/pkg/metrics"
)

const defaultQueueSize = 1024

// Pool routes each key to one shard: a bounded queue drained by exactly one
// worker.
type Pool struct {
	queues  []*queue.InMemoryQueue
	workers []*InMemoryWorker

	shardCount int
	queueSize  int

	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once

	logger logger.Logger
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Shards     int   `json:"shards"`
	Capacity   int   `json:"capacity"`
	QueueDepth int   `json:"queue_depth"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
}

// NewPool creates a pool. Call Start before Do.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		shardCount: runtime.NumCPU(),
		queueSize:  defaultQueueSize,
		logger:     logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.queues = make([]*queue.InMemoryQueue, p.shardCount)
	p.workers = make([]*InMemoryWorker, p.shardCount)
	for i := 0; i < p.shardCount; i++ {
		p.queues[i] = queue.NewInMemoryQueue(queue.WithCapacity(p.queueSize))
		p.workers[i] = NewInMemoryWorker(p.queues[i], WithName("shard-"+strconv.Itoa(i)), WithLogger(p.logger))
	}

	return p
}

// Start launches one worker per shard.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	p.logger.Info(ctx, "worker pool started",
		logger.Int("shards", p.shardCount),
		logger.Int("queue_size", p.queueSize),
	)
}

// Do runs fn on the shard owning key and returns its error. Calls with the same
// key never overlap. Once fn has started, Do waits for it to finish even if ctx
// is canceled, so a returned error always means nothing was left half done.
func (p *Pool) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if !p.started.Load() || p.stopped.Load() {
		return ErrStopped
	}

	i := p.shardFor(key)
	q, w := p.queues[i], p.workers[i]

	job := queue.NewJob(ctx, uuid.NewString(), key, fn)
	if !q.Enqueue(ctx, job) {
		switch {
		case q.IsClosed():
			return ErrStopped
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return ErrBackpressure
		}
	}

	select {
	case err := <-job.Result:
		return err
	case <-w.Done():
		select {
		case err := <-job.Result:
			return err
		default:
			return ErrStopped
		}
	}
}

func (p *Pool) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.queues))) //nolint:gosec // shard count is small and positive
}

// Stats reports queue depth and job counters.
func (p *Pool) Stats() PoolStats {
	s := PoolStats{Shards: len(p.queues)}
	for i, q := range p.queues {
		s.Capacity += q.Capacity()
		s.QueueDepth += q.Len(context.Background())
		s.Processed += p.workers[i].Processed()
		s.Failed += p.workers[i].Failed()
	}
	return s
}

// Shutdown stops accepting jobs, fails queued jobs with ErrStopped and waits for
// running jobs to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		for _, q := range p.queues {
			_ = q.Close()
		}
		if !p.started.Load() {
			return
		}
		for i, w := range p.workers {
			if werr := w.Shutdown(ctx); werr != nil {
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				err = werr
			}
		}
		metrics.UpdateWorkerActiveCount(0)
	})
	return err
}
