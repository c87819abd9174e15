package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func noop(context.Context) error { return nil }

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, NewJob(ctx, "job1", "score:p:2026-10-15", noop)) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	job := <-q.Dequeue(ctx)
	q.Taken()
	if job.ID != "job1" {
		t.Errorf("expected job1, got %v", job.ID)
	}
	if cap(job.Result) != 1 {
		t.Errorf("expected buffered result channel, got cap %d", cap(job.Result))
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if !q.Enqueue(ctx, NewJob(ctx, fmt.Sprintf("job%d", i), "k", noop)) {
			t.Error("expected enqueue to succeed")
		}
	}

	if q.Enqueue(ctx, NewJob(ctx, "job3", "k", noop)) {
		t.Error("expected enqueue to fail when full")
	}

	if q.Capacity() != 2 {
		t.Errorf("expected capacity 2, got %d", q.Capacity())
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, NewJob(ctx, "job", "k", noop)) {
		t.Error("expected enqueue to fail for a cancelled context")
	}
}

func TestInMemoryQueue_FIFO(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		q.Enqueue(ctx, NewJob(ctx, fmt.Sprintf("job%d", i), "k", noop))
	}
	for i := 0; i < 5; i++ {
		job := <-q.Dequeue(ctx)
		q.Taken()
		if want := fmt.Sprintf("job%d", i); job.ID != want {
			t.Errorf("expected %s, got %s", want, job.ID)
		}
	}
}

func TestInMemoryQueue_ConcurrentProducers(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if !q.Enqueue(ctx, NewJob(ctx, fmt.Sprintf("job%d_%d", id, j), "k", noop)) {
					t.Errorf("unexpected rejection for job%d_%d", id, j)
				}
			}
		}(i)
	}
	wg.Wait()

	if l := q.Len(ctx); l != 1000 {
		t.Errorf("expected 1000 queued jobs, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	q.Enqueue(ctx, NewJob(ctx, "job1", "k", noop))
	q.Enqueue(ctx, NewJob(ctx, "job2", "k", noop))

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}

	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}

	if q.Enqueue(ctx, NewJob(ctx, "job3", "k", noop)) {
		t.Error("expected enqueue to fail after closing")
	}

	// queued jobs stay readable, then the channel reports closed
	var drained int
	for range q.Dequeue(ctx) {
		drained++
	}
	if drained != 2 {
		t.Errorf("expected 2 drained jobs, got %d", drained)
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}
