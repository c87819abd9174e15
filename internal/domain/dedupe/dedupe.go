// Package dedupe tracks client request ids so a replayed request is
// acknowledged instead of applied twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records seen request ids and, optionally, the result they produced.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Complete attaches the result of the request that recorded id.
	Complete(ctx context.Context, id string, result any)

	// Result returns the attached result. ok is false while the first request
	// is still running or when id is unknown.
	Result(ctx context.Context, id string) (result any, ok bool)

	// Unrecord forgets id so the client may retry. Use it when the request
	// that recorded id failed without changing state.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

type entry struct {
	id     string
	result any
	done   bool
}

// inMemoryDeduper keeps at most maxSize ids, evicting the oldest first.
// maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front is newest
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]*list.Element)
	d.order = list.New()

	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}

	if d.maxSize > 0 {
		for d.order.Len() >= d.maxSize {
			d.evictOldest()
		}
	}
	d.seen[id] = d.order.PushFront(&entry{id: id})
	return false
}

func (d *inMemoryDeduper) Complete(_ context.Context, id string, result any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		e := el.Value.(*entry) //nolint:forcetypeassert // list only holds *entry
		e.result, e.done = result, true
	}
}

func (d *inMemoryDeduper) Result(_ context.Context, id string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.seen[id]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry) //nolint:forcetypeassert // list only holds *entry
	return e.result, e.done
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	el := d.order.Back()
	if el == nil {
		return
	}
	d.order.Remove(el)
	delete(d.seen, el.Value.(*entry).id) //nolint:forcetypeassert // list only holds *entry
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
