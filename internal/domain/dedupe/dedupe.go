// Package dedupe tracks vote request ids so a replayed request is answered
// from memory instead of casting a second vote.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records request ids for at-most-once vote processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Complete attaches the outcome (the committed vote id) to a recorded id.
	Complete(ctx context.Context, id, outcome string)

	// Outcome returns the outcome stored by Complete. ok is false while the
	// request is still in flight or if id is unknown.
	Outcome(ctx context.Context, id string) (outcome string, ok bool)

	// Unrecord forgets id so the voter can retry after a failed transaction.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

type entry struct {
	id      string
	outcome string
}

// inMemoryDeduper keeps ids in insertion order and evicts the oldest when full.
// maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
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
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.seen[id] = d.order.PushBack(&entry{id: id})
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Complete(_ context.Context, id, outcome string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		el.Value.(*entry).outcome = outcome
	}
}

func (d *inMemoryDeduper) Outcome(_ context.Context, id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.seen[id]
	if !ok {
		return "", false
	}
	out := el.Value.(*entry).outcome
	return out, out != ""
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

// evictOldest drops the first recorded id. Caller holds d.mu.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.seen, front.Value.(*entry).id)
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
