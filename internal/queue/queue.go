// Package queue implements StoreQueue: a per-store FIFO that the
// ExecutionWorker pool peeks from (never pops) until a handler succeeds,
// giving at-least-once delivery with strict per-store ordering while
// still tolerating an immediate retry without losing the position of the
// operation that failed.
package queue

import (
	"sync"

	"github.com/ziyaddin/venice/internal/admin"
)

// StoreQueue holds the pending admin.Wrapper values for a single store,
// in the order they were read off the log. Pop only removes the head
// after its handler has actually succeeded; a failed attempt leaves the
// head in place via Peek so the next attempt retries the same record.
type StoreQueue struct {
	mu      sync.Mutex
	pending []admin.Wrapper
	leased  bool
}

func New() *StoreQueue {
	return &StoreQueue{}
}

// Push appends w to the tail. Cross-store ordering is not a contract;
// only the per-store FIFO order matters.
func (q *StoreQueue) Push(w admin.Wrapper) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, w)
}

// Peek returns the head of the queue without removing it, and whether
// the queue is non-empty.
func (q *StoreQueue) Peek() (admin.Wrapper, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return admin.Wrapper{}, false
	}
	return q.pending[0], true
}

// Pop removes the head after its handler succeeded.
func (q *StoreQueue) Pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return
	}
	q.pending = q.pending[1:]
}

// Bump replaces the head's Wrapper in place (used to increment Attempts
// after a retriable failure) without disturbing its queue position.
func (q *StoreQueue) Bump(w admin.Wrapper) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return
	}
	q.pending[0] = w
}

func (q *StoreQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// TryLease acquires this store's single-flight lease: only one worker may
// be executing this store's head operation at a time. Returns false if
// already leased.
func (q *StoreQueue) TryLease() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.leased {
		return false
	}
	q.leased = true
	return true
}

func (q *StoreQueue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.leased = false
}

// idle reports whether this queue has no pending records and is not
// currently leased by a worker, i.e. it is safe to drop from the Registry.
func (q *StoreQueue) idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && !q.leased
}

// Registry is the map of store name to StoreQueue, guarded by a
// reader-writer lock so lookups (the common case, one per incoming
// record) don't contend with each other, only with store creation.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*StoreQueue
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*StoreQueue)}
}

// GetOrCreate returns the StoreQueue for store, creating it if this is
// the first record seen for that store.
func (r *Registry) GetOrCreate(store string) *StoreQueue {
	r.mu.RLock()
	q, ok := r.stores[store]
	r.mu.RUnlock()
	if ok {
		return q
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.stores[store]; ok {
		return q
	}
	q = New()
	r.stores[store] = q
	return q
}

// Stores returns a snapshot of the currently known store names.
func (r *Registry) Stores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	return names
}

// MinPendingOffset returns the lowest offset sitting at the head of any
// store's queue, across every known store. The Coordinator uses this to
// compute the checkpoint-safe offset: the watermark must never advance
// past an operation that has not yet been durably applied anywhere.
// Returns false if no store has a pending operation.
func (r *Registry) MinPendingOffset() (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var min uint64
	found := false
	for _, q := range r.stores {
		if w, ok := q.Peek(); ok {
			if !found || w.Offset < min {
				min = w.Offset
				found = true
			}
		}
	}
	return min, found
}

// Reap drops every StoreQueue that is currently empty and unleased. A
// store with no pending work can always be recreated by GetOrCreate on its
// next record, so dropping it here is lossless.
func (r *Registry) Reap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, q := range r.stores {
		if q.idle() {
			delete(r.stores, name)
		}
	}
}
