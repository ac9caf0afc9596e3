package dispatcher

import (
	"maps"
	"slices"
	"sync"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
)

// registry is an id-indexed set of one object kind. Its lock only guards
// the map; the objects carry their own mutexes and are never called while
// it is held.
type registry[T any] struct {
	mu    sync.RWMutex
	items map[interlock.ObjectID]*T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{items: make(map[interlock.ObjectID]*T)}
}

// get returns the object with id, or nil.
func (r *registry[T]) get(id interlock.ObjectID) *T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[id]
}

// add stores item under id unless the id is taken.
func (r *registry[T]) add(id interlock.ObjectID, item *T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; ok {
		return false
	}
	r.items[id] = item
	return true
}

// list returns every object ordered by id.
func (r *registry[T]) list() []*T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*T, 0, len(r.items))
	for _, id := range slices.Sorted(maps.Keys(r.items)) {
		out = append(out, r.items[id])
	}
	return out
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
