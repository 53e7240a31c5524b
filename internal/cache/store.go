// Package cache provides the per-resource-family entity store shared by a
// manager and all of its in-flight operations.
package cache

import (
	"sync"

	"github.com/jamesprial/discordcore/internal/metrics"
)

// Option is a functional option for configuring a Store.
type Option func(*options)

type options struct {
	metrics metrics.Recorder
}

// WithMetrics reports hits, misses and size to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = metrics.OrNop(r)
	}
}

// Store is an unbounded key to entity map with no expiry. Entries persist
// until deleted. Every mutation runs under the store's lock, so concurrent
// writers to different keys never overwrite each other. It is safe for
// concurrent use.
type Store[K comparable, V any] struct {
	name    string
	mu      sync.RWMutex
	items   map[K]V
	metrics metrics.Recorder
}

// New returns an empty Store. name labels the store in metrics and logs.
func New[K comparable, V any](name string, opts ...Option) *Store[K, V] {
	o := options{metrics: metrics.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[K, V]{
		name:    name,
		items:   make(map[K]V),
		metrics: o.metrics,
	}
}

// Name returns the label the store was created with.
func (s *Store[K, V]) Name() string { return s.name }

// Get returns the entity stored under k.
func (s *Store[K, V]) Get(k K) (V, bool) {
	s.mu.RLock()
	v, ok := s.items[k]
	s.mu.RUnlock()

	if ok {
		s.metrics.CacheHit(s.name)
	} else {
		s.metrics.CacheMiss(s.name)
	}
	return v, ok
}

// Put inserts or replaces the entity under k.
func (s *Store[K, V]) Put(k K, v V) {
	s.mu.Lock()
	s.items[k] = v
	n := len(s.items)
	s.mu.Unlock()

	s.metrics.CacheSize(s.name, n)
}

// Delete removes k and reports whether it was present.
func (s *Store[K, V]) Delete(k K) bool {
	s.mu.Lock()
	_, ok := s.items[k]
	delete(s.items, k)
	n := len(s.items)
	s.mu.Unlock()

	s.metrics.CacheSize(s.name, n)
	return ok
}

// DeleteFunc removes every entry for which pred returns true and returns the
// number removed.
func (s *Store[K, V]) DeleteFunc(pred func(K, V) bool) int {
	s.mu.Lock()
	removed := 0
	for k, v := range s.items {
		if pred(k, v) {
			delete(s.items, k)
			removed++
		}
	}
	n := len(s.items)
	s.mu.Unlock()

	s.metrics.CacheSize(s.name, n)
	return removed
}

// Update applies fn to the current entry for k atomically. fn receives the
// current value and whether it exists; it returns the new value and whether
// to keep it. Returning keep=false deletes the entry.
func (s *Store[K, V]) Update(k K, fn func(old V, ok bool) (V, bool)) {
	s.mu.Lock()
	old, ok := s.items[k]
	if v, keep := fn(old, ok); keep {
		s.items[k] = v
	} else {
		delete(s.items, k)
	}
	n := len(s.items)
	s.mu.Unlock()

	s.metrics.CacheSize(s.name, n)
}

// Merge inserts or replaces every entry of m in one step.
func (s *Store[K, V]) Merge(m map[K]V) {
	if len(m) == 0 {
		return
	}
	s.mu.Lock()
	for k, v := range m {
		s.items[k] = v
	}
	n := len(s.items)
	s.mu.Unlock()

	s.metrics.CacheSize(s.name, n)
}

// Snapshot returns a copy of the current contents. Changes to the returned map
// do not affect the store.
func (s *Store[K, V]) Snapshot() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[K]V, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// Values returns the entities for which pred returns true, in no particular
// order. A nil pred selects every entity.
func (s *Store[K, V]) Values(pred func(K, V) bool) []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []V
	for k, v := range s.items {
		if pred == nil || pred(k, v) {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of entries.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
