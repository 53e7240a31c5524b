package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/jamesprial/discordcore/internal/cache"
	"github.com/jamesprial/discordcore/internal/dispatch"
)

// Family is the generic manager core one resource family instantiates: its
// cache plus the standard operations, each run through the facade. Family
// managers wrap it and supply the endpoint for each call.
type Family[K comparable, V any] struct {
	name   string
	engine *Engine
	store  *cache.Store[K, *V]
	keyOf  func(*V) (K, bool)
}

// NewFamily constructs a Family with an empty cache. keyOf derives the cache
// key from an entity and reports false when the entity cannot be keyed.
func NewFamily[K comparable, V any](e *Engine, name string, keyOf func(*V) (K, bool), opts ...cache.Option) *Family[K, V] {
	return &Family[K, V]{
		name:   name,
		engine: e,
		store:  cache.New[K, *V](name, opts...),
		keyOf:  keyOf,
	}
}

// Name returns the family name used for op labels and metrics.
func (f *Family[K, V]) Name() string { return f.name }

// Engine returns the engine the family runs on.
func (f *Family[K, V]) Engine() *Engine { return f.engine }

// Store returns the family's cache.
func (f *Family[K, V]) Store() *cache.Store[K, *V] { return f.store }

// KeyOf derives the cache key of v.
func (f *Family[K, V]) KeyOf(v *V) (K, bool) { return f.keyOf(v) }

func (f *Family[K, V]) op(name string) string { return f.name + "." + name }

// Get returns the cached entity under k, or ErrNotFound.
func (f *Family[K, V]) Get(ctx context.Context, k K) (*V, error) {
	return Run(ctx, f.engine, f.op("get"), CachedPass(f.store, k))
}

// Fetch retrieves the entity with w and replaces the cache entry under k.
// Concurrent fetches of the same route share one request.
func (f *Family[K, V]) Fetch(ctx context.Context, k K, w dispatch.Workload) (*V, error) {
	key := w.Type.String() + " " + w.Path
	if len(w.Query) > 0 {
		key += "?" + w.Query.Encode()
	}
	return RunShared(ctx, f.engine, key, f.op("fetch"), FetchPass(f.engine, f.store, k, w))
}

// Write performs a create or update and caches the returned entity.
func (f *Family[K, V]) Write(ctx context.Context, w dispatch.Workload) (*V, error) {
	return Run(ctx, f.engine, f.op("write"), WritePass(f.engine, f.store, w, f.keyOf))
}

// WriteAt performs a create or update and caches the returned entity under k.
// It serves endpoints whose response does not carry its full key.
func (f *Family[K, V]) WriteAt(ctx context.Context, k K, w dispatch.Workload) (*V, error) {
	at := func(*V) (K, bool) { return k, true }
	return Run(ctx, f.engine, f.op("write"), WritePass(f.engine, f.store, w, at))
}

// Delete performs w and evicts k when it succeeds.
func (f *Family[K, V]) Delete(ctx context.Context, w dispatch.Workload, k K) error {
	_, err := Run(ctx, f.engine, f.op("delete"), DeletePass(f.engine, w, func() { f.store.Delete(k) }))
	return err
}

// DeleteOptions controls a delete. A positive Delay schedules the delete on
// the pool instead of running it now; Reason is recorded in the audit log.
type DeleteOptions struct {
	Delay  time.Duration
	Reason string
}

// DeleteLater performs Delete once d has elapsed; a non-positive d deletes
// now. A scheduled delete cannot be cancelled and its outcome is only logged.
func (f *Family[K, V]) DeleteLater(ctx context.Context, d time.Duration, w dispatch.Workload, k K) error {
	if d <= 0 {
		return f.Delete(ctx, w, k)
	}
	logger := f.engine.Logger()
	err := f.engine.After(d, func(ctx context.Context) {
		if err := f.Delete(ctx, w, k); err != nil {
			logger.Warn("delayed delete failed", "op", f.op("delete"), "type", w.Type.String(), "error", err)
			return
		}
		logger.Debug("delayed delete done", "op", f.op("delete"), "type", w.Type.String())
	})
	if err != nil {
		return fmt.Errorf("resource: %s: schedule delete: %w", f.name, err)
	}
	return nil
}

// Exec performs w without touching the cache.
func (f *Family[K, V]) Exec(ctx context.Context, w dispatch.Workload) error {
	_, err := Run(ctx, f.engine, f.op("exec"), ExecPass(f.engine, w))
	return err
}

// Insert caches v under its derived key.
func (f *Family[K, V]) Insert(ctx context.Context, v *V) error {
	if v == nil {
		return fmt.Errorf("resource: %s: insert nil entity", f.name)
	}
	k, ok := f.keyOf(v)
	if !ok {
		return fmt.Errorf("resource: %s: entity has no key", f.name)
	}
	return f.InsertAt(ctx, k, v)
}

// InsertAt caches v under k.
func (f *Family[K, V]) InsertAt(ctx context.Context, k K, v *V) error {
	_, err := Run(ctx, f.engine, f.op("insert"), PutPass(f.store, k, v))
	return err
}

// Remove evicts k and reports whether it was cached.
func (f *Family[K, V]) Remove(ctx context.Context, k K) (bool, error) {
	return Run(ctx, f.engine, f.op("remove"), EvictPass(f.store, k))
}

// BulkInsert caches every keyable entity of vs in one step and returns how
// many were stored. Nil and unkeyable entities are skipped.
func (f *Family[K, V]) BulkInsert(ctx context.Context, vs []*V) (int, error) {
	entries := make(map[K]*V, len(vs))
	for _, v := range vs {
		if v == nil {
			continue
		}
		if k, ok := f.keyOf(v); ok {
			entries[k] = v
		}
	}
	return Run(ctx, f.engine, f.op("bulk_insert"), MergePass(f.store, entries))
}

// Select returns the cached entities matching pred; a nil pred selects all.
func (f *Family[K, V]) Select(ctx context.Context, pred func(K, *V) bool) ([]*V, error) {
	return Run(ctx, f.engine, f.op("select"), SelectPass(f.store, pred))
}
