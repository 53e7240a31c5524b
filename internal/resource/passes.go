package resource

import (
	"context"
	"errors"

	"github.com/jamesprial/discordcore/internal/cache"
	"github.com/jamesprial/discordcore/internal/dispatch"
)

// CachedPass emits the entity stored under key, or nothing on a miss.
func CachedPass[K comparable, V any](store *cache.Store[K, *V], key K) Pass[*V] {
	return func(_ context.Context, emit func(*V)) error {
		if v, ok := store.Get(key); ok {
			emit(v)
		}
		return nil
	}
}

// FetchPass dispatches w, decodes the body and replaces the entry under key.
// Under PolicyCacheAlways the entry is evicted first and a failed response is
// still decoded and cached.
func FetchPass[K comparable, V any](e *Engine, store *cache.Store[K, *V], key K, w dispatch.Workload) Pass[*V] {
	return func(ctx context.Context, emit func(*V)) error {
		always := e.policy == PolicyCacheAlways
		if always {
			store.Delete(key)
		}

		resp, err := e.Call(ctx, w)
		if err != nil && !(always && resp.StatusCode != 0) {
			return err
		}

		v, decErr := Decode[V](resp.Body)
		if decErr != nil {
			return errors.Join(err, decErr)
		}
		store.Put(key, v)
		emit(v)
		return err
	}
}

// WritePass dispatches a create or update and caches the decoded entity under
// the key keyOf derives from it. keyOf returns false for an entity that cannot
// be keyed (e.g. a zero entity decoded from an empty body); it is emitted but
// not cached. A nil store caches nothing.
func WritePass[K comparable, V any](e *Engine, store *cache.Store[K, *V], w dispatch.Workload, keyOf func(*V) (K, bool)) Pass[*V] {
	return func(ctx context.Context, emit func(*V)) error {
		resp, err := e.Call(ctx, w)
		if err != nil && !(e.policy == PolicyCacheAlways && resp.StatusCode != 0) {
			return err
		}

		v, decErr := Decode[V](resp.Body)
		if decErr != nil {
			return errors.Join(err, decErr)
		}
		if store != nil {
			if k, ok := keyOf(v); ok {
				store.Put(k, v)
			}
		}
		emit(v)
		return err
	}
}

// DeletePass dispatches w and, on success, runs evict. A nil evict leaves
// every cache alone; sub-resource deletes use that.
func DeletePass(e *Engine, w dispatch.Workload, evict func()) Pass[bool] {
	return func(ctx context.Context, emit func(bool)) error {
		if _, err := e.Call(ctx, w); err != nil {
			return err
		}
		if evict != nil {
			evict()
		}
		emit(true)
		return nil
	}
}

// ReadPass dispatches w and decodes the body without caching anything.
func ReadPass[V any](e *Engine, w dispatch.Workload) Pass[*V] {
	return func(ctx context.Context, emit func(*V)) error {
		resp, err := e.Call(ctx, w)
		if err != nil {
			return err
		}
		v, err := Decode[V](resp.Body)
		if err != nil {
			return err
		}
		emit(v)
		return nil
	}
}

// ExecPass dispatches w for its side effect only. Nothing is decoded or
// cached whatever the policy.
func ExecPass(e *Engine, w dispatch.Workload) Pass[bool] {
	return DeletePass(e, w, nil)
}

// PutPass stores v under k and emits it.
func PutPass[K comparable, V any](store *cache.Store[K, *V], k K, v *V) Pass[*V] {
	return func(_ context.Context, emit func(*V)) error {
		store.Put(k, v)
		emit(v)
		return nil
	}
}

// EvictPass removes k and emits whether it was present.
func EvictPass[K comparable, V any](store *cache.Store[K, *V], k K) Pass[bool] {
	return func(_ context.Context, emit func(bool)) error {
		emit(store.Delete(k))
		return nil
	}
}

// MergePass merges entries into store in one step and emits how many there
// were.
func MergePass[K comparable, V any](store *cache.Store[K, *V], entries map[K]*V) Pass[int] {
	return func(_ context.Context, emit func(int)) error {
		store.Merge(entries)
		emit(len(entries))
		return nil
	}
}

// SelectPass emits the cached entities matching pred. It always emits, so an
// empty selection is not a miss.
func SelectPass[K comparable, V any](store *cache.Store[K, *V], pred func(K, *V) bool) Pass[[]*V] {
	return func(_ context.Context, emit func([]*V)) error {
		out := store.Values(pred)
		if out == nil {
			out = []*V{}
		}
		emit(out)
		return nil
	}
}
