package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/sched"
	"golang.org/x/sync/singleflight"
)

// Policy decides what a failed response does to the cache.
type Policy int

const (
	// PolicyCacheSuccess leaves the cache untouched when a request fails; the
	// caller gets the typed error and any prior entry survives.
	PolicyCacheSuccess Policy = iota
	// PolicyCacheAlways evicts before fetching and caches whatever the body
	// decodes to, even for a failed response. An empty body yields a zero
	// entity. The caller gets the entity together with the *APIError.
	PolicyCacheAlways
)

func (p Policy) String() string {
	if p == PolicyCacheAlways {
		return "always"
	}
	return "success"
}

// ParsePolicy maps a configuration value to a Policy. The empty string is
// PolicyCacheSuccess.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "success":
		return PolicyCacheSuccess, nil
	case "always":
		return PolicyCacheAlways, nil
	}
	return PolicyCacheSuccess, fmt.Errorf("resource: unknown cache policy %q", s)
}

// EngineOption is a functional option for configuring an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. A nil logger defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPolicy sets the cache policy.
func WithPolicy(p Policy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// Engine carries what every operation of every family needs: the dispatcher,
// the shared lease pool and the cache policy. One Engine serves a whole client.
type Engine struct {
	dispatcher dispatch.Dispatcher
	pool       *sched.Pool
	logger     *slog.Logger
	policy     Policy
	flights    singleflight.Group
}

// NewEngine constructs an Engine.
func NewEngine(d dispatch.Dispatcher, pool *sched.Pool, opts ...EngineOption) *Engine {
	e := &Engine{
		dispatcher: d,
		pool:       pool,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the configured cache policy.
func (e *Engine) Policy() Policy { return e.policy }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// After schedules fn on the shared pool once d has elapsed. Operations run
// with the context fn receives still lease after the pool is closed.
func (e *Engine) After(d time.Duration, fn func(ctx context.Context)) error {
	return e.pool.After(d, fn)
}

// Call dispatches w. A response with a non-success status is returned along
// with an *APIError; a transport failure returns only the error.
func (e *Engine) Call(ctx context.Context, w dispatch.Workload) (dispatch.Response, error) {
	resp, err := e.dispatcher.Dispatch(ctx, w)
	if err != nil {
		return dispatch.Response{}, err
	}
	if !resp.OK() {
		return resp, newAPIError(w.Type, resp)
	}
	return resp, nil
}

// Decode parses body into a new V. An empty body yields the zero value.
func Decode[V any](body []byte) (*V, error) {
	v := new(V)
	if len(body) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("resource: decode %T: %w", *v, err)
	}
	return v, nil
}

// Run performs one operation: it leases a slot from the pool, starts a fresh
// actor for pass on it, waits for the actor to finish, logs whatever errors it
// recorded and returns its result. If the pass neither emitted a value nor
// failed, Run returns ErrNotFound.
func Run[T any](ctx context.Context, e *Engine, op string, pass Pass[T]) (T, error) {
	var zero T

	lease, err := e.pool.Lease(ctx)
	if err != nil {
		return zero, fmt.Errorf("resource: %s: lease: %w", op, err)
	}
	defer lease.Release()

	actor := NewActor(op, pass)
	if err := actor.Start(ctx, lease); err != nil {
		return zero, err
	}
	<-actor.Done()

	errs := actor.DrainErrors()
	for _, err := range errs {
		level := slog.LevelWarn
		if errors.Is(err, ErrNotFound) {
			level = slog.LevelDebug
		}
		e.logger.Log(ctx, level, "operation failed", "op", op, "lease", lease.ID, "kind", KindOf(err).String(), "error", err)
	}

	v, ok := actor.TryResult()
	switch {
	case len(errs) == 1:
		return v, errs[0]
	case len(errs) > 1:
		return v, errors.Join(errs...)
	case !ok:
		return zero, ErrNotFound
	}
	return v, nil
}

type shared[T any] struct{ v T }

// RunShared is Run with concurrent calls for the same key collapsed into one:
// callers arriving while an operation for key is in flight wait for it and
// receive its result. The shared operation does not inherit any caller's
// cancellation; each caller stops waiting when its own ctx is done.
func RunShared[T any](ctx context.Context, e *Engine, key, op string, pass Pass[T]) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("resource: %s: %w", op, err)
	}
	flight := context.WithoutCancel(ctx)
	ch := e.flights.DoChan(key, func() (any, error) {
		v, err := Run(flight, e, op, pass)
		return shared[T]{v}, err
	})
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("resource: %s: %w", op, ctx.Err())
	case res := <-ch:
		return res.Val.(shared[T]).v, res.Err
	}
}
