// Package resource implements the engine shared by every resource family: a
// one-shot Actor that performs a single operation against the cache and the
// dispatcher, and the Run facade that leases a scheduling slot, starts a fresh
// actor, waits for it and collects its result.
package resource

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/jamesprial/discordcore/internal/sched"
)

// ErrActorStarted is returned when Start is called on an actor that has
// already been started.
var ErrActorStarted = errors.New("resource: actor already started")

// State is the lifecycle position of an Actor.
type State int32

const (
	Created State = iota
	Started
	Running
	Done
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Running:
		return "running"
	default:
		return "done"
	}
}

// Pass is the single operation an Actor performs. It publishes its result
// through emit (at most one value is kept) and returns any failure. A pass may
// both emit and fail.
type Pass[T any] func(ctx context.Context, emit func(T)) error

// errBuffer bounds the error channel; a pass records at most a handful.
const errBuffer = 8

// Actor runs one Pass exactly once and then stays Done.
type Actor[T any] struct {
	name  string
	pass  Pass[T]
	state atomic.Int32
	out   chan T
	errs  chan error
	done  chan struct{}
}

// NewActor returns an actor in the Created state. name identifies the
// operation in errors.
func NewActor[T any](name string, pass Pass[T]) *Actor[T] {
	return &Actor[T]{
		name: name,
		pass: pass,
		out:  make(chan T, 1),
		errs: make(chan error, errBuffer),
		done: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (a *Actor[T]) State() State { return State(a.state.Load()) }

// Start schedules the pass on lease's goroutine. It fails with ErrActorStarted
// if the actor was started before.
func (a *Actor[T]) Start(ctx context.Context, lease *sched.Lease) error {
	if !a.state.CompareAndSwap(int32(Created), int32(Started)) {
		return ErrActorStarted
	}
	lease.Go(func() { a.run(ctx) })
	return nil
}

// Done is closed once the pass has finished and its output is in place.
func (a *Actor[T]) Done() <-chan struct{} { return a.done }

func (a *Actor[T]) run(ctx context.Context) {
	a.state.Store(int32(Running))
	// Output is written before done is closed; readers after Done see it.
	defer close(a.done)
	defer a.state.Store(int32(Done))
	defer func() {
		if r := recover(); r != nil {
			a.record(fmt.Errorf("resource: %s panicked: %v\n%s", a.name, r, debug.Stack()))
		}
	}()

	if err := a.pass(ctx, a.emit); err != nil {
		a.record(err)
	}
}

func (a *Actor[T]) emit(v T) {
	select {
	case a.out <- v:
	default:
		// First value wins.
	}
}

func (a *Actor[T]) record(err error) {
	select {
	case a.errs <- err:
	default:
	}
}

// DrainErrors returns every error the pass recorded, in order. Call it after
// Done; it returns an empty slice on a second call.
func (a *Actor[T]) DrainErrors() []error {
	var out []error
	for {
		select {
		case err := <-a.errs:
			out = append(out, err)
		default:
			return out
		}
	}
}

// TryResult returns the published value without blocking.
func (a *Actor[T]) TryResult() (T, bool) {
	select {
	case v := <-a.out:
		return v, true
	default:
		var zero T
		return zero, false
	}
}
