// Package sched provides the scheduling context the resource managers lease
// before running work: a bounded pool of leases, each of which runs its work
// on a dedicated goroutine, plus timer-based deferred execution.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jamesprial/discordcore/internal/metrics"
)

// ErrPoolClosed is returned by Lease and After once Close has been called.
// Work scheduled with After before Close can still lease through the context
// it is handed.
var ErrPoolClosed = errors.New("sched: pool is closed")

type scheduledKey struct{}

// Option is a functional option for configuring a Pool.
type Option func(*Pool)

// WithMaxLeases caps the number of leases held at once. Values of zero or less
// are ignored; the default of 64 is used instead.
func WithMaxLeases(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.max = n
		}
	}
}

// WithLogger sets the logger. A nil logger defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics reports the number of leases in use to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(p *Pool) {
		p.metrics = metrics.OrNop(r)
	}
}

// Pool hands out a bounded number of leases. Every manager of a client leases
// from the same Pool, so the cap applies uniformly across resource families.
type Pool struct {
	max     int
	sem     chan struct{}
	logger  *slog.Logger
	metrics metrics.Recorder

	inUse atomic.Int32

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup // held leases, running lease work and pending After calls
}

// New constructs a Pool with the provided options applied.
func New(opts ...Option) *Pool {
	p := &Pool{
		max:     64,
		logger:  slog.Default(),
		metrics: metrics.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sem = make(chan struct{}, p.max)
	return p
}

// Cap returns the maximum number of concurrent leases.
func (p *Pool) Cap() int { return p.max }

// InUse returns the number of leases currently held.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Lease blocks until a slot is free or ctx is done. The returned Lease must be
// released exactly once; extra Release calls are ignored. After Close only
// contexts handed out by After may lease.
func (p *Pool) Lease(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if p.closed && ctx.Value(scheduledKey{}) != p {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		p.wg.Done()
		return nil, ctx.Err()
	case p.sem <- struct{}{}:
	}

	n := p.inUse.Add(1)
	p.metrics.LeasesInUse(int(n))
	return &Lease{
		ID:   uuid.Must(uuid.NewV7()).String(),
		pool: p,
	}, nil
}

// After runs fn once d has elapsed. Scheduled work cannot be cancelled; Close
// waits for it to finish. fn receives a context that may lease from the pool
// even when Close was called in the meantime.
func (p *Pool) After(d time.Duration, fn func(ctx context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	ctx := context.WithValue(context.Background(), scheduledKey{}, p)
	time.AfterFunc(d, func() {
		defer p.wg.Done()
		p.run(func() { fn(ctx) })
	})
	return nil
}

// Close stops handing out leases and waits for held leases, running work and
// scheduled work.
// It is safe to call Close multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("scheduled work panicked", slog.Any("recovered", r))
		}
	}()
	fn()
}

// Lease is one slot of a Pool.
type Lease struct {
	ID       string
	pool     *Pool
	released atomic.Bool
}

// Go runs fn on the lease's goroutine and returns a channel closed when fn has
// returned. A panic in fn is logged and contained. Go must be called before
// Release.
func (l *Lease) Go(fn func()) <-chan struct{} {
	done := make(chan struct{})
	if l.released.Load() {
		l.pool.logger.Error("lease used after release", "lease", l.ID)
		close(done)
		return done
	}
	// The unreleased lease keeps the counter above zero.
	l.pool.wg.Add(1)
	go func() {
		defer l.pool.wg.Done()
		defer close(done)
		l.pool.run(fn)
	}()
	return done
}

// Release returns the slot to the pool.
func (l *Lease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	n := l.pool.inUse.Add(-1)
	l.pool.metrics.LeasesInUse(int(n))
	<-l.pool.sem
	l.pool.wg.Done()
}
