// Package queue provides a thread-safe, bounded FIFO ring buffer with
// long-poll support. The gateway feeds it with pending cache inserts and with
// incoming messages for the poll tool.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// QueuedMessage represents a single Discord message captured from a guild channel.
type QueuedMessage struct {
	ID               string    `json:"id"`
	ChannelID        string    `json:"channel_id"`
	ChannelName      string    `json:"channel_name"`
	AuthorID         string    `json:"author_id"`
	AuthorUsername   string    `json:"author_username"`
	Content          string    `json:"content"`
	Timestamp        time.Time `json:"timestamp"`
	MessageReference string    `json:"message_reference,omitempty"`
}

// Formatted returns a human-readable representation of the message in the
// form "[#channel] @user: text".
func (m QueuedMessage) Formatted() string {
	return fmt.Sprintf("[#%s] @%s: %s", m.ChannelName, m.AuthorUsername, m.Content)
}

// InChannel returns a Poll filter matching messages whose ChannelID or
// ChannelName equals channel. An empty channel matches everything.
func InChannel(channel string) func(QueuedMessage) bool {
	if channel == "" {
		return nil
	}
	return func(m QueuedMessage) bool {
		return m.ChannelID == channel || m.ChannelName == channel
	}
}

// Option is a functional option for configuring a Queue.
type Option func(*options)

type options struct {
	maxSize int
}

// WithMaxSize sets the maximum number of items the queue can hold.
// Values of zero or less are ignored; the default of 1000 is used instead.
func WithMaxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// Queue is a thread-safe, bounded FIFO ring-buffer queue. When the buffer is
// full, the oldest item is silently dropped to make room for the new one.
// Callers waiting in Poll are notified via a broadcast channel whenever a new
// item is enqueued.
type Queue[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int
	count   int
	maxSize int
	dropped uint64
	notify  chan struct{}
}

// New constructs a Queue with the provided options applied. The default
// maximum size is 1000 items.
func New[T any](opts ...Option) *Queue[T] {
	o := options{maxSize: 1000}
	for _, opt := range opts {
		opt(&o)
	}
	return &Queue[T]{
		buf:     make([]T, o.maxSize),
		maxSize: o.maxSize,
		notify:  make(chan struct{}),
	}
}

// Enqueue adds item to the tail of the queue. If the queue is full, the oldest
// item (at head) is discarded to accommodate the new one. Enqueue never
// blocks and wakes all goroutines currently blocked in Poll.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()

	if q.count == q.maxSize {
		// Drop the oldest item by advancing head.
		var zero T
		q.buf[q.head] = zero
		q.head = (q.head + 1) % q.maxSize
		q.count--
		q.dropped++
	}

	tail := (q.head + q.count) % q.maxSize
	q.buf[tail] = item
	q.count++

	// Broadcast to all waiters: close the old channel and replace it.
	oldNotify := q.notify
	q.notify = make(chan struct{})

	q.mu.Unlock()

	close(oldNotify)
}

// take collects up to limit items matching match from the queue. A nil match
// takes from the head; otherwise non-matching items remain in the ring
// buffer. The caller must hold q.mu.
func (q *Queue[T]) take(match func(T) bool, limit int) []T {
	if q.count == 0 {
		return nil
	}
	var zero T

	if match == nil {
		// Fast path: collect up to limit items from the head.
		n := q.count
		if limit > 0 && n > limit {
			n = limit
		}
		out := make([]T, n)
		for i := 0; i < n; i++ {
			idx := (q.head + i) % q.maxSize
			out[i] = q.buf[idx]
			q.buf[idx] = zero
		}
		q.head = (q.head + n) % q.maxSize
		q.count -= n
		return out
	}

	// Filtered path: scan all items, collect matching ones, compact buffer.
	var out []T
	kept := make([]T, 0, q.count)

	for i := 0; i < q.count; i++ {
		item := q.buf[(q.head+i)%q.maxSize]
		collected := limit <= 0 || len(out) < limit
		if collected && match(item) {
			out = append(out, item)
		} else {
			kept = append(kept, item)
		}
	}

	// Rewrite the ring buffer with only the kept items.
	q.head = 0
	q.count = len(kept)
	copy(q.buf, kept)
	// Zero out trailing slots to release stale references.
	for i := len(kept); i < q.maxSize; i++ {
		q.buf[i] = zero
	}

	return out
}

// Poll returns up to limit items from the queue, blocking until at least one
// item is available, the timeout expires, or ctx is cancelled.
//
// When match is non-nil only items it accepts are returned; items that do
// not match are left in the buffer for future calls.
//
// A limit of zero or less means return all available matching items. Items
// are returned in FIFO order (oldest first) and are removed from the queue;
// each item is delivered at most once.
//
// Poll returns nil (not an error) when the timeout elapses or ctx is cancelled
// with nothing to deliver.
func (q *Queue[T]) Poll(ctx context.Context, timeout time.Duration, limit int, match func(T) bool) []T {
	// Try immediately first.
	q.mu.Lock()
	if items := q.take(match, limit); len(items) > 0 {
		q.mu.Unlock()
		return items
	}
	// Capture the current notify channel while still holding the lock so we
	// don't miss a signal that arrives between the lock release and the select.
	notifyCh := q.notify
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			return nil
		case <-notifyCh:
			// An item was enqueued; try to collect.
			q.mu.Lock()
			items := q.take(match, limit)
			notifyCh = q.notify
			q.mu.Unlock()
			if len(items) > 0 {
				return items
			}
			// The item may not have matched our filter; keep waiting.
		}
	}
}

// Drain removes and returns up to limit items without blocking. A limit of
// zero or less drains everything.
func (q *Queue[T]) Drain(limit int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.take(nil, limit)
}

// Len returns the current number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns how many items have been discarded because the queue was
// full.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
