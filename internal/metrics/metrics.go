// Package metrics defines the instrumentation hooks used by the dispatcher,
// the resource caches and the scheduling pool, with a no-op and a Prometheus
// implementation.
package metrics

import "time"

// Recorder receives measurements from the discordcore components. All methods
// must be safe for concurrent use.
type Recorder interface {
	// ObserveDispatch records one completed REST exchange. code is 0 when the
	// request failed before a response was received.
	ObserveDispatch(op string, code int, d time.Duration)
	// CacheHit and CacheMiss count lookups against the named store.
	CacheHit(cache string)
	CacheMiss(cache string)
	// CacheSize reports the current number of entries in the named store.
	CacheSize(cache string, n int)
	// LeasesInUse reports the number of scheduling leases currently held.
	LeasesInUse(n int)
}

type nop struct{}

func (nop) ObserveDispatch(string, int, time.Duration) {}
func (nop) CacheHit(string)                            {}
func (nop) CacheMiss(string)                           {}
func (nop) CacheSize(string, int)                      {}
func (nop) LeasesInUse(int)                            {}

// Nop returns a Recorder that discards everything.
func Nop() Recorder { return nop{} }

// OrNop returns r, or a no-op Recorder when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return nop{}
	}
	return r
}
