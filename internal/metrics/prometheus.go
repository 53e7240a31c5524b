package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default histogram buckets for REST latency (in seconds).
var defaultBuckets = []float64{
	.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

type promRecorder struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	cacheEntries     *prometheus.GaugeVec
	leases           prometheus.Gauge
}

// NewPrometheus registers the discordcore collectors on reg and returns a
// Recorder backed by them. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &promRecorder{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discordcore",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "REST requests sent, by operation and status code.",
		}, []string{"op", "code"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "discordcore",
			Subsystem: "dispatch",
			Name:      "request_duration_seconds",
			Help:      "REST request latency, by operation.",
			Buckets:   defaultBuckets,
		}, []string{"op"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discordcore",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups, by store and result.",
		}, []string{"cache", "result"}),
		cacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "discordcore",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries currently held, by store.",
		}, []string{"cache"}),
		leases: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "discordcore",
			Subsystem: "sched",
			Name:      "leases_in_use",
			Help:      "Scheduling leases currently held.",
		}),
	}

	reg.MustRegister(
		r.dispatchTotal,
		r.dispatchDuration,
		r.cacheLookups,
		r.cacheEntries,
		r.leases,
	)
	return r
}

func (r *promRecorder) ObserveDispatch(op string, code int, d time.Duration) {
	r.dispatchTotal.WithLabelValues(op, strconv.Itoa(code)).Inc()
	r.dispatchDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (r *promRecorder) CacheHit(cache string) {
	r.cacheLookups.WithLabelValues(cache, "hit").Inc()
}

func (r *promRecorder) CacheMiss(cache string) {
	r.cacheLookups.WithLabelValues(cache, "miss").Inc()
}

func (r *promRecorder) CacheSize(cache string, n int) {
	r.cacheEntries.WithLabelValues(cache).Set(float64(n))
}

func (r *promRecorder) LeasesInUse(n int) {
	r.leases.Set(float64(n))
}
