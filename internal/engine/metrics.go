package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus collectors. Each engine owns its own
// set so tests and embedded engines never collide on registration.
type Metrics struct {
	EdgesResolved      *prometheus.CounterVec
	EdgeFailures       *prometheus.CounterVec
	CacheEvents        *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram
}

// Cache event labels.
const (
	cacheHit     = "hit"
	cacheMiss    = "miss"
	cacheCorrupt = "corrupt"
)

// NewMetrics creates the collectors and registers them with reg when reg
// is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EdgesResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphres_edges_resolved_total",
				Help: "Number of dependency edges resolved, by selection mode.",
			},
			[]string{"mode"},
		),
		EdgeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphres_edge_failures_total",
				Help: "Number of dependency edges that failed to resolve, by failure kind.",
			},
			[]string{"kind"},
		),
		CacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphres_cache_events_total",
				Help: "Cache lookups of transform dependency results, by outcome.",
			},
			[]string{"event"},
		),
		ResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "graphres_resolution_duration_seconds",
				Help:    "Time taken to resolve a request.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.EdgesResolved,
			m.EdgeFailures,
			m.CacheEvents,
			m.ResolutionDuration,
		)
	}
	return m
}
