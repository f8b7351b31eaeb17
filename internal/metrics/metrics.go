// Package metrics registers the engine's prometheus collectors and the
// HTTP middleware that feeds the request ones.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// QueryDuration observes query execution time by collection.
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gridbase",
			Name:      "query_duration_seconds",
			Help:      "Query execution duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"collection"},
	)

	// QueryCacheTotal counts cache hits and misses.
	QueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridbase",
			Name:      "query_cache_total",
			Help:      "Query cache lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss
	)

	// GraphBuildSize observes materialized graph node counts.
	GraphBuildSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gridbase",
			Name:      "graph_build_nodes",
			Help:      "Node count of materialized relation graphs",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 2000},
		},
	)

	// MutationsTotal counts successful mutating operations.
	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridbase",
			Name:      "mutations_total",
			Help:      "Successful mutating operations by kind",
		},
		[]string{"kind"},
	)
)

// Register registers every engine collector. Explicit, no init().
func Register() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryCacheTotal)
	prometheus.MustRegister(GraphBuildSize)
	prometheus.MustRegister(MutationsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
}
