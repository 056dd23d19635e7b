package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Route query metrics
	RouteQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wayfinding_route_queries_total",
		Help: "Outdoor route queries by the strategy that produced the result",
	}, []string{"strategy"})

	RouteSearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wayfinding_route_search_seconds",
		Help:    "Time spent resolving endpoints and searching a route",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
	})

	HybridQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wayfinding_hybrid_queries_total",
		Help: "Hybrid indoor/outdoor route queries by outcome",
	}, []string{"outcome"})

	// Graph metrics
	GraphNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wayfinding_graph_nodes",
		Help: "Node count of the active graphs",
	}, []string{"graph"})

	GraphReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wayfinding_graph_reloads_total",
		Help: "Graph hot reloads by result",
	}, []string{"result"})

	SpatialIndexBuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wayfinding_spatial_index_builds_total",
		Help: "Number of times a graph spatial index was (re)built",
	})

	// Calibration metrics
	CalibrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wayfinding_calibrations_total",
		Help: "Calibration attempts by result (accepted or rejected)",
	}, []string{"result"})

	// Worker pool metrics
	WorkerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wayfinding_worker_queue_depth",
		Help: "Searches waiting for a worker",
	})

	WorkerDiscardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wayfinding_worker_discarded_total",
		Help: "Search results dropped because a newer query superseded them",
	})

	RouteCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wayfinding_route_cache_total",
		Help: "Route cache lookups by result (hit or miss)",
	}, []string{"result"})
)
