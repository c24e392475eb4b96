package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()

	// BatchRuns counts clustering pipeline runs by outcome
	BatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "batch_runs_total", Help: "Clustering pipeline runs by outcome."},
		[]string{"outcome"},
	)
	// BatchDuration records pipeline run durations in seconds
	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "batch_run_duration_seconds", Help: "Clustering pipeline run duration in seconds.", Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300}},
	)
	// BatchOrders records how many orders a run picked up
	BatchOrders = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "batch_run_orders", Help: "Pending orders per pipeline run.", Buckets: []float64{1, 5, 10, 50, 100, 500, 1000}},
	)
	// SchedulerSkips counts triggers dropped by the single-flight guard
	SchedulerSkips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scheduler_overlap_skips_total", Help: "Batch triggers coalesced while a run was in flight."},
	)
	// ClustersBuilt counts produced clusters by tier
	ClustersBuilt = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "clusters_built_total", Help: "Clusters produced by the geo clusterer, by tier."},
		[]string{"tier"},
	)
	// ToursPersisted counts tours written by outcome
	ToursPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tours_persisted_total", Help: "Tour persistence attempts by outcome."},
		[]string{"outcome"},
	)
	// OptimizerCalls counts optimizer submissions by outcome
	OptimizerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_calls_total", Help: "Optimizer submissions by outcome."},
		[]string{"outcome"},
	)
	// GeocodeLookups counts geocoding lookups by outcome
	GeocodeLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "geocode_lookups_total", Help: "Geocoding lookups by outcome."},
		[]string{"outcome"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(BatchRuns)
		Registry.MustRegister(BatchDuration)
		Registry.MustRegister(BatchOrders)
		Registry.MustRegister(SchedulerSkips)
		Registry.MustRegister(ClustersBuilt)
		Registry.MustRegister(ToursPersisted)
		Registry.MustRegister(OptimizerCalls)
		Registry.MustRegister(GeocodeLookups)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
