package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gradingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygrade_gradings_total",
			Help: "Total number of grading runs by result.",
		},
		[]string{"result"},
	)
	gradedItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygrade_graded_items_total",
			Help: "Total number of graded answers by outcome.",
		},
		[]string{"outcome"},
	)
	gradingDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querygrade_grading_duration_ms",
			Help:    "Wall time of one grading run including store setup, in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	storeLifetimeMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querygrade_store_lifetime_ms",
			Help:    "Time an ephemeral query store stayed open, in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	predictorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygrade_predictor_calls_total",
			Help: "Total number of predictor calls by result.",
		},
		[]string{"result"},
	)
	predictorLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querygrade_predictor_latency_ms",
			Help:    "Predictor call latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
	)
	archiveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querygrade_archive_failures_total",
			Help: "Total number of grade archives that could not be written.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		gradingsTotal,
		gradedItemsTotal,
		gradingDurationMs,
		storeLifetimeMs,
		predictorCallsTotal,
		predictorLatencyMs,
		archiveFailuresTotal,
	)
}

// ObserveGrading records one finished grading run. result is "ok" or a failure class.
func ObserveGrading(result string, elapsed time.Duration) {
	gradingsTotal.WithLabelValues(result).Inc()
	gradingDurationMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveGradedItem(outcome string) {
	gradedItemsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStoreLifetime(elapsed time.Duration) {
	storeLifetimeMs.Observe(float64(elapsed.Milliseconds()))
}

func ObservePredictorCall(result string, elapsed time.Duration) {
	predictorCallsTotal.WithLabelValues(result).Inc()
	predictorLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementArchiveFailure() {
	archiveFailuresTotal.Inc()
}
