package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts clustering runs by seeding method and outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "madlib_kmeans_runs_total",
			Help: "Total number of clustering runs",
		},
		[]string{"init_method", "status"},
	)

	// RunDurationSeconds measures per-phase run latency.
	RunDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "madlib_kmeans_run_duration_seconds",
			Help:    "Duration of clustering run phases",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	// IterationsRun tracks how many Lloyd iterations runs take before
	// convergence or the iteration cap.
	IterationsRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "madlib_kmeans_iterations_run",
			Help:    "Lloyd iterations executed per run",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20, 50, 100},
		},
	)

	// ReassignmentFraction observes the per-iteration convergence delta.
	ReassignmentFraction = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "madlib_kmeans_reassignment_fraction",
			Help:    "Fraction of points changing assignment per iteration",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// PointsIngested counts scanned source rows by disposition.
	PointsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "madlib_kmeans_points_ingested_total",
			Help: "Source rows processed at ingest",
		},
		[]string{"disposition"},
	)
)
