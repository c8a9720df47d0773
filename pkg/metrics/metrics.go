package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Define global variables for metrics.
// We use 'promauto' which automatically registers metrics without complex initialization.

var (
	// ProjectionsTotal counts projected (node, snapshot) pairs, labeled by outcome:
	// "projected", "absent" or "error".
	ProjectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dygetviz_projections_total",
			Help: "Total number of (node, snapshot) projections attempted",
		},
		[]string{"outcome"},
	)

	// SnapshotDuration measures the batched similarity + projection of one snapshot.
	SnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dygetviz_snapshot_duration_seconds",
			Help:    "Time spent projecting all query nodes of one snapshot",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// AssemblyDuration measures a full trajectory assembly for one neighbor count.
	AssemblyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dygetviz_assembly_duration_seconds",
			Help:    "Duration of a trajectory assembly in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"k"},
	)

	// TrajectoryPoints tracks the number of points emitted by the last assembly.
	TrajectoryPoints = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dygetviz_trajectory_points",
			Help: "Number of trajectory points produced by the last assembly",
		},
		[]string{"dataset", "k"},
	)
)
