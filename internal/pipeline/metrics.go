package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration observes stage wall time. Labels: stage
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "prospect",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stage executions",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	// RecordsTotal counts records by the status they finished the run in.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prospect",
			Subsystem: "pipeline",
			Name:      "records_total",
			Help:      "Total number of records processed, by final status",
		},
		[]string{"status"},
	)

	// StageErrors counts stages that failed with an error or panic.
	StageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prospect",
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Total number of stage failures",
		},
		[]string{"stage"},
	)
)
