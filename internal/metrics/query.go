package metrics

import "github.com/prometheus/client_golang/prometheus"

// Query engine Prometheus metrics.
var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loupe",
			Name:      "query_duration_seconds",
			Help:      "Row and group query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"dataset", "operation"},
	)

	QueryRowsScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loupe",
			Name:      "query_rows_scanned_total",
			Help:      "Rows materialized while serving queries",
		},
		[]string{"dataset", "operation"},
	)

	QueryRowErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loupe",
			Name:      "query_row_errors_total",
			Help:      "Rows skipped because their shape disagreed with the schema",
		},
		[]string{"dataset"},
	)

	SignalComputeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loupe",
			Name:      "signal_compute_duration_seconds",
			Help:      "Full-dataset signal computation duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"dataset", "signal"},
	)
)

var queryMetricsRegistered bool

// RegisterQueryMetrics registers Prometheus query metrics. Must be called once from main.
func RegisterQueryMetrics() {
	if queryMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryRowsScanned)
	prometheus.MustRegister(QueryRowErrorsTotal)
	prometheus.MustRegister(SignalComputeDuration)
	queryMetricsRegistered = true
}
