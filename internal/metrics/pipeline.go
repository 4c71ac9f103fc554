// Package metrics holds the Prometheus instruments shared by the pipeline and the API.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "docevaluator"

// Pipeline Prometheus metrics.
var (
	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Trigger records processed, by outcome",
		},
		[]string{"status"},
	)

	InferenceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Total number of inference calls",
		},
		[]string{"provider", "step", "status"}, // step: "map" / "reduce"; status: "success" / "empty" / "error"
	)

	InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Inference call duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider", "step"},
	)

	PagesPerRun = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pages_per_run",
			Help:      "Number of pages fed to one map-reduce run",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	LifecycleOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_operations_total",
			Help:      "Evaluation lifecycle operations, by result",
		},
		[]string{"op", "result"},
	)
)

func init() {
	prometheus.MustRegister(RecordsTotal)
	prometheus.MustRegister(InferenceRequestsTotal)
	prometheus.MustRegister(InferenceDuration)
	prometheus.MustRegister(PagesPerRun)
	prometheus.MustRegister(LifecycleOpsTotal)
}
