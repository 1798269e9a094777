package prom

import "github.com/prometheus/client_golang/prometheus"

const namespace = "trainer"

var (
	TrainingRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "training cycles by result",
	}, []string{"result"})

	ModelRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_runs_total",
		Help:      "tracked model runs by model and final status",
	}, []string{"model", "status"})

	ModelAccuracy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "model_accuracy",
		Help:      "holdout accuracy of the last successful fit",
	}, []string{"model"})

	ModelDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "model_duration_seconds",
		Help:      "fit and predict time per model",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"model"})

	UILaunched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ui_launched_total",
		Help:      "ui subprocesses started",
	})

	UIFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ui_failures_total",
		Help:      "ui subprocesses that failed to start or exited with an error",
	})

	UIRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ui_running",
		Help:      "ui subprocesses currently alive",
	})
)

// registered on import, the /metrics route serves the default registry
func init() {
	prometheus.MustRegister(
		TrainingRequests,
		ModelRuns,
		ModelAccuracy,
		ModelDuration,
		UILaunched,
		UIFailures,
		UIRunning,
	)
}
