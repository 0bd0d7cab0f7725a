package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camtrap_model_runs_started_total",
		Help: "Number of model runs started.",
	})

	metricRunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camtrap_model_runs_finished_total",
		Help: "Number of model runs finished, by final status.",
	}, []string{"status"})

	metricBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camtrap_batch_duration_seconds",
		Help:    "Wall-clock duration of one prediction batch.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	metricMediaProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camtrap_media_processed_total",
		Help: "Number of media items with a persisted observation.",
	})

	metricPredictionsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camtrap_predictions_skipped_total",
		Help: "Number of predictions skipped because no media row matched.",
	})
)
