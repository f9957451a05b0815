package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScoresEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receiptrisk_scores_enqueued_total",
		Help: "Total number of receipts placed on the scoring queue.",
	})

	ScoresDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receiptrisk_scores_dropped_total",
		Help: "Total number of receipts rejected due to a full queue.",
	})

	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receiptrisk_predictions_total",
		Help: "Total number of receipts scored, labelled by risk level.",
	}, []string{"risk_level"})

	PredictionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receiptrisk_prediction_errors_total",
		Help: "Total number of failed scoring requests, labelled by error code.",
	}, []string{"code"})

	ScoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "receiptrisk_scoring_duration_ms",
		Help:    "Feature extraction plus classification latency in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "receiptrisk_queue_utilization_ratio",
		Help: "Current scoring queue utilization (0–1).",
	})

	ModelLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "receiptrisk_model_loaded",
		Help: "1 when a model bundle is installed, 0 otherwise.",
	})

	BundleReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receiptrisk_bundle_reloads_total",
		Help: "Total number of bundle reload attempts, labelled by outcome.",
	}, []string{"status"})
)
