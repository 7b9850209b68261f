package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafcheck_predictions_total",
			Help: "Total number of successful predictions by endpoint and label",
		},
		[]string{"endpoint", "label"},
	)

	PredictionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafcheck_prediction_errors_total",
			Help: "Total number of rejected or failed prediction requests",
		},
		[]string{"endpoint", "error_code"},
	)

	InferenceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leafcheck_inference_duration_seconds",
			Help:    "Duration of preprocessing plus model inference",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafcheck_recommendations_total",
			Help: "Recommendation requests by outcome (static, cache_hit, generated, or an error code)",
		},
		[]string{"outcome"},
	)

	UpstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leafcheck_upstream_request_duration_seconds",
			Help:    "Duration of calls to the text generation service",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leafcheck_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)
