package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels requests answered with a 2xx status.
	OutcomeSuccess = "success"
	// OutcomeError labels requests rejected by the backend or malformed responses.
	OutcomeError = "error"
	// OutcomeNetwork labels requests that never produced an HTTP response.
	OutcomeNetwork = "network"
)

// Operation labels for backend calls.
const (
	OpUpload = "upload"
	OpList   = "list"
	OpDelete = "delete"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "detect_console",
			Name:      "api_requests_total",
			Help:      "Total number of detection API requests, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	requestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "detect_console",
			Name:      "api_request_seconds",
			Help:      "Detection API request latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		},
		[]string{"operation"},
	)

	validationRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "detect_console",
			Name:      "filter_rejections_total",
			Help:      "Filter applications rejected by client-side validation.",
		},
	)
)

// Register attaches detect-console collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		requestsTotal,
		requestDurationSeconds,
		validationRejectionsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRequest records one backend round trip.
func ObserveRequest(operation string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeNetwork:
	default:
		outcome = OutcomeSuccess
	}
	requestsTotal.WithLabelValues(operation, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	requestDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveRejectedFilter counts one filter application blocked by validation.
func ObserveRejectedFilter() {
	validationRejectionsTotal.Inc()
}
