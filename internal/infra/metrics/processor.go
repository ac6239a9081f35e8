package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(processorRequestsTotal, processorRequestDuration) }

var (
	processorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_requests_total",
			Help: "Calls to the payment processor by operation and result.",
		},
		[]string{"processor", "op", "result"}, // op: create|status, result: ok|error
	)

	processorRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "processor_request_duration_seconds",
			Help:    "Latency of payment processor calls, retries included.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"processor", "op"},
	)
)

func ObserveProcessor(processor, op string, ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	processorRequestsTotal.WithLabelValues(norm(processor), norm(op), result).Inc()
	processorRequestDuration.WithLabelValues(norm(processor), norm(op)).Observe(elapsed.Seconds())
}
