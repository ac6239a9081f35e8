package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(reconcilerRunsTotal, reconcilerItemsTotal) }

var (
	reconcilerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_runs_total",
			Help: "Reconciler passes by result.",
		},
		[]string{"result"}, // ok|error|skipped
	)

	reconcilerItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_items_total",
			Help: "Records touched by the reconciler, by action.",
		},
		[]string{"action"}, // refreshed|expired|purged
	)
)

func IncReconcilerRun(result string) {
	reconcilerRunsTotal.WithLabelValues(norm(result)).Inc()
}

func AddReconcilerItems(action string, n int64) {
	if n > 0 {
		reconcilerItemsTotal.WithLabelValues(norm(action)).Add(float64(n))
	}
}
