package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		paymentsCreatedTotal,
		paymentsStatusTotal,
		entitlementsGrantedTotal,
		paymentsRevenueTotal,
	)
}

var (
	paymentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "Payment creation attempts by outcome.",
		},
		[]string{"result"}, // created|already_entitled|rate_limited|processor_error|invalid|error
	)

	paymentsStatusTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_status_total",
			Help: "Status checks by reported payment status.",
		},
		[]string{"status"},
	)

	entitlementsGrantedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlements_granted_total",
			Help: "Premium entitlements granted on first observed approval.",
		},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of approved payments, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncPaymentCreated(result string) {
	paymentsCreatedTotal.WithLabelValues(norm(result)).Inc()
}

func IncPaymentStatus(status string) {
	paymentsStatusTotal.WithLabelValues(norm(status)).Inc()
}

// ObserveGrant counts a new entitlement and the revenue of the payment behind it.
func ObserveGrant(currency string, amount decimal.Decimal) {
	entitlementsGrantedTotal.Inc()
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(amount.InexactFloat64())
}
