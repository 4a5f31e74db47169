package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type CheckoutMetrics struct {
	FinalizeTotal      *prometheus.CounterVec
	OrderValue         prometheus.Histogram
	NotificationsTotal *prometheus.CounterVec
}

// Finalize outcomes recorded under the "outcome" label.
const (
	OutcomeCreated   = "created"
	OutcomeNoop      = "noop"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

func NewCheckoutMetrics() *CheckoutMetrics {
	finalize := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "finalize_total",
		Help:      "Finalization attempts by outcome.",
	}, []string{"outcome"})
	value := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "order_value",
		Help:      "Grand total of persisted orders.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000},
	})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "notifications_total",
		Help:      "Dispatched notifications by kind and status.",
	}, []string{"kind", "status"})

	prometheus.MustRegister(finalize, value, notifications)
	return &CheckoutMetrics{FinalizeTotal: finalize, OrderValue: value, NotificationsTotal: notifications}
}

// Outcome is nil-safe so components can run without metrics wired.
func (m *CheckoutMetrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.FinalizeTotal.WithLabelValues(outcome).Inc()
}

func (m *CheckoutMetrics) ObserveOrderValue(v float64) {
	if m == nil {
		return
	}
	m.OrderValue.Observe(v)
}

func (m *CheckoutMetrics) Notification(kind, status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, status).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
