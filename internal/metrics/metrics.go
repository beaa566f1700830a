package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationsTotal counts reservation lifecycle outcomes
	// (reserved, rejected, committed, released, expired).
	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_reservations_total",
			Help: "Total number of reservation ledger outcomes",
		},
		[]string{"outcome"},
	)

	// OrdersTotal counts order state transitions by resulting status.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_orders_total",
			Help: "Total number of order transitions by new status",
		},
		[]string{"status"},
	)

	// ReturnsTotal counts return workflow transitions by resulting status.
	ReturnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_returns_total",
			Help: "Total number of return request transitions by new status",
		},
		[]string{"status"},
	)

	// RefundAmount observes refunded amounts in major currency units.
	RefundAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fulfillment_refund_amount",
			Help:    "Refund amounts in major currency units",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	// GatewayRequestsTotal counts payment gateway calls by operation and outcome.
	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_gateway_requests_total",
			Help: "Total number of payment gateway requests",
		},
		[]string{"operation", "outcome"},
	)

	// GatewayBreakerState tracks the gateway circuit breaker
	// (0=closed, 1=open, 2=half-open).
	GatewayBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fulfillment_gateway_breaker_state",
			Help: "Payment gateway circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)
)
