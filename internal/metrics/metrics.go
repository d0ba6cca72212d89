package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one process. Build it with New against the
// registry served on /metrics; tests pass a fresh prometheus.NewRegistry().
type Metrics struct {
	// CheckoutsTotal tracks checkouts by outcome code ("ok" on success)
	CheckoutsTotal *prometheus.CounterVec

	// VerificationsTotal tracks payment callbacks by outcome
	VerificationsTotal *prometheus.CounterVec

	// GatewayRequestsTotal tracks gateway calls by operation and result
	GatewayRequestsTotal *prometheus.CounterVec

	// CircuitBreakerState tracks breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState *prometheus.GaugeVec

	ExpiredOrdersTotal   prometheus.Counter
	RestoredUnitsTotal   prometheus.Counter
	SweepFailuresTotal   prometheus.Counter
	EventPublishFailures *prometheus.CounterVec

	RequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CheckoutsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkouts_total",
				Help: "Total number of checkout attempts by outcome",
			},
			[]string{"outcome"},
		),
		VerificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_verifications_total",
				Help: "Total number of payment verification callbacks by outcome",
			},
			[]string{"outcome"},
		),
		GatewayRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_gateway_requests_total",
				Help: "Total number of payment gateway calls",
			},
			[]string{"operation", "result"},
		),
		CircuitBreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"circuit_name"},
		),
		ExpiredOrdersTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "expired_orders_total",
			Help: "Total number of pending orders failed by the expiry sweep",
		}),
		RestoredUnitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "restored_stock_units_total",
			Help: "Total number of stock units returned by the expiry sweep",
		}),
		SweepFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "expiry_sweep_failures_total",
			Help: "Total number of orders the expiry sweep failed to process",
		}),
		EventPublishFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_publish_failures_total",
				Help: "Total number of domain events that could not be published",
			},
			[]string{"event"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}
