// Package metrics exposes Prometheus instrumentation for the checkout
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline counts the outcomes of the core operations. All vectors are
// registered on the default registry.
type Pipeline struct {
	CheckoutsCreated   prometheus.Counter
	CheckoutsDeduped   prometheus.Counter
	CheckoutsCompleted prometheus.Counter
	CheckoutsExpired   prometheus.Counter
	StockShortages     prometheus.Counter
	LockTimeouts       *prometheus.CounterVec
	LockWaitMS         *prometheus.HistogramVec
}

func NewPipeline(service string) *Pipeline {
	p := &Pipeline{
		CheckoutsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercore", Subsystem: service,
			Name: "checkouts_created_total",
			Help: "Checkouts persisted in PENDING_PAYMENT.",
		}),
		CheckoutsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercore", Subsystem: service,
			Name: "checkouts_deduped_total",
			Help: "Creation requests answered from an existing idempotency key.",
		}),
		CheckoutsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercore", Subsystem: service,
			Name: "checkouts_completed_total",
			Help: "Checkouts completed into payment and orders.",
		}),
		CheckoutsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercore", Subsystem: service,
			Name: "checkouts_expired_total",
			Help: "Checkouts expired by the sweeper with stock restored.",
		}),
		StockShortages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercore", Subsystem: service,
			Name: "stock_shortages_total",
			Help: "Reservations rejected for insufficient stock.",
		}),
		LockTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordercore", Subsystem: service,
			Name: "lock_timeouts_total",
			Help: "Lock waits that expired without acquisition.",
		}, []string{"resource"}),
		LockWaitMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ordercore", Subsystem: service,
			Name:      "lock_wait_duration_ms",
			Help:      "Time spent waiting for distributed locks in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"resource"}),
	}

	prometheus.MustRegister(
		p.CheckoutsCreated, p.CheckoutsDeduped, p.CheckoutsCompleted,
		p.CheckoutsExpired, p.StockShortages, p.LockTimeouts, p.LockWaitMS,
	)
	return p
}

// Handler serves the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
