// Package metrics provides Prometheus instrumentation for the settlement service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketpay",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ticketpay",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PaymentsProcessedTotal counts processed ticket purchases by result.
	PaymentsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketpay",
			Name:      "payments_processed_total",
			Help:      "Total payment processing attempts by result.",
		},
		[]string{"result"},
	)

	// PaymentVolume observes settled payment totals in smallest token units.
	PaymentVolume = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ticketpay",
		Name:      "payment_volume_units",
		Help:      "Settled payment totals in smallest token units.",
		Buckets:   prometheus.ExponentialBuckets(1_000, 10, 8),
	})

	// RefundsTotal counts refund requests by result.
	RefundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketpay",
			Name:      "refunds_total",
			Help:      "Total refund requests by result.",
		},
		[]string{"result"},
	)

	// TicketTransfersTotal counts ticket ownership transfers by result.
	TicketTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketpay",
			Name:      "ticket_transfers_total",
			Help:      "Total ticket transfer attempts by result.",
		},
		[]string{"result"},
	)

	// WithdrawalsTotal counts escrow withdrawals by party (organizer/platform).
	WithdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketpay",
			Name:      "withdrawals_total",
			Help:      "Total escrow withdrawals by party.",
		},
		[]string{"party"},
	)

	// WithdrawalVolume observes withdrawn amounts in smallest token units.
	WithdrawalVolume = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ticketpay",
		Name:      "withdrawal_volume_units",
		Help:      "Withdrawn amounts in smallest token units.",
		Buckets:   prometheus.ExponentialBuckets(1_000, 10, 8),
	}, []string{"party"})

	// NotificationDeliveriesTotal counts webhook deliveries by result.
	NotificationDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketpay",
			Name:      "notification_deliveries_total",
			Help:      "Total webhook notification deliveries by result.",
		},
		[]string{"result"},
	)

	// ReconciliationDriftDetected counts reconciliation runs that found drift.
	ReconciliationDriftDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketpay",
		Name:      "reconciliation_drift_detected_total",
		Help:      "Reconciliation runs that detected drift.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ticketpay",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ticketpay", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ticketpay", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ticketpay", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ticketpay", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PaymentsProcessedTotal,
		PaymentVolume,
		RefundsTotal,
		TicketTransfersTotal,
		WithdrawalsTotal,
		WithdrawalVolume,
		NotificationDeliveriesTotal,
		ReconciliationDriftDetected,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
