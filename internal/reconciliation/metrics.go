package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileInventoryDrift = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ticketpay",
		Subsystem: "reconciliation",
		Name:      "inventory_drift_events",
		Help:      "Number of events with registry/payment inventory drift in last run.",
	})

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ticketpay",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketpay",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation check errors.",
	})
)

func init() {
	prometheus.MustRegister(
		reconcileInventoryDrift,
		reconcileDuration,
		reconcileErrors,
	)
}
