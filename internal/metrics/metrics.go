// Package metrics holds the Prometheus collectors for the billing
// service. Everything registers on the default registry and is served
// by promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AllocationsTotal counts payment allocations by mode (auto, manual)
	// and outcome (allocated, banked, error).
	AllocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syndic_allocations_total",
		Help: "Payment allocations processed, by mode and outcome.",
	}, []string{"mode", "outcome"})

	// MonthsCoveredTotal counts months newly covered by allocations.
	MonthsCoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syndic_months_covered_total",
		Help: "Whole months covered by payment allocations.",
	})

	// MonthsSkippedTotal counts already-paid months skipped during
	// manual allocations.
	MonthsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syndic_months_skipped_total",
		Help: "Candidate months skipped because they were already paid.",
	})

	// AlertsRaisedTotal counts unpaid alerts created by the detector.
	AlertsRaisedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syndic_alerts_raised_total",
		Help: "Unpaid alerts raised by the threshold detector.",
	})

	// HTTPDuration observes request latency by route pattern and status.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "syndic_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)
