// Package monitoring registers the Prometheus collectors shared by the
// HTTP layer and the services.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ClaimsTotal counts claim-path operations by outcome (ok or an error code).
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_claims_total",
			Help: "Claim, raffle entry and payment info operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	SyncRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_sync_rows_total",
			Help: "Metric sync rows by outcome",
		},
		[]string{"outcome"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_notifications_total",
			Help: "Notification deliveries by outcome",
		},
		[]string{"outcome"},
	)

	LifecycleTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_lifecycle_transitions_total",
			Help: "Scheduled boost and discount transitions",
		},
		[]string{"transition"},
	)
)

// Outcome labels a result for the counters above.
func Outcome(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}
