// Package metrics holds the media bot's domain collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "nyabot"

var (
	// Registrations counts account provisioning attempts by outcome.
	Registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Account registrations by outcome.",
		},
		[]string{"outcome"},
	)

	// Requests counts media request submissions by outcome (ok, duplicate, fail).
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_requests_total",
			Help:      "Media request submissions by outcome.",
		},
		[]string{"outcome"},
	)

	// Adjudications counts admin status changes by target status and outcome.
	Adjudications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adjudications_total",
			Help:      "Request adjudications by target status and outcome.",
		},
		[]string{"status", "outcome"},
	)

	// Notifications counts outbound notices by kind (arrival, status) and outcome.
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// ExternalCalls observes third-party call latency by service.
	ExternalCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Duration of calls to the media server and catalogs.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// DialogueSessions is the number of chats currently inside a flow.
	DialogueSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dialogue_sessions",
			Help:      "Chats with an active dialogue flow.",
		},
	)
)

func init() {
	prometheus.MustRegister(Registrations, Requests, Adjudications, Notifications, ExternalCalls, DialogueSessions)
}
