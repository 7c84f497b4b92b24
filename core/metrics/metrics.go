// Package metrics holds the Prometheus collectors shared by the bot runtime
// and the HTTP surface. Label sets stay bounded: update kinds, registered
// handler names, Bot API methods, route templates and numeric status codes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nyabot"

var (
	// TelegramUpdates counts inbound updates by kind (message, callback, other).
	TelegramUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_updates_total",
			Help:      "Telegram updates received by kind.",
		},
		[]string{"kind"},
	)

	// TelegramHandlerDuration observes handler latency by handler name.
	TelegramHandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "telegram_handler_duration_seconds",
			Help:      "Duration of Telegram update handlers.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	// TelegramAPICalls counts outbound Bot API requests by method and outcome.
	TelegramAPICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_api_calls_total",
			Help:      "Outbound Telegram Bot API calls by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	// TelegramPanics counts handler panics recovered by the bot runtime.
	TelegramPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_handler_panics_total",
			Help:      "Recovered panics in Telegram handlers.",
		},
		[]string{"handler"},
	)

	// SenderJobs counts outbound dispatcher jobs by action and outcome
	// (ok, retried, fail, dropped).
	SenderJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sender_jobs_total",
			Help:      "Outbound send jobs by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// SenderQueueDepth is the number of jobs waiting for a worker.
	SenderQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sender_queue_depth",
			Help:      "Outbound send jobs waiting for a worker.",
		},
	)

	// HTTPRequests counts HTTP requests by method, route template and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPLatency records request duration by method and route template.
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(TelegramUpdates, TelegramHandlerDuration, TelegramAPICalls, TelegramPanics,
		SenderJobs, SenderQueueDepth, HTTPRequests, HTTPLatency)
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
