// Package metrics provides Prometheus instrumentation for the sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequests counts REST calls by final outcome (ok, client_error, server_error, transport_error).
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_api_requests_total",
			Help: "REST API calls by method and final outcome",
		},
		[]string{"method", "outcome"},
	)

	// APIRetries counts retry attempts beyond the first.
	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_api_retries_total",
			Help: "REST API retry attempts",
		},
		[]string{"method"},
	)

	// APIDuration tracks total call duration including backoff waits.
	APIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_api_request_duration_seconds",
			Help:    "REST API call duration including retries",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// StreamFrames counts inbound event-stream frames by envelope type.
	StreamFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_stream_frames_total",
			Help: "Event stream frames by type",
		},
		[]string{"type"},
	)

	// StreamReconnects counts scheduled reconnect attempts.
	StreamReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_stream_reconnects_total",
			Help: "Event stream reconnect attempts",
		},
	)

	// StreamState is 0 disconnected, 1 connecting, 2 connected.
	StreamState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_stream_state",
			Help: "Event stream connection state",
		},
	)

	// NotificationsUnread tracks the aggregator's unread counter.
	NotificationsUnread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_notifications_unread",
			Help: "Unread alerts in the notification aggregator",
		},
	)

	// SSEConnectionsActive tracks UI bridge SSE subscribers.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordAPICall records the outcome and duration of one logical API call.
func RecordAPICall(method, outcome string, seconds float64) {
	APIRequests.WithLabelValues(method, outcome).Inc()
	APIDuration.WithLabelValues(method).Observe(seconds)
}
