package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	messagesSentTotal           *prometheus.CounterVec
	messageEditsTotal           prometheus.Counter
	notificationsPublishedTotal *prometheus.CounterVec
	sseClientsActive            prometheus.Gauge
	feedConnectionsTotal        prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total number of messages stored, labelled by notification kind.",
		}, []string{"kind"})

		messageEditsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "message_edits_total",
			Help: "Total number of body-changing message edits.",
		})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Total number of notifications dispatched to users.",
		}, []string{"kind"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_sse_clients_active",
			Help: "Number of currently connected SSE notification clients.",
		})

		feedConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feed_connections_total",
			Help: "Total number of websocket feed connections accepted.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			messagesSentTotal,
			messageEditsTotal,
			notificationsPublishedTotal,
			sseClientsActive,
			feedConnectionsTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// MessagesSentTotal exposes the counter for stored messages.
func MessagesSentTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// MessageEditsTotal exposes the counter for message edits.
func MessageEditsTotal() prometheus.Counter {
	RegisterMetrics()
	return messageEditsTotal
}

// NotificationsPublishedTotal exposes the counter for dispatched notifications.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}

// SSEClientsActive exposes the gauge of connected SSE clients.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// FeedConnectionsTotal exposes the counter of accepted feed connections.
func FeedConnectionsTotal() prometheus.Counter {
	RegisterMetrics()
	return feedConnectionsTotal
}
