package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ava_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ava_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	inboundMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ava_inbound_messages_total",
			Help: "Inbound user messages by outcome",
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ava_generation_duration_seconds",
			Help:    "Generation call duration by model and outcome",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"model", "outcome"},
	)

	paymentTriggersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ava_payment_triggers_total",
			Help: "Number of payment_trigger events emitted",
		},
	)

	paidSessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ava_paid_sessions_total",
			Help: "Number of sessions transitioned to paid",
		},
	)

	archiveWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ava_archive_writes_total",
			Help: "Transcript archival attempts by outcome",
		},
		[]string{"outcome"},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ava_active_connections",
			Help: "Number of open client WebSocket connections",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the collectors with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			inboundMessagesTotal,
			generationDuration,
			paymentTriggersTotal,
			paidSessionsTotal,
			archiveWritesTotal,
			activeConnections,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordInbound(outcome string) {
	inboundMessagesTotal.WithLabelValues(outcome).Inc()
}

func RecordGeneration(model, outcome string, duration time.Duration) {
	generationDuration.WithLabelValues(model, outcome).Observe(duration.Seconds())
}

func RecordPaymentTrigger() { paymentTriggersTotal.Inc() }

func RecordPaid() { paidSessionsTotal.Inc() }

func RecordArchive(outcome string) {
	archiveWritesTotal.WithLabelValues(outcome).Inc()
}

func ConnectionOpened() { activeConnections.Inc() }

func ConnectionClosed() { activeConnections.Dec() }
