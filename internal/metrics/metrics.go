// Package metrics defines Prometheus metrics for the audit ledger.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditledger_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditledger_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	BlocksSealed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auditledger_blocks_sealed_total",
			Help: "Total blocks sealed since start",
		},
	)

	SealDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditledger_seal_duration_seconds",
			Help:    "Time spent sealing a block (merkle root, nonce search, signing)",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
	)

	SealFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditledger_seal_failures_total",
			Help: "Seal attempts that failed, by reason",
		},
		[]string{"reason"},
	)

	NonceIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditledger_nonce_iterations",
			Help:    "Nonce candidates tried per sealed block",
			Buckets: prometheus.ExponentialBuckets(1, 4, 12),
		},
	)

	PendingEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditledger_pending_events",
			Help: "Events buffered and not yet sealed",
		},
	)

	ChainLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditledger_chain_length",
			Help: "Number of sealed blocks including genesis",
		},
	)

	VerificationErrors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditledger_verification_errors",
			Help: "Integrity errors found by the most recent chain verification",
		},
	)

	SinkQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditledger_sink_queue_depth",
			Help: "Sealed blocks waiting to be exported",
		},
	)

	SinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditledger_sink_failures_total",
			Help: "Failed block exports by sink",
		},
		[]string{"sink"},
	)

	IntakeMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditledger_intake_messages_total",
			Help: "Kafka intake messages by result",
		},
		[]string{"result"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditledger_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		BlocksSealed, SealDuration, SealFailures, NonceIterations,
		PendingEvents, ChainLength, VerificationErrors,
		SinkQueueDepth, SinkFailures, IntakeMessages,
		WSConnections,
	)
}
