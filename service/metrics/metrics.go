package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service. Following the
// explicit dependency injection pattern, this struct is passed to every
// component that records metrics; a nil *Metrics disables recording.
type Metrics struct {
	// Horizon API metrics
	horizonCallsTotal   *prometheus.CounterVec
	horizonCallDuration *prometheus.HistogramVec

	// Live stream metrics
	streamConnectsTotal   *prometheus.CounterVec
	streamReconnectsTotal *prometheus.CounterVec
	streamsActive         *prometheus.GaugeVec

	// Classification metrics
	transactionsProcessedTotal *prometheus.CounterVec
	recordsClassifiedTotal     *prometheus.CounterVec
	recordsSkippedTotal        *prometheus.CounterVec

	// Event bus metrics
	busEventsPublished *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	sseActiveConnections prometheus.Gauge
}

// New creates a Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		horizonCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_api_calls_total",
				Help: "Total number of Horizon API calls by operation and status",
			},
			[]string{"operation", "status", "endpoint"},
		),
		horizonCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "horizon_api_call_duration_seconds",
				Help:    "Duration of Horizon API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation", "endpoint"},
		),
		streamConnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_stream_connects_total",
				Help: "Total number of transaction stream subscriptions opened",
			},
			[]string{"endpoint"},
		),
		streamReconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_stream_reconnects_total",
				Help: "Total number of stream reconnect attempts after errors",
			},
			[]string{"account"},
		),
		streamsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "transaction_streams_active",
				Help: "Number of live transaction streams currently running by account",
			},
			[]string{"account"},
		),
		transactionsProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_processed_total",
				Help: "Total transactions run through payment classification by source",
			},
			[]string{"account", "source"}, // source: backfill|stream
		),
		recordsClassifiedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_records_classified_total",
				Help: "Total payment records produced by classification",
			},
			[]string{"account", "direction"},
		),
		recordsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_records_skipped_total",
				Help: "Total operations skipped during classification by reason",
			},
			[]string{"account", "reason"}, // reason: parse_error|not_payment
		),
		busEventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bus_events_published_total",
				Help: "Total events published on the in-process bus by topic",
			},
			[]string{"topic"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests by method, path and status",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of currently connected SSE clients",
			},
		),
	}
}

// RecordHorizonCall records one Horizon API call.
func (m *Metrics) RecordHorizonCall(operation, status, endpoint string, durationSeconds float64) {
	m.horizonCallsTotal.WithLabelValues(operation, status, endpoint).Inc()
	m.horizonCallDuration.WithLabelValues(operation, endpoint).Observe(durationSeconds)
}

// RecordStreamConnect records a stream subscription being opened.
func (m *Metrics) RecordStreamConnect(endpoint string) {
	m.streamConnectsTotal.WithLabelValues(endpoint).Inc()
}

// RecordStreamReconnect records a reconnect attempt for an account's stream.
func (m *Metrics) RecordStreamReconnect(account string) {
	m.streamReconnectsTotal.WithLabelValues(account).Inc()
}

// StreamStarted and StreamStopped track the active-streams gauge for one
// account's subscription.
func (m *Metrics) StreamStarted(account string) {
	m.streamsActive.WithLabelValues(account).Inc()
}

func (m *Metrics) StreamStopped(account string) {
	m.streamsActive.WithLabelValues(account).Dec()
}

// RecordTransactionProcessed records a transaction entering classification.
func (m *Metrics) RecordTransactionProcessed(account, source string) {
	m.transactionsProcessedTotal.WithLabelValues(account, source).Inc()
}

// RecordRecordClassified records a produced payment record.
func (m *Metrics) RecordRecordClassified(account, direction string) {
	m.recordsClassifiedTotal.WithLabelValues(account, direction).Inc()
}

// RecordRecordSkipped records an operation that produced no payment record.
func (m *Metrics) RecordRecordSkipped(account, reason string) {
	m.recordsSkippedTotal.WithLabelValues(account, reason).Inc()
}

// RecordBusPublish records one event published on the in-process bus.
func (m *Metrics) RecordBusPublish(topic string) {
	m.busEventsPublished.WithLabelValues(topic).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// SSEConnected and SSEDisconnected track the SSE connections gauge.
func (m *Metrics) SSEConnected()    { m.sseActiveConnections.Inc() }
func (m *Metrics) SSEDisconnected() { m.sseActiveConnections.Dec() }
