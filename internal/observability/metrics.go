// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pipeline metrics
	TicksTotal    *prometheus.CounterVec
	TickDuration  *prometheus.HistogramVec
	EventsFetched *prometheus.CounterVec
	VenueErrors   *prometheus.CounterVec
	ActiveVenues  *prometheus.GaugeVec
	BarsEmitted   *prometheus.CounterVec

	// Publish metrics
	FactsPublished     *prometheus.CounterVec
	SubscriberDropped  *prometheus.CounterVec
	SinkErrors         *prometheus.CounterVec
	SubscriberQueueLen *prometheus.GaugeVec

	// Storage metrics
	CursorPersists *prometheus.CounterVec

	// Chain client metrics
	RequestLatency *prometheus.HistogramVec

	// Push metrics
	WSConnections prometheus.Gauge

	// Health metrics
	LastSuccessfulTick *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_feed"
	}

	return &Metrics{
		TicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "ticks_total",
			Help:      "Total number of pipeline ticks",
		}, []string{"pipeline"}),
		TickDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "tick_duration_seconds",
			Help:      "Pipeline tick duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"pipeline"}),
		EventsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_fetched_total",
			Help:      "Total number of ledger events fetched by kind",
		}, []string{"kind"}),
		VenueErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "venue_errors_total",
			Help:      "Total number of per-venue read failures",
		}, []string{"pipeline", "kind"}),
		ActiveVenues: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "active_venues",
			Help:      "Number of venues currently polled",
		}, []string{"pipeline"}),
		BarsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "bars_emitted_total",
			Help:      "Total number of bars emitted by resolution",
		}, []string{"resolution", "empty"}),

		FactsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "facts_published_total",
			Help:      "Total number of facts published by topic",
		}, []string{"topic"}),
		SubscriberDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "subscriber_dropped_total",
			Help:      "Total number of messages dropped on full subscriber queues",
		}, []string{"subscriber"}),
		SinkErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "sink_errors_total",
			Help:      "Total number of sink delivery failures",
		}, []string{"subscriber"}),
		SubscriberQueueLen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "subscriber_queue_length",
			Help:      "Current number of queued messages per subscriber",
		}, []string{"subscriber"}),

		CursorPersists: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "cursor_persists_total",
			Help:      "Total number of cursor record writes by status",
		}, []string{"status"}),

		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aptos",
			Name:      "request_latency_seconds",
			Help:      "Aptos REST call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "ws_connections",
			Help:      "Number of open websocket connections",
		}),

		LastSuccessfulTick: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of last completed tick",
		}, []string{"pipeline"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTick records a completed pipeline tick.
func RecordTick(pipeline string, seconds float64, finishedUnix int64) {
	DefaultMetrics.TicksTotal.WithLabelValues(pipeline).Inc()
	DefaultMetrics.TickDuration.WithLabelValues(pipeline).Observe(seconds)
	DefaultMetrics.LastSuccessfulTick.WithLabelValues(pipeline).Set(float64(finishedUnix))
}

// RecordEventsFetched adds n fetched events of a kind.
func RecordEventsFetched(kind string, n int) {
	DefaultMetrics.EventsFetched.WithLabelValues(kind).Add(float64(n))
}

// RecordVenueError records a per-venue failure. kind is "unavailable",
// "not_found", "timeout" or "store".
func RecordVenueError(pipeline, kind string) {
	DefaultMetrics.VenueErrors.WithLabelValues(pipeline, kind).Inc()
}

// SetActiveVenues updates the polled venue gauge.
func SetActiveVenues(pipeline string, n int) {
	DefaultMetrics.ActiveVenues.WithLabelValues(pipeline).Set(float64(n))
}

// RecordBar records an emitted bar.
func RecordBar(resolution string, empty bool) {
	label := "false"
	if empty {
		label = "true"
	}
	DefaultMetrics.BarsEmitted.WithLabelValues(resolution, label).Inc()
}

// RecordPublished records a fact handed to the broker.
func RecordPublished(topic string) {
	DefaultMetrics.FactsPublished.WithLabelValues(topic).Inc()
}

// RecordDropped records a message dropped for a subscriber.
func RecordDropped(subscriber string) {
	DefaultMetrics.SubscriberDropped.WithLabelValues(subscriber).Inc()
}

// RecordSinkError records a failed delivery to a sink.
func RecordSinkError(subscriber string) {
	DefaultMetrics.SinkErrors.WithLabelValues(subscriber).Inc()
}

// SetQueueLength updates the queued message gauge of a subscriber.
func SetQueueLength(subscriber string, n int) {
	DefaultMetrics.SubscriberQueueLen.WithLabelValues(subscriber).Set(float64(n))
}

// RecordCursorPersist records a cursor write attempt.
func RecordCursorPersist(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.CursorPersists.WithLabelValues(status).Inc()
}

// RecordRequestLatency records Aptos REST call latency.
func RecordRequestLatency(method string, seconds float64) {
	DefaultMetrics.RequestLatency.WithLabelValues(method).Observe(seconds)
}
