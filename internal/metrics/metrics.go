package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the scanner.
type Metrics struct {
	// Stream metrics
	StreamFrames      *prometheus.CounterVec
	StreamParseErrors *prometheus.CounterVec
	UnknownRowEvents  *prometheus.CounterVec
	TransportSends    *prometheus.CounterVec
	ConnectErrors     *prometheus.CounterVec

	// Engine metrics
	Rows          *prometheus.GaugeVec
	Subscriptions *prometheus.GaugeVec
	Publishes     *prometheus.CounterVec

	// Snapshot metrics
	SnapshotPages   *prometheus.CounterVec
	SnapshotErrors  *prometheus.CounterVec
	SnapshotLatency *prometheus.HistogramVec

	// Writer metrics
	WriterRows    prometheus.Counter
	WriterErrors  prometheus.Counter
	WriterLatency prometheus.Histogram
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default Prometheus registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "dex_scanner"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		StreamFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Total number of decoded stream frames by event",
		}, []string{"table", "event"}),
		StreamParseErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "parse_errors_total",
			Help:      "Total number of malformed stream frames dropped",
		}, []string{"table"}),
		UnknownRowEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "unknown_row_events_total",
			Help:      "Total number of stream events dropped for unknown rows",
		}, []string{"table", "event"}),
		TransportSends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "sends_total",
			Help:      "Total number of outbound stream messages by event",
		}, []string{"table", "event"}),
		ConnectErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connect_errors_total",
			Help:      "Total number of failed stream connects",
		}, []string{"table"}),

		Rows: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rows",
			Help:      "Number of rows in the last published view",
		}, []string{"table"}),
		Subscriptions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "row_subscriptions",
			Help:      "Number of rows with active stream subscriptions",
		}, []string{"table"}),
		Publishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "publishes_total",
			Help:      "Total number of sorted view publishes",
		}, []string{"table"}),

		SnapshotPages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "pages_total",
			Help:      "Total number of snapshot pages ingested",
		}, []string{"table"}),
		SnapshotErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "errors_total",
			Help:      "Total number of snapshot fetch failures by kind",
		}, []string{"table", "kind"}),
		SnapshotLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "fetch_seconds",
			Help:      "Snapshot page fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),

		WriterRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "price_rows_total",
			Help:      "Total number of price updates written",
		}),
		WriterErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "errors_total",
			Help:      "Total number of failed price batch writes",
		}),
		WriterLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "flush_seconds",
			Help:      "Price batch flush latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

// Handler returns an HTTP handler serving metrics from g. A nil g uses the
// default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordFrame counts a decoded stream frame.
func (m *Metrics) RecordFrame(table, event string) {
	if m == nil {
		return
	}
	m.StreamFrames.WithLabelValues(table, event).Inc()
}

// RecordParseError counts a dropped malformed frame.
func (m *Metrics) RecordParseError(table string) {
	if m == nil {
		return
	}
	m.StreamParseErrors.WithLabelValues(table).Inc()
}

// RecordUnknownRow counts a stream event dropped for an unknown row.
func (m *Metrics) RecordUnknownRow(table, event string) {
	if m == nil {
		return
	}
	m.UnknownRowEvents.WithLabelValues(table, event).Inc()
}

// RecordSend counts an outbound stream message.
func (m *Metrics) RecordSend(table, event string) {
	if m == nil {
		return
	}
	m.TransportSends.WithLabelValues(table, event).Inc()
}

// RecordPublish records a view publish with its row and subscription counts.
func (m *Metrics) RecordPublish(table string, rows, subscriptions int) {
	if m == nil {
		return
	}
	m.Publishes.WithLabelValues(table).Inc()
	m.Rows.WithLabelValues(table).Set(float64(rows))
	m.Subscriptions.WithLabelValues(table).Set(float64(subscriptions))
}

// SetSubscriptions sets the active row subscription gauge.
func (m *Metrics) SetSubscriptions(table string, n int) {
	if m == nil {
		return
	}
	m.Subscriptions.WithLabelValues(table).Set(float64(n))
}

// RecordConnectError records a failed stream connect.
func (m *Metrics) RecordConnectError(table string) {
	if m == nil {
		return
	}
	m.ConnectErrors.WithLabelValues(table).Inc()
}

// RecordSnapshotPage records a fetched snapshot page.
func (m *Metrics) RecordSnapshotPage(table string, seconds float64) {
	if m == nil {
		return
	}
	m.SnapshotPages.WithLabelValues(table).Inc()
	m.SnapshotLatency.WithLabelValues(table).Observe(seconds)
}

// RecordSnapshotError records a failed snapshot fetch. kind is "blocked"
// or "error".
func (m *Metrics) RecordSnapshotError(table, kind string) {
	if m == nil {
		return
	}
	m.SnapshotErrors.WithLabelValues(table, kind).Inc()
}

// RecordWrite records a price batch write.
func (m *Metrics) RecordWrite(rows int, seconds float64, err error) {
	if m == nil {
		return
	}
	m.WriterLatency.Observe(seconds)
	if err != nil {
		m.WriterErrors.Inc()
		return
	}
	m.WriterRows.Add(float64(rows))
}
