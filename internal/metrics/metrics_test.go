package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordFrame("t", "tick")
	m.RecordParseError("t")
	m.RecordUnknownRow("t", "tick")
	m.RecordSend("t", "subscribe-pair")
	m.RecordPublish("t", 1, 1)
	m.SetSubscriptions("t", 1)
	m.RecordSnapshotPage("t", 0.1)
	m.RecordSnapshotError("t", "blocked")
	m.RecordConnectError("t")
	m.RecordWrite(1, 0.1, nil)
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("test", reg)

	m.RecordFrame("trending", "tick")
	m.RecordFrame("trending", "tick")
	m.RecordPublish("trending", 42, 10)
	m.RecordWrite(5, 0.01, nil)
	m.RecordWrite(3, 0.01, errors.New("db down"))

	if got := testutil.ToFloat64(m.StreamFrames.WithLabelValues("trending", "tick")); got != 2 {
		t.Errorf("frames = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Rows.WithLabelValues("trending")); got != 42 {
		t.Errorf("rows = %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.Subscriptions.WithLabelValues("trending")); got != 10 {
		t.Errorf("subscriptions = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.WriterRows); got != 5 {
		t.Errorf("writer rows = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.WriterErrors); got != 1 {
		t.Errorf("writer errors = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("test", reg)
	m.RecordParseError("new")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_stream_parse_errors_total{table="new"} 1`) {
		t.Errorf("metrics output missing parse error counter:\n%s", rec.Body.String())
	}
}
