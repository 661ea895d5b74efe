package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/dex-scanner/internal/api"
	"github.com/rickgao/dex-scanner/internal/config"
	"github.com/rickgao/dex-scanner/internal/metrics"
)

func testTables(t *testing.T) ([]*table, *prometheus.Registry) {
	t.Helper()
	cfg := config.Default()
	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)
	client := api.NewClient("http://127.0.0.1:1", "")

	var tables []*table
	for _, tc := range cfg.Tables {
		tables = append(tables, newTable(cfg, tc, client, m, slog.Default()))
	}
	return tables, reg
}

func TestHealthHandler_Health(t *testing.T) {
	tables, reg := testTables(t)
	h := createHealthHandler("/metrics", tables, nil, reg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status string `json:"status"`
		Tables []struct {
			Name   string `json:"name"`
			Socket string `json:"socket"`
		} `json:"tables"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded for empty tables", body.Status)
	}
	if len(body.Tables) != 2 {
		t.Fatalf("len(tables) = %d, want 2", len(body.Tables))
	}
	if body.Tables[0].Name != "trending" || body.Tables[0].Socket != "disconnected" {
		t.Errorf("tables[0] = %+v, want trending/disconnected", body.Tables[0])
	}
}

func TestHealthHandler_DebugRows(t *testing.T) {
	tables, reg := testTables(t)
	h := createHealthHandler("/metrics", tables, nil, reg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/rows?table=new", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Table string `json:"table"`
		Count int    `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Table != "new" || body.Count != 0 {
		t.Errorf("body = %+v, want new with 0 rows", body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/rows?table=missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthHandler_Metrics(t *testing.T) {
	tables, reg := testTables(t)
	h := createHealthHandler("/metrics", tables, nil, reg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestNewLogger(t *testing.T) {
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	if logger.Enabled(t.Context(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(t.Context(), slog.LevelWarn) {
		t.Error("warn should be enabled at warn level")
	}

	fallback := newLogger(config.LoggingConfig{Level: "loud"})
	if !fallback.Enabled(t.Context(), slog.LevelInfo) {
		t.Error("unknown level should fall back to info")
	}
}
