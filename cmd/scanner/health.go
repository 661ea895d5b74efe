package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/dex-scanner/internal/metrics"
	"github.com/rickgao/dex-scanner/internal/model"
	"github.com/rickgao/dex-scanner/internal/version"
)

// rowView is a published row with its flash resolved against the clock.
type rowView struct {
	model.Row
	FlashActive model.Flash `json:"flash_active"`
}

// createHealthHandler creates the HTTP handler for health checks, row
// inspection and metrics.
func createHealthHandler(metricsPath string, tables []*table, pool *pgxpool.Pool, g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, metrics.Handler(g))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Version    version.Info   `json:"version"`
			Components map[string]any `json:"components"`
			Tables     []tableStatus  `json:"tables"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		// Check database
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		// A table with no rows, or realtime on without an open stream, is degraded
		for _, t := range tables {
			st := t.status()
			health.Tables = append(health.Tables, st)
			if health.Status != "healthy" {
				continue
			}
			if st.Engine.Rows == 0 || (st.Realtime && st.Socket != "open") {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/rows", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("table")
		var t *table
		for _, candidate := range tables {
			if candidate.cfg.Name == name {
				t = candidate
				break
			}
		}
		if t == nil {
			http.Error(w, "unknown table "+strconv.Quote(name), http.StatusNotFound)
			return
		}

		limit := 100
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				limit = n
			}
		}

		rows := t.engine.Rows()
		count := len(rows)
		if len(rows) > limit {
			rows = rows[:limit]
		}

		now := t.engine.Now()
		window := t.engine.FlashWindow()
		views := make([]rowView, len(rows))
		for i, row := range rows {
			views[i] = rowView{Row: row, FlashActive: row.FlashActive(now, window)}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"table":   name,
			"count":   count,
			"showing": len(views),
			"rows":    views,
		})
	})

	return mux
}
