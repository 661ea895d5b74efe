package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/dex-scanner/internal/api"
	"github.com/rickgao/dex-scanner/internal/config"
	"github.com/rickgao/dex-scanner/internal/database"
	"github.com/rickgao/dex-scanner/internal/metrics"
	"github.com/rickgao/dex-scanner/internal/router"
	"github.com/rickgao/dex-scanner/internal/version"
	"github.com/rickgao/dex-scanner/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting scanner",
		"version", version.String(),
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
		"tables", len(cfg.Tables),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("", reg)

	// Optional database for price history
	var pool *pgxpool.Pool
	var db writer.DB
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		db = pool
		logger.Info("database connected")
	}

	// Price writer
	prices := router.NewQueue[writer.PriceRecord](cfg.Writers.BufferSize)
	priceWriter := writer.NewPriceWriter(writer.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}, prices, db, m, logger)
	if err := priceWriter.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	if err := priceWriter.Start(ctx); err != nil {
		logger.Error("failed to start price writer", "error", err)
		os.Exit(1)
	}

	// Create API client
	apiClient := api.NewClient(
		cfg.API.RestURL,
		cfg.API.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
	)

	tables := make([]*table, 0, len(cfg.Tables))
	for _, tc := range cfg.Tables {
		tables = append(tables, newTable(cfg, tc, apiClient, m, logger))
	}

	// Start health server early so we can monitor load progress
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHealthHandler(cfg.Metrics.Path, tables, pool, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	for _, t := range tables {
		t.start(ctx, prices)
	}

	logger.Info("scanner running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, t := range tables {
		t.stop(shutdownCtx)
	}
	prices.Close()
	if err := priceWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("price writer stop", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("scanner stopped", "writer", priceWriter.Stats())
}

// loadConfig reads path, or returns the built-in defaults when path is empty.
func loadConfig(path string) (*config.ScannerConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

// newLogger builds a text or JSON slog handler at the configured level.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
