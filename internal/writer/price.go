package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/dex-scanner/internal/metrics"
	"github.com/rickgao/dex-scanner/internal/model"
	"github.com/rickgao/dex-scanner/internal/router"
)

const createPriceTicks = `
	CREATE TABLE IF NOT EXISTS price_ticks (
		id            UUID PRIMARY KEY,
		scanner_table TEXT NOT NULL,
		row_id        TEXT NOT NULL,
		chain         TEXT NOT NULL,
		pair_address  TEXT NOT NULL,
		token_address TEXT NOT NULL,
		price_usd     DOUBLE PRECISION NOT NULL,
		mcap          DOUBLE PRECISION NOT NULL,
		flash         TEXT NOT NULL,
		observed_at   BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS price_ticks_row_time ON price_ticks (row_id, observed_at);
`

// PriceWriter consumes PriceRecords from a queue and writes them to the
// price_ticks table.
type PriceWriter struct {
	cfg     WriterConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Input from the engines' price observers
	input *router.Queue[PriceRecord]

	// Database, nil when persistence is disabled
	db DB

	// Batching
	batch   []priceRow
	batchMu sync.Mutex

	// Lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats WriterMetrics
}

// NewPriceWriter creates a new PriceWriter.
func NewPriceWriter(
	cfg WriterConfig,
	input *router.Queue[PriceRecord],
	db DB,
	m *metrics.Metrics,
	logger *slog.Logger,
) *PriceWriter {
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceWriter{
		cfg:     cfg,
		input:   input,
		db:      db,
		metrics: m,
		logger:  logger,
		batch:   make([]priceRow, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the price_ticks table if it does not exist.
func (w *PriceWriter) EnsureSchema(ctx context.Context) error {
	if w.db == nil {
		return nil
	}
	if _, err := w.db.Exec(ctx, createPriceTicks); err != nil {
		return fmt.Errorf("create price_ticks: %w", err)
	}
	return nil
}

// Start begins consuming records and writing to the database.
func (w *PriceWriter) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop(ctx)

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop(ctx)

	w.logger.Info("price writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"persist", w.db != nil,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes what was queued.
func (w *PriceWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping price writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("price writer stopped")
	case <-ctx.Done():
		w.logger.Warn("price writer stop timed out")
	}

	// Final flush of anything still queued
	for _, rec := range w.input.Drain(0) {
		w.add(rec)
	}
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *PriceWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *PriceWriter) consumeLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		rec, ok := w.input.Pop(ctx)
		if !ok {
			return
		}
		if w.add(rec) {
			w.flush(ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *PriceWriter) flushLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// add appends a record to the batch and reports whether the batch is full.
func (w *PriceWriter) add(rec PriceRecord) bool {
	row := transform(rec)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts a PriceRecord to a priceRow.
func transform(rec PriceRecord) priceRow {
	u := rec.Update
	flash := string(u.Flash)
	if u.Flash == model.FlashNone {
		flash = "none"
	}
	return priceRow{
		ID:           uuid.NewString(),
		Table:        rec.Table,
		RowID:        string(u.RowID),
		Chain:        model.ChainName(u.ChainID),
		PairAddress:  u.PairAddress,
		TokenAddress: u.TokenAddress,
		PriceUsd:     u.PriceUsd,
		Mcap:         u.Mcap,
		Flash:        flash,
		ObservedAt:   u.ObservedAt.UnixMicro(),
	}
}

// flush writes the current batch to the database.
func (w *PriceWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]priceRow, 0, w.cfg.BatchSize)

	if w.db == nil {
		w.stats.Skipped += int64(len(batch))
		w.stats.Flushes++
		w.batchMu.Unlock()
		return
	}
	w.batchMu.Unlock()

	// The final flush runs after the writer context is cancelled.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}

	start := time.Now()
	conflicts, err := w.batchInsert(ctx, batch)
	w.metrics.RecordWrite(len(batch)-conflicts, time.Since(start).Seconds(), err)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed price ticks",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *PriceWriter) batchInsert(ctx context.Context, rows []priceRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO price_ticks (id, scanner_table, row_id, chain, pair_address, token_address, price_usd, mcap, flash, observed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Table, r.RowID, r.Chain, r.PairAddress, r.TokenAddress, r.PriceUsd, r.Mcap, r.Flash, r.ObservedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
