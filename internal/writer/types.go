package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/dex-scanner/internal/model"
)

// WriterConfig holds batching settings.
type WriterConfig struct {
	BatchSize     int           // Flush when the batch reaches this size
	FlushInterval time.Duration // Flush at least this often
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: time.Second,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Skipped   int64 // Rows dropped because no database is configured
	Flushes   int64
}

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PriceRecord is one queued price change tagged with its table.
type PriceRecord struct {
	Table  string
	Update model.PriceUpdate
}

// priceRow is the database shape of a price tick.
type priceRow struct {
	ID           string
	Table        string
	RowID        string
	Chain        string
	PairAddress  string
	TokenAddress string
	PriceUsd     float64
	Mcap         float64
	Flash        string
	ObservedAt   int64 // Unix microseconds
}
