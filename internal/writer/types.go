package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
	}
}

// BatchSender is the part of a pgx pool the writers use.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Observer receives the outcome of every flush.
type Observer interface {
	Flushed(inserted, conflicts int, err error)
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Skipped   int64 // payloads already recorded
	Dropped   int64 // rows evicted from the retry queue
}

// tickRow represents a row for the live_ticks table.
type tickRow struct {
	ID               string // UUID
	Ts               time.Time
	Symbol           string
	Price            string // numeric text, exact
	LatestDecisionID *int64
	LatestDecision   *string
	ReceivedAt       time.Time
}
