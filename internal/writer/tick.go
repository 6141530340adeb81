package writer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/visvasity/topic"

	"github.com/rickgao/livefeed/internal/feedstore"
	"github.com/rickgao/livefeed/internal/model"
)

// ErrNoDatabase is recorded when a flush runs without a database.
var ErrNoDatabase = errors.New("writer has no database")

// maxPendingBatches bounds how many batches of failed rows are kept for retry.
const maxPendingBatches = 10

const insertTick = `
	INSERT INTO live_ticks (id, ts, symbol, price, latest_decision_id, latest_decision, received_at)
	VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
	ON CONFLICT (symbol, ts) DO NOTHING
`

// TickWriter follows a feed store and writes each new payload to live_ticks.
type TickWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input
	source feedstore.Reader

	// Database
	db BatchSender

	// Batching
	batch       []tickRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker
	last        model.LivePayload
	seen        bool

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics  WriterMetrics
	observer Observer
}

// TickOption configures a TickWriter.
type TickOption func(*TickWriter)

// WithObserver reports flush outcomes to o.
func WithObserver(o Observer) TickOption {
	return func(w *TickWriter) { w.observer = o }
}

// NewTickWriter creates a new TickWriter.
func NewTickWriter(
	cfg WriterConfig,
	source feedstore.Reader,
	db BatchSender,
	logger *slog.Logger,
	opts ...TickOption,
) *TickWriter {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	w := &TickWriter{
		cfg:    cfg,
		source: source,
		db:     db,
		logger: logger,
		batch:  make([]tickRow, 0, cfg.BatchSize),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins consuming snapshots and writing to the database.
func (w *TickWriter) Start(ctx context.Context) error {
	// Unbounded queue: every payload is recorded even if a flush is slow.
	receiver, err := w.source.Subscribe(0)
	if err != nil {
		return err
	}
	updates, err := topic.ReceiveCh(receiver)
	if err != nil {
		receiver.Close()
		return err
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop(receiver, updates)

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("tick writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *TickWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping tick writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("tick writer stopped")
	case <-ctx.Done():
		w.logger.Warn("tick writer stop timed out")
	}

	// Final flush, bounded by the caller's deadline.
	w.flushWith(ctx)

	return nil
}

// Stats returns current metrics.
func (w *TickWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads store snapshots and accumulates batches.
func (w *TickWriter) consumeLoop(receiver *topic.Receiver[feedstore.Snapshot], updates <-chan feedstore.Snapshot) {
	defer w.wg.Done()
	defer receiver.Close()

	for {
		select {
		case <-w.ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if snap.Latest != nil {
				w.handlePayload(*snap.Latest, snap.UpdatedAt)
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *TickWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// handlePayload adds a payload to the batch unless it was already queued.
// Status-only snapshots repeat the previous payload and are skipped here.
func (w *TickWriter) handlePayload(p model.LivePayload, receivedAt time.Time) {
	w.batchMu.Lock()
	if w.seen && w.last.Equal(p) {
		w.metrics.Skipped++
		w.batchMu.Unlock()
		return
	}
	w.last = p.Clone()
	w.seen = true
	w.batch = append(w.batch, w.transform(p, receivedAt))
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a payload to a tickRow.
func (w *TickWriter) transform(p model.LivePayload, receivedAt time.Time) tickRow {
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	return tickRow{
		ID:               uuid.NewString(),
		Ts:               p.Timestamp,
		Symbol:           p.Symbol,
		Price:            p.Price.String(),
		LatestDecisionID: p.LatestDecisionID,
		LatestDecision:   p.LatestDecisionLabel,
		ReceivedAt:       receivedAt,
	}
}

func (w *TickWriter) flush() {
	w.flushWith(w.ctx)
}

// flushWith writes the current batch to the database.
func (w *TickWriter) flushWith(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]tickRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if w.observer != nil {
		w.observer.Flushed(len(batch)-conflicts, conflicts, err)
	}
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.requeue(batch)
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed ticks",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// requeue puts rows from a failed flush back ahead of newer rows. The oldest
// rows are dropped once more than maxPendingBatches batches are pending.
func (w *TickWriter) requeue(rows []tickRow) {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	w.metrics.Errors++
	pending := append(rows, w.batch...)
	if over := len(pending) - w.cfg.BatchSize*maxPendingBatches; over > 0 {
		w.logger.Warn("dropping unwritten ticks", "count", over)
		w.metrics.Dropped += int64(over)
		pending = pending[over:]
	}
	w.batch = pending
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *TickWriter) batchInsert(ctx context.Context, rows []tickRow) (conflicts int, err error) {
	if w.db == nil {
		return 0, ErrNoDatabase
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertTick, r.ID, r.Ts, r.Symbol, r.Price, r.LatestDecisionID, r.LatestDecision, r.ReceivedAt)
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
