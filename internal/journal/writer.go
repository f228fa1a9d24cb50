package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberworks/enginelink/internal/dispatch"
	"github.com/emberworks/enginelink/internal/event"
	"github.com/emberworks/enginelink/internal/link"
)

const insertEventSQL = `
	INSERT INTO engine_events (message_id, event, name, payload, headers, event_ts, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (message_id) DO NOTHING
`

// Writer drains events from the dispatch queue and batch-inserts them into
// the engine_events table.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	input *dispatch.Queue[link.Event]
	db    *pgxpool.Pool

	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewWriter creates a journal writer reading from input.
func NewWriter(cfg Config, input *dispatch.Queue[link.Event], db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start begins draining the queue and writing batches.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts the writer down, draining whatever the queue still holds and
// flushing the final batch.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("journal writer stopped")
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
	}

	for _, evt := range w.input.Drain(0) {
		w.handleEvent(ctx, evt)
	}
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop drains the queue in batch-sized bites.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			events := w.input.Drain(w.cfg.BatchSize)
			if len(events) == 0 {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			for _, evt := range events {
				w.handleEvent(w.ctx, evt)
			}
		}
	}
}

// flushLoop flushes partial batches on the ticker.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleEvent transforms one event and adds it to the batch.
func (w *Writer) handleEvent(ctx context.Context, evt link.Event) {
	row, err := w.transform(evt)
	if err != nil {
		w.logger.Warn("skipping unjournalable event", "event", evt.Wire, "error", err)
		w.batchMu.Lock()
		w.metrics.Skipped++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(ctx)
	}
}

// transform converts a decoded event to an engine_events row. An envelope
// without a usable messageId gets a locally generated one.
func (w *Writer) transform(evt link.Event) (eventRow, error) {
	payload, err := json.Marshal(evt.Data)
	if err != nil {
		return eventRow{}, fmt.Errorf("marshal payload: %w", err)
	}

	headers := evt.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return eventRow{}, fmt.Errorf("marshal headers: %w", err)
	}

	id := headers[event.MessageIDHeader]
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		id = uuid.NewString()
	}

	row := eventRow{
		MessageID:  id,
		Event:      evt.Wire,
		Name:       string(evt.Name),
		Payload:    payload,
		Headers:    headerJSON,
		ReceivedAt: evt.ReceivedAt,
	}
	if !evt.EventTime.IsZero() {
		ts := evt.EventTime
		row.EventTs = &ts
	}
	return row, nil
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows with pgx.Batch. Rows already present count as
// conflicts.
func (w *Writer) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertEventSQL,
			r.MessageID, r.Event, r.Name, r.Payload, r.Headers, r.EventTs, r.ReceivedAt)
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
