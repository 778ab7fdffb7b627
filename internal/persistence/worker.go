package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"DscLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Record is one applied event ready for the durable log: the event
// row, its journal rows, and the liquidation receipt if the event was
// a liquidation. The shell bridges core.Output into this shape so the
// persistence package does not import core.
type Record struct {
	EventRow    EventRow
	JournalRows []JournalRow
	Receipt     *ReceiptRow
}

// Worker drains the persist channel and batch-writes to Postgres. The
// core sends on this channel with a blocking send: if the worker falls
// behind, the core stalls rather than lose an accepted event.
type Worker struct {
	writer       *EventLogWriter
	db           *sql.DB
	inputChan    <-chan Record
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan Record,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewEventLogWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          observability.NewLogger("persistence"),
	}
}

// Run batches incoming records and flushes when the batch fills or the
// flush timeout expires. Blocks until ctx is cancelled or the input
// channel closes; either way the remaining batch is flushed first.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]Record, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case rec, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			batch = append(batch, rec)

			if len(batch) >= w.batchSize {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff, 100ms doubling to a
// 30s cap. The worker never drops a batch: it retries until the write
// succeeds or shutdown forces one final attempt.
func (w *Worker) flushWithRetry(ctx context.Context, batch []Record) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(batch)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

// flush writes one batch of events, journals and receipts in a single
// transaction, so the log never shows an event without its journal.
func (w *Worker) flush(ctx context.Context, batch []Record) error {
	start := time.Now()

	events := make([]EventRow, 0, len(batch))
	journals := make([]JournalRow, 0, len(batch)*2)
	var receipts []ReceiptRow
	for _, rec := range batch {
		events = append(events, rec.EventRow)
		journals = append(journals, rec.JournalRows...)
		if rec.Receipt != nil {
			receipts = append(receipts, *rec.Receipt)
		}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteEventBatch(ctx, tx, events); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return fmt.Errorf("write events: %w", err)
	}

	if err := w.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_journals").Inc()
		}
		return fmt.Errorf("write journals: %w", err)
	}

	for _, r := range receipts {
		if err := w.writer.WriteReceipt(ctx, tx, r); err != nil {
			if w.metrics != nil {
				w.metrics.PersistErrors.WithLabelValues("write_receipts").Inc()
			}
			return fmt.Errorf("write receipt %s: %w", r.OperationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(events)))
		w.metrics.PersistEventsWritten.Add(float64(len(events)))
		w.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		if len(events) > 0 {
			w.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
		}
	}

	return nil
}
