package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"DscLedger/internal/event"
	"DscLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Output mirrors the data the projection worker needs from one applied
// event. The shell bridges core.Output into this, stringifying journal
// amounts on the way.
type Output struct {
	Sequence       int64
	EventType      event.EventType
	Asset          *string
	IdempotencyKey string
	Timestamp      time.Time
	Payload        []byte
	Journals       []JournalEntry
	Receipt        *LiquidationRecord
}

// JournalEntry is a simplified journal for projection consumption.
// Amount is a decimal string.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        string
}

// Worker updates projection tables from processed events. The feed
// channel is non-blocking with drop on the core side; if projections
// fall behind or drop, they can be rebuilt from the event log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan Output, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("projection"),
	}
}

// LastSequence returns the highest sequence this worker has processed.
func (w *Worker) LastSequence() int64 {
	return w.lastSeq
}

// Run starts the projection worker loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			if err := w.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent and rebuildable,
				// so a failed update is logged and skipped.
				w.log.Warn().
					Int64("sequence", output.Sequence).
					Err(err).
					Msg("projection update failed")
				if w.metrics != nil {
					w.metrics.ProjectionErrors.Inc()
				}
			}

			w.lastSeq = output.Sequence
		}
	}
}

func (w *Worker) processOutput(ctx context.Context, output Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.Journals {
		if err := w.updateBalanceProjection(ctx, tx, output.Sequence, j); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	rows, err := operationHistoryRows(output)
	if err != nil {
		return fmt.Errorf("operation history: %w", err)
	}
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.operation_history
				(sequence, account, event_type, asset, amount, idempotency_key, timestamp)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
			ON CONFLICT (sequence, account) DO NOTHING
		`, r.Sequence, r.Account, r.EventType, r.Asset, r.Amount, r.IdempotencyKey, r.Timestamp); err != nil {
			return fmt.Errorf("operation history insert: %w", err)
		}
	}

	if output.Receipt != nil {
		if err := w.insertLiquidation(ctx, tx, output.Sequence, *output.Receipt); err != nil {
			return fmt.Errorf("liquidation history: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (w *Worker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, seq int64, j JournalEntry) error {
	// Debit account: balance increases (debit-positive convention,
	// matching the in-memory tracker).
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3::numeric, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	// Credit account: balance decreases.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -($3::numeric), $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3::numeric, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func (w *Worker) insertLiquidation(ctx context.Context, tx *sql.Tx, seq int64, r LiquidationRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.liquidation_history
			(sequence, operation_id, liquidator, target, asset,
			 debt_covered, collateral_seized, health_before, health_after, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10)
		ON CONFLICT (sequence) DO NOTHING
	`, seq, r.OperationID, r.Liquidator, r.Target, r.Asset,
		r.DebtCovered, r.CollateralSeized, r.HealthBefore, r.HealthAfter, r.Timestamp)
	return err
}

// RebuildProjections rebuilds the balance projection from the event
// log after truncating every projection table. Used by operators when
// drops have accumulated or a migration changed the read model.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.operation_history`,
		`TRUNCATE projections.liquidation_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Debit side adds, credit side subtracts.
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.liquidation_history
			(sequence, operation_id, liquidator, target, asset,
			 debt_covered, collateral_seized, health_before, health_after, timestamp)
		SELECT sequence, operation_id, liquidator, target, asset,
		       debt_covered, collateral_seized, health_before, health_after, timestamp
		FROM event_log.liquidation_receipts
		ON CONFLICT (sequence) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("rebuild liquidation history: %w", err)
	}

	return nil
}
