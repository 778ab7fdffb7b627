package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventLogWriter writes events and journals to Postgres with multi-row
// INSERT statements. Writes are keyed on sequence (events) and
// journal_id (journals) with ON CONFLICT DO NOTHING, so re-flushing a
// batch after a retry is idempotent.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow is a row of event_log.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Asset          *string
	Payload        []byte // JSON-encoded typed event
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
	SourceSequence int64
}

// JournalRow is a row of event_log.journal. Amounts are decimal
// strings: balances are 256-bit integers and must survive the trip
// through Postgres NUMERIC without truncation.
type JournalRow struct {
	JournalID     string
	BatchID       string
	OperationRef  string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        string
	JournalType   int32
	Timestamp     int64
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch inserts event rows inside the given transaction.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, asset, payload, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*9)

	for i, e := range events {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Asset,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp, e.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch inserts journal rows inside the given transaction.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, tx *sql.Tx, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.journal
		(journal_id, batch_id, operation_ref, sequence, debit_account, credit_account, asset_id, amount, journal_type, timestamp)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*10)

	for i, j := range journals {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			j.JournalID, j.BatchID, j.OperationRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.AssetID, j.Amount,
			j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteReceipt records one liquidation receipt row. Called inside the
// same transaction as the event that produced it.
func (w *EventLogWriter) WriteReceipt(ctx context.Context, tx *sql.Tx, r ReceiptRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO event_log.liquidation_receipts
			(operation_id, sequence, liquidator, target, asset, debt_covered,
			 collateral_seized, bonus_collateral, health_before, health_after, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (operation_id) DO NOTHING
	`, r.OperationID, r.Sequence, r.Liquidator, r.Target, r.Asset, r.DebtCovered,
		r.CollateralSeized, r.BonusCollateral, r.HealthBefore, r.HealthAfter, r.Timestamp)
	return err
}

// ReceiptRow is a row of event_log.liquidation_receipts. Numeric
// fields are decimal strings for the same reason as journal amounts.
type ReceiptRow struct {
	OperationID      string
	Sequence         int64
	Liquidator       string
	Target           string
	Asset            string
	DebtCovered      string
	CollateralSeized string
	BonusCollateral  string
	HealthBefore     string
	HealthAfter      string
	Timestamp        time.Time
}
