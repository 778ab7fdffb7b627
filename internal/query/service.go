package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Service provides read-only access to the projection tables.
// Projections lag the core by design, so every response carries
// as_of_sequence: the highest sequence the read model reflects.
// Live-state queries (balances, health factor) go through the engine's
// View path instead and do not live here.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetOperationHistory returns an account's operations, newest first,
// with cursor pagination on sequence.
func (s *Service) GetOperationHistory(
	ctx context.Context,
	account uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]OperationHistoryEntry, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT sequence, event_type, asset, amount::text, idempotency_key, timestamp
		FROM projections.operation_history
		WHERE account = $1
	`
	args := []interface{}{account}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []OperationHistoryEntry
	for rows.Next() {
		var h OperationHistoryEntry
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.Sequence, &h.EventType, &h.Asset, &h.Amount,
			&h.IdempotencyKey, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetLiquidationHistory returns completed liquidations, newest first.
// A nil account returns the global feed; otherwise liquidations where
// the account was either side.
func (s *Service) GetLiquidationHistory(
	ctx context.Context,
	account *uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]LiquidationHistoryEntry, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT sequence, operation_id, liquidator, target, asset,
		       debt_covered::text, collateral_seized::text,
		       health_before::text, health_after::text, timestamp
		FROM projections.liquidation_history
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if account != nil {
		query += fmt.Sprintf(" AND (liquidator = $%d OR target = $%d)", argIdx, argIdx)
		args = append(args, *account)
		argIdx++
	}

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []LiquidationHistoryEntry
	for rows.Next() {
		var h LiquidationHistoryEntry
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.Sequence, &h.OperationID, &h.Liquidator, &h.Target, &h.Asset,
			&h.DebtCovered, &h.CollateralSeized,
			&h.HealthBefore, &h.HealthAfter, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetJournalHistory returns journal entries touching an account's
// sub-accounts, with cursor pagination.
func (s *Service) GetJournalHistory(
	ctx context.Context,
	account uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", account)

	query := `
		SELECT journal_id, batch_id, operation_ref, sequence,
		       debit_account, credit_account, asset_id, amount::text, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.OperationRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// VerifyIntegrity checks hash chain continuity in the event log and
// the zero-sum invariant in the balance projection.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	report.AsOfSequence = asOfSeq

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e2.sequence IS NOT NULL AND e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance)::text AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total string
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
