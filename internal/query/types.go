package query

import (
	"time"

	"github.com/google/uuid"
)

// OperationHistoryEntry is one ledger operation as seen by an account.
// Amount is a decimal string in native asset units (wad for debt
// operations).
type OperationHistoryEntry struct {
	Sequence       int64     `json:"sequence"`
	EventType      string    `json:"event_type"`
	Asset          *string   `json:"asset,omitempty"`
	Amount         string    `json:"amount"`
	IdempotencyKey string    `json:"idempotency_key"`
	Timestamp      time.Time `json:"timestamp"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}

// LiquidationHistoryEntry is one completed liquidation.
type LiquidationHistoryEntry struct {
	Sequence         int64     `json:"sequence"`
	OperationID      string    `json:"operation_id"`
	Liquidator       uuid.UUID `json:"liquidator"`
	Target           uuid.UUID `json:"target"`
	Asset            string    `json:"asset"`
	DebtCovered      string    `json:"debt_covered"`
	CollateralSeized string    `json:"collateral_seized"`
	HealthBefore     string    `json:"health_before"`
	HealthAfter      string    `json:"health_after"`
	Timestamp        time.Time `json:"timestamp"`
	AsOfSequence     int64     `json:"as_of_sequence"`
}

// JournalHistoryEntry is a journal row for API queries. Amount is a
// decimal string.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	OperationRef  string `json:"operation_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        string `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
	AsOfSequence     int64             `json:"as_of_sequence"`
}

// UnbalancedAsset is an asset whose global balance sum is non-zero.
// Imbalance is a decimal string.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance string `json:"imbalance"`
}
