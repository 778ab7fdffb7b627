package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeRedeem
	JournalTypeMint
	JournalTypeBurn
	JournalTypeLiquidationSeize
	JournalTypeLiquidationBurn
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeRedeem:
		return "redeem"
	case JournalTypeMint:
		return "mint"
	case JournalTypeBurn:
		return "burn"
	case JournalTypeLiquidationSeize:
		return "liquidation_seize"
	case JournalTypeLiquidationBurn:
		return "liquidation_burn"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries of one operation
	OperationRef  string      // Idempotency key of the source operation
	Sequence      int64       // Global operation sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	AssetID       AssetID     // Asset being transferred
	Amount        *big.Int    // Fixed-point amount (always positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Operation timestamp (epoch microseconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID      uuid.UUID
	OperationRef string
	Sequence     int64
	Timestamp    int64
	Journals     []Journal
}

// Validate ensures the batch is well-formed.
// Each entry is a balanced transfer by construction (a single positive amount
// moves from the credit account to the debit account), so debits equal credits
// per entry. Multi-leg operations (liquidation seize plus burn) use multiple
// entries under one batch_id, each individually balanced.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount == nil || j.Amount.Sign() <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %s", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.AssetID != j.AssetID || j.CreditAccount.AssetID != j.AssetID {
			return fmt.Errorf("journal %s moves asset %d between accounts of another asset", j.JournalID, j.AssetID)
		}
	}

	return nil
}
