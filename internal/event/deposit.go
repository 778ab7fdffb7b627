package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// DepositCollateral credits collateral pulled from the caller's wallet.
type DepositCollateral struct {
	OperationID uuid.UUID
	Account     uuid.UUID
	Asset       string
	Amount      *big.Int // asset-scaled
	Timestamp   time.Time
}

func (d *DepositCollateral) IdempotencyKey() string {
	return d.OperationID.String()
}

func (d *DepositCollateral) EventType() EventType {
	return EventTypeDepositCollateral
}

func (d *DepositCollateral) AssetSymbol() *string {
	return &d.Asset
}

func (d *DepositCollateral) SourceSequence() int64 {
	return 0
}
