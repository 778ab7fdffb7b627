package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// RedeemCollateral releases deposited collateral back to the caller's wallet.
type RedeemCollateral struct {
	OperationID uuid.UUID
	Account     uuid.UUID
	Asset       string
	Amount      *big.Int // asset-scaled
	Timestamp   time.Time
}

func (r *RedeemCollateral) IdempotencyKey() string {
	return r.OperationID.String()
}

func (r *RedeemCollateral) EventType() EventType {
	return EventTypeRedeemCollateral
}

func (r *RedeemCollateral) AssetSymbol() *string {
	return &r.Asset
}

func (r *RedeemCollateral) SourceSequence() int64 {
	return 0
}
