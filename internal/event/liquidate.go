package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Liquidate is a third party covering an unhealthy account's debt in
// exchange for bonus-adjusted collateral.
type Liquidate struct {
	OperationID uuid.UUID
	Liquidator  uuid.UUID
	Target      uuid.UUID
	Asset       string
	DebtToCover *big.Int // wad-scaled
	Timestamp   time.Time
}

func (l *Liquidate) IdempotencyKey() string {
	return l.OperationID.String()
}

func (l *Liquidate) EventType() EventType {
	return EventTypeLiquidate
}

func (l *Liquidate) AssetSymbol() *string {
	return &l.Asset
}

func (l *Liquidate) SourceSequence() int64 {
	return 0
}
