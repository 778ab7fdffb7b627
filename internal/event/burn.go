package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// BurnDsc retires stable-asset debt for the caller.
type BurnDsc struct {
	OperationID uuid.UUID
	Account     uuid.UUID
	Amount      *big.Int // wad-scaled
	Timestamp   time.Time
}

func (b *BurnDsc) IdempotencyKey() string {
	return b.OperationID.String()
}

func (b *BurnDsc) EventType() EventType {
	return EventTypeBurnDsc
}

func (b *BurnDsc) AssetSymbol() *string {
	return nil
}

func (b *BurnDsc) SourceSequence() int64 {
	return 0
}
