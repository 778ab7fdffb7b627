package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// MintDsc issues stable-asset debt to the caller.
type MintDsc struct {
	OperationID uuid.UUID
	Account     uuid.UUID
	Amount      *big.Int // wad-scaled
	Timestamp   time.Time
}

func (m *MintDsc) IdempotencyKey() string {
	return m.OperationID.String()
}

func (m *MintDsc) EventType() EventType {
	return EventTypeMintDsc
}

func (m *MintDsc) AssetSymbol() *string {
	return nil
}

func (m *MintDsc) SourceSequence() int64 {
	return 0
}
