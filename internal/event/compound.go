package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// DepositAndMint composes a collateral deposit and a debt mint into one
// atomic operation.
type DepositAndMint struct {
	OperationID   uuid.UUID
	Account       uuid.UUID
	Asset         string
	DepositAmount *big.Int // asset-scaled
	MintAmount    *big.Int // wad-scaled
	Timestamp     time.Time
}

func (d *DepositAndMint) IdempotencyKey() string {
	return d.OperationID.String()
}

func (d *DepositAndMint) EventType() EventType {
	return EventTypeDepositAndMint
}

func (d *DepositAndMint) AssetSymbol() *string {
	return &d.Asset
}

func (d *DepositAndMint) SourceSequence() int64 {
	return 0
}

// RedeemForDsc composes a debt burn and a collateral withdrawal into one
// atomic operation. The burn settles first so the withdrawal's health check
// sees the reduced debt.
type RedeemForDsc struct {
	OperationID  uuid.UUID
	Account      uuid.UUID
	Asset        string
	RedeemAmount *big.Int // asset-scaled
	BurnAmount   *big.Int // wad-scaled
	Timestamp    time.Time
}

func (r *RedeemForDsc) IdempotencyKey() string {
	return r.OperationID.String()
}

func (r *RedeemForDsc) EventType() EventType {
	return EventTypeRedeemForDsc
}

func (r *RedeemForDsc) AssetSymbol() *string {
	return &r.Asset
}

func (r *RedeemForDsc) SourceSequence() int64 {
	return 0
}
