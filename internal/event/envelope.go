package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePriceUpdate
	EventTypeDepositCollateral
	EventTypeRedeemCollateral
	EventTypeMintDsc
	EventTypeBurnDsc
	EventTypeDepositAndMint
	EventTypeRedeemForDsc
	EventTypeLiquidate
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key (operation ID for caller operations,
	// asset:feed-sequence for price updates)
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Asset context (nil for pure debt operations)
	Asset *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation (price feeds)
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// AssetSymbol returns the asset context (nil for pure debt operations)
	AssetSymbol() *string

	// SourceSequence returns the upstream ordering key (0 for caller
	// operations, feed sequence for price updates)
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeDepositCollateral:
		return "DepositCollateral"
	case EventTypeRedeemCollateral:
		return "RedeemCollateral"
	case EventTypeMintDsc:
		return "MintDsc"
	case EventTypeBurnDsc:
		return "BurnDsc"
	case EventTypeDepositAndMint:
		return "DepositAndMint"
	case EventTypeRedeemForDsc:
		return "RedeemForDsc"
	case EventTypeLiquidate:
		return "Liquidate"
	default:
		return "Unknown"
	}
}
