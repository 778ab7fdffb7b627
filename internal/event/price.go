package event

import (
	"fmt"
	"math/big"
	"time"
)

// PriceUpdate represents a feed observation for one collateral asset.
type PriceUpdate struct {
	Asset          string
	Price          *big.Int // feed-scaled
	FeedDecimals   uint8
	FeedSequence   int64 // Monotonic per asset
	PriceTimestamp time.Time
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:price:%d", p.Asset, p.FeedSequence)
}

func (p *PriceUpdate) EventType() EventType {
	return EventTypePriceUpdate
}

func (p *PriceUpdate) AssetSymbol() *string {
	return &p.Asset
}

func (p *PriceUpdate) SourceSequence() int64 {
	return p.FeedSequence
}
