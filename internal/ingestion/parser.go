package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"DscLedger/internal/event"
)

// priceUpdateJSON is the wire format published by feed relays on
// dsc.prices.<asset>. Price is a decimal string in the feed's own
// scale; feed_decimals says what that scale is.
type priceUpdateJSON struct {
	Asset            string `json:"asset"`
	Price            string `json:"price"`
	FeedDecimals     uint8  `json:"feed_decimals"`
	FeedSequence     int64  `json:"feed_sequence"`
	PriceTimestampUs int64  `json:"price_timestamp_us"`
}

// ParsePriceUpdate converts a raw feed message into a typed event.
func ParsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}

	if j.Asset == "" {
		return nil, fmt.Errorf("parse PriceUpdate: missing asset")
	}

	price, ok := new(big.Int).SetString(j.Price, 10)
	if !ok {
		return nil, fmt.Errorf("parse PriceUpdate: price %q is not a decimal integer", j.Price)
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("parse PriceUpdate: non-positive price %q", j.Price)
	}

	if j.FeedSequence <= 0 {
		return nil, fmt.Errorf("parse PriceUpdate: feed_sequence must be positive, got %d", j.FeedSequence)
	}

	return &event.PriceUpdate{
		Asset:          j.Asset,
		Price:          price,
		FeedDecimals:   j.FeedDecimals,
		FeedSequence:   j.FeedSequence,
		PriceTimestamp: time.UnixMicro(j.PriceTimestampUs).UTC(),
	}, nil
}
