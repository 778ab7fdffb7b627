package event

import (
	"encoding/json"
	"fmt"
)

// Decode turns a stored envelope payload back into the typed event it
// was marshalled from. Replay depends on this round-trip being exact:
// the payload is json.Marshal of the typed event, so decoding into the
// same struct reproduces the inputs the engine saw the first time.
func Decode(eventType EventType, payload []byte) (Event, error) {
	var evt Event
	switch eventType {
	case EventTypePriceUpdate:
		evt = &PriceUpdate{}
	case EventTypeDepositCollateral:
		evt = &DepositCollateral{}
	case EventTypeRedeemCollateral:
		evt = &RedeemCollateral{}
	case EventTypeMintDsc:
		evt = &MintDsc{}
	case EventTypeBurnDsc:
		evt = &BurnDsc{}
	case EventTypeDepositAndMint:
		evt = &DepositAndMint{}
	case EventTypeRedeemForDsc:
		evt = &RedeemForDsc{}
	case EventTypeLiquidate:
		evt = &Liquidate{}
	default:
		return nil, fmt.Errorf("decode: unknown event type %d", eventType)
	}

	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return evt, nil
}

// TypeFromString maps the stored event-type name back to the
// discriminator. The inverse of EventType.String.
func TypeFromString(name string) (EventType, bool) {
	switch name {
	case "PriceUpdate":
		return EventTypePriceUpdate, true
	case "DepositCollateral":
		return EventTypeDepositCollateral, true
	case "RedeemCollateral":
		return EventTypeRedeemCollateral, true
	case "MintDsc":
		return EventTypeMintDsc, true
	case "BurnDsc":
		return EventTypeBurnDsc, true
	case "DepositAndMint":
		return EventTypeDepositAndMint, true
	case "RedeemForDsc":
		return EventTypeRedeemForDsc, true
	case "Liquidate":
		return EventTypeLiquidate, true
	default:
		return EventTypeUnknown, false
	}
}
