package projection

import (
	"time"

	"DscLedger/internal/event"

	"github.com/google/uuid"
)

// LiquidationRecord is a serialized liquidation receipt. Numeric
// fields are decimal strings.
type LiquidationRecord struct {
	OperationID      string
	Liquidator       uuid.UUID
	Target           uuid.UUID
	Asset            string
	DebtCovered      string
	CollateralSeized string
	HealthBefore     string
	HealthAfter      string
	Timestamp        time.Time
}

// historyRow is one projections.operation_history insert.
type historyRow struct {
	Sequence       int64
	Account        uuid.UUID
	EventType      string
	Asset          *string
	Amount         string
	IdempotencyKey string
	Timestamp      time.Time
}

// operationHistoryRows extracts per-account history rows from an
// applied event. Price updates produce none; liquidations produce one
// row for each side. Compound operations record their collateral leg;
// the journal carries the full breakdown.
func operationHistoryRows(output Output) ([]historyRow, error) {
	if output.EventType == event.EventTypePriceUpdate {
		return nil, nil
	}

	evt, err := event.Decode(output.EventType, output.Payload)
	if err != nil {
		return nil, err
	}

	base := historyRow{
		Sequence:       output.Sequence,
		EventType:      output.EventType.String(),
		Asset:          output.Asset,
		IdempotencyKey: output.IdempotencyKey,
		Timestamp:      output.Timestamp,
	}

	switch e := evt.(type) {
	case *event.DepositCollateral:
		base.Account = e.Account
		base.Amount = e.Amount.String()
		return []historyRow{base}, nil

	case *event.RedeemCollateral:
		base.Account = e.Account
		base.Amount = e.Amount.String()
		return []historyRow{base}, nil

	case *event.MintDsc:
		base.Account = e.Account
		base.Amount = e.Amount.String()
		return []historyRow{base}, nil

	case *event.BurnDsc:
		base.Account = e.Account
		base.Amount = e.Amount.String()
		return []historyRow{base}, nil

	case *event.DepositAndMint:
		base.Account = e.Account
		base.Amount = e.DepositAmount.String()
		return []historyRow{base}, nil

	case *event.RedeemForDsc:
		base.Account = e.Account
		base.Amount = e.RedeemAmount.String()
		return []historyRow{base}, nil

	case *event.Liquidate:
		liq := base
		liq.Account = e.Liquidator
		liq.Amount = e.DebtToCover.String()

		tgt := base
		tgt.Account = e.Target
		tgt.Amount = e.DebtToCover.String()

		return []historyRow{liq, tgt}, nil
	}

	return nil, nil
}
