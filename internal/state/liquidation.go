package state

import (
	"math/big"
	"time"

	"DscLedger/internal/ledger"
	"DscLedger/internal/wad"

	"github.com/google/uuid"
)

// Seizure is the collateral outcome of covering a slice of debt.
type Seizure struct {
	Base  *big.Int // collateral worth exactly the covered debt
	Bonus *big.Int // liquidator incentive on top
	Total *big.Int // Base + Bonus, what actually moves
}

// SeizureFor prices debtToCover (wad USD) in units of the given
// collateral asset and adds the liquidation bonus. The base conversion
// truncates first, then the bonus truncates again, so the total never
// rounds in the liquidator's favor.
func SeizureFor(prices PriceConverter, assetID ledger.AssetID, debtToCover *big.Int) (Seizure, error) {
	base, err := prices.TokenAmountFromUsd(assetID, debtToCover)
	if err != nil {
		return Seizure{}, err
	}
	bonus := wad.MulDiv(base, liquidationBonusBig, liquidationPrecisionBig)
	total := new(big.Int).Add(base, bonus)
	return Seizure{Base: base, Bonus: bonus, Total: total}, nil
}

// LiquidationReceipt records one completed liquidation. Receipts are
// emitted alongside the applied event for projections and the outbound
// stream; the core itself does not keep them.
type LiquidationReceipt struct {
	OperationID      uuid.UUID
	Liquidator       uuid.UUID
	Target           uuid.UUID
	Asset            string
	DebtCovered      *big.Int  // wad USD burned from the liquidator
	CollateralSeized *big.Int  // native units, bonus included
	BonusCollateral  *big.Int  // native units
	HealthBefore     *big.Int
	HealthAfter      *big.Int
	Sequence         int64
	Timestamp        time.Time
}
