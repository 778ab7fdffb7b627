package state

import (
	"math/big"

	"DscLedger/internal/ledger"
	"DscLedger/internal/wad"

	"github.com/google/uuid"
)

// CollateralHolding is one asset line of an account view.
type CollateralHolding struct {
	Asset    ledger.Asset
	Amount   *big.Int // native token units
	UsdValue *big.Int // wad
}

// AccountPosition is a point-in-time view of one account. It is
// assembled on demand from balances and prices, never stored: the
// health factor is always derived, so it can never go stale against
// the ledger.
type AccountPosition struct {
	Account            uuid.UUID
	Collateral         []CollateralHolding // registry order, all configured assets
	DebtMinted         *big.Int
	CollateralValueUsd *big.Int // wad
	HealthFactor       *big.Int
	Status             HealthStatus
}

// Position assembles the full view for one account. Zero holdings are
// listed with a zero USD value without touching their feed.
func (hc *HealthCalculator) Position(account uuid.UUID) (*AccountPosition, error) {
	collateral := make([]CollateralHolding, 0, len(hc.registry.CollateralAssets()))
	totalUsd := big.NewInt(0)

	for _, asset := range hc.registry.CollateralAssets() {
		amount := hc.balances.GetUserCollateral(account, asset.ID)
		value := big.NewInt(0)
		if amount.Sign() != 0 {
			var err error
			value, err = hc.prices.UsdValue(asset.ID, amount)
			if err != nil {
				return nil, err
			}
			totalUsd.Add(totalUsd, value)
		}
		collateral = append(collateral, CollateralHolding{
			Asset:    asset,
			Amount:   amount,
			UsdValue: value,
		})
	}

	debt := hc.balances.GetUserDebt(account)
	healthFactor := HealthFactorFrom(totalUsd, debt)

	return &AccountPosition{
		Account:            account,
		Collateral:         collateral,
		DebtMinted:         debt,
		CollateralValueUsd: totalUsd,
		HealthFactor:       healthFactor,
		Status:             StatusFor(healthFactor),
	}, nil
}

// MaxMintable returns how much more stable asset the account could
// mint while staying at or above the solvency floor. Informational
// only; the authoritative check is AssertHealthy after the mint.
func (hc *HealthCalculator) MaxMintable(account uuid.UUID) (*big.Int, error) {
	debt, collateralUsd, err := hc.AccountInformation(account)
	if err != nil {
		return nil, err
	}
	capacity := wad.MulDiv(collateralUsd, liquidationThresholdBig, liquidationPrecisionBig)
	if capacity.Cmp(debt) <= 0 {
		return big.NewInt(0), nil
	}
	return capacity.Sub(capacity, debt), nil
}
