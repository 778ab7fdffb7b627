package state

import (
	"math/big"

	"DscLedger/internal/dscerr"
	"DscLedger/internal/ledger"
	"DscLedger/internal/wad"

	"github.com/google/uuid"
)

// HealthStatus classifies an account relative to the solvency floor.
type HealthStatus int32

const (
	StatusHealthy HealthStatus = iota
	StatusLiquidatable
)

func (hs HealthStatus) String() string {
	switch hs {
	case StatusHealthy:
		return "Healthy"
	case StatusLiquidatable:
		return "Liquidatable"
	default:
		return "Unknown"
	}
}

// BalanceReader is the slice of the balance tracker the calculator
// reads. Narrow on purpose so tests can substitute fixed balances.
type BalanceReader interface {
	GetUserCollateral(userID uuid.UUID, assetID ledger.AssetID) *big.Int
	GetUserDebt(userID uuid.UUID) *big.Int
}

// PriceConverter values token amounts in wad USD and back. The oracle
// adapter implements it; a conversion fails when the backing feed is
// stale or has never reported.
type PriceConverter interface {
	UsdValue(assetID ledger.AssetID, amount *big.Int) (*big.Int, error)
	TokenAmountFromUsd(assetID ledger.AssetID, usdWad *big.Int) (*big.Int, error)
}

var (
	liquidationThresholdBig = big.NewInt(LiquidationThreshold)
	liquidationPrecisionBig = big.NewInt(LiquidationPrecision)
	liquidationBonusBig     = big.NewInt(LiquidationBonus)
)

// HealthCalculator derives account solvency from ledger balances and
// oracle prices. It holds no state of its own.
type HealthCalculator struct {
	registry *ledger.Registry
	balances BalanceReader
	prices   PriceConverter
}

func NewHealthCalculator(registry *ledger.Registry, balances BalanceReader, prices PriceConverter) *HealthCalculator {
	return &HealthCalculator{
		registry: registry,
		balances: balances,
		prices:   prices,
	}
}

// AccountInformation returns the account's minted debt and the wad USD
// value of its collateral summed over every configured asset. Assets
// with a zero balance are skipped without consulting their feed, so a
// stale feed only blocks accounts that actually hold that asset.
func (hc *HealthCalculator) AccountInformation(account uuid.UUID) (debt *big.Int, collateralUsd *big.Int, err error) {
	debt = hc.balances.GetUserDebt(account)

	collateralUsd = big.NewInt(0)
	for _, asset := range hc.registry.CollateralAssets() {
		amount := hc.balances.GetUserCollateral(account, asset.ID)
		if amount.Sign() == 0 {
			continue
		}
		value, err := hc.prices.UsdValue(asset.ID, amount)
		if err != nil {
			return nil, nil, err
		}
		collateralUsd.Add(collateralUsd, value)
	}

	return debt, collateralUsd, nil
}

// HealthFactorFrom computes the health factor from known totals:
//
//	(collateralUsd * threshold / precision) * wad / debt
//
// truncating at each division. A debt-free account has nothing to be
// insolvent against and gets the maximum representable value.
func HealthFactorFrom(collateralUsd, debt *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return wad.Clone(wad.MaxUint256)
	}
	adjusted := wad.MulDiv(collateralUsd, liquidationThresholdBig, liquidationPrecisionBig)
	return wad.MulDiv(adjusted, wad.Wad, debt)
}

// HealthFactor derives the account's current health factor.
func (hc *HealthCalculator) HealthFactor(account uuid.UUID) (*big.Int, error) {
	debt, collateralUsd, err := hc.AccountInformation(account)
	if err != nil {
		return nil, err
	}
	return HealthFactorFrom(collateralUsd, debt), nil
}

// AssertHealthy fails with a BrokenHealthFactorError when the account
// sits below the solvency floor. Called after every mutation that can
// weaken a position.
func (hc *HealthCalculator) AssertHealthy(account uuid.UUID) error {
	healthFactor, err := hc.HealthFactor(account)
	if err != nil {
		return err
	}
	if healthFactor.Cmp(MinHealthFactor) < 0 {
		return &dscerr.BrokenHealthFactorError{HealthFactor: healthFactor}
	}
	return nil
}

// StatusFor maps a health factor onto the two-state classification.
func StatusFor(healthFactor *big.Int) HealthStatus {
	if healthFactor != nil && healthFactor.Cmp(MinHealthFactor) < 0 {
		return StatusLiquidatable
	}
	return StatusHealthy
}
