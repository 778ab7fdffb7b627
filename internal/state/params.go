package state

import "DscLedger/internal/wad"

// Engine parameters. These are protocol constants, not runtime
// configuration: changing any of them changes the meaning of every
// recorded health factor, so they are fixed at compile time.
const (
	// LiquidationThreshold discounts collateral to 50% when computing
	// the health factor, i.e. positions must be at least 200%
	// overcollateralized to stay at the minimum.
	LiquidationThreshold = 50

	// LiquidationPrecision is the divisor paired with
	// LiquidationThreshold and LiquidationBonus.
	LiquidationPrecision = 100

	// LiquidationBonus is the extra collateral share paid to a
	// liquidator, in percent: covering 100 USD of debt seizes
	// collateral worth 110 USD.
	LiquidationBonus = 10
)

// MinHealthFactor is the solvency floor, 1.0 in wad scale. Accounts at
// or above it are healthy; below it they may be liquidated.
var MinHealthFactor = wad.Clone(wad.Wad)
