// Package dscerr defines the engine's rejection taxonomy. Every error here
// is a refused operation, surfaced synchronously to the caller and never
// retried internally: a silent retry in a solvency-critical path could
// double-apply state.
package dscerr

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrMismatchedAssetFeeds rejects construction when the collateral
	// list and the price feed list differ in length.
	ErrMismatchedAssetFeeds = errors.New("dsc engine: collateral assets and price feeds must be same length")

	// ErrZeroAmount rejects any operation amount that is not positive.
	ErrZeroAmount = errors.New("dsc engine: amount must be positive")

	// ErrUnsupportedAsset rejects assets outside the configured collateral set.
	ErrUnsupportedAsset = errors.New("dsc engine: asset is not accepted collateral")

	// ErrInsufficientCollateral rejects withdrawals exceeding the deposited balance.
	ErrInsufficientCollateral = errors.New("dsc engine: withdrawal exceeds deposited collateral")

	// ErrExcessBurn rejects burns exceeding the outstanding debt.
	ErrExcessBurn = errors.New("dsc engine: burn exceeds outstanding debt")

	// ErrStalePrice aborts any operation whose price read is older than the
	// feed's freshness window.
	ErrStalePrice = errors.New("dsc engine: price feed is stale")

	// ErrBrokenHealthFactor is the errors.Is target for BrokenHealthFactorError.
	ErrBrokenHealthFactor = errors.New("dsc engine: health factor below minimum")

	// ErrHealthFactorOk rejects liquidation of a healthy account.
	ErrHealthFactorOk = errors.New("dsc engine: target health factor is not below minimum")

	// ErrHealthFactorNotImproved rejects a liquidation that left the target
	// no healthier than before.
	ErrHealthFactorNotImproved = errors.New("dsc engine: liquidation did not improve target health factor")

	// ErrTransferFailed wraps a failed collateral-token movement.
	ErrTransferFailed = errors.New("dsc engine: collateral transfer failed")

	// ErrMintFailed wraps a failed stable-asset mint.
	ErrMintFailed = errors.New("dsc engine: stable asset mint failed")
)

// BrokenHealthFactorError carries the computed sub-threshold value for
// diagnostics. It matches ErrBrokenHealthFactor under errors.Is.
type BrokenHealthFactorError struct {
	HealthFactor *big.Int
}

func (e *BrokenHealthFactorError) Error() string {
	return fmt.Sprintf("dsc engine: health factor %s below minimum", e.HealthFactor)
}

func (e *BrokenHealthFactorError) Is(target error) bool {
	return target == ErrBrokenHealthFactor
}

// IsRejection reports whether err belongs to the rejection taxonomy, as
// opposed to an internal fault. Rejections map to caller errors at the API
// boundary; everything else is a server fault.
func IsRejection(err error) bool {
	for _, sentinel := range []error{
		ErrMismatchedAssetFeeds,
		ErrZeroAmount,
		ErrUnsupportedAsset,
		ErrInsufficientCollateral,
		ErrExcessBurn,
		ErrStalePrice,
		ErrBrokenHealthFactor,
		ErrHealthFactorOk,
		ErrHealthFactorNotImproved,
		ErrTransferFailed,
		ErrMintFailed,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Code returns the stable machine-readable code for a taxonomy error, or
// "internal" for anything outside the taxonomy.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMismatchedAssetFeeds):
		return "mismatched_asset_feeds"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrUnsupportedAsset):
		return "unsupported_asset"
	case errors.Is(err, ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, ErrExcessBurn):
		return "excess_burn"
	case errors.Is(err, ErrStalePrice):
		return "stale_price"
	case errors.Is(err, ErrBrokenHealthFactor):
		return "broken_health_factor"
	case errors.Is(err, ErrHealthFactorOk):
		return "health_factor_ok"
	case errors.Is(err, ErrHealthFactorNotImproved):
		return "health_factor_not_improved"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrMintFailed):
		return "mint_failed"
	default:
		return "internal"
	}
}
