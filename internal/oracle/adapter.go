// Package oracle converts between collateral quantities and USD values using
// one external price feed per configured asset. Conversions re-read the feed
// on every call; a stale read is a hard abort for the operation that needed
// it, never an approximation.
package oracle

import (
	"fmt"
	"math/big"
	"time"

	"DscLedger/internal/dscerr"
	"DscLedger/internal/ledger"
	"DscLedger/internal/wad"
)

// FeedBinding pairs a feed with its freshness window. Bindings are matched
// positionally against the registry's collateral order at construction.
type FeedBinding struct {
	Feed   Feed
	MaxAge time.Duration
}

type boundFeed struct {
	feed     Feed
	maxAge   time.Duration
	decimals uint8 // asset decimals, for amount normalization
}

// Adapter is the price oracle facade over the configured feeds.
type Adapter struct {
	registry *ledger.Registry
	feeds    map[ledger.AssetID]boundFeed
	now      func() time.Time
}

// NewAdapter wires one feed per collateral asset. The feed list must be the
// same length as the registry's collateral set; a mismatch fails
// construction before any state exists.
func NewAdapter(registry *ledger.Registry, feeds []FeedBinding, now func() time.Time) (*Adapter, error) {
	collateral := registry.CollateralAssets()
	if len(feeds) != len(collateral) {
		return nil, fmt.Errorf("%w: %d assets, %d feeds",
			dscerr.ErrMismatchedAssetFeeds, len(collateral), len(feeds))
	}
	if now == nil {
		now = time.Now
	}

	a := &Adapter{
		registry: registry,
		feeds:    make(map[ledger.AssetID]boundFeed, len(feeds)),
		now:      now,
	}
	for i, asset := range collateral {
		a.feeds[asset.ID] = boundFeed{
			feed:     feeds[i].Feed,
			maxAge:   feeds[i].MaxAge,
			decimals: asset.Decimals,
		}
	}
	return a, nil
}

// latestFresh reads the feed and enforces the freshness window.
func (a *Adapter) latestFresh(assetID ledger.AssetID) (Round, boundFeed, error) {
	bf, ok := a.feeds[assetID]
	if !ok {
		return Round{}, boundFeed{}, fmt.Errorf("%w: asset %s", dscerr.ErrUnsupportedAsset, a.registry.SymbolOf(assetID))
	}

	round, ok := bf.feed.Latest()
	if !ok {
		return Round{}, boundFeed{}, fmt.Errorf("%w: %s feed has never reported", dscerr.ErrStalePrice, a.registry.SymbolOf(assetID))
	}
	if round.Price == nil || round.Price.Sign() <= 0 {
		return Round{}, boundFeed{}, fmt.Errorf("%w: %s feed reported a non-positive price", dscerr.ErrStalePrice, a.registry.SymbolOf(assetID))
	}
	if bf.maxAge > 0 {
		if age := a.now().Sub(round.UpdatedAt); age > bf.maxAge {
			return Round{}, boundFeed{}, fmt.Errorf("%w: %s price is %s old (max %s)",
				dscerr.ErrStalePrice, a.registry.SymbolOf(assetID), age, bf.maxAge)
		}
	}

	return round, bf, nil
}

// UsdValue converts an asset-scaled quantity to its USD value at wad scale.
func (a *Adapter) UsdValue(assetID ledger.AssetID, amount *big.Int) (*big.Int, error) {
	round, bf, err := a.latestFresh(assetID)
	if err != nil {
		return nil, err
	}

	priceWad := wad.ToWad(round.Price, round.Decimals)
	amountWad := wad.ToWad(amount, bf.decimals)
	return wad.MulWad(amountWad, priceWad), nil
}

// TokenAmountFromUsd converts a wad-scaled USD value into an asset-scaled
// quantity, the inverse of UsdValue at the same round.
func (a *Adapter) TokenAmountFromUsd(assetID ledger.AssetID, usdWad *big.Int) (*big.Int, error) {
	round, bf, err := a.latestFresh(assetID)
	if err != nil {
		return nil, err
	}

	priceWad := wad.ToWad(round.Price, round.Decimals)
	tokenWad := wad.DivWad(usdWad, priceWad)
	return wad.FromWad(tokenWad, bf.decimals), nil
}
