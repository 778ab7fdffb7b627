package oracle

import (
	"fmt"
	"math/big"
	"time"

	"DscLedger/internal/ledger"
)

// Round is one feed observation.
type Round struct {
	Price     *big.Int // feed-scaled
	Decimals  uint8
	UpdatedAt time.Time
}

// Feed is the capability one external price source exposes. A feed that has
// never produced a round reports ok=false and is stale by definition.
type Feed interface {
	Latest() (Round, bool)
}

// PriceState tracks the latest accepted round for one asset.
type PriceState struct {
	Price        *big.Int
	Decimals     uint8
	FeedSequence int64
	UpdatedAt    time.Time
}

// Store holds feed state for every collateral asset, fed by price update
// events on the core loop. Single-writer: only the core mutates it, so no
// locking.
type Store struct {
	registry *ledger.Registry
	states   map[ledger.AssetID]*PriceState
	expected map[ledger.AssetID]uint8 // configured feed decimals
}

func NewStore(registry *ledger.Registry) *Store {
	return &Store{
		registry: registry,
		states:   make(map[ledger.AssetID]*PriceState),
		expected: make(map[ledger.AssetID]uint8),
	}
}

// ExpectDecimals pins the wire decimals for an asset's feed. Updates carrying
// a different scale are refused rather than silently rescaled.
func (s *Store) ExpectDecimals(assetID ledger.AssetID, decimals uint8) {
	s.expected[assetID] = decimals
}

// Apply records a feed observation. Sequence regressions and duplicates are
// ignored (feeds may redeliver); gaps are tolerable for prices.
func (s *Store) Apply(assetID ledger.AssetID, price *big.Int, decimals uint8, sequence int64, updatedAt time.Time) error {
	if !s.registry.IsCollateral(assetID) {
		return fmt.Errorf("price update for non-collateral asset %d", assetID)
	}
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("price update for %s with non-positive price", s.registry.SymbolOf(assetID))
	}
	if want, ok := s.expected[assetID]; ok && want != decimals {
		return fmt.Errorf("price update for %s with decimals %d, feed is configured for %d",
			s.registry.SymbolOf(assetID), decimals, want)
	}

	current := s.states[assetID]
	if current != nil && sequence <= current.FeedSequence {
		// Stale or duplicate delivery - silently ignore (idempotent)
		return nil
	}

	s.states[assetID] = &PriceState{
		Price:        new(big.Int).Set(price),
		Decimals:     decimals,
		FeedSequence: sequence,
		UpdatedAt:    updatedAt,
	}

	return nil
}

// FeedFor returns the Feed view for one asset.
func (s *Store) FeedFor(assetID ledger.AssetID) Feed {
	return &storeFeed{store: s, assetID: assetID}
}

// Latest returns the current state for an asset.
func (s *Store) Latest(assetID ledger.AssetID) (*PriceState, bool) {
	st, ok := s.states[assetID]
	return st, ok
}

// Snapshot returns a deep copy of all feed states.
func (s *Store) Snapshot() map[ledger.AssetID]*PriceState {
	out := make(map[ledger.AssetID]*PriceState, len(s.states))
	for id, st := range s.states {
		out[id] = &PriceState{
			Price:        new(big.Int).Set(st.Price),
			Decimals:     st.Decimals,
			FeedSequence: st.FeedSequence,
			UpdatedAt:    st.UpdatedAt,
		}
	}
	return out
}

// Restore replaces all feed states from a snapshot.
func (s *Store) Restore(states map[ledger.AssetID]*PriceState) {
	s.states = make(map[ledger.AssetID]*PriceState, len(states))
	for id, st := range states {
		s.states[id] = &PriceState{
			Price:        new(big.Int).Set(st.Price),
			Decimals:     st.Decimals,
			FeedSequence: st.FeedSequence,
			UpdatedAt:    st.UpdatedAt,
		}
	}
}

type storeFeed struct {
	store   *Store
	assetID ledger.AssetID
}

func (f *storeFeed) Latest() (Round, bool) {
	st, ok := f.store.states[f.assetID]
	if !ok {
		return Round{}, false
	}
	return Round{
		Price:     new(big.Int).Set(st.Price),
		Decimals:  st.Decimals,
		UpdatedAt: st.UpdatedAt,
	}, true
}
