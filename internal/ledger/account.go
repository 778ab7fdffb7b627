package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeCollateral AccountSubType = iota
	SubTypeDebt

	// System sub-types
	SubTypeSystemSupply

	// External sub-types
	SubTypeExternalWallet
)

// SupplyAccountName is the system entity that carries the stable-asset
// issuance liability.
const SupplyAccountName = "issuer"

// AssetID maps asset symbols to numeric IDs for compact account keys
type AssetID uint16

// Asset describes one asset known to the ledger. Decimals is the native
// scale of on-ledger amounts for the asset (18 for the stable asset).
type Asset struct {
	ID       AssetID
	Symbol   string
	Decimals uint8
}

// Registry holds the fixed asset set. The set is built once at construction
// and never mutated afterwards; the stable asset is always registered and
// is not a collateral asset.
type Registry struct {
	byID     map[AssetID]Asset
	bySymbol map[string]AssetID
	stable   AssetID
	ordered  []AssetID // collateral assets in configuration order
}

// NewRegistry builds the asset registry from the configured collateral set.
// IDs are assigned in configuration order starting at 1; the stable asset
// takes the next ID.
func NewRegistry(collateral []Asset, stableSymbol string, stableDecimals uint8) (*Registry, error) {
	r := &Registry{
		byID:     make(map[AssetID]Asset, len(collateral)+1),
		bySymbol: make(map[string]AssetID, len(collateral)+1),
		ordered:  make([]AssetID, 0, len(collateral)),
	}

	next := AssetID(1)
	for _, a := range collateral {
		if a.Symbol == "" {
			return nil, fmt.Errorf("collateral asset with empty symbol")
		}
		if _, dup := r.bySymbol[a.Symbol]; dup {
			return nil, fmt.Errorf("duplicate collateral asset %q", a.Symbol)
		}
		a.ID = next
		r.byID[next] = a
		r.bySymbol[a.Symbol] = next
		r.ordered = append(r.ordered, next)
		next++
	}

	if stableSymbol == "" {
		return nil, fmt.Errorf("stable asset symbol must not be empty")
	}
	if _, dup := r.bySymbol[stableSymbol]; dup {
		return nil, fmt.Errorf("stable asset %q collides with a collateral asset", stableSymbol)
	}
	r.stable = next
	r.byID[next] = Asset{ID: next, Symbol: stableSymbol, Decimals: stableDecimals}
	r.bySymbol[stableSymbol] = next

	return r, nil
}

// LookupSymbol resolves a symbol to its asset ID.
func (r *Registry) LookupSymbol(symbol string) (AssetID, bool) {
	id, ok := r.bySymbol[symbol]
	return id, ok
}

// Lookup resolves an asset ID to its full record.
func (r *Registry) Lookup(id AssetID) (Asset, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// SymbolOf returns the symbol for an ID, or "unknown".
func (r *Registry) SymbolOf(id AssetID) string {
	if a, ok := r.byID[id]; ok {
		return a.Symbol
	}
	return "unknown"
}

// StableAssetID returns the ID of the stable asset.
func (r *Registry) StableAssetID() AssetID {
	return r.stable
}

// IsCollateral reports whether the ID belongs to the configured collateral set.
func (r *Registry) IsCollateral(id AssetID) bool {
	if id == r.stable {
		return false
	}
	_, ok := r.byID[id]
	return ok
}

// CollateralAssets returns the collateral assets in configuration order.
func (r *Registry) CollateralAssets() []Asset {
	out := make([]Asset, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.byID[id])
	}
	return out
}

// AllAssets returns every registered asset sorted by ID (stable included).
func (r *Registry) AllAssets() []Asset {
	out := make([]Asset, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, name bytes for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(name string, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging.
// The registry resolves the asset symbol; a nil registry falls back to the
// numeric ID.
func (k AccountKey) AccountPath(reg *Registry) string {
	assetName := fmt.Sprintf("asset-%d", k.AssetID)
	if reg != nil {
		assetName = reg.SymbolOf(k.AssetID)
	}

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath inverts AccountPath. Snapshots store balances keyed
// by path, so recovery needs the round trip.
func ParseAccountPath(reg *Registry, path string) (AccountKey, error) {
	parts := strings.Split(path, ":")

	resolve := func(symbol string) (AssetID, error) {
		id, ok := reg.LookupSymbol(symbol)
		if !ok {
			return 0, fmt.Errorf("account path %q: unknown asset %q", path, symbol)
		}
		return id, nil
	}

	switch {
	case len(parts) == 4 && parts[0] == "user":
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		sub, err := parseSubType(parts[2])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		asset, err := resolve(parts[3])
		if err != nil {
			return AccountKey{}, err
		}
		return NewUserAccountKey(uid, sub, asset), nil

	case len(parts) == 3 && parts[0] == "system":
		sub, err := parseSubType(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		asset, err := resolve(parts[2])
		if err != nil {
			return AccountKey{}, err
		}
		return NewSystemAccountKey(SupplyAccountName, sub, asset), nil

	case len(parts) == 3 && parts[0] == "external":
		sub, err := parseSubType(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		asset, err := resolve(parts[2])
		if err != nil {
			return AccountKey{}, err
		}
		return NewExternalAccountKey(sub, asset), nil
	}

	return AccountKey{}, fmt.Errorf("malformed account path %q", path)
}

func parseSubType(name string) (AccountSubType, error) {
	switch name {
	case "collateral":
		return SubTypeCollateral, nil
	case "debt":
		return SubTypeDebt, nil
	case "supply":
		return SubTypeSystemSupply, nil
	case "wallet":
		return SubTypeExternalWallet, nil
	}
	return 0, fmt.Errorf("unknown account sub-type %q", name)
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCollateral:
		return "collateral"
	case SubTypeDebt:
		return "debt"
	case SubTypeSystemSupply:
		return "supply"
	case SubTypeExternalWallet:
		return "wallet"
	default:
		return "unknown"
	}
}
