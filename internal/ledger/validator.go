package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker  *BalanceTracker
	registry *Registry
}

func NewInvariantValidator(tracker *BalanceTracker, registry *Registry) *InvariantValidator {
	return &InvariantValidator{
		tracker:  tracker,
		registry: registry,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateUserCollateralNonNegative checks user collateral >= 0
func (v *InvariantValidator) ValidateUserCollateralNonNegative(userID uuid.UUID, assetID AssetID) error {
	key := NewUserAccountKey(userID, SubTypeCollateral, assetID)
	return v.tracker.ValidateNonNegative(key)
}

// ValidateUserDebtNonNegative checks user debt >= 0
func (v *InvariantValidator) ValidateUserDebtNonNegative(userID uuid.UUID) error {
	key := NewUserAccountKey(userID, SubTypeDebt, v.registry.StableAssetID())
	return v.tracker.ValidateNonNegative(key)
}

// ValidateGlobalBalance verifies the ledger is zero-sum per asset
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total.Sign() != 0 {
			return fmt.Errorf("global balance for %s is non-zero: %s", v.registry.SymbolOf(assetID), total)
		}
	}

	return nil
}

// ValidateSupplyMatchesDebt verifies outstanding stable supply equals the
// negated issuer account, which by zero-sum equals the sum of all user debt.
func (v *InvariantValidator) ValidateSupplyMatchesDebt() error {
	stable := v.registry.StableAssetID()
	issuer := v.tracker.GetBalance(NewSystemAccountKey(SupplyAccountName, SubTypeSystemSupply, stable))

	if issuer.Sign() > 0 {
		return fmt.Errorf("issuer account is positive: %s", issuer)
	}

	supply := v.tracker.GetStableSupply()
	if supply.Sign() < 0 {
		return fmt.Errorf("outstanding supply is negative: %s", supply)
	}

	return nil
}
