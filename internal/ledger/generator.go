package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for engine operations.
// It holds the balance tracker for pre-checks so a batch that could drive a
// user or system account negative is refused before anything is applied.
// Batches leave the generator without a sequence or identity; the engine
// stamps both once the event is accepted, so the generator never carries a
// counter that could drift from the event log.
type JournalGenerator struct {
	balanceTracker *BalanceTracker
	registry       *Registry
}

func NewJournalGenerator(tracker *BalanceTracker, registry *Registry) *JournalGenerator {
	return &JournalGenerator{
		balanceTracker: tracker,
		registry:       registry,
	}
}

// journalNamespace seeds the derived batch and journal IDs.
var journalNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("DscLedger/journal"))

// BatchIDAt derives the batch ID for the operation at a sequence. Identity
// is a pure function of the sequence: a replayed event lands on the exact
// rows already in the log instead of inserting fresh copies.
func BatchIDAt(sequence int64) uuid.UUID {
	return uuid.NewSHA1(journalNamespace, []byte(fmt.Sprintf("batch:%d", sequence)))
}

// JournalIDAt derives the journal ID for one leg of the operation at a
// sequence.
func JournalIDAt(sequence int64, leg int) uuid.UUID {
	return uuid.NewSHA1(journalNamespace, []byte(fmt.Sprintf("journal:%d:%d", sequence, leg)))
}

func (jg *JournalGenerator) newBatch(opRef string, timestamp int64, legs int) *Batch {
	return &Batch{
		OperationRef: opRef,
		Timestamp:    timestamp,
		Journals:     make([]Journal, 0, legs),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, assetID AssetID, amount *big.Int, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		BatchID:       b.BatchID,
		OperationRef:  b.OperationRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        new(big.Int).Set(amount),
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateDeposit creates the journal for a collateral deposit.
// Moves funds: external:wallet → user:collateral
func (jg *JournalGenerator) GenerateDeposit(
	userID uuid.UUID,
	opRef string,
	assetID AssetID,
	amount *big.Int,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(opRef, timestamp, 1)
	jg.appendJournal(batch,
		NewUserAccountKey(userID, SubTypeCollateral, assetID),
		NewExternalAccountKey(SubTypeExternalWallet, assetID),
		assetID, amount, JournalTypeDeposit)

	return batch, nil
}

// GenerateRedeem creates the journal for a collateral withdrawal.
// Moves funds: user:collateral → external:wallet. The holder must have the
// balance; the recipient of the released tokens is the capability's concern,
// not the ledger's.
func (jg *JournalGenerator) GenerateRedeem(
	holderID uuid.UUID,
	opRef string,
	assetID AssetID,
	amount *big.Int,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCollateral(holderID, assetID, amount); err != nil {
		return nil, fmt.Errorf("redeem pre-check failed: %w", err)
	}

	batch := jg.newBatch(opRef, timestamp, 1)
	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWallet, assetID),
		NewUserAccountKey(holderID, SubTypeCollateral, assetID),
		assetID, amount, JournalTypeRedeem)

	return batch, nil
}

// GenerateMint creates the journal for minting stable-asset debt.
// Moves funds: system:supply → user:debt. The supply account goes negative
// by the amount issued, keeping the ledger zero-sum and making
// Σ user debt == outstanding supply a structural fact.
func (jg *JournalGenerator) GenerateMint(
	userID uuid.UUID,
	opRef string,
	amount *big.Int,
	timestamp int64,
) (*Batch, error) {
	stable := jg.registry.StableAssetID()

	batch := jg.newBatch(opRef, timestamp, 1)
	jg.appendJournal(batch,
		NewUserAccountKey(userID, SubTypeDebt, stable),
		NewSystemAccountKey(SupplyAccountName, SubTypeSystemSupply, stable),
		stable, amount, JournalTypeMint)

	return batch, nil
}

// GenerateBurn creates the journal for retiring stable-asset debt.
// Moves funds: user:debt → system:supply. The debtor must owe at least the
// burned amount.
func (jg *JournalGenerator) GenerateBurn(
	debtorID uuid.UUID,
	opRef string,
	amount *big.Int,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientDebt(debtorID, amount); err != nil {
		return nil, fmt.Errorf("burn pre-check failed: %w", err)
	}

	stable := jg.registry.StableAssetID()

	batch := jg.newBatch(opRef, timestamp, 1)
	jg.appendJournal(batch,
		NewSystemAccountKey(SupplyAccountName, SubTypeSystemSupply, stable),
		NewUserAccountKey(debtorID, SubTypeDebt, stable),
		stable, amount, JournalTypeBurn)

	return batch, nil
}

// GenerateLiquidation creates the two-leg journal for a liquidation: the
// seized collateral leaves the target's balance toward the liquidator's
// wallet, and the covered debt is burned against the supply account. Both
// legs carry one batch so they apply and reverse as a unit.
func (jg *JournalGenerator) GenerateLiquidation(
	targetID uuid.UUID,
	opRef string,
	assetID AssetID,
	seizeAmount *big.Int,
	debtToCover *big.Int,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCollateral(targetID, assetID, seizeAmount); err != nil {
		return nil, fmt.Errorf("liquidation seize pre-check failed: %w", err)
	}
	if err := jg.balanceTracker.ValidateSufficientDebt(targetID, debtToCover); err != nil {
		return nil, fmt.Errorf("liquidation burn pre-check failed: %w", err)
	}

	stable := jg.registry.StableAssetID()

	batch := jg.newBatch(opRef, timestamp, 2)
	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWallet, assetID),
		NewUserAccountKey(targetID, SubTypeCollateral, assetID),
		assetID, seizeAmount, JournalTypeLiquidationSeize)
	jg.appendJournal(batch,
		NewSystemAccountKey(SupplyAccountName, SubTypeSystemSupply, stable),
		NewUserAccountKey(targetID, SubTypeDebt, stable),
		stable, debtToCover, JournalTypeLiquidationBurn)

	return batch, nil
}

// GenerateDepositAndMint creates a single batch carrying both the deposit
// leg and the mint leg, so the pair applies and reverses as a unit.
func (jg *JournalGenerator) GenerateDepositAndMint(
	userID uuid.UUID,
	opRef string,
	assetID AssetID,
	depositAmount *big.Int,
	mintAmount *big.Int,
	timestamp int64,
) (*Batch, error) {
	stable := jg.registry.StableAssetID()

	batch := jg.newBatch(opRef, timestamp, 2)
	jg.appendJournal(batch,
		NewUserAccountKey(userID, SubTypeCollateral, assetID),
		NewExternalAccountKey(SubTypeExternalWallet, assetID),
		assetID, depositAmount, JournalTypeDeposit)
	jg.appendJournal(batch,
		NewUserAccountKey(userID, SubTypeDebt, stable),
		NewSystemAccountKey(SupplyAccountName, SubTypeSystemSupply, stable),
		stable, mintAmount, JournalTypeMint)

	return batch, nil
}

// GenerateRedeemForDsc creates a single batch that burns debt first and
// then releases collateral. The burn shrinks the debt the solvency check
// divides by, which is what lets a full exit pass the post-check.
func (jg *JournalGenerator) GenerateRedeemForDsc(
	userID uuid.UUID,
	opRef string,
	assetID AssetID,
	redeemAmount *big.Int,
	burnAmount *big.Int,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientDebt(userID, burnAmount); err != nil {
		return nil, fmt.Errorf("burn pre-check failed: %w", err)
	}
	if err := jg.balanceTracker.ValidateSufficientCollateral(userID, assetID, redeemAmount); err != nil {
		return nil, fmt.Errorf("redeem pre-check failed: %w", err)
	}

	stable := jg.registry.StableAssetID()

	batch := jg.newBatch(opRef, timestamp, 2)
	jg.appendJournal(batch,
		NewSystemAccountKey(SupplyAccountName, SubTypeSystemSupply, stable),
		NewUserAccountKey(userID, SubTypeDebt, stable),
		stable, burnAmount, JournalTypeBurn)
	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWallet, assetID),
		NewUserAccountKey(userID, SubTypeCollateral, assetID),
		assetID, redeemAmount, JournalTypeRedeem)

	return batch, nil
}
