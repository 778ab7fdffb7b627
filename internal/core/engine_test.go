package core

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"DscLedger/internal/dscerr"
	"DscLedger/internal/event"
	"DscLedger/internal/ledger"
	"DscLedger/internal/state"
	"DscLedger/internal/wad"

	"github.com/google/uuid"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type engineEnv struct {
	engine     *Engine
	persist    chan Output
	projection chan Output
}

// newEngineEnv builds an engine over a WETH/WBTC registry with hour-long
// feed windows and noop capabilities. Output channels are buffered wide
// enough that small test sequences never block the persist send.
func newEngineEnv(t *testing.T, coin StableCoin, bank CollateralBank) *engineEnv {
	t.Helper()

	registry, err := ledger.NewRegistry([]ledger.Asset{
		{Symbol: "WETH", Decimals: 18},
		{Symbol: "WBTC", Decimals: 8},
	}, "DSC", 18)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	persist := make(chan Output, 128)
	projection := make(chan Output, 128)

	engine, err := NewEngine(
		0,
		registry,
		[]FeedSpec{
			{Decimals: 8, MaxAge: time.Hour},
			{Decimals: 8, MaxAge: time.Hour},
		},
		coin,
		bank,
		persist,
		projection,
		nil, // no cold-path dedup in unit tests
		1024,
		16,
		nil,
	)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	return &engineEnv{engine: engine, persist: persist, projection: projection}
}

func (env *engineEnv) price(t *testing.T, asset string, priceFeedScaled int64, feedSeq int64, at time.Time) {
	t.Helper()
	err := env.engine.ProcessEvent(&event.PriceUpdate{
		Asset:          asset,
		Price:          big.NewInt(priceFeedScaled),
		FeedDecimals:   8,
		FeedSequence:   feedSeq,
		PriceTimestamp: at,
	})
	if err != nil {
		t.Fatalf("price update failed: %v", err)
	}
}

func (env *engineEnv) deposit(t *testing.T, user uuid.UUID, asset string, amount *big.Int, at time.Time) {
	t.Helper()
	err := env.engine.ProcessEvent(&event.DepositCollateral{
		OperationID: uuid.New(),
		Account:     user,
		Asset:       asset,
		Amount:      amount,
		Timestamp:   at,
	})
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
}

func (env *engineEnv) mint(t *testing.T, user uuid.UUID, amount *big.Int, at time.Time) {
	t.Helper()
	err := env.engine.ProcessEvent(&event.MintDsc{
		OperationID: uuid.New(),
		Account:     user,
		Amount:      amount,
		Timestamp:   at,
	})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
}

// drainOutputs empties the persist channel and returns what was queued.
func (env *engineEnv) drainOutputs() []Output {
	var outputs []Output
	for {
		select {
		case out := <-env.persist:
			outputs = append(outputs, out)
		default:
			return outputs
		}
	}
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), wad.Wad)
}

func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), wad.Wad)
}

func wantBig(t *testing.T, name string, got, want *big.Int) {
	t.Helper()
	if got.Cmp(want) != 0 {
		t.Fatalf("%s = %s, want %s", name, got, want)
	}
}

// =====================================================================
// Test: Deposit and mint land on the documented health factor
// =====================================================================

func TestDepositThenMintHealthFactor(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, user, "WETH", eth(10), testEpoch)
	env.mint(t, user, usd(5), testEpoch)

	hf, err := env.engine.Health().HealthFactor(user)
	if err != nil {
		t.Fatalf("HealthFactor failed: %v", err)
	}
	// 10 WETH at 2000 USD, halved by the threshold, over 5 USD of debt.
	wantBig(t, "healthFactor", hf, usd(2000))
	wantBig(t, "debt", env.engine.Balances().GetUserDebt(user), usd(5))
	wantBig(t, "supply", env.engine.Balances().GetStableSupply(), usd(5))
}

// =====================================================================
// Test: Rejections leave no trace
// =====================================================================

func TestMintWithoutCollateralRejected(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.drainOutputs()

	seqBefore := env.engine.GetSequence()
	hashBefore := env.engine.GetStateHash()

	err := env.engine.ProcessEvent(&event.MintDsc{
		OperationID: uuid.New(),
		Account:     user,
		Amount:      usd(100),
		Timestamp:   testEpoch,
	})

	var broken *dscerr.BrokenHealthFactorError
	if !errors.As(err, &broken) {
		t.Fatalf("expected BrokenHealthFactorError, got %v", err)
	}
	wantBig(t, "reported healthFactor", broken.HealthFactor, big.NewInt(0))

	wantBig(t, "debt after rejection", env.engine.Balances().GetUserDebt(user), big.NewInt(0))
	if got := env.engine.GetSequence(); got != seqBefore {
		t.Fatalf("sequence advanced on rejection: %d -> %d", seqBefore, got)
	}
	if env.engine.GetStateHash() != hashBefore {
		t.Fatal("state hash changed on rejection")
	}
	if outputs := env.drainOutputs(); len(outputs) != 0 {
		t.Fatalf("rejected operation emitted %d outputs", len(outputs))
	}
}

func TestRedeemExceedingBalanceRejected(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, user, "WETH", eth(1), testEpoch)

	err := env.engine.ProcessEvent(&event.RedeemCollateral{
		OperationID: uuid.New(),
		Account:     user,
		Asset:       "WETH",
		Amount:      eth(2),
		Timestamp:   testEpoch,
	})
	if !errors.Is(err, dscerr.ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral, got %v", err)
	}

	wethID, _ := env.engine.Registry().LookupSymbol("WETH")
	wantBig(t, "collateral", env.engine.Balances().GetUserCollateral(user, wethID), eth(1))
}

func TestBurnExceedingDebtRejected(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, user, "WETH", eth(10), testEpoch)
	env.mint(t, user, usd(100), testEpoch)

	err := env.engine.ProcessEvent(&event.BurnDsc{
		OperationID: uuid.New(),
		Account:     user,
		Amount:      usd(101),
		Timestamp:   testEpoch,
	})
	if !errors.Is(err, dscerr.ErrExcessBurn) {
		t.Fatalf("expected excess burn, got %v", err)
	}
	wantBig(t, "debt", env.engine.Balances().GetUserDebt(user), usd(100))
}

func TestZeroAmountRejected(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})

	err := env.engine.ProcessEvent(&event.DepositCollateral{
		OperationID: uuid.New(),
		Account:     uuid.New(),
		Asset:       "WETH",
		Amount:      big.NewInt(0),
		Timestamp:   testEpoch,
	})
	if !errors.Is(err, dscerr.ErrZeroAmount) {
		t.Fatalf("expected zero amount rejection, got %v", err)
	}
}

func TestUnsupportedAssetRejected(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})

	err := env.engine.ProcessEvent(&event.DepositCollateral{
		OperationID: uuid.New(),
		Account:     uuid.New(),
		Asset:       "DOGE",
		Amount:      eth(1),
		Timestamp:   testEpoch,
	})
	if !errors.Is(err, dscerr.ErrUnsupportedAsset) {
		t.Fatalf("expected unsupported asset, got %v", err)
	}
}

// =====================================================================
// Test: Redeem at zero debt releases everything
// =====================================================================

func TestFullRedeemAtZeroDebt(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, user, "WETH", eth(10), testEpoch)

	err := env.engine.ProcessEvent(&event.RedeemCollateral{
		OperationID: uuid.New(),
		Account:     user,
		Asset:       "WETH",
		Amount:      eth(10),
		Timestamp:   testEpoch,
	})
	if err != nil {
		t.Fatalf("full redeem failed: %v", err)
	}

	wethID, _ := env.engine.Registry().LookupSymbol("WETH")
	wantBig(t, "collateral", env.engine.Balances().GetUserCollateral(user, wethID), big.NewInt(0))
}

// =====================================================================
// Test: Stale prices block valuation but not deposits
// =====================================================================

func TestStalePriceBlocksMintNotDeposit(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)

	// Two hours later the hour-old feed window has lapsed. Deposits do
	// not read prices, so they still go through.
	later := testEpoch.Add(2 * time.Hour)
	env.deposit(t, user, "WETH", eth(10), later)

	err := env.engine.ProcessEvent(&event.MintDsc{
		OperationID: uuid.New(),
		Account:     user,
		Amount:      usd(1),
		Timestamp:   later,
	})
	if !errors.Is(err, dscerr.ErrStalePrice) {
		t.Fatalf("expected stale price, got %v", err)
	}
}

// =====================================================================
// Test: Duplicate operation IDs are absorbed
// =====================================================================

func TestDuplicateOperationAbsorbed(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()
	opID := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)

	depositEvt := &event.DepositCollateral{
		OperationID: opID,
		Account:     user,
		Asset:       "WETH",
		Amount:      eth(5),
		Timestamp:   testEpoch,
	}
	if err := env.engine.ProcessEvent(depositEvt); err != nil {
		t.Fatalf("first deposit failed: %v", err)
	}
	env.drainOutputs()

	if err := env.engine.ProcessEvent(depositEvt); err != nil {
		t.Fatalf("duplicate must be absorbed, got %v", err)
	}

	wethID, _ := env.engine.Registry().LookupSymbol("WETH")
	wantBig(t, "collateral", env.engine.Balances().GetUserCollateral(user, wethID), eth(5))
	if outputs := env.drainOutputs(); len(outputs) != 0 {
		t.Fatalf("duplicate emitted %d outputs", len(outputs))
	}
}

// =====================================================================
// Test: Capability failures unwind the applied batch
// =====================================================================

type failingBank struct {
	NoopCollateralBank
}

func (failingBank) Pull(uuid.UUID, string, *big.Int) error {
	return errors.New("custody unavailable")
}

func TestCapabilityFailureUnwinds(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, failingBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.drainOutputs()

	seqBefore := env.engine.GetSequence()
	hashBefore := env.engine.GetStateHash()

	err := env.engine.ProcessEvent(&event.DepositCollateral{
		OperationID: uuid.New(),
		Account:     user,
		Asset:       "WETH",
		Amount:      eth(5),
		Timestamp:   testEpoch,
	})
	if !errors.Is(err, dscerr.ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}

	wethID, _ := env.engine.Registry().LookupSymbol("WETH")
	wantBig(t, "collateral", env.engine.Balances().GetUserCollateral(user, wethID), big.NewInt(0))
	if env.engine.GetSequence() != seqBefore || env.engine.GetStateHash() != hashBefore {
		t.Fatal("failed capability left state behind")
	}
}

type countingBank struct {
	pulls    int
	releases int
}

func (b *countingBank) Pull(uuid.UUID, string, *big.Int) error    { b.pulls++; return nil }
func (b *countingBank) Release(uuid.UUID, string, *big.Int) error { b.releases++; return nil }

type failingCoin struct{}

func (failingCoin) Mint(uuid.UUID, *big.Int) error { return errors.New("token bridge down") }
func (failingCoin) Burn(uuid.UUID, *big.Int) error { return nil }

func TestCompoundCapabilityFailureCompensates(t *testing.T) {
	bank := &countingBank{}
	env := newEngineEnv(t, failingCoin{}, bank)
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)

	err := env.engine.ProcessEvent(&event.DepositAndMint{
		OperationID:   uuid.New(),
		Account:       user,
		Asset:         "WETH",
		DepositAmount: eth(10),
		MintAmount:    usd(100),
		Timestamp:     testEpoch,
	})
	if !errors.Is(err, dscerr.ErrMintFailed) {
		t.Fatalf("expected mint failed, got %v", err)
	}

	// The pull ran, the mint failed, so the pull must have been undone.
	if bank.pulls != 1 || bank.releases != 1 {
		t.Fatalf("expected 1 pull and 1 compensating release, got %d/%d", bank.pulls, bank.releases)
	}

	wethID, _ := env.engine.Registry().LookupSymbol("WETH")
	wantBig(t, "collateral", env.engine.Balances().GetUserCollateral(user, wethID), big.NewInt(0))
	wantBig(t, "debt", env.engine.Balances().GetUserDebt(user), big.NewInt(0))
}

// =====================================================================
// Test: Compound operations apply and reject atomically
// =====================================================================

func TestDepositAndMintRollsBackWhole(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)

	// 1 WETH adjusts to 1000 USD of backing; minting 1001 breaks the
	// floor, and the deposit leg must vanish with the mint leg.
	err := env.engine.ProcessEvent(&event.DepositAndMint{
		OperationID:   uuid.New(),
		Account:       user,
		Asset:         "WETH",
		DepositAmount: eth(1),
		MintAmount:    new(big.Int).Add(usd(1000), big.NewInt(1)),
		Timestamp:     testEpoch,
	})
	if !errors.Is(err, dscerr.ErrBrokenHealthFactor) {
		t.Fatalf("expected broken health factor, got %v", err)
	}

	wethID, _ := env.engine.Registry().LookupSymbol("WETH")
	wantBig(t, "collateral", env.engine.Balances().GetUserCollateral(user, wethID), big.NewInt(0))
	wantBig(t, "debt", env.engine.Balances().GetUserDebt(user), big.NewInt(0))
}

func TestRedeemForDscFullExit(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, user, "WETH", eth(10), testEpoch)
	env.mint(t, user, usd(10_000), testEpoch)

	// Burning the whole debt inside the same batch is what lets the
	// full withdrawal pass the solvency post-check.
	err := env.engine.ProcessEvent(&event.RedeemForDsc{
		OperationID:  uuid.New(),
		Account:      user,
		Asset:        "WETH",
		RedeemAmount: eth(10),
		BurnAmount:   usd(10_000),
		Timestamp:    testEpoch,
	})
	if err != nil {
		t.Fatalf("full exit failed: %v", err)
	}

	wethID, _ := env.engine.Registry().LookupSymbol("WETH")
	wantBig(t, "collateral", env.engine.Balances().GetUserCollateral(user, wethID), big.NewInt(0))
	wantBig(t, "debt", env.engine.Balances().GetUserDebt(user), big.NewInt(0))
	wantBig(t, "supply", env.engine.Balances().GetStableSupply(), big.NewInt(0))
}

// =====================================================================
// Test: Liquidation
// =====================================================================

func TestLiquidateHealthyTargetRejected(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	target := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, target, "WETH", eth(10), testEpoch)
	env.mint(t, target, usd(100), testEpoch)

	err := env.engine.ProcessEvent(&event.Liquidate{
		OperationID: uuid.New(),
		Liquidator:  uuid.New(),
		Target:      target,
		Asset:       "WETH",
		DebtToCover: usd(50),
		Timestamp:   testEpoch,
	})
	if !errors.Is(err, dscerr.ErrHealthFactorOk) {
		t.Fatalf("expected health factor ok rejection, got %v", err)
	}
}

func TestLiquidationSeizesWithBonus(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	target := uuid.New()
	liquidator := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, target, "WETH", eth(10), testEpoch)
	env.mint(t, target, usd(10_000), testEpoch) // exactly at the floor

	// Price drops to 1500: health factor falls to 0.75.
	crash := testEpoch.Add(time.Minute)
	env.price(t, "WETH", 1500_00000000, 2, crash)
	env.drainOutputs()

	err := env.engine.ProcessEvent(&event.Liquidate{
		OperationID: uuid.New(),
		Liquidator:  liquidator,
		Target:      target,
		Asset:       "WETH",
		DebtToCover: usd(3000),
		Timestamp:   crash,
	})
	if err != nil {
		t.Fatalf("liquidation failed: %v", err)
	}

	// 3000 USD at 1500 USD/ETH is 2 ETH base, 0.2 ETH bonus.
	wethID, _ := env.engine.Registry().LookupSymbol("WETH")
	seized := new(big.Int).Sub(eth(10), env.engine.Balances().GetUserCollateral(target, wethID))
	wantBig(t, "seized", seized, big.NewInt(22e17))
	wantBig(t, "target debt", env.engine.Balances().GetUserDebt(target), usd(7000))

	outputs := env.drainOutputs()
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	receipt := outputs[0].Receipt
	if receipt == nil {
		t.Fatal("liquidation output carried no receipt")
	}
	wantBig(t, "receipt debtCovered", receipt.DebtCovered, usd(3000))
	wantBig(t, "receipt collateralSeized", receipt.CollateralSeized, big.NewInt(22e17))
	wantBig(t, "receipt bonus", receipt.BonusCollateral, big.NewInt(2e17))
	wantBig(t, "receipt healthBefore", receipt.HealthBefore, big.NewInt(75e16))
	if receipt.HealthAfter.Cmp(receipt.HealthBefore) <= 0 {
		t.Fatalf("health did not improve: %s -> %s", receipt.HealthBefore, receipt.HealthAfter)
	}
	if receipt.Sequence != outputs[0].Envelope.Sequence {
		t.Fatalf("receipt sequence %d != envelope sequence %d", receipt.Sequence, outputs[0].Envelope.Sequence)
	}
}

func TestLiquidationMustImproveTarget(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	target := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, target, "WETH", eth(10), testEpoch)
	env.mint(t, target, usd(10_000), testEpoch)

	// A crash deep enough that seizing bonus-priced collateral removes
	// adjusted backing faster than the burned debt shrinks the divisor.
	crash := testEpoch.Add(time.Minute)
	env.price(t, "WETH", 500_00000000, 2, crash)

	hashBefore := env.engine.GetStateHash()

	err := env.engine.ProcessEvent(&event.Liquidate{
		OperationID: uuid.New(),
		Liquidator:  uuid.New(),
		Target:      target,
		Asset:       "WETH",
		DebtToCover: usd(1000),
		Timestamp:   crash,
	})
	if !errors.Is(err, dscerr.ErrHealthFactorNotImproved) {
		t.Fatalf("expected not-improved rejection, got %v", err)
	}

	wethID, _ := env.engine.Registry().LookupSymbol("WETH")
	wantBig(t, "collateral", env.engine.Balances().GetUserCollateral(target, wethID), eth(10))
	wantBig(t, "debt", env.engine.Balances().GetUserDebt(target), usd(10_000))
	if env.engine.GetStateHash() != hashBefore {
		t.Fatal("rejected liquidation changed the state hash")
	}
}

// =====================================================================
// Test: Replay walks the identical hash chain
// =====================================================================

func TestReplayReproducesStateHashes(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, user, "WETH", eth(10), testEpoch)
	env.mint(t, user, usd(5000), testEpoch)

	err := env.engine.ProcessEvent(&event.BurnDsc{
		OperationID: uuid.New(),
		Account:     user,
		Amount:      usd(1000),
		Timestamp:   testEpoch,
	})
	if err != nil {
		t.Fatalf("burn failed: %v", err)
	}

	outputs := env.drainOutputs()
	if len(outputs) != 4 {
		t.Fatalf("expected 4 outputs, got %d", len(outputs))
	}

	// Rebuild a cold engine from the stored payloads, the way recovery
	// does, and demand the same hash at every step.
	replayEnv := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	for _, out := range outputs {
		evt, err := event.Decode(out.Envelope.EventType, out.Envelope.Payload)
		if err != nil {
			t.Fatalf("decode seq %d: %v", out.Envelope.Sequence, err)
		}
		if err := replayEnv.engine.Replay(evt); err != nil {
			t.Fatalf("replay seq %d: %v", out.Envelope.Sequence, err)
		}
		if got := replayEnv.engine.GetStateHash(); got != out.Envelope.StateHash {
			t.Fatalf("hash divergence at seq %d", out.Envelope.Sequence)
		}
	}

	if replayEnv.engine.GetSequence() != env.engine.GetSequence() {
		t.Fatalf("sequence mismatch: %d vs %d", replayEnv.engine.GetSequence(), env.engine.GetSequence())
	}
	wantBig(t, "replayed debt", replayEnv.engine.Balances().GetUserDebt(user), usd(4000))
}

// =====================================================================
// Test: Snapshot restore continues the chain
// =====================================================================

func TestSnapshotRestoreContinuesChain(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, user, "WETH", eth(10), testEpoch)
	env.mint(t, user, usd(5000), testEpoch)
	env.drainOutputs()

	snap := env.engine.CreateSnapshotState()

	restored := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	restored.engine.RestoreFromSnapshot(snap)
	restored.engine.WarmDedup(snap.IdempotencyKeys)

	if restored.engine.GetSequence() != env.engine.GetSequence() {
		t.Fatalf("restored sequence %d, want %d", restored.engine.GetSequence(), env.engine.GetSequence())
	}
	if restored.engine.GetStateHash() != env.engine.GetStateHash() {
		t.Fatal("restored state hash differs")
	}
	wantBig(t, "restored debt", restored.engine.Balances().GetUserDebt(user), usd(5000))

	// Both engines apply the same next event and must agree on the hash.
	next := &event.BurnDsc{
		OperationID: uuid.New(),
		Account:     user,
		Amount:      usd(500),
		Timestamp:   testEpoch,
	}
	if err := env.engine.ProcessEvent(next); err != nil {
		t.Fatalf("burn on original failed: %v", err)
	}
	if err := restored.engine.ProcessEvent(next); err != nil {
		t.Fatalf("burn on restored failed: %v", err)
	}
	if restored.engine.GetStateHash() != env.engine.GetStateHash() {
		t.Fatal("chains diverged after restore")
	}
}

// =====================================================================
// Test: Submit/View loop semantics
// =====================================================================

func TestSubmitAndViewThroughRunLoop(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.engine.Run(ctx) }()

	_, err := env.engine.Submit(ctx, &event.PriceUpdate{
		Asset:          "WETH",
		Price:          big.NewInt(2000_00000000),
		FeedDecimals:   8,
		FeedSequence:   1,
		PriceTimestamp: testEpoch,
	})
	if err != nil {
		t.Fatalf("submit price failed: %v", err)
	}

	res, err := env.engine.Submit(ctx, &event.DepositCollateral{
		OperationID: uuid.New(),
		Account:     user,
		Asset:       "WETH",
		Amount:      eth(3),
		Timestamp:   testEpoch,
	})
	if err != nil {
		t.Fatalf("submit deposit failed: %v", err)
	}
	if res.Sequence != 1 {
		t.Fatalf("deposit sequence = %d, want 1", res.Sequence)
	}

	var hf *big.Int
	err = env.engine.View(ctx, func(e *Engine) error {
		var viewErr error
		hf, viewErr = e.Health().HealthFactor(user)
		return viewErr
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	wantBig(t, "healthFactor via view", hf, wad.MaxUint256)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run loop returned %v", err)
	}
}

// =====================================================================
// Test: Structural invariants hold across a mixed workload
// =====================================================================

func TestZeroSumAcrossWorkload(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.price(t, "WBTC", 50000_00000000, 1, testEpoch)

	users := make([]uuid.UUID, 5)
	for i := range users {
		users[i] = uuid.New()
		env.deposit(t, users[i], "WETH", eth(int64(i+1)), testEpoch)
		env.mint(t, users[i], usd(int64(100*(i+1))), testEpoch)
	}
	env.deposit(t, users[0], "WBTC", big.NewInt(3_00000000), testEpoch)

	sums := env.engine.Balances().ComputeGlobalBalance()
	for assetID, sum := range sums {
		if sum.Sign() != 0 {
			t.Fatalf("asset %d sums to %s, want 0", assetID, sum)
		}
	}

	// Minted debt across all users must equal outstanding supply.
	totalDebt := big.NewInt(0)
	for _, u := range users {
		totalDebt.Add(totalDebt, env.engine.Balances().GetUserDebt(u))
	}
	wantBig(t, "supply vs debt", env.engine.Balances().GetStableSupply(), totalDebt)
}

// =====================================================================
// Test: Max mintable matches mint acceptance exactly
// =====================================================================

func TestMaxMintableBoundary(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, user, "WETH", eth(10), testEpoch)

	headroom, err := env.engine.Health().MaxMintable(user)
	if err != nil {
		t.Fatalf("MaxMintable failed: %v", err)
	}
	wantBig(t, "headroom", headroom, usd(10_000))

	// Minting exactly the headroom succeeds; one wei more is refused.
	env.mint(t, user, headroom, testEpoch)

	err = env.engine.ProcessEvent(&event.MintDsc{
		OperationID: uuid.New(),
		Account:     user,
		Amount:      big.NewInt(1),
		Timestamp:   testEpoch,
	})
	if !errors.Is(err, dscerr.ErrBrokenHealthFactor) {
		t.Fatalf("expected broken health factor past headroom, got %v", err)
	}
}

// =====================================================================
// Test: Status classification through the position view
// =====================================================================

func TestPositionStatusFlipsOnCrash(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, user, "WETH", eth(10), testEpoch)
	env.mint(t, user, usd(9000), testEpoch)

	pos, err := env.engine.Health().Position(user)
	if err != nil {
		t.Fatalf("Position failed: %v", err)
	}
	if pos.Status != state.StatusHealthy {
		t.Fatalf("status = %s, want Healthy", pos.Status)
	}

	crash := testEpoch.Add(time.Minute)
	env.price(t, "WETH", 1700_00000000, 2, crash)

	pos, err = env.engine.Health().Position(user)
	if err != nil {
		t.Fatalf("Position after crash failed: %v", err)
	}
	if pos.Status != state.StatusLiquidatable {
		t.Fatalf("status after crash = %s, want Liquidatable", pos.Status)
	}
}

// =====================================================================
// Test: Replay completes without downstream consumers
// =====================================================================

// Recovery runs before the persistence and projection workers start, so
// replay must finish even when nobody drains the output channels and the
// replayed history is longer than the persist buffer.
func TestReplayEmitsNoOutputs(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, user, "WETH", eth(10), testEpoch)
	env.mint(t, user, usd(5000), testEpoch)
	outputs := env.drainOutputs()
	if len(outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(outputs))
	}

	registry, err := ledger.NewRegistry([]ledger.Asset{
		{Symbol: "WETH", Decimals: 18},
		{Symbol: "WBTC", Decimals: 8},
	}, "DSC", 18)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	persist := make(chan Output, 1) // smaller than the replayed history
	projection := make(chan Output, 1)
	replica, err := NewEngine(0, registry,
		[]FeedSpec{
			{Decimals: 8, MaxAge: time.Hour},
			{Decimals: 8, MaxAge: time.Hour},
		},
		NoopStableCoin{}, NoopCollateralBank{},
		persist, projection, nil, 1024, 16, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	for _, out := range outputs {
		evt, err := event.Decode(out.Envelope.EventType, out.Envelope.Payload)
		if err != nil {
			t.Fatalf("decode seq %d: %v", out.Envelope.Sequence, err)
		}
		if err := replica.Replay(evt); err != nil {
			t.Fatalf("replay seq %d: %v", out.Envelope.Sequence, err)
		}
	}

	if len(persist) != 0 || len(projection) != 0 {
		t.Fatalf("replay queued outputs: persist=%d projection=%d", len(persist), len(projection))
	}
	if replica.GetStateHash() != env.engine.GetStateHash() {
		t.Fatal("replayed state hash diverged")
	}
	wantBig(t, "replayed debt", replica.Balances().GetUserDebt(user), usd(5000))
}

// =====================================================================
// Test: Journal rows carry the envelope sequence and stable identity
// =====================================================================

func TestJournalSequenceMatchesEnvelope(t *testing.T) {
	env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
	user := uuid.New()

	// A price tick advances the engine sequence without producing
	// journal legs; the rows of the following deposit must still carry
	// the deposit's own envelope sequence.
	env.price(t, "WETH", 2000_00000000, 1, testEpoch)
	env.deposit(t, user, "WETH", eth(10), testEpoch)

	outputs := env.drainOutputs()
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}

	for _, out := range outputs {
		if out.Batch.Sequence != out.Envelope.Sequence {
			t.Fatalf("batch sequence %d, envelope sequence %d", out.Batch.Sequence, out.Envelope.Sequence)
		}
		for i, j := range out.Batch.Journals {
			if j.Sequence != out.Envelope.Sequence {
				t.Fatalf("journal sequence %d, envelope sequence %d", j.Sequence, out.Envelope.Sequence)
			}
			if j.BatchID != out.Batch.BatchID {
				t.Fatal("journal batch ID does not match its batch")
			}
			if j.JournalID != ledger.JournalIDAt(out.Envelope.Sequence, i) {
				t.Fatal("journal ID is not derived from the envelope sequence")
			}
		}
	}

	deposit := outputs[1]
	if deposit.Envelope.Sequence != 1 {
		t.Fatalf("deposit envelope sequence = %d, want 1", deposit.Envelope.Sequence)
	}
	if deposit.Batch.Journals[0].Sequence != 1 {
		t.Fatalf("deposit journal sequence = %d, want 1", deposit.Batch.Journals[0].Sequence)
	}
}

// =====================================================================
// Test: Identical histories produce identical journal identity
// =====================================================================

func TestJournalIdentityStableAcrossEngines(t *testing.T) {
	user := uuid.New()
	opID := uuid.New()

	run := func() []Output {
		env := newEngineEnv(t, NoopStableCoin{}, NoopCollateralBank{})
		env.price(t, "WETH", 2000_00000000, 1, testEpoch)
		err := env.engine.ProcessEvent(&event.DepositCollateral{
			OperationID: opID,
			Account:     user,
			Asset:       "WETH",
			Amount:      eth(10),
			Timestamp:   testEpoch,
		})
		if err != nil {
			t.Fatalf("deposit failed: %v", err)
		}
		return env.drainOutputs()
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("output counts differ: %d vs %d", len(first), len(second))
	}

	for i := range first {
		if first[i].Batch.BatchID != second[i].Batch.BatchID {
			t.Fatalf("batch ID differs at seq %d", first[i].Envelope.Sequence)
		}
		for leg := range first[i].Batch.Journals {
			if first[i].Batch.Journals[leg].JournalID != second[i].Batch.Journals[leg].JournalID {
				t.Fatalf("journal ID differs at seq %d leg %d", first[i].Envelope.Sequence, leg)
			}
		}
	}
}
