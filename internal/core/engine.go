package core

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"DscLedger/internal/dscerr"
	"DscLedger/internal/event"
	"DscLedger/internal/ledger"
	"DscLedger/internal/observability"
	"DscLedger/internal/oracle"
	"DscLedger/internal/state"

	"github.com/google/uuid"
)

// Engine is the single-threaded event processor. Every mutation of
// ledger state runs through ProcessEvent on one goroutine; the shell
// around it (HTTP handlers, feed ingestion) only submits events and
// waits for verdicts. Rejections leave no trace: an operation either
// lands in the event log whole or not at all.
type Engine struct {
	sequence int64
	hasher   *StateHasher
	registry *ledger.Registry

	balanceTracker *ledger.BalanceTracker
	journalGen     *ledger.JournalGenerator
	validator      *ledger.InvariantValidator

	prices  *oracle.Store
	adapter *oracle.Adapter
	health  *state.HealthCalculator

	stableCoin     StableCoin
	collateralBank CollateralBank

	idempotency   *IdempotencyChecker
	feedSequences *FeedSequenceValidator

	metrics *observability.Metrics

	// clock carries the current event's timestamp so staleness checks
	// never consult the wall clock. Replays see identical clocks.
	clock eventClock

	persistChan    chan<- Output
	projectionChan chan<- Output

	submitCh chan Submission
}

type eventClock struct {
	now time.Time
}

// Output is one applied event leaving the engine: the envelope for the
// event log, the journal batch, the digest that went into the state
// hash, and the liquidation receipt when the event was a liquidation.
type Output struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte
	Receipt    *state.LiquidationReceipt
}

// FeedSpec describes the price feed wired to one collateral asset, in
// registry order. The number of specs must match the number of
// collateral assets.
type FeedSpec struct {
	Decimals uint8
	MaxAge   time.Duration
}

func NewEngine(
	startSequence int64,
	registry *ledger.Registry,
	feeds []FeedSpec,
	stableCoin StableCoin,
	collateralBank CollateralBank,
	persistChan, projectionChan chan<- Output,
	dedupLookup DedupLookup,
	dedupCapacity int,
	submitQueue int,
	metrics *observability.Metrics,
) (*Engine, error) {
	balanceTracker := ledger.NewBalanceTracker(registry)
	journalGen := ledger.NewJournalGenerator(balanceTracker, registry)
	validator := ledger.NewInvariantValidator(balanceTracker, registry)

	priceStore := oracle.NewStore(registry)
	assets := registry.CollateralAssets()
	bindings := make([]oracle.FeedBinding, len(feeds))
	for i := range feeds {
		bindings[i].MaxAge = feeds[i].MaxAge
		if i < len(assets) {
			priceStore.ExpectDecimals(assets[i].ID, feeds[i].Decimals)
			bindings[i].Feed = priceStore.FeedFor(assets[i].ID)
		}
	}

	e := &Engine{
		sequence:       startSequence,
		hasher:         NewStateHasher(),
		registry:       registry,
		balanceTracker: balanceTracker,
		journalGen:     journalGen,
		validator:      validator,
		prices:         priceStore,
		stableCoin:     stableCoin,
		collateralBank: collateralBank,
		idempotency:    NewIdempotencyChecker(dedupCapacity, dedupLookup),
		feedSequences:  NewFeedSequenceValidator(),
		metrics:        metrics,
		persistChan:    persistChan,
		projectionChan: projectionChan,
		submitCh:       make(chan Submission, submitQueue),
	}

	adapter, err := oracle.NewAdapter(registry, bindings, func() time.Time { return e.clock.now })
	if err != nil {
		return nil, err
	}
	e.adapter = adapter
	e.health = state.NewHealthCalculator(registry, balanceTracker, adapter)

	return e, nil
}

// ProcessEvent runs one event through the full pipeline.
func (e *Engine) ProcessEvent(evt event.Event) error {
	return e.process(evt, false)
}

// Replay re-applies an event from the log during recovery. Duplicate
// checks consult only the in-memory tier (every replayed event is in
// the log by definition), external capabilities are not re-fired (the
// outside world already reflects them), and nothing is emitted
// downstream: the log already holds these rows, and recovery runs
// before the persistence worker starts.
func (e *Engine) Replay(evt event.Event) error {
	return e.process(evt, true)
}

func (e *Engine) process(evt event.Event, replay bool) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	var isDuplicate bool
	if replay {
		isDuplicate = e.idempotency.lru.Contains(compositeKey(eventType, idempotencyKey))
	} else {
		isDuplicate = e.idempotency.IsDuplicate(eventType, idempotencyKey)
	}
	if isDuplicate {
		e.rejected(eventType, "duplicate")
		return nil
	}

	if priceEvt, ok := evt.(*event.PriceUpdate); ok {
		if e.feedSequences.Observe(priceEvt.Asset, priceEvt.FeedSequence) == FeedSeqGap {
			if e.metrics != nil {
				e.metrics.FeedSequenceGaps.WithLabelValues(priceEvt.Asset).Inc()
			}
		}
	}

	e.clock.now = eventTimestamp(evt)

	res, err := e.dispatch(evt)
	if err != nil {
		e.rejected(eventType, dscerr.Code(err))
		return err
	}

	batch := res.batch
	e.stampBatch(batch)
	if len(batch.Journals) > 0 {
		if err := e.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := e.balanceTracker.ApplyBatch(batch); err != nil {
			e.rejected(eventType, dscerr.Code(err))
			return fmt.Errorf("apply batch failed: %w", err)
		}
	}

	// Post-checks run against the applied balances. A failure reverses
	// the batch in memory, so the rejected operation never existed.
	if err := e.runPostChecks(res); err != nil {
		e.unwind(batch)
		e.rejected(eventType, dscerr.Code(err))
		return err
	}

	if !replay {
		if err := e.runCapabilities(res.actions); err != nil {
			e.unwind(batch)
			e.rejected(eventType, dscerr.Code(err))
			return err
		}
	}

	e.assertStructuralInvariants()

	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal event payload: %v", err))
	}

	stateDigest := e.computeStateDigest(batch)
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, stateDigest)

	envelope := &event.EventEnvelope{
		Sequence:       e.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Asset:          evt.AssetSymbol(),
		Timestamp:      e.clock.now,
		SourceSequence: evt.SourceSequence(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	if res.receipt != nil {
		res.receipt.Sequence = e.sequence
	}

	output := Output{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: stateDigest,
		Receipt:    res.receipt,
	}
	e.sequence++

	// Persistence is a blocking send: the engine stalls rather than
	// lose an accepted event. Projections are best-effort and rebuild
	// from the log when they fall behind. Replayed events emit nothing:
	// their rows are already durable, and the downstream workers are
	// not running yet during recovery.
	if !replay {
		e.persistChan <- output
		select {
		case e.projectionChan <- output:
		default:
		}
	}

	e.idempotency.MarkProcessed(eventType, idempotencyKey)

	if e.metrics != nil {
		e.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		e.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(e.sequence))
		for _, j := range batch.Journals {
			e.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
		}
	}

	return nil
}

func (e *Engine) rejected(eventType, reason string) {
	if e.metrics != nil {
		e.metrics.CoreEventsRejected.WithLabelValues(eventType, reason).Inc()
	}
}

// unwind reverses an applied batch.
func (e *Engine) unwind(batch *ledger.Batch) {
	if len(batch.Journals) > 0 {
		e.balanceTracker.ReverseBatch(batch)
	}
}

// stampBatch assigns the engine sequence and the sequence-derived batch
// and journal IDs to an accepted batch. Identity is a pure function of
// the sequence, so a replay reproduces byte-identical journal rows and
// the ON CONFLICT guards in the writer actually dedupe them.
func (e *Engine) stampBatch(batch *ledger.Batch) {
	batch.Sequence = e.sequence
	batch.BatchID = ledger.BatchIDAt(e.sequence)
	for i := range batch.Journals {
		batch.Journals[i].Sequence = e.sequence
		batch.Journals[i].BatchID = batch.BatchID
		batch.Journals[i].JournalID = ledger.JournalIDAt(e.sequence, i)
	}
}

// dispatchResult carries everything the pipeline needs after a handler
// has validated and journaled an event.
type dispatchResult struct {
	batch *ledger.Batch

	// accounts that must sit at or above the solvency floor after the
	// batch applies
	healthChecks []uuid.UUID

	// liquidations additionally require the target to strictly improve
	improvement *improvementCheck

	// external steps to run once all internal checks pass
	actions []capAction

	receipt *state.LiquidationReceipt
}

type improvementCheck struct {
	account uuid.UUID
	before  *big.Int
}

func (e *Engine) runPostChecks(res *dispatchResult) error {
	for _, account := range res.healthChecks {
		if err := e.health.AssertHealthy(account); err != nil {
			return err
		}
	}

	if ic := res.improvement; ic != nil {
		after, err := e.health.HealthFactor(ic.account)
		if err != nil {
			return err
		}
		if after.Cmp(ic.before) <= 0 {
			return dscerr.ErrHealthFactorNotImproved
		}
		if res.receipt != nil {
			res.receipt.HealthAfter = after
		}
	}

	return nil
}

func (e *Engine) runCapabilities(actions []capAction) error {
	for i, action := range actions {
		if err := action.run(); err != nil {
			for j := i - 1; j >= 0; j-- {
				if undoErr := actions[j].undo(); undoErr != nil {
					panic(fmt.Sprintf("FATAL: capability compensation failed: %v (while unwinding %v)", undoErr, err))
				}
			}
			return fmt.Errorf("%w: %v", action.fail, err)
		}
	}
	return nil
}

// assertStructuralInvariants spot-checks the zero-sum and supply
// invariants. Violations are programming errors, not user errors.
func (e *Engine) assertStructuralInvariants() {
	if e.sequence == 0 || e.sequence%1000 != 0 {
		return
	}
	if err := e.validator.ValidateGlobalBalance(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated at seq %d: %v", e.sequence, err))
	}
	if err := e.validator.ValidateSupplyMatchesDebt(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated at seq %d: %v", e.sequence, err))
	}
}

func (e *Engine) dispatch(evt event.Event) (*dispatchResult, error) {
	switch ev := evt.(type) {
	case *event.PriceUpdate:
		return e.handlePriceUpdate(ev)
	case *event.DepositCollateral:
		return e.handleDeposit(ev)
	case *event.RedeemCollateral:
		return e.handleRedeem(ev)
	case *event.MintDsc:
		return e.handleMint(ev)
	case *event.BurnDsc:
		return e.handleBurn(ev)
	case *event.DepositAndMint:
		return e.handleDepositAndMint(ev)
	case *event.RedeemForDsc:
		return e.handleRedeemForDsc(ev)
	case *event.Liquidate:
		return e.handleLiquidate(ev)
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// collateralAsset resolves a symbol to a configured collateral asset.
func (e *Engine) collateralAsset(symbol string) (ledger.AssetID, error) {
	assetID, ok := e.registry.LookupSymbol(symbol)
	if !ok || !e.registry.IsCollateral(assetID) {
		return 0, fmt.Errorf("%w: %s", dscerr.ErrUnsupportedAsset, symbol)
	}
	return assetID, nil
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return dscerr.ErrZeroAmount
	}
	return nil
}

func (e *Engine) handlePriceUpdate(evt *event.PriceUpdate) (*dispatchResult, error) {
	assetID, err := e.collateralAsset(evt.Asset)
	if err != nil {
		return nil, err
	}
	if err := e.prices.Apply(assetID, evt.Price, evt.FeedDecimals, evt.FeedSequence, evt.PriceTimestamp); err != nil {
		return nil, err
	}

	// Price ticks mutate oracle state only. The envelope still lands in
	// the event log so a replay reproduces every valuation decision.
	return &dispatchResult{batch: e.emptyBatch(evt)}, nil
}

func (e *Engine) handleDeposit(evt *event.DepositCollateral) (*dispatchResult, error) {
	assetID, err := e.collateralAsset(evt.Asset)
	if err != nil {
		return nil, err
	}
	if err := requirePositive(evt.Amount); err != nil {
		return nil, err
	}

	batch, err := e.journalGen.GenerateDeposit(evt.Account, evt.OperationID.String(), assetID, evt.Amount, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}

	// Deposits only strengthen a position, so no solvency post-check.
	return &dispatchResult{
		batch:   batch,
		actions: []capAction{pullAction(e.collateralBank, evt.Account, evt.Asset, evt.Amount)},
	}, nil
}

func (e *Engine) handleRedeem(evt *event.RedeemCollateral) (*dispatchResult, error) {
	assetID, err := e.collateralAsset(evt.Asset)
	if err != nil {
		return nil, err
	}
	if err := requirePositive(evt.Amount); err != nil {
		return nil, err
	}

	batch, err := e.journalGen.GenerateRedeem(evt.Account, evt.OperationID.String(), assetID, evt.Amount, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}

	return &dispatchResult{
		batch:        batch,
		healthChecks: []uuid.UUID{evt.Account},
		actions:      []capAction{releaseAction(e.collateralBank, evt.Account, evt.Asset, evt.Amount)},
	}, nil
}

func (e *Engine) handleMint(evt *event.MintDsc) (*dispatchResult, error) {
	if err := requirePositive(evt.Amount); err != nil {
		return nil, err
	}

	batch, err := e.journalGen.GenerateMint(evt.Account, evt.OperationID.String(), evt.Amount, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}

	return &dispatchResult{
		batch:        batch,
		healthChecks: []uuid.UUID{evt.Account},
		actions:      []capAction{mintAction(e.stableCoin, evt.Account, evt.Amount)},
	}, nil
}

func (e *Engine) handleBurn(evt *event.BurnDsc) (*dispatchResult, error) {
	if err := requirePositive(evt.Amount); err != nil {
		return nil, err
	}

	batch, err := e.journalGen.GenerateBurn(evt.Account, evt.OperationID.String(), evt.Amount, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}

	// Shrinking debt cannot weaken the position; the check is kept as a
	// cheap formality on the mutation path.
	return &dispatchResult{
		batch:        batch,
		healthChecks: []uuid.UUID{evt.Account},
		actions:      []capAction{burnAction(e.stableCoin, evt.Account, evt.Amount)},
	}, nil
}

func (e *Engine) handleDepositAndMint(evt *event.DepositAndMint) (*dispatchResult, error) {
	assetID, err := e.collateralAsset(evt.Asset)
	if err != nil {
		return nil, err
	}
	if err := requirePositive(evt.DepositAmount); err != nil {
		return nil, err
	}
	if err := requirePositive(evt.MintAmount); err != nil {
		return nil, err
	}

	batch, err := e.journalGen.GenerateDepositAndMint(evt.Account, evt.OperationID.String(), assetID, evt.DepositAmount, evt.MintAmount, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}

	return &dispatchResult{
		batch:        batch,
		healthChecks: []uuid.UUID{evt.Account},
		actions: []capAction{
			pullAction(e.collateralBank, evt.Account, evt.Asset, evt.DepositAmount),
			mintAction(e.stableCoin, evt.Account, evt.MintAmount),
		},
	}, nil
}

func (e *Engine) handleRedeemForDsc(evt *event.RedeemForDsc) (*dispatchResult, error) {
	assetID, err := e.collateralAsset(evt.Asset)
	if err != nil {
		return nil, err
	}
	if err := requirePositive(evt.RedeemAmount); err != nil {
		return nil, err
	}
	if err := requirePositive(evt.BurnAmount); err != nil {
		return nil, err
	}

	batch, err := e.journalGen.GenerateRedeemForDsc(evt.Account, evt.OperationID.String(), assetID, evt.RedeemAmount, evt.BurnAmount, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}

	return &dispatchResult{
		batch:        batch,
		healthChecks: []uuid.UUID{evt.Account},
		actions: []capAction{
			burnAction(e.stableCoin, evt.Account, evt.BurnAmount),
			releaseAction(e.collateralBank, evt.Account, evt.Asset, evt.RedeemAmount),
		},
	}, nil
}

func (e *Engine) handleLiquidate(evt *event.Liquidate) (*dispatchResult, error) {
	assetID, err := e.collateralAsset(evt.Asset)
	if err != nil {
		return nil, err
	}
	if err := requirePositive(evt.DebtToCover); err != nil {
		return nil, err
	}

	before, err := e.health.HealthFactor(evt.Target)
	if err != nil {
		return nil, err
	}
	if before.Cmp(state.MinHealthFactor) >= 0 {
		return nil, dscerr.ErrHealthFactorOk
	}

	seizure, err := state.SeizureFor(e.adapter, assetID, evt.DebtToCover)
	if err != nil {
		return nil, err
	}

	batch, err := e.journalGen.GenerateLiquidation(evt.Target, evt.OperationID.String(), assetID, seizure.Total, evt.DebtToCover, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}

	receipt := &state.LiquidationReceipt{
		OperationID:      evt.OperationID,
		Liquidator:       evt.Liquidator,
		Target:           evt.Target,
		Asset:            evt.Asset,
		DebtCovered:      new(big.Int).Set(evt.DebtToCover),
		CollateralSeized: seizure.Total,
		BonusCollateral:  seizure.Bonus,
		HealthBefore:     before,
		Timestamp:        evt.Timestamp,
	}

	return &dispatchResult{
		batch:        batch,
		healthChecks: []uuid.UUID{evt.Liquidator},
		improvement:  &improvementCheck{account: evt.Target, before: before},
		actions: []capAction{
			burnAction(e.stableCoin, evt.Liquidator, evt.DebtToCover),
			releaseAction(e.collateralBank, evt.Liquidator, evt.Asset, seizure.Total),
		},
		receipt: receipt,
	}, nil
}

func (e *Engine) emptyBatch(evt event.Event) *ledger.Batch {
	return &ledger.Batch{
		OperationRef: evt.IdempotencyKey(),
		Timestamp:    e.clock.now.UnixMicro(),
		Journals:     []ledger.Journal{},
	}
}

// eventTimestamp extracts the versioned timestamp carried by the event.
// The engine never calls time.Now() for state decisions; every
// timestamp is an input, which is what keeps replays deterministic.
func eventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.DepositCollateral:
		return e.Timestamp
	case *event.RedeemCollateral:
		return e.Timestamp
	case *event.MintDsc:
		return e.Timestamp
	case *event.BurnDsc:
		return e.Timestamp
	case *event.DepositAndMint:
		return e.Timestamp
	case *event.RedeemForDsc:
		return e.Timestamp
	case *event.Liquidate:
		return e.Timestamp
	case *event.PriceUpdate:
		return e.PriceTimestamp
	default:
		panic(fmt.Sprintf("FATAL: eventTimestamp called with unhandled event type %T", evt))
	}
}

// computeStateDigest serializes the balances touched by a batch into
// canonical bytes for the state hash: accounts sorted by path, each as
// a length-prefixed path followed by sign and 32-byte magnitude.
func (e *Engine) computeStateDigest(batch *ledger.Batch) []byte {
	affected := make(map[ledger.AccountKey]bool)
	if batch != nil {
		for _, j := range batch.Journals {
			affected[j.DebitAccount] = true
			affected[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath(e.registry) < accounts[j].AccountPath(e.registry)
	})

	digest := make([]byte, 0, len(accounts)*80)
	for _, key := range accounts {
		path := key.AccountPath(e.registry)
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendBigInt(digest, e.balanceTracker.GetBalance(key))
	}

	return digest
}

// appendBigInt appends a sign byte and a 32-byte big-endian magnitude.
func appendBigInt(buf []byte, v *big.Int) []byte {
	var mag [32]byte
	sign := byte(0)
	if v.Sign() < 0 {
		sign = 1
		new(big.Int).Neg(v).FillBytes(mag[:])
	} else {
		v.FillBytes(mag[:])
	}
	buf = append(buf, sign)
	return append(buf, mag[:]...)
}

// --- Snapshot & Recovery ---

// SnapshotState is the serializable in-memory state for warm restarts.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]*big.Int
	Prices          map[ledger.AssetID]*oracle.PriceState
	FeedSequences   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot loads a snapshot into the engine. Events after
// the snapshot sequence are then re-applied via Replay.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) {
	e.sequence = snap.Sequence + 1
	e.hasher.SetPrevHash(snap.StateHash)
	e.balanceTracker.Restore(snap.Balances)
	e.prices.Restore(snap.Prices)
	e.feedSequences.Restore(snap.FeedSequences)
}

// CreateSnapshotState captures the current in-memory state.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        e.sequence - 1,
		StateHash:       e.hasher.GetPrevHash(),
		Balances:        e.balanceTracker.Snapshot(),
		Prices:          e.prices.Snapshot(),
		FeedSequences:   e.feedSequences.Snapshot(),
		IdempotencyKeys: e.idempotency.Keys(),
	}
}

// WarmDedup preloads idempotency keys from a snapshot.
func (e *Engine) WarmDedup(keys []string) {
	e.idempotency.Warm(keys)
}

// GetSequence returns the next sequence the engine will assign.
func (e *Engine) GetSequence() int64 {
	return e.sequence
}

// GetStateHash returns the current chain tip.
func (e *Engine) GetStateHash() [32]byte {
	return e.hasher.GetPrevHash()
}

// Health exposes the calculator for reads submitted via View.
func (e *Engine) Health() *state.HealthCalculator {
	return e.health
}

// Balances exposes the tracker for reads submitted via View.
func (e *Engine) Balances() *ledger.BalanceTracker {
	return e.balanceTracker
}

// Oracle exposes the price adapter for reads submitted via View.
func (e *Engine) Oracle() *oracle.Adapter {
	return e.adapter
}

// Registry returns the configured asset registry. Immutable after
// construction, safe from any goroutine.
func (e *Engine) Registry() *ledger.Registry {
	return e.registry
}

// Prices exposes the raw feed store for reads submitted via View.
func (e *Engine) Prices() *oracle.Store {
	return e.prices
}
