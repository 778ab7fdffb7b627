package persistence_test

import (
	"context"
	"testing"
	"time"

	"DscLedger/internal/persistence"
	"DscLedger/internal/testutil"

	"github.com/google/uuid"
)

// =====================================================================
// Test: Event log round trip through a real Postgres
// =====================================================================

func TestEventLogRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	writer := persistence.NewEventLogWriter(db)
	asset := "WETH"
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	events := []persistence.EventRow{
		{
			Sequence:       0,
			EventType:      "PriceUpdate",
			IdempotencyKey: "WETH:price:1",
			Asset:          &asset,
			Payload:        []byte(`{"Asset":"WETH"}`),
			StateHash:      make([]byte, 32),
			PrevHash:       make([]byte, 32),
			Timestamp:      now,
			SourceSequence: 1,
		},
		{
			Sequence:       1,
			EventType:      "DepositCollateral",
			IdempotencyKey: uuid.NewString(),
			Asset:          &asset,
			Payload:        []byte(`{"Asset":"WETH"}`),
			StateHash:      make([]byte, 32),
			PrevHash:       make([]byte, 32),
			Timestamp:      now,
			SourceSequence: 0,
		},
	}

	journals := []persistence.JournalRow{
		{
			JournalID:     uuid.NewString(),
			BatchID:       uuid.NewString(),
			OperationRef:  events[1].IdempotencyKey,
			Sequence:      1,
			DebitAccount:  "user:" + uuid.NewString() + ":collateral:WETH",
			CreditAccount: "external:wallet:WETH",
			AssetID:       1,
			// amount wider than int64 to prove NUMERIC(78,0) fidelity
			Amount:      "123456789012345678901234567890",
			JournalType: 0,
			Timestamp:   now.UnixMicro(),
		},
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := writer.WriteEventBatch(ctx, tx, events); err != nil {
		t.Fatalf("write events: %v", err)
	}
	if err := writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		t.Fatalf("write journals: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Re-flushing the identical batch must be a no-op, not an error.
	tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin retry tx: %v", err)
	}
	if err := writer.WriteEventBatch(ctx, tx, events); err != nil {
		t.Fatalf("re-write events: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit retry: %v", err)
	}

	snapMgr := persistence.NewSnapshotManager(db)
	loaded, err := snapMgr.LoadEventsFrom(ctx, 0, 100)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d events, want 2", len(loaded))
	}
	if loaded[0].Sequence != 0 || loaded[1].Sequence != 1 {
		t.Fatalf("events out of order: %d, %d", loaded[0].Sequence, loaded[1].Sequence)
	}
	if loaded[0].Asset == nil || *loaded[0].Asset != "WETH" {
		t.Fatalf("asset did not survive the round trip: %v", loaded[0].Asset)
	}

	var amount string
	err = db.QueryRowContext(ctx,
		`SELECT amount::text FROM event_log.journal WHERE journal_id = $1`,
		journals[0].JournalID).Scan(&amount)
	if err != nil {
		t.Fatalf("read journal amount: %v", err)
	}
	if amount != journals[0].Amount {
		t.Fatalf("amount = %s, want %s", amount, journals[0].Amount)
	}
}

// =====================================================================
// Test: Cold-path dedup sees persisted events
// =====================================================================

func TestPostgresDedupSeen(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	key := uuid.NewString()
	writer := persistence.NewEventLogWriter(db)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	err = writer.WriteEventBatch(ctx, tx, []persistence.EventRow{{
		Sequence:       0,
		EventType:      "MintDsc",
		IdempotencyKey: key,
		Payload:        []byte(`{}`),
		StateHash:      make([]byte, 32),
		PrevHash:       make([]byte, 32),
		Timestamp:      time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("write event: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	dedup := persistence.NewPostgresDedup(db)

	seen, err := dedup.Seen("MintDsc", key)
	if err != nil {
		t.Fatalf("seen lookup: %v", err)
	}
	if !seen {
		t.Fatal("persisted key reported as unseen")
	}

	// Same key under a different event type is a different operation.
	seen, err = dedup.Seen("BurnDsc", key)
	if err != nil {
		t.Fatalf("cross-type lookup: %v", err)
	}
	if seen {
		t.Fatal("key leaked across event types")
	}
}

// =====================================================================
// Test: Snapshot save, verify, load
// =====================================================================

func TestSnapshotLifecycle(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	snapMgr := persistence.NewSnapshotManager(db)

	snap := &persistence.SnapshotData{
		Sequence:  41,
		StateHash: make([]byte, 32),
		Balances: map[string]string{
			"system:supply:DSC": "-5000000000000000000000",
		},
		Prices: map[string]persistence.PriceSnap{
			"WETH": {Price: "200000000000", Decimals: 8, FeedSequence: 7, UpdatedAt: time.Now().UTC()},
		},
		FeedSequences:   map[string]int64{"WETH": 8},
		IdempotencyKeys: []string{"MintDsc:" + uuid.NewString()},
		CreatedAt:       time.Now().UTC(),
	}

	if err := snapMgr.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	// Unverified snapshots must never be offered for recovery.
	loaded, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load before verify: %v", err)
	}
	if loaded != nil {
		t.Fatal("unverified snapshot was loaded")
	}

	if err := snapMgr.MarkVerified(ctx, snap.Sequence); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	loaded, err = snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load after verify: %v", err)
	}
	if loaded == nil {
		t.Fatal("verified snapshot not loaded")
	}
	if loaded.Sequence != 41 {
		t.Fatalf("sequence = %d, want 41", loaded.Sequence)
	}
	if loaded.Balances["system:supply:DSC"] != "-5000000000000000000000" {
		t.Fatalf("balance did not survive: %q", loaded.Balances["system:supply:DSC"])
	}
	if loaded.Prices["WETH"].FeedSequence != 7 {
		t.Fatalf("price snap did not survive: %+v", loaded.Prices["WETH"])
	}
}
