package main

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DscLedger/internal/config"
	"DscLedger/internal/core"
	"DscLedger/internal/event"
	"DscLedger/internal/ingestion"
	"DscLedger/internal/ledger"
	"DscLedger/internal/observability"
	"DscLedger/internal/oracle"
	"DscLedger/internal/persistence"
	"DscLedger/internal/projection"
	"DscLedger/internal/query"
	"DscLedger/internal/server"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load(os.Getenv("DSC_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLoggerWithLevel("main", observability.ParseLogLevel(cfg.LogLevel))
	log.Info().Msg("dscledger starting")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("dscledger exited")
	}
	log.Info().Msg("dscledger shutdown complete")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// --- Asset registry ---
	collateral := make([]ledger.Asset, 0, len(cfg.Collateral))
	for _, a := range cfg.Collateral {
		collateral = append(collateral, ledger.Asset{Symbol: a.Symbol, Decimals: a.Decimals})
	}
	registry, err := ledger.NewRegistry(collateral, cfg.StableSymbol, 18)
	if err != nil {
		return fmt.Errorf("asset registry: %w", err)
	}

	feeds := make([]core.FeedSpec, 0, len(cfg.Feeds))
	feedSubjects := make([]string, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		feeds = append(feeds, core.FeedSpec{Decimals: f.Decimals, MaxAge: f.MaxAge.Duration})
		feedSubjects = append(feedSubjects, f.Subject)
	}

	// --- Recovery: load snapshot ---
	snapMgr := persistence.NewSnapshotManager(db)

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("snapshot load failed, falling back to cold start")
		snap = nil
	}

	startSequence := int64(0)
	if snap != nil {
		startSequence = snap.Sequence + 1
		log.Info().Int64("sequence", snap.Sequence).Msg("snapshot loaded")
	} else {
		log.Info().Msg("no snapshot, cold start from sequence 0")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Channels ---
	// The persist channel blocks (backpressure); the projection channel
	// drops. Bridge channels keep core decoupled from the DB row types.
	persistCoreChan := make(chan core.Output, cfg.PersistBuffer)
	projectionCoreChan := make(chan core.Output, cfg.ProjectionBuffer)
	persistWorkerChan := make(chan persistence.Record, cfg.PersistBuffer)
	projectionWorkerChan := make(chan projection.Output, cfg.ProjectionBuffer)
	publishChan := make(chan ingestion.PublishableReceipt, cfg.PublishBuffer)

	// --- Engine ---
	engine, err := core.NewEngine(
		startSequence,
		registry,
		feeds,
		core.NoopStableCoin{},
		core.NoopCollateralBank{},
		persistCoreChan,
		projectionCoreChan,
		persistence.NewPostgresDedup(db),
		cfg.DedupCapacity,
		cfg.SubmitQueue,
		metrics,
	)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	// --- Snapshot restore + dedup warming ---
	if snap != nil {
		if err := restoreFromSnapshot(engine, registry, snap); err != nil {
			return fmt.Errorf("snapshot restore: %w", err)
		}
		if len(snap.IdempotencyKeys) > 0 {
			engine.WarmDedup(snap.IdempotencyKeys)
			log.Info().Int("keys", len(snap.IdempotencyKeys)).Msg("dedup warmed from snapshot")
		}
	}

	// --- Replay from the event log ---
	replayStart := time.Now()
	replayCount, err := replayFromLog(ctx, snapMgr, engine, startSequence, log)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if replayCount > 0 {
		log.Info().
			Int64("events", replayCount).
			Int64("sequence", engine.GetSequence()).
			Dur("took", time.Since(replayStart)).
			Msg("replay complete")
	}
	if metrics != nil {
		metrics.ReplayEvents.Add(float64(replayCount))
		metrics.ReplayDuration.Set(time.Since(replayStart).Seconds())
	}

	// A restored snapshot with nothing to replay must land exactly on
	// the snapshot's chain tip.
	if snap != nil && replayCount == 0 {
		var want [32]byte
		copy(want[:], snap.StateHash)
		if got := engine.GetStateHash(); got != want {
			return fmt.Errorf("state hash mismatch after restore: want %x, got %x", want, got)
		}
		log.Info().Msg("state hash verified after restore")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer nc.Close()
	log.Info().Str("url", cfg.NATSURL).Msg("nats connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		return fmt.Errorf("ensure streams: %w", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		return fmt.Errorf("ensure outbound stream: %w", err)
	}

	rawEventChan := make(chan ingestion.RawEvent, cfg.IngestBuffer)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawEventChan)
	if err := natsSubscriber.Subscribe(ctx, ingestion.SubjectsFor(feedSubjects)); err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan)

	// --- Services & workers ---
	queryService := query.NewService(db)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.New(engine, queryService, healthChecker, metrics).Router(),
	}

	persistWorker := persistence.NewWorker(db, persistWorkerChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout.Duration, metrics)
	projWorker := projection.NewWorker(db, projectionWorkerChan, metrics)

	errChan := make(chan error, 10)

	// 1. Core loop: the serialization point everything submits to.
	go func() {
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("core loop: %w", err)
		}
	}()

	// 2. Persistence worker (blocking channel, batched flushes).
	go func() {
		if err := persistWorker.Run(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("persistence worker: %w", err)
		}
	}()

	// 3. Projection worker (lossy channel, rebuildable tables).
	go func() {
		if err := projWorker.Run(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("projection worker: %w", err)
		}
	}()

	// 4. Outbound liquidation publisher.
	go func() {
		if err := outboundPublisher.Run(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("publisher: %w", err)
		}
	}()

	// 5. Core output bridge.
	go bridgeOutputs(ctx, registry, persistCoreChan, projectionCoreChan,
		persistWorkerChan, projectionWorkerChan, publishChan, metrics)

	// 6. NATS price ingestion.
	go runIngestionLoop(ctx, rawEventChan, engine, metrics, log)

	// 7. HTTP API.
	go func() {
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			httpServer.Shutdown(shutCtx)
		}()
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 8. Prometheus metrics server.
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// 9. Periodic snapshots.
	go runPeriodicSnapshots(ctx, engine, snapMgr, cfg.SnapshotInterval.Duration, metrics, log)

	// 10. Channel depth and projection lag gauges.
	go runMonitor(ctx, engine, projWorker, metrics,
		persistCoreChan, projectionCoreChan, publishChan, rawEventChan)

	healthChecker.SetReady(true)
	log.Info().Int64("sequence", engine.GetSequence()).Msg("dscledger ready")

	// --- Wait for shutdown ---
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	healthChecker.SetReady(false)
	natsSubscriber.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Final snapshot. The core loop has stopped, so reading its state
	// directly is safe here.
	if err := takeSnapshot(shutdownCtx, engine, registry, snapMgr, metrics); err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	} else {
		log.Info().Int64("sequence", engine.GetSequence()-1).Msg("final snapshot saved")
	}

	return nil
}

// bridgeOutputs fans applied events out of the core's two output
// channels into the persistence, projection, and publish formats.
func bridgeOutputs(
	ctx context.Context,
	registry *ledger.Registry,
	persistIn, projectionIn <-chan core.Output,
	persistOut chan<- persistence.Record,
	projectionOut chan<- projection.Output,
	publishOut chan<- ingestion.PublishableReceipt,
	metrics *observability.Metrics,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-persistIn:
			if !ok {
				return
			}

			rec := persistence.Record{
				EventRow: persistence.EventRow{
					Sequence:       output.Envelope.Sequence,
					EventType:      output.Envelope.EventType.String(),
					IdempotencyKey: output.Envelope.IdempotencyKey,
					Asset:          output.Envelope.Asset,
					Payload:        output.Envelope.Payload,
					StateHash:      output.Envelope.StateHash[:],
					PrevHash:       output.Envelope.PrevHash[:],
					Timestamp:      output.Envelope.Timestamp,
					SourceSequence: output.Envelope.SourceSequence,
				},
			}

			if output.Batch != nil {
				for _, j := range output.Batch.Journals {
					rec.JournalRows = append(rec.JournalRows, persistence.JournalRow{
						JournalID:     j.JournalID.String(),
						BatchID:       j.BatchID.String(),
						OperationRef:  j.OperationRef,
						Sequence:      j.Sequence,
						DebitAccount:  j.DebitAccount.AccountPath(registry),
						CreditAccount: j.CreditAccount.AccountPath(registry),
						AssetID:       uint16(j.AssetID),
						Amount:        j.Amount.String(),
						JournalType:   int32(j.JournalType),
						Timestamp:     j.Timestamp,
					})
				}
			}

			if r := output.Receipt; r != nil {
				rec.Receipt = &persistence.ReceiptRow{
					OperationID:      r.OperationID.String(),
					Sequence:         r.Sequence,
					Liquidator:       r.Liquidator.String(),
					Target:           r.Target.String(),
					Asset:            r.Asset,
					DebtCovered:      r.DebtCovered.String(),
					CollateralSeized: r.CollateralSeized.String(),
					BonusCollateral:  r.BonusCollateral.String(),
					HealthBefore:     r.HealthBefore.String(),
					HealthAfter:      r.HealthAfter.String(),
					Timestamp:        r.Timestamp,
				}
			}

			persistOut <- rec

			if r := output.Receipt; r != nil {
				select {
				case publishOut <- ingestion.PublishableReceipt{
					Sequence:         r.Sequence,
					OperationID:      r.OperationID.String(),
					Liquidator:       r.Liquidator.String(),
					Target:           r.Target.String(),
					Asset:            r.Asset,
					DebtCovered:      r.DebtCovered.String(),
					CollateralSeized: r.CollateralSeized.String(),
					BonusCollateral:  r.BonusCollateral.String(),
					HealthBefore:     r.HealthBefore.String(),
					HealthAfter:      r.HealthAfter.String(),
					Timestamp:        r.Timestamp,
				}:
				default:
					if metrics != nil {
						metrics.PublishDrops.Inc()
					}
				}
			}

		case output, ok := <-projectionIn:
			if !ok {
				return
			}

			pOut := projection.Output{
				Sequence:       output.Envelope.Sequence,
				EventType:      output.Envelope.EventType,
				Asset:          output.Envelope.Asset,
				IdempotencyKey: output.Envelope.IdempotencyKey,
				Timestamp:      output.Envelope.Timestamp,
				Payload:        output.Envelope.Payload,
			}

			if output.Batch != nil {
				for _, j := range output.Batch.Journals {
					pOut.Journals = append(pOut.Journals, projection.JournalEntry{
						DebitAccount:  j.DebitAccount.AccountPath(registry),
						CreditAccount: j.CreditAccount.AccountPath(registry),
						AssetID:       uint16(j.AssetID),
						Amount:        j.Amount.String(),
					})
				}
			}

			if r := output.Receipt; r != nil {
				pOut.Receipt = &projection.LiquidationRecord{
					OperationID:      r.OperationID.String(),
					Liquidator:       r.Liquidator,
					Target:           r.Target,
					Asset:            r.Asset,
					DebtCovered:      r.DebtCovered.String(),
					CollateralSeized: r.CollateralSeized.String(),
					HealthBefore:     r.HealthBefore.String(),
					HealthAfter:      r.HealthAfter.String(),
					Timestamp:        r.Timestamp,
				}
			}

			select {
			case projectionOut <- pOut:
			default:
				if metrics != nil {
					metrics.ProjectionDrops.Inc()
				}
			}
		}
	}
}

// runIngestionLoop parses raw price messages and submits them to the
// core. Messages are acked once the core has ruled on them: accepted,
// deduplicated, and parse-rejected messages all ack (redelivery cannot
// change the outcome), only shutdown naks.
func runIngestionLoop(
	ctx context.Context,
	rawChan <-chan ingestion.RawEvent,
	engine *core.Engine,
	metrics *observability.Metrics,
	log zerolog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawChan:
			if !ok {
				return
			}

			evt, err := ingestion.ParsePriceUpdate(raw.Data)
			if err != nil {
				log.Warn().Str("subject", raw.Subject).Err(err).Msg("unparseable price message")
				if metrics != nil {
					metrics.IngestParseErrors.WithLabelValues(raw.Subject).Inc()
				}
				raw.AckFunc()
				continue
			}

			if metrics != nil {
				metrics.IngestEventsQueued.WithLabelValues(evt.EventType().String()).Inc()
			}

			if _, err := engine.Submit(ctx, evt); err != nil {
				if ctx.Err() != nil {
					raw.NakFunc()
					return
				}
				// A rejected price update (unknown asset, bad decimals)
				// stays rejected on redelivery; ack and move on.
				log.Warn().
					Str("asset", evt.Asset).
					Int64("feed_sequence", evt.FeedSequence).
					Err(err).
					Msg("price update rejected")
			}
			raw.AckFunc()
		}
	}
}

// --- Snapshot restore & replay ---

func restoreFromSnapshot(engine *core.Engine, registry *ledger.Registry, snap *persistence.SnapshotData) error {
	coreSnap := &core.SnapshotState{
		Sequence:        snap.Sequence,
		Balances:        make(map[ledger.AccountKey]*big.Int, len(snap.Balances)),
		Prices:          make(map[ledger.AssetID]*oracle.PriceState, len(snap.Prices)),
		FeedSequences:   snap.FeedSequences,
		IdempotencyKeys: snap.IdempotencyKeys,
	}
	copy(coreSnap.StateHash[:], snap.StateHash)

	for path, raw := range snap.Balances {
		key, err := ledger.ParseAccountPath(registry, path)
		if err != nil {
			return err
		}
		balance, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return fmt.Errorf("snapshot balance for %s is not a decimal integer: %q", path, raw)
		}
		coreSnap.Balances[key] = balance
	}

	for symbol, ps := range snap.Prices {
		assetID, ok := registry.LookupSymbol(symbol)
		if !ok {
			return fmt.Errorf("snapshot price for unknown asset %q", symbol)
		}
		price, ok := new(big.Int).SetString(ps.Price, 10)
		if !ok {
			return fmt.Errorf("snapshot price for %s is not a decimal integer: %q", symbol, ps.Price)
		}
		coreSnap.Prices[assetID] = &oracle.PriceState{
			Price:        price,
			Decimals:     ps.Decimals,
			FeedSequence: ps.FeedSequence,
			UpdatedAt:    ps.UpdatedAt,
		}
	}

	engine.RestoreFromSnapshot(coreSnap)
	return nil
}

func replayFromLog(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	engine *core.Engine,
	fromSequence int64,
	log zerolog.Logger,
) (int64, error) {
	const batchSize = 1000
	var total int64

	for {
		events, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return total, fmt.Errorf("load events from seq %d: %w", fromSequence, err)
		}
		if len(events) == 0 {
			break
		}

		for _, row := range events {
			eventType, ok := event.TypeFromString(row.EventType)
			if !ok {
				return total, fmt.Errorf("unknown event type %q at seq %d", row.EventType, row.Sequence)
			}

			evt, err := event.Decode(eventType, row.Payload)
			if err != nil {
				return total, fmt.Errorf("decode event at seq %d: %w", row.Sequence, err)
			}

			if err := engine.Replay(evt); err != nil {
				// Rejections are part of history only for events that
				// never made the log; a logged event must re-apply.
				return total, fmt.Errorf("replay seq %d: %w", row.Sequence, err)
			}

			// Replay must walk the identical hash chain.
			var want [32]byte
			copy(want[:], row.StateHash)
			if got := engine.GetStateHash(); got != want {
				return total, fmt.Errorf("state hash divergence at seq %d: log %x, replay %x",
					row.Sequence, want, got)
			}

			total++
		}

		fromSequence = events[len(events)-1].Sequence + 1
	}

	return total, nil
}

// --- Snapshots ---

func runPeriodicSnapshots(
	ctx context.Context,
	engine *core.Engine,
	snapMgr *persistence.SnapshotManager,
	interval time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) {
	if interval <= 0 {
		interval = 3 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSeq int64 = -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var snap *core.SnapshotState
			err := engine.View(ctx, func(e *core.Engine) error {
				snap = e.CreateSnapshotState()
				return nil
			})
			if err != nil {
				log.Warn().Err(err).Msg("snapshot capture failed")
				continue
			}
			if snap.Sequence == lastSeq {
				continue
			}

			if err := saveSnapshot(ctx, engine.Registry(), snapMgr, snap, metrics); err != nil {
				log.Warn().Err(err).Msg("periodic snapshot failed")
				continue
			}
			lastSeq = snap.Sequence
			log.Info().Int64("sequence", snap.Sequence).Msg("periodic snapshot saved")
		}
	}
}

// takeSnapshot captures state directly, for the shutdown path where
// the core loop is no longer running.
func takeSnapshot(
	ctx context.Context,
	engine *core.Engine,
	registry *ledger.Registry,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	return saveSnapshot(ctx, registry, snapMgr, engine.CreateSnapshotState(), metrics)
}

func saveSnapshot(
	ctx context.Context,
	registry *ledger.Registry,
	snapMgr *persistence.SnapshotManager,
	snap *core.SnapshotState,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	data := &persistence.SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       snap.StateHash[:],
		Balances:        make(map[string]string, len(snap.Balances)),
		Prices:          make(map[string]persistence.PriceSnap, len(snap.Prices)),
		FeedSequences:   snap.FeedSequences,
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       time.Now().UTC(),
	}

	for key, balance := range snap.Balances {
		data.Balances[key.AccountPath(registry)] = balance.String()
	}

	for assetID, ps := range snap.Prices {
		data.Prices[registry.SymbolOf(assetID)] = persistence.PriceSnap{
			Price:        ps.Price.String(),
			Decimals:     ps.Decimals,
			FeedSequence: ps.FeedSequence,
			UpdatedAt:    ps.UpdatedAt,
		}
	}

	if err := snapMgr.SaveSnapshot(ctx, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Captured from live state, so it is verified by construction.
	if err := snapMgr.MarkVerified(ctx, data.Sequence); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(data.Sequence))
	}

	return nil
}

// runMonitor samples channel depths and projection lag.
func runMonitor(
	ctx context.Context,
	engine *core.Engine,
	projWorker *projection.Worker,
	metrics *observability.Metrics,
	persistChan, projectionChan chan core.Output,
	publishChan chan ingestion.PublishableReceipt,
	rawEventChan chan ingestion.RawEvent,
) {
	if metrics == nil {
		return
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ChannelDepth.WithLabelValues("persist").Set(float64(len(persistChan)))
			metrics.ChannelDepth.WithLabelValues("projection").Set(float64(len(projectionChan)))
			metrics.ChannelDepth.WithLabelValues("publish").Set(float64(len(publishChan)))
			metrics.ChannelDepth.WithLabelValues("ingest").Set(float64(len(rawEventChan)))

			var seq int64
			if err := engine.View(ctx, func(e *core.Engine) error {
				seq = e.GetSequence() - 1
				return nil
			}); err != nil {
				continue
			}
			if lag := seq - projWorker.LastSequence(); lag >= 0 {
				metrics.ProjectionLag.Set(float64(lag))
			}
		}
	}
}
