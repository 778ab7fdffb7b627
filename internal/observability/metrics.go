package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the service exports. All
// metrics carry the dsc_ prefix. A nil *Metrics disables recording,
// which is what unit tests pass.
type Metrics struct {
	// --- Core pipeline ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreJournals       *prometheus.CounterVec
	CoreSequence       prometheus.Gauge

	// --- Prices ---
	PriceUpdatesApplied  *prometheus.CounterVec
	StalePriceRejections *prometheus.CounterVec
	FeedSequenceGaps     *prometheus.CounterVec

	// --- Solvency & liquidation ---
	HealthChecksFailed    prometheus.Counter
	LiquidationsCompleted prometheus.Counter
	LiquidationsRejected  *prometheus.CounterVec
	CollateralSeized      *prometheus.CounterVec
	DebtCovered           prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchDur        prometheus.Histogram
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot & replay ---
	SnapshotTaken    prometheus.Counter
	SnapshotDuration prometheus.Histogram
	SnapshotLastSeq  prometheus.Gauge
	ReplayEvents     prometheus.Counter
	ReplayDuration   prometheus.Gauge

	// --- Projections & channels ---
	ProjectionDrops    prometheus.Counter
	ProjectionLag      prometheus.Gauge
	ProjectionErrors   prometheus.Counter
	ChannelDepth       *prometheus.GaugeVec
	PublishDrops       prometheus.Counter
	IngestParseErrors  *prometheus.CounterVec
	IngestEventsQueued *prometheus.CounterVec

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	coreBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	httpBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
	}

	return &Metrics{
		CoreEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_core_events_applied_total",
			Help: "Events successfully applied by the core loop",
		}, []string{"event_type"}),

		CoreEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_core_events_rejected_total",
			Help: "Events rejected by the core loop, by taxonomy code",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dsc_core_event_apply_duration_seconds",
			Help:    "Time to apply a single event in the core",
			Buckets: coreBuckets,
		}, []string{"event_type"}),

		CoreJournals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dsc_core_sequence",
			Help: "Next sequence the core will assign",
		}),

		PriceUpdatesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_price_updates_applied_total",
			Help: "Price feed observations accepted",
		}, []string{"asset"}),

		StalePriceRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_stale_price_rejections_total",
			Help: "Operations aborted because a feed was stale",
		}, []string{"asset"}),

		FeedSequenceGaps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_feed_sequence_gaps_total",
			Help: "Gaps observed in per-asset feed sequences",
		}, []string{"asset"}),

		HealthChecksFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dsc_health_checks_failed_total",
			Help: "Operations unwound by the solvency post-check",
		}),

		LiquidationsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dsc_liquidations_completed_total",
			Help: "Liquidations applied",
		}),

		LiquidationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_liquidations_rejected_total",
			Help: "Liquidations rejected, by taxonomy code",
		}, []string{"reason"}),

		CollateralSeized: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_collateral_seized_units_total",
			Help: "Collateral seized by liquidations, in whole native units",
		}, []string{"asset"}),

		DebtCovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dsc_debt_covered_units_total",
			Help: "Debt burned by liquidations, in whole stable units",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dsc_persist_events_written_total",
			Help: "Event rows written to the log",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dsc_persist_journals_written_total",
			Help: "Journal rows written to the log",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dsc_persist_batch_duration_seconds",
			Help:    "Time to flush one persistence batch",
			Buckets: httpBuckets,
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dsc_persist_batch_size_events",
			Help:    "Events per flushed persistence batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_persist_errors_total",
			Help: "Persistence failures by stage",
		}, []string{"stage"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dsc_persist_last_sequence",
			Help: "Highest sequence confirmed durable",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dsc_snapshots_taken_total",
			Help: "State snapshots persisted",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dsc_snapshot_duration_seconds",
			Help:    "Time to capture and persist a snapshot",
			Buckets: httpBuckets,
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dsc_snapshot_last_sequence",
			Help: "Sequence of the most recent snapshot",
		}),

		ReplayEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dsc_replay_events_total",
			Help: "Events replayed from the log during recovery",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dsc_replay_duration_seconds",
			Help: "Wall time of the last recovery replay",
		}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dsc_projection_drops_total",
			Help: "Outputs dropped because the projection channel was full",
		}),

		ProjectionLag: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dsc_projection_lag_events",
			Help: "Core sequence minus projected watermark",
		}),

		ProjectionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dsc_projection_errors_total",
			Help: "Projection upserts that failed and were skipped",
		}),

		ChannelDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dsc_channel_depth",
			Help: "Buffered items per internal channel",
		}, []string{"channel"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dsc_publish_drops_total",
			Help: "Outbound receipts dropped because the publish channel was full",
		}),

		IngestParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_ingest_parse_errors_total",
			Help: "NATS messages acked without processing due to parse failure",
		}, []string{"subject"}),

		IngestEventsQueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_ingest_events_queued_total",
			Help: "Parsed events handed to the core loop",
		}, []string{"event_type"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dsc_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dsc_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: httpBuckets,
		}, []string{"route"}),
	}
}
