package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector of the service.
type Metrics struct {
	// --- Engine ---
	TxApplied      *prometheus.CounterVec
	TxRejected     *prometheus.CounterVec
	TxDuration     *prometheus.HistogramVec
	EngineSequence prometheus.Gauge
	LastBlock      prometheus.Gauge
	OverlayWrites  prometheus.Histogram
	Journals       *prometheus.CounterVec

	// --- Pool ---
	PoolQuote           *prometheus.GaugeVec
	ReservationsPurged  *prometheus.CounterVec
	ProvidersConsumed   *prometheus.CounterVec
	ProvidersActivated  *prometheus.CounterVec
	FeeBasisPoints      *prometheus.HistogramVec
	ReservedUtilization *prometheus.GaugeVec

	// --- Ingestion & Ordering ---
	IngestToApply    *prometheus.HistogramVec
	NATSPullLatency  *prometheus.HistogramVec
	ParseErrors      *prometheus.CounterVec
	Duplicates       *prometheus.CounterVec
	DedupLRUSize     prometheus.Gauge
	BlockRegressions prometheus.Counter

	// --- Channels ---
	ChannelSize     *prometheus.GaugeVec
	ProjectionDrops *prometheus.CounterVec
	PublishDrops    prometheus.Counter
	PublishErrors   prometheus.Counter

	// --- Persistence ---
	PersistTxWritten       prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge
	CheckpointTaken        prometheus.Counter
	ProjectionUpdateDur    *prometheus.HistogramVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics registers every collector with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
	}

	return &Metrics{
		TxApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_engine_tx_applied_total",
			Help: "Transactions committed by the engine",
		}, []string{"op"}),

		TxRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_engine_tx_rejected_total",
			Help: "Transactions rejected, by failure kind",
		}, []string{"op", "kind"}),

		TxDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nswap_engine_tx_apply_duration_seconds",
			Help:    "Time to apply and commit one transaction",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		EngineSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "nswap_engine_sequence",
			Help: "Last committed engine sequence",
		}),

		LastBlock: f.NewGauge(prometheus.GaugeOpts{
			Name: "nswap_engine_last_block",
			Help: "Highest ledger block seen",
		}),

		OverlayWrites: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nswap_engine_overlay_writes",
			Help:    "Keys written per committed transaction",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		Journals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_engine_journals_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		PoolQuote: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nswap_pool_quote",
			Help: "Current quote per token (tokens per satoshi, scaled)",
		}, []string{"token"}),

		ReservationsPurged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_pool_reservations_purged_total",
			Help: "Expired reservations swept",
		}, []string{"token"}),

		ProvidersConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_pool_provider_consumptions_total",
			Help: "Provider fills during settlement",
		}, []string{"token"}),

		ProvidersActivated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_pool_provider_activations_total",
			Help: "Providers credited to the virtual pool",
		}, []string{"token"}),

		FeeBasisPoints: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nswap_pool_fee_bp",
			Help:    "Dynamic fee applied to swaps",
			Buckets: []float64{15, 20, 30, 40, 50, 75, 100, 125, 150},
		}, []string{"token"}),

		ReservedUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nswap_pool_utilization_percent",
			Help: "Reserved liquidity as a percent of liquidity",
		}, []string{"token"}),

		IngestToApply: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nswap_ingest_to_apply_seconds",
			Help:    "NATS receive to engine commit",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		NATSPullLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nswap_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: latencyBuckets,
		}, []string{"subject"}),

		ParseErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_ingest_parse_errors_total",
			Help: "Messages that failed to parse",
		}, []string{"op"}),

		Duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_idempotency_duplicates_total",
			Help: "Duplicate transactions skipped",
		}, []string{"op", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "nswap_dedup_lru_size",
			Help: "Entries in the idempotency LRU",
		}),

		BlockRegressions: f.NewCounter(prometheus.CounterOpts{
			Name: "nswap_block_regressions_total",
			Help: "Transactions rejected for a block below the last seen",
		}),

		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nswap_channel_size",
			Help: "Buffered items per channel",
		}, []string{"channel"}),

		ProjectionDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_projection_drops_total",
			Help: "Outputs dropped because a consumer channel was full",
		}, []string{"channel"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "nswap_publish_drops_total",
			Help: "Notices dropped before publishing",
		}),

		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "nswap_publish_errors_total",
			Help: "Notices that failed to publish",
		}),

		PersistTxWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "nswap_persist_transactions_written_total",
			Help: "Transactions written to the event log",
		}),

		PersistJournalsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "nswap_persist_journals_written_total",
			Help: "Journal rows written",
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nswap_persist_batch_duration_seconds",
			Help:    "Postgres batch commit duration",
			Buckets: prometheus.DefBuckets,
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_persist_errors_total",
			Help: "Persistence failures",
		}, []string{"stage"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "nswap_persist_retry_total",
			Help: "Persistence batch retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "nswap_persist_last_sequence",
			Help: "Last sequence committed to Postgres",
		}),

		CheckpointTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "nswap_checkpoint_taken_total",
			Help: "Engine checkpoints written",
		}),

		ProjectionUpdateDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nswap_projection_update_duration_seconds",
			Help:    "Projection update duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"projection"}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_query_requests_total",
			Help: "Query API requests",
		}, []string{"route"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nswap_query_duration_seconds",
			Help:    "Query API latency",
			Buckets: latencyBuckets,
		}, []string{"route"}),

		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nswap_query_errors_total",
			Help: "Query API errors",
		}, []string{"route", "code"}),
	}
}
