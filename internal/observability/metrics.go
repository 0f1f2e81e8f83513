package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// --- Operations ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// --- Pool ---
	PoolTotalSupplied *prometheus.GaugeVec
	PoolTotalBorrowed *prometheus.GaugeVec
	PoolUtilization   *prometheus.GaugeVec

	// --- Positions ---
	PositionsActive *prometheus.GaugeVec
	PositionsOpened *prometheus.CounterVec
	PositionsClosed *prometheus.CounterVec
	HealthCheckLTV  *prometheus.HistogramVec

	// --- Liquidation ---
	LiquidationsTotal *prometheus.CounterVec
	UnwindShortfall   *prometheus.CounterVec
	KeeperRewardsPaid *prometheus.CounterVec

	// --- Persistence & publishing ---
	PersistRecordsWritten prometheus.Counter
	PersistBatchSize      prometheus.Histogram
	PersistErrors         prometheus.Counter
	PersistRetry          prometheus.Counter
	PublishDrops          prometheus.Counter
	PublishErrors         prometheus.Counter

	// --- HTTP ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01,
	}

	httpBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lev_ops_applied_total",
			Help: "Engine operations successfully applied",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lev_ops_rejected_total",
			Help: "Engine operations rejected (validation, risk, liquidity)",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lev_op_duration_seconds",
			Help:    "Time to apply a single engine operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		PoolTotalSupplied: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lev_pool_total_supplied",
			Help: "Pool supply in native units",
		}, []string{"asset"}),

		PoolTotalBorrowed: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lev_pool_total_borrowed",
			Help: "Outstanding pool borrows in native units",
		}, []string{"asset"}),

		PoolUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lev_pool_utilization_bps",
			Help: "Borrowed over supplied in basis points",
		}, []string{"asset"}),

		PositionsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lev_positions_active",
			Help: "Currently active leveraged positions",
		}, []string{"asset"}),

		PositionsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lev_positions_opened_total",
			Help: "Positions opened",
		}, []string{"asset"}),

		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lev_positions_closed_total",
			Help: "Positions closed voluntarily",
		}, []string{"asset"}),

		HealthCheckLTV: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lev_health_ltv_bps",
			Help:    "Observed loan-to-value at health checks, basis points",
			Buckets: []float64{1000, 2500, 5000, 6000, 7000, 7500, 8000, 8500, 9000, 9500, 10000},
		}, []string{"asset"}),

		LiquidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lev_liquidations_total",
			Help: "Positions liquidated by keepers",
		}, []string{"asset"}),

		UnwindShortfall: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lev_unwind_shortfall_total",
			Help: "Unwinds settled with a pool-absorbed shortfall",
		}, []string{"asset"}),

		KeeperRewardsPaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lev_keeper_rewards_paid_total",
			Help: "Keeper rewards credited, native units",
		}, []string{"asset"}),

		PersistRecordsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lev_persist_records_written_total",
			Help: "Operation records committed to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lev_persist_batch_size",
			Help:    "Records per persistence batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lev_persist_errors_total",
			Help: "Postgres write failures",
		}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lev_persist_retry_total",
			Help: "Postgres write retries",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lev_publish_drops_total",
			Help: "Outbound records dropped because the publish buffer was full",
		}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lev_publish_errors_total",
			Help: "NATS publish failures",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lev_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "method", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lev_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: httpBuckets,
		}, []string{"route", "method"}),
	}
}
