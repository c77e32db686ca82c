package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	// --- Price ingestion ---
	TicksApplied  *prometheus.CounterVec
	TicksIgnored  prometheus.Counter
	TickBatchDur  prometheus.Histogram

	// --- Positions ---
	PositionsOpened   *prometheus.CounterVec
	PositionsClosed   *prometheus.CounterVec
	PositionsRejected *prometheus.CounterVec
	OpenPositions     prometheus.Gauge

	// --- Liquidation ---
	LiquidationsExecuted *prometheus.CounterVec
	LiquidationSweepDur  prometheus.Histogram

	// --- Funding ---
	FundingSweeps          prometheus.Counter
	FundingSweepsSkipped   prometheus.Counter
	FundingPositionsSwept  *prometheus.CounterVec

	// --- Prediction markets ---
	PredictionTrades   *prometheus.CounterVec
	PredictionResolved prometheus.Counter

	// --- Settlement ledger ---
	LedgerEntries *prometheus.CounterVec
	FeesCharged   *prometheus.CounterVec

	// --- Persistence ---
	FlushBatches   prometheus.Counter
	FlushDirtyRows prometheus.Histogram
	FlushDuration  prometheus.Histogram
	FlushErrors    *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		TicksApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_ticks_applied_total",
			Help: "Price ticks applied, by ticker",
		}, []string{"ticker"}),
		TicksIgnored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engine_ticks_ignored_total",
			Help: "Price ticks for unknown tickers",
		}),
		TickBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_tick_batch_duration_seconds",
			Help:    "Duration of one price-map application",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
		}),

		PositionsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_positions_opened_total",
			Help: "Positions opened, by ticker and side",
		}, []string{"ticker", "side"}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_positions_closed_total",
			Help: "Positions closed, by ticker and reason (user|liquidation)",
		}, []string{"ticker", "reason"}),
		PositionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_positions_rejected_total",
			Help: "Position opens rejected, by reason",
		}, []string{"reason"}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Currently open positions",
		}),

		LiquidationsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_liquidations_executed_total",
			Help: "Forced closes, by ticker",
		}, []string{"ticker"}),
		LiquidationSweepDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_liquidation_sweep_duration_seconds",
			Help:    "Duration of one per-ticker liquidation sweep",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
		}),

		FundingSweeps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engine_funding_sweeps_total",
			Help: "Funding boundary sweeps executed",
		}),
		FundingSweepsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engine_funding_sweeps_skipped_total",
			Help: "Funding invocations skipped as already-applied boundaries",
		}),
		FundingPositionsSwept: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_funding_positions_swept_total",
			Help: "Positions settled per funding sweep, by ticker",
		}, []string{"ticker"}),

		PredictionTrades: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_prediction_trades_total",
			Help: "Prediction market trades, by side and direction",
		}, []string{"side", "direction"}),
		PredictionResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engine_prediction_markets_resolved_total",
			Help: "Prediction markets resolved",
		}),

		LedgerEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_ledger_entries_total",
			Help: "Ledger entries appended, by type",
		}, []string{"type"}),
		FeesCharged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_fees_charged_total",
			Help: "Trading fees charged, by trade type",
		}, []string{"trade_type"}),

		FlushBatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engine_flush_batches_total",
			Help: "Persistence flush cycles completed",
		}),
		FlushDirtyRows: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_flush_dirty_rows",
			Help:    "Dirty entities written per flush cycle",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_flush_duration_seconds",
			Help:    "Duration of one flush cycle",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		FlushErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_flush_errors_total",
			Help: "Flush failures, by stage",
		}, []string{"stage"}),
	}
}
