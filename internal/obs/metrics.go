package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics is the pre-wired set of Prometheus collectors for one
// backtest process, mirroring the shape of a live-trading metrics
// registry (signals, fills, equity, halts) but scoped to replay.
type RunMetrics struct {
	BarsProcessed   prometheus.Counter
	OrdersFilled    *prometheus.CounterVec
	TradesClosed    *prometheus.CounterVec
	LiquidationsHit prometheus.Counter
	Equity          prometheus.Gauge
	ActivePositions prometheus.Gauge
	ReplayDuration  prometheus.Histogram
}

// NewRunMetrics registers every collector against reg. Pass a fresh
// prometheus.NewRegistry() per run in batch mode so parallel runs don't
// collide on collector registration.
func NewRunMetrics(reg *prometheus.Registry) *RunMetrics {
	m := &RunMetrics{
		BarsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "btcore_bars_processed_total",
			Help: "Total exec bars processed by the bar loop.",
		}),
		OrdersFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btcore_orders_filled_total",
			Help: "Total orders filled, by side.",
		}, []string{"side"}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btcore_trades_closed_total",
			Help: "Total trades closed, by exit reason.",
		}, []string{"reason"}),
		LiquidationsHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "btcore_liquidations_total",
			Help: "Total maintenance-margin liquidations triggered.",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "btcore_equity",
			Help: "Current mark-to-market equity.",
		}),
		ActivePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "btcore_active_positions",
			Help: "1 if a position is currently open, else 0.",
		}),
		ReplayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "btcore_replay_duration_seconds",
			Help:    "Wall-clock duration of a full Play replay.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	reg.MustRegister(m.BarsProcessed, m.OrdersFilled, m.TradesClosed, m.LiquidationsHit, m.Equity, m.ActivePositions, m.ReplayDuration)
	return m
}
