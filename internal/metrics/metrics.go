// Package metrics exposes Prometheus instrumentation for the trading loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pair lifecycle

// PairsByStatus tracks how many pairs sit in each lifecycle state.
var PairsByStatus = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "pairtrader",
		Subsystem: "pairs",
		Name:      "by_status",
		Help:      "Number of pairs by lifecycle status",
	},
	[]string{"status"},
)

// StatusTransitions counts lifecycle transitions by destination state.
var StatusTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairtrader",
		Subsystem: "pairs",
		Name:      "status_transitions_total",
		Help:      "Total pair status transitions by destination",
	},
	[]string{"to"},
)

// Trading

// SignalsGenerated counts entry signals per pair.
var SignalsGenerated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairtrader",
		Subsystem: "trading",
		Name:      "signals_total",
		Help:      "Total entry signals generated",
	},
	[]string{"pair"},
)

// TradesTotal counts closed trades per pair and result.
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairtrader",
		Subsystem: "trading",
		Name:      "trades_total",
		Help:      "Total closed trades",
	},
	[]string{"pair", "result"},
)

// RealizedPnL accumulates realized PnL in quote currency. A gauge, not a
// counter: losing trades move it down.
var RealizedPnL = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pairtrader",
		Subsystem: "trading",
		Name:      "realized_pnl_usd",
		Help:      "Cumulative realized PnL in USD",
	},
)

// OpenPositions tracks the number of pairs holding a position.
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pairtrader",
		Subsystem: "trading",
		Name:      "open_positions",
		Help:      "Current number of open pair positions",
	},
)

// OpenNotional tracks total deployed notional.
var OpenNotional = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pairtrader",
		Subsystem: "trading",
		Name:      "open_notional_usd",
		Help:      "Total notional of open positions in USD",
	},
)

// Capital tracks account equity as reported by the engine.
var Capital = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pairtrader",
		Subsystem: "trading",
		Name:      "capital_usd",
		Help:      "Account capital in USD",
	},
)

// CooldownActive is 1 while the loss-streak cooldown halts the pipeline.
var CooldownActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pairtrader",
		Subsystem: "risk",
		Name:      "cooldown_active",
		Help:      "Whether the loss-streak cooldown is active (1=yes)",
	},
)

// ZScoreObserved samples the residual z-scores seen per pair.
var ZScoreObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "pairtrader",
		Subsystem: "signals",
		Name:      "zscore_observed",
		Help:      "Observed residual z-scores",
		Buckets:   []float64{-4, -3, -2.5, -2, -1, -0.5, 0, 0.5, 1, 2, 2.5, 3, 4},
	},
	[]string{"pair"},
)

// TickDuration samples end-to-end tick processing time.
var TickDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "pairtrader",
		Subsystem: "trading",
		Name:      "tick_duration_seconds",
		Help:      "Time to process one market tick",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	},
)

// Helper functions

// RecordSignal counts one generated entry signal.
func RecordSignal(pair string) {
	SignalsGenerated.WithLabelValues(pair).Inc()
}

// RecordTrade records a closed trade and its PnL.
func RecordTrade(pair string, win bool, pnl float64) {
	result := "loss"
	if win {
		result = "win"
	}
	TradesTotal.WithLabelValues(pair, result).Inc()
	RealizedPnL.Add(pnl)
}

// RecordStatusTransition counts a lifecycle transition.
func RecordStatusTransition(to string) {
	StatusTransitions.WithLabelValues(to).Inc()
}

// UpdatePairCounts replaces the per-status pair gauges.
func UpdatePairCounts(counts map[string]int) {
	PairsByStatus.Reset()
	for status, n := range counts {
		PairsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// UpdateBook refreshes the position gauges.
func UpdateBook(openPositions int, openNotional float64) {
	OpenPositions.Set(float64(openPositions))
	OpenNotional.Set(openNotional)
}

// SetCapital refreshes the capital gauge.
func SetCapital(capital float64) {
	Capital.Set(capital)
}

// SetCooldown flips the cooldown gauge.
func SetCooldown(active bool) {
	if active {
		CooldownActive.Set(1)
	} else {
		CooldownActive.Set(0)
	}
}

// ObserveZScore samples a computed z-score.
func ObserveZScore(pair string, z float64) {
	ZScoreObserved.WithLabelValues(pair).Observe(z)
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
