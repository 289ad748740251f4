// Package strategy implements the statistical-arbitrage decision engine: it
// re-estimates pair statistics from streaming prices, drives the pair
// lifecycle, generates entry signals under the configured arbitrage mode,
// sizes positions beta-dollar-neutral, and enforces the loss-streak cooldown.
package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/config"
	"github.com/statforge/pairtrader/internal/engine"
	"github.com/statforge/pairtrader/internal/metrics"
	"github.com/statforge/pairtrader/internal/models"
	"github.com/statforge/pairtrader/internal/pairs"
	"github.com/statforge/pairtrader/internal/pricestore"
	"github.com/statforge/pairtrader/internal/risk"
)

// StatArb is the strategy orchestrator. The two ingestion paths, OnTick for
// backtests and OnCandle for live feeds, are single-threaded: they must not
// run concurrently for one instance. Read accessors are safe from other
// goroutines.
type StatArb struct {
	cfg     *config.Config
	logger  *zap.Logger
	engine  engine.Engine
	store   *pricestore.Store
	manager *pairs.Manager
	riskMgr *risk.Manager
	mode    arbMode

	ctx context.Context

	stateMu sync.RWMutex
	state   risk.State
}

// New builds a strategy for the given arbitrage mode. Mode strings accepted:
// "pairs", "cointegration", "cross_exchange", "perpetual_spot".
func New(cfg *config.Config, mode string, eng engine.Engine, manager *pairs.Manager, store *pricestore.Store, logger *zap.Logger) (*StatArb, error) {
	m, err := modeFor(mode, cfg)
	if err != nil {
		return nil, err
	}

	s := &StatArb{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "strategy")),
		engine:  eng,
		store:   store,
		manager: manager,
		riskMgr: risk.NewManager(risk.Limits{
			MaxActivePairs:       cfg.MaxActivePairs,
			MaxTotalPosition:     cfg.MaxTotalPosition,
			MaxPositionPerPair:   cfg.MaxPositionPerPair,
			MaxLossPerPair:       cfg.MaxLossPerPair,
			ConsecutiveLossLimit: cfg.ConsecutiveLossLimit,
			CoolingPeriod:        cfg.CoolingPeriod,
		}),
		mode: m,
		ctx:  context.Background(),
	}

	s.logger.Info("strategy initialized",
		zap.String("mode", m.Name()),
		zap.Int("lookback_period", cfg.LookbackPeriod),
		zap.Int("cointegration_test_period", cfg.CointegrationTestPeriod),
		zap.Float64("entry_z", cfg.EntryZScore),
		zap.Float64("exit_z", cfg.ExitZScore),
		zap.Float64("stop_loss_z", cfg.StopLossZScore),
		zap.Bool("live_trading", cfg.LiveTrading))
	return s, nil
}

// bind attaches the lifecycle context used for engine calls.
func (s *StatArb) bind(ctx context.Context) {
	s.ctx = ctx
}

// Mode returns the active arbitrage mode name.
func (s *StatArb) Mode() string {
	return s.mode.Name()
}

// LiveTrading reports whether orders go to a real exchange.
func (s *StatArb) LiveTrading() bool {
	return s.cfg.LiveTrading
}

// RiskState returns a copy of the current risk counters.
func (s *StatArb) RiskState() risk.State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Capital reports current account capital from the execution engine.
func (s *StatArb) Capital(ctx context.Context) (decimal.Decimal, error) {
	return s.engine.Capital(ctx)
}

// Events exposes the pair lifecycle event stream.
func (s *StatArb) Events() <-chan pairs.Event {
	return s.manager.Events()
}

// AddPair registers a new candidate pair.
func (s *StatArb) AddPair(a, b string) (*pairs.Pair, error) {
	return s.manager.AddPair(a, b, nil)
}

// RemovePair deletes a pair.
func (s *StatArb) RemovePair(id string) error {
	return s.manager.RemovePair(id)
}

// PairDetails returns one pair.
func (s *StatArb) PairDetails(id string) (*pairs.Pair, bool) {
	return s.manager.Pair(id)
}

// AllPairsSummary returns every pair, sorted by ID.
func (s *StatArb) AllPairsSummary() []*pairs.Pair {
	return s.manager.AllPairs()
}

// Reanalyze revalidates every pair with sufficient data and returns how many
// were refreshed.
func (s *StatArb) Reanalyze(ctx context.Context) int {
	_ = ctx
	n := s.analyzeAll(time.Now())
	s.logger.Info("reanalysis complete", zap.Int("pairs", n))
	return n
}

// OnCandle is the live ingestion path: one closed candle for one symbol.
func (s *StatArb) OnCandle(candle *models.Candle) {
	now := candleTime(candle)
	if s.cooldownGate(now) {
		return
	}
	s.store.Add(candle.Symbol, candle.Close.InexactFloat64(), candle.Timestamp)
	s.process(now)
}

// OnTick is the backtest ingestion path. history holds the symbol's closes
// preceding this candle; the series is rebuilt from it so the harness owns
// the history. Timestamps for historical points are synthesized at one-minute
// spacing behind the candle.
func (s *StatArb) OnTick(candle *models.Candle, history []float64) {
	now := candleTime(candle)
	if s.cooldownGate(now) {
		return
	}

	s.store.Clear(candle.Symbol)
	for i, price := range history {
		ts := now.Add(-time.Duration(len(history)-i) * time.Minute)
		s.store.Add(candle.Symbol, price, ts)
	}
	s.store.Add(candle.Symbol, candle.Close.InexactFloat64(), now)
	s.process(now)
}

// OnFundingRate records a funding update. Funding is cached by the feed and
// logged here; it is not part of signal generation.
func (s *StatArb) OnFundingRate(rate *models.FundingRate) {
	s.logger.Debug("funding rate",
		zap.String("symbol", rate.Symbol),
		zap.String("rate", rate.Rate.String()),
		zap.Time("next_funding", rate.NextFundingTime))
}

// cooldownGate reports whether the loss-streak cooldown is active. While it
// is, the whole pipeline is skipped, including price ingestion and open
// position monitoring. That blind spot comes with the cooldown semantics;
// positions resume being monitored when the cooldown expires.
func (s *StatArb) cooldownGate(now time.Time) bool {
	in := s.RiskState().InCooldown(now)
	metrics.SetCooldown(in)
	return in
}

// process runs the shared per-tick pipeline: revalidate, auto-activate,
// generate entry signals, monitor open positions.
func (s *StatArb) process(now time.Time) {
	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	s.analyzeAll(now)
	s.generateSignals(now)
	s.monitorPositions(now)
}

func (s *StatArb) recordSignal() {
	s.stateMu.Lock()
	s.state = s.state.RecordSignal()
	s.stateMu.Unlock()
}

// applyTrade folds a closed trade into the risk state and reports whether it
// tripped the cooldown.
func (s *StatArb) applyTrade(pnl decimal.Decimal, now time.Time) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	wasCooling := s.state.InCooldown(now)
	s.state = s.state.ApplyTrade(pnl, now, s.riskMgr.Limits())
	return !wasCooling && s.state.InCooldown(now)
}

func candleTime(c *models.Candle) time.Time {
	if !c.Timestamp.IsZero() {
		return c.Timestamp
	}
	return time.Now()
}
