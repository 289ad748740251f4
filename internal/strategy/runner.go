package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/config"
	"github.com/statforge/pairtrader/internal/feed"
	"github.com/statforge/pairtrader/internal/journal"
	"github.com/statforge/pairtrader/internal/metrics"
	"github.com/statforge/pairtrader/internal/pairs"
)

// journalTimeout bounds a single journal write from the event loop.
const journalTimeout = 5 * time.Second

// Runner owns the live trading loop: it connects the market-data feed to the
// strategy, consumes pair lifecycle events, and fans them out to the journal
// and metrics.
type Runner struct {
	cfg     *config.Config
	strat   *StatArb
	feed    *feed.Stream
	journal *journal.Journal
	logger  *zap.Logger

	mu     sync.Mutex
	active bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner wires the runner. journal may be nil when journaling is
// disabled.
func NewRunner(cfg *config.Config, strat *StatArb, stream *feed.Stream, jrnl *journal.Journal, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		strat:   strat,
		feed:    stream,
		journal: jrnl,
		logger:  logger.With(zap.String("component", "runner")),
	}
}

// Start subscribes the feed to every pair leg, connects, and begins
// consuming lifecycle events.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return fmt.Errorf("runner is already active")
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.strat.bind(r.ctx)

	r.feed.OnCandle(r.strat.OnCandle)
	r.feed.OnFundingRate(r.strat.OnFundingRate)

	symbols, perpLegs := r.collectSymbols()
	if len(symbols) == 0 {
		r.cancel()
		return fmt.Errorf("no pairs configured, nothing to subscribe")
	}
	if err := r.feed.SubscribeCandles(symbols); err != nil {
		r.logger.Warn("staging candle subscriptions failed", zap.Error(err))
	}
	if r.strat.Mode() == "perpetual_spot" && len(perpLegs) > 0 {
		if err := r.feed.SubscribeFunding(perpLegs); err != nil {
			r.logger.Warn("staging funding subscriptions failed", zap.Error(err))
		}
	}

	if err := r.feed.Connect(); err != nil {
		r.cancel()
		return fmt.Errorf("connecting feed: %w", err)
	}

	r.wg.Add(1)
	go r.consumeEvents()

	r.active = true
	r.refreshPairMetrics()
	r.logger.Info("runner started",
		zap.Strings("symbols", symbols),
		zap.String("mode", r.strat.Mode()),
		zap.Bool("live_trading", r.strat.LiveTrading()))
	return nil
}

// Stop persists strategy state, closes the feed, and waits for the event
// loop to drain.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return nil
	}
	r.active = false

	if err := r.strat.SaveState(r.cfg.StateFile); err != nil {
		r.logger.Warn("state save failed", zap.Error(err))
	}
	if err := r.feed.Close(); err != nil {
		r.logger.Warn("feed close failed", zap.Error(err))
	}

	r.cancel()
	r.wg.Wait()

	r.logger.Info("runner stopped")
	return nil
}

// collectSymbols gathers the distinct legs of all pairs, and separately the
// A legs (the perpetual contract in perpetual-spot mode).
func (r *Runner) collectSymbols() ([]string, []string) {
	seen := make(map[string]bool)
	seenPerp := make(map[string]bool)
	var symbols, perpLegs []string
	for _, p := range r.strat.AllPairsSummary() {
		if !seen[p.SymbolA] {
			seen[p.SymbolA] = true
			symbols = append(symbols, p.SymbolA)
		}
		if !seen[p.SymbolB] {
			seen[p.SymbolB] = true
			symbols = append(symbols, p.SymbolB)
		}
		if !seenPerp[p.SymbolA] {
			seenPerp[p.SymbolA] = true
			perpLegs = append(perpLegs, p.SymbolA)
		}
	}
	return symbols, perpLegs
}

func (r *Runner) consumeEvents() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev := <-r.strat.Events():
			r.handleEvent(ev)
		}
	}
}

// handleEvent fans one lifecycle event out to metrics and the journal.
func (r *Runner) handleEvent(ev pairs.Event) {
	switch ev.Type {
	case pairs.EventPositionClosed:
		if ev.Trade != nil {
			metrics.RecordTrade(ev.PairID, !ev.Trade.PnL.IsNegative(), ev.Trade.PnL.InexactFloat64())
			r.journalTrade(*ev.Trade)
		}
		r.refreshBookMetrics()

	case pairs.EventPositionOpened:
		r.refreshBookMetrics()

	case pairs.EventCooldownStarted:
		metrics.SetCooldown(true)
		r.logger.Warn("trading halted by cooldown", zap.String("detail", ev.Reason))

	case pairs.EventPairSuspended, pairs.EventPairBroken, pairs.EventPairResumed:
		metrics.RecordStatusTransition(string(ev.Status))
		r.refreshPairMetrics()

	case pairs.EventPairAdded, pairs.EventPairActivated, pairs.EventPairRemoved:
		r.refreshPairMetrics()
	}
}

func (r *Runner) journalTrade(rec pairs.TradeRecord) {
	if r.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, journalTimeout)
	defer cancel()
	if err := r.journal.RecordTrade(ctx, rec); err != nil {
		r.logger.Error("journal write failed",
			zap.String("pair", rec.PairID), zap.Error(err))
	}
}

func (r *Runner) refreshPairMetrics() {
	counts := make(map[string]int)
	for _, p := range r.strat.AllPairsSummary() {
		counts[string(p.Status)]++
	}
	metrics.UpdatePairCounts(counts)
}

func (r *Runner) refreshBookMetrics() {
	m := r.strat.manager
	metrics.UpdateBook(m.OpenPositionCount(), m.OpenNotional().InexactFloat64())
}
