package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/metrics"
	"github.com/statforge/pairtrader/internal/models"
	"github.com/statforge/pairtrader/internal/pairs"
)

// generateSignals evaluates every ACTIVE pair without a position against the
// mode's entry condition and opens positions for the signals that pass risk
// gating.
func (s *StatArb) generateSignals(now time.Time) {
	for _, p := range s.manager.ActivePairs() {
		// A suspended pair keeps its active-set slot but takes no new entries.
		if p.Status != pairs.StatusActive || p.Position != nil {
			continue
		}

		priceA, okA := s.store.Latest(p.SymbolA)
		priceB, okB := s.store.Latest(p.SymbolB)
		if !okA || !okB {
			continue
		}

		live := s.mode.Live(p, priceA, priceB)
		if err := s.manager.SetLiveStats(p.ID, live); err != nil {
			continue
		}
		metrics.ObserveZScore(p.ID, live.ZScore)

		sig := s.mode.GenerateSignal(p, live)
		if sig == nil {
			continue
		}

		s.recordSignal()
		metrics.RecordSignal(p.ID)
		s.logger.Info("entry signal",
			zap.String("pair", p.ID),
			zap.String("direction", string(sig.Direction)),
			zap.String("reason", sig.Reason))

		if err := s.openPosition(p, sig, priceA, priceB, now); err != nil {
			s.logger.Error("failed to open position",
				zap.String("pair", p.ID), zap.Error(err))
		}
	}
}

// openPosition risk-checks a signal, sizes it beta-dollar-neutral, and
// places the two legs. The legs are independent market orders with no
// cross-leg atomicity: when the second leg fails after the first filled, the
// book is left unbalanced and no pair position is recorded.
func (s *StatArb) openPosition(p *pairs.Pair, sig *EntrySignal, priceA, priceB float64, now time.Time) error {
	capital, err := s.engine.Capital(s.ctx)
	if err != nil {
		return fmt.Errorf("capital lookup: %w", err)
	}
	metrics.SetCapital(capital.InexactFloat64())

	check := s.riskMgr.ValidateOpen(s.manager.OpenPositionCount(), s.manager.OpenNotional(), capital)
	if !check.Passed {
		s.logger.Warn("signal rejected by risk management",
			zap.String("pair", p.ID), zap.String("reason", check.Reason))
		return nil
	}
	for _, warning := range check.Warnings {
		s.logger.Warn("risk warning", zap.String("pair", p.ID), zap.String("warning", warning))
	}

	if priceA <= 0 || priceB <= 0 {
		return fmt.Errorf("non-positive leg price: %s=%.8f %s=%.8f", p.SymbolA, priceA, p.SymbolB, priceB)
	}

	// Beta-dollar-neutral split of the total notional across the legs.
	total := s.riskMgr.PositionValue(capital)
	valueA := total.Div(decimal.NewFromFloat(1 + math.Abs(p.Stats.Beta)))
	valueB := total.Sub(valueA)

	decA := decimal.NewFromFloat(priceA)
	decB := decimal.NewFromFloat(priceB)
	qtyA := valueA.Div(decA)
	qtyB := valueB.Div(decB)
	if qtyA.IsZero() || qtyB.IsZero() {
		s.logger.Debug("position too small to open", zap.String("pair", p.ID))
		return nil
	}

	sideA, sideB := models.Buy, models.Sell
	if sig.Direction == pairs.ShortSpread {
		sideA, sideB = models.Sell, models.Buy
	}

	if err := s.placeLeg(sideA, p.SymbolA, qtyA); err != nil {
		return fmt.Errorf("leg %s %s: %w", sideA, p.SymbolA, err)
	}
	if err := s.placeLeg(sideB, p.SymbolB, qtyB); err != nil {
		// First leg filled, second did not. There is no rollback; the
		// unhedged leg stays on the book.
		s.logger.Error("second leg failed, book left unbalanced",
			zap.String("pair", p.ID),
			zap.String("filled_leg", p.SymbolA),
			zap.String("failed_leg", p.SymbolB),
			zap.Error(err))
		return fmt.Errorf("leg %s %s: %w", sideB, p.SymbolB, err)
	}

	pos := &pairs.Position{
		Direction:   sig.Direction,
		LegA:        pairs.Leg{Symbol: p.SymbolA, Side: sideA, Qty: qtyA, EntryPrice: decA},
		LegB:        pairs.Leg{Symbol: p.SymbolB, Side: sideB, Qty: qtyB, EntryPrice: decB},
		EntryZScore: sig.ZScore,
		EntrySpread: sig.Spread,
		EntryTime:   now,
		Value:       total,
	}
	if err := s.manager.SetPosition(p.ID, pos); err != nil {
		return fmt.Errorf("recording position: %w", err)
	}
	return nil
}

func (s *StatArb) placeLeg(side models.OrderSide, symbol string, qty decimal.Decimal) error {
	if side == models.Buy {
		return s.engine.Buy(s.ctx, symbol, qty)
	}
	return s.engine.Sell(s.ctx, symbol, qty)
}
