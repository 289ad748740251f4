package strategy

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/models"
	"github.com/statforge/pairtrader/internal/pairs"
)

// Close reasons, in the order they are evaluated.
const (
	closeMeanReversion   = "mean_reversion"
	closeStopLoss        = "stop_loss"
	closeSpreadConverged = "spread_converged"
	closeBasisConverged  = "basis_converged"
	closeTimeout         = "timeout"
	closeBroken          = "pair_broken"
	closeHardStop        = "max_loss"
)

// monitorPositions refreshes the live reading for every pair holding a
// position and closes on the first matching condition. BROKEN and SUSPENDED
// pairs are monitored too; a position does not stop being watched because
// its pair fell out of the active set.
func (s *StatArb) monitorPositions(now time.Time) {
	for _, p := range s.manager.AllPairs() {
		if p.Position == nil {
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

		reason := s.closeReason(p, live, priceA, priceB, now)
		if reason == "" {
			continue
		}
		if err := s.closePosition(p, live, reason, priceA, priceB, now); err != nil {
			s.logger.Error("failed to close position",
				zap.String("pair", p.ID),
				zap.String("reason", reason),
				zap.Error(err))
		}
	}
}

// closeReason evaluates the close conditions in priority order and returns
// the first match, "" when the position stays open.
func (s *StatArb) closeReason(p *pairs.Pair, live pairs.LiveStats, priceA, priceB float64, now time.Time) string {
	pos := p.Position

	absZ := math.Abs(live.ZScore)
	if absZ <= s.cfg.ExitZScore {
		return closeMeanReversion
	}
	if absZ >= s.cfg.StopLossZScore {
		return closeStopLoss
	}
	if reason := s.mode.CheckClose(p, live); reason != "" {
		return reason
	}
	if s.cfg.MaxHoldingPeriod > 0 && now.Sub(pos.EntryTime) >= s.cfg.MaxHoldingPeriod {
		return closeTimeout
	}
	if p.Status == pairs.StatusBroken {
		return closeBroken
	}

	// Hard stop on realized loss fraction, independent of the Z-based stop.
	if pos.Value.IsPositive() {
		pnl := positionPnL(pos, decimal.NewFromFloat(priceA), decimal.NewFromFloat(priceB))
		if pnl.Div(pos.Value).InexactFloat64() <= -s.cfg.MaxLossPerPair {
			return closeHardStop
		}
	}
	return ""
}

// closePosition unwinds both legs, records the trade, and folds the result
// into the risk state. Bookkeeping is optimistic: PnL is computed at the
// observed prices without waiting for fills, and a failed leg close is
// logged but does not block the accounting.
func (s *StatArb) closePosition(p *pairs.Pair, live pairs.LiveStats, reason string, priceA, priceB float64, now time.Time) error {
	if err := s.engine.ClosePosition(s.ctx, p.SymbolA); err != nil {
		s.logger.Error("leg close failed",
			zap.String("pair", p.ID), zap.String("symbol", p.SymbolA), zap.Error(err))
	}
	if err := s.engine.ClosePosition(s.ctx, p.SymbolB); err != nil {
		s.logger.Error("leg close failed",
			zap.String("pair", p.ID), zap.String("symbol", p.SymbolB), zap.Error(err))
	}

	pos, err := s.manager.ClearPosition(p.ID)
	if err != nil {
		return err
	}

	pnl := positionPnL(pos, decimal.NewFromFloat(priceA), decimal.NewFromFloat(priceB))
	rec := pairs.TradeRecord{
		PairID:      p.ID,
		SymbolA:     p.SymbolA,
		SymbolB:     p.SymbolB,
		Direction:   pos.Direction,
		EntryTime:   pos.EntryTime,
		ExitTime:    now,
		EntryZScore: pos.EntryZScore,
		ExitZScore:  live.ZScore,
		Value:       pos.Value,
		PnL:         pnl,
		Reason:      reason,
	}
	if err := s.manager.RecordTrade(p.ID, rec); err != nil {
		s.logger.Warn("trade accounting failed", zap.String("pair", p.ID), zap.Error(err))
	}

	s.logger.Info("pair position closed",
		zap.String("pair", p.ID),
		zap.String("direction", string(pos.Direction)),
		zap.String("pnl", pnl.String()),
		zap.String("reason", reason),
		zap.Duration("held", now.Sub(pos.EntryTime)))

	if s.applyTrade(pnl, now) {
		until := s.RiskState().CoolingUntil
		s.logger.Warn("consecutive loss limit reached, entering cooldown",
			zap.Time("until", until))
		s.manager.NotifyCooldown(until)
	}
	return nil
}

// legPnL computes one leg's PnL at an exit price: long legs gain when price
// rises, short legs when it falls.
func legPnL(leg pairs.Leg, exit decimal.Decimal) decimal.Decimal {
	if leg.Side == models.Buy {
		return exit.Sub(leg.EntryPrice).Mul(leg.Qty)
	}
	return leg.EntryPrice.Sub(exit).Mul(leg.Qty)
}

// positionPnL is the sum of both leg PnLs at the given exit prices.
func positionPnL(pos *pairs.Position, exitA, exitB decimal.Decimal) decimal.Decimal {
	return legPnL(pos.LegA, exitA).Add(legPnL(pos.LegB, exitB))
}
