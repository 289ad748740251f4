package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Limits holds the portfolio-level risk configuration.
type Limits struct {
	MaxActivePairs       int
	MaxTotalPosition     float64
	MaxPositionPerPair   float64
	MaxLossPerPair       float64
	ConsecutiveLossLimit int
	CoolingPeriod        time.Duration
}

// Manager handles pre-trade risk checks and position sizing.
type Manager struct {
	limits Limits
}

// NewManager creates a new risk manager.
func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits}
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits {
	return m.limits
}

// CheckResult contains the result of a risk check.
type CheckResult struct {
	Passed   bool
	Reason   string
	Warnings []string
}

// ValidateOpen performs pre-trade checks before a new pair position is
// opened. openPositions and openNotional describe the book as it stands,
// before the prospective position.
func (m *Manager) ValidateOpen(openPositions int, openNotional, capital decimal.Decimal) CheckResult {
	result := CheckResult{Passed: true, Warnings: []string{}}

	if openPositions >= m.limits.MaxActivePairs {
		return CheckResult{
			Passed: false,
			Reason: fmt.Sprintf("Open pair positions %d at limit %d", openPositions, m.limits.MaxActivePairs),
		}
	}

	if !capital.IsPositive() {
		return CheckResult{
			Passed: false,
			Reason: "No capital available",
		}
	}

	maxTotal := decimal.NewFromFloat(m.limits.MaxTotalPosition)
	usage := openNotional.Div(capital)
	if usage.GreaterThanOrEqual(maxTotal) {
		return CheckResult{
			Passed: false,
			Reason: fmt.Sprintf("Capital usage %.1f%% exceeds maximum %.1f%%",
				usage.Mul(decimal.NewFromInt(100)).InexactFloat64(),
				maxTotal.Mul(decimal.NewFromInt(100)).InexactFloat64()),
		}
	}

	if usage.GreaterThan(maxTotal.Mul(decimal.NewFromFloat(0.8))) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Capital usage %.1f%% approaching maximum %.1f%%",
				usage.Mul(decimal.NewFromInt(100)).InexactFloat64(),
				maxTotal.Mul(decimal.NewFromInt(100)).InexactFloat64()))
	}

	return result
}

// PositionValue returns the total notional to deploy for one pair position.
func (m *Manager) PositionValue(capital decimal.Decimal) decimal.Decimal {
	return capital.Mul(decimal.NewFromFloat(m.limits.MaxPositionPerPair))
}

// State tracks the running trade statistics that feed the cooldown logic.
// It is a plain value: ApplyTrade returns the successor state rather than
// mutating, so callers control exactly when and under which lock state
// changes happen.
type State struct {
	SignalsGenerated  int             `json:"signals_generated"`
	Trades            int             `json:"trades"`
	Wins              int             `json:"wins"`
	Losses            int             `json:"losses"`
	TotalPnL          decimal.Decimal `json:"total_pnl"`
	DailyPnL          decimal.Decimal `json:"daily_pnl"`
	DayStart          time.Time       `json:"day_start"`
	PeakPnL           decimal.Decimal `json:"peak_pnl"`
	CurrentDrawdown   decimal.Decimal `json:"current_drawdown"`
	MaxDrawdown       decimal.Decimal `json:"max_drawdown"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	CoolingUntil      time.Time       `json:"cooling_until"`
}

// InCooldown reports whether trading is halted at the given time.
func (s State) InCooldown(now time.Time) bool {
	return now.Before(s.CoolingUntil)
}

// RecordSignal counts a generated entry signal.
func (s State) RecordSignal() State {
	s.SignalsGenerated++
	return s
}

// ApplyTrade folds a closed trade into the state: counters, daily and total
// PnL, peak/drawdown tracking, and the consecutive-loss cooldown trigger.
// The loss streak resets once it has tripped the cooldown.
func (s State) ApplyTrade(pnl decimal.Decimal, now time.Time, limits Limits) State {
	if !sameDay(s.DayStart, now) {
		s.DailyPnL = decimal.Zero
		s.DayStart = startOfDay(now)
	}

	s.Trades++
	s.TotalPnL = s.TotalPnL.Add(pnl)
	s.DailyPnL = s.DailyPnL.Add(pnl)

	if s.TotalPnL.GreaterThan(s.PeakPnL) {
		s.PeakPnL = s.TotalPnL
	}
	s.CurrentDrawdown = s.PeakPnL.Sub(s.TotalPnL)
	if s.CurrentDrawdown.GreaterThan(s.MaxDrawdown) {
		s.MaxDrawdown = s.CurrentDrawdown
	}

	if pnl.IsNegative() {
		s.Losses++
		s.ConsecutiveLosses++
		if limits.ConsecutiveLossLimit > 0 && s.ConsecutiveLosses >= limits.ConsecutiveLossLimit {
			s.CoolingUntil = now.Add(limits.CoolingPeriod)
			s.ConsecutiveLosses = 0
		}
	} else {
		s.Wins++
		s.ConsecutiveLosses = 0
	}

	return s
}

// WinRate returns wins as a fraction of completed trades.
func (s State) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
