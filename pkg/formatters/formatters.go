package formatters

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"github.com/statforge/pairtrader/internal/api"
	"github.com/statforge/pairtrader/internal/models"
	"github.com/statforge/pairtrader/internal/pairs"
)

// Colors for different values
var (
	ColorGreen  = text.FgGreen
	ColorRed    = text.FgRed
	ColorYellow = text.FgYellow
	ColorBlue   = text.FgCyan
	ColorWhite  = text.FgWhite
	ColorGray   = text.FgHiBlack
)

// FormatPercent formats a percentage with color
func FormatPercent(percent decimal.Decimal) string {
	sign := ""
	if percent.IsPositive() {
		sign = "+"
	}

	percentStr := fmt.Sprintf("%s%.2f%%", sign, percent.InexactFloat64())

	if percent.IsPositive() {
		return ColorGreen.Sprint(percentStr)
	} else if percent.IsNegative() {
		return ColorRed.Sprint(percentStr)
	}
	return percentStr
}

// FormatDollarAmount formats a dollar amount with appropriate color
func FormatDollarAmount(amount decimal.Decimal) string {
	amountStr := fmt.Sprintf("$%.2f", amount.Abs().InexactFloat64())

	if amount.IsNegative() {
		return ColorRed.Sprint("-" + amountStr)
	}
	return ColorGreen.Sprint(amountStr)
}

// FormatZScore colors a z-score by how stretched the spread is
func FormatZScore(z float64) string {
	zStr := fmt.Sprintf("%+.2f", z)

	abs := math.Abs(z)
	if abs >= 2.0 {
		return ColorRed.Sprint(zStr)
	} else if abs >= 1.0 {
		return ColorYellow.Sprint(zStr)
	}
	return zStr
}

// FormatHalfLife formats a mean-reversion half-life in bars
func FormatHalfLife(halfLife float64) string {
	if math.IsInf(halfLife, 0) || math.IsNaN(halfLife) || halfLife <= 0 {
		return ColorGray.Sprint("n/a")
	}
	return fmt.Sprintf("%.1f", halfLife)
}

// FormatPairStatus colors a pair lifecycle status
func FormatPairStatus(status pairs.Status) string {
	switch status {
	case pairs.StatusActive:
		return ColorGreen.Sprint(string(status))
	case pairs.StatusPending:
		return ColorBlue.Sprint(string(status))
	case pairs.StatusSuspended:
		return ColorYellow.Sprint(string(status))
	case pairs.StatusBroken:
		return ColorRed.Sprint(string(status))
	}
	return string(status)
}

// FormatDirection colors a spread direction
func FormatDirection(d pairs.Direction) string {
	switch d {
	case pairs.LongSpread:
		return ColorGreen.Sprint("LONG")
	case pairs.ShortSpread:
		return ColorRed.Sprint("SHORT")
	}
	return string(d)
}

// FormatPairsTable creates a pretty table of the pair book
func FormatPairsTable(list []*pairs.Pair) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{
		"Pair", "Status", "Corr", "Beta", "Half-Life", "Z-Score", "Position", "Trades", "P&L"})

	totalPnL := decimal.Zero

	for _, p := range list {
		position := ColorGray.Sprint("-")
		if p.Position != nil {
			position = FormatDirection(p.Position.Direction)
		}

		perf := p.Performance
		trades := ColorGray.Sprint("-")
		if perf.Trades > 0 {
			trades = fmt.Sprintf("%d (%dW/%dL)", perf.Trades, perf.Wins, perf.Losses)
		}

		t.AppendRow(table.Row{
			p.ID,
			FormatPairStatus(p.Status),
			fmt.Sprintf("%.2f", p.Stats.Correlation),
			fmt.Sprintf("%.3f", p.Stats.Beta),
			FormatHalfLife(p.Stats.HalfLife),
			FormatZScore(p.Stats.CurrentZScore),
			position,
			trades,
			FormatDollarAmount(perf.RealizedPnL),
		})

		totalPnL = totalPnL.Add(perf.RealizedPnL)
	}

	if len(list) == 0 {
		t.AppendRow(table.Row{"No pairs configured", "", "", "", "", "", "", "", ""})
		return t.Render()
	}

	// Footer
	t.AppendSeparator()
	t.AppendRow(table.Row{
		"TOTAL", "", "", "", "", "", "", "", FormatDollarAmount(totalPnL)})

	return t.Render()
}

// FormatPairDetail creates a pretty single-pair summary
func FormatPairDetail(p *pairs.Pair) string {
	if p == nil {
		return "No data available"
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendRow(table.Row{"Pair", text.Bold.Sprint(p.ID)})
	t.AppendRow(table.Row{"Legs", fmt.Sprintf("%s / %s", p.SymbolA, p.SymbolB)})
	t.AppendRow(table.Row{"Status", FormatPairStatus(p.Status)})
	t.AppendRow(table.Row{"Added", p.CreatedAt.Format("2006-01-02 15:04:05")})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Correlation", fmt.Sprintf("%.4f", p.Stats.Correlation)})
	t.AppendRow(table.Row{"Hedge Ratio", fmt.Sprintf("%.4f", p.Stats.Beta)})
	t.AppendRow(table.Row{"Spread Mean", fmt.Sprintf("%.6f", p.Stats.SpreadMean)})
	t.AppendRow(table.Row{"Spread Std", fmt.Sprintf("%.6f", p.Stats.SpreadStd)})
	t.AppendRow(table.Row{"Half-Life", FormatHalfLife(p.Stats.HalfLife)})
	if adf := p.Stats.Stationarity; adf != nil {
		verdict := ColorRed.Sprint("non-stationary")
		if adf.IsStationary {
			verdict = ColorGreen.Sprint("stationary")
		}
		t.AppendRow(table.Row{"ADF Test", fmt.Sprintf("%s (t=%.2f, crit=%.2f)",
			verdict, adf.TestStat, adf.CriticalValue)})
	}
	t.AppendRow(table.Row{"Z-Score", FormatZScore(p.Stats.CurrentZScore)})

	if pos := p.Position; pos != nil {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Position", FormatDirection(pos.Direction)})
		t.AppendRow(table.Row{"Leg A", formatLeg(pos.LegA)})
		t.AppendRow(table.Row{"Leg B", formatLeg(pos.LegB)})
		t.AppendRow(table.Row{"Notional", fmt.Sprintf("$%.2f", pos.Value.InexactFloat64())})
		t.AppendRow(table.Row{"Entry Z", FormatZScore(pos.EntryZScore)})
		t.AppendRow(table.Row{"Entry Time", pos.EntryTime.Format("2006-01-02 15:04:05")})
	}

	perf := p.Performance
	if perf.Trades > 0 {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Trades", fmt.Sprintf("%d (%dW/%dL)", perf.Trades, perf.Wins, perf.Losses)})
		t.AppendRow(table.Row{"Realized P&L", FormatDollarAmount(perf.RealizedPnL)})
		t.AppendRow(table.Row{"Worst Trade", fmt.Sprintf("$%.2f", perf.MaxDrawdown.Neg().InexactFloat64())})
	}

	return t.Render()
}

func formatLeg(leg pairs.Leg) string {
	side := ColorGreen.Sprint("BUY")
	if leg.Side == models.Sell {
		side = ColorRed.Sprint("SELL")
	}
	return fmt.Sprintf("%s %s %s @ $%.4f",
		side, leg.Qty.String(), leg.Symbol, leg.EntryPrice.InexactFloat64())
}

// FormatTradesTable creates a pretty closed-trades table
func FormatTradesTable(trades []pairs.TradeRecord) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{
		"Closed", "Pair", "Side", "Entry Z", "Exit Z", "Notional", "P&L", "Reason"})

	totalPnL := decimal.Zero

	for _, rec := range trades {
		t.AppendRow(table.Row{
			rec.ExitTime.Format("01-02 15:04:05"),
			rec.PairID,
			FormatDirection(rec.Direction),
			fmt.Sprintf("%+.2f", rec.EntryZScore),
			fmt.Sprintf("%+.2f", rec.ExitZScore),
			fmt.Sprintf("$%.2f", rec.Value.InexactFloat64()),
			FormatDollarAmount(rec.PnL),
			rec.Reason,
		})

		totalPnL = totalPnL.Add(rec.PnL)
	}

	if len(trades) == 0 {
		t.AppendRow(table.Row{"No trades", "", "", "", "", "", "", ""})
		return t.Render()
	}

	// Footer
	t.AppendSeparator()
	t.AppendRow(table.Row{
		fmt.Sprintf("%d trades", len(trades)), "", "", "", "", "",
		FormatDollarAmount(totalPnL), ""})

	return t.Render()
}

// FormatStatusReport creates a pretty trader status summary
func FormatStatusReport(status *api.StatusResponse) string {
	if status == nil {
		return "No data available"
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	trading := ColorGreen.Sprint("PAPER")
	if status.LiveTrading {
		trading = ColorRed.Sprint("LIVE")
	}

	t.AppendRow(table.Row{"Mode", status.Mode})
	t.AppendRow(table.Row{"Trading", trading})
	t.AppendRow(table.Row{"Uptime", formatUptime(status.UptimeSeconds)})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Capital", fmt.Sprintf("$%.2f", status.Capital.InexactFloat64())})
	t.AppendRow(table.Row{"Open Positions", status.OpenPositions})
	t.AppendRow(table.Row{"Open Notional", fmt.Sprintf("$%.2f", status.OpenNotional.InexactFloat64())})
	t.AppendRow(table.Row{"Pairs", formatPairCounts(status.PairsByStatus)})
	t.AppendSeparator()

	rs := status.Risk
	t.AppendRow(table.Row{"Signals", rs.SignalsGenerated})
	t.AppendRow(table.Row{"Trades", fmt.Sprintf("%d (%dW/%dL)", rs.Trades, rs.Wins, rs.Losses)})
	t.AppendRow(table.Row{"Win Rate", FormatPercent(decimal.NewFromFloat(rs.WinRate() * 100))})
	t.AppendRow(table.Row{"Total P&L", FormatDollarAmount(rs.TotalPnL)})
	t.AppendRow(table.Row{"Daily P&L", FormatDollarAmount(rs.DailyPnL)})
	t.AppendRow(table.Row{"Max Drawdown", fmt.Sprintf("$%.2f", rs.MaxDrawdown.InexactFloat64())})

	cooldown := ColorGray.Sprint("inactive")
	if status.CooldownActive {
		cooldown = ColorRed.Sprintf("active until %s", rs.CoolingUntil.Format("15:04:05"))
	}
	t.AppendRow(table.Row{"Cooldown", cooldown})

	return t.Render()
}

func formatUptime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	return d.Truncate(time.Second).String()
}

func formatPairCounts(counts map[string]int) string {
	order := []pairs.Status{
		pairs.StatusActive, pairs.StatusPending, pairs.StatusSuspended, pairs.StatusBroken}

	var parts []string
	for _, st := range order {
		if n := counts[string(st)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(string(st))))
		}
	}
	if len(parts) == 0 {
		return ColorGray.Sprint("none")
	}
	return strings.Join(parts, ", ")
}

// FormatTimestamp formats a timestamp for display
func FormatTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
