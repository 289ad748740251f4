package strategy

import (
	"fmt"
	"math"

	"github.com/statforge/pairtrader/internal/config"
	"github.com/statforge/pairtrader/internal/pairs"
	"github.com/statforge/pairtrader/internal/spread"
	"github.com/statforge/pairtrader/internal/stats"
)

// perpFundingDays is the day count used to annualize the perpetual-spot
// basis: the 8-hour funding cycle is treated as a day count.
const perpFundingDays = 8.0

// EntrySignal is a generated open decision, before risk gating and sizing.
type EntrySignal struct {
	Direction pairs.Direction
	ZScore    float64
	Spread    float64
	Reason    string
}

// arbMode is one arbitrage style. The mode object is selected once at
// construction; call sites never switch on mode strings.
type arbMode interface {
	Name() string
	// Live computes the mode's reading of the pair at current prices.
	Live(p *pairs.Pair, priceA, priceB float64) pairs.LiveStats
	// GenerateSignal returns an entry signal when the live reading crosses
	// the mode's entry threshold, nil otherwise.
	GenerateSignal(p *pairs.Pair, live pairs.LiveStats) *EntrySignal
	// CheckClose reports the mode-specific close reason for an open
	// position, "" when none applies.
	CheckClose(p *pairs.Pair, live pairs.LiveStats) string
}

func modeFor(name string, cfg *config.Config) (arbMode, error) {
	switch name {
	case "pairs", "cointegration":
		return &cointegrationMode{entryZ: cfg.EntryZScore}, nil
	case "cross_exchange":
		return &crossExchangeMode{
			entry: cfg.SpreadEntryThreshold,
			exit:  cfg.SpreadExitThreshold,
			cost:  2*cfg.TradingCost + 2*cfg.SlippageEstimate,
		}, nil
	case "perpetual_spot":
		return &perpSpotMode{
			entry: cfg.BasisEntryThreshold,
			exit:  cfg.BasisExitThreshold,
		}, nil
	default:
		return nil, fmt.Errorf("unknown arbitrage mode %q", name)
	}
}

// residualZ computes the regression-residual spread and its Z-score from the
// pair's stored parameters. All modes report it; the cointegration mode
// trades it.
func residualZ(p *pairs.Pair, priceA, priceB float64) (float64, float64) {
	st := p.Stats
	cur := spread.Residual(priceA, priceB, st.Alpha, st.Beta)
	return cur, stats.ZScore(cur, st.SpreadMean, st.SpreadStd)
}

// cointegrationMode trades the OLS residual spread against its estimated
// distribution.
type cointegrationMode struct {
	entryZ float64
}

func (m *cointegrationMode) Name() string { return "cointegration" }

func (m *cointegrationMode) Live(p *pairs.Pair, priceA, priceB float64) pairs.LiveStats {
	cur, z := residualZ(p, priceA, priceB)
	return pairs.LiveStats{Spread: cur, ZScore: z}
}

func (m *cointegrationMode) GenerateSignal(p *pairs.Pair, live pairs.LiveStats) *EntrySignal {
	switch {
	case live.ZScore >= m.entryZ:
		// Spread rich: sell A, buy B.
		return &EntrySignal{
			Direction: pairs.ShortSpread,
			ZScore:    live.ZScore,
			Spread:    live.Spread,
			Reason:    fmt.Sprintf("Z-score %.2f >= %.2f (short spread)", live.ZScore, m.entryZ),
		}
	case live.ZScore <= -m.entryZ:
		return &EntrySignal{
			Direction: pairs.LongSpread,
			ZScore:    live.ZScore,
			Spread:    live.Spread,
			Reason:    fmt.Sprintf("Z-score %.2f <= %.2f (long spread)", live.ZScore, -m.entryZ),
		}
	}
	return nil
}

func (m *cointegrationMode) CheckClose(*pairs.Pair, pairs.LiveStats) string {
	// The shared Z-score exits cover this mode.
	return ""
}

// crossExchangeMode trades the percentage spread between the same instrument
// on two venues, net of round-trip costs.
type crossExchangeMode struct {
	entry float64
	exit  float64
	cost  float64
}

func (m *crossExchangeMode) Name() string { return "cross_exchange" }

// Live reports the signed percentage spread in Spread and the cost-adjusted
// magnitude in Net. ZScore stays the residual reading used by the shared
// exits.
func (m *crossExchangeMode) Live(p *pairs.Pair, priceA, priceB float64) pairs.LiveStats {
	_, z := residualZ(p, priceA, priceB)
	raw := spread.Percentage(priceA, priceB)
	return pairs.LiveStats{
		Spread: raw,
		ZScore: z,
		Net:    math.Abs(raw) - m.cost,
	}
}

func (m *crossExchangeMode) GenerateSignal(p *pairs.Pair, live pairs.LiveStats) *EntrySignal {
	if live.Net <= m.entry {
		return nil
	}

	// Direction follows the sign of the raw spread: venue A rich means sell
	// A, buy B.
	dir := pairs.LongSpread
	if live.Spread >= 0 {
		dir = pairs.ShortSpread
	}
	return &EntrySignal{
		Direction: dir,
		ZScore:    live.ZScore,
		Spread:    live.Spread,
		Reason:    fmt.Sprintf("net spread %.4f > %.4f (cross-exchange)", live.Net, m.entry),
	}
}

func (m *crossExchangeMode) CheckClose(p *pairs.Pair, live pairs.LiveStats) string {
	if live.Net <= m.exit {
		return closeSpreadConverged
	}
	return ""
}

// perpSpotMode trades the annualized basis between a perpetual contract
// (leg A) and its spot instrument (leg B).
type perpSpotMode struct {
	entry float64
	exit  float64
}

func (m *perpSpotMode) Name() string { return "perpetual_spot" }

func (m *perpSpotMode) Live(p *pairs.Pair, priceA, priceB float64) pairs.LiveStats {
	cur, z := residualZ(p, priceA, priceB)
	basis := spread.Annualize(spread.Basis(priceA, priceB), perpFundingDays)
	return pairs.LiveStats{
		Spread: cur,
		ZScore: z,
		Basis:  basis,
	}
}

func (m *perpSpotMode) GenerateSignal(p *pairs.Pair, live pairs.LiveStats) *EntrySignal {
	switch {
	case live.Basis >= m.entry:
		// Perp rich: sell the perp, buy spot.
		return &EntrySignal{
			Direction: pairs.ShortSpread,
			ZScore:    live.ZScore,
			Spread:    live.Spread,
			Reason:    fmt.Sprintf("annualized basis %.4f >= %.4f (sell perp)", live.Basis, m.entry),
		}
	case live.Basis <= -m.entry:
		return &EntrySignal{
			Direction: pairs.LongSpread,
			ZScore:    live.ZScore,
			Spread:    live.Spread,
			Reason:    fmt.Sprintf("annualized basis %.4f <= %.4f (buy perp)", live.Basis, -m.entry),
		}
	}
	return nil
}

func (m *perpSpotMode) CheckClose(p *pairs.Pair, live pairs.LiveStats) string {
	if math.Abs(live.Basis) <= m.exit {
		return closeBasisConverged
	}
	return ""
}
