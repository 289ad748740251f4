// Package pairs owns the set of candidate and active trading pairs: their
// statistics, lifecycle state, open positions, and cumulative performance.
package pairs

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/statforge/pairtrader/internal/models"
	"github.com/statforge/pairtrader/internal/stats"
)

// Status is the lifecycle state of a pair.
type Status string

const (
	// StatusPending marks a newly added, not yet validated pair.
	StatusPending Status = "PENDING"
	// StatusActive marks a pair passing all validation gates.
	StatusActive Status = "ACTIVE"
	// StatusSuspended marks a pair failing the correlation or half-life gate
	// while cointegration still holds.
	StatusSuspended Status = "SUSPENDED"
	// StatusBroken marks a pair whose cointegration has been lost.
	StatusBroken Status = "BROKEN"
)

// Direction describes which side of the spread a position is on.
type Direction string

const (
	// LongSpread is long asset A, short asset B.
	LongSpread Direction = "long_spread"
	// ShortSpread is short asset A, long asset B.
	ShortSpread Direction = "short_spread"
)

// Stats holds the estimated relationship between the two legs plus the live
// fields refreshed during signal generation and position monitoring.
type Stats struct {
	Correlation  float64          `json:"correlation"`
	Alpha        float64          `json:"alpha"`
	Beta         float64          `json:"beta"`
	SpreadMean   float64          `json:"spread_mean"`
	SpreadStd    float64          `json:"spread_std"`
	Stationarity *stats.ADFResult `json:"stationarity,omitempty"`
	HalfLife     float64          `json:"half_life"`
	Hurst        float64          `json:"hurst"`

	// Live fields, written by the strategy between validation cycles.
	CurrentSpread float64 `json:"current_spread"`
	CurrentZScore float64 `json:"current_z_score"`
	CurrentBasis  float64 `json:"current_basis"`
	NetSpread     float64 `json:"net_spread"`
}

// Leg is one side of an open pair position.
type Leg struct {
	Symbol     string           `json:"symbol"`
	Side       models.OrderSide `json:"side"`
	Qty        decimal.Decimal  `json:"qty"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
}

// Position is an open two-leg position attached to a pair. A pair holds at
// most one position at a time.
type Position struct {
	Direction   Direction       `json:"direction"`
	LegA        Leg             `json:"leg_a"`
	LegB        Leg             `json:"leg_b"`
	EntryZScore float64         `json:"entry_z_score"`
	EntrySpread float64         `json:"entry_spread"`
	EntryTime   time.Time       `json:"entry_time"`
	Value       decimal.Decimal `json:"value"`
}

// Performance accumulates per-pair trade results.
type Performance struct {
	Trades        int             `json:"trades"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
	LastTradeTime time.Time       `json:"last_trade_time"`
}

// Pair is a candidate or active trading pair. It is owned and mutated by the
// Manager; the strategy reads it and writes only the live Stats fields.
type Pair struct {
	ID          string      `json:"id"`
	SymbolA     string      `json:"symbol_a"`
	SymbolB     string      `json:"symbol_b"`
	Status      Status      `json:"status"`
	Stats       Stats       `json:"stats"`
	Position    *Position   `json:"position,omitempty"`
	Performance Performance `json:"performance"`
	CreatedAt   time.Time   `json:"created_at"`
	LastUpdate  time.Time   `json:"last_update"`
	OpenTime    time.Time   `json:"open_time,omitempty"`
}

// TradeRecord captures a single closed pair trade for performance
// accounting, the journal, and metrics.
type TradeRecord struct {
	PairID      string          `json:"pair_id"`
	SymbolA     string          `json:"symbol_a"`
	SymbolB     string          `json:"symbol_b"`
	Direction   Direction       `json:"direction"`
	EntryTime   time.Time       `json:"entry_time"`
	ExitTime    time.Time       `json:"exit_time"`
	EntryZScore float64         `json:"entry_z_score"`
	ExitZScore  float64         `json:"exit_z_score"`
	Value       decimal.Decimal `json:"value"`
	PnL         decimal.Decimal `json:"pnl"`
	Reason      string          `json:"reason"`
}

// CanonicalID builds the order-independent pair identifier: the two symbols
// sorted lexicographically, joined with a dash.
func CanonicalID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "-" + b
}
