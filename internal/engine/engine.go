// Package engine defines the order-execution surface the strategy trades
// through, with a paper implementation for backtests and shadow runs and a
// live implementation backed by the exchange client.
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// Engine accepts buy/sell/close instructions and reports capital. Calls may
// complete asynchronously on the venue side; the strategy does not wait for
// fills and keeps its own optimistic bookkeeping.
type Engine interface {
	Buy(ctx context.Context, symbol string, qty decimal.Decimal) error
	Sell(ctx context.Context, symbol string, qty decimal.Decimal) error
	ClosePosition(ctx context.Context, symbol string) error
	Capital(ctx context.Context) (decimal.Decimal, error)
}
