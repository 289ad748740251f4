package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/exchange"
	"github.com/statforge/pairtrader/internal/models"
)

// Live routes instructions to the exchange REST client with market orders.
type Live struct {
	client *exchange.Client
	logger *zap.Logger
}

// NewLive creates a live engine backed by the exchange client.
func NewLive(client *exchange.Client, logger *zap.Logger) *Live {
	return &Live{
		client: client,
		logger: logger.With(zap.String("component", "live-engine")),
	}
}

// Buy places a market buy order.
func (l *Live) Buy(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return l.place(ctx, symbol, models.Buy, qty)
}

// Sell places a market sell order.
func (l *Live) Sell(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return l.place(ctx, symbol, models.Sell, qty)
}

func (l *Live) place(ctx context.Context, symbol string, side models.OrderSide, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("order quantity for %s must be positive, got %s", symbol, qty)
	}

	order, err := l.client.PlaceOrder(ctx, &models.OrderRequest{
		Symbol: symbol,
		Qty:    &qty,
		Side:   side,
		Type:   models.Market,
	})
	if err != nil {
		return fmt.Errorf("place %s order for %s: %w", side, symbol, err)
	}

	l.logger.Info("order placed",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("qty", qty.String()),
		zap.String("order_id", order.ID))
	return nil
}

// ClosePosition flattens the symbol on the venue.
func (l *Live) ClosePosition(ctx context.Context, symbol string) error {
	order, err := l.client.ClosePosition(ctx, symbol)
	if err != nil {
		return fmt.Errorf("close position for %s: %w", symbol, err)
	}
	if order != nil {
		l.logger.Info("position closed",
			zap.String("symbol", symbol),
			zap.String("order_id", order.ID))
	}
	return nil
}

// Capital returns the account equity.
func (l *Live) Capital(ctx context.Context) (decimal.Decimal, error) {
	account, err := l.client.GetAccount(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get account: %w", err)
	}
	return account.Equity, nil
}
