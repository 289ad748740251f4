package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Paper simulates execution against the most recent marked price per symbol.
// Fills are immediate and unslipped; capital is cash plus open positions
// marked to market.
type Paper struct {
	mu        sync.Mutex
	logger    *zap.Logger
	cash      decimal.Decimal
	marks     map[string]decimal.Decimal
	positions map[string]decimal.Decimal
}

// NewPaper creates a paper engine with the given starting cash.
func NewPaper(initial decimal.Decimal, logger *zap.Logger) *Paper {
	return &Paper{
		logger:    logger.With(zap.String("component", "paper-engine")),
		cash:      initial,
		marks:     make(map[string]decimal.Decimal),
		positions: make(map[string]decimal.Decimal),
	}
}

// Mark records the latest observed price for a symbol. Fills and valuation
// both use the mark, so it should be updated on every tick before trading.
func (p *Paper) Mark(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price
}

// Buy fills a market buy at the current mark.
func (p *Paper) Buy(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return p.fill(symbol, qty)
}

// Sell fills a market sell at the current mark. Selling without inventory
// opens a short.
func (p *Paper) Sell(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return p.fill(symbol, qty.Neg())
}

func (p *Paper) fill(symbol string, qty decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	mark, ok := p.marks[symbol]
	if !ok {
		return fmt.Errorf("no mark price for %s", symbol)
	}
	if !mark.IsPositive() {
		return fmt.Errorf("mark price for %s is %s", symbol, mark)
	}

	p.cash = p.cash.Sub(qty.Mul(mark))
	p.positions[symbol] = p.positions[symbol].Add(qty)
	if p.positions[symbol].IsZero() {
		delete(p.positions, symbol)
	}

	p.logger.Debug("paper fill",
		zap.String("symbol", symbol),
		zap.String("qty", qty.String()),
		zap.String("price", mark.String()))
	return nil
}

// ClosePosition flattens the symbol at the current mark.
func (p *Paper) ClosePosition(ctx context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok || pos.IsZero() {
		return nil
	}
	mark, ok := p.marks[symbol]
	if !ok {
		return fmt.Errorf("no mark price for %s", symbol)
	}

	p.cash = p.cash.Add(pos.Mul(mark))
	delete(p.positions, symbol)

	p.logger.Debug("paper close",
		zap.String("symbol", symbol),
		zap.String("qty", pos.String()),
		zap.String("price", mark.String()))
	return nil
}

// Capital returns cash plus open positions marked to market.
func (p *Paper) Capital(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.cash
	for symbol, pos := range p.positions {
		mark, ok := p.marks[symbol]
		if !ok {
			continue
		}
		equity = equity.Add(pos.Mul(mark))
	}
	return equity, nil
}

// Position returns the signed open quantity for a symbol.
func (p *Paper) Position(symbol string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[symbol]
}
