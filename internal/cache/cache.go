package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/statforge/pairtrader/internal/models"
)

// Cache provides fast in-memory caching for market data
type Cache struct {
	tickers *gocache.Cache
	candles *gocache.Cache
	funding *gocache.Cache
	ttl     time.Duration
}

// NewCache creates a new cache instance
func NewCache(ttl time.Duration) *Cache {
	// Use go-cache with default expiration and cleanup interval
	return &Cache{
		tickers: gocache.New(ttl, ttl*2),
		candles: gocache.New(5*time.Minute, 10*time.Minute), // Candles cached longer
		funding: gocache.New(time.Hour, 2*time.Hour),        // Funding updates every 8h
		ttl:     ttl,
	}
}

// GetTicker retrieves a cached ticker
func (c *Cache) GetTicker(symbol string) (*models.Ticker, bool) {
	if val, found := c.tickers.Get(symbol); found {
		if ticker, ok := val.(*models.Ticker); ok {
			return ticker, true
		}
	}
	return nil, false
}

// SetTicker caches a ticker
func (c *Cache) SetTicker(symbol string, ticker *models.Ticker) {
	c.tickers.Set(symbol, ticker, c.ttl)
}

// GetCandle retrieves the latest cached candle for a symbol
func (c *Cache) GetCandle(symbol string) (*models.Candle, bool) {
	if val, found := c.candles.Get(symbol); found {
		if candle, ok := val.(*models.Candle); ok {
			return candle, true
		}
	}
	return nil, false
}

// SetCandle caches the latest candle for a symbol
func (c *Cache) SetCandle(symbol string, candle *models.Candle) {
	c.candles.Set(symbol, candle, 5*time.Minute)
}

// UpdateCandleFromStream records a streamed candle and refreshes the
// derived ticker in one step
func (c *Cache) UpdateCandleFromStream(candle *models.Candle) {
	c.SetCandle(candle.Symbol, candle)
	c.SetTicker(candle.Symbol, &models.Ticker{
		Symbol:    candle.Symbol,
		Price:     candle.Close,
		Timestamp: candle.Timestamp,
	})
}

// GetFundingRate retrieves a cached funding rate
func (c *Cache) GetFundingRate(symbol string) (*models.FundingRate, bool) {
	if val, found := c.funding.Get(symbol); found {
		if rate, ok := val.(*models.FundingRate); ok {
			return rate, true
		}
	}
	return nil, false
}

// SetFundingRate caches a funding rate update
func (c *Cache) SetFundingRate(symbol string, rate *models.FundingRate) {
	c.funding.Set(symbol, rate, gocache.DefaultExpiration)
}

// Clear removes all cached data
func (c *Cache) Clear() {
	c.tickers.Flush()
	c.candles.Flush()
	c.funding.Flush()
}

// Stats returns cache statistics
type Stats struct {
	TickerCount  int
	CandleCount  int
	FundingCount int
}

// GetStats returns current cache statistics
func (c *Cache) GetStats() Stats {
	return Stats{
		TickerCount:  c.tickers.ItemCount(),
		CandleCount:  c.candles.ItemCount(),
		FundingCount: c.funding.ItemCount(),
	}
}
