// Package pricestore keeps per-symbol rolling price histories for the
// statistical pipeline. Capacity is bounded; the oldest entry is evicted
// first. Prices are stored as raw float64 since everything downstream is
// float math.
package pricestore

import (
	"sort"
	"sync"
	"time"
)

// Store holds a rolling (price, timestamp) series per symbol.
type Store struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*series
}

type series struct {
	prices []float64
	times  []time.Time
}

// New creates a store with the given per-symbol capacity.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		series:   make(map[string]*series),
	}
}

// Add appends a price point for symbol, evicting the oldest entry once the
// capacity is exceeded. Prices are not validated; garbage in passes through.
func (s *Store) Add(symbol string, price float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.series[symbol]
	if !ok {
		sr = &series{
			prices: make([]float64, 0, s.capacity),
			times:  make([]time.Time, 0, s.capacity),
		}
		s.series[symbol] = sr
	}

	sr.prices = append(sr.prices, price)
	sr.times = append(sr.times, ts)
	if len(sr.prices) > s.capacity {
		sr.prices = sr.prices[1:]
		sr.times = sr.times[1:]
	}
}

// Prices returns a copy of the last n prices for symbol, oldest first.
// n <= 0 returns the full series. Unknown symbols yield an empty slice.
func (s *Store) Prices(symbol string, n int) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[symbol]
	if !ok {
		return []float64{}
	}
	start := 0
	if n > 0 && n < len(sr.prices) {
		start = len(sr.prices) - n
	}
	out := make([]float64, len(sr.prices)-start)
	copy(out, sr.prices[start:])
	return out
}

// Timestamps returns a copy of the last n timestamps for symbol, oldest
// first, mirroring Prices.
func (s *Store) Timestamps(symbol string, n int) []time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[symbol]
	if !ok {
		return []time.Time{}
	}
	start := 0
	if n > 0 && n < len(sr.times) {
		start = len(sr.times) - n
	}
	out := make([]time.Time, len(sr.times)-start)
	copy(out, sr.times[start:])
	return out
}

// Latest returns the most recent price for symbol.
func (s *Store) Latest(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[symbol]
	if !ok || len(sr.prices) == 0 {
		return 0, false
	}
	return sr.prices[len(sr.prices)-1], true
}

// Len returns the number of stored points for symbol.
func (s *Store) Len(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[symbol]
	if !ok {
		return 0
	}
	return len(sr.prices)
}

// HasEnoughData reports whether symbol has at least n points.
func (s *Store) HasEnoughData(symbol string, n int) bool {
	return s.Len(symbol) >= n
}

// Returns computes simple returns (p[i]-p[i-1])/p[i-1] over the last n
// prices. n <= 0 uses the full series.
func (s *Store) Returns(symbol string, n int) []float64 {
	prices := s.Prices(symbol, n)
	if len(prices) < 2 {
		return []float64{}
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
	}
	return out
}

// Symbols returns the tracked symbols, sorted for deterministic iteration.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.series))
	for sym := range s.series {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Clear drops the series for symbol.
func (s *Store) Clear(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.series, symbol)
}
