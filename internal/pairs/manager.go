package pairs

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// eventBuffer is the capacity of the lifecycle event channel. Sends never
// block; events are dropped with a warning when the buffer is full.
const eventBuffer = 256

var (
	// ErrPairNotFound reports an unknown pair ID.
	ErrPairNotFound = errors.New("pair not found")
	// ErrPositionOpen reports an operation that requires a flat pair.
	ErrPositionOpen = errors.New("pair has an open position")
)

// Limits holds the validation gates and the active-set cap.
type Limits struct {
	MaxActivePairs int
	MinCorrelation float64
	MinHalfLife    float64
	MaxHalfLife    float64
}

// Manager owns all pairs and their lifecycle. Validation is recomputed on
// every statistics update and is not sticky: a BROKEN or SUSPENDED pair
// returns to ACTIVE as soon as its statistics pass the gates again. Only
// removal is permanent.
type Manager struct {
	mu     sync.RWMutex
	logger *zap.Logger
	limits Limits
	pairs  map[string]*Pair
	active map[string]bool
	events chan Event
}

// NewManager creates a pair manager with the given gates.
func NewManager(limits Limits, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.With(zap.String("component", "pairs")),
		limits: limits,
		pairs:  make(map[string]*Pair),
		active: make(map[string]bool),
		events: make(chan Event, eventBuffer),
	}
}

// Events exposes the lifecycle event stream.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// AddPair registers a pair, keeping the given leg order (symbol a is leg A).
// Adding is idempotent by canonical ID: re-adding merges the provided stats
// into the existing pair instead of creating a duplicate.
func (m *Manager) AddPair(a, b string, st *Stats) (*Pair, error) {
	if a == "" || b == "" {
		return nil, fmt.Errorf("pair symbols must be non-empty")
	}
	if a == b {
		return nil, fmt.Errorf("pair legs must differ, got %q twice", a)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := CanonicalID(a, b)
	if p, ok := m.pairs[id]; ok {
		if st != nil {
			m.applyStatsLocked(p, *st)
		}
		return p, nil
	}

	now := time.Now()
	p := &Pair{
		ID:         id,
		SymbolA:    a,
		SymbolB:    b,
		Status:     StatusPending,
		CreatedAt:  now,
		LastUpdate: now,
	}
	m.pairs[id] = p
	m.publishLocked(Event{Type: EventPairAdded, PairID: id, Status: p.Status, Time: now})
	m.logger.Info("pair added", zap.String("pair", id))

	if st != nil {
		m.applyStatsLocked(p, *st)
	}
	return p, nil
}

// RemovePair deletes a pair permanently.
func (m *Manager) RemovePair(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pairs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrPairNotFound)
	}
	if p.Position != nil {
		return fmt.Errorf("%s: %w", id, ErrPositionOpen)
	}

	delete(m.pairs, id)
	delete(m.active, id)
	m.publishLocked(Event{Type: EventPairRemoved, PairID: id, Time: time.Now()})
	m.logger.Info("pair removed", zap.String("pair", id))
	return nil
}

// Pair returns the pair for id.
func (m *Manager) Pair(id string) (*Pair, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pairs[id]
	return p, ok
}

// AllPairs returns every pair, sorted by ID for deterministic iteration.
func (m *Manager) AllPairs() []*Pair {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Pair, 0, len(m.pairs))
	for _, p := range m.pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActivePairs returns the actively monitored pairs, sorted by ID.
func (m *Manager) ActivePairs() []*Pair {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Pair, 0, len(m.active))
	for id := range m.active {
		if p, ok := m.pairs[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsActive reports whether the pair is in the actively monitored set.
func (m *Manager) IsActive(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[id]
}

// ActivatePair moves a pair into the actively monitored set, capped at
// MaxActivePairs.
func (m *Manager) ActivatePair(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pairs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrPairNotFound)
	}
	if m.active[id] {
		return nil
	}
	if len(m.active) >= m.limits.MaxActivePairs {
		return fmt.Errorf("active pair limit reached (%d)", m.limits.MaxActivePairs)
	}

	m.active[id] = true
	m.publishLocked(Event{Type: EventPairActivated, PairID: id, Status: p.Status, Time: time.Now()})
	m.logger.Info("pair activated", zap.String("pair", id), zap.Int("active", len(m.active)))
	return nil
}

// DeactivatePair removes a pair from the actively monitored set.
func (m *Manager) DeactivatePair(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
}

// UpdateStats merges a fresh statistics estimate into the pair and re-runs
// the validation gates, transitioning the lifecycle state accordingly.
func (m *Manager) UpdateStats(id string, st Stats) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pairs[id]
	if !ok {
		return "", fmt.Errorf("%s: %w", id, ErrPairNotFound)
	}
	m.applyStatsLocked(p, st)
	return p.Status, nil
}

// LiveStats are the per-tick signal readings refreshed between validation
// cycles.
type LiveStats struct {
	Spread float64
	ZScore float64
	Basis  float64
	Net    float64
}

// SetLiveStats updates the live signal fields without re-running validation.
func (m *Manager) SetLiveStats(id string, ls LiveStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pairs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrPairNotFound)
	}
	p.Stats.CurrentSpread = ls.Spread
	p.Stats.CurrentZScore = ls.ZScore
	p.Stats.CurrentBasis = ls.Basis
	p.Stats.NetSpread = ls.Net
	return nil
}

// RestorePair reinserts a pair from a persisted snapshot. The restored pair
// starts as PENDING regardless of its saved status: persisted statistics are
// stale after a restart and the next analysis cycle revalidates from fresh
// data. Positions and performance are kept as saved.
func (m *Manager) RestorePair(p *Pair) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid pair snapshot")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pairs[p.ID]; ok {
		return fmt.Errorf("pair %s already present", p.ID)
	}
	p.Status = StatusPending
	m.pairs[p.ID] = p
	m.logger.Debug("pair restored", zap.String("pair", p.ID),
		zap.Bool("open_position", p.Position != nil))
	return nil
}

// applyStatsLocked merges stats, validates, and publishes transitions.
func (m *Manager) applyStatsLocked(p *Pair, st Stats) {
	// A cycle that produced no stationarity result keeps the prior one.
	if st.Stationarity == nil {
		st.Stationarity = p.Stats.Stationarity
	}
	p.Stats = st
	p.LastUpdate = time.Now()

	old := p.Status
	p.Status = m.validateLocked(p)
	if p.Status == old {
		return
	}

	switch p.Status {
	case StatusBroken:
		// Cointegration lost: drop the active-set slot as well.
		delete(m.active, p.ID)
		m.publishLocked(Event{Type: EventPairBroken, PairID: p.ID, Status: p.Status, Reason: "stationarity lost", Time: p.LastUpdate})
		m.logger.Warn("pair broken", zap.String("pair", p.ID),
			zap.Float64("correlation", st.Correlation),
			zap.Float64("half_life", st.HalfLife))
	case StatusSuspended:
		reason := "correlation below minimum"
		if math.Abs(st.Correlation) >= m.limits.MinCorrelation {
			reason = "half-life out of range"
		}
		m.publishLocked(Event{Type: EventPairSuspended, PairID: p.ID, Status: p.Status, Reason: reason, Time: p.LastUpdate})
		m.logger.Info("pair suspended", zap.String("pair", p.ID), zap.String("reason", reason))
	case StatusActive:
		if old == StatusSuspended || old == StatusBroken {
			m.publishLocked(Event{Type: EventPairResumed, PairID: p.ID, Status: p.Status, Time: p.LastUpdate})
			m.logger.Info("pair resumed", zap.String("pair", p.ID), zap.String("previous", string(old)))
		}
	}
}

// validateLocked runs the gates in order: stationarity, correlation,
// half-life.
func (m *Manager) validateLocked(p *Pair) Status {
	st := p.Stats
	if st.Stationarity != nil && !st.Stationarity.IsStationary {
		return StatusBroken
	}
	if math.Abs(st.Correlation) < m.limits.MinCorrelation {
		return StatusSuspended
	}
	if st.HalfLife < m.limits.MinHalfLife || st.HalfLife > m.limits.MaxHalfLife {
		return StatusSuspended
	}
	return StatusActive
}

// SetPosition attaches an open position to the pair. A pair can hold at most
// one position; a second attach is an error, never a silent overwrite.
func (m *Manager) SetPosition(id string, pos *Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pairs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrPairNotFound)
	}
	if p.Position != nil {
		return fmt.Errorf("%s: %w", id, ErrPositionOpen)
	}

	p.Position = pos
	p.OpenTime = pos.EntryTime
	m.publishLocked(Event{Type: EventPositionOpened, PairID: id, Status: p.Status, Reason: string(pos.Direction), Time: pos.EntryTime})
	m.logger.Info("position opened",
		zap.String("pair", id),
		zap.String("direction", string(pos.Direction)),
		zap.String("value", pos.Value.String()),
		zap.Float64("entry_z", pos.EntryZScore))
	return nil
}

// ClearPosition detaches and returns the open position.
func (m *Manager) ClearPosition(id string) (*Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pairs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrPairNotFound)
	}
	if p.Position == nil {
		return nil, fmt.Errorf("pair %s has no open position", id)
	}

	pos := p.Position
	p.Position = nil
	p.OpenTime = time.Time{}
	return pos, nil
}

// RecordTrade accumulates a closed trade into the pair performance and
// publishes the close event. Max drawdown tracks the largest single losing
// trade.
func (m *Manager) RecordTrade(id string, rec TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pairs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrPairNotFound)
	}

	perf := &p.Performance
	perf.Trades++
	perf.RealizedPnL = perf.RealizedPnL.Add(rec.PnL)
	perf.LastTradeTime = rec.ExitTime
	if rec.PnL.IsNegative() {
		perf.Losses++
		if loss := rec.PnL.Abs(); loss.GreaterThan(perf.MaxDrawdown) {
			perf.MaxDrawdown = loss
		}
	} else {
		perf.Wins++
	}

	m.publishLocked(Event{
		Type:   EventPositionClosed,
		PairID: id,
		Status: p.Status,
		Reason: rec.Reason,
		PnL:    rec.PnL,
		Trade:  &rec,
		Time:   rec.ExitTime,
	})
	return nil
}

// OpenPositionCount returns the number of pairs holding a position.
func (m *Manager) OpenPositionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, p := range m.pairs {
		if p.Position != nil {
			count++
		}
	}
	return count
}

// OpenNotional returns the total value of all open positions.
func (m *Manager) OpenNotional() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := decimal.Zero
	for _, p := range m.pairs {
		if p.Position != nil {
			total = total.Add(p.Position.Value)
		}
	}
	return total
}

// NotifyCooldown publishes a strategy-level cooldown event.
func (m *Manager) NotifyCooldown(until time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishLocked(Event{
		Type:   EventCooldownStarted,
		Reason: fmt.Sprintf("cooling until %s", until.Format(time.RFC3339)),
		Time:   time.Now(),
	})
}

// publishLocked sends an event without blocking; a full buffer drops the
// event with a warning.
func (m *Manager) publishLocked(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("event buffer full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("pair", ev.PairID))
	}
}
