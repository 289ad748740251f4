package pairs

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/stats"
)

func testLimits() Limits {
	return Limits{
		MaxActivePairs: 2,
		MinCorrelation: 0.7,
		MinHalfLife:    1,
		MaxHalfLife:    100,
	}
}

func passingStats() Stats {
	return Stats{
		Correlation:  0.9,
		Beta:         0.5,
		HalfLife:     10,
		Stationarity: &stats.ADFResult{IsStationary: true, TestStat: -3.5, CriticalValue: -2.86, PValue: 0.05},
	}
}

// drainEvents empties the event channel and returns what was buffered.
func drainEvents(m *Manager) []Event {
	var out []Event
	for {
		select {
		case ev := <-m.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func lastEventOfType(evs []Event, typ EventType) (Event, bool) {
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == typ {
			return evs[i], true
		}
	}
	return Event{}, false
}

func TestAddPairCanonicalID(t *testing.T) {
	m := NewManager(testLimits(), zap.NewNop())

	p, err := m.AddPair("ETH-USD", "BTC-USD", nil)
	if err != nil {
		t.Fatalf("AddPair() error = %v", err)
	}
	if p.ID != "BTC-USD-ETH-USD" {
		t.Errorf("ID = %q, want %q", p.ID, "BTC-USD-ETH-USD")
	}
	if p.SymbolA != "ETH-USD" || p.SymbolB != "BTC-USD" {
		t.Errorf("legs = (%q, %q), want given order preserved", p.SymbolA, p.SymbolB)
	}
	if p.Status != StatusPending {
		t.Errorf("Status = %q, want %q", p.Status, StatusPending)
	}

	// Reversed legs resolve to the same pair.
	q, err := m.AddPair("BTC-USD", "ETH-USD", nil)
	if err != nil {
		t.Fatalf("AddPair() reversed error = %v", err)
	}
	if q != p {
		t.Error("reversed AddPair() created a second pair, want same pair")
	}
	if got := len(m.AllPairs()); got != 1 {
		t.Errorf("len(AllPairs()) = %d, want 1", got)
	}
}

func TestAddPairRejectsDegenerate(t *testing.T) {
	m := NewManager(testLimits(), zap.NewNop())

	if _, err := m.AddPair("BTC-USD", "BTC-USD", nil); err == nil {
		t.Error("AddPair() with identical legs should fail")
	}
	if _, err := m.AddPair("", "BTC-USD", nil); err == nil {
		t.Error("AddPair() with empty symbol should fail")
	}
}

func TestAddPairMergesStats(t *testing.T) {
	m := NewManager(testLimits(), zap.NewNop())

	st := passingStats()
	if _, err := m.AddPair("AAA", "BBB", &st); err != nil {
		t.Fatalf("AddPair() error = %v", err)
	}
	p, _ := m.Pair("AAA-BBB")
	if p.Status != StatusActive {
		t.Errorf("Status after passing stats = %q, want %q", p.Status, StatusActive)
	}

	// Re-adding with new stats merges into the same pair.
	st2 := passingStats()
	st2.Correlation = 0.95
	if _, err := m.AddPair("AAA", "BBB", &st2); err != nil {
		t.Fatalf("AddPair() merge error = %v", err)
	}
	if p.Stats.Correlation != 0.95 {
		t.Errorf("merged Correlation = %v, want 0.95", p.Stats.Correlation)
	}
}

func TestUpdateStatsTransitions(t *testing.T) {
	t.Run("stationarity lost breaks pair and frees slot", func(t *testing.T) {
		m := NewManager(testLimits(), zap.NewNop())
		st := passingStats()
		m.AddPair("AAA", "BBB", &st)
		if err := m.ActivatePair("AAA-BBB"); err != nil {
			t.Fatalf("ActivatePair() error = %v", err)
		}
		drainEvents(m)

		broken := passingStats()
		broken.Stationarity = &stats.ADFResult{IsStationary: false, TestStat: -1.0, CriticalValue: -2.86, PValue: 0.5}
		status, err := m.UpdateStats("AAA-BBB", broken)
		if err != nil {
			t.Fatalf("UpdateStats() error = %v", err)
		}
		if status != StatusBroken {
			t.Errorf("status = %q, want %q", status, StatusBroken)
		}
		if m.IsActive("AAA-BBB") {
			t.Error("broken pair should be removed from the active set")
		}
		if _, ok := lastEventOfType(drainEvents(m), EventPairBroken); !ok {
			t.Error("expected a pair_broken event")
		}
	})

	t.Run("low correlation suspends but keeps slot", func(t *testing.T) {
		m := NewManager(testLimits(), zap.NewNop())
		st := passingStats()
		m.AddPair("AAA", "BBB", &st)
		m.ActivatePair("AAA-BBB")
		drainEvents(m)

		weak := passingStats()
		weak.Correlation = 0.3
		status, _ := m.UpdateStats("AAA-BBB", weak)
		if status != StatusSuspended {
			t.Errorf("status = %q, want %q", status, StatusSuspended)
		}
		if !m.IsActive("AAA-BBB") {
			t.Error("suspended pair should keep its active-set slot")
		}
		ev, ok := lastEventOfType(drainEvents(m), EventPairSuspended)
		if !ok {
			t.Fatal("expected a pair_suspended event")
		}
		if ev.Reason != "correlation below minimum" {
			t.Errorf("Reason = %q, want correlation reason", ev.Reason)
		}
	})

	t.Run("strong negative correlation passes", func(t *testing.T) {
		m := NewManager(testLimits(), zap.NewNop())
		st := passingStats()
		st.Correlation = -0.85
		m.AddPair("AAA", "BBB", &st)
		p, _ := m.Pair("AAA-BBB")
		if p.Status != StatusActive {
			t.Errorf("Status with corr -0.85 = %q, want %q", p.Status, StatusActive)
		}
	})

	t.Run("half-life out of range suspends", func(t *testing.T) {
		m := NewManager(testLimits(), zap.NewNop())
		st := passingStats()
		m.AddPair("AAA", "BBB", &st)

		slow := passingStats()
		slow.HalfLife = 500
		status, _ := m.UpdateStats("AAA-BBB", slow)
		if status != StatusSuspended {
			t.Errorf("status with half-life 500 = %q, want %q", status, StatusSuspended)
		}

		fast := passingStats()
		fast.HalfLife = 0.2
		status, _ = m.UpdateStats("AAA-BBB", fast)
		if status != StatusSuspended {
			t.Errorf("status with half-life 0.2 = %q, want %q", status, StatusSuspended)
		}
	})

	t.Run("broken pair resurrects on passing stats", func(t *testing.T) {
		m := NewManager(testLimits(), zap.NewNop())
		broken := passingStats()
		broken.Stationarity = &stats.ADFResult{IsStationary: false}
		m.AddPair("AAA", "BBB", &broken)
		p, _ := m.Pair("AAA-BBB")
		if p.Status != StatusBroken {
			t.Fatalf("setup: Status = %q, want %q", p.Status, StatusBroken)
		}
		drainEvents(m)

		good := passingStats()
		status, _ := m.UpdateStats("AAA-BBB", good)
		if status != StatusActive {
			t.Errorf("status after recovery = %q, want %q", status, StatusActive)
		}
		if _, ok := lastEventOfType(drainEvents(m), EventPairResumed); !ok {
			t.Error("expected a pair_resumed event")
		}
	})

	t.Run("nil stationarity keeps prior result", func(t *testing.T) {
		m := NewManager(testLimits(), zap.NewNop())
		st := passingStats()
		m.AddPair("AAA", "BBB", &st)

		partial := passingStats()
		partial.Stationarity = nil
		m.UpdateStats("AAA-BBB", partial)
		p, _ := m.Pair("AAA-BBB")
		if p.Stats.Stationarity == nil {
			t.Fatal("Stationarity was discarded, want prior result kept")
		}
		if !p.Stats.Stationarity.IsStationary {
			t.Error("prior stationarity result should survive a partial update")
		}
	})
}

func TestActivatePairCap(t *testing.T) {
	m := NewManager(testLimits(), zap.NewNop())
	m.AddPair("AAA", "BBB", nil)
	m.AddPair("CCC", "DDD", nil)
	m.AddPair("EEE", "FFF", nil)

	if err := m.ActivatePair("AAA-BBB"); err != nil {
		t.Fatalf("ActivatePair() #1 error = %v", err)
	}
	if err := m.ActivatePair("CCC-DDD"); err != nil {
		t.Fatalf("ActivatePair() #2 error = %v", err)
	}
	if err := m.ActivatePair("EEE-FFF"); err == nil {
		t.Error("ActivatePair() beyond cap should fail")
	}

	// Re-activating an active pair is a no-op, not a cap violation.
	if err := m.ActivatePair("AAA-BBB"); err != nil {
		t.Errorf("ActivatePair() repeat error = %v", err)
	}

	m.DeactivatePair("AAA-BBB")
	if err := m.ActivatePair("EEE-FFF"); err != nil {
		t.Errorf("ActivatePair() after freeing a slot error = %v", err)
	}
}

func TestSetPositionExclusive(t *testing.T) {
	m := NewManager(testLimits(), zap.NewNop())
	m.AddPair("AAA", "BBB", nil)

	pos := &Position{
		Direction: LongSpread,
		EntryTime: time.Now(),
		Value:     decimal.NewFromInt(1000),
	}
	if err := m.SetPosition("AAA-BBB", pos); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}
	if err := m.SetPosition("AAA-BBB", pos); err == nil {
		t.Error("second SetPosition() should fail while a position is open")
	}
	if got := m.OpenPositionCount(); got != 1 {
		t.Errorf("OpenPositionCount() = %d, want 1", got)
	}
	if got := m.OpenNotional(); !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("OpenNotional() = %s, want 1000", got)
	}

	if err := m.RemovePair("AAA-BBB"); err == nil {
		t.Error("RemovePair() with open position should fail")
	}

	cleared, err := m.ClearPosition("AAA-BBB")
	if err != nil {
		t.Fatalf("ClearPosition() error = %v", err)
	}
	if cleared != pos {
		t.Error("ClearPosition() returned a different position")
	}
	if _, err := m.ClearPosition("AAA-BBB"); err == nil {
		t.Error("ClearPosition() with nothing open should fail")
	}
	if err := m.SetPosition("AAA-BBB", pos); err != nil {
		t.Errorf("SetPosition() after clearing error = %v", err)
	}
}

func TestRecordTrade(t *testing.T) {
	m := NewManager(testLimits(), zap.NewNop())
	m.AddPair("AAA", "BBB", nil)
	drainEvents(m)

	now := time.Now()
	trades := []TradeRecord{
		{PairID: "AAA-BBB", PnL: decimal.NewFromInt(50), ExitTime: now, Reason: "target reached"},
		{PairID: "AAA-BBB", PnL: decimal.NewFromInt(-20), ExitTime: now.Add(time.Hour), Reason: "stop loss"},
		{PairID: "AAA-BBB", PnL: decimal.NewFromInt(-80), ExitTime: now.Add(2 * time.Hour), Reason: "stop loss"},
		{PairID: "AAA-BBB", PnL: decimal.Zero, ExitTime: now.Add(3 * time.Hour), Reason: "timeout"},
	}
	for _, tr := range trades {
		if err := m.RecordTrade("AAA-BBB", tr); err != nil {
			t.Fatalf("RecordTrade() error = %v", err)
		}
	}

	p, _ := m.Pair("AAA-BBB")
	perf := p.Performance
	if perf.Trades != 4 {
		t.Errorf("Trades = %d, want 4", perf.Trades)
	}
	if perf.Wins != 2 || perf.Losses != 2 {
		t.Errorf("Wins/Losses = %d/%d, want 2/2 (zero PnL counts as a win)", perf.Wins, perf.Losses)
	}
	if want := decimal.NewFromInt(-50); !perf.RealizedPnL.Equal(want) {
		t.Errorf("RealizedPnL = %s, want %s", perf.RealizedPnL, want)
	}
	if want := decimal.NewFromInt(80); !perf.MaxDrawdown.Equal(want) {
		t.Errorf("MaxDrawdown = %s, want %s (largest single loss)", perf.MaxDrawdown, want)
	}
	if !perf.LastTradeTime.Equal(now.Add(3 * time.Hour)) {
		t.Errorf("LastTradeTime = %v, want last exit time", perf.LastTradeTime)
	}

	evs := drainEvents(m)
	closed := 0
	for _, ev := range evs {
		if ev.Type == EventPositionClosed {
			closed++
			if ev.Trade == nil {
				t.Error("position_closed event missing trade payload")
			}
		}
	}
	if closed != 4 {
		t.Errorf("position_closed events = %d, want 4", closed)
	}
}

func TestEventBufferDropsWhenFull(t *testing.T) {
	m := NewManager(testLimits(), zap.NewNop())

	// Overfill the buffer; publishes must not block.
	for i := 0; i < eventBuffer+10; i++ {
		m.NotifyCooldown(time.Now())
	}
	if got := len(drainEvents(m)); got != eventBuffer {
		t.Errorf("buffered events = %d, want %d", got, eventBuffer)
	}
}
