package pricestore

import (
	"math"
	"testing"
	"time"
)

func TestAddAndEviction(t *testing.T) {
	s := New(3)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.Add("BTCUSDT", float64(100+i), base.Add(time.Duration(i)*time.Minute))
	}

	got := s.Prices("BTCUSDT", 0)
	want := []float64{102, 103, 104}
	if len(got) != len(want) {
		t.Fatalf("len(Prices) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Prices[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	ts := s.Timestamps("BTCUSDT", 0)
	if len(ts) != 3 || !ts[0].Equal(base.Add(2*time.Minute)) {
		t.Errorf("Timestamps[0] = %v, want %v", ts[0], base.Add(2*time.Minute))
	}
}

func TestPricesWindow(t *testing.T) {
	s := New(10)
	for i := 0; i < 6; i++ {
		s.Add("ETHUSDT", float64(i), time.Now())
	}

	got := s.Prices("ETHUSDT", 2)
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("Prices(n=2) = %v, want [4 5]", got)
	}

	// Requesting more than stored returns everything.
	if got := s.Prices("ETHUSDT", 100); len(got) != 6 {
		t.Errorf("len(Prices(n=100)) = %d, want 6", len(got))
	}
}

func TestUnknownSymbol(t *testing.T) {
	s := New(5)

	if got := s.Prices("NOPE", 0); len(got) != 0 {
		t.Errorf("Prices(unknown) = %v, want empty", got)
	}
	if _, ok := s.Latest("NOPE"); ok {
		t.Error("Latest(unknown) ok = true, want false")
	}
	if s.HasEnoughData("NOPE", 1) {
		t.Error("HasEnoughData(unknown, 1) = true, want false")
	}
	if got := s.Returns("NOPE", 0); len(got) != 0 {
		t.Errorf("Returns(unknown) = %v, want empty", got)
	}
}

func TestLatest(t *testing.T) {
	s := New(5)
	s.Add("BTCUSDT", 100, time.Now())
	s.Add("BTCUSDT", 105, time.Now())

	got, ok := s.Latest("BTCUSDT")
	if !ok || got != 105 {
		t.Errorf("Latest = %v (ok=%v), want 105", got, ok)
	}
}

func TestReturns(t *testing.T) {
	s := New(10)
	for _, p := range []float64{100, 110, 99} {
		s.Add("BTCUSDT", p, time.Now())
	}

	got := s.Returns("BTCUSDT", 0)
	if len(got) != 2 {
		t.Fatalf("len(Returns) = %d, want 2", len(got))
	}
	if math.Abs(got[0]-0.1) > 1e-9 {
		t.Errorf("Returns[0] = %v, want 0.1", got[0])
	}
	if math.Abs(got[1]-(-0.1)) > 1e-9 {
		t.Errorf("Returns[1] = %v, want -0.1", got[1])
	}

	// A window of n prices produces n-1 returns.
	if got := s.Returns("BTCUSDT", 2); len(got) != 1 {
		t.Errorf("len(Returns(n=2)) = %d, want 1", len(got))
	}
}

func TestHasEnoughDataAndClear(t *testing.T) {
	s := New(5)
	s.Add("BTCUSDT", 1, time.Now())
	s.Add("BTCUSDT", 2, time.Now())

	if !s.HasEnoughData("BTCUSDT", 2) {
		t.Error("HasEnoughData(2) = false, want true")
	}
	if s.HasEnoughData("BTCUSDT", 3) {
		t.Error("HasEnoughData(3) = true, want false")
	}

	s.Clear("BTCUSDT")
	if s.Len("BTCUSDT") != 0 {
		t.Errorf("Len after Clear = %d, want 0", s.Len("BTCUSDT"))
	}
}
