package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/models"
	"github.com/statforge/pairtrader/internal/pairs"
	"github.com/statforge/pairtrader/internal/risk"
	"github.com/statforge/pairtrader/internal/stats"
)

type fakeStrategy struct {
	mode       string
	live       bool
	state      risk.State
	capital    decimal.Decimal
	reanalyzed int
}

func (f *fakeStrategy) Mode() string          { return f.mode }
func (f *fakeStrategy) LiveTrading() bool     { return f.live }
func (f *fakeStrategy) RiskState() risk.State { return f.state }

func (f *fakeStrategy) Capital(context.Context) (decimal.Decimal, error) {
	return f.capital, nil
}

func (f *fakeStrategy) Reanalyze(context.Context) int { return f.reanalyzed }

func testServer(t *testing.T) (*httptest.Server, *pairs.Manager, *fakeStrategy) {
	t.Helper()
	manager := pairs.NewManager(pairs.Limits{
		MaxActivePairs: 5,
		MinCorrelation: 0.7,
		MinHalfLife:    1,
		MaxHalfLife:    100,
	}, zap.NewNop())
	strat := &fakeStrategy{
		mode:       "cointegration",
		capital:    decimal.NewFromInt(50000),
		reanalyzed: 3,
	}
	s := NewServer(":0", manager, strat, zap.NewNop())
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, manager, strat
}

func activeStats() *pairs.Stats {
	return &pairs.Stats{
		Correlation: 0.9,
		Beta:        0.5,
		HalfLife:    10,
		Stationarity: &stats.ADFResult{
			IsStationary:  true,
			TestStat:      -3.8,
			CriticalValue: -2.86,
			PValue:        0.01,
		},
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, manager, strat := testServer(t)
	strat.state.Trades = 4
	strat.state.Wins = 3

	manager.AddPair("BTCUSDT", "ETHUSDT", activeStats())
	manager.AddPair("SOLUSDT", "AVAXUSDT", nil)

	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET status failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if got.Mode != "cointegration" {
		t.Errorf("Mode = %q, want cointegration", got.Mode)
	}
	if !got.Capital.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Capital = %s, want 50000", got.Capital)
	}
	if got.PairsByStatus["ACTIVE"] != 1 {
		t.Errorf("ACTIVE count = %d, want 1", got.PairsByStatus["ACTIVE"])
	}
	if got.PairsByStatus["PENDING"] != 1 {
		t.Errorf("PENDING count = %d, want 1", got.PairsByStatus["PENDING"])
	}
	if got.OpenPositions != 0 {
		t.Errorf("OpenPositions = %d, want 0", got.OpenPositions)
	}
	if got.Risk.Trades != 4 || got.Risk.Wins != 3 {
		t.Errorf("Risk = %d trades %d wins, want 4 and 3", got.Risk.Trades, got.Risk.Wins)
	}
	if got.LiveTrading {
		t.Error("LiveTrading = true, want false")
	}
}

func TestPairLifecycleOverHTTP(t *testing.T) {
	srv, _, _ := testServer(t)

	body := bytes.NewBufferString(`{"symbol_a":"ETHUSDT","symbol_b":"BTCUSDT"}`)
	resp, err := http.Post(srv.URL+"/api/v1/pairs", "application/json", body)
	if err != nil {
		t.Fatalf("POST pairs failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var created pairs.Pair
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decoding created pair: %v", err)
	}
	resp.Body.Close()
	if created.ID != "BTCUSDT-ETHUSDT" {
		t.Errorf("created ID = %q, want BTCUSDT-ETHUSDT", created.ID)
	}
	if created.SymbolA != "ETHUSDT" {
		t.Errorf("SymbolA = %q, want ETHUSDT (leg order preserved)", created.SymbolA)
	}

	resp, err = http.Get(srv.URL + "/api/v1/pairs")
	if err != nil {
		t.Fatalf("GET pairs failed: %v", err)
	}
	var list []pairs.Pair
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decoding pair list: %v", err)
	}
	resp.Body.Close()
	if len(list) != 1 {
		t.Fatalf("list length = %d, want 1", len(list))
	}

	resp, err = http.Get(srv.URL + "/api/v1/pairs/BTCUSDT-ETHUSDT")
	if err != nil {
		t.Fatalf("GET pair failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/pairs/BTCUSDT-ETHUSDT", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE pair failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestGetUnknownPair(t *testing.T) {
	srv, _, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/pairs/NOPE-NOPE2")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	var got errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if got.Error != "pair not found" {
		t.Errorf("error = %q, want %q", got.Error, "pair not found")
	}
}

func TestAddPairRejectsBadInput(t *testing.T) {
	srv, _, _ := testServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"symbol_a": `},
		{"equal legs", `{"symbol_a":"BTCUSDT","symbol_b":"BTCUSDT"}`},
		{"missing leg", `{"symbol_a":"BTCUSDT"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/pairs", "application/json", bytes.NewBufferString(tc.body))
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
		})
	}
}

func TestRemovePairWithOpenPosition(t *testing.T) {
	srv, manager, _ := testServer(t)

	manager.AddPair("BTCUSDT", "ETHUSDT", activeStats())
	err := manager.SetPosition("BTCUSDT-ETHUSDT", &pairs.Position{
		Direction: pairs.LongSpread,
		LegA:      pairs.Leg{Symbol: "BTCUSDT", Side: models.Buy, Qty: decimal.NewFromInt(1)},
		LegB:      pairs.Leg{Symbol: "ETHUSDT", Side: models.Sell, Qty: decimal.NewFromInt(10)},
		EntryTime: time.Now(),
		Value:     decimal.NewFromInt(5000),
	})
	if err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/pairs/BTCUSDT-ETHUSDT", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestListPairsFiltersByStatus(t *testing.T) {
	srv, manager, _ := testServer(t)

	manager.AddPair("BTCUSDT", "ETHUSDT", activeStats())
	manager.AddPair("SOLUSDT", "AVAXUSDT", nil)

	resp, err := http.Get(srv.URL + "/api/v1/pairs?status=ACTIVE")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	var list []pairs.Pair
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("filtered length = %d, want 1", len(list))
	}
	if list[0].ID != "BTCUSDT-ETHUSDT" {
		t.Errorf("filtered ID = %q, want BTCUSDT-ETHUSDT", list[0].ID)
	}
}

func TestReanalyzeEndpoint(t *testing.T) {
	srv, _, _ := testServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/reanalyze", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reanalyze failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var got ReanalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Reanalyzed != 3 {
		t.Errorf("Reanalyzed = %d, want 3", got.Reanalyzed)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
