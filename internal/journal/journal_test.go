package journal

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/pairs"
)

func mockJournal(t *testing.T) (*Journal, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(sqlx.NewDb(db, "sqlmock"), zap.NewNop()), mock
}

func sampleTrade(now time.Time) pairs.TradeRecord {
	return pairs.TradeRecord{
		PairID:      "BTCUSDT-ETHUSDT",
		SymbolA:     "BTCUSDT",
		SymbolB:     "ETHUSDT",
		Direction:   pairs.ShortSpread,
		EntryTime:   now.Add(-2 * time.Hour),
		ExitTime:    now,
		EntryZScore: 2.3,
		ExitZScore:  0.4,
		Value:       decimal.NewFromInt(10000),
		PnL:         decimal.NewFromFloat(125.5),
		Reason:      "target reached",
	}
}

func TestEnsureSchema(t *testing.T) {
	j, mock := mockJournal(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS pair_trades`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := j.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordTrade(t *testing.T) {
	j, mock := mockJournal(t)
	now := time.Now()
	rec := sampleTrade(now)

	mock.ExpectExec(`INSERT INTO pair_trades`).
		WithArgs(rec.PairID, rec.SymbolA, rec.SymbolB, string(rec.Direction),
			rec.EntryTime, rec.ExitTime, rec.EntryZScore, rec.ExitZScore,
			rec.Value, rec.PnL, rec.Reason).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := j.RecordTrade(context.Background(), rec); err != nil {
		t.Fatalf("RecordTrade() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecentTrades(t *testing.T) {
	j, mock := mockJournal(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"pair_id", "symbol_a", "symbol_b", "direction", "entry_time", "exit_time",
		"entry_z", "exit_z", "value", "pnl", "reason",
	}).AddRow(
		"BTCUSDT-ETHUSDT", "BTCUSDT", "ETHUSDT", "long_spread",
		now.Add(-time.Hour), now, -2.1, -0.3, "5000", "-42.75", "stop loss",
	)
	mock.ExpectQuery(`SELECT .+ FROM pair_trades ORDER BY exit_time DESC`).
		WithArgs(10).
		WillReturnRows(rows)

	trades, err := j.RecentTrades(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentTrades() error = %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}

	tr := trades[0]
	if tr.Direction != pairs.LongSpread {
		t.Errorf("Direction = %q, want %q", tr.Direction, pairs.LongSpread)
	}
	if want := decimal.NewFromFloat(-42.75); !tr.PnL.Equal(want) {
		t.Errorf("PnL = %s, want %s", tr.PnL, want)
	}
	if tr.Reason != "stop loss" {
		t.Errorf("Reason = %q, want 'stop loss'", tr.Reason)
	}
}

func TestPairTotals(t *testing.T) {
	j, mock := mockJournal(t)

	rows := sqlmock.NewRows([]string{"count", "coalesce"}).AddRow(7, "321.50")
	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(SUM\(pnl\), 0\) FROM pair_trades`).
		WithArgs("BTCUSDT-ETHUSDT").
		WillReturnRows(rows)

	count, pnl, err := j.PairTotals(context.Background(), "BTCUSDT-ETHUSDT")
	if err != nil {
		t.Fatalf("PairTotals() error = %v", err)
	}
	if count != 7 {
		t.Errorf("count = %d, want 7", count)
	}
	if pnl != "321.50" {
		t.Errorf("pnl = %q, want 321.50", pnl)
	}
}
