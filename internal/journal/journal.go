// Package journal persists closed pair trades to Postgres so PnL history
// survives restarts. The journal is optional: an empty DSN disables it and
// the strategy runs with in-memory performance counters only.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/pairs"
)

const defaultTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS pair_trades (
	id         BIGSERIAL PRIMARY KEY,
	pair_id    TEXT NOT NULL,
	symbol_a   TEXT NOT NULL,
	symbol_b   TEXT NOT NULL,
	direction  TEXT NOT NULL,
	entry_time TIMESTAMPTZ NOT NULL,
	exit_time  TIMESTAMPTZ NOT NULL,
	entry_z    DOUBLE PRECISION NOT NULL,
	exit_z     DOUBLE PRECISION NOT NULL,
	value      NUMERIC(20,8) NOT NULL,
	pnl        NUMERIC(20,8) NOT NULL,
	reason     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_pair_trades_pair ON pair_trades (pair_id, exit_time DESC)`

// Journal writes closed trades to the pair_trades table.
type Journal struct {
	db      *sqlx.DB
	logger  *zap.Logger
	timeout time.Duration
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string, logger *zap.Logger) (*Journal, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	return New(db, logger), nil
}

// New wraps an existing database handle.
func New(db *sqlx.DB, logger *zap.Logger) *Journal {
	return &Journal{
		db:      db,
		logger:  logger.With(zap.String("component", "journal")),
		timeout: defaultTimeout,
	}
}

// EnsureSchema creates the trades table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// RecordTrade inserts one closed trade.
func (j *Journal) RecordTrade(ctx context.Context, rec pairs.TradeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	query := `
		INSERT INTO pair_trades (pair_id, symbol_a, symbol_b, direction, entry_time, exit_time, entry_z, exit_z, value, pnl, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := j.db.ExecContext(ctx, query,
		rec.PairID, rec.SymbolA, rec.SymbolB, string(rec.Direction),
		rec.EntryTime, rec.ExitTime, rec.EntryZScore, rec.ExitZScore,
		rec.Value, rec.PnL, rec.Reason)
	if err != nil {
		return fmt.Errorf("insert trade for %s: %w", rec.PairID, err)
	}

	j.logger.Debug("trade journaled",
		zap.String("pair", rec.PairID),
		zap.String("pnl", rec.PnL.String()),
		zap.String("reason", rec.Reason))
	return nil
}

// RecentTrades returns the most recent closed trades, newest first.
func (j *Journal) RecentTrades(ctx context.Context, limit int) ([]pairs.TradeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	query := `
		SELECT pair_id, symbol_a, symbol_b, direction, entry_time, exit_time, entry_z, exit_z, value, pnl, reason
		FROM pair_trades
		ORDER BY exit_time DESC
		LIMIT $1`

	rows, err := j.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	defer rows.Close()

	var trades []pairs.TradeRecord
	for rows.Next() {
		var rec pairs.TradeRecord
		var direction string
		if err := rows.Scan(
			&rec.PairID, &rec.SymbolA, &rec.SymbolB, &direction,
			&rec.EntryTime, &rec.ExitTime, &rec.EntryZScore, &rec.ExitZScore,
			&rec.Value, &rec.PnL, &rec.Reason); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		rec.Direction = pairs.Direction(direction)
		trades = append(trades, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}

// PairTotals returns trade count and summed PnL for one pair.
func (j *Journal) PairTotals(ctx context.Context, pairID string) (int64, string, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	query := `
		SELECT COUNT(*), COALESCE(SUM(pnl), 0)
		FROM pair_trades
		WHERE pair_id = $1`

	var count int64
	var pnl string
	if err := j.db.QueryRowxContext(ctx, query, pairID).Scan(&count, &pnl); err != nil {
		return 0, "", fmt.Errorf("query pair totals for %s: %w", pairID, err)
	}
	return count, pnl, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
