package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/statforge/pairtrader/internal/journal"
	"github.com/statforge/pairtrader/internal/pairs"
	"github.com/statforge/pairtrader/pkg/formatters"
)

func init() {
	tradesCmd.Flags().Int("limit", 20, "number of trades to show")
	tradesCmd.Flags().String("pair", "", "filter by pair ID and show all-time totals")
	rootCmd.AddCommand(tradesCmd)
}

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Show recent closed trades from the journal",
	RunE:  runTrades,
}

func runTrades(cmd *cobra.Command, args []string) error {
	if cfg.JournalDSN == "" {
		return fmt.Errorf("JOURNAL_DSN is not configured, no journal to read")
	}

	jrnl, err := journal.Open(cfg.JournalDSN, logger)
	if err != nil {
		return fmt.Errorf("failed to open trade journal: %w", err)
	}
	defer jrnl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	limit, _ := cmd.Flags().GetInt("limit")
	trades, err := jrnl.RecentTrades(ctx, limit)
	if err != nil {
		return err
	}

	pairID, _ := cmd.Flags().GetString("pair")
	if pairID != "" {
		var filtered []pairs.TradeRecord
		for _, rec := range trades {
			if rec.PairID == pairID {
				filtered = append(filtered, rec)
			}
		}
		trades = filtered
	}

	fmt.Println(formatters.FormatTradesTable(trades))

	if pairID != "" {
		count, pnl, err := jrnl.PairTotals(ctx, pairID)
		if err != nil {
			return err
		}
		fmt.Printf("All-time for %s: %d trades, $%s total P&L\n", pairID, count, pnl)
	}
	return nil
}
