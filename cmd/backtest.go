package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/config"
	"github.com/statforge/pairtrader/internal/engine"
	"github.com/statforge/pairtrader/internal/models"
	"github.com/statforge/pairtrader/internal/pairs"
	"github.com/statforge/pairtrader/internal/pricestore"
	"github.com/statforge/pairtrader/internal/strategy"
	"github.com/statforge/pairtrader/pkg/formatters"
)

func init() {
	backtestCmd.Flags().String("data", "", "candle CSV (timestamp,symbol,open,high,low,close,volume)")
	backtestCmd.Flags().String("pairs", "", "pairs file (default from PAIRS_FILE)")
	backtestCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(backtestCmd)
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical candles through the strategy",
	Long: `Replays a CSV of historical candles through the full strategy pipeline
against the paper engine and reports the resulting trades and performance.
Rows may cover multiple symbols; they are replayed in timestamp order.`,
	RunE: runBacktest,
}

func runBacktest(cmd *cobra.Command, args []string) error {
	// Backtests always run on the paper engine
	cfg.LiveTrading = false

	if path, _ := cmd.Flags().GetString("pairs"); path != "" {
		cfg.PairsFile = path
	}
	pf, err := config.LoadPairsFile(cfg.PairsFile)
	if err != nil {
		return fmt.Errorf("failed to load pairs file: %w", err)
	}

	dataPath, _ := cmd.Flags().GetString("data")
	candles, err := loadCandles(dataPath)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles in %s", dataPath)
	}

	paper := engine.NewPaper(decimal.NewFromFloat(cfg.InitialCapital), logger)
	store := pricestore.New(cfg.MaxPriceHistory)
	manager := pairs.NewManager(pairs.Limits{
		MaxActivePairs: cfg.MaxActivePairs,
		MinCorrelation: cfg.MinCorrelation,
		MinHalfLife:    cfg.MinHalfLife,
		MaxHalfLife:    cfg.MaxHalfLife,
	}, logger)

	strat, err := strategy.New(cfg, pf.Mode, paper, manager, store, logger)
	if err != nil {
		return fmt.Errorf("failed to build strategy: %w", err)
	}
	for _, spec := range pf.Pairs {
		if _, err := strat.AddPair(spec.SymbolA, spec.SymbolB); err != nil {
			return fmt.Errorf("failed to add pair %s/%s: %w", spec.SymbolA, spec.SymbolB, err)
		}
	}

	fmt.Printf("⏪ Replaying %d candles (%s to %s), %s arbitrage, %d pairs\n",
		len(candles),
		candles[0].Timestamp.Format("2006-01-02 15:04"),
		candles[len(candles)-1].Timestamp.Format("2006-01-02 15:04"),
		strat.Mode(), len(pf.Pairs))

	var trades []pairs.TradeRecord
	events := strat.Events()
	drainEvents := func() {
		for {
			select {
			case ev := <-events:
				if ev.Type == pairs.EventPositionClosed && ev.Trade != nil {
					trades = append(trades, *ev.Trade)
				}
			default:
				return
			}
		}
	}

	for i := range candles {
		candle := &candles[i]
		paper.Mark(candle.Symbol, candle.Close)
		strat.OnCandle(candle)
		drainEvents()
	}
	drainEvents()

	finalCapital, err := paper.Capital(context.Background())
	if err != nil {
		return err
	}
	initial := decimal.NewFromFloat(cfg.InitialCapital)
	totalReturn := decimal.Zero
	if initial.IsPositive() {
		totalReturn = finalCapital.Sub(initial).Div(initial).Mul(decimal.NewFromInt(100))
	}
	state := strat.RiskState()

	fmt.Println("\n📊 Pairs")
	fmt.Println(formatters.FormatPairsTable(strat.AllPairsSummary()))
	fmt.Println("\n💱 Trades")
	fmt.Println(formatters.FormatTradesTable(trades))

	fmt.Printf("\nInitial capital:  $%.2f\n", cfg.InitialCapital)
	fmt.Printf("Final capital:    $%.2f (%s)\n",
		finalCapital.InexactFloat64(), formatters.FormatPercent(totalReturn))
	fmt.Printf("Signals: %d | Trades: %d (%dW/%dL) | Win rate: %s\n",
		state.SignalsGenerated, state.Trades, state.Wins, state.Losses,
		formatters.FormatPercent(decimal.NewFromFloat(state.WinRate()*100)))
	fmt.Printf("Total P&L: %s | Max drawdown: $%.2f\n",
		formatters.FormatDollarAmount(state.TotalPnL),
		state.MaxDrawdown.InexactFloat64())

	if state.InCooldown(candles[len(candles)-1].Timestamp) {
		fmt.Printf("⚠️  Replay ended inside a loss-streak cooldown (until %s)\n",
			state.CoolingUntil.Format("2006-01-02 15:04"))
	}

	logger.Info("backtest complete",
		zap.Int("candles", len(candles)),
		zap.Int("trades", state.Trades),
		zap.String("total_pnl", state.TotalPnL.String()))
	return nil
}

// loadCandles reads a candle CSV. Column order is fixed; a header row is
// detected and skipped. Timestamps are RFC3339 or unix milliseconds.
func loadCandles(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	var candles []models.Candle
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		line++

		if len(record) < 7 {
			return nil, fmt.Errorf("%s line %d: expected 7 columns, got %d", path, line, len(record))
		}

		ts, err := parseCandleTime(record[0])
		if err != nil {
			if line == 1 {
				// Header row
				continue
			}
			return nil, fmt.Errorf("%s line %d: bad timestamp %q", path, line, record[0])
		}

		candle := models.Candle{Symbol: record[1], Timestamp: ts}
		for i, dst := range []*decimal.Decimal{
			&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume} {
			v, err := decimal.NewFromString(record[2+i])
			if err != nil {
				return nil, fmt.Errorf("%s line %d: bad value %q", path, line, record[2+i])
			}
			*dst = v
		}
		candles = append(candles, candle)
	}

	// Replay in time order; rows sharing a timestamp keep file order
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

func parseCandleTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339, s)
}
