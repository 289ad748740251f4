package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/api"
	"github.com/statforge/pairtrader/internal/cache"
	"github.com/statforge/pairtrader/internal/config"
	"github.com/statforge/pairtrader/internal/engine"
	"github.com/statforge/pairtrader/internal/exchange"
	"github.com/statforge/pairtrader/internal/feed"
	"github.com/statforge/pairtrader/internal/journal"
	"github.com/statforge/pairtrader/internal/pairs"
	"github.com/statforge/pairtrader/internal/pricestore"
	"github.com/statforge/pairtrader/internal/strategy"
)

func init() {
	runCmd.Flags().String("pairs", "", "pairs file (default from PAIRS_FILE)")
	runCmd.Flags().String("state", "", "state file (default from STATE_FILE)")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading engine",
	Long: `Starts the trading engine: streams candles for every configured pair
leg, revalidates pair statistics on each candle close, trades spread
divergences, and serves the control API.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := checkLiveMode(); err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("pairs"); path != "" {
		cfg.PairsFile = path
	}
	if path, _ := cmd.Flags().GetString("state"); path != "" {
		cfg.StateFile = path
	}

	pf, err := config.LoadPairsFile(cfg.PairsFile)
	if err != nil {
		return fmt.Errorf("failed to load pairs file: %w", err)
	}

	// Assemble components
	dataCache := cache.NewCache(cfg.CacheTTL)
	stream := feed.NewStream(cfg, dataCache, logger)
	store := pricestore.New(cfg.MaxPriceHistory)
	manager := pairs.NewManager(pairs.Limits{
		MaxActivePairs: cfg.MaxActivePairs,
		MinCorrelation: cfg.MinCorrelation,
		MinHalfLife:    cfg.MinHalfLife,
		MaxHalfLife:    cfg.MaxHalfLife,
	}, logger)

	var eng engine.Engine
	if cfg.LiveTrading {
		eng = engine.NewLive(exchange.NewClient(cfg, logger), logger)
	} else {
		eng = engine.NewPaper(decimal.NewFromFloat(cfg.InitialCapital), logger)
	}

	strat, err := strategy.New(cfg, pf.Mode, eng, manager, store, logger)
	if err != nil {
		return fmt.Errorf("failed to build strategy: %w", err)
	}

	for _, spec := range pf.Pairs {
		if _, err := strat.AddPair(spec.SymbolA, spec.SymbolB); err != nil {
			logger.Warn("skipping configured pair",
				zap.String("symbol_a", spec.SymbolA),
				zap.String("symbol_b", spec.SymbolB),
				zap.Error(err))
		}
	}

	if err := strat.LoadState(cfg.StateFile); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}

	var jrnl *journal.Journal
	if cfg.JournalDSN != "" {
		jrnl, err = journal.Open(cfg.JournalDSN, logger)
		if err != nil {
			return fmt.Errorf("failed to open trade journal: %w", err)
		}
		defer jrnl.Close()
		if err := jrnl.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("failed to prepare trade journal: %w", err)
		}
	}

	runner := strategy.NewRunner(cfg, strat, stream, jrnl, logger)

	apiServer := api.NewServer(cfg.APIListenAddr, manager, strat, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("API server failed", zap.Error(err))
		}
	}()

	if err := runner.Start(); err != nil {
		return fmt.Errorf("failed to start trading: %w", err)
	}

	mode := "PAPER"
	if cfg.LiveTrading {
		mode = "LIVE"
	}
	fmt.Printf("🚀 pairtrader running - %s mode, %s arbitrage, %d pairs\n",
		mode, strat.Mode(), len(strat.AllPairsSummary()))
	fmt.Printf("📡 Control API on %s\n", cfg.APIListenAddr)
	fmt.Println("Press Ctrl+C to stop...")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\n📴 Shutting down...")
	if err := runner.Stop(); err != nil {
		logger.Error("runner stop failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API shutdown failed", zap.Error(err))
	}
	return nil
}
