package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/statforge/pairtrader/internal/config"
)

var (
	// Global instances
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pairtrader",
	Short: "Statistical arbitrage engine for crypto pairs",
	Long: `pairtrader is a statistical-arbitrage engine for crypto markets.
It screens candidate pairs for cointegration, trades spread divergences
beta-dollar-neutral, and manages the pair lifecycle under portfolio-level
risk controls. Cointegration, cross-exchange, and perpetual-spot modes
are supported.`,
	PersistentPreRunE: initializeApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig sets up logging before any command runs.
func initConfig() {
	// Configure logger: default INFO, DEBUG if DEBUG env is truthy
	verbose := false
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" || v == "yes" {
		verbose = true
	}

	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	var err error
	logger, err = zcfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
}

// initializeApp loads the configuration shared by all commands.
func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// checkLiveMode requires explicit confirmation before trading real money.
func checkLiveMode() error {
	if cfg.LiveTrading {
		fmt.Println("⚠️  WARNING: You are in LIVE trading mode!")
		fmt.Print("Type 'confirm-live' to proceed: ")

		var confirm string
		fmt.Scanln(&confirm)

		if confirm != "confirm-live" {
			return fmt.Errorf("live trading not confirmed")
		}
	}
	return nil
}
