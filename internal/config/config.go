package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Exchange API
	ExchangeName      string
	ExchangeRESTURL   string
	ExchangeWSURL     string
	ExchangeAPIKey    string
	ExchangeAPISecret string

	// Trading
	LiveTrading    bool
	InitialCapital float64
	Timeframe      string

	// Statistical windows
	LookbackPeriod          int
	CointegrationTestPeriod int
	MaxPriceHistory         int
	ADFSignificance         float64

	// Signal thresholds
	EntryZScore          float64
	ExitZScore           float64
	StopLossZScore       float64
	TradingCost          float64
	SlippageEstimate     float64
	SpreadEntryThreshold float64
	SpreadExitThreshold  float64
	BasisEntryThreshold  float64
	BasisExitThreshold   float64

	// Pair validation gates
	MinCorrelation float64
	MinHalfLife    float64
	MaxHalfLife    float64

	// Risk management
	MaxActivePairs       int
	MaxPositionPerPair   float64
	MaxTotalPosition     float64
	MaxLossPerPair       float64
	MaxHoldingPeriod     time.Duration
	ConsecutiveLossLimit int
	CoolingPeriod        time.Duration

	// Performance
	CacheTTL                time.Duration
	WebsocketReconnectDelay time.Duration
	HTTPTimeout             time.Duration
	RESTRateLimit           float64
	RESTRateBurst           int

	// Services
	APIListenAddr string
	JournalDSN    string
	StateFile     string
	PairsFile     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		// Exchange API
		ExchangeName:      getEnv("EXCHANGE_NAME", "binance"),
		ExchangeRESTURL:   getEnv("EXCHANGE_REST_URL", "https://fapi.binance.com"),
		ExchangeWSURL:     getEnv("EXCHANGE_WS_URL", "wss://fstream.binance.com/stream"),
		ExchangeAPIKey:    getEnv("EXCHANGE_API_KEY", ""),
		ExchangeAPISecret: getEnv("EXCHANGE_API_SECRET", ""),

		// Trading
		LiveTrading:    getEnvBool("LIVE_TRADING", false),
		InitialCapital: getEnvFloat("INITIAL_CAPITAL", 100000.0),
		Timeframe:      getEnv("TIMEFRAME", "1m"),

		// Statistical windows
		LookbackPeriod:          getEnvInt("LOOKBACK_PERIOD", 60),
		CointegrationTestPeriod: getEnvInt("COINTEGRATION_TEST_PERIOD", 90),
		MaxPriceHistory:         getEnvInt("MAX_PRICE_HISTORY", 500),
		ADFSignificance:         getEnvFloat("ADF_SIGNIFICANCE", 0.05),

		// Signal thresholds
		EntryZScore:          getEnvFloat("ENTRY_Z_SCORE", 2.0),
		ExitZScore:           getEnvFloat("EXIT_Z_SCORE", 0.5),
		StopLossZScore:       getEnvFloat("STOP_LOSS_Z_SCORE", 3.5),
		TradingCost:          getEnvFloat("TRADING_COST", 0.001),
		SlippageEstimate:     getEnvFloat("SLIPPAGE_ESTIMATE", 0.0005),
		SpreadEntryThreshold: getEnvFloat("SPREAD_ENTRY_THRESHOLD", 0.01),
		SpreadExitThreshold:  getEnvFloat("SPREAD_EXIT_THRESHOLD", 0.002),
		BasisEntryThreshold:  getEnvFloat("BASIS_ENTRY_THRESHOLD", 0.05),
		BasisExitThreshold:   getEnvFloat("BASIS_EXIT_THRESHOLD", 0.01),

		// Pair validation gates
		MinCorrelation: getEnvFloat("MIN_CORRELATION", 0.7),
		MinHalfLife:    getEnvFloat("MIN_HALF_LIFE", 1.0),
		MaxHalfLife:    getEnvFloat("MAX_HALF_LIFE", 100.0),

		// Risk management
		MaxActivePairs:       getEnvInt("MAX_ACTIVE_PAIRS", 5),
		MaxPositionPerPair:   getEnvFloat("MAX_POSITION_PER_PAIR", 0.1),
		MaxTotalPosition:     getEnvFloat("MAX_TOTAL_POSITION", 0.5),
		MaxLossPerPair:       getEnvFloat("MAX_LOSS_PER_PAIR", 0.05),
		MaxHoldingPeriod:     getEnvDuration("MAX_HOLDING_PERIOD_HOURS", 24) * time.Hour,
		ConsecutiveLossLimit: getEnvInt("CONSECUTIVE_LOSS_LIMIT", 3),
		CoolingPeriod:        getEnvDuration("COOLING_PERIOD_MINUTES", 30) * time.Minute,

		// Performance
		CacheTTL:                getEnvDuration("CACHE_TTL_MS", 60000) * time.Millisecond,
		WebsocketReconnectDelay: getEnvDuration("WEBSOCKET_RECONNECT_DELAY_MS", 1000) * time.Millisecond,
		HTTPTimeout:             getEnvDuration("HTTP_TIMEOUT_MS", 5000) * time.Millisecond,
		RESTRateLimit:           getEnvFloat("REST_RATE_LIMIT", 10.0),
		RESTRateBurst:           getEnvInt("REST_RATE_BURST", 20),

		// Services
		APIListenAddr: getEnv("API_LISTEN_ADDR", ":8089"),
		JournalDSN:    getEnv("JOURNAL_DSN", ""),
		StateFile:     getEnv("STATE_FILE", ""),
		PairsFile:     getEnv("PAIRS_FILE", "pairs.yaml"),
	}

	// Live trading needs credentials; paper mode runs keyless
	if cfg.LiveTrading && (cfg.ExchangeAPIKey == "" || cfg.ExchangeAPISecret == "") {
		return nil, fmt.Errorf("EXCHANGE_API_KEY and EXCHANGE_API_SECRET must be set for live trading")
	}

	if cfg.LookbackPeriod < 2 {
		return nil, fmt.Errorf("LOOKBACK_PERIOD must be at least 2, got %d", cfg.LookbackPeriod)
	}
	if cfg.MaxPriceHistory < cfg.LookbackPeriod {
		return nil, fmt.Errorf("MAX_PRICE_HISTORY %d is smaller than LOOKBACK_PERIOD %d",
			cfg.MaxPriceHistory, cfg.LookbackPeriod)
	}

	return cfg, nil
}

// IsPaperTrading returns true if running against the paper engine
func (c *Config) IsPaperTrading() bool {
	return !c.LiveTrading
}

// PairSpec identifies one configured pair by its two legs. In perpetual-spot
// mode symbol_a is the perpetual leg.
type PairSpec struct {
	SymbolA string `mapstructure:"symbol_a"`
	SymbolB string `mapstructure:"symbol_b"`
}

// PairsFile is the YAML document describing the arbitrage mode and the
// candidate pairs to trade.
type PairsFile struct {
	Mode  string     `mapstructure:"mode"`
	Pairs []PairSpec `mapstructure:"pairs"`
}

// LoadPairsFile reads the pairs configuration from a YAML file.
func LoadPairsFile(path string) (*PairsFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read pairs file: %w", err)
	}

	var pf PairsFile
	if err := v.Unmarshal(&pf); err != nil {
		return nil, fmt.Errorf("parse pairs file: %w", err)
	}
	if pf.Mode == "" {
		pf.Mode = "cointegration"
	}
	for i, p := range pf.Pairs {
		if p.SymbolA == "" || p.SymbolB == "" {
			return nil, fmt.Errorf("pairs[%d]: both symbol_a and symbol_b are required", i)
		}
	}
	return &pf, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue int64) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(parsed)
		}
	}
	return time.Duration(defaultValue)
}
