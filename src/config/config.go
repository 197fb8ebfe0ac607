package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EntryConfig holds trade entry parameters
type EntryConfig struct {
	LongPullbackMinPct float64 // lower edge of the pullback band above SMA50
	LongPullbackMaxPct float64 // upper edge of the pullback band above SMA50
	LongStopLossPct    float64 // stop distance below SMA50

	ShortRallyMinPct float64 // lower edge of the rally band below SMA50
	ShortRallyMaxPct float64 // upper edge of the rally band below SMA50
	ShortStopLossPct float64 // stop distance above SMA50

	RiskRewardRatio        float64
	VolumeFilterMultiplier float64
}

// ExitConfig holds position exit parameters.
//
// Defaults target aggressive swing trading (2-14 day holds). Shorts use
// tighter trailing parameters than longs: profits get locked in faster and
// the trail is narrower because short losses are unbounded.
type ExitConfig struct {
	EMAExitEnabled bool
	EMAPeriod      int

	MaxHoldDays int // 0 disables the calendar exit

	TrailingStopEnabled bool
	ActivationPct       float64 // unrealized gain that arms the trailing stop (longs)
	TrailPct            float64 // retrace from peak that closes the position (longs)
	ShortActivationPct  float64
	ShortTrailPct       float64
}

// CalendarExitEnabled reports whether the calendar exit is active
func (c ExitConfig) CalendarExitEnabled() bool {
	return c.MaxHoldDays > 0
}

// AnyExitEnabled reports whether at least one exit mode is active
func (c ExitConfig) AnyExitEnabled() bool {
	return c.EMAExitEnabled || c.CalendarExitEnabled() || c.TrailingStopEnabled
}

// AnalysisConfig holds indicator windows and position sizing parameters
type AnalysisConfig struct {
	SMATrendPeriod  int // long trend filter window, also the regime window
	SMAEntryPeriod  int // pullback reference window
	VolumeAvgPeriod int

	BaseRiskPercent float64 // percent of equity risked per trade

	// Regime multipliers scale the base risk by trade side vs market regime
	BullLongMultiplier  float64
	BullShortMultiplier float64
	BearLongMultiplier  float64
	BearShortMultiplier float64

	RegimeSymbol   string // reference index proxy for the regime classifier
	MaxConcurrency int    // scan worker pool size
}

// AlpacaConfig holds broker credentials and trading mode
type AlpacaConfig struct {
	APIKey       string
	SecretKey    string
	PaperTrading bool
}

// TickerSource selects where the watchlist comes from
type TickerSource string

const (
	TickerSourceFile   TickerSource = "file"
	TickerSourceArkAPI TickerSource = "ark_api"
)

// TickerConfig holds watchlist acquisition parameters
type TickerConfig struct {
	Source    TickerSource
	FilePath  string
	ArkFunds  []string
	ArkAPIURL string
}

// TelegramConfig holds notification credentials; empty values disable it
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// Config is the frozen configuration container passed by reference into
// every core constructor. No package-level mutable state.
type Config struct {
	Alpaca      AlpacaConfig
	Tickers     TickerConfig
	Entry       EntryConfig
	Exit        ExitConfig
	Analysis    AnalysisConfig
	Telegram    TelegramConfig
	DatabaseURL string
	Timezone    string
}

var defaultArkFunds = []string{
	"ARKF", "ARKG", "ARKK", "ARKQ", "ARKW", "ARKX", "PRNT", "IZRL", "ARKB",
}

// LoadEnvFile loads the .env file from the project root (the directory
// containing go.mod), falling back silently to process environment variables.
func LoadEnvFile() error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	rootDir := workDir
	for {
		if _, err := os.Stat(filepath.Join(rootDir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(rootDir)
		if parent == rootDir {
			// Not inside a module checkout; rely on process env.
			return nil
		}
		rootDir = parent
	}

	if err := godotenv.Load(filepath.Join(rootDir, ".env")); err != nil {
		// Missing .env is fine, system env vars may carry everything.
		return nil
	}
	return nil
}

// Load builds the configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{
		Alpaca: AlpacaConfig{
			APIKey:       os.Getenv("ALPACA_API_KEY"),
			SecretKey:    os.Getenv("ALPACA_SECRET_KEY"),
			PaperTrading: envBool("ALPACA_PAPER", true),
		},
		Tickers: TickerConfig{
			Source:    TickerSourceFile,
			FilePath:  envString("TICKER_FILE", "tickers.txt"),
			ArkFunds:  defaultArkFunds,
			ArkAPIURL: envString("ARK_API_URL", "https://arkfunds.io/api/v2/etf/holdings?symbol="),
		},
		Entry: EntryConfig{
			LongPullbackMinPct:     envFloat("LONG_PULLBACK_MIN_PCT", 0.0),
			LongPullbackMaxPct:     envFloat("LONG_PULLBACK_MAX_PCT", 5.0),
			LongStopLossPct:        envFloat("LONG_STOP_LOSS_PCT", 2.0),
			ShortRallyMinPct:       envFloat("SHORT_RALLY_MIN_PCT", 0.0),
			ShortRallyMaxPct:       envFloat("SHORT_RALLY_MAX_PCT", 5.0),
			ShortStopLossPct:       envFloat("SHORT_STOP_LOSS_PCT", 2.0),
			RiskRewardRatio:        envFloat("RISK_REWARD_RATIO", 1.5),
			VolumeFilterMultiplier: envFloat("VOLUME_FILTER_MULTIPLIER", 1.2),
		},
		Exit: ExitConfig{
			EMAExitEnabled:      envBool("EMA_EXIT", true),
			EMAPeriod:           envInt("EMA_PERIOD", 10),
			MaxHoldDays:         envInt("MAX_DAYS", 14),
			TrailingStopEnabled: envBool("TRAILING_STOP", true),
			ActivationPct:       envFloat("TRAILING_STOP_ACTIVATION", 3.0),
			TrailPct:            envFloat("TRAILING_STOP_TRAIL", 5.0),
			ShortActivationPct:  envFloat("SHORT_TRAILING_STOP_ACTIVATION", 2.0),
			ShortTrailPct:       envFloat("SHORT_TRAILING_STOP_TRAIL", 3.0),
		},
		Analysis: AnalysisConfig{
			SMATrendPeriod:      envInt("SMA_TREND_PERIOD", 200),
			SMAEntryPeriod:      envInt("SMA_ENTRY_PERIOD", 50),
			VolumeAvgPeriod:     envInt("VOLUME_AVG_PERIOD", 20),
			BaseRiskPercent:     envFloat("BASE_RISK_PERCENT", 0.5),
			BullLongMultiplier:  envFloat("BULL_LONG_MULTIPLIER", 1.0),
			BullShortMultiplier: envFloat("BULL_SHORT_MULTIPLIER", 0.5),
			BearLongMultiplier:  envFloat("BEAR_LONG_MULTIPLIER", 0.5),
			BearShortMultiplier: envFloat("BEAR_SHORT_MULTIPLIER", 1.0),
			RegimeSymbol:        envString("REGIME_SYMBOL", "SPY"),
			MaxConcurrency:      envInt("SCAN_CONCURRENCY", 8),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Timezone:    envString("BOT_TIMEZONE", "America/New_York"),
	}

	if strings.EqualFold(os.Getenv("TICKER_SOURCE"), string(TickerSourceArkAPI)) {
		cfg.Tickers.Source = TickerSourceArkAPI
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the decision core is not defined for
func (c *Config) Validate() error {
	if c.Entry.RiskRewardRatio <= 0 {
		return fmt.Errorf("RISK_REWARD_RATIO must be > 0, got %v", c.Entry.RiskRewardRatio)
	}
	if c.Entry.VolumeFilterMultiplier <= 0 {
		return fmt.Errorf("VOLUME_FILTER_MULTIPLIER must be > 0, got %v", c.Entry.VolumeFilterMultiplier)
	}
	if c.Entry.LongPullbackMaxPct < c.Entry.LongPullbackMinPct {
		return fmt.Errorf("long pullback band inverted: min %v > max %v",
			c.Entry.LongPullbackMinPct, c.Entry.LongPullbackMaxPct)
	}
	if c.Entry.ShortRallyMaxPct < c.Entry.ShortRallyMinPct {
		return fmt.Errorf("short rally band inverted: min %v > max %v",
			c.Entry.ShortRallyMinPct, c.Entry.ShortRallyMaxPct)
	}
	if c.Analysis.BaseRiskPercent <= 0 {
		return fmt.Errorf("BASE_RISK_PERCENT must be > 0, got %v", c.Analysis.BaseRiskPercent)
	}
	if c.Analysis.SMAEntryPeriod >= c.Analysis.SMATrendPeriod {
		return fmt.Errorf("SMA_ENTRY_PERIOD %d must be shorter than SMA_TREND_PERIOD %d",
			c.Analysis.SMAEntryPeriod, c.Analysis.SMATrendPeriod)
	}
	if c.Exit.EMAExitEnabled && c.Exit.EMAPeriod <= 0 {
		return fmt.Errorf("EMA_PERIOD must be > 0 when EMA exit is enabled, got %d", c.Exit.EMAPeriod)
	}
	if c.Exit.MaxHoldDays < 0 {
		return fmt.Errorf("MAX_DAYS must be >= 0, got %d", c.Exit.MaxHoldDays)
	}
	if !c.Exit.AnyExitEnabled() {
		return fmt.Errorf("at least one exit mode must be enabled")
	}
	if c.Analysis.MaxConcurrency < 1 {
		return fmt.Errorf("SCAN_CONCURRENCY must be >= 1, got %d", c.Analysis.MaxConcurrency)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
