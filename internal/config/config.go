package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingToken  = errors.New("TELEGRAM_BOT_TOKEN is required")
	ErrMissingChatID = errors.New("TELEGRAM_CHAT_ID is required")
)

// Config holds all configuration for the caller
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64
	NotifyTimeout  time.Duration

	// Mode
	Debug bool

	// Feeds
	Feeds FeedConfig

	// Pipeline thresholds (overridable by THRESHOLDS_FILE)
	Profile Profile

	// Scheduling
	ScanInterval  time.Duration
	ScanJitter    time.Duration
	TrackInterval time.Duration
	SaveInterval  time.Duration
	DispatchDelay time.Duration

	// Retention
	TrackingMaxAge   time.Duration
	AlertedRetention time.Duration // 0 = never evict

	// State
	StateBackend string // "file" or "sql"
	StatePath    string // file path, sqlite path or postgres DSN

	// Journal
	KafkaBrokers []string
	KafkaTopic   string

	// Liveness server
	HTTPPort int
}

// FeedConfig holds feed adapter settings
type FeedConfig struct {
	DexScreenerURL   string
	DexScreenerRPM   int
	SearchQueries    []string
	Chains           []string // chains resolved from profile/boost listings
	PumpPortalURL    string
	PumpPortalBuffer int
	Timeout          time.Duration
	Retries          int
	RetryBackoff     time.Duration
}

// Profile is a named threshold set. It replaces per-variant copies of the
// scanner that differed only in constants.
type Profile struct {
	Name     string         `yaml:"name"`
	Filter   FilterConfig   `yaml:"filter"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Selector SelectorConfig `yaml:"selector"`
	Tracker  TrackerConfig  `yaml:"tracker"`
}

// FilterConfig holds Filter Pipeline thresholds. A zero max disables the bound.
type FilterConfig struct {
	TrustedSources   []string      `yaml:"trusted_sources"`
	Chains           []string      `yaml:"chains"`
	MinLiquidityUSD  float64       `yaml:"min_liquidity_usd"`
	MaxLiquidityUSD  float64       `yaml:"max_liquidity_usd"`
	MinVolumeH1USD   float64       `yaml:"min_volume_h1_usd"`
	MaxVolumeH1USD   float64       `yaml:"max_volume_h1_usd"`
	MinMarketCapUSD  float64       `yaml:"min_market_cap_usd"`
	MaxMarketCapUSD  float64       `yaml:"max_market_cap_usd"`
	MinPriceChangeH1 float64       `yaml:"min_price_change_h1"`
	MinPriceChangeM5 *float64      `yaml:"min_price_change_m5"`
	MinTxnsH1        int           `yaml:"min_txns_h1"`
	MinBuysH1        int           `yaml:"min_buys_h1"`
	MinSellsH1       int           `yaml:"min_sells_h1"`
	MinAge           time.Duration `yaml:"min_age"`
	MaxAge           time.Duration `yaml:"max_age"`
	RequireKeywords  []string      `yaml:"require_keywords"`
}

// ScoringConfig holds Scorer weights
type ScoringConfig struct {
	Base            int      `yaml:"base"`
	MomentumDivisor float64  `yaml:"momentum_divisor"`
	MomentumCap     int      `yaml:"momentum_cap"`
	TxnBonus        int      `yaml:"txn_bonus"`
	TxnMinBuys      int      `yaml:"txn_min_buys"`
	TxnMinSells     int      `yaml:"txn_min_sells"`
	LiquidityTiers  []Tier   `yaml:"liquidity_tiers"`
	TrustedBonus    int      `yaml:"trusted_bonus"`
	TrustedSources  []string `yaml:"trusted_sources"`
	KeywordBonus    int      `yaml:"keyword_bonus"`
	WatchKeywords   []string `yaml:"watch_keywords"`
}

// Tier is a step bonus applied when a metric reaches Min
type Tier struct {
	Min   float64 `yaml:"min"`
	Bonus int     `yaml:"bonus"`
}

// SelectorConfig holds Selector settings
type SelectorConfig struct {
	Mode      string `yaml:"mode"` // "single" or "batch"
	BatchSize int    `yaml:"batch_size"`
	MinScore  int    `yaml:"min_score"`
}

// TrackerConfig holds Position Tracker thresholds
type TrackerConfig struct {
	FlexGainPct        float64 `yaml:"flex_gain_pct"`
	RugLiqDropPct      float64 `yaml:"rug_liq_drop_pct"`
	RugMinLiquidityUSD float64 `yaml:"rug_min_liquidity_usd"`
}

// DefaultProfile returns the stock thresholds
func DefaultProfile() Profile {
	return Profile{
		Name: "default",
		Filter: FilterConfig{
			TrustedSources:   nil,
			MinLiquidityUSD:  2000,
			MinVolumeH1USD:   2000,
			MinPriceChangeH1: 1,
			MinTxnsH1:        200,
			MinBuysH1:        100,
			MinSellsH1:       100,
			MaxAge:           72 * time.Hour,
		},
		Scoring: ScoringConfig{
			Base:            40,
			MomentumDivisor: 4,
			MomentumCap:     25,
			TxnBonus:        10,
			TxnMinBuys:      100,
			TxnMinSells:     100,
			LiquidityTiers: []Tier{
				{Min: 10_000, Bonus: 5},
				{Min: 50_000, Bonus: 5},
				{Min: 100_000, Bonus: 5},
			},
			TrustedBonus: 10,
			KeywordBonus: 10,
		},
		Selector: SelectorConfig{
			Mode:      "single",
			BatchSize: 1,
			MinScore:  60,
		},
		Tracker: TrackerConfig{
			FlexGainPct:        100,
			RugLiqDropPct:      70,
			RugMinLiquidityUSD: 1000,
		},
	}
}

// Default returns a config with every default applied and no secrets
func Default() *Config {
	return &Config{
		NotifyTimeout: 10 * time.Second,
		Feeds: FeedConfig{
			DexScreenerURL:   "https://api.dexscreener.com",
			DexScreenerRPM:   60,
			Chains:           []string{"solana"},
			PumpPortalBuffer: 200,
			Timeout:          8 * time.Second,
			Retries:          3,
			RetryBackoff:     300 * time.Millisecond,
		},
		Profile:        DefaultProfile(),
		ScanInterval:   60 * time.Second,
		ScanJitter:     15 * time.Second,
		TrackInterval:  2 * time.Minute,
		SaveInterval:   60 * time.Second,
		DispatchDelay:  800 * time.Millisecond,
		TrackingMaxAge: 7 * 24 * time.Hour,
		StateBackend:   "file",
		StatePath:      "data/state.json",
		KafkaTopic:     "gemcaller.alerts",
		HTTPPort:       3000,
	}
}

// Load loads configuration from THRESHOLDS_FILE (optional) and environment
// variables. Environment values win over the file. Secrets are not validated
// here; see Validate.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("THRESHOLDS_FILE"); path != "" {
		p, err := LoadProfile(path, cfg.Profile)
		if err != nil {
			return nil, err
		}
		cfg.Profile = p
	}

	// Telegram
	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", cfg.NotifyTimeout)
	cfg.Debug = getEnvBool("DEBUG", false)

	// Feeds
	cfg.Feeds.DexScreenerURL = getEnv("DEXSCREENER_URL", cfg.Feeds.DexScreenerURL)
	cfg.Feeds.DexScreenerRPM = getEnvInt("DEXSCREENER_RPM", cfg.Feeds.DexScreenerRPM)
	cfg.Feeds.SearchQueries = getEnvList("DEXSCREENER_QUERIES", cfg.Feeds.SearchQueries)
	cfg.Feeds.Chains = getEnvList("FEED_CHAINS", cfg.Feeds.Chains)
	cfg.Feeds.PumpPortalURL = getEnv("PUMPPORTAL_WS_URL", cfg.Feeds.PumpPortalURL)
	cfg.Feeds.PumpPortalBuffer = getEnvInt("PUMPPORTAL_BUFFER", cfg.Feeds.PumpPortalBuffer)
	cfg.Feeds.Timeout = getEnvDuration("FEED_TIMEOUT", cfg.Feeds.Timeout)
	cfg.Feeds.Retries = getEnvInt("FEED_RETRIES", cfg.Feeds.Retries)
	cfg.Feeds.RetryBackoff = getEnvDuration("FEED_RETRY_BACKOFF", cfg.Feeds.RetryBackoff)

	// Filter
	f := &cfg.Profile.Filter
	f.TrustedSources = getEnvList("TRUSTED_SOURCES", f.TrustedSources)
	f.Chains = getEnvList("ALLOWED_CHAINS", f.Chains)
	f.MinLiquidityUSD = getEnvFloat("MIN_LIQUIDITY_USD", f.MinLiquidityUSD)
	f.MaxLiquidityUSD = getEnvFloat("MAX_LIQUIDITY_USD", f.MaxLiquidityUSD)
	f.MinVolumeH1USD = getEnvFloat("MIN_VOLUME_H1", f.MinVolumeH1USD)
	f.MaxVolumeH1USD = getEnvFloat("MAX_VOLUME_H1", f.MaxVolumeH1USD)
	f.MinMarketCapUSD = getEnvFloat("MIN_MARKET_CAP_USD", f.MinMarketCapUSD)
	f.MaxMarketCapUSD = getEnvFloat("MAX_MARKET_CAP_USD", f.MaxMarketCapUSD)
	f.MinPriceChangeH1 = getEnvFloat("MIN_PRICE_CHANGE_H1", f.MinPriceChangeH1)
	if v := os.Getenv("MIN_PRICE_CHANGE_M5"); v != "" {
		if pct, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinPriceChangeM5 = &pct
		}
	}
	f.MinTxnsH1 = getEnvInt("MIN_TXNS_H1", f.MinTxnsH1)
	f.MinBuysH1 = getEnvInt("MIN_BUYS_H1", f.MinBuysH1)
	f.MinSellsH1 = getEnvInt("MIN_SELLS_H1", f.MinSellsH1)
	f.MinAge = getEnvDuration("MIN_AGE", f.MinAge)
	f.MaxAge = getEnvDuration("MAX_AGE", f.MaxAge)
	f.RequireKeywords = getEnvList("REQUIRE_KEYWORDS", f.RequireKeywords)

	// Scoring
	s := &cfg.Profile.Scoring
	s.WatchKeywords = getEnvList("WATCH_KEYWORDS", s.WatchKeywords)
	s.TxnMinBuys = getEnvInt("SCORE_MIN_BUYS", s.TxnMinBuys)
	s.TxnMinSells = getEnvInt("SCORE_MIN_SELLS", s.TxnMinSells)
	if len(s.TrustedSources) == 0 {
		s.TrustedSources = f.TrustedSources
	}

	// Selector
	sel := &cfg.Profile.Selector
	sel.Mode = strings.ToLower(getEnv("ALERT_MODE", sel.Mode))
	sel.BatchSize = getEnvInt("ALERT_BATCH_SIZE", sel.BatchSize)
	sel.MinScore = getEnvInt("MIN_SCORE", sel.MinScore)

	// Tracker
	t := &cfg.Profile.Tracker
	t.FlexGainPct = getEnvFloat("FLEX_GAIN_PCT", t.FlexGainPct)
	t.RugLiqDropPct = getEnvFloat("RUG_LIQ_DROP_PCT", t.RugLiqDropPct)
	t.RugMinLiquidityUSD = getEnvFloat("RUG_MIN_LIQUIDITY_USD", t.RugMinLiquidityUSD)

	// Scheduling
	cfg.ScanInterval = getEnvDuration("SCAN_INTERVAL", cfg.ScanInterval)
	cfg.ScanJitter = getEnvDuration("SCAN_JITTER", cfg.ScanJitter)
	cfg.TrackInterval = getEnvDuration("TRACK_INTERVAL", cfg.TrackInterval)
	cfg.SaveInterval = getEnvDuration("SAVE_INTERVAL", cfg.SaveInterval)
	cfg.DispatchDelay = getEnvDuration("DISPATCH_DELAY", cfg.DispatchDelay)
	cfg.TrackingMaxAge = getEnvDuration("TRACKING_MAX_AGE", cfg.TrackingMaxAge)
	cfg.AlertedRetention = getEnvDuration("ALERTED_RETENTION", cfg.AlertedRetention)

	// State
	cfg.StateBackend = strings.ToLower(getEnv("STATE_BACKEND", cfg.StateBackend))
	cfg.StatePath = getEnv("STATE_PATH", cfg.StatePath)

	// Journal
	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)

	cfg.HTTPPort = getEnvInt("PORT", cfg.HTTPPort)

	if err := cfg.check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the daemon cannot run without
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return ErrMissingToken
	}
	if c.TelegramChatID == 0 {
		return ErrMissingChatID
	}
	return nil
}

// check rejects values that are malformed regardless of mode
func (c *Config) check() error {
	switch c.StateBackend {
	case "file", "sql":
	default:
		return fmt.Errorf("invalid STATE_BACKEND %q: want file or sql", c.StateBackend)
	}

	sel := &c.Profile.Selector
	switch sel.Mode {
	case "single":
		sel.BatchSize = 1
	case "batch":
		if sel.BatchSize < 1 {
			sel.BatchSize = 1
		}
		if sel.BatchSize > 5 {
			sel.BatchSize = 5
		}
	default:
		return fmt.Errorf("invalid ALERT_MODE %q: want single or batch", sel.Mode)
	}

	if c.ScanInterval <= 0 || c.TrackInterval <= 0 || c.SaveInterval <= 0 {
		return fmt.Errorf("scan, track and save intervals must be positive")
	}
	if c.Feeds.Retries < 1 {
		c.Feeds.Retries = 1
	}
	return c.Profile.checkFinite()
}

// checkFinite rejects NaN and Inf thresholds
func (p Profile) checkFinite() error {
	f, t, s := p.Filter, p.Tracker, p.Scoring
	values := map[string]float64{
		"min_liquidity_usd":     f.MinLiquidityUSD,
		"max_liquidity_usd":     f.MaxLiquidityUSD,
		"min_volume_h1_usd":     f.MinVolumeH1USD,
		"max_volume_h1_usd":     f.MaxVolumeH1USD,
		"min_market_cap_usd":    f.MinMarketCapUSD,
		"max_market_cap_usd":    f.MaxMarketCapUSD,
		"min_price_change_h1":   f.MinPriceChangeH1,
		"flex_gain_pct":         t.FlexGainPct,
		"rug_liq_drop_pct":      t.RugLiqDropPct,
		"rug_min_liquidity_usd": t.RugMinLiquidityUSD,
		"momentum_divisor":      s.MomentumDivisor,
	}
	if f.MinPriceChangeM5 != nil {
		values["min_price_change_m5"] = *f.MinPriceChangeM5
	}
	for i, tier := range s.LiquidityTiers {
		values[fmt.Sprintf("liquidity_tiers[%d].min", i)] = tier.Min
	}

	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid threshold %s: %v is not finite", name, v)
		}
	}
	return nil
}

// LoadProfile reads a YAML threshold profile on top of base. Keys absent from
// the file keep the base value.
func LoadProfile(path string, base Profile) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read thresholds file: %w", err)
	}

	p := base
	if err := yaml.Unmarshal(data, &p); err != nil {
		return base, fmt.Errorf("failed to parse thresholds YAML: %w", err)
	}
	if err := p.checkFinite(); err != nil {
		return base, err
	}
	return p, nil
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
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
