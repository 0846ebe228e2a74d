package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.ScanInterval)
	assert.Equal(t, 15*time.Second, cfg.ScanJitter)
	assert.Equal(t, 2*time.Minute, cfg.TrackInterval)
	assert.Equal(t, 800*time.Millisecond, cfg.DispatchDelay)
	assert.Equal(t, 168*time.Hour, cfg.TrackingMaxAge)
	assert.Zero(t, cfg.AlertedRetention)
	assert.Equal(t, "file", cfg.StateBackend)
	assert.Equal(t, "data/state.json", cfg.StatePath)
	assert.Equal(t, "single", cfg.Profile.Selector.Mode)
	assert.Equal(t, 60, cfg.Profile.Selector.MinScore)
	assert.Equal(t, 100.0, cfg.Profile.Tracker.FlexGainPct)
	assert.Equal(t, 3000, cfg.HTTPPort)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestValidateRequiresTelegram(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.Validate(), ErrMissingToken)

	cfg.TelegramToken = "token"
	assert.ErrorIs(t, cfg.Validate(), ErrMissingChatID)

	cfg.TelegramChatID = -100123
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100200")
	t.Setenv("SCAN_INTERVAL", "30s")
	t.Setenv("ALERT_MODE", "BATCH")
	t.Setenv("ALERT_BATCH_SIZE", "9")
	t.Setenv("MIN_LIQUIDITY_USD", "5000")
	t.Setenv("MIN_PRICE_CHANGE_M5", "2.5")
	t.Setenv("TRUSTED_SOURCES", "dex_boost, pumpportal ,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("STATE_BACKEND", "SQL")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(-100200), cfg.TelegramChatID)
	assert.Equal(t, 30*time.Second, cfg.ScanInterval)
	assert.Equal(t, "batch", cfg.Profile.Selector.Mode)
	assert.Equal(t, 5, cfg.Profile.Selector.BatchSize, "batch size clamps to 5")
	assert.Equal(t, 5000.0, cfg.Profile.Filter.MinLiquidityUSD)
	require.NotNil(t, cfg.Profile.Filter.MinPriceChangeM5)
	assert.Equal(t, 2.5, *cfg.Profile.Filter.MinPriceChangeM5)
	assert.Equal(t, []string{"dex_boost", "pumpportal"}, cfg.Profile.Filter.TrustedSources)
	assert.Equal(t, cfg.Profile.Filter.TrustedSources, cfg.Profile.Scoring.TrustedSources)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "sql", cfg.StateBackend)
	assert.True(t, cfg.Debug)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("chat id", func(t *testing.T) {
		t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("backend", func(t *testing.T) {
		t.Setenv("STATE_BACKEND", "redis")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("mode", func(t *testing.T) {
		t.Setenv("ALERT_MODE", "burst")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("nan flex gain", func(t *testing.T) {
		t.Setenv("FLEX_GAIN_PCT", "NaN")
		_, err := Load()
		assert.ErrorContains(t, err, "flex_gain_pct")
	})
	t.Run("infinite liquidity floor", func(t *testing.T) {
		t.Setenv("RUG_MIN_LIQUIDITY_USD", "+Inf")
		_, err := Load()
		assert.ErrorContains(t, err, "rug_min_liquidity_usd")
	})
	t.Run("interval", func(t *testing.T) {
		t.Setenv("TRACK_INTERVAL", "0s")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestSingleModeForcesBatchOfOne(t *testing.T) {
	t.Setenv("ALERT_BATCH_SIZE", "4")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Profile.Selector.BatchSize)
}

func TestThresholdsFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aggressive.yaml")
	doc := `
name: aggressive
filter:
  min_liquidity_usd: 8000
  max_age: 24h
  require_keywords: [ai, cat]
scoring:
  momentum_cap: 30
  liquidity_tiers:
    - {min: 20000, bonus: 8}
selector:
  min_score: 70
tracker:
  flex_gain_pct: 50
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	t.Setenv("THRESHOLDS_FILE", path)
	t.Setenv("MIN_SCORE", "75")

	cfg, err := Load()
	require.NoError(t, err)

	p := cfg.Profile
	assert.Equal(t, "aggressive", p.Name)
	assert.Equal(t, 8000.0, p.Filter.MinLiquidityUSD)
	assert.Equal(t, 24*time.Hour, p.Filter.MaxAge)
	assert.Equal(t, []string{"ai", "cat"}, p.Filter.RequireKeywords)
	assert.Equal(t, 2000.0, p.Filter.MinVolumeH1USD, "absent keys keep defaults")
	assert.Equal(t, 30, p.Scoring.MomentumCap)
	assert.Equal(t, 40, p.Scoring.Base)
	assert.Equal(t, []Tier{{Min: 20000, Bonus: 8}}, p.Scoring.LiquidityTiers)
	assert.Equal(t, 75, p.Selector.MinScore, "env wins over file")
	assert.Equal(t, 50.0, p.Tracker.FlexGainPct)
	assert.Equal(t, 70.0, p.Tracker.RugLiqDropPct)
}

func TestThresholdsFileErrors(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"), DefaultProfile())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("filter: [unclosed"), 0644))
	_, err = LoadProfile(path, DefaultProfile())
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "nan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tracker:\n  rug_liq_drop_pct: .nan\n"), 0644))
	_, err = LoadProfile(path, DefaultProfile())
	assert.ErrorContains(t, err, "rug_liq_drop_pct")
}
