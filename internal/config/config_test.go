package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalSentinel/internal/model"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://fapi.binance.com", cfg.Binance.BaseURL)
	assert.Equal(t, "BTCUSDT", cfg.Scan.ReferenceSymbol)
	assert.Equal(t, 50, cfg.Predictor.MinSamples)
	assert.Equal(t, 100*time.Millisecond, cfg.Scan.Pace)
	assert.Equal(t, ClassSchedule{Every: time.Hour, Interval: "4h", Candles: 150}, cfg.Scan.Classes[model.Swing])
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
binance:
  base_url: http://localhost:9999
scan:
  symbols: [ETHUSDT, SOLUSDT]
  classes:
    scalp:
      every: 2m
      candles: 120
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999", cfg.Binance.BaseURL)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	scalp := cfg.Scan.Classes[model.Scalp]
	assert.Equal(t, 2*time.Minute, scalp.Every)
	assert.Equal(t, 120, scalp.Candles)
	assert.Equal(t, "5m", scalp.Interval, "unset fields fall back to defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("binance: [unterminated"), 0644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate_RequiresUniverseSource(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())

	cfg.Scan.Symbols = []string{"ETHUSDT"}
	assert.NoError(t, cfg.Validate())

	cfg.Telegram.BotToken = "token"
	assert.Error(t, cfg.Validate(), "chat id required alongside a bot token")
}
