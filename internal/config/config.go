package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"SignalSentinel/internal/model"
)

// ClassSchedule describes how one trade class is scanned.
type ClassSchedule struct {
	Every    time.Duration `yaml:"every"`
	Interval string        `yaml:"interval"`
	Candles  int           `yaml:"candles"`
}

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"log"`
	Binance struct {
		BaseURL           string  `yaml:"base_url"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"binance"`
	CoinMarketCap struct {
		BaseURL      string        `yaml:"base_url"`
		APIKey       string        `yaml:"api_key"`
		TopLimit     int           `yaml:"top_limit"`
		RefreshEvery time.Duration `yaml:"refresh_every"`
	} `yaml:"coinmarketcap"`
	CoinGecko struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"coingecko"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
	State struct {
		Dir string `yaml:"dir"`
	} `yaml:"state"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Tunables struct {
		Path  string `yaml:"path"`
		Watch bool   `yaml:"watch"`
	} `yaml:"tunables"`
	Scan struct {
		ReferenceSymbol string                             `yaml:"reference_symbol"`
		Symbols         []string                           `yaml:"symbols"` // used when no CMC key is set
		Workers         int                                `yaml:"workers"`
		Pace            time.Duration                      `yaml:"pace"`
		Classes         map[model.TradeClass]ClassSchedule `yaml:"classes"`
	} `yaml:"scan"`
	Predictor struct {
		MinSamples int    `yaml:"min_samples"`
		AdvisorURL string `yaml:"advisor_url"` // optional external second opinion
	} `yaml:"predictor"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Binance.BaseURL = v
	}
	if v := os.Getenv("CMC_API_KEY"); v != "" {
		cfg.CoinMarketCap.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("TUNABLES_PATH"); v != "" {
		cfg.Tunables.Path = v
	}
	if v := os.Getenv("ADVISOR_URL"); v != "" {
		cfg.Predictor.AdvisorURL = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SCAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scan.Workers = n
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Binance.BaseURL == "" {
		cfg.Binance.BaseURL = "https://fapi.binance.com"
	}
	if cfg.Binance.RequestsPerSecond == 0 {
		cfg.Binance.RequestsPerSecond = 20
	}
	if cfg.Binance.Burst == 0 {
		cfg.Binance.Burst = 10
	}
	if cfg.CoinMarketCap.BaseURL == "" {
		cfg.CoinMarketCap.BaseURL = "https://pro-api.coinmarketcap.com"
	}
	if cfg.CoinMarketCap.TopLimit == 0 {
		cfg.CoinMarketCap.TopLimit = 1000
	}
	if cfg.CoinMarketCap.RefreshEvery == 0 {
		cfg.CoinMarketCap.RefreshEvery = 6 * time.Hour
	}
	if cfg.CoinGecko.BaseURL == "" {
		cfg.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "sentinel.events"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "sentinel:"
	}
	if cfg.State.Dir == "" {
		cfg.State.Dir = "data/state"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/signal_sentinel.db"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Tunables.Path == "" {
		cfg.Tunables.Path = "configs/tunables.yaml"
	}
	if cfg.Scan.ReferenceSymbol == "" {
		cfg.Scan.ReferenceSymbol = "BTCUSDT"
	}
	if cfg.Scan.Workers == 0 {
		cfg.Scan.Workers = 8
	}
	if cfg.Scan.Pace == 0 {
		cfg.Scan.Pace = 100 * time.Millisecond
	}
	if cfg.Scan.Classes == nil {
		cfg.Scan.Classes = map[model.TradeClass]ClassSchedule{}
	}
	for class, def := range DefaultSchedules() {
		s := cfg.Scan.Classes[class]
		if s.Every == 0 {
			s.Every = def.Every
		}
		if s.Interval == "" {
			s.Interval = def.Interval
		}
		if s.Candles == 0 {
			s.Candles = def.Candles
		}
		cfg.Scan.Classes[class] = s
	}
	if cfg.Predictor.MinSamples == 0 {
		cfg.Predictor.MinSamples = 50
	}
}

// DefaultSchedules returns the scan cadence of each trade class.
func DefaultSchedules() map[model.TradeClass]ClassSchedule {
	return map[model.TradeClass]ClassSchedule{
		model.Scalp: {Every: 5 * time.Minute, Interval: "5m", Candles: 100},
		model.Day:   {Every: 15 * time.Minute, Interval: "1h", Candles: 100},
		model.Swing: {Every: time.Hour, Interval: "4h", Candles: 150},
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	if c.Binance.BaseURL == "" {
		return fmt.Errorf("binance.base_url is required")
	}
	if c.Binance.RequestsPerSecond <= 0 {
		return fmt.Errorf("binance.requests_per_second must be positive")
	}
	if c.CoinMarketCap.APIKey == "" && len(c.Scan.Symbols) == 0 {
		return fmt.Errorf("either coinmarketcap.api_key or scan.symbols is required")
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be at least 1")
	}
	for class, s := range c.Scan.Classes {
		if _, err := model.ParseClass(string(class)); err != nil {
			return fmt.Errorf("scan.classes: %w", err)
		}
		if s.Candles < 50 {
			return fmt.Errorf("scan.classes.%s.candles must be at least 50", class)
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}
	return nil
}
