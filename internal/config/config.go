package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"stockfeed/internal/httpx"
)

// Server holds the dashboard API settings.
type Server struct {
	Port string `mapstructure:"port"`
}

// Collector holds the scheduler settings.
type Collector struct {
	IntervalSec        int      `mapstructure:"interval_sec"`
	ProviderTimeoutSec int      `mapstructure:"provider_timeout_sec"`
	Symbols            []string `mapstructure:"symbols"`
}

// HTTP holds the shared transport settings.
type HTTP struct {
	TimeoutSec      int `mapstructure:"timeout_sec"`
	MaxAttempts     int `mapstructure:"max_attempts"`
	RetryBaseMs     int `mapstructure:"retry_base_ms"`
	RetryMaxMs      int `mapstructure:"retry_max_ms"`
	CacheTTLSec     int `mapstructure:"cache_ttl_sec"`
	CacheMaxEntries int `mapstructure:"cache_max_entries"`
	WindowMax       int `mapstructure:"window_max"`
	WindowSec       int `mapstructure:"window_sec"`
}

// ClientConfig translates the HTTP section into transport settings, so
// every binary wires the same client from the same knobs.
func (h HTTP) ClientConfig() httpx.Config {
	return httpx.Config{
		Timeout:         time.Duration(h.TimeoutSec) * time.Second,
		MaxAttempts:     h.MaxAttempts,
		RetryBase:       time.Duration(h.RetryBaseMs) * time.Millisecond,
		RetryMax:        time.Duration(h.RetryMaxMs) * time.Millisecond,
		CacheTTL:        time.Duration(h.CacheTTLSec) * time.Second,
		CacheMaxEntries: h.CacheMaxEntries,
		WindowMax:       h.WindowMax,
		WindowSpan:      time.Duration(h.WindowSec) * time.Second,
	}
}

// Provider holds one adapter's connection settings.
type Provider struct {
	Enabled           bool   `mapstructure:"enabled"`
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	MaxCallsPerMinute int    `mapstructure:"max_calls_per_minute"`
	MaxConcurrency    int    `mapstructure:"max_concurrency"`
	CallDelaySec      int    `mapstructure:"call_delay_sec"`
}

type Config struct {
	Server       Server    `mapstructure:"server"`
	Collector    Collector `mapstructure:"collector"`
	HTTP         HTTP      `mapstructure:"http"`
	Finnhub      Provider  `mapstructure:"finnhub"`
	AlphaVantage Provider  `mapstructure:"alphavantage"`
	TwelveData   Provider  `mapstructure:"twelvedata"`
	Polygon      Provider  `mapstructure:"polygon"`
	Yahoo        Provider  `mapstructure:"yahoo"`
	IEXCloud     Provider  `mapstructure:"iexcloud"`
}

// DefaultSymbols is the demo universe used when none is configured.
var DefaultSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "JPM", "V", "UNH"}

// Load reads config.yaml from path (or the working directory) and
// applies env overrides for credentials. A missing file yields defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Collector.Symbols) == 0 {
		cfg.Collector.Symbols = DefaultSymbols
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8090")
	v.SetDefault("collector.interval_sec", 60)
	v.SetDefault("collector.provider_timeout_sec", 30)
	v.SetDefault("http.timeout_sec", 10)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.retry_base_ms", 500)
	v.SetDefault("http.retry_max_ms", 10000)
	v.SetDefault("http.cache_ttl_sec", 30)
	v.SetDefault("http.cache_max_entries", 1000)
	v.SetDefault("http.window_max", 60)
	v.SetDefault("http.window_sec", 60)

	v.SetDefault("finnhub.enabled", true)
	v.SetDefault("finnhub.max_calls_per_minute", 60)
	v.SetDefault("alphavantage.enabled", true)
	v.SetDefault("alphavantage.max_calls_per_minute", 5)
	v.SetDefault("alphavantage.call_delay_sec", 12)
	v.SetDefault("twelvedata.enabled", true)
	v.SetDefault("twelvedata.max_calls_per_minute", 8)
	v.SetDefault("polygon.enabled", true)
	v.SetDefault("polygon.max_calls_per_minute", 5)
	v.SetDefault("yahoo.enabled", true)
	v.SetDefault("iexcloud.enabled", true)
	v.SetDefault("iexcloud.max_calls_per_minute", 50)
}

// bindEnv wires the credential and port overrides; secrets normally
// arrive through the environment, not the config file.
func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")
	v.BindEnv("collector.interval_sec", "COLLECT_INTERVAL_SEC")
	v.BindEnv("finnhub.api_key", "FINNHUB_API_KEY")
	v.BindEnv("alphavantage.api_key", "ALPHAVANTAGE_API_KEY")
	v.BindEnv("twelvedata.api_key", "TWELVEDATA_API_KEY")
	v.BindEnv("polygon.api_key", "POLYGON_API_KEY")
	v.BindEnv("iexcloud.api_key", "IEXCLOUD_API_KEY")
}
