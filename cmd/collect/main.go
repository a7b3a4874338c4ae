// Command collect runs a single collection cycle and prints the update
// as JSON. Useful for smoke-testing provider credentials.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"stockfeed/internal/aggregator"
	"stockfeed/internal/config"
	"stockfeed/internal/consolidate"
	"stockfeed/internal/feed"
	"stockfeed/internal/feed/alphavantage"
	"stockfeed/internal/feed/finnhub"
	"stockfeed/internal/feed/iexcloud"
	"stockfeed/internal/feed/polygon"
	"stockfeed/internal/feed/twelvedata"
	"stockfeed/internal/feed/yahoo"
	"stockfeed/internal/httpx"
	"stockfeed/internal/logging"
)

func main() {
	var symbolsCSV string
	var cfgPath string
	var timeoutSec int
	flag.StringVar(&symbolsCSV, "symbols", "", "comma-separated tickers (default: configured universe)")
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_DIR"), "config directory")
	flag.IntVar(&timeoutSec, "timeout", 120, "overall timeout in seconds")
	flag.Parse()

	log, err := logging.New(true)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	symbols := cfg.Collector.Symbols
	if symbolsCSV != "" {
		symbols = splitCSV(symbolsCSV)
	}

	client := httpx.New(cfg.HTTP.ClientConfig(), httpx.WithLogger(log.Named("httpx")))

	agg := aggregator.New(aggregator.Config{
		Symbols:         symbols,
		ProviderTimeout: time.Duration(cfg.Collector.ProviderTimeoutSec) * time.Second,
	}, buildProviders(cfg, client, log), consolidate.New(nil, log), log.Named("aggregator"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	update := agg.RunOnce(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(update); err != nil {
		log.Fatal("encode", zap.Error(err))
	}
}

func buildProviders(cfg *config.Config, client *httpx.Client, log *zap.Logger) []feed.Provider {
	var providers []feed.Provider
	if cfg.Finnhub.Enabled {
		providers = append(providers, finnhub.New(finnhub.Config{
			BaseURL:           cfg.Finnhub.BaseURL,
			APIKey:            cfg.Finnhub.APIKey,
			MaxCallsPerMinute: cfg.Finnhub.MaxCallsPerMinute,
			MaxConcurrency:    cfg.Finnhub.MaxConcurrency,
		}, client, log.Named("finnhub")))
	}
	if cfg.AlphaVantage.Enabled {
		providers = append(providers, alphavantage.New(alphavantage.Config{
			BaseURL:           cfg.AlphaVantage.BaseURL,
			APIKey:            cfg.AlphaVantage.APIKey,
			MaxCallsPerMinute: cfg.AlphaVantage.MaxCallsPerMinute,
			CallDelay:         time.Duration(cfg.AlphaVantage.CallDelaySec) * time.Second,
		}, client, log.Named("alphavantage")))
	}
	if cfg.TwelveData.Enabled {
		providers = append(providers, twelvedata.New(twelvedata.Config{
			BaseURL:           cfg.TwelveData.BaseURL,
			APIKey:            cfg.TwelveData.APIKey,
			MaxCallsPerMinute: cfg.TwelveData.MaxCallsPerMinute,
			MaxConcurrency:    cfg.TwelveData.MaxConcurrency,
		}, client, log.Named("twelvedata")))
	}
	if cfg.Polygon.Enabled {
		providers = append(providers, polygon.New(polygon.Config{
			BaseURL:           cfg.Polygon.BaseURL,
			APIKey:            cfg.Polygon.APIKey,
			MaxCallsPerMinute: cfg.Polygon.MaxCallsPerMinute,
			MaxConcurrency:    cfg.Polygon.MaxConcurrency,
		}, client, log.Named("polygon")))
	}
	if cfg.Yahoo.Enabled {
		providers = append(providers, yahoo.New(yahoo.Config{
			BaseURL:           cfg.Yahoo.BaseURL,
			MaxCallsPerMinute: cfg.Yahoo.MaxCallsPerMinute,
			MaxConcurrency:    cfg.Yahoo.MaxConcurrency,
		}, client, log.Named("yahoo")))
	}
	if cfg.IEXCloud.Enabled {
		providers = append(providers, iexcloud.New(iexcloud.Config{
			BaseURL:           cfg.IEXCloud.BaseURL,
			APIKey:            cfg.IEXCloud.APIKey,
			MaxCallsPerMinute: cfg.IEXCloud.MaxCallsPerMinute,
			MaxConcurrency:    cfg.IEXCloud.MaxConcurrency,
		}, client, log.Named("iexcloud")))
	}
	return providers
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
