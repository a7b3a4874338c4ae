package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
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
	log, err := logging.New(os.Getenv("DEBUG") != "")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfgPath := os.Getenv("CONFIG_DIR")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}

	client := httpx.New(cfg.HTTP.ClientConfig(), httpx.WithLogger(log.Named("httpx")))

	agg := aggregator.New(aggregator.Config{
		Symbols:         cfg.Collector.Symbols,
		Interval:        time.Duration(cfg.Collector.IntervalSec) * time.Second,
		ProviderTimeout: time.Duration(cfg.Collector.ProviderTimeoutSec) * time.Second,
	}, buildProviders(cfg, client, log), consolidate.New(nil, log), log.Named("aggregator"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agg.Start(ctx); err != nil {
		log.Fatal("start aggregator", zap.Error(err))
	}
	defer agg.Stop()

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: newRouter(agg, log.Named("api")),
	}
	go func() {
		log.Info("dashboard api listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// buildProviders wires every enabled adapter onto the shared transport.
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
