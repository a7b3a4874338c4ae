package polygon

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"stockfeed/internal/feed"
	"stockfeed/internal/httpx"
)

// Config controls the Polygon provider. Quotes come from the previous-day
// aggregate bar, the endpoint available on the free tier.
type Config struct {
	Name              string
	BaseURL           string
	APIKey            string
	MaxCallsPerMinute int
	MaxConcurrency    int
}

type Provider struct {
	cfg    Config
	client *httpx.Client
	log    *zap.Logger

	feed.StatusTracker
	mu     sync.Mutex
	apiKey string
}

func New(cfg Config, hc *httpx.Client, log *zap.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = "polygon"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.polygon.io"
	}
	if cfg.MaxCallsPerMinute > 0 {
		hc.SetDomainLimit(cfg.BaseURL, cfg.MaxCallsPerMinute, time.Minute)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{cfg: cfg, client: hc, log: log, apiKey: cfg.APIKey}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) SetAPIKey(key string) {
	p.mu.Lock()
	p.apiKey = key
	p.mu.Unlock()
}

type prevDayResponse struct {
	ResultsCount int `json:"resultsCount"`
	Results      []struct {
		Ticker    string  `json:"T"`
		Close     float64 `json:"c"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Open      float64 `json:"o"`
		Volume    float64 `json:"v"`
		Timestamp int64   `json:"t"` // ms
	} `json:"results"`
}

func (p *Provider) Fetch(ctx context.Context, symbols []string) ([]feed.Record, error) {
	p.mu.Lock()
	key := p.apiKey
	p.mu.Unlock()
	if status, ok := feed.KeyStatus(key); !ok {
		p.SetStatus(status)
		return nil, feed.ErrMissingKey
	}

	records, err := feed.ForEachSymbol(ctx, symbols, p.cfg.MaxConcurrency, func(ctx context.Context, sym string) (*feed.Record, error) {
		u := fmt.Sprintf("%s/v2/aggs/ticker/%s/prev?adjusted=true&apiKey=%s",
			p.cfg.BaseURL, url.PathEscape(sym), url.QueryEscape(key))
		var resp prevDayResponse
		if err := p.client.GetJSON(ctx, u, &resp); err != nil {
			return nil, fmt.Errorf("polygon %s: %w", sym, err)
		}
		if resp.ResultsCount == 0 || len(resp.Results) == 0 {
			return nil, nil
		}
		bar := resp.Results[0]
		change := bar.Close - bar.Open
		pct := 0.0
		if bar.Open != 0 {
			pct = change / bar.Open * 100
		}
		ts := time.Now().UTC()
		if bar.Timestamp > 0 {
			ts = time.UnixMilli(bar.Timestamp).UTC()
		}
		return &feed.Record{
			Symbol:        sym,
			Source:        p.cfg.Name,
			Price:         feed.Float64(bar.Close),
			Change:        feed.Float64(change),
			ChangePercent: feed.Float64(pct),
			Volume:        feed.Int64(int64(bar.Volume)),
			Open:          feed.Float64(bar.Open),
			High:          feed.Float64(bar.High),
			Low:           feed.Float64(bar.Low),
			Timestamp:     ts,
		}, nil
	})
	if err != nil {
		if errors.Is(err, httpx.ErrRateLimited) {
			p.log.Debug("rate limited, deferring", zap.String("provider", p.cfg.Name))
			return nil, err
		}
		p.SetStatus(feed.StatusError)
		p.log.Warn("fetch failed", zap.String("provider", p.cfg.Name), zap.Error(err))
		return nil, err
	}
	p.SetStatus(feed.StatusActive)
	return records, nil
}
