package iexcloud

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

// Config controls the IEX Cloud provider.
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
		cfg.Name = "iexcloud"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://cloud.iexapis.com/stable"
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

// stockQuote is the /stock/{symbol}/quote shape. Several fields are null
// outside market hours, hence the pointers.
type stockQuote struct {
	Symbol        string   `json:"symbol"`
	LatestPrice   *float64 `json:"latestPrice"`
	Change        *float64 `json:"change"`
	ChangePercent *float64 `json:"changePercent"` // fraction, not percent
	LatestVolume  *int64   `json:"latestVolume"`
	MarketCap     *float64 `json:"marketCap"`
	High          *float64 `json:"high"`
	Low           *float64 `json:"low"`
	Open          *float64 `json:"open"`
	LatestUpdate  int64    `json:"latestUpdate"` // ms
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
		u := fmt.Sprintf("%s/stock/%s/quote?token=%s", p.cfg.BaseURL, url.PathEscape(sym), url.QueryEscape(key))
		var q stockQuote
		if err := p.client.GetJSON(ctx, u, &q); err != nil {
			return nil, fmt.Errorf("iexcloud %s: %w", sym, err)
		}
		if q.Symbol == "" || q.LatestPrice == nil {
			return nil, nil
		}
		rec := feed.Record{
			Symbol:    sym,
			Source:    p.cfg.Name,
			Price:     q.LatestPrice,
			Change:    q.Change,
			Volume:    q.LatestVolume,
			MarketCap: q.MarketCap,
			High:      q.High,
			Low:       q.Low,
			Open:      q.Open,
			Timestamp: time.Now().UTC(),
		}
		if q.LatestUpdate > 0 {
			rec.Timestamp = time.UnixMilli(q.LatestUpdate).UTC()
		}
		if q.ChangePercent != nil {
			rec.ChangePercent = feed.Float64(*q.ChangePercent * 100)
		}
		return &rec, nil
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
