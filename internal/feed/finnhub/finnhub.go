package finnhub

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

// Config controls the Finnhub provider.
type Config struct {
	Name              string
	BaseURL           string
	APIKey            string
	MaxCallsPerMinute int
	MaxConcurrency    int
}

// Provider fetches real-time quotes from the Finnhub /quote endpoint.
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
		cfg.Name = "finnhub"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://finnhub.io/api/v1"
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

// quoteResponse is Finnhub's /quote shape: current, change, percent
// change, high, low, open, previous close, and an epoch timestamp.
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
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
		u := fmt.Sprintf("%s/quote?symbol=%s&token=%s", p.cfg.BaseURL, url.QueryEscape(sym), url.QueryEscape(key))
		var q quoteResponse
		if err := p.client.GetJSON(ctx, u, &q); err != nil {
			return nil, fmt.Errorf("finnhub %s: %w", sym, err)
		}
		// Unknown symbols come back as an all-zero body.
		if q.Current == 0 && q.Timestamp == 0 {
			return nil, nil
		}
		ts := time.Now().UTC()
		if q.Timestamp > 0 {
			ts = time.Unix(q.Timestamp, 0).UTC()
		}
		return &feed.Record{
			Symbol:        sym,
			Source:        p.cfg.Name,
			Price:         feed.Float64(q.Current),
			Change:        feed.Float64(q.Change),
			ChangePercent: feed.Float64(q.ChangePercent),
			High:          feed.Float64(q.High),
			Low:           feed.Float64(q.Low),
			Open:          feed.Float64(q.Open),
			Timestamp:     ts,
		}, nil
	})
	if err != nil {
		if errors.Is(err, httpx.ErrRateLimited) {
			// Local quota rejection, not a provider failure. Keep the
			// prior status; the next cycle retries.
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
