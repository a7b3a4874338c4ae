package twelvedata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stockfeed/internal/feed"
	"stockfeed/internal/httpx"
)

// Config controls the Twelve Data provider.
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
		cfg.Name = "twelvedata"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twelvedata.com"
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

// quoteResponse is the /quote shape. Numeric fields are strings; error
// responses replace the payload with {code, message, status:"error"}.
type quoteResponse struct {
	Symbol        string `json:"symbol"`
	Open          string `json:"open"`
	High          string `json:"high"`
	Low           string `json:"low"`
	Close         string `json:"close"`
	Volume        string `json:"volume"`
	Change        string `json:"change"`
	PercentChange string `json:"percent_change"`
	Timestamp     int64  `json:"timestamp"`
	Status        string `json:"status"`
	Message       string `json:"message"`
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
		u := fmt.Sprintf("%s/quote?symbol=%s&apikey=%s", p.cfg.BaseURL, url.QueryEscape(sym), url.QueryEscape(key))
		var q quoteResponse
		if err := p.client.GetJSON(ctx, u, &q); err != nil {
			return nil, fmt.Errorf("twelvedata %s: %w", sym, err)
		}
		if q.Status == "error" || q.Symbol == "" {
			p.log.Debug("symbol rejected",
				zap.String("provider", p.cfg.Name),
				zap.String("symbol", sym),
				zap.String("message", q.Message))
			return nil, nil
		}
		ts := time.Now().UTC()
		if q.Timestamp > 0 {
			ts = time.Unix(q.Timestamp, 0).UTC()
		}
		return &feed.Record{
			Symbol:        sym,
			Source:        p.cfg.Name,
			Price:         parseFloat(q.Close),
			Change:        parseFloat(q.Change),
			ChangePercent: parseFloat(q.PercentChange),
			Volume:        parseInt(q.Volume),
			Open:          parseFloat(q.Open),
			High:          parseFloat(q.High),
			Low:           parseFloat(q.Low),
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

func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) *int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
