package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"stockfeed/internal/feed"
	"stockfeed/internal/httpx"
)

// Config controls the Yahoo Finance provider. No credential is required,
// so the adapter is active whenever it is enabled.
type Config struct {
	Name              string
	BaseURL           string
	MaxCallsPerMinute int
	MaxConcurrency    int
}

type Provider struct {
	cfg    Config
	client *httpx.Client
	log    *zap.Logger

	feed.StatusTracker
}

func New(cfg Config, hc *httpx.Client, log *zap.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = "yahoo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.MaxCallsPerMinute > 0 {
		hc.SetDomainLimit(cfg.BaseURL, cfg.MaxCallsPerMinute, time.Minute)
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Provider{cfg: cfg, client: hc, log: log}
	p.SetStatus(feed.StatusActive)
	return p
}

func (p *Provider) Name() string { return p.cfg.Name }

// chartResponse is the v8 chart shape; the quote fields we need all live
// in result[0].meta.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol            string  `json:"symbol"`
				RegularMarketTime int64   `json:"regularMarketTime"`
				Price             float64 `json:"regularMarketPrice"`
				DayHigh           float64 `json:"regularMarketDayHigh"`
				DayLow            float64 `json:"regularMarketDayLow"`
				Volume            int64   `json:"regularMarketVolume"`
				PrevClose         float64 `json:"chartPreviousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *Provider) Fetch(ctx context.Context, symbols []string) ([]feed.Record, error) {
	records, err := feed.ForEachSymbol(ctx, symbols, p.cfg.MaxConcurrency, func(ctx context.Context, sym string) (*feed.Record, error) {
		u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", p.cfg.BaseURL, url.PathEscape(sym))
		var resp chartResponse
		if err := p.client.GetJSON(ctx, u, &resp); err != nil {
			return nil, fmt.Errorf("yahoo %s: %w", sym, err)
		}
		if resp.Chart.Error != nil || len(resp.Chart.Result) == 0 {
			return nil, nil
		}
		meta := resp.Chart.Result[0].Meta
		if meta.Price == 0 {
			return nil, nil
		}
		rec := feed.Record{
			Symbol:    sym,
			Source:    p.cfg.Name,
			Price:     feed.Float64(meta.Price),
			Timestamp: time.Now().UTC(),
		}
		if meta.RegularMarketTime > 0 {
			rec.Timestamp = time.Unix(meta.RegularMarketTime, 0).UTC()
		}
		if meta.PrevClose != 0 {
			change := meta.Price - meta.PrevClose
			rec.Change = feed.Float64(change)
			rec.ChangePercent = feed.Float64(change / meta.PrevClose * 100)
		}
		if meta.Volume > 0 {
			rec.Volume = feed.Int64(meta.Volume)
		}
		if meta.DayHigh > 0 {
			rec.High = feed.Float64(meta.DayHigh)
		}
		if meta.DayLow > 0 {
			rec.Low = feed.Float64(meta.DayLow)
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
	// Keyless provider: a working call path reports active again.
	p.SetStatus(feed.StatusActive)
	return records, nil
}
