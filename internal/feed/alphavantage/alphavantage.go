package alphavantage

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

// Config controls the Alpha Vantage provider. The free tier allows five
// calls per minute, so symbol requests are serialized with CallDelay
// between them; the delay is local to this adapter's fetch and never
// blocks other providers.
type Config struct {
	Name              string
	BaseURL           string
	APIKey            string
	MaxCallsPerMinute int
	CallDelay         time.Duration
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
		cfg.Name = "alphavantage"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.alphavantage.co"
	}
	if cfg.MaxCallsPerMinute <= 0 {
		cfg.MaxCallsPerMinute = 5
	}
	if cfg.CallDelay < 0 {
		cfg.CallDelay = 0
	} else if cfg.CallDelay == 0 {
		cfg.CallDelay = 12 * time.Second
	}
	hc.SetDomainLimit(cfg.BaseURL, cfg.MaxCallsPerMinute, time.Minute)
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

// globalQuote is the GLOBAL_QUOTE response. All numeric fields arrive as
// strings; change percent carries a trailing "%".
type globalQuote struct {
	Quote struct {
		Symbol        string `json:"01. symbol"`
		Open          string `json:"02. open"`
		High          string `json:"03. high"`
		Low           string `json:"04. low"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		PrevClose     string `json:"08. previous close"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

func (p *Provider) Fetch(ctx context.Context, symbols []string) ([]feed.Record, error) {
	p.mu.Lock()
	key := p.apiKey
	p.mu.Unlock()
	if status, ok := feed.KeyStatus(key); !ok {
		p.SetStatus(status)
		return nil, feed.ErrMissingKey
	}

	var (
		records  []feed.Record
		firstErr error
	)
	for i, sym := range symbols {
		if i > 0 && p.cfg.CallDelay > 0 {
			select {
			case <-ctx.Done():
				break
			case <-time.After(p.cfg.CallDelay):
			}
		}
		if ctx.Err() != nil {
			break
		}
		rec, err := p.fetchOne(ctx, sym, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}

	if len(records) == 0 && firstErr != nil {
		if errors.Is(firstErr, httpx.ErrRateLimited) {
			p.log.Debug("rate limited, deferring", zap.String("provider", p.cfg.Name))
			return nil, firstErr
		}
		p.SetStatus(feed.StatusError)
		p.log.Warn("fetch failed", zap.String("provider", p.cfg.Name), zap.Error(firstErr))
		return nil, firstErr
	}
	p.SetStatus(feed.StatusActive)
	return records, nil
}

func (p *Provider) fetchOne(ctx context.Context, sym, key string) (*feed.Record, error) {
	u := fmt.Sprintf("%s/query?function=GLOBAL_QUOTE&symbol=%s&apikey=%s",
		p.cfg.BaseURL, url.QueryEscape(sym), url.QueryEscape(key))
	var gq globalQuote
	if err := p.client.GetJSON(ctx, u, &gq); err != nil {
		return nil, fmt.Errorf("alphavantage %s: %w", sym, err)
	}
	if gq.Quote.Symbol == "" {
		// Empty object: unknown symbol or an exhausted demo quota.
		return nil, nil
	}
	rec := feed.Record{
		Symbol:    sym,
		Source:    p.cfg.Name,
		Timestamp: time.Now().UTC(),
	}
	rec.Price = parseFloat(gq.Quote.Price)
	rec.Change = parseFloat(gq.Quote.Change)
	rec.ChangePercent = parseFloat(strings.TrimSuffix(gq.Quote.ChangePercent, "%"))
	rec.Open = parseFloat(gq.Quote.Open)
	rec.High = parseFloat(gq.Quote.High)
	rec.Low = parseFloat(gq.Quote.Low)
	rec.Volume = parseInt(gq.Quote.Volume)
	return &rec, nil
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
