package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Record is one provider's observation for one symbol at one instant.
// Optional fields are nil when the provider did not report them; a nil
// field is "absent", never zero.
type Record struct {
	Symbol        string    `json:"symbol"`
	Source        string    `json:"source"`
	Price         *float64  `json:"price,omitempty"`
	Change        *float64  `json:"change,omitempty"`
	ChangePercent *float64  `json:"changePercent,omitempty"`
	Volume        *int64    `json:"volume,omitempty"`
	MarketCap     *float64  `json:"marketCap,omitempty"`
	High          *float64  `json:"high,omitempty"`
	Low           *float64  `json:"low,omitempty"`
	Open          *float64  `json:"open,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SourceSynthetic tags records fabricated by the fallback generator.
// The tag must survive all the way into consolidated output so consumers
// can tell placeholder data from real provider data.
const SourceSynthetic = "synthetic"

// Status is the per-provider health shown to diagnostic consumers.
// It is recomputed on every collection cycle.
type Status string

const (
	StatusActive  Status = "active"
	StatusError   Status = "error"
	StatusNoKey   Status = "no_key"
	StatusDemoKey Status = "demo_key"
	StatusUnknown Status = "unknown"
)

// ErrMissingKey is returned by adapters that require a credential when
// none (or only a placeholder) is configured. The scheduler treats it as
// a skip, not a provider failure.
var ErrMissingKey = errors.New("feed: missing or placeholder api key")

// Provider is one external quote source. Fetch returns partial results:
// an individual symbol failing never fails the whole call, and an error
// is returned only when the provider produced nothing usable at all.
type Provider interface {
	Name() string
	Status() Status
	Fetch(ctx context.Context, symbols []string) ([]Record, error)
}

// KeySetter is implemented by adapters whose credential can be replaced
// at runtime through the aggregator's configuration surface.
type KeySetter interface {
	SetAPIKey(key string)
}

// placeholderKeys are values commonly left in sample configs. A provider
// configured with one of these reports demo_key and is never called.
var placeholderKeys = map[string]struct{}{
	"demo":         {},
	"test":         {},
	"your_api_key": {},
	"changeme":     {},
}

// KeyStatus classifies a configured credential. ok is true only for a
// real, usable key.
func KeyStatus(key string) (Status, bool) {
	k := strings.TrimSpace(key)
	if k == "" {
		return StatusNoKey, false
	}
	if _, placeholder := placeholderKeys[strings.ToLower(k)]; placeholder {
		return StatusDemoKey, false
	}
	return StatusActive, true
}

// StatusTracker is a small embeddable helper adapters use to expose the
// outcome of their most recent call.
type StatusTracker struct {
	mu     sync.Mutex
	status Status
}

func (t *StatusTracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == "" {
		return StatusUnknown
	}
	return t.status
}

func (t *StatusTracker) SetStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Float64 returns a pointer to v. Adapters use it when mapping numeric
// response fields into optional Record fields.
func Float64(v float64) *float64 { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
