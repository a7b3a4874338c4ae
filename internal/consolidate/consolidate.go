package consolidate

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"stockfeed/internal/feed"
)

// DefaultWeights are the fixed per-provider trust coefficients, ordered
// by assumed data quality. They sum to 1.0 across the full provider set.
var DefaultWeights = map[string]float64{
	"finnhub":      0.25,
	"alphavantage": 0.25,
	"twelvedata":   0.20,
	"polygon":      0.15,
	"yahoo":        0.10,
	"iexcloud":     0.05,
}

// Quote is the merged per-symbol view produced from all provider records
// of one collection cycle.
type Quote struct {
	Symbol           string        `json:"symbol"`
	Price            *float64      `json:"price"`
	Change           float64       `json:"change"`
	ChangePercent    float64       `json:"changePercent"`
	Volume           *int64        `json:"volume,omitempty"`
	MarketCap        *float64      `json:"marketCap,omitempty"`
	SourcesCount     int           `json:"sourcesCount"`
	Reliability      float64       `json:"reliability"`
	LowConfidence    bool          `json:"lowConfidence,omitempty"`
	RawContributions []feed.Record `json:"rawContributions"`
	Timestamp        time.Time     `json:"timestamp"`
}

// Engine merges same-symbol records via weighted averaging.
type Engine struct {
	weights map[string]float64
	log     *zap.Logger
}

func New(weights map[string]float64, log *zap.Logger) *Engine {
	if weights == nil {
		weights = DefaultWeights
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{weights: weights, log: log}
}

// Consolidate groups records by symbol and merges each group into one
// quote. Output is sorted by symbol so identical input always yields
// identical output.
func (e *Engine) Consolidate(records []feed.Record) []Quote {
	groups := make(map[string][]feed.Record)
	order := make([]string, 0)
	for _, r := range records {
		if _, seen := groups[r.Symbol]; !seen {
			order = append(order, r.Symbol)
		}
		groups[r.Symbol] = append(groups[r.Symbol], r)
	}
	sort.Strings(order)

	out := make([]Quote, 0, len(order))
	for _, sym := range order {
		out = append(out, e.merge(sym, groups[sym]))
	}
	return out
}

// merge computes the weighted view of one symbol. Weighted averages are
// normalized by the sum of weights of the sources that actually reported
// the field, so a symbol covered by a single provider degenerates to that
// provider's value.
func (e *Engine) merge(symbol string, records []feed.Record) Quote {
	var (
		priceSum, priceWeight   float64
		priceTotal              float64 // unweighted, for zero-weight sources
		priceCount              int
		changeSum, changeWeight float64
		changeTotal             float64
		changeCount             int
		reliability             float64
		maxVolume               *int64
		marketCap               *float64
	)

	for _, r := range records {
		w := e.weights[r.Source]
		if r.Price != nil {
			priceSum += *r.Price * w
			priceWeight += w
			priceTotal += *r.Price
			priceCount++
			reliability += w
		}
		if r.Change != nil {
			changeSum += *r.Change * w
			changeWeight += w
			changeTotal += *r.Change
			changeCount++
		}
		if r.Volume != nil && (maxVolume == nil || *r.Volume > *maxVolume) {
			v := *r.Volume
			maxVolume = &v
		}
		if marketCap == nil && r.MarketCap != nil {
			mc := *r.MarketCap
			marketCap = &mc
		}
	}

	q := Quote{
		Symbol:           symbol,
		SourcesCount:     len(records),
		Reliability:      reliability,
		Volume:           maxVolume,
		MarketCap:        marketCap,
		RawContributions: records,
		Timestamp:        time.Now().UTC(),
	}

	switch {
	case priceWeight > 0:
		q.Price = feed.Float64(priceSum / priceWeight)
	case priceCount > 0:
		// Only zero-weight sources (synthetic fallback) reported a
		// price. Plain mean, flagged low-confidence.
		q.Price = feed.Float64(priceTotal / float64(priceCount))
		q.LowConfidence = true
	default:
		// No numeric price anywhere. Fall back to the first raw record,
		// which may itself carry no price.
		q.Price = records[0].Price
		q.LowConfidence = true
		e.log.Debug("no usable price for symbol", zap.String("symbol", symbol))
	}

	if changeWeight > 0 {
		q.Change = changeSum / changeWeight
	} else if changeCount > 0 {
		q.Change = changeTotal / float64(changeCount)
	}

	// changePercent is derived from the merged values, never averaged:
	// previous close = price - change.
	if q.Price != nil {
		if prev := *q.Price - q.Change; prev != 0 {
			q.ChangePercent = q.Change / prev * 100
		}
	}
	return q
}
