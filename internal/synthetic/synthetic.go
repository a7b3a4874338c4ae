package synthetic

import (
	"hash/fnv"
	"math/rand"
	"time"

	"stockfeed/internal/feed"
)

// DefaultSymbols is the fixed subset used when the caller supplies no
// universe of its own.
var DefaultSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "JPM"}

// Records fabricates schema-conformant placeholder records, one per
// symbol. Every record is tagged feed.SourceSynthetic so the provenance
// survives consolidation; consumers must never mistake this output for
// real provider data. Called only when every real provider failed.
func Records(symbols []string, now time.Time) []feed.Record {
	if len(symbols) == 0 {
		symbols = DefaultSymbols
	}
	out := make([]feed.Record, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, record(sym, now))
	}
	return out
}

// record derives an internally consistent price/change/volume set. The
// base price is seeded from the symbol so repeated fallback cycles stay
// in a plausible band per ticker.
func record(symbol string, now time.Time) feed.Record {
	base := 50 + float64(hash(symbol)%45000)/100 // 50.00 .. 499.99
	change := base * (rand.Float64()*0.1 - 0.05) // within ±5%
	price := base + change
	open := base
	high := price
	if open > high {
		high = open
	}
	low := price
	if open < low {
		low = open
	}
	volume := int64(1_000_000 + rand.Intn(49_000_000))

	pct := 0.0
	if base != 0 {
		pct = change / base * 100
	}
	return feed.Record{
		Symbol:        symbol,
		Source:        feed.SourceSynthetic,
		Price:         feed.Float64(price),
		Change:        feed.Float64(change),
		ChangePercent: feed.Float64(pct),
		Volume:        feed.Int64(volume),
		High:          feed.Float64(high),
		Low:           feed.Float64(low),
		Open:          feed.Float64(open),
		Timestamp:     now,
	}
}

func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
