package analytics

import (
	"sort"
	"time"

	"stockfeed/internal/consolidate"
)

// Sentiment labels for the market-direction summary.
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"
)

// Analysis is the market-wide summary over one cycle's consolidated
// quotes. The top lists hold at most five entries each and always come
// from the current cycle, never a stale one.
type Analysis struct {
	TotalStocks int                 `json:"totalStocks"`
	Gainers     int                 `json:"gainers"`
	Losers      int                 `json:"losers"`
	Unchanged   int                 `json:"unchanged"`
	AvgChange   float64             `json:"avgChange"`
	Sentiment   string              `json:"sentiment"`
	TopGainers  []consolidate.Quote `json:"topGainers"`
	TopLosers   []consolidate.Quote `json:"topLosers"`
	TopVolume   []consolidate.Quote `json:"topVolume"`
	LastUpdate  time.Time           `json:"lastUpdate"`
}

const topN = 5

// Analyze computes the summary for one cycle.
func Analyze(quotes []consolidate.Quote) Analysis {
	a := Analysis{
		TotalStocks: len(quotes),
		Sentiment:   SentimentNeutral,
		LastUpdate:  time.Now().UTC(),
	}

	var gainers, losers []consolidate.Quote
	var changeSum float64
	for _, q := range quotes {
		changeSum += q.Change
		switch {
		case q.Change > 0:
			a.Gainers++
			gainers = append(gainers, q)
		case q.Change < 0:
			a.Losers++
			losers = append(losers, q)
		default:
			a.Unchanged++
		}
	}

	if len(quotes) > 0 {
		a.AvgChange = changeSum / float64(len(quotes))
	}
	// Exact zero maps to neutral. With weighted float aggregation this
	// branch is reached in practice only for an empty or flat universe.
	if a.AvgChange > 0 {
		a.Sentiment = SentimentBullish
	} else if a.AvgChange < 0 {
		a.Sentiment = SentimentBearish
	}

	sort.Slice(gainers, func(i, j int) bool { return gainers[i].Change > gainers[j].Change })
	sort.Slice(losers, func(i, j int) bool { return losers[i].Change < losers[j].Change })
	a.TopGainers = top(gainers)
	a.TopLosers = top(losers)

	withVolume := make([]consolidate.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Volume != nil {
			withVolume = append(withVolume, q)
		}
	}
	sort.Slice(withVolume, func(i, j int) bool { return *withVolume[i].Volume > *withVolume[j].Volume })
	a.TopVolume = top(withVolume)

	return a
}

func top(quotes []consolidate.Quote) []consolidate.Quote {
	if len(quotes) > topN {
		quotes = quotes[:topN]
	}
	out := make([]consolidate.Quote, len(quotes))
	copy(out, quotes)
	return out
}
