package analytics_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"stockfeed/internal/analytics"
	"stockfeed/internal/consolidate"
	"stockfeed/internal/feed"
)

func quote(symbol string, change float64) consolidate.Quote {
	return consolidate.Quote{
		Symbol: symbol,
		Price:  feed.Float64(100 + change),
		Change: change,
	}
}

func TestAnalyzeCountsAndSentiment(t *testing.T) {
	t.Parallel()

	// Arrange: four gainers, four losers, two unchanged; the average
	// change is slightly positive.
	changes := []float64{1, 2, -1, -3, 0, 4, -2, 1, -1, 0}
	quotes := make([]consolidate.Quote, 0, len(changes))
	for i, c := range changes {
		quotes = append(quotes, quote(fmt.Sprintf("S%02d", i), c))
	}

	// Act.
	a := analytics.Analyze(quotes)

	// Assert.
	require.Equal(t, 10, a.TotalStocks)
	require.Equal(t, 4, a.Gainers)
	require.Equal(t, 4, a.Losers)
	require.Equal(t, 2, a.Unchanged)
	require.InDelta(t, 0.1, a.AvgChange, 1e-9)
	require.Equal(t, analytics.SentimentBullish, a.Sentiment)
}

func TestAnalyzeBearish(t *testing.T) {
	t.Parallel()

	a := analytics.Analyze([]consolidate.Quote{
		quote("A", -2),
		quote("B", 0.5),
	})

	require.Equal(t, analytics.SentimentBearish, a.Sentiment)
	require.InDelta(t, -0.75, a.AvgChange, 1e-9)
}

func TestAnalyzeNeutralOnExactZero(t *testing.T) {
	t.Parallel()

	a := analytics.Analyze([]consolidate.Quote{
		quote("A", 1),
		quote("B", -1),
	})

	require.Equal(t, analytics.SentimentNeutral, a.Sentiment)
	require.Zero(t, a.AvgChange)
}

func TestAnalyzeEmptyUniverse(t *testing.T) {
	t.Parallel()

	a := analytics.Analyze(nil)

	require.Zero(t, a.TotalStocks)
	require.Zero(t, a.AvgChange)
	require.Equal(t, analytics.SentimentNeutral, a.Sentiment)
	require.Empty(t, a.TopGainers)
	require.Empty(t, a.TopLosers)
	require.Empty(t, a.TopVolume)
}

func TestAnalyzeTopGainersOrderedAndCapped(t *testing.T) {
	t.Parallel()

	quotes := []consolidate.Quote{
		quote("A", 1), quote("B", 7), quote("C", 3), quote("D", 5),
		quote("E", 2), quote("F", 6), quote("G", 4), quote("H", -1),
	}

	a := analytics.Analyze(quotes)

	require.Len(t, a.TopGainers, 5)
	require.Equal(t, "B", a.TopGainers[0].Symbol)
	require.Equal(t, "F", a.TopGainers[1].Symbol)
	require.Equal(t, "D", a.TopGainers[2].Symbol)
	require.Equal(t, "G", a.TopGainers[3].Symbol)
	require.Equal(t, "C", a.TopGainers[4].Symbol)
}

func TestAnalyzeTopLosersOrderedByMostNegative(t *testing.T) {
	t.Parallel()

	a := analytics.Analyze([]consolidate.Quote{
		quote("A", -1), quote("B", -5), quote("C", 2), quote("D", -3),
	})

	require.Len(t, a.TopLosers, 3)
	require.Equal(t, "B", a.TopLosers[0].Symbol)
	require.Equal(t, "D", a.TopLosers[1].Symbol)
	require.Equal(t, "A", a.TopLosers[2].Symbol)
}

func TestAnalyzeTopVolumeSkipsUnreported(t *testing.T) {
	t.Parallel()

	withVol := quote("A", 1)
	withVol.Volume = feed.Int64(5_000_000)
	bigger := quote("B", -1)
	bigger.Volume = feed.Int64(9_000_000)
	noVol := quote("C", 2)

	a := analytics.Analyze([]consolidate.Quote{withVol, noVol, bigger})

	require.Len(t, a.TopVolume, 2)
	require.Equal(t, "B", a.TopVolume[0].Symbol)
	require.Equal(t, "A", a.TopVolume[1].Symbol)
}

func TestAnalyzeUnchangedExcludedFromTops(t *testing.T) {
	t.Parallel()

	a := analytics.Analyze([]consolidate.Quote{
		quote("A", 0), quote("B", 0),
	})

	require.Equal(t, 2, a.Unchanged)
	require.Empty(t, a.TopGainers)
	require.Empty(t, a.TopLosers)
}
