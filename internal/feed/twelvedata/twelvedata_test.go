package twelvedata_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"stockfeed/internal/feed"
	"stockfeed/internal/feed/twelvedata"
	"stockfeed/internal/httpx"
)

func newProvider(t *testing.T, handler http.HandlerFunc, key string) *twelvedata.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := httpx.New(httpx.Config{MaxAttempts: 1})
	return twelvedata.New(twelvedata.Config{BaseURL: srv.URL, APIKey: key}, client, nil)
}

func TestFetch(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		require.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		require.Equal(t, "c0ffee", r.URL.Query().Get("apikey"))
		w.Write([]byte(`{
			"symbol": "AAPL",
			"open": "149.50",
			"high": "151.00",
			"low": "149.00",
			"close": "150.25",
			"volume": "48210000",
			"change": "1.25",
			"percent_change": "0.8389",
			"timestamp": 1717171717
		}`))
	}, "c0ffee")

	records, err := p.Fetch(t.Context(), []string{"AAPL"})

	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]
	require.Equal(t, "twelvedata", r.Source)
	require.InDelta(t, 150.25, *r.Price, 1e-9)
	require.InDelta(t, 1.25, *r.Change, 1e-9)
	require.InDelta(t, 0.8389, *r.ChangePercent, 1e-9)
	require.EqualValues(t, 48210000, *r.Volume)
	require.EqualValues(t, 1717171717, r.Timestamp.Unix())
	require.Equal(t, feed.StatusActive, p.Status())
}

func TestFetchErrorPayloadSkipped(t *testing.T) {
	t.Parallel()

	// Twelve Data signals per-symbol rejection in the payload, not the
	// HTTP status.
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "NOPE" {
			w.Write([]byte(`{"code": 404, "message": "symbol not found", "status": "error"}`))
			return
		}
		w.Write([]byte(`{"symbol": "AAPL", "close": "150.25"}`))
	}, "c0ffee")

	records, err := p.Fetch(t.Context(), []string{"AAPL", "NOPE"})

	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "AAPL", records[0].Symbol)
}

func TestFetchNoKey(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected without a key")
	}, "")

	_, err := p.Fetch(t.Context(), []string{"AAPL"})

	require.ErrorIs(t, err, feed.ErrMissingKey)
	require.Equal(t, feed.StatusNoKey, p.Status())
}

func TestFetchRateLimitedKeepsStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol": "AAPL", "close": "150.25"}`))
	}))
	t.Cleanup(srv.Close)
	client := httpx.New(httpx.Config{MaxAttempts: 1})
	p := twelvedata.New(twelvedata.Config{BaseURL: srv.URL, APIKey: "c0ffee", MaxCallsPerMinute: 1}, client, nil)

	_, err := p.Fetch(t.Context(), []string{"AAPL"})
	require.NoError(t, err)
	require.Equal(t, feed.StatusActive, p.Status())

	_, err = p.Fetch(t.Context(), []string{"AAPL"})
	require.ErrorIs(t, err, httpx.ErrRateLimited)
	require.Equal(t, feed.StatusActive, p.Status())
}

func TestFetchAllSymbolsFailing(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}, "c0ffee")

	_, err := p.Fetch(t.Context(), []string{"AAPL"})

	require.Error(t, err)
	require.Equal(t, feed.StatusError, p.Status())
}
