package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockfeed/internal/aggregator"
	"stockfeed/internal/feed"
)

type stubProvider struct {
	name    string
	status  feed.Status
	records []feed.Record
	key     string
}

func (s *stubProvider) Name() string        { return s.name }
func (s *stubProvider) Status() feed.Status { return s.status }

func (s *stubProvider) Fetch(ctx context.Context, symbols []string) ([]feed.Record, error) {
	return s.records, nil
}

func (s *stubProvider) SetAPIKey(key string) { s.key = key }

func newTestAggregator(t *testing.T) (*aggregator.Aggregator, *stubProvider) {
	t.Helper()
	p := &stubProvider{
		name:   "finnhub",
		status: feed.StatusActive,
		records: []feed.Record{{
			Symbol:    "AAPL",
			Source:    "finnhub",
			Price:     feed.Float64(150.25),
			Change:    feed.Float64(1.25),
			Timestamp: time.Now().UTC(),
		}},
	}
	agg := aggregator.New(aggregator.Config{Symbols: []string{"AAPL"}}, []feed.Provider{p}, nil, nil)
	return agg, p
}

func TestStocksEndpoint(t *testing.T) {
	t.Parallel()

	agg, _ := newTestAggregator(t)
	agg.RunOnce(t.Context())
	router := newRouter(agg, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stocks", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Stocks []struct {
			Symbol string   `json:"symbol"`
			Price  *float64 `json:"price"`
		} `json:"stocks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Stocks, 1)
	require.Equal(t, "AAPL", resp.Stocks[0].Symbol)
	require.InDelta(t, 150.25, *resp.Stocks[0].Price, 1e-9)
}

func TestStocksBeforeFirstCycle(t *testing.T) {
	t.Parallel()

	agg, _ := newTestAggregator(t)
	router := newRouter(agg, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stocks", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAnalysisEndpoint(t *testing.T) {
	t.Parallel()

	agg, _ := newTestAggregator(t)
	agg.RunOnce(t.Context())
	router := newRouter(agg, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analysis", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		TotalStocks int    `json:"totalStocks"`
		Gainers     int    `json:"gainers"`
		Sentiment   string `json:"sentiment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.TotalStocks)
	require.Equal(t, 1, resp.Gainers)
	require.Equal(t, "bullish", resp.Sentiment)
}

func TestProvidersEndpoint(t *testing.T) {
	t.Parallel()

	agg, _ := newTestAggregator(t)
	router := newRouter(agg, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "active", resp["finnhub"])
}

func TestSetKeyEndpoint(t *testing.T) {
	t.Parallel()

	agg, p := newTestAggregator(t)
	router := newRouter(agg, zap.NewNop())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/providers/finnhub/key", strings.NewReader(`{"key":"c0ffee"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "c0ffee", p.key)
}

func TestSetKeyUnknownProvider(t *testing.T) {
	t.Parallel()

	agg, _ := newTestAggregator(t)
	router := newRouter(agg, zap.NewNop())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/providers/nope/key", strings.NewReader(`{"key":"c0ffee"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetKeyMissingBody(t *testing.T) {
	t.Parallel()

	agg, _ := newTestAggregator(t)
	router := newRouter(agg, zap.NewNop())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/providers/finnhub/key", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetIntervalEndpoint(t *testing.T) {
	t.Parallel()

	agg, _ := newTestAggregator(t)
	router := newRouter(agg, zap.NewNop())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/interval", strings.NewReader(`{"interval_ms":15000}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 15*time.Second, agg.Interval())
}

func TestSetIntervalTooSmall(t *testing.T) {
	t.Parallel()

	agg, _ := newTestAggregator(t)
	router := newRouter(agg, zap.NewNop())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/interval", strings.NewReader(`{"interval_ms":100}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamEndpoint(t *testing.T) {
	t.Parallel()

	agg, _ := newTestAggregator(t)
	agg.RunOnce(t.Context())

	srv := httptest.NewServer(newRouter(agg, zap.NewNop()))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	// The last snapshot arrives first.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first aggregator.Update
	require.NoError(t, conn.ReadJSON(&first))
	require.Len(t, first.Stocks, 1)
	require.Equal(t, "AAPL", first.Stocks[0].Symbol)

	// A new cycle produces a fresh event on the same connection.
	agg.RunOnce(t.Context())
	var second aggregator.Update
	require.NoError(t, conn.ReadJSON(&second))
	require.Len(t, second.Stocks, 1)
}
