package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"quotecore/pkg/market"
	"quotecore/pkg/symbol"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, opts ...ProviderOption) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(WithBaseURL(server.URL))
	return NewProvider(append([]ProviderOption{WithClient(client)}, opts...)...)
}

func cryptoRef(code string) symbol.Ref {
	return symbol.Ref{Market: symbol.MarketCrypto, Code: code, VsCurrency: "USDT"}
}

func TestFetchQuotePairsWithVsCurrency(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"symbol":"BTCUSDT","lastPrice":"97000.10","priceChange":"1200.50","priceChangePercent":"1.25","openPrice":"95800.00","highPrice":"97500.00","lowPrice":"95500.00","prevClosePrice":"95799.60","volume":"12345.6","quoteVolume":"1.19e9","closeTime":1704240000000}`)
	})

	quote, err := p.FetchQuote(context.Background(), cryptoRef("BTC"))
	require.NoError(t, err)
	require.InDelta(t, 97000.10, quote.Price, 1e-9)
	require.InDelta(t, 1.25, quote.ChangePct, 1e-9)
	require.Equal(t, int64(1704240000), quote.Timestamp.Unix())
}

func TestFetchQuoteDefaultVsCurrency(t *testing.T) {
	var pair string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		pair = r.URL.Query().Get("symbol")
		fmt.Fprint(w, `{"symbol":"ETHBUSD","lastPrice":"3500.00","closeTime":1704240000000}`)
	}, WithDefaultVsCurrency("BUSD"))

	ref := symbol.Ref{Market: symbol.MarketCrypto, Code: "ETH"}
	_, err := p.FetchQuote(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, "ETHBUSD", pair)
}

func TestFetchQuoteUnknownPair(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	})

	_, err := p.FetchQuote(context.Background(), cryptoRef("NOPE"))
	require.ErrorIs(t, err, market.ErrNotFound)
}

func TestFetchQuoteRateLimited(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"code":-1003,"msg":"Too many requests."}`)
	})

	_, err := p.FetchQuote(context.Background(), cryptoRef("BTC"))
	require.ErrorIs(t, err, market.ErrRateLimited)
	require.False(t, market.Retryable(err))
}

func TestFetchSeries(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/klines", r.URL.Path)
		require.Equal(t, "1d", r.URL.Query().Get("interval"))
		require.Equal(t, "3", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `[
			[1704153600000,"96000.0","96500.0","95000.0","95800.0","1000.5",1704239999999],
			[1704240000000,"95800.0","97500.0","95500.0","97000.1","1200.7",1704326399999]
		]`)
	})

	series, err := p.FetchSeries(context.Background(), cryptoRef("BTC"), market.SeriesQuery{Period: market.PeriodDaily, Limit: 3})
	require.NoError(t, err)
	require.Len(t, series.Bars, 2)
	require.True(t, series.Bars[1].Timestamp.After(series.Bars[0].Timestamp))
	require.InDelta(t, 97000.1, series.Bars[1].Close, 1e-9)
	require.InDelta(t, 1000.5, series.Bars[0].Volume, 1e-9)
}

func TestFetchSeriesHourlyInterval(t *testing.T) {
	var interval string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		interval = r.URL.Query().Get("interval")
		fmt.Fprint(w, `[[1704240000000,"1.0","1.1","0.9","1.05","10.0",1704243599999]]`)
	})

	_, err := p.FetchSeries(context.Background(), cryptoRef("SOL"), market.SeriesQuery{Period: market.PeriodHourly, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, "1h", interval)
}
