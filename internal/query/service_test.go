package query

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quotecore/internal/cache"
	"quotecore/internal/config"
	"quotecore/internal/svc"
	"quotecore/pkg/market"
	"quotecore/pkg/market/dispatch"
	"quotecore/pkg/symbol"
)

type fakeProvider struct {
	quoteCalls  atomic.Int64
	seriesCalls atomic.Int64
	quoteFn     func(ctx context.Context, ref symbol.Ref) (*market.Quote, error)
	seriesFn    func(ctx context.Context, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error)
}

func (f *fakeProvider) FetchQuote(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
	f.quoteCalls.Add(1)
	q, err := f.quoteFn(ctx, ref)
	if err != nil {
		return nil, err
	}
	q.FillDerived()
	return q, nil
}

func (f *fakeProvider) FetchSeries(ctx context.Context, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error) {
	f.seriesCalls.Add(1)
	return f.seriesFn(ctx, ref, q)
}

func testConfig() config.Config {
	cfg := config.Config{
		Env: "test",
		TTL: config.CacheTTL{Quote: 60, Intraday: 60, Daily: 300, LongTerm: 1800, Negative: 15},
		Query: config.QueryConf{
			DefaultPeriod: "daily",
			DefaultLimit:  100,
			MaxRecords:    map[string]int{"daily": 50},
		},
		Dispatch: config.DispatchConf{MaxRetries: 0, MaxInFlight: 3, DefaultTimeout: 5},
		Features: config.FeatureConf{
			AutoCorrect:  true,
			USStock:      true,
			HKStock:      true,
			Crypto:       true,
			PreferCrypto: true,
		},
		Crypto: config.CryptoConf{DefaultVsCurrency: "USDT"},
	}
	return cfg
}

func newTestService(t *testing.T, cfg config.Config, provider market.Provider, markets ...symbol.Market) *Service {
	t.Helper()

	registry := market.NewRegistry()
	if provider != nil {
		registry.Register("fake", provider, markets...)
	}
	store, err := cache.NewStore(cache.NewTTLSet(cfg.TTL))
	require.NoError(t, err)

	return NewService(&svc.ServiceContext{
		Config:     cfg,
		Normalizer: symbol.NewNormalizer(cfg.SymbolOptions()),
		Registry:   registry,
		Dispatcher: dispatch.New(
			dispatch.WithPolicy(dispatch.Policy{MaxRetries: cfg.Dispatch.MaxRetries, InitialBackoff: time.Millisecond}),
			dispatch.WithDefaultTimeout(cfg.DefaultTimeout()),
		),
		Cache: store,
	})
}

func TestQuoteResolvesAndCaches(t *testing.T) {
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		require.Equal(t, "600000", ref.Code)
		return &market.Quote{Ref: ref, Name: "浦发银行", Price: 12.34, PrevClose: 12.00}, nil
	}
	s := newTestService(t, testConfig(), provider, symbol.MarketASH)

	res, err := s.Quote(context.Background(), "600000")
	require.NoError(t, err)
	require.True(t, res.Corrected)
	require.Equal(t, "600000.SH", res.Canonical)
	require.Equal(t, "fake", res.Provider)
	require.InDelta(t, 12.34, res.Quote.Price, 1e-9)
	require.InDelta(t, 0.34, res.Quote.Change, 1e-9)

	res2, err := s.Quote(context.Background(), "600000.SH")
	require.NoError(t, err)
	require.False(t, res2.Corrected)
	require.InDelta(t, 12.34, res2.Quote.Price, 1e-9)
	require.Equal(t, int64(1), provider.quoteCalls.Load(), "second lookup must hit the cache")
}

func TestConcurrentQuoteMissesShareOneFetch(t *testing.T) {
	gate := make(chan struct{})
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		<-gate
		return &market.Quote{Ref: ref, Price: 12.34, PrevClose: 12.00}, nil
	}
	s := newTestService(t, testConfig(), provider, symbol.MarketASH)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*QuoteResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Quote(context.Background(), "600000.SH")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, int64(1), provider.quoteCalls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.InDelta(t, 12.34, results[i].Quote.Price, 1e-9)
		require.InDelta(t, 0.34, results[i].Quote.Change, 1e-9)
	}
}

func TestQuoteInvalidInput(t *testing.T) {
	s := newTestService(t, testConfig(), nil)

	_, err := s.Quote(context.Background(), "!!!")
	require.ErrorIs(t, err, market.ErrInvalidSymbol)
	require.Contains(t, s.FailureMessage("!!!", err), "not a recognised symbol")
}

func TestQuoteNegativeCaching(t *testing.T) {
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		return nil, fmt.Errorf("%w: %s", market.ErrNotFound, ref.Canonical())
	}
	s := newTestService(t, testConfig(), provider, symbol.MarketASZ)

	_, err := s.Quote(context.Background(), "000404")
	require.ErrorIs(t, err, market.ErrNotFound)
	_, err = s.Quote(context.Background(), "000404")
	require.ErrorIs(t, err, market.ErrNotFound)
	require.Equal(t, int64(1), provider.quoteCalls.Load(), "repeated misses must be served from the negative cache")
}

func TestQuoteDisabledMarket(t *testing.T) {
	cfg := testConfig()
	cfg.Features.USStock = false
	s := newTestService(t, cfg, nil)

	_, err := s.Quote(context.Background(), "AAPL.US")
	require.ErrorIs(t, err, market.ErrDisabled)
}

func TestQuoteUnroutedMarket(t *testing.T) {
	s := newTestService(t, testConfig(), nil)

	_, err := s.Quote(context.Background(), "600000.SH")
	require.ErrorIs(t, err, market.ErrDisabled)
}

func risingBars(n int) []market.Bar {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		price := 10 + 0.1*float64(i)
		bars[i] = market.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      price - 0.05,
			High:      price + 0.1,
			Low:       price - 0.1,
			Close:     price,
			Volume:    1000 + float64(i),
		}
	}
	return bars
}

func TestSeriesDefaultsAndClamp(t *testing.T) {
	provider := &fakeProvider{}
	var gotQuery market.SeriesQuery
	provider.seriesFn = func(ctx context.Context, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error) {
		gotQuery = q
		return &market.Series{Ref: ref, Period: q.Period, Bars: risingBars(q.Limit), RequestedLimit: q.Limit}, nil
	}
	s := newTestService(t, testConfig(), provider, symbol.MarketASH)

	res, err := s.Series(context.Background(), "600000", SeriesOptions{Limit: 200})
	require.NoError(t, err)
	require.Equal(t, market.PeriodDaily, gotQuery.Period)
	require.Equal(t, 50, gotQuery.Limit, "per-period ceiling must cap the request")
	require.Len(t, res.Series.Bars, 50)

	_, err = s.Series(context.Background(), "600000", SeriesOptions{Period: "weekly"})
	require.NoError(t, err)
	require.Equal(t, market.PeriodWeekly, gotQuery.Period)
	require.Equal(t, 100, gotQuery.Limit, "uncapped period takes the config default")
}

func TestSeriesComputesIndicators(t *testing.T) {
	provider := &fakeProvider{}
	provider.seriesFn = func(ctx context.Context, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error) {
		return &market.Series{Ref: ref, Period: q.Period, Bars: risingBars(40), RequestedLimit: q.Limit}, nil
	}
	s := newTestService(t, testConfig(), provider, symbol.MarketASH)

	res, err := s.Series(context.Background(), "600000", SeriesOptions{WithIndicators: true})
	require.NoError(t, err)
	require.NotNil(t, res.Indicators)

	last := len(res.Series.Bars) - 1
	ma5 := res.Indicators.MA[5]
	require.Len(t, ma5, len(res.Series.Bars))
	require.False(t, math.IsNaN(ma5[last]))
	require.True(t, math.IsNaN(ma5[3]), "MA5 must be absent before its window fills")
	require.Len(t, res.Indicators.KDJ.K, len(res.Series.Bars))
}

func TestSeriesCachesPerPeriodAndLimit(t *testing.T) {
	provider := &fakeProvider{}
	provider.seriesFn = func(ctx context.Context, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error) {
		return &market.Series{Ref: ref, Period: q.Period, Bars: risingBars(10), RequestedLimit: q.Limit}, nil
	}
	s := newTestService(t, testConfig(), provider, symbol.MarketASH)

	_, err := s.Series(context.Background(), "600000", SeriesOptions{Limit: 10})
	require.NoError(t, err)
	_, err = s.Series(context.Background(), "600000", SeriesOptions{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), provider.seriesCalls.Load())

	_, err = s.Series(context.Background(), "600000", SeriesOptions{Period: "weekly", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(2), provider.seriesCalls.Load(), "another period is another cache entry")
}

func TestSeriesExplicitWindow(t *testing.T) {
	provider := &fakeProvider{}
	var gotQuery market.SeriesQuery
	provider.seriesFn = func(ctx context.Context, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error) {
		gotQuery = q
		return &market.Series{Ref: ref, Period: q.Period, Bars: risingBars(5), RequestedLimit: q.Limit}, nil
	}
	s := newTestService(t, testConfig(), provider, symbol.MarketASH)

	_, err := s.Series(context.Background(), "600000", SeriesOptions{Limit: 10})
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.Series(context.Background(), "600000", SeriesOptions{Limit: 10, Start: start, End: end})
	require.NoError(t, err)
	require.Equal(t, int64(2), provider.seriesCalls.Load(), "a windowed query is not the unwindowed cache entry")
	require.Equal(t, start, gotQuery.Start)
	require.Equal(t, end, gotQuery.End)
}

func TestQuoteCryptoRouting(t *testing.T) {
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		require.Equal(t, symbol.MarketCrypto, ref.Market)
		require.Equal(t, "BTCUSDT", ref.Pair())
		return &market.Quote{Ref: ref, Price: 97000}, nil
	}
	s := newTestService(t, testConfig(), provider, symbol.MarketCrypto)

	res, err := s.Quote(context.Background(), "btc")
	require.NoError(t, err)
	require.Equal(t, "BTC", res.Canonical)
	require.InDelta(t, 97000, res.Quote.Price, 1e-9)
}
