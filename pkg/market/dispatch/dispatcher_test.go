package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quotecore/pkg/market"
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
	return f.quoteFn(ctx, ref)
}

func (f *fakeProvider) FetchSeries(ctx context.Context, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error) {
	f.seriesCalls.Add(1)
	return f.seriesFn(ctx, ref, q)
}

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func shRef(code string) symbol.Ref {
	return symbol.Ref{Market: symbol.MarketASH, Code: code}
}

func TestQuoteRetriesTransientFailures(t *testing.T) {
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		if provider.quoteCalls.Load() < 3 {
			return nil, fmt.Errorf("%w: flaky", market.ErrUpstream)
		}
		return &market.Quote{Ref: ref, Price: 12.34}, nil
	}

	d := New(WithPolicy(fastPolicy(2)))
	quote, err := d.Quote(context.Background(), "eastmoney", provider, shRef("600000"))
	require.NoError(t, err)
	require.InDelta(t, 12.34, quote.Price, 1e-9)
	require.Equal(t, int64(3), provider.quoteCalls.Load())
}

func TestQuoteExhaustsRetryBudget(t *testing.T) {
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		return nil, fmt.Errorf("%w: still down", market.ErrUpstream)
	}

	d := New(WithPolicy(fastPolicy(2)))
	_, err := d.Quote(context.Background(), "eastmoney", provider, shRef("600000"))
	require.ErrorIs(t, err, market.ErrExhausted)
	require.ErrorIs(t, err, market.ErrUpstream)
	require.Equal(t, int64(3), provider.quoteCalls.Load())
}

func TestQuoteDoesNotRetryNotFound(t *testing.T) {
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		return nil, fmt.Errorf("%w: 600000.SH", market.ErrNotFound)
	}

	d := New(WithPolicy(fastPolicy(3)))
	_, err := d.Quote(context.Background(), "eastmoney", provider, shRef("600000"))
	require.ErrorIs(t, err, market.ErrNotFound)
	require.NotErrorIs(t, err, market.ErrExhausted)
	require.Equal(t, int64(1), provider.quoteCalls.Load())
}

func TestQuoteDoesNotRetryRateLimit(t *testing.T) {
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		return nil, fmt.Errorf("%w: slow down", market.ErrRateLimited)
	}

	d := New(WithPolicy(fastPolicy(3)))
	_, err := d.Quote(context.Background(), "eastmoney", provider, shRef("600000"))
	require.ErrorIs(t, err, market.ErrRateLimited)
	require.Equal(t, int64(1), provider.quoteCalls.Load())
}

func TestQuoteAttemptTimeout(t *testing.T) {
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	d := New(WithPolicy(fastPolicy(1)), WithDefaultTimeout(10*time.Millisecond))
	_, err := d.Quote(context.Background(), "eastmoney", provider, shRef("600000"))
	require.ErrorIs(t, err, market.ErrExhausted)
	require.ErrorIs(t, err, market.ErrTimeout)
	require.Equal(t, int64(2), provider.quoteCalls.Load())
}

func TestQuoteMarketTimeoutOverride(t *testing.T) {
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		require.LessOrEqual(t, time.Until(deadline), 50*time.Millisecond)
		return &market.Quote{Ref: ref, Price: 1}, nil
	}

	d := New(
		WithDefaultTimeout(time.Minute),
		WithMarketTimeout(symbol.MarketASH, 50*time.Millisecond),
	)
	_, err := d.Quote(context.Background(), "eastmoney", provider, shRef("600000"))
	require.NoError(t, err)
}

func TestCallerCancelSurfacesAsCanceled(t *testing.T) {
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	d := New(WithPolicy(fastPolicy(2)), WithDefaultTimeout(time.Minute))
	_, err := d.Quote(ctx, "eastmoney", provider, shRef("600000"))
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, market.ErrUpstream)
	require.NotErrorIs(t, err, market.ErrExhausted)
	require.Equal(t, int64(1), provider.quoteCalls.Load())
}

func TestConcurrentQuotesShareOneUpstreamCall(t *testing.T) {
	gate := make(chan struct{})
	provider := &fakeProvider{}
	provider.quoteFn = func(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
		<-gate
		return &market.Quote{Ref: ref, Price: 9.87}, nil
	}

	d := New(WithPolicy(fastPolicy(0)))
	ref := shRef("600000")

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*market.Quote, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Quote(context.Background(), "eastmoney", provider, ref)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.InDelta(t, 9.87, results[i].Price, 1e-9)
	}
	require.Equal(t, int64(1), provider.quoteCalls.Load())
}

func TestPerProviderInFlightCap(t *testing.T) {
	var inFlight, peak atomic.Int64
	provider := &fakeProvider{}
	provider.seriesFn = func(ctx context.Context, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error) {
		cur := inFlight.Add(1)
		for {
			prev := peak.Load()
			if cur <= prev || peak.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return &market.Series{Ref: ref, Period: q.Period}, nil
	}

	d := New(WithMaxInFlight(2))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := shRef(fmt.Sprintf("60000%d", i))
			_, err := d.Series(context.Background(), "eastmoney", provider, ref, market.SeriesQuery{Period: market.PeriodDaily, Limit: 10})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(6), provider.seriesCalls.Load())
	require.LessOrEqual(t, peak.Load(), int64(2))
}

func TestSeriesKeyIncludesPeriodAndLimit(t *testing.T) {
	gate := make(chan struct{})
	provider := &fakeProvider{}
	provider.seriesFn = func(ctx context.Context, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error) {
		<-gate
		return &market.Series{Ref: ref, Period: q.Period, RequestedLimit: q.Limit}, nil
	}

	d := New()
	ref := shRef("600000")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := d.Series(context.Background(), "eastmoney", provider, ref, market.SeriesQuery{Period: market.PeriodDaily, Limit: 30})
		require.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := d.Series(context.Background(), "eastmoney", provider, ref, market.SeriesQuery{Period: market.PeriodWeekly, Limit: 30})
		require.NoError(t, err)
	}()

	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	// Distinct periods must not collapse into one upstream call.
	require.Equal(t, int64(2), provider.seriesCalls.Load())
}
