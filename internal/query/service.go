// Package query is the read facade: it resolves raw user input to an
// instrument, serves from cache when fresh, and otherwise routes the fetch
// through the coordinator before deriving indicators.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"quotecore/internal/cache"
	"quotecore/internal/svc"
	"quotecore/pkg/market"
	"quotecore/pkg/market/indicators"
	"quotecore/pkg/symbol"
)

// Service answers quote and history queries. Safe for concurrent use.
type Service struct {
	svcCtx *svc.ServiceContext
}

func NewService(svcCtx *svc.ServiceContext) *Service {
	return &Service{svcCtx: svcCtx}
}

// QuoteResult carries a quote plus how the input resolved.
type QuoteResult struct {
	Quote     *market.Quote
	Canonical string
	Corrected bool
	Provider  string
}

// SeriesOptions tune a history query. Zero values take config defaults.
type SeriesOptions struct {
	Period         string
	Limit          int
	Start          time.Time
	End            time.Time
	WithIndicators bool
}

// SeriesResult carries the bars, optional derived indicators, and how the
// input resolved.
type SeriesResult struct {
	Series     *market.Series
	Indicators *indicators.Set
	Canonical  string
	Corrected  bool
	Provider   string
}

// Quote resolves raw input and returns its latest quote.
func (s *Service) Quote(ctx context.Context, raw string) (*QuoteResult, error) {
	ref, corrected, err := s.resolve(ctx, raw)
	if err != nil {
		return nil, err
	}

	canonical := ref.Canonical()
	key := cache.QuoteKey(canonical)
	if cached, ok := s.svcCtx.Cache.Get(key); ok {
		if cached.Err != nil {
			return nil, cached.Err
		}
		res := cached.Value.(*QuoteResult)
		return &QuoteResult{
			Quote:     res.Quote,
			Canonical: canonical,
			Corrected: corrected,
			Provider:  res.Provider,
		}, nil
	}

	provider, providerName, err := s.svcCtx.Registry.ForMarket(ref.Market)
	if err != nil {
		return nil, err
	}

	quote, err := s.svcCtx.Dispatcher.Quote(ctx, providerName, provider, ref)
	if err != nil {
		s.remember(ctx, key, canonical, err)
		return nil, err
	}

	res := &QuoteResult{
		Quote:     quote,
		Canonical: canonical,
		Corrected: corrected,
		Provider:  providerName,
	}
	s.svcCtx.Cache.Put(key, res, s.svcCtx.Cache.TTLs().Quote)
	return res, nil
}

// Series resolves raw input and returns its historical bars, oldest first.
func (s *Service) Series(ctx context.Context, raw string, opts SeriesOptions) (*SeriesResult, error) {
	ref, corrected, err := s.resolve(ctx, raw)
	if err != nil {
		return nil, err
	}

	period, err := market.ParsePeriod(opts.Period, s.svcCtx.Config.DefaultPeriod())
	if err != nil {
		return nil, err
	}
	limit := s.clampLimit(period, opts.Limit)

	canonical := ref.Canonical()
	key := cache.SeriesRangeKey(canonical, period, limit, opts.Start, opts.End)

	var series *market.Series
	var providerName string
	if cached, ok := s.svcCtx.Cache.Get(key); ok {
		if cached.Err != nil {
			return nil, cached.Err
		}
		res := cached.Value.(*SeriesResult)
		series, providerName = res.Series, res.Provider
	} else {
		provider, name, err := s.svcCtx.Registry.ForMarket(ref.Market)
		if err != nil {
			return nil, err
		}
		series, err = s.svcCtx.Dispatcher.Series(ctx, name, provider, ref, market.SeriesQuery{
			Period: period,
			Limit:  limit,
			Start:  opts.Start,
			End:    opts.End,
		})
		if err != nil {
			s.remember(ctx, key, canonical, err)
			return nil, err
		}
		providerName = name
		s.svcCtx.Cache.Put(key, &SeriesResult{
			Series:    series,
			Canonical: canonical,
			Provider:  providerName,
		}, s.svcCtx.Cache.TTLs().ForSeries(period))
	}

	res := &SeriesResult{
		Series:    series,
		Canonical: canonical,
		Corrected: corrected,
		Provider:  providerName,
	}
	if opts.WithIndicators {
		res.Indicators = indicators.ComputeSet(toKlines(series), indicators.DefaultSetConfig())
	}
	return res, nil
}

// FailureMessage renders err as a short user-facing line for canonical.
func (s *Service) FailureMessage(canonical string, err error) string {
	return market.FailureMessage(canonical, err)
}

// resolve normalizes raw input and applies the market feature gates.
func (s *Service) resolve(ctx context.Context, raw string) (symbol.Ref, bool, error) {
	ref, corrected, err := s.svcCtx.Normalizer.Normalize(raw)
	if err != nil {
		if errors.Is(err, symbol.ErrInvalidSymbol) {
			return symbol.Ref{}, false, fmt.Errorf("%w: %v", market.ErrInvalidSymbol, err)
		}
		return symbol.Ref{}, false, err
	}
	if corrected {
		logx.WithContext(ctx).Infof("symbol %q corrected to %s", raw, ref.Canonical())
	}

	features := s.svcCtx.Config.Features
	switch ref.Market {
	case symbol.MarketUS:
		if !features.USStock {
			return symbol.Ref{}, false, fmt.Errorf("%w: US market", market.ErrDisabled)
		}
	case symbol.MarketHK:
		if !features.HKStock {
			return symbol.Ref{}, false, fmt.Errorf("%w: HK market", market.ErrDisabled)
		}
	case symbol.MarketCrypto:
		if !features.Crypto {
			return symbol.Ref{}, false, fmt.Errorf("%w: crypto market", market.ErrDisabled)
		}
		if !s.svcCtx.Config.SupportedVsCurrency(ref.VsCurrency) {
			return symbol.Ref{}, false, fmt.Errorf("%w: unsupported quote currency %q", market.ErrInvalidSymbol, ref.VsCurrency)
		}
	}
	return ref, corrected, nil
}

// clampLimit applies the config default and per-period ceiling.
func (s *Service) clampLimit(period market.Period, limit int) int {
	if limit <= 0 {
		limit = s.svcCtx.Config.Query.DefaultLimit
	}
	if max, ok := s.svcCtx.Config.MaxRecords()[period]; ok && limit > max {
		limit = max
	}
	return limit
}

// remember negative-caches terminal not-found results and logs the rest.
func (s *Service) remember(ctx context.Context, key, canonical string, err error) {
	if errors.Is(err, market.ErrNotFound) {
		s.svcCtx.Cache.PutNegative(key, err)
		return
	}
	logx.WithContext(ctx).Errorf("fetch %s failed: %v", canonical, err)
}

func toKlines(series *market.Series) []indicators.Kline {
	klines := make([]indicators.Kline, len(series.Bars))
	for i, bar := range series.Bars {
		klines[i] = indicators.Kline{
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		}
	}
	return klines
}
