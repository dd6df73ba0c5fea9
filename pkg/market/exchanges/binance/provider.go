package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"quotecore/pkg/market"
	"quotecore/pkg/symbol"
)

// Provider maps Binance spot payloads onto the canonical market contract.
type Provider struct {
	client            *Client
	defaultVsCurrency string
}

// ProviderOption customises the Binance provider.
type ProviderOption func(*Provider)

// WithClient injects a custom client.
func WithClient(client *Client) ProviderOption {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithDefaultVsCurrency sets the quote currency used when a ref carries none.
func WithDefaultVsCurrency(vs string) ProviderOption {
	return func(p *Provider) {
		if vs != "" {
			p.defaultVsCurrency = vs
		}
	}
}

// NewProvider constructs a Binance market provider.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		client:            NewClient(),
		defaultVsCurrency: "USDT",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	market.RegisterProvider("binance", func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		clientOpts := []Option{}
		if cfg.BaseURL != "" {
			clientOpts = append(clientOpts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPTimeout > 0 {
			clientOpts = append(clientOpts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		return NewProvider(WithClient(NewClient(clientOpts...))), nil
	})
}

// intervals maps series periods onto Binance kline intervals. Minutely uses
// five-minute bars, the original bot's default minute granularity.
var intervals = map[market.Period]string{
	market.PeriodDaily:    "1d",
	market.PeriodWeekly:   "1w",
	market.PeriodMonthly:  "1M",
	market.PeriodHourly:   "1h",
	market.PeriodMinutely: "5m",
}

// pair renders the trading pair, falling back to the provider default
// quote currency: BTC -> BTCUSDT.
func (p *Provider) pair(ref symbol.Ref) string {
	vs := ref.VsCurrency
	if vs == "" {
		vs = p.defaultVsCurrency
	}
	return ref.Code + vs
}

// FetchQuote implements market.Provider.
func (p *Provider) FetchQuote(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
	ticker, err := p.client.getTicker(ctx, p.pair(ref))
	if err != nil {
		return nil, err
	}

	quote := &market.Quote{
		Ref:       ref,
		Name:      ticker.Symbol,
		Price:     atof(ticker.LastPrice),
		Open:      atof(ticker.OpenPrice),
		High:      atof(ticker.HighPrice),
		Low:       atof(ticker.LowPrice),
		PrevClose: atof(ticker.PrevClosePrice),
		Change:    atof(ticker.PriceChange),
		ChangePct: atof(ticker.PriceChangePercent),
		Volume:    atof(ticker.Volume),
		Amount:    atof(ticker.QuoteVolume),
		Timestamp: time.Now(),
	}
	if ticker.CloseTime > 0 {
		quote.Timestamp = time.UnixMilli(ticker.CloseTime)
	}
	if quote.Price == 0 {
		return nil, fmt.Errorf("%w: %s", market.ErrNotFound, p.pair(ref))
	}
	quote.FillDerived()
	return quote, nil
}

// FetchSeries implements market.Provider.
func (p *Provider) FetchSeries(ctx context.Context, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error) {
	interval, ok := intervals[q.Period]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported period %q", market.ErrInvalidSymbol, q.Period)
	}

	rows, err := p.client.getKlines(ctx, p.pair(ref), interval, q.Limit, q.Start, q.End)
	if err != nil {
		return nil, err
	}

	bars := make([]market.Bar, 0, len(rows))
	for _, row := range rows {
		bar, ok := parseKlineRow(row)
		if !ok {
			continue
		}
		bars = append(bars, bar)
	}
	bars = market.NormalizeBars(bars, q.Limit)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", market.ErrNotFound, p.pair(ref))
	}
	return &market.Series{
		Ref:            ref,
		Period:         q.Period,
		Bars:           bars,
		RequestedLimit: q.Limit,
	}, nil
}

// parseKlineRow decodes one exchange kline row:
// [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlineRow(row []any) (market.Bar, bool) {
	if len(row) < 6 {
		return market.Bar{}, false
	}
	openMs, ok := asInt64(row[0])
	if !ok {
		return market.Bar{}, false
	}
	return market.Bar{
		Timestamp: time.UnixMilli(openMs),
		Open:      asFloat(row[1]),
		High:      asFloat(row[2]),
		Low:       asFloat(row[3]),
		Close:     asFloat(row[4]),
		Volume:    asFloat(row[5]),
	}, true
}

func asInt64(v any) (int64, bool) {
	n, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(n), true
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case string:
		return atof(n)
	case float64:
		return n
	default:
		return 0
	}
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
