package eastmoney

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"quotecore/pkg/market"
	"quotecore/pkg/symbol"
)

// Provider maps Eastmoney (and Sina fallback) payloads onto the canonical
// market contract for A-share, Hong Kong, US and index instruments.
type Provider struct {
	client     *Client
	minuteFreq string
}

// ProviderOption customises the Eastmoney provider.
type ProviderOption func(*Provider)

// WithClient injects a custom client.
func WithClient(client *Client) ProviderOption {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithMinuteFreq sets the minute-bar granularity (5, 15, 30 or 60).
func WithMinuteFreq(freq string) ProviderOption {
	return func(p *Provider) {
		if _, ok := minuteKlt[freq]; ok {
			p.minuteFreq = freq
		}
	}
}

// NewProvider constructs an Eastmoney market provider.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		client:     NewClient(),
		minuteFreq: "5",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	market.RegisterProvider("eastmoney", func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		clientOpts := []Option{}
		if cfg.BaseURL != "" {
			clientOpts = append(clientOpts, WithQuoteBaseURL(cfg.BaseURL))
		}
		if cfg.HistoryURL != "" {
			clientOpts = append(clientOpts, WithHistoryBaseURL(cfg.HistoryURL))
		}
		if cfg.FallbackURL != "" {
			clientOpts = append(clientOpts, WithFallbackURL(cfg.FallbackURL))
		}
		if cfg.HTTPTimeout > 0 {
			clientOpts = append(clientOpts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		return NewProvider(WithClient(NewClient(clientOpts...))), nil
	})
}

var minuteKlt = map[string]string{
	"5":  "5",
	"15": "15",
	"30": "30",
	"60": "60",
}

func (p *Provider) klt(period market.Period) (string, error) {
	switch period {
	case market.PeriodDaily:
		return "101", nil
	case market.PeriodWeekly:
		return "102", nil
	case market.PeriodMonthly:
		return "103", nil
	case market.PeriodHourly:
		return "60", nil
	case market.PeriodMinutely:
		return minuteKlt[p.minuteFreq], nil
	default:
		return "", fmt.Errorf("%w: unsupported period %q", market.ErrInvalidSymbol, period)
	}
}

// FetchQuote implements market.Provider.
func (p *Provider) FetchQuote(ctx context.Context, ref symbol.Ref) (*market.Quote, error) {
	var lastErr error
	for _, secid := range secids(ref) {
		data, err := p.client.getQuote(ctx, secid)
		if err != nil {
			lastErr = err
			if errors.Is(err, market.ErrNotFound) {
				continue
			}
			return nil, err
		}
		quote := &market.Quote{
			Ref:       ref,
			Name:      data.Name,
			Price:     data.Price,
			Open:      data.Open,
			High:      data.High,
			Low:       data.Low,
			PrevClose: data.PrevClose,
			Change:    data.Change,
			ChangePct: data.ChangePct,
			Volume:    data.Volume,
			Amount:    data.Amount,
			Timestamp: time.Now(),
		}
		quote.FillDerived()
		return quote, nil
	}

	// The hq fallback only covers mainland symbols.
	if hqSym, ok := hqSymbol(ref); ok && errors.Is(lastErr, market.ErrNotFound) {
		logx.WithContext(ctx).Infof("eastmoney: quote fallback via hq for %s", ref.Canonical())
		return p.hqQuote(ctx, ref, hqSym)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s", market.ErrNotFound, ref.Canonical())
	}
	return nil, lastErr
}

func (p *Provider) hqQuote(ctx context.Context, ref symbol.Ref, hqSym string) (*market.Quote, error) {
	fields, name, err := p.client.hqQuote(ctx, hqSym)
	if err != nil {
		return nil, err
	}

	quote := &market.Quote{
		Ref:       ref,
		Name:      name,
		Open:      parseFloat(fields, 1),
		PrevClose: parseFloat(fields, 2),
		Price:     parseFloat(fields, 3),
		High:      parseFloat(fields, 4),
		Low:       parseFloat(fields, 5),
		Volume:    parseFloat(fields, 8),
		Amount:    parseFloat(fields, 9),
		Timestamp: time.Now(),
	}
	if len(fields) > 31 {
		if ts, err := time.ParseInLocation("2006-01-02 15:04:05", fields[30]+" "+fields[31], time.Local); err == nil {
			quote.Timestamp = ts
		}
	}
	if quote.Price == 0 {
		return nil, fmt.Errorf("%w: %s", market.ErrNotFound, ref.Canonical())
	}
	quote.FillDerived()
	return quote, nil
}

// FetchSeries implements market.Provider.
func (p *Provider) FetchSeries(ctx context.Context, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error) {
	klt, err := p.klt(q.Period)
	if err != nil {
		return nil, err
	}
	if ref.Market != symbol.MarketASH && ref.Market != symbol.MarketASZ && ref.Market != symbol.MarketIndex && q.Period.Intraday() {
		return nil, fmt.Errorf("%w: intraday bars are only available for mainland instruments", market.ErrNotFound)
	}

	beg, end := "0", "20500101"
	if !q.Start.IsZero() {
		beg = q.Start.Format("20060102")
	}
	if !q.End.IsZero() {
		end = q.End.Format("20060102")
	}

	var lastErr error
	for _, secid := range secids(ref) {
		rows, err := p.client.getKlines(ctx, secid, klt, q.Limit, beg, end)
		if err != nil {
			lastErr = err
			if errors.Is(err, market.ErrNotFound) {
				continue
			}
			return nil, err
		}
		return p.buildSeries(ref, q, parseKlineRows(rows))
	}

	// US daily history has a second source; the original bot fell back to
	// Sina when the Eastmoney mapping failed.
	if ref.Market == symbol.MarketUS && q.Period == market.PeriodDaily {
		logx.WithContext(ctx).Infof("eastmoney: history fallback via sina for %s", ref.Canonical())
		rows, err := p.client.fallbackKlines(ctx, "gb_"+strings.ToLower(ref.Code), q.Limit)
		if err != nil {
			return nil, err
		}
		return p.buildSeries(ref, q, parseSinaRows(rows))
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s", market.ErrNotFound, ref.Canonical())
	}
	return nil, lastErr
}

func (p *Provider) buildSeries(ref symbol.Ref, q market.SeriesQuery, bars []market.Bar) (*market.Series, error) {
	bars = market.NormalizeBars(bars, q.Limit)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", market.ErrNotFound, ref.Canonical())
	}
	return &market.Series{
		Ref:            ref,
		Period:         q.Period,
		Bars:           bars,
		RequestedLimit: q.Limit,
	}, nil
}

// parseKlineRows decodes push2his rows: date,open,close,high,low,volume,amount.
func parseKlineRows(rows []string) []market.Bar {
	bars := make([]market.Bar, 0, len(rows))
	for _, row := range rows {
		fields := strings.Split(row, ",")
		if len(fields) < 6 {
			continue
		}
		ts, err := parseBarTime(fields[0])
		if err != nil {
			continue
		}
		bars = append(bars, market.Bar{
			Timestamp: ts,
			Open:      atof(fields[1]),
			Close:     atof(fields[2]),
			High:      atof(fields[3]),
			Low:       atof(fields[4]),
			Volume:    atof(fields[5]),
		})
	}
	return bars
}

func parseSinaRows(rows []sinaKline) []market.Bar {
	bars := make([]market.Bar, 0, len(rows))
	for _, row := range rows {
		ts, err := parseBarTime(row.Day)
		if err != nil {
			continue
		}
		bars = append(bars, market.Bar{
			Timestamp: ts,
			Open:      atof(row.Open),
			High:      atof(row.High),
			Low:       atof(row.Low),
			Close:     atof(row.Close),
			Volume:    atof(row.Volume),
		})
	}
	return bars
}

func parseBarTime(raw string) (time.Time, error) {
	layout := "2006-01-02"
	if len(raw) > 10 {
		layout = "2006-01-02 15:04"
		if len(raw) > 16 {
			layout = "2006-01-02 15:04:05"
		}
	}
	return time.ParseInLocation(layout, raw, time.Local)
}

// hqSymbol renders the Sina hq form for mainland instruments: sh600000.
func hqSymbol(ref symbol.Ref) (string, bool) {
	switch ref.Market {
	case symbol.MarketASH:
		return "sh" + ref.Code, true
	case symbol.MarketASZ:
		return "sz" + ref.Code, true
	case symbol.MarketIndex:
		if strings.HasPrefix(ref.Code, "399") {
			return "sz" + ref.Code, true
		}
		return "sh" + ref.Code, true
	default:
		return "", false
	}
}

func parseFloat(fields []string, idx int) float64 {
	if idx >= len(fields) {
		return 0
	}
	return atof(fields[idx])
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}
