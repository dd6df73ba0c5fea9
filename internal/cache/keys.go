package cache

import (
	"fmt"
	"strings"
	"time"

	"quotecore/internal/config"
	"quotecore/pkg/market"
)

// Namespace is the key prefix shared by every cache entry.
const Namespace = "quotecore"

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Quote    time.Duration
	Intraday time.Duration
	Daily    time.Duration
	LongTerm time.Duration
	Negative time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Quote:    durationOrDefault(cfg.Quote, time.Minute),
		Intraday: durationOrDefault(cfg.Intraday, time.Minute),
		Daily:    durationOrDefault(cfg.Daily, 5*time.Minute),
		LongTerm: durationOrDefault(cfg.LongTerm, 30*time.Minute),
		Negative: durationOrDefault(cfg.Negative, 15*time.Second),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// ForSeries picks the TTL bucket for a series period: intraday bars churn,
// daily bars move once a session, weekly and monthly bars barely move.
func (t TTLSet) ForSeries(p market.Period) time.Duration {
	switch {
	case p.Intraday():
		return t.Intraday
	case p == market.PeriodDaily:
		return t.Daily
	default:
		return t.LongTerm
	}
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// QuoteKey identifies a real-time quote by canonical symbol.
func QuoteKey(canonical string) string {
	return formatKey("quote", canonical)
}

// SeriesKey identifies a historical series by canonical symbol, period and
// requested length. Different lengths cache separately so a short lookback
// never truncates a longer one.
func SeriesKey(canonical string, period market.Period, limit int) string {
	return formatKey("series", canonical, string(period), fmt.Sprintf("%d", limit))
}

// SeriesRangeKey extends SeriesKey with an explicit date window.
func SeriesRangeKey(canonical string, period market.Period, limit int, start, end time.Time) string {
	if start.IsZero() && end.IsZero() {
		return SeriesKey(canonical, period, limit)
	}
	return formatKey("series", canonical, string(period), fmt.Sprintf("%d", limit),
		fmt.Sprintf("%d-%d", unixOrZero(start), unixOrZero(end)))
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
