package market

import (
	"fmt"
	"strings"
)

// Period is a bar granularity for series requests.
type Period string

const (
	PeriodDaily    Period = "daily"
	PeriodWeekly   Period = "weekly"
	PeriodMonthly  Period = "monthly"
	PeriodHourly   Period = "hourly"
	PeriodMinutely Period = "minutely"
)

// ParsePeriod resolves a user-supplied period name. Empty input maps to the
// supplied fallback.
func ParsePeriod(raw string, fallback Period) (Period, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return fallback, nil
	}
	switch Period(raw) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodHourly, PeriodMinutely:
		return Period(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown period %q", ErrInvalidSymbol, raw)
	}
}

// Intraday reports whether the period is finer than one trading day.
// Intraday series take shorter cache TTLs.
func (p Period) Intraday() bool {
	return p == PeriodHourly || p == PeriodMinutely
}
