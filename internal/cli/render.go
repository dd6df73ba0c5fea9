package cli

import (
	"fmt"
	"math"
	"strings"

	"quotecore/internal/query"
)

// RenderQuote formats a quote result for terminal output.
func RenderQuote(res *query.QuoteResult) string {
	q := res.Quote
	var b strings.Builder

	header := res.Canonical
	if q.Name != "" {
		header += "  " + q.Name
	}
	fmt.Fprintf(&b, "%s  (via %s)\n", header, res.Provider)
	if res.Corrected {
		fmt.Fprintf(&b, "input corrected to %s\n", res.Canonical)
	}
	fmt.Fprintf(&b, "price %s  change %s (%s%%)\n",
		num(q.Price), signed(q.Change), signed(q.ChangePct))
	fmt.Fprintf(&b, "open %s  high %s  low %s  prev close %s\n",
		num(q.Open), num(q.High), num(q.Low), num(q.PrevClose))
	if q.Volume > 0 || q.Amount > 0 {
		fmt.Fprintf(&b, "volume %s  amount %s\n", compact(q.Volume), compact(q.Amount))
	}
	if !q.Timestamp.IsZero() {
		fmt.Fprintf(&b, "as of %s\n", q.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// RenderSeries formats a series result, printing at most tail recent bars
// plus the latest indicator values when present.
func RenderSeries(res *query.SeriesResult, tail int) string {
	var b strings.Builder
	bars := res.Series.Bars

	fmt.Fprintf(&b, "%s  %s x %d  (via %s)\n", res.Canonical, res.Series.Period, len(bars), res.Provider)
	if res.Corrected {
		fmt.Fprintf(&b, "input corrected to %s\n", res.Canonical)
	}

	start := 0
	if tail > 0 && len(bars) > tail {
		start = len(bars) - tail
	}
	fmt.Fprintln(&b, "date        open      high      low       close     volume")
	for _, bar := range bars[start:] {
		fmt.Fprintf(&b, "%s  %-8s  %-8s  %-8s  %-8s  %s\n",
			bar.Timestamp.Format("2006-01-02"),
			num(bar.Open), num(bar.High), num(bar.Low), num(bar.Close), compact(bar.Volume))
	}

	if ind := res.Indicators; ind != nil && len(bars) > 0 {
		last := len(bars) - 1
		fmt.Fprintf(&b, "MA5 %s  MA10 %s  MA20 %s\n",
			num(at(ind.MA[5], last)), num(at(ind.MA[10], last)), num(at(ind.MA[20], last)))
		fmt.Fprintf(&b, "MACD dif %s  dea %s  hist %s\n",
			num(at(ind.MACD.DIF, last)), num(at(ind.MACD.DEA, last)), num(at(ind.MACD.Hist, last)))
		fmt.Fprintf(&b, "KDJ k %s  d %s  j %s\n",
			num(at(ind.KDJ.K, last)), num(at(ind.KDJ.D, last)), num(at(ind.KDJ.J, last)))
		fmt.Fprintf(&b, "RSI6 %s  RSI12 %s  RSI24 %s  ATR %s\n",
			num(at(ind.RSI[6], last)), num(at(ind.RSI[12], last)),
			num(at(ind.RSI[24], last)), num(at(ind.ATR, last)))
	}
	return b.String()
}

func at(values []float64, i int) float64 {
	if i < 0 || i >= len(values) {
		return math.NaN()
	}
	return values[i]
}

// num renders a value, or "-" when the indicator window has not filled yet.
func num(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

func signed(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%+.2f", v)
}

// compact renders large volumes with K/M/B suffixes.
func compact(v float64) string {
	switch {
	case math.IsNaN(v):
		return "-"
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
