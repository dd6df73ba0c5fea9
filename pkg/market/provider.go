package market

import (
	"context"
	"sort"
	"time"

	"quotecore/pkg/symbol"
)

// Provider exposes market data for one upstream source. Implementations map
// their native payloads onto the canonical Quote/Series shapes and nothing
// more: no caching, no retry loops, no cross-market logic. Those concerns
// belong to the dispatcher and cache layers.
type Provider interface {
	// FetchQuote returns a point-in-time snapshot for the instrument with
	// derived change fields already filled. The coordinator may hand the
	// returned value to multiple concurrent waiters, so callers treat it
	// as read-only.
	FetchQuote(ctx context.Context, ref symbol.Ref) (*Quote, error)
	// FetchSeries returns an OHLCV series ordered oldest to newest.
	FetchSeries(ctx context.Context, ref symbol.Ref, q SeriesQuery) (*Series, error)
}

// Quote is a normalized point-in-time snapshot.
type Quote struct {
	Ref       symbol.Ref
	Name      string
	Price     float64
	Open      float64
	High      float64
	Low       float64
	PrevClose float64
	Change    float64
	ChangePct float64
	Volume    float64
	Amount    float64
	Timestamp time.Time
}

// FillDerived computes change fields from PrevClose when the upstream
// payload omits them.
func (q *Quote) FillDerived() {
	if q.Change == 0 && q.PrevClose != 0 && q.Price != 0 {
		q.Change = q.Price - q.PrevClose
	}
	if q.ChangePct == 0 && q.PrevClose != 0 {
		q.ChangePct = q.Change / q.PrevClose * 100
	}
}

// Bar is a single OHLCV record.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Series is an ordered OHLCV sequence for one instrument and granularity.
// Bars ascend strictly by timestamp; the most recent bar is last.
type Series struct {
	Ref            symbol.Ref
	Period         Period
	Bars           []Bar
	RequestedLimit int
}

// Closes extracts the close column, oldest first.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts the volume column, oldest first.
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// SeriesQuery describes one series request.
type SeriesQuery struct {
	Period Period
	Limit  int
	Start  time.Time
	End    time.Time
}

// NormalizeBars enforces the series boundary invariant: bars sorted by
// ascending timestamp, duplicates collapsed (last write wins), trimmed to
// the newest limit entries. Upstreams disagree on ordering, so every
// adapter routes its bars through here before returning.
func NormalizeBars(bars []Bar, limit int) []Bar {
	if len(bars) == 0 {
		return bars
	}
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	deduped := sorted[:0]
	for _, b := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(b.Timestamp) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	if limit > 0 && len(deduped) > limit {
		deduped = deduped[len(deduped)-limit:]
	}
	return deduped
}
