// Package dispatch coordinates upstream fetches: duplicate requests for the
// same instrument collapse into one upstream call, each provider runs with a
// bounded number of in-flight requests, and transient failures retry with
// exponential backoff.
package dispatch

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/syncx"

	"quotecore/pkg/market"
	"quotecore/pkg/symbol"
)

const (
	defaultMaxInFlight    = 3
	defaultAttemptTimeout = 10 * time.Second
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 3 * time.Second
	defaultBackoffFactor  = 2.0
)

// Policy encapsulates exponential backoff settings for upstream fetches.
// MaxRetries counts re-attempts after the first call, so MaxRetries=2 means
// at most three upstream calls.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func (p Policy) withDefaults() Policy {
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	if p.Multiplier <= 1 {
		p.Multiplier = defaultBackoffFactor
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	sf             syncx.SingleFlight
	policy         Policy
	timeouts       map[symbol.Market]time.Duration
	defaultTimeout time.Duration
	maxInFlight    int

	mu     sync.Mutex
	limits map[string]syncx.Limit
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) {
		d.policy = p.withDefaults()
	}
}

// WithMarketTimeout sets the per-attempt deadline for one market.
func WithMarketTimeout(m symbol.Market, timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeouts[m] = timeout
		}
	}
}

// WithDefaultTimeout sets the per-attempt deadline for markets without an
// explicit override.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.defaultTimeout = timeout
		}
	}
}

// WithMaxInFlight caps concurrent upstream calls per provider.
func WithMaxInFlight(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxInFlight = n
		}
	}
}

// New constructs a Dispatcher with sane defaults.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sf:             syncx.NewSingleFlight(),
		policy:         Policy{}.withDefaults(),
		timeouts:       make(map[symbol.Market]time.Duration),
		defaultTimeout: defaultAttemptTimeout,
		maxInFlight:    defaultMaxInFlight,
		limits:         make(map[string]syncx.Limit),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Quote fetches a real-time quote through the coordinator. Concurrent calls
// for the same provider and instrument share a single upstream request.
func (d *Dispatcher) Quote(ctx context.Context, providerName string, p market.Provider, ref symbol.Ref) (*market.Quote, error) {
	key := "quote|" + providerName + "|" + ref.Canonical()
	v, err := d.do(ctx, key, providerName, ref.Market, func(ctx context.Context) (any, error) {
		return p.FetchQuote(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return v.(*market.Quote), nil
}

// Series fetches a historical series through the coordinator.
func (d *Dispatcher) Series(ctx context.Context, providerName string, p market.Provider, ref symbol.Ref, q market.SeriesQuery) (*market.Series, error) {
	key := fmt.Sprintf("series|%s|%s|%s|%d|%d|%d",
		providerName, ref.Canonical(), q.Period, q.Limit, unixOrZero(q.Start), unixOrZero(q.End))
	v, err := d.do(ctx, key, providerName, ref.Market, func(ctx context.Context) (any, error) {
		return p.FetchSeries(ctx, ref, q)
	})
	if err != nil {
		return nil, err
	}
	return v.(*market.Series), nil
}

func (d *Dispatcher) do(ctx context.Context, key, providerName string, mkt symbol.Market, fn func(context.Context) (any, error)) (any, error) {
	return d.sf.Do(key, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, market.Classify(err)
		}

		lim := d.limitFor(providerName)
		lim.Borrow()
		defer lim.Return()

		return d.attempt(ctx, mkt, fn)
	})
}

// attempt runs fn until it succeeds, fails with a non-retryable kind, or
// exhausts the retry budget. Every call carries its own deadline so one slow
// upstream round-trip cannot eat the whole budget.
func (d *Dispatcher) attempt(ctx context.Context, mkt symbol.Market, fn func(context.Context) (any, error)) (any, error) {
	attempts := d.policy.MaxRetries + 1
	backoff := d.policy.InitialBackoff

	var lastErr error
	for i := 0; i < attempts; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeoutFor(mkt))
		v, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return v, nil
		}

		// The caller gave up; its cancellation is not an upstream fault.
		if ctx.Err() != nil {
			return nil, market.Classify(ctx.Err())
		}

		lastErr = market.Classify(err)
		if !market.Retryable(lastErr) {
			return nil, lastErr
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, market.Classify(ctx.Err())
		}
		backoff = time.Duration(math.Min(
			float64(d.policy.MaxBackoff),
			float64(backoff)*d.policy.Multiplier,
		))
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", market.ErrExhausted, attempts, lastErr)
}

func (d *Dispatcher) limitFor(providerName string) syncx.Limit {
	d.mu.Lock()
	defer d.mu.Unlock()
	lim, ok := d.limits[providerName]
	if !ok {
		lim = syncx.NewLimit(d.maxInFlight)
		d.limits[providerName] = lim
	}
	return lim
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func (d *Dispatcher) timeoutFor(mkt symbol.Market) time.Duration {
	if timeout, ok := d.timeouts[mkt]; ok {
		return timeout
	}
	return d.defaultTimeout
}
