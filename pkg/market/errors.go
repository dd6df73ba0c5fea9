package market

import (
	"context"
	"errors"
	"fmt"
)

// Failure taxonomy shared by every adapter. Adapters surface the raw kind;
// the dispatcher applies retry policy and re-classifies exhausted retries;
// the facade only adds context on top.
var (
	// ErrInvalidSymbol marks unparseable or unrecognised input. Never retried.
	ErrInvalidSymbol = errors.New("market: invalid symbol")
	// ErrNotFound marks a valid symbol with no upstream data. Never retried.
	ErrNotFound = errors.New("market: instrument not found")
	// ErrTimeout marks an upstream deadline overrun. Retried per policy.
	ErrTimeout = errors.New("market: upstream timeout")
	// ErrUpstream marks a transient provider fault. Retried per policy.
	ErrUpstream = errors.New("market: upstream error")
	// ErrRateLimited marks provider throttling. Surfaced without retry.
	ErrRateLimited = errors.New("market: rate limited")
	// ErrExhausted marks a request that failed after its full retry budget.
	ErrExhausted = errors.New("market: all retries exhausted")
	// ErrDisabled marks a query against a feature-flagged market that is off.
	ErrDisabled = errors.New("market: feature disabled")
)

// Retryable reports whether the dispatcher may re-attempt after err.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrUpstream):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}

// Classify folds context errors into the taxonomy so callers never see a
// bare deadline error escape an adapter.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		// Caller-initiated, not an upstream fault. Kept bare so callers can
		// still match context.Canceled.
		return err
	case errors.Is(err, ErrInvalidSymbol),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrUpstream),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrExhausted),
		errors.Is(err, ErrDisabled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
}

// FailureMessage renders a user-facing message naming the instrument and
// the failure kind. No stack traces, no provider internals.
func FailureMessage(canonical string, err error) string {
	switch {
	case errors.Is(err, ErrInvalidSymbol):
		return fmt.Sprintf("%s is not a recognised symbol", canonical)
	case errors.Is(err, ErrNotFound):
		return fmt.Sprintf("no data found for %s", canonical)
	case errors.Is(err, ErrRateLimited):
		return fmt.Sprintf("the data source for %s is throttling requests, try again shortly", canonical)
	case errors.Is(err, ErrExhausted), errors.Is(err, ErrTimeout):
		return fmt.Sprintf("the data source for %s did not respond in time", canonical)
	case errors.Is(err, ErrDisabled):
		return fmt.Sprintf("queries for %s are disabled by configuration", canonical)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("the request for %s was cancelled", canonical)
	default:
		return fmt.Sprintf("fetching %s failed, try again later", canonical)
	}
}
