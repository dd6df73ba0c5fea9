// Package binance adapts the Binance spot REST API to the generic market
// contract for crypto instruments.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"quotecore/pkg/market"
)

const (
	defaultBaseURL     = "https://api.binance.com"
	defaultHTTPTimeout = 10 * time.Second
)

// Client wraps the Binance spot endpoints used for quotes and klines.
// Retries and deadlines are the dispatcher's job; each method performs a
// single upstream attempt.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// NewClient constructs a Binance API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// ticker24h mirrors /api/v3/ticker/24hr. Numeric fields arrive as strings.
type ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	OpenPrice          string `json:"openPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	PrevClosePrice     string `json:"prevClosePrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	CloseTime          int64  `json:"closeTime"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) getTicker(ctx context.Context, pair string) (*ticker24h, error) {
	q := url.Values{}
	q.Set("symbol", pair)

	var payload ticker24h
	if err := c.getJSON(ctx, "/api/v3/ticker/24hr?"+q.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.LastPrice == "" {
		return nil, fmt.Errorf("%w: pair %s", market.ErrNotFound, pair)
	}
	return &payload, nil
}

// getKlines returns raw kline rows: openTime, open, high, low, close,
// volume, closeTime, ... per the exchange wire format.
func (c *Client) getKlines(ctx context.Context, pair, interval string, limit int, start, end time.Time) ([][]any, error) {
	q := url.Values{}
	q.Set("symbol", pair)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if !start.IsZero() {
		q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	var rows [][]any
	if err := c.getJSON(ctx, "/api/v3/klines?"+q.Encode(), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: pair %s", market.ErrNotFound, pair)
	}
	return rows, nil
}

func (c *Client) getJSON(ctx context.Context, pathAndQuery string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return fmt.Errorf("binance: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return market.Classify(ctx.Err())
		}
		return market.Classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", market.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyAPIError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: decode response: %v", market.ErrUpstream, err)
	}
	return nil
}

// classifyAPIError maps Binance error envelopes onto the failure taxonomy.
// -1121 is "invalid symbol"; 429 and 418 (IP ban escalation) are throttling.
func classifyAPIError(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return fmt.Errorf("%w: http status %d", market.ErrRateLimited, status)
	case apiErr.Code == -1121:
		return fmt.Errorf("%w: %s", market.ErrNotFound, apiErr.Msg)
	case status >= 500:
		return fmt.Errorf("%w: http status %d", market.ErrUpstream, status)
	default:
		return fmt.Errorf("%w: http status %d: %s", market.ErrUpstream, status, apiErr.Msg)
	}
}
