// Package eastmoney adapts the Eastmoney push2 endpoints (with a Sina
// fallback) to the generic market contract. It serves A-shares, Hong Kong
// and US equities, and mainland index quotes.
package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"quotecore/pkg/market"
	"quotecore/pkg/symbol"
)

const (
	defaultQuoteBaseURL   = "https://push2.eastmoney.com"
	defaultHistoryBaseURL = "https://push2his.eastmoney.com"
	defaultFallbackURL    = "https://money.finance.sina.com.cn"
	defaultHQBaseURL      = "https://hq.sinajs.cn"
	defaultHTTPTimeout    = 10 * time.Second

	quoteFields  = "f43,f44,f45,f46,f47,f48,f57,f58,f60,f169,f170"
	klineFields1 = "f1,f2,f3,f4,f5,f6"
	klineFields2 = "f51,f52,f53,f54,f55,f56,f57"
)

// US listings spread across three Eastmoney market ids; the quote path
// probes them in order because the listing venue is not derivable from the
// ticker alone.
var usMarketIDs = []string{"105", "106", "107"}

// Client talks to the Eastmoney push2 endpoints and the Sina fallbacks.
// It performs exactly one upstream attempt per endpoint: retries and
// timeouts are owned by the dispatcher.
type Client struct {
	quoteBaseURL   string
	historyBaseURL string
	fallbackURL    string
	hqBaseURL      string
	httpClient     *http.Client
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

// WithQuoteBaseURL overrides the push2 quote endpoint.
func WithQuoteBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.quoteBaseURL = u
		}
	}
}

// WithHistoryBaseURL overrides the push2his kline endpoint.
func WithHistoryBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.historyBaseURL = u
		}
	}
}

// WithFallbackURL overrides the Sina kline fallback endpoint.
func WithFallbackURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.fallbackURL = u
			c.hqBaseURL = u
		}
	}
}

// NewClient constructs an Eastmoney API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		quoteBaseURL:   defaultQuoteBaseURL,
		historyBaseURL: defaultHistoryBaseURL,
		fallbackURL:    defaultFallbackURL,
		hqBaseURL:      defaultHQBaseURL,
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// secids returns the push2 security ids to try for a ref, most likely first.
func secids(ref symbol.Ref) []string {
	switch ref.Market {
	case symbol.MarketASH:
		return []string{"1." + ref.Code}
	case symbol.MarketASZ:
		return []string{"0." + ref.Code}
	case symbol.MarketIndex:
		if strings.HasPrefix(ref.Code, "399") {
			return []string{"0." + ref.Code}
		}
		return []string{"1." + ref.Code}
	case symbol.MarketHK:
		return []string{"116." + ref.Code}
	case symbol.MarketUS:
		ids := make([]string, 0, len(usMarketIDs))
		for _, m := range usMarketIDs {
			ids = append(ids, m+"."+ref.Code)
		}
		return ids
	default:
		return nil
	}
}

func (c *Client) getQuote(ctx context.Context, secid string) (*quoteData, error) {
	q := url.Values{}
	q.Set("secid", secid)
	q.Set("invt", "2")
	q.Set("fltt", "2")
	q.Set("fields", quoteFields)

	var payload quoteResponse
	if err := c.getJSON(ctx, c.quoteBaseURL+"/api/qt/stock/get?"+q.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.Data == nil || payload.Data.Price == 0 {
		return nil, fmt.Errorf("%w: secid %s", market.ErrNotFound, secid)
	}
	return payload.Data, nil
}

func (c *Client) getKlines(ctx context.Context, secid string, klt string, limit int, beg, end string) ([]string, error) {
	q := url.Values{}
	q.Set("secid", secid)
	q.Set("klt", klt)
	q.Set("fqt", "1") // forward adjusted, matching the original plugin
	q.Set("lmt", strconv.Itoa(limit))
	q.Set("beg", beg)
	q.Set("end", end)
	q.Set("fields1", klineFields1)
	q.Set("fields2", klineFields2)

	var payload klineResponse
	if err := c.getJSON(ctx, c.historyBaseURL+"/api/qt/stock/kline/get?"+q.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.Data == nil || len(payload.Data.Klines) == 0 {
		return nil, fmt.Errorf("%w: secid %s", market.ErrNotFound, secid)
	}
	return payload.Data.Klines, nil
}

// fallbackKlines fetches daily history from the Sina kline JSON service.
func (c *Client) fallbackKlines(ctx context.Context, sinaSymbol string, limit int) ([]sinaKline, error) {
	q := url.Values{}
	q.Set("symbol", sinaSymbol)
	q.Set("scale", "240")
	q.Set("ma", "no")
	q.Set("datalen", strconv.Itoa(limit))

	endpoint := c.fallbackURL + "/quotes_service/api/json_v2.php/CN_MarketData.getKLineData?" + q.Encode()
	var rows []sinaKline
	if err := c.getJSON(ctx, endpoint, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sina symbol %s", market.ErrNotFound, sinaSymbol)
	}
	return rows, nil
}

// hqQuote fetches a quote line from the Sina hq endpoint. The payload is
// GBK encoded; decode before parsing so names survive intact.
func (c *Client) hqQuote(ctx context.Context, hqSymbol string) ([]string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.hqBaseURL+"/list="+hqSymbol, nil)
	if err != nil {
		return nil, "", fmt.Errorf("eastmoney: build hq request: %w", err)
	}
	req.Header.Set("Referer", "https://finance.sina.com.cn")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", market.Classify(err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, "", err
	}

	body, err := io.ReadAll(transform.NewReader(resp.Body, simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read hq response: %v", market.ErrUpstream, err)
	}

	parts := strings.Split(string(body), "\"")
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return nil, "", fmt.Errorf("%w: hq symbol %s", market.ErrNotFound, hqSymbol)
	}
	fields := strings.Split(parts[1], ",")
	if len(fields) < 9 {
		return nil, "", fmt.Errorf("%w: short hq record for %s", market.ErrUpstream, hqSymbol)
	}
	return fields, fields[0], nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("eastmoney: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return market.Classify(ctx.Err())
		}
		return market.Classify(err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", market.ErrUpstream, err)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: decode response: %v", market.ErrUpstream, err)
	}
	return nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http status %d", market.ErrRateLimited, code)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: http status %d", market.ErrNotFound, code)
	case code < 200 || code >= 300:
		return fmt.Errorf("%w: http status %d", market.ErrUpstream, code)
	default:
		return nil
	}
}
