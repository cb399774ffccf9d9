package coingecko

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

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/interfaces"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// DefaultProBaseURL is the Pro API root.
	DefaultProBaseURL = "https://pro-api.coingecko.com/api/v3"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultCallDelay keeps the public tier at roughly 50 calls per minute.
	DefaultCallDelay = 1200 * time.Millisecond

	proKeyPrefix = "CG-"
	historyDate  = "02-01-2006"
)

// Client is a CoinGecko API client.
type Client struct {
	baseURL    string
	proBaseURL string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	logger     arbor.ILogger
	pacer      interfaces.Pacer
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets the public API root.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithProBaseURL sets the Pro API root.
func WithProBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.proBaseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCallDelay sets the fixed pause between calls.
func WithCallDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.pacer = common.NewIntervalPacer(delay)
	}
}

// WithPacer replaces the call pacer.
func WithPacer(pacer interfaces.Pacer) ClientOption {
	return func(c *Client) {
		c.pacer = pacer
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient creates a new CoinGecko client. Keys starting with "CG-" select
// the Pro API; other non-empty keys are sent as demo keys.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		proBaseURL: DefaultProBaseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		pacer: common.NewIntervalPacer(DefaultCallDelay),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// IsPro reports whether requests go to the Pro API.
func (c *Client) IsPro() bool {
	return strings.HasPrefix(c.apiKey, proKeyPrefix)
}

func (c *Client) root() string {
	if c.IsPro() {
		return c.proBaseURL
	}
	return c.baseURL
}

// get performs a paced GET request against the active API root.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	reqURL := c.root() + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		if c.IsPro() {
			req.Header.Set("x-cg-pro-api-key", c.apiKey)
		} else {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("path", path).
			Bool("pro", c.IsPro()).
			Msg("CoinGecko API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retry := time.Minute
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			retry = time.Duration(s) * time.Second
		}
		return &RateLimitError{RetryAfter: retry}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetHistoricalPrice returns the USD price of coin id on date. ok is false
// when the API has no market data for that day.
func (c *Client) GetHistoricalPrice(ctx context.Context, id string, date time.Time) (price float64, ok bool, err error) {
	params := url.Values{}
	params.Set("date", date.UTC().Format(historyDate))
	params.Set("localization", "false")

	var result historyResponse
	if err := c.get(ctx, "/coins/"+url.PathEscape(id)+"/history", params, &result); err != nil {
		return 0, false, err
	}
	if result.MarketData == nil {
		return 0, false, nil
	}
	usd, ok := result.MarketData.CurrentPrice["usd"]
	if !ok || usd <= 0 {
		return 0, false, nil
	}
	return usd, true, nil
}

// GetMarketChartRange returns USD prices for coin id between from and to.
// Granularity is chosen by the API (daily beyond 90 days).
func (c *Client) GetMarketChartRange(ctx context.Context, id string, from, to time.Time) ([]PricePoint, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(to.Unix(), 10))

	var result marketChartResponse
	if err := c.get(ctx, "/coins/"+url.PathEscape(id)+"/market_chart/range", params, &result); err != nil {
		return nil, err
	}

	points := make([]PricePoint, 0, len(result.Prices))
	for _, p := range result.Prices {
		if p[1] <= 0 {
			continue
		}
		points = append(points, PricePoint{
			Time:  time.UnixMilli(int64(p[0])).UTC(),
			Price: p[1],
		})
	}
	return points, nil
}
