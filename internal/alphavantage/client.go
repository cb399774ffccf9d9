package alphavantage

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
	// DefaultBaseURL is the query endpoint for the Alpha Vantage API.
	DefaultBaseURL = "https://www.alphavantage.co/query"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultInterval is the free-tier spacing (5 calls per minute).
	DefaultInterval = 12 * time.Second

	dailySeriesKey   = "Time Series (Daily)"
	digitalSeriesKey = "Time Series (Digital Currency Daily)"
)

// Client is an Alpha Vantage API client.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	logger     arbor.ILogger
	pacer      interfaces.Pacer
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
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

// WithInterval sets the minimum spacing between calls.
func WithInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.pacer = common.NewIntervalPacer(interval)
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

// NewClient creates a new Alpha Vantage client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		pacer: common.NewIntervalPacer(DefaultInterval),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// query performs one paced GET and returns the decoded top-level object.
func (c *Client) query(ctx context.Context, params url.Values) (map[string]json.RawMessage, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	params.Set("apikey", c.apiKey)
	fn := params.Get("function")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("function", fn).
			Str("symbol", params.Get("symbol")).
			Msg("Alpha Vantage API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   fn,
		}
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	for _, key := range []string{"Note", "Information"} {
		if raw, ok := payload[key]; ok {
			return nil, &ThrottledError{Message: rawString(raw), RetryAfter: time.Minute}
		}
	}
	if raw, ok := payload["Error Message"]; ok {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: rawString(raw), Endpoint: fn}
	}

	return payload, nil
}

// GetDailySeries returns TIME_SERIES_DAILY closes keyed by YYYY-MM-DD.
func (c *Client) GetDailySeries(ctx context.Context, symbol, outputSize string) (map[string]float64, error) {
	if outputSize == "" {
		outputSize = OutputCompact
	}
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", outputSize)

	payload, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}
	return parseCloses(payload[dailySeriesKey], "4. close")
}

// GetDigitalCurrencyDaily returns DIGITAL_CURRENCY_DAILY closes in market
// currency keyed by YYYY-MM-DD.
func (c *Client) GetDigitalCurrencyDaily(ctx context.Context, symbol, market string) (map[string]float64, error) {
	if market == "" {
		market = "USD"
	}
	params := url.Values{}
	params.Set("function", "DIGITAL_CURRENCY_DAILY")
	params.Set("symbol", symbol)
	params.Set("market", market)

	payload, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}
	return parseCloses(payload[digitalSeriesKey],
		fmt.Sprintf("4a. close (%s)", market),
		"4b. close (USD)",
		"4. close")
}

// parseCloses reads a {date: {field: "123.45"}} block using the first close
// field present for each day. A missing block yields an empty map.
func parseCloses(raw json.RawMessage, fields ...string) (map[string]float64, error) {
	out := make(map[string]float64)
	if len(raw) == 0 {
		return out, nil
	}

	var series map[string]map[string]string
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("failed to decode time series: %w", err)
	}

	for date, bar := range series {
		for _, field := range fields {
			v, ok := bar[field]
			if !ok {
				continue
			}
			price, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err == nil && price > 0 {
				out[date] = price
			}
			break
		}
	}
	return out, nil
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
