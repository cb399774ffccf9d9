package yahoo

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
	// DefaultBaseURL is the Yahoo Finance query host.
	DefaultBaseURL = "https://query1.finance.yahoo.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultInterval spaces calls to stay under the unauthenticated limit.
	DefaultInterval = 500 * time.Millisecond

	defaultUserAgent = "Mozilla/5.0 (compatible; DatLens/0.1)"
)

// Client is a Yahoo chart API client. No API key is required.
type Client struct {
	baseURL    string
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
			c.baseURL = strings.TrimRight(baseURL, "/")
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

// WithUserAgent sets the User-Agent header. Yahoo rejects empty agents.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// NewClient creates a new Yahoo chart client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: defaultUserAgent,
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

// GetDailyCloses returns daily closes for symbol between from and to
// (inclusive), keyed by exchange-local YYYY-MM-DD. Null closes are dropped.
func (c *Client) GetDailyCloses(ctx context.Context, symbol string, from, to time.Time) (map[string]float64, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	path := "/v8/finance/chart/" + url.PathEscape(symbol)
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(common.TruncateDay(from).Unix(), 10))
	// period2 is exclusive
	params.Set("period2", strconv.FormatInt(common.AddDays(common.TruncateDay(to), 1).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "history")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if c.logger != nil {
		c.logger.Debug().
			Str("symbol", symbol).
			Str("from", from.Format(common.DateLayout)).
			Str("to", to.Format(common.DateLayout)).
			Msg("Yahoo chart request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	var data chartResponse
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &data) == nil && data.Chart.Error != nil {
			msg = data.Chart.Error.Description
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg, Endpoint: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode chart response: %w", err)
	}
	if data.Chart.Error != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: data.Chart.Error.Description, Endpoint: path}
	}

	out := make(map[string]float64)
	if len(data.Chart.Result) == 0 {
		return out, nil
	}
	result := data.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return out, nil
	}
	closes := result.Indicators.Quote[0].Close
	if len(closes) != len(result.Timestamp) {
		return nil, fmt.Errorf("chart data mismatch: %d timestamps, %d closes", len(result.Timestamp), len(closes))
	}

	for i, ts := range result.Timestamp {
		if closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		day := time.Unix(ts+result.Meta.GMTOffset, 0).UTC().Format(common.DateLayout)
		out[day] = *closes[i]
	}
	return out, nil
}
