package alphavantage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/datlens/internal/common"
)

func newTestClient(t *testing.T, body string) (*Client, *http.Request) {
	t.Helper()
	var captured http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = *r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient("demo", WithBaseURL(srv.URL), WithPacer(common.NoDelay{})), &captured
}

func TestGetDailySeries(t *testing.T) {
	client, req := newTestClient(t, `{
		"Meta Data": {"2. Symbol": "MSTR"},
		"Time Series (Daily)": {
			"2025-01-03": {"1. open": "330.0", "4. close": "331.25", "5. volume": "100"},
			"2025-01-06": {"1. open": "340.0", "4. close": "350.00", "5. volume": "100"}
		}
	}`)

	closes, err := client.GetDailySeries(context.Background(), "MSTR", "")
	require.NoError(t, err)

	q := req.URL.Query()
	assert.Equal(t, "TIME_SERIES_DAILY", q.Get("function"))
	assert.Equal(t, "MSTR", q.Get("symbol"))
	assert.Equal(t, "compact", q.Get("outputsize"))
	assert.Equal(t, "demo", q.Get("apikey"))

	assert.Len(t, closes, 2)
	assert.Equal(t, 331.25, closes["2025-01-03"])
	assert.Equal(t, 350.0, closes["2025-01-06"])
}

func TestGetDailySeries_Throttled(t *testing.T) {
	for _, key := range []string{"Note", "Information"} {
		t.Run(key, func(t *testing.T) {
			client, _ := newTestClient(t, `{"`+key+`": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`)

			closes, err := client.GetDailySeries(context.Background(), "MSTR", OutputCompact)
			require.Error(t, err)
			assert.Nil(t, closes)

			var throttled *ThrottledError
			assert.True(t, errors.As(err, &throttled))
		})
	}
}

func TestGetDailySeries_ErrorMessage(t *testing.T) {
	client, _ := newTestClient(t, `{"Error Message": "Invalid API call."}`)

	_, err := client.GetDailySeries(context.Background(), "NOPE", OutputCompact)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "Invalid API call")
	assert.Equal(t, "TIME_SERIES_DAILY", apiErr.Endpoint)
}

func TestGetDigitalCurrencyDaily(t *testing.T) {
	client, req := newTestClient(t, `{
		"Time Series (Digital Currency Daily)": {
			"2025-01-04": {"4a. close (USD)": "98000.10", "4b. close (USD)": "98000.10"},
			"2025-01-05": {"4. close": "98300.00"}
		}
	}`)

	closes, err := client.GetDigitalCurrencyDaily(context.Background(), "BTC", "")
	require.NoError(t, err)
	assert.Equal(t, "USD", req.URL.Query().Get("market"))
	assert.Equal(t, 98000.10, closes["2025-01-04"])
	assert.Equal(t, 98300.0, closes["2025-01-05"])
}

func TestGetDailySeries_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("demo", WithBaseURL(srv.URL), WithPacer(common.NoDelay{}))
	_, err := client.GetDailySeries(context.Background(), "MSTR", OutputCompact)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}
