// Package alphavantage provides a client for the Alpha Vantage daily time-series API.
package alphavantage

import (
	"fmt"
	"time"
)

// Output sizes accepted by TIME_SERIES_DAILY.
const (
	OutputCompact = "compact"
	OutputFull    = "full"
)

// APIError represents an error from the Alpha Vantage API, either an HTTP
// failure or an "Error Message" body.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Alpha Vantage API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// ThrottledError is returned when the API answers 200 with a "Note" or
// "Information" body instead of data (quota exhausted or premium endpoint).
type ThrottledError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("Alpha Vantage throttled: %s", e.Message)
}
