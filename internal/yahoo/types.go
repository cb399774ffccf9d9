// Package yahoo provides a client for the Yahoo Finance v8 chart API.
package yahoo

import "fmt"

// chartResponse mirrors the parts of /v8/finance/chart used for daily closes.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency  string `json:"currency"`
				Symbol    string `json:"symbol"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *chartError `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// APIError represents an error from the chart API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Yahoo chart API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// cryptoPairs maps token symbols to Yahoo's USD pair tickers.
var cryptoPairs = map[string]string{
	"BTC":  "BTC-USD",
	"ETH":  "ETH-USD",
	"SOL":  "SOL-USD",
	"BNB":  "BNB-USD",
	"XRP":  "XRP-USD",
	"TON":  "TON-USD",
	"AVAX": "AVAX-USD",
	"DOGE": "DOGE-USD",
	"ADA":  "ADA-USD",
	"TRX":  "TRX-USD",
	"SUI":  "SUI-USD",
	"FET":  "FET-USD",
	"TAO":  "TAO-USD",
	"BONK": "BONK-USD",
}

// CryptoPair returns the Yahoo ticker for a normalized token symbol.
func CryptoPair(token string) (string, bool) {
	pair, ok := cryptoPairs[token]
	return pair, ok
}
