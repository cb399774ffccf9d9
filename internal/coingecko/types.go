// Package coingecko provides a client for the CoinGecko v3 REST API (public and Pro).
package coingecko

import (
	"fmt"
	"time"
)

// PricePoint is one [timestamp_ms, price] pair from market_chart/range.
type PricePoint struct {
	Time  time.Time
	Price float64
}

type historyResponse struct {
	ID         string `json:"id"`
	MarketData *struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// APIError represents an error from the CoinGecko API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("CoinGecko API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError is returned on HTTP 429.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("CoinGecko rate limit exceeded, retry after %v", e.RetryAfter)
}

// coinIDs maps token symbols to CoinGecko asset ids.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"ADA":   "cardano",
	"XRP":   "ripple",
	"DOGE":  "dogecoin",
	"TON":   "the-open-network",
	"AVAX":  "avalanche-2",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"ATOM":  "cosmos",
	"LTC":   "litecoin",
	"ETC":   "ethereum-classic",
	"XLM":   "stellar",
	"ALGO":  "algorand",
	"VET":   "vechain",
	"FIL":   "filecoin",
	"TRX":   "tron",
	"EOS":   "eos",
	"AAVE":  "aave",
	"MKR":   "maker",
	"COMP":  "compound-governance-token",
	"YFI":   "yearn-finance",
	"SNX":   "havven",
	"SUSHI": "sushi",
	"CRV":   "curve-dao-token",
	"1INCH": "1inch",
	"BAL":   "balancer",
	"ZEC":   "zcash",
	"DASH":  "dash",
	"XMR":   "monero",
	"ZEN":   "zencash",
}

// CoinID returns the CoinGecko id for a normalized token symbol.
func CoinID(symbol string) (string, bool) {
	id, ok := coinIDs[symbol]
	return id, ok
}
