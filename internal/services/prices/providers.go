package prices

import (
	"context"
	"time"

	"github.com/ternarybob/datlens/internal/alphavantage"
	"github.com/ternarybob/datlens/internal/coingecko"
	"github.com/ternarybob/datlens/internal/eodhd"
	"github.com/ternarybob/datlens/internal/interfaces"
	"github.com/ternarybob/datlens/internal/models"
	"github.com/ternarybob/datlens/internal/yahoo"
)

// Provider names accepted in [enrich] equity_providers / token_providers.
const (
	ProviderAlphaVantage       = "alphavantage"
	ProviderYahoo              = "yahoo"
	ProviderEODHD              = "eodhd"
	ProviderCoinGeckoRange     = "coingecko_range"
	ProviderCoinGeckoPoint     = "coingecko_point"
	ProviderAlphaVantageCrypto = "alphavantage_crypto"
	ProviderYahooCrypto        = "yahoo_crypto"
)

var (
	_ interfaces.PriceProvider = (*AlphaVantageProvider)(nil)
	_ interfaces.PriceProvider = (*YahooProvider)(nil)
	_ interfaces.PriceProvider = (*EODHDProvider)(nil)
	_ interfaces.PriceProvider = (*CoinGeckoRangeProvider)(nil)
	_ interfaces.PriceProvider = (*CoinGeckoPointProvider)(nil)
	_ interfaces.PriceProvider = (*AlphaVantageCryptoProvider)(nil)
	_ interfaces.PriceProvider = (*YahooCryptoProvider)(nil)
)

func passThrough(symbol string) (string, bool) {
	return symbol, symbol != ""
}

// AlphaVantageProvider serves equity closes from TIME_SERIES_DAILY. The API
// ignores the window and returns its whole output size.
type AlphaVantageProvider struct {
	client     *alphavantage.Client
	outputSize string
	maxDays    int
}

// NewAlphaVantageProvider wraps client; maxHistoryDays 0 means no ceiling.
func NewAlphaVantageProvider(client *alphavantage.Client, outputSize string, maxHistoryDays int) *AlphaVantageProvider {
	return &AlphaVantageProvider{client: client, outputSize: outputSize, maxDays: maxHistoryDays}
}

func (p *AlphaVantageProvider) Name() string                          { return ProviderAlphaVantage }
func (p *AlphaVantageProvider) ResolveSymbol(s string) (string, bool) { return passThrough(s) }
func (p *AlphaVantageProvider) Anchoring() models.Anchoring           { return models.AnchorBackward }
func (p *AlphaVantageProvider) Mode() models.FetchMode                { return models.FetchRange }
func (p *AlphaVantageProvider) MaxHistoryDays() int                   { return p.maxDays }

func (p *AlphaVantageProvider) FetchSeries(ctx context.Context, id string, _ interfaces.SeriesRequest) (*models.PriceSeries, error) {
	closes, err := p.client.GetDailySeries(ctx, id, p.outputSize)
	if err != nil {
		return nil, err
	}
	series := models.NewPriceSeries(p.Name(), id, closes)
	series.Complete = true
	return series, nil
}

// YahooProvider serves equity closes from the chart API, anchored forward.
type YahooProvider struct {
	client  *yahoo.Client
	maxDays int
}

// NewYahooProvider wraps client for equity tickers.
func NewYahooProvider(client *yahoo.Client, maxHistoryDays int) *YahooProvider {
	return &YahooProvider{client: client, maxDays: maxHistoryDays}
}

func (p *YahooProvider) Name() string                          { return ProviderYahoo }
func (p *YahooProvider) ResolveSymbol(s string) (string, bool) { return passThrough(s) }
func (p *YahooProvider) Anchoring() models.Anchoring           { return models.AnchorForward }
func (p *YahooProvider) Mode() models.FetchMode                { return models.FetchRange }
func (p *YahooProvider) MaxHistoryDays() int                   { return p.maxDays }

func (p *YahooProvider) FetchSeries(ctx context.Context, id string, req interfaces.SeriesRequest) (*models.PriceSeries, error) {
	closes, err := p.client.GetDailyCloses(ctx, id, req.From, req.To)
	if err != nil {
		return nil, err
	}
	return models.NewPriceSeries(p.Name(), id, closes), nil
}

// EODHDProvider serves equity closes from the /eod endpoint.
type EODHDProvider struct {
	client   *eodhd.Client
	exchange string
	maxDays  int
}

// NewEODHDProvider wraps client, qualifying bare tickers with exchange.
func NewEODHDProvider(client *eodhd.Client, exchange string, maxHistoryDays int) *EODHDProvider {
	return &EODHDProvider{client: client, exchange: exchange, maxDays: maxHistoryDays}
}

func (p *EODHDProvider) Name() string                { return ProviderEODHD }
func (p *EODHDProvider) Anchoring() models.Anchoring { return models.AnchorBackward }
func (p *EODHDProvider) Mode() models.FetchMode      { return models.FetchRange }
func (p *EODHDProvider) MaxHistoryDays() int         { return p.maxDays }

func (p *EODHDProvider) ResolveSymbol(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	return eodhd.QualifySymbol(s, p.exchange), true
}

func (p *EODHDProvider) FetchSeries(ctx context.Context, id string, req interfaces.SeriesRequest) (*models.PriceSeries, error) {
	resp, err := p.client.GetEOD(ctx, id, eodhd.WithDateRange(req.From, req.To))
	if err != nil {
		return nil, err
	}
	return models.NewPriceSeries(p.Name(), id, resp.Closes()), nil
}

// CoinGeckoRangeProvider fetches a contiguous token window in one call.
// Intraday points are bucketed per UTC day, first point of the day wins.
type CoinGeckoRangeProvider struct {
	client   *coingecko.Client
	freeDays int
	proDays  int
}

// NewCoinGeckoRangeProvider wraps client; the depth ceiling follows the key tier.
func NewCoinGeckoRangeProvider(client *coingecko.Client, freeDepthDays, proDepthDays int) *CoinGeckoRangeProvider {
	return &CoinGeckoRangeProvider{client: client, freeDays: freeDepthDays, proDays: proDepthDays}
}

func (p *CoinGeckoRangeProvider) Name() string                          { return ProviderCoinGeckoRange }
func (p *CoinGeckoRangeProvider) ResolveSymbol(s string) (string, bool) { return coingecko.CoinID(s) }
func (p *CoinGeckoRangeProvider) Anchoring() models.Anchoring           { return models.AnchorBackward }
func (p *CoinGeckoRangeProvider) Mode() models.FetchMode                { return models.FetchRange }

func (p *CoinGeckoRangeProvider) MaxHistoryDays() int {
	return coinGeckoDepth(p.client, p.freeDays, p.proDays)
}

func (p *CoinGeckoRangeProvider) FetchSeries(ctx context.Context, id string, req interfaces.SeriesRequest) (*models.PriceSeries, error) {
	// to is exclusive at the API, include the whole last day
	points, err := p.client.GetMarketChartRange(ctx, id, req.From, req.To.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	converted := make([]models.PricePoint, 0, len(points))
	for _, pt := range points {
		converted = append(converted, models.PricePoint{Date: pt.Time, Close: pt.Price})
	}
	return models.NewPriceSeriesFromPoints(p.Name(), id, converted), nil
}

// CoinGeckoPointProvider asks for one date per call through /coins/{id}/history.
type CoinGeckoPointProvider struct {
	client   *coingecko.Client
	freeDays int
	proDays  int
}

// NewCoinGeckoPointProvider wraps client for one-date history probes.
func NewCoinGeckoPointProvider(client *coingecko.Client, freeDepthDays, proDepthDays int) *CoinGeckoPointProvider {
	return &CoinGeckoPointProvider{client: client, freeDays: freeDepthDays, proDays: proDepthDays}
}

func (p *CoinGeckoPointProvider) Name() string                          { return ProviderCoinGeckoPoint }
func (p *CoinGeckoPointProvider) ResolveSymbol(s string) (string, bool) { return coingecko.CoinID(s) }
func (p *CoinGeckoPointProvider) Anchoring() models.Anchoring           { return models.AnchorBackward }
func (p *CoinGeckoPointProvider) Mode() models.FetchMode                { return models.FetchPoint }

func (p *CoinGeckoPointProvider) MaxHistoryDays() int {
	return coinGeckoDepth(p.client, p.freeDays, p.proDays)
}

func (p *CoinGeckoPointProvider) FetchSeries(ctx context.Context, id string, req interfaces.SeriesRequest) (*models.PriceSeries, error) {
	price, ok, err := p.client.GetHistoricalPrice(ctx, id, req.From)
	if err != nil {
		return nil, err
	}
	var points []models.PricePoint
	if ok {
		points = append(points, models.PricePoint{Date: req.From, Close: price})
	}
	return models.NewPriceSeriesFromPoints(p.Name(), id, points), nil
}

func coinGeckoDepth(client *coingecko.Client, freeDays, proDays int) int {
	if client.IsPro() {
		return proDays
	}
	return freeDays
}

// AlphaVantageCryptoProvider serves token closes from DIGITAL_CURRENCY_DAILY.
type AlphaVantageCryptoProvider struct {
	client *alphavantage.Client
}

// NewAlphaVantageCryptoProvider wraps client for DIGITAL_CURRENCY_DAILY in USD.
func NewAlphaVantageCryptoProvider(client *alphavantage.Client) *AlphaVantageCryptoProvider {
	return &AlphaVantageCryptoProvider{client: client}
}

func (p *AlphaVantageCryptoProvider) Name() string                          { return ProviderAlphaVantageCrypto }
func (p *AlphaVantageCryptoProvider) ResolveSymbol(s string) (string, bool) { return passThrough(s) }
func (p *AlphaVantageCryptoProvider) Anchoring() models.Anchoring           { return models.AnchorBackward }
func (p *AlphaVantageCryptoProvider) Mode() models.FetchMode                { return models.FetchRange }
func (p *AlphaVantageCryptoProvider) MaxHistoryDays() int                   { return 0 }

func (p *AlphaVantageCryptoProvider) FetchSeries(ctx context.Context, id string, _ interfaces.SeriesRequest) (*models.PriceSeries, error) {
	closes, err := p.client.GetDigitalCurrencyDaily(ctx, id, "USD")
	if err != nil {
		return nil, err
	}
	series := models.NewPriceSeries(p.Name(), id, closes)
	series.Complete = true
	return series, nil
}

// YahooCryptoProvider serves token closes from "<SYM>-USD" chart pairs.
type YahooCryptoProvider struct {
	client  *yahoo.Client
	maxDays int
}

// NewYahooCryptoProvider wraps client for <SYM>-USD pairs.
func NewYahooCryptoProvider(client *yahoo.Client, maxHistoryDays int) *YahooCryptoProvider {
	return &YahooCryptoProvider{client: client, maxDays: maxHistoryDays}
}

func (p *YahooCryptoProvider) Name() string                          { return ProviderYahooCrypto }
func (p *YahooCryptoProvider) ResolveSymbol(s string) (string, bool) { return yahoo.CryptoPair(s) }
func (p *YahooCryptoProvider) Anchoring() models.Anchoring           { return models.AnchorForward }
func (p *YahooCryptoProvider) Mode() models.FetchMode                { return models.FetchRange }
func (p *YahooCryptoProvider) MaxHistoryDays() int                   { return p.maxDays }

func (p *YahooCryptoProvider) FetchSeries(ctx context.Context, id string, req interfaces.SeriesRequest) (*models.PriceSeries, error) {
	closes, err := p.client.GetDailyCloses(ctx, id, req.From, req.To)
	if err != nil {
		return nil, err
	}
	return models.NewPriceSeries(p.Name(), id, closes), nil
}
