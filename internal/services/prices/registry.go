package prices

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datlens/internal/alphavantage"
	"github.com/ternarybob/datlens/internal/coingecko"
	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/eodhd"
	"github.com/ternarybob/datlens/internal/interfaces"
	"github.com/ternarybob/datlens/internal/yahoo"
)

// ErrMissingAPIKey is returned when a configured provider needs a key that is not set.
var ErrMissingAPIKey = errors.New("missing API key")

// Chains holds the ordered equity and token provider fallback chains.
type Chains struct {
	Equity []interfaces.PriceProvider
	Token  []interfaces.PriceProvider
}

// Names lists provider names for logging.
func Names(chain []interfaces.PriceProvider) []string {
	names := make([]string, 0, len(chain))
	for _, p := range chain {
		names = append(names, p.Name())
	}
	return names
}

// clientSet lazily creates one client per back end so providers sharing a
// back end (equity and crypto on the same API) share its rate limit.
type clientSet struct {
	cfg        *common.Config
	logger     arbor.ILogger
	httpClient *http.Client

	alpha *alphavantage.Client
	yh    *yahoo.Client
	eod   *eodhd.Client
	cg    *coingecko.Client
}

func (c *clientSet) alphaVantage() (*alphavantage.Client, error) {
	if c.alpha != nil {
		return c.alpha, nil
	}
	av := c.cfg.Providers.AlphaVantage
	if av.APIKey == "" {
		return nil, fmt.Errorf("alphavantage: %w (set ALPHAVANTAGE_API_KEY)", ErrMissingAPIKey)
	}
	c.alpha = alphavantage.NewClient(av.APIKey,
		alphavantage.WithBaseURL(av.BaseURL),
		alphavantage.WithHTTPClient(c.httpClient),
		alphavantage.WithLogger(c.logger),
		alphavantage.WithUserAgent(c.cfg.Providers.UserAgent),
		alphavantage.WithInterval(common.ParseDuration(av.RateLimit, alphavantage.DefaultInterval)),
	)
	return c.alpha, nil
}

func (c *clientSet) yahoo() *yahoo.Client {
	if c.yh == nil {
		y := c.cfg.Providers.Yahoo
		c.yh = yahoo.NewClient(
			yahoo.WithBaseURL(y.BaseURL),
			yahoo.WithHTTPClient(c.httpClient),
			yahoo.WithLogger(c.logger),
			yahoo.WithUserAgent(c.cfg.Providers.UserAgent),
			yahoo.WithInterval(common.ParseDuration(y.RateLimit, yahoo.DefaultInterval)),
		)
	}
	return c.yh
}

func (c *clientSet) eodhd() (*eodhd.Client, error) {
	if c.eod != nil {
		return c.eod, nil
	}
	e := c.cfg.Providers.EODHD
	if e.APIKey == "" {
		return nil, fmt.Errorf("eodhd: %w (set EODHD_API_KEY)", ErrMissingAPIKey)
	}
	rps := e.RateLimit
	if rps <= 0 {
		rps = eodhd.DefaultRateLimit
	}
	c.eod = eodhd.NewClient(e.APIKey,
		eodhd.WithBaseURL(e.BaseURL),
		eodhd.WithHTTPClient(c.httpClient),
		eodhd.WithLogger(c.logger),
		eodhd.WithUserAgent(c.cfg.Providers.UserAgent),
		eodhd.WithRateLimit(rps),
	)
	return c.eod, nil
}

func (c *clientSet) coinGecko() *coingecko.Client {
	if c.cg == nil {
		g := c.cfg.Providers.CoinGecko
		c.cg = coingecko.NewClient(g.APIKey,
			coingecko.WithBaseURL(g.BaseURL),
			coingecko.WithProBaseURL(g.ProBaseURL),
			coingecko.WithHTTPClient(c.httpClient),
			coingecko.WithLogger(c.logger),
			coingecko.WithUserAgent(c.cfg.Providers.UserAgent),
			coingecko.WithCallDelay(common.ParseDuration(g.CallDelay, coingecko.DefaultCallDelay)),
		)
	}
	return c.cg
}

// NewChains builds the provider chains named in [enrich]. A provider that needs
// an API key which is not configured is a hard error.
func NewChains(cfg *common.Config, logger arbor.ILogger) (*Chains, error) {
	if logger == nil {
		logger = common.GetLogger()
	}
	clients := &clientSet{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: common.ParseDuration(cfg.Providers.Timeout, 30*time.Second),
		},
	}

	chains := &Chains{}
	for _, name := range cfg.Enrich.EquityProviders {
		p, err := clients.provider(name)
		if err != nil {
			return nil, err
		}
		chains.Equity = append(chains.Equity, p)
	}
	for _, name := range cfg.Enrich.TokenProviders {
		p, err := clients.provider(name)
		if err != nil {
			return nil, err
		}
		chains.Token = append(chains.Token, p)
	}
	return chains, nil
}

func (c *clientSet) provider(name string) (interfaces.PriceProvider, error) {
	p := c.cfg.Providers
	switch name {
	case ProviderAlphaVantage:
		client, err := c.alphaVantage()
		if err != nil {
			return nil, err
		}
		maxDays := p.AlphaVantage.MaxHistoryDays
		if p.AlphaVantage.OutputSize == alphavantage.OutputFull {
			maxDays = 0
		}
		return NewAlphaVantageProvider(client, p.AlphaVantage.OutputSize, maxDays), nil
	case ProviderAlphaVantageCrypto:
		client, err := c.alphaVantage()
		if err != nil {
			return nil, err
		}
		return NewAlphaVantageCryptoProvider(client), nil
	case ProviderYahoo:
		return NewYahooProvider(c.yahoo(), p.Yahoo.MaxHistoryDays), nil
	case ProviderYahooCrypto:
		return NewYahooCryptoProvider(c.yahoo(), p.Yahoo.MaxHistoryDays), nil
	case ProviderEODHD:
		client, err := c.eodhd()
		if err != nil {
			return nil, err
		}
		return NewEODHDProvider(client, p.EODHD.Exchange, p.EODHD.MaxHistoryDays), nil
	case ProviderCoinGeckoRange:
		return NewCoinGeckoRangeProvider(c.coinGecko(), p.CoinGecko.FreeDepthDays, p.CoinGecko.ProDepthDays), nil
	case ProviderCoinGeckoPoint:
		return NewCoinGeckoPointProvider(c.coinGecko(), p.CoinGecko.FreeDepthDays, p.CoinGecko.ProDepthDays), nil
	default:
		return nil, fmt.Errorf("unknown price provider %q", name)
	}
}
