package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved provider chains.
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("DatLens", GetFullVersion())

	logger.Debug().
		Str("environment", config.Environment).
		Strs("equity_providers", config.Enrich.EquityProviders).
		Strs("token_providers", config.Enrich.TokenProviders).
		Bool("ledger", config.Storage.Badger.Enabled).
		Msg("Resolved configuration (sanitized)")
}
