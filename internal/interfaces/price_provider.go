// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/datlens/internal/models"
)

// SeriesRequest is an inclusive day window. Point providers are always called
// with From == To.
type SeriesRequest struct {
	From time.Time
	To   time.Time
}

// PriceProvider fetches daily closing prices from one market-data back end.
// Implementations return errors for network, HTTP and throttling failures;
// the enrichment session degrades those to "not available".
type PriceProvider interface {
	// Name is the configuration name of the provider (e.g. "alphavantage").
	Name() string

	// ResolveSymbol maps a normalized ticker or token symbol to the identifier
	// the back end expects. ok is false when the provider cannot price it.
	ResolveSymbol(symbol string) (id string, ok bool)

	// FetchSeries returns closes for id within the request window. An empty
	// series with a nil error means the back end has no data for the window.
	FetchSeries(ctx context.Context, id string, req SeriesRequest) (*models.PriceSeries, error)

	// Anchoring is the nearest-day rule applied to this provider's series.
	Anchoring() models.Anchoring

	// Mode reports whether the provider answers ranges or single dates.
	Mode() models.FetchMode

	// MaxHistoryDays is the historical depth ceiling; 0 means unlimited.
	MaxHistoryDays() int
}

// Pacer gates outbound calls to respect provider rate limits.
type Pacer interface {
	Wait(ctx context.Context) error
}
