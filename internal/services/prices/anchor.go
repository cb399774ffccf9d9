// Package prices resolves historical closing prices for fact-card enrichment:
// provider adapters, nearest-day anchoring, percentage changes and the per-run
// lookup session.
package prices

import (
	"sort"
	"time"

	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/models"
)

// Anchor resolves target onto a sparse series.
//
// Backward returns the latest close on or before target, or NoPrice when the
// series starts after target. Forward returns the first close on or after
// target and, past the end of the series, the most recent close.
func Anchor(series *models.PriceSeries, target time.Time, anchoring models.Anchoring) models.Price {
	pts := series.Points()
	if len(pts) == 0 {
		return models.NoPrice
	}
	target = common.TruncateDay(target)

	// first index with Date >= target
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].Date.Before(target) })

	switch anchoring {
	case models.AnchorForward:
		if i < len(pts) {
			return models.PriceOf(pts[i].Close)
		}
		return models.PriceOf(pts[len(pts)-1].Close)
	default:
		if i < len(pts) && pts[i].Date.Equal(target) {
			return models.PriceOf(pts[i].Close)
		}
		if i == 0 {
			return models.NoPrice
		}
		return models.PriceOf(pts[i-1].Close)
	}
}
