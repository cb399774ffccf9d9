package prices

import (
	"context"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/interfaces"
	"github.com/ternarybob/datlens/internal/models"
)

const (
	// lookbackPad widens range requests so backward anchoring can reach the
	// previous trading day across weekends and holidays.
	lookbackPad = 7
	// lookaheadPad does the same for forward anchoring.
	lookaheadPad = 7
)

// SessionStats counts what a session did.
type SessionStats struct {
	Calls         int `json:"calls"`
	CacheHits     int `json:"cache_hits"`
	Failures      int `json:"failures"`
	SkippedDepth  int `json:"skipped_depth"`
	SkippedFuture int `json:"skipped_future"`
	Unresolved    int `json:"unresolved"`
}

// Quote holds the anchored prices for one symbol around a reference date.
type Quote struct {
	Symbol   string
	Provider string // provider that produced the prices; empty when none did
	Resolved bool   // at least one provider in the chain maps the symbol
	Prices   map[int]models.Price
}

// At returns the anchored price for a day offset, or NoPrice.
func (q *Quote) At(offset int) models.Price {
	if q == nil {
		return models.NoPrice
	}
	return q.Prices[offset]
}

type window struct {
	from, to time.Time
}

type seriesEntry struct {
	series   *models.PriceSeries
	covered  []window
	complete bool
	probed   map[time.Time]bool
	failed   bool
}

func (e *seriesEntry) covers(from, to time.Time) bool {
	if e.complete {
		return true
	}
	for _, w := range e.covered {
		if !from.Before(w.from) && !to.After(w.to) {
			return true
		}
	}
	return false
}

// Session is the price lookup state owned by a single enrichment run. Series
// are cached per (provider, symbol) for the life of the session and never
// shared with another run. A Session is not safe for concurrent use.
type Session struct {
	logger  arbor.ILogger
	asOf    time.Time
	now     func() time.Time
	entries map[string]*seriesEntry
	stats   SessionStats
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock replaces the wall clock used for depth ceilings and "today".
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAsOf sets the horizon: targets after asOf are treated as future dates.
func WithAsOf(asOf time.Time) SessionOption {
	return func(s *Session) {
		s.asOf = asOf
	}
}

// NewSession creates an empty lookup session.
func NewSession(logger arbor.ILogger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = common.GetLogger()
	}
	s := &Session{
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*seriesEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	return s.stats
}

// Lookup anchors prices for symbol at ref+offset days using the first provider
// in chain that maps the symbol and yields at least one price. Provider
// failures, depth-ceiling and future dates all degrade to NoPrice.
func (s *Session) Lookup(ctx context.Context, chain []interfaces.PriceProvider, symbol string, ref time.Time, offsets []int) *Quote {
	quote := &Quote{Symbol: symbol, Prices: make(map[int]models.Price)}
	if symbol == "" {
		return quote
	}

	for _, provider := range chain {
		id, ok := provider.ResolveSymbol(symbol)
		if !ok {
			continue
		}
		quote.Resolved = true

		prices, found := s.pricesFrom(ctx, provider, id, common.TruncateDay(ref), offsets)
		if found {
			quote.Provider = provider.Name()
			quote.Prices = prices
			return quote
		}
		s.logger.Debug().
			Str("provider", provider.Name()).
			Str("symbol", symbol).
			Msg("No prices from provider, trying next")
	}

	if !quote.Resolved {
		s.stats.Unresolved++
	}
	return quote
}

func (s *Session) horizon() time.Time {
	today := common.TruncateDay(s.now().UTC())
	if !s.asOf.IsZero() {
		if asOf := common.TruncateDay(s.asOf); asOf.Before(today) {
			return asOf
		}
	}
	return today
}

func (s *Session) pricesFrom(ctx context.Context, provider interfaces.PriceProvider, id string, ref time.Time, offsets []int) (map[int]models.Price, bool) {
	today := common.TruncateDay(s.now().UTC())
	horizon := s.horizon()

	var oldest time.Time
	if maxDays := provider.MaxHistoryDays(); maxDays > 0 {
		oldest = common.AddDays(today, -maxDays)
	}

	sorted := append([]int(nil), offsets...)
	sort.Ints(sorted)

	targets := make(map[int]time.Time, len(sorted))
	var keys []int
	for _, off := range sorted {
		if _, dup := targets[off]; dup {
			continue
		}
		t := common.AddDays(ref, off)
		if t.After(horizon) {
			s.stats.SkippedFuture++
			continue
		}
		if !oldest.IsZero() && t.Before(oldest) {
			s.stats.SkippedDepth++
			continue
		}
		targets[off] = t
		keys = append(keys, off)
	}
	if len(keys) == 0 {
		return nil, false
	}

	key := provider.Name() + "|" + id
	entry, ok := s.entries[key]
	if !ok {
		entry = &seriesEntry{
			series: models.NewPriceSeriesFromPoints(provider.Name(), id, nil),
			probed: make(map[time.Time]bool),
		}
		s.entries[key] = entry
	}
	if entry.failed {
		s.stats.CacheHits++
		return nil, false
	}

	prices := make(map[int]models.Price, len(keys))
	found := false

	if provider.Mode() == models.FetchPoint {
		for _, off := range keys {
			t := targets[off]
			if entry.probed[t] {
				s.stats.CacheHits++
			} else {
				entry.probed[t] = true
				if series, err := s.fetch(ctx, provider, id, interfaces.SeriesRequest{From: t, To: t}); err == nil {
					entry.series.Merge(series.Points())
				}
			}
			if c, ok := entry.series.CloseOn(t); ok {
				prices[off] = models.PriceOf(c)
				found = true
			}
		}
		return prices, found
	}

	from := common.AddDays(targets[keys[0]], -lookbackPad)
	if !oldest.IsZero() && from.Before(oldest) {
		from = oldest
	}
	// One day past the horizon lets forward anchoring cover a horizon that
	// falls on a non-trading day without reaching further into the future.
	limit := common.AddDays(horizon, 1)
	if limit.After(today) {
		limit = today
	}
	to := common.AddDays(targets[keys[len(keys)-1]], lookaheadPad)
	if to.After(limit) {
		to = limit
	}

	if entry.covers(from, to) {
		s.stats.CacheHits++
	} else {
		series, err := s.fetch(ctx, provider, id, interfaces.SeriesRequest{From: from, To: to})
		if err != nil {
			entry.failed = true
			return nil, false
		}
		entry.series.Merge(series.Points())
		entry.covered = append(entry.covered, window{from: from, to: to})
		if series.Complete {
			entry.complete = true
		}
	}

	for _, off := range keys {
		p := Anchor(entry.series, targets[off], provider.Anchoring())
		prices[off] = p
		found = found || p.Valid
	}
	return prices, found
}

func (s *Session) fetch(ctx context.Context, provider interfaces.PriceProvider, id string, req interfaces.SeriesRequest) (*models.PriceSeries, error) {
	s.stats.Calls++
	series, err := provider.FetchSeries(ctx, id, req)
	if err != nil {
		s.stats.Failures++
		s.logger.Warn().
			Str("provider", provider.Name()).
			Str("symbol", id).
			Str("from", req.From.Format(common.DateLayout)).
			Str("to", req.To.Format(common.DateLayout)).
			Err(err).
			Msg("Price fetch failed")
		return nil, err
	}
	if series == nil {
		series = models.NewPriceSeriesFromPoints(provider.Name(), id, nil)
	}
	s.logger.Debug().
		Str("provider", provider.Name()).
		Str("symbol", id).
		Int("points", series.Len()).
		Msg("Price series fetched")
	return series, nil
}
