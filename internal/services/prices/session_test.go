package prices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/interfaces"
	"github.com/ternarybob/datlens/internal/models"
)

// fakeProvider serves closes from a fixed map and records every call.
type fakeProvider struct {
	name      string
	symbols   map[string]string
	closes    map[string]float64
	anchoring models.Anchoring
	mode      models.FetchMode
	maxDays   int
	err       error
	requests  []interfaces.SeriesRequest
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ResolveSymbol(s string) (string, bool) {
	if f.symbols == nil {
		return s, s != ""
	}
	id, ok := f.symbols[s]
	return id, ok
}

func (f *fakeProvider) FetchSeries(_ context.Context, id string, req interfaces.SeriesRequest) (*models.PriceSeries, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.mode == models.FetchPoint {
		key := req.From.Format(common.DateLayout)
		v, ok := f.closes[key]
		if !ok {
			return models.NewPriceSeries(f.name, id, nil), nil
		}
		return models.NewPriceSeries(f.name, id, map[string]float64{key: v}), nil
	}
	return models.NewPriceSeries(f.name, id, f.closes), nil
}

func (f *fakeProvider) Anchoring() models.Anchoring { return f.anchoring }
func (f *fakeProvider) Mode() models.FetchMode      { return f.mode }
func (f *fakeProvider) MaxHistoryDays() int         { return f.maxDays }

var testToday = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSession() *Session {
	return NewSession(nil, WithClock(func() time.Time { return testToday }))
}

func TestSession_DepthCeilingSkipsNetwork(t *testing.T) {
	provider := &fakeProvider{name: "fake", maxDays: 365, closes: map[string]float64{"2023-01-01": 1}}
	session := newTestSession()

	ref := common.AddDays(testToday, -400)
	quote := session.Lookup(context.Background(), []interfaces.PriceProvider{provider}, "BTC", ref, []int{-7, -1, 0, 1, 7})

	assert.Empty(t, provider.requests, "no network call for dates past the ceiling")
	assert.True(t, quote.Resolved)
	assert.Equal(t, models.NoPrice, quote.At(0))
	assert.Equal(t, "N/A", quote.At(0).String())
	assert.Equal(t, 5, session.Stats().SkippedDepth)
}

func TestSession_FutureDatesSkipped(t *testing.T) {
	provider := &fakeProvider{name: "fake", mode: models.FetchPoint, closes: map[string]float64{"2025-03-01": 10}}
	session := newTestSession()

	quote := session.Lookup(context.Background(), []interfaces.PriceProvider{provider}, "BTC", testToday, []int{-1, 0, 1, 7})

	require.Len(t, provider.requests, 2, "only -1 and 0 are requested")
	assert.Equal(t, models.PriceOf(10), quote.At(0))
	assert.False(t, quote.At(1).Valid)
	assert.Equal(t, 2, session.Stats().SkippedFuture)
}

func TestSession_AsOfHorizon(t *testing.T) {
	provider := &fakeProvider{name: "fake", closes: map[string]float64{"2025-01-02": 10, "2025-01-03": 11}}
	asOf := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	session := NewSession(nil, WithClock(func() time.Time { return testToday }), WithAsOf(asOf))

	quote := session.Lookup(context.Background(), []interfaces.PriceProvider{provider}, "MSTR", asOf, []int{0, 1})
	assert.Equal(t, models.PriceOf(11), quote.At(0))
	assert.False(t, quote.At(1).Valid)
}

func TestSession_RangeCache(t *testing.T) {
	provider := &fakeProvider{name: "fake", closes: map[string]float64{
		"2025-01-03": 10, "2025-01-06": 11, "2025-01-07": 12,
	}}
	session := newTestSession()
	chain := []interfaces.PriceProvider{provider}
	ref := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	first := session.Lookup(context.Background(), chain, "MSTR", ref, []int{-1, 0, 1})
	second := session.Lookup(context.Background(), chain, "MSTR", ref, []int{-1, 0, 1})

	require.Len(t, provider.requests, 1, "second lookup served from the session cache")
	assert.Equal(t, first.Prices, second.Prices)
	assert.Equal(t, models.PriceOf(10), first.At(-1))
	assert.Equal(t, 1, session.Stats().CacheHits)

	// a fresh session never sees the previous run's series
	other := newTestSession()
	other.Lookup(context.Background(), chain, "MSTR", ref, []int{0})
	assert.Len(t, provider.requests, 2)
}

func TestSession_CompleteSeriesCoversAnyWindow(t *testing.T) {
	provider := &completeProvider{fakeProvider{name: "full", closes: map[string]float64{"2025-01-03": 10, "2025-02-03": 20}}}
	session := newTestSession()
	chain := []interfaces.PriceProvider{provider}

	session.Lookup(context.Background(), chain, "MSTR", time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), []int{0})
	quote := session.Lookup(context.Background(), chain, "MSTR", time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), []int{0})

	assert.Len(t, provider.requests, 1)
	assert.Equal(t, models.PriceOf(20), quote.At(0))
}

type completeProvider struct {
	fakeProvider
}

func (c *completeProvider) FetchSeries(ctx context.Context, id string, req interfaces.SeriesRequest) (*models.PriceSeries, error) {
	s, err := c.fakeProvider.FetchSeries(ctx, id, req)
	if s != nil {
		s.Complete = true
	}
	return s, err
}

func TestSession_FallbackChain(t *testing.T) {
	failing := &fakeProvider{name: "primary", err: errors.New("throttled")}
	backup := &fakeProvider{name: "backup", closes: map[string]float64{"2025-01-06": 42}}
	session := newTestSession()
	chain := []interfaces.PriceProvider{failing, backup}
	ref := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	quote := session.Lookup(context.Background(), chain, "MSTR", ref, []int{0})
	assert.Equal(t, "backup", quote.Provider)
	assert.Equal(t, models.PriceOf(42), quote.At(0))

	// the failure is remembered for the rest of the run
	session.Lookup(context.Background(), chain, "MSTR", ref, []int{0})
	assert.Len(t, failing.requests, 1)
	assert.Equal(t, 1, session.Stats().Failures)
}

func TestSession_UnresolvedSymbol(t *testing.T) {
	provider := &fakeProvider{name: "cg", symbols: map[string]string{"BTC": "bitcoin"}}
	session := newTestSession()

	quote := session.Lookup(context.Background(), []interfaces.PriceProvider{provider}, "PEPE", testToday, []int{0})
	assert.False(t, quote.Resolved)
	assert.Empty(t, provider.requests)
	assert.Equal(t, 1, session.Stats().Unresolved)
}

func TestSession_PointModeProbesOncePerDate(t *testing.T) {
	provider := &fakeProvider{
		name:    "point",
		mode:    models.FetchPoint,
		symbols: map[string]string{"BTC": "bitcoin"},
		closes:  map[string]float64{"2025-01-04": 97000, "2025-01-05": 98000},
	}
	session := newTestSession()
	chain := []interfaces.PriceProvider{provider}
	ref := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

	quote := session.Lookup(context.Background(), chain, "BTC", ref, []int{-7, -1, 0, 1, 7})
	assert.Len(t, provider.requests, 5)
	assert.Equal(t, models.PriceOf(98000), quote.At(0))
	assert.Equal(t, models.PriceOf(97000), quote.At(-1))
	assert.False(t, quote.At(7).Valid, "point providers do not anchor to neighbouring days")

	session.Lookup(context.Background(), chain, "BTC", ref, []int{-1, 0})
	assert.Len(t, provider.requests, 5)
}

func TestSession_RangeWindowPadded(t *testing.T) {
	provider := &fakeProvider{name: "fake", closes: map[string]float64{"2025-01-03": 10}}
	session := newTestSession()
	ref := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	session.Lookup(context.Background(), []interfaces.PriceProvider{provider}, "MSTR", ref, []int{-1, 0, 1})

	require.Len(t, provider.requests, 1)
	assert.Equal(t, "2024-12-29", provider.requests[0].From.Format(common.DateLayout))
	assert.Equal(t, "2025-01-14", provider.requests[0].To.Format(common.DateLayout))
}

func TestSession_RangeWindowStopsAfterAsOf(t *testing.T) {
	provider := &fakeProvider{name: "fake", closes: map[string]float64{"2025-01-03": 10}}
	asOf := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	session := NewSession(nil, WithClock(func() time.Time { return testToday }), WithAsOf(asOf))
	ref := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)

	session.Lookup(context.Background(), []interfaces.PriceProvider{provider}, "MSTR", ref, []int{-1, 0, 1})

	require.Len(t, provider.requests, 1)
	assert.Equal(t, "2024-12-26", provider.requests[0].From.Format(common.DateLayout))
	assert.Equal(t, "2025-01-07", provider.requests[0].To.Format(common.DateLayout))
}
