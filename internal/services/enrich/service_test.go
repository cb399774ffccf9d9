package enrich

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/interfaces"
	"github.com/ternarybob/datlens/internal/models"
	"github.com/ternarybob/datlens/internal/services/prices"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type stubProvider struct {
	name    string
	symbols map[string]string
	closes  map[string]float64
	mode    models.FetchMode
	calls   int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) ResolveSymbol(s string) (string, bool) {
	if p.symbols == nil {
		return s, s != ""
	}
	id, ok := p.symbols[s]
	return id, ok
}

func (p *stubProvider) FetchSeries(_ context.Context, id string, req interfaces.SeriesRequest) (*models.PriceSeries, error) {
	p.calls++
	if p.mode == models.FetchPoint {
		key := req.From.Format(common.DateLayout)
		if v, ok := p.closes[key]; ok {
			return models.NewPriceSeries(p.name, id, map[string]float64{key: v}), nil
		}
		return models.NewPriceSeries(p.name, id, nil), nil
	}
	return models.NewPriceSeries(p.name, id, p.closes), nil
}

func (p *stubProvider) Anchoring() models.Anchoring { return models.AnchorBackward }
func (p *stubProvider) Mode() models.FetchMode      { return p.mode }
func (p *stubProvider) MaxHistoryDays() int         { return 0 }

func mstrSeries() *stubProvider {
	return &stubProvider{name: "equity", closes: map[string]float64{
		"2025-01-03": 100,
		"2025-01-04": 101,
		"2025-01-05": 102,
		"2025-01-06": 103,
		"2025-01-07": 104,
		"2025-01-08": 105,
	}}
}

func newTestService(equity, token interfaces.PriceProvider) *Service {
	chains := &prices.Chains{}
	if equity != nil {
		chains.Equity = []interfaces.PriceProvider{equity}
	}
	if token != nil {
		chains.Token = []interfaces.PriceProvider{token}
	}
	cfg := common.NewDefaultConfig().Enrich
	return NewService(chains, cfg, nil, WithClock(func() time.Time { return testNow }))
}

func writeCard(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func readCard(t *testing.T, path string) *models.FactCard {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	card, err := models.ParseFactCard(data)
	require.NoError(t, err)
	return card
}

func TestRun_FillsEquityFieldsAndPreservesExisting(t *testing.T) {
	dir := t.TempDir()
	path := writeCard(t, dir, "mstr.json", `{
  "Stock Ticker": "MSTR",
  "Token": "N/A",
  "Raise Ann. Date": "2025-01-05",
  "Share Price on Ann. Date": "N/A",
  "1D Stock Perf": "N/A",
  "7D Stock Perf": "12.34%",
  "D Stock Perf": ""
}`)

	svc := newTestService(mstrSeries(), nil)
	result, err := svc.Run(context.Background(), dir, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Saved)
	assert.Equal(t, []string{path}, result.Outputs)

	card := readCard(t, path)
	assert.Equal(t, "102.00", card.Get(models.FieldSharePrice))
	assert.Equal(t, "0.98%", card.Get("1D Stock Perf"))
	assert.Equal(t, "12.34%", card.Get("7D Stock Perf"), "populated values are never overwritten")
	assert.Equal(t, "0.99%", card.Get("D Stock Perf"))
	assert.Equal(t, "N/A", card.Get("-7D Stock Perf"), "no close on or before 2024-12-29")
	assert.Equal(t, "N/A", card.Get(models.FieldToken))

	// original field order is kept, new fields appended
	keys := card.Keys()
	assert.Equal(t, []string{"Stock Ticker", "Token", "Raise Ann. Date", "Share Price on Ann. Date", "1D Stock Perf", "7D Stock Perf", "D Stock Perf"}, keys[:7])
}

func TestRun_SecondPassIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := writeCard(t, dir, "mstr.json", `{"Stock Ticker": "$mstr", "Raise Ann. Date": "2025-01-05T00:00:00Z"}`)

	svc := newTestService(mstrSeries(), nil)
	first, err := svc.Run(context.Background(), dir, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Saved)

	after1, err := os.ReadFile(path)
	require.NoError(t, err)

	second, err := svc.Run(context.Background(), dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Saved)
	assert.Equal(t, 1, second.Unchanged)

	after2, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(after1), string(after2))
}

func TestRun_TokenWithoutDateUsesInferredReference(t *testing.T) {
	dir := t.TempDir()
	path := writeCard(t, dir, "btc.json", `{"Token": "btc", "Raise Ann. Date": "N/A"}`)

	token := &stubProvider{
		name:    "point",
		mode:    models.FetchPoint,
		symbols: map[string]string{"BTC": "bitcoin"},
		closes:  map[string]float64{"2025-02-27": 80000, "2025-02-28": 84000},
	}
	svc := newTestService(nil, token)

	result, err := svc.Run(context.Background(), dir, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Saved)

	card := readCard(t, path)
	assert.Equal(t, "N/A", card.Get(models.FieldAnnouncement), "announcement date is never fabricated")
	assert.Equal(t, "2025-02-28", card.Get(models.FieldInferredRefDate))
	assert.Equal(t, "84000.00", card.Get(models.FieldTokenPrice))
	assert.Equal(t, "5.00%", card.Get("D Token Perf"))
	assert.Equal(t, "N/A", card.Get("1D Token Perf"), "2025-03-01 is after the data but still requested")
	assert.False(t, card.Has("30D Token Perf"), "30-day token metric needs +/-30 offsets configured")
}

func TestRun_UnmappedTokenIsSkippedNotFailed(t *testing.T) {
	dir := t.TempDir()
	path := writeCard(t, dir, "pepe.json", `{"Token": "PEPE", "Raise Ann. Date": "2025-01-05"}`)
	before, _ := os.ReadFile(path)

	token := &stubProvider{name: "cg", symbols: map[string]string{"BTC": "bitcoin"}}
	svc := newTestService(nil, token)

	result, err := svc.Run(context.Background(), dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, token.calls)

	after, _ := os.ReadFile(path)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, result.Prices.Unresolved)
}

func TestRun_SkipsUnparseableAndSymbolless(t *testing.T) {
	dir := t.TempDir()
	writeCard(t, dir, "a_bad.json", `{not json`)
	writeCard(t, dir, "b_array.json", `["MSTR"]`)
	writeCard(t, dir, "c_empty.json", `{"Stock Name": "Nobody"}`)
	writeCard(t, dir, "notes.txt", `{"Stock Ticker": "MSTR"}`)

	svc := newTestService(mstrSeries(), nil)
	result, err := svc.Run(context.Background(), dir, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Skipped)
	assert.Len(t, result.Failures, 2)
	assert.Equal(t, 0, result.Saved)
}

func TestRun_FileLimit(t *testing.T) {
	dir := t.TempDir()
	writeCard(t, dir, "b.json", `{"Stock Ticker": "MSTR", "Raise Ann. Date": "2025-01-05"}`)
	first := writeCard(t, dir, "a.json", `{"Stock Ticker": "MSTR", "Raise Ann. Date": "2025-01-06"}`)

	equity := mstrSeries()
	svc := newTestService(equity, nil)
	result, err := svc.Run(context.Background(), dir, Options{FileLimit: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{first}, result.Outputs)
	assert.Equal(t, 1, equity.calls)
}

func TestRun_CachesSeriesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeCard(t, dir, "a.json", `{"Stock Ticker": "MSTR", "Raise Ann. Date": "2025-01-05"}`)
	writeCard(t, dir, "b.json", `{"Stock Ticker": "mstr", "Raise Ann. Date": "2025-01-05"}`)

	equity := mstrSeries()
	svc := newTestService(equity, nil)
	result, err := svc.Run(context.Background(), dir, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, 1, equity.calls)
	assert.Equal(t, 1, result.Prices.CacheHits)
}

func TestRun_MissingDirectory(t *testing.T) {
	svc := newTestService(mstrSeries(), nil)
	_, err := svc.Run(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrDirNotFound))
}

func TestFieldTables(t *testing.T) {
	assert.Equal(t, []string{
		"Share Price on Ann. Date",
		"1D Stock Perf", "7D Stock Perf", "30D Stock Perf",
		"D Stock Perf", "-7D Stock Perf", "-7 to -1D Stock Perf", "-30D Stock Perf (to D-1)",
	}, EquityFields([]int{-30, -7, -1, 0, 1, 7, 30}))

	assert.Equal(t, []string{
		"Token Price on Ann. Date",
		"1D Token Perf", "7D Token Perf",
		"D Token Perf", "-7D Token Perf", "-7 to -1D Token Perf",
	}, TokenFields([]int{-7, -1, 0, 1, 7}))
}
