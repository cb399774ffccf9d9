package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/models"
	"github.com/ternarybob/datlens/internal/services/dedup"
	"github.com/ternarybob/datlens/internal/services/enrich"
	"github.com/ternarybob/datlens/internal/services/export"
	"github.com/ternarybob/datlens/internal/services/prices"
)

// tickingClock advances one second per call so runs sort deterministically.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "ledger")

	opts = append([]Option{WithClock(tickingClock())}, opts...)
	a, err := New(cfg, arbor.NewLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func cardsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cards := map[string]string{
		"a.json": `{"Stock Ticker": "MSTR", "Token": "BTC", "Raise Ann. Date": "2025-01-05"}`,
		"b.json": `{"Stock Ticker": "$MSTR", "Token": "btc", "Raise Ann. Date": "2025-01-05", "Notes": "longer card"}`,
		"c.json": `{"Stock Ticker": "SMLR", "Token": "BTC", "Raise Ann. Date": "2025-01-10"}`,
	}
	for name, body := range cards {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func TestPipeline_RecordsEachStage(t *testing.T) {
	a := newTestApp(t, WithChains(&prices.Chains{}))
	dir := cardsDir(t)
	out := filepath.Join(t.TempDir(), "cards.csv")
	ctx := context.Background()

	result, err := a.Pipeline(ctx, dir, PipelineOptions{
		Dedup:  dedup.OptionsFromConfig(a.Config.Dedup),
		Export: export.OptionsFromConfig(a.Config.Export),
		Out:    out,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Dedup.GroupsDeduped)
	assert.Equal(t, 1, result.Dedup.DuplicateCount)
	require.NotNil(t, result.Enrich)
	require.NotNil(t, result.Export)
	assert.Equal(t, 2, result.Export.Rows)
	assert.FileExists(t, out)

	runs, err := a.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, models.RunKindExport, runs[0].Kind)
	assert.Equal(t, models.RunKindEnrich, runs[1].Kind)
	assert.Equal(t, models.RunKindDedupe, runs[2].Kind)

	dd := runs[2]
	assert.Equal(t, dir, dd.Dir)
	assert.Equal(t, 1, dd.Changed)
	assert.Empty(t, dd.Error)
	assert.True(t, strings.Contains(dd.Summary, `"groups_deduped":1`))
	assert.True(t, dd.FinishedAt.After(dd.StartedAt))
}

func TestPipeline_RejectsDryRun(t *testing.T) {
	a := newTestApp(t, WithChains(&prices.Chains{}))
	_, err := a.Pipeline(context.Background(), cardsDir(t), PipelineOptions{
		Dedup: dedup.Options{Strategy: dedup.StrategyLargest, DryRun: true},
	})
	assert.Error(t, err)
}

func TestEnrich_MissingKeyIsRecorded(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	_, err := a.Enrich(ctx, cardsDir(t), enrich.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, prices.ErrMissingAPIKey)

	runs, err := a.ListRuns(ctx, models.RunKindEnrich, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "missing API key")
}

func TestDedupe_FailureIsRecorded(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	_, err := a.Dedupe(ctx, filepath.Join(t.TempDir(), "missing"), dedup.OptionsFromConfig(a.Config.Dedup))
	require.Error(t, err)

	runs, err := a.ListRuns(ctx, models.RunKindDedupe, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].Error)
	assert.Empty(t, runs[0].Summary)
}

func TestNew_LedgerDisabled(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Enabled = false

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.RunStorage)
	_, err = a.Dedupe(context.Background(), cardsDir(t), dedup.Options{Strategy: dedup.StrategyFirst, DryRun: true})
	assert.NoError(t, err)

	_, err = a.ListRuns(context.Background(), "", 0)
	assert.Error(t, err)
}
