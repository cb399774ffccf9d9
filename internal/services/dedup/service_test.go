package dedup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/datlens/internal/common"
)

const cardPrefix = `{"Stock Ticker": "MSTR", "Token": "BTC", "Raise Ann. Date": "2025-01-05", "Notes": "`

// writeSized writes a duplicate MSTR/BTC/2025-01-05 card of exactly size bytes.
func writeSized(t *testing.T, dir, name string, size int) string {
	t.Helper()
	pad := size - len(cardPrefix) - len(`"}`)
	require.GreaterOrEqual(t, pad, 0)
	body := cardPrefix + strings.Repeat("x", pad) + `"}`
	require.Len(t, body, size)
	return writeFile(t, dir, name, body)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func setMtime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func defaultOptions(strategy string) Options {
	return Options{Strategy: strategy, RequireAllKeyFields: true, CascadeToRelatedFiles: true}
}

func TestRun_LargestQuarantinesLosers(t *testing.T) {
	dir := t.TempDir()
	a := writeSized(t, dir, "a.json", 100)
	b := writeSized(t, dir, "b.json", 200)
	c := writeSized(t, dir, "c.json", 150)

	result, err := NewService(nil).Run(context.Background(), dir, defaultOptions(StrategyLargest))
	require.NoError(t, err)

	assert.Equal(t, 1, result.GroupsConsidered)
	assert.Equal(t, 1, result.GroupsDeduped)
	assert.Equal(t, 1, result.KeptCount)
	assert.Equal(t, []string{b}, result.Kept)
	assert.Equal(t, 2, result.DuplicateCount)
	require.Len(t, result.Actions, 2)
	for _, action := range result.Actions {
		assert.Equal(t, ActionMoved, action.Action)
	}

	assert.FileExists(t, b)
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, c)
	assert.FileExists(t, filepath.Join(dir, TrashDirName, "a.json"))
	assert.FileExists(t, filepath.Join(dir, TrashDirName, "c.json"))
}

func TestRun_NormalizedKeysGroupTogether(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.json", `{"Stock Ticker": "MSTR", "Token": "btc", "Raise Ann. Date": "2025-01-05"}`)
	writeFile(t, dir, "two.json", `{"Stock Ticker": "$MSTR", "Token": "BTC", "Raise Ann. Date": "2025-01-05T00:00:00Z"}`)

	result, err := NewService(nil).Run(context.Background(), dir, Options{Strategy: StrategyFirst, RequireAllKeyFields: true, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, result.GroupsConsidered)
	assert.Equal(t, 1, result.GroupsDeduped)
	assert.Equal(t, []string{filepath.Join(dir, "one.json")}, result.Kept)
}

func TestRun_DryRunLeavesFilesystemUntouched(t *testing.T) {
	dir := t.TempDir()
	a := writeSized(t, dir, "a.json", 100)
	writeSized(t, dir, "b.json", 200)
	c := writeSized(t, dir, "c.json", 150)
	writeFile(t, dir, "a.orig.txt", "original text")

	svc := NewService(nil)
	opts := defaultOptions(StrategyLargest)
	opts.DryRun = true

	plan, err := svc.Run(context.Background(), dir, opts)
	require.NoError(t, err)

	assert.True(t, plan.DryRun)
	assert.Equal(t, 3, plan.DuplicateCount)
	require.Len(t, plan.Actions, 3)
	assert.Equal(t, ActionPlannedMove, plan.Actions[0].Action)
	assert.Equal(t, a, plan.Actions[0].From)
	assert.Equal(t, filepath.Join(dir, TrashDirName, "a.json"), plan.Actions[0].To)
	assert.True(t, plan.Actions[1].Related)
	assert.Equal(t, c, plan.Actions[2].From)

	assert.FileExists(t, a)
	assert.FileExists(t, c)
	assert.NoDirExists(t, filepath.Join(dir, TrashDirName))

	// executing afterwards follows the same plan
	opts.DryRun = false
	done, err := svc.Run(context.Background(), dir, opts)
	require.NoError(t, err)
	require.Len(t, done.Actions, len(plan.Actions))
	for i := range plan.Actions {
		assert.Equal(t, plan.Actions[i].From, done.Actions[i].From)
		assert.Equal(t, plan.Actions[i].To, done.Actions[i].To)
	}
}

func TestRun_DeterministicTieBreak(t *testing.T) {
	mtime := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	for _, strategy := range []string{StrategyLargest, StrategyNewest, StrategyMostFilled, StrategyFirst} {
		t.Run(strategy, func(t *testing.T) {
			dir := t.TempDir()
			for _, name := range []string{"c.json", "a.json", "b.json"} {
				setMtime(t, writeSized(t, dir, name, 120), mtime)
			}

			opts := defaultOptions(strategy)
			opts.DryRun = true
			for i := 0; i < 3; i++ {
				result, err := NewService(nil).Run(context.Background(), dir, opts)
				require.NoError(t, err)
				assert.Equal(t, []string{filepath.Join(dir, "a.json")}, result.Kept)
			}
		})
	}
}

func TestRun_NewestAndMostFilled(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "old.json", `{"Stock Ticker": "MSTR", "Token": "BTC", "Raise Ann. Date": "2025-01-05", "A": "1", "B": "2", "C": "3"}`)
	recent := writeFile(t, dir, "recent.json", `{"Stock Ticker": "MSTR", "Token": "BTC", "Raise Ann. Date": "2025-01-05", "A": "N/A", "B": "", "C": "N/A", "D": "N/A"}`)
	setMtime(t, old, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	setMtime(t, recent, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	svc := NewService(nil)

	newest, err := svc.Run(context.Background(), dir, Options{Strategy: StrategyNewest, RequireAllKeyFields: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{recent}, newest.Kept)

	filled, err := svc.Run(context.Background(), dir, Options{Strategy: StrategyMostFilled, RequireAllKeyFields: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{old}, filled.Kept)
}

func TestRun_CascadeSkipsWinnerSiblings(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "1234.json", 100)
	writeSized(t, dir, "5678.json", 200)
	writeFile(t, dir, "1234.orig.txt", "loser source")
	writeFile(t, dir, "1234.txt", "loser text")
	writeFile(t, dir, "5678.orig.txt", "winner source")
	writeFile(t, dir, "12345.txt", "different stem")

	result, err := NewService(nil).Run(context.Background(), dir, defaultOptions(StrategyLargest))
	require.NoError(t, err)

	assert.Equal(t, 3, result.DuplicateCount)
	assert.NoFileExists(t, filepath.Join(dir, "1234.orig.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "1234.txt"))
	assert.FileExists(t, filepath.Join(dir, TrashDirName, "1234.orig.txt"))
	assert.FileExists(t, filepath.Join(dir, "5678.orig.txt"))
	assert.FileExists(t, filepath.Join(dir, "12345.txt"))
}

func TestRun_QuarantineNameCollision(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "a.json", 100)
	writeSized(t, dir, "b.json", 200)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, TrashDirName), 0755))
	writeFile(t, filepath.Join(dir, TrashDirName), "a.json", "earlier run")

	result, err := NewService(nil).Run(context.Background(), dir, defaultOptions(StrategyLargest))
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	assert.Equal(t, filepath.Join(dir, TrashDirName, "a__1.json"), result.Actions[0].To)
	data, err := os.ReadFile(filepath.Join(dir, TrashDirName, "a.json"))
	require.NoError(t, err)
	assert.Equal(t, "earlier run", string(data))
}

func TestRun_DeleteMode(t *testing.T) {
	dir := t.TempDir()
	a := writeSized(t, dir, "a.json", 100)
	writeSized(t, dir, "b.json", 200)

	opts := defaultOptions(StrategyLargest)
	opts.DeleteInsteadOfQuarantine = true
	result, err := NewService(nil).Run(context.Background(), dir, opts)
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	assert.Equal(t, ActionDeleted, result.Actions[0].Action)
	assert.NoFileExists(t, a)
	assert.NoDirExists(t, filepath.Join(dir, TrashDirName))
}

func TestRun_DisposalFailureDoesNotAbortBatch(t *testing.T) {
	dir := t.TempDir()
	a := writeSized(t, dir, "a.json", 100)
	b := writeSized(t, dir, "b.json", 200)
	c := writeSized(t, dir, "c.json", 150)
	// A plain file where the quarantine directory should go
	writeFile(t, dir, TrashDirName, "not a directory")

	result, err := NewService(nil).Run(context.Background(), dir, defaultOptions(StrategyLargest))
	require.NoError(t, err)

	assert.Equal(t, []string{b}, result.Kept)
	assert.Equal(t, 2, result.DuplicateCount)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Actions, 2)
	assert.Equal(t, a, result.Actions[0].From)
	assert.Equal(t, c, result.Actions[1].From)
	for _, action := range result.Actions {
		assert.Equal(t, ActionFailed, action.Action)
		assert.NotEmpty(t, action.Error)
	}

	assert.FileExists(t, a)
	assert.FileExists(t, b)
	assert.FileExists(t, c)
}

func TestRun_PartialKeys(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"Stock Ticker": "MSTR", "Raise Ann. Date": "2025-01-05"}`)
	writeFile(t, dir, "b.json", `{"Stock Ticker": "MSTR", "Token": "N/A", "Raise Ann. Date": "05/01/2025"}`)
	writeFile(t, dir, "c.json", `{"Stock Ticker": "MSTR", "Token": "BTC"}`)

	svc := NewService(nil)

	strict, err := svc.Run(context.Background(), dir, Options{Strategy: StrategyFirst, RequireAllKeyFields: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 0, strict.GroupsConsidered)

	relaxed, err := svc.Run(context.Background(), dir, Options{Strategy: StrategyFirst, RequireAllKeyFields: false, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, relaxed.GroupsConsidered, "cards without a date are never grouped")
	assert.Equal(t, 1, relaxed.GroupsDeduped)
	assert.Equal(t, 1, relaxed.DuplicateCount)
}

func TestRun_IgnoresUnparseableFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", `{"Stock Ticker": `)
	writeFile(t, dir, "list.json", `[1, 2, 3]`)
	writeSized(t, dir, "ok.json", 100)

	result, err := NewService(nil).Run(context.Background(), dir, defaultOptions(StrategyLargest))
	require.NoError(t, err)
	assert.Equal(t, 1, result.GroupsConsidered)
	assert.Equal(t, 0, result.GroupsDeduped)
	assert.Empty(t, result.Actions)
}

func TestRun_Preconditions(t *testing.T) {
	svc := NewService(nil)

	_, err := svc.Run(context.Background(), t.TempDir(), Options{Strategy: "biggest"})
	assert.Error(t, err)

	_, err = svc.Run(context.Background(), filepath.Join(t.TempDir(), "nope"), defaultOptions(StrategyLargest))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrDirNotFound))
}
