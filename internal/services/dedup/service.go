package dedup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/models"
)

// fileInfo is one grouped fact card.
type fileInfo struct {
	path   string
	name   string
	size   int64
	mtime  time.Time
	filled int
}

// Service runs deduplication over a folder. Runs are strictly sequential.
type Service struct {
	logger   arbor.ILogger
	validate *validator.Validate
}

// NewService creates a dedup service.
func NewService(logger arbor.ILogger) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Service{logger: logger, validate: validator.New()}
}

// OptionsFromConfig maps [dedup] configuration onto run options.
func OptionsFromConfig(cfg common.DedupConfig) Options {
	return Options{
		Strategy:                  cfg.Strategy,
		RequireAllKeyFields:       cfg.RequireAllKeyFields,
		DeleteInsteadOfQuarantine: cfg.DeleteInsteadOfQuarantine,
		CascadeToRelatedFiles:     cfg.CascadeToRelatedFiles,
	}
}

// Run groups the fact cards in dir by natural key, keeps one winner per
// duplicated group and quarantines or deletes the rest. Disposal failures are
// recorded per file and never abort the batch.
func (s *Service) Run(ctx context.Context, dir string, opts Options) (*Result, error) {
	if err := s.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid dedup options: %w", err)
	}
	files, err := common.ListFactCards(dir)
	if err != nil {
		return nil, err
	}

	keys, groups := s.group(files, opts.RequireAllKeyFields)

	result := &Result{
		Dir:              dir,
		GroupsConsidered: len(groups),
		Kept:             []string{},
		Actions:          []Action{},
		Strategy:         opts.Strategy,
		RequireAll:       opts.RequireAllKeyFields,
		RemoveDuplicates: opts.DeleteInsteadOfQuarantine,
		IncludeRelated:   opts.CascadeToRelatedFiles,
		DryRun:           opts.DryRun,
	}

	type removal struct {
		path    string
		related bool
	}
	var removals []removal
	seen := make(map[string]bool)
	winners := make(map[string]bool)

	for _, key := range keys {
		entries := groups[key]
		if len(entries) < 2 {
			continue
		}
		result.GroupsDeduped++
		winner := pickWinner(entries, opts.Strategy)
		winners[winner.path] = true
		result.Kept = append(result.Kept, winner.path)

		s.logger.Debug().
			Str("key", key.String()).
			Int("members", len(entries)).
			Str("winner", winner.name).
			Msg("Duplicate group")
	}

	for _, key := range keys {
		entries := groups[key]
		if len(entries) < 2 {
			continue
		}
		for _, e := range entries {
			if winners[e.path] || seen[e.path] {
				continue
			}
			seen[e.path] = true
			removals = append(removals, removal{path: e.path})

			if !opts.CascadeToRelatedFiles {
				continue
			}
			for _, rel := range relatedFiles(e.path) {
				if winners[rel] || seen[rel] {
					continue
				}
				seen[rel] = true
				removals = append(removals, removal{path: rel, related: true})
			}
		}
	}

	result.KeptCount = len(result.Kept)
	result.DuplicateCount = len(removals)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	trashDir := filepath.Join(dir, TrashDirName)
	planned := make(map[string]bool)
	for _, r := range removals {
		action := s.dispose(r.path, trashDir, opts, planned)
		action.Related = r.related
		if action.Action == ActionFailed {
			result.Failed++
		}
		if action.Action != "" {
			result.Actions = append(result.Actions, action)
		}
	}

	s.logger.Info().
		Str("dir", dir).
		Str("strategy", opts.Strategy).
		Int("groups", result.GroupsConsidered).
		Int("deduped", result.GroupsDeduped).
		Int("duplicates", result.DuplicateCount).
		Int("failed", result.Failed).
		Bool("dry_run", opts.DryRun).
		Msg("Deduplication complete")

	return result, nil
}

// group buckets parseable fact cards by natural key, returning keys in
// first-seen order.
func (s *Service) group(files []string, requireAll bool) ([]models.NaturalKey, map[models.NaturalKey][]*fileInfo) {
	groups := make(map[models.NaturalKey][]*fileInfo)
	var keys []models.NaturalKey

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Debug().Str("file", filepath.Base(path)).Err(err).Msg("Unreadable fact card excluded from grouping")
			continue
		}
		card, err := models.ParseFactCard(data)
		if err != nil {
			s.logger.Debug().Str("file", filepath.Base(path)).Err(err).Msg("Unparseable fact card excluded from grouping")
			continue
		}

		key := card.Key()
		if (requireAll && !key.Complete()) || (!requireAll && !key.Partial()) {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], &fileInfo{
			path:   path,
			name:   filepath.Base(path),
			size:   info.Size(),
			mtime:  info.ModTime(),
			filled: card.FilledCount(),
		})
	}
	return keys, groups
}

// pickWinner selects the group representative. Every strategy falls back to
// the lexicographically smallest file name so the choice is deterministic.
func pickWinner(entries []*fileInfo, strategy string) *fileInfo {
	best := entries[0]
	for _, e := range entries[1:] {
		if better(e, best, strategy) {
			best = e
		}
	}
	return best
}

// better reports whether a beats b under strategy.
func better(a, b *fileInfo, strategy string) bool {
	var c int
	switch strategy {
	case StrategyLargest:
		c = compare(cmpInt(a.size, b.size), cmpTime(a.mtime, b.mtime))
	case StrategyNewest:
		c = compare(cmpTime(a.mtime, b.mtime), cmpInt(a.size, b.size))
	case StrategyMostFilled:
		c = compare(cmpInt(int64(a.filled), int64(b.filled)), cmpInt(a.size, b.size), cmpTime(a.mtime, b.mtime))
	}
	if c != 0 {
		return c > 0
	}
	return a.name < b.name
}

func compare(results ...int) int {
	for _, r := range results {
		if r != 0 {
			return r
		}
	}
	return 0
}

func cmpInt(a, b int64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.After(b):
		return 1
	case a.Before(b):
		return -1
	}
	return 0
}

// relatedFiles finds siblings of path sharing its stem: "1234.json" relates
// to "1234.txt" and "1234.orig.txt". Directories are ignored.
func relatedFiles(path string) []string {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	bases := []string{stem}
	if i := strings.Index(stem, "."); i > 0 {
		bases = append(bases, stem[:i])
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || entry.Name() == name {
			continue
		}
		other := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		for _, base := range bases {
			if other == base || strings.HasPrefix(other, base+".") {
				out = append(out, filepath.Join(dir, entry.Name()))
				break
			}
		}
	}
	return out
}

// dispose moves or deletes one file, or records the plan in dry-run mode.
// A file that vanished before disposal yields an empty action.
func (s *Service) dispose(path, trashDir string, opts Options, planned map[string]bool) Action {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return Action{}
		}
		return Action{Action: ActionFailed, From: path, Error: err.Error()}
	}

	if opts.DeleteInsteadOfQuarantine {
		if opts.DryRun {
			return Action{Action: ActionPlannedDelete, From: path}
		}
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				return Action{}
			}
			s.logger.Warn().Str("file", path).Err(err).Msg("Failed to delete duplicate")
			return Action{Action: ActionFailed, From: path, Error: err.Error()}
		}
		return Action{Action: ActionDeleted, From: path}
	}

	dest := uniqueDestination(trashDir, filepath.Base(path), planned)
	planned[dest] = true
	if opts.DryRun {
		return Action{Action: ActionPlannedMove, From: path, To: dest}
	}

	if err := os.MkdirAll(trashDir, 0755); err != nil {
		s.logger.Warn().Str("dir", trashDir).Err(err).Msg("Failed to create quarantine directory")
		return Action{Action: ActionFailed, From: path, To: dest, Error: err.Error()}
	}
	if err := os.Rename(path, dest); err != nil {
		if os.IsNotExist(err) {
			return Action{}
		}
		s.logger.Warn().Str("file", path).Err(err).Msg("Failed to quarantine duplicate")
		return Action{Action: ActionFailed, From: path, To: dest, Error: err.Error()}
	}
	return Action{Action: ActionMoved, From: path, To: dest}
}

// uniqueDestination returns trashDir/name, or trashDir/stem__N.ext when that
// name is already taken on disk or by an earlier planned move.
func uniqueDestination(trashDir, name string, planned map[string]bool) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(trashDir, name)
	for i := 1; taken(candidate, planned); i++ {
		candidate = filepath.Join(trashDir, fmt.Sprintf("%s__%d%s", stem, i, ext))
	}
	return candidate
}

func taken(path string, planned map[string]bool) bool {
	if planned[path] {
		return true
	}
	_, err := os.Lstat(path)
	return err == nil
}
