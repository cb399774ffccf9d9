// Package enrich backfills market-performance fields on fact-card files.
package enrich

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/interfaces"
	"github.com/ternarybob/datlens/internal/models"
	"github.com/ternarybob/datlens/internal/services/prices"
)

// Options controls one enrichment run.
type Options struct {
	// AsOf is the horizon; offsets landing after it are treated as future
	// dates. Zero means today.
	AsOf time.Time
	// FileLimit processes only the first N files by name; 0 means all.
	FileLimit int
}

// FileFailure records a file that could not be processed.
type FileFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result summarises an enrichment run.
type Result struct {
	Dir       string              `json:"dir"`
	Saved     int                 `json:"saved"`
	Unchanged int                 `json:"unchanged"`
	Skipped   int                 `json:"skipped"`
	Outputs   []string            `json:"outputs"`
	Failures  []FileFailure       `json:"failures,omitempty"`
	Prices    prices.SessionStats `json:"prices"`
}

// Service enriches fact cards using configured provider chains.
type Service struct {
	equity           []interfaces.PriceProvider
	token            []interfaces.PriceProvider
	equityOffsets    []int
	tokenOffsets     []int
	inferMissingDate bool
	logger           arbor.ILogger
	now              func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates an enrichment service.
func NewService(chains *prices.Chains, cfg common.EnrichConfig, logger arbor.ILogger, opts ...Option) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}
	s := &Service{
		equityOffsets:    cfg.EquityOffsets,
		tokenOffsets:     cfg.TokenOffsets,
		inferMissingDate: cfg.InferMissingDate,
		logger:           logger,
		now:              time.Now,
	}
	if chains != nil {
		s.equity = chains.Equity
		s.token = chains.Token
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run enriches every fact card in dir. Per-file problems are counted and
// logged; only a missing directory or cancellation returns an error.
func (s *Service) Run(ctx context.Context, dir string, opts Options) (*Result, error) {
	if opts.FileLimit < 0 {
		return nil, fmt.Errorf("file limit must not be negative: %d", opts.FileLimit)
	}
	files, err := common.ListFactCards(dir)
	if err != nil {
		return nil, err
	}
	if opts.FileLimit > 0 && len(files) > opts.FileLimit {
		files = files[:opts.FileLimit]
	}

	session := prices.NewSession(s.logger, prices.WithClock(s.now), prices.WithAsOf(opts.AsOf))
	result := &Result{Dir: dir, Outputs: []string{}}

	s.logger.Info().
		Str("dir", dir).
		Int("files", len(files)).
		Strs("equity_providers", prices.Names(s.equity)).
		Strs("token_providers", prices.Names(s.token)).
		Msg("Starting enrichment")

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			result.Prices = session.Stats()
			return result, err
		}

		changed, skipReason, err := s.enrichFile(ctx, session, path, opts)
		switch {
		case err != nil:
			result.Skipped++
			result.Failures = append(result.Failures, FileFailure{Path: path, Reason: err.Error()})
			s.logger.Warn().Str("file", filepath.Base(path)).Err(err).Msg("Skipping fact card")
		case skipReason != "":
			result.Skipped++
			s.logger.Debug().Str("file", filepath.Base(path)).Str("reason", skipReason).Msg("Skipping fact card")
		case changed:
			result.Saved++
			result.Outputs = append(result.Outputs, path)
		default:
			result.Unchanged++
		}
	}

	result.Prices = session.Stats()
	s.logger.Info().
		Str("dir", dir).
		Int("saved", result.Saved).
		Int("unchanged", result.Unchanged).
		Int("skipped", result.Skipped).
		Int("provider_calls", result.Prices.Calls).
		Msg("Enrichment complete")

	return result, nil
}

func (s *Service) enrichFile(ctx context.Context, session *prices.Session, path string, opts Options) (bool, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, "", fmt.Errorf("failed to read: %w", err)
	}
	card, err := models.ParseFactCard(data)
	if err != nil {
		return false, "", err
	}

	ticker := card.Ticker()
	token := card.Token()
	if ticker == "" && token == "" {
		return false, "no ticker or token", nil
	}

	annDate, hasDate := common.ParseDate(card.AnnouncementDate())
	changed := false

	if ticker != "" && hasDate && len(s.equity) > 0 {
		quote := session.Lookup(ctx, s.equity, ticker, annDate, s.equityOffsets)
		if quote.Resolved {
			changed = apply(card, equitySide, quote, s.equityOffsets) || changed
		}
	}

	if token != "" && len(s.token) > 0 {
		ref, inferred, ok := s.tokenReference(card, annDate, hasDate, opts.AsOf)
		if ok {
			quote := session.Lookup(ctx, s.token, token, ref, s.tokenOffsets)
			if quote.Resolved {
				if inferred {
					changed = card.Fill(models.FieldInferredRefDate, ref.Format(common.DateLayout)) || changed
				}
				changed = apply(card, tokenSide, quote, s.tokenOffsets) || changed
			} else {
				s.logger.Debug().Str("token", token).Msg("No provider maps token, skipping token enrichment")
			}
		}
	}

	if !changed {
		return false, "", nil
	}

	encoded, err := card.Encode()
	if err != nil {
		return false, "", err
	}
	if err := writeFile(path, append(encoded, '\n')); err != nil {
		return false, "", err
	}
	return true, "", nil
}

// tokenReference picks the token-side reference date. Without an announcement
// date it reuses a previously inferred date or falls back to the day before
// the horizon; the announcement field itself is never written.
func (s *Service) tokenReference(card *models.FactCard, annDate time.Time, hasDate bool, asOf time.Time) (time.Time, bool, bool) {
	if hasDate {
		return annDate, false, true
	}
	if !s.inferMissingDate {
		return time.Time{}, false, false
	}
	if prev, ok := common.ParseDate(card.Get(models.FieldInferredRefDate)); ok {
		return prev, true, true
	}
	horizon := common.TruncateDay(s.now().UTC())
	if !asOf.IsZero() && asOf.Before(horizon) {
		horizon = common.TruncateDay(asOf)
	}
	return common.AddDays(horizon, -1), true, true
}

// writeFile replaces path through a temp file in the same directory so a
// crash never leaves a truncated fact card.
func writeFile(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
