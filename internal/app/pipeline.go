package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/datlens/internal/services/dedup"
	"github.com/ternarybob/datlens/internal/services/enrich"
	"github.com/ternarybob/datlens/internal/services/export"
	"github.com/ternarybob/datlens/internal/services/scheduler"
)

// PipelineOptions controls one dedupe -> enrich -> export pass.
type PipelineOptions struct {
	Dedup  dedup.Options
	Enrich enrich.Options
	Export export.Options
	// Out is the export destination; empty skips the export stage.
	Out        string
	SkipEnrich bool
}

// PipelineResult collects each stage's result.
type PipelineResult struct {
	Dedup  *dedup.Result  `json:"dedup"`
	Enrich *enrich.Result `json:"enrich,omitempty"`
	Export *export.Result `json:"export,omitempty"`
}

// Pipeline runs the stages in order over dir, stopping at the first stage
// that fails. Each stage is recorded in the ledger separately.
func (a *App) Pipeline(ctx context.Context, dir string, opts PipelineOptions) (*PipelineResult, error) {
	if opts.Dedup.DryRun {
		return nil, fmt.Errorf("pipeline does not support dry-run deduplication")
	}

	result := &PipelineResult{}

	dd, err := a.Dedupe(ctx, dir, opts.Dedup)
	if err != nil {
		return result, fmt.Errorf("dedupe stage failed: %w", err)
	}
	result.Dedup = dd

	if !opts.SkipEnrich {
		en, err := a.Enrich(ctx, dir, opts.Enrich)
		if err != nil {
			return result, fmt.Errorf("enrich stage failed: %w", err)
		}
		result.Enrich = en
	}

	if opts.Out != "" {
		ex, err := a.Export(ctx, dir, opts.Out, opts.Export)
		if err != nil {
			return result, fmt.Errorf("export stage failed: %w", err)
		}
		result.Export = ex
	}

	a.Logger.Info().
		Str("dir", dir).
		Int("duplicates", dd.DuplicateCount).
		Msg("Pipeline complete")
	return result, nil
}

// SchedulePipeline repeats the pipeline on a cron schedule until ctx is
// cancelled. It runs once immediately; a tick that fires while a run is still
// in progress is skipped.
func (a *App) SchedulePipeline(ctx context.Context, dir, schedule string, opts PipelineOptions) error {
	sched := scheduler.NewService(a.Logger)
	return sched.Run(ctx, "pipeline", schedule, true, func(ctx context.Context) error {
		_, err := a.Pipeline(ctx, dir, opts)
		return err
	})
}
