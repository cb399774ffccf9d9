package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/interfaces"
	"github.com/ternarybob/datlens/internal/models"
	"github.com/ternarybob/datlens/internal/services/classify"
	"github.com/ternarybob/datlens/internal/services/dedup"
	"github.com/ternarybob/datlens/internal/services/enrich"
	"github.com/ternarybob/datlens/internal/services/export"
	"github.com/ternarybob/datlens/internal/services/prices"
	"github.com/ternarybob/datlens/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Run ledger; nil when [storage.badger] enabled=false
	StorageManager *badger.Manager
	RunStorage     interfaces.RunStorage

	DedupService    *dedup.Service
	ExportService   *export.Service
	ClassifyService *classify.Service

	// Built on first use so commands that never price anything do not need API keys
	enrichService *enrich.Service
	chains        *prices.Chains

	now func() time.Time
}

// Option configures the App.
type Option func(*App)

// WithChains supplies price provider chains instead of building them from config.
func WithChains(chains *prices.Chains) Option {
	return func(a *App) {
		a.chains = chains
	}
}

// WithRunStorage supplies the run ledger instead of opening Badger.
func WithRunStorage(runs interfaces.RunStorage) Option {
	return func(a *App) {
		a.RunStorage = runs
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger, opts ...Option) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(app)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	app.initServices()

	return app, nil
}

func (a *App) initDatabase() error {
	if a.RunStorage != nil || !a.Config.Storage.Badger.Enabled {
		return nil
	}

	manager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	a.StorageManager = manager
	a.RunStorage = manager.RunStorage()

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Run ledger initialized")
	return nil
}

func (a *App) initServices() {
	a.DedupService = dedup.NewService(a.Logger)
	a.ExportService = export.NewService(a.Logger)
	a.ClassifyService = classify.NewService(a.Logger, classify.WithClock(a.now))
}

// EnrichService returns the enrichment service, building the provider chains
// from config on first use.
func (a *App) EnrichService() (*enrich.Service, error) {
	if a.enrichService != nil {
		return a.enrichService, nil
	}
	if a.chains == nil {
		chains, err := prices.NewChains(a.Config, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure price providers: %w", err)
		}
		a.chains = chains
	}
	a.enrichService = enrich.NewService(a.chains, a.Config.Enrich, a.Logger, enrich.WithClock(a.now))
	return a.enrichService, nil
}

// Dedupe runs deduplication over dir and records the run.
func (a *App) Dedupe(ctx context.Context, dir string, opts dedup.Options) (*dedup.Result, error) {
	run := a.startRun(models.RunKindDedupe, dir, opts.DryRun)
	result, err := a.DedupService.Run(ctx, dir, opts)
	var summary interface{}
	if result != nil {
		summary = result
		run.Processed = result.GroupsConsidered
		run.Changed = result.DuplicateCount - result.Failed
		run.Failed = result.Failed
	}
	a.finishRun(ctx, run, summary, err)
	return result, err
}

// Enrich runs price enrichment over dir and records the run.
func (a *App) Enrich(ctx context.Context, dir string, opts enrich.Options) (*enrich.Result, error) {
	run := a.startRun(models.RunKindEnrich, dir, false)
	svc, err := a.EnrichService()
	if err != nil {
		a.finishRun(ctx, run, nil, err)
		return nil, err
	}
	result, err := svc.Run(ctx, dir, opts)
	var summary interface{}
	if result != nil {
		summary = result
		run.Processed = result.Saved + result.Unchanged + result.Skipped
		run.Changed = result.Saved
		run.Skipped = result.Skipped
		run.Failed = len(result.Failures)
	}
	a.finishRun(ctx, run, summary, err)
	return result, err
}

// Export writes the table for dir to out and records the run.
func (a *App) Export(ctx context.Context, dir, out string, opts export.Options) (*export.Result, error) {
	run := a.startRun(models.RunKindExport, dir, false)
	result, err := a.ExportService.Run(ctx, dir, out, opts)
	var summary interface{}
	if result != nil {
		summary = result
		run.Processed = result.Rows + len(result.Skipped)
		run.Changed = result.Rows
		run.Skipped = len(result.Skipped)
	}
	a.finishRun(ctx, run, summary, err)
	return result, err
}

// Classify scores the news files in dir and records the run.
func (a *App) Classify(ctx context.Context, dir string, opts classify.Options) (*classify.Result, error) {
	run := a.startRun(models.RunKindClassify, dir, false)
	result, err := a.ClassifyService.Run(ctx, dir, opts)
	var summary interface{}
	if result != nil {
		summary = result
		run.Processed = result.Files
		run.Changed = result.Positives
		run.Failed = result.Failed
	}
	a.finishRun(ctx, run, summary, err)
	return result, err
}

// ListRuns returns recorded runs, most recent first.
func (a *App) ListRuns(ctx context.Context, kind models.RunKind, limit int) ([]*models.RunRecord, error) {
	if a.RunStorage == nil {
		return nil, fmt.Errorf("run ledger is disabled ([storage.badger] enabled=false)")
	}
	return a.RunStorage.ListRuns(ctx, kind, limit)
}

func (a *App) startRun(kind models.RunKind, dir string, dryRun bool) *models.RunRecord {
	return &models.RunRecord{
		ID:        common.NewRunID(),
		Kind:      kind,
		Dir:       dir,
		StartedAt: a.now().UTC(),
		DryRun:    dryRun,
	}
}

// finishRun stores the run in the ledger. Ledger failures are logged and never
// fail the operation.
func (a *App) finishRun(ctx context.Context, run *models.RunRecord, summary interface{}, runErr error) {
	run.FinishedAt = a.now().UTC()
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if summary != nil {
		if data, err := json.Marshal(summary); err == nil {
			run.Summary = string(data)
		}
	}

	if a.RunStorage == nil {
		return
	}
	// Record even when the operation was cancelled
	if err := a.RunStorage.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		a.Logger.Warn().Err(err).Str("kind", string(run.Kind)).Msg("Failed to record run")
		return
	}
	a.Logger.Debug().
		Str("run_id", run.ID).
		Str("kind", string(run.Kind)).
		Int("processed", run.Processed).
		Int("changed", run.Changed).
		Msg("Run recorded")
}

// Close closes the run ledger
func (a *App) Close() error {
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Debug().Msg("Storage closed")
	}
	return nil
}
