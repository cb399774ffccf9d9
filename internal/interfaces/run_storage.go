package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/datlens/internal/models"
)

// RunStorage persists batch-run summaries.
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	// ListRuns returns the most recent runs first. kind filters when non-empty;
	// limit <= 0 returns all runs.
	ListRuns(ctx context.Context, kind models.RunKind, limit int) ([]*models.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
}

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")
