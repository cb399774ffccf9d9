package models

import "time"

// RunKind names the batch operation a ledger entry records.
type RunKind string

const (
	RunKindDedupe   RunKind = "dedupe"
	RunKindEnrich   RunKind = "enrich"
	RunKindExport   RunKind = "export"
	RunKindClassify RunKind = "classify"
)

// RunRecord is one persisted batch-run summary.
type RunRecord struct {
	ID         string    `json:"id" badgerhold:"key"`
	Kind       RunKind   `json:"kind" badgerholdIndex:"Kind"`
	Dir        string    `json:"dir"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Processed  int       `json:"processed"`
	Changed    int       `json:"changed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
	Summary    string    `json:"summary,omitempty"` // JSON encoding of the operation result
}

// Duration returns the wall time of the run.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
