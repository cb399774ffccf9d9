// Package dedup collapses fact-card files that describe the same event.
package dedup

// Winner-selection strategies.
const (
	StrategyLargest    = "largest"
	StrategyNewest     = "newest"
	StrategyMostFilled = "most_filled"
	StrategyFirst      = "first"
)

// TrashDirName is the quarantine subdirectory created inside the source folder.
const TrashDirName = "_dedup_trash"

// Action kinds reported in Result.Actions.
const (
	ActionMoved         = "moved"
	ActionDeleted       = "deleted"
	ActionPlannedMove   = "planned_move"
	ActionPlannedDelete = "planned_delete"
	ActionFailed        = "failed"
)

// Options controls one deduplication run.
type Options struct {
	Strategy string `validate:"oneof=largest newest most_filled first"`
	// RequireAllKeyFields groups only cards with ticker, token and date. When
	// false, cards with a date and at least one symbol are grouped too.
	RequireAllKeyFields bool
	// DeleteInsteadOfQuarantine removes losers instead of moving them to
	// the quarantine directory.
	DeleteInsteadOfQuarantine bool
	// CascadeToRelatedFiles also disposes of siblings sharing a loser's stem.
	CascadeToRelatedFiles bool
	DryRun                bool
}

// Action is one disposal performed (or planned, in dry-run mode).
type Action struct {
	Action  string `json:"action"`
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	Related bool   `json:"related,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result summarises a deduplication run.
type Result struct {
	Dir              string   `json:"folder"`
	GroupsConsidered int      `json:"groups_considered"`
	GroupsDeduped    int      `json:"groups_deduped"`
	KeptCount        int      `json:"kept_count"`
	Kept             []string `json:"kept"`
	DuplicateCount   int      `json:"duplicate_count"`
	Actions          []Action `json:"duplicate_actions"`
	Failed           int      `json:"failed"`
	Strategy         string   `json:"strategy"`
	RequireAll       bool     `json:"require_all"`
	RemoveDuplicates bool     `json:"remove_duplicates"`
	IncludeRelated   bool     `json:"include_related"`
	DryRun           bool     `json:"dry_run"`
}
