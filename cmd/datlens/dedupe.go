package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/ternarybob/datlens/internal/services/dedup"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Collapse fact cards describing the same event",
	Long: `Groups the fact cards in a folder by (ticker, token, announcement date),
keeps one card per group and quarantines the rest in _dedup_trash/.

Examples:
  datlens dedupe --dir cards                      # Keep the largest card per event
  datlens dedupe --dir cards --strategy newest    # Keep the most recently modified card
  datlens dedupe --dir cards --dry-run            # Preview what would be moved
  datlens dedupe --dir cards --remove             # Delete duplicates instead of quarantining`,
	RunE: runDedupe,
}

var dedupeDir string

func init() {
	dedupeCmd.Flags().StringVarP(&dedupeDir, "dir", "d", "", "Fact card folder")
	dedupeCmd.Flags().String("strategy", "", "Winner strategy: largest, newest, most_filled, first (default from config)")
	dedupeCmd.Flags().Bool("require-all", true, "Group only cards with ticker, token and date")
	dedupeCmd.Flags().Bool("remove", false, "Delete duplicates instead of moving them to _dedup_trash")
	dedupeCmd.Flags().Bool("include-related", true, "Also dispose of files sharing a duplicate's stem")
	dedupeCmd.Flags().Bool("dry-run", false, "Report planned actions without touching files")
	_ = dedupeCmd.MarkFlagRequired("dir")
}

// dedupOptions merges [dedup] config with the flags the user actually set.
func dedupOptions(cmd *cobra.Command) dedup.Options {
	opts := dedup.OptionsFromConfig(config.Dedup)
	flags := cmd.Flags()
	if flags.Changed("strategy") {
		opts.Strategy, _ = flags.GetString("strategy")
	}
	if flags.Changed("require-all") {
		opts.RequireAllKeyFields, _ = flags.GetBool("require-all")
	}
	if flags.Changed("remove") {
		opts.DeleteInsteadOfQuarantine, _ = flags.GetBool("remove")
	}
	if flags.Changed("include-related") {
		opts.CascadeToRelatedFiles, _ = flags.GetBool("include-related")
	}
	if flags.Lookup("dry-run") != nil {
		opts.DryRun, _ = flags.GetBool("dry-run")
	}
	return opts
}

func runDedupe(cmd *cobra.Command, args []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := application.Dedupe(ctx, dedupeDir, dedupOptions(cmd))
	if err != nil {
		return err
	}
	return render(result, func(w io.Writer) { printDedup(w, result) })
}

func printDedup(w io.Writer, r *dedup.Result) {
	fmt.Fprintf(w, "%s %s%s\n", bold("Deduplicated"), r.Dir, dryRunTag(r.DryRun))
	fmt.Fprintf(w, "  strategy:   %s (require all: %t, related: %t, delete: %t)\n",
		cyan(r.Strategy), r.RequireAll, r.IncludeRelated, r.RemoveDuplicates)
	fmt.Fprintf(w, "  groups:     %d considered, %s deduplicated\n", r.GroupsConsidered, count(r.GroupsDeduped, green))
	fmt.Fprintf(w, "  kept:       %d\n", r.KeptCount)
	fmt.Fprintf(w, "  duplicates: %s\n", count(r.DuplicateCount, yellow))
	if r.Failed > 0 {
		fmt.Fprintf(w, "  failed:     %s\n", red(r.Failed))
	}

	for _, a := range r.Actions {
		label := a.Action
		switch a.Action {
		case dedup.ActionFailed:
			label = red(a.Action)
		case dedup.ActionPlannedMove, dedup.ActionPlannedDelete:
			label = yellow(a.Action)
		}
		line := fmt.Sprintf("    %-15s %s", label, filepath.Base(a.From))
		if a.To != "" {
			line += gray(" -> " + a.To)
		}
		if a.Error != "" {
			line += red(" (" + a.Error + ")")
		}
		fmt.Fprintln(w, line)
	}
}
