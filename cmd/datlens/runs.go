package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/datlens/internal/models"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs, most recent first",
	RunE:  runRuns,
}

var (
	runsKind  string
	runsLimit int
)

func init() {
	runsCmd.Flags().StringVar(&runsKind, "kind", "", "Filter by kind (dedupe, enrich, export, classify)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list (0 = all)")
}

func runRuns(cmd *cobra.Command, args []string) error {
	switch models.RunKind(runsKind) {
	case "", models.RunKindDedupe, models.RunKindEnrich, models.RunKindExport, models.RunKindClassify:
	default:
		return fmt.Errorf("unknown run kind %q", runsKind)
	}

	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := signalContext()
	defer cancel()

	runs, err := application.ListRuns(ctx, models.RunKind(runsKind), runsLimit)
	if err != nil {
		return err
	}
	return render(runs, func(w io.Writer) { printRuns(w, runs) })
}

func printRuns(w io.Writer, runs []*models.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, gray("No runs recorded"))
		return
	}
	for _, r := range runs {
		status := green("ok")
		if r.Error != "" {
			status = red("error")
		}
		fmt.Fprintf(w, "%s  %-8s %-5s %s%s\n",
			gray(r.StartedAt.Local().Format("2006-01-02 15:04:05")),
			cyan(string(r.Kind)), status, r.Dir, dryRunTag(r.DryRun))
		fmt.Fprintf(w, "    processed %d, changed %d, skipped %d, failed %d in %s\n",
			r.Processed, r.Changed, r.Skipped, r.Failed, r.Duration().Round(time.Millisecond))
		if r.Error != "" {
			fmt.Fprintf(w, "    %s\n", red(r.Error))
		}
	}
}
