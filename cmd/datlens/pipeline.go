package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/ternarybob/datlens/internal/app"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run dedupe, enrich and export over one folder",
	Long: `Runs dedupe -> enrich -> export for one folder. With --schedule the pipeline
repeats on a cron schedule until interrupted; a run never starts while the
previous one is still in progress.

Examples:
  datlens pipeline --dir cards --out cards.csv
  datlens pipeline --dir cards --out cards.csv --schedule "0 */6 * * *"`,
	RunE: runPipeline,
}

var (
	pipelineDir        string
	pipelineOut        string
	pipelineSchedule   string
	pipelineSkipEnrich bool
)

func init() {
	pipelineCmd.Flags().StringVarP(&pipelineDir, "dir", "d", "", "Fact card folder")
	pipelineCmd.Flags().StringVar(&pipelineOut, "out", "", "Export destination (empty skips export)")
	pipelineCmd.Flags().StringVar(&pipelineSchedule, "schedule", "", "5-field cron expression (default from config; empty runs once)")
	pipelineCmd.Flags().BoolVar(&pipelineSkipEnrich, "skip-enrich", false, "Skip the enrichment stage")
	pipelineCmd.Flags().String("strategy", "", "Dedupe winner strategy (default from config)")
	pipelineCmd.Flags().Bool("remove", false, "Delete duplicates instead of moving them to _dedup_trash")
	addEnrichFlags(pipelineCmd)
	_ = pipelineCmd.MarkFlagRequired("dir")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	enrichOpts, err := enrichOptions(cmd)
	if err != nil {
		return err
	}
	opts := app.PipelineOptions{
		Dedup:      dedupOptions(cmd),
		Enrich:     enrichOpts,
		Export:     exportOptions(cmd),
		Out:        pipelineOut,
		SkipEnrich: pipelineSkipEnrich,
	}

	schedule := config.Schedule.Cron
	if cmd.Flags().Changed("schedule") {
		schedule = pipelineSchedule
	}

	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if schedule != "" {
		logger.Info().Str("dir", pipelineDir).Str("schedule", schedule).Msg("Pipeline scheduled - Press Ctrl+C to stop")
		return application.SchedulePipeline(ctx, pipelineDir, schedule, opts)
	}

	result, err := application.Pipeline(ctx, pipelineDir, opts)
	if err != nil {
		return err
	}
	return render(result, func(w io.Writer) {
		printDedup(w, result.Dedup)
		if result.Enrich != nil {
			fmt.Fprintln(w)
			printEnrich(w, result.Enrich)
		}
		if result.Export != nil {
			fmt.Fprintln(w)
			printExport(w, result.Export)
		}
	})
}
