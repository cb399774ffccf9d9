package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ternarybob/datlens/internal/services/classify"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Score news files for digital asset treasury language",
	Long: `Scores every .txt and .html file in a folder with the treasury keyword
classifier and reports which read as DAT announcements.

Examples:
  datlens classify --dir news
  datlens classify --dir news --min-score 60 --positives-dir dat_news`,
	RunE: runClassify,
}

var classifyDir string

func init() {
	classifyCmd.Flags().StringVarP(&classifyDir, "dir", "d", "", "News folder")
	classifyCmd.Flags().Int("workers", 0, "Parallel workers (default from config)")
	classifyCmd.Flags().Int("min-score", 0, "Minimum score for a positive (default from config)")
	classifyCmd.Flags().Bool("jsonl", false, "Write classifications_<timestamp>.jsonl into the folder")
	classifyCmd.Flags().String("positives-dir", "", "Copy positives into <positives-dir>/<folder name>/")
	_ = classifyCmd.MarkFlagRequired("dir")
}

func classifyOptions(cmd *cobra.Command) classify.Options {
	opts := classify.OptionsFromConfig(config.Classify)
	flags := cmd.Flags()
	if flags.Changed("workers") {
		opts.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("min-score") {
		opts.MinScore, _ = flags.GetInt("min-score")
	}
	if flags.Changed("jsonl") {
		opts.SaveJSONL, _ = flags.GetBool("jsonl")
	}
	if flags.Changed("positives-dir") {
		opts.PositivesDir, _ = flags.GetString("positives-dir")
	}
	return opts
}

func runClassify(cmd *cobra.Command, args []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := application.Classify(ctx, classifyDir, classifyOptions(cmd))
	if err != nil {
		return err
	}
	return render(result, func(w io.Writer) { printClassify(w, result) })
}

func printClassify(w io.Writer, r *classify.Result) {
	fmt.Fprintf(w, "%s %s\n", bold("Classified"), r.Dir)
	fmt.Fprintf(w, "  files:     %d\n", r.Files)
	fmt.Fprintf(w, "  positives: %s\n", count(r.Positives, green))
	if r.Failed > 0 {
		fmt.Fprintf(w, "  failed:    %s\n", red(r.Failed))
	}
	if r.JSONL != "" {
		fmt.Fprintf(w, "  jsonl:     %s\n", cyan(r.JSONL))
	}
	for _, item := range r.Items {
		verdict := gray("  -  ")
		if item.IsDAT {
			verdict = green(" DAT ")
		}
		if item.Error != "" {
			verdict = red("error")
		}
		fmt.Fprintf(w, "    %s %3d %s %s\n", verdict, item.Score, item.File, gray(strings.Join(item.Tokens, ",")))
	}
}
