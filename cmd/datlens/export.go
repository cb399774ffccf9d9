package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/ternarybob/datlens/internal/services/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all fact cards in a folder as one CSV table",
	Long: `Flattens every fact card in a folder into a delimited table. Columns appear
in first-seen order across files sorted by name; missing fields are empty.

Examples:
  datlens export --dir cards --out cards.csv
  datlens export --dir cards --out cards.tsv --delimiter $'\t' --include-source`,
	RunE: runExport,
}

var (
	exportDir string
	exportOut string
)

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "dir", "d", "", "Fact card folder")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file")
	exportCmd.Flags().String("delimiter", "", "Field delimiter (default from config)")
	exportCmd.Flags().Bool("include-source", false, "Add a leading column with the source file name")
	_ = exportCmd.MarkFlagRequired("dir")
	_ = exportCmd.MarkFlagRequired("out")
}

func exportOptions(cmd *cobra.Command) export.Options {
	opts := export.OptionsFromConfig(config.Export)
	flags := cmd.Flags()
	if flags.Changed("delimiter") {
		opts.Delimiter, _ = flags.GetString("delimiter")
	}
	if flags.Changed("include-source") {
		opts.IncludeSource, _ = flags.GetBool("include-source")
	}
	return opts
}

func runExport(cmd *cobra.Command, args []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := application.Export(ctx, exportDir, exportOut, exportOptions(cmd))
	if err != nil {
		return err
	}
	return render(result, func(w io.Writer) { printExport(w, result) })
}

func printExport(w io.Writer, r *export.Result) {
	fmt.Fprintf(w, "%s %s -> %s\n", bold("Exported"), r.Dir, cyan(r.Out))
	fmt.Fprintf(w, "  rows:    %s\n", count(r.Rows, green))
	fmt.Fprintf(w, "  columns: %d\n", len(r.Columns))
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "  skipped: %s\n", yellow(len(r.Skipped)))
	}
}
