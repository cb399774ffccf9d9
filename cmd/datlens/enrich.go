package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/services/enrich"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Backfill share and token prices on fact cards",
	Long: `Fills missing price and performance fields on every fact card in a folder.
Fields that already hold a value are never overwritten, so repeated runs are safe.

Examples:
  datlens enrich --dir cards
  datlens enrich --dir cards --as-of 2025-03-31 --limit 10
  datlens enrich --dir cards --equity-providers yahoo,alphavantage`,
	RunE: runEnrich,
}

var enrichDir string

func init() {
	addEnrichFlags(enrichCmd)
	enrichCmd.Flags().StringVarP(&enrichDir, "dir", "d", "", "Fact card folder")
	_ = enrichCmd.MarkFlagRequired("dir")
}

func addEnrichFlags(cmd *cobra.Command) {
	cmd.Flags().String("as-of", "", "Horizon date (YYYY-MM-DD); later offsets count as future (default today)")
	cmd.Flags().Int("limit", 0, "Process only the first N files by name (0 = all)")
	cmd.Flags().StringSlice("equity-providers", nil, "Equity provider chain (alphavantage, yahoo, eodhd)")
	cmd.Flags().StringSlice("token-providers", nil, "Token provider chain (coingecko_range, coingecko_point, alphavantage_crypto, yahoo_crypto)")
}

// enrichOptions applies provider overrides to config and returns run options.
func enrichOptions(cmd *cobra.Command) (enrich.Options, error) {
	flags := cmd.Flags()
	opts := enrich.Options{FileLimit: config.Enrich.FileLimit}

	if flags.Changed("limit") {
		opts.FileLimit, _ = flags.GetInt("limit")
	}
	if asOf, _ := flags.GetString("as-of"); asOf != "" {
		t, err := time.Parse(common.DateLayout, asOf)
		if err != nil {
			return opts, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD", asOf)
		}
		opts.AsOf = t
	}
	if flags.Changed("equity-providers") {
		config.Enrich.EquityProviders, _ = flags.GetStringSlice("equity-providers")
	}
	if flags.Changed("token-providers") {
		config.Enrich.TokenProviders, _ = flags.GetStringSlice("token-providers")
	}
	if err := config.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func runEnrich(cmd *cobra.Command, args []string) error {
	opts, err := enrichOptions(cmd)
	if err != nil {
		return err
	}

	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := application.Enrich(ctx, enrichDir, opts)
	if err != nil {
		return err
	}
	return render(result, func(w io.Writer) { printEnrich(w, result) })
}

func printEnrich(w io.Writer, r *enrich.Result) {
	fmt.Fprintf(w, "%s %s\n", bold("Enriched"), r.Dir)
	fmt.Fprintf(w, "  saved:     %s\n", count(r.Saved, green))
	fmt.Fprintf(w, "  unchanged: %d\n", r.Unchanged)
	fmt.Fprintf(w, "  skipped:   %s\n", count(r.Skipped, yellow))
	fmt.Fprintf(w, "  providers: %d calls, %d cache hits, %s failures, %d unresolved\n",
		r.Prices.Calls, r.Prices.CacheHits, count(r.Prices.Failures, red), r.Prices.Unresolved)
	if r.Prices.SkippedDepth > 0 || r.Prices.SkippedFuture > 0 {
		fmt.Fprintf(w, "  not priced: %d beyond history depth, %d in the future\n", r.Prices.SkippedDepth, r.Prices.SkippedFuture)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "    %s %s %s\n", red("failed"), filepath.Base(f.Path), gray(f.Reason))
	}
}
