package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datlens/internal/app"
	"github.com/ternarybob/datlens/internal/common"
)

var (
	// Command-line flags
	configFiles  []string // Multiple --config flags supported
	logLevel     string
	outputFormat string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "datlens",
	Short: "Deduplicate and price-enrich DAT fact cards",
	Long: `DatLens maintains a folder of Digital Asset Treasury fact cards.

It removes duplicate cards describing the same event, backfills share and
token prices around each announcement date, exports the folder as a table,
and scores raw news files for treasury language.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Summary format (text, json, yaml)")

	rootCmd.AddCommand(dedupeCmd, enrichCmd, exportCmd, classifyCmd, pipelineCmd, runsCmd, versionCmd)
}

// setup runs the startup sequence (REQUIRED ORDER):
// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
// 2. Apply CLI overrides (highest priority)
// 3. Initialize logger
// 4. Print banner
func setup(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}
	switch outputFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("datlens.toml"); err == nil {
			configFiles = append(configFiles, "datlens.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(config, logLevel)

	logger = common.InitLogger(config)
	common.InstallCrashHandler(config.Logging.Dir)

	if outputFormat == "text" {
		common.PrintBanner(config, logger)
	}

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Msg("Application configuration loaded")
	return nil
}

// newApp initializes the application after command flags have been applied to config.
func newApp() (*app.App, error) {
	application, err := app.New(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
