package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Dedup       DedupConfig     `toml:"dedup"`
	Enrich      EnrichConfig    `toml:"enrich"`
	Providers   ProvidersConfig `toml:"providers"`
	Classify    ClassifyConfig  `toml:"classify"`
	Export      ExportConfig    `toml:"export"`
	Schedule    ScheduleConfig  `toml:"schedule"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"` // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`                                             // "stdout", "file"
	TimeFormat string   `toml:"time_format"`                                        // Time format for logs (default: "15:04:05")
	Dir        string   `toml:"dir"`                                                // Log directory; empty means <executable dir>/logs
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration for the run ledger
type BadgerConfig struct {
	Enabled        bool   `toml:"enabled"`          // Record runs in the ledger
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// DedupConfig holds the default deduplication behaviour; CLI flags override it.
type DedupConfig struct {
	Strategy                  string `toml:"strategy" validate:"oneof=largest newest most_filled first"`
	RequireAllKeyFields       bool   `toml:"require_all_key_fields"`
	DeleteInsteadOfQuarantine bool   `toml:"delete_instead_of_quarantine"`
	CascadeToRelatedFiles     bool   `toml:"cascade_to_related_files"`
}

// EnrichConfig selects price providers and the anchoring offsets.
type EnrichConfig struct {
	// Ordered fallback chains. The first provider that resolves the symbol and
	// returns data wins for a given fact card.
	EquityProviders  []string `toml:"equity_providers" validate:"min=1,dive,oneof=alphavantage yahoo eodhd"`
	TokenProviders   []string `toml:"token_providers" validate:"dive,oneof=coingecko_range coingecko_point alphavantage_crypto yahoo_crypto"`
	EquityOffsets    []int    `toml:"equity_offsets"`     // Day offsets anchored around the announcement date
	TokenOffsets     []int    `toml:"token_offsets"`      // Day offsets for token prices
	InferMissingDate bool     `toml:"infer_missing_date"` // Token side only: fall back to yesterday, recorded in "Inferred Ref. Date"
	FileLimit        int      `toml:"file_limit" validate:"gte=0"`
}

type ProvidersConfig struct {
	UserAgent    string             `toml:"user_agent"`
	Timeout      string             `toml:"timeout"` // HTTP timeout as duration string (default: "30s")
	AlphaVantage AlphaVantageConfig `toml:"alphavantage"`
	Yahoo        YahooConfig        `toml:"yahoo"`
	EODHD        EODHDConfig        `toml:"eodhd"`
	CoinGecko    CoinGeckoConfig    `toml:"coingecko"`
}

// AlphaVantageConfig configures the Alpha Vantage daily series back end.
type AlphaVantageConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	OutputSize     string `toml:"output_size" validate:"oneof=compact full"`
	RateLimit      string `toml:"rate_limit"`       // Minimum spacing between calls (free tier: "12s")
	MaxHistoryDays int    `toml:"max_history_days"` // 0 = no ceiling
}

// YahooConfig configures the Yahoo chart back end. No API key is required.
type YahooConfig struct {
	BaseURL        string `toml:"base_url"`
	RateLimit      string `toml:"rate_limit"`
	MaxHistoryDays int    `toml:"max_history_days"`
}

// EODHDConfig configures the EODHD end-of-day back end.
type EODHDConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Exchange       string `toml:"exchange"`   // EODHD suffix appended to bare tickers (default "US")
	RateLimit      int    `toml:"rate_limit"` // Requests per second
	MaxHistoryDays int    `toml:"max_history_days"`
}

// CoinGeckoConfig configures both CoinGecko crypto back ends.
type CoinGeckoConfig struct {
	APIKey        string `toml:"api_key"` // Keys starting with "CG-" select the Pro API
	BaseURL       string `toml:"base_url"`
	ProBaseURL    string `toml:"pro_base_url"`
	CallDelay     string `toml:"call_delay"`      // Pause between point-query calls (default: "1.2s")
	FreeDepthDays int    `toml:"free_depth_days"` // Historical ceiling without a Pro key
	ProDepthDays  int    `toml:"pro_depth_days"`  // Historical ceiling with a Pro key
}

// ClassifyConfig configures the keyword classification stage.
type ClassifyConfig struct {
	Workers      int    `toml:"workers" validate:"gte=1"`
	MinScore     int    `toml:"min_score" validate:"gte=0,lte=100"`
	SaveJSONL    bool   `toml:"save_jsonl"`
	PositivesDir string `toml:"positives_dir"` // Empty disables copying positives
}

type ExportConfig struct {
	Delimiter     string `toml:"delimiter" validate:"len=1"`
	IncludeSource bool   `toml:"include_source"`
}

// ScheduleConfig holds the optional pipeline schedule.
type ScheduleConfig struct {
	Cron string `toml:"cron"` // 5-field cron expression; empty runs once
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Enabled: true,
				Path:    "./data/ledger",
			},
		},
		Dedup: DedupConfig{
			Strategy:              "largest",
			RequireAllKeyFields:   true,
			CascadeToRelatedFiles: true,
		},
		Enrich: EnrichConfig{
			EquityProviders:  []string{"alphavantage"},
			TokenProviders:   []string{"coingecko_range", "coingecko_point"},
			EquityOffsets:    []int{-30, -7, -1, 0, 1, 7, 30},
			TokenOffsets:     []int{-7, -1, 0, 1, 7},
			InferMissingDate: true,
		},
		Providers: ProvidersConfig{
			UserAgent: "DatLens/0.1 (+https://github.com/ternarybob/datlens)",
			Timeout:   "30s",
			AlphaVantage: AlphaVantageConfig{
				BaseURL:        "https://www.alphavantage.co/query",
				OutputSize:     "compact",
				RateLimit:      "12s",
				MaxHistoryDays: 140, // compact output holds ~100 trading days
			},
			Yahoo: YahooConfig{
				BaseURL:   "https://query1.finance.yahoo.com",
				RateLimit: "500ms",
			},
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				Exchange:  "US",
				RateLimit: 10,
			},
			CoinGecko: CoinGeckoConfig{
				BaseURL:       "https://api.coingecko.com/api/v3",
				ProBaseURL:    "https://pro-api.coingecko.com/api/v3",
				CallDelay:     "1.2s", // ~50 calls/min on the free tier
				FreeDepthDays: 365,
				ProDepthDays:  3650,
			},
		},
		Classify: ClassifyConfig{
			Workers:   10,
			MinScore:  30,
			SaveJSONL: true,
		},
		Export: ExportConfig{
			Delimiter: ",",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// String values may reference environment variables as {NAME}.
// Later files override earlier files. CLI overrides are applied by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	// {NAME} placeholders keep secrets out of committed config files
	if err := ReplaceInStruct(config, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("failed to resolve config references: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DATLENS_ENV"); env != "" {
		config.Environment = env
	}

	// Logging configuration
	if level := os.Getenv("DATLENS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("DATLENS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("DATLENS_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if enabled := os.Getenv("DATLENS_LEDGER_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Storage.Badger.Enabled = b
		}
	}

	// Provider keys: DATLENS_* first, then the names used by the provider docs
	config.Providers.AlphaVantage.APIKey = firstEnv(config.Providers.AlphaVantage.APIKey,
		"DATLENS_ALPHAVANTAGE_API_KEY", "ALPHAVANTAGE_API_KEY")
	config.Providers.CoinGecko.APIKey = firstEnv(config.Providers.CoinGecko.APIKey,
		"DATLENS_COINGECKO_API_KEY", "CG_API_KEY")
	config.Providers.EODHD.APIKey = firstEnv(config.Providers.EODHD.APIKey,
		"DATLENS_EODHD_API_KEY", "EODHD_API_KEY")

	if ua := os.Getenv("DATLENS_USER_AGENT"); ua != "" {
		config.Providers.UserAgent = ua
	}

	// Enrichment provider chains (comma-separated)
	if equity := os.Getenv("DATLENS_EQUITY_PROVIDERS"); equity != "" {
		config.Enrich.EquityProviders = splitList(equity)
	}
	if token := os.Getenv("DATLENS_TOKEN_PROVIDERS"); token != "" {
		config.Enrich.TokenProviders = splitList(token)
	}

	if workers := os.Getenv("DATLENS_CLASSIFY_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil {
			config.Classify.Workers = w
		}
	}
	if schedule := os.Getenv("DATLENS_SCHEDULE"); schedule != "" {
		config.Schedule.Cron = schedule
	}
}

// firstEnv returns the first non-empty environment variable among names,
// falling back to current.
func firstEnv(current string, names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return current
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, logLevel string) {
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"providers.timeout", c.Providers.Timeout},
		{"providers.alphavantage.rate_limit", c.Providers.AlphaVantage.RateLimit},
		{"providers.yahoo.rate_limit", c.Providers.Yahoo.RateLimit},
		{"providers.coingecko.call_delay", c.Providers.CoinGecko.CallDelay},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", d.name, err)
		}
	}
	if c.Schedule.Cron != "" {
		if err := ValidateSchedule(c.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid configuration: schedule.cron: %w", err)
		}
	}
	return nil
}

// ValidateSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// ParseDuration parses a duration string, returning fallback when empty or invalid.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
