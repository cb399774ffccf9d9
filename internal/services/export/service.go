// Package export flattens a folder of fact cards into one delimited table.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/models"
)

// SourceColumn is the leading column added by IncludeSource.
const SourceColumn = "Source File"

// Options controls one export.
type Options struct {
	Delimiter     string `validate:"len=1"`
	IncludeSource bool
}

// OptionsFromConfig maps [export] configuration onto export options.
func OptionsFromConfig(cfg common.ExportConfig) Options {
	return Options{Delimiter: cfg.Delimiter, IncludeSource: cfg.IncludeSource}
}

// Result summarises an export.
type Result struct {
	Dir     string   `json:"dir"`
	Out     string   `json:"out,omitempty"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Skipped []string `json:"skipped,omitempty"`
	Bytes   int64    `json:"bytes,omitempty"`
}

// Service exports fact cards.
type Service struct {
	logger   arbor.ILogger
	validate *validator.Validate
}

// NewService creates an export service.
func NewService(logger arbor.ILogger) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Service{logger: logger, validate: validator.New()}
}

// Run writes the table for dir to the file at out, creating parent folders.
// The file is replaced only after the whole table has been written.
func (s *Service) Run(ctx context.Context, dir, out string, opts Options) (*Result, error) {
	if out == "" {
		return nil, fmt.Errorf("export output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".*")
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	result, err := s.Write(ctx, dir, tmp, opts)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close output file: %w", closeErr)
	}
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", out, err)
	}
	if info, err := os.Stat(out); err == nil {
		result.Bytes = info.Size()
	}
	result.Out = out

	s.logger.Info().
		Str("dir", dir).
		Str("out", out).
		Int("rows", result.Rows).
		Int("columns", len(result.Columns)).
		Msg("Export complete")
	return result, nil
}

// Write renders the table for dir to w. Columns appear in first-seen order
// across files sorted by name; fields a card lacks are left empty.
func (s *Service) Write(ctx context.Context, dir string, w io.Writer, opts Options) (*Result, error) {
	if err := s.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid export options: %w", err)
	}
	files, err := common.ListFactCards(dir)
	if err != nil {
		return nil, err
	}

	result := &Result{Dir: dir, Columns: []string{}}
	var cards []*models.FactCard
	var names []string
	seen := make(map[string]bool)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("Failed to read fact card")
			result.Skipped = append(result.Skipped, path)
			continue
		}
		card, err := models.ParseFactCard(data)
		if err != nil {
			s.logger.Debug().Err(err).Str("file", path).Msg("Skipping unparseable fact card")
			result.Skipped = append(result.Skipped, path)
			continue
		}
		for _, key := range card.Keys() {
			if !seen[key] {
				seen[key] = true
				result.Columns = append(result.Columns, key)
			}
		}
		cards = append(cards, card)
		names = append(names, filepath.Base(path))
	}

	delim, _ := utf8.DecodeRuneInString(opts.Delimiter)
	cw := csv.NewWriter(w)
	cw.Comma = delim

	header := result.Columns
	if opts.IncludeSource {
		header = append([]string{SourceColumn}, result.Columns...)
	}
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, card := range cards {
		row := make([]string, 0, len(header))
		if opts.IncludeSource {
			row = append(row, names[i])
		}
		for _, col := range result.Columns {
			row = append(row, card.Get(col))
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row for %s: %w", names[i], err)
		}
		result.Rows++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	return result, nil
}
