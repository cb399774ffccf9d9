package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/datlens/internal/common"
)

// Options controls one classification run.
type Options struct {
	Workers      int `validate:"gte=1"`
	MinScore     int `validate:"gte=0,lte=100"`
	SaveJSONL    bool
	PositivesDir string
}

// OptionsFromConfig maps [classify] configuration onto run options.
func OptionsFromConfig(cfg common.ClassifyConfig) Options {
	return Options{
		Workers:      cfg.Workers,
		MinScore:     cfg.MinScore,
		SaveJSONL:    cfg.SaveJSONL,
		PositivesDir: cfg.PositivesDir,
	}
}

// Item is the classification of one input file.
type Item struct {
	File string `json:"file"`
	Classification
	Error string `json:"error,omitempty"`
}

// Result summarises a classification run.
type Result struct {
	Dir       string   `json:"dir"`
	Files     int      `json:"files"`
	Positives int      `json:"positives"`
	Failed    int      `json:"failed"`
	Items     []Item   `json:"items"`
	JSONL     string   `json:"jsonl,omitempty"`
	Copied    []string `json:"copied,omitempty"`
}

// Service classifies text and HTML news files.
type Service struct {
	logger   arbor.ILogger
	validate *validator.Validate
	now      func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithClock replaces the wall clock used to name the JSONL output.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a classification service.
func NewService(logger arbor.ILogger, opts ...Option) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}
	s := &Service{logger: logger, validate: validator.New(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run classifies every *.txt and *.html file directly inside dir using a
// bounded pool of workers. Items are returned sorted by file name. A file
// that cannot be read is reported on its item and does not stop the run.
func (s *Service) Run(ctx context.Context, dir string, opts Options) (*Result, error) {
	if err := s.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid classify options: %w", err)
	}
	files, err := common.ListFiles(dir, ".txt", ".html", ".htm")
	if err != nil {
		return nil, err
	}

	classifier := NewClassifier(opts.MinScore)
	items := make([]Item, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = s.classifyFile(classifier, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].File < items[j].File })

	result := &Result{Dir: dir, Files: len(items), Items: items}
	for _, item := range items {
		if item.Error != "" {
			result.Failed++
			continue
		}
		if item.IsDAT {
			result.Positives++
		}
	}

	if opts.SaveJSONL && len(items) > 0 {
		path := filepath.Join(dir, fmt.Sprintf("classifications_%s.jsonl", s.now().UTC().Format("20060102T150405Z")))
		if err := writeJSONL(path, items); err != nil {
			return nil, err
		}
		result.JSONL = path
	}

	if opts.PositivesDir != "" && result.Positives > 0 {
		copied, err := s.copyPositives(dir, opts.PositivesDir, items)
		result.Copied = copied
		if err != nil {
			return result, err
		}
	}

	s.logger.Info().
		Str("dir", dir).
		Int("files", result.Files).
		Int("positives", result.Positives).
		Int("failed", result.Failed).
		Msg("Classification complete")
	return result, nil
}

func (s *Service) classifyFile(classifier *Classifier, path string) Item {
	item := Item{File: filepath.Base(path), Classification: Classification{Tokens: []string{}}}

	text, err := readText(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", path).Msg("Failed to read news file")
		item.Error = err.Error()
		return item
	}
	item.Classification = classifier.Classify(text)

	s.logger.Debug().
		Str("file", item.File).
		Int("score", item.Score).
		Bool("is_dat", item.IsDAT).
		Msg("Classified")
	return item
}

// readText returns the file content; HTML is reduced to its visible text.
func readText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".html" && ext != ".htm" {
		data, err := io.ReadAll(f)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	parts = append(parts, body.Text())
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), nil
}

func writeJSONL(path string, items []Item) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return f.Close()
}

// copyPositives copies DAT files into <positivesDir>/<base of dir>/.
func (s *Service) copyPositives(dir, positivesDir string, items []Item) ([]string, error) {
	target := filepath.Join(positivesDir, filepath.Base(filepath.Clean(dir)))
	if err := os.MkdirAll(target, 0755); err != nil {
		return nil, fmt.Errorf("failed to create positives directory: %w", err)
	}

	var copied []string
	for _, item := range items {
		if !item.IsDAT || item.Error != "" {
			continue
		}
		dst := filepath.Join(target, item.File)
		if err := copyFile(filepath.Join(dir, item.File), dst); err != nil {
			return copied, fmt.Errorf("failed to copy %s: %w", item.File, err)
		}
		copied = append(copied, dst)
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
