package markdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/reader"
	"golang.org/x/text/unicode/norm"

	"github.com/joseph-ayodele/parsemed/internal/common"
)

// ErrNoText is returned when no engine produced any text.
var ErrNoText = errors.New("no extractable text in PDF")

// Engine turns a PDF file into text.
type Engine interface {
	Name() string
	Convert(path string) (text string, warnings int, err error)
}

// Result is a converted document.
type Result struct {
	Markdown string `json:"markdown"`
	Pages    int    `json:"pages"`
	Engine   string `json:"engine"`
	Warnings int    `json:"warnings,omitempty"`
}

type Option func(*Converter)

// WithEngines replaces the default engine chain.
func WithEngines(engines ...Engine) Option {
	return func(c *Converter) { c.engines = engines }
}

// WithMaxBytes rejects files larger than n bytes. Zero disables the check.
func WithMaxBytes(n int64) Option {
	return func(c *Converter) { c.maxBytes = n }
}

// Converter validates a PDF and runs its engines in order until one
// produces text. The default chain is tabula (layout aware markdown)
// followed by a plain text pass.
type Converter struct {
	engines  []Engine
	maxBytes int64
	logger   *slog.Logger
}

func NewConverter(logger *slog.Logger, opts ...Option) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Converter{
		engines:  []Engine{TabulaEngine{}, PlainTextEngine{}},
		maxBytes: common.DefaultMaxUploadBytes,
		logger:   logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ConvertFile converts the PDF at path. The output is NFC normalised.
func (c *Converter) ConvertFile(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, c.logger)

	st, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if c.maxBytes > 0 && st.Size() > c.maxBytes {
		return Result{}, common.NewAppError("PDF_ERROR",
			fmt.Sprintf("file too large: %d bytes (max: %d bytes)", st.Size(), c.maxBytes), common.ErrInvalidInput)
	}

	info, err := InspectFile(path)
	if err != nil {
		log.Warn("markdown.inspect.failed", "path", path, "error", err)
		return Result{}, err
	}
	log.Info("markdown.inspect.ok", "pages", info.Pages, "bytes", info.SizeBytes)

	var errs []error
	for _, eng := range c.engines {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		text, warnings, err := eng.Convert(path)
		if err != nil {
			log.Warn("markdown.engine.failed", "engine", eng.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", eng.Name(), err))
			continue
		}
		text = strings.TrimSpace(norm.NFC.String(text))
		if text == "" {
			log.Warn("markdown.engine.empty", "engine", eng.Name())
			continue
		}
		log.Info("markdown.convert.ok",
			"engine", eng.Name(),
			"pages", info.Pages,
			"chars", len(text),
			"warnings", warnings,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Result{Markdown: text, Pages: info.Pages, Engine: eng.Name(), Warnings: warnings}, nil
	}

	if len(errs) > 0 {
		return Result{}, common.NewAppError("PDF_ERROR", "conversion failed", errors.Join(append([]error{ErrNoText}, errs...)...))
	}
	return Result{}, common.NewAppError("PDF_ERROR", "conversion produced no text", fmt.Errorf("%w: %w", common.ErrInvalidInput, ErrNoText))
}

// TabulaEngine renders markdown with headings, lists and tables.
type TabulaEngine struct{}

func (TabulaEngine) Name() string { return "tabula" }

func (TabulaEngine) Convert(path string) (string, int, error) {
	r, err := reader.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer r.Close()

	md, warnings, err := tabula.FromReader(r).ExcludeHeadersAndFooters().ToMarkdown()
	if err != nil {
		return "", len(warnings), err
	}
	return md, len(warnings), nil
}

// PlainTextEngine extracts page text with no layout analysis. Pages are
// separated by a horizontal rule.
type PlainTextEngine struct{}

func (PlainTextEngine) Name() string { return "plaintext" }

func (PlainTextEngine) Convert(path string) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var b strings.Builder
	skipped := 0
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			skipped++
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			skipped++
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(content)
	}
	return b.String(), skipped, nil
}
