package markdown

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	logger := r.logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		logger.Error("markdown.exec.failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		logger.Debug("markdown.exec.ok",
			"cmd", name,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

// PdftotextEngine runs poppler's pdftotext in layout mode. It keeps column
// alignment that the library engines sometimes lose on dense tables.
type PdftotextEngine struct {
	Bin     string // defaults to "pdftotext"
	Timeout time.Duration
	Runner  Runner
	Logger  *slog.Logger
}

func (PdftotextEngine) Name() string { return "pdftotext" }

func (e PdftotextEngine) Convert(path string) (string, int, error) {
	bin := e.Bin
	if bin == "" {
		bin = "pdftotext"
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	runner := e.Runner
	if runner == nil {
		runner = execRunner{logger: e.Logger}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, _, err := runner.Run(ctx, bin, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, err
	}
	// pdftotext separates pages with a form feed
	pages := strings.Split(strings.TrimRight(string(out), "\f\n"), "\f")
	return strings.Join(pages, "\n\n---\n\n"), 0, nil
}

// DefaultEngines is the server chain: tabula, then pdftotext when it is
// installed, then the plain text pass.
func DefaultEngines(logger *slog.Logger) []Engine {
	engines := []Engine{TabulaEngine{}}
	if bin, err := exec.LookPath("pdftotext"); err == nil {
		engines = append(engines, PdftotextEngine{Bin: bin, Logger: logger})
	}
	return append(engines, PlainTextEngine{})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
