package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/markdown"
)

func main() {
	fs := pflag.NewFlagSet("pdf2md", pflag.ContinueOnError)
	tablesOnly := fs.Bool("tables-only", false, "print only the TABLE 1 / TABLE 2 sections")
	engine := fs.String("engine", "", "force one engine: tabula, pdftotext or plaintext")
	timeout := fs.Duration("timeout", 2*time.Minute, "conversion timeout")
	logLevel := fs.String("log-level", "warn", "log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: pdf2md [flags] <file.pdf>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stderr, common.LogConfig{Level: *logLevel})

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	path := fs.Arg(0)

	opts := []markdown.Option{markdown.WithEngines(markdown.DefaultEngines(logger)...)}
	switch *engine {
	case "":
	case "pdftotext":
		opts = append(opts, markdown.WithEngines(markdown.PdftotextEngine{Logger: logger}))
	case "tabula":
		opts = append(opts, markdown.WithEngines(markdown.TabulaEngine{}))
	case "plaintext":
		opts = append(opts, markdown.WithEngines(markdown.PlainTextEngine{}))
	default:
		logger.Error("unknown engine", "engine", *engine)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	res, err := markdown.NewConverter(logger, opts...).ConvertFile(ctx, path)
	if err != nil {
		logger.Error("conversion failed", "path", path, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}
	if res.Warnings > 0 {
		logger.Warn("conversion produced warnings", "path", path, "count", res.Warnings)
	}

	out := res.Markdown
	if *tablesOnly {
		var found bool
		if out, found = markdown.TableSections(res.Markdown); !found {
			logger.Warn("no table sections found", "path", path)
		}
	}
	if _, err := fmt.Fprintln(os.Stdout, out); err != nil {
		os.Exit(1)
	}
	logger.Info("conversion OK",
		"path", path,
		"engine", res.Engine,
		"pages", res.Pages,
		"bytes", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}
