package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/parsemed/internal/client"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/export"
	"github.com/joseph-ayodele/parsemed/internal/ingest"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

type options struct {
	dir         string
	exportDir   string
	templateID  string
	concurrency int
	async       bool
	skipHidden  bool
	poll        time.Duration
	watch       bool
	debounce    time.Duration
}

type batch struct {
	opts   options
	api    *client.Client
	logger *slog.Logger

	processed atomic.Int32
	failed    atomic.Int32
}

func main() {
	var (
		opts      options
		serverURL string
		logLevel  string
	)
	fs := pflag.NewFlagSet("parsemed-batch", pflag.ContinueOnError)
	fs.StringVar(&serverURL, "server", "http://localhost:8081", "parsemed HTTP address")
	fs.StringVar(&opts.dir, "dir", "", "directory to process PDFs from (required)")
	fs.StringVar(&opts.exportDir, "export-dir", "", "write one XLSX per saved document into this directory")
	fs.StringVar(&opts.templateID, "template-id", "", "configuration template to extract with")
	fs.IntVar(&opts.concurrency, "concurrency", 4, "files processed in parallel")
	fs.BoolVar(&opts.async, "async", false, "queue jobs on the server and poll for completion")
	fs.BoolVar(&opts.skipHidden, "skip-hidden", true, "skip hidden files and directories")
	fs.DurationVar(&opts.poll, "poll", time.Second, "job poll interval with --async")
	fs.BoolVar(&opts.watch, "watch", false, "keep running and process PDFs added to --dir")
	fs.DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "quiet period before a watched file is processed")
	fs.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if opts.dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if opts.concurrency < 1 {
		opts.concurrency = 1
	}

	logger := common.NewLogger(os.Stdout, common.LogConfig{Level: logLevel, Format: "json"})
	slog.SetDefault(logger)

	api, err := client.New(serverURL, client.WithLogger(logger))
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if opts.exportDir != "" {
		if err := os.MkdirAll(opts.exportDir, 0o755); err != nil {
			printError("Error: create export dir: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := &batch{opts: opts, api: api, logger: logger}

	paths, stats, err := ingest.NewWalker(afero.NewOsFs(), opts.skipHidden).Walk(opts.dir)
	if err != nil {
		logger.Error("failed to scan directory", "dir", opts.dir, "error", err)
		os.Exit(1)
	}
	logger.Info("scan complete",
		"dir", opts.dir,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"skipped", stats.Skipped,
		"failed", stats.Failed)

	var g errgroup.Group
	g.SetLimit(opts.concurrency)
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		seen[p] = struct{}{}
		g.Go(func() error { return b.processFile(ctx, p) })
	}

	if opts.watch {
		if err := b.watch(ctx, &g, seen); err != nil {
			logger.Error("watch failed", "error", err)
		}
	}
	_ = g.Wait()

	logger.Info("batch processing complete",
		"files_processed", b.processed.Load(),
		"failures", b.failed.Load())

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files matched: %d\n", len(seen))
	fmt.Printf("- Files processed: %d\n", b.processed.Load())
	fmt.Printf("- Failures: %d\n", b.failed.Load())
	if b.failed.Load() > 0 {
		os.Exit(1)
	}
}

// watch hands new PDFs to the group until ctx ends.
func (b *batch) watch(ctx context.Context, g *errgroup.Group, seen map[string]struct{}) error {
	paths, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:      []string{b.opts.dir},
		SkipHidden: b.opts.skipHidden,
		Debounce:   b.opts.debounce,
		Logger:     b.logger,
	})
	if err != nil {
		return err
	}
	b.logger.Info("watching for new PDFs", "dir", b.opts.dir)
	for {
		select {
		case p, ok := <-paths:
			if !ok {
				return nil
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			g.Go(func() error { return b.processFile(ctx, p) })
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			b.logger.Warn("watcher error", "error", err)
		}
	}
}

// processFile uploads one PDF, waits for its extraction and saves the
// result. Failures are counted, not returned, so one bad file does not stop
// the batch.
func (b *batch) processFile(ctx context.Context, path string) error {
	start := time.Now()
	log := b.logger.With("path", path)
	if err := b.run(ctx, path, log); err != nil {
		b.failed.Add(1)
		log.Error("failed to process file", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil
	}
	b.processed.Add(1)
	log.Info("file processed", "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (b *batch) run(ctx context.Context, path string, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	up, err := b.api.UploadPDF(ctx, filepath.Base(path), f, client.UploadOptions{
		TemplateID: b.opts.templateID,
		Async:      b.opts.async,
	})
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	log = log.With("job_id", up.JobID)

	sess := up.Session
	if up.Queued {
		log.Debug("job queued")
		if _, err := b.api.WaitJob(ctx, up.JobID, b.opts.poll); err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		if sess, err = b.api.OpenSession(ctx, up.JobID); err != nil {
			return fmt.Errorf("open session: %w", err)
		}
	}
	if sess == nil {
		return errors.New("server returned no session")
	}

	saved, err := b.api.SaveSession(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	log.Info("document saved", "document_id", saved.ID, "json_key", saved.JSONKey, "attributes", len(sess.Attributes))

	if b.opts.exportDir == "" {
		return nil
	}
	xlsx, err := b.api.ExportXLSX(ctx, saved.ID)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	out := filepath.Join(b.opts.exportDir, export.FileName(path))
	if err := os.WriteFile(out, xlsx, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	log.Info("workbook written", "output", out)
	return nil
}
