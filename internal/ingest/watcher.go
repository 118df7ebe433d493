package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots      []string // watched recursively
	SkipHidden bool
	Debounce   time.Duration // coalesce bursts of writes to the same file
	Logger     *slog.Logger
}

// Watch reports PDFs created or written under the roots until ctx ends.
// Directories created later are watched too. Both channels are closed when
// the watcher stops.
func Watch(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	// addTree watches every directory under root and hands existing PDFs
	// to found when it is set.
	addTree := func(root string, found func(string)) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !d.IsDir() {
				if found != nil && AllowedExt(filepath.Ext(path)) && !(cfg.SkipHidden && IsHidden(path)) {
					found(path)
				}
				return nil
			}
			if cfg.SkipHidden && path != root && IsHidden(path) {
				return filepath.SkipDir
			}
			return w.Add(path)
		})
	}
	for _, r := range cfg.Roots {
		if err := addTree(r, nil); err != nil {
			_ = w.Close()
			return nil, nil, err
		}
	}
	logger.Info("ingest.watch.start", "roots", cfg.Roots, "debounce_ms", cfg.Debounce.Milliseconds())

	paths := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(paths)
		defer close(errs)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("ingest.watch.close", "error", err)
			}
		}()

		pending := map[string]struct{}{}
		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		flush := func() bool {
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			clear(pending)
			sort.Strings(batch)
			for _, p := range batch {
				select {
				case paths <- p:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if cfg.SkipHidden && IsHidden(e.Name) {
					continue
				}
				switch {
				case e.Has(fsnotify.Create) && isDir(e.Name):
					// files can land before the directory is watched
					err := addTree(e.Name, func(p string) { pending[p] = struct{}{} })
					if err != nil {
						logger.Warn("ingest.watch.add_dir", "path", e.Name, "error", err)
					}
					if len(pending) == 0 {
						continue
					}
				case e.Has(fsnotify.Create) || e.Has(fsnotify.Write):
					if !AllowedExt(filepath.Ext(e.Name)) {
						continue
					}
					pending[e.Name] = struct{}{}
				default:
					continue
				}
				if cfg.Debounce <= 0 {
					if !flush() {
						return
					}
					continue
				}
				if timer == nil {
					timer = time.NewTimer(cfg.Debounce)
				} else {
					timer.Reset(cfg.Debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if !flush() {
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("ingest.watch.error", "error", err)
				select {
				case errs <- err:
				default:
				}
			}
		}
	}()

	return paths, errs, nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
