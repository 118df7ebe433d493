// Package ingest finds PDFs on disk for batch runs.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/joseph-ayodele/parsemed/constants"
)

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
	Failed  uint32
}

// Walker lists the PDFs under a root directory.
type Walker struct {
	FS         afero.Fs
	SkipHidden bool
}

func NewWalker(fs afero.Fs, skipHidden bool) *Walker {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Walker{FS: fs, SkipHidden: skipHidden}
}

// Walk returns the PDF paths under root in lexical order. Unreadable entries
// are counted as failed and the walk continues.
func (w *Walker) Walk(root string) ([]string, DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, errors.New("root path is required")
	}
	info, err := w.FS.Stat(root)
	if err != nil {
		return nil, stats, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, stats, fmt.Errorf("%s is not a directory", root)
	}

	var paths []string
	err = afero.Walk(w.FS, root, func(path string, fi os.FileInfo, walkErr error) error {
		if path == root {
			return walkErr
		}
		stats.Scanned++
		if walkErr != nil {
			stats.Failed++
			if fi != nil && fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if w.SkipHidden && IsHidden(path) {
			stats.Skipped++
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if fi.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			stats.Skipped++
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return paths, stats, fmt.Errorf("walk: %w", err)
	}
	sort.Strings(paths)
	return paths, stats, nil
}

// AllowedExt reports whether ext names a file batch runs pick up.
func AllowedExt(ext string) bool {
	return constants.IsAllowedExt(ext)
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
