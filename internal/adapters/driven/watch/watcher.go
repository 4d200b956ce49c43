// Package watch keeps the index in step with policy files as they
// change on disk. Created and modified files matching the watched
// pattern are re-ingested; removed files leave the index. Unchanged
// rewrites are absorbed by the ingest fingerprint check, so editors
// that fire multiple write events cost one embedding pass at most.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
	"github.com/ancora-labs/ancora/internal/logger"
)

// Watcher re-ingests files under a pattern as they change.
type Watcher struct {
	fsw    *fsnotify.Watcher
	ingest driving.IngestService
	root   string
	match  func(path string) bool

	// recurse watches subdirectories too, for ** patterns.
	recurse bool
}

// New builds a watcher for the given ingest pattern. The pattern's
// fixed prefix must exist; matching files do not have to yet.
func New(ingest driving.IngestService, pattern string) (*Watcher, error) {
	root, match, recurse, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("starting watcher: %w", err)
	}

	w := &Watcher{
		fsw:     fsw,
		ingest:  ingest,
		root:    root,
		match:   match,
		recurse: recurse,
	}
	if err := w.addDirs(root); err != nil {
		fsw.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}
	return w, nil
}

// Run processes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	logger.Info("Watching %s for changes", w.root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error: %v", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Root returns the directory being watched.
func (w *Watcher) Root() string {
	return w.root
}

// handleEvent classifies one filesystem event and applies it to the
// index. Directories and hidden files are ignored; a new directory
// under a recursive pattern joins the watch list.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.recurse {
				if err := w.addDirs(event.Name); err != nil {
					logger.Warn("Cannot watch %s: %v", event.Name, err)
				}
			}
			return
		}
	}

	switch {
	case event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Write):
		if !w.match(event.Name) {
			return
		}
		w.reingest(ctx, event.Name)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		if !w.match(event.Name) {
			return
		}
		w.remove(ctx, base)
	}
}

// reingest runs the normal ingest pipeline for one changed file.
func (w *Watcher) reingest(ctx context.Context, path string) {
	report, err := w.ingest.IngestPath(ctx, path, driving.IngestOptions{})
	if err != nil {
		logger.Warn("Re-ingest of %s failed: %v", path, err)
		return
	}
	switch {
	case report.Ingested > 0:
		logger.Info("Re-indexed %s (%d chunks)", filepath.Base(path), report.Chunks)
	case report.Failed > 0:
		logger.Warn("Re-ingest of %s failed: %s", path, report.Failures[0].Reason)
	default:
		logger.Debug("Unchanged: %s", path)
	}
}

// remove drops a vanished file from the index. Files that were never
// ingested are not an error.
func (w *Watcher) remove(ctx context.Context, filename string) {
	err := w.ingest.DeleteByFilename(ctx, filename)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		logger.Warn("Removing %s from index failed: %v", filename, err)
	default:
		logger.Info("Removed %s from index", filename)
	}
}

// addDirs registers root, and under a recursive pattern every
// non-hidden directory below it, with the filesystem watcher.
func (w *Watcher) addDirs(root string) error {
	if !w.recurse {
		return w.fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// compilePattern derives the directory to watch and the file predicate
// from an ingest pattern. Literal paths behave like the loader: a file
// watches exactly that file, a directory watches the loadable files
// directly inside it, and glob patterns watch the fixed prefix
// recursively.
func compilePattern(pattern string) (root string, match func(string) bool, recurse bool, err error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		info, err := os.Stat(pattern)
		if err != nil {
			return "", nil, false, err
		}
		clean := filepath.Clean(pattern)
		if info.IsDir() {
			return clean, func(path string) bool {
				return filepath.Dir(filepath.Clean(path)) == clean && loadable(path)
			}, false, nil
		}
		return filepath.Dir(clean), func(path string) bool {
			return filepath.Clean(path) == clean
		}, false, nil
	}

	base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	if _, err := os.Stat(base); err != nil {
		return "", nil, false, err
	}
	root = filepath.FromSlash(base)
	return root, func(path string) bool {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return false
		}
		ok, err := doublestar.Match(rest, filepath.ToSlash(rel))
		return err == nil && ok
	}, true, nil
}

// loadable mirrors the loader's accepted extensions.
func loadable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt", ".text":
		return true
	default:
		return false
	}
}
