// Package watch re-runs a callback whenever schema documents under a
// directory change. Bursts of events (editors writing temp files, git
// checkouts) are coalesced with a debounce window.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/artpar/schemagate/core/schema"
)

// DefaultDebounce is used when a non-positive debounce is configured.
const DefaultDebounce = 200 * time.Millisecond

// Func is invoked after the schema directory settles.
type Func func(ctx context.Context) error

// Watcher watches a schema directory tree.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
}

// New creates a watcher for dir and every non-hidden subdirectory.
func New(dir string, debounce time.Duration, logger zerolog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		dir:      dir,
		debounce: debounce,
		logger:   logger.With().Str("component", "watch").Logger(),
		watcher:  fw,
	}

	if err := w.addTree(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Run blocks until ctx is done, calling fn once per settled burst of
// schema file changes. Errors from fn are logged and watching continues.
func (w *Watcher) Run(ctx context.Context, fn Func) error {
	defer w.watcher.Close()

	w.logger.Info().
		Str("dir", w.dir).
		Dur("debounce", w.debounce).
		Msg("watching schema directory")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}

			w.logger.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("schema change")

			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true

		case <-timer.C:
			pending = false
			if err := fn(ctx); err != nil {
				w.logger.Error().Err(err).Msg("schema reload failed")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("file watcher error")

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// relevant filters events down to schema documents, and starts watching
// directories created after New.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("dir", event.Name).Msg("cannot watch new directory")
			}
			return true
		}
	}

	if !schema.IsSchemaFile(filepath.Base(event.Name)) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Close releases the underlying watcher. Run closes it on return.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
