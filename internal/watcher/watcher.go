// Package watcher turns fsnotify notifications into add, change and unlink
// events for files matching a glob pattern under a root directory.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/conneroisu/svgrender/internal/catalog"
	"github.com/conneroisu/svgrender/internal/errors"
	"github.com/conneroisu/svgrender/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change a watcher reports.
type Op string

const (
	OpAdd    Op = "add"
	OpChange Op = "change"
	OpUnlink Op = "unlink"
)

// Event is one filesystem change.
type Event struct {
	Op   Op
	Path string
}

// DirFilter decides whether a directory is registered with fsnotify.
type DirFilter func(path string) bool

// Watcher watches every directory under a root and reports matching files.
type Watcher struct {
	fsw     *fsnotify.Watcher
	root    string
	pattern string
	logger  logging.Logger

	events  chan Event
	filters []DirFilter

	mutex     sync.RWMutex
	dirs      map[string]struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a watcher for pattern relative to root. The pattern uses the
// same syntax and resolution as catalog builds.
func New(root, pattern string, logger logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	absRoot, relPattern, err := catalog.ResolvePattern(root, pattern)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsw:     fsw,
		root:    absRoot,
		pattern: relPattern,
		logger:  logger.WithComponent("watcher"),
		events:  make(chan Event, 64),
		filters: []DirFilter{NoGitFilter, NoNodeModulesFilter},
		dirs:    make(map[string]struct{}),
		done:    make(chan struct{}),
	}, nil
}

// AddFilter adds a directory filter. Call before Start.
func (w *Watcher) AddFilter(filter DirFilter) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.filters = append(w.filters, filter)
}

// Events returns the event channel. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Root returns the absolute directory being watched.
func (w *Watcher) Root() string {
	return w.root
}

// Start registers the directory tree and starts delivering events until
// ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(ctx, w.root, false); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Close stops the watcher and releases the fsnotify handle.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

// Match reports whether path, absolute or relative to the root, matches
// the pattern.
func (w *Watcher) Match(path string) bool {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return false
		}
		path = rel
	}
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(path))
	return err == nil && ok
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.events)
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			// Files may land in a new directory before it is registered,
			// so report what is already there.
			if err := w.addRecursive(ctx, path, true); err != nil {
				w.logger.Warn(ctx, err, "Failed to watch new directory", "path", path)
			}
			return
		}
		w.emit(ctx, OpAdd, path)
	case ev.Has(fsnotify.Write):
		w.emit(ctx, OpChange, path)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if w.forgetDir(path) {
			// A removed directory may have held matching files.
			w.send(ctx, Event{Op: OpUnlink, Path: path})
			return
		}
		w.emit(ctx, OpUnlink, path)
	}
}

func (w *Watcher) emit(ctx context.Context, op Op, path string) {
	if !w.Match(path) {
		return
	}
	w.send(ctx, Event{Op: op, Path: path})
}

func (w *Watcher) send(ctx context.Context, ev Event) {
	w.logger.Debug(ctx, "File event", "op", string(ev.Op), "path", ev.Path)
	select {
	case w.events <- ev:
	case <-ctx.Done():
	case <-w.done:
	}
}

// addRecursive registers dir and its subdirectories. With report set,
// matching files found during the walk are sent as add events.
func (w *Watcher) addRecursive(ctx context.Context, dir string, report bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return errors.NewDiscoveryError(errors.CodeRootMissing, "watching "+dir, err)
			}
			w.logger.Warn(ctx, err, "Skipping unreadable path", "path", path)
			return nil
		}

		if !d.IsDir() {
			if report {
				w.emit(ctx, OpAdd, path)
			}
			return nil
		}

		if path != w.root && !w.allowDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		w.mutex.Lock()
		w.dirs[path] = struct{}{}
		w.mutex.Unlock()
		return nil
	})
}

func (w *Watcher) allowDir(path string) bool {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	for _, filter := range w.filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

// forgetDir drops path and everything below it from the registered set and
// reports whether path was a registered directory.
func (w *Watcher) forgetDir(path string) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if _, ok := w.dirs[path]; !ok {
		return false
	}
	prefix := path + string(filepath.Separator)
	for dir := range w.dirs {
		if dir == path || len(dir) > len(prefix) && dir[:len(prefix)] == prefix {
			delete(w.dirs, dir)
		}
	}
	return true
}

// NoGitFilter skips .git directories.
func NoGitFilter(path string) bool {
	return filepath.Base(path) != ".git"
}

// NoNodeModulesFilter skips node_modules directories.
func NoNodeModulesFilter(path string) bool {
	return filepath.Base(path) != "node_modules"
}
