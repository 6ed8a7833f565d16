package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/pkg/format"
)

// DefaultDebounce is how long a file must be quiet before it is handled.
const DefaultDebounce = 100 * time.Millisecond

// Watcher calls a handler for .sql files under a directory tree once
// writes to them settle.
type Watcher struct {
	dir      string
	handle   func(path string)
	logger   *slog.Logger
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a watcher for dir. A nil logger discards output.
func NewWatcher(dir string, handle func(path string), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		dir:      dir,
		handle:   handle,
		logger:   logger,
		debounce: DefaultDebounce,
		timers:   make(map[string]*time.Timer),
	}
}

// SetDebounce overrides the quiet period.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run watches until ctx is done. Directories created while running are
// added to the watch.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := watchDirRecursive(fw, w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching for changes", "dir", w.dir)

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := watchDirRecursive(fw, event.Name); err != nil {
						w.logger.Error("failed to watch directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".sql") {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// schedule restarts the quiet period for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		w.logger.Debug("file changed", "file", path)
		w.handle(path)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// FormatFile formats the file at path in place. The file is written only
// when its formatted text differs, so the write it causes settles.
func FormatFile(f *format.Formatter, path string) Event {
	return formatFile(f, path, true)
}

// CheckFile reports whether the file at path would change when formatted,
// without writing it.
func CheckFile(f *format.Formatter, path string) Event {
	return formatFile(f, path, false)
}

func formatFile(f *format.Formatter, path string, write bool) Event {
	ev := Event{Path: path, Time: time.Now()}

	b, err := os.ReadFile(path)
	if err != nil {
		ev.Fault = output.NewFault(err)
		return ev
	}
	out, err := f.Format(string(b))
	if err != nil {
		ev.Fault = output.NewFault(err)
		return ev
	}
	if out == string(b) {
		return ev
	}
	if !write {
		ev.Changed = true
		return ev
	}

	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(out), mode); err != nil {
		ev.Fault = output.NewFault(err)
		return ev
	}
	ev.Changed = true
	return ev
}
