package service

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/joeblew999/plat-climate/internal/layer"
)

// DefaultDebounce is how long the watcher collects changes before reporting.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc receives the store-relative names changed since the last flush.
type ChangeFunc func(names []string)

// Watcher reports changes to layer files, manifests and styles under the
// layer store root.
type Watcher struct {
	store    *LayerStore
	fsw      *fsnotify.Watcher
	clock    clockwork.Clock
	debounce time.Duration
	onChange ChangeFunc
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]struct{}
}

// NewWatcher creates a watcher over the store root. Pending changes are
// flushed every debounce interval of clock.
func NewWatcher(store *LayerStore, clock clockwork.Clock, debounce time.Duration, onChange ChangeFunc, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		store:    store,
		fsw:      fsw,
		clock:    clock,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		pending:  make(map[string]struct{}),
	}, nil
}

// Run watches until ctx is cancelled. It creates the root if missing.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	root := w.store.Root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if err := w.addRecursive(root); err != nil {
		return err
	}
	w.logger.Info("layer watcher started", "root", root, "debounce", w.debounce)

	ticker := w.clock.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("layer watcher error", "error", err)
		case <-ticker.Chan():
			w.flush()
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}

	rel, err := filepath.Rel(w.store.Root(), event.Name)
	if err != nil {
		return
	}
	name := filepath.ToSlash(rel)
	if !w.relevant(name) {
		return
	}

	w.pendingMu.Lock()
	w.pending[name] = struct{}{}
	w.pendingMu.Unlock()
	w.logger.Debug("layer change detected", "file", name, "op", event.Op.String())
}

func (w *Watcher) relevant(name string) bool {
	return name == stylesFile ||
		strings.HasSuffix(name, layer.ManifestSuffix) ||
		w.store.Matches(name)
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	names := make([]string, 0, len(w.pending))
	for name := range w.pending {
		names = append(names, name)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	sort.Strings(names)
	if w.onChange != nil {
		w.onChange(names)
	}
}
