package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a Cache when template files in a directory change.
type Watcher struct {
	cache    *Cache
	dir      string
	debounce time.Duration
	onReload func(error)
	logger   *slog.Logger
}

// WatcherOption configures NewWatcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook is called after every reload attempt.
func WithReloadHook(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l.With("component", "prompt_watcher") }
}

// NewWatcher creates a watcher for dir. The cache should read from the same
// directory, e.g. NewCache(os.DirFS(dir)).
func NewWatcher(cache *Cache, dir string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		cache:    cache,
		dir:      dir,
		debounce: DefaultDebounce,
		logger:   slog.Default().With("component", "prompt_watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done. A failed reload keeps the previous
// templates and is logged.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isTemplateFile(ev.Name) || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("template watcher error", "error", err)
		case <-timer.C:
			err := w.cache.Reload()
			if err != nil {
				w.logger.Error("template reload failed", "dir", w.dir, "error", err)
			} else {
				w.logger.Info("templates reloaded", "dir", w.dir)
			}
			if w.onReload != nil {
				w.onReload(err)
			}
		}
	}
}
