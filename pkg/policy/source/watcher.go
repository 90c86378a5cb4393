package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is used when a Watcher is given no interval.
const DefaultDebounceInterval = 250 * time.Millisecond

// Watcher re-syncs policy files when they change on disk. Bursts of
// events are collapsed by a Debouncer so an editor save that produces
// several writes triggers one sync.
type Watcher struct {
	files    *FileSource
	syncer   *Syncer
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce *Debouncer

	// OnSync, if set, is called after every triggered sync.
	OnSync func(SyncResult, error)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher watches the paths of files and syncs through syncer.
func NewWatcher(files *FileSource, syncer *Syncer, interval time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		files:    files,
		syncer:   syncer,
		logger:   logger.With("component", "policy_watcher"),
		watcher:  fw,
		debounce: NewDebouncer(interval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks, syncing after changes, until ctx is cancelled or Stop is
// called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	for _, p := range w.files.Paths() {
		if err := w.addPath(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}
	w.logger.Info("watching policy files", "paths", w.files.Paths())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			w.handle(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(event.Name) {
			if err := w.addPath(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			w.trigger(ctx)
			return
		}
	}
	if !w.relevant(event) {
		return
	}
	w.logger.Debug("policy file event", "path", event.Name, "op", event.Op.String())
	w.trigger(ctx)
}

func (w *Watcher) trigger(ctx context.Context) {
	w.debounce.Trigger(func() {
		result, err := w.syncer.Sync(ctx)
		if err != nil {
			w.logger.Error("policy sync failed", "error", err)
		} else if result.Changed() {
			w.logger.Info("policy files synced",
				"loaded", len(result.Loaded),
				"removed", len(result.Removed))
		}
		if w.OnSync != nil {
			w.OnSync(result, err)
		}
	})
}

// relevant filters out chmod events and files a directory walk would skip.
// Removal and rename events for a watched root file are kept.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if w.files.Matches(event.Name) {
		return true
	}
	label := Label(event.Name)
	for _, p := range w.files.Paths() {
		if Label(p) == label {
			return true
		}
	}
	return false
}

// Stop ends Watch and releases the fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	w.debounce.Stop()
	return w.watcher.Close()
}

func (w *Watcher) addPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		// Editors often replace files by rename, which drops a watch on
		// the file itself, so the parent directory is watched instead.
		return w.watcher.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && isHidden(p) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

// Debouncer runs the most recent callback once no new trigger has arrived
// for the interval.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	cb := d.callback
	d.callback = nil
	stopped := d.stopped
	d.mu.Unlock()

	if cb != nil && !stopped {
		cb()
	}
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
