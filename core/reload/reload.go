// Package reload implements the hot-reload watcher (C7): it observes the
// rule file for changes via an OS-level notification where available, plus
// a modification-time poll as a fallback, and atomically swaps the rule
// store's snapshot pointer on a successful reload. A failed reload is
// logged and the previous snapshot keeps serving traffic.
package reload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/superego-run/superego/core/rules"
)

// defaultPollInterval is the mtime-poll fallback cadence.
const defaultPollInterval = time.Second

// defaultDebounce coalesces bursts of change events (e.g. an editor's
// write-then-rename) into a single reload.
const defaultDebounce = 250 * time.Millisecond

// Watcher holds the live RuleSet snapshot and keeps it current by
// reloading path on change. It satisfies engine.Store.
type Watcher struct {
	path string
	log  *slog.Logger

	pollInterval time.Duration
	debounce     time.Duration

	current  atomic.Pointer[rules.RuleSet]
	lastLoad atomic.Pointer[loadResult]
}

type loadResult struct {
	at  time.Time
	err error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPollInterval overrides the mtime-poll cadence (default 1s).
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) { w.pollInterval = d }
}

// WithDebounce overrides the change-coalescing window (default 250ms).
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger attaches a structured logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// New builds a Watcher and performs the initial load. A failed initial
// load is a startup failure (CONFIG, spec.md §7) and is returned as-is.
func New(path string, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		path:         path,
		log:          slog.Default(),
		pollInterval: defaultPollInterval,
		debounce:     defaultDebounce,
	}
	for _, o := range opts {
		o(w)
	}

	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Current returns the live RuleSet snapshot. Safe for concurrent use.
func (w *Watcher) Current() *rules.RuleSet {
	return w.current.Load()
}

// LastLoadError reports the error from the most recent reload attempt, or
// nil if the most recent attempt succeeded (for C8 health reporting).
func (w *Watcher) LastLoadError() error {
	if lr := w.lastLoad.Load(); lr != nil {
		return lr.err
	}
	return nil
}

func (w *Watcher) reload() error {
	info, statErr := os.Stat(w.path)
	var set *rules.RuleSet
	var err error
	if statErr != nil {
		err = statErr
	} else if info.IsDir() {
		set, err = rules.LoadDir(w.path)
	} else {
		set, err = rules.LoadFile(w.path)
	}

	w.lastLoad.Store(&loadResult{at: time.Now(), err: err})
	if err != nil {
		w.log.Error("rule reload failed, retaining previous snapshot", "path", w.path, "error", err)
		return err
	}

	w.current.Store(set)
	w.log.Info("rules loaded", "path", w.path, "count", set.Len())
	return nil
}

// Run watches the rule file (or directory) for changes until ctx is
// cancelled, reloading on every debounced change. In-flight evaluations
// keep running against the snapshot they already captured; only
// subsequent Current() calls observe the new one.
func (w *Watcher) Run(ctx context.Context) error {
	watchDir := filepath.Dir(w.path)
	if info, err := os.Stat(w.path); err == nil && info.IsDir() {
		watchDir = w.path
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		// fsnotify is best-effort: the mtime poll alone still satisfies
		// the reload contract, just at coarser granularity.
		w.log.Warn("fsnotify unavailable, falling back to mtime polling only", "error", err)
		return w.pollLoop(ctx, nil)
	}
	defer fw.Close()

	if err := fw.Add(watchDir); err != nil {
		w.log.Warn("fsnotify add failed, falling back to mtime polling only", "dir", watchDir, "error", err)
	}

	return w.pollLoop(ctx, fw)
}

func (w *Watcher) pollLoop(ctx context.Context, fw *fsnotify.Watcher) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var mu sync.Mutex
	var timer *time.Timer
	lastMtime := w.currentMtime()

	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			_ = w.reload()
		})
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if fw != nil {
		events = fw.Events
		errs = fw.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if relevant(ev, w.path) {
				scheduleReload()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Warn("fsnotify error", "error", err)
		case <-ticker.C:
			if m := w.currentMtime(); !m.Equal(lastMtime) {
				lastMtime = m
				scheduleReload()
			}
		}
	}
}

func (w *Watcher) currentMtime() time.Time {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// relevant reports whether a change event concerns the watched rule file
// itself (when watching a single file) or any YAML file inside the
// watched directory (when watching a directory of rule files).
func relevant(ev fsnotify.Event, path string) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	info, statErr := os.Stat(path)
	if statErr == nil && !info.IsDir() {
		return ev.Name == path
	}
	ext := filepath.Ext(ev.Name)
	return ext == ".yaml" || ext == ".yml"
}
