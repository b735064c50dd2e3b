// Package watch re-runs build targets when source files change. It
// watches the project tree recursively, debounces rapid saves, and feeds
// settled changes back into the target runner.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"forge/internal/config"
	"forge/internal/logging"
	"forge/internal/task"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// TargetRunner dispatches one named target. Satisfied by *task.Runner.
type TargetRunner interface {
	Run(ctx context.Context, name string, opts task.Options) error
}

// Stats tracks watcher activity for the status command and tests.
type Stats struct {
	FilesCreated  int       `json:"files_created"`
	FilesModified int       `json:"files_modified"`
	FilesDeleted  int       `json:"files_deleted"`
	RunsTriggered int       `json:"runs_triggered"`
	RunsFailed    int       `json:"runs_failed"`
	Errors        int       `json:"errors"`
	LastEventTime time.Time `json:"last_event_time"`
	LastEventPath string    `json:"last_event_path"`
}

// Watcher monitors a project tree and re-runs the configured targets when
// matching files settle after a change.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	runner      TargetRunner
	cfg         *config.Config
	root        string
	targets     []string
	extensions  []string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats

	// onRun, when set, observes each completed trigger. Used by tests.
	onRun func(paths []string, err error)
}

// New creates a watcher over root. Targets and debounce come from the
// watch section of the configuration.
func New(cfg *config.Config, root string, runner TargetRunner) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fsw,
		runner:      runner,
		cfg:         cfg,
		root:        root,
		targets:     cfg.Watch.Targets,
		extensions:  cfg.Watch.Extensions,
		debounceMap: make(map[string]time.Time),
		debounceDur: cfg.WatchDebounce(),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	log := logging.Named("watch")
	if err := w.addTree(w.root); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		_ = w.watcher.Close()
		return err
	}
	log.Info("watching",
		zap.String("root", w.root),
		zap.Strings("targets", w.targets),
		zap.Duration("debounce", w.debounceDur))

	go w.run(ctx)
	return nil
}

// Stop stops the event loop and closes the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Named("watch").Error("close failed", zap.Error(err))
	}
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// addTree registers root and every non-hidden subdirectory with the
// filesystem watcher.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if skipDir(d.Name()) && path != root {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// skipDir filters directories that never hold watched sources.
func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	switch name {
	case "vendor", "node_modules", "testdata":
		return true
	}
	return false
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	log := logging.Named("watch")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories need to be added to the watch set before any
	// extension filtering.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !skipDir(filepath.Base(event.Name)) {
				_ = w.watcher.Add(event.Name)
			}
			return
		}
	}

	if !w.matches(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name

	switch {
	case event.Op&fsnotify.Create != 0:
		w.stats.FilesCreated++
	case event.Op&fsnotify.Write != 0:
		w.stats.FilesModified++
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		w.stats.FilesDeleted++
	default:
		return // chmod etc.
	}

	w.debounceMap[event.Name] = time.Now()
}

// matches reports whether path has one of the watched extensions.
func (w *Watcher) matches(path string) bool {
	ext := filepath.Ext(path)
	for _, want := range w.extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// processSettled runs the configured targets for changes older than the
// debounce window. All settled paths collapse into one run.
func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	if len(settled) == 0 {
		return
	}
	w.trigger(ctx, settled)
}

func (w *Watcher) trigger(ctx context.Context, paths []string) {
	log := logging.Named("watch")
	log.Info("change detected",
		zap.Int("files", len(paths)),
		zap.Strings("targets", w.targets))

	w.mu.Lock()
	w.stats.RunsTriggered++
	w.mu.Unlock()

	opts := task.Options{Strict: w.cfg.Strict()}
	var runErr error
	for _, name := range w.targets {
		if err := w.runner.Run(ctx, name, opts); err != nil {
			// Keep watching: a broken build is exactly what the
			// next save is for.
			log.Warn("target failed",
				zap.String("target", name),
				zap.Error(err))
			w.mu.Lock()
			w.stats.RunsFailed++
			w.mu.Unlock()
			runErr = err
			break
		}
	}

	w.mu.RLock()
	onRun := w.onRun
	w.mu.RUnlock()
	if onRun != nil {
		onRun(paths, runErr)
	}
}
