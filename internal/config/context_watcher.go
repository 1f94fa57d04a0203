package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ContextWatcher watches the directories that DiscoverProjectInstructions
// reads from and re-renders the project-instructions block whenever a
// CLAUDE.md/FORGE.md file is created, edited, or removed, so a long-lived
// REPL session picks up edits made in another editor without restarting.
type ContextWatcher struct {
	homeDir, cwd string
	debounce     time.Duration
	logger       *slog.Logger
	onChange     func(rendered string)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewContextWatcher creates a watcher for the given home/cwd pair.
// onChange is invoked (from the watch goroutine) with the freshly
// rendered "## Project Instructions" block each time a watched file
// changes; logger may be nil.
func NewContextWatcher(homeDir, cwd string, onChange func(rendered string), logger *slog.Logger) *ContextWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextWatcher{
		homeDir:  homeDir,
		cwd:      cwd,
		debounce: 250 * time.Millisecond,
		logger:   logger,
		onChange: onChange,
	}
}

// Start begins watching. It is a no-op if already started. Each
// ancestor directory from filesystem root to cwd, plus the two
// well-known home-directory instruction paths, is added individually —
// fsnotify does not support recursive watches, matching the teacher's
// registry.go non-recursive watch-path set.
func (w *ContextWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	for _, dir := range w.watchDirs() {
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn("context watcher: failed to watch directory", "dir", dir, "error", err)
		}
	}

	w.wg.Add(1)
	go w.loop(watchCtx)
	return nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *ContextWatcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	w.wg.Wait()
	return nil
}

func (w *ContextWatcher) watchDirs() []string {
	seen := make(map[string]struct{})
	var dirs []string
	add := func(d string) {
		if d == "" {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		dirs = append(dirs, d)
	}
	if w.homeDir != "" {
		add(w.homeDir + "/.claude")
		add(w.homeDir + "/.forge")
	}
	for _, dir := range ancestorsOutermostFirst(w.cwd) {
		add(dir)
	}
	return dirs
}

func (w *ContextWatcher) loop(ctx context.Context) {
	defer w.wg.Done()
	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return
	}

	var mu sync.Mutex
	var timer *time.Timer
	scheduleRefresh := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			if w.onChange != nil {
				w.onChange(RenderProjectInstructions(w.homeDir, w.cwd))
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if isInstructionFile(event.Name) && event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleRefresh()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("context watcher error", "error", err)
		}
	}
}

func isInstructionFile(path string) bool {
	for _, name := range ProjectInstructionFilenames {
		if len(path) >= len(name) && path[len(path)-len(name):] == name {
			return true
		}
	}
	return false
}
