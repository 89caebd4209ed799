// Package vfs watches the workspace directory for out-of-editor file
// changes and emits debounced events on a channel, the "external source"
// feeding the main loop's filesystem-events channel (spec.md §2, §6).
// Grounded directly on the teacher's internal/core/mangle_watcher.go: the
// same fsnotify.Watcher, debounce-ticker, and run-loop shape, generalized
// from watching a single `.nerd/mangle` directory for `.mg` files to
// recursively watching a workspace root for any tree-sitter-recognized
// source file.
package vfs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"langd/internal/logging"
	"langd/internal/syntax"
	"langd/internal/world"
)

// Event is one coalesced filesystem change ready to apply to the World.
type Event struct {
	Kind world.ChangeKind
	Path string
	Text string
}

// Watcher recursively watches root for source file changes, debounces
// rapid-fire events per path, and emits one Event per settled change.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	root        string
	ignoreDirs  map[string]struct{}
	debounce    time.Duration
	debounceMap map[string]time.Time
	opKind      map[string]fsnotify.Op

	Events chan Event

	stopCh chan struct{}
	doneCh chan struct{}
	running bool
}

// New creates a Watcher rooted at root. debounce is the quiet period
// required before a path's pending change is emitted; ignoreDirs names the
// directories the initial walk skips. A nil ignoreDirs skips none: unlike
// workspace.New, there is no fallback to workspace.DefaultIgnoreDirs.
func New(root string, debounce time.Duration, ignoreDirs []string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	set := make(map[string]struct{}, len(ignoreDirs))
	for _, d := range ignoreDirs {
		set[d] = struct{}{}
	}
	return &Watcher{
		watcher:     w,
		root:        root,
		ignoreDirs:  set,
		debounce:    debounce,
		debounceMap: make(map[string]time.Time),
		opKind:      make(map[string]fsnotify.Op),
		Events:      make(chan Event, 64),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start walks root adding every non-ignored directory to the watch set and
// launches the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	err := filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if _, skip := w.ignoreDirs[info.Name()]; skip && path != w.root {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			logging.VFSWarn("vfs: failed to watch %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		logging.VFSWarn("vfs: initial walk of %s failed: %v", w.root, err)
	}

	go w.run(ctx)
	logging.VFS("vfs: watching %s", w.root)
	return nil
}

// Stop halts the event loop and releases the underlying fsnotify watcher.
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
		logging.VFSWarn("vfs: error closing watcher: %v", err)
	}
	close(w.Events)
	logging.VFS("vfs: stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.VFSWarn("vfs: watcher error: %v", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleFsEvent(ev fsnotify.Event) {
	if syntax.DetectLanguage(filepath.Ext(ev.Name)) == syntax.LangUnknown {
		return
	}
	w.mu.Lock()
	w.debounceMap[ev.Name] = time.Now()
	w.opKind[ev.Name] = ev.Op
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	ready := make(map[string]fsnotify.Op)
	now := time.Now()
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounce {
			ready[path] = w.opKind[path]
			delete(w.debounceMap, path)
			delete(w.opKind, path)
		}
	}
	w.mu.Unlock()

	for path, op := range ready {
		ev := w.toEvent(path, op)
		select {
		case w.Events <- ev:
		default:
			logging.VFSWarn("vfs: events channel full, dropping event for %s", path)
		}
	}
}

func (w *Watcher) toEvent(path string, op fsnotify.Op) Event {
	switch {
	case op&fsnotify.Remove != 0, op&fsnotify.Rename != 0:
		return Event{Kind: world.ChangeRemoveFile, Path: path}
	default:
		text, err := os.ReadFile(path)
		if err != nil {
			logging.VFSWarn("vfs: failed to read changed file %s: %v", path, err)
			return Event{Kind: world.ChangeRemoveFile, Path: path}
		}
		return Event{Kind: world.ChangeEditFile, Path: path, Text: string(text)}
	}
}
