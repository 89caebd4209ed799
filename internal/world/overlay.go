package world

import (
	"sync"

	"langd/internal/fileset"
)

// OverlayTracker records which files are currently "open" in an editor
// (their in-memory overlay text takes precedence over disk content) and
// which subscriber ids want decoration/diagnostic push notifications for
// them, per spec.md's component H.
type OverlayTracker struct {
	mu          sync.RWMutex
	open        map[fileset.FileId]struct{}
	subscribers map[fileset.FileId]map[string]struct{}
}

// NewOverlayTracker creates an empty tracker.
func NewOverlayTracker() *OverlayTracker {
	return &OverlayTracker{
		open:        make(map[fileset.FileId]struct{}),
		subscribers: make(map[fileset.FileId]map[string]struct{}),
	}
}

// Open marks id as having an overlay (didOpen).
func (t *OverlayTracker) Open(id fileset.FileId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open[id] = struct{}{}
}

// Close clears id's overlay and subscribers (didClose).
func (t *OverlayTracker) Close(id fileset.FileId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.open, id)
	delete(t.subscribers, id)
}

// IsOpen reports whether id currently has an overlay.
func (t *OverlayTracker) IsOpen(id fileset.FileId) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.open[id]
	return ok
}

// Subscribe registers subscriberID for push notifications about id (e.g.
// decorations), returning true if newly added.
func (t *OverlayTracker) Subscribe(id fileset.FileId, subscriberID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.subscribers[id]
	if !ok {
		set = make(map[string]struct{})
		t.subscribers[id] = set
	}
	_, existed := set[subscriberID]
	set[subscriberID] = struct{}{}
	return !existed
}

// Unsubscribe removes subscriberID from id's subscriber set.
func (t *OverlayTracker) Unsubscribe(id fileset.FileId, subscriberID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set, ok := t.subscribers[id]; ok {
		delete(set, subscriberID)
		if len(set) == 0 {
			delete(t.subscribers, id)
		}
	}
}

// Subscribers returns the current subscriber ids for id.
func (t *OverlayTracker) Subscribers(id fileset.FileId) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.subscribers[id]
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// OpenFiles returns every currently open FileId.
func (t *OverlayTracker) OpenFiles() []fileset.FileId {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]fileset.FileId, 0, len(t.open))
	for id := range t.open {
		out = append(out, id)
	}
	return out
}
