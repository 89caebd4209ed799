package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"langd/internal/world"
)

// Tests here deliberately skip goleak verification: fsnotify's inotify
// backend leaves kernel-side watch descriptors whose teardown races
// goleak's scan, the same incompatibility the teacher's own watcher tests
// document.

func TestWatcherEmitsEditOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.rs")
	if err := os.WriteFile(path, []byte("fn main() {}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := New(dir, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("fn main() { 1; }"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case ev := <-w.Events:
		if ev.Kind != world.ChangeEditFile {
			t.Fatalf("expected ChangeEditFile, got %v", ev.Kind)
		}
		if ev.Path != path {
			t.Fatalf("expected path %s, got %s", path, ev.Path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher event")
	}
}

func TestWatcherIgnoresNonSourceFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	os.WriteFile(path, []byte("hello"), 0o644)

	w, err := New(dir, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	os.WriteFile(path, []byte("hello again"), 0o644)

	select {
	case ev := <-w.Events:
		t.Fatalf("expected no event for non-source file, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
