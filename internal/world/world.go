// Package world implements the analysis server's versioned state: the
// World itself (component C), cheap read-only Snapshots (component D), and
// the cancellation/overlay machinery (components E and H) that sit on top
// of it.
package world

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"langd/internal/fileset"
	"langd/internal/logging"
	"langd/internal/syntax"
)

// FileRecord is one file's current content and parsed syntax tree. Text is
// the effective, currently-visible content (spec.md: "the filesystem text
// or, if present, the overlay text"); FsText is the last filesystem text
// seen for this file, independent of any overlay shadowing it, so closing
// an overlay can restore it.
type FileRecord struct {
	Id     fileset.FileId
	Path   string
	Text   string
	FsText string
	Lang   syntax.Language
	Tree   *syntax.Tree
}

// ChangeKind distinguishes the three ways a file can change.
type ChangeKind int

const (
	ChangeAddFile ChangeKind = iota
	ChangeEditFile
	ChangeRemoveFile
)

// Change is one unit of mutation applied to the World in a single
// ApplyChange call: an add, full-text edit, or removal of a file, or the
// installation of a freshly loaded library.
type Change struct {
	Kind ChangeKind
	Path string
	Text string
	Root fileset.Root
	// FromOverlay marks a ChangeEditFile as an editor overlay edit
	// (didChange on an open file) rather than a filesystem edit. Overlay
	// edits shadow FileRecord.Text while leaving FsText untouched;
	// filesystem edits update FsText and only update the shown Text when
	// no overlay currently shadows the file.
	FromOverlay bool
	Library     *LibraryData // set only when installing a library payload
}

// LibraryData is the read-only symbol index produced by loading a library
// root, handed to the World by value once the loader's worker task
// completes (spec.md §4.C).
type LibraryData struct {
	Root    string
	Files   []fileset.FileId
	LoadID  string
	Symbols map[string][]fileset.FileId // exported symbol name -> declaring files
}

// World holds the current generation of analyzed state: every file's text
// and syntax tree, the open-file overlay tracker, and the most recently
// loaded library index. Mutation goes through ApplyChange; reads go through
// Snapshot.
type World struct {
	mu       sync.Mutex
	registry *fileset.Registry
	parser   *syntax.Parser
	overlays *OverlayTracker

	files   fileMap
	library *LibraryData
	version uint64
	cancel  *CancelToken
}

// New creates an empty World backed by the given file registry and
// tree-sitter-driven parser.
func New(registry *fileset.Registry, parser *syntax.Parser) *World {
	return &World{
		registry: registry,
		parser:   parser,
		overlays: NewOverlayTracker(),
		files:    make(fileMap),
		cancel:   NewCancelToken(),
	}
}

// Overlays returns the World's overlay/subscription tracker.
func (w *World) Overlays() *OverlayTracker { return w.overlays }

// Registry returns the World's file registry.
func (w *World) Registry() *fileset.Registry { return w.registry }

// ApplyChange mutates the World by one Change and bumps its version,
// canceling every Snapshot taken from the previous generation. Per the
// resolved Open Question in DESIGN.md, the registry id for an added file is
// installed synchronously before this call returns, preserving the
// dense-id-in-insertion-order invariant even under concurrent add_file calls
// serialized by mu.
func (w *World) ApplyChange(ctx context.Context, ch Change) (fileset.FileId, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryWorld, "ApplyChange")
	defer timer.Stop()

	var id fileset.FileId

	switch ch.Kind {
	case ChangeAddFile:
		newID, inserted := w.registry.GetOrInsert(ch.Path, ch.Root)
		if !inserted {
			return 0, fmt.Errorf("world: file already registered: %s", ch.Path)
		}
		id = newID
		rec, err := w.buildRecord(ctx, id, ch.Path, ch.Text)
		if err != nil {
			return 0, err
		}
		rec.FsText = ch.Text
		w.files = w.files.with(id, rec)

	case ChangeEditFile:
		existing, ok := w.registry.Lookup(ch.Path)
		if !ok {
			return 0, fmt.Errorf("world: edit on unregistered file: %s", ch.Path)
		}
		id = existing
		prev := w.files[id]

		shown := ch.Text
		fsText := ch.Text
		if ch.FromOverlay {
			// Overlay edit: the shown text shadows the filesystem, which
			// keeps whatever it last was.
			if prev != nil {
				fsText = prev.FsText
			}
		} else if prev != nil && w.overlays.IsOpen(id) {
			// Filesystem edit arriving while an overlay shadows this file:
			// update the filesystem baseline but leave the shown text alone.
			shown = prev.Text
		}

		rec, err := w.buildRecord(ctx, id, ch.Path, shown)
		if err != nil {
			return 0, err
		}
		rec.FsText = fsText
		w.files = w.files.with(id, rec)

	case ChangeRemoveFile:
		existing, ok := w.registry.Lookup(ch.Path)
		if !ok {
			return 0, fmt.Errorf("world: remove on unregistered file: %s", ch.Path)
		}
		id = existing
		w.files = w.files.without(id)
		w.overlays.Close(id)

	default:
		return 0, fmt.Errorf("world: unknown change kind %d", ch.Kind)
	}

	if ch.Library != nil {
		w.library = ch.Library
	}

	w.version++
	w.cancel.Cancel()
	w.cancel = NewCancelToken()

	logging.WorldDebug("ApplyChange: kind=%d path=%s version=%d", ch.Kind, ch.Path, w.version)
	return id, nil
}

// InstallLibrary installs a fully loaded library payload as its own change,
// bumping the version and canceling in-flight snapshots exactly like a file
// change (spec.md §4.C: library data is handed to the World "by value").
func (w *World) InstallLibrary(lib *LibraryData) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.library = lib
	w.version++
	w.cancel.Cancel()
	w.cancel = NewCancelToken()
	logging.Library("installed library %q (%d files, load=%s)", lib.Root, len(lib.Files), lib.LoadID)
}

// CloseOverlay restores id's shown text to its last-known filesystem text,
// undoing whatever overlay edits shadowed it — the round-trip law at
// spec.md §8: "removing an overlay previously added restores the file's
// pre-overlay text." A no-op if the file is unknown or already matches its
// filesystem text.
func (w *World) CloseOverlay(ctx context.Context, id fileset.FileId) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec, ok := w.files[id]
	if !ok || rec.Text == rec.FsText {
		return nil
	}

	restored, err := w.buildRecord(ctx, id, rec.Path, rec.FsText)
	if err != nil {
		return fmt.Errorf("world: restore overlay for %s: %w", rec.Path, err)
	}
	restored.FsText = rec.FsText
	w.files = w.files.with(id, restored)

	w.version++
	w.cancel.Cancel()
	w.cancel = NewCancelToken()

	logging.WorldDebug("CloseOverlay: path=%s version=%d", rec.Path, w.version)
	return nil
}

func (w *World) buildRecord(ctx context.Context, id fileset.FileId, path, text string) (*FileRecord, error) {
	lang := syntax.DetectLanguage(extOf(path))
	rec := &FileRecord{Id: id, Path: path, Text: text, Lang: lang}
	if lang == syntax.LangUnknown {
		return rec, nil
	}
	tree, err := w.parser.Parse(ctx, lang, text)
	if err != nil {
		return nil, fmt.Errorf("world: parse %s: %w", path, err)
	}
	rec.Tree = tree
	return rec, nil
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}

// Snapshot captures the current generation's state in O(1): the file map
// reference (copy-on-write, so later mutations to the live World never
// affect an already-taken snapshot), the library index, and a cancel token
// shared by every snapshot of this generation.
func (w *World) Snapshot() *Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &Snapshot{
		id:       uuid.NewString(),
		registry: w.registry,
		overlays: w.overlays,
		files:    w.files,
		library:  w.library,
		version:  w.version,
		cancel:   w.cancel,
	}
}
