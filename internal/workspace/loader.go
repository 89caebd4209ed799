// Package workspace discovers project roots at startup: the workspace
// directory itself (writable, supports overlays) and any configured
// library roots (read-only, indexed once). Grounded on the teacher's
// internal/world/fs.go directory walk, but rebuilt on a bounded
// golang.org/x/sync/errgroup instead of an unbounded WaitGroup-plus-
// semaphore pair, since errgroup is a genuinely new home for a pack
// dependency none of the teacher's own files imports.
package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"langd/internal/fileset"
	"langd/internal/logging"
	"langd/internal/syntax"
	"langd/internal/world"
)

// DefaultIgnoreDirs lists directory names the walk never descends into.
var DefaultIgnoreDirs = []string{".git", ".langd", "node_modules", "target", "vendor"}

// Loader walks a directory tree, reads every recognized source file
// concurrently, and produces either a flat file list (for the writable
// workspace root, unparsed) or a parsed, fully indexed LibraryData (for a
// read-only library root).
type Loader struct {
	parser      *syntax.Parser
	ignoreDirs  map[string]struct{}
	concurrency int
}

// New creates a Loader. concurrency bounds how many files are parsed at
// once; ignoreDirs defaults to DefaultIgnoreDirs when nil.
func New(parser *syntax.Parser, ignoreDirs []string, concurrency int) *Loader {
	if ignoreDirs == nil {
		ignoreDirs = DefaultIgnoreDirs
	}
	if concurrency <= 0 {
		concurrency = 20
	}
	set := make(map[string]struct{}, len(ignoreDirs))
	for _, d := range ignoreDirs {
		set[d] = struct{}{}
	}
	return &Loader{parser: parser, ignoreDirs: set, concurrency: concurrency}
}

// FileEntry is one discovered source file's path and text. Path is the path
// the walk produced: the root joined with the file's location under it.
type FileEntry struct {
	Path string
	Text string
}

// walk lists every regular file under root whose directory components
// don't appear in the ignore set, skipping files tree-sitter has no
// grammar for rather than erroring on them.
func (l *Loader) walk(root string) ([]string, error) {
	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if _, skip := l.ignoreDirs[info.Name()]; skip && path != root {
				logging.VFSDebug("workspace: skipping ignored directory %s", path)
				return filepath.SkipDir
			}
			return nil
		}
		if syntax.DetectLanguage(filepath.Ext(path)) == syntax.LangUnknown {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

// LoadWorkspace reads every recognized source file under root concurrently
// and returns their paths and text, for the caller to feed into the World
// as a batch of ChangeAddFile changes against the workspace root.
func (l *Loader) LoadWorkspace(ctx context.Context, root string) ([]FileEntry, error) {
	timer := logging.StartTimer(logging.CategoryVFS, "LoadWorkspace")
	defer timer.Stop()

	paths, err := l.walk(root)
	if err != nil {
		return nil, err
	}

	entries := make([]FileEntry, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			text, err := os.ReadFile(p)
			if err != nil {
				logging.VFSWarn("workspace: failed to read %s: %v", p, err)
				return nil
			}
			entries[i] = FileEntry{Path: p, Text: string(text)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.VFS("workspace: loaded %d files from %s", len(entries), root)
	return entries, nil
}

// LoadLibrary walks root, interns every file into registry under the
// library root classification, parses each one, and builds the exported-
// symbol index a LibraryData bundle carries (spec.md §4.C: "a precomputed,
// read-only bundle {root, files, symbol index} built off the main loop by
// a worker and then handed to the World by value"). Intended to run inside
// a worker pool task, not on the main loop.
func (l *Loader) LoadLibrary(ctx context.Context, root string, registry *fileset.Registry, loadID string) (*world.LibraryData, error) {
	timer := logging.StartTimer(logging.CategoryLibrary, "LoadLibrary")
	defer timer.Stop()

	paths, err := l.walk(root)
	if err != nil {
		return nil, err
	}

	type parsed struct {
		id      fileset.FileId
		path    string
		symbols []string
	}
	results := make([]parsed, len(paths))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			text, err := os.ReadFile(p)
			if err != nil {
				logging.LibraryWarn("library: failed to read %s: %v", p, err)
				return nil
			}
			lang := syntax.DetectLanguage(filepath.Ext(p))
			tree, err := l.parser.Parse(ctx, lang, string(text))
			if err != nil {
				logging.LibraryWarn("library: parse failed %s: %v", p, err)
				return nil
			}

			mu.Lock()
			id, _ := registry.GetOrInsert(p, fileset.RootLibrary)
			mu.Unlock()

			results[i] = parsed{id: id, path: p, symbols: exportedSymbolNames(tree)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make([]fileset.FileId, 0, len(results))
	symbols := make(map[string][]fileset.FileId)
	for _, r := range results {
		if r.path == "" {
			continue // skipped (read or parse failure)
		}
		files = append(files, r.id)
		for _, name := range r.symbols {
			symbols[name] = append(symbols[name], r.id)
		}
	}

	logging.Library("library: loaded %s (%d files, %d symbols)", root, len(files), len(symbols))
	return &world.LibraryData{Root: root, Files: files, LoadID: loadID, Symbols: symbols}, nil
}

var exportableKinds = map[syntax.Kind]struct{}{
	"FN_DEF":     {},
	"METHOD_DEF": {},
	"STRUCT":     {},
	"ENUM":       {},
	"TRAIT":      {},
	"TYPE_DEF":   {},
}

// exportedSymbolNames collects every declaration name in tree, at any
// nesting depth, without attempting visibility resolution — the library index is a
// coarse name map, not a full symbol table (spec.md names only "symbol
// index" as a field, not its resolution rules).
func exportedSymbolNames(tree *syntax.Tree) []string {
	var names []string
	var walk func(id syntax.NodeID)
	walk = func(id syntax.NodeID) {
		if _, ok := exportableKinds[tree.Kind(id)]; ok {
			for _, tok := range tree.Tokens(id) {
				if tok.Kind == "NAME" {
					names = append(names, tok.Text)
					break
				}
			}
		}
		for _, child := range tree.ChildNodes(id) {
			walk(child)
		}
	}
	walk(tree.Root())
	return names
}
