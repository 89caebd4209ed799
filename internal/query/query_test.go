package query

import (
	"context"
	"strings"
	"testing"

	"langd/internal/fileset"
	"langd/internal/syntax"
	"langd/internal/world"
)

func newSnapshot(t *testing.T, files map[string]string) (*world.Snapshot, map[string]fileset.FileId) {
	t.Helper()
	w := world.New(fileset.New(), syntax.NewParser())
	ctx := context.Background()
	ids := make(map[string]fileset.FileId)
	for path, text := range files {
		id, err := w.ApplyChange(ctx, world.Change{Kind: world.ChangeAddFile, Path: path, Text: text, Root: fileset.RootWorkspace})
		if err != nil {
			t.Fatalf("ApplyChange(%s): %v", path, err)
		}
		ids[path] = id
	}
	return w.Snapshot(), ids
}

func TestSyntaxTreeContainsFnDefAndSource(t *testing.T) {
	snap, ids := newSnapshot(t, map[string]string{"/main.rs": "fn main() {}"})
	dump, err := SyntaxTree(snap, ids["/main.rs"])
	if err != nil {
		t.Fatalf("SyntaxTree: %v", err)
	}
	if !strings.Contains(dump, "FN_DEF") {
		t.Fatalf("expected FN_DEF in dump:\n%s", dump)
	}
	rec, err := snap.File(ids["/main.rs"])
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if !strings.Contains(dump, rec.Text) {
		t.Fatalf("expected dump to contain the source text %q:\n%s", rec.Text, dump)
	}
}

func TestDocumentSymbolListsDeclarations(t *testing.T) {
	snap, ids := newSnapshot(t, map[string]string{"/foo.rs": "struct S;\nfn g() {}"})
	syms, err := DocumentSymbol(snap, ids["/foo.rs"])
	if err != nil {
		t.Fatalf("DocumentSymbol: %v", err)
	}
	var names []string
	for _, s := range syms {
		names = append(names, s.Name)
	}
	if !contains(names, "S") || !contains(names, "g") {
		t.Fatalf("expected symbols S and g, got %v", names)
	}
}

func TestWorkspaceSymbolFindsAcrossFiles(t *testing.T) {
	snap, _ := newSnapshot(t, map[string]string{
		"/main.rs": "fn main() {}",
		"/foo.rs":  "struct S;",
	})
	syms, err := WorkspaceSymbol(snap, "S")
	if err != nil {
		t.Fatalf("WorkspaceSymbol: %v", err)
	}
	if len(syms) != 1 || syms[0].Name != "S" {
		t.Fatalf("expected one match for S, got %v", syms)
	}
}

func TestGotoDefinitionFindsDeclaration(t *testing.T) {
	snap, ids := newSnapshot(t, map[string]string{
		"/foo.rs": "struct S;",
		"/main.rs": "fn main() { S; }",
	})
	loc, err := GotoDefinition(snap, ids["/main.rs"], 12)
	if err != nil {
		t.Fatalf("GotoDefinition: %v", err)
	}
	if loc.Path != "/foo.rs" {
		t.Fatalf("expected definition in /foo.rs, got %s", loc.Path)
	}
}

func TestFindMatchingBraceFindsPair(t *testing.T) {
	snap, ids := newSnapshot(t, map[string]string{"/main.rs": "fn main() {}"})
	// offset 10 is '{' opening the block.
	closeOffset, err := FindMatchingBrace(snap, ids["/main.rs"], 10)
	if err != nil {
		t.Fatalf("FindMatchingBrace: %v", err)
	}
	if closeOffset != 11 {
		t.Fatalf("expected matching brace at 11, got %d", closeOffset)
	}
}

func TestDiagnosticsReportsParseErrorRange(t *testing.T) {
	// An unclosed parameter list forces tree-sitter's rust grammar to mark
	// an ERROR node, exercising the node-association path all the way from
	// Builder.AddError/treesitter.go's NodeAt lookup through Tree.ErrorsFor.
	snap, ids := newSnapshot(t, map[string]string{"/broken.rs": "fn main(\n"})
	diags, err := Diagnostics(snap, ids["/broken.rs"])
	if err != nil {
		t.Fatalf("Diagnostics: %v", err)
	}
	if len(diags) == 0 {
		t.Fatal("expected at least one diagnostic for unclosed parameter list")
	}
	for _, d := range diags {
		if d.Range.End < d.Range.Start {
			t.Fatalf("diagnostic has an invalid range: %+v", d.Range)
		}
	}
}

func TestCanceledSnapshotAbortsHandlers(t *testing.T) {
	snap, ids := newSnapshot(t, map[string]string{"/main.rs": "fn main() {}"})
	snap.Cancel().Cancel()
	if _, err := SyntaxTree(snap, ids["/main.rs"]); err != Canceled {
		t.Fatalf("expected Canceled, got %v", err)
	}
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
