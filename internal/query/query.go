// Package query implements the individual query handlers named in the
// external interface: pure functions over a *world.Snapshot, grounded on
// the teacher's symbol-extraction walk in ast_treesitter.go and its
// projection helpers in lsp/manager.go. None of these handlers ever
// mutates a Snapshot or the World it was taken from.
package query

import (
	"fmt"
	"sort"
	"strings"

	"langd/internal/fileset"
	"langd/internal/syntax"
	"langd/internal/world"
)

// Canceled is returned by any handler that observed its snapshot's cancel
// token flipped mid-computation.
var Canceled = fmt.Errorf("query: canceled")

// checkpoint is called at the start of every substantial sub-step, per
// spec.md §4.D's "well-defined checkpoints" requirement.
func checkpoint(snap *world.Snapshot) error {
	if snap.Cancel().IsCanceled() {
		return Canceled
	}
	return nil
}

// SyntaxTree renders the rust-analyzer-style debug dump of a file's parsed
// tree, satisfying the worked "simple query" scenario (spec.md §8.1): the
// result text is the node-kind dump followed by a blank line and the file's
// original source.
func SyntaxTree(snap *world.Snapshot, id fileset.FileId) (string, error) {
	if err := checkpoint(snap); err != nil {
		return "", err
	}
	rec, err := snap.File(id)
	if err != nil {
		return "", err
	}
	if rec.Tree == nil {
		return "", fmt.Errorf("query: no syntax tree for %s (unrecognized language)", rec.Path)
	}
	return rec.Tree.Dump() + "\n" + rec.Tree.Text(), nil
}

// Symbol is one named declaration found in a file's syntax tree.
type Symbol struct {
	Name string
	Kind string
	File fileset.FileId
	Path string
	Range syntax.Range
}

var symbolKinds = map[syntax.Kind]string{
	"FN_DEF":     "function",
	"METHOD_DEF": "method",
	"STRUCT":     "struct",
	"ENUM":       "enum",
	"TRAIT":      "trait",
	"TYPE_DEF":   "type",
	"MODULE":     "module",
}

// DocumentSymbol lists every declaration in one file, in source order.
func DocumentSymbol(snap *world.Snapshot, id fileset.FileId) ([]Symbol, error) {
	if err := checkpoint(snap); err != nil {
		return nil, err
	}
	rec, err := snap.File(id)
	if err != nil {
		return nil, err
	}
	if rec.Tree == nil {
		return nil, nil
	}
	var out []Symbol
	collectSymbols(rec.Tree, rec.Tree.Root(), id, rec.Path, &out)
	return out, nil
}

func collectSymbols(tree *syntax.Tree, id syntax.NodeID, fid fileset.FileId, path string, out *[]Symbol) {
	kind := tree.Kind(id)
	if label, ok := symbolKinds[kind]; ok {
		if name := firstName(tree, id); name != "" {
			*out = append(*out, Symbol{
				Name:  name,
				Kind:  label,
				File:  fid,
				Path:  path,
				Range: tree.NodeRange(id),
			})
		}
	}
	for _, child := range tree.ChildNodes(id) {
		collectSymbols(tree, child, fid, path, out)
	}
}

// firstName returns the text of node id's first direct NAME token, the
// identifier tree-sitter always attaches as a leaf child of a declaration.
func firstName(tree *syntax.Tree, id syntax.NodeID) string {
	for _, tok := range tree.Tokens(id) {
		if tok.Kind == "NAME" {
			return tok.Text
		}
	}
	return ""
}

// WorkspaceSymbol searches every file visible in the snapshot for
// declarations whose name contains query, case-insensitively, satisfying
// the "explicit cancel" scenario's workspaceSymbol("S") request.
func WorkspaceSymbol(snap *world.Snapshot, query string) ([]Symbol, error) {
	needle := strings.ToLower(query)
	var out []Symbol
	for _, rec := range snap.Files() {
		if err := checkpoint(snap); err != nil {
			return nil, err
		}
		if rec.Tree == nil {
			continue
		}
		var syms []Symbol
		collectSymbols(rec.Tree, rec.Tree.Root(), rec.Id, rec.Path, &syms)
		for _, s := range syms {
			if strings.Contains(strings.ToLower(s.Name), needle) {
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Range.Start < out[j].Range.Start
	})
	return out, nil
}

// Diagnostic is one parse error recorded against a file, paired with the
// range of the syntax node it was attached to (spec.md §4.A: errors attach
// to the current top node; §8: a node's errors form a contiguous run once
// sorted).
type Diagnostic struct {
	Message string
	Range   syntax.Range
}

// Diagnostics collects every parse error recorded for a file's syntax tree,
// resolving each error's owning node to that node's byte range via
// Tree.ErrorsFor, in the arena's node-sorted order.
func Diagnostics(snap *world.Snapshot, id fileset.FileId) ([]Diagnostic, error) {
	if err := checkpoint(snap); err != nil {
		return nil, err
	}
	rec, err := snap.File(id)
	if err != nil {
		return nil, err
	}
	if rec.Tree == nil {
		return nil, nil
	}
	var out []Diagnostic
	for _, nid := range nodesOf(rec.Tree) {
		for _, e := range rec.Tree.ErrorsFor(nid) {
			out = append(out, Diagnostic{Message: e.Message, Range: rec.Tree.NodeRange(nid)})
		}
	}
	return out, nil
}

// nodesOf returns every node id in the tree, root first, in a pre-order
// walk — the traversal Diagnostics uses to visit each node's error run via
// ErrorsFor exactly once.
func nodesOf(tree *syntax.Tree) []syntax.NodeID {
	out := []syntax.NodeID{tree.Root()}
	var walk func(id syntax.NodeID)
	walk = func(id syntax.NodeID) {
		for _, child := range tree.ChildNodes(id) {
			out = append(out, child)
			walk(child)
		}
	}
	walk(tree.Root())
	return out
}

// Location pairs a file with a byte range in it.
type Location struct {
	File  fileset.FileId
	Path  string
	Range syntax.Range
}

// GotoDefinition resolves the declaration for the identifier at offset in
// file id, searching first the declaring file, then every other file in the
// snapshot (a workspace-wide fallback, since this core has no scope
// resolution — name-based matching only, per SPEC_FULL's scope for this
// handler).
func GotoDefinition(snap *world.Snapshot, id fileset.FileId, offset uint32) (*Location, error) {
	if err := checkpoint(snap); err != nil {
		return nil, err
	}
	rec, err := snap.File(id)
	if err != nil {
		return nil, err
	}
	if rec.Tree == nil {
		return nil, fmt.Errorf("query: no syntax tree for %s", rec.Path)
	}
	name := identifierAt(rec.Tree, offset)
	if name == "" {
		return nil, fmt.Errorf("query: no identifier at offset %d in %s", offset, rec.Path)
	}

	for i, candidate := range append([]*world.FileRecord{rec}, snap.Files()...) {
		if i > 0 && candidate.Id == id {
			continue
		}
		if err := checkpoint(snap); err != nil {
			return nil, err
		}
		if candidate.Tree == nil {
			continue
		}
		var syms []Symbol
		collectSymbols(candidate.Tree, candidate.Tree.Root(), candidate.Id, candidate.Path, &syms)
		for _, s := range syms {
			if s.Name == name {
				return &Location{File: s.File, Path: s.Path, Range: s.Range}, nil
			}
		}
	}
	return nil, fmt.Errorf("query: no definition found for %q", name)
}

// References finds every occurrence of the identifier at offset across the
// snapshot's files, by textual identifier match.
func References(snap *world.Snapshot, id fileset.FileId, offset uint32) ([]Location, error) {
	if err := checkpoint(snap); err != nil {
		return nil, err
	}
	rec, err := snap.File(id)
	if err != nil {
		return nil, err
	}
	if rec.Tree == nil {
		return nil, fmt.Errorf("query: no syntax tree for %s", rec.Path)
	}
	name := identifierAt(rec.Tree, offset)
	if name == "" {
		return nil, fmt.Errorf("query: no identifier at offset %d in %s", offset, rec.Path)
	}

	var out []Location
	for _, candidate := range snap.Files() {
		if err := checkpoint(snap); err != nil {
			return nil, err
		}
		if candidate.Tree == nil {
			continue
		}
		for _, occ := range identifierOccurrences(candidate.Tree, candidate.Tree.Root(), name) {
			out = append(out, Location{File: candidate.Id, Path: candidate.Path, Range: occ})
		}
	}
	return out, nil
}

func identifierAt(tree *syntax.Tree, offset uint32) string {
	n := tree.NodeAt(offset)
	for _, tok := range tree.Tokens(n) {
		if tok.Kind == "NAME" && offset >= tok.Range.Start && offset < tok.Range.End {
			return tok.Text
		}
	}
	return ""
}

func identifierOccurrences(tree *syntax.Tree, id syntax.NodeID, name string) []syntax.Range {
	var out []syntax.Range
	for _, tok := range tree.Tokens(id) {
		if tok.Kind == "NAME" && tok.Text == name {
			out = append(out, tok.Range)
		}
	}
	for _, child := range tree.ChildNodes(id) {
		out = append(out, identifierOccurrences(tree, child, name)...)
	}
	return out
}

// ExtendSelection widens a selection range outward to the next enclosing
// node's range, one syntactic step per call, matching rust-analyzer's
// selection-extension semantics.
func ExtendSelection(snap *world.Snapshot, id fileset.FileId, sel syntax.Range) (syntax.Range, error) {
	if err := checkpoint(snap); err != nil {
		return syntax.Range{}, err
	}
	rec, err := snap.File(id)
	if err != nil {
		return syntax.Range{}, err
	}
	if rec.Tree == nil {
		return sel, nil
	}
	n := rec.Tree.NodeAt(sel.Start)
	r := rec.Tree.NodeRange(n)
	for r.Start > sel.Start || r.End < sel.End || (r.Start == sel.Start && r.End == sel.End) {
		if n == rec.Tree.Root() {
			break
		}
		n = rec.Tree.Parent(n)
		r = rec.Tree.NodeRange(n)
	}
	return r, nil
}

var braceKinds = map[string]string{
	"(": ")", ")": "(",
	"{": "}", "}": "{",
	"[": "]", "]": "[",
}

// FindMatchingBrace finds the byte offset of the brace matching the one at
// offset, by locating the token at offset and its sibling tokens within the
// same parent node.
func FindMatchingBrace(snap *world.Snapshot, id fileset.FileId, offset uint32) (uint32, error) {
	if err := checkpoint(snap); err != nil {
		return 0, err
	}
	rec, err := snap.File(id)
	if err != nil {
		return 0, err
	}
	if rec.Tree == nil {
		return 0, fmt.Errorf("query: no syntax tree for %s", rec.Path)
	}
	n := rec.Tree.NodeAt(offset)
	toks := rec.Tree.Tokens(n)
	var at, depth int = -1, 0
	for i, t := range toks {
		if offset >= t.Range.Start && offset < t.Range.End {
			at = i
			break
		}
	}
	if at < 0 {
		return 0, fmt.Errorf("query: no token at offset %d", offset)
	}
	open := string(toks[at].Text)
	match, ok := braceKinds[open]
	if !ok {
		return 0, fmt.Errorf("query: token at offset %d is not a brace", offset)
	}
	if open == "(" || open == "{" || open == "[" {
		for i := at + 1; i < len(toks); i++ {
			if toks[i].Text == open {
				depth++
			} else if toks[i].Text == match {
				if depth == 0 {
					return toks[i].Range.Start, nil
				}
				depth--
			}
		}
	} else {
		for i := at - 1; i >= 0; i-- {
			if toks[i].Text == open {
				depth++
			} else if toks[i].Text == match {
				if depth == 0 {
					return toks[i].Range.Start, nil
				}
				depth--
			}
		}
	}
	return 0, fmt.Errorf("query: no matching brace found for offset %d", offset)
}

// FoldingRangeItem is one collapsible region.
type FoldingRangeItem struct {
	Kind  string
	Range syntax.Range
}

var foldableKinds = map[syntax.Kind]string{
	"BLOCK_EXPR": "region",
	"FN_DEF":     "region",
	"STRUCT":     "region",
	"ENUM":       "region",
	"IMPL":       "region",
	"TRAIT":      "region",
	"MODULE":     "region",
}

// FoldingRange lists every foldable region in a file, grounded on the
// supplemented feature noted in SPEC_FULL.md.
func FoldingRange(snap *world.Snapshot, id fileset.FileId) ([]FoldingRangeItem, error) {
	if err := checkpoint(snap); err != nil {
		return nil, err
	}
	rec, err := snap.File(id)
	if err != nil {
		return nil, err
	}
	if rec.Tree == nil {
		return nil, nil
	}
	var out []FoldingRangeItem
	collectFoldable(rec.Tree, rec.Tree.Root(), &out)
	return out, nil
}

func collectFoldable(tree *syntax.Tree, id syntax.NodeID, out *[]FoldingRangeItem) {
	if label, ok := foldableKinds[tree.Kind(id)]; ok {
		r := tree.NodeRange(id)
		if r.Len() > 0 {
			*out = append(*out, FoldingRangeItem{Kind: label, Range: r})
		}
	}
	for _, child := range tree.ChildNodes(id) {
		collectFoldable(tree, child, out)
	}
}

// Decoration is one syntax-highlighting hint: a range and a semantic tag.
type Decoration struct {
	Range syntax.Range
	Tag   string
}

var decorationTags = map[syntax.Kind]string{
	"NAME":       "identifier",
	"VISIBILITY": "keyword",
	"FN_KW":      "keyword",
}

// Decorations renders whole-file syntax highlighting hints for the
// m/decorations request. Configuration.PublishDecorations is not consulted:
// the request is always served, and no decorations notification is pushed.
func Decorations(snap *world.Snapshot, id fileset.FileId) ([]Decoration, error) {
	if err := checkpoint(snap); err != nil {
		return nil, err
	}
	rec, err := snap.File(id)
	if err != nil {
		return nil, err
	}
	if rec.Tree == nil {
		return nil, nil
	}
	var out []Decoration
	collectDecorations(rec.Tree, rec.Tree.Root(), &out)
	return out, nil
}

func collectDecorations(tree *syntax.Tree, id syntax.NodeID, out *[]Decoration) {
	for _, tok := range tree.Tokens(id) {
		if tag, ok := decorationTags[tok.Kind]; ok {
			*out = append(*out, Decoration{Range: tok.Range, Tag: tag})
		}
	}
	for _, child := range tree.ChildNodes(id) {
		collectDecorations(tree, child, out)
	}
}
