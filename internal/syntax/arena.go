// Package syntax implements the arena-indexed immutable syntax tree: an
// append-only table of nodes and tokens built from a balanced start/finish
// event log, in the style of rowan/rust-analyzer's GreenNodeBuilder.
package syntax

import (
	"fmt"
	"sort"
)

// NodeID indexes into a Tree's node table. The zero value never refers to a
// real node.
type NodeID uint32

// Kind names a syntax element, rust-analyzer style: SCREAMING_SNAKE_CASE.
type Kind string

// Range is a half-open byte offset range [Start, End) into the source text.
type Range struct {
	Start uint32
	End   uint32
}

func (r Range) Len() uint32 { return r.End - r.Start }

// Error records a parse error anchored at a byte offset and attached to the
// node that was open on the builder's stack when it was recorded (spec.md
// §4.A: "add error {message}: attaches to the current top node"). Errors
// is sorted by Node so that every node's errors form a contiguous run
// (spec.md §8's invariant).
type Error struct {
	Offset  uint32
	Message string
	Node    NodeID
}

// element is either a child node (IsToken == false) or a leaf token.
type element struct {
	IsToken bool
	Node    NodeID // valid when !IsToken
	Kind    Kind   // token kind, when IsToken
	Range   Range
}

// node is one arena-table entry: a kind, its byte range, and its children
// (which may themselves be nodes or leaf tokens).
type node struct {
	Kind     Kind
	Range    Range
	Parent   NodeID // 0 for the root
	Children []element
}

// Tree is a sealed, immutable arena syntax tree: the output of a Builder run.
type Tree struct {
	text   string
	nodes  []node // index 0 is unused sentinel; real nodes start at 1
	root   NodeID
	errors []Error
}

// Text returns the full source text the tree was built from.
func (t *Tree) Text() string { return t.text }

// Root returns the id of the tree's root node.
func (t *Tree) Root() NodeID { return t.root }

// Errors returns the parse errors recorded while building the tree, sorted
// by owning node.
func (t *Tree) Errors() []Error { return t.errors }

// ErrorsFor returns the contiguous run of errors owned by node id (spec.md
// §8: "errors restricted to node n forms a contiguous run").
func (t *Tree) ErrorsFor(id NodeID) []Error {
	lo := sort.Search(len(t.errors), func(i int) bool { return t.errors[i].Node >= id })
	hi := sort.Search(len(t.errors), func(i int) bool { return t.errors[i].Node > id })
	return t.errors[lo:hi]
}

// Kind returns the kind of node id.
func (t *Tree) Kind(id NodeID) Kind { return t.nodes[id].Kind }

// NodeRange returns the byte range spanned by node id.
func (t *Tree) NodeRange(id NodeID) Range { return t.nodes[id].Range }

// Parent returns the parent of id, or 0 if id is the root.
func (t *Tree) Parent(id NodeID) NodeID { return t.nodes[id].Parent }

// ChildNodes returns the direct child node ids of id, skipping leaf tokens.
func (t *Tree) ChildNodes(id NodeID) []NodeID {
	var out []NodeID
	for _, e := range t.nodes[id].Children {
		if !e.IsToken {
			out = append(out, e.Node)
		}
	}
	return out
}

// Tokens returns the direct leaf tokens of id paired with their text.
func (t *Tree) Tokens(id NodeID) []Token {
	var out []Token
	for _, e := range t.nodes[id].Children {
		if e.IsToken {
			out = append(out, Token{Kind: e.Kind, Range: e.Range, Text: t.text[e.Range.Start:e.Range.End]})
		}
	}
	return out
}

// Token is a leaf: a kind, range, and the source text it spans.
type Token struct {
	Kind  Kind
	Range Range
	Text  string
}

// NodeText returns the source text spanned by node id.
func (t *Tree) NodeText(id NodeID) string {
	r := t.nodes[id].Range
	return t.text[r.Start:r.End]
}

// NodeAt returns the innermost node whose range contains offset, descending
// from the root. Used by extendSelection/findMatchingBrace, the identifier
// lookups of gotoDefinition/references, and parse-error attribution.
func (t *Tree) NodeAt(offset uint32) NodeID {
	cur := t.root
	for {
		advanced := false
		for _, id := range t.ChildNodes(cur) {
			r := t.nodes[id].Range
			if offset >= r.Start && offset < r.End {
				cur = id
				advanced = true
				break
			}
		}
		if !advanced {
			return cur
		}
	}
}

// Dump renders a rust-analyzer-style indented debug tree, e.g.:
//
//	SOURCE_FILE@0..12
//	  FN_DEF@0..12
//	    FN_KW@0..2 "fn"
//	    NAME@3..7 "main"
func (t *Tree) Dump() string {
	var buf []byte
	buf = t.dumpNode(buf, t.root, 0)
	return string(buf)
}

func (t *Tree) dumpNode(buf []byte, id NodeID, depth int) []byte {
	n := t.nodes[id]
	buf = appendIndent(buf, depth)
	buf = append(buf, fmt.Sprintf("%s@%d..%d\n", n.Kind, n.Range.Start, n.Range.End)...)
	for _, e := range n.Children {
		if e.IsToken {
			buf = appendIndent(buf, depth+1)
			text := t.text[e.Range.Start:e.Range.End]
			buf = append(buf, fmt.Sprintf("%s@%d..%d %q\n", e.Kind, e.Range.Start, e.Range.End, text)...)
		} else {
			buf = t.dumpNode(buf, e.Node, depth+1)
		}
	}
	return buf
}

func appendIndent(buf []byte, depth int) []byte {
	for i := 0; i < depth; i++ {
		buf = append(buf, ' ', ' ')
	}
	return buf
}
