package syntax

import (
	"fmt"
	"sort"
)

// Builder accepts a balanced event log of StartNode/FinishNode/AddToken/
// AddError calls and produces a sealed Tree. It mirrors rowan's
// GreenNodeBuilder: StartNode reserves a node's arena slot, but its range,
// children and parent link are filled in only when its FinishNode call
// closes it, so the builder itself holds an in-progress stack of open nodes.
type Builder struct {
	text    string
	nodes   []node
	stack   []frame
	errors  []Error
	sealed  bool
	started bool
}

type frame struct {
	id       NodeID
	children []element
}

// NewBuilder creates a builder over the given source text.
func NewBuilder(text string) *Builder {
	return &Builder{
		text:  text,
		nodes: make([]node, 1, 64), // index 0 reserved as sentinel
	}
}

// StartNode opens a new node of the given kind, covering byte offset start of
// its first token. The node is not attached to the arena until FinishNode.
func (b *Builder) StartNode(kind Kind, start uint32) NodeID {
	if b.sealed {
		panic("syntax: StartNode called after Seal")
	}
	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, node{Kind: kind, Range: Range{Start: start, End: start}})
	b.stack = append(b.stack, frame{id: id})
	b.started = true
	return id
}

// AddToken appends a leaf token to the node currently open on the stack.
func (b *Builder) AddToken(kind Kind, r Range) {
	if len(b.stack) == 0 {
		panic("syntax: AddToken called with no open node")
	}
	top := &b.stack[len(b.stack)-1]
	top.children = append(top.children, element{IsToken: true, Kind: kind, Range: r})
}

// AddError records a parse error anchored at offset, attaching it to the
// node currently open on the stack (spec.md §4.A: "attaches to the current
// top node"), without altering the tree shape.
func (b *Builder) AddError(offset uint32, message string) {
	var owner NodeID
	if len(b.stack) > 0 {
		owner = b.stack[len(b.stack)-1].id
	}
	b.errors = append(b.errors, Error{Offset: offset, Message: message, Node: owner})
}

// FinishNode closes the most recently opened node, computes its range from
// its children, and attaches it to its parent (or seals it as the root if
// the stack becomes empty).
func (b *Builder) FinishNode(end uint32) NodeID {
	if len(b.stack) == 0 {
		panic("syntax: FinishNode called with no open node")
	}
	top := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]

	start := b.nodes[top.id].Range.Start
	if len(top.children) > 0 {
		start = minStart(start, top.children[0])
		end = maxEnd(end, top.children[len(top.children)-1])
	}
	b.nodes[top.id].Range = Range{Start: start, End: end}
	b.nodes[top.id].Children = top.children

	if len(b.stack) > 0 {
		parent := &b.stack[len(b.stack)-1]
		parent.children = append(parent.children, element{Node: top.id, Range: b.nodes[top.id].Range})
		b.nodes[top.id].Parent = parent.id
	}
	return top.id
}

func minStart(s uint32, e element) uint32 {
	if e.Range.Start < s {
		return e.Range.Start
	}
	return s
}

func maxEnd(e uint32, el element) uint32 {
	if el.Range.End > e {
		return el.Range.End
	}
	return e
}

// Seal finalizes the tree rooted at root, the id the caller got back from
// the outermost FinishNode call. Every started node must already be
// finished; Seal panics if any is still open on the stack.
func (b *Builder) Seal(root NodeID) *Tree {
	if len(b.stack) != 0 {
		panic(fmt.Sprintf("syntax: Seal called with %d unfinished node(s)", len(b.stack)))
	}
	b.sealed = true
	sortErrors(b.errors)
	return &Tree{text: b.text, nodes: b.nodes, root: root, errors: b.errors}
}

// sortErrors orders errors by owning node, then offset, so that every
// node's errors form a contiguous run (spec.md §8).
func sortErrors(errs []Error) {
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Node != errs[j].Node {
			return errs[i].Node < errs[j].Node
		}
		return errs[i].Offset < errs[j].Offset
	})
}
