package syntax

import "testing"

// TestBuilderRoundTrip exercises the event-log contract directly (without
// tree-sitter), confirming that concatenating every token's text across the
// tree, in order, reproduces the original source text.
func TestBuilderRoundTrip(t *testing.T) {
	text := "fn main() {}"
	b := NewBuilder(text)

	b.StartNode("SOURCE_FILE", 0)
	b.StartNode("FN_DEF", 0)
	b.AddToken("FN_KW", Range{0, 2})
	b.AddToken("WHITESPACE", Range{2, 3})
	b.AddToken("NAME", Range{3, 7})
	b.StartNode("PARAM_LIST", 7)
	b.AddToken("L_PAREN", Range{7, 8})
	b.AddToken("R_PAREN", Range{8, 9})
	b.FinishNode(9)
	b.AddToken("WHITESPACE", Range{9, 10})
	b.StartNode("BLOCK_EXPR", 10)
	b.AddToken("L_CURLY", Range{10, 11})
	b.AddToken("R_CURLY", Range{11, 12})
	b.FinishNode(12)
	fn := b.FinishNode(12)
	root := b.FinishNode(12)

	tree := b.Seal(root)
	_ = fn

	var concat []byte
	walkOrdered(tree, root, &concat)

	if string(concat) != text {
		t.Fatalf("round-trip failed: got %q, want %q", concat, text)
	}
}

// walkOrdered concatenates tokens in source order by interleaving child
// nodes and tokens per their recorded position, rather than grouping all
// tokens after all subnodes.
func walkOrdered(tree *Tree, id NodeID, out *[]byte) {
	n := tree.nodes[id]
	for _, e := range n.Children {
		if e.IsToken {
			*out = append(*out, tree.text[e.Range.Start:e.Range.End]...)
		} else {
			walkOrdered(tree, e.Node, out)
		}
	}
}

func TestBuilderPanicsOnUnbalancedFinish(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on FinishNode with empty stack")
		}
	}()
	b := NewBuilder("x")
	b.FinishNode(1)
}

func TestBuilderAddError(t *testing.T) {
	b := NewBuilder("fn")
	root := b.StartNode("SOURCE_FILE", 0)
	b.AddError(2, "unexpected eof")
	b.FinishNode(2)
	tree := b.Seal(root)
	if len(tree.Errors()) != 1 {
		t.Fatalf("expected 1 error, got %d", len(tree.Errors()))
	}
	if tree.Errors()[0].Node != root {
		t.Fatalf("expected error attached to the open node %d, got %d", root, tree.Errors()[0].Node)
	}
}

// TestBuilderErrorsFormContiguousRunsPerNode builds a tree with two errors
// on a child node and two on its parent (one recorded before the child
// opens, one after it closes), and confirms Errors() is sorted so
// that each node's errors form a contiguous run (spec.md §8), and that
// ErrorsFor returns exactly that run.
func TestBuilderErrorsFormContiguousRunsPerNode(t *testing.T) {
	text := "fn main() {}"
	b := NewBuilder(text)

	root := b.StartNode("SOURCE_FILE", 0)
	b.AddError(0, "parent error before child opens")
	fn := b.StartNode("FN_DEF", 0)
	b.AddToken("FN_KW", Range{0, 2})
	b.AddError(3, "child error one")
	b.AddError(7, "child error two")
	b.FinishNode(12)
	b.AddError(12, "parent error after child closes")
	b.FinishNode(12)

	tree := b.Seal(root)

	childErrs := tree.ErrorsFor(fn)
	if len(childErrs) != 2 {
		t.Fatalf("expected 2 errors on the child node, got %d", len(childErrs))
	}
	for _, e := range childErrs {
		if e.Node != fn {
			t.Fatalf("ErrorsFor(%d) returned an error owned by node %d", fn, e.Node)
		}
	}

	parentErrs := tree.ErrorsFor(root)
	if len(parentErrs) != 2 {
		t.Fatalf("expected 2 errors on the root node, got %d", len(parentErrs))
	}

	// Every node's run must be contiguous once Errors() is sorted.
	all := tree.Errors()
	seen := map[NodeID]bool{}
	for i, e := range all {
		if i > 0 && all[i-1].Node != e.Node && seen[e.Node] {
			t.Fatalf("node %d's errors are not contiguous in Errors()", e.Node)
		}
		seen[e.Node] = true
	}
}
