package syntax

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"langd/internal/logging"
)

// Language identifies which tree-sitter grammar to parse a file with.
type Language int

const (
	LangUnknown Language = iota
	LangGo
	LangRust
	LangPython
	LangJavaScript
	LangTypeScript
)

// DetectLanguage maps a file extension (including the leading dot) to a
// Language, mirroring the teacher's scanner's extension dispatch.
func DetectLanguage(ext string) Language {
	switch strings.ToLower(ext) {
	case ".go":
		return LangGo
	case ".rs":
		return LangRust
	case ".py":
		return LangPython
	case ".js", ".jsx", ".mjs":
		return LangJavaScript
	case ".ts", ".tsx":
		return LangTypeScript
	default:
		return LangUnknown
	}
}

// Parser drives tree-sitter grammars into arena Trees via a Builder. It pools
// one *sitter.Parser per language, matching TreeSitterParser in the teacher.
type Parser struct {
	goParser   *sitter.Parser
	rustParser *sitter.Parser
	pyParser   *sitter.Parser
	jsParser   *sitter.Parser
	tsParser   *sitter.Parser
}

// NewParser constructs a Parser with one underlying sitter.Parser per
// supported language.
func NewParser() *Parser {
	return &Parser{
		goParser:   sitter.NewParser(),
		rustParser: sitter.NewParser(),
		pyParser:   sitter.NewParser(),
		jsParser:   sitter.NewParser(),
		tsParser:   sitter.NewParser(),
	}
}

// Close releases the underlying tree-sitter parsers.
func (p *Parser) Close() {
	p.goParser.Close()
	p.rustParser.Close()
	p.pyParser.Close()
	p.jsParser.Close()
	p.tsParser.Close()
}

// Parse parses text as lang and returns a sealed arena Tree whose node kinds
// follow the rust-analyzer SCREAMING_SNAKE_CASE convention.
func (p *Parser) Parse(ctx context.Context, lang Language, text string) (*Tree, error) {
	var sp *sitter.Parser
	var mapKind func(tsType string, named bool) Kind

	switch lang {
	case LangGo:
		sp = p.goParser
		sp.SetLanguage(golang.GetLanguage())
		mapKind = mapGoKind
	case LangRust:
		sp = p.rustParser
		sp.SetLanguage(rust.GetLanguage())
		mapKind = mapRustKind
	case LangPython:
		sp = p.pyParser
		sp.SetLanguage(python.GetLanguage())
		mapKind = mapGenericKind
	case LangJavaScript:
		sp = p.jsParser
		sp.SetLanguage(javascript.GetLanguage())
		mapKind = mapGenericKind
	case LangTypeScript:
		sp = p.tsParser
		sp.SetLanguage(typescript.GetLanguage())
		mapKind = mapGenericKind
	default:
		return nil, fmt.Errorf("syntax: unsupported language %v", lang)
	}

	content := []byte(text)
	tsTree, err := sp.ParseCtx(ctx, nil, content)
	if err != nil {
		logging.WorldError("syntax: tree-sitter parse failed: %v", err)
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tsTree.Close()

	b := NewBuilder(text)
	root := replay(b, tsTree.RootNode(), mapKind)
	tree := b.Seal(root)

	if tsTree.RootNode().HasError() {
		// The tree is already sealed, so node ranges are final: attribute each
		// error to the innermost node containing its offset, then re-sort
		// since this path bypasses Builder.Seal's sort.
		walkErrors(tsTree.RootNode(), func(n *sitter.Node) {
			offset := n.StartByte()
			tree.errors = append(tree.errors, Error{Offset: offset, Message: "syntax error", Node: tree.NodeAt(offset)})
		})
		sortErrors(tree.errors)
	}
	return tree, nil
}

// replay walks a tree-sitter CST node and drives the builder's start/finish/
// token event log, satisfying the builder's balanced-call contract.
func replay(b *Builder, n *sitter.Node, mapKind func(string, bool) Kind) NodeID {
	childCount := int(n.ChildCount())
	if childCount == 0 {
		// A genuine leaf: the caller (our own root-only case) still needs a
		// node wrapper, so treat it as a single-token node.
		b.StartNode(mapKind(n.Type(), n.IsNamed()), n.StartByte())
		b.AddToken(Kind(strings.ToUpper(n.Type())), Range{Start: n.StartByte(), End: n.EndByte()})
		return b.FinishNode(n.EndByte())
	}

	b.StartNode(mapKind(n.Type(), n.IsNamed()), n.StartByte())
	for i := 0; i < childCount; i++ {
		c := n.Child(i)
		if int(c.ChildCount()) == 0 {
			b.AddToken(leafKind(c), Range{Start: c.StartByte(), End: c.EndByte()})
			continue
		}
		replay(b, c, mapKind)
	}
	return b.FinishNode(n.EndByte())
}

func leafKind(n *sitter.Node) Kind {
	t := n.Type()
	switch t {
	case "fn":
		return "FN_KW"
	case "identifier", "type_identifier", "field_identifier":
		return "NAME"
	}
	return Kind(strings.ToUpper(sanitize(t)))
}

func sanitize(t string) string {
	if t == "" {
		return "TOKEN"
	}
	// Punctuation node types in tree-sitter are the literal character(s),
	// e.g. "(" or "{"; keep those as-is rather than uppercasing punctuation.
	for _, r := range t {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' {
			continue
		}
		return t
	}
	return t
}

func walkErrors(n *sitter.Node, visit func(*sitter.Node)) {
	if n.IsError() {
		visit(n)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkErrors(n.Child(i), visit)
	}
}

// mapRustKind renders rust tree-sitter node types rust-analyzer style.
func mapRustKind(t string, named bool) Kind {
	switch t {
	case "source_file":
		return "SOURCE_FILE"
	case "function_item":
		return "FN_DEF"
	case "struct_item":
		return "STRUCT"
	case "enum_item":
		return "ENUM"
	case "mod_item":
		return "MODULE"
	case "use_declaration":
		return "USE"
	case "impl_item":
		return "IMPL"
	case "trait_item":
		return "TRAIT"
	case "parameters":
		return "PARAM_LIST"
	case "block":
		return "BLOCK_EXPR"
	case "identifier", "type_identifier", "field_identifier":
		return "NAME"
	case "visibility_modifier":
		return "VISIBILITY"
	default:
		return mapGenericKind(t, named)
	}
}

// mapGoKind renders go tree-sitter node types rust-analyzer style.
func mapGoKind(t string, named bool) Kind {
	switch t {
	case "source_file":
		return "SOURCE_FILE"
	case "function_declaration":
		return "FN_DEF"
	case "method_declaration":
		return "METHOD_DEF"
	case "type_declaration":
		return "TYPE_DEF"
	case "parameter_list":
		return "PARAM_LIST"
	case "block":
		return "BLOCK_EXPR"
	case "identifier", "field_identifier", "type_identifier":
		return "NAME"
	default:
		return mapGenericKind(t, named)
	}
}

// mapGenericKind is the default rendering for languages without a bespoke
// mapping: named nodes become SCREAMING_SNAKE_CASE of their tree-sitter type,
// anonymous nodes (punctuation/keywords) are rendered verbatim as tokens, not
// nodes, so this path is mostly exercised for named container nodes.
func mapGenericKind(t string, named bool) Kind {
	if !named {
		return Kind(t)
	}
	return Kind(strings.ToUpper(t))
}
