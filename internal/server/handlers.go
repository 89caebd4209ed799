package server

import (
	"errors"
	"fmt"

	"langd/internal/fileset"
	"langd/internal/protocol"
	"langd/internal/query"
	"langd/internal/syntax"
	"langd/internal/world"
)

// errCanceled is the sentinel translated to "request cancelled" by
// toResponse; the handlers below map query.Canceled onto it via
// wrapCanceled.
var errCanceled = errors.New("server: canceled")

// handlerFunc is a pure function of a snapshot and raw params, run on the
// worker pool. It is the dispatcher's decode+compute step for one request
// kind (spec.md §4.G).
type handlerFunc func(snap *world.Snapshot, rawParams interface{}) (interface{}, error)

var handlers = map[protocol.Method]handlerFunc{
	protocol.MethodSyntaxTree:        handleSyntaxTree,
	protocol.MethodDocumentSymbol:    handleDocumentSymbol,
	protocol.MethodWorkspaceSymbol:   handleWorkspaceSymbol,
	protocol.MethodGotoDefinition:    handleGotoDefinition,
	protocol.MethodReferences:        handleReferences,
	protocol.MethodExtendSelection:   handleExtendSelection,
	protocol.MethodFindMatchingBrace: handleFindMatchingBrace,
	protocol.MethodFoldingRange:      handleFoldingRange,
	protocol.MethodDecorations:       handleDecorations,
}

func resolveFile(snap *world.Snapshot, path string) (fileset.FileId, error) {
	id, ok := snap.Registry().Lookup(path)
	if !ok {
		return 0, &HandlerError{Code: protocol.ErrInvalidParams, Message: fmt.Sprintf("unknown file: %s", path)}
	}
	return id, nil
}

func wrapCanceled(err error) error {
	if err == query.Canceled {
		return errCanceled
	}
	return err
}

type pathParams struct {
	Path string `json:"path"`
}

func handleSyntaxTree(snap *world.Snapshot, raw interface{}) (interface{}, error) {
	var p pathParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &HandlerError{Code: protocol.ErrInvalidParams, Message: err.Error()}
	}
	id, err := resolveFile(snap, p.Path)
	if err != nil {
		return nil, err
	}
	text, err := query.SyntaxTree(snap, id)
	return text, wrapCanceled(err)
}

func handleDocumentSymbol(snap *world.Snapshot, raw interface{}) (interface{}, error) {
	var p pathParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &HandlerError{Code: protocol.ErrInvalidParams, Message: err.Error()}
	}
	id, err := resolveFile(snap, p.Path)
	if err != nil {
		return nil, err
	}
	syms, err := query.DocumentSymbol(snap, id)
	return syms, wrapCanceled(err)
}

type workspaceSymbolParams struct {
	Query string `json:"query"`
}

func handleWorkspaceSymbol(snap *world.Snapshot, raw interface{}) (interface{}, error) {
	var p workspaceSymbolParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &HandlerError{Code: protocol.ErrInvalidParams, Message: err.Error()}
	}
	syms, err := query.WorkspaceSymbol(snap, p.Query)
	return syms, wrapCanceled(err)
}

type offsetParams struct {
	Path   string `json:"path"`
	Offset uint32 `json:"offset"`
}

func handleGotoDefinition(snap *world.Snapshot, raw interface{}) (interface{}, error) {
	var p offsetParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &HandlerError{Code: protocol.ErrInvalidParams, Message: err.Error()}
	}
	id, err := resolveFile(snap, p.Path)
	if err != nil {
		return nil, err
	}
	loc, err := query.GotoDefinition(snap, id, p.Offset)
	return loc, wrapCanceled(err)
}

func handleReferences(snap *world.Snapshot, raw interface{}) (interface{}, error) {
	var p offsetParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &HandlerError{Code: protocol.ErrInvalidParams, Message: err.Error()}
	}
	id, err := resolveFile(snap, p.Path)
	if err != nil {
		return nil, err
	}
	locs, err := query.References(snap, id, p.Offset)
	return locs, wrapCanceled(err)
}

type rangeParams struct {
	Path  string `json:"path"`
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

func handleExtendSelection(snap *world.Snapshot, raw interface{}) (interface{}, error) {
	var p rangeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &HandlerError{Code: protocol.ErrInvalidParams, Message: err.Error()}
	}
	id, err := resolveFile(snap, p.Path)
	if err != nil {
		return nil, err
	}
	r, err := query.ExtendSelection(snap, id, syntax.Range{Start: p.Start, End: p.End})
	return r, wrapCanceled(err)
}

func handleFindMatchingBrace(snap *world.Snapshot, raw interface{}) (interface{}, error) {
	var p offsetParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &HandlerError{Code: protocol.ErrInvalidParams, Message: err.Error()}
	}
	id, err := resolveFile(snap, p.Path)
	if err != nil {
		return nil, err
	}
	offset, err := query.FindMatchingBrace(snap, id, p.Offset)
	return offset, wrapCanceled(err)
}

func handleFoldingRange(snap *world.Snapshot, raw interface{}) (interface{}, error) {
	var p pathParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &HandlerError{Code: protocol.ErrInvalidParams, Message: err.Error()}
	}
	id, err := resolveFile(snap, p.Path)
	if err != nil {
		return nil, err
	}
	items, err := query.FoldingRange(snap, id)
	return items, wrapCanceled(err)
}

func handleDecorations(snap *world.Snapshot, raw interface{}) (interface{}, error) {
	var p pathParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &HandlerError{Code: protocol.ErrInvalidParams, Message: err.Error()}
	}
	id, err := resolveFile(snap, p.Path)
	if err != nil {
		return nil, err
	}
	decs, err := query.Decorations(snap, id)
	return decs, wrapCanceled(err)
}
