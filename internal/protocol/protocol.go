// Package protocol defines the wire envelope between a client and the
// analysis server, and a Content-Length framed stdio transport for it.
package protocol

// Method names the request/notification families named in the external
// interface, namespaced "m/" in the style of "m/syntaxTree" that the
// original rust-analyzer prototype used for its IDE-specific extensions.
type Method string

const (
	MethodSyntaxTree        Method = "m/syntaxTree"
	MethodExtendSelection   Method = "m/extendSelection"
	MethodFindMatchingBrace Method = "m/findMatchingBrace"
	MethodJoinLines         Method = "m/joinLines"
	MethodOnEnter           Method = "m/onEnter"
	MethodOnTypeFormatting  Method = "m/onTypeFormatting"
	MethodDocumentSymbol    Method = "m/documentSymbol"
	MethodWorkspaceSymbol   Method = "m/workspaceSymbol"
	MethodGotoDefinition    Method = "m/gotoDefinition"
	MethodParentModule      Method = "m/parentModule"
	MethodRunnables         Method = "m/runnables"
	MethodDecorations       Method = "m/decorations"
	MethodCompletion        Method = "m/completion"
	MethodCodeAction        Method = "m/codeAction"
	MethodFoldingRange      Method = "m/foldingRange"
	MethodSignatureHelp     Method = "m/signatureHelp"
	MethodHover             Method = "m/hover"
	MethodPrepareRename     Method = "m/prepareRename"
	MethodRename            Method = "m/rename"
	MethodReferences        Method = "m/references"

	MethodShutdown   Method = "m/shutdown"
	MethodDidOpen    Method = "m/didOpen"
	MethodDidChange  Method = "m/didChange"
	MethodDidClose   Method = "m/didClose"
	MethodCancel     Method = "m/cancel"

	// MethodDiagnostics is a server-to-client push notification republishing
	// a file's parse errors after every state-changing event (spec.md §4.G
	// step 3).
	MethodDiagnostics Method = "m/diagnostics"
)

// ErrorCode enumerates the response error kinds named in the external
// interface.
type ErrorCode int

const (
	ErrMethodNotFound ErrorCode = -32601
	ErrRequestCanceled ErrorCode = -32800
	ErrInternalError   ErrorCode = -32603
	ErrInvalidParams   ErrorCode = -32602
)

// Request is an inbound client call expecting a Response.
type Request struct {
	ID     string `json:"id"`
	Method Method `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// Notification is an inbound or outbound message with no paired response.
type Notification struct {
	Method Method      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// Response answers a Request by ID with either a Result or an Error.
type Response struct {
	ID     string         `json:"id"`
	Result interface{}    `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError is the LSP-style error envelope.
type ResponseError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// TextDocumentIdentifier names a file by its client-visible path.
type TextDocumentIdentifier struct {
	Path string `json:"path"`
}

// Position is a zero-based byte offset into a document, matching the
// arena's own Range convention rather than LSP's line/column scheme — this
// server's clients are expected to work in byte offsets, per spec.md §3.
type Position struct {
	Offset uint32 `json:"offset"`
}

// RangeParam is an inclusive-exclusive [Start, End) byte range.
type RangeParam struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Configuration mirrors the server's client-visible config surface (spec.md §6).
type Configuration struct {
	InternalMode       bool   `json:"internal_mode"`
	WorkspaceRoot      string `json:"workspace_root"`
	PublishDecorations bool   `json:"publish_decorations"`
}
