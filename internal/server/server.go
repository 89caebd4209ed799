// Package server implements the main event loop and request dispatcher
// (component G): the sole owner of the World, the pending-request table,
// and the subscription set. Grounded on the teacher's four-way select loop
// in internal/core/mangle_watcher.go's run method and the request routing
// in internal/world/lsp/manager.go, generalized from a single fsnotify
// channel to the spec's four inbound channels.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"langd/internal/fileset"
	"langd/internal/logging"
	"langd/internal/protocol"
	"langd/internal/query"
	"langd/internal/worker"
	"langd/internal/world"
)

// Sender is anything capable of delivering a framed outbound message; the
// production implementation is *protocol.StdioTransport.
type Sender interface {
	Send(msg interface{}) error
}

// NotificationKind distinguishes the client notification families that
// mutate overlays/subscriptions (spec.md §4.G's per-event table).
type NotificationKind int

const (
	NotifyDidOpen NotificationKind = iota
	NotifyDidChange
	NotifyDidClose
	NotifyCancel
)

// ClientNotification is one decoded client notification.
type ClientNotification struct {
	Kind     NotificationKind
	Path     string
	Text     string
	CancelID string // set only for NotifyCancel
}

// VfsEvent is one filesystem change, opaque to callers beyond what the
// World needs to apply it (spec.md §6's "VfsTask events").
type VfsEvent struct {
	Kind world.ChangeKind
	Path string
	Text string
}

// LibResult is a completed library-indexing task's outcome.
type LibResult struct {
	Lib *world.LibraryData
	Err error
}

type taskResult struct {
	id   string
	resp *protocol.Response
	note *protocol.Notification
}

// clientMessageKind distinguishes the two shapes a ClientMessage can carry.
type clientMessageKind int

const (
	clientMessageRequest clientMessageKind = iota
	clientMessageNotification
)

// ClientMessage is the single inbound client channel's element: spec.md §2
// and §4.G name exactly one "client messages" channel, carrying both
// requests and notifications, so that a notification sent immediately
// after a request (e.g. the explicit-cancel scenario in §8.3) is observed
// by the loop in the order the client actually sent them. Splitting these
// into two channels would let select's nondeterministic case choice
// reorder a request and a cancel that raced on arrival.
type ClientMessage struct {
	kind clientMessageKind
	req  protocol.Request
	note ClientNotification
}

// ClientRequest wraps a decoded request as a ClientMessage.
func ClientRequest(req protocol.Request) ClientMessage {
	return ClientMessage{kind: clientMessageRequest, req: req}
}

// ClientNotify wraps a decoded notification as a ClientMessage.
func ClientNotify(note ClientNotification) ClientMessage {
	return ClientMessage{kind: clientMessageNotification, note: note}
}

// Server is the main loop: it owns the World and runs single-threaded,
// dispatching query work to the Pool and routing completions back to
// itself over taskCh, per spec.md §4.G/§5.
type Server struct {
	world *world.World
	pool  *worker.Pool
	out   Sender
	cfg   protocol.Configuration

	ClientMessages chan ClientMessage
	VfsEvents      chan VfsEvent
	LibCompletions chan LibResult
	taskCh         chan taskResult

	mu            sync.Mutex // guards pending/subscriptions against Submit callbacks racing the loop
	pending       map[string]struct{}
	subscriptions map[fileset.FileId]struct{}

	pendingLibRoots int
	libsEverLoaded  bool
	shuttingDown    bool
}

// New builds a Server. Channel capacities follow spec.md §5: client
// messages are bounded (to apply backpressure on the transport), task
// results are effectively unbounded here since each task owns its own
// single-slot result channel and is drained promptly by a forwarding
// goroutine in handleRequest.
func New(w *world.World, pool *worker.Pool, out Sender, cfg protocol.Configuration) *Server {
	return &Server{
		world:          w,
		pool:           pool,
		out:            out,
		cfg:            cfg,
		ClientMessages: make(chan ClientMessage, 64),
		VfsEvents:      make(chan VfsEvent, 64),
		LibCompletions: make(chan LibResult, 16),
		taskCh:         make(chan taskResult, 256),
		pending:        make(map[string]struct{}),
		subscriptions:  make(map[fileset.FileId]struct{}),
	}
}

// SetPendingLibRoots records how many library roots are still loading, so
// the loop knows when to emit "workspace loaded" (spec.md §8 scenario 4).
func (s *Server) SetPendingLibRoots(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingLibRoots = n
}

// Run drives the main loop until ctx is canceled or a fatal channel closure
// occurs. Returns nil only after a clean shutdown; any other return is the
// fatal error the process should exit non-zero for (spec.md §7).
func (s *Server) Run(ctx context.Context) error {
	logging.Dispatch("main loop starting")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-s.ClientMessages:
			if !ok {
				return fmt.Errorf("server: client message channel closed without shutdown")
			}
			switch msg.kind {
			case clientMessageRequest:
				if s.shuttingDown {
					continue
				}
				s.handleRequest(ctx, msg.req)
			case clientMessageNotification:
				if s.handleNotification(ctx, msg.note) {
					s.afterStateChange(ctx)
				}
			}

		case ev, ok := <-s.VfsEvents:
			if !ok {
				return fmt.Errorf("server: vfs channel closed unexpectedly")
			}
			s.handleVfsEvent(ctx, ev)
			s.afterStateChange(ctx)

		case lib, ok := <-s.LibCompletions:
			if !ok {
				return fmt.Errorf("server: library completion channel closed unexpectedly")
			}
			s.handleLibCompletion(lib)
			s.afterStateChange(ctx)

		case tr := <-s.taskCh:
			s.handleTaskResult(tr)

		}
		if s.shuttingDown && len(s.pending) == 0 {
			logging.Dispatch("main loop exiting after clean shutdown")
			return nil
		}
	}
}

// handleRequest decodes req by its Method and either dispatches it to the
// pool (inserting its id into pending first, per spec.md §4.G) or replies
// "method not found".
func (s *Server) handleRequest(ctx context.Context, req protocol.Request) {
	if req.Method == protocol.MethodShutdown {
		s.beginShutdown()
		s.reply(req.ID, struct{}{}, nil)
		return
	}

	handler, ok := handlers[req.Method]
	if !ok {
		s.replyError(req.ID, protocol.ErrMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
		return
	}

	s.mu.Lock()
	if _, exists := s.pending[req.ID]; exists {
		s.mu.Unlock()
		panic(fmt.Sprintf("server: duplicate pending request id %q", req.ID))
	}
	s.pending[req.ID] = struct{}{}
	s.mu.Unlock()

	snap := s.world.Snapshot()
	id := req.ID
	params := req.Params
	resultCh, err := s.pool.Submit(func(taskCtx context.Context) (interface{}, error) {
		return handler(snap, params)
	})
	if err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		s.replyError(id, protocol.ErrInternalError, err.Error())
		return
	}

	go func() {
		res := <-resultCh
		resp := toResponse(id, res.Value, res.Err)
		s.taskCh <- taskResult{id: id, resp: resp}
	}()
}

// toResponse maps a handler's (value, error) pair to a wire Response per
// spec.md §7's error-kind table.
func toResponse(id string, value interface{}, err error) *protocol.Response {
	if err == nil {
		return &protocol.Response{ID: id, Result: value}
	}
	if err == errCanceled {
		return &protocol.Response{ID: id, Error: &protocol.ResponseError{Code: protocol.ErrRequestCanceled, Message: "request cancelled"}}
	}
	if he, ok := err.(*HandlerError); ok {
		return &protocol.Response{ID: id, Error: &protocol.ResponseError{Code: he.Code, Message: he.Message}}
	}
	return &protocol.Response{ID: id, Error: &protocol.ResponseError{Code: protocol.ErrInternalError, Message: err.Error()}}
}

// HandlerError lets a query handler raise a structured LSP-style error
// envelope that is forwarded verbatim (spec.md §7).
type HandlerError struct {
	Code    protocol.ErrorCode
	Message string
}

func (e *HandlerError) Error() string { return e.Message }

func (s *Server) handleTaskResult(tr taskResult) {
	s.mu.Lock()
	_, stillPending := s.pending[tr.id]
	if stillPending {
		delete(s.pending, tr.id)
	}
	s.mu.Unlock()

	if !stillPending {
		logging.DispatchDebug("dropping task result for id %s: no longer pending", tr.id)
		return
	}
	if tr.resp != nil {
		if err := s.out.Send(tr.resp); err != nil {
			logging.DispatchWarn("failed to send response for id %s: %v", tr.id, err)
		}
	}
	if tr.note != nil {
		if err := s.out.Send(tr.note); err != nil {
			logging.DispatchWarn("failed to send notification: %v", err)
		}
	}
}

// handleNotification applies an open/change/close/cancel notification.
// Returns true if it changed World state (cancel never does).
func (s *Server) handleNotification(ctx context.Context, note ClientNotification) bool {
	switch note.Kind {
	case NotifyDidOpen:
		id, err := s.world.ApplyChange(ctx, world.Change{Kind: world.ChangeAddFile, Path: note.Path, Text: note.Text, Root: fileset.RootWorkspace})
		if err != nil {
			// Already registered: treat as an overlay edit, matching
			// "opening a file already open replaces the overlay"
			// (spec.md §8). FromOverlay leaves the file's filesystem text
			// untouched so a later close can restore it.
			id, err = s.world.ApplyChange(ctx, world.Change{Kind: world.ChangeEditFile, Path: note.Path, Text: note.Text, FromOverlay: true})
			if err != nil {
				logging.DispatchWarn("didOpen: %v", err)
				return false
			}
		}
		s.world.Overlays().Open(id)
		s.subscribe(id)
		return true

	case NotifyDidChange:
		if _, err := s.world.ApplyChange(ctx, world.Change{Kind: world.ChangeEditFile, Path: note.Path, Text: note.Text, FromOverlay: true}); err != nil {
			logging.DispatchWarn("didChange: %v", err)
			return false
		}
		return true

	case NotifyDidClose:
		existingID, ok := s.world.Registry().Lookup(note.Path)
		s.unsubscribe(existingID)
		if ok {
			if err := s.world.CloseOverlay(ctx, existingID); err != nil {
				logging.DispatchWarn("didClose: %v", err)
			}
			s.world.Overlays().Close(existingID)
		}
		s.out.Send(&protocol.Notification{Method: protocol.MethodDidClose, Params: map[string]interface{}{"path": note.Path, "diagnostics": []interface{}{}}})
		return ok

	case NotifyCancel:
		s.mu.Lock()
		_, existed := s.pending[note.CancelID]
		if existed {
			delete(s.pending, note.CancelID)
		}
		s.mu.Unlock()
		if existed {
			s.reply(note.CancelID, nil, &protocol.ResponseError{Code: protocol.ErrRequestCanceled, Message: "request cancelled"})
		}
		return false
	}
	return false
}

// handleVfsEvent applies a disk-originated change to the World. An edit
// event for a path the registry has never seen is treated as an add (the
// watcher cannot always tell create from write apart across debounced,
// coalesced events); didOpen in handleNotification has the reverse
// fallback, treating an add on a registered path as an edit.
func (s *Server) handleVfsEvent(ctx context.Context, ev VfsEvent) {
	ch := world.Change{Kind: ev.Kind, Path: ev.Path, Text: ev.Text, Root: fileset.RootWorkspace}
	if _, err := s.world.ApplyChange(ctx, ch); err != nil {
		if ev.Kind == world.ChangeEditFile {
			ch.Kind = world.ChangeAddFile
			if _, err2 := s.world.ApplyChange(ctx, ch); err2 != nil {
				logging.DispatchWarn("vfs event for %s: %v", ev.Path, err2)
			}
			return
		}
		logging.DispatchWarn("vfs event for %s: %v", ev.Path, err)
	}
}

func (s *Server) handleLibCompletion(lib LibResult) {
	if lib.Err != nil {
		logging.DispatchWarn("library load failed: %v", lib.Err)
		return
	}
	s.world.InstallLibrary(lib.Lib)
	s.libsEverLoaded = true
	s.mu.Lock()
	if s.pendingLibRoots > 0 {
		s.pendingLibRoots--
	}
	remaining := s.pendingLibRoots
	s.mu.Unlock()

	if s.cfg.InternalMode {
		s.out.Send(&protocol.Notification{Method: "internalFeedback", Params: "library loaded"})
	}
	if remaining == 0 && s.cfg.InternalMode {
		s.out.Send(&protocol.Notification{Method: "internalFeedback", Params: "workspace loaded"})
	}
}

// afterStateChange re-publishes diagnostics for every subscribed file
// against a fresh snapshot, per spec.md §4.G step 3: each subscriber gets
// its file's parse errors, via query.Diagnostics, run on the pool exactly
// as any other read-only handler would be.
func (s *Server) afterStateChange(ctx context.Context) {
	s.mu.Lock()
	subs := make([]fileset.FileId, 0, len(s.subscriptions))
	for id := range s.subscriptions {
		subs = append(subs, id)
	}
	s.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	snap := s.world.Snapshot()
	for _, id := range subs {
		fid := id
		rec, err := snap.File(fid)
		if err != nil {
			continue
		}
		path := rec.Path
		resultCh, err := s.pool.Submit(func(taskCtx context.Context) (interface{}, error) {
			if snap.Cancel().IsCanceled() {
				return nil, errCanceled
			}
			return query.Diagnostics(snap, fid)
		})
		if err != nil {
			logging.DispatchWarn("diagnostics for %s: %v", path, err)
			continue
		}
		go func() {
			res := <-resultCh
			if res.Err != nil {
				return
			}
			diags, _ := res.Value.([]query.Diagnostic)
			if err := s.out.Send(&protocol.Notification{Method: protocol.MethodDiagnostics, Params: map[string]interface{}{"path": path, "diagnostics": diags}}); err != nil {
				logging.DispatchWarn("failed to send diagnostics for %s: %v", path, err)
			}
		}()
	}
}

func (s *Server) subscribe(id fileset.FileId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[id] = struct{}{}
}

func (s *Server) unsubscribe(id fileset.FileId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, id)
}

func (s *Server) beginShutdown() {
	s.shuttingDown = true
	logging.Dispatch("shutdown requested, draining pending requests")
}

func (s *Server) reply(id string, result interface{}, errEnv *protocol.ResponseError) {
	if err := s.out.Send(&protocol.Response{ID: id, Result: result, Error: errEnv}); err != nil {
		logging.DispatchWarn("failed to send reply for id %s: %v", id, err)
	}
}

func (s *Server) replyError(id string, code protocol.ErrorCode, message string) {
	s.reply(id, nil, &protocol.ResponseError{Code: code, Message: message})
}

// decodeParams is the dispatcher's "attempt to decode" step: it round-trips
// raw params through JSON into dst, matching the polymorphic request table
// described in spec.md §9.
func decodeParams(raw interface{}, dst interface{}) error {
	body, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}
