package server

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"langd/internal/fileset"
	"langd/internal/protocol"
	"langd/internal/syntax"
	"langd/internal/worker"
	"langd/internal/world"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []interface{}
}

func (r *recordingSender) Send(msg interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recordingSender) responseFor(id string) *protocol.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if resp, ok := m.(*protocol.Response); ok && resp.ID == id {
			return resp
		}
	}
	return nil
}

func (r *recordingSender) waitForResponse(t *testing.T, id string) *protocol.Response {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if resp := r.responseFor(id); resp != nil {
			return resp
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for response to id %s", id)
	return nil
}

func newTestServer(t *testing.T) (*Server, *recordingSender, context.Context, context.CancelFunc) {
	t.Helper()
	w := world.New(fileset.New(), syntax.NewParser())
	pool := worker.New(worker.Config{PoolSize: 2, QueueSize: 32})
	pool.Start()
	t.Cleanup(pool.Stop)

	sender := &recordingSender{}
	srv := New(w, pool, sender, protocol.Configuration{InternalMode: true})
	ctx, cancel := context.WithCancel(context.Background())
	return srv, sender, ctx, cancel
}

func TestSyntaxTreeRequestRespondsWithFnDefAndSource(t *testing.T) {
	srv, sender, ctx, cancel := newTestServer(t)
	defer cancel()

	if _, err := srv.world.ApplyChange(ctx, world.Change{Kind: world.ChangeAddFile, Path: "/main.rs", Text: "fn main() {}", Root: fileset.RootWorkspace}); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}

	go srv.Run(ctx)
	srv.ClientMessages <- ClientRequest(protocol.Request{ID: "1", Method: protocol.MethodSyntaxTree, Params: map[string]string{"path": "/main.rs"}})

	resp := sender.waitForResponse(t, "1")
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	text, ok := resp.Result.(string)
	if !ok || !strings.Contains(text, "FN_DEF") || !strings.Contains(text, "fn main") {
		t.Fatalf("expected FN_DEF and fn main in result, got %v", resp.Result)
	}
}

func TestExplicitCancelSuppressesResponse(t *testing.T) {
	srv, sender, ctx, cancel := newTestServer(t)
	defer cancel()

	srv.world.ApplyChange(ctx, world.Change{Kind: world.ChangeAddFile, Path: "/foo.rs", Text: "struct S;", Root: fileset.RootWorkspace})

	go srv.Run(ctx)
	srv.ClientMessages <- ClientRequest(protocol.Request{ID: "7", Method: protocol.MethodWorkspaceSymbol, Params: map[string]string{"query": "S"}})
	srv.ClientMessages <- ClientNotify(ClientNotification{Kind: NotifyCancel, CancelID: "7"})

	resp := sender.waitForResponse(t, "7")
	if resp.Error == nil || resp.Error.Code != protocol.ErrRequestCanceled {
		t.Fatalf("expected request cancelled error, got %+v", resp)
	}
}

// TestCancelByChangeNeverMixesOldIDWithNewText exercises spec.md §8's
// cancel-by-change scenario: a query in flight when a didChange lands must
// either complete against the snapshot it was dispatched with, or be
// reported as canceled — it must never reflect the post-change text under
// the original request id.
func TestCancelByChangeNeverMixesOldIDWithNewText(t *testing.T) {
	srv, sender, ctx, cancel := newTestServer(t)
	defer cancel()

	srv.world.ApplyChange(ctx, world.Change{Kind: world.ChangeAddFile, Path: "/main.rs", Text: "fn main() {}", Root: fileset.RootWorkspace})

	go srv.Run(ctx)
	srv.ClientMessages <- ClientRequest(protocol.Request{ID: "20", Method: protocol.MethodSyntaxTree, Params: map[string]string{"path": "/main.rs"}})
	srv.ClientMessages <- ClientNotify(ClientNotification{Kind: NotifyDidChange, Path: "/main.rs", Text: "fn main() { x }"})

	resp := sender.waitForResponse(t, "20")
	if resp.Error != nil {
		if resp.Error.Code != protocol.ErrRequestCanceled {
			t.Fatalf("expected request cancelled or a valid response, got error %+v", resp.Error)
		}
		return
	}
	text, ok := resp.Result.(string)
	if !ok {
		t.Fatalf("expected string result, got %v", resp.Result)
	}
	if strings.Contains(text, "fn main() { x }") {
		t.Fatalf("response for id 20 reflects post-change text, want snapshot taken before the change: %s", text)
	}
}

func TestUnknownMethodRepliesMethodNotFound(t *testing.T) {
	srv, sender, ctx, cancel := newTestServer(t)
	defer cancel()

	go srv.Run(ctx)
	srv.ClientMessages <- ClientRequest(protocol.Request{ID: "9", Method: "m/bogus"})

	resp := sender.waitForResponse(t, "9")
	if resp.Error == nil || resp.Error.Code != protocol.ErrMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp)
	}
}

func TestLibraryCompletionEmitsFeedbackNotifications(t *testing.T) {
	srv, sender, ctx, cancel := newTestServer(t)
	defer cancel()
	srv.SetPendingLibRoots(1)

	go srv.Run(ctx)
	srv.LibCompletions <- LibResult{Lib: &world.LibraryData{Root: "/lib", LoadID: "load-1"}}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sender.mu.Lock()
		n := len(sender.messages)
		sender.mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	var sawLibraryLoaded, sawWorkspaceLoaded bool
	for _, m := range sender.messages {
		if note, ok := m.(*protocol.Notification); ok && note.Method == "internalFeedback" {
			if note.Params == "library loaded" {
				sawLibraryLoaded = true
			}
			if note.Params == "workspace loaded" {
				sawWorkspaceLoaded = true
			}
		}
	}
	if !sawLibraryLoaded || !sawWorkspaceLoaded {
		t.Fatalf("expected both feedback notifications, got %+v", sender.messages)
	}
}

func TestShutdownRespondsThenLoopExits(t *testing.T) {
	srv, sender, ctx, cancel := newTestServer(t)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	srv.ClientMessages <- ClientRequest(protocol.Request{ID: "shutdown-1", Method: protocol.MethodShutdown})
	sender.waitForResponse(t, "shutdown-1")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for loop to exit after shutdown")
	}
}
