package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/google/uuid"

	"langd/internal/config"
	"langd/internal/fileset"
	"langd/internal/logging"
	"langd/internal/protocol"
	"langd/internal/server"
	"langd/internal/syntax"
	"langd/internal/vfs"
	"langd/internal/worker"
	"langd/internal/workspace"
	"langd/internal/world"
)

var drainTimeout time.Duration

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the langd version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("langd 0.1.0")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the analysis server on stdio",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ws := workspaceRoot
	if ws == "" {
		var err error
		ws, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("getwd: %w", err)
		}
	}
	ws, err := filepath.Abs(ws)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}

	cfg, err := config.Load(ws)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := fileset.New()
	parser := syntax.NewParser()
	defer parser.Close()
	w := world.New(registry, parser)

	pool := worker.New(worker.Config{
		PoolSize:     cfg.Worker.PoolSize,
		QueueSize:    cfg.Worker.QueueSize,
		DrainTimeout: drainTimeout,
	})
	pool.Start()

	transport := protocol.NewStdioTransport(os.Stdin, os.Stdout)
	protoCfg := protocol.Configuration{
		InternalMode:       internalMode,
		WorkspaceRoot:      ws,
		PublishDecorations: publishDecor,
	}
	srv := server.New(w, pool, transport, protoCfg)
	srv.SetPendingLibRoots(len(libraryRoots))

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Boot("received shutdown signal, stopping server")
		cancel()
	}()

	loader := workspace.New(parser, cfg.VFS.IgnoreDirs, cfg.Worker.PoolSize)
	entries, err := loader.LoadWorkspace(ctx, ws)
	if err != nil {
		logging.BootWarn("workspace load failed: %v", err)
	}
	for _, e := range entries {
		if _, err := w.ApplyChange(ctx, world.Change{Kind: world.ChangeAddFile, Path: e.Path, Text: e.Text, Root: fileset.RootWorkspace}); err != nil {
			logging.BootWarn("failed to register %s: %v", e.Path, err)
		}
	}
	logging.Boot("indexed %d workspace files from %s", len(entries), ws)

	// Library loads run on the pool exactly like query tasks, but their
	// result is forwarded to the main loop's LibCompletions channel instead
	// of the generic request/response path (spec.md §4.E's "additional
	// library-indexing tasks run on the same pool").
	for _, root := range libraryRoots {
		root := root
		loadID := uuid.NewString()
		resultCh, err := pool.Submit(func(taskCtx context.Context) (interface{}, error) {
			return loader.LoadLibrary(taskCtx, root, registry, loadID)
		})
		if err != nil {
			logging.BootWarn("failed to submit library load for %s: %v", root, err)
			continue
		}
		go func() {
			res := <-resultCh
			if res.Err != nil {
				srv.LibCompletions <- server.LibResult{Err: res.Err}
				return
			}
			lib, _ := res.Value.(*world.LibraryData)
			srv.LibCompletions <- server.LibResult{Lib: lib}
		}()
	}

	watcher, err := vfs.New(ws, time.Duration(cfg.VFS.DebounceMS)*time.Millisecond, cfg.VFS.IgnoreDirs)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	go pumpVfsEvents(watcher, srv)
	go pumpClientMessages(ctx, transport, srv)

	runErr := srv.Run(ctx)

	cancel()
	watcher.Stop()
	pool.Stop()

	if runErr != nil && runErr != context.Canceled {
		return fmt.Errorf("server loop error: %w", runErr)
	}
	return nil
}

func pumpVfsEvents(watcher *vfs.Watcher, srv *server.Server) {
	for ev := range watcher.Events {
		srv.VfsEvents <- server.VfsEvent{Kind: ev.Kind, Path: ev.Path, Text: ev.Text}
	}
}

func pumpClientMessages(ctx context.Context, transport *protocol.StdioTransport, srv *server.Server) {
	for {
		env, err := transport.ReadEnvelope()
		if err != nil {
			close(srv.ClientMessages)
			return
		}
		switch env.Kind() {
		case "request":
			srv.ClientMessages <- server.ClientRequest(protocol.Request{ID: *env.ID, Method: *env.Method, Params: env.Params})
		case "notification":
			note, ok := decodeNotification(*env.Method, env.Params)
			if !ok {
				logging.ProtocolWarn("unrecognized notification method: %s", *env.Method)
				continue
			}
			srv.ClientMessages <- server.ClientNotify(note)
		default:
			logging.ProtocolWarn("unexpected response message from client, ignoring")
		}
	}
}
