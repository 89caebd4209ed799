// Package main implements the langd CLI: the entry point and command
// registration hub for the analysis server binary.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"langd/internal/config"
	"langd/internal/logging"
)

var (
	verbose       bool
	workspaceRoot string
	internalMode  bool
	libraryRoots  []string
	publishDecor  bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "langd",
	Short: "langd - an incremental, multi-threaded language analysis server",
	Long: `langd is the core of an incremental, multi-threaded language analysis
server: a versioned world state, cheap immutable snapshots, a worker pool,
and a main loop that dispatches editor queries while tolerating in-flight
requests against stale snapshots.

Run "langd serve" to start the server on stdio.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspaceRoot
		if ws == "" {
			ws, _ = os.Getwd()
		}
		cfg, err := config.Load(ws)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load config: %v\n", err)
			cfg = config.DefaultConfig()
		}
		if verbose {
			cfg.Logging.DebugMode = true
		}
		if err := cfg.WriteLoggingProbe(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write logging probe: %v\n", err)
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspaceRoot, "workspace", "w", "", "workspace root directory (default: current directory)")

	serveCmd.Flags().BoolVar(&internalMode, "internal-mode", false, "enable internalFeedback notifications for test synchronization")
	serveCmd.Flags().StringArrayVar(&libraryRoots, "library", nil, "a read-only library root to index (repeatable)")
	serveCmd.Flags().BoolVar(&publishDecor, "publish-decorations", false, "publish syntax-highlighting decorations")
	serveCmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 10*time.Second, "how long shutdown waits for in-flight tasks")

	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
