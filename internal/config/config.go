// Package config loads langd's workspace configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all langd configuration.
type Config struct {
	// Name of this server instance, for logging/diagnostics.
	Name string `yaml:"name"`

	// InternalMode enables internal diagnostic behavior (library/workspace
	// feedback notifications, relaxed error surfacing).
	InternalMode bool `yaml:"internal_mode"`

	// WorkspaceRoot is the root source directory analyzed by this server.
	WorkspaceRoot string `yaml:"workspace_root"`

	// PublishDecorations enables the decorations notification.
	PublishDecorations bool `yaml:"publish_decorations"`

	// Worker pool sizing.
	Worker WorkerConfig `yaml:"worker"`

	// VFS watcher behavior.
	VFS VFSConfig `yaml:"vfs"`

	// Logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// WorkerConfig configures the worker pool.
type WorkerConfig struct {
	PoolSize  int `yaml:"pool_size"`
	QueueSize int `yaml:"queue_size"`
}

// VFSConfig configures the filesystem watcher.
type VFSConfig struct {
	DebounceMS int      `yaml:"debounce_ms"`
	IgnoreDirs []string `yaml:"ignore_dirs"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level"`
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:               "langd",
		InternalMode:       false,
		PublishDecorations: true,
		Worker: WorkerConfig{
			PoolSize:  8,
			QueueSize: 256,
		},
		VFS: VFSConfig{
			DebounceMS: 100,
			IgnoreDirs: []string{".git", ".langd", "node_modules", "target", "vendor"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			DebugMode:  false,
			JSONFormat: false,
		},
	}
}

// Load reads configuration from <workspaceRoot>/.langd/config.yaml, falling
// back to defaults for any fields the file omits. A missing file is not an
// error: it yields DefaultConfig() with WorkspaceRoot set.
func Load(workspaceRoot string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.WorkspaceRoot = workspaceRoot

	path := filepath.Join(workspaceRoot, ".langd", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.WorkspaceRoot = workspaceRoot
	return cfg, nil
}

// WriteLoggingProbe writes the small JSON file (.langd/logging.json) that
// internal/logging reads its settings from; internal/logging does not import
// this package.
func (c *Config) WriteLoggingProbe() error {
	dir := filepath.Join(c.WorkspaceRoot, ".langd")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create .langd dir: %w", err)
	}
	probe := struct {
		DebugMode  bool            `json:"debug_mode"`
		Level      string          `json:"level"`
		JSONFormat bool            `json:"json_format"`
		Categories map[string]bool `json:"categories"`
	}{
		DebugMode:  c.Logging.DebugMode,
		Level:      c.Logging.Level,
		JSONFormat: c.Logging.JSONFormat,
		Categories: c.Logging.Categories,
	}
	data, err := json.Marshal(probe)
	if err != nil {
		return fmt.Errorf("marshal logging probe: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "logging.json"), data, 0644)
}
