// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/mcphub/internal/tracing"
	pkgerrors "github.com/tombee/mcphub/pkg/errors"
)

// Config is the hub configuration stored in settings.yaml.
type Config struct {
	// MCPEnabled is the global MCP toggle.
	// Default: true
	MCPEnabled bool `yaml:"mcp_enabled"`

	// GlobalConfig is the global MCP settings file.
	// Default: <ConfigDir>/mcp_settings.json
	GlobalConfig string `yaml:"global_config,omitempty"`

	// ProjectRoot is the workspace whose .mcphub/mcp.json is loaded.
	// Empty disables the project source.
	ProjectRoot string `yaml:"project_root,omitempty"`

	// WorkspaceRoots are the open workspace folders. The first one is the
	// default cwd of stdio servers.
	// Default: [ProjectRoot] when ProjectRoot is set
	WorkspaceRoots []string `yaml:"workspace_roots,omitempty"`

	// APIAddr is the listen address of the host API.
	// Default: 127.0.0.1:7323
	APIAddr string `yaml:"api_addr"`

	// Debounce is the quiet period before a file change is applied.
	// Default: 500ms
	Debounce time.Duration `yaml:"debounce"`

	// SuppressWindow is how long the hub ignores events after its own writes.
	// Default: 600ms
	SuppressWindow time.Duration `yaml:"suppress_window"`

	// ToolCallRate limits tool calls through the host API, per second.
	// Default: 10
	ToolCallRate float64 `yaml:"tool_call_rate"`

	// ToolCallBurst is the burst allowed above ToolCallRate.
	// Default: 20
	ToolCallBurst int `yaml:"tool_call_burst"`

	// Tracing configures OpenTelemetry span export.
	Tracing tracing.Config `yaml:"tracing,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		MCPEnabled:     true,
		APIAddr:        "127.0.0.1:7323",
		Debounce:       500 * time.Millisecond,
		SuppressWindow: 600 * time.Millisecond,
		ToolCallRate:   10,
		ToolCallBurst:  20,
		Tracing:        tracing.DefaultConfig(),
	}
}

// Load reads settings from path (the default settings path when empty),
// applies environment overrides and defaults, and validates the result.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := ReadSettings(path)
	if err != nil {
		return nil, err
	}
	cfg.loadFromEnv()
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a partial settings file.
func (c *Config) applyDefaults() {
	defaults := Default()
	if c.APIAddr == "" {
		c.APIAddr = defaults.APIAddr
	}
	if c.Debounce == 0 {
		c.Debounce = defaults.Debounce
	}
	if c.SuppressWindow == 0 {
		c.SuppressWindow = defaults.SuppressWindow
	}
	if c.ToolCallRate == 0 {
		c.ToolCallRate = defaults.ToolCallRate
	}
	if c.ToolCallBurst == 0 {
		c.ToolCallBurst = defaults.ToolCallBurst
	}
	c.Tracing.ApplyDefaults()
}

// loadFromEnv applies environment overrides.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("MCPHUB_GLOBAL_CONFIG"); val != "" {
		c.GlobalConfig = val
	}
	if val := os.Getenv("MCPHUB_PROJECT_ROOT"); val != "" {
		c.ProjectRoot = val
	}
	if val := os.Getenv("MCPHUB_API_ADDR"); val != "" {
		c.APIAddr = val
	}
	if val := os.Getenv("MCPHUB_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.MCPEnabled = enabled
		}
	}
	if val := os.Getenv("MCPHUB_TRACE_EXPORTER"); val != "" {
		c.Tracing.Exporter = val
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" && c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = val
	}
}

// resolve expands ~ and fills in derived paths.
func (c *Config) resolve() error {
	var err error
	if c.GlobalConfig == "" {
		if c.GlobalConfig, err = DefaultGlobalConfigPath(); err != nil {
			return fmt.Errorf("failed to determine global config path: %w", err)
		}
	}
	if c.GlobalConfig, err = expandHome(c.GlobalConfig); err != nil {
		return err
	}
	if c.ProjectRoot != "" {
		if c.ProjectRoot, err = expandHome(c.ProjectRoot); err != nil {
			return err
		}
		if c.ProjectRoot, err = filepath.Abs(c.ProjectRoot); err != nil {
			return fmt.Errorf("failed to resolve project root: %w", err)
		}
	}
	for i, root := range c.WorkspaceRoots {
		if c.WorkspaceRoots[i], err = expandHome(root); err != nil {
			return err
		}
	}
	if len(c.WorkspaceRoots) == 0 && c.ProjectRoot != "" {
		c.WorkspaceRoots = []string{c.ProjectRoot}
	}
	return nil
}

// SetProjectRoot replaces the project root. Workspace roots that were
// derived from the previous root follow the new one.
func (c *Config) SetProjectRoot(root string) error {
	root, err := expandHome(root)
	if err != nil {
		return err
	}
	if root, err = filepath.Abs(root); err != nil {
		return fmt.Errorf("failed to resolve project root: %w", err)
	}
	derived := len(c.WorkspaceRoots) == 0 ||
		(len(c.WorkspaceRoots) == 1 && c.WorkspaceRoots[0] == c.ProjectRoot)
	c.ProjectRoot = root
	if derived {
		c.WorkspaceRoots = []string{root}
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if _, _, err := net.SplitHostPort(c.APIAddr); err != nil {
		errs = append(errs, fmt.Sprintf("api_addr %q is not a host:port address", c.APIAddr))
	}
	if c.Debounce < 0 {
		errs = append(errs, "debounce must not be negative")
	}
	if c.SuppressWindow < 0 {
		errs = append(errs, "suppress_window must not be negative")
	}
	if c.ToolCallRate < 0 {
		errs = append(errs, "tool_call_rate must not be negative")
	}
	if c.ToolCallBurst < 0 {
		errs = append(errs, "tool_call_burst must not be negative")
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return &pkgerrors.ConfigError{
			Key:    "settings",
			Reason: strings.Join(errs, "; "),
		}
	}
	return nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
