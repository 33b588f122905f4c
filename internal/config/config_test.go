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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.MCPEnabled)
	assert.Equal(t, "127.0.0.1:7323", cfg.APIAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 600*time.Millisecond, cfg.SuppressWindow)
	assert.False(t, cfg.Tracing.Enabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("MCPHUB_GLOBAL_CONFIG", "")
	t.Setenv("MCPHUB_PROJECT_ROOT", filepath.Join(dir, "project"))
	t.Setenv("MCPHUB_API_ADDR", "localhost:9999")
	t.Setenv("MCPHUB_ENABLED", "false")
	t.Setenv("MCPHUB_TRACE_EXPORTER", "otlp-http")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")

	cfg, err := Load(filepath.Join(dir, "settings.yaml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, AppName, "mcp_settings.json"), cfg.GlobalConfig)
	assert.Equal(t, filepath.Join(dir, "project"), cfg.ProjectRoot)
	assert.Equal(t, []string{filepath.Join(dir, "project")}, cfg.WorkspaceRoots)
	assert.Equal(t, "localhost:9999", cfg.APIAddr)
	assert.False(t, cfg.MCPEnabled)
	assert.Equal(t, "otlp-http", cfg.Tracing.Exporter)
	assert.Equal(t, "localhost:4318", cfg.Tracing.Endpoint)
}

func TestLoad_ExplicitWorkspaceRoots(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("MCPHUB_PROJECT_ROOT", "")
	t.Setenv("MCPHUB_API_ADDR", "")
	t.Setenv("MCPHUB_ENABLED", "")

	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, UpdateSettings(path, func(c *Config) error {
		c.GlobalConfig = filepath.Join(dir, "global.json")
		c.ProjectRoot = filepath.Join(dir, "app")
		c.WorkspaceRoots = []string{filepath.Join(dir, "lib")}
		return nil
	}))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "global.json"), cfg.GlobalConfig)
	assert.Equal(t, []string{filepath.Join(dir, "lib")}, cfg.WorkspaceRoots)
}

func TestSetProjectRoot(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	require.NoError(t, cfg.SetProjectRoot(filepath.Join(dir, "a")))
	assert.Equal(t, filepath.Join(dir, "a"), cfg.ProjectRoot)
	assert.Equal(t, []string{filepath.Join(dir, "a")}, cfg.WorkspaceRoots)

	// derived roots follow the project
	require.NoError(t, cfg.SetProjectRoot(filepath.Join(dir, "b")))
	assert.Equal(t, []string{filepath.Join(dir, "b")}, cfg.WorkspaceRoots)

	// explicit roots are kept
	cfg.WorkspaceRoots = []string{filepath.Join(dir, "lib"), filepath.Join(dir, "b")}
	require.NoError(t, cfg.SetProjectRoot(filepath.Join(dir, "c")))
	assert.Equal(t, filepath.Join(dir, "c"), cfg.ProjectRoot)
	assert.Equal(t, []string{filepath.Join(dir, "lib"), filepath.Join(dir, "b")}, cfg.WorkspaceRoots)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults"},
		{
			name:    "bad address",
			mutate:  func(c *Config) { c.APIAddr = "nowhere" },
			wantErr: "api_addr",
		},
		{
			name:    "negative debounce",
			mutate:  func(c *Config) { c.Debounce = -time.Second },
			wantErr: "debounce",
		},
		{
			name: "several problems",
			mutate: func(c *Config) {
				c.SuppressWindow = -1
				c.ToolCallRate = -1
			},
			wantErr: "suppress_window must not be negative; tool_call_rate",
		},
		{
			name:    "tracing exporter without endpoint",
			mutate:  func(c *Config) { c.Tracing.Exporter = "otlp" },
			wantErr: "tracing.endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, AppName), got)
	assert.DirExists(t, got)
}
