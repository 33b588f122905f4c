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

package shared

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/mcphub/internal/config"
	"github.com/tombee/mcphub/internal/mcp"
	"github.com/tombee/mcphub/internal/mcp/mcptest"
)

func setupRuntimeEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("MCPHUB_GLOBAL_CONFIG", "")
	t.Setenv("MCPHUB_PROJECT_ROOT", "")
	t.Setenv("MCPHUB_API_ADDR", "")
	t.Setenv("MCPHUB_ENABLED", "")
	SetConfigPathForTest(filepath.Join(dir, "settings.yaml"))
	SetProjectRootForTest("")
	t.Cleanup(func() {
		SetConfigPathForTest("")
		SetProjectRootForTest("")
	})
	return dir
}

func TestLoadRuntime_Defaults(t *testing.T) {
	dir := setupRuntimeEnv(t)

	rt, err := LoadRuntime()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "settings.yaml"), rt.SettingsPath)
	assert.Equal(t, filepath.Join(dir, config.AppName, mcp.GlobalConfigFile), rt.Config.GlobalConfig)
	assert.Empty(t, rt.Config.ProjectRoot)
	assert.NotNil(t, rt.Logger)
}

func TestLoadRuntime_ProjectFlag(t *testing.T) {
	dir := setupRuntimeEnv(t)
	SetProjectRootForTest(filepath.Join(dir, "app"))

	rt, err := LoadRuntime()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "app"), rt.Config.ProjectRoot)
	assert.Equal(t, []string{filepath.Join(dir, "app")}, rt.Config.WorkspaceRoots)
	assert.Equal(t, filepath.Join(dir, "app", mcp.ProjectConfigDir, mcp.ProjectConfigFile),
		mustPath(t, rt.Store(), mcp.SourceProject))
}

func TestLoadRuntime_InvalidSettings(t *testing.T) {
	dir := setupRuntimeEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte("api_addr: nope\n"), 0o600))

	_, err := LoadRuntime()
	require.Error(t, err)
	assert.Equal(t, ExitInvalidConfig, ExitCode(err))
}

func TestRuntime_NewHubPersistsToggle(t *testing.T) {
	setupRuntimeEnv(t)

	rt, err := LoadRuntime()
	require.NoError(t, err)

	hub, err := rt.NewHub(HubOptions{Dialer: mcptest.NewDialer(), PersistEnabled: true})
	require.NoError(t, err)
	defer hub.Close()

	ctx := context.Background()
	require.NoError(t, hub.Initialize(ctx))
	require.NoError(t, hub.SetEnabled(ctx, false))

	saved, err := config.ReadSettings(rt.SettingsPath)
	require.NoError(t, err)
	assert.False(t, saved.MCPEnabled)
}

func mustPath(t *testing.T, store *mcp.ConfigStore, source mcp.Source) string {
	t.Helper()
	path, err := store.Path(source)
	require.NoError(t, err)
	return path
}
