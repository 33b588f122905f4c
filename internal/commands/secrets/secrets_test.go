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

package secrets

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/tombee/mcphub/internal/commands/shared"
	"github.com/tombee/mcphub/internal/mcp"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return out.String(), err
}

func TestSetGetDelete(t *testing.T) {
	keyring.MockInit()

	_, err := execute(t, "ghp_abcdef123456\n", "set", "github-token")
	require.NoError(t, err)

	stored, err := keyring.Get(mcp.KeyringService, "github-token")
	require.NoError(t, err)
	assert.Equal(t, "ghp_abcdef123456", stored)

	out, err := execute(t, "", "get", "github-token")
	require.NoError(t, err)
	assert.Contains(t, out, "...3456")
	assert.NotContains(t, out, "ghp_abcdef")

	out, err = execute(t, "", "get", "github-token", "--unmask")
	require.NoError(t, err)
	assert.Equal(t, "ghp_abcdef123456\n", out)

	out, err = execute(t, "n\n", "delete", "github-token")
	require.NoError(t, err)
	assert.Contains(t, out, "Deletion canceled")
	_, err = keyring.Get(mcp.KeyringService, "github-token")
	require.NoError(t, err)

	_, err = execute(t, "y\n", "delete", "github-token")
	require.NoError(t, err)
	_, err = keyring.Get(mcp.KeyringService, "github-token")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestSet_Errors(t *testing.T) {
	keyring.MockInit()

	_, err := execute(t, "", "set", "empty")
	assert.ErrorContains(t, err, "cannot be empty")

	_, err = execute(t, "value", "set", "bad name")
	assert.ErrorContains(t, err, "cannot contain")
}

func TestGet_NotFound(t *testing.T) {
	keyring.MockInit()

	_, err := execute(t, "", "get", "missing")
	require.Error(t, err)
	assert.Equal(t, shared.ExitFailed, shared.ExitCode(err))
	assert.Contains(t, err.Error(), "mcphub secrets set missing")

	_, err = execute(t, "", "delete", "missing", "--force")
	assert.ErrorContains(t, err, "secret not found")
}

func TestCheckReferences(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "config", mcp.GlobalConfigFile)
	project := filepath.Join(dir, "app", mcp.ProjectConfigDir, mcp.ProjectConfigFile)
	writeFile(t, global, `{"mcpServers":{
		"github":{"command":"gh-mcp","env":{"TOKEN":"${keyring:github-token}"}},
		"plain":{"command":"x"}
	}}`)
	writeFile(t, project, `{"mcpServers":{
		"api":{"url":"https://api.example.com/mcp","headers":{"Authorization":"Bearer ${keyring:api-key}","X-Gh":"${keyring:github-token}"}}
	}}`)

	store := mcp.NewConfigStore(mcp.ConfigStoreConfig{
		GlobalPath:  global,
		ProjectRoot: filepath.Join(dir, "app"),
	})

	statuses := checkReferences(store, func(name string) bool { return name == "github-token" })
	require.Len(t, statuses, 2)

	assert.Equal(t, "api-key", statuses[0].Name)
	assert.False(t, statuses[0].Present)
	assert.Equal(t, []string{"project/api"}, statuses[0].Servers)

	assert.Equal(t, "github-token", statuses[1].Name)
	assert.True(t, statuses[1].Present)
	assert.Equal(t, []string{"global/github", "project/api"}, statuses[1].Servers)
}

func TestCheckCommand(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	t.Setenv("MCPHUB_GLOBAL_CONFIG", "")
	t.Setenv("MCPHUB_PROJECT_ROOT", "")

	global := filepath.Join(dir, "mcp_settings.json")
	writeFile(t, global, `{"mcpServers":{"github":{"command":"gh","env":{"T":"${keyring:github-token}"}}}}`)
	settings := filepath.Join(dir, "settings.yaml")
	writeFile(t, settings, "global_config: "+global+"\nproject_root: "+filepath.Join(dir, "none")+"\n")
	shared.SetConfigPathForTest(settings)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })

	out, err := execute(t, "", "check")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
	assert.Contains(t, out, "github-token")
	assert.Contains(t, out, "missing")

	require.NoError(t, keyring.Set(mcp.KeyringService, "github-token", "secret"))
	out, err = execute(t, "", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "global/github")
}

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"set", "get", "delete", "check"}, names)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
