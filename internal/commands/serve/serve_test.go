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

package serve

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/mcphub/internal/commands/shared"
	"github.com/tombee/mcphub/internal/config"
	"github.com/tombee/mcphub/internal/hostapi"
	"github.com/tombee/mcphub/internal/mcp"
	"github.com/tombee/mcphub/internal/mcp/mcptest"
)

func setup(t *testing.T) *shared.Runtime {
	t.Helper()
	dir := t.TempDir()
	global := filepath.Join(dir, mcp.GlobalConfigFile)
	require.NoError(t, os.WriteFile(global, []byte(`{"mcpServers":{"files":{"command":"mcp-files"}}}`), 0o600))

	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("MCPHUB_GLOBAL_CONFIG", global)
	t.Setenv("MCPHUB_PROJECT_ROOT", "")
	t.Setenv("MCPHUB_API_ADDR", "")
	t.Setenv("MCPHUB_ENABLED", "")
	t.Setenv("LOG_LEVEL", "error")
	shared.SetConfigPathForTest(filepath.Join(dir, "settings.yaml"))
	t.Cleanup(func() { shared.SetConfigPathForTest("") })

	rt, err := shared.LoadRuntime()
	require.NoError(t, err)
	return rt
}

func TestServe(t *testing.T) {
	rt := setup(t)
	dialer := mcptest.NewDialer()
	dialer.SetTools("files", mcp.ToolDefinition{Name: "read_file"})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, rt, dialer, ln) }()

	var list hostapi.ServerListResponse
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/v1/servers")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && json.Unmarshal(data, &list) == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.Len(t, list.Servers, 1)
	assert.Equal(t, mcp.StatusConnected, list.Servers[0].Status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	assert.True(t, dialer.Last("files").Closed())
}

func TestServe_PersistsEnabledToggle(t *testing.T) {
	rt := setup(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- serve(ctx, rt, mcptest.NewDialer(), ln) }()

	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodPut, base+"/v1/mcp/enabled", strings.NewReader(`{"enabled":false}`))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	saved, err := config.ReadSettings(rt.SettingsPath)
	require.NoError(t, err)
	assert.False(t, saved.MCPEnabled)

	cancel()
	<-done
}

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()
	assert.Equal(t, "serve", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("addr"))
}
