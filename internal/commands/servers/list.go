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

package servers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/mcphub/internal/cli/format"
	"github.com/tombee/mcphub/internal/commands/shared"
	"github.com/tombee/mcphub/internal/mcp"
)

// ListResponse is the JSON output of the list command.
type ListResponse struct {
	shared.JSONResponse
	Enabled bool                   `json:"enabled"`
	Servers []mcp.ServerDescriptor `json:"servers"`
}

func newListCommand(d deps) *cobra.Command {
	var (
		active    bool
		showTools bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Connect to every configured MCP server and list them",
		Long: `List starts every server declared in the global and project MCP settings,
waits for each handshake to finish and prints the resulting state.

Servers are sorted the way the host shows them: project servers first, then
global, each in declaration order. A global server with the same name as a
project server is shown as a placeholder.

Exits with code 3 when an enabled server failed to connect.

See also: mcphub validate, mcphub serve`,
		Example: `  # Example 1: List configured servers
  mcphub list

  # Example 2: Only the servers offered to the model, with their tools
  mcphub list --active --tools

  # Example 3: Extract connected server names for scripting
  mcphub list --json | jq -r '.servers[] | select(.status=="connected") | .name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, d, active, showTools, timeout)
		},
	}

	cmd.Flags().BoolVar(&active, "active", false, "Only list enabled servers offered to the model")
	cmd.Flags().BoolVar(&showTools, "tools", false, "Show the tools of each server")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultConnectTimeout, "Maximum time to wait for servers to connect")

	return cmd
}

func runList(cmd *cobra.Command, d deps, active, showTools bool, timeout time.Duration) error {
	hub, rt, err := d.startHub(cmd, timeout)
	if err != nil {
		return err
	}
	defer hub.Close()

	servers := hub.AllServers()
	if active {
		servers = hub.Servers()
	}
	failed := countFailed(servers)
	out := cmd.OutOrStdout()

	if shared.GetJSON() {
		data, err := json.Marshal(ListResponse{
			JSONResponse: shared.NewJSONResponse("list", failed == 0),
			Enabled:      hub.Enabled(),
			Servers:      servers,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal server list: %w", err)
		}
		rendered, err := format.JSON(string(data), format.IsTTY())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, rendered)
	} else {
		printServers(out, rt, hub.Enabled(), servers, showTools)
	}

	if failed > 0 {
		return shared.NewConnectionError(fmt.Sprintf("%d server(s) failed to connect", failed), nil)
	}
	return nil
}

// countFailed counts enabled servers that ended disconnected with an error.
func countFailed(servers []mcp.ServerDescriptor) int {
	n := 0
	for _, s := range servers {
		if !s.Disabled && s.Status == mcp.StatusDisconnected && s.Error != "" {
			n++
		}
	}
	return n
}

func printServers(w io.Writer, rt *shared.Runtime, enabled bool, servers []mcp.ServerDescriptor, showTools bool) {
	if !enabled {
		fmt.Fprintln(w, shared.RenderWarn("MCP is disabled; servers are not connected."))
		fmt.Fprintln(w)
	}

	if len(servers) == 0 {
		fmt.Fprintln(w, "No MCP servers configured.")
		fmt.Fprintln(w, "\nTo add a server, edit:")
		fmt.Fprintf(w, "  %s\n", rt.Config.GlobalConfig)
		if rt.Config.ProjectRoot != "" {
			fmt.Fprintf(w, "  %s/%s/%s\n", rt.Config.ProjectRoot, mcp.ProjectConfigDir, mcp.ProjectConfigFile)
		}
		return
	}

	fmt.Fprintf(w, "%-24s %-8s %-16s %-14s %-6s %-9s %s\n", "NAME", "SOURCE", "TYPE", "STATUS", "TOOLS", "RESOURCES", "ERROR")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, s := range servers {
		fmt.Fprintf(w, "%-24s %-8s %-16s %s %-6d %-9d %s\n",
			truncate(s.Name, 24),
			s.Source,
			s.Type,
			shared.RenderServerStatus(s, 14),
			len(s.Tools),
			len(s.Resources),
			truncate(s.Error, 60),
		)
		if showTools {
			for _, tool := range s.Tools {
				fmt.Fprintf(w, "    %s\n", toolLine(tool))
			}
		}
	}
}

func toolLine(tool mcp.Tool) string {
	var flags []string
	if tool.AlwaysAllow {
		flags = append(flags, "always-allow")
	}
	if !tool.EnabledForPrompt {
		flags = append(flags, "disabled")
	}
	line := tool.Name
	if len(flags) > 0 {
		line += " " + shared.Muted.Render("["+strings.Join(flags, ", ")+"]")
	}
	if tool.Description != "" {
		line += "  " + shared.Muted.Render(truncate(tool.Description, 70))
	}
	return line
}
