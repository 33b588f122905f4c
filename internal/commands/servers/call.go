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
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/mcphub/internal/cli/format"
	"github.com/tombee/mcphub/internal/commands/completion"
	"github.com/tombee/mcphub/internal/commands/shared"
	"github.com/tombee/mcphub/internal/mcp"
)

// CallResponse is the JSON output of the call command.
type CallResponse struct {
	shared.JSONResponse
	Server string                `json:"server"`
	Tool   string                `json:"tool"`
	Result *mcp.ToolCallResponse `json:"result"`
}

func newCallCommand(d deps) *cobra.Command {
	var (
		source   string
		argsJSON string
		pairs    []string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <server> <tool>",
		Short: "Call a tool on an MCP server",
		Long: `Call connects to the configured servers, invokes one tool and prints its
result. Text that parses as JSON is pretty-printed; markdown and JSON are
highlighted when stdout is a terminal.

Arguments are given as a JSON object with --args, as key=value pairs with
--arg, or both. A --arg value that parses as JSON keeps its type.

The per-server timeout from the settings file applies to the call.`,
		Example: `  # Example 1: Call a tool without arguments
  mcphub call time get_current_time

  # Example 2: Pass arguments as JSON
  mcphub call fs read_file --args '{"path": "README.md"}'

  # Example 3: Pass arguments as pairs and pick the global server
  mcphub call github search_issues --source global --arg query=bug --arg limit=5`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completion.CompleteServerNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := parseToolArgs(argsJSON, pairs)
			if err != nil {
				return err
			}
			return runCall(cmd, d, args[0], args[1], source, toolArgs, timeout)
		},
	}

	cmd.Flags().StringVar(&source, "source", mcp.SourceAuto, "Configuration source of the server (auto, global or project)")
	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().StringArrayVar(&pairs, "arg", nil, "Tool argument as key=value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "connect-timeout", defaultConnectTimeout, "Maximum time to wait for servers to connect")
	_ = cmd.RegisterFlagCompletionFunc("source", completion.CompleteSources)

	return cmd
}

// parseToolArgs merges --args and --arg. Pairs win over keys in the JSON object.
func parseToolArgs(argsJSON string, pairs []string) (map[string]any, error) {
	args := make(map[string]any)
	if strings.TrimSpace(argsJSON) != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
			return nil, shared.NewFailedError("--args must be a JSON object", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, shared.NewFailedError(fmt.Sprintf("invalid --arg %q: expected key=value", pair), nil)
		}
		var typed any
		if err := json.Unmarshal([]byte(value), &typed); err == nil {
			args[key] = typed
		} else {
			args[key] = value
		}
	}
	return args, nil
}

func runCall(cmd *cobra.Command, d deps, name, tool, sourceRef string, args map[string]any, timeout time.Duration) error {
	source, err := mcp.ParseSourceRef(sourceRef)
	if err != nil {
		return shared.NewFailedError("invalid --source", err)
	}

	hub, _, err := d.startHub(cmd, timeout)
	if err != nil {
		return err
	}
	defer hub.Close()

	resp, err := hub.CallTool(cmd.Context(), name, source, tool, args)
	if err != nil {
		return shared.NewConnectionError(fmt.Sprintf("calling %s on %s failed", tool, name), err)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		if err := shared.EmitJSON(out, CallResponse{
			JSONResponse: shared.NewJSONResponse("call", !resp.IsError),
			Server:       name,
			Tool:         tool,
			Result:       resp,
		}); err != nil {
			return err
		}
	} else {
		rendered, err := format.ToolResult(resp, format.IsTTY())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, rendered)
	}

	if resp.IsError {
		return shared.NewFailedError(fmt.Sprintf("tool %s reported an error", tool), nil)
	}
	return nil
}
