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
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/mcphub/internal/cli/format"
	"github.com/tombee/mcphub/internal/commands/completion"
	"github.com/tombee/mcphub/internal/commands/shared"
	"github.com/tombee/mcphub/internal/mcp"
)

// ReadResponse is the JSON output of the read command.
type ReadResponse struct {
	shared.JSONResponse
	Server string                    `json:"server"`
	URI    string                    `json:"uri"`
	Result *mcp.ResourceReadResponse `json:"result"`
}

func newReadCommand(d deps) *cobra.Command {
	var (
		source  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "read <server> <uri>",
		Short: "Read a resource from an MCP server",
		Long: `Read connects to the configured servers and prints one resource. JSON and
markdown resources are highlighted when stdout is a terminal; binary
resources are summarized.`,
		Example: `  # Example 1: Read a file resource
  mcphub read fs file:///etc/hosts

  # Example 2: Get the raw response as JSON
  mcphub read docs docs://index --json`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completion.CompleteServerNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, d, args[0], args[1], source, timeout)
		},
	}

	cmd.Flags().StringVar(&source, "source", mcp.SourceAuto, "Configuration source of the server (auto, global or project)")
	cmd.Flags().DurationVar(&timeout, "connect-timeout", defaultConnectTimeout, "Maximum time to wait for servers to connect")
	_ = cmd.RegisterFlagCompletionFunc("source", completion.CompleteSources)

	return cmd
}

func runRead(cmd *cobra.Command, d deps, name, uri, sourceRef string, timeout time.Duration) error {
	source, err := mcp.ParseSourceRef(sourceRef)
	if err != nil {
		return shared.NewFailedError("invalid --source", err)
	}

	hub, _, err := d.startHub(cmd, timeout)
	if err != nil {
		return err
	}
	defer hub.Close()

	resp, err := hub.ReadResource(cmd.Context(), name, source, uri)
	if err != nil {
		return shared.NewConnectionError(fmt.Sprintf("reading %s from %s failed", uri, name), err)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(out, ReadResponse{
			JSONResponse: shared.NewJSONResponse("read", true),
			Server:       name,
			URI:          uri,
			Result:       resp,
		})
	}

	rendered, err := format.ResourceContents(resp, format.IsTTY())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, rendered)
	return nil
}
