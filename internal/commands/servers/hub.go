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

// Package servers implements the commands that connect to the configured
// MCP servers: list, call and read.
package servers

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/mcphub/internal/commands/shared"
	"github.com/tombee/mcphub/internal/mcp"
)

// defaultConnectTimeout bounds how long a command waits for every server to
// finish its handshake.
const defaultConnectTimeout = 60 * time.Second

// deps carries test seams. The zero value uses the real mcp-go dialer.
type deps struct {
	dialer mcp.Dialer
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return newListCommand(deps{})
}

// NewCallCommand creates the call command.
func NewCallCommand() *cobra.Command {
	return newCallCommand(deps{})
}

// NewReadCommand creates the read command.
func NewReadCommand() *cobra.Command {
	return newReadCommand(deps{})
}

// startHub loads the settings and connects every configured server. The
// caller closes the hub, which also stops any stdio subprocesses.
func (d deps) startHub(cmd *cobra.Command, timeout time.Duration) (*mcp.Hub, *shared.Runtime, error) {
	rt, err := shared.LoadRuntime()
	if err != nil {
		return nil, nil, err
	}

	host := shared.NewConsoleHost(cmd.ErrOrStderr(), shared.GetQuiet() || shared.GetJSON())
	hub, err := rt.NewHub(shared.HubOptions{
		Host:   host.Accessor(),
		Dialer: d.dialer,
	})
	if err != nil {
		return nil, nil, shared.NewFailedError("failed to create MCP hub", err)
	}

	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	if err := hub.Initialize(ctx); err != nil {
		hub.Close()
		return nil, nil, shared.NewFailedError("failed to start MCP hub", err)
	}
	return hub, rt, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
