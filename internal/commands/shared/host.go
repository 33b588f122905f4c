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
	"fmt"
	"io"
	"sync"

	"github.com/tombee/mcphub/internal/mcp"
)

// ConsoleHost prints hub messages to a writer. Server pushes are ignored;
// commands read descriptors from the hub directly.
type ConsoleHost struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool
}

// NewConsoleHost creates a host writing to w. With quiet set only errors
// are printed.
func NewConsoleHost(w io.Writer, quiet bool) *ConsoleHost {
	return &ConsoleHost{w: w, quiet: quiet}
}

// Accessor returns an mcp.HostAccessor for the host.
func (h *ConsoleHost) Accessor() mcp.HostAccessor {
	return func() mcp.Host { return h }
}

// PostServers implements mcp.Host.
func (h *ConsoleHost) PostServers([]mcp.ServerDescriptor) {}

// ShowInfo implements mcp.Host.
func (h *ConsoleHost) ShowInfo(message string) {
	if h.quiet {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintln(h.w, Muted.Render(message))
}

// ShowError implements mcp.Host.
func (h *ConsoleHost) ShowError(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintln(h.w, RenderWarn(message))
}
