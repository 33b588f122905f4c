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
	"bytes"
	"strings"
	"testing"

	"github.com/tombee/mcphub/internal/mcp"
)

func TestConsoleHost(t *testing.T) {
	var buf bytes.Buffer
	host := NewConsoleHost(&buf, false).Accessor()()

	host.PostServers([]mcp.ServerDescriptor{{Name: "fs"}})
	host.ShowInfo("reconnected")
	host.ShowError("server fs failed")

	out := buf.String()
	if !strings.Contains(out, "reconnected") || !strings.Contains(out, "server fs failed") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(out, "fs\n") {
		t.Errorf("server pushes should not be printed, got %q", out)
	}
}

func TestConsoleHost_Quiet(t *testing.T) {
	var buf bytes.Buffer
	host := NewConsoleHost(&buf, true)

	host.ShowInfo("hidden")
	host.ShowError("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestRenderServerStatus(t *testing.T) {
	tests := []struct {
		name string
		desc mcp.ServerDescriptor
		want string
	}{
		{"connected", mcp.ServerDescriptor{Status: mcp.StatusConnected}, "connected"},
		{"disabled wins", mcp.ServerDescriptor{Status: mcp.StatusDisconnected, Disabled: true}, "disabled"},
		{"disconnected", mcp.ServerDescriptor{Status: mcp.StatusDisconnected}, "disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderServerStatus(tt.desc, 14)
			if !strings.Contains(got, tt.want) {
				t.Errorf("RenderServerStatus() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
