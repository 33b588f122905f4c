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

package mcp

import (
	"net/http"
	"slices"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestLaunchCommand(t *testing.T) {
	tests := []struct {
		goos     string
		command  string
		args     []string
		wantCmd  string
		wantArgs []string
	}{
		{"linux", "npx", []string{"-y", "pkg"}, "npx", []string{"-y", "pkg"}},
		{"windows", "npx", []string{"-y", "pkg"}, "cmd.exe", []string{"/c", "npx", "-y", "pkg"}},
		{"windows", "C:\\tools\\server.exe", []string{"--stdio"}, "C:\\tools\\server.exe", []string{"--stdio"}},
		{"windows", "cmd", []string{"/c", "x"}, "cmd", []string{"/c", "x"}},
	}
	for _, tt := range tests {
		cmd, args := launchCommand(tt.goos, tt.command, tt.args)
		if cmd != tt.wantCmd || !slices.Equal(args, tt.wantArgs) {
			t.Errorf("launchCommand(%s, %s, %v) = %s %v, want %s %v",
				tt.goos, tt.command, tt.args, cmd, args, tt.wantCmd, tt.wantArgs)
		}
	}
}

func TestConvertContent(t *testing.T) {
	item, err := convertContent(mcp.NewTextContent("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Type != "text" || item.Text != "hello" {
		t.Errorf("got %+v", item)
	}

	item, err = convertContent(mcp.NewImageContent("aGk=", "image/png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Type != "image" || item.Data != "aGk=" || item.MimeType != "image/png" {
		t.Errorf("got %+v", item)
	}
}

func TestNewClientDialer_Defaults(t *testing.T) {
	d := NewClientDialer(ClientDialerConfig{})
	if d.info.Name != "mcphub" || d.info.Version == "" {
		t.Errorf("client info = %+v", d.info)
	}
	if d.httpClient == nil || d.httpClient == http.DefaultClient {
		t.Error("expected a dedicated HTTP client for remote transports")
	}

	custom := &http.Client{}
	d = NewClientDialer(ClientDialerConfig{HTTPClient: custom})
	if d.httpClient != custom {
		t.Error("expected the configured HTTP client to be used")
	}
}
