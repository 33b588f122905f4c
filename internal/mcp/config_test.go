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
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidateServerConfig(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
		check   func(t *testing.T, cfg *ServerConfig)
	}{
		{
			name: "stdio inferred from command",
			raw:  `{"command": "node", "args": ["server.js"]}`,
			check: func(t *testing.T, cfg *ServerConfig) {
				if cfg.Type != TransportStdio {
					t.Errorf("Type = %q, want stdio", cfg.Type)
				}
				if cfg.Timeout != DefaultTimeoutSeconds {
					t.Errorf("Timeout = %d, want %d", cfg.Timeout, DefaultTimeoutSeconds)
				}
				if cfg.Cwd != "/work/a" {
					t.Errorf("Cwd = %q, want first workspace root", cfg.Cwd)
				}
			},
		},
		{
			name: "explicit cwd kept",
			raw:  `{"command": "node", "cwd": "/srv"}`,
			check: func(t *testing.T, cfg *ServerConfig) {
				if cfg.Cwd != "/srv" {
					t.Errorf("Cwd = %q, want /srv", cfg.Cwd)
				}
			},
		},
		{
			name: "sse with headers",
			raw:  `{"type": "sse", "url": "https://example.com/sse", "headers": {"Authorization": "Bearer x"}, "timeout": 30}`,
			check: func(t *testing.T, cfg *ServerConfig) {
				if cfg.Type != TransportSSE || cfg.Timeout != 30 {
					t.Errorf("got type %q timeout %d", cfg.Type, cfg.Timeout)
				}
				if cfg.Headers["Authorization"] != "Bearer x" {
					t.Errorf("headers not decoded: %v", cfg.Headers)
				}
			},
		},
		{
			name: "streamable http",
			raw:  `{"type": "streamable-http", "url": "http://localhost:8080/mcp"}`,
			check: func(t *testing.T, cfg *ServerConfig) {
				if cfg.Type != TransportStreamableHTTP {
					t.Errorf("Type = %q", cfg.Type)
				}
			},
		},
		{
			name: "permission lists decoded",
			raw:  `{"command": "x", "alwaysAllow": ["read"], "disabledTools": ["write"], "disabled": true}`,
			check: func(t *testing.T, cfg *ServerConfig) {
				if !cfg.IsToolAlwaysAllowed("read") || cfg.IsToolAlwaysAllowed("write") {
					t.Errorf("alwaysAllow = %v", cfg.AlwaysAllow)
				}
				if cfg.IsToolEnabledForPrompt("write") || !cfg.IsToolEnabledForPrompt("read") {
					t.Errorf("disabledTools = %v", cfg.DisabledTools)
				}
				if !cfg.Disabled {
					t.Error("Disabled = false")
				}
			},
		},
		{
			name:    "mixed fields",
			raw:     `{"command": "node", "url": "https://example.com"}`,
			wantErr: "cannot mix",
		},
		{
			name:    "url without type",
			raw:     `{"url": "https://example.com/sse"}`,
			wantErr: "streamable-http",
		},
		{
			name:    "no transport fields",
			raw:     `{"timeout": 10}`,
			wantErr: "missing transport fields",
		},
		{
			name:    "stdio type with url",
			raw:     `{"type": "stdio", "url": "https://example.com"}`,
			wantErr: "requires 'command'",
		},
		{
			name:    "sse type with command",
			raw:     `{"type": "sse", "command": "node"}`,
			wantErr: "requires 'url'",
		},
		{
			name:    "unknown type",
			raw:     `{"type": "websocket", "url": "wss://example.com"}`,
			wantErr: "unknown type",
		},
		{
			name:    "timeout too small",
			raw:     `{"command": "node", "timeout": 0}`,
			wantErr: "timeout must be between",
		},
		{
			name:    "timeout too large",
			raw:     `{"command": "node", "timeout": 3601}`,
			wantErr: "timeout must be between",
		},
		{
			name:    "args wrong type",
			raw:     `{"command": "node", "args": "server.js"}`,
			wantErr: "args",
		},
		{
			name:    "args without command",
			raw:     `{"args": ["x"]}`,
			wantErr: "'command' must not be empty",
		},
		{
			name:    "relative url",
			raw:     `{"type": "sse", "url": "/sse"}`,
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "not an object",
			raw:     `["node"]`,
			wantErr: "JSON object",
		},
	}

	opts := ValidateOptions{WorkspaceRoots: []string{"/work/a", "/work/b"}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ValidateServerConfig(json.RawMessage(tt.raw), "srv", opts)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got config %+v", tt.wantErr, cfg)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
				}
				if ErrorCode(err) != ErrorCodeValidation {
					t.Errorf("error code = %s, want %s", ErrorCode(err), ErrorCodeValidation)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestValidateServerConfig_NullFieldsIgnored(t *testing.T) {
	cfg, err := ValidateServerConfig(json.RawMessage(`{"command": "node", "url": null}`), "srv", ValidateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Type != TransportStdio {
		t.Errorf("Type = %q, want stdio", cfg.Type)
	}
}

func TestValidateServerConfig_Placeholders(t *testing.T) {
	resolver := &VariableResolver{
		LookupEnv: func(name string) (string, bool) {
			if name == "API_HOST" {
				return "api.internal", true
			}
			return "", false
		},
		LookupSecret: func(name string) (string, error) {
			if name == "token" {
				return "s3cret", nil
			}
			return "", errors.New("not found")
		},
	}

	raw := json.RawMessage(`{"type": "sse", "url": "https://${env:API_HOST}/sse", "headers": {"Authorization": "Bearer ${keyring:token}"}}`)
	cfg, err := ValidateServerConfig(raw, "srv", ValidateOptions{Resolver: resolver})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.URL != "https://api.internal/sse" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.Headers["Authorization"] != "Bearer s3cret" {
		t.Errorf("Authorization = %q", cfg.Headers["Authorization"])
	}

	raw = json.RawMessage(`{"command": "node", "env": {"KEY": "${keyring:missing}"}}`)
	if _, err := ValidateServerConfig(raw, "srv", ValidateOptions{Resolver: resolver}); err == nil {
		t.Fatal("expected error for missing keyring secret")
	}
}

func TestServerConfig_TimeoutDuration(t *testing.T) {
	cfg := &ServerConfig{}
	if got := cfg.TimeoutDuration().Seconds(); got != DefaultTimeoutSeconds {
		t.Errorf("default timeout = %v", got)
	}
	cfg.Timeout = 5
	if got := cfg.TimeoutDuration().Seconds(); got != 5 {
		t.Errorf("timeout = %v, want 5", got)
	}
}

func TestParseSource(t *testing.T) {
	for _, s := range []string{"global", "project"} {
		if _, err := ParseSource(s); err != nil {
			t.Errorf("ParseSource(%q) error: %v", s, err)
		}
	}
	if _, err := ParseSource("workspace"); err == nil {
		t.Error("expected error for unknown source")
	}
}
