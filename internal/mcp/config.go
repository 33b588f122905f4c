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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// TransportKind is the wire transport used to reach a server.
type TransportKind string

const (
	TransportStdio          TransportKind = "stdio"
	TransportSSE            TransportKind = "sse"
	TransportStreamableHTTP TransportKind = "streamable-http"
)

const (
	// DefaultTimeoutSeconds is applied when a server omits "timeout".
	DefaultTimeoutSeconds = 60
	// MinTimeoutSeconds and MaxTimeoutSeconds bound the "timeout" field.
	MinTimeoutSeconds = 1
	MaxTimeoutSeconds = 3600
)

var (
	stdioFields = []string{"command", "args", "cwd", "env"}
	urlFields   = []string{"url", "headers"}
)

// ServerConfig is one validated entry of the "mcpServers" object.
type ServerConfig struct {
	Type TransportKind `json:"type,omitempty"`

	// stdio
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// sse and streamable-http
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	Disabled      bool     `json:"disabled,omitempty"`
	Timeout       int      `json:"timeout,omitempty"`
	AlwaysAllow   []string `json:"alwaysAllow,omitempty"`
	DisabledTools []string `json:"disabledTools,omitempty"`
	WatchPaths    []string `json:"watchPaths,omitempty"`
}

// TimeoutDuration returns the per-request timeout.
func (c *ServerConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// IsToolAlwaysAllowed reports whether the tool is auto-approved.
func (c *ServerConfig) IsToolAlwaysAllowed(tool string) bool {
	return slices.Contains(c.AlwaysAllow, tool)
}

// IsToolEnabledForPrompt reports whether the tool is offered to the model.
func (c *ServerConfig) IsToolEnabledForPrompt(tool string) bool {
	return !slices.Contains(c.DisabledTools, tool)
}

// Clone returns a deep copy of the config.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Args = slices.Clone(c.Args)
	out.AlwaysAllow = slices.Clone(c.AlwaysAllow)
	out.DisabledTools = slices.Clone(c.DisabledTools)
	out.WatchPaths = slices.Clone(c.WatchPaths)
	out.Env = cloneStringMap(c.Env)
	out.Headers = cloneStringMap(c.Headers)
	return &out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ValidateOptions controls defaults and placeholder expansion during validation.
type ValidateOptions struct {
	// WorkspaceRoots are the open workspace folders; the first one is the
	// default cwd for stdio servers.
	WorkspaceRoots []string

	// Resolver expands ${env:NAME} and ${keyring:NAME} placeholders. Nil
	// leaves values untouched.
	Resolver *VariableResolver
}

// ValidateServerConfig checks one raw server entry, applies defaults and
// expands placeholders. Every failure is an *MCPError with
// ErrorCodeValidation.
func ValidateServerConfig(raw json.RawMessage, name string, opts ValidateOptions) (*ServerConfig, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidServerConfig(name, "server name must not be empty")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrInvalidServerConfig(name, "server configuration must be a JSON object")
	}

	hasStdio := hasAnyField(fields, stdioFields)
	hasURL := hasAnyField(fields, urlFields)

	if hasStdio && hasURL {
		return nil, ErrInvalidServerConfig(name,
			"cannot mix stdio fields (command, args, cwd, env) with URL fields (url, headers)")
	}

	var kind TransportKind
	if v, ok := present(fields, "type"); ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, ErrInvalidServerConfig(name, "field 'type' must be a string")
		}
		kind = TransportKind(s)
	}

	if kind == "" {
		switch {
		case hasURL:
			return nil, ErrInvalidServerConfig(name,
				fmt.Sprintf("servers with a url must set 'type' to '%s' or '%s'", TransportSSE, TransportStreamableHTTP))
		case hasStdio:
			kind = TransportStdio
		}
	}

	if !hasStdio && !hasURL {
		return nil, ErrInvalidServerConfig(name,
			"missing transport fields: provide 'command' for stdio servers or 'url' for sse and streamable-http servers")
	}

	switch kind {
	case TransportStdio:
		if !hasStdio {
			return nil, ErrInvalidServerConfig(name, "type 'stdio' requires 'command'")
		}
	case TransportSSE, TransportStreamableHTTP:
		if !hasURL {
			return nil, ErrInvalidServerConfig(name, fmt.Sprintf("type '%s' requires 'url'", kind))
		}
	default:
		return nil, ErrInvalidServerConfig(name,
			fmt.Sprintf("unknown type %q: expected %s, %s or %s", kind, TransportStdio, TransportSSE, TransportStreamableHTTP))
	}

	cfg := &ServerConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, ErrInvalidServerConfig(name, fieldTypeDetail(err)).WithCause(err)
	}
	cfg.Type = kind

	if _, ok := present(fields, "timeout"); ok {
		if cfg.Timeout < MinTimeoutSeconds || cfg.Timeout > MaxTimeoutSeconds {
			return nil, ErrInvalidServerConfig(name,
				fmt.Sprintf("timeout must be between %d and %d seconds", MinTimeoutSeconds, MaxTimeoutSeconds))
		}
	} else {
		cfg.Timeout = DefaultTimeoutSeconds
	}

	if opts.Resolver != nil {
		if err := opts.Resolver.Expand(cfg); err != nil {
			return nil, ErrInvalidServerConfig(name, err.Error()).WithCause(err)
		}
	}

	switch kind {
	case TransportStdio:
		if strings.TrimSpace(cfg.Command) == "" {
			return nil, ErrInvalidServerConfig(name, "'command' must not be empty")
		}
		if cfg.Cwd == "" && len(opts.WorkspaceRoots) > 0 {
			cfg.Cwd = opts.WorkspaceRoots[0]
		}
	default:
		u, err := url.Parse(cfg.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, ErrInvalidServerConfig(name, fmt.Sprintf("'url' must be an absolute http(s) URL, got %q", cfg.URL))
		}
	}

	return cfg, nil
}

// present returns the field value when it exists and is not JSON null.
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func hasAnyField(fields map[string]json.RawMessage, keys []string) bool {
	for _, k := range keys {
		if _, ok := present(fields, k); ok {
			return true
		}
	}
	return false
}

func fieldTypeDetail(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("field '%s' has the wrong type: expected %s", typeErr.Field, typeErr.Type)
	}
	return err.Error()
}
