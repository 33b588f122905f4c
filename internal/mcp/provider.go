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

import "context"

// Session is an initialized protocol session with one server.
// This interface enables dependency injection and testing with fake transports.
type Session interface {
	// ListTools retrieves the tools advertised by the server.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// ListResources retrieves the resources advertised by the server.
	ListResources(ctx context.Context) ([]Resource, error)

	// ListResourceTemplates retrieves the resource templates advertised by the server.
	ListResourceTemplates(ctx context.Context) ([]ResourceTemplate, error)

	// CallTool executes a tool with the given arguments.
	CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error)

	// ReadResource reads a resource by URI.
	ReadResource(ctx context.Context, uri string) (*ResourceReadResponse, error)

	// Close tears down the transport. It must be safe to call more than once.
	Close() error
}

// SessionHooks receive transport events. Hooks may be invoked from any
// goroutine, including after Close.
type SessionHooks struct {
	// OnStderr receives each stderr line of a stdio server.
	OnStderr func(line string)

	// OnError receives transport failures.
	OnError func(err error)

	// OnClose is called when the transport ends.
	OnClose func()
}

// DialRequest describes one connection attempt.
type DialRequest struct {
	Name   string
	Source Source
	Config *ServerConfig
	Hooks  SessionHooks
}

// Dialer builds a transport for a config and completes the protocol
// handshake. The context bounds the handshake only.
type Dialer interface {
	Dial(ctx context.Context, req DialRequest) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, req DialRequest) (Session, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, req DialRequest) (Session, error) {
	return f(ctx, req)
}

// Host is the user-facing surface that receives state pushes and messages.
type Host interface {
	// PostServers receives full snapshots one at a time, newest last. It
	// must not call hub operations that change connections.
	PostServers(servers []ServerDescriptor)
	ShowInfo(message string)
	ShowError(message string)
}

// HostAccessor returns the current host, or nil when the host is gone.
type HostAccessor func() Host
