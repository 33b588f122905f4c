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

// Package mcptest provides in-memory transports for testing code built on
// the mcp hub.
package mcptest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tombee/mcphub/internal/mcp"
)

// ListQuery names one of the capability queries a session answers.
type ListQuery string

const (
	QueryTools     ListQuery = "tools/list"
	QueryResources ListQuery = "resources/list"
	QueryTemplates ListQuery = "resources/templates/list"
)

// listFault is how a session answers a capability query: with err, or by
// blocking until the caller's context ends.
type listFault struct {
	err   error
	block bool
}

// Dialer implements mcp.Dialer without starting processes or opening sockets.
type Dialer struct {
	mu        sync.Mutex
	tools     map[string][]mcp.ToolDefinition
	resources map[string][]mcp.Resource
	templates map[string][]mcp.ResourceTemplate
	faults    map[string]map[ListQuery]listFault
	failures  map[string]error
	sessions  map[string][]*Session
	calls     map[string]func(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error)
	delay     time.Duration
}

// NewDialer creates a fake dialer. Every server connects unless told otherwise.
func NewDialer() *Dialer {
	return &Dialer{
		tools:     make(map[string][]mcp.ToolDefinition),
		resources: make(map[string][]mcp.Resource),
		templates: make(map[string][]mcp.ResourceTemplate),
		faults:    make(map[string]map[ListQuery]listFault),
		failures:  make(map[string]error),
		sessions:  make(map[string][]*Session),
		calls:     make(map[string]func(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error)),
	}
}

// SetCallFunc sets the tool call handler of future sessions for server name.
func (d *Dialer) SetCallFunc(name string, fn func(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[name] = fn
}

// SetTools sets the tools advertised by sessions for server name.
func (d *Dialer) SetTools(name string, tools ...mcp.ToolDefinition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tools[name] = tools
}

// SetResources sets the resources advertised by sessions for server name.
func (d *Dialer) SetResources(name string, resources ...mcp.Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resources[name] = resources
}

// SetTemplates sets the resource templates advertised by sessions for server name.
func (d *Dialer) SetTemplates(name string, templates ...mcp.ResourceTemplate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.templates[name] = templates
}

// SetListError makes query fail with err on future sessions for server
// name. A nil err clears it.
func (d *Dialer) SetListError(name string, query ListQuery, err error) {
	d.setFault(name, query, listFault{err: err})
}

// BlockList makes query block until its context ends on future sessions
// for server name.
func (d *Dialer) BlockList(name string, query ListQuery) {
	d.setFault(name, query, listFault{block: true})
}

func (d *Dialer) setFault(name string, query ListQuery, fault listFault) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.faults[name] == nil {
		d.faults[name] = make(map[ListQuery]listFault)
	}
	if fault.err == nil && !fault.block {
		delete(d.faults[name], query)
		return
	}
	d.faults[name][query] = fault
}

// FailWith makes dials for server name fail with err. A nil err clears it.
func (d *Dialer) FailWith(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, name)
		return
	}
	d.failures[name] = err
}

// SetDelay makes every dial wait before completing.
func (d *Dialer) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// Dial implements mcp.Dialer.
func (d *Dialer) Dial(ctx context.Context, req mcp.DialRequest) (mcp.Session, error) {
	d.mu.Lock()
	delay := d.delay
	err := d.failures[req.Name]
	s := &Session{
		Name:      req.Name,
		Source:    req.Source,
		Config:    req.Config,
		hooks:     req.Hooks,
		tools:     d.tools[req.Name],
		resources: d.resources[req.Name],
		templates: d.templates[req.Name],
		faults:    make(map[ListQuery]listFault),
		callFunc:  d.calls[req.Name],
	}
	for q, f := range d.faults[req.Name] {
		s.faults[q] = f
	}
	if err == nil {
		d.sessions[req.Name] = append(d.sessions[req.Name], s)
	}
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Sessions returns every session opened for server name, oldest first.
func (d *Dialer) Sessions(name string) []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Session, len(d.sessions[name]))
	copy(out, d.sessions[name])
	return out
}

// Last returns the newest session for server name, or nil.
func (d *Dialer) Last(name string) *Session {
	sessions := d.Sessions(name)
	if len(sessions) == 0 {
		return nil
	}
	return sessions[len(sessions)-1]
}

// Session is an in-memory mcp.Session.
type Session struct {
	Name   string
	Source mcp.Source
	Config *mcp.ServerConfig

	mu        sync.Mutex
	hooks     mcp.SessionHooks
	tools     []mcp.ToolDefinition
	resources []mcp.Resource
	templates []mcp.ResourceTemplate
	faults    map[ListQuery]listFault
	callFunc  func(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error)
	closed    bool
}

func (s *Session) fault(ctx context.Context, query ListQuery) error {
	s.mu.Lock()
	f := s.faults[query]
	s.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

// ListTools returns the configured tools.
func (s *Session) ListTools(ctx context.Context) ([]mcp.ToolDefinition, error) {
	if err := s.fault(ctx, QueryTools); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mcp.ToolDefinition, len(s.tools))
	copy(out, s.tools)
	return out, nil
}

// ListResources returns the configured resources.
func (s *Session) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	if err := s.fault(ctx, QueryResources); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mcp.Resource, len(s.resources))
	copy(out, s.resources)
	return out, nil
}

// ListResourceTemplates returns the configured templates.
func (s *Session) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	if err := s.fault(ctx, QueryTemplates); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mcp.ResourceTemplate, len(s.templates))
	copy(out, s.templates)
	return out, nil
}

// SetCallFunc overrides CallTool.
func (s *Session) SetCallFunc(fn func(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callFunc = fn
}

// CallTool echoes the tool name unless a call function is set.
func (s *Session) CallTool(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error) {
	s.mu.Lock()
	fn, closed := s.callFunc, s.closed
	s.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("session %s is closed", s.Name)
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return &mcp.ToolCallResponse{
		Content: []mcp.ContentItem{{Type: "text", Text: fmt.Sprintf("Mock response for %s", req.Name)}},
	}, nil
}

// ReadResource returns a text body naming the URI.
func (s *Session) ReadResource(ctx context.Context, uri string) (*mcp.ResourceReadResponse, error) {
	return &mcp.ResourceReadResponse{
		Contents: []mcp.ResourceContent{{URI: uri, MimeType: "text/plain", Text: "contents of " + uri}},
	}, nil
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// EmitStderr delivers a stderr line through the session hooks.
func (s *Session) EmitStderr(line string) {
	if s.hooks.OnStderr != nil {
		s.hooks.OnStderr(line)
	}
}

// EmitError delivers a transport error through the session hooks.
func (s *Session) EmitError(err error) {
	if s.hooks.OnError != nil {
		s.hooks.OnError(err)
	}
}

// EmitClose delivers a transport close through the session hooks.
func (s *Session) EmitClose() {
	if s.hooks.OnClose != nil {
		s.hooks.OnClose()
	}
}

// Host records what the hub pushes to it.
type Host struct {
	mu     sync.Mutex
	posts  [][]mcp.ServerDescriptor
	infos  []string
	errors []string
}

// Accessor returns an mcp.HostAccessor for the host.
func (h *Host) Accessor() mcp.HostAccessor {
	return func() mcp.Host { return h }
}

// PostServers implements mcp.Host.
func (h *Host) PostServers(servers []mcp.ServerDescriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.posts = append(h.posts, servers)
}

// ShowInfo implements mcp.Host.
func (h *Host) ShowInfo(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.infos = append(h.infos, message)
}

// ShowError implements mcp.Host.
func (h *Host) ShowError(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, message)
}

// Errors returns the error messages shown so far.
func (h *Host) Errors() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.errors...)
}

// Infos returns the info messages shown so far.
func (h *Host) Infos() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.infos...)
}

// Posts returns the number of snapshots pushed so far.
func (h *Host) Posts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.posts)
}

// LastPost returns the most recent snapshot pushed, or nil.
func (h *Host) LastPost() []mcp.ServerDescriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.posts) == 0 {
		return nil
	}
	return h.posts[len(h.posts)-1]
}
