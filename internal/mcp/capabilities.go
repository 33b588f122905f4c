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
	"context"
	"encoding/json"
	"sync"
	"time"
)

// toolPermissions are the per-tool lists stored on a server entry.
type toolPermissions struct {
	AlwaysAllow   []string `json:"alwaysAllow"`
	DisabledTools []string `json:"disabledTools"`
}

// fetchCapabilities lists tools, resources and resource templates. The
// queries run side by side, each with its own deadline. A failed query
// leaves its list empty and never fails the connection.
func (h *Hub) fetchCapabilities(ctx context.Context, conn *Connection, session Session) {
	h.mu.Lock()
	name, source, cfg := conn.name, conn.source, conn.config
	h.mu.Unlock()

	timeout := cfg.TimeoutDuration()
	var (
		wg        sync.WaitGroup
		defs      []ToolDefinition
		resources []Resource
		templates []ResourceTemplate
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		var err error
		if defs, err = listWithin(ctx, timeout, session.ListTools); err != nil {
			h.logger.Warn("failed to list tools", "server", name, "source", string(source), "error", err)
			defs = nil
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if resources, err = listWithin(ctx, timeout, session.ListResources); err != nil {
			h.logger.Debug("failed to list resources", "server", name, "source", string(source), "error", err)
			resources = nil
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if templates, err = listWithin(ctx, timeout, session.ListResourceTemplates); err != nil {
			h.logger.Debug("failed to list resource templates", "server", name, "source", string(source), "error", err)
			templates = nil
		}
	}()
	wg.Wait()

	perms := h.readToolPermissions(name, source, cfg)
	tools := annotateTools(defs, perms)

	h.mu.Lock()
	defer h.mu.Unlock()
	if conn.session != session {
		return
	}
	conn.tools = tools
	conn.resources = resources
	conn.templates = templates
}

func listWithin[T any](ctx context.Context, timeout time.Duration, list func(context.Context) ([]T, error)) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return list(ctx)
}

// readToolPermissions reads the permission lists from the file on disk so
// they reflect edits made since the connection was configured. It falls
// back to the in-memory config when the file cannot be read.
func (h *Hub) readToolPermissions(name string, source Source, cfg *ServerConfig) toolPermissions {
	fallback := toolPermissions{AlwaysAllow: cfg.AlwaysAllow, DisabledTools: cfg.DisabledTools}

	doc, err := h.store.Read(source)
	if err != nil {
		return fallback
	}
	raw, ok := doc.Server(name)
	if !ok {
		return fallback
	}
	var perms toolPermissions
	if err := json.Unmarshal(raw, &perms); err != nil {
		return fallback
	}
	return perms
}

func annotateTools(defs []ToolDefinition, perms toolPermissions) []Tool {
	cfg := ServerConfig{AlwaysAllow: perms.AlwaysAllow, DisabledTools: perms.DisabledTools}
	tools := make([]Tool, len(defs))
	for i, def := range defs {
		tools[i] = Tool{
			ToolDefinition:   def,
			AlwaysAllow:      cfg.IsToolAlwaysAllowed(def.Name),
			EnabledForPrompt: cfg.IsToolEnabledForPrompt(def.Name),
		}
	}
	return tools
}

// reannotateLocked refreshes the permission flags of conn's tools from its config.
func (c *Connection) reannotateLocked() {
	for i := range c.tools {
		c.tools[i].AlwaysAllow = c.config.IsToolAlwaysAllowed(c.tools[i].Name)
		c.tools[i].EnabledForPrompt = c.config.IsToolEnabledForPrompt(c.tools[i].Name)
	}
}
