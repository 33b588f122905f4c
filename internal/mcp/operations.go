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
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// writeDocument runs a read-modify-write cycle on the file for source while
// the watcher ignores the resulting events.
func (h *Hub) writeDocument(source Source, mutate func(doc *Document) error) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	doc, err := h.store.Read(source)
	if err != nil {
		return err
	}
	if err := mutate(doc); err != nil {
		return err
	}

	h.suppressor.Begin()
	defer h.suppressor.End()
	return h.store.Write(source, doc)
}

// setServerField writes one key of a server entry and returns the new raw entry.
func (h *Hub) setServerField(source Source, name, key string, value any) (json.RawMessage, error) {
	var updated json.RawMessage
	err := h.writeDocument(source, func(doc *Document) error {
		raw, err := doc.SetServerField(name, key, value)
		updated = raw
		return err
	})
	return updated, err
}

// resolveSource maps an empty source to the source of the entry a lookup by
// name picks, so a mutation always addresses one file and one connection.
func (h *Hub) resolveSource(name string, source Source) (Source, error) {
	if source != "" {
		return source, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", ErrHubClosed
	}
	conn := h.registry.Find(name, "")
	if conn == nil {
		return "", ErrServerNotFound(name, source)
	}
	return conn.source, nil
}

func (h *Hub) lookup(name string, source Source) (*Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	conn := h.registry.Find(name, source)
	if conn == nil {
		return nil, ErrServerNotFound(name, source)
	}
	return conn, nil
}

// ToggleServerDisabled persists the disabled flag and applies it at once:
// disabling closes the transport and leaves a placeholder, enabling
// connects.
func (h *Hub) ToggleServerDisabled(ctx context.Context, name string, source Source, disabled bool) error {
	source, err := h.resolveSource(name, source)
	if err != nil {
		return err
	}

	lock := h.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	conn, err := h.lookup(name, source)
	if err != nil {
		return err
	}

	raw, err := h.setServerField(source, name, "disabled", disabled)
	if err != nil {
		h.events.Error(fmt.Sprintf("Failed to update server %s: %s", name, errorMessage(err)))
		return err
	}
	cfg, err := ValidateServerConfig(raw, name, h.validate)
	if err != nil {
		h.events.Error(errorMessage(err))
		return err
	}

	if err := h.teardown(conn); err != nil {
		h.logger.Warn("failed to close server", "server", name, "error", err)
	}
	err = h.startOrPlaceholder(ctx, name, source, cfg, raw)
	h.notifyServersChanged()
	if err != nil {
		h.events.Error(fmt.Sprintf("Failed to connect to %s: %s", name, errorMessage(err)))
		return err
	}
	return nil
}

// UpdateServerTimeout persists a new timeout. The live connection keeps
// running and uses the new value for later requests.
func (h *Hub) UpdateServerTimeout(ctx context.Context, name string, source Source, seconds int) error {
	if seconds < MinTimeoutSeconds || seconds > MaxTimeoutSeconds {
		return ErrInvalidServerConfig(name,
			fmt.Sprintf("timeout must be between %d and %d seconds", MinTimeoutSeconds, MaxTimeoutSeconds))
	}
	source, err := h.resolveSource(name, source)
	if err != nil {
		return err
	}

	lock := h.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	conn, err := h.lookup(name, source)
	if err != nil {
		return err
	}
	raw, err := h.setServerField(source, name, "timeout", seconds)
	if err != nil {
		h.events.Error(fmt.Sprintf("Failed to update server %s timeout: %s", name, errorMessage(err)))
		return err
	}

	h.mu.Lock()
	cfg := conn.config.Clone()
	cfg.Timeout = seconds
	conn.config = cfg
	conn.setRaw(raw)
	h.mu.Unlock()

	h.notifyServersChanged()
	return nil
}

// DeleteServer removes the entry from its file and tears the connection down.
func (h *Hub) DeleteServer(ctx context.Context, name string, source Source) error {
	source, err := h.resolveSource(name, source)
	if err != nil {
		return err
	}

	lock := h.sourceLock(source)
	lock.Lock()

	conn, err := h.lookup(name, source)
	if err != nil {
		lock.Unlock()
		return err
	}

	err = h.writeDocument(source, func(doc *Document) error {
		if !doc.DeleteServer(name) {
			return ErrServerNotFound(name, source)
		}
		return nil
	})
	if err != nil {
		lock.Unlock()
		h.events.Error(fmt.Sprintf("Failed to delete MCP server %s: %s", name, errorMessage(err)))
		return err
	}

	h.mu.Lock()
	h.order[source] = slices.DeleteFunc(slices.Clone(h.order[source]), func(n string) bool { return n == name })
	if source == SourceProject {
		delete(h.shadows, name)
	}
	h.mu.Unlock()

	if err := h.teardown(conn); err != nil {
		h.logger.Warn("failed to close deleted server", "server", name, "error", err)
	}
	lock.Unlock()

	if source == SourceProject {
		h.globalMu.Lock()
		h.refreshShadowedLocked(ctx)
		h.globalMu.Unlock()
	}

	h.events.Info(fmt.Sprintf("Deleted MCP server %s", name))
	h.notifyServersChanged()
	return nil
}

// ToggleToolAlwaysAllow adds or removes tool from the server's alwaysAllow list.
func (h *Hub) ToggleToolAlwaysAllow(ctx context.Context, name string, source Source, tool string, allow bool) error {
	return h.updateToolList(name, source, "alwaysAllow", tool, allow, func(c *ServerConfig) *[]string {
		return &c.AlwaysAllow
	})
}

// ToggleToolEnabledForPrompt removes tool from, or adds it to, the
// server's disabledTools list.
func (h *Hub) ToggleToolEnabledForPrompt(ctx context.Context, name string, source Source, tool string, enabled bool) error {
	return h.updateToolList(name, source, "disabledTools", tool, !enabled, func(c *ServerConfig) *[]string {
		return &c.DisabledTools
	})
}

func (h *Hub) updateToolList(name string, source Source, key, tool string, include bool, field func(*ServerConfig) *[]string) error {
	source, err := h.resolveSource(name, source)
	if err != nil {
		return err
	}

	lock := h.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	conn, err := h.lookup(name, source)
	if err != nil {
		return err
	}

	var list []string
	var raw json.RawMessage
	err = h.writeDocument(source, func(doc *Document) error {
		entry, ok := doc.Server(name)
		if !ok {
			return ErrServerNotFound(name, source)
		}
		var current map[string]json.RawMessage
		if err := json.Unmarshal(entry, &current); err != nil {
			return fmt.Errorf("decode server %q: %w", name, err)
		}
		if v, ok := current[key]; ok {
			if err := json.Unmarshal(v, &list); err != nil {
				return ErrInvalidServerConfig(name, fmt.Sprintf("'%s' must be a list of tool names", key))
			}
		}
		list = toggleName(list, tool, include)
		updated, err := doc.SetServerField(name, key, list)
		raw = updated
		return err
	})
	if err != nil {
		h.events.Error(fmt.Sprintf("Failed to update tool %s on %s: %s", tool, name, errorMessage(err)))
		return err
	}

	h.mu.Lock()
	cfg := conn.config.Clone()
	*field(cfg) = list
	conn.config = cfg
	conn.setRaw(raw)
	conn.reannotateLocked()
	h.mu.Unlock()

	h.notifyServersChanged()
	return nil
}

func toggleName(list []string, name string, include bool) []string {
	has := slices.Contains(list, name)
	switch {
	case include && !has:
		return append(list, name)
	case !include && has:
		return slices.DeleteFunc(list, func(s string) bool { return s == name })
	}
	if list == nil {
		return []string{}
	}
	return list
}

// RestartServer closes the connection and reconnects with its current config.
func (h *Hub) RestartServer(ctx context.Context, name string, source Source) error {
	source, err := h.resolveSource(name, source)
	if err != nil {
		return err
	}

	lock := h.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	conn, err := h.lookup(name, source)
	if err != nil {
		return err
	}

	h.mu.Lock()
	cfg, raw := conn.config, conn.raw
	h.mu.Unlock()

	h.events.Info(fmt.Sprintf("Restarting %s MCP server...", name))
	if err := h.teardown(conn); err != nil {
		h.logger.Warn("failed to close server for restart", "server", name, "error", err)
	}

	err = h.startOrPlaceholder(ctx, name, source, cfg, raw)
	h.notifyServersChanged()
	if err != nil {
		h.events.Error(fmt.Sprintf("Failed to restart %s MCP server: %s", name, errorMessage(err)))
		return err
	}
	h.events.Info(fmt.Sprintf("%s MCP server restarted", name))
	return nil
}

// activeSession returns the live session for a request, or the reason
// there is none.
func (h *Hub) activeSession(name string, source Source) (Session, *ServerConfig, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, nil, ErrHubClosed
	}
	if !h.enabled {
		return nil, nil, ErrHubDisabled()
	}
	conn := h.registry.Find(name, source)
	if conn == nil {
		return nil, nil, ErrServerNotFound(name, source)
	}
	if conn.config.Disabled {
		return nil, nil, ErrServerDisabled(name)
	}
	if conn.session == nil || conn.status != StatusConnected {
		return nil, nil, ErrServerNotConnected(name)
	}
	return conn.session, conn.config, nil
}

// CallTool runs a tool on a connected server within the server's timeout.
func (h *Hub) CallTool(ctx context.Context, name string, source Source, tool string, args map[string]any) (*ToolCallResponse, error) {
	session, cfg, err := h.activeSession(name, source)
	if err != nil {
		recordToolCall(false)
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "mcphub.call_tool", trace.WithAttributes(
		attribute.String("mcp.server", name),
		attribute.String("mcp.tool", tool),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration())
	defer cancel()

	resp, err := session.CallTool(ctx, ToolCallRequest{Name: tool, Arguments: args})
	if err != nil {
		recordToolCall(false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout("tools/call "+tool, cfg.Timeout).WithCause(err)
		}
		return nil, WrapError(err, ErrorCodeInternalError, fmt.Sprintf("Tool '%s' on MCP server '%s' failed", tool, name))
	}
	recordToolCall(!resp.IsError)
	return resp, nil
}

// ReadResource reads a resource from a connected server within the server's timeout.
func (h *Hub) ReadResource(ctx context.Context, name string, source Source, uri string) (*ResourceReadResponse, error) {
	session, cfg, err := h.activeSession(name, source)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "mcphub.read_resource", trace.WithAttributes(
		attribute.String("mcp.server", name),
		attribute.String("mcp.uri", uri),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration())
	defer cancel()

	resp, err := session.ReadResource(ctx, uri)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout("resources/read", cfg.Timeout).WithCause(err)
		}
		return nil, WrapError(err, ErrorCodeInternalError, fmt.Sprintf("Reading %s from MCP server '%s' failed", uri, name))
	}
	return resp, nil
}
