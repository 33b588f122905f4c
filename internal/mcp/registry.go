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
	"slices"
	"time"
)

// Connection is the runtime record for one (name, source) pair. All fields
// are guarded by the owning Hub's mutex.
type Connection struct {
	name   string
	source Source
	status ConnectionStatus

	config *ServerConfig
	// raw is the entry as written in the file; decoded is used for
	// structural comparison during reconciliation.
	raw     json.RawMessage
	decoded any

	tools     []Tool
	resources []Resource
	templates []ResourceTemplate

	history   *ErrorHistory
	lastError string

	session   Session
	sessionID string

	// placeholder connections never get a transport: the server is
	// disabled, MCP is off, or a project server shadows it.
	placeholder  bool
	shadowed     bool
	closing      bool
	reconnecting bool
}

func newConnection(name string, source Source, cfg *ServerConfig, raw json.RawMessage) *Connection {
	return &Connection{
		name:    name,
		source:  source,
		status:  StatusDisconnected,
		config:  cfg,
		raw:     raw,
		decoded: decodeRaw(raw),
		history: NewErrorHistory(MaxErrorHistory),
	}
}

func (c *Connection) setRaw(raw json.RawMessage) {
	c.raw = raw
	c.decoded = decodeRaw(raw)
}

func (c *Connection) appendError(message string, level ErrorLevel) {
	entry := c.history.Add(message, level, time.Now())
	if level == ErrorLevelError {
		c.lastError = entry.Message
	}
}

func (c *Connection) descriptor() ServerDescriptor {
	d := ServerDescriptor{
		Name:              c.name,
		Source:            c.source,
		Status:            c.status,
		Type:              c.config.Type,
		Disabled:          c.config.Disabled,
		Timeout:           c.config.Timeout,
		Config:            c.raw,
		Tools:             slices.Clone(c.tools),
		Resources:         slices.Clone(c.resources),
		ResourceTemplates: slices.Clone(c.templates),
		Error:             c.lastError,
		ErrorHistory:      c.history.Entries(),
	}
	if d.Tools == nil {
		d.Tools = []Tool{}
	}
	if d.Resources == nil {
		d.Resources = []Resource{}
	}
	if d.ResourceTemplates == nil {
		d.ResourceTemplates = []ResourceTemplate{}
	}
	return d
}

func decodeRaw(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// ConnectionRegistry holds the live connection records. It does no locking
// of its own; the Hub serializes access with its mutex.
type ConnectionRegistry struct {
	conns []*Connection
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{}
}

// Add appends a connection.
func (r *ConnectionRegistry) Add(c *Connection) {
	r.conns = append(r.conns, c)
}

// Remove deletes c by identity. A record that was already replaced is left alone.
func (r *ConnectionRegistry) Remove(c *Connection) bool {
	i := slices.Index(r.conns, c)
	if i < 0 {
		return false
	}
	r.conns = slices.Delete(r.conns, i, i+1)
	return true
}

// Contains reports whether c is still registered.
func (r *ConnectionRegistry) Contains(c *Connection) bool {
	return slices.Contains(r.conns, c)
}

// Find returns the connection for (name, source). An empty source matches
// either, preferring the project entry.
func (r *ConnectionRegistry) Find(name string, source Source) *Connection {
	if source != "" {
		for _, c := range r.conns {
			if c.name == name && c.source == source {
				return c
			}
		}
		return nil
	}
	var global *Connection
	for _, c := range r.conns {
		if c.name != name {
			continue
		}
		if c.source == SourceProject {
			return c
		}
		if global == nil {
			global = c
		}
	}
	return global
}

// BySource returns the connections declared in source.
func (r *ConnectionRegistry) BySource(source Source) []*Connection {
	var out []*Connection
	for _, c := range r.conns {
		if c.source == source {
			out = append(out, c)
		}
	}
	return out
}

// All returns every connection.
func (r *ConnectionRegistry) All() []*Connection {
	return slices.Clone(r.conns)
}

// Len returns the number of connections.
func (r *ConnectionRegistry) Len() int {
	return len(r.conns)
}
