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
	"fmt"
)

// Source identifies which configuration file a server was declared in.
type Source string

const (
	// SourceGlobal is the per-user settings file.
	SourceGlobal Source = "global"
	// SourceProject is the optional per-workspace file.
	SourceProject Source = "project"
)

// Sources lists every configuration source in reconciliation order.
var Sources = []Source{SourceGlobal, SourceProject}

// ParseSource converts a string into a Source.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceGlobal, SourceProject:
		return Source(s), nil
	default:
		return "", NewMCPError(ErrorCodeValidation, fmt.Sprintf("unknown configuration source %q", s)).
			WithSuggestions("Use 'global' or 'project'")
	}
}

// SourceAuto selects the project entry when both files declare a server.
// It is only accepted by ParseSourceRef.
const SourceAuto = "auto"

// ParseSourceRef converts a user-supplied source into the value taken by
// Hub lookups. "auto" and the empty string yield the empty Source, which
// prefers the project entry.
func ParseSourceRef(s string) (Source, error) {
	if s == "" || s == SourceAuto {
		return "", nil
	}
	return ParseSource(s)
}

// ConnectionStatus is the lifecycle state of a server connection.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// ToolDefinition is a tool as advertised by a server.
type ToolDefinition struct {
	// Name is the unique identifier for this tool
	Name string `json:"name"`

	// Description explains what the tool does
	Description string `json:"description"`

	// InputSchema defines the expected input parameters using JSON Schema
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Tool is a ToolDefinition annotated with the user's permission settings.
type Tool struct {
	ToolDefinition

	// AlwaysAllow marks the tool as auto-approved.
	AlwaysAllow bool `json:"alwaysAllow"`

	// EnabledForPrompt is false when the tool is listed in disabledTools.
	EnabledForPrompt bool `json:"enabledForPrompt"`
}

// ToolCallRequest represents a request to execute an MCP tool.
type ToolCallRequest struct {
	// Name is the tool to execute
	Name string `json:"name"`

	// Arguments contains the input parameters for the tool
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolCallResponse represents the result of an MCP tool execution.
type ToolCallResponse struct {
	// Content contains the tool's output
	Content []ContentItem `json:"content"`

	// IsError indicates if the tool execution failed
	IsError bool `json:"isError,omitempty"`
}

// ContentItem represents a piece of content in an MCP response.
type ContentItem struct {
	// Type is the content type (text, image, resource)
	Type string `json:"type"`

	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Resource is a resource advertised by a server.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate is a parameterized resource advertised by a server.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceReadResponse represents the result of reading an MCP resource.
type ResourceReadResponse struct {
	Contents []ResourceContent `json:"contents"`
}

// ResourceContent represents the content of an MCP resource.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`

	// Text is the text content (for text resources)
	Text string `json:"text,omitempty"`

	// Blob is the base64-encoded binary content (for binary resources)
	Blob string `json:"blob,omitempty"`
}

// ServerDescriptor is the snapshot of one connection handed to the host.
type ServerDescriptor struct {
	Name              string             `json:"name"`
	Source            Source             `json:"source"`
	Status            ConnectionStatus   `json:"status"`
	Type              TransportKind      `json:"type"`
	Disabled          bool               `json:"disabled"`
	Timeout           int                `json:"timeout"`
	Config            json.RawMessage    `json:"config"`
	Tools             []Tool             `json:"tools"`
	Resources         []Resource         `json:"resources"`
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	Error             string             `json:"error,omitempty"`
	ErrorHistory      []ErrorEntry       `json:"errorHistory"`
}
