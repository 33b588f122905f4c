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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/mcphub/pkg/httpclient"
)

// ProtocolVersion is the MCP protocol version requested during initialize.
const ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION

// ClientDialerConfig configures a ClientDialer.
type ClientDialerConfig struct {
	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// ClientName and ClientVersion are sent in the initialize request.
	ClientName    string
	ClientVersion string

	// HTTPClient is used by the sse and streamable-http transports.
	// Default: an httpclient.New client with a mcphub User-Agent
	HTTPClient *http.Client
}

// ClientDialer opens sessions with the mcp-go client library.
type ClientDialer struct {
	logger     *slog.Logger
	info       mcp.Implementation
	goos       string
	httpClient *http.Client
}

// NewClientDialer creates a dialer backed by mcp-go.
func NewClientDialer(cfg ClientDialerConfig) *ClientDialer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ClientName
	if name == "" {
		name = "mcphub"
	}
	version := cfg.ClientVersion
	if version == "" {
		version = "dev"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		hc := httpclient.DefaultConfig()
		hc.UserAgent = name + "/" + version
		hc.Logger = logger
		var err error
		if httpClient, err = httpclient.New(hc); err != nil {
			logger.Warn("falling back to default HTTP client", "error", err)
			httpClient = http.DefaultClient
		}
	}
	return &ClientDialer{
		logger:     logger,
		info:       mcp.Implementation{Name: name, Version: version},
		goos:       runtime.GOOS,
		httpClient: httpClient,
	}
}

// Dial builds the transport for req.Config, starts it and performs the
// initialize handshake.
func (d *ClientDialer) Dial(ctx context.Context, req DialRequest) (Session, error) {
	cfg := req.Config
	if cfg == nil {
		return nil, fmt.Errorf("server %q has no configuration", req.Name)
	}

	c, err := d.newClient(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if req.Hooks.OnError != nil {
		c.OnConnectionLost(req.Hooks.OnError)
	}

	// The session outlives the handshake context, so the transport gets its own.
	lifeCtx, cancel := context.WithCancel(context.Background())
	s := &clientSession{name: req.Name, client: c, cancel: cancel}

	if err := c.Start(lifeCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	if cfg.Type == TransportStdio {
		if stderr, ok := client.GetStderr(c); ok {
			go d.readStderr(req, stderr)
		}
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo:      d.info,
		},
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		s.Close()
		return nil, fmt.Errorf("initialize request failed: %w", err)
	}

	return s, nil
}

func (d *ClientDialer) newClient(req DialRequest) (*client.Client, error) {
	cfg := req.Config
	switch cfg.Type {
	case TransportStdio:
		command, args := launchCommand(d.goos, cfg.Command, cfg.Args)
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		cwd := cfg.Cwd
		return client.NewStdioMCPClientWithOptions(command, env, args,
			transport.WithCommandFunc(func(_ context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
				cmd := exec.Command(command, args...)
				cmd.Env = append(os.Environ(), env...)
				cmd.Dir = cwd
				return cmd, nil
			}),
		)
	case TransportSSE:
		return client.NewSSEMCPClient(cfg.URL,
			transport.WithHeaders(cfg.Headers),
			transport.WithHTTPClient(d.httpClient),
		)
	case TransportStreamableHTTP:
		return client.NewStreamableHttpClient(cfg.URL,
			transport.WithHTTPHeaders(cfg.Headers),
			transport.WithHTTPBasicClient(d.httpClient),
		)
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Type)
	}
}

// readStderr forwards stderr lines until the stream ends, which for a
// stdio server means the process exited.
func (d *ClientDialer) readStderr(req DialRequest, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if req.Hooks.OnStderr != nil {
			req.Hooks.OnStderr(line)
		}
	}
	if err := scanner.Err(); err != nil {
		d.logger.Debug("stderr stream ended with error", "server", req.Name, "error", err)
	}
	if req.Hooks.OnClose != nil {
		req.Hooks.OnClose()
	}
}

// launchCommand wraps launchers such as npx in cmd.exe on Windows, where
// they are batch files that cannot be executed directly.
func launchCommand(goos, command string, args []string) (string, []string) {
	if goos != "windows" {
		return command, args
	}
	base := strings.ToLower(filepath.Base(command))
	if strings.HasSuffix(base, ".exe") || base == "cmd" {
		return command, args
	}
	wrapped := append([]string{"/c", command}, args...)
	return "cmd.exe", wrapped
}

// clientSession adapts an mcp-go client to Session.
type clientSession struct {
	name   string
	client *client.Client
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// ListTools retrieves the list of available tools from the MCP server.
func (s *clientSession) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]ToolDefinition, len(result.Tools))
	for i, tool := range result.Tools {
		schema := tool.RawInputSchema
		if len(schema) == 0 {
			schema, err = json.Marshal(tool.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal input schema for %s: %w", tool.Name, err)
			}
		}
		tools[i] = ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		}
	}
	return tools, nil
}

// ListResources retrieves the list of available resources from the MCP server.
func (s *clientSession) ListResources(ctx context.Context) ([]Resource, error) {
	result, err := s.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	resources := make([]Resource, len(result.Resources))
	for i, r := range result.Resources {
		resources[i] = Resource{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MimeType:    r.MIMEType,
		}
	}
	return resources, nil
}

// ListResourceTemplates retrieves the resource templates from the MCP server.
func (s *clientSession) ListResourceTemplates(ctx context.Context) ([]ResourceTemplate, error) {
	result, err := s.client.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list resource templates: %w", err)
	}

	templates := make([]ResourceTemplate, len(result.ResourceTemplates))
	for i, t := range result.ResourceTemplates {
		var uri string
		if t.URITemplate != nil && t.URITemplate.Template != nil {
			uri = t.URITemplate.Raw()
		}
		templates[i] = ResourceTemplate{
			URITemplate: uri,
			Name:        t.Name,
			Description: t.Description,
			MimeType:    t.MIMEType,
		}
	}
	return templates, nil
}

// CallTool executes an MCP tool with the given arguments.
func (s *clientSession) CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error) {
	result, err := s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      req.Name,
			Arguments: req.Arguments,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	response := &ToolCallResponse{
		IsError: result.IsError,
		Content: make([]ContentItem, len(result.Content)),
	}
	for i, content := range result.Content {
		item, err := convertContent(content)
		if err != nil {
			return nil, err
		}
		response.Content[i] = item
	}
	return response, nil
}

func convertContent(content mcp.Content) (ContentItem, error) {
	if text, ok := mcp.AsTextContent(content); ok {
		return ContentItem{Type: text.Type, Text: text.Text}, nil
	}
	if image, ok := mcp.AsImageContent(content); ok {
		return ContentItem{Type: image.Type, Data: image.Data, MimeType: image.MIMEType}, nil
	}

	// Other content kinds are flattened through their JSON form.
	raw, err := json.Marshal(content)
	if err != nil {
		return ContentItem{}, fmt.Errorf("failed to marshal content: %w", err)
	}
	var item ContentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return ContentItem{}, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	return item, nil
}

// ReadResource reads the content of an MCP resource.
func (s *clientSession) ReadResource(ctx context.Context, uri string) (*ResourceReadResponse, error) {
	result, err := s.client.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: uri},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read resource: %w", err)
	}

	response := &ResourceReadResponse{
		Contents: make([]ResourceContent, len(result.Contents)),
	}
	for i, content := range result.Contents {
		if text, ok := mcp.AsTextResourceContents(content); ok {
			response.Contents[i] = ResourceContent{URI: text.URI, MimeType: text.MIMEType, Text: text.Text}
		} else if blob, ok := mcp.AsBlobResourceContents(content); ok {
			response.Contents[i] = ResourceContent{URI: blob.URI, MimeType: blob.MIMEType, Blob: blob.Blob}
		}
	}
	return response, nil
}

// Close closes the client connection and stops the process.
func (s *clientSession) Close() error {
	s.closeOnce.Do(func() {
		if err := s.client.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close MCP client %s: %w", s.name, err)
		}
		s.cancel()
	})
	return s.closeErr
}
