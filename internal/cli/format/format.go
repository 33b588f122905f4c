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

// Package format renders tool results and resource contents for the terminal.
package format

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"

	"github.com/tombee/mcphub/internal/mcp"
)

const (
	maxJSONSize     = 10 * 1024 * 1024  // 10MB
	maxMarkdownSize = 5 * 1024 * 1024   // 5MB
	maxTextSize     = 100 * 1024 * 1024 // 100MB
)

// ansiEscapeRegex matches ANSI escape sequences for sanitization.
var ansiEscapeRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// sanitizeANSI removes ANSI escape sequences from server-provided text.
func sanitizeANSI(s string) string {
	return ansiEscapeRegex.ReplaceAllString(s, "")
}

// enforceSize checks if content exceeds the maximum size for its kind.
func enforceSize(content string, kind string, maxSize int) error {
	if len(content) > maxSize {
		return fmt.Errorf("output size (%d bytes) exceeds maximum for %s content (%d bytes)", len(content), kind, maxSize)
	}
	return nil
}

// Markdown renders markdown with glamour when isTTY is set.
// Falls back to plain text if glamour fails.
func Markdown(content string, isTTY bool) (string, error) {
	if err := enforceSize(content, "markdown", maxMarkdownSize); err != nil {
		return "", err
	}
	content = sanitizeANSI(content)
	if !isTTY {
		return content, nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return content, nil
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content, nil
	}
	return rendered, nil
}

// JSON pretty-prints JSON with 2-space indentation and highlights it with
// chroma when isTTY is set.
func JSON(content string, isTTY bool) (string, error) {
	if err := enforceSize(content, "json", maxJSONSize); err != nil {
		return "", err
	}

	var obj any
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	formatted, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format JSON: %w", err)
	}
	out := sanitizeANSI(string(formatted))
	if !isTTY {
		return out, nil
	}

	var buf bytes.Buffer
	if err := quick.Highlight(&buf, out, "json", "terminal256", "monokai"); err != nil {
		return out, nil
	}
	return buf.String(), nil
}

// Text returns plain text with escape sequences removed.
func Text(content string) (string, error) {
	if err := enforceSize(content, "text", maxTextSize); err != nil {
		return "", err
	}
	return sanitizeANSI(content), nil
}

// ByMimeType picks a renderer for content. Declared JSON that does not parse
// falls back to text. An empty mime type is sniffed: valid JSON objects and
// arrays are rendered as JSON, anything else as text.
func ByMimeType(content, mimeType string, isTTY bool) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		if !json.Valid([]byte(content)) {
			return Text(content)
		}
		return JSON(content, isTTY)
	case mt == "text/markdown":
		return Markdown(content, isTTY)
	case mt == "" && looksLikeJSON(content):
		return JSON(content, isTTY)
	default:
		return Text(content)
	}
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return json.Valid([]byte(s))
}

// binarySummary describes base64 data without printing it.
func binarySummary(kind, mimeType, data string) string {
	size := len(data)
	if decoded, err := base64.StdEncoding.DecodeString(data); err == nil {
		size = len(decoded)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return fmt.Sprintf("[%s %s, %d bytes]", kind, mimeType, size)
}

// ToolResult renders every content item of a tool response.
func ToolResult(resp *mcp.ToolCallResponse, isTTY bool) (string, error) {
	if resp == nil {
		return "", nil
	}
	parts := make([]string, 0, len(resp.Content))
	for _, item := range resp.Content {
		switch item.Type {
		case "text":
			out, err := ByMimeType(item.Text, item.MimeType, isTTY)
			if err != nil {
				return "", err
			}
			parts = append(parts, out)
		case "image", "audio":
			parts = append(parts, binarySummary(item.Type, item.MimeType, item.Data))
		default:
			text := item.Text
			if text == "" {
				text = item.Data
			}
			out, err := Text(text)
			if err != nil {
				return "", err
			}
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// ResourceContents renders every content entry of a resource read.
func ResourceContents(resp *mcp.ResourceReadResponse, isTTY bool) (string, error) {
	if resp == nil {
		return "", nil
	}
	parts := make([]string, 0, len(resp.Contents))
	for _, c := range resp.Contents {
		if c.Blob != "" {
			parts = append(parts, binarySummary("blob", c.MimeType, c.Blob))
			continue
		}
		out, err := ByMimeType(c.Text, c.MimeType, isTTY)
		if err != nil {
			return "", err
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, "\n"), nil
}
