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
	"errors"
	"fmt"
	"strings"
)

// MCPErrorCode represents a category of MCP error.
type MCPErrorCode string

const (
	// ErrorCodeNotFound indicates a server or tool was not found.
	ErrorCodeNotFound MCPErrorCode = "NOT_FOUND"
	// ErrorCodeValidation indicates a server configuration failed validation.
	ErrorCodeValidation MCPErrorCode = "VALIDATION"
	// ErrorCodeConfig indicates a configuration file could not be read or parsed.
	ErrorCodeConfig MCPErrorCode = "CONFIG"
	// ErrorCodeStartFailed indicates a transport failed to start or handshake.
	ErrorCodeStartFailed MCPErrorCode = "START_FAILED"
	// ErrorCodeConnectionClosed indicates the server connection is not usable.
	ErrorCodeConnectionClosed MCPErrorCode = "CONNECTION_CLOSED"
	// ErrorCodeTimeout indicates a request exceeded the server timeout.
	ErrorCodeTimeout MCPErrorCode = "TIMEOUT"
	// ErrorCodeDisabled indicates the server is disabled.
	ErrorCodeDisabled MCPErrorCode = "DISABLED"
	// ErrorCodeBusy indicates a bulk operation is already in progress.
	ErrorCodeBusy MCPErrorCode = "BUSY"
	// ErrorCodeInternalError indicates an internal error.
	ErrorCodeInternalError MCPErrorCode = "INTERNAL"
)

var (
	// ErrBusy is returned when a bulk operation is requested while another one is running.
	ErrBusy = NewMCPError(ErrorCodeBusy, "Another MCP refresh is already in progress").
		WithSuggestions("Wait for the current refresh to finish and try again")

	// ErrHubClosed is returned by operations invoked after Close.
	ErrHubClosed = errors.New("mcp hub is closed")
)

// MCPError is an error type that includes suggestions for resolution.
type MCPError struct {
	// Code is the error category.
	Code MCPErrorCode
	// Message is the primary error message.
	Message string
	// Detail provides additional context.
	Detail string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Message)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *MCPError) Unwrap() error {
	return e.Cause
}

// Is matches another MCPError carrying the same code.
func (e *MCPError) Is(target error) bool {
	t, ok := target.(*MCPError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *MCPError) IsUserVisible() bool {
	return true
}

// UserMessage implements pkg/errors.UserVisibleError.
func (e *MCPError) UserMessage() string {
	return e.Error()
}

// Suggestion implements pkg/errors.UserVisibleError.
func (e *MCPError) Suggestion() string {
	if len(e.Suggestions) == 0 {
		return ""
	}
	return e.Suggestions[0]
}

// NewMCPError creates a new MCPError.
func NewMCPError(code MCPErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    code,
		Message: message,
	}
}

// WithDetail adds detail to the error.
func (e *MCPError) WithDetail(detail string) *MCPError {
	e.Detail = detail
	return e
}

// WithSuggestions adds suggestions to the error.
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = suggestions
	return e
}

// WithCause adds an underlying cause to the error.
func (e *MCPError) WithCause(cause error) *MCPError {
	e.Cause = cause
	return e
}

// ErrServerNotFound creates an error for when a server is not found.
func ErrServerNotFound(name string, source Source) *MCPError {
	msg := fmt.Sprintf("MCP server '%s' not found", name)
	if source != "" {
		msg = fmt.Sprintf("MCP server '%s' not found in %s configuration", name, source)
	}
	return NewMCPError(ErrorCodeNotFound, msg).
		WithSuggestions("Check the server name: mcphub list")
}

// ErrToolNotFound creates an error for a tool the server did not advertise.
func ErrToolNotFound(server, tool string) *MCPError {
	return NewMCPError(ErrorCodeNotFound, fmt.Sprintf("Tool '%s' not found on MCP server '%s'", tool, server))
}

// ErrInvalidServerConfig creates a validation error for one server entry.
func ErrInvalidServerConfig(name, detail string) *MCPError {
	return NewMCPError(ErrorCodeValidation, fmt.Sprintf("Invalid configuration for MCP server '%s'", name)).
		WithDetail(detail)
}

// ErrInvalidConfigFile creates an error for a configuration file that cannot be parsed.
func ErrInvalidConfigFile(path string, cause error) *MCPError {
	return NewMCPError(ErrorCodeConfig, fmt.Sprintf("Invalid MCP settings JSON in %s", path)).
		WithDetail(cause.Error()).
		WithCause(cause).
		WithSuggestions(
			"Fix the JSON syntax; the last valid configuration stays active until then",
		)
}

// ErrStartFailed creates an error for when a server fails to start.
func ErrStartFailed(name string, cause error) *MCPError {
	return NewMCPError(ErrorCodeStartFailed, fmt.Sprintf("Failed to connect to MCP server '%s'", name)).
		WithDetail(cause.Error()).
		WithCause(cause).
		WithSuggestions(
			"Verify the command and arguments are correct",
			"Ensure required environment variables are set",
			fmt.Sprintf("Validate configuration: mcphub validate %s", name),
		)
}

// ErrServerNotConnected creates an error for requests against a server without a live session.
func ErrServerNotConnected(name string) *MCPError {
	return NewMCPError(ErrorCodeConnectionClosed, fmt.Sprintf("MCP server '%s' is not connected", name)).
		WithSuggestions(fmt.Sprintf("Restart the server: mcphub restart %s", name))
}

// ErrServerDisabled creates an error for requests against a disabled server.
func ErrServerDisabled(name string) *MCPError {
	return NewMCPError(ErrorCodeDisabled, fmt.Sprintf("MCP server '%s' is disabled", name))
}

// ErrHubDisabled creates an error for requests made while MCP is globally disabled.
func ErrHubDisabled() *MCPError {
	return NewMCPError(ErrorCodeDisabled, "MCP is disabled").
		WithSuggestions("Enable MCP: PUT /v1/mcp/enabled")
}

// ErrTimeout creates an error for a timeout.
func ErrTimeout(operation string, seconds int) *MCPError {
	return NewMCPError(ErrorCodeTimeout, fmt.Sprintf("Operation '%s' timed out after %ds", operation, seconds)).
		WithSuggestions(
			"Check if the server is responding",
			"Try increasing the timeout value",
		)
}

// WrapError wraps a standard error in an MCPError if it isn't one already.
func WrapError(err error, code MCPErrorCode, message string) *MCPError {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	return NewMCPError(code, message).WithDetail(err.Error()).WithCause(err)
}

// IsMCPError checks if an error chain contains an MCPError.
func IsMCPError(err error) bool {
	var mcpErr *MCPError
	return errors.As(err, &mcpErr)
}

// GetMCPError extracts an MCPError from an error chain.
func GetMCPError(err error) *MCPError {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	return nil
}

// ErrorCode returns the MCPErrorCode of err, or ErrorCodeInternalError when err is not an MCPError.
func ErrorCode(err error) MCPErrorCode {
	if mcpErr := GetMCPError(err); mcpErr != nil {
		return mcpErr.Code
	}
	return ErrorCodeInternalError
}
