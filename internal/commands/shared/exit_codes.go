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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/tombee/mcphub/pkg/errors"
)

// Exit codes for mcphub commands
const (
	ExitSuccess          = 0
	ExitFailed           = 1
	ExitInvalidConfig    = 2
	ExitConnectionFailed = 3
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewFailedError creates an error for generic command failures
func NewFailedError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewInvalidConfigError creates an error for invalid settings or server files
func NewInvalidConfigError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidConfig,
		Message: msg,
		Cause:   cause,
	}
}

// NewConnectionError creates an error for servers that failed to connect
func NewConnectionError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitConnectionFailed,
		Message: msg,
		Cause:   cause,
	}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cfgErr *pkgerrors.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitInvalidConfig
	}
	return ExitFailed
}

// HandleExitError prints err and exits with the matching code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

// PrintError writes err and any user-facing suggestion to w.
func PrintError(w io.Writer, err error) {
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, "Error:", msg)
	}
	if uv := pkgerrors.AsUserVisible(err); uv != nil {
		if suggestion := uv.Suggestion(); suggestion != "" {
			fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
		}
	}
}
