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

package hostapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tombee/mcphub/internal/mcp"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Code        string   `json:"code,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeHubError maps a hub error to a status code and body.
func writeHubError(w http.ResponseWriter, err error) {
	if errors.Is(err, mcp.ErrHubClosed) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	mcpErr := mcp.GetMCPError(err)
	if mcpErr == nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, statusFor(mcpErr.Code), ErrorResponse{
		Error:       mcpErr.UserMessage(),
		Code:        string(mcpErr.Code),
		Suggestions: mcpErr.Suggestions,
	})
}

func statusFor(code mcp.MCPErrorCode) int {
	switch code {
	case mcp.ErrorCodeNotFound:
		return http.StatusNotFound
	case mcp.ErrorCodeValidation:
		return http.StatusBadRequest
	case mcp.ErrorCodeConfig:
		return http.StatusUnprocessableEntity
	case mcp.ErrorCodeDisabled, mcp.ErrorCodeBusy:
		return http.StatusConflict
	case mcp.ErrorCodeConnectionClosed:
		return http.StatusServiceUnavailable
	case mcp.ErrorCodeStartFailed:
		return http.StatusBadGateway
	case mcp.ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// serverRef reads {source} and {name} from the route. The source "auto"
// selects the project entry when both files declare the server.
func serverRef(r *http.Request) (string, mcp.Source, error) {
	name := chi.URLParam(r, "name")
	source, err := mcp.ParseSourceRef(chi.URLParam(r, "source"))
	if err != nil {
		return "", "", err
	}
	return name, source, nil
}
