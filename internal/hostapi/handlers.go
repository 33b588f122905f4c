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
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tombee/mcphub/internal/mcp"
)

// ServerListResponse is returned by GET /v1/servers.
type ServerListResponse struct {
	Enabled bool                   `json:"enabled"`
	Servers []mcp.ServerDescriptor `json:"servers"`
}

// EnabledRequest is the body of PUT /v1/mcp/enabled.
type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// DisabledRequest is the body of PUT .../disabled.
type DisabledRequest struct {
	Disabled *bool `json:"disabled"`
}

// TimeoutRequest is the body of PUT .../timeout.
type TimeoutRequest struct {
	Timeout int `json:"timeout"`
}

// AlwaysAllowRequest is the body of PUT .../tools/{tool}/always-allow.
type AlwaysAllowRequest struct {
	AlwaysAllow *bool `json:"alwaysAllow"`
}

// ToolCallRequest is the body of POST .../tools/{tool}/call.
type ToolCallRequest struct {
	Arguments map[string]any `json:"arguments"`
}

// ResourceReadRequest is the body of POST .../resources/read.
type ResourceReadRequest struct {
	URI string `json:"uri"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetEnabled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.hub.Enabled()})
}

// handleSetEnabled handles PUT /v1/mcp/enabled
func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req EnabledRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if err := s.hub.SetEnabled(r.Context(), *req.Enabled); err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.hub.Enabled()})
}

// handleListServers handles GET /v1/servers. With ?active=true only the
// servers offered to the model are returned.
func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers := s.hub.AllServers()
	if r.URL.Query().Get("active") == "true" {
		servers = s.hub.Servers()
	}
	writeJSON(w, http.StatusOK, ServerListResponse{Enabled: s.hub.Enabled(), Servers: servers})
}

// handleRefresh handles POST /v1/servers/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.RefreshAll(r.Context()); err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ServerListResponse{Enabled: s.hub.Enabled(), Servers: s.hub.AllServers()})
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	name, source, err := serverRef(r)
	if err != nil {
		writeHubError(w, err)
		return
	}
	d, ok := s.hub.Server(name, source)
	if !ok {
		writeHubError(w, mcp.ErrServerNotFound(name, source))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// respondServer writes the current descriptor after a successful mutation.
func (s *Server) respondServer(w http.ResponseWriter, name string, source mcp.Source) {
	d, ok := s.hub.Server(name, source)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	name, source, err := serverRef(r)
	if err != nil {
		writeHubError(w, err)
		return
	}
	if err := s.hub.DeleteServer(r.Context(), name, source); err != nil {
		writeHubError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestartServer(w http.ResponseWriter, r *http.Request) {
	name, source, err := serverRef(r)
	if err != nil {
		writeHubError(w, err)
		return
	}
	if err := s.hub.RestartServer(r.Context(), name, source); err != nil {
		writeHubError(w, err)
		return
	}
	s.respondServer(w, name, source)
}

func (s *Server) handleSetDisabled(w http.ResponseWriter, r *http.Request) {
	name, source, err := serverRef(r)
	if err != nil {
		writeHubError(w, err)
		return
	}
	var req DisabledRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Disabled == nil {
		writeError(w, http.StatusBadRequest, "disabled is required")
		return
	}
	if err := s.hub.ToggleServerDisabled(r.Context(), name, source, *req.Disabled); err != nil {
		writeHubError(w, err)
		return
	}
	s.respondServer(w, name, source)
}

func (s *Server) handleSetTimeout(w http.ResponseWriter, r *http.Request) {
	name, source, err := serverRef(r)
	if err != nil {
		writeHubError(w, err)
		return
	}
	var req TimeoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.hub.UpdateServerTimeout(r.Context(), name, source, req.Timeout); err != nil {
		writeHubError(w, err)
		return
	}
	s.respondServer(w, name, source)
}

func (s *Server) handleSetAlwaysAllow(w http.ResponseWriter, r *http.Request) {
	name, source, err := serverRef(r)
	if err != nil {
		writeHubError(w, err)
		return
	}
	var req AlwaysAllowRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AlwaysAllow == nil {
		writeError(w, http.StatusBadRequest, "alwaysAllow is required")
		return
	}
	tool := chi.URLParam(r, "tool")
	if err := s.hub.ToggleToolAlwaysAllow(r.Context(), name, source, tool, *req.AlwaysAllow); err != nil {
		writeHubError(w, err)
		return
	}
	s.respondServer(w, name, source)
}

func (s *Server) handleSetToolEnabled(w http.ResponseWriter, r *http.Request) {
	name, source, err := serverRef(r)
	if err != nil {
		writeHubError(w, err)
		return
	}
	var req EnabledRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	tool := chi.URLParam(r, "tool")
	if err := s.hub.ToggleToolEnabledForPrompt(r.Context(), name, source, tool, *req.Enabled); err != nil {
		writeHubError(w, err)
		return
	}
	s.respondServer(w, name, source)
}

// handleCallTool handles POST /v1/servers/{source}/{name}/tools/{tool}/call
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "tool call rate limit exceeded")
		return
	}

	name, source, err := serverRef(r)
	if err != nil {
		writeHubError(w, err)
		return
	}
	var req ToolCallRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	resp, err := s.hub.CallTool(r.Context(), name, source, chi.URLParam(r, "tool"), req.Arguments)
	if err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReadResource handles POST /v1/servers/{source}/{name}/resources/read
func (s *Server) handleReadResource(w http.ResponseWriter, r *http.Request) {
	name, source, err := serverRef(r)
	if err != nil {
		writeHubError(w, err)
		return
	}
	var req ResourceReadRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.URI == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}

	resp, err := s.hub.ReadResource(r.Context(), name, source, req.URI)
	if err != nil {
		writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
