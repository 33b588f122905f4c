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

/*
Package mcp keeps a set of Model Context Protocol (MCP) server connections in
step with two JSON configuration files.

# Overview

The hub reads server declarations from a global settings file and from an
optional project file (.mcphub/mcp.json under the project root). Each entry
under "mcpServers" becomes one connection. The package consists of:

  - ConfigStore: reads and writes the files, preserving key order
  - ValidateServerConfig: checks a raw entry and infers its transport
  - ClientDialer: opens stdio, SSE and streamable HTTP sessions
  - ConnectionRegistry: the live connections keyed by (name, source)
  - Hub: reconciliation, server operations and tool calls
  - Watcher: debounced file watching with self-write suppression
  - EventEmitter: pushes sorted server snapshots to the host

# Usage

	store := mcp.NewConfigStore(mcp.ConfigStoreConfig{
	    GlobalPath:  "/home/user/.config/mcphub/mcp_settings.json",
	    ProjectRoot: "/work/project",
	})

	hub, err := mcp.NewHub(mcp.HubConfig{Store: store, Logger: logger})
	if err != nil {
	    return err
	}
	defer hub.Close()

	if err := hub.Initialize(ctx); err != nil {
	    return err
	}

	resp, err := hub.CallTool(ctx, "filesystem", "", "read_file", map[string]any{
	    "path": "/etc/hosts",
	})

# Configuration Files

	{
	  "mcpServers": {
	    "filesystem": {
	      "command": "npx",
	      "args": ["-y", "@modelcontextprotocol/server-filesystem"],
	      "alwaysAllow": ["read_file"]
	    },
	    "remote": {
	      "type": "streamable-http",
	      "url": "https://example.com/mcp",
	      "headers": {"Authorization": "Bearer ${keyring:remote-token}"}
	    }
	  }
	}

A project entry shadows a global entry of the same name. The global
connection is kept as a placeholder so it remains visible.

# Connection States

  - connecting: the transport is being opened
  - connected: initialized and capabilities fetched
  - disconnected: failed, closed, disabled or shadowed

Each connection keeps its last 100 errors. Stderr lines that mention "info"
are logged rather than recorded.
*/
package mcp
