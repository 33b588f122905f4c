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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	// ProjectConfigDir is the directory under the project root holding the project file.
	ProjectConfigDir = ".mcphub"
	// ProjectConfigFile is the project configuration file name.
	ProjectConfigFile = "mcp.json"
	// GlobalConfigFile is the default global configuration file name.
	GlobalConfigFile = "mcp_settings.json"

	serversKey = "mcpServers"
)

// ErrNoProject is returned when the project source is used without a project root.
var ErrNoProject = errors.New("no project root configured")

type rawFields = orderedmap.OrderedMap[string, json.RawMessage]

// Document is a parsed configuration file. Key order of the file and of
// every server entry is kept so writes do not reshuffle the user's file.
type Document struct {
	root    *rawFields
	servers *rawFields
}

// NewDocument returns a document with an empty "mcpServers" object.
func NewDocument() *Document {
	return &Document{
		root:    orderedmap.New[string, json.RawMessage](),
		servers: orderedmap.New[string, json.RawMessage](),
	}
}

// ParseDocument parses a configuration file. A missing "mcpServers" key is
// treated as an empty object.
func ParseDocument(data []byte) (*Document, error) {
	doc := NewDocument()
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("file is empty")
	}
	if err := json.Unmarshal(data, doc.root); err != nil {
		return nil, fmt.Errorf("top level must be a JSON object: %w", err)
	}
	raw, ok := doc.root.Get(serversKey)
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return doc, nil
	}
	if err := json.Unmarshal(raw, doc.servers); err != nil {
		return nil, fmt.Errorf("%q must be an object: %w", serversKey, err)
	}
	return doc, nil
}

// Names returns the server names in declaration order.
func (d *Document) Names() []string {
	names := make([]string, 0, d.servers.Len())
	for pair := d.servers.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Server returns the raw entry for name.
func (d *Document) Server(name string) (json.RawMessage, bool) {
	return d.servers.Get(name)
}

// SetServer replaces or appends the raw entry for name.
func (d *Document) SetServer(name string, raw json.RawMessage) {
	d.servers.Set(name, raw)
}

// DeleteServer removes the entry for name.
func (d *Document) DeleteServer(name string) bool {
	_, ok := d.servers.Delete(name)
	return ok
}

// SetServerField sets a single key on a server entry, keeping the entry's
// key order.
func (d *Document) SetServerField(name, key string, value any) (json.RawMessage, error) {
	raw, ok := d.servers.Get(name)
	if !ok {
		return nil, ErrServerNotFound(name, "")
	}
	fields := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(raw, fields); err != nil {
		return nil, fmt.Errorf("decode server %q: %w", name, err)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	fields.Set(key, encoded)
	updated, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode server %q: %w", name, err)
	}
	d.servers.Set(name, updated)
	return updated, nil
}

// Bytes renders the document with two-space indentation.
func (d *Document) Bytes() ([]byte, error) {
	servers, err := json.Marshal(d.servers)
	if err != nil {
		return nil, err
	}
	d.root.Set(serversKey, servers)
	out, err := json.MarshalIndent(d.root, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// ConfigStoreConfig configures a ConfigStore.
type ConfigStoreConfig struct {
	// GlobalPath is the global configuration file.
	GlobalPath string
	// ProjectRoot is the workspace root; empty disables the project source.
	ProjectRoot string
}

// ConfigStore reads and writes the two configuration files.
type ConfigStore struct {
	globalPath  string
	projectRoot string
}

// NewConfigStore creates a ConfigStore.
func NewConfigStore(cfg ConfigStoreConfig) *ConfigStore {
	return &ConfigStore{
		globalPath:  cfg.GlobalPath,
		projectRoot: cfg.ProjectRoot,
	}
}

// ProjectRoot returns the configured project root.
func (s *ConfigStore) ProjectRoot() string {
	return s.projectRoot
}

// Path returns the file backing source.
func (s *ConfigStore) Path(source Source) (string, error) {
	switch source {
	case SourceGlobal:
		return s.globalPath, nil
	case SourceProject:
		if s.projectRoot == "" {
			return "", ErrNoProject
		}
		return filepath.Join(s.projectRoot, ProjectConfigDir, ProjectConfigFile), nil
	default:
		return "", fmt.Errorf("unknown source %q", source)
	}
}

// Exists reports whether the file backing source exists.
func (s *ConfigStore) Exists(source Source) bool {
	path, err := s.Path(source)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// EnsureGlobal creates the global file with an empty server map if it does not exist.
func (s *ConfigStore) EnsureGlobal() error {
	if _, err := os.Stat(s.globalPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat global config: %w", err)
	}
	return s.Write(SourceGlobal, NewDocument())
}

// Read loads and parses the file backing source. A missing file returns an
// error matching os.ErrNotExist. Parse failures are *MCPError with
// ErrorCodeConfig.
func (s *ConfigStore) Read(source Source) (*Document, error) {
	path, err := s.Path(source)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, ErrInvalidConfigFile(path, err)
	}
	return doc, nil
}

// Write saves the document atomically by writing to a temp file and
// renaming it over the target.
func (s *ConfigStore) Write(source Source, doc *Document) error {
	path, err := s.Path(source)
	if err != nil {
		return err
	}
	data, err := doc.Bytes()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
