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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/tombee/mcphub/internal/mcp")

// HubConfig configures a Hub.
type HubConfig struct {
	// Store reads and writes the configuration files (required)
	Store *ConfigStore

	// Dialer opens sessions (defaults to a ClientDialer)
	Dialer Dialer

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// Host receives state pushes and messages (optional)
	Host HostAccessor

	// WorkspaceRoots are the open workspace folders
	WorkspaceRoots []string

	// Resolver expands placeholders in server configs (optional)
	Resolver *VariableResolver

	// Disabled starts the hub with MCP globally off
	Disabled bool

	// OnEnabledChange persists the global toggle (optional)
	OnEnabledChange func(enabled bool) error

	// Debounce is the watcher quiet period (defaults to 500ms)
	Debounce time.Duration

	// SuppressWindow is how long own writes are ignored (defaults to 600ms)
	SuppressWindow time.Duration

	// ReconnectTries bounds automatic SSE reconnects (defaults to 5)
	ReconnectTries uint

	// ReconnectMaxInterval caps the SSE reconnect delay (defaults to 5s)
	ReconnectMaxInterval time.Duration
}

// Hub owns every server connection declared in the global and project
// configuration files and keeps them in step with the files.
type Hub struct {
	store      *ConfigStore
	dialer     Dialer
	logger     *slog.Logger
	events     *EventEmitter
	watcher    *Watcher
	suppressor *Suppressor
	validate   ValidateOptions

	onEnabledChange      func(bool) error
	reconnectTries       uint
	reconnectMaxInterval time.Duration

	// mu guards registry, order, shadows, enabled and every Connection field
	mu       sync.Mutex
	registry *ConnectionRegistry
	order    map[Source][]string
	shadows  map[string]bool
	enabled  bool
	closed   bool

	// notifyMu orders snapshot pushes
	notifyMu sync.Mutex

	// source locks serialize reconciliation per file; take global before project
	globalMu  sync.Mutex
	projectMu sync.Mutex

	// writeMu serializes read-modify-write cycles on the files
	writeMu sync.Mutex

	reconciling atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a Hub. Call Initialize to load the files and connect.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("config store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "mcp-hub"))

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = NewClientDialer(ClientDialerConfig{Logger: logger})
	}

	tries := cfg.ReconnectTries
	if tries == 0 {
		tries = 5
	}
	maxInterval := cfg.ReconnectMaxInterval
	if maxInterval <= 0 {
		maxInterval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		store:                cfg.Store,
		dialer:               dialer,
		logger:               logger,
		events:               NewEventEmitter(logger, cfg.Host),
		suppressor:           NewSuppressor(cfg.SuppressWindow),
		validate:             ValidateOptions{WorkspaceRoots: cfg.WorkspaceRoots, Resolver: cfg.Resolver},
		onEnabledChange:      cfg.OnEnabledChange,
		reconnectTries:       tries,
		reconnectMaxInterval: maxInterval,
		registry:             NewConnectionRegistry(),
		order:                make(map[Source][]string),
		shadows:              make(map[string]bool),
		enabled:              !cfg.Disabled,
		ctx:                  ctx,
		cancel:               cancel,
	}

	watcher, err := NewWatcher(WatcherConfig{
		Logger:         logger,
		Debounce:       cfg.Debounce,
		Suppressor:     h.suppressor,
		OnConfigChange: h.handleConfigChange,
		OnServerChange: h.handleServerChange,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	h.watcher = watcher

	return h, nil
}

// Initialize creates the global file if needed, connects every declared
// server and starts watching the files. Problems with individual servers
// or files are reported through events and do not fail initialization.
func (h *Hub) Initialize(ctx context.Context) error {
	if err := h.store.EnsureGlobal(); err != nil {
		return fmt.Errorf("failed to create global MCP settings: %w", err)
	}

	var projectDoc *Document
	if h.store.ProjectRoot() != "" {
		doc, err := h.store.Read(SourceProject)
		switch {
		case err == nil:
			projectDoc = doc
			shadows := h.projectShadows(doc)
			h.mu.Lock()
			h.order[SourceProject] = doc.Names()
			h.shadows = shadows
			h.mu.Unlock()
		case errors.Is(err, fs.ErrNotExist):
		default:
			h.events.Error(errorMessage(err))
		}
	}

	if err := h.ReconcileFromDisk(ctx, SourceGlobal); err != nil {
		h.logger.Warn("global MCP settings not loaded", "error", err)
	}
	if projectDoc != nil {
		if err := h.Reconcile(ctx, SourceProject, projectDoc); err != nil {
			h.logger.Warn("project MCP settings not loaded", "error", err)
		}
	}

	for _, source := range Sources {
		path, err := h.store.Path(source)
		if errors.Is(err, ErrNoProject) {
			continue
		}
		if err != nil {
			return err
		}
		if err := h.watcher.WatchConfig(source, path); err != nil {
			h.logger.Warn("failed to watch MCP settings", "source", string(source), "path", path, "error", err)
		}
	}

	h.notifyServersChanged()
	return nil
}

// Close tears down every connection and stops watching. The hub cannot be
// used afterwards.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := h.registry.All()
	h.mu.Unlock()

	h.cancel()
	errs := []error{h.watcher.Close()}
	h.suppressor.Stop()

	for _, c := range conns {
		errs = append(errs, h.teardown(c))
	}
	h.wg.Wait()
	return errors.Join(errs...)
}

// Enabled reports whether MCP is globally enabled.
func (h *Hub) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

// Subscribe returns hub events. The returned function unsubscribes.
func (h *Hub) Subscribe(buffer int) (<-chan HubEvent, func()) {
	return h.events.Subscribe(buffer)
}

// AllServers returns a sorted snapshot of every connection, including
// disabled and shadowed placeholders.
func (h *Hub) AllServers() []ServerDescriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Servers returns the servers offered to the model: enabled, not disabled,
// one entry per name with project entries winning.
func (h *Hub) Servers() []ServerDescriptor {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.enabled {
		return []ServerDescriptor{}
	}
	seen := make(map[string]bool)
	out := []ServerDescriptor{}
	for _, d := range h.snapshotLocked() {
		if d.Disabled || seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		out = append(out, d)
	}
	return out
}

// Server returns the descriptor for (name, source). An empty source
// prefers the project entry.
func (h *Hub) Server(name string, source Source) (ServerDescriptor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := h.registry.Find(name, source)
	if c == nil {
		return ServerDescriptor{}, false
	}
	return c.descriptor(), true
}

func (h *Hub) snapshotLocked() []ServerDescriptor {
	conns := h.registry.All()
	out := make([]ServerDescriptor, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.descriptor())
	}
	order := map[Source][]string{
		SourceGlobal:  h.order[SourceGlobal],
		SourceProject: h.order[SourceProject],
	}
	return SortServers(out, order)
}

func (h *Hub) notifyServersChanged() {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	snapshot := h.snapshotLocked()
	counts := make(map[ConnectionStatus]int)
	for _, d := range snapshot {
		counts[d.Status]++
	}
	h.mu.Unlock()

	recordConnectionStatus(counts)
	h.events.ServersChanged(snapshot)
}

func (h *Hub) sourceLock(source Source) *sync.Mutex {
	if source == SourceProject {
		return &h.projectMu
	}
	return &h.globalMu
}

// projectShadowsLocked reports whether the project owns name: its file has
// a valid entry for it, or its last good connection is still up. An entry
// that never validated does not hide the global one.
func (h *Hub) projectShadowsLocked(name string) bool {
	return h.shadows[name]
}

// projectShadows returns the names of the entries in a project document
// that pass validation.
func (h *Hub) projectShadows(doc *Document) map[string]bool {
	shadows := make(map[string]bool)
	for _, name := range doc.Names() {
		raw, _ := doc.Server(name)
		if _, err := ValidateServerConfig(raw, name, h.validate); err == nil {
			shadows[name] = true
		}
	}
	return shadows
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Hub) handleConfigChange(source Source) {
	if err := h.ReconcileFromDisk(h.ctx, source); err != nil {
		h.logger.Debug("reconcile after file change failed", "source", string(source), "error", err)
	}
}

func (h *Hub) handleServerChange(name string, source Source) {
	if err := h.RestartServer(h.ctx, name, source); err != nil {
		h.logger.Warn("restart after watched file change failed",
			"server", name,
			"source", string(source),
			"error", err,
		)
	}
}

func errorMessage(err error) string {
	if mcpErr := GetMCPError(err); mcpErr != nil {
		return mcpErr.UserMessage()
	}
	return err.Error()
}
