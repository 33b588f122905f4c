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
	"reflect"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReconcileFromDisk reads the file for source and reconciles against it.
// An unparsable file is reported and leaves the current connections
// untouched. A deleted project file disconnects every project server.
func (h *Hub) ReconcileFromDisk(ctx context.Context, source Source) error {
	if h.isClosed() {
		return ErrHubClosed
	}

	doc, err := h.store.Read(source)
	switch {
	case err == nil:
		return h.Reconcile(ctx, source, doc)
	case errors.Is(err, fs.ErrNotExist) && source == SourceProject:
		return h.removeProject(ctx)
	case errors.Is(err, fs.ErrNotExist):
		h.logger.Warn("global MCP settings file is missing; keeping current servers")
		return err
	default:
		recordReconciliation(source, false)
		h.events.Error(errorMessage(err))
		return err
	}
}

// Reconcile brings the connections of source in line with doc: removed
// servers are torn down, new ones connected and changed ones replaced.
// Entries whose raw config is structurally unchanged keep their
// connection. An entry that fails validation is reported and skipped.
func (h *Hub) Reconcile(ctx context.Context, source Source, doc *Document) error {
	if h.isClosed() {
		return ErrHubClosed
	}

	lock := h.sourceLock(source)
	lock.Lock()
	err := h.reconcileLocked(ctx, source, doc)
	lock.Unlock()

	if source == SourceProject {
		h.globalMu.Lock()
		h.refreshShadowedLocked(ctx)
		h.globalMu.Unlock()
	}

	h.notifyServersChanged()
	return err
}

// reconcileLocked requires the lock for source.
func (h *Hub) reconcileLocked(ctx context.Context, source Source, doc *Document) error {
	ctx, span := tracer.Start(ctx, "mcphub.reconcile", trace.WithAttributes(
		attribute.String("mcp.source", string(source)),
	))
	defer span.End()

	names := doc.Names()

	h.mu.Lock()
	h.order[source] = names
	current := h.registry.BySource(source)
	h.mu.Unlock()

	var errs []error
	for _, conn := range current {
		if slices.Contains(names, conn.name) {
			continue
		}
		h.logger.Info("removing MCP server", "server", conn.name, "source", string(source))
		if err := h.teardown(conn); err != nil {
			errs = append(errs, err)
		}
	}

	var invalid int
	// names that hide a global entry when source is the project
	valid := make(map[string]bool, len(names))
	for _, name := range names {
		raw, _ := doc.Server(name)
		cfg, err := ValidateServerConfig(raw, name, h.validate)
		if err != nil {
			invalid++
			h.events.Error(errorMessage(err))
			// the last good connection, if any, stays up and keeps its name
			h.mu.Lock()
			if h.registry.Find(name, source) != nil {
				valid[name] = true
			}
			h.mu.Unlock()
			continue
		}
		valid[name] = true

		h.mu.Lock()
		existing := h.registry.Find(name, source)
		unchanged := existing != nil && reflect.DeepEqual(existing.decoded, decodeRaw(raw))
		h.mu.Unlock()

		if unchanged {
			continue
		}
		if existing != nil {
			h.logger.Info("MCP server configuration changed", "server", name, "source", string(source))
			if err := h.teardown(existing); err != nil {
				errs = append(errs, err)
			}
		}
		if err := h.startOrPlaceholder(ctx, name, source, cfg, raw); err != nil {
			h.logger.Debug("server did not connect during reconcile", "server", name, "error", err)
		}
	}

	if source == SourceProject {
		h.mu.Lock()
		h.shadows = valid
		h.mu.Unlock()
	}

	span.SetAttributes(
		attribute.Int("mcp.servers", len(names)),
		attribute.Int("mcp.invalid", invalid),
	)
	recordReconciliation(source, len(errs) == 0)
	return errors.Join(errs...)
}

// refreshShadowedLocked replaces global connections whose shadowing state
// no longer matches the project file. Requires the global lock.
func (h *Hub) refreshShadowedLocked(ctx context.Context) {
	h.mu.Lock()
	var flip []*Connection
	for _, conn := range h.registry.BySource(SourceGlobal) {
		if conn.shadowed != h.projectShadowsLocked(conn.name) {
			flip = append(flip, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range flip {
		h.mu.Lock()
		name, cfg, raw := conn.name, conn.config, conn.raw
		h.mu.Unlock()

		if err := h.teardown(conn); err != nil {
			h.logger.Warn("failed to close shadowed server", "server", name, "error", err)
		}
		if err := h.startOrPlaceholder(ctx, name, SourceGlobal, cfg, raw); err != nil {
			h.logger.Debug("global server did not connect after shadow change", "server", name, "error", err)
		}
	}
}

// removeProject disconnects every project server after the project file
// was deleted.
func (h *Hub) removeProject(ctx context.Context) error {
	h.projectMu.Lock()
	h.mu.Lock()
	conns := h.registry.BySource(SourceProject)
	h.order[SourceProject] = nil
	h.shadows = make(map[string]bool)
	h.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := h.teardown(conn); err != nil {
			errs = append(errs, err)
		}
	}
	h.projectMu.Unlock()

	h.globalMu.Lock()
	h.refreshShadowedLocked(ctx)
	h.globalMu.Unlock()

	if len(conns) > 0 {
		h.events.Info("Project MCP configuration was removed; project servers disconnected")
	}
	recordReconciliation(SourceProject, len(errs) == 0)
	h.notifyServersChanged()
	return errors.Join(errs...)
}

// beginBulk guards RefreshAll and SetEnabled against overlapping.
func (h *Hub) beginBulk() (func(), error) {
	if h.isClosed() {
		return nil, ErrHubClosed
	}
	if !h.reconciling.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	h.globalMu.Lock()
	h.projectMu.Lock()
	return func() {
		h.projectMu.Unlock()
		h.globalMu.Unlock()
		h.reconciling.Store(false)
	}, nil
}

// teardownAllLocked closes every connection. Requires both source locks.
func (h *Hub) teardownAllLocked() error {
	h.mu.Lock()
	conns := h.registry.All()
	h.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := h.teardown(conn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// reloadAllLocked reconciles both files from disk. Requires both source locks.
func (h *Hub) reloadAllLocked(ctx context.Context) error {
	var errs []error
	var projectDoc *Document
	if h.store.ProjectRoot() != "" {
		doc, err := h.store.Read(SourceProject)
		switch {
		case err == nil:
			projectDoc = doc
		case errors.Is(err, fs.ErrNotExist):
		default:
			h.events.Error(errorMessage(err))
			errs = append(errs, err)
		}
	}
	shadows := make(map[string]bool)
	if projectDoc != nil {
		shadows = h.projectShadows(projectDoc)
	}
	h.mu.Lock()
	if projectDoc != nil {
		h.order[SourceProject] = projectDoc.Names()
	} else {
		h.order[SourceProject] = nil
	}
	h.shadows = shadows
	h.mu.Unlock()

	globalDoc, err := h.store.Read(SourceGlobal)
	if err != nil {
		h.events.Error(errorMessage(err))
		errs = append(errs, err)
	} else if err := h.reconcileLocked(ctx, SourceGlobal, globalDoc); err != nil {
		errs = append(errs, err)
	}

	if projectDoc != nil {
		if err := h.reconcileLocked(ctx, SourceProject, projectDoc); err != nil {
			errs = append(errs, err)
		}
	}
	h.refreshShadowedLocked(ctx)
	return errors.Join(errs...)
}

// RefreshAll tears down every connection and rebuilds them from the files.
// It returns ErrBusy when another bulk operation is running.
func (h *Hub) RefreshAll(ctx context.Context) error {
	done, err := h.beginBulk()
	if err != nil {
		return err
	}

	h.events.Info("Refreshing all MCP servers...")
	if err := h.teardownAllLocked(); err != nil {
		h.logger.Warn("errors while closing servers for refresh", "error", err)
	}
	err = h.reloadAllLocked(ctx)
	done()

	h.notifyServersChanged()
	if err != nil {
		h.events.Error(fmt.Sprintf("Failed to refresh MCP servers: %s", errorMessage(err)))
		return err
	}
	h.events.Info("All MCP servers have been refreshed")
	return nil
}

// SetEnabled turns MCP on or off globally. Turning it off closes every
// connection and keeps placeholders so the configured servers stay
// visible; turning it on reconnects from the files.
func (h *Hub) SetEnabled(ctx context.Context, enabled bool) error {
	done, err := h.beginBulk()
	if err != nil {
		return err
	}
	defer h.notifyServersChanged()
	defer done()

	h.mu.Lock()
	if h.enabled == enabled {
		h.mu.Unlock()
		return nil
	}
	h.enabled = enabled
	h.mu.Unlock()

	if h.onEnabledChange != nil {
		if err := h.onEnabledChange(enabled); err != nil {
			h.logger.Warn("failed to persist MCP enabled setting", "enabled", enabled, "error", err)
		}
	}

	if enabled {
		if err := h.teardownAllLocked(); err != nil {
			h.logger.Warn("errors while clearing placeholders", "error", err)
		}
		return h.reloadAllLocked(ctx)
	}

	h.mu.Lock()
	conns := h.registry.All()
	h.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		h.mu.Lock()
		name, source, cfg, raw, shadowed := conn.name, conn.source, conn.config, conn.raw, conn.shadowed
		h.mu.Unlock()

		if err := h.teardown(conn); err != nil {
			errs = append(errs, err)
		}
		h.addPlaceholder(name, source, cfg, raw, shadowed)
	}
	if err := errors.Join(errs...); err != nil {
		h.events.Error(fmt.Sprintf("Some MCP servers did not shut down cleanly: %s", err))
		return err
	}
	return nil
}
