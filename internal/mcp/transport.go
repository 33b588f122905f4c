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
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	errConnectionGone = errors.New("connection no longer registered")
	errSuperseded     = errors.New("connection attempt superseded")

	infoLinePattern = regexp.MustCompile(`(?i)\binfo\b`)
)

// startOrPlaceholder registers a record for a validated config: a live
// connection when the server should run, otherwise a placeholder. Connect
// failures are recorded on the connection and returned.
func (h *Hub) startOrPlaceholder(ctx context.Context, name string, source Source, cfg *ServerConfig, raw json.RawMessage) error {
	h.mu.Lock()
	enabled := h.enabled
	shadowed := source == SourceGlobal && h.projectShadowsLocked(name)
	h.mu.Unlock()

	if !enabled || cfg.Disabled || shadowed {
		h.addPlaceholder(name, source, cfg, raw, shadowed)
		return nil
	}
	return h.connect(ctx, name, source, cfg, raw)
}

func (h *Hub) addPlaceholder(name string, source Source, cfg *ServerConfig, raw json.RawMessage, shadowed bool) *Connection {
	conn := newConnection(name, source, cfg, raw)
	conn.placeholder = true
	conn.shadowed = shadowed

	h.mu.Lock()
	h.registry.Add(conn)
	h.mu.Unlock()
	return conn
}

// connect registers a connecting record, dials it and fetches its
// capabilities. The record stays registered on failure so the error
// history is visible.
func (h *Hub) connect(ctx context.Context, name string, source Source, cfg *ServerConfig, raw json.RawMessage) error {
	conn := newConnection(name, source, cfg, raw)
	conn.status = StatusConnecting
	conn.sessionID = uuid.NewString()
	sessionID := conn.sessionID

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	h.registry.Add(conn)
	h.mu.Unlock()

	if len(cfg.WatchPaths) > 0 || watchableBuildArg(cfg) != "" {
		if err := h.watcher.WatchServer(name, source, watchTargets(cfg)); err != nil {
			h.logger.Warn("failed to watch server paths", "server", name, "source", string(source), "error", err)
		}
	}

	return h.dial(ctx, conn, sessionID)
}

func (h *Hub) dial(ctx context.Context, conn *Connection, sessionID string) error {
	h.mu.Lock()
	name, source, cfg := conn.name, conn.source, conn.config
	h.mu.Unlock()

	ctx, span := tracer.Start(ctx, "mcphub.connect", trace.WithAttributes(
		attribute.String("mcp.server", name),
		attribute.String("mcp.source", string(source)),
		attribute.String("mcp.transport", string(cfg.Type)),
	))
	defer span.End()

	hooks := SessionHooks{
		OnStderr: func(line string) { h.handleStderr(conn, sessionID, line) },
		OnError:  func(err error) { h.handleTransportError(conn, sessionID, err) },
		OnClose:  func() { h.handleTransportClose(conn, sessionID) },
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration())
	session, err := h.dialer.Dial(dialCtx, DialRequest{
		Name:   name,
		Source: source,
		Config: cfg,
		Hooks:  hooks,
	})
	cancel()
	recordConnectionAttempt(cfg.Type, err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		h.mu.Lock()
		if conn.sessionID == sessionID {
			conn.status = StatusDisconnected
			conn.appendError(err.Error(), ErrorLevelError)
		}
		h.mu.Unlock()

		h.logger.Error("failed to connect to MCP server",
			"server", name,
			"source", string(source),
			"error", err,
		)
		h.notifyServersChanged()
		return ErrStartFailed(name, err)
	}

	h.mu.Lock()
	if conn.sessionID != sessionID || conn.closing || !h.registry.Contains(conn) {
		h.mu.Unlock()
		_ = session.Close()
		return errSuperseded
	}
	conn.session = session
	conn.status = StatusConnected
	conn.lastError = ""
	h.mu.Unlock()

	h.logger.Info("connected to MCP server",
		"server", name,
		"source", string(source),
		"transport", string(cfg.Type),
	)

	h.fetchCapabilities(ctx, conn, session)
	h.notifyServersChanged()
	return nil
}

// teardown closes and unregisters a connection. Callbacks from the old
// session are ignored from the moment it is marked closing.
func (h *Hub) teardown(conn *Connection) error {
	h.mu.Lock()
	conn.closing = true
	session := conn.session
	conn.session = nil
	name, source := conn.name, conn.source
	h.mu.Unlock()

	var errs []error
	if session != nil {
		if err := session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s server %q: %w", source, name, err))
		}
	}

	h.watcher.UnwatchServer(name, source)

	h.mu.Lock()
	h.registry.Remove(conn)
	h.mu.Unlock()

	return errors.Join(errs...)
}

// isCurrentLocked reports whether a callback for sessionID still applies to conn.
func (h *Hub) isCurrentLocked(conn *Connection, sessionID string) bool {
	return conn.sessionID == sessionID && !conn.closing && h.registry.Contains(conn)
}

func (h *Hub) handleStderr(conn *Connection, sessionID, line string) {
	if infoLinePattern.MatchString(line) {
		h.logger.Info("mcp server stderr", "server", conn.name, "line", line)
		return
	}

	h.mu.Lock()
	if !h.isCurrentLocked(conn, sessionID) {
		h.mu.Unlock()
		return
	}
	conn.appendError(line, ErrorLevelError)
	h.mu.Unlock()

	h.notifyServersChanged()
}

func (h *Hub) handleTransportError(conn *Connection, sessionID string, err error) {
	h.mu.Lock()
	if !h.isCurrentLocked(conn, sessionID) {
		h.mu.Unlock()
		return
	}
	conn.status = StatusDisconnected
	conn.appendError(err.Error(), ErrorLevelError)
	kind := conn.config.Type
	h.mu.Unlock()

	recordTransportError(kind)
	h.logger.Error("mcp transport error", "server", conn.name, "source", string(conn.source), "error", err)
	h.notifyServersChanged()

	if kind == TransportSSE {
		h.scheduleReconnect(conn)
	}
}

func (h *Hub) handleTransportClose(conn *Connection, sessionID string) {
	h.mu.Lock()
	if !h.isCurrentLocked(conn, sessionID) {
		h.mu.Unlock()
		return
	}
	conn.status = StatusDisconnected
	kind := conn.config.Type
	h.mu.Unlock()

	h.logger.Warn("mcp transport closed", "server", conn.name, "source", string(conn.source))
	h.notifyServersChanged()

	if kind == TransportSSE {
		h.scheduleReconnect(conn)
	}
}

// scheduleReconnect retries an SSE connection with exponential backoff
// until it connects, the record is torn down or the tries run out.
func (h *Hub) scheduleReconnect(conn *Connection) {
	h.mu.Lock()
	if conn.reconnecting || h.closed {
		h.mu.Unlock()
		return
	}
	conn.reconnecting = true
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			conn.reconnecting = false
			h.mu.Unlock()
		}()

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = h.reconnectMaxInterval

		_, err := backoff.Retry(h.ctx, func() (struct{}, error) {
			h.mu.Lock()
			if conn.closing || !h.registry.Contains(conn) {
				h.mu.Unlock()
				return struct{}{}, backoff.Permanent(errConnectionGone)
			}
			if conn.status == StatusConnected {
				h.mu.Unlock()
				return struct{}{}, nil
			}
			old := conn.session
			conn.session = nil
			conn.sessionID = uuid.NewString()
			conn.status = StatusConnecting
			sessionID := conn.sessionID
			h.mu.Unlock()

			if old != nil {
				_ = old.Close()
			}
			err := h.dial(h.ctx, conn, sessionID)
			if errors.Is(err, errSuperseded) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}, backoff.WithBackOff(b), backoff.WithMaxTries(h.reconnectTries))

		if err != nil && !errors.Is(err, errConnectionGone) && !errors.Is(err, errSuperseded) && h.ctx.Err() == nil {
			h.logger.Warn("giving up reconnecting to MCP server", "server", conn.name, "error", err)
		}
	}()
}

// watchTargets returns the paths to watch for a server: its watchPaths plus
// a locally built entry point passed as an argument.
func watchTargets(cfg *ServerConfig) []string {
	targets := make([]string, 0, len(cfg.WatchPaths)+1)
	for _, p := range cfg.WatchPaths {
		if !filepath.IsAbs(p) && cfg.Cwd != "" {
			p = filepath.Join(cfg.Cwd, p)
		}
		targets = append(targets, p)
	}
	if arg := watchableBuildArg(cfg); arg != "" {
		targets = append(targets, arg)
	}
	return targets
}

func watchableBuildArg(cfg *ServerConfig) string {
	if cfg.Type != TransportStdio {
		return ""
	}
	for _, a := range cfg.Args {
		if strings.HasSuffix(filepath.ToSlash(a), "build/index.js") {
			if !filepath.IsAbs(a) && cfg.Cwd != "" {
				return filepath.Join(cfg.Cwd, a)
			}
			return a
		}
	}
	return ""
}
