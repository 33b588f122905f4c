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

// Package hostapi exposes a Hub over HTTP for editor hosts and tooling.
package hostapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	mcplog "github.com/tombee/mcphub/internal/log"
	"github.com/tombee/mcphub/internal/mcp"
)

// Hub is the part of *mcp.Hub served by the API.
type Hub interface {
	Enabled() bool
	AllServers() []mcp.ServerDescriptor
	Servers() []mcp.ServerDescriptor
	Server(name string, source mcp.Source) (mcp.ServerDescriptor, bool)
	Subscribe(buffer int) (<-chan mcp.HubEvent, func())

	RefreshAll(ctx context.Context) error
	SetEnabled(ctx context.Context, enabled bool) error
	RestartServer(ctx context.Context, name string, source mcp.Source) error
	ToggleServerDisabled(ctx context.Context, name string, source mcp.Source, disabled bool) error
	UpdateServerTimeout(ctx context.Context, name string, source mcp.Source, seconds int) error
	DeleteServer(ctx context.Context, name string, source mcp.Source) error
	ToggleToolAlwaysAllow(ctx context.Context, name string, source mcp.Source, tool string, allow bool) error
	ToggleToolEnabledForPrompt(ctx context.Context, name string, source mcp.Source, tool string, enabled bool) error

	CallTool(ctx context.Context, name string, source mcp.Source, tool string, args map[string]any) (*mcp.ToolCallResponse, error)
	ReadResource(ctx context.Context, name string, source mcp.Source, uri string) (*mcp.ResourceReadResponse, error)
}

// Config configures a Server.
type Config struct {
	// Hub is served by the API (required)
	Hub Hub

	// Logger is used for request and stream logging (optional)
	Logger *slog.Logger

	// ToolCallRate limits tool calls per second; zero means unlimited
	ToolCallRate float64

	// ToolCallBurst is the burst allowed above ToolCallRate (defaults to 1)
	ToolCallBurst int

	// ShutdownTimeout bounds graceful shutdown (defaults to 5s)
	ShutdownTimeout time.Duration
}

// Server is the host API.
type Server struct {
	hub             Hub
	logger          *slog.Logger
	limiter         *rate.Limiter
	upgrader        websocket.Upgrader
	router          chi.Router
	shutdownTimeout time.Duration
}

// New creates a Server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Hub == nil {
		return nil, errors.New("hub is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = mcplog.WithComponent(logger, "hostapi")

	limit := rate.Inf
	if cfg.ToolCallRate > 0 {
		limit = rate.Limit(cfg.ToolCallRate)
	}
	burst := cfg.ToolCallBurst
	if burst <= 0 {
		burst = 1
	}
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 5 * time.Second
	}

	s := &Server{
		hub:             cfg.Hub,
		logger:          logger,
		limiter:         rate.NewLimiter(limit, burst),
		upgrader:        websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		shutdownTimeout: shutdown,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(mcplog.RequestLogger(s.logger))
	r.Use(traceContext)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/mcp/enabled", s.handleGetEnabled)
		r.Put("/mcp/enabled", s.handleSetEnabled)

		r.Get("/servers", s.handleListServers)
		r.Get("/servers/stream", s.handleStream)
		r.Post("/servers/refresh", s.handleRefresh)

		r.Route("/servers/{source}/{name}", func(r chi.Router) {
			r.Get("/", s.handleGetServer)
			r.Delete("/", s.handleDeleteServer)
			r.Post("/restart", s.handleRestartServer)
			r.Put("/disabled", s.handleSetDisabled)
			r.Put("/timeout", s.handleSetTimeout)
			r.Put("/tools/{tool}/always-allow", s.handleSetAlwaysAllow)
			r.Put("/tools/{tool}/enabled", s.handleSetToolEnabled)
			r.Post("/tools/{tool}/call", s.handleCallTool)
			r.Post("/resources/read", s.handleReadResource)
		})
	})
	return r
}

// traceContext continues a trace started by the host, so tool call spans
// join the caller's trace when it sends a traceparent header.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("host API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
