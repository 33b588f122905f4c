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

package serve

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/mcphub/internal/commands/shared"
	"github.com/tombee/mcphub/internal/hostapi"
	"github.com/tombee/mcphub/internal/mcp"
	"github.com/tombee/mcphub/internal/tracing"
)

// options carries flags and test seams.
type options struct {
	addr   string
	dialer mcp.Dialer
}

// NewCommand creates the serve command
func NewCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP hub and its host API",
		Long: `Serve connects every configured MCP server, keeps the connections in step
with the settings files and exposes them over HTTP for editor hosts.

The host API lists servers, streams every change over a WebSocket, applies
per-server mutations (disable, timeout, tool permissions, restart, delete)
and forwards tool calls and resource reads. Prometheus metrics are served
on /metrics. Spans are exported when the tracing section of settings.yaml
selects an exporter.

The server runs until interrupted.`,
		Example: `  # Start with the address from settings.yaml (default 127.0.0.1:7323)
  mcphub serve

  # Serve a specific workspace on another port
  mcphub serve --project ~/src/app --addr 127.0.0.1:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default: api_addr from settings)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *options) error {
	rt, err := shared.LoadRuntime()
	if err != nil {
		return err
	}

	addr := rt.Config.APIAddr
	if opts.addr != "" {
		addr = opts.addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return shared.NewFailedError(fmt.Sprintf("failed to listen on %s", addr), err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, rt, opts.dialer, ln)
}

// serve runs the hub and the host API on ln until ctx is done.
func serve(ctx context.Context, rt *shared.Runtime, dialer mcp.Dialer, ln net.Listener) error {
	logger := rt.Logger
	v, _, _ := shared.GetVersion()
	logger.Info("mcphub starting",
		"version", v,
		"global_config", rt.Config.GlobalConfig,
		"project_root", rt.Config.ProjectRoot)

	shutdownTracing, err := tracing.Setup(ctx, rt.Config.Tracing, tracing.Resource{
		ServiceName:    "mcphub",
		ServiceVersion: v,
	})
	if err != nil {
		ln.Close()
		return shared.NewInvalidConfigError("failed to set up tracing", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()
	if rt.Config.Tracing.Enabled() {
		logger.Info("tracing enabled",
			"exporter", rt.Config.Tracing.Exporter,
			"endpoint", rt.Config.Tracing.Endpoint)
	}

	hub, err := rt.NewHub(shared.HubOptions{
		Dialer:         dialer,
		PersistEnabled: true,
	})
	if err != nil {
		ln.Close()
		return shared.NewFailedError("failed to create MCP hub", err)
	}
	defer func() {
		if err := hub.Close(); err != nil {
			logger.Warn("errors while closing MCP hub", "error", err)
		}
	}()

	if err := hub.Initialize(ctx); err != nil {
		ln.Close()
		return shared.NewFailedError("failed to start MCP hub", err)
	}

	api, err := hostapi.New(hostapi.Config{
		Hub:           hub,
		Logger:        logger,
		ToolCallRate:  rt.Config.ToolCallRate,
		ToolCallBurst: rt.Config.ToolCallBurst,
	})
	if err != nil {
		ln.Close()
		return shared.NewFailedError("failed to create host API", err)
	}

	logger.Info("mcphub ready", "addr", ln.Addr().String(), "servers", len(hub.AllServers()))

	if err := api.Serve(ctx, ln); err != nil {
		return shared.NewFailedError("host API stopped", err)
	}

	logger.Info("shutdown complete")
	return nil
}
