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
	"log/slog"

	"github.com/tombee/mcphub/internal/config"
	"github.com/tombee/mcphub/internal/log"
	"github.com/tombee/mcphub/internal/mcp"
)

// Runtime is the loaded settings and logger a command works with.
type Runtime struct {
	SettingsPath string
	Config       *config.Config
	Logger       *slog.Logger
}

// LoadRuntime loads settings from --config (or the default path), applies
// --project and builds the logger from the environment and --verbose/--quiet.
func LoadRuntime() (*Runtime, error) {
	path := GetConfigPath()
	if path == "" {
		var err error
		if path, err = config.SettingsPath(); err != nil {
			return nil, NewInvalidConfigError("failed to locate settings", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, NewInvalidConfigError("failed to load settings", err)
	}
	if root := GetProjectRoot(); root != "" {
		if err := cfg.SetProjectRoot(root); err != nil {
			return nil, NewInvalidConfigError("invalid --project", err)
		}
	}

	return &Runtime{
		SettingsPath: path,
		Config:       cfg,
		Logger:       NewLogger(),
	}, nil
}

// NewLogger creates the command logger.
func NewLogger() *slog.Logger {
	cfg := log.FromEnv()
	switch {
	case GetVerbose():
		cfg.Level = "debug"
	case GetQuiet():
		cfg.Level = "error"
	}
	return log.New(cfg)
}

// Store returns a ConfigStore over the configured global file and project.
func (r *Runtime) Store() *mcp.ConfigStore {
	return mcp.NewConfigStore(mcp.ConfigStoreConfig{
		GlobalPath:  r.Config.GlobalConfig,
		ProjectRoot: r.Config.ProjectRoot,
	})
}

// HubOptions adjusts the hub built by NewHub.
type HubOptions struct {
	// Host receives pushes and user messages (optional)
	Host mcp.HostAccessor

	// Dialer replaces the mcp-go dialer (optional)
	Dialer mcp.Dialer

	// PersistEnabled writes the global toggle back to the settings file
	PersistEnabled bool
}

// NewHub creates a hub from the runtime settings.
func (r *Runtime) NewHub(opts HubOptions) (*mcp.Hub, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = mcp.NewClientDialer(mcp.ClientDialerConfig{
			Logger:        r.Logger,
			ClientVersion: version,
		})
	}
	cfg := mcp.HubConfig{
		Store:          r.Store(),
		Dialer:         dialer,
		Logger:         r.Logger,
		Host:           opts.Host,
		WorkspaceRoots: r.Config.WorkspaceRoots,
		Resolver:       mcp.NewVariableResolver(),
		Disabled:       !r.Config.MCPEnabled,
		Debounce:       r.Config.Debounce,
		SuppressWindow: r.Config.SuppressWindow,
	}
	if opts.PersistEnabled {
		path := r.SettingsPath
		cfg.OnEnabledChange = func(enabled bool) error {
			return config.SetMCPEnabled(path, enabled)
		}
	}
	return mcp.NewHub(cfg)
}
