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

package cli

import (
	"github.com/spf13/cobra"
	"github.com/tombee/mcphub/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for mcphub
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcphub",
		Short: "mcphub - MCP server hub",
		Long: `mcphub connects the MCP servers declared in a global settings file and
an optional project file, keeps them connected as the files change, and
exposes them to editor hosts over a local HTTP API.

A project server shadows a global server with the same name.

Run 'mcphub validate' to check your settings files.
Run 'mcphub list' to see every server and its tools.
Run 'mcphub serve' to start the hub.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	flags := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(flags.Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(flags.Quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(flags.JSON, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(flags.Config, "config", "", "Path to settings file (default: ~/.config/mcphub/settings.yaml)")
	cmd.PersistentFlags().StringVarP(flags.Project, "project", "p", "", "Project root whose .mcphub/mcp.json is loaded")

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
