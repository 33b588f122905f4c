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
Package cli provides the root command for mcphub's CLI.

This package creates the root Cobra command and handles global concerns like
version information, persistent flags and exit codes. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	mcphub
	├── serve         Run the hub and its host API
	├── list          Connect and list servers, tools and resources
	├── call          Call one tool
	├── read          Read one resource
	├── validate      Validate the settings files
	├── secrets       Manage keyring secrets
	├── completion    Generate shell completions
	└── version       Show version

# Global Flags

	--verbose, -v    Enable verbose output
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to settings.yaml
	--project, -p    Project root

# Exit Codes

  - 0: Success
  - 1: General failure
  - 2: Invalid configuration
  - 3: Connection failure

Use HandleExitError after Execute:

	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}
*/
package cli
