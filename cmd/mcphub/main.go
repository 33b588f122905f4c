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

package main

import (
	"github.com/tombee/mcphub/internal/cli"
	"github.com/tombee/mcphub/internal/commands/completion"
	"github.com/tombee/mcphub/internal/commands/secrets"
	"github.com/tombee/mcphub/internal/commands/serve"
	"github.com/tombee/mcphub/internal/commands/servers"
	"github.com/tombee/mcphub/internal/commands/validate"
	versioncmd "github.com/tombee/mcphub/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Hub commands
	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(servers.NewListCommand())
	rootCmd.AddCommand(servers.NewCallCommand())
	rootCmd.AddCommand(servers.NewReadCommand())

	// Configuration
	rootCmd.AddCommand(validate.NewCommand())
	rootCmd.AddCommand(secrets.NewCommand())

	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
