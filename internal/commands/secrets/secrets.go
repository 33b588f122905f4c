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

package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"github.com/tombee/mcphub/internal/commands/shared"
	mcplog "github.com/tombee/mcphub/internal/log"
	"github.com/tombee/mcphub/internal/mcp"
)

// NewCommand creates the secrets command for keyring management.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage keyring secrets referenced by server settings",
		Long: `Manage the secrets that MCP settings reference with ${keyring:NAME}.

Secrets live in the system keychain (macOS Keychain, Linux Secret Service,
Windows Credential Manager) under the service "mcphub". Referencing them
keeps tokens out of mcp_settings.json:

  "env": {"GITHUB_TOKEN": "${keyring:github-token}"}

Commands:
  set       Store a secret
  get       Show a secret (masked by default)
  delete    Remove a secret
  check     Report secrets referenced by the settings files`,
	}

	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newCheckCommand())

	return cmd
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret in the keyring",
		Long: `Store a secret in the system keyring.

The value is read from standard input when it is piped, otherwise from a
hidden prompt.`,
		Example: `  mcphub secrets set github-token
  echo "ghp_..." | mcphub secrets set github-token`,
		Args: cobra.ExactArgs(1),
		RunE: runSet,
	}
}

func newGetCommand() *cobra.Command {
	var unmask bool
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show a secret",
		Long:  `Show a secret from the keyring. The value is masked unless --unmask is given.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, args[0], unmask)
		},
	}
	cmd.Flags().BoolVar(&unmask, "unmask", false, "Show full value (not masked)")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a secret from the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, args[0], force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete without confirmation")
	return cmd
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report keyring secrets referenced by the settings files",
		Long: `Check scans the global and project MCP settings for ${keyring:NAME}
placeholders and reports whether each secret exists. Exits with code 2 when
a referenced secret is missing.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
}

func runSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := validateSecretName(name); err != nil {
		return err
	}

	value, err := readSecretValue(cmd)
	if err != nil {
		return fmt.Errorf("failed to read secret value: %w", err)
	}
	if value == "" {
		return errors.New("secret value cannot be empty")
	}

	if err := keyring.Set(mcp.KeyringService, name, value); err != nil {
		return shared.NewFailedError("failed to store secret", err)
	}

	if !shared.GetQuiet() {
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Secret %q stored; reference it as ${keyring:%s}", name, name)))
	}
	return nil
}

func runGet(cmd *cobra.Command, name string, unmask bool) error {
	value, err := keyring.Get(mcp.KeyringService, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return shared.NewFailedError(fmt.Sprintf("secret not found: %q\n\nSet it with: mcphub secrets set %s", name, name), nil)
		}
		return shared.NewFailedError("failed to read secret", err)
	}

	out := cmd.OutOrStdout()
	if unmask {
		fmt.Fprintln(out, value)
		return nil
	}
	fmt.Fprintf(out, "%s (use --unmask to show full value)\n", mcplog.SanitizeSecret(value))
	return nil
}

func runDelete(cmd *cobra.Command, name string, force bool) error {
	out := cmd.OutOrStdout()
	if !force {
		fmt.Fprintf(out, "Are you sure you want to delete secret %q? [y/N]: ", name)
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Deletion canceled")
			return nil
		}
	}

	if err := keyring.Delete(mcp.KeyringService, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return shared.NewFailedError(fmt.Sprintf("secret not found: %q", name), nil)
		}
		return shared.NewFailedError("failed to delete secret", err)
	}

	fmt.Fprintf(out, "Secret %q deleted\n", name)
	return nil
}

// SecretStatus is one referenced secret in the check report.
type SecretStatus struct {
	Name    string   `json:"name"`
	Present bool     `json:"present"`
	Servers []string `json:"servers"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	rt, err := shared.LoadRuntime()
	if err != nil {
		return err
	}

	statuses := checkReferences(rt.Store(), func(name string) bool {
		_, err := keyring.Get(mcp.KeyringService, name)
		return err == nil
	})

	missing := 0
	for _, s := range statuses {
		if !s.Present {
			missing++
		}
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		resp := struct {
			shared.JSONResponse
			Secrets []SecretStatus `json:"secrets"`
		}{
			JSONResponse: shared.NewJSONResponse("secrets check", missing == 0),
			Secrets:      statuses,
		}
		if err := shared.EmitJSON(out, resp); err != nil {
			return err
		}
	} else {
		if len(statuses) == 0 {
			fmt.Fprintln(out, "No keyring secrets referenced.")
		}
		for _, s := range statuses {
			label := fmt.Sprintf("%s (used by %s)", s.Name, strings.Join(s.Servers, ", "))
			if s.Present {
				fmt.Fprintln(out, shared.RenderOK(label))
			} else {
				fmt.Fprintln(out, shared.RenderError(label+" missing"))
			}
		}
	}

	if missing > 0 {
		return shared.NewInvalidConfigError(fmt.Sprintf("%d referenced secret(s) missing", missing), nil)
	}
	return nil
}

// checkReferences collects every ${keyring:NAME} in the settings files and
// the servers that use it. Servers are reported as source/name.
func checkReferences(store *mcp.ConfigStore, present func(string) bool) []SecretStatus {
	users := make(map[string][]string)
	for _, source := range mcp.Sources {
		doc, err := store.Read(source)
		if err != nil {
			continue
		}
		for _, server := range doc.Names() {
			raw, _ := doc.Server(server)
			for _, name := range mcp.SecretReferences(raw) {
				users[name] = append(users[name], string(source)+"/"+server)
			}
		}
	}

	statuses := make([]SecretStatus, 0, len(users))
	for name, servers := range users {
		statuses = append(statuses, SecretStatus{Name: name, Present: present(name), Servers: servers})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// readSecretValue reads from piped input or prompts with hidden input.
func readSecretValue(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Enter secret value (hidden): ")
		value, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(value), nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// validateSecretName rejects names that cannot appear in a placeholder.
func validateSecretName(name string) error {
	if name == "" {
		return errors.New("secret name cannot be empty")
	}
	if strings.ContainsAny(name, " {}$") {
		return errors.New("secret name cannot contain spaces, braces or '$'")
	}
	return nil
}
