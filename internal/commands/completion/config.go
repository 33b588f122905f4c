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

package completion

import (
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/tombee/mcphub/internal/commands/shared"
	"github.com/tombee/mcphub/internal/mcp"
)

// CheckFilePermissions verifies that a file has secure permissions (mode <= 0600).
// Returns true if permissions are acceptable, false if too permissive.
func CheckFilePermissions(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		// missing files fail later anyway
		return true
	}
	return info.Mode().Perm() <= 0600
}

// SafeCompletionWrapper wraps a completion function with panic recovery.
// Returns empty completion list on panic or error.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}

// CompleteServerNames completes the first argument with the server names
// declared in the global and project files. Nothing is connected.
func CompleteServerNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		rt, err := shared.LoadRuntime()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return declaredServerNames(rt.Store()), cobra.ShellCompDirectiveNoFileComp
	})
}

func declaredServerNames(store *mcp.ConfigStore) []string {
	seen := make(map[string]bool)
	var names []string
	for _, source := range mcp.Sources {
		path, err := store.Path(source)
		if err != nil || !CheckFilePermissions(path) {
			continue
		}
		doc, err := store.Read(source)
		if err != nil {
			continue
		}
		for _, name := range doc.Names() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name+"\t"+string(source))
			}
		}
	}
	sort.Strings(names)
	return names
}

// CompleteSources provides completion for --source flag values.
func CompleteSources(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"auto\tProject server if declared, else global",
			"global\tGlobal MCP settings",
			"project\tProject .mcphub/mcp.json",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}
