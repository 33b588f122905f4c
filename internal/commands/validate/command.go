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

package validate

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"
	"github.com/tombee/mcphub/internal/commands/completion"
	"github.com/tombee/mcphub/internal/commands/shared"
	"github.com/tombee/mcphub/internal/mcp"
)

// ServerResult is the validation outcome of one server entry.
type ServerResult struct {
	Name     string            `json:"name"`
	Valid    bool              `json:"valid"`
	Type     mcp.TransportKind `json:"type,omitempty"`
	Disabled bool              `json:"disabled,omitempty"`
	Shadowed bool              `json:"shadowed,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// FileResult is the validation outcome of one configuration file.
type FileResult struct {
	Source  mcp.Source     `json:"source"`
	Path    string         `json:"path"`
	Exists  bool           `json:"exists"`
	Error   string         `json:"error,omitempty"`
	Servers []ServerResult `json:"servers"`
}

// Report is the outcome of validating every configuration file.
type Report struct {
	Files []FileResult `json:"files"`
}

// Errors counts invalid files and servers.
func (r *Report) Errors() int {
	n := 0
	for _, f := range r.Files {
		if f.Error != "" {
			n++
		}
		for _, s := range f.Servers {
			if !s.Valid {
				n++
			}
		}
	}
	return n
}

// Options controls Check.
type Options struct {
	// Sources limits the files checked (defaults to every source)
	Sources []mcp.Source

	// Validate is passed to mcp.ValidateServerConfig
	Validate mcp.ValidateOptions
}

// Check validates every server in the configuration files without
// connecting to any of them. A missing global file is reported but is not
// an error; the hub creates it on start.
func Check(store *mcp.ConfigStore, opts Options) *Report {
	sources := opts.Sources
	if len(sources) == 0 {
		sources = mcp.Sources
	}

	report := &Report{}
	projectNames := make(map[string]bool)

	for _, source := range sources {
		path, err := store.Path(source)
		if errors.Is(err, mcp.ErrNoProject) {
			continue
		}
		file := FileResult{Source: source, Path: path, Servers: []ServerResult{}}
		if err != nil {
			file.Error = err.Error()
			report.Files = append(report.Files, file)
			continue
		}

		doc, err := store.Read(source)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			file.Exists = true
			file.Error = err.Error()
		default:
			file.Exists = true
			for _, name := range doc.Names() {
				raw, _ := doc.Server(name)
				result := ServerResult{Name: name}
				cfg, err := mcp.ValidateServerConfig(raw, name, opts.Validate)
				if err != nil {
					result.Error = err.Error()
				} else {
					result.Valid = true
					result.Type = cfg.Type
					result.Disabled = cfg.Disabled
				}
				if source == mcp.SourceProject {
					projectNames[name] = true
				}
				file.Servers = append(file.Servers, result)
			}
		}
		report.Files = append(report.Files, file)
	}

	for i := range report.Files {
		if report.Files[i].Source != mcp.SourceGlobal {
			continue
		}
		for j := range report.Files[i].Servers {
			s := &report.Files[i].Servers[j]
			s.Shadowed = projectNames[s.Name]
		}
	}
	return report
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	var (
		source  string
		resolve bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the MCP settings files",
		Long: `Validate checks every server entry in the global and project MCP
settings files: transport kind, required fields, URL syntax and timeout range.
No server is started.

With --resolve, ${env:NAME} and ${keyring:NAME} placeholders are expanded as
well, so missing keyring secrets are reported.

See also: mcphub list, mcphub secrets set`,
		Example: `  # Example 1: Validate both files
  mcphub validate

  # Example 2: Validate only the project file of another workspace
  mcphub validate --project ~/src/app --source project

  # Example 3: Check that every referenced secret exists
  mcphub validate --resolve --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, source, resolve)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Validate only this source (global or project)")
	cmd.Flags().BoolVar(&resolve, "resolve", false, "Expand environment and keyring placeholders")
	_ = cmd.RegisterFlagCompletionFunc("source", completion.CompleteSources)

	return cmd
}

func runValidate(cmd *cobra.Command, source string, resolve bool) error {
	rt, err := shared.LoadRuntime()
	if err != nil {
		return err
	}

	opts := Options{Validate: mcp.ValidateOptions{WorkspaceRoots: rt.Config.WorkspaceRoots}}
	if source != "" {
		s, err := mcp.ParseSource(source)
		if err != nil {
			return shared.NewInvalidConfigError("invalid --source", err)
		}
		opts.Sources = []mcp.Source{s}
	}
	if resolve {
		opts.Validate.Resolver = mcp.NewVariableResolver()
	}

	report := Check(rt.Store(), opts)
	failed := report.Errors()

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		resp := struct {
			shared.JSONResponse
			Report
		}{
			JSONResponse: shared.NewJSONResponse("validate", failed == 0),
			Report:       *report,
		}
		if err := shared.EmitJSON(out, resp); err != nil {
			return err
		}
		if failed > 0 {
			return &shared.ExitError{Code: shared.ExitInvalidConfig}
		}
		return nil
	}

	printReport(out, report)
	if failed > 0 {
		return shared.NewInvalidConfigError(fmt.Sprintf("validation failed with %d error(s)", failed), nil)
	}
	fmt.Fprintln(out, "\nValidation PASSED")
	return nil
}

func printReport(w io.Writer, report *Report) {
	for i, f := range report.Files {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n", shared.Header.Render(string(f.Source)), shared.Muted.Render(f.Path))

		switch {
		case f.Error != "":
			fmt.Fprintf(w, "  %s\n", shared.RenderError(f.Error))
			continue
		case !f.Exists:
			fmt.Fprintf(w, "  %s\n", shared.Muted.Render("not found"))
			continue
		case len(f.Servers) == 0:
			fmt.Fprintf(w, "  %s\n", shared.Muted.Render("no servers"))
			continue
		}

		for _, s := range f.Servers {
			if !s.Valid {
				fmt.Fprintf(w, "  %s\n", shared.RenderError(s.Name+": "+s.Error))
				continue
			}
			label := fmt.Sprintf("%s (%s)", s.Name, s.Type)
			switch {
			case s.Shadowed:
				fmt.Fprintf(w, "  %s\n", shared.RenderWarn(label+" overridden by project server"))
			case s.Disabled:
				fmt.Fprintf(w, "  %s\n", shared.RenderOK(label+" disabled"))
			default:
				fmt.Fprintf(w, "  %s\n", shared.RenderOK(label))
			}
		}
	}
}
