package mcpapp

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tasak/tasak/internal/apperr"
	"github.com/tasak/tasak/internal/config"
	"github.com/tasak/tasak/internal/schemacache"
)

// Invocation is a parsed tool selection: the tool to call and its
// arguments keyed by property name.
type Invocation struct {
	Tool string
	Args map[string]interface{}
}

// reservedFlags are intercepted by the runner before the per-tool surface
// sees the arguments. They always win over a tool-declared property of
// the same name.
var reservedFlags = map[string]bool{
	"--clear-cache": true,
	"--interactive": true,
	"-i":            true,
	"--auth":        true,
}

// stripReserved removes runner-reserved flags from argv, reporting which
// were present.
func stripReserved(argv []string) (rest []string, seen map[string]bool) {
	seen = map[string]bool{}
	for _, arg := range argv {
		if reservedFlags[arg] {
			if arg == "-i" {
				seen["--interactive"] = true
			} else {
				seen[arg] = true
			}
			continue
		}
		rest = append(rest, arg)
	}
	return rest, seen
}

// buildSurface synthesizes the command-line surface for a tool catalog:
// one subcommand per tool, one string flag per declared property,
// required flags enforced from the schema's required set. Parsing argv
// against the surface fills in the returned *Invocation; it stays nil
// when only help was requested.
func buildSurface(app *config.App, tools []schemacache.ToolDef, out io.Writer) (*cobra.Command, *Invocation) {
	inv := &Invocation{}

	root := &cobra.Command{
		Use:           "tasak " + app.Key,
		Short:         fmt.Sprintf("Interface for the %q application", app.Key),
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	for _, tool := range tools {
		tool := tool
		cmd := &cobra.Command{
			Use:   tool.Name,
			Short: tool.Description,
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) > 0 {
					return fmt.Errorf("unexpected positional arguments %v; use --key value", args)
				}
				inv.Tool = tool.Name
				inv.Args = collectArgs(cmd.Flags())
				return nil
			},
		}
		for name, prop := range tool.InputSchema.Properties {
			cmd.Flags().String(name, "", prop.Description)
		}
		for _, name := range tool.InputSchema.Required {
			_ = cmd.MarkFlagRequired(name)
		}
		root.AddCommand(cmd)
	}

	return root, inv
}

// collectArgs gathers the flags the user actually set.
func collectArgs(flags *pflag.FlagSet) map[string]interface{} {
	args := map[string]interface{}{}
	flags.Visit(func(f *pflag.Flag) {
		args[f.Name] = f.Value.String()
	})
	return args
}

// ParseInvocation parses argv against the surface built from tools. It
// returns nil without error when help was requested; it returns an error
// for unknown tools, unknown flags, or missing required flags.
func ParseInvocation(app *config.App, tools []schemacache.ToolDef, argv []string, out io.Writer) (*Invocation, error) {
	root, inv := buildSurface(app, tools, out)
	root.SetArgs(argv)

	if err := root.Execute(); err != nil {
		return nil, fmt.Errorf("%w\nRun 'tasak %s --help' for usage", err, app.Key)
	}
	if inv.Tool == "" {
		// No subcommand resolved: cobra printed help for bare
		// invocations and --help alike.
		return nil, nil
	}
	return inv, nil
}

// ParseToolFlags parses ad hoc tokens against one tool's declared schema.
// The interactive loop uses it so line input obeys the same contract as
// the one-shot surface.
func ParseToolFlags(tool schemacache.ToolDef, tokens []string) (map[string]interface{}, error) {
	fs := pflag.NewFlagSet(tool.Name, pflag.ContinueOnError)
	fs.Usage = func() {}
	for name, prop := range tool.InputSchema.Properties {
		fs.String(name, "", prop.Description)
	}
	if err := fs.Parse(tokens); err != nil {
		return nil, err
	}
	if args := fs.Args(); len(args) > 0 {
		return nil, fmt.Errorf("unexpected positional arguments %v; use --key value", args)
	}
	for _, name := range tool.InputSchema.Required {
		if !fs.Changed(name) {
			return nil, fmt.Errorf("required flag --%s not set", name)
		}
	}
	return collectArgs(fs), nil
}

// findTool locates a tool by name in the catalog.
func findTool(tools []schemacache.ToolDef, name string) (schemacache.ToolDef, error) {
	for _, t := range tools {
		if t.Name == name {
			return t, nil
		}
	}
	return schemacache.ToolDef{}, apperr.Newf(apperr.ToolNotFound,
		"tool %q not found in catalog", name)
}
