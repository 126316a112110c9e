package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mover/internal/commands"
)

type compileOptions struct {
	*RootOptions
	Home   string
	Module bool
}

// NewCompileCommand creates the compile command for a single source file.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &compileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <source>",
		Short: "Compile one module or script",
		Long: `Compile one source file against the standard library and the module
artifacts of the previous build. The file is treated as a script unless
--module is given. A relative path that does not exist is resolved
against the script (or module) directory.`,
		Example: `  mover compile transfer.cue
  mover compile --module modules/coin.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts, args[0])
		},
	}

	addHomeFlag(cmd, &opts.Home)
	cmd.Flags().BoolVarP(&opts.Module, "module", "m", false, "compile the file as a module")

	return cmd
}

func runCompile(cmd *cobra.Command, opts *compileOptions, source string) error {
	formatter := opts.formatter(cmd)

	c := commands.Compile{Home: opts.Home, Source: source, Module: opts.Module}
	out, err := commands.Dispatch(cmd.Context(), c, opts.env())
	if err != nil {
		return formatter.Fail("compile failed", err)
	}
	res := out.(*commands.CompileResult)

	return formatter.Success(res, func(w io.Writer) {
		u := res.Unit
		if u.Name != "" {
			fmt.Fprintf(w, "✓ %s %s (%s)\n", u.Kind, u.Name, u.Source)
		} else {
			fmt.Fprintf(w, "✓ %s %s\n", u.Kind, u.Source)
		}
		formatter.VerboseLog("hash: %s", u.Hash)
	})
}
