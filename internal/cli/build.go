package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mover/internal/commands"
)

type buildOptions struct {
	*RootOptions
	Home string
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &buildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile and publish every module, then compile every script",
		Long: `Compile every module under the module directory in lexical walk order,
publishing each into the local store before compiling the next, then
compile every script under the script directory.

A module may only depend on the standard library and modules that come
before it in walk order.`,
		Example: `  mover build
  mover build --home ./wallet --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, opts)
		},
	}

	addHomeFlag(cmd, &opts.Home)

	return cmd
}

func runBuild(cmd *cobra.Command, opts *buildOptions) error {
	formatter := opts.formatter(cmd)

	out, err := commands.Dispatch(cmd.Context(), commands.Build{Home: opts.Home}, opts.env())
	if err != nil {
		return formatter.Fail("build failed", err)
	}
	res := out.(*commands.BuildResult)

	return formatter.Success(res, func(w io.Writer) {
		for _, u := range res.Modules {
			fmt.Fprintf(w, "✓ module %s (%s)\n", u.Name, u.Source)
		}
		for _, u := range res.Scripts {
			fmt.Fprintf(w, "✓ script %s\n", u.Source)
		}
		fmt.Fprintf(w, "Build Summary: %d modules, %d scripts\n", len(res.Modules), len(res.Scripts))
	})
}
