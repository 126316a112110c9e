package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mover/internal/commands"
)

type newOptions struct {
	*RootOptions
	Home      string
	Name      string
	NoGenesis bool
}

// NewNewCommand creates the new command for creating a project.
func NewNewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &newOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a project",
		Long: `Create a project: Move.toml, the module, script, test and target
directories and a genesis snapshot holding the standard library and a
funded developer account, signed with a freshly generated developer key.

The name comes from --name or the argument and defaults to move-project.
Without --home the project is created in ./<name> when a name is given and
in the current directory otherwise.`,
		Example: `  mover new wallet
  mover new --home /tmp/proj --name demo --no-genesis
  mover new`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && opts.Name == "" {
				opts.Name = args[0]
			}
			return runNew(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Home, "home", "", "project directory (default ./<name>, or . without a name)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().BoolVar(&opts.NoGenesis, "no-genesis", false, "do not write a genesis snapshot")

	return cmd
}

func runNew(cmd *cobra.Command, opts *newOptions) error {
	formatter := opts.formatter(cmd)

	name, home := opts.Name, opts.Home
	if home == "" {
		home = "."
		if name != "" {
			home = name
		}
	}

	out, err := commands.Dispatch(cmd.Context(), commands.New{Home: home, Name: name, NoGenesis: opts.NoGenesis}, opts.env())
	if err != nil {
		return formatter.Fail("new failed", err)
	}
	res := out.(*commands.NewResult)

	return formatter.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Created project %s in %s\n", res.Name, res.Home)
		fmt.Fprintf(w, "  Developer address: %s\n", res.Address)
		if res.Genesis != "" {
			fmt.Fprintf(w, "  Genesis: %s\n", res.Genesis)
		}
	})
}
