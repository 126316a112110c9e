package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mover/internal/commands"
)

type runOptions struct {
	*RootOptions
	Home     string
	TypeArgs string
}

// NewRunCommand creates the run command for executing a script.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script> [args...]",
		Short: "Build the project and execute a script",
		Long: `Build the project, compile the script and execute it as the developer
account against the genesis state. Arguments are parsed as transaction
arguments: 0x-prefixed addresses, u64 integers, true/false, or b"..."
and x"..." byte strings.

On success the write set is printed and, when state saving is enabled
in Move.toml, merged into a newly signed genesis snapshot.`,
		Example: `  mover run transfer.cue 0xb0b 100
  mover run --type-args u64 echo.cue 7`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts, args[0], args[1:])
		},
	}

	addHomeFlag(cmd, &opts.Home)
	cmd.Flags().StringVar(&opts.TypeArgs, "type-args", "", "comma-separated type arguments")

	return cmd
}

func runRun(cmd *cobra.Command, opts *runOptions, script string, args []string) error {
	formatter := opts.formatter(cmd)

	c := commands.Run{Home: opts.Home, Source: script, Args: args, TypeArgs: opts.TypeArgs}
	out, err := commands.Dispatch(cmd.Context(), c, opts.env())
	if err != nil {
		return formatter.Fail("run failed", err)
	}
	res := out.(*commands.RunResult)

	return formatter.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Executed %s\n", script)
		fmt.Fprintf(w, "  Transaction: %s\n", res.TxnID)
		fmt.Fprintf(w, "  Gas used: %d\n", res.GasUsed)
		if len(res.WriteSet) == 0 {
			fmt.Fprintln(w, "  Write set: empty")
		} else {
			fmt.Fprintln(w, "  Write set:")
			for _, op := range res.WriteSet {
				fmt.Fprintf(w, "    %s\n", op)
			}
		}
		if res.GenesisSaved {
			fmt.Fprintln(w, "  Genesis updated")
		}
	})
}
