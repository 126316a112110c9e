package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mover/internal/commands"
	"github.com/roach88/mover/internal/harness"
)

type testOptions struct {
	*RootOptions
	Home   string
	Update bool
	Filter string
}

// NewTestCommand creates the test command for running test scripts.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &testOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Execute every test script",
		Long: `Build the project and execute every script under the test directory.
Each test runs in isolation against the built state: no test sees
another's writes.

A test passes when it executes successfully, or as its .yaml sidecar
expects (an abort code or an error). A golden write set in
<test_dir>/golden/<name>.golden is compared when present; --update
rewrites it.

Exit codes:
  0 - all tests passed
  1 - one or more tests failed
  2 - the project could not be built`,
		Example: `  mover test
  mover test --filter 'pay_*' --update`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, opts)
		},
	}

	addHomeFlag(cmd, &opts.Home)
	cmd.Flags().BoolVarP(&opts.Update, "update", "u", false, "rewrite golden write sets")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run tests whose file stem matches this glob")

	return cmd
}

func runTest(cmd *cobra.Command, opts *testOptions) error {
	formatter := opts.formatter(cmd)

	c := commands.Test{Home: opts.Home, Update: opts.Update, Filter: opts.Filter}
	out, err := commands.Dispatch(cmd.Context(), c, opts.env())
	if err != nil {
		return formatter.Fail("test failed", err)
	}
	report := out.(*commands.TestResult).Report
	total := report.Passed + report.Failed

	if formatter.Format == FormatJSON {
		if report.OK() {
			return formatter.Success(report, nil)
		}
		if err := formatter.Error("E_TEST_FAILED", fmt.Sprintf("%d of %d tests failed", report.Failed, total), report); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "tests failed")
	}

	w := cmd.OutOrStdout()
	for _, tc := range report.Cases {
		printCase(w, tc, opts.Verbose)
	}
	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", report.Passed, report.Failed, total)

	if !report.OK() {
		return NewExitError(ExitFailure, "tests failed")
	}
	return nil
}

func printCase(w io.Writer, c harness.CaseResult, verbose bool) {
	if c.Passed() {
		if verbose {
			fmt.Fprintf(w, "✓ %s (gas %d)\n", c.Name, c.GasUsed)
		} else {
			fmt.Fprintf(w, "✓ %s\n", c.Name)
		}
		return
	}
	fmt.Fprintf(w, "✗ %s\n", c.Name)
	if c.Error != "" {
		fmt.Fprintf(w, "    %s\n", c.Error)
	}
	if c.Diff != "" {
		fmt.Fprintf(w, "%s\n", c.Diff)
	}
}
