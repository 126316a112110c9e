package commands

import (
	"context"
	"path/filepath"

	"github.com/roach88/mover/internal/harness"
)

// GoldenDir is the directory under the test directory that holds golden
// write sets.
const GoldenDir = "golden"

// TestProject seeds state from genesis, builds every module and runs every
// test script, optionally filtered by stem. Test failures are reported in
// the result, not as an error; only setup problems are errors.
func TestProject(ctx context.Context, c Test, env Env) (*TestResult, error) {
	r, err := openRunner(ctx, c.Home, env)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if _, err := r.ApplyGenesis(ctx); err != nil {
		return nil, err
	}
	if _, err := r.BuildModules(ctx); err != nil {
		return nil, err
	}

	files, err := r.ScriptPaths(r.Config().TestDir())
	if err != nil {
		return nil, err
	}
	files, err = harness.Filter(files, c.Filter)
	if err != nil {
		return nil, &ArgumentError{Err: err}
	}

	report, err := harness.Run(ctx, r, files, harness.Options{
		Golden: harness.Golden{Dir: filepath.Join(r.Config().TestDir(), GoldenDir), Update: c.Update},
		Logger: env.logger(),
	})
	if err != nil {
		return nil, err
	}
	return &TestResult{Report: report}, nil
}
