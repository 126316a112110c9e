package harness

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/roach88/mover/internal/execution"
	"github.com/roach88/mover/internal/ir"
	"github.com/roach88/mover/internal/verifier"
)

// SidecarExt is the extension of expectation sidecars.
const SidecarExt = ".yaml"

// Executor compiles and executes test scripts. The runner implements it.
type Executor interface {
	CompileScript(ctx context.Context, path string) (*verifier.VerifiedScript, error)
	Execute(ctx context.Context, script *verifier.VerifiedScript, args []ir.Value, typeArgs []ir.Type) (*execution.Result, error)
}

// Options configures a run.
type Options struct {
	Golden Golden
	Logger *slog.Logger
}

// Stem returns a test file's name without directory or extension.
func Stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Filter keeps the files whose stem matches pattern. An empty pattern keeps
// everything.
func Filter(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", pattern, err)
	}
	var out []string
	for _, f := range files {
		if ok, _ := filepath.Match(pattern, Stem(f)); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// Run executes every file in order and reports each outcome. One file's
// failure never stops the batch. Only a cancelled context ends it early.
func Run(ctx context.Context, exec Executor, files []string, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	report := &Report{Cases: []CaseResult{}}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		c := runCase(ctx, exec, file, opts.Golden)
		if c.Passed() {
			logger.Info("test passed", "test", c.Name)
		} else {
			logger.Info("test failed", "test", c.Name, "error", c.Error)
		}
		report.Add(c)
	}
	return report, nil
}

func runCase(ctx context.Context, exec Executor, file string, golden Golden) CaseResult {
	stem := Stem(file)
	c := CaseResult{File: file, Name: stem, Status: StatusFail}

	exp, err := LoadExpectation(strings.TrimSuffix(file, filepath.Ext(file)) + SidecarExt)
	if err != nil {
		c.Error = err.Error()
		return c
	}

	script, err := exec.CompileScript(ctx, file)
	if err != nil {
		// A test may expect its own compile or verification error.
		if c.Error = exp.Check(err); c.Error == "" {
			c.Status = StatusPass
		}
		return c
	}

	res, err := exec.Execute(ctx, script, nil, nil)
	if msg := exp.Check(err); msg != "" {
		c.Error = msg
		return c
	}
	if err != nil {
		// Expected failure.
		c.Status = StatusPass
		return c
	}

	c.GasUsed = res.GasUsed
	diff, err := golden.Check(stem, res.WriteSet)
	if err != nil {
		c.Error = err.Error()
		return c
	}
	if diff != "" {
		c.Error = "write set does not match " + golden.Path(stem)
		c.Diff = diff
		return c
	}
	c.Status = StatusPass
	return c
}
