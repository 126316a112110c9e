// Package commands implements the five project commands as a closed set of
// variants. Each variant is plain data; Dispatch routes it to the function
// that orchestrates configuration, the runner and the harness.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/mover/internal/runner"
)

// Command is one of New, Build, Compile, Run or Test.
type Command interface {
	command()
}

// New creates a project.
type New struct {
	Home      string
	Name      string
	NoGenesis bool
}

// Build compiles and publishes every module, then compiles every script.
type Build struct {
	Home string
}

// Compile compiles one source file against the previous build.
type Compile struct {
	Home   string
	Source string
	Module bool
}

// Run compiles the project and executes one script.
type Run struct {
	Home     string
	Source   string
	Args     []string
	TypeArgs string
}

// Test executes every test script.
type Test struct {
	Home   string
	Update bool
	Filter string
}

func (New) command()     {}
func (Build) command()   {}
func (Compile) command() {}
func (Run) command()     {}
func (Test) command()    {}

// Env carries what commands share but do not own.
type Env struct {
	Logger        *slog.Logger
	RunnerOptions []runner.Option
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e Env) runnerOptions() []runner.Option {
	return append([]runner.Option{runner.WithLogger(e.logger())}, e.RunnerOptions...)
}

// Dispatch executes cmd. The result's concrete type matches the variant:
// *NewResult, *BuildResult, *CompileResult, *RunResult or *TestResult.
func Dispatch(ctx context.Context, cmd Command, env Env) (any, error) {
	switch c := cmd.(type) {
	case New:
		return NewProject(ctx, c, env)
	case Build:
		return BuildProject(ctx, c, env)
	case Compile:
		return CompileSource(ctx, c, env)
	case Run:
		return RunScript(ctx, c, env)
	case Test:
		return TestProject(ctx, c, env)
	default:
		return nil, fmt.Errorf("unknown command %T", cmd)
	}
}
