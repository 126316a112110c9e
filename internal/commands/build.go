package commands

import (
	"context"

	"github.com/roach88/mover/internal/config"
	"github.com/roach88/mover/internal/runner"
)

// openRunner loads the project at home and creates its runner.
func openRunner(ctx context.Context, home string, env Env) (*runner.Runner, error) {
	cfg, err := config.Load(home)
	if err != nil {
		return nil, err
	}
	return runner.New(ctx, cfg, env.runnerOptions()...)
}

// BuildProject compiles and publishes every module in walk order, then
// compiles every script for its artifacts. Any failure aborts the build.
func BuildProject(ctx context.Context, c Build, env Env) (*BuildResult, error) {
	r, err := openRunner(ctx, c.Home, env)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	res := &BuildResult{Modules: []Unit{}, Scripts: []Unit{}}
	modules, err := r.BuildModules(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range modules {
		res.Modules = append(res.Modules, moduleUnit(b.Source, b.Module))
	}

	scripts, err := r.ScriptPaths(r.Config().ScriptDir())
	if err != nil {
		return nil, err
	}
	for _, path := range scripts {
		s, err := r.CompileScript(ctx, path)
		if err != nil {
			return nil, err
		}
		res.Scripts = append(res.Scripts, scriptUnit(path, s))
	}

	env.logger().Info("build finished", "modules", len(res.Modules), "scripts", len(res.Scripts))
	return res, nil
}
