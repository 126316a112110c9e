package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/roach88/mover/internal/runner"
)

// resolveSource returns source as given when it exists, else relative to
// dir.
func resolveSource(source, dir string) string {
	if _, err := os.Stat(source); err == nil {
		return source
	}
	return filepath.Join(dir, source)
}

// CompileSource compiles one file against the standard library and the
// module artifacts of the previous build. The file's own artifact is left
// out so a module can be recompiled in place.
func CompileSource(ctx context.Context, c Compile, env Env) (*CompileResult, error) {
	r, err := openRunner(ctx, c.Home, env)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	dir := r.Config().ScriptDir()
	if c.Module {
		dir = r.Config().ModuleDir()
	}
	path := resolveSource(c.Source, dir)

	if err := r.LoadArtifacts(ctx, r.ArtifactPath(path, runner.BytecodeExt)); err != nil {
		return nil, err
	}

	if c.Module {
		m, err := r.CompileModule(ctx, path)
		if err != nil {
			return nil, err
		}
		return &CompileResult{Unit: moduleUnit(path, m)}, nil
	}
	s, err := r.CompileScript(ctx, path)
	if err != nil {
		return nil, err
	}
	return &CompileResult{Unit: scriptUnit(path, s)}, nil
}
