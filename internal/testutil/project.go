// Package testutil provides project fixtures for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/mover/internal/config"
)

// Project is a freshly initialized project under t.TempDir().
type Project struct {
	t      testing.TB
	Config *config.Config
}

// NewProject creates and initializes a project named "fixture". Each edit
// is applied to the config before Move.toml is written.
func NewProject(t testing.TB, edits ...func(*config.Config)) *Project {
	t.Helper()
	cfg, err := config.Create("fixture", filepath.Join(t.TempDir(), "project"))
	require.NoError(t, err)
	for _, edit := range edits {
		edit(cfg)
	}
	require.NoError(t, cfg.Initialize())
	return &Project{t: t, Config: cfg}
}

// Home returns the project directory.
func (p *Project) Home() string {
	return p.Config.Home
}

// WriteFile writes data to rel under home, creating parent directories.
func (p *Project) WriteFile(rel, data string) string {
	p.t.Helper()
	path := filepath.Join(p.Home(), rel)
	require.NoError(p.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(p.t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

// WriteModule writes a module source into the module directory.
func (p *Project) WriteModule(name, src string) string {
	p.t.Helper()
	return p.WriteFile(filepath.Join(p.Config.Workspace.ModuleDir, name), src)
}

// WriteScript writes a script source into the script directory.
func (p *Project) WriteScript(name, src string) string {
	p.t.Helper()
	return p.WriteFile(filepath.Join(p.Config.Workspace.ScriptDir, name), src)
}

// WriteTest writes a file into the test directory.
func (p *Project) WriteTest(name, src string) string {
	p.t.Helper()
	return p.WriteFile(filepath.Join(p.Config.Workspace.TestDir, name), src)
}

// Target reads an artifact from the target directory.
func (p *Project) Target(name string) []byte {
	p.t.Helper()
	data, err := os.ReadFile(filepath.Join(p.Config.TargetDir(), name))
	require.NoError(p.t, err)
	return data
}

// TargetFiles lists the target directory's files, sorted.
func (p *Project) TargetFiles() []string {
	p.t.Helper()
	entries, err := os.ReadDir(p.Config.TargetDir())
	require.NoError(p.t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
