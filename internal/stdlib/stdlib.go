// Package stdlib provides the standard library module sources published at
// 0x1: Account (a u64 balance per address) and Debug (test assertions).
//
// The sources are embedded and compiled by the runner like any other module.
// A project may replace them with its own directory of sources.
package stdlib

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/compiler"
	"github.com/roach88/mover/internal/ir"
)

//go:embed sources/*.cue
var embedded embed.FS

// SourceExt is the file extension of module and script sources.
const SourceExt = ".cue"

// Address is where the standard library is published.
var Address = account.CoreAddress

// Well-known standard library names.
var (
	AccountModule = ir.ModuleID{Address: Address, Name: "Account"}
	DebugModule   = ir.ModuleID{Address: Address, Name: "Debug"}
	BalanceTag    = ir.StructTag{Module: AccountModule, Name: "Balance"}
)

// Abort codes raised by the standard library.
const (
	AbortBalanceExists     = 1
	AbortNoBalance         = 2
	AbortInsufficientFunds = 3
	AbortBalanceNotEmpty   = 4
	AbortNotEqual          = 100
	AbortNotTrue           = 101
)

// Sources returns the embedded sources in compile order.
func Sources() ([]compiler.Source, error) {
	entries, err := fs.ReadDir(embedded, "sources")
	if err != nil {
		return nil, fmt.Errorf("read embedded stdlib: %w", err)
	}

	// ReadDir sorts by file name, which is also the compile order.
	var srcs []compiler.Source
	for _, e := range entries {
		data, err := embedded.ReadFile("sources/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded stdlib %s: %w", e.Name(), err)
		}
		srcs = append(srcs, compiler.Source{Name: "stdlib/" + e.Name(), Data: data})
	}
	return srcs, nil
}

// LoadDir reads every source under dir, recursively, in lexical walk order.
// A missing directory is an error: a project that asks for a custom standard
// library must provide one.
func LoadDir(dir string) ([]compiler.Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("custom stdlib: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("custom stdlib: %s is not a directory", dir)
	}

	paths, err := Glob(dir)
	if err != nil {
		return nil, fmt.Errorf("custom stdlib: %w", err)
	}
	srcs := make([]compiler.Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("custom stdlib: %w", err)
		}
		srcs = append(srcs, compiler.Source{Name: p, Data: data})
	}
	return srcs, nil
}

// Glob lists the source files under dir in lexical walk order. A directory
// that does not exist yields no files.
func Glob(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), SourceExt) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
