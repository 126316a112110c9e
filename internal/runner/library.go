package runner

import (
	"errors"
	"fmt"

	"github.com/roach88/mover/internal/ir"
	"github.com/roach88/mover/internal/verifier"
)

// ErrDuplicateModule is returned when a module id is added twice.
var ErrDuplicateModule = errors.New("duplicate module")

// Library is the ordered, append-only list of verified modules that units
// compile against.
type Library struct {
	modules []*verifier.VerifiedModule
	index   map[ir.ModuleID]int
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{index: make(map[ir.ModuleID]int)}
}

// Add appends m. A module whose id is already present is rejected.
func (l *Library) Add(m *verifier.VerifiedModule) error {
	if _, ok := l.index[m.ID()]; ok {
		return fmt.Errorf("%w %s", ErrDuplicateModule, m.ID())
	}
	l.index[m.ID()] = len(l.modules)
	l.modules = append(l.modules, m)
	return nil
}

// Get returns the module with id.
func (l *Library) Get(id ir.ModuleID) (*verifier.VerifiedModule, bool) {
	i, ok := l.index[id]
	if !ok {
		return nil, false
	}
	return l.modules[i], true
}

// Len returns the number of modules.
func (l *Library) Len() int { return len(l.modules) }

// Modules returns the modules in insertion order.
func (l *Library) Modules() []*verifier.VerifiedModule {
	return append([]*verifier.VerifiedModule(nil), l.modules...)
}

// Compiled returns the compiled form of every module, in order, for use as
// compiler dependencies.
func (l *Library) Compiled() []*ir.CompiledModule {
	out := make([]*ir.CompiledModule, len(l.modules))
	for i, m := range l.modules {
		out[i] = m.Module()
	}
	return out
}
