// Package compiler turns module and script sources into compiled units.
//
// Sources are CUE documents with a top-level "module" or "script" struct.
// The compiler consults only the dependency list it is given: referencing a
// module that is not in that list is an unresolved dependency (E201), never a
// lookup on disk. Every external function a unit calls is recorded in its
// import table so the VM can check linkage when it loads the callee.
package compiler

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/ir"
)

// Source is a named source file.
type Source struct {
	Name string // used in error positions and source maps
	Data []byte
}

// Header is the shallow view of a source: its kind, declared name and the
// modules it says it uses. Reading a header never consults dependencies.
type Header struct {
	Kind string
	Self ir.ModuleID // modules only
	Uses []ir.ModuleID
}

// Compiler compiles CUE sources. It is not safe for concurrent use.
type Compiler struct {
	cue *cue.Context
}

// New returns a compiler with a fresh CUE context.
func New() *Compiler {
	return &Compiler{cue: cuecontext.New()}
}

// ReadHeader parses src far enough to report its kind, name and uses list.
func (c *Compiler) ReadHeader(src Source, sender account.Address) (*Header, error) {
	root, err := c.load(src)
	if err != nil {
		return nil, err
	}
	kind, unit, err := unitOf(root)
	if err != nil {
		return nil, err
	}

	h := &Header{Kind: kind}
	if kind == ir.KindModule {
		h.Self, err = parseSelf(unit, sender)
		if err != nil {
			return nil, err
		}
	}
	uses, _, err := parseUses(unit, sender)
	if err != nil {
		return nil, err
	}
	h.Uses = uses
	return h, nil
}

// CompileModule compiles a module source. deps is the module library in
// order; sender is the default publishing address.
func (c *Compiler) CompileModule(ctx context.Context, src Source, sender account.Address, deps []*ir.CompiledModule) (*ir.CompiledModule, *ir.SourceMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	root, err := c.load(src)
	if err != nil {
		return nil, nil, err
	}
	kind, mv, err := unitOf(root)
	if err != nil {
		return nil, nil, err
	}
	if kind != ir.KindModule {
		return nil, nil, newError(ErrWrongUnitKind, "script", mv.Pos(), "expected a module, found a script")
	}

	if err := allowKeys(mv, "module", "name", "address", "uses", "resources", "functions"); err != nil {
		return nil, nil, err
	}
	self, err := parseSelf(mv, sender)
	if err != nil {
		return nil, nil, err
	}

	u := newUnit(sender, &self, deps)
	if err := u.declareUses(mv); err != nil {
		return nil, nil, err
	}

	m := &ir.CompiledModule{Self: self}
	if m.Resources, err = u.parseResources(mv); err != nil {
		return nil, nil, err
	}

	// Collect function names first so bodies may call functions declared
	// later in the same module.
	fnVals, err := u.declareFunctions(mv)
	if err != nil {
		return nil, nil, err
	}

	sm := &ir.SourceMap{Unit: self.String(), File: src.Name, Functions: []ir.FunctionMap{}}
	for _, fv := range fnVals {
		fn, fmap, err := u.parseFunction(fv.name, fv.value)
		if err != nil {
			return nil, nil, err
		}
		m.Functions = append(m.Functions, *fn)
		sm.Functions = append(sm.Functions, *fmap)
	}

	m.Deps = u.depList()
	m.Imports = u.importList()
	return m, sm, nil
}

// CompileScript compiles a script source. It never mutates deps.
func (c *Compiler) CompileScript(ctx context.Context, src Source, sender account.Address, deps []*ir.CompiledModule) (*ir.CompiledScript, *ir.SourceMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	root, err := c.load(src)
	if err != nil {
		return nil, nil, err
	}
	kind, sv, err := unitOf(root)
	if err != nil {
		return nil, nil, err
	}
	if kind != ir.KindScript {
		return nil, nil, newError(ErrWrongUnitKind, "module", sv.Pos(), "expected a script, found a module")
	}
	if err := allowKeys(sv, "script", "uses", "type_params", "params", "body"); err != nil {
		return nil, nil, err
	}

	u := newUnit(sender, nil, deps)
	if err := u.declareUses(sv); err != nil {
		return nil, nil, err
	}

	fn, fmap, err := u.parseFunction("main", sv)
	if err != nil {
		return nil, nil, err
	}

	s := &ir.CompiledScript{
		Deps:       u.depList(),
		Imports:    u.importList(),
		TypeParams: fn.TypeParams,
		Params:     fn.Params,
		Body:       fn.Body,
	}
	sm := &ir.SourceMap{Unit: "script", File: src.Name, Functions: []ir.FunctionMap{*fmap}}
	return s, sm, nil
}

func (c *Compiler) load(src Source) (cue.Value, error) {
	v := c.cue.CompileBytes(src.Data, cue.Filename(src.Name))
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError("source", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, formatCUEError("source", err)
	}
	return v, nil
}

// unitOf finds the top-level module or script struct.
func unitOf(root cue.Value) (string, cue.Value, error) {
	mv := root.LookupPath(cue.ParsePath(ir.KindModule))
	sv := root.LookupPath(cue.ParsePath(ir.KindScript))
	switch {
	case mv.Exists() && sv.Exists():
		return "", cue.Value{}, newError(ErrUnknownUnit, "source", root.Pos(), "a file declares either a module or a script, not both")
	case mv.Exists():
		return ir.KindModule, mv, nil
	case sv.Exists():
		return ir.KindScript, sv, nil
	default:
		return "", cue.Value{}, newError(ErrUnknownUnit, "source", root.Pos(), "no top-level module or script")
	}
}

func parseSelf(mv cue.Value, sender account.Address) (ir.ModuleID, error) {
	name, ok, err := stringField(mv, "name", "module.name")
	if err != nil {
		return ir.ModuleID{}, err
	}
	if !ok {
		return ir.ModuleID{}, newError(ErrMissingField, "module.name", mv.Pos(), "module name is required")
	}
	if !ir.IsIdentifier(name) {
		return ir.ModuleID{}, newError(ErrInvalidName, "module.name", mv.Pos(), "invalid module name %q", name)
	}

	addr := sender
	text, ok, err := stringField(mv, "address", "module.address")
	if err != nil {
		return ir.ModuleID{}, err
	}
	if ok {
		addr, err = account.ParseAddress(text)
		if err != nil {
			return ir.ModuleID{}, newError(ErrInvalidName, "module.address", mv.Pos(), "%v", err)
		}
	}
	return ir.ModuleID{Address: addr, Name: name}, nil
}

func parseUses(v cue.Value, sender account.Address) ([]ir.ModuleID, []cue.Value, error) {
	usesVal := v.LookupPath(cue.ParsePath("uses"))
	if !usesVal.Exists() {
		return nil, nil, nil
	}
	iter, err := usesVal.List()
	if err != nil {
		return nil, nil, formatCUEError("uses", err)
	}

	var ids []ir.ModuleID
	var vals []cue.Value
	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("uses[%d]", i)
		text, err := iter.Value().String()
		if err != nil {
			return nil, nil, formatCUEError(field, err)
		}
		id, err := ir.ParseModuleID(text, sender)
		if err != nil {
			return nil, nil, newError(ErrInvalidName, field, iter.Value().Pos(), "%v", err)
		}
		ids = append(ids, id)
		vals = append(vals, iter.Value())
	}
	return ids, vals, nil
}

// unit carries name resolution state for one compilation.
type unit struct {
	sender    account.Address
	self      *ir.ModuleID
	deps      map[ir.ModuleID]*ir.CompiledModule
	uses      map[string]ir.ModuleID
	used      map[ir.ModuleID]bool
	imports   map[string]ir.FunctionSig
	functions map[string]bool
}

func newUnit(sender account.Address, self *ir.ModuleID, deps []*ir.CompiledModule) *unit {
	u := &unit{
		sender:    sender,
		self:      self,
		deps:      make(map[ir.ModuleID]*ir.CompiledModule, len(deps)),
		uses:      make(map[string]ir.ModuleID),
		used:      make(map[ir.ModuleID]bool),
		imports:   make(map[string]ir.FunctionSig),
		functions: make(map[string]bool),
	}
	for _, d := range deps {
		u.deps[d.Self] = d
	}
	return u
}

func (u *unit) declareUses(v cue.Value) error {
	ids, vals, err := parseUses(v, u.sender)
	if err != nil {
		return err
	}
	for i, id := range ids {
		field := fmt.Sprintf("uses[%d]", i)
		if u.self != nil && id == *u.self {
			return newError(ErrInvalidName, field, vals[i].Pos(), "module %s cannot use itself", id)
		}
		if _, ok := u.deps[id]; !ok {
			return newError(ErrUnresolvedDependency, field, vals[i].Pos(), "unresolved dependency %s", id)
		}
		if prev, ok := u.uses[id.Name]; ok && prev != id {
			return newError(ErrInvalidName, field, vals[i].Pos(), "ambiguous module name %s: both %s and %s are used", id.Name, prev, id)
		}
		u.uses[id.Name] = id
		u.used[id] = true
	}
	return nil
}

// resolveModule resolves "Name" or "0xADDR::Name" to a module that is either
// the unit itself or in the dependency list.
func (u *unit) resolveModule(text, field string, v cue.Value) (ir.ModuleID, error) {
	var id ir.ModuleID
	if strings.Contains(text, "::") {
		parsed, err := ir.ParseModuleID(text, u.sender)
		if err != nil {
			return ir.ModuleID{}, newError(ErrInvalidName, field, v.Pos(), "%v", err)
		}
		id = parsed
	} else {
		if !ir.IsIdentifier(text) {
			return ir.ModuleID{}, newError(ErrInvalidName, field, v.Pos(), "invalid module name %q", text)
		}
		switch used, ok := u.uses[text]; {
		case ok:
			id = used
		case u.self != nil && u.self.Name == text:
			id = *u.self
		default:
			id = ir.ModuleID{Address: u.sender, Name: text}
		}
	}

	if u.self != nil && id == *u.self {
		return id, nil
	}
	if _, ok := u.deps[id]; !ok {
		return ir.ModuleID{}, newError(ErrUnresolvedDependency, field, v.Pos(), "unresolved dependency %s", id)
	}
	u.used[id] = true
	return id, nil
}

// resolveFunction resolves a call target and records its import signature.
func (u *unit) resolveFunction(text, field string, v cue.Value) (ir.FunctionRef, error) {
	idx := strings.LastIndex(text, "::")
	if idx < 0 {
		if u.self == nil {
			return ir.FunctionRef{}, newError(ErrUnknownFunction, field, v.Pos(), "function %q must be qualified with its module", text)
		}
		if !u.functions[text] {
			return ir.FunctionRef{}, newError(ErrUnknownFunction, field, v.Pos(), "unknown function %s in module %s", text, u.self)
		}
		return ir.FunctionRef{Module: *u.self, Name: text}, nil
	}

	name := text[idx+2:]
	if !ir.IsIdentifier(name) {
		return ir.FunctionRef{}, newError(ErrInvalidName, field, v.Pos(), "invalid function name %q", text)
	}
	id, err := u.resolveModule(text[:idx], field, v)
	if err != nil {
		return ir.FunctionRef{}, err
	}
	ref := ir.FunctionRef{Module: id, Name: name}

	if u.self != nil && id == *u.self {
		if !u.functions[name] {
			return ir.FunctionRef{}, newError(ErrUnknownFunction, field, v.Pos(), "unknown function %s", ref)
		}
		return ref, nil
	}

	dep := u.deps[id]
	fn, ok := dep.Function(name)
	if !ok {
		return ir.FunctionRef{}, newError(ErrUnknownFunction, field, v.Pos(), "unknown function %s", ref)
	}
	if !fn.Public {
		return ir.FunctionRef{}, newError(ErrUnknownFunction, field, v.Pos(), "function %s is not public", ref)
	}
	u.imports[ref.String()] = dep.Signature(fn)
	return ref, nil
}

func (u *unit) depList() []ir.ModuleID {
	if len(u.used) == 0 {
		return nil
	}
	ids := make([]ir.ModuleID, 0, len(u.used))
	for id := range u.used {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b ir.ModuleID) int {
		return strings.Compare(string(ir.ModulePath(a)), string(ir.ModulePath(b)))
	})
	return ids
}

func (u *unit) importList() []ir.FunctionSig {
	if len(u.imports) == 0 {
		return nil
	}
	keys := make([]string, 0, len(u.imports))
	for k := range u.imports {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	sigs := make([]ir.FunctionSig, 0, len(keys))
	for _, k := range keys {
		sigs = append(sigs, u.imports[k])
	}
	return sigs
}
