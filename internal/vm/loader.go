package vm

import (
	"context"
	"slices"

	"github.com/roach88/mover/internal/ir"
)

// loader caches modules read from the transaction's view and links each one
// the first time it is used.
type loader struct {
	txn     *TransactionContext
	modules map[ir.ModuleID]*ir.CompiledModule
	linked  map[ir.ModuleID]bool
}

func newLoader(txn *TransactionContext) *loader {
	return &loader{
		txn:     txn,
		modules: make(map[ir.ModuleID]*ir.CompiledModule),
		linked:  make(map[ir.ModuleID]bool),
	}
}

// load reads and decodes a module without linking it.
func (l *loader) load(ctx context.Context, id ir.ModuleID) (*ir.CompiledModule, error) {
	if m, ok := l.modules[id]; ok {
		return m, nil
	}
	data, ok, err := l.txn.Get(ctx, ir.ModulePath(id))
	if err != nil {
		return nil, newError(StatusStorageError, "load module %s: %v", id, err)
	}
	if !ok {
		return nil, newError(StatusLinkerError, "module %s is not published", id)
	}
	m, err := ir.DeserializeModule(data)
	if err != nil {
		return nil, newError(StatusDeserializationError, "module %s: %v", id, err)
	}
	if m.Self != id {
		return nil, newError(StatusDeserializationError, "module stored at %s declares itself %s", id, m.Self)
	}
	l.modules[id] = m
	return m, nil
}

// module loads id and links its imports once.
func (l *loader) module(ctx context.Context, id ir.ModuleID) (*ir.CompiledModule, error) {
	m, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.linked[id] {
		return m, nil
	}
	// Marked before linking so a malformed dependency cycle terminates.
	l.linked[id] = true
	if err := l.link(ctx, id.String(), m.Imports); err != nil {
		return nil, err
	}
	return m, nil
}

// link checks every import against the module that publishes it.
func (l *loader) link(ctx context.Context, who string, imports []ir.FunctionSig) error {
	for _, sig := range imports {
		m, err := l.load(ctx, sig.Ref.Module)
		if err != nil {
			if ve, ok := AsVMError(err); ok && ve.Status == StatusLinkerError {
				ve.Message = who + " imports " + sig.Ref.String() + ": " + ve.Message
			}
			return err
		}
		fn, ok := m.Function(sig.Ref.Name)
		if !ok {
			return newError(StatusLinkerError, "%s imports %s, which is not declared", who, sig.Ref)
		}
		if !fn.Public {
			return newError(StatusLinkerError, "%s imports %s, which is not public", who, sig.Ref)
		}
		published := m.Signature(fn)
		if !slices.Equal(published.TypeParams, sig.TypeParams) || !slices.Equal(published.Params, sig.Params) {
			return newError(StatusLinkerError, "%s imports %s with signature %v, published %v",
				who, sig.Ref, sig.Params, published.Params)
		}
	}
	return nil
}

// checkTypeArg accepts a primitive type or a struct tag naming a resource
// declared by a published module.
func (l *loader) checkTypeArg(ctx context.Context, t ir.Type) error {
	if t.IsPrimitive() {
		return nil
	}
	if !t.IsStruct() {
		return newError(StatusTypeMismatch, "invalid type argument %q", t)
	}
	tag, err := ir.ParseStructTag(string(t))
	if err != nil {
		return newError(StatusTypeMismatch, "%v", err)
	}
	m, err := l.load(ctx, tag.Module)
	if err != nil {
		return err
	}
	if _, ok := m.Resource(tag.Name); !ok {
		return newError(StatusTypeMismatch, "type argument %s: module %s declares no resource %s", t, tag.Module, tag.Name)
	}
	return nil
}
