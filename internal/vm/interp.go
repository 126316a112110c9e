package vm

import (
	"cmp"
	"context"
	"errors"
	"math"
	"math/bits"
	"slices"

	"github.com/holiman/uint256"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/ir"
)

type interpreter struct {
	ctx      context.Context
	gas      GasSchedule
	txn      *TransactionContext
	meta     TransactionMetadata
	loader   *loader
	depth    int
	maxDepth int
}

// frame is one function activation.
type frame struct {
	module   *ir.CompiledModule // nil for the script
	location string
	imports  []ir.FunctionSig
	typeArgs map[string]ir.Type
	locals   map[string]ir.Value
	offset   int
}

// locate stamps the frame position onto errors raised in this frame.
// Errors from nested calls already carry their own position.
func (f *frame) locate(err error) error {
	var ve *VMError
	if errors.As(err, &ve) && ve.Location == "" {
		ve.Location = f.location
		ve.Offset = f.offset
	}
	return err
}

func (in *interpreter) run(f *frame, body []ir.Instr) error {
	for i := range body {
		if err := in.ctx.Err(); err != nil {
			return err
		}
		f.offset = i
		if err := in.exec(f, &body[i]); err != nil {
			return f.locate(err)
		}
	}
	return nil
}

func (in *interpreter) exec(f *frame, instr *ir.Instr) error {
	if err := in.txn.charge(in.gas.Cost(instr.Op)); err != nil {
		return err
	}

	switch instr.Op {
	case ir.OpMoveTo:
		res, tag, err := resource(f, instr.Resource)
		if err != nil {
			return err
		}
		path := ir.ResourcePath(in.meta.Sender, tag)
		if _, ok, err := in.get(path); err != nil {
			return err
		} else if ok {
			return newError(StatusResourceAlreadyExists, "%s already holds %s", in.meta.Sender, tag)
		}
		fields := make(ir.Fields, len(res.Fields))
		if err := in.evalFields(f, res, instr.Fields, fields); err != nil {
			return err
		}
		if len(fields) != len(res.Fields) {
			return newError(StatusTypeMismatch, "move_to of %s sets %d of %d fields", tag, len(fields), len(res.Fields))
		}
		return in.store(path, fields)

	case ir.OpMoveFrom:
		_, tag, err := resource(f, instr.Resource)
		if err != nil {
			return err
		}
		owner, err := in.owner(f, instr.At)
		if err != nil {
			return err
		}
		path := ir.ResourcePath(owner, tag)
		if _, ok, err := in.get(path); err != nil {
			return err
		} else if !ok {
			return newError(StatusMissingData, "no %s at %s", tag, owner)
		}
		in.txn.Delete(path)
		return nil

	case ir.OpUpdate:
		res, tag, err := resource(f, instr.Resource)
		if err != nil {
			return err
		}
		owner, err := in.owner(f, instr.At)
		if err != nil {
			return err
		}
		current, err := in.read(res, tag, owner)
		if err != nil {
			return err
		}
		// New values are computed against the state before the update.
		updated := make(ir.Fields, len(instr.Fields))
		if err := in.evalFields(f, res, instr.Fields, updated); err != nil {
			return err
		}
		for name, v := range updated {
			current[name] = v
		}
		return in.store(ir.ResourcePath(owner, tag), current)

	case ir.OpCall:
		return in.call(f, instr)

	case ir.OpAssert:
		if instr.Cond == nil {
			return newError(StatusTypeMismatch, "assert without a condition")
		}
		v, err := in.eval(f, instr.Cond)
		if err != nil {
			return err
		}
		b, ok := v.(ir.Bool)
		if !ok {
			return newError(StatusTypeMismatch, "assert condition is %s, not bool", v.Type())
		}
		if !b {
			return &VMError{Status: StatusAborted, AbortCode: instr.Code, Message: "assertion failed"}
		}
		return nil

	case ir.OpAbort:
		return &VMError{Status: StatusAborted, AbortCode: instr.Code, Message: "aborted"}

	default:
		return newError(StatusDeserializationError, "unknown op %q", instr.Op)
	}
}

func (in *interpreter) call(f *frame, instr *ir.Instr) error {
	if instr.Function == nil {
		return newError(StatusFunctionResolutionFailure, "call without a target")
	}
	ref := *instr.Function

	callee := f.module
	if callee == nil || ref.Module != callee.Self {
		imported := slices.ContainsFunc(f.imports, func(sig ir.FunctionSig) bool { return sig.Ref == ref })
		if !imported {
			return newError(StatusFunctionResolutionFailure, "%s is not in the import table of %s", ref, f.location)
		}
		m, err := in.loader.module(in.ctx, ref.Module)
		if err != nil {
			return err
		}
		callee = m
	}
	fn, ok := callee.Function(ref.Name)
	if !ok {
		return newError(StatusFunctionResolutionFailure, "%s is not declared", ref)
	}

	if len(instr.TypeArgs) != len(fn.TypeParams) {
		return newError(StatusTypeArgumentCountMismatch, "%s takes %d type arguments, got %d",
			ref, len(fn.TypeParams), len(instr.TypeArgs))
	}
	bound := make(map[string]ir.Type, len(fn.TypeParams))
	for i, t := range instr.TypeArgs {
		bound[fn.TypeParams[i]] = substitute(t, f.typeArgs)
	}

	if len(instr.Args) != len(fn.Params) {
		return newError(StatusArgumentCountMismatch, "%s takes %d arguments, got %d",
			ref, len(fn.Params), len(instr.Args))
	}
	locals := make(map[string]ir.Value, len(fn.Params))
	for i, p := range fn.Params {
		v, err := in.eval(f, &instr.Args[i])
		if err != nil {
			return err
		}
		if err := checkType(v, substitute(p.Type, bound)); err != nil {
			err.Message = "argument " + p.Name + " of " + ref.String() + ": " + err.Message
			return err
		}
		locals[p.Name] = v
	}

	if in.depth+1 > in.maxDepth {
		return newError(StatusCallStackOverflow, "call depth exceeds %d", in.maxDepth)
	}
	in.depth++
	defer func() { in.depth-- }()

	return in.run(&frame{
		module:   callee,
		location: ref.String(),
		imports:  callee.Imports,
		typeArgs: bound,
		locals:   locals,
	}, fn.Body)
}

// eval evaluates an expression, charging one ExprNode per node.
func (in *interpreter) eval(f *frame, e *ir.Expr) (ir.Value, error) {
	if err := in.txn.charge(in.gas.ExprNode); err != nil {
		return nil, err
	}

	switch e.Kind {
	case ir.ExprConst:
		v, err := ir.ParseLiteral(e.Type, e.Value)
		if err != nil {
			return nil, newError(StatusDeserializationError, "constant: %v", err)
		}
		return v, nil

	case ir.ExprParam:
		v, ok := f.locals[e.Name]
		if !ok {
			return nil, newError(StatusTypeMismatch, "unbound parameter $%s", e.Name)
		}
		return v, nil

	case ir.ExprSender:
		return ir.AddressValue(in.meta.Sender), nil

	case ir.ExprAdd, ir.ExprSub, ir.ExprEq, ir.ExprGte:
		if len(e.Operands) != 2 {
			return nil, newError(StatusTypeMismatch, "%s takes two operands", e.Kind)
		}
		a, err := in.eval(f, &e.Operands[0])
		if err != nil {
			return nil, err
		}
		b, err := in.eval(f, &e.Operands[1])
		if err != nil {
			return nil, err
		}
		if a.Type() != b.Type() {
			return nil, newError(StatusTypeMismatch, "%s of %s and %s", e.Kind, a.Type(), b.Type())
		}
		switch e.Kind {
		case ir.ExprEq:
			return ir.Bool(ir.Equal(a, b)), nil
		case ir.ExprGte:
			order, err := compare(a, b)
			if err != nil {
				return nil, err
			}
			return ir.Bool(order >= 0), nil
		default:
			return arith(e.Kind, a, b)
		}

	case ir.ExprNot:
		if len(e.Operands) != 1 {
			return nil, newError(StatusTypeMismatch, "not takes one operand")
		}
		v, err := in.eval(f, &e.Operands[0])
		if err != nil {
			return nil, err
		}
		b, ok := v.(ir.Bool)
		if !ok {
			return nil, newError(StatusTypeMismatch, "not of %s", v.Type())
		}
		return !b, nil

	case ir.ExprExists:
		_, tag, err := resource(f, e.Name)
		if err != nil {
			return nil, err
		}
		owner, err := in.owner(f, e.At)
		if err != nil {
			return nil, err
		}
		_, ok, err := in.get(ir.ResourcePath(owner, tag))
		if err != nil {
			return nil, err
		}
		return ir.Bool(ok), nil

	case ir.ExprField:
		res, tag, err := resource(f, e.Name)
		if err != nil {
			return nil, err
		}
		owner, err := in.owner(f, e.At)
		if err != nil {
			return nil, err
		}
		fields, err := in.read(res, tag, owner)
		if err != nil {
			return nil, err
		}
		v, ok := fields[e.Field]
		if !ok {
			return nil, newError(StatusTypeMismatch, "%s has no field %q", tag, e.Field)
		}
		return v, nil

	default:
		return nil, newError(StatusDeserializationError, "unknown expression kind %q", e.Kind)
	}
}

// evalFields evaluates field expressions in layout order into out. Every
// expression must name a declared field and have its type.
func (in *interpreter) evalFields(f *frame, res *ir.ResourceDef, exprs map[string]ir.Expr, out ir.Fields) error {
	for _, p := range res.Fields {
		e, ok := exprs[p.Name]
		if !ok {
			continue
		}
		v, err := in.eval(f, &e)
		if err != nil {
			return err
		}
		if err := checkType(v, p.Type); err != nil {
			err.Message = "field " + res.Name + "." + p.Name + ": " + err.Message
			return err
		}
		out[p.Name] = v
	}
	if len(out) < len(exprs) {
		return newError(StatusTypeMismatch, "unknown field for %s", res.Name)
	}
	return nil
}

// owner evaluates an optional "at" expression, defaulting to the sender.
func (in *interpreter) owner(f *frame, at *ir.Expr) (account.Address, error) {
	if at == nil {
		return in.meta.Sender, nil
	}
	v, err := in.eval(f, at)
	if err != nil {
		return account.Address{}, err
	}
	addr, ok := v.(ir.AddressValue)
	if !ok {
		return account.Address{}, newError(StatusTypeMismatch, "at must be an address, got %s", v.Type())
	}
	return account.Address(addr), nil
}

func (in *interpreter) get(path ir.AccessPath) ([]byte, bool, error) {
	data, ok, err := in.txn.Get(in.ctx, path)
	if err != nil {
		return nil, false, newError(StatusStorageError, "read %s: %v", path, err)
	}
	return data, ok, nil
}

func (in *interpreter) read(res *ir.ResourceDef, tag ir.StructTag, owner account.Address) (ir.Fields, error) {
	path := ir.ResourcePath(owner, tag)
	data, ok, err := in.get(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(StatusMissingData, "no %s at %s", tag, owner)
	}
	fields, err := ir.DecodeResource(data, res.Fields)
	if err != nil {
		return nil, newError(StatusDeserializationError, "%s: %v", path, err)
	}
	return fields, nil
}

func (in *interpreter) store(path ir.AccessPath, fields ir.Fields) error {
	data, err := ir.EncodeResource(fields)
	if err != nil {
		return newError(StatusDeserializationError, "encode %s: %v", path, err)
	}
	in.txn.Set(path, data)
	return nil
}

// resource resolves a resource declared by the executing module.
func resource(f *frame, name string) (*ir.ResourceDef, ir.StructTag, error) {
	if f.module == nil {
		return nil, ir.StructTag{}, newError(StatusTypeMismatch, "resource %s accessed outside a module", name)
	}
	res, ok := f.module.Resource(name)
	if !ok {
		return nil, ir.StructTag{}, newError(StatusTypeMismatch, "module %s declares no resource %s", f.module.Self, name)
	}
	return res, f.module.StructTag(name), nil
}

// substitute replaces a bound type parameter with its argument.
func substitute(t ir.Type, bound map[string]ir.Type) ir.Type {
	if b, ok := bound[string(t)]; ok {
		return b
	}
	return t
}

func checkType(v ir.Value, want ir.Type) *VMError {
	if v.Type() != want {
		return newError(StatusTypeMismatch, "expected %s, got %s", want, v.Type())
	}
	return nil
}

func arith(kind ir.ExprKind, a, b ir.Value) (ir.Value, error) {
	overflow := func() error {
		return newError(StatusArithmeticError, "%s %s %s overflows %s", a, kind, b, a.Type())
	}
	switch x := a.(type) {
	case ir.U8:
		y := b.(ir.U8)
		if kind == ir.ExprSub {
			if y > x {
				return nil, overflow()
			}
			return x - y, nil
		}
		if uint16(x)+uint16(y) > math.MaxUint8 {
			return nil, overflow()
		}
		return x + y, nil

	case ir.U64:
		y := b.(ir.U64)
		if kind == ir.ExprSub {
			diff, borrow := bits.Sub64(uint64(x), uint64(y), 0)
			if borrow != 0 {
				return nil, overflow()
			}
			return ir.U64(diff), nil
		}
		sum, carry := bits.Add64(uint64(x), uint64(y), 0)
		if carry != 0 {
			return nil, overflow()
		}
		return ir.U64(sum), nil

	case ir.U128:
		xi, yi := x.Int(), b.(ir.U128).Int()
		var r uint256.Int
		if kind == ir.ExprSub {
			if xi.Lt(yi) {
				return nil, overflow()
			}
			r.Sub(xi, yi)
		} else {
			r.Add(xi, yi)
		}
		n, err := ir.NewU128(&r)
		if err != nil {
			return nil, overflow()
		}
		return n, nil

	default:
		return nil, newError(StatusTypeMismatch, "%s of %s", kind, a.Type())
	}
}

// compare orders two integers of the same type.
func compare(a, b ir.Value) (int, error) {
	switch x := a.(type) {
	case ir.U8:
		return cmp.Compare(x, b.(ir.U8)), nil
	case ir.U64:
		return cmp.Compare(x, b.(ir.U64)), nil
	case ir.U128:
		return x.Int().Cmp(b.(ir.U128).Int()), nil
	default:
		return 0, newError(StatusTypeMismatch, "gte of %s", a.Type())
	}
}
