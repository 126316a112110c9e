// Package verifier checks compiled modules and scripts before they enter the
// module library or reach the VM.
//
// The compiler resolves names; the verifier owns typing. A VerifiedModule or
// VerifiedScript can only be obtained from this package, so holding one
// proves the unit passed every check below and that its bytecode is the
// canonical serialization of what was checked.
package verifier

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/mover/internal/ir"
)

// VerifiedModule is a module that passed verification.
type VerifiedModule struct {
	module   *ir.CompiledModule
	bytecode []byte
}

// ID returns the module id.
func (v *VerifiedModule) ID() ir.ModuleID { return v.module.Self }

// Module returns the compiled module. Callers must not mutate it.
func (v *VerifiedModule) Module() *ir.CompiledModule { return v.module }

// Bytecode returns the canonical serialized module.
func (v *VerifiedModule) Bytecode() []byte { return v.bytecode }

// Hash returns the content digest of the bytecode.
func (v *VerifiedModule) Hash() string { return ir.ModuleHash(v.bytecode) }

// VerifiedScript is a script that passed verification.
type VerifiedScript struct {
	script   *ir.CompiledScript
	bytecode []byte
}

// Script returns the compiled script. Callers must not mutate it.
func (v *VerifiedScript) Script() *ir.CompiledScript { return v.script }

// Bytecode returns the canonical serialized script.
func (v *VerifiedScript) Bytecode() []byte { return v.bytecode }

// Hash returns the content digest of the bytecode.
func (v *VerifiedScript) Hash() string { return ir.ScriptHash(v.bytecode) }

// Verifier checks compiled units. The zero value is ready to use.
type Verifier struct{}

// New returns a Verifier.
func New() *Verifier {
	return &Verifier{}
}

// VerifyModule checks m and seals it. The first problem found is returned as
// a *VerificationError.
func (*Verifier) VerifyModule(m *ir.CompiledModule) (*VerifiedModule, error) {
	if m == nil {
		return nil, &VerificationError{Code: ErrMalformedUnit, Location: "module", Message: "nil module"}
	}
	if errs := CheckModule(m); len(errs) > 0 {
		return nil, &errs[0]
	}
	bytecode, err := m.Serialize()
	if err != nil {
		return nil, &VerificationError{Code: ErrMalformedUnit, Location: m.Self.String(), Message: err.Error()}
	}
	return &VerifiedModule{module: m, bytecode: bytecode}, nil
}

// VerifyScript checks s and seals it.
func (*Verifier) VerifyScript(s *ir.CompiledScript) (*VerifiedScript, error) {
	if s == nil {
		return nil, &VerificationError{Code: ErrMalformedUnit, Location: "script", Message: "nil script"}
	}
	if errs := CheckScript(s); len(errs) > 0 {
		return nil, &errs[0]
	}
	bytecode, err := s.Serialize()
	if err != nil {
		return nil, &VerificationError{Code: ErrMalformedUnit, Location: "script", Message: err.Error()}
	}
	return &VerifiedScript{script: s, bytecode: bytecode}, nil
}

// VerifyModuleBytecode deserializes and verifies a module artifact.
func (v *Verifier) VerifyModuleBytecode(data []byte) (*VerifiedModule, error) {
	m, err := ir.DeserializeModule(data)
	if err != nil {
		return nil, &VerificationError{Code: ErrMalformedUnit, Location: "module", Message: err.Error()}
	}
	return v.VerifyModule(m)
}

// AsVerificationError unwraps err to a *VerificationError.
func AsVerificationError(err error) (*VerificationError, bool) {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// CheckModule returns every problem in m, in declaration order.
// Does not fail fast.
func CheckModule(m *ir.CompiledModule) []VerificationError {
	c := newChecker(m, m.Deps, m.Imports)
	loc := m.Self.String()

	if !ir.IsIdentifier(m.Self.Name) {
		c.fail(ErrInvalidIdentifier, loc, "invalid module name %q", m.Self.Name)
	}
	if c.deps[m.Self] {
		c.fail(ErrUndeclaredDependency, loc, "module %s depends on itself", m.Self)
	}
	c.checkImports(loc)

	resources := make(map[string]bool)
	for _, res := range m.Resources {
		rloc := loc + "::" + res.Name
		if !ir.IsIdentifier(res.Name) {
			c.fail(ErrInvalidIdentifier, rloc, "invalid resource name %q", res.Name)
		}
		if resources[res.Name] {
			c.fail(ErrDuplicateName, rloc, "duplicate resource %q", res.Name)
		}
		resources[res.Name] = true
		c.checkParams(rloc+".fields", res.Fields, nil, "field")
	}

	functions := make(map[string]bool)
	for _, fn := range m.Functions {
		floc := loc + "::" + fn.Name
		if !ir.IsIdentifier(fn.Name) {
			c.fail(ErrInvalidIdentifier, floc, "invalid function name %q", fn.Name)
		}
		if functions[fn.Name] {
			c.fail(ErrDuplicateName, floc, "duplicate function %q", fn.Name)
		}
		functions[fn.Name] = true
		c.checkBody(floc, fn.TypeParams, fn.Params, fn.Body)
	}

	return c.errs
}

// CheckScript returns every problem in s.
func CheckScript(s *ir.CompiledScript) []VerificationError {
	c := newChecker(nil, s.Deps, s.Imports)
	c.checkImports("script")
	c.checkBody("script", s.TypeParams, s.Params, s.Body)
	return c.errs
}

type checker struct {
	self       *ir.CompiledModule // nil for scripts
	deps       map[ir.ModuleID]bool
	importList []ir.FunctionSig
	imports    map[string]ir.FunctionSig
	errs       []VerificationError
}

func newChecker(self *ir.CompiledModule, deps []ir.ModuleID, imports []ir.FunctionSig) *checker {
	c := &checker{
		self:       self,
		deps:       make(map[ir.ModuleID]bool, len(deps)),
		importList: imports,
		imports:    make(map[string]ir.FunctionSig, len(imports)),
	}
	for _, d := range deps {
		if c.deps[d] {
			c.fail(ErrDuplicateName, d.String(), "duplicate dependency %s", d)
		}
		c.deps[d] = true
	}
	return c
}

func (c *checker) fail(code, location, format string, args ...any) {
	c.errs = append(c.errs, newError(code, location, format, args...))
}

// scope is the typing environment of one function or script body.
type scope struct {
	location   string
	typeParams []string
	params     map[string]ir.Type
}

func (c *checker) checkImports(loc string) {
	for _, sig := range c.importList {
		key := sig.Ref.String()
		if _, dup := c.imports[key]; dup {
			c.fail(ErrDuplicateName, loc, "duplicate import %s", key)
			continue
		}
		c.imports[key] = sig
		if !c.deps[sig.Ref.Module] {
			c.fail(ErrUndeclaredDependency, loc, "import %s names a module outside the dependency list", key)
		}
		c.checkTypeParams(loc, sig.TypeParams)
		for i, t := range sig.Params {
			if !t.IsPrimitive() && !slices.Contains(sig.TypeParams, string(t)) {
				c.fail(ErrInvalidType, loc, "import %s parameter %d has invalid type %q", key, i, t)
			}
		}
	}
}

func (c *checker) checkTypeParams(loc string, names []string) {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if !ir.Type(name).IsTypeParam() {
			c.fail(ErrInvalidIdentifier, loc, "invalid type parameter %q", name)
		}
		if seen[name] {
			c.fail(ErrDuplicateName, loc, "duplicate type parameter %q", name)
		}
		seen[name] = true
	}
}

// checkParams validates names and types of params or resource fields.
// Types must be primitive or one of typeParams.
func (c *checker) checkParams(loc string, params []ir.Param, typeParams []string, what string) map[string]ir.Type {
	out := make(map[string]ir.Type, len(params))
	for _, p := range params {
		if !ir.IsIdentifier(p.Name) {
			c.fail(ErrInvalidIdentifier, loc, "invalid %s name %q", what, p.Name)
		}
		if _, dup := out[p.Name]; dup {
			c.fail(ErrDuplicateName, loc, "duplicate %s %q", what, p.Name)
		}
		if !p.Type.IsPrimitive() && !slices.Contains(typeParams, string(p.Type)) {
			c.fail(ErrInvalidType, loc, "%s %q has invalid type %q", what, p.Name, p.Type)
		}
		out[p.Name] = p.Type
	}
	return out
}

func (c *checker) checkBody(loc string, typeParams []string, params []ir.Param, body []ir.Instr) {
	c.checkTypeParams(loc, typeParams)
	s := &scope{
		location:   loc,
		typeParams: typeParams,
		params:     c.checkParams(loc, params, typeParams, "parameter"),
	}
	for i := range body {
		c.checkInstr(s, fmt.Sprintf("%s[%d]", loc, i), &body[i])
	}
}

func (c *checker) checkInstr(s *scope, loc string, in *ir.Instr) {
	switch in.Op {
	case ir.OpMoveTo, ir.OpMoveFrom, ir.OpUpdate:
		res := c.ownResource(loc, in.Op, in.Resource)
		if res == nil {
			return
		}
		switch in.Op {
		case ir.OpMoveTo:
			if in.At != nil {
				c.fail(ErrTypeMismatch, loc, "move_to always publishes at the sender")
			}
			c.checkFields(s, loc, res, in.Fields, true)
		case ir.OpUpdate:
			if len(in.Fields) == 0 {
				c.fail(ErrFieldMismatch, loc, "update of %s sets no fields", res.Name)
			}
			c.checkFields(s, loc, res, in.Fields, false)
			c.checkAt(s, loc, in.At)
		default:
			c.checkAt(s, loc, in.At)
		}

	case ir.OpCall:
		c.checkCall(s, loc, in)

	case ir.OpAssert:
		if in.Cond == nil {
			c.fail(ErrTypeMismatch, loc, "assert without a condition")
			return
		}
		if t := c.exprType(s, loc, in.Cond); t != "" && t != ir.TypeBool {
			c.fail(ErrTypeMismatch, loc, "assert condition must be bool, got %s", t)
		}

	case ir.OpAbort:

	default:
		c.fail(ErrMalformedUnit, loc, "unknown op %q", in.Op)
	}
}

// ownResource resolves a resource that the enclosing module declares.
func (c *checker) ownResource(loc string, what any, name string) *ir.ResourceDef {
	if c.self == nil {
		c.fail(ErrResourceOpInScript, loc, "%v is not allowed in a script", what)
		return nil
	}
	res, ok := c.self.Resource(name)
	if !ok {
		c.fail(ErrForeignResource, loc, "%v of %q: module %s declares no such resource", what, name, c.self.Self)
		return nil
	}
	return res
}

// checkFields matches field expressions against the resource layout. With
// complete set, every declared field must be present.
func (c *checker) checkFields(s *scope, loc string, res *ir.ResourceDef, fields map[string]ir.Expr, complete bool) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		idx := slices.IndexFunc(res.Fields, func(p ir.Param) bool { return p.Name == name })
		if idx < 0 {
			c.fail(ErrFieldMismatch, loc, "resource %s has no field %q", res.Name, name)
			continue
		}
		e := fields[name]
		want := res.Fields[idx].Type
		if got := c.exprType(s, loc, &e); got != "" && got != want {
			c.fail(ErrTypeMismatch, loc, "field %s.%s is %s, got %s", res.Name, name, want, got)
		}
	}
	if !complete {
		return
	}
	for _, f := range res.Fields {
		if _, ok := fields[f.Name]; !ok {
			c.fail(ErrFieldMismatch, loc, "missing field %s.%s", res.Name, f.Name)
		}
	}
}

func (c *checker) checkAt(s *scope, loc string, at *ir.Expr) {
	if at == nil {
		return
	}
	if t := c.exprType(s, loc, at); t != "" && t != ir.TypeAddress {
		c.fail(ErrTypeMismatch, loc, "at must be an address, got %s", t)
	}
}

func (c *checker) checkCall(s *scope, loc string, in *ir.Instr) {
	if in.Function == nil {
		c.fail(ErrMissingImport, loc, "call without a target function")
		return
	}
	ref := *in.Function

	var sig ir.FunctionSig
	if c.self != nil && ref.Module == c.self.Self {
		fn, ok := c.self.Function(ref.Name)
		if !ok {
			c.fail(ErrMissingImport, loc, "module %s declares no function %q", c.self.Self, ref.Name)
			return
		}
		sig = c.self.Signature(fn)
	} else {
		if !c.deps[ref.Module] {
			c.fail(ErrUndeclaredDependency, loc, "call to %s: module %s is not a dependency", ref, ref.Module)
			return
		}
		imported, ok := c.imports[ref.String()]
		if !ok {
			c.fail(ErrMissingImport, loc, "call to %s has no import table entry", ref)
			return
		}
		sig = imported
	}

	if len(in.TypeArgs) != len(sig.TypeParams) {
		c.fail(ErrTypeArgumentMismatch, loc, "%s takes %d type arguments, got %d", ref, len(sig.TypeParams), len(in.TypeArgs))
		return
	}
	for _, ta := range in.TypeArgs {
		c.checkTypeArg(s, loc, ta)
	}

	if len(in.Args) != len(sig.Params) {
		c.fail(ErrArityMismatch, loc, "%s takes %d arguments, got %d", ref, len(sig.Params), len(in.Args))
		return
	}
	for i := range in.Args {
		want := Instantiate(sig.Params[i], sig.TypeParams, in.TypeArgs)
		if got := c.exprType(s, loc, &in.Args[i]); got != "" && got != want {
			c.fail(ErrTypeMismatch, loc, "argument %d of %s must be %s, got %s", i, ref, want, got)
		}
	}
}

func (c *checker) checkTypeArg(s *scope, loc string, t ir.Type) {
	switch {
	case t.IsPrimitive(), slices.Contains(s.typeParams, string(t)):
	case t.IsStruct():
		tag, err := ir.ParseStructTag(string(t))
		if err != nil {
			c.fail(ErrInvalidType, loc, "%v", err)
			return
		}
		if !c.deps[tag.Module] && (c.self == nil || c.self.Self != tag.Module) {
			c.fail(ErrUndeclaredDependency, loc, "type argument %s names a module outside the dependency list", t)
		}
	default:
		c.fail(ErrInvalidType, loc, "invalid type argument %q", t)
	}
}

// Instantiate substitutes type arguments for the type parameters in t.
func Instantiate(t ir.Type, typeParams []string, typeArgs []ir.Type) ir.Type {
	if i := slices.Index(typeParams, string(t)); i >= 0 && i < len(typeArgs) {
		return typeArgs[i]
	}
	return t
}

// exprType computes the static type of e. It returns "" after recording an
// error so callers do not report the same fault twice.
func (c *checker) exprType(s *scope, loc string, e *ir.Expr) ir.Type {
	switch e.Kind {
	case ir.ExprConst:
		if !e.Type.IsPrimitive() {
			c.fail(ErrInvalidType, loc, "constant of invalid type %q", e.Type)
			return ""
		}
		if _, err := ir.ParseLiteral(e.Type, e.Value); err != nil {
			c.fail(ErrInvalidConstant, loc, "%v", err)
			return ""
		}
		return e.Type

	case ir.ExprParam:
		t, ok := s.params[e.Name]
		if !ok {
			c.fail(ErrUndeclaredParam, loc, "undeclared parameter $%s", e.Name)
			return ""
		}
		return t

	case ir.ExprSender:
		return ir.TypeAddress

	case ir.ExprAdd, ir.ExprSub, ir.ExprEq, ir.ExprGte:
		if len(e.Operands) != 2 {
			c.fail(ErrTypeMismatch, loc, "%s takes two operands, got %d", e.Kind, len(e.Operands))
			return ""
		}
		a := c.exprType(s, loc, &e.Operands[0])
		b := c.exprType(s, loc, &e.Operands[1])
		if a == "" || b == "" {
			return ""
		}
		if a != b {
			c.fail(ErrTypeMismatch, loc, "%s operands differ: %s and %s", e.Kind, a, b)
			return ""
		}
		if e.Kind == ir.ExprEq {
			return ir.TypeBool
		}
		if !a.IsInteger() {
			c.fail(ErrTypeMismatch, loc, "%s needs integer operands, got %s", e.Kind, a)
			return ""
		}
		if e.Kind == ir.ExprGte {
			return ir.TypeBool
		}
		return a

	case ir.ExprNot:
		if len(e.Operands) != 1 {
			c.fail(ErrTypeMismatch, loc, "not takes one operand, got %d", len(e.Operands))
			return ""
		}
		t := c.exprType(s, loc, &e.Operands[0])
		if t != "" && t != ir.TypeBool {
			c.fail(ErrTypeMismatch, loc, "not needs a bool operand, got %s", t)
			return ""
		}
		return ir.TypeBool

	case ir.ExprExists:
		res := c.ownResource(loc, e.Kind, e.Name)
		c.checkAt(s, loc, e.At)
		if res == nil {
			return ""
		}
		return ir.TypeBool

	case ir.ExprField:
		res := c.ownResource(loc, e.Kind, e.Name)
		c.checkAt(s, loc, e.At)
		if res == nil {
			return ""
		}
		idx := slices.IndexFunc(res.Fields, func(p ir.Param) bool { return p.Name == e.Field })
		if idx < 0 {
			c.fail(ErrFieldMismatch, loc, "resource %s has no field %q", res.Name, e.Field)
			return ""
		}
		return res.Fields[idx].Type

	default:
		c.fail(ErrMalformedUnit, loc, "unknown expression kind %q", e.Kind)
		return ""
	}
}
