package compiler

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/ir"
)

type namedValue struct {
	name  string
	value cue.Value
}

// parseResources extracts resource declarations in source order.
func (u *unit) parseResources(mv cue.Value) ([]ir.ResourceDef, error) {
	resVal := mv.LookupPath(cue.ParsePath("resources"))
	if !resVal.Exists() {
		return nil, nil
	}

	iter, err := resVal.Fields()
	if err != nil {
		return nil, formatCUEError("resources", err)
	}

	var resources []ir.ResourceDef
	for iter.Next() {
		name := iter.Label()
		rv := iter.Value()
		field := "resources." + name

		if err := allowKeys(rv, field, "fields"); err != nil {
			return nil, err
		}
		res := ir.ResourceDef{Name: name}

		fieldsVal := rv.LookupPath(cue.ParsePath("fields"))
		if fieldsVal.Exists() {
			fieldIter, err := fieldsVal.Fields()
			if err != nil {
				return nil, formatCUEError(field+".fields", err)
			}
			for fieldIter.Next() {
				fname := fieldIter.Label()
				typ, err := parseType(fieldIter.Value(), field+".fields."+fname, nil)
				if err != nil {
					return nil, err
				}
				res.Fields = append(res.Fields, ir.Param{Name: fname, Type: typ})
			}
		}

		resources = append(resources, res)
	}
	return resources, nil
}

// declareFunctions records every function name and returns the function
// values in source order.
func (u *unit) declareFunctions(mv cue.Value) ([]namedValue, error) {
	fnsVal := mv.LookupPath(cue.ParsePath("functions"))
	if !fnsVal.Exists() {
		return nil, nil
	}

	iter, err := fnsVal.Fields()
	if err != nil {
		return nil, formatCUEError("functions", err)
	}

	var fns []namedValue
	for iter.Next() {
		u.functions[iter.Label()] = true
		fns = append(fns, namedValue{name: iter.Label(), value: iter.Value()})
	}
	return fns, nil
}

// parseFunction parses a module function, or a script body when name is
// "main" and the unit has no self.
func (u *unit) parseFunction(name string, v cue.Value) (*ir.FunctionDef, *ir.FunctionMap, error) {
	field := "script"
	fn := &ir.FunctionDef{Name: name}

	if u.self != nil {
		field = "functions." + name
		if err := allowKeys(v, field, "public", "type_params", "params", "body"); err != nil {
			return nil, nil, err
		}
		pubVal := v.LookupPath(cue.ParsePath("public"))
		if pubVal.Exists() {
			pub, err := pubVal.Bool()
			if err != nil {
				return nil, nil, formatCUEError(field+".public", err)
			}
			fn.Public = pub
		}
	}

	var err error
	if fn.TypeParams, err = parseTypeParams(v, field); err != nil {
		return nil, nil, err
	}
	if fn.Params, err = parseParams(v, field, fn.TypeParams); err != nil {
		return nil, nil, err
	}

	fmap := &ir.FunctionMap{Name: name, Position: position(v.Pos()), Instructions: []ir.Position{}}

	bodyVal := v.LookupPath(cue.ParsePath("body"))
	if bodyVal.Exists() {
		iter, err := bodyVal.List()
		if err != nil {
			return nil, nil, formatCUEError(field+".body", err)
		}
		for i := 0; iter.Next(); i++ {
			iv := iter.Value()
			instr, err := u.parseInstr(iv, fmt.Sprintf("%s.body[%d]", field, i), fn.TypeParams)
			if err != nil {
				return nil, nil, err
			}
			fn.Body = append(fn.Body, *instr)
			fmap.Instructions = append(fmap.Instructions, position(iv.Pos()))
		}
	}

	return fn, fmap, nil
}

func parseTypeParams(v cue.Value, field string) ([]string, error) {
	tpVal := v.LookupPath(cue.ParsePath("type_params"))
	if !tpVal.Exists() {
		return nil, nil
	}
	iter, err := tpVal.List()
	if err != nil {
		return nil, formatCUEError(field+".type_params", err)
	}

	var params []string
	for i := 0; iter.Next(); i++ {
		f := fmt.Sprintf("%s.type_params[%d]", field, i)
		name, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(f, err)
		}
		if !ir.Type(name).IsTypeParam() {
			return nil, newError(ErrInvalidName, f, iter.Value().Pos(), "invalid type parameter %q", name)
		}
		if slices.Contains(params, name) {
			return nil, newError(ErrInvalidName, f, iter.Value().Pos(), "duplicate type parameter %q", name)
		}
		params = append(params, name)
	}
	return params, nil
}

func parseParams(v cue.Value, field string, typeParams []string) ([]ir.Param, error) {
	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if !paramsVal.Exists() {
		return nil, nil
	}
	iter, err := paramsVal.List()
	if err != nil {
		return nil, formatCUEError(field+".params", err)
	}

	var params []ir.Param
	for i := 0; iter.Next(); i++ {
		pv := iter.Value()
		f := fmt.Sprintf("%s.params[%d]", field, i)
		if err := allowKeys(pv, f, "name", "type"); err != nil {
			return nil, err
		}
		name, ok, err := stringField(pv, "name", f+".name")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newError(ErrMissingField, f+".name", pv.Pos(), "parameter name is required")
		}
		typeVal := pv.LookupPath(cue.ParsePath("type"))
		if !typeVal.Exists() {
			return nil, newError(ErrMissingField, f+".type", pv.Pos(), "parameter type is required")
		}
		typ, err := parseType(typeVal, f+".type", typeParams)
		if err != nil {
			return nil, err
		}
		params = append(params, ir.Param{Name: name, Type: typ})
	}
	return params, nil
}

// parseType accepts a primitive type name or one of typeParams.
func parseType(v cue.Value, field string, typeParams []string) (ir.Type, error) {
	text, err := v.String()
	if err != nil {
		return "", formatCUEError(field, err)
	}
	t := ir.Type(text)
	if t.IsPrimitive() || slices.Contains(typeParams, text) {
		return t, nil
	}
	return "", newError(ErrInvalidType, field, v.Pos(), "unknown type %q", text)
}

// parseTypeArg accepts a primitive, a type parameter in scope, or a struct
// tag naming a module the unit can see.
func (u *unit) parseTypeArg(v cue.Value, field string, typeParams []string) (ir.Type, error) {
	text, err := v.String()
	if err != nil {
		return "", formatCUEError(field, err)
	}
	t := ir.Type(text)
	if t.IsPrimitive() || slices.Contains(typeParams, text) {
		return t, nil
	}
	if !t.IsStruct() {
		return "", newError(ErrInvalidType, field, v.Pos(), "unknown type %q", text)
	}

	tag, err := ir.ParseStructTag(text)
	if err != nil {
		return "", newError(ErrInvalidType, field, v.Pos(), "%v", err)
	}
	if _, err := u.resolveModule(tag.Module.String(), field, v); err != nil {
		return "", err
	}
	return tag.Type(), nil
}

var instrKeys = map[ir.Op][]string{
	ir.OpMoveTo:   {"op", "resource", "fields"},
	ir.OpMoveFrom: {"op", "resource", "at"},
	ir.OpUpdate:   {"op", "resource", "fields", "at"},
	ir.OpCall:     {"op", "function", "args", "type_args"},
	ir.OpAssert:   {"op", "cond", "code"},
	ir.OpAbort:    {"op", "code"},
}

func (u *unit) parseInstr(v cue.Value, field string, typeParams []string) (*ir.Instr, error) {
	opText, ok, err := stringField(v, "op", field+".op")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(ErrMissingField, field+".op", v.Pos(), "instruction op is required")
	}
	op := ir.Op(opText)
	if !ir.ValidOps[op] {
		return nil, newError(ErrInvalidInstruction, field+".op", v.Pos(), "unknown op %q", opText)
	}
	if err := allowKeys(v, field, instrKeys[op]...); err != nil {
		return nil, err
	}

	instr := &ir.Instr{Op: op}
	switch op {
	case ir.OpMoveTo, ir.OpMoveFrom, ir.OpUpdate:
		res, ok, err := stringField(v, "resource", field+".resource")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newError(ErrMissingField, field+".resource", v.Pos(), "%s requires a resource", op)
		}
		if !ir.IsIdentifier(res) {
			return nil, newError(ErrInvalidName, field+".resource", v.Pos(), "invalid resource name %q", res)
		}
		instr.Resource = res

		if op != ir.OpMoveFrom {
			if instr.Fields, err = u.parseFieldExprs(v, field, op == ir.OpMoveTo); err != nil {
				return nil, err
			}
		}
		if op != ir.OpMoveTo {
			if instr.At, err = u.optionalExpr(v, "at", field); err != nil {
				return nil, err
			}
		}

	case ir.OpCall:
		fnVal := v.LookupPath(cue.ParsePath("function"))
		if !fnVal.Exists() {
			return nil, newError(ErrMissingField, field+".function", v.Pos(), "call requires a function")
		}
		text, err := fnVal.String()
		if err != nil {
			return nil, formatCUEError(field+".function", err)
		}
		ref, err := u.resolveFunction(text, field+".function", fnVal)
		if err != nil {
			return nil, err
		}
		instr.Function = &ref

		if instr.Args, err = u.exprList(v, "args", field); err != nil {
			return nil, err
		}
		taVal := v.LookupPath(cue.ParsePath("type_args"))
		if taVal.Exists() {
			iter, err := taVal.List()
			if err != nil {
				return nil, formatCUEError(field+".type_args", err)
			}
			for i := 0; iter.Next(); i++ {
				t, err := u.parseTypeArg(iter.Value(), fmt.Sprintf("%s.type_args[%d]", field, i), typeParams)
				if err != nil {
					return nil, err
				}
				instr.TypeArgs = append(instr.TypeArgs, t)
			}
		}

	case ir.OpAssert:
		cond, err := u.optionalExpr(v, "cond", field)
		if err != nil {
			return nil, err
		}
		if cond == nil {
			return nil, newError(ErrMissingField, field+".cond", v.Pos(), "assert requires a cond")
		}
		instr.Cond = cond
		if instr.Code, err = codeField(v, field); err != nil {
			return nil, err
		}

	case ir.OpAbort:
		if instr.Code, err = codeField(v, field); err != nil {
			return nil, err
		}
	}

	return instr, nil
}

func (u *unit) parseFieldExprs(v cue.Value, field string, required bool) (map[string]ir.Expr, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		if required {
			return nil, newError(ErrMissingField, field+".fields", v.Pos(), "fields are required")
		}
		return nil, nil
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(field+".fields", err)
	}

	fields := make(map[string]ir.Expr)
	for iter.Next() {
		e, err := u.parseExpr(iter.Value(), field+".fields."+iter.Label())
		if err != nil {
			return nil, err
		}
		fields[iter.Label()] = *e
	}
	return fields, nil
}

func (u *unit) optionalExpr(v cue.Value, key, field string) (*ir.Expr, error) {
	ev := v.LookupPath(cue.ParsePath(key))
	if !ev.Exists() {
		return nil, nil
	}
	return u.parseExpr(ev, field+"."+key)
}

func (u *unit) exprList(v cue.Value, key, field string) ([]ir.Expr, error) {
	lv := v.LookupPath(cue.ParsePath(key))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(field+"."+key, err)
	}
	var exprs []ir.Expr
	for i := 0; iter.Next(); i++ {
		e, err := u.parseExpr(iter.Value(), fmt.Sprintf("%s.%s[%d]", field, key, i))
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, *e)
	}
	return exprs, nil
}

var binaryOps = map[string]ir.ExprKind{
	"add": ir.ExprAdd,
	"sub": ir.ExprSub,
	"eq":  ir.ExprEq,
	"gte": ir.ExprGte,
}

// parseExpr compiles one expression value.
func (u *unit) parseExpr(v cue.Value, field string) (*ir.Expr, error) {
	switch v.Kind() {
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return constExpr(ir.Bool(b)), nil

	case cue.IntKind:
		n, err := v.Uint64()
		if err != nil {
			return nil, newError(ErrInvalidExpression, field, v.Pos(), "integer literal must fit in u64: %v", err)
		}
		return constExpr(ir.U64(n)), nil

	case cue.StringKind:
		s, _ := v.String()
		switch {
		case strings.HasPrefix(s, "$"):
			if !ir.IsIdentifier(s[1:]) {
				return nil, newError(ErrInvalidExpression, field, v.Pos(), "invalid parameter reference %q", s)
			}
			return &ir.Expr{Kind: ir.ExprParam, Name: s[1:]}, nil
		case s == "@sender":
			return &ir.Expr{Kind: ir.ExprSender}, nil
		case strings.HasPrefix(s, "0x"):
			addr, err := account.ParseAddress(s)
			if err != nil {
				return nil, newError(ErrInvalidExpression, field, v.Pos(), "%v", err)
			}
			return constExpr(ir.AddressValue(addr)), nil
		default:
			return nil, newError(ErrInvalidExpression, field, v.Pos(),
				"string expression must be $param, @sender or an 0x address, got %q", s)
		}

	case cue.StructKind:
		return u.parseStructExpr(v, field)

	default:
		return nil, newError(ErrInvalidExpression, field, v.Pos(), "unsupported expression of kind %v", v.Kind())
	}
}

func (u *unit) parseStructExpr(v cue.Value, field string) (*ir.Expr, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(field, err)
	}
	var keys []string
	for iter.Next() {
		keys = append(keys, iter.Label())
	}
	slices.Sort(keys)

	head := ""
	for _, k := range keys {
		if k != "at" {
			if head != "" {
				return nil, newError(ErrInvalidExpression, field, v.Pos(), "expression has more than one operator: %s", strings.Join(keys, ", "))
			}
			head = k
		}
	}
	hasAt := slices.Contains(keys, "at")
	if head == "" {
		return nil, newError(ErrInvalidExpression, field, v.Pos(), "empty expression")
	}
	if hasAt && head != "exists" && head != "field" {
		return nil, newError(ErrInvalidExpression, field, v.Pos(), "%q does not take \"at\"", head)
	}

	arg := v.LookupPath(cue.MakePath(cue.Str(head)))
	argField := field + "." + head

	switch head {
	case "u8":
		n, err := arg.Uint64()
		if err != nil || n > 255 {
			return nil, newError(ErrInvalidExpression, argField, arg.Pos(), "u8 literal must be 0..255")
		}
		return constExpr(ir.U8(n)), nil

	case "u128":
		text, err := arg.String()
		if err != nil {
			n, ierr := arg.Uint64()
			if ierr != nil {
				return nil, newError(ErrInvalidExpression, argField, arg.Pos(), "u128 literal must be a digit string")
			}
			return constExpr(ir.U128FromUint64(n)), nil
		}
		val, err := ir.ParseLiteral(ir.TypeU128, text)
		if err != nil {
			return nil, newError(ErrInvalidExpression, argField, arg.Pos(), "%v", err)
		}
		return constExpr(val), nil

	case "bytes":
		text, err := arg.String()
		if err != nil {
			return nil, formatCUEError(argField, err)
		}
		raw, err := hex.DecodeString(strings.TrimPrefix(text, "0x"))
		if err != nil {
			return nil, newError(ErrInvalidExpression, argField, arg.Pos(), "invalid hex: %v", err)
		}
		return constExpr(ir.Bytes(raw)), nil

	case "add", "sub", "eq", "gte":
		operands, err := u.exprList(v, head, field)
		if err != nil {
			return nil, err
		}
		if len(operands) != 2 {
			return nil, newError(ErrInvalidExpression, argField, arg.Pos(), "%s takes exactly two operands", head)
		}
		return &ir.Expr{Kind: binaryOps[head], Operands: operands}, nil

	case "not":
		operand, err := u.parseExpr(arg, argField)
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.ExprNot, Operands: []ir.Expr{*operand}}, nil

	case "exists", "field":
		text, err := arg.String()
		if err != nil {
			return nil, formatCUEError(argField, err)
		}
		e := &ir.Expr{Kind: ir.ExprExists, Name: text}
		if head == "field" {
			res, fname, ok := strings.Cut(text, ".")
			if !ok || !ir.IsIdentifier(res) || !ir.IsIdentifier(fname) {
				return nil, newError(ErrInvalidExpression, argField, arg.Pos(), "field reference must be Resource.field, got %q", text)
			}
			e = &ir.Expr{Kind: ir.ExprField, Name: res, Field: fname}
		} else if !ir.IsIdentifier(text) {
			return nil, newError(ErrInvalidExpression, argField, arg.Pos(), "invalid resource name %q", text)
		}
		if hasAt {
			if e.At, err = u.optionalExpr(v, "at", field); err != nil {
				return nil, err
			}
		}
		return e, nil

	default:
		return nil, newError(ErrInvalidExpression, field, v.Pos(), "unknown operator %q", head)
	}
}

func constExpr(v ir.Value) *ir.Expr {
	return &ir.Expr{Kind: ir.ExprConst, Type: v.Type(), Value: v.String()}
}

func codeField(v cue.Value, field string) (uint64, error) {
	cv := v.LookupPath(cue.ParsePath("code"))
	if !cv.Exists() {
		return 0, newError(ErrMissingField, field+".code", v.Pos(), "code is required")
	}
	code, err := cv.Uint64()
	if err != nil {
		return 0, newError(ErrInvalidInstruction, field+".code", cv.Pos(), "code must be a non-negative integer")
	}
	return code, nil
}

func stringField(v cue.Value, key, field string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(key))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(field, err)
	}
	return s, true, nil
}

// allowKeys rejects struct keys outside allowed.
func allowKeys(v cue.Value, field string, allowed ...string) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(field, err)
	}
	for iter.Next() {
		if !slices.Contains(allowed, iter.Label()) {
			return newError(ErrUnknownKey, field+"."+iter.Label(), iter.Value().Pos(),
				"unknown key %q (allowed: %s)", iter.Label(), strings.Join(allowed, ", "))
		}
	}
	return nil
}

func position(p token.Pos) ir.Position {
	if !p.IsValid() {
		return ir.Position{}
	}
	return ir.Position{Line: p.Line(), Column: p.Column()}
}
