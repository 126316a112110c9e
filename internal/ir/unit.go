package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Unit kinds stamped into serialized bytecode.
const (
	KindModule = "module"
	KindScript = "script"
)

// Op is an instruction opcode.
type Op string

// Instruction set.
const (
	OpMoveTo   Op = "move_to"
	OpMoveFrom Op = "move_from"
	OpUpdate   Op = "update"
	OpCall     Op = "call"
	OpAssert   Op = "assert"
	OpAbort    Op = "abort"
)

// ValidOps lists every opcode the toolchain understands.
var ValidOps = map[Op]bool{
	OpMoveTo:   true,
	OpMoveFrom: true,
	OpUpdate:   true,
	OpCall:     true,
	OpAssert:   true,
	OpAbort:    true,
}

// IsResourceOp reports whether op touches global storage directly.
// Resource ops are only legal inside modules.
func (op Op) IsResourceOp() bool {
	return op == OpMoveTo || op == OpMoveFrom || op == OpUpdate
}

// ExprKind discriminates expression nodes.
type ExprKind string

// Expression kinds.
const (
	ExprConst  ExprKind = "const"
	ExprParam  ExprKind = "param"
	ExprSender ExprKind = "sender"
	ExprAdd    ExprKind = "add"
	ExprSub    ExprKind = "sub"
	ExprEq     ExprKind = "eq"
	ExprGte    ExprKind = "gte"
	ExprNot    ExprKind = "not"
	ExprExists ExprKind = "exists"
	ExprField  ExprKind = "field"
)

// Expr is an expression tree node.
//
// Field usage per kind:
//   - const: Type, Value (canonical literal text)
//   - param: Name
//   - add/sub/eq/gte: Operands[2]; not: Operands[1]
//   - exists: Name (resource), optional At
//   - field: Name (resource), Field, optional At
type Expr struct {
	Kind     ExprKind `json:"kind"`
	Type     Type     `json:"type,omitempty"`
	Value    string   `json:"value,omitempty"`
	Name     string   `json:"name,omitempty"`
	Field    string   `json:"field,omitempty"`
	Operands []Expr   `json:"operands,omitempty"`
	At       *Expr    `json:"at,omitempty"`
}

// Instr is a single instruction.
type Instr struct {
	Op       Op              `json:"op"`
	Resource string          `json:"resource,omitempty"` // resource declared by the enclosing module
	Function *FunctionRef    `json:"function,omitempty"`
	Fields   map[string]Expr `json:"fields,omitempty"`
	Args     []Expr          `json:"args,omitempty"`
	TypeArgs []Type          `json:"type_args,omitempty"`
	At       *Expr           `json:"at,omitempty"`
	Cond     *Expr           `json:"cond,omitempty"`
	Code     uint64          `json:"code,omitempty"`
}

// Param is a named, typed parameter or resource field.
type Param struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// FunctionSig is an import-table entry: the signature the compiler saw for
// an external function. The VM checks it against the published module at
// link time.
type FunctionSig struct {
	Ref        FunctionRef `json:"ref"`
	TypeParams []string    `json:"type_params,omitempty"`
	Params     []Type      `json:"params,omitempty"`
}

// ResourceDef declares a resource type.
type ResourceDef struct {
	Name   string  `json:"name"`
	Fields []Param `json:"fields,omitempty"`
}

// FunctionDef declares a function.
type FunctionDef struct {
	Name       string   `json:"name"`
	Public     bool     `json:"public,omitempty"`
	TypeParams []string `json:"type_params,omitempty"`
	Params     []Param  `json:"params,omitempty"`
	Body       []Instr  `json:"body,omitempty"`
}

// CompiledModule is the compiler's output for a module source.
type CompiledModule struct {
	Kind      string        `json:"kind"`
	Version   int           `json:"version"`
	Self      ModuleID      `json:"self"`
	Deps      []ModuleID    `json:"deps,omitempty"`
	Imports   []FunctionSig `json:"imports,omitempty"`
	Resources []ResourceDef `json:"resources,omitempty"`
	Functions []FunctionDef `json:"functions,omitempty"`
}

// Resource returns the named resource declaration.
func (m *CompiledModule) Resource(name string) (*ResourceDef, bool) {
	for i := range m.Resources {
		if m.Resources[i].Name == name {
			return &m.Resources[i], true
		}
	}
	return nil, false
}

// Function returns the named function declaration.
func (m *CompiledModule) Function(name string) (*FunctionDef, bool) {
	for i := range m.Functions {
		if m.Functions[i].Name == name {
			return &m.Functions[i], true
		}
	}
	return nil, false
}

// StructTag returns the tag of a resource declared by this module.
func (m *CompiledModule) StructTag(resource string) StructTag {
	return StructTag{Module: m.Self, Name: resource}
}

// Signature returns the import-table form of a declared function.
func (m *CompiledModule) Signature(fn *FunctionDef) FunctionSig {
	sig := FunctionSig{
		Ref:        FunctionRef{Module: m.Self, Name: fn.Name},
		TypeParams: fn.TypeParams,
	}
	for _, p := range fn.Params {
		sig.Params = append(sig.Params, p.Type)
	}
	return sig
}

// Serialize encodes the module as canonical JSON bytecode.
func (m *CompiledModule) Serialize() ([]byte, error) {
	m.Kind = KindModule
	m.Version = BytecodeVersion
	data, err := Canonicalize(m)
	if err != nil {
		return nil, fmt.Errorf("serialize module %s: %w", m.Self, err)
	}
	return data, nil
}

// CompiledScript is the compiler's output for a script source.
type CompiledScript struct {
	Kind       string        `json:"kind"`
	Version    int           `json:"version"`
	Deps       []ModuleID    `json:"deps,omitempty"`
	Imports    []FunctionSig `json:"imports,omitempty"`
	TypeParams []string      `json:"type_params,omitempty"`
	Params     []Param       `json:"params,omitempty"`
	Body       []Instr       `json:"body,omitempty"`
}

// Serialize encodes the script as canonical JSON bytecode.
func (s *CompiledScript) Serialize() ([]byte, error) {
	s.Kind = KindScript
	s.Version = BytecodeVersion
	data, err := Canonicalize(s)
	if err != nil {
		return nil, fmt.Errorf("serialize script: %w", err)
	}
	return data, nil
}

// UnitKind peeks at the kind stamp of serialized bytecode.
func UnitKind(data []byte) (string, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("read bytecode header: %w", err)
	}
	return head.Kind, nil
}

// DeserializeModule decodes module bytecode. Unknown fields are rejected.
func DeserializeModule(data []byte) (*CompiledModule, error) {
	var m CompiledModule
	if err := decodeStrict(data, &m); err != nil {
		return nil, fmt.Errorf("deserialize module: %w", err)
	}
	if m.Kind != KindModule {
		return nil, fmt.Errorf("deserialize module: unexpected kind %q", m.Kind)
	}
	if m.Version != BytecodeVersion {
		return nil, fmt.Errorf("deserialize module: unsupported bytecode version %d", m.Version)
	}
	return &m, nil
}

// DeserializeScript decodes script bytecode. Unknown fields are rejected.
func DeserializeScript(data []byte) (*CompiledScript, error) {
	var s CompiledScript
	if err := decodeStrict(data, &s); err != nil {
		return nil, fmt.Errorf("deserialize script: %w", err)
	}
	if s.Kind != KindScript {
		return nil, fmt.Errorf("deserialize script: unexpected kind %q", s.Kind)
	}
	if s.Version != BytecodeVersion {
		return nil, fmt.Errorf("deserialize script: unsupported bytecode version %d", s.Version)
	}
	return &s, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
