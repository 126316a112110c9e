package ir

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/mover/internal/account"
)

// Type names a value type. Primitive types use the reserved names below;
// any other identifier is a type parameter, and a string containing "::" is a
// struct tag (only valid as a type argument).
type Type string

// Primitive types.
const (
	TypeBool    Type = "bool"
	TypeU8      Type = "u8"
	TypeU64     Type = "u64"
	TypeU128    Type = "u128"
	TypeAddress Type = "address"
	TypeBytes   Type = "vector<u8>"
)

var primitiveTypes = map[Type]bool{
	TypeBool:    true,
	TypeU8:      true,
	TypeU64:     true,
	TypeU128:    true,
	TypeAddress: true,
	TypeBytes:   true,
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s is a valid module, resource, function or
// parameter name.
func IsIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// IsPrimitive reports whether t is one of the built-in value types.
func (t Type) IsPrimitive() bool {
	return primitiveTypes[t]
}

// IsInteger reports whether t is u8, u64 or u128.
func (t Type) IsInteger() bool {
	return t == TypeU8 || t == TypeU64 || t == TypeU128
}

// IsStruct reports whether t is a struct tag such as 0x1::Account::Balance.
func (t Type) IsStruct() bool {
	return strings.Contains(string(t), "::")
}

// IsTypeParam reports whether t names a type parameter.
func (t Type) IsTypeParam() bool {
	return !t.IsPrimitive() && !t.IsStruct() && IsIdentifier(string(t))
}

// ModuleID uniquely identifies a module by publishing address and name.
type ModuleID struct {
	Address account.Address `json:"address"`
	Name    string          `json:"name"`
}

// String returns the "0x1::Name" form.
func (id ModuleID) String() string {
	return id.Address.ShortString() + "::" + id.Name
}

// ParseModuleID parses "0xADDR::Name". A bare "Name" resolves against
// defaultAddr.
func ParseModuleID(s string, defaultAddr account.Address) (ModuleID, error) {
	parts := strings.Split(s, "::")
	switch len(parts) {
	case 1:
		if !IsIdentifier(parts[0]) {
			return ModuleID{}, fmt.Errorf("invalid module name %q", s)
		}
		return ModuleID{Address: defaultAddr, Name: parts[0]}, nil
	case 2:
		addr, err := account.ParseAddress(parts[0])
		if err != nil {
			return ModuleID{}, fmt.Errorf("module %q: %w", s, err)
		}
		if !IsIdentifier(parts[1]) {
			return ModuleID{}, fmt.Errorf("invalid module name %q", s)
		}
		return ModuleID{Address: addr, Name: parts[1]}, nil
	default:
		return ModuleID{}, fmt.Errorf("invalid module id %q", s)
	}
}

// StructTag names a resource type declared by a module.
type StructTag struct {
	Module ModuleID `json:"module"`
	Name   string   `json:"name"`
}

// String returns the "0x1::Module::Resource" form.
func (t StructTag) String() string {
	return t.Module.String() + "::" + t.Name
}

// Type returns the tag as a Type usable in type argument lists.
func (t StructTag) Type() Type {
	return Type(t.String())
}

// ParseStructTag parses "0xADDR::Module::Resource".
func ParseStructTag(s string) (StructTag, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 3 {
		return StructTag{}, fmt.Errorf("invalid struct tag %q: want 0xADDR::Module::Resource", s)
	}
	addr, err := account.ParseAddress(parts[0])
	if err != nil {
		return StructTag{}, fmt.Errorf("struct tag %q: %w", s, err)
	}
	if !IsIdentifier(parts[1]) || !IsIdentifier(parts[2]) {
		return StructTag{}, fmt.Errorf("invalid struct tag %q", s)
	}
	return StructTag{Module: ModuleID{Address: addr, Name: parts[1]}, Name: parts[2]}, nil
}

// FunctionRef names a function declared by a module.
type FunctionRef struct {
	Module ModuleID `json:"module"`
	Name   string   `json:"name"`
}

// String returns the "0x1::Module::function" form.
func (r FunctionRef) String() string {
	return r.Module.String() + "::" + r.Name
}
