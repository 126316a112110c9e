package ir

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/mover/internal/account"
)

// AccessPath is a key into global state.
//
// Module code lives at "0xADDR/module/Name"; resources at
// "0xADDR/resource/0xMADDR::Module::Resource". Address components of the
// prefix are always full width so that byte order groups paths by account.
type AccessPath string

const (
	pathModule   = "module"
	pathResource = "resource"
)

// ModulePath returns the access path of a published module.
func ModulePath(id ModuleID) AccessPath {
	return AccessPath(id.Address.String() + "/" + pathModule + "/" + id.Name)
}

// ResourcePath returns the access path of a resource held by owner.
func ResourcePath(owner account.Address, tag StructTag) AccessPath {
	return AccessPath(owner.String() + "/" + pathResource + "/" + tag.String())
}

// Parse splits a path into its owner, kind ("module" or "resource") and
// trailing name.
func (p AccessPath) Parse() (owner account.Address, kind, name string, err error) {
	parts := strings.SplitN(string(p), "/", 3)
	if len(parts) != 3 {
		return account.Address{}, "", "", fmt.Errorf("invalid access path %q", p)
	}
	owner, err = account.ParseAddress(parts[0])
	if err != nil {
		return account.Address{}, "", "", fmt.Errorf("access path %q: %w", p, err)
	}
	switch parts[1] {
	case pathModule:
		if !IsIdentifier(parts[2]) {
			return account.Address{}, "", "", fmt.Errorf("access path %q: invalid module name", p)
		}
	case pathResource:
		if _, err := ParseStructTag(parts[2]); err != nil {
			return account.Address{}, "", "", fmt.Errorf("access path %q: %w", p, err)
		}
	default:
		return account.Address{}, "", "", fmt.Errorf("access path %q: unknown kind %q", p, parts[1])
	}
	return owner, parts[1], parts[2], nil
}

// IsModule reports whether p addresses module code.
func (p AccessPath) IsModule() bool {
	_, kind, _, err := p.Parse()
	return err == nil && kind == pathModule
}

// WriteKind is the operation applied at an access path.
type WriteKind string

// Write operations.
const (
	WriteKindSet    WriteKind = "set"
	WriteKindDelete WriteKind = "delete"
)

// WriteOp is one entry of a write set. Value is nil for deletes.
type WriteOp struct {
	Path  AccessPath
	Kind  WriteKind
	Value []byte
}

// String renders the op the way write sets are reported.
func (w WriteOp) String() string {
	if w.Kind == WriteKindDelete {
		return fmt.Sprintf("%s: delete", w.Path)
	}
	return fmt.Sprintf("%s: set %s", w.Path, w.Value)
}

// MarshalJSON renders the value as text; stored values are JSON documents.
func (w WriteOp) MarshalJSON() ([]byte, error) {
	out := struct {
		Path  AccessPath `json:"path"`
		Op    WriteKind  `json:"op"`
		Value string     `json:"value,omitempty"`
	}{Path: w.Path, Op: w.Kind, Value: string(w.Value)}
	return json.Marshal(out)
}

// WriteSet is the ordered state delta of one execution. Entries are
// sorted by access path and each path appears at most once.
type WriteSet []WriteOp

// NewWriteSet sorts ops by path. Later entries for the same path win.
func NewWriteSet(ops []WriteOp) WriteSet {
	latest := make(map[AccessPath]WriteOp, len(ops))
	for _, op := range ops {
		latest[op.Path] = op
	}
	out := make(WriteSet, 0, len(latest))
	for _, op := range latest {
		out = append(out, op)
	}
	slices.SortFunc(out, func(a, b WriteOp) int {
		return strings.Compare(string(a.Path), string(b.Path))
	})
	return out
}

// Paths returns the paths touched, in order.
func (ws WriteSet) Paths() []AccessPath {
	paths := make([]AccessPath, len(ws))
	for i, op := range ws {
		paths[i] = op.Path
	}
	return paths
}

// Format renders the write set one op per line. An empty set renders as an
// empty string.
func (ws WriteSet) Format() string {
	var b strings.Builder
	for _, op := range ws {
		b.WriteString(op.String())
		b.WriteByte('\n')
	}
	return b.String()
}
