package ir

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/roach88/mover/internal/account"
)

// Value is a sealed interface over the runtime value types.
// Only Bool, U8, U64, U128, AddressValue and Bytes implement it.
type Value interface {
	Type() Type
	String() string
	value() // Sealed
}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}
func (Bool) Type() Type { return TypeBool }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// U8 is an unsigned 8-bit integer.
type U8 uint8

func (U8) value() {}
func (U8) Type() Type { return TypeU8 }
func (n U8) String() string { return strconv.FormatUint(uint64(n), 10) }

// U64 is an unsigned 64-bit integer.
type U64 uint64

func (U64) value() {}
func (U64) Type() Type { return TypeU64 }
func (n U64) String() string { return strconv.FormatUint(uint64(n), 10) }

// U128 is an unsigned 128-bit integer backed by a 256-bit word.
// The upper 128 bits are always zero.
type U128 struct {
	v uint256.Int
}

func (U128) value() {}
func (U128) Type() Type { return TypeU128 }

// String returns the decimal form.
func (n U128) String() string { return n.v.Dec() }

// Int returns a copy of the underlying word.
func (n U128) Int() *uint256.Int {
	return new(uint256.Int).Set(&n.v)
}

// NewU128 wraps x, failing if it does not fit in 128 bits.
func NewU128(x *uint256.Int) (U128, error) {
	if x.BitLen() > 128 {
		return U128{}, fmt.Errorf("value %s overflows u128", x.Dec())
	}
	var n U128
	n.v.Set(x)
	return n, nil
}

// U128FromUint64 widens a uint64.
func U128FromUint64(x uint64) U128 {
	var n U128
	n.v.SetUint64(x)
	return n
}

// AddressValue is an account address.
type AddressValue account.Address

func (AddressValue) value() {}
func (AddressValue) Type() Type { return TypeAddress }
func (a AddressValue) String() string { return account.Address(a).String() }

// Bytes is a vector<u8>.
type Bytes []byte

func (Bytes) value() {}
func (Bytes) Type() Type { return TypeBytes }
func (b Bytes) String() string { return "0x" + hex.EncodeToString(b) }

// Equal reports whether two values have the same type and contents.
func Equal(a, b Value) bool {
	if a == nil || b == nil || a.Type() != b.Type() {
		return false
	}
	switch x := a.(type) {
	case U128:
		y := b.(U128)
		return x.v.Eq(&y.v)
	case Bytes:
		return bytes.Equal(x, b.(Bytes))
	default:
		return a == b
	}
}

// ParseLiteral decodes the canonical text form of a constant of type t.
// This is the inverse of Value.String.
func ParseLiteral(t Type, text string) (Value, error) {
	switch t {
	case TypeBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", text)
		}
		return Bool(b), nil
	case TypeU8:
		n, err := strconv.ParseUint(text, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid u8 %q", text)
		}
		return U8(n), nil
	case TypeU64:
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid u64 %q", text)
		}
		return U64(n), nil
	case TypeU128:
		x, err := uint256.FromDecimal(text)
		if err != nil {
			return nil, fmt.Errorf("invalid u128 %q: %w", text, err)
		}
		return NewU128(x)
	case TypeAddress:
		addr, err := account.ParseAddress(text)
		if err != nil {
			return nil, err
		}
		return AddressValue(addr), nil
	case TypeBytes:
		if !strings.HasPrefix(text, "0x") {
			return nil, fmt.Errorf("invalid vector<u8> %q: missing 0x prefix", text)
		}
		raw, err := hex.DecodeString(text[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid vector<u8> %q: %w", text, err)
		}
		return Bytes(raw), nil
	default:
		return nil, fmt.Errorf("no literal form for type %q", t)
	}
}

// canonicalValue returns the JSON form of v used inside canonical documents:
// integers as numbers, everything else as strings or booleans.
func canonicalValue(v Value) any {
	switch x := v.(type) {
	case Bool:
		return bool(x)
	case U8, U64, U128:
		return json.Number(x.String())
	default:
		return v.String()
	}
}

// decodeValue converts a decoded JSON value back into a Value of type t.
func decodeValue(raw any, t Type) (Value, error) {
	switch x := raw.(type) {
	case bool:
		if t != TypeBool {
			return nil, fmt.Errorf("expected %s, got bool", t)
		}
		return Bool(x), nil
	case json.Number:
		if !t.IsInteger() {
			return nil, fmt.Errorf("expected %s, got number", t)
		}
		return ParseLiteral(t, x.String())
	case string:
		if t != TypeAddress && t != TypeBytes {
			return nil, fmt.Errorf("expected %s, got string", t)
		}
		return ParseLiteral(t, x)
	default:
		return nil, fmt.Errorf("unsupported JSON value %T for %s", raw, t)
	}
}

// Fields is the field map of a resource instance.
type Fields map[string]Value

// EncodeResource serializes a resource instance to canonical JSON.
func EncodeResource(fields Fields) ([]byte, error) {
	obj := make(map[string]any, len(fields))
	for name, v := range fields {
		obj[name] = canonicalValue(v)
	}
	return MarshalCanonical(obj)
}

// DecodeResource parses a resource instance using the declared field layout.
// Missing, extra or mistyped fields are errors.
func DecodeResource(data []byte, layout []Param) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	if len(raw) != len(layout) {
		return nil, fmt.Errorf("decode resource: expected %d fields, got %d", len(layout), len(raw))
	}

	fields := make(Fields, len(layout))
	for _, p := range layout {
		rv, ok := raw[p.Name]
		if !ok {
			return nil, fmt.Errorf("decode resource: missing field %q", p.Name)
		}
		v, err := decodeValue(rv, p.Type)
		if err != nil {
			return nil, fmt.Errorf("decode resource field %q: %w", p.Name, err)
		}
		fields[p.Name] = v
	}
	return fields, nil
}
