package ir

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/roach88/mover/internal/account"
)

// ParseTransactionArgument converts command-line text into a typed value.
//
//	true | false           bool
//	0x...                  address
//	b"hex" | x"hex"        vector<u8>
//	123 | 123u8 | 123u128  integer, u64 when unsuffixed
func ParseTransactionArgument(text string) (Value, error) {
	s := strings.TrimSpace(text)
	switch {
	case s == "true":
		return Bool(true), nil
	case s == "false":
		return Bool(false), nil
	case strings.HasPrefix(s, "0x"):
		addr, err := account.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", text, err)
		}
		return AddressValue(addr), nil
	case len(s) >= 3 && (s[0] == 'b' || s[0] == 'x') && s[1] == '"' && s[len(s)-1] == '"':
		raw, err := hex.DecodeString(s[2 : len(s)-1])
		if err != nil {
			return nil, fmt.Errorf("argument %q: invalid hex: %w", text, err)
		}
		return Bytes(raw), nil
	}

	digits, typ := s, TypeU64
	for _, suffix := range []Type{TypeU128, TypeU64, TypeU8} {
		if strings.HasSuffix(s, string(suffix)) {
			digits, typ = strings.TrimSuffix(s, string(suffix)), suffix
			break
		}
	}
	if !isDigits(digits) {
		return nil, fmt.Errorf("argument %q: expected bool, address, bytes or integer", text)
	}
	v, err := ParseLiteral(typ, digits)
	if err != nil {
		return nil, fmt.Errorf("argument %q: %w", text, err)
	}
	return v, nil
}

// ParseTransactionArguments parses each argument in order.
func ParseTransactionArguments(texts []string) ([]Value, error) {
	values := make([]Value, 0, len(texts))
	for _, text := range texts {
		v, err := ParseTransactionArgument(text)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// ParseTypeTag parses a type argument: a primitive type or a struct tag.
// Struct tags are normalized to the short address form.
func ParseTypeTag(text string) (Type, error) {
	s := strings.TrimSpace(text)
	if t := Type(s); t.IsPrimitive() {
		return t, nil
	}
	if strings.Contains(s, "::") {
		tag, err := ParseStructTag(s)
		if err != nil {
			return "", err
		}
		return tag.Type(), nil
	}
	return "", fmt.Errorf("invalid type argument %q", text)
}

// ParseTypeArgs parses a comma-separated list of type tags. An empty list
// yields no type arguments.
func ParseTypeArgs(list string) ([]Type, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var out []Type
	for _, part := range strings.Split(list, ",") {
		t, err := ParseTypeTag(part)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
