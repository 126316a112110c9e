// Package account holds the developer transaction identity: a 16-byte account
// address and the secp256k1 keypair it is derived from.
package account

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the size of an account address in bytes.
const AddressLength = 16

// Address identifies an account on the simulated ledger.
//
// The text form is "0x" followed by 32 lowercase hex digits. Short forms such
// as "0x1" are accepted by ParseAddress and left-padded with zeros.
type Address [AddressLength]byte

// CoreAddress is the address the standard library is published under.
var CoreAddress = Address{AddressLength - 1: 1}

// ParseAddress parses a hex address with a mandatory "0x" prefix.
func ParseAddress(s string) (Address, error) {
	var addr Address

	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return addr, fmt.Errorf("address %q: missing 0x prefix", s)
	}
	digits := s[2:]
	if len(digits) == 0 {
		return addr, fmt.Errorf("address %q: no hex digits", s)
	}
	if len(digits) > AddressLength*2 {
		return addr, fmt.Errorf("address %q: longer than %d bytes", s, AddressLength)
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}

	raw, err := hex.DecodeString(digits)
	if err != nil {
		return addr, fmt.Errorf("address %q: %w", s, err)
	}
	copy(addr[AddressLength-len(raw):], raw)
	return addr, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Use only for constants and tests.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// String returns the full-width hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// ShortString trims leading zero digits, e.g. "0x1" for CoreAddress.
func (a Address) ShortString() string {
	s := strings.TrimLeft(hex.EncodeToString(a[:]), "0")
	if s == "" {
		s = "0"
	}
	return "0x" + s
}

// IsZero reports whether the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler so addresses serialize as
// strings in TOML and JSON.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
