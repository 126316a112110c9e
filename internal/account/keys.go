package account

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidSignature is returned by Verify when a signature does not match.
var ErrInvalidSignature = errors.New("invalid signature")

// KeyPair is a secp256k1 keypair used to sign genesis snapshots.
type KeyPair struct {
	priv *secp256k1.PrivateKey
}

// GenerateKeyPair creates a fresh random keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// KeyPairFromHex decodes a hex-encoded 32-byte private key.
func KeyPairFromHex(privateKey string) (*KeyPair, error) {
	raw, err := hex.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", secp256k1.PrivKeyBytesLen, len(raw))
	}
	return &KeyPair{priv: secp256k1.PrivKeyFromBytes(raw)}, nil
}

// PrivateKeyHex returns the hex-encoded private key.
func (k *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(k.priv.Serialize())
}

// PublicKey returns the compressed public key.
func (k *KeyPair) PublicKey() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// PublicKeyHex returns the hex-encoded compressed public key.
func (k *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(k.PublicKey())
}

// Address returns the account address derived from the public key.
func (k *KeyPair) Address() Address {
	return AddressFromPublicKey(k.PublicKey())
}

// Sign signs SHA3-256(domain || 0x00 || data) and returns a DER signature.
func (k *KeyPair) Sign(domain string, data []byte) []byte {
	digest := Digest(domain, data)
	return ecdsa.Sign(k.priv, digest[:]).Serialize()
}

// AddressFromPublicKey derives an address from the last 16 bytes of the
// SHA3-256 hash of a compressed public key.
func AddressFromPublicKey(pub []byte) Address {
	sum := sha3.Sum256(pub)
	var addr Address
	copy(addr[:], sum[len(sum)-AddressLength:])
	return addr
}

// Digest computes SHA3-256 with domain separation.
// The null byte separator prevents domain/data boundary ambiguity.
func Digest(domain string, data []byte) [32]byte {
	h := sha3.New256()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Verify checks a DER signature produced by Sign against a compressed public key.
func Verify(pub []byte, domain string, data, sig []byte) error {
	key, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}
	digest := Digest(domain, data)
	if !parsed.Verify(digest[:], key) {
		return ErrInvalidSignature
	}
	return nil
}
