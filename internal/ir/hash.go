package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for artifact digests.
// Version suffix enables future algorithm migration.
const (
	DomainModule = "mover/module/v1"
	DomainScript = "mover/script/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ModuleHash is the content digest of module bytecode. Identical inputs
// compile to identical hashes, which build output reports per artifact.
func ModuleHash(bytecode []byte) string {
	return hashWithDomain(DomainModule, bytecode)
}

// ScriptHash is the content digest of script bytecode.
func ScriptHash(bytecode []byte) string {
	return hashWithDomain(DomainScript, bytecode)
}
