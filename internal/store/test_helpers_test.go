package store

import (
	"testing"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/ir"
)

// createTestStore creates a new in-memory store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// balancePath returns the Account::Balance resource path for owner.
func balancePath(owner string) ir.AccessPath {
	tag := ir.StructTag{
		Module: ir.ModuleID{Address: account.CoreAddress, Name: "Account"},
		Name:   "Balance",
	}
	return ir.ResourcePath(account.MustParseAddress(owner), tag)
}
