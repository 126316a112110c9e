package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/ir"
	"github.com/roach88/mover/internal/verifier"
)

func verifiedModule(t *testing.T, name string) *verifier.VerifiedModule {
	t.Helper()
	m, err := verifier.New().VerifyModule(&ir.CompiledModule{
		Self: ir.ModuleID{Address: account.MustParseAddress("0xabc"), Name: name},
	})
	require.NoError(t, err)
	return m
}

func TestLibraryAppendOnly(t *testing.T) {
	lib := NewLibrary()
	a := verifiedModule(t, "A")
	b := verifiedModule(t, "B")

	require.NoError(t, lib.Add(a))
	require.NoError(t, lib.Add(b))

	err := lib.Add(verifiedModule(t, "A"))
	require.ErrorIs(t, err, ErrDuplicateModule)
	assert.Contains(t, err.Error(), "0xabc::A")

	assert.Equal(t, 2, lib.Len())
	assert.Equal(t, []*verifier.VerifiedModule{a, b}, lib.Modules())
	assert.Equal(t, []*ir.CompiledModule{a.Module(), b.Module()}, lib.Compiled())

	got, ok := lib.Get(b.ID())
	assert.True(t, ok)
	assert.Same(t, b, got)
}

func TestLibraryModulesIsACopy(t *testing.T) {
	lib := NewLibrary()
	require.NoError(t, lib.Add(verifiedModule(t, "A")))

	mods := lib.Modules()
	mods[0] = nil
	assert.NotNil(t, lib.Modules()[0])
}
