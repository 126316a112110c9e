package execution

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/compiler"
	"github.com/roach88/mover/internal/ir"
	"github.com/roach88/mover/internal/stdlib"
	"github.com/roach88/mover/internal/store"
	"github.com/roach88/mover/internal/verifier"
	"github.com/roach88/mover/internal/vm"
)

var dev = account.MustParseAddress("0xde5")

// seededStore publishes the standard library into a fresh in-memory store.
func seededStore(t *testing.T) (*store.Store, []*ir.CompiledModule) {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srcs, err := stdlib.Sources()
	require.NoError(t, err)
	var lib []*ir.CompiledModule
	for _, src := range srcs {
		m, _, err := compiler.New().CompileModule(ctx, src, stdlib.Address, lib)
		require.NoError(t, err)
		verified, err := verifier.New().VerifyModule(m)
		require.NoError(t, err)
		require.NoError(t, st.AddModule(ctx, verified.ID(), verified.Bytecode()))
		lib = append(lib, verified.Module())
	}
	return st, lib
}

func compileScript(t *testing.T, lib []*ir.CompiledModule, src string) []byte {
	t.Helper()
	s, _, err := compiler.New().CompileScript(context.Background(),
		compiler.Source{Name: "script.cue", Data: []byte(src)}, dev, lib)
	require.NoError(t, err)
	vs, err := verifier.New().VerifyScript(s)
	require.NoError(t, err)
	return vs.Bytecode()
}

const createScript = `script: {
	uses: ["0x1::Account"]
	params: [{name: "amount", type: "u64"}]
	body: [{op: "call", function: "Account::create", args: ["$amount"]}]
}`

func TestExecuteReturnsWriteSet(t *testing.T) {
	st, lib := seededStore(t)
	a := NewAdapter(st, WithIDGenerator(NewFixedGenerator("txn-1")))

	res, err := a.Execute(context.Background(), Request{
		Script: compileScript(t, lib, createScript),
		Sender: dev,
		Args:   []ir.Value{ir.U64(42)},
	})
	require.NoError(t, err)

	assert.Equal(t, "txn-1", res.TxnID)
	assert.Positive(t, res.GasUsed)
	require.Len(t, res.WriteSet, 1)
	assert.Equal(t, ir.ResourcePath(dev, stdlib.BalanceTag), res.WriteSet[0].Path)
	assert.Equal(t, `{"value":42}`, string(res.WriteSet[0].Value))

	// The store is not written by the adapter.
	_, ok, err := st.Get(context.Background(), res.WriteSet[0].Path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecuteWriteSetReplaysOnIdenticalStore(t *testing.T) {
	ctx := context.Background()
	first, lib := seededStore(t)
	second, _ := seededStore(t)

	res, err := NewAdapter(first).Execute(ctx, Request{
		Script: compileScript(t, lib, createScript),
		Sender: dev,
		Args:   []ir.Value{ir.U64(7)},
	})
	require.NoError(t, err)

	require.NoError(t, first.ApplyWriteSet(ctx, res.WriteSet))
	require.NoError(t, second.ApplyWriteSet(ctx, res.WriteSet))

	a, err := first.Snapshot(ctx)
	require.NoError(t, err)
	b, err := second.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExecutePropagatesVMErrors(t *testing.T) {
	st, lib := seededStore(t)
	script := compileScript(t, lib, createScript)

	_, err := NewAdapter(st, WithGasBudget(3)).Execute(context.Background(), Request{
		Script: script, Sender: dev, Args: []ir.Value{ir.U64(1)},
	})
	require.Error(t, err)
	assert.True(t, vm.HasStatus(err, vm.StatusOutOfGas))

	_, err = NewAdapter(st).Execute(context.Background(), Request{Script: script, Sender: dev})
	assert.True(t, vm.HasStatus(err, vm.StatusArgumentCountMismatch))
}

func TestExecuteAbortCode(t *testing.T) {
	st, lib := seededStore(t)
	script := compileScript(t, lib, `script: body: [{op: "abort", code: 9}]`)

	_, err := NewAdapter(st).Execute(context.Background(), Request{Script: script, Sender: dev})
	code, ok := vm.IsAbort(err)
	require.True(t, ok)
	assert.Equal(t, uint64(9), code)
}

func TestExecuteZeroCost(t *testing.T) {
	st, lib := seededStore(t)

	res, err := NewAdapter(st, WithZeroCost(), WithGasBudget(0)).Execute(context.Background(), Request{
		Script: compileScript(t, lib, createScript),
		Sender: dev,
		Args:   []ir.Value{ir.U64(1)},
	})
	require.NoError(t, err)
	assert.Zero(t, res.GasUsed)
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}
