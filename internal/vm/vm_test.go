package vm

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/compiler"
	"github.com/roach88/mover/internal/ir"
	"github.com/roach88/mover/internal/stdlib"
	"github.com/roach88/mover/internal/verifier"
)

var (
	alice = account.MustParseAddress("0xa11ce")
	bob   = account.MustParseAddress("0xb0b")
)

type mapView map[ir.AccessPath][]byte

func (m mapView) Get(_ context.Context, p ir.AccessPath) ([]byte, bool, error) {
	v, ok := m[p]
	return v, ok, nil
}

type failingView struct{}

func (failingView) Get(context.Context, ir.AccessPath) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

// testEnv publishes the standard library into a map view and compiles
// further units against it.
type testEnv struct {
	t    *testing.T
	view mapView
	lib  []*ir.CompiledModule
	c    *compiler.Compiler
	v    *verifier.Verifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{t: t, view: mapView{}, c: compiler.New(), v: verifier.New()}
	srcs, err := stdlib.Sources()
	require.NoError(t, err)
	for _, src := range srcs {
		e.publishSource(src, stdlib.Address)
	}
	return e
}

func (e *testEnv) publishSource(src compiler.Source, sender account.Address) *ir.CompiledModule {
	e.t.Helper()
	m, _, err := e.c.CompileModule(context.Background(), src, sender, e.lib)
	require.NoError(e.t, err)
	vm, err := e.v.VerifyModule(m)
	require.NoError(e.t, err)
	e.view[ir.ModulePath(vm.ID())] = vm.Bytecode()
	e.lib = append(e.lib, vm.Module())
	return vm.Module()
}

func (e *testEnv) publish(src string) *ir.CompiledModule {
	e.t.Helper()
	return e.publishSource(compiler.Source{Name: "module.cue", Data: []byte(src)}, alice)
}

func (e *testEnv) script(src string) []byte {
	e.t.Helper()
	s, _, err := e.c.CompileScript(context.Background(), compiler.Source{Name: "script.cue", Data: []byte(src)}, alice, e.lib)
	require.NoError(e.t, err)
	vs, err := e.v.VerifyScript(s)
	require.NoError(e.t, err)
	return vs.Bytecode()
}

func (e *testEnv) setBalance(owner account.Address, value uint64) {
	e.t.Helper()
	data, err := ir.EncodeResource(ir.Fields{"value": ir.U64(value)})
	require.NoError(e.t, err)
	e.view[ir.ResourcePath(owner, stdlib.BalanceTag)] = data
}

func (e *testEnv) run(script []byte, budget uint64, typeArgs []ir.Type, args ...ir.Value) (*TransactionContext, error) {
	txn := NewTransactionContext(e.view, budget)
	err := New().ExecuteScript(context.Background(), script, DefaultGasSchedule(), txn,
		TransactionMetadata{Sender: alice}, typeArgs, args)
	return txn, err
}

func balancePath(owner account.Address) ir.AccessPath {
	return ir.ResourcePath(owner, stdlib.BalanceTag)
}

func requireStatus(t *testing.T, err error, status StatusCode) *VMError {
	t.Helper()
	require.Error(t, err)
	ve, ok := AsVMError(err)
	require.True(t, ok, "expected VMError, got %T: %v", err, err)
	require.Equal(t, status, ve.Status, "unexpected error: %v", ve)
	return ve
}

const createScript = `script: {
	uses: ["0x1::Account"]
	params: [{name: "amount", type: "u64"}]
	body: [{op: "call", function: "Account::create", args: ["$amount"]}]
}`

const payScript = `script: {
	uses: ["0x1::Account"]
	params: [{name: "to", type: "address"}, {name: "amount", type: "u64"}]
	body: [{op: "call", function: "Account::pay", args: ["$to", "$amount"]}]
}`

func TestExecuteCreate(t *testing.T) {
	e := newTestEnv(t)
	txn, err := e.run(e.script(createScript), 1_000_000, nil, ir.U64(100))
	require.NoError(t, err)

	ws := txn.MakeWriteSet()
	require.Len(t, ws, 1)
	assert.Equal(t, balancePath(alice), ws[0].Path)
	assert.Equal(t, ir.WriteKindSet, ws[0].Kind)
	assert.Equal(t, `{"value":100}`, string(ws[0].Value))
	assert.Positive(t, txn.GasUsed())

	// The view itself is untouched.
	_, ok := e.view[balancePath(alice)]
	assert.False(t, ok)
}

func TestExecuteCreateTwiceAborts(t *testing.T) {
	e := newTestEnv(t)
	e.setBalance(alice, 1)

	_, err := e.run(e.script(createScript), 1_000_000, nil, ir.U64(100))
	ve := requireStatus(t, err, StatusAborted)
	assert.Equal(t, uint64(stdlib.AbortBalanceExists), ve.AbortCode)
	assert.Equal(t, "0x1::Account::create", ve.Location)
	assert.Equal(t, 0, ve.Offset)

	code, ok := IsAbort(err)
	assert.True(t, ok)
	assert.Equal(t, uint64(stdlib.AbortBalanceExists), code)
}

func TestExecutePay(t *testing.T) {
	e := newTestEnv(t)
	e.setBalance(alice, 100)
	e.setBalance(bob, 5)

	txn, err := e.run(e.script(payScript), 1_000_000, nil, ir.AddressValue(bob), ir.U64(30))
	require.NoError(t, err)

	ws := txn.MakeWriteSet()
	require.Len(t, ws, 2)
	// Paths sort by full-width owner address, so 0x...0b0b comes first.
	assert.Equal(t, balancePath(bob), ws[0].Path)
	assert.Equal(t, `{"value":35}`, string(ws[0].Value))
	assert.Equal(t, balancePath(alice), ws[1].Path)
	assert.Equal(t, `{"value":70}`, string(ws[1].Value))
}

func TestExecutePayInsufficientFunds(t *testing.T) {
	e := newTestEnv(t)
	e.setBalance(alice, 10)
	e.setBalance(bob, 0)

	_, err := e.run(e.script(payScript), 1_000_000, nil, ir.AddressValue(bob), ir.U64(30))
	ve := requireStatus(t, err, StatusAborted)
	assert.Equal(t, uint64(stdlib.AbortInsufficientFunds), ve.AbortCode)
	assert.Equal(t, "0x1::Account::withdraw", ve.Location)
	assert.Equal(t, 1, ve.Offset)
}

func TestExecuteDepositOverflow(t *testing.T) {
	e := newTestEnv(t)
	e.setBalance(alice, 10)
	e.setBalance(bob, math.MaxUint64)

	_, err := e.run(e.script(payScript), 1_000_000, nil, ir.AddressValue(bob), ir.U64(1))
	requireStatus(t, err, StatusArithmeticError)
}

func TestExecuteOutOfGas(t *testing.T) {
	e := newTestEnv(t)
	txn, err := e.run(e.script(createScript), 20, nil, ir.U64(100))
	requireStatus(t, err, StatusOutOfGas)
	assert.Equal(t, uint64(20), txn.GasUsed())
	assert.Zero(t, txn.GasRemaining())
}

func TestExecuteZeroCost(t *testing.T) {
	e := newTestEnv(t)
	txn := NewTransactionContext(e.view, 0)
	err := New().ExecuteScript(context.Background(), e.script(createScript), ZeroGasSchedule(), txn,
		TransactionMetadata{Sender: alice}, nil, []ir.Value{ir.U64(1)})
	require.NoError(t, err)
	assert.Zero(t, txn.GasUsed())
	assert.Len(t, txn.MakeWriteSet(), 1)
}

func TestExecuteArgumentChecks(t *testing.T) {
	e := newTestEnv(t)
	script := e.script(createScript)

	_, err := e.run(script, 1_000_000, nil)
	requireStatus(t, err, StatusArgumentCountMismatch)

	_, err = e.run(script, 1_000_000, nil, ir.Bool(true))
	requireStatus(t, err, StatusTypeMismatch)

	_, err = e.run(script, 1_000_000, []ir.Type{ir.TypeU64}, ir.U64(1))
	requireStatus(t, err, StatusTypeArgumentCountMismatch)
}

func TestExecuteGenericScript(t *testing.T) {
	e := newTestEnv(t)
	script := e.script(`script: {
		uses: ["0x1::Debug"]
		type_params: ["T"]
		params: [{name: "a", type: "T"}, {name: "b", type: "T"}]
		body: [{op: "call", function: "Debug::assert_eq", type_args: ["T"], args: ["$a", "$b"]}]
	}`)

	_, err := e.run(script, 1_000_000, []ir.Type{ir.TypeU64}, ir.U64(7), ir.U64(7))
	require.NoError(t, err)

	_, err = e.run(script, 1_000_000, []ir.Type{ir.TypeAddress}, ir.AddressValue(alice), ir.AddressValue(bob))
	ve := requireStatus(t, err, StatusAborted)
	assert.Equal(t, uint64(stdlib.AbortNotEqual), ve.AbortCode)
	assert.Equal(t, "0x1::Debug::assert_eq", ve.Location)

	_, err = e.run(script, 1_000_000, []ir.Type{ir.TypeBool}, ir.U64(7), ir.U64(7))
	requireStatus(t, err, StatusTypeMismatch)

	// A struct tag is a valid type argument, but no value has its type.
	_, err = e.run(script, 1_000_000, []ir.Type{stdlib.BalanceTag.Type()}, ir.U64(7), ir.U64(7))
	requireStatus(t, err, StatusTypeMismatch)

	_, err = e.run(script, 1_000_000, []ir.Type{"0x1::Account::Nope"}, ir.U64(7), ir.U64(7))
	requireStatus(t, err, StatusTypeMismatch)

	_, err = e.run(script, 1_000_000, []ir.Type{"0x9::Ghost::R"}, ir.U64(7), ir.U64(7))
	requireStatus(t, err, StatusLinkerError)
}

func TestExecuteLinkerErrors(t *testing.T) {
	e := newTestEnv(t)
	e.publish(`module: {
		name: "Greeter"
		functions: hello: {public: true, params: [{name: "n", type: "u64"}], body: []}
	}`)
	script := e.script(`script: {
		uses: ["Greeter"]
		body: [{op: "call", function: "Greeter::hello", args: [1]}]
	}`)
	_, err := e.run(script, 1_000_000, nil)
	require.NoError(t, err)

	// Republish with a different signature under the same id.
	changed := &ir.CompiledModule{
		Self: ir.ModuleID{Address: alice, Name: "Greeter"},
		Functions: []ir.FunctionDef{{
			Name: "hello", Public: true,
			Params: []ir.Param{{Name: "n", Type: ir.TypeBool}},
		}},
	}
	data, err := changed.Serialize()
	require.NoError(t, err)
	e.view[ir.ModulePath(changed.Self)] = data

	_, err = e.run(script, 1_000_000, nil)
	ve := requireStatus(t, err, StatusLinkerError)
	assert.Contains(t, ve.Message, "Greeter::hello")

	// Private now.
	changed.Functions[0].Params[0].Type = ir.TypeU64
	changed.Functions[0].Public = false
	data, err = changed.Serialize()
	require.NoError(t, err)
	e.view[ir.ModulePath(changed.Self)] = data
	_, err = e.run(script, 1_000_000, nil)
	requireStatus(t, err, StatusLinkerError)

	// Gone.
	delete(e.view, ir.ModulePath(changed.Self))
	_, err = e.run(script, 1_000_000, nil)
	ve = requireStatus(t, err, StatusLinkerError)
	assert.Contains(t, ve.Message, "not published")
}

func TestExecuteCallStackOverflow(t *testing.T) {
	e := newTestEnv(t)
	e.publish(`module: {
		name: "Loop"
		functions: {
			spin: {public: true, body: [{op: "call", function: "spin"}]}
		}
	}`)
	script := e.script(`script: {uses: ["Loop"], body: [{op: "call", function: "Loop::spin"}]}`)

	txn := NewTransactionContext(e.view, 1_000_000)
	err := New(WithMaxCallDepth(8)).ExecuteScript(context.Background(), script, DefaultGasSchedule(), txn,
		TransactionMetadata{Sender: alice}, nil, nil)
	ve := requireStatus(t, err, StatusCallStackOverflow)
	assert.Equal(t, "0xa11ce::Loop::spin", ve.Location)

	_, err = e.run(script, 1_000_000, nil)
	requireStatus(t, err, StatusCallStackOverflow)
}

const vaultSource = `module: {
	name: "Vault"
	resources: {
		Pair: fields: {left: "u64", right: "u64"}
		Big: fields: {v: "u128"}
		Small: fields: {v: "u8"}
	}
	functions: {
		open: {public: true, body: [
			{op: "move_to", resource: "Pair", fields: {left: 1, right: 2}},
			{op: "move_to", resource: "Big", fields: {v: {u128: "340282366920938463463374607431768211455"}}},
			{op: "move_to", resource: "Small", fields: {v: {u8: 0}}},
		]}
		swap: {public: true, body: [
			{op: "update", resource: "Pair", fields: {left: {field: "Pair.right"}, right: {field: "Pair.left"}}},
		]}
		grow: {public: true, body: [
			{op: "update", resource: "Big", fields: {v: {add: [{field: "Big.v"}, {u128: "1"}]}}},
		]}
		shrink: {public: true, body: [
			{op: "update", resource: "Small", fields: {v: {sub: [{field: "Small.v"}, {u8: 1}]}}},
		]}
		drain: {public: true, body: [
			{op: "move_from", resource: "Pair"},
			{op: "move_from", resource: "Big"},
			{op: "move_from", resource: "Small"},
		]}
	}
}`

func vaultScript(e *testEnv, fns ...string) []byte {
	body := ""
	for _, fn := range fns {
		body += `{op: "call", function: "Vault::` + fn + `"},`
	}
	return e.script(`script: {uses: ["Vault"], body: [` + body + `]}`)
}

func TestExecuteUpdateSeesPreUpdateState(t *testing.T) {
	e := newTestEnv(t)
	e.publish(vaultSource)

	txn, err := e.run(vaultScript(e, "open", "swap"), 1_000_000, nil)
	require.NoError(t, err)

	tag := ir.StructTag{Module: ir.ModuleID{Address: alice, Name: "Vault"}, Name: "Pair"}
	var pair []byte
	for _, w := range txn.MakeWriteSet() {
		if w.Path == ir.ResourcePath(alice, tag) {
			pair = w.Value
		}
	}
	assert.Equal(t, `{"left":2,"right":1}`, string(pair))
}

func TestExecuteArithmeticBounds(t *testing.T) {
	e := newTestEnv(t)
	e.publish(vaultSource)

	_, err := e.run(vaultScript(e, "open", "grow"), 1_000_000, nil)
	ve := requireStatus(t, err, StatusArithmeticError)
	assert.Equal(t, "0xa11ce::Vault::grow", ve.Location)

	_, err = e.run(vaultScript(e, "open", "shrink"), 1_000_000, nil)
	requireStatus(t, err, StatusArithmeticError)
}

func TestExecuteCreateThenDestroyLeavesNoTrace(t *testing.T) {
	e := newTestEnv(t)
	e.publish(vaultSource)

	txn, err := e.run(vaultScript(e, "open", "drain"), 1_000_000, nil)
	require.NoError(t, err)
	assert.Empty(t, txn.MakeWriteSet())
}

func TestExecuteMoveFromExisting(t *testing.T) {
	e := newTestEnv(t)
	e.setBalance(alice, 0)
	script := e.script(`script: {uses: ["0x1::Account"], body: [{op: "call", function: "Account::destroy"}]}`)

	txn, err := e.run(script, 1_000_000, nil)
	require.NoError(t, err)
	ws := txn.MakeWriteSet()
	require.Len(t, ws, 1)
	assert.Equal(t, ir.WriteKindDelete, ws[0].Kind)
	assert.Equal(t, string(balancePath(alice))+": delete", ws[0].String())
}

func TestExecuteMissingData(t *testing.T) {
	e := newTestEnv(t)
	e.publish(vaultSource)

	_, err := e.run(vaultScript(e, "swap"), 1_000_000, nil)
	requireStatus(t, err, StatusMissingData)
}

func TestExecuteScriptAbort(t *testing.T) {
	e := newTestEnv(t)
	script := e.script(`script: body: [
		{op: "assert", cond: {eq: ["@sender", "0xa11ce"]}, code: 1},
		{op: "abort", code: 77},
	]`)

	_, err := e.run(script, 1_000_000, nil)
	ve := requireStatus(t, err, StatusAborted)
	assert.Equal(t, uint64(77), ve.AbortCode)
	assert.Equal(t, "script", ve.Location)
	assert.Equal(t, 1, ve.Offset)
	assert.Equal(t, "ABORTED with code 77 at script[1]", ve.Error())
}

func TestExecuteDeserializationError(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.run([]byte("not bytecode"), 1_000_000, nil)
	requireStatus(t, err, StatusDeserializationError)
}

func TestExecuteStorageError(t *testing.T) {
	e := newTestEnv(t)
	script := e.script(createScript)

	txn := NewTransactionContext(failingView{}, 1_000_000)
	err := New().ExecuteScript(context.Background(), script, DefaultGasSchedule(), txn,
		TransactionMetadata{Sender: alice}, nil, []ir.Value{ir.U64(1)})
	ve := requireStatus(t, err, StatusStorageError)
	assert.Contains(t, ve.Message, "disk on fire")
}

func TestExecuteCancelledContext(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	txn := NewTransactionContext(e.view, 1_000_000)
	err := New().ExecuteScript(ctx, e.script(createScript), DefaultGasSchedule(), txn,
		TransactionMetadata{Sender: alice}, nil, []ir.Value{ir.U64(1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransactionContextOverlay(t *testing.T) {
	base := mapView{"0x1/module/A": []byte("a")}
	txn := NewTransactionContext(base, 0)
	ctx := context.Background()

	v, ok, err := txn.Get(ctx, "0x1/module/A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), v)

	txn.Delete("0x1/module/A")
	_, ok, err = txn.Get(ctx, "0x1/module/A")
	require.NoError(t, err)
	assert.False(t, ok)

	txn.Set("0x2/module/B", []byte("b"))
	v, ok, err = txn.Get(ctx, "0x2/module/B")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("b"), v)

	assert.Equal(t, []ir.AccessPath{"0x1/module/A", "0x2/module/B"}, txn.MakeWriteSet().Paths())
}

func TestGasScheduleCost(t *testing.T) {
	g := DefaultGasSchedule()
	assert.Equal(t, uint64(50), g.Cost(ir.OpMoveTo))
	assert.Equal(t, uint64(50), g.Cost(ir.OpMoveFrom))
	assert.Equal(t, uint64(30), g.Cost(ir.OpUpdate))
	assert.Equal(t, uint64(10), g.Cost(ir.OpCall))
	assert.Equal(t, uint64(5), g.Cost(ir.OpAssert))
	assert.Equal(t, uint64(1), g.Cost(ir.OpAbort))
	assert.Zero(t, ZeroGasSchedule().Cost(ir.OpMoveTo))
}

func TestVMErrorFormat(t *testing.T) {
	err := &VMError{Status: StatusMissingData, Location: "0x1::Account::withdraw", Offset: 2, Message: "no balance"}
	assert.Equal(t, "MISSING_DATA at 0x1::Account::withdraw[2]: no balance", err.Error())
	assert.Equal(t, "LINKER_ERROR: gone", newError(StatusLinkerError, "gone").Error())
	assert.True(t, HasStatus(err, StatusMissingData))
	assert.False(t, HasStatus(errors.New("plain"), StatusMissingData))
}
