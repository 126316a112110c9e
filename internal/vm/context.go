package vm

import (
	"context"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/ir"
)

// StateView is read access to global state. The data store implements it.
type StateView interface {
	Get(ctx context.Context, path ir.AccessPath) ([]byte, bool, error)
}

// TransactionMetadata describes the transaction being executed.
type TransactionMetadata struct {
	Sender         account.Address
	SequenceNumber uint64
}

// TransactionContext buffers the writes of one execution on top of a state
// view and meters gas. The view is never modified; MakeWriteSet returns the
// buffered writes for the caller to apply.
//
// A TransactionContext is used for exactly one ExecuteScript call.
type TransactionContext struct {
	view    StateView
	budget  uint64
	used    uint64
	writes  map[ir.AccessPath]ir.WriteOp
	existed map[ir.AccessPath]bool // base state presence, recorded on first read
}

// NewTransactionContext binds a context to view with a gas budget.
func NewTransactionContext(view StateView, gasBudget uint64) *TransactionContext {
	return &TransactionContext{
		view:    view,
		budget:  gasBudget,
		writes:  make(map[ir.AccessPath]ir.WriteOp),
		existed: make(map[ir.AccessPath]bool),
	}
}

// GasBudget returns the budget the context was created with.
func (t *TransactionContext) GasBudget() uint64 { return t.budget }

// GasUsed returns the gas charged so far.
func (t *TransactionContext) GasUsed() uint64 { return t.used }

// GasRemaining returns the unspent budget.
func (t *TransactionContext) GasRemaining() uint64 { return t.budget - t.used }

// charge spends amount or fails with OUT_OF_GAS, leaving the meter at the
// budget.
func (t *TransactionContext) charge(amount uint64) error {
	if amount > t.budget-t.used {
		t.used = t.budget
		return newError(StatusOutOfGas, "gas budget of %d exhausted", t.budget)
	}
	t.used += amount
	return nil
}

// Get reads path, seeing this transaction's own writes first.
func (t *TransactionContext) Get(ctx context.Context, path ir.AccessPath) ([]byte, bool, error) {
	if w, ok := t.writes[path]; ok {
		if w.Kind == ir.WriteKindDelete {
			return nil, false, nil
		}
		return w.Value, true, nil
	}
	value, ok, err := t.view.Get(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if _, seen := t.existed[path]; !seen {
		t.existed[path] = ok
	}
	return value, ok, nil
}

// Set buffers a write of value at path.
func (t *TransactionContext) Set(path ir.AccessPath, value []byte) {
	t.writes[path] = ir.WriteOp{Path: path, Kind: ir.WriteKindSet, Value: value}
}

// Delete buffers a deletion. Deleting something this transaction created
// leaves no trace in the write set.
func (t *TransactionContext) Delete(path ir.AccessPath) {
	if existed, seen := t.existed[path]; seen && !existed {
		delete(t.writes, path)
		return
	}
	t.writes[path] = ir.WriteOp{Path: path, Kind: ir.WriteKindDelete}
}

// MakeWriteSet returns the buffered writes sorted by access path.
func (t *TransactionContext) MakeWriteSet() ir.WriteSet {
	ops := make([]ir.WriteOp, 0, len(t.writes))
	for _, w := range t.writes {
		ops = append(ops, w)
	}
	return ir.NewWriteSet(ops)
}
