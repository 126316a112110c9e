// Package execution adapts the VM to the runner: it binds a transaction
// context to the data store, runs one script and hands back the write set.
package execution

import (
	"context"
	"log/slog"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/ir"
	"github.com/roach88/mover/internal/vm"
)

// DefaultGasBudget is used when no budget is configured.
const DefaultGasBudget = 1_000_000

// Request is one script execution.
type Request struct {
	Script         []byte
	Sender         account.Address
	SequenceNumber uint64
	Args           []ir.Value
	TypeArgs       []ir.Type
}

// Result is the outcome of a successful execution.
type Result struct {
	TxnID    string      `json:"txn_id"`
	GasUsed  uint64      `json:"gas_used"`
	WriteSet ir.WriteSet `json:"write_set"`
}

// Adapter executes scripts against a state view. It never writes to the
// view; applying Result.WriteSet is the caller's decision.
type Adapter struct {
	view   vm.StateView
	vm     *vm.VM
	gas    vm.GasSchedule
	budget uint64
	ids    IDGenerator
	logger *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithVM replaces the default VM.
func WithVM(v *vm.VM) Option {
	return func(a *Adapter) {
		a.vm = v
	}
}

// WithGasBudget sets the per-transaction gas budget.
func WithGasBudget(budget uint64) Option {
	return func(a *Adapter) {
		a.budget = budget
	}
}

// WithZeroCost switches to a schedule where nothing costs gas.
func WithZeroCost() Option {
	return func(a *Adapter) {
		a.gas = vm.ZeroGasSchedule()
	}
}

// WithIDGenerator sets the transaction id source.
func WithIDGenerator(ids IDGenerator) Option {
	return func(a *Adapter) {
		a.ids = ids
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// NewAdapter creates an adapter over view.
func NewAdapter(view vm.StateView, opts ...Option) *Adapter {
	a := &Adapter{
		view:   view,
		gas:    vm.DefaultGasSchedule(),
		budget: DefaultGasBudget,
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.vm == nil {
		a.vm = vm.New(vm.WithLogger(a.logger))
	}
	return a
}

// Execute runs req. VM errors are returned unmodified so callers can
// inspect them with vm.AsVMError.
func (a *Adapter) Execute(ctx context.Context, req Request) (*Result, error) {
	id := a.ids.Generate()
	logger := a.logger.With("txn", id)

	txn := vm.NewTransactionContext(a.view, a.budget)
	logger.Info("executing", "sender", req.Sender.ShortString(), "args", len(req.Args))

	err := a.vm.ExecuteScript(ctx, req.Script, a.gas, txn,
		vm.TransactionMetadata{Sender: req.Sender, SequenceNumber: req.SequenceNumber},
		req.TypeArgs, req.Args)
	if err != nil {
		logger.Info("execution failed", "error", err, "gas_used", txn.GasUsed())
		return nil, err
	}

	ws := txn.MakeWriteSet()
	logger.Info("executed", "gas_used", txn.GasUsed(), "writes", len(ws))
	return &Result{TxnID: id, GasUsed: txn.GasUsed(), WriteSet: ws}, nil
}
