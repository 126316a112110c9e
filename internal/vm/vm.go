// Package vm executes compiled scripts against a state view.
//
// Execution is synchronous and deterministic. Modules are loaded from the
// state view at their module access path and linked against the import
// table of whoever calls into them: the callee must still declare a public
// function with the exact signature the caller was compiled against.
//
// Writes never reach the view. They are buffered in the TransactionContext,
// which turns them into an ordered write set once the script succeeds.
package vm

import (
	"context"
	"log/slog"

	"github.com/roach88/mover/internal/ir"
)

// MaxCallDepth is the default limit on nested function calls.
const MaxCallDepth = 256

// VM executes scripts. It holds no per-transaction state and may be reused.
type VM struct {
	maxDepth int
	logger   *slog.Logger
}

// VMOption configures a VM.
type VMOption func(*VM)

// WithMaxCallDepth overrides MaxCallDepth.
func WithMaxCallDepth(depth int) VMOption {
	return func(v *VM) {
		v.maxDepth = depth
	}
}

// WithLogger sets the logger used for execution traces.
func WithLogger(logger *slog.Logger) VMOption {
	return func(v *VM) {
		v.logger = logger
	}
}

// New creates a VM.
func New(opts ...VMOption) *VM {
	v := &VM{
		maxDepth: MaxCallDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ExecuteScript runs script bytecode with the given type arguments and
// arguments. On success the effects are in txn; on failure the error is a
// *VMError (or the context's error) and txn must be discarded.
func (v *VM) ExecuteScript(
	ctx context.Context,
	script []byte,
	gas GasSchedule,
	txn *TransactionContext,
	meta TransactionMetadata,
	typeArgs []ir.Type,
	args []ir.Value,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s, err := ir.DeserializeScript(script)
	if err != nil {
		return newError(StatusDeserializationError, "%v", err)
	}

	l := newLoader(txn)
	if len(typeArgs) != len(s.TypeParams) {
		return newError(StatusTypeArgumentCountMismatch,
			"script takes %d type arguments, got %d", len(s.TypeParams), len(typeArgs))
	}
	bound := make(map[string]ir.Type, len(typeArgs))
	for i, t := range typeArgs {
		if err := l.checkTypeArg(ctx, t); err != nil {
			return err
		}
		bound[s.TypeParams[i]] = t
	}

	if len(args) != len(s.Params) {
		return newError(StatusArgumentCountMismatch,
			"script takes %d arguments, got %d", len(s.Params), len(args))
	}
	locals := make(map[string]ir.Value, len(args))
	for i, p := range s.Params {
		want := substitute(p.Type, bound)
		if err := checkType(args[i], want); err != nil {
			err.Message = "argument " + p.Name + ": " + err.Message
			return err
		}
		locals[p.Name] = args[i]
	}

	if err := l.link(ctx, "script", s.Imports); err != nil {
		return err
	}

	v.logger.Debug("executing script",
		"sender", meta.Sender,
		"sequence_number", meta.SequenceNumber,
		"instructions", len(s.Body),
		"gas_budget", txn.GasBudget())

	in := &interpreter{
		ctx:      ctx,
		gas:      gas,
		txn:      txn,
		meta:     meta,
		loader:   l,
		maxDepth: v.maxDepth,
	}
	f := &frame{
		location: "script",
		imports:  s.Imports,
		typeArgs: bound,
		locals:   locals,
	}
	if err := in.run(f, s.Body); err != nil {
		v.logger.Debug("script failed", "error", err, "gas_used", txn.GasUsed())
		return err
	}

	v.logger.Debug("script succeeded", "gas_used", txn.GasUsed())
	return nil
}
