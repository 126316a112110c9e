package commands

import (
	"context"
	"fmt"

	"github.com/roach88/mover/internal/ir"
)

// ArgumentError reports a transaction argument or type argument that does
// not parse.
type ArgumentError struct {
	Err error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments: %v", e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// RunScript builds every module, compiles the script, seeds state from
// genesis and executes the script as the developer account. A successful
// write set is applied to the store and, if the storage policy says so,
// merged into a new genesis snapshot.
//
// A broken module aborts before the script is compiled, so nothing runs
// and no state changes.
func RunScript(ctx context.Context, c Run, env Env) (*RunResult, error) {
	args, err := ir.ParseTransactionArguments(c.Args)
	if err != nil {
		return nil, &ArgumentError{Err: err}
	}
	typeArgs, err := ir.ParseTypeArgs(c.TypeArgs)
	if err != nil {
		return nil, &ArgumentError{Err: err}
	}

	r, err := openRunner(ctx, c.Home, env)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if _, err := r.BuildModules(ctx); err != nil {
		return nil, err
	}
	script, err := r.CompileScript(ctx, resolveSource(c.Source, r.Config().ScriptDir()))
	if err != nil {
		return nil, err
	}
	if _, err := r.ApplyGenesis(ctx); err != nil {
		return nil, err
	}

	exec, err := r.Execute(ctx, script, args, typeArgs)
	if err != nil {
		return nil, err
	}
	if err := r.ApplyWriteSet(ctx, exec.WriteSet); err != nil {
		return nil, err
	}
	saved, err := r.SaveGenesis(ctx, exec.WriteSet)
	if err != nil {
		return nil, err
	}

	return &RunResult{
		TxnID:        exec.TxnID,
		GasUsed:      exec.GasUsed,
		WriteSet:     exec.WriteSet,
		GenesisSaved: saved,
	}, nil
}
