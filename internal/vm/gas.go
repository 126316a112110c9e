package vm

import "github.com/roach88/mover/internal/ir"

// GasSchedule prices each instruction and expression node.
type GasSchedule struct {
	MoveTo   uint64
	MoveFrom uint64
	Update   uint64
	Call     uint64
	Assert   uint64
	Abort    uint64
	ExprNode uint64
}

// DefaultGasSchedule is the schedule used unless execution.zero_cost is set.
func DefaultGasSchedule() GasSchedule {
	return GasSchedule{
		MoveTo:   50,
		MoveFrom: 50,
		Update:   30,
		Call:     10,
		Assert:   5,
		Abort:    1,
		ExprNode: 1,
	}
}

// ZeroGasSchedule charges nothing. The budget is never exceeded.
func ZeroGasSchedule() GasSchedule {
	return GasSchedule{}
}

// Cost returns the price of executing one instruction, excluding the
// expressions it evaluates.
func (g GasSchedule) Cost(op ir.Op) uint64 {
	switch op {
	case ir.OpMoveTo:
		return g.MoveTo
	case ir.OpMoveFrom:
		return g.MoveFrom
	case ir.OpUpdate:
		return g.Update
	case ir.OpCall:
		return g.Call
	case ir.OpAssert:
		return g.Assert
	case ir.OpAbort:
		return g.Abort
	default:
		return 0
	}
}
