package machine

import "github.com/mna/rbvm/lang/compiler"

// Frame records one active call to a Function: its register window, the
// receiver it is executing against, the chain of enclosing frames it may
// reach through GETUPVAR/SETUPVAR, and the bookkeeping ARGARY/BLKPUSH need
// to recover a zsuper's or a yield's implicit arguments.
type Frame struct {
	Fn        *Function
	Registers []Value
	Self      Value
	Block     *Function // the block passed to this call, if any (for YIELD)
	Args      []Value   // the original positional argv, for ARGARY/zsuper

	pc      int
	onerr   []int // stack of active protected-region handler targets (ONERR/POPERR)
	special Value // the value bound by the most recent raise this frame caught, for GETSPECIAL
}

// Position returns the source line currently executing in this frame, or 0
// if unavailable.
func (fr *Frame) Position() int32 {
	if fr == nil || fr.Fn == nil || fr.Fn.Proc == nil {
		return 0
	}
	return fr.Fn.Proc.LineFor(fr.pc - 1)
}

// upframe returns the ancestor frame depth levels up the closure chain (1 =
// the immediately enclosing lexical scope), per GETUPVAR/SETUPVAR's depth
// operand.
func (fr *Frame) upframe(depth int) *Frame {
	if depth <= 0 || depth > len(fr.Fn.Upenv) {
		return nil
	}
	return fr.Fn.Upenv[depth-1]
}

// newFrameWindow allocates a register window of proc.NumRegs slots for a
// new frame.
func newFrameWindow(proc *compiler.Procedure) []Value {
	return make([]Value, proc.NumRegs)
}
