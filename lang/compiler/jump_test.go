package compiler_test

import (
	"testing"

	"github.com/mna/rbvm/lang/compiler"
	"github.com/stretchr/testify/require"
)

func TestJumpPatcherDispatchSingle(t *testing.T) {
	var buf compiler.InstructionBuffer
	jmp := buf.Emit(compiler.Instruction{Op: compiler.JMP})
	buf.Emit(compiler.Instruction{Op: compiler.LOADNIL, A: 0})
	buf.Emit(compiler.Instruction{Op: compiler.RETURN, A: 0})

	p := compiler.NewJumpPatcher(&buf)
	p.Dispatch(jmp)

	in := buf.At(jmp)
	require.Equal(t, int32(buf.PC()-(jmp+1)), in.SBx)
}

func TestJumpPatcherDispatchToExplicitTarget(t *testing.T) {
	var buf compiler.InstructionBuffer
	jmp := buf.Emit(compiler.Instruction{Op: compiler.JMPIF})
	buf.Emit(compiler.Instruction{Op: compiler.NOP})
	target := buf.PC()
	buf.Emit(compiler.Instruction{Op: compiler.LOADT, A: 0})

	p := compiler.NewJumpPatcher(&buf)
	p.DispatchTo(jmp, target)

	require.Equal(t, int32(target-(jmp+1)), buf.At(jmp).SBx)
}

func TestJumpPatcherDispatchPanicsOnNonJump(t *testing.T) {
	var buf compiler.InstructionBuffer
	pc := buf.Emit(compiler.Instruction{Op: compiler.MOVE, A: 0, B: 1})

	p := compiler.NewJumpPatcher(&buf)
	require.Panics(t, func() { p.Dispatch(pc) })
}

func TestJumpPatcherConcatAndDispatchLinked(t *testing.T) {
	var buf compiler.InstructionBuffer
	// pc 0 is the empty-chain marker, so the chained jumps start at pc 1.
	buf.Emit(compiler.Instruction{Op: compiler.NOP})
	j1 := buf.Emit(compiler.Instruction{Op: compiler.JMP})
	j2 := buf.Emit(compiler.Instruction{Op: compiler.JMPNOT})
	j3 := buf.Emit(compiler.Instruction{Op: compiler.JMP})

	p := compiler.NewJumpPatcher(&buf)
	chain := p.Concat(j1, j2)
	chain = p.Concat(chain, j3)

	buf.Emit(compiler.Instruction{Op: compiler.RETURN, A: 0})
	target := buf.PC()

	p.DispatchLinked(chain)

	require.Equal(t, int32(target-(j1+1)), buf.At(j1).SBx)
	require.Equal(t, int32(target-(j2+1)), buf.At(j2).SBx)
	require.Equal(t, int32(target-(j3+1)), buf.At(j3).SBx)
}

func TestJumpPatcherConcatEmptyChains(t *testing.T) {
	var buf compiler.InstructionBuffer
	jmp := buf.Emit(compiler.Instruction{Op: compiler.JMP})

	p := compiler.NewJumpPatcher(&buf)
	require.Equal(t, jmp, p.Concat(jmp, 0))
	require.Equal(t, jmp, p.Concat(0, jmp))
	require.Equal(t, 0, p.Concat(0, 0))
}
