package compiler_test

import (
	"testing"

	"github.com/mna/rbvm/lang/compiler"
	"github.com/stretchr/testify/require"
)

func TestInstructionEncodeDecodeRoundTrip(t *testing.T) {
	cases := []compiler.Instruction{
		{Op: compiler.NOP, A: 3},
		{Op: compiler.MOVE, A: 1, B: 2},
		{Op: compiler.ADD, A: 1, B: 2, C: 3},
		{Op: compiler.LOADL, A: 4, Bx: 0xbeef},
		{Op: compiler.JMP, A: 0, SBx: 1234},
		{Op: compiler.JMP, A: 0, SBx: -1234},
		{Op: compiler.ENTER, Ax: 0x1ffffff},
		{Op: compiler.GETUPVAR, A: 2, Bx: 0xabcd},
	}

	for _, want := range cases {
		got := compiler.Decode(want.Encode())
		require.Equal(t, want.Op, got.Op)
		switch want.Op.Shape() {
		case compiler.ShapeA:
			require.Equal(t, want.A, got.A)
		case compiler.ShapeAB:
			require.Equal(t, want.A, got.A)
			require.Equal(t, want.B, got.B)
		case compiler.ShapeABC:
			require.Equal(t, want.A, got.A)
			require.Equal(t, want.B, got.B)
			require.Equal(t, want.C, got.C)
		case compiler.ShapeABx, compiler.ShapeAbc:
			require.Equal(t, want.A, got.A)
			require.Equal(t, want.Bx, got.Bx)
		case compiler.ShapeAsBx:
			require.Equal(t, want.A, got.A)
			require.Equal(t, want.SBx, got.SBx)
		case compiler.ShapeAx:
			require.Equal(t, want.Ax, got.Ax)
		}
	}
}

func TestInstructionBufferEmitAndSet(t *testing.T) {
	var buf compiler.InstructionBuffer
	require.Equal(t, 0, buf.PC())

	pc0 := buf.Emit(compiler.Instruction{Op: compiler.LOADNIL, A: 0, Line: 1})
	pc1 := buf.Emit(compiler.Instruction{Op: compiler.JMP, SBx: 0, Line: 2})
	require.Equal(t, 0, pc0)
	require.Equal(t, 1, pc1)
	require.Equal(t, 2, buf.PC())
	require.Equal(t, int32(2), buf.LineFor(pc1))

	buf.Set(pc1, compiler.Instruction{Op: compiler.JMP, SBx: 5, Line: 2})
	require.Equal(t, int32(5), buf.At(pc1).SBx)

	last := buf.Last()
	require.NotNil(t, last)
	require.Equal(t, compiler.JMP, last.Op)

	buf.RemoveLast()
	require.Equal(t, 1, buf.PC())
	require.Equal(t, compiler.LOADNIL, buf.Last().Op)
}

func TestInstructionBufferLastEmpty(t *testing.T) {
	var buf compiler.InstructionBuffer
	require.Nil(t, buf.Last())
}

func TestOpcodeString(t *testing.T) {
	require.Equal(t, "send", compiler.SEND.String())
	require.Equal(t, "opcode(?)", compiler.Opcode(255).String())
}
