package compiler_test

import (
	"strings"
	"testing"

	"github.com/mna/rbvm/lang/compiler"
	"github.com/stretchr/testify/require"
)

func TestDisassembleShapes(t *testing.T) {
	var pool compiler.LiteralPool
	off := pool.InternString("hi")

	var syms compiler.SymbolTable
	msym, err := syms.InternMethod("puts")
	require.NoError(t, err)

	p := &compiler.Procedure{
		Name: "top",
		Code: []compiler.Instruction{
			{Op: compiler.LOADSELF, A: 0},
			{Op: compiler.STRING, A: 1, Bx: uint32(off)},
			{Op: compiler.SEND, A: 0, B: int32(msym), C: 1},
			{Op: compiler.JMP, SBx: 2},
			{Op: compiler.RETURN, A: 0, B: int32(compiler.RNormal)},
		},
		Pool:    pool,
		Symbols: syms,
		NumRegs: 2,
	}

	out := compiler.Disassemble(p)
	require.Contains(t, out, "function top(params=0) regs=2")
	require.Contains(t, out, "loadself")
	require.Contains(t, out, `string "hi"`)
	require.Contains(t, out, "send")
	require.Contains(t, out, "puts")
	require.Contains(t, out, "jmp")
	require.Contains(t, out, "+2")
	require.Contains(t, out, "return")
}

func TestDisassembleChildren(t *testing.T) {
	child := &compiler.Procedure{
		Name: "block",
		Code: []compiler.Instruction{
			{Op: compiler.LOADNIL, A: 0},
			{Op: compiler.RETURN, A: 0, B: int32(compiler.RNormal)},
		},
	}
	parent := &compiler.Procedure{
		Name:     "top",
		Code:     []compiler.Instruction{{Op: compiler.RETURN, A: 0, B: int32(compiler.RNormal)}},
		Children: []*compiler.Procedure{child},
	}

	out := compiler.Disassemble(parent)
	lines := strings.Split(out, "\n")
	var sawChild bool
	for _, l := range lines {
		if strings.Contains(l, "function block") {
			sawChild = true
			require.True(t, strings.HasPrefix(l, "  "), "child listing should be indented")
		}
	}
	require.True(t, sawChild, "child procedure should appear in the listing")
}

func TestDisassembleAnonymous(t *testing.T) {
	p := &compiler.Procedure{Code: []compiler.Instruction{{Op: compiler.NOP}}}
	out := compiler.Disassemble(p)
	require.Contains(t, out, "<anonymous>")
}
