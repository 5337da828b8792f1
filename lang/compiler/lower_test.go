package compiler_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/mna/rbvm/lang/ast"
	"github.com/mna/rbvm/lang/compiler"
	"github.com/mna/rbvm/lang/parser"
	"github.com/mna/rbvm/lang/token"
	"github.com/stretchr/testify/require"
)

func compileSource(t *testing.T, src string) *compiler.Procedure {
	t.Helper()
	fset := token.NewFileSet()
	chunk, err := parser.ParseChunk(context.Background(), 0, fset, "test.rb", []byte(src))
	require.NoError(t, err)

	procs, err := compiler.CompileFiles(fset, map[string]*ast.Chunk{"test.rb": chunk})
	require.NoError(t, err)
	require.Len(t, procs, 1)
	return procs[0]
}

func opsOf(p *compiler.Procedure) []compiler.Opcode {
	ops := make([]compiler.Opcode, len(p.Code))
	for i, in := range p.Code {
		ops[i] = in.Op
	}
	return ops
}

// Scenario 1: an integer literal small enough to fit sBx loads via LOADI
// rather than going through the literal pool; the literal is passed as a
// call argument since a bare literal is not a valid statement on its own.
func TestCompileIntegerLiteral(t *testing.T) {
	p := compileSource(t, "foo(10)")
	require.Contains(t, opsOf(p), compiler.LOADI)
	require.NotContains(t, opsOf(p), compiler.LOADL)
}

// A literal outside sBx range goes through the literal pool via LOADL
// instead.
func TestCompileIntegerLiteralOutOfSBxRangeUsesPool(t *testing.T) {
	p := compileSource(t, "foo(4294967296)")
	require.Contains(t, opsOf(p), compiler.LOADL)
	require.NotContains(t, opsOf(p), compiler.LOADI)
}

// Scenario 2: assigning a literal straight to a local folds the MOVE that
// would otherwise follow LOADI, via the peephole optimizer's destination
// substitution rule.
func TestCompileAssignFoldsMove(t *testing.T) {
	p := compileSource(t, "let x = 42")
	ops := opsOf(p)
	require.Contains(t, ops, compiler.LOADI)
	require.NotContains(t, ops, compiler.MOVE)
}

// Scenario 3: a statically-true condition is folded: only the true arm is
// lowered, so no conditional jump is emitted, and RETURN is the last
// instruction.
func TestCompileIfConstantConditionFolds(t *testing.T) {
	p := compileSource(t, `
if true then
  foo(1)
else
  foo(2)
end
`)
	ops := opsOf(p)
	require.NotContains(t, ops, compiler.JMPNOT)
	require.Equal(t, compiler.RETURN, ops[len(ops)-1])
}

// Scenario 4: a local plus a small integer constant fuses into ADDI via the
// peephole optimizer instead of emitting a separate LOADI/ADD pair.
func TestCompileLocalPlusConstantFusesAddi(t *testing.T) {
	p := compileSource(t, `
let a = 5
foo(a + 1)
`)
	require.Contains(t, opsOf(p), compiler.ADDI)
}

// Scenario 5: a while-style loop (for cond do) tests the condition at the
// top (JMPNOT to exit once false) and jumps back to the test after the body.
func TestCompileForCondLoopShape(t *testing.T) {
	p := compileSource(t, `
for true do
  foo(1)
end
`)
	ops := opsOf(p)
	require.Contains(t, ops, compiler.JMP)
	require.Contains(t, ops, compiler.JMPNOT)
}

// Scenario 6: begin/rescue sets up an error region (ONERR) that is torn
// down (POPERR) once the protected block completes or is handled.
func TestCompileBeginRescueShape(t *testing.T) {
	p := compileSource(t, `
begin
  raise()
rescue StandardError: e
  foo(1)
end
`)
	ops := opsOf(p)
	require.Contains(t, ops, compiler.ONERR)
	require.Contains(t, ops, compiler.POPERR)
}

func TestCompileMethodSymbolOverflowReturnsError(t *testing.T) {
	var src string
	for i := 0; i < compiler.MaxMethodSymbols+1; i++ {
		src += "recv.m" + strconv.Itoa(i) + "()\n"
	}
	fset := token.NewFileSet()
	chunk, err := parser.ParseChunk(context.Background(), 0, fset, "overflow.rb", []byte(src))
	require.NoError(t, err)

	_, err = compiler.CompileFiles(fset, map[string]*ast.Chunk{"overflow.rb": chunk})
	require.Error(t, err)
}
