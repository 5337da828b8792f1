package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble renders a compiled Procedure as a human-readable instruction
// listing, one instruction per line, with the literal pool, symbol table
// and nested children following. It is the read-only half of the teacher's
// pseudo-assembly format: the write half (parsing a textual program back
// into a Procedure) is not implemented here, since the text-to-binary
// grammar a register machine needs is a large project of its own and tests
// construct Procedures directly instead of round-tripping through text.
func Disassemble(p *Procedure) string {
	var b strings.Builder
	disassembleInto(&b, p, 0)
	return b.String()
}

func disassembleInto(b *strings.Builder, p *Procedure, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%sfunction %s(params=%d%s) regs=%d\n", indent, procName(p), p.NumParams, varargSuffix(p), p.NumRegs)

	for pc, in := range p.Code {
		fmt.Fprintf(b, "%s  %4d  %s\n", indent, pc, formatInsn(p, in))
	}

	if n := p.Pool.Len(); n > 0 {
		fmt.Fprintf(b, "%s  pool:\n", indent)
		for i := 0; i < n; i++ {
			fmt.Fprintf(b, "%s    %4d  %s\n", indent, i, formatLiteral(p.Pool.At(i)))
		}
	}
	if n := p.Symbols.Len(); n > 0 {
		fmt.Fprintf(b, "%s  symbols:\n", indent)
		for i := 0; i < n; i++ {
			fmt.Fprintf(b, "%s    %4d  %s\n", indent, i, p.Symbols.Name(i))
		}
	}

	for _, child := range p.Children {
		disassembleInto(b, child, depth+1)
	}
}

func procName(p *Procedure) string {
	if p.Name == "" {
		return "<anonymous>"
	}
	return p.Name
}

func varargSuffix(p *Procedure) string {
	if p.HasVarargs {
		return " +varargs"
	}
	return ""
}

func formatLiteral(v interface{}) string {
	switch v := v.(type) {
	case int64:
		return "int " + strconv.FormatInt(v, 10)
	case float64:
		return "float " + strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return "string " + strconv.Quote(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatInsn renders one instruction's mnemonic and operands per its shape,
// resolving Bx-addressed symbol/literal operands to their named form where
// that is unambiguous from context (SEND/METHOD -> method symbol name,
// GETCONST/SETCONST/GETGLOBAL/SETGLOBAL -> symbol name, LOADL/STRING ->
// pool literal).
func formatInsn(p *Procedure, in Instruction) string {
	op := in.Op.String()
	switch in.Op.Shape() {
	case ShapeA:
		return fmt.Sprintf("%-10s %d", op, in.A)
	case ShapeAB:
		return fmt.Sprintf("%-10s %d %d", op, in.A, in.B)
	case ShapeABC:
		if symOperand(in.Op) {
			return fmt.Sprintf("%-10s %d %s %d", op, in.A, symbolRef(p, in.B), in.C)
		}
		return fmt.Sprintf("%-10s %d %d %d", op, in.A, in.B, in.C)
	case ShapeABx:
		return fmt.Sprintf("%-10s %d %s", op, in.A, bxOperand(p, in.Op, in.Bx))
	case ShapeAsBx:
		return fmt.Sprintf("%-10s %d %+d", op, in.A, in.SBx)
	case ShapeAx:
		return fmt.Sprintf("%-10s %d", op, in.Ax)
	case ShapeAbc:
		return fmt.Sprintf("%-10s %d upvar(reg=%d,depth=%d)", op, in.A, in.Bx>>8, in.Bx&0xff)
	default:
		return op
	}
}

func symOperand(op Opcode) bool {
	switch op {
	case SEND, SENDB, METHOD, SUPEROP:
		return true
	}
	return false
}

func symbolRef(p *Procedure, idx int32) string {
	if idx < 0 || int(idx) >= p.Symbols.Len() {
		return fmt.Sprintf("sym(%d)", idx)
	}
	return p.Symbols.Name(int(idx))
}

func bxOperand(p *Procedure, op Opcode, bx uint32) string {
	switch op {
	case LOADL, STRING:
		if int(bx) < p.Pool.Len() {
			return formatLiteral(p.Pool.At(int(bx)))
		}
	case LOADSYM, GETGLOBAL, SETGLOBAL, GETCONST, SETCONST, GETSPECIAL:
		if int(bx) < p.Symbols.Len() {
			return p.Symbols.Name(int(bx))
		}
	case LAMBDA, CLASS, EXEC:
		return fmt.Sprintf("child(%d)", bx)
	}
	return strconv.FormatUint(uint64(bx), 10)
}
