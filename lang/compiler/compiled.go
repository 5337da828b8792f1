package compiler

import "github.com/mna/rbvm/lang/token"

// LocalDesc names one register-resident local variable of a Procedure, in
// declaration order (parameters first).
type LocalDesc struct {
	Name string
	Reg  int
}

// Procedure is the compiled output unit: a container bundling the
// instruction sequence, its literal pool and symbol table, local-variable
// descriptors, register/argument counts and nested child procedures
// (closures and method bodies defined within it). It is the target
// language's analogue of an irep.
type Procedure struct {
	Name       string
	Code       []Instruction
	Pool       LiteralPool
	Symbols    SymbolTable
	Locals     []LocalDesc
	NumRegs    int
	NumParams  int
	HasVarargs bool
	Aspec      Aspec
	Children   []*Procedure
	File       *token.File
}

// LineFor returns the 1-based source line recorded for pc.
func (p *Procedure) LineFor(pc int) int32 {
	if pc < 0 || pc >= len(p.Code) {
		return 0
	}
	return p.Code[pc].Line
}
