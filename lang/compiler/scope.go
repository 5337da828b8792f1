package compiler

import (
	"fmt"

	"github.com/mna/rbvm/lang/token"
)

// Aspec is the bit-packed method argument descriptor: required (5) |
// optional (5) | rest-flag (1) | post-required (5) | keyword-count (5) |
// keyword-dict (1) | block (1), packed low to high in that order.
type Aspec uint32

// MakeAspec packs the argument-shape fields into an Aspec.
func MakeAspec(req, opt int, rest bool, post, kw int, kwDict, block bool) Aspec {
	a := uint32(req&0x1f) | uint32(opt&0x1f)<<5
	if rest {
		a |= 1 << 10
	}
	a |= uint32(post&0x1f) << 11
	a |= uint32(kw&0x1f) << 16
	if kwDict {
		a |= 1 << 21
	}
	if block {
		a |= 1 << 22
	}
	return Aspec(a)
}

func (a Aspec) Required() int { return int(a) & 0x1f }
func (a Aspec) Optional() int { return int(a>>5) & 0x1f }
func (a Aspec) HasRest() bool { return a&(1<<10) != 0 }
func (a Aspec) Post() int     { return int(a>>11) & 0x1f }

// Ainfo derives the 12-bit argv-recovery descriptor SUPER/ARGARY/BLKPUSH
// use to rebuild a call's argument window from the enclosing frame.
func (a Aspec) Ainfo() uint32 {
	info := uint32(a.Required()) | uint32(a.Optional())<<5
	if a.HasRest() {
		info |= 1 << 10
	}
	info |= uint32(a.Post()&1) << 11
	return info
}

// local is one entry of a ScopeUnit's local-variable list: its name and the
// register index it occupies.
type local struct {
	name string
	reg  int
}

// ScopeUnit is a single compilation unit producing exactly one IR
// Procedure: a top-level chunk, a method, a block, a for-body or a
// class/module body. It owns an InstructionBuffer, LiteralPool,
// SymbolTable and RegisterStack, and is linked to its lexical parent for
// upvar resolution.
type ScopeUnit struct {
	parent *ScopeUnit
	file   *token.File

	buf     InstructionBuffer
	pool    LiteralPool
	syms    SymbolTable
	regs    RegisterStack
	loops   LoopStack
	ensures EnsureTracker
	patcher *JumpPatcher

	locals []local

	lastlabel int
	optimize  bool

	// mscope is true for method/top-level scopes, false for blocks: it
	// marks the boundary ZSUPER/YIELD walk up to when recovering ainfo.
	mscope bool
	aspec  Aspec

	children []*Procedure
	name     string
}

// newScope creates a child ScopeUnit of parent (nil for the root/top-level
// scope).
func newScope(parent *ScopeUnit, file *token.File, mscope bool, name string) *ScopeUnit {
	s := &ScopeUnit{parent: parent, file: file, mscope: mscope, optimize: true, name: name}
	s.patcher = NewJumpPatcher(&s.buf)
	if parent != nil {
		s.optimize = parent.optimize
	}
	return s
}

// declareLocal adds name as a new local occupying the next register and
// returns its register index.
func (s *ScopeUnit) declareLocal(name string) (int, error) {
	reg, err := s.regs.Push()
	if err != nil {
		return 0, err
	}
	s.locals = append(s.locals, local{name: name, reg: reg})
	return reg, nil
}

// lookupLocal returns the register holding name in this scope only (no
// parent walk), and whether it was found.
func (s *ScopeUnit) lookupLocal(name string) (int, bool) {
	for i := len(s.locals) - 1; i >= 0; i-- {
		if s.locals[i].name == name {
			return s.locals[i].reg, true
		}
	}
	return 0, false
}

// lookupUpvar walks outward through parent scopes looking for name,
// returning the register in the defining scope and the lexical depth (1 =
// immediate parent) at which it was found.
func (s *ScopeUnit) lookupUpvar(name string) (reg, depth int, ok bool) {
	depth = 0
	for p := s.parent; p != nil; p = p.parent {
		depth++
		if reg, ok := p.lookupLocal(name); ok {
			return reg, depth, true
		}
	}
	return 0, 0, false
}

// nlocals reports the number of declared locals: registers at or above this
// index are "temp region" registers, fair game for the peephole optimizer's
// dest-substitution rules (it must never rewrite a named local's register).
func (s *ScopeUnit) nlocals() int { return len(s.locals) }

// emit appends the encoded instruction, recording line/col, and updates
// lastlabel bookkeeping is left to callers that resolve jump targets (label
// marks the *next* pc as a jump target before it is emitted).
func (s *ScopeUnit) emit(op Opcode, a, b, c int32, pos token.Pos) int {
	line, col := s.position(pos)
	return s.buf.Emit(Instruction{Op: op, A: a, B: b, C: c, Line: line, Col: col})
}

func (s *ScopeUnit) emitBx(op Opcode, a int32, bx uint32, pos token.Pos) int {
	line, col := s.position(pos)
	return s.buf.Emit(Instruction{Op: op, A: a, Bx: bx, Line: line, Col: col})
}

func (s *ScopeUnit) emitSBx(op Opcode, a int32, sbx int32, pos token.Pos) int {
	line, col := s.position(pos)
	return s.buf.Emit(Instruction{Op: op, A: a, SBx: sbx, Line: line, Col: col})
}

func (s *ScopeUnit) emitAx(op Opcode, ax uint32, pos token.Pos) int {
	line, col := s.position(pos)
	return s.buf.Emit(Instruction{Op: op, Ax: ax, Line: line, Col: col})
}

func (s *ScopeUnit) position(pos token.Pos) (int32, int32) {
	if s.file == nil || !pos.IsValid() {
		return 0, 0
	}
	p := s.file.Position(pos)
	return int32(p.Line), int32(p.Column)
}

// label marks the upcoming PC as a jump target, which blocks the peephole
// optimizer from fusing across it (a rewrite that merges the "prior"
// instruction into a new one would silently retarget any jump that lands
// exactly on the boundary being collapsed).
func (s *ScopeUnit) label() int {
	pc := s.buf.PC()
	if pc > s.lastlabel {
		s.lastlabel = pc
	}
	return pc
}

// methodSymbol interns name in the capped method-symbol table.
func (s *ScopeUnit) methodSymbol(name string) (int, error) {
	idx, err := s.syms.InternMethod(name)
	if err != nil {
		return 0, fmt.Errorf("%s", err)
	}
	return idx, nil
}

// finish shrinks the scope's growable tables and produces the IR Procedure
// this ScopeUnit was compiling, attaching it to the parent's child list (if
// any). It is the Go analogue of scope_finish: no arena to release since
// ScopeUnit holds only slices owned by the Go GC, but the shrink-to-exact
// semantics are preserved by returning fresh, exactly-sized copies.
func (s *ScopeUnit) finish(numParams int, hasVarargs bool) *Procedure {
	locals := make([]LocalDesc, len(s.locals))
	for i, l := range s.locals {
		locals[i] = LocalDesc{Name: l.name, Reg: l.reg}
	}
	code := make([]Instruction, len(s.buf.Code))
	copy(code, s.buf.Code)

	p := &Procedure{
		Name:       s.name,
		Code:       code,
		Pool:       s.pool,
		Symbols:    s.syms,
		Locals:     locals,
		NumRegs:    s.regs.Nregs(),
		NumParams:  numParams,
		HasVarargs: hasVarargs,
		Aspec:      s.aspec,
		Children:   s.children,
		File:       s.file,
	}
	if s.parent != nil {
		s.parent.children = append(s.parent.children, p)
	}
	return p
}
