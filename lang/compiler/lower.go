package compiler

import (
	"fmt"
	"strconv"

	"github.com/mna/rbvm/lang/ast"
	"github.com/mna/rbvm/lang/token"
)

// Mode indicates whether a lowered expression's result must be left on the
// register stack (VAL) or may be discarded (NOVAL).
type Mode bool

const (
	NOVAL Mode = false
	VAL   Mode = true
)

// lowerer drives codegen for one compilation (one top-level chunk and all
// the ScopeUnits it spawns). It holds only cross-cutting state; the actual
// emission target is always "the current ScopeUnit", threaded explicitly
// through every codegen call per the spec's recursive-descent shape.
type lowerer struct {
	fset *token.FileSet
}

// compileError is raised internally via panic/recover (mirroring the
// parser's own errPanicMode synchronization idiom) rather than threaded
// through every return value by hand; CompileFiles recovers it at the
// top-level boundary and turns it into a normal Go error.
type compileError struct {
	pos token.Pos
	msg string
}

func (e *compileError) Error() string { return e.msg }

func (l *lowerer) fail(pos token.Pos, format string, args ...interface{}) {
	panic(&compileError{pos: pos, msg: fmt.Sprintf(format, args...)})
}

// CompileFiles lowers each parsed chunk into a root Procedure. fset is used
// to recover source positions for the debug line table.
func CompileFiles(fset *token.FileSet, files map[string]*ast.Chunk) (procs []*Procedure, err error) {
	l := &lowerer{fset: fset}
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*compileError); ok {
				err = fmt.Errorf("codegen error: %s: %s", l.posString(ce.pos), ce.msg)
				procs = nil
				return
			}
			panic(r)
		}
	}()

	for name, chunk := range files {
		procs = append(procs, l.compileChunk(name, chunk))
	}
	return procs, nil
}

func (l *lowerer) posString(pos token.Pos) string {
	if l.fset == nil {
		return "?"
	}
	p := l.fset.Position(pos)
	return p.String()
}

func (l *lowerer) fileFor(chunk *ast.Chunk) *token.File {
	if l.fset == nil {
		return nil
	}
	return l.fset.File(chunk.EOF)
}

func (l *lowerer) compileChunk(name string, chunk *ast.Chunk) *Procedure {
	file := l.fileFor(chunk)
	scope := newScope(nil, file, true, name)
	l.codegenBlock(scope, chunk.Block, NOVAL)
	// ensure the top-level procedure always ends in a RETURN.
	if scope.buf.Last() == nil || scope.buf.Last().Op != RETURN {
		reg, _ := scope.regs.Push()
		scope.genop(Instruction{Op: LOADNIL, A: int32(reg)})
		scope.regs.Pop()
		scope.genop(Instruction{Op: RETURN, A: int32(reg), B: int32(RNormal)})
	}
	return scope.finish(0, false)
}

// codegen is the recursive dispatcher: (scope, node, mode) -> emissions on
// scope. Every AST statement/expression kind must be handled here or in one
// of the specialized helpers it calls into.
func (l *lowerer) codegen(s *ScopeUnit, n ast.Node, mode Mode) {
	switch n := n.(type) {
	case *ast.Block:
		l.codegenBlock(s, n, mode)
	case ast.Stmt:
		l.codegenStmt(s, n, mode)
	case ast.Expr:
		l.codegenExpr(s, n, mode)
	default:
		l.fail(token.NoPos, "unhandled node %T", n)
	}
}

// codegenBlock lowers BEGIN(list): every statement but the last is lowered
// NOVAL; the last takes the caller's mode. An empty block in VAL mode loads
// nil.
func (l *lowerer) codegenBlock(s *ScopeUnit, b *ast.Block, mode Mode) {
	if b == nil || len(b.Stmts) == 0 {
		if mode == VAL {
			l.loadNil(s, token.NoPos)
		}
		return
	}
	for i, stmt := range b.Stmts {
		m := NOVAL
		if i == len(b.Stmts)-1 {
			m = mode
		}
		l.codegenStmt(s, stmt, m)
	}
}

func (l *lowerer) loadNil(s *ScopeUnit, pos token.Pos) {
	reg, err := s.regs.Push()
	if err != nil {
		l.fail(pos, "%s", err)
	}
	s.genop(Instruction{Op: LOADNIL, A: int32(reg), Line: lineOf(s, pos)})
}

func lineOf(s *ScopeUnit, pos token.Pos) int32 {
	if s.file == nil || !pos.IsValid() {
		return 0
	}
	return int32(s.file.Position(pos).Line)
}

func (l *lowerer) codegenStmt(s *ScopeUnit, stmt ast.Stmt, mode Mode) {
	switch n := stmt.(type) {
	case *ast.BadStmt:
		l.fail(n.Start, "bad statement")

	case *ast.ExprStmt:
		l.codegenExpr(s, n.Expr, mode)

	case *ast.AssignStmt:
		l.codegenAssignStmt(s, n, mode)

	case *ast.IfGuardStmt:
		l.codegenIf(s, n, mode)

	case *ast.ForLoopStmt:
		l.codegenForLoop(s, n, mode)

	case *ast.ForInStmt:
		l.codegenForIn(s, n, mode)

	case *ast.FuncStmt:
		l.codegenFuncStmt(s, n)

	case *ast.ClassStmt:
		l.codegenClassStmt(s, n)

	case *ast.RescueStmt:
		l.codegenRescue(s, n, mode)

	case *ast.CaseStmt:
		l.codegenCase(s, n, mode)

	case *ast.ReturnLikeStmt:
		l.codegenReturnLike(s, n)

	case *ast.UndefStmt:
		l.codegenUndef(s, n)

	case *ast.LabelStmt:
		// labels are resolved by the front end; nothing to emit here beyond
		// a jump target marker so the peephole won't fuse across it.
		s.label()

	case *ast.SimpleBlockStmt:
		l.codegenSimpleBlock(s, n, mode)

	default:
		l.fail(startPos(stmt), "unhandled statement %T", stmt)
	}
}

func startPos(n ast.Node) token.Pos {
	p, _ := n.Span()
	return p
}

func (l *lowerer) codegenSimpleBlock(s *ScopeUnit, n *ast.SimpleBlockStmt, mode Mode) {
	switch n.Type {
	case token.DO:
		l.codegenBlock(s, n.Body, mode)
	case token.DEFER:
		// desugars to an ensure region with an empty protected body.
		s.genop(Instruction{Op: EPUSH, Line: lineOf(s, n.Start)})
		s.ensures.Enter()
		l.codegenBlock(s, n.Body, NOVAL)
		s.ensures.Exit()
		s.genop(Instruction{Op: EPOP, A: 1})
	case token.CATCH:
		l.codegenBlock(s, n.Body, mode)
	}
}

func (l *lowerer) codegenUndef(s *ScopeUnit, n *ast.UndefStmt) {
	for _, name := range n.Names {
		sym, err := s.methodSymbol(name.Lit)
		if err != nil {
			l.fail(name.Start, "%s", err)
		}
		s.genop(Instruction{Op: METHOD, A: 0, B: int32(sym), Line: lineOf(s, name.Start)})
	}
}

// codegenExpr lowers an expression node, leaving its value on the register
// stack when mode == VAL and leaving sp unchanged when mode == NOVAL.
func (l *lowerer) codegenExpr(s *ScopeUnit, e ast.Expr, mode Mode) {
	switch n := e.(type) {
	case *ast.LiteralExpr:
		l.codegenLiteral(s, n, mode)
	case *ast.IdentExpr:
		l.codegenIdent(s, n, mode)
	case *ast.BinOpExpr:
		l.codegenBinOp(s, n, mode)
	case *ast.UnaryOpExpr:
		l.codegenUnaryOp(s, n, mode)
	case *ast.CallExpr:
		l.genCall(s, n, mode)
	case *ast.DotExpr:
		l.codegenDot(s, n, mode)
	case *ast.IndexExpr:
		l.codegenIndex(s, n, mode)
	case *ast.ParenExpr:
		l.codegenExpr(s, n.Expr, mode)
	case *ast.ArrayLikeExpr:
		l.codegenArrayLike(s, n, mode)
	case *ast.MapExpr:
		l.codegenMap(s, n, mode)
	case *ast.FuncExpr:
		l.codegenFuncExpr(s, n, mode)
	case *ast.ClassExpr:
		l.codegenClassExpr(s, n, mode)
	case *ast.SuperExpr:
		l.codegenSuper(s, n, mode)
	case *ast.YieldExpr:
		l.codegenYield(s, n, mode)
	case *ast.RangeExpr:
		l.codegenRange(s, n, mode)
	case *ast.WordsExpr:
		l.codegenWords(s, n, mode)
	case *ast.BadExpr:
		l.fail(n.Start, "bad expression")
	default:
		l.fail(startPos(e), "unhandled expression %T", e)
	}
}

func (l *lowerer) codegenLiteral(s *ScopeUnit, n *ast.LiteralExpr, mode Mode) {
	switch n.Type {
	case token.NULL:
		if mode == VAL {
			l.loadNil(s, n.Start)
		}
	case token.TRUE:
		l.loadNullary(s, LOADT, n.Start, mode)
	case token.FALSE:
		l.loadNullary(s, LOADF, n.Start, mode)
	case token.SELF:
		l.loadNullary(s, LOADSELF, n.Start, mode)
	case token.INT:
		l.codegenInt(s, n, mode, false)
	case token.FLOAT:
		l.codegenFloat(s, n, mode)
	case token.STRING:
		l.codegenString(s, n.Value.(string), n.Start, mode)
	case token.SYMBOL:
		l.codegenSymbol(s, n.Value.(string), n.Start, mode)
	case token.REGEX:
		l.codegenRegex(s, n, mode)
	default:
		l.fail(n.Start, "unhandled literal kind %s", n.Type)
	}
}

func (l *lowerer) loadNullary(s *ScopeUnit, op Opcode, pos token.Pos, mode Mode) {
	if mode != VAL {
		return
	}
	reg, err := s.regs.Push()
	if err != nil {
		l.fail(pos, "%s", err)
	}
	s.genop(Instruction{Op: op, A: int32(reg), Line: lineOf(s, pos)})
}

// codegenInt implements §4.9's numeric literal lowering rules: small values
// use LOADI directly, larger ones intern into the pool via LOADL, and
// out-of-range values fall back to a float reinterpretation.
func (l *lowerer) codegenInt(s *ScopeUnit, n *ast.LiteralExpr, mode Mode, negated bool) {
	if mode != VAL {
		return
	}
	i, ok := n.Value.(int64)
	if !ok {
		// overflowed int64 parsing at the front end: reparse as float.
		f, _ := strconv.ParseFloat(n.Raw, 64)
		l.emitFloatLoad(s, f, n.Start)
		return
	}
	if negated {
		i = -i
	}
	reg, err := s.regs.Push()
	if err != nil {
		l.fail(n.Start, "%s", err)
	}
	if i > -MaxArgSBx && i < MaxArgSBx {
		s.genop(Instruction{Op: LOADI, A: int32(reg), SBx: int32(i), Line: lineOf(s, n.Start)})
		return
	}
	off := s.pool.InternInt(i)
	s.genop(Instruction{Op: LOADL, A: int32(reg), Bx: uint32(off), Line: lineOf(s, n.Start)})
}

func (l *lowerer) codegenFloat(s *ScopeUnit, n *ast.LiteralExpr, mode Mode) {
	if mode != VAL {
		return
	}
	f, ok := n.Value.(float64)
	if !ok {
		f, _ = strconv.ParseFloat(n.Raw, 64)
	}
	l.emitFloatLoad(s, f, n.Start)
}

func (l *lowerer) emitFloatLoad(s *ScopeUnit, f float64, pos token.Pos) {
	reg, err := s.regs.Push()
	if err != nil {
		l.fail(pos, "%s", err)
	}
	off := s.pool.InternFloat(f)
	s.genop(Instruction{Op: LOADL, A: int32(reg), Bx: uint32(off), Line: lineOf(s, pos)})
}

func (l *lowerer) codegenString(s *ScopeUnit, v string, pos token.Pos, mode Mode) {
	if mode != VAL {
		return
	}
	reg, err := s.regs.Push()
	if err != nil {
		l.fail(pos, "%s", err)
	}
	off := s.pool.InternString(v)
	s.genop(Instruction{Op: STRING, A: int32(reg), Bx: uint32(off), Line: lineOf(s, pos)})
}

func (l *lowerer) codegenSymbol(s *ScopeUnit, v string, pos token.Pos, mode Mode) {
	if mode != VAL {
		return
	}
	reg, err := s.regs.Push()
	if err != nil {
		l.fail(pos, "%s", err)
	}
	idx := s.syms.Intern(v)
	s.genop(Instruction{Op: LOADSYM, A: int32(reg), Bx: uint32(idx), Line: lineOf(s, pos)})
}

func (l *lowerer) codegenRegex(s *ScopeUnit, n *ast.LiteralExpr, mode Mode) {
	// REGX: materialize Regexp.compile(pattern) via a normal STRING+SEND.
	recv, err := s.regs.Push()
	if err != nil {
		l.fail(n.Start, "%s", err)
	}
	cidx := s.syms.Intern("Regexp")
	s.genop(Instruction{Op: GETCONST, A: int32(recv), Bx: uint32(cidx), Line: lineOf(s, n.Start)})
	argReg, err := s.regs.Push()
	if err != nil {
		l.fail(n.Start, "%s", err)
	}
	pat, _ := n.Value.(string)
	off := s.pool.InternString(pat)
	s.genop(Instruction{Op: STRING, A: int32(argReg), Bx: uint32(off), Line: lineOf(s, n.Start)})
	s.regs.Pop()
	s.regs.Pop()
	msym, err := s.methodSymbol("compile")
	if err != nil {
		l.fail(n.Start, "%s", err)
	}
	s.genop(Instruction{Op: SEND, A: int32(recv), B: int32(msym), C: 1, Line: lineOf(s, n.Start)})
	if mode == VAL {
		s.regs.Push()
	}
}

func (l *lowerer) codegenIdent(s *ScopeUnit, n *ast.IdentExpr, mode Mode) {
	if mode != VAL {
		return
	}
	if reg, ok := s.lookupLocal(n.Lit); ok {
		dst, err := s.regs.Push()
		if err != nil {
			l.fail(n.Start, "%s", err)
		}
		s.genop(Instruction{Op: MOVE, A: int32(dst), B: int32(reg), Line: lineOf(s, n.Start)})
		return
	}
	if reg, depth, ok := s.lookupUpvar(n.Lit); ok {
		dst, err := s.regs.Push()
		if err != nil {
			l.fail(n.Start, "%s", err)
		}
		s.genop(Instruction{Op: GETUPVAR, A: int32(dst), Bx: uint32(reg)<<8 | uint32(depth)&0xff, Line: lineOf(s, n.Start)})
		return
	}
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(n.Start, "%s", err)
	}
	idx := s.syms.Intern(n.Lit)
	s.genop(Instruction{Op: GETGLOBAL, A: int32(dst), Bx: uint32(idx), Line: lineOf(s, n.Start)})
}

// gen_assignment resolves lhs (an IdentExpr/DotExpr/IndexExpr chain) and
// emits the store that moves rhsReg into it, per NOVAL unless val requests
// the assigned value be re-pushed.
func (l *lowerer) genAssignment(s *ScopeUnit, lhs ast.Expr, rhsReg int, mode Mode) {
	switch n := lhs.(type) {
	case *ast.IdentExpr:
		if reg, ok := s.lookupLocal(n.Lit); ok {
			s.genop(Instruction{Op: MOVE, A: int32(reg), B: int32(rhsReg), Line: lineOf(s, n.Start)})
		} else if reg, depth, ok := s.lookupUpvar(n.Lit); ok {
			s.genop(Instruction{Op: SETUPVAR, A: int32(rhsReg), B: int32(reg), C: int32(depth), Line: lineOf(s, n.Start)})
		} else {
			idx := s.syms.Intern(n.Lit)
			s.genop(Instruction{Op: SETGLOBAL, A: int32(rhsReg), Bx: uint32(idx), Line: lineOf(s, n.Start)})
		}
	case *ast.DotExpr:
		l.codegenExpr(s, n.Left, VAL)
		recv := s.regs.Cursp() - 1
		argReg, err := s.regs.Push()
		if err != nil {
			l.fail(n.Right.Start, "%s", err)
		}
		sym, err := s.methodSymbol(n.Right.Lit + "=")
		if err != nil {
			l.fail(n.Right.Start, "%s", err)
		}
		s.genop(Instruction{Op: MOVE, A: int32(argReg), B: int32(rhsReg), Line: lineOf(s, n.Right.Start)})
		s.genop(Instruction{Op: SEND, A: int32(recv), B: int32(sym), C: 1, Line: lineOf(s, n.Right.Start)})
		s.regs.Pop()
		s.regs.Pop()
	case *ast.IndexExpr:
		l.codegenExpr(s, n.Prefix, VAL)
		recv := s.regs.Cursp() - 1
		l.codegenExpr(s, n.Index, VAL)
		argReg, err := s.regs.Push()
		if err != nil {
			l.fail(startPos(n), "%s", err)
		}
		msym, err := s.methodSymbol("[]=")
		if err != nil {
			l.fail(startPos(n), "%s", err)
		}
		s.genop(Instruction{Op: MOVE, A: int32(argReg), B: int32(rhsReg), Line: lineOf(s, startPos(n))})
		s.genop(Instruction{Op: SEND, A: int32(recv), B: int32(msym), C: 2, Line: lineOf(s, startPos(n))})
		s.regs.Pop()
		s.regs.Pop()
		s.regs.Pop()
	default:
		l.fail(startPos(lhs), "invalid assignment target %T", lhs)
	}
	if mode == VAL {
		dst, err := s.regs.Push()
		if err != nil {
			l.fail(startPos(lhs), "%s", err)
		}
		s.genop(Instruction{Op: MOVE, A: int32(dst), B: int32(rhsReg)})
	}
}

func (l *lowerer) codegenAssignStmt(s *ScopeUnit, n *ast.AssignStmt, mode Mode) {
	if n.DeclType != 0 && n.AssignTok == 0 {
		// declaration without initializer: reserve registers, default nil.
		for _, lhs := range n.Left {
			ident := lhs.(*ast.IdentExpr)
			reg, err := s.declareLocal(ident.Lit)
			if err != nil {
				l.fail(ident.Start, "%s", err)
			}
			s.genop(Instruction{Op: LOADNIL, A: int32(reg), Line: lineOf(s, ident.Start)})
		}
		return
	}

	if n.AssignTok != token.EQ && n.AssignTok != 0 {
		l.codegenOpAssign(s, n, mode)
		return
	}

	if n.DeclType != 0 {
		// let/const x = expr: declare locals first (so recursive/self
		// references see them), then assign.
		for _, lhs := range n.Left {
			ident := lhs.(*ast.IdentExpr)
			if _, ok := s.lookupLocal(ident.Lit); !ok {
				if _, err := s.declareLocal(ident.Lit); err != nil {
					l.fail(ident.Start, "%s", err)
				}
			}
		}
	}

	if len(n.Left) == 1 && len(n.Right) == 1 {
		l.codegenExpr(s, n.Right[0], VAL)
		rhs := s.regs.Cursp() - 1
		l.genAssignment(s, n.Left[0], rhs, mode)
		s.regs.Pop()
		return
	}
	l.codegenMasgn(s, n.Left, n.Right, mode)
}

func (l *lowerer) codegenOpAssign(s *ScopeUnit, n *ast.AssignStmt, mode Mode) {
	lhs := n.Left[0]
	// fetch current value, compute op, assign back (see §4.1 OP_ASGN).
	l.codegenExpr(s, lhs, VAL)
	cur := s.regs.Cursp() - 1
	l.codegenExpr(s, n.Right[0], VAL)
	rhsReg := s.regs.Cursp() - 1

	binOp := augToBinop(n.AssignTok)
	s.genop(arithInstr(binOp, int32(cur), int32(cur), int32(rhsReg)))
	s.regs.Pop()
	l.genAssignment(s, lhs, cur, mode)
	s.regs.Pop()
}

func augToBinop(tok token.Token) token.Token {
	switch tok {
	case token.PLUSEQ:
		return token.PLUS
	case token.MINUSEQ:
		return token.MINUS
	case token.STAREQ:
		return token.STAR
	case token.SLASHEQ:
		return token.SLASH
	default:
		return token.PLUS
	}
}

func arithInstr(tok token.Token, a, b, c int32) Instruction {
	var op Opcode
	switch tok {
	case token.PLUS:
		op = ADD
	case token.MINUS:
		op = SUB
	case token.STAR:
		op = MUL
	case token.SLASH:
		op = DIV
	case token.LT:
		op = LT
	case token.LE:
		op = LE
	case token.GT:
		op = GT
	case token.GE:
		op = GE
	case token.EQEQ:
		op = EQ
	default:
		op = ADD
	}
	return Instruction{Op: op, A: a, B: b, C: c}
}

func (l *lowerer) codegenBinOp(s *ScopeUnit, n *ast.BinOpExpr, mode Mode) {
	switch n.Type {
	case token.AND:
		l.codegenAnd(s, n, mode)
		return
	case token.OR:
		l.codegenOr(s, n, mode)
		return
	}
	l.codegenExpr(s, n.Left, VAL)
	left := s.regs.Cursp() - 1
	l.codegenExpr(s, n.Right, VAL)
	right := s.regs.Cursp() - 1
	s.regs.Pop()
	s.regs.Pop()
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(n.Op, "%s", err)
	}
	s.genop(arithInstr(n.Type, int32(dst), int32(left), int32(right)))
	if mode != VAL {
		s.regs.Pop()
	}
}

// codegenAnd lowers AND(a,b): VAL(a); JMPNOT -> P; lower b with caller
// mode; patch P.
func (l *lowerer) codegenAnd(s *ScopeUnit, n *ast.BinOpExpr, mode Mode) {
	l.codegenExpr(s, n.Left, VAL)
	reg := s.regs.Cursp() - 1
	jmp := s.genop(Instruction{Op: JMPNOT, A: int32(reg)})
	s.regs.Pop()
	l.codegenExpr(s, n.Right, mode)
	s.patcher.Dispatch(jmp)
	s.label()
}

// codegenOr mirrors codegenAnd using JMPIF.
func (l *lowerer) codegenOr(s *ScopeUnit, n *ast.BinOpExpr, mode Mode) {
	l.codegenExpr(s, n.Left, VAL)
	reg := s.regs.Cursp() - 1
	jmp := s.genop(Instruction{Op: JMPIF, A: int32(reg)})
	s.regs.Pop()
	l.codegenExpr(s, n.Right, mode)
	s.patcher.Dispatch(jmp)
	s.label()
}

func (l *lowerer) codegenUnaryOp(s *ScopeUnit, n *ast.UnaryOpExpr, mode Mode) {
	if n.Type == token.MINUS {
		if lit, ok := ast.Unwrap(n.Right).(*ast.LiteralExpr); ok && lit.Type == token.INT {
			l.codegenInt(s, lit, mode, true)
			return
		}
		l.codegenExpr(s, n.Right, VAL)
		opReg := s.regs.Cursp() - 1
		zero, err := s.regs.Push()
		if err != nil {
			l.fail(n.Op, "%s", err)
		}
		s.genop(Instruction{Op: LOADI, A: int32(zero), SBx: 0})
		s.genop(Instruction{Op: SUB, A: int32(opReg), B: int32(zero), C: int32(opReg)})
		s.regs.Pop()
		if mode != VAL {
			s.regs.Pop()
		}
		return
	}
	if n.Type == token.TRY || n.Type == token.MUST {
		l.codegenExpr(s, n.Right, mode)
		return
	}
	l.codegenExpr(s, n.Right, VAL)
	s.regs.Pop()
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(n.Op, "%s", err)
	}
	msym, err := s.methodSymbol(unopMethodName(n.Type))
	if err != nil {
		l.fail(n.Op, "%s", err)
	}
	s.genop(Instruction{Op: SEND, A: int32(dst), B: int32(msym), C: 0})
	if mode != VAL {
		s.regs.Pop()
	}
}

func unopMethodName(tok token.Token) string {
	switch tok {
	case token.TILDE:
		return "~"
	case token.NOT:
		return "!"
	default:
		return "-@"
	}
}

func (l *lowerer) codegenDot(s *ScopeUnit, n *ast.DotExpr, mode Mode) {
	l.codegenExpr(s, n.Left, VAL)
	s.regs.Pop()
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(n.Right.Start, "%s", err)
	}
	msym, err := s.methodSymbol(n.Right.Lit)
	if err != nil {
		l.fail(n.Right.Start, "%s", err)
	}
	s.genop(Instruction{Op: SEND, A: int32(dst), B: int32(msym), C: 0})
	if mode != VAL {
		s.regs.Pop()
	}
}

// codegenIndex lowers x[y] as a "[]" method send: x[y] is sugar, not a
// dedicated addressing mode, since the index need not be a compile-time
// constant (unlike the AREF opcode APOST/MASGN destructuring relies on).
func (l *lowerer) codegenIndex(s *ScopeUnit, n *ast.IndexExpr, mode Mode) {
	l.codegenExpr(s, n.Prefix, VAL)
	l.codegenExpr(s, n.Index, VAL)
	s.regs.Pop()
	s.regs.Pop()
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(startPos(n), "%s", err)
	}
	msym, err := s.methodSymbol("[]")
	if err != nil {
		l.fail(startPos(n), "%s", err)
	}
	s.genop(Instruction{Op: SEND, A: int32(dst), B: int32(msym), C: 1})
	if mode != VAL {
		s.regs.Pop()
	}
}
