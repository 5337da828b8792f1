package compiler

import (
	"github.com/mna/rbvm/lang/ast"
	"github.com/mna/rbvm/lang/token"
)

// codegenIf lowers IF/GUARD per §4.1. A literal condition is folded: only
// the branch it selects is lowered, with no test or jump. Otherwise: Cond in
// VAL, JMPNOT to false-branch, True block, JMP to end (elided when there is
// no False block), false branch, end label.
func (l *lowerer) codegenIf(s *ScopeUnit, n *ast.IfGuardStmt, mode Mode) {
	if n.Cond == nil {
		// bind-type guard: the condition is the success of Decl's assignment.
		l.codegenStmt(s, n.Decl, NOVAL)
		l.codegenBlock(s, n.False, mode)
		return
	}

	if lit, ok := ast.Unwrap(n.Cond).(*ast.LiteralExpr); ok {
		switch lit.Type {
		case token.TRUE, token.INT, token.FLOAT, token.STRING:
			l.codegenBlock(s, n.True, mode)
			return
		case token.FALSE, token.NULL:
			l.codegenBlock(s, n.False, mode)
			return
		}
	}

	l.codegenExpr(s, n.Cond, VAL)
	cond := s.regs.Cursp() - 1
	jfalse := s.genop(Instruction{Op: JMPNOT, A: int32(cond)})
	s.regs.Pop()

	l.codegenBlock(s, n.True, mode)

	if n.False == nil {
		s.patcher.Dispatch(jfalse)
		s.label()
		return
	}

	jend := s.genop(Instruction{Op: JMP})
	s.patcher.Dispatch(jfalse)
	s.label()
	l.codegenBlock(s, n.False, mode)
	s.patcher.Dispatch(jend)
	s.label()
}

// codegenForLoop lowers the 3-clause C-style for loop: Init; label L1: Cond
// (if any) JMPNOT L2; Body; label L3 (next target); Post; JMP L1; label L2.
func (l *lowerer) codegenForLoop(s *ScopeUnit, n *ast.ForLoopStmt, mode Mode) {
	if n.Init != nil {
		l.codegenStmt(s, n.Init, NOVAL)
	}
	top := s.label()

	var jexit int
	if n.Cond != nil {
		l.codegenExpr(s, n.Cond, VAL)
		creg := s.regs.Cursp() - 1
		jexit = s.genop(Instruction{Op: JMPNOT, A: int32(creg)})
		s.regs.Pop()
	}

	frame := s.loops.Push(LoopNormal, 0, s.ensures.Level())
	bodyTarget := s.label()
	l.codegenBlock(s, n.Body, NOVAL)
	nextTarget := s.label()
	if n.Post != nil {
		l.codegenStmt(s, n.Post, NOVAL)
	}
	s.genop(Instruction{Op: JMP, SBx: int32(top - (s.buf.PC() + 1))})
	exitTarget := s.label()
	if jexit != 0 {
		s.patcher.DispatchTo(jexit, exitTarget)
	}
	s.patcher.DispatchLinkedTo(frame.PC1, nextTarget)
	s.patcher.DispatchLinkedTo(frame.PC2, exitTarget)
	s.patcher.DispatchLinkedTo(frame.PC3, bodyTarget)
	s.loops.Pop()

	if mode == VAL {
		l.loadNil(s, n.For)
	}
}

// codegenForIn lowers for-in: evaluate the iterable, SEND each(block) with
// a synthesized block procedure whose body is n.Body and whose parameters
// are n.Left, per §4.7's for-body lowering.
func (l *lowerer) codegenForIn(s *ScopeUnit, n *ast.ForInStmt, mode Mode) {
	l.codegenExpr(s, n.Right[0], VAL)

	block := newScope(s, s.file, false, "for-in block")
	for _, lhs := range n.Left {
		ident := lhs.(*ast.IdentExpr)
		if _, err := block.declareLocal(ident.Lit); err != nil {
			l.fail(ident.Start, "%s", err)
		}
	}
	frame := block.loops.Push(LoopFor, 0, block.ensures.Level())
	bodyTarget := block.label()
	l.codegenBlock(block, n.Body, NOVAL)
	retReg, err := block.regs.Push()
	if err != nil {
		l.fail(n.For, "%s", err)
	}
	block.genop(Instruction{Op: LOADNIL, A: int32(retReg)})
	block.patcher.DispatchLinkedTo(frame.PC1, block.buf.PC())
	block.patcher.DispatchLinkedTo(frame.PC2, block.buf.PC())
	block.patcher.DispatchLinkedTo(frame.PC3, bodyTarget)
	block.loops.Pop()
	block.genop(Instruction{Op: RETURN, A: int32(retReg), B: int32(RNormal)})
	proc := block.finish(len(n.Left), false)

	lambdaReg, err := s.regs.Push()
	if err != nil {
		l.fail(n.For, "%s", err)
	}
	off := procOffset(s, proc)
	s.genop(Instruction{Op: LAMBDA, A: int32(lambdaReg), Bx: uint32(off)})
	s.regs.Pop()
	s.regs.Pop()

	msym, err := s.methodSymbol("each")
	if err != nil {
		l.fail(n.For, "%s", err)
	}
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(n.For, "%s", err)
	}
	s.genop(Instruction{Op: SENDB, A: int32(dst), B: int32(msym), C: 0})
	if mode != VAL {
		s.regs.Pop()
	}
}

// procOffset records proc as a child of s's procedure and returns its index
// within s.children, the index a LAMBDA/METHOD instruction's Bx addresses.
func procOffset(s *ScopeUnit, proc *Procedure) int {
	for i, c := range s.children {
		if c == proc {
			return i
		}
	}
	idx := len(s.children)
	s.children = append(s.children, proc)
	return idx
}

func (l *lowerer) codegenFuncStmt(s *ScopeUnit, n *ast.FuncStmt) {
	proc := l.lowerFuncBody(s, n.Name.Lit, n.Sig, n.Body, n.Fn, true)
	off := procOffset(s, proc)
	sym, err := s.methodSymbol(n.Name.Lit)
	if err != nil {
		l.fail(n.Name.Start, "%s", err)
	}
	reg, err := s.regs.Push()
	if err != nil {
		l.fail(n.Fn, "%s", err)
	}
	s.genop(Instruction{Op: LAMBDA, A: int32(reg), Bx: uint32(off)})
	s.genop(Instruction{Op: METHOD, A: int32(reg), B: int32(sym)})
	s.regs.Pop()
}

func (l *lowerer) codegenFuncExpr(s *ScopeUnit, n *ast.FuncExpr, mode Mode) {
	proc := l.lowerFuncBody(s, "", n.Sig, n.Body, n.Fn, false)
	if mode != VAL {
		return
	}
	off := procOffset(s, proc)
	reg, err := s.regs.Push()
	if err != nil {
		l.fail(n.Fn, "%s", err)
	}
	s.genop(Instruction{Op: LAMBDA, A: int32(reg), Bx: uint32(off)})
}

// lowerFuncBody compiles sig+body into a new ScopeUnit and returns the
// finished Procedure. The aspec is derived from the parameter list: every
// parameter here is required (the surface grammar has no default-value or
// keyword-argument syntax), with a trailing "..." contributing the rest
// flag.
func (l *lowerer) lowerFuncBody(parent *ScopeUnit, name string, sig *ast.FuncSignature, body *ast.Block, pos token.Pos, mscope bool) *Procedure {
	fs := newScope(parent, parent.file, mscope, name)
	hasRest := sig.DotDotDot.IsValid()
	for _, p := range sig.Params {
		ident := p.(*ast.IdentExpr)
		if _, err := fs.declareLocal(ident.Lit); err != nil {
			l.fail(ident.Start, "%s", err)
		}
	}
	req := len(sig.Params)
	fs.aspec = MakeAspec(req, 0, hasRest, 0, 0, false, false)
	l.codegenBlock(fs, body, VAL)
	if fs.buf.Last() == nil || fs.buf.Last().Op != RETURN {
		retReg := fs.regs.Cursp() - 1
		if retReg < 0 {
			r, err := fs.regs.Push()
			if err != nil {
				l.fail(pos, "%s", err)
			}
			fs.genop(Instruction{Op: LOADNIL, A: int32(r)})
			retReg = r
		}
		fs.genop(Instruction{Op: RETURN, A: int32(retReg), B: int32(RNormal)})
	}
	return fs.finish(req, hasRest)
}

func (l *lowerer) codegenClassStmt(s *ScopeUnit, n *ast.ClassStmt) {
	l.lowerClassLike(s, n.Name.Lit, n.Inherits, n.Body, n.Class, VAL, false)
	s.regs.Pop()
}

func (l *lowerer) codegenClassExpr(s *ScopeUnit, n *ast.ClassExpr, mode Mode) {
	l.lowerClassLike(s, "", n.Inherits, n.Body, n.Class, mode, true)
}

// lowerClassLike emits OCLASS (superclass in register, if any) / TCLASS
// (anonymous), CLASS to open the scope, the method defs within a fresh
// ScopeUnit, and EXEC to run the body.
func (l *lowerer) lowerClassLike(s *ScopeUnit, name string, inherits *ast.ClassInherit, body *ast.ClassBody, pos token.Pos, mode Mode, anonymous bool) {
	var sym int
	if !anonymous {
		var err error
		sym, err = s.methodSymbol(name)
		if err != nil {
			l.fail(pos, "%s", err)
		}
	}
	if inherits != nil && inherits.Expr != nil {
		l.codegenExpr(s, inherits.Expr, VAL)
	}
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(pos, "%s", err)
	}
	if anonymous {
		s.genop(Instruction{Op: TCLASS, A: int32(dst)})
	} else {
		s.genop(Instruction{Op: OCLASS, A: int32(dst), Bx: uint32(sym)})
	}
	if inherits != nil && inherits.Expr != nil {
		s.regs.Pop()
	}

	cs := newScope(s, s.file, true, name)
	for _, f := range body.Fields {
		ident := f.(*ast.IdentExpr)
		cs.declareLocal(ident.Lit)
	}
	for _, m := range body.Methods {
		l.codegenFuncStmt(cs, m)
	}
	cs.genop(Instruction{Op: RETURN, A: 0, B: int32(RNormal)})
	proc := cs.finish(0, false)
	off := procOffset(s, proc)
	s.genop(Instruction{Op: CLASS, A: int32(dst), Bx: uint32(off)})
	s.genop(Instruction{Op: EXEC, A: int32(dst), Bx: uint32(off)})

	if mode != VAL {
		s.regs.Pop()
	}
}

// genCall implements §4.2: evaluate the receiver (LOADSELF if implicit),
// pack arguments contiguously above it, then emit a SEND. It always emits
// SEND; no SENDB, SUPEROP or TAILCALL form is produced here.
func (l *lowerer) genCall(s *ScopeUnit, n *ast.CallExpr, mode Mode) {
	var msym int
	var err error

	switch fn := n.Fn.(type) {
	case *ast.DotExpr:
		l.codegenExpr(s, fn.Left, VAL)
		msym, err = s.methodSymbol(fn.Right.Lit)
	case *ast.IdentExpr:
		reg, err2 := s.regs.Push()
		if err2 != nil {
			l.fail(fn.Start, "%s", err2)
		}
		s.genop(Instruction{Op: LOADSELF, A: int32(reg)})
		msym, err = s.methodSymbol(fn.Lit)
	default:
		l.fail(startPos(n), "unsupported call target %T", fn)
	}
	if err != nil {
		l.fail(startPos(n), "%s", err)
	}

	for _, a := range n.Args {
		l.codegenExpr(s, a, VAL)
	}
	argc := len(n.Args)
	for i := 0; i < argc+1; i++ {
		s.regs.Pop()
	}

	dst, perr := s.regs.Push()
	if perr != nil {
		l.fail(startPos(n), "%s", perr)
	}
	s.genop(Instruction{Op: SEND, A: int32(dst), B: int32(msym), C: int32(argc)})
	if mode != VAL {
		s.regs.Pop()
	}
}

// codegenSuper lowers SUPER/ZSUPER (§4.1): zsuper recovers the enclosing
// method's own argv via the Ainfo-derived ARGARY, otherwise arguments are
// evaluated exactly like a normal call.
func (l *lowerer) codegenSuper(s *ScopeUnit, n *ast.SuperExpr, mode Mode) {
	mscope := s
	for mscope != nil && !mscope.mscope {
		mscope = mscope.parent
	}
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(n.Super, "%s", err)
	}
	if n.Zsuper {
		ainfo := uint32(0)
		if mscope != nil {
			ainfo = mscope.aspec.Ainfo()
		}
		s.genop(Instruction{Op: ARGARY, A: int32(dst), Bx: ainfo})
		s.genop(Instruction{Op: SUPEROP, A: int32(dst), C: -1})
		if mode != VAL {
			s.regs.Pop()
		}
		return
	}
	for _, a := range n.Args {
		l.codegenExpr(s, a, VAL)
	}
	argc := len(n.Args)
	for i := 0; i < argc; i++ {
		s.regs.Pop()
	}
	s.genop(Instruction{Op: SUPEROP, A: int32(dst), C: int32(argc)})
	if mode != VAL {
		s.regs.Pop()
	}
}

// codegenYield lowers YIELD using BLKPUSH to recover the caller-supplied
// block from the enclosing frame, then SEND to invoke it with the
// evaluated arguments.
func (l *lowerer) codegenYield(s *ScopeUnit, n *ast.YieldExpr, mode Mode) {
	blk, err := s.regs.Push()
	if err != nil {
		l.fail(n.Yield, "%s", err)
	}
	var ainfo uint32
	for p := s; p != nil; p = p.parent {
		if p.mscope {
			ainfo = p.aspec.Ainfo()
			break
		}
	}
	s.genop(Instruction{Op: BLKPUSH, A: int32(blk), Bx: ainfo})
	for _, a := range n.Args {
		l.codegenExpr(s, a, VAL)
	}
	argc := len(n.Args)
	for i := 0; i < argc; i++ {
		s.regs.Pop()
	}
	msym, err := s.methodSymbol("call")
	if err != nil {
		l.fail(n.Yield, "%s", err)
	}
	s.genop(Instruction{Op: SEND, A: int32(blk), B: int32(msym), C: int32(argc)})
	if mode != VAL {
		s.regs.Pop()
	}
}

func (l *lowerer) codegenRange(s *ScopeUnit, n *ast.RangeExpr, mode Mode) {
	if n.Left != nil {
		l.codegenExpr(s, n.Left, VAL)
	} else {
		l.loadNil(s, n.Dots)
	}
	if n.Right != nil {
		l.codegenExpr(s, n.Right, VAL)
	} else {
		l.loadNil(s, n.Dots)
	}
	s.regs.Pop()
	s.regs.Pop()
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(n.Dots, "%s", err)
	}
	c := int32(0)
	if n.Exclusive {
		c = 1
	}
	s.genop(Instruction{Op: RANGE, A: int32(dst), C: c})
	if mode != VAL {
		s.regs.Pop()
	}
}

func (l *lowerer) codegenWords(s *ScopeUnit, n *ast.WordsExpr, mode Mode) {
	for _, it := range n.Items {
		lit := it.(*ast.LiteralExpr)
		str, _ := lit.Value.(string)
		if n.Symbols {
			l.codegenSymbol(s, str, lit.Start, VAL)
		} else {
			l.codegenString(s, str, lit.Start, VAL)
		}
	}
	for range n.Items {
		s.regs.Pop()
	}
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(n.Start, "%s", err)
	}
	s.genop(Instruction{Op: ARRAY, A: int32(dst), B: int32(len(n.Items))})
	if mode != VAL {
		s.regs.Pop()
	}
}

func (l *lowerer) codegenArrayLike(s *ScopeUnit, n *ast.ArrayLikeExpr, mode Mode) {
	for _, it := range n.Items {
		l.codegenExpr(s, it, VAL)
	}
	for range n.Items {
		s.regs.Pop()
	}
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(n.Left, "%s", err)
	}
	s.genop(Instruction{Op: ARRAY, A: int32(dst), B: int32(len(n.Items))})
	if mode != VAL {
		s.regs.Pop()
	}
}

func (l *lowerer) codegenMap(s *ScopeUnit, n *ast.MapExpr, mode Mode) {
	for _, kv := range n.Items {
		l.codegenExpr(s, kv.Key, VAL)
		l.codegenExpr(s, kv.Value, VAL)
	}
	for range n.Items {
		s.regs.Pop()
		s.regs.Pop()
	}
	dst, err := s.regs.Push()
	if err != nil {
		l.fail(n.Lbrace, "%s", err)
	}
	s.genop(Instruction{Op: HASH, A: int32(dst), B: int32(len(n.Items))})
	if mode != VAL {
		s.regs.Pop()
	}
}

// codegenMasgn implements §4.3's gen_vmassignment / §4.4's gen_values:
// evaluate every rhs into a contiguous register run, materialize an array
// if counts mismatch (rest capture), then assign left-to-right.
func (l *lowerer) codegenMasgn(s *ScopeUnit, lhs, rhs []ast.Expr, mode Mode) {
	for _, r := range rhs {
		l.codegenExpr(s, r, VAL)
	}
	base := s.regs.Cursp() - len(rhs)

	if len(rhs) == len(lhs) {
		for i, l2 := range lhs {
			l.genAssignment(s, l2, base+i, NOVAL)
		}
		for range rhs {
			s.regs.Pop()
		}
		if mode == VAL {
			l.loadNil(s, startPos(lhs[0]))
		}
		return
	}

	for range rhs {
		s.regs.Pop()
	}
	arr, err := s.regs.Push()
	if err != nil {
		l.fail(startPos(lhs[0]), "%s", err)
	}
	s.genop(Instruction{Op: ARRAY, A: int32(arr), B: int32(len(rhs))})
	for i, l2 := range lhs {
		idxReg, err := s.regs.Push()
		if err != nil {
			l.fail(startPos(l2), "%s", err)
		}
		s.genop(Instruction{Op: LOADI, A: int32(idxReg), SBx: int32(i)})
		elemReg, err := s.regs.Push()
		if err != nil {
			l.fail(startPos(l2), "%s", err)
		}
		s.genop(Instruction{Op: AREF, A: int32(elemReg), B: int32(arr), C: int32(i)})
		s.regs.Pop()
		s.regs.Pop()
		l.genAssignment(s, l2, elemReg, NOVAL)
	}
	s.regs.Pop()
	if mode == VAL {
		l.loadNil(s, startPos(lhs[0]))
	}
}

// codegenRescue implements §4.8's rescue handler chain: ONERR pushes a
// protected region whose target is the first handler test; each handler
// sends "===" to its first listed class with the exception as the argument
// (any further listed classes are not tested) before binding its variable
// and running its body; an exception no handler takes is re-raised with
// RAISE. A retry inside a handler jumps back to the ONERR. The ensure body
// is lowered inline after the handlers, so it does not run when the
// exception is re-raised.
func (l *lowerer) codegenRescue(s *ScopeUnit, n *ast.RescueStmt, mode Mode) {
	onerr := s.genop(Instruction{Op: ONERR})
	s.ensures.Enter()
	frame := s.loops.Push(LoopRescue, 0, s.ensures.Level())

	l.codegenBlock(s, n.Body, NOVAL)
	s.genop(Instruction{Op: POPERR, A: 1})
	s.ensures.Exit()
	if n.ElseBody != nil {
		l.codegenBlock(s, n.ElseBody, NOVAL)
	}
	jend := s.genop(Instruction{Op: JMP})

	handlerPC := s.label()
	s.patcher.DispatchTo(onerr, handlerPC)
	excReg, err := s.regs.Push()
	if err != nil {
		l.fail(n.Begin, "%s", err)
	}
	s.genop(Instruction{Op: GETSPECIAL, A: int32(excReg)})

	var jnexts []int
	for _, h := range n.Handlers {
		var jskip int
		if len(h.Classes) > 0 {
			l.codegenExpr(s, h.Classes[0], VAL)
			creg := s.regs.Cursp() - 1
			argReg, merr := s.regs.Push()
			if merr != nil {
				l.fail(h.Rescue, "%s", merr)
			}
			s.genop(Instruction{Op: MOVE, A: int32(argReg), B: int32(excReg)})
			msym, _ := s.methodSymbol("===")
			s.genop(Instruction{Op: SEND, A: int32(creg), B: int32(msym), C: 1})
			s.regs.Pop()
			s.regs.Pop()
			jskip = s.genop(Instruction{Op: JMPNOT, A: int32(creg)})
		}
		if h.Var != nil {
			if reg, err := s.declareLocal(h.Var.Lit); err == nil {
				s.genop(Instruction{Op: MOVE, A: int32(reg), B: int32(excReg)})
			}
		}
		l.codegenBlock(s, h.Body, NOVAL)
		jnexts = append(jnexts, s.genop(Instruction{Op: JMP}))
		if jskip != 0 {
			s.patcher.Dispatch(jskip)
			s.label()
		}
	}
	s.genop(Instruction{Op: RAISE, A: int32(excReg)})
	s.regs.Pop()

	for _, j := range jnexts {
		s.patcher.Dispatch(j)
	}
	s.label()
	s.patcher.Dispatch(jend)
	s.label()

	s.patcher.DispatchLinked(frame.PC2)
	s.patcher.DispatchLinkedTo(frame.PC1, onerr)
	s.loops.Pop()

	if n.EnsureBody != nil {
		l.codegenBlock(s, n.EnsureBody, NOVAL)
	}
	if mode == VAL {
		l.loadNil(s, n.Begin)
	}
}

// codegenCase lowers CASE/WHEN: the subject (if any) is evaluated once;
// each pattern is compared with "===" (or, for the subject-less form,
// truth-tested directly); the first matching when's body runs and the
// rest are skipped.
func (l *lowerer) codegenCase(s *ScopeUnit, n *ast.CaseStmt, mode Mode) {
	var subjReg int
	hasSubject := n.Subject != nil
	if hasSubject {
		l.codegenExpr(s, n.Subject, VAL)
		subjReg = s.regs.Cursp() - 1
	}

	var jends []int
	for _, w := range n.Whens {
		var jnext []int
		for _, p := range w.Patterns {
			l.codegenExpr(s, p, VAL)
			preg := s.regs.Cursp() - 1
			testReg := preg
			if hasSubject {
				argReg, err := s.regs.Push()
				if err != nil {
					l.fail(w.When, "%s", err)
				}
				s.genop(Instruction{Op: MOVE, A: int32(argReg), B: int32(subjReg)})
				msym, merr := s.methodSymbol("===")
				if merr != nil {
					l.fail(w.When, "%s", merr)
				}
				s.genop(Instruction{Op: SEND, A: int32(preg), B: int32(msym), C: 1})
				s.regs.Pop()
			}
			jmatch := s.genop(Instruction{Op: JMPIF, A: int32(testReg)})
			s.regs.Pop()
			jnext = append(jnext, jmatch)
		}
		// fallthrough when no pattern matched: jump past this when's body.
		jfall := s.genop(Instruction{Op: JMP})
		bodyPC := s.label()
		for _, jm := range jnext {
			s.patcher.DispatchTo(jm, bodyPC)
		}
		l.codegenBlock(s, w.Body, mode)
		jends = append(jends, s.genop(Instruction{Op: JMP}))
		s.patcher.Dispatch(jfall)
		s.label()
	}

	if hasSubject {
		s.regs.Pop()
	}
	if n.ElseBody != nil {
		l.codegenBlock(s, n.ElseBody, mode)
	} else if mode == VAL {
		l.loadNil(s, n.Case)
	}
	for _, j := range jends {
		s.patcher.Dispatch(j)
	}
	s.label()
}

// codegenReturnLike implements §4.6's control transfer. RETURN emits RETURN
// with no unwinding. BREAK and RETRY first emit a POPERR for each
// intervening LoopBegin frame, NEXT an EPOP with that count. BREAK moves its
// value to the loop frame's AccRegister and jumps to the loop's exit, or,
// inside a for-in block, returns with RBreak. REDO jumps back to the start
// of the loop body; RETRY jumps back to the nearest rescue's ONERR.
func (l *lowerer) codegenReturnLike(s *ScopeUnit, n *ast.ReturnLikeStmt) {
	switch n.Type {
	case token.RETURN:
		reg := l.evalOrNil(s, n.Expr, n.Start)
		s.genop(Instruction{Op: RETURN, A: int32(reg), B: int32(RNormal)})
		s.regs.Pop()

	case token.BREAK:
		frame, epops := s.loops.FindBreakable()
		if frame == nil {
			l.fail(n.Start, "break outside of a loop")
		}
		reg := l.evalOrNil(s, n.Expr, n.Start)
		for i := 0; i < epops; i++ {
			s.genop(Instruction{Op: POPERR, A: 1})
		}
		if frame.Kind == LoopFor {
			s.genop(Instruction{Op: RETURN, A: int32(reg), B: int32(RBreak)})
			s.regs.Pop()
			break
		}
		s.genop(Instruction{Op: MOVE, A: int32(frame.AccRegister), B: int32(reg)})
		s.regs.Pop()
		frame.PC2 = s.patcher.Concat(frame.PC2, s.genop(Instruction{Op: JMP}))

	case token.CONTINUE:
		frame, epops := s.loops.FindBreakable()
		if frame == nil {
			l.fail(n.Start, "next outside of a loop")
		}
		if epops > 0 {
			s.genop(Instruction{Op: EPOP, A: int32(epops)})
		}
		frame.PC1 = s.patcher.Concat(frame.PC1, s.genop(Instruction{Op: JMP}))

	case token.REDO:
		frame, _ := s.loops.FindBreakable()
		if frame == nil {
			l.fail(n.Start, "redo outside of a loop")
		}
		frame.PC3 = s.patcher.Concat(frame.PC3, s.genop(Instruction{Op: JMP}))

	case token.RETRY:
		frame, epops := s.loops.FindRescue()
		if frame == nil {
			l.fail(n.Start, "retry outside of a rescue")
		}
		for i := 0; i < epops; i++ {
			s.genop(Instruction{Op: POPERR, A: 1})
		}
		frame.PC1 = s.patcher.Concat(frame.PC1, s.genop(Instruction{Op: JMP}))

	case token.GOTO:
		ident, _ := n.Expr.(*ast.IdentExpr)
		name := ""
		if ident != nil {
			name = ident.Lit
		}
		l.fail(n.Start, "goto %s: unresolved label (labels are resolved by the front end)", name)

	case token.THROW:
		reg := l.evalOrNil(s, n.Expr, n.Start)
		s.genop(Instruction{Op: RAISE, A: int32(reg)})
		s.regs.Pop()
	}
}

func (l *lowerer) evalOrNil(s *ScopeUnit, e ast.Expr, pos token.Pos) int {
	if e == nil {
		reg, err := s.regs.Push()
		if err != nil {
			l.fail(pos, "%s", err)
		}
		s.genop(Instruction{Op: LOADNIL, A: int32(reg)})
		return reg
	}
	l.codegenExpr(s, e, VAL)
	return s.regs.Cursp() - 1
}
