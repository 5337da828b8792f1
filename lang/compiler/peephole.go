package compiler

// genop is the entry point every emission in the lowerer should route
// through instead of calling ScopeUnit.emit directly: it gives the
// PeepholeOptimizer first refusal on fusing the new instruction into the
// prior one. It fires only when optimization is enabled, the scope hasn't
// just passed a jump target (lastlabel != pc, so a rewrite can never
// retarget a jump landing on the boundary being collapsed), and at least
// one instruction has already been emitted.
func (s *ScopeUnit) genop(in Instruction) int {
	if s.optimize && s.lastlabel != s.buf.PC() && s.buf.PC() > 0 {
		if s.peep(in) {
			return s.buf.PC() - 1
		}
	}
	return s.buf.Emit(in)
}

// peep applies the closed 17-rule peephole ruleset against the instruction
// about to be emitted (in) and the prior instruction in the buffer. It
// returns true if in was fused into (or elided against) the prior
// instruction instead of being appended as a new one.
func (s *ScopeUnit) peep(in Instruction) bool {
	last := s.buf.Last()
	if last == nil {
		// a cascading rewrite (e.g. MOVE-overwrites-prior) can remove the only
		// instruction emitted so far; with nothing left to fuse into, the
		// caller must emit in as-is.
		return false
	}
	prev := *last

	switch in.Op {
	case MOVE:
		// 1: MOVE a,a -> elide
		if in.A == in.B {
			return true
		}
		switch prev.Op {
		case MOVE:
			// 3: MOVE a,b after MOVE b,a -> elide (swap is a no-op)
			if prev.A == in.B && prev.B == in.A {
				return true
			}
			// 2: MOVE a,b after MOVE a,x -> overwrite prior
			if prev.A == in.A {
				s.buf.RemoveLast()
				return s.peep(in)
			}
			// 4: MOVE a,b after MOVE b,c with b in temp region -> MOVE a,c
			if prev.A == in.B && int(prev.A) >= s.nlocals() {
				s.buf.RemoveLast()
				return s.peep(Instruction{Op: MOVE, A: in.A, B: prev.B, Line: in.Line, Col: in.Col})
			}
		case LOADI:
			// 5: MOVE a,b after LOADI b,k in temp region -> LOADI a,k
			if prev.A == in.B && int(prev.A) >= s.nlocals() {
				s.buf.RemoveLast()
				s.buf.Emit(Instruction{Op: LOADI, A: in.A, SBx: prev.SBx, Line: in.Line, Col: in.Col})
				return true
			}
		case ARRAY, HASH, RANGE, AREF, GETUPVAR:
			// 6: MOVE a,b after ARRAY/HASH/RANGE/AREF/GETUPVAR b,... in temp region
			if prev.A == in.B && int(prev.A) >= s.nlocals() {
				prev.A = in.A
				s.buf.RemoveLast()
				s.buf.Emit(prev)
				return true
			}
		case LOADSYM, GETGLOBAL, GETIV, GETCV, GETCONST, GETSPECIAL, LOADL, STRING:
			// 7: same destination substitution for single-operand loads
			if prev.A == in.B && int(prev.A) >= s.nlocals() {
				prev.A = in.A
				s.buf.RemoveLast()
				s.buf.Emit(prev)
				return true
			}
		case SCLASS, LOADNIL, LOADSELF, LOADT, LOADF, OCLASS:
			// 8: same substitution for nullary loads and SCLASS
			if prev.A == in.B && int(prev.A) >= s.nlocals() {
				prev.A = in.A
				s.buf.RemoveLast()
				s.buf.Emit(prev)
				return true
			}
		}

	case SETIV, SETCV, SETCONST, SETMCNST, SETGLOBAL:
		// 9: SETxx a,k after MOVE a,b (NOVAL) -> SETxx b,k
		if prev.Op == MOVE && prev.A == in.A {
			in.A = prev.B
			s.buf.RemoveLast()
			s.buf.Emit(in)
			return true
		}

	case SETUPVAR:
		// 10: SETUPVAR a,b,c after MOVE a,x -> SETUPVAR x,b,c
		if prev.Op == MOVE && prev.A == in.A {
			in.A = prev.B
			s.buf.RemoveLast()
			s.buf.Emit(in)
			return true
		}

	case EPOP:
		// 11: EPOP m after EPOP n -> EPOP m+n
		if prev.Op == EPOP {
			prev.A += in.A
			s.buf.RemoveLast()
			s.buf.Emit(prev)
			return true
		}

	case POPERR:
		if prev.Op == POPERR {
			prev.A += in.A
			s.buf.RemoveLast()
			s.buf.Emit(prev)
			return true
		}

	case RETURN:
		// 12: RETURN after RETURN -> elide second
		if prev.Op == RETURN {
			return true
		}
		// 13: RETURN a after MOVE a,b (b in temp) -> RETURN b
		if prev.Op == MOVE && prev.A == in.A && int(prev.B) >= s.nlocals() {
			in.A = prev.B
			s.buf.RemoveLast()
			s.buf.Emit(in)
			return true
		}
		// 14: RETURN a after any SETxx storing from the same register is
		// already optimal in this encoding (SETxx's source register is its A
		// operand, identical to what RETURN would read) so there is nothing
		// further to fold.

	case STRCAT:
		// 16: STRCAT a,b after STRING b,"" -> elide; after LOADNIL b -> elide
		if prev.A == in.B {
			if prev.Op == STRING && prev.Bx == uint32(s.pool.InternString("")) {
				return true
			}
			if prev.Op == LOADNIL {
				return true
			}
		}

	case JMPIF, JMPNOT:
		// 17: JMPIF/JMPNOT a,off after MOVE a,b -> test register b directly
		if prev.Op == MOVE && prev.A == in.A {
			in.A = prev.B
			s.buf.RemoveLast()
			s.buf.Emit(in)
			return true
		}

	case ADD, SUB:
		// 15: ADD/SUB ra,idx,1 after LOADI tmp,k with |k|<=127 -> ADDI/SUBI ra,B,k
		if prev.Op == LOADI && prev.A == in.C && prev.SBx >= -127 && prev.SBx <= 127 {
			k := prev.SBx
			if in.Op == SUB {
				k = -k
			}
			s.buf.RemoveLast()
			s.buf.Emit(Instruction{Op: addiFor(in.Op), A: in.A, B: in.B, C: k, Line: in.Line, Col: in.Col})
			return true
		}
	}

	return false
}

func addiFor(op Opcode) Opcode {
	if op == SUB {
		return SUBI
	}
	return ADDI
}
