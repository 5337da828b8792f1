package compiler

import "testing"

func newTestScope() *ScopeUnit {
	s := newScope(nil, nil, true, "test")
	// give the scope some declared locals so temp-region rules (registers at
	// or above nlocals()) have a boundary to straddle in these tests.
	s.declareLocal("a")
	s.declareLocal("b")
	return s
}

func lastOp(t *testing.T, s *ScopeUnit) Instruction {
	t.Helper()
	last := s.buf.Last()
	if last == nil {
		t.Fatal("expected at least one emitted instruction")
	}
	return *last
}

func TestPeepholeMoveSelfElided(t *testing.T) {
	s := newTestScope()
	s.genop(Instruction{Op: LOADI, A: 2, SBx: 1})
	pc := s.buf.PC()
	s.genop(Instruction{Op: MOVE, A: 2, B: 2})
	if s.buf.PC() != pc {
		t.Fatalf("MOVE a,a should be elided, PC grew from %d to %d", pc, s.buf.PC())
	}
}

func TestPeepholeMoveSwapElided(t *testing.T) {
	s := newTestScope()
	s.genop(Instruction{Op: MOVE, A: 2, B: 3})
	pc := s.buf.PC()
	s.genop(Instruction{Op: MOVE, A: 3, B: 2})
	if s.buf.PC() != pc {
		t.Fatalf("MOVE b,a after MOVE a,b should be elided")
	}
}

func TestPeepholeMoveOverwritesPriorDest(t *testing.T) {
	s := newTestScope()
	s.genop(Instruction{Op: MOVE, A: 2, B: 0})
	s.genop(Instruction{Op: MOVE, A: 2, B: 1})
	got := lastOp(t, s)
	if got.Op != MOVE || got.A != 2 || got.B != 1 {
		t.Fatalf("expected single MOVE 2,1, got %+v", got)
	}
}

func TestPeepholeMoveAfterLoadiInTempRegion(t *testing.T) {
	s := newTestScope()
	tmp := int32(s.nlocals()) // first temp-region register
	s.genop(Instruction{Op: LOADI, A: tmp, SBx: 42})
	s.genop(Instruction{Op: MOVE, A: 0, B: tmp})
	got := lastOp(t, s)
	if got.Op != LOADI || got.A != 0 || got.SBx != 42 {
		t.Fatalf("expected fused LOADI 0,42, got %+v", got)
	}
}

func TestPeepholeReturnAfterReturnElided(t *testing.T) {
	s := newTestScope()
	s.genop(Instruction{Op: RETURN, A: 0, B: int32(RNormal)})
	pc := s.buf.PC()
	s.genop(Instruction{Op: RETURN, A: 0, B: int32(RNormal)})
	if s.buf.PC() != pc {
		t.Fatalf("second RETURN should be elided")
	}
}

func TestPeepholeEpopFusesCounts(t *testing.T) {
	s := newTestScope()
	s.genop(Instruction{Op: EPOP, A: 2})
	s.genop(Instruction{Op: EPOP, A: 3})
	got := lastOp(t, s)
	if got.Op != EPOP || got.A != 5 {
		t.Fatalf("expected fused EPOP 5, got %+v", got)
	}
}

func TestPeepholeAddiFusion(t *testing.T) {
	s := newTestScope()
	tmp := int32(s.nlocals())
	s.genop(Instruction{Op: LOADI, A: tmp, SBx: 7})
	s.genop(Instruction{Op: ADD, A: 0, B: 1, C: tmp})
	got := lastOp(t, s)
	if got.Op != ADDI || got.C != 7 {
		t.Fatalf("expected fused ADDI with C=7, got %+v", got)
	}
}

func TestPeepholeSubiFusionNegatesConstant(t *testing.T) {
	s := newTestScope()
	tmp := int32(s.nlocals())
	s.genop(Instruction{Op: LOADI, A: tmp, SBx: 7})
	s.genop(Instruction{Op: SUB, A: 0, B: 1, C: tmp})
	got := lastOp(t, s)
	if got.Op != SUBI || got.C != -7 {
		t.Fatalf("expected fused SUBI with C=-7, got %+v", got)
	}
}

func TestPeepholeJumpTargetBlocksFusion(t *testing.T) {
	s := newTestScope()
	s.genop(Instruction{Op: MOVE, A: 2, B: 0})
	s.label()
	pc := s.buf.PC()
	s.genop(Instruction{Op: MOVE, A: 3, B: 2})
	if s.buf.PC() != pc+1 {
		t.Fatalf("fusion across a jump target must not happen")
	}
}

func TestPeepholeDisabledWhenOptimizeFalse(t *testing.T) {
	s := newTestScope()
	s.optimize = false
	s.genop(Instruction{Op: LOADI, A: 2, SBx: 1})
	pc := s.buf.PC()
	s.genop(Instruction{Op: MOVE, A: 2, B: 2})
	if s.buf.PC() != pc+1 {
		t.Fatalf("with optimize disabled, MOVE a,a must still be emitted")
	}
}
