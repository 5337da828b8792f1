package compiler

// JumpPatcher resolves forward-reference jumps. A jump emitted before its
// target PC is known is chained into a singly-linked list threaded through
// its own SBx field (0 meaning "no more links"); once the target is known,
// dispatch walks the chain and rewrites every SBx in place to point at it.
//
// This mirrors luaK_patchlist/luaK_concat: chains are built by recording
// "the jump at pc currently points nowhere, but is the head/tail of a list"
// and resolved in one pass when the label is reached.
type JumpPatcher struct {
	buf *InstructionBuffer
}

// NewJumpPatcher binds a patcher to the instruction buffer it patches.
func NewJumpPatcher(buf *InstructionBuffer) *JumpPatcher { return &JumpPatcher{buf: buf} }

// jumpLinkOf reads the next link in the chain starting at pc: 0 means this
// is the chain's end. While chained, SBx holds the offset of the next link
// from pc itself, so a link to the adjacent instruction is 1, never 0.
func (p *JumpPatcher) jumpLinkOf(pc int) int {
	in := p.buf.At(pc)
	if in.SBx == 0 {
		return 0
	}
	return pc + int(in.SBx)
}

// setJumpLink rewrites the jump at pc to point (via sBx, relative to pc) at
// next, or to 0 if next is -1 (meaning "chain terminator").
func (p *JumpPatcher) setJumpLink(pc, next int) {
	in := p.buf.At(pc)
	if next < 0 {
		in.SBx = 0
	} else {
		in.SBx = int32(next - pc)
	}
	p.buf.Set(pc, in)
}

// Concat appends the chain headed at from onto the chain headed at to,
// returning the new combined chain head. Either may be 0 (empty chain); a
// jump at pc 0 therefore cannot be chained.
func (p *JumpPatcher) Concat(to, from int) int {
	if from == 0 {
		return to
	}
	if to == 0 {
		return from
	}
	pc := to
	for {
		next := p.jumpLinkOf(pc)
		if next == 0 {
			break
		}
		pc = next
	}
	p.setJumpLink(pc, from)
	return to
}

// Dispatch patches the single jump at pc to target the current PC (the next
// instruction to be emitted).
func (p *JumpPatcher) Dispatch(pc int) {
	p.patchOne(pc, p.buf.PC())
}

// DispatchTo patches the single jump at pc to target an explicit PC.
func (p *JumpPatcher) DispatchTo(pc, target int) {
	p.patchOne(pc, target)
}

func (p *JumpPatcher) patchOne(pc, target int) {
	in := p.buf.At(pc)
	if !in.Op.isJump() {
		panic("compiler: dispatch invoked on a non-jump opcode")
	}
	in.SBx = int32(target - (pc + 1))
	p.buf.Set(pc, in)
}

// DispatchLinked patches every jump in the chain headed at head to target
// the current PC. head may be 0 (empty chain, a no-op). The list order is
// the reverse of emission order; each link is resolved before being
// followed so the original chain is fully consumed in one pass.
func (p *JumpPatcher) DispatchLinked(head int) {
	p.DispatchLinkedTo(head, p.buf.PC())
}

// DispatchLinkedTo patches every jump in the chain headed at head to target
// an explicit PC.
func (p *JumpPatcher) DispatchLinkedTo(head, target int) {
	pc := head
	for pc != 0 {
		next := p.jumpLinkOf(pc)
		p.patchOne(pc, target)
		pc = next
	}
}
