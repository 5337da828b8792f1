package compiler

// Instruction is the decoded, in-memory form of one 32-bit instruction word.
// Not every field is meaningful for every opcode; which ones are depends on
// Op.Shape().
type Instruction struct {
	Op      Opcode
	A       int32
	B       int32
	C       int32
	Bx      uint32
	SBx     int32
	Ax      uint32
	Line    int32
	Col     int32
}

// Encode packs the instruction into its bit-exact 32-bit wire form: opcode
// in the low 7 bits, operands above, per the shape for Op.
func (in Instruction) Encode() uint32 {
	w := uint32(in.Op) & 0x7f
	switch in.Op.Shape() {
	case ShapeA:
		w |= uint32(in.A&0x1ff) << 7
	case ShapeAB:
		w |= uint32(in.A&0x1ff)<<7 | uint32(in.B&0x1ff)<<16
	case ShapeABC:
		w |= uint32(in.A&0x1ff)<<7 | uint32(in.B&0x1ff)<<16 | uint32(in.C&0x1ff)<<25
	case ShapeABx:
		w |= uint32(in.A&0x1ff)<<7 | (in.Bx&0xffff)<<16
	case ShapeAsBx:
		w |= uint32(in.A&0x1ff)<<7 | (uint32(in.SBx+0x8000)&0xffff)<<16
	case ShapeAx:
		w |= (in.Ax & 0x1ffffff) << 7
	case ShapeAbc:
		w |= uint32(in.A&0x1ff)<<7 | (in.Bx&0xffff)<<16
	}
	return w
}

// Decode unpacks a 32-bit wire word back into an Instruction. Decode(Encode(x))
// reproduces x for every shape when each operand fits its field width (C
// keeps only 7 bits): this is the round-trip property the disassembler and
// its tests rely on.
func Decode(w uint32) Instruction {
	op := Opcode(w & 0x7f)
	in := Instruction{Op: op}
	switch op.Shape() {
	case ShapeA:
		in.A = int32((w >> 7) & 0x1ff)
	case ShapeAB:
		in.A = int32((w >> 7) & 0x1ff)
		in.B = int32((w >> 16) & 0x1ff)
	case ShapeABC:
		in.A = int32((w >> 7) & 0x1ff)
		in.B = int32((w >> 16) & 0x1ff)
		in.C = int32((w >> 25) & 0x1ff)
	case ShapeABx:
		in.A = int32((w >> 7) & 0x1ff)
		in.Bx = (w >> 16) & 0xffff
	case ShapeAsBx:
		in.A = int32((w >> 7) & 0x1ff)
		in.SBx = int32((w>>16)&0xffff) - 0x8000
	case ShapeAx:
		in.Ax = (w >> 7) & 0x1ffffff
	case ShapeAbc:
		in.A = int32((w >> 7) & 0x1ff)
		in.Bx = (w >> 16) & 0xffff
	}
	return in
}

// InstructionBuffer appends encoded instructions, tracks the program
// counter, and maintains a parallel per-instruction source line/column so
// the compiled procedure can answer "which source line produced pc N".
type InstructionBuffer struct {
	Code  []Instruction
	lines []int32
	cols  []int32
}

// PC returns the next free instruction slot (a.k.a. the current program
// counter, i.e. the length of the buffer).
func (b *InstructionBuffer) PC() int { return len(b.Code) }

// Emit appends in at the current PC and returns the PC it was placed at.
func (b *InstructionBuffer) Emit(in Instruction) int {
	pc := len(b.Code)
	b.Code = append(b.Code, in)
	b.lines = append(b.lines, in.Line)
	b.cols = append(b.cols, in.Col)
	return pc
}

// Last returns a pointer to the most recently emitted instruction, or nil
// if the buffer is empty.
func (b *InstructionBuffer) Last() *Instruction {
	if len(b.Code) == 0 {
		return nil
	}
	return &b.Code[len(b.Code)-1]
}

// RemoveLast deletes the most recently emitted instruction, used by the
// peephole optimizer to fuse it into a replacement.
func (b *InstructionBuffer) RemoveLast() {
	b.Code = b.Code[:len(b.Code)-1]
	b.lines = b.lines[:len(b.lines)-1]
	b.cols = b.cols[:len(b.cols)-1]
}

// At returns the instruction at pc, by value.
func (b *InstructionBuffer) At(pc int) Instruction { return b.Code[pc] }

// Set overwrites the instruction at pc in place, used by the jump patcher.
func (b *InstructionBuffer) Set(pc int, in Instruction) { b.Code[pc] = in }

// LineFor returns the source line recorded for pc.
func (b *InstructionBuffer) LineFor(pc int) int32 { return b.lines[pc] }
