// Package machine implements the virtual machine that executes the
// bytecode-compiled form of the source code. It also provides the runtime
// representation of the various builtin values.
package machine

import (
	"fmt"

	"github.com/mna/rbvm/lang/compiler"
)

// run executes fr's instruction stream to completion, returning the value
// of its terminal RETURN. It is the sole dispatch loop: every compiler.Opcode
// value is handled here, even the handful the current front end never
// actually emits (see the per-opcode comments below), so a future front-end
// change needs no corresponding interpreter change.
func (th *Thread) run(fr *Frame) (Value, error) {
	proc := fr.Fn.Proc
	code := proc.Code

	for {
		if th.cancelled.Load() {
			return nil, fmt.Errorf("thread cancelled")
		}
		th.steps++
		if th.steps > th.maxSteps {
			return nil, fmt.Errorf("step limit exceeded")
		}
		if fr.pc < 0 || fr.pc >= len(code) {
			return Nil, nil
		}
		in := code[fr.pc]
		fr.pc++

		switch in.Op {
		case compiler.NOP:

		// --- data movement ---
		case compiler.MOVE:
			fr.Registers[in.A] = fr.Registers[in.B]
		case compiler.LOADI:
			fr.Registers[in.A] = Int(in.SBx)
		case compiler.LOADL:
			fr.Registers[in.A] = poolValue(proc.Pool.At(int(in.Bx)))
		case compiler.LOADSYM:
			fr.Registers[in.A] = Symbol(proc.Symbols.Name(int(in.Bx)))
		case compiler.LOADNIL:
			fr.Registers[in.A] = Nil
		case compiler.LOADT:
			fr.Registers[in.A] = True
		case compiler.LOADF:
			fr.Registers[in.A] = False
		case compiler.LOADSELF:
			fr.Registers[in.A] = fr.Self

		// --- variable access ---
		case compiler.GETGLOBAL:
			name := proc.Symbols.Name(int(in.Bx))
			v, ok := th.Globals[name]
			if !ok {
				v = Nil
			}
			fr.Registers[in.A] = v
		case compiler.SETGLOBAL:
			name := proc.Symbols.Name(int(in.Bx))
			th.Globals[name] = fr.Registers[in.A]

		case compiler.GETIV:
			name := proc.Symbols.Name(int(in.Bx))
			fr.Registers[in.A] = th.getAttr(fr.Self, name)
		case compiler.SETIV:
			name := proc.Symbols.Name(int(in.Bx))
			if hs, ok := fr.Self.(HasSetField); ok {
				hs.SetField(name, fr.Registers[in.A])
			}

		// GETCV/SETCV are never emitted by the current front end (class
		// variables have no surface syntax yet); they read/write the
		// executing method's owner class CVars table, walking Super for
		// reads the way a real @@var lookup would.
		case compiler.GETCV:
			name := proc.Symbols.Name(int(in.Bx))
			v := Value(Nil)
			for cl := fr.Fn.OwnerClass; cl != nil; cl = cl.Super {
				if cv, ok := cl.CVars[name]; ok {
					v = cv
					break
				}
			}
			fr.Registers[in.A] = v
		case compiler.SETCV:
			name := proc.Symbols.Name(int(in.Bx))
			if fr.Fn.OwnerClass != nil {
				fr.Fn.OwnerClass.CVars[name] = fr.Registers[in.A]
			}

		case compiler.GETCONST:
			name := proc.Symbols.Name(int(in.Bx))
			fr.Registers[in.A] = th.lookupConst(fr, name)
		case compiler.SETCONST:
			name := proc.Symbols.Name(int(in.Bx))
			th.setConst(fr, name, fr.Registers[in.A])

		// GETMCNST/SETMCNST (explicit Mod::CONST access) are never emitted;
		// the front end only ever compiles bare constant references through
		// GETCONST/SETCONST.
		case compiler.GETMCNST:
			recv := fr.Registers[in.B]
			name := proc.Symbols.Name(int(in.C))
			fr.Registers[in.A] = th.getAttr(recv, name)
		case compiler.SETMCNST:
			recv := fr.Registers[in.B]
			name := proc.Symbols.Name(int(in.C))
			if hs, ok := recv.(HasSetField); ok {
				hs.SetField(name, fr.Registers[in.A])
			}

		case compiler.GETUPVAR:
			reg := int(in.Bx >> 8)
			depth := int(in.Bx & 0xff)
			up := fr.upframe(depth)
			if up == nil {
				fr.Registers[in.A] = Nil
				continue
			}
			fr.Registers[in.A] = up.Registers[reg]
		case compiler.SETUPVAR:
			reg := int(in.B)
			depth := int(in.C)
			if up := fr.upframe(depth); up != nil {
				up.Registers[reg] = fr.Registers[in.A]
			}

		case compiler.GETSPECIAL:
			if fr.special == nil {
				fr.Registers[in.A] = Nil
			} else {
				fr.Registers[in.A] = fr.special
			}

		// --- arithmetic and comparison ---
		case compiler.ADD, compiler.SUB, compiler.MUL, compiler.DIV:
			v, err := binOp(arithName(in.Op), fr.Registers[in.B], fr.Registers[in.C])
			if err != nil {
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			fr.Registers[in.A] = v

		// ADDI/SUBI fuse a LOADI immediate into the preceding ADD/SUB; the
		// peephole optimizer pre-negates C for a subtraction, so both always
		// add B and C (see compiler/peephole.go rule 15).
		case compiler.ADDI, compiler.SUBI:
			v, err := numericBinop("+", fr.Registers[in.B], Int(in.C))
			if err != nil {
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			fr.Registers[in.A] = v

		case compiler.LT, compiler.LE, compiler.GT, compiler.GE:
			v, err := numericCompare(cmpName(in.Op), fr.Registers[in.B], fr.Registers[in.C])
			if err != nil {
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			fr.Registers[in.A] = v
		case compiler.EQ:
			eq, err := Compare(fr.Registers[in.B], fr.Registers[in.C])
			if err != nil {
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			fr.Registers[in.A] = Bool(eq)

		// --- aggregates ---
		case compiler.ARRAY:
			n := int(in.B)
			elems := make([]Value, n)
			copy(elems, fr.Registers[int(in.A):int(in.A)+n])
			fr.Registers[in.A] = NewArray(elems)
		case compiler.AREF:
			src := fr.Registers[in.B]
			idx, ok := src.(Indexable)
			if !ok {
				err := fmt.Errorf("%s is not indexable", src.Type())
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			fr.Registers[in.A] = idx.Index(int(in.C))
		case compiler.APOST:
			arr, ok := fr.Registers[in.B].(*Array)
			if !ok {
				fr.Registers[in.A] = NewArray(nil)
				continue
			}
			fr.Registers[in.A] = NewArray(arr.Slice(int(in.C)))
		case compiler.ARYPUSH:
			if arr, ok := fr.Registers[in.A].(*Array); ok {
				arr.Push(fr.Registers[in.B])
			}
		case compiler.ARYCAT:
			if arr, ok := fr.Registers[in.A].(*Array); ok {
				if other, ok := fr.Registers[in.B].(*Array); ok {
					arr.Concat(other)
				}
			}
		case compiler.HASH:
			n := int(in.B)
			m := NewMap(n)
			base := int(in.A)
			for i := 0; i < n; i++ {
				k := fr.Registers[base+2*i]
				v := fr.Registers[base+2*i+1]
				m.SetKey(k, v)
			}
			fr.Registers[in.A] = m
		case compiler.RANGE:
			fr.Registers[in.A] = &Range{
				Low:       fr.Registers[in.A],
				High:      fr.Registers[int(in.A)+1],
				Exclusive: in.C != 0,
			}
		case compiler.STRCAT:
			left, _ := fr.Registers[in.A].(String)
			right := fr.Registers[in.B]
			fr.Registers[in.A] = left + String(right.String())
		case compiler.STRING:
			s, _ := proc.Pool.At(int(in.Bx)).(string)
			fr.Registers[in.A] = String(s)

		// --- calls ---
		case compiler.SEND:
			recv := fr.Registers[in.A]
			name := proc.Symbols.Name(int(in.B))
			argc := int(in.C)
			args := cloneArgs(fr.Registers, int(in.A)+1, argc)
			v, err := th.Invoke(recv, name, args, nil)
			if err != nil {
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			fr.Registers[in.A] = v

		case compiler.SENDB:
			recv := fr.Registers[in.A]
			name := proc.Symbols.Name(int(in.B))
			argc := int(in.C)
			args := cloneArgs(fr.Registers, int(in.A)+1, argc)
			block, _ := fr.Registers[int(in.A)+argc+1].(*Function)
			v, err := th.Invoke(recv, name, args, block)
			if err != nil {
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			fr.Registers[in.A] = v

		case compiler.SUPEROP:
			owner := fr.Fn.OwnerClass
			if owner == nil || owner.Super == nil {
				err := fmt.Errorf("super called outside of a method")
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			var args []Value
			if in.C < 0 {
				if a, ok := fr.Registers[in.A].(*Array); ok {
					args = append([]Value{}, a.elems...)
				}
			} else {
				args = cloneArgs(fr.Registers, int(in.A)+1, int(in.C))
			}
			fn, _ := owner.Super.LookupMethod(fr.Fn.Label)
			if fn == nil {
				err := fmt.Errorf("super: no superclass method '%s'", fr.Fn.Label)
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			v, err := th.call(fn, fr.Self, args, fr.Block)
			if err != nil {
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			fr.Registers[in.A] = v

		// CALL is the wire-level "argv already packed into an array"
		// calling convention (mirrors mruby's OP_CALL); genCall never emits
		// it today because argument counts never exceed CallMaxArgs, but
		// the convention is: A=recv, A+1=method Symbol, A+2=*Array args.
		case compiler.CALL:
			recv := fr.Registers[in.A]
			sym, _ := fr.Registers[int(in.A)+1].(Symbol)
			var args []Value
			if a, ok := fr.Registers[int(in.A)+2].(*Array); ok {
				args = append([]Value{}, a.elems...)
			}
			v, err := th.Invoke(recv, string(sym), args, nil)
			if err != nil {
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			fr.Registers[in.A] = v

		// TAILCALL is never emitted (tail-position sends still use SEND);
		// it carries identical operands and is handled identically, since a
		// Go call stack gives us no proper tail-call elimination to exploit.
		case compiler.TAILCALL:
			recv := fr.Registers[in.A]
			name := proc.Symbols.Name(int(in.B))
			argc := int(in.C)
			args := cloneArgs(fr.Registers, int(in.A)+1, argc)
			v, err := th.Invoke(recv, name, args, nil)
			if err != nil {
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}
			return v, nil

		case compiler.BLKPUSH:
			if fr.Block == nil {
				fr.Registers[in.A] = Nil
			} else {
				fr.Registers[in.A] = fr.Block
			}
		case compiler.ARGARY:
			fr.Registers[in.A] = NewArray(append([]Value{}, fr.Args...))

		// --- definitions ---
		case compiler.CLASS:
			if cls, ok := fr.Registers[in.A].(*Class); ok && cls.Name != "" {
				th.setConst(fr, cls.Name, cls)
			}

		// MODULE is never emitted (the grammar has no "module" keyword yet):
		// it allocates a named, superclass-less Class flagged IsModule, the
		// module analogue of OCLASS.
		case compiler.MODULE:
			name := proc.Symbols.Name(int(in.B))
			mod := NewClass(name, nil)
			mod.IsModule = true
			fr.Registers[in.A] = mod

		// SCLASS (singleton/eigenclass access) is never emitted; per-object
		// singleton classes aren't modeled, so this returns the receiver's
		// regular class.
		case compiler.SCLASS:
			fr.Registers[in.A] = th.classOf(fr.Registers[in.B])

		case compiler.OCLASS:
			name := proc.Symbols.Name(int(in.Bx))
			fr.Registers[in.A] = NewClass(name, th.ObjectClass)
		case compiler.TCLASS:
			fr.Registers[in.A] = NewClass("", th.ObjectClass)

		case compiler.METHOD:
			name := proc.Symbols.Name(int(in.B))
			cls, _ := fr.Self.(*Class)
			if fn, ok := fr.Registers[in.A].(*Function); ok {
				if cls != nil {
					fn.OwnerClass = cls
					cls.Methods[name] = fn
				}
			} else if cls != nil {
				delete(cls.Methods, name)
			}

		case compiler.EXEC:
			child := proc.Children[int(in.Bx)]
			fn := &Function{Proc: child, Label: child.Name}
			if _, err := th.call(fn, fr.Registers[in.A], nil, nil); err != nil {
				if th.tryRescue(fr, err) {
					continue
				}
				return nil, err
			}

		case compiler.LAMBDA:
			child := proc.Children[int(in.Bx)]
			upenv := make([]*Frame, 0, 1+len(fr.Fn.Upenv))
			upenv = append(upenv, fr)
			upenv = append(upenv, fr.Fn.Upenv...)
			fr.Registers[in.A] = &Function{Proc: child, Label: child.Name, Upenv: upenv}

		// --- control ---
		case compiler.JMP:
			fr.pc += int(in.SBx)
		case compiler.JMPIF:
			if Truth(fr.Registers[in.A]) == True {
				fr.pc += int(in.SBx)
			}
		case compiler.JMPNOT:
			if Truth(fr.Registers[in.A]) == False {
				fr.pc += int(in.SBx)
			}

		// ENTER is never emitted: arity is already enforced by bindParams
		// from the Procedure's Aspec at call time.
		case compiler.ENTER:

		case compiler.RETURN:
			if in.B == int32(compiler.RBreak) {
				return nil, blockBreak{fr.Registers[in.A]}
			}
			return fr.Registers[in.A], nil

		// BREAKOP is never emitted (BREAK compiles to a structural JMP to
		// the loop's exit); it is handled the same way RETURN{RBreak} is.
		case compiler.BREAKOP:
			return nil, blockBreak{fr.Registers[in.A]}

		// --- exception regions ---
		case compiler.ONERR:
			fr.onerr = append(fr.onerr, fr.pc+int(in.SBx))
		case compiler.RESCUEOP:
			// Never emitted: rescue handlers test "===" via a SEND instead.
			// Kept for completeness as a direct is_a? test.
			cls, _ := fr.Registers[in.B].(*Class)
			fr.Registers[in.A] = Bool(cls != nil && th.classOf(fr.special).IsA(cls))
		case compiler.RAISE:
			v := fr.Registers[in.A]
			if !raiseInFrame(fr, v) {
				return nil, &RubyError{Value: v}
			}
		case compiler.POPERR:
			n := int(in.A)
			if n > len(fr.onerr) {
				n = len(fr.onerr)
			}
			fr.onerr = fr.onerr[:len(fr.onerr)-n]

		// EPUSH/EPOP are nesting-depth bookkeeping only: the lowerer always
		// emits a rescue/ensure body inline rather than truly deferring it,
		// so there is nothing for the interpreter to do at either
		// instruction today.
		case compiler.EPUSH:
		case compiler.EPOP:

		// ERR is never emitted; it raises a fixed message from the literal
		// pool, mirroring mruby's OP_ERR used for compiler-inserted guards.
		case compiler.ERR:
			msg, _ := proc.Pool.At(int(in.Bx)).(string)
			v := NewRubyError(th.ObjectClass, msg).Value
			if !raiseInFrame(fr, v) {
				return nil, &RubyError{Value: v}
			}

		case compiler.STOP:
			return nil, haltSignal{fr.Registers[in.A]}

		default:
			err := fmt.Errorf("unimplemented opcode %s", in.Op)
			if th.tryRescue(fr, err) {
				continue
			}
			return nil, err
		}
	}
}

// tryRescue gives the current frame's active onerr handler (if any) first
// refusal on err, translating it to a RubyError the way a raised exception
// would be. haltSignal and blockBreak bypass rescue entirely, matching
// Ruby's exit/break semantics.
func (th *Thread) tryRescue(fr *Frame, err error) bool {
	switch err.(type) {
	case haltSignal, blockBreak:
		return false
	}
	re, ok := th.evalError(err).(*RubyError)
	if !ok {
		return false
	}
	return raiseInFrame(fr, re.Value)
}

// raiseInFrame pops fr's innermost active protected-region target (if any),
// binds v for GETSPECIAL, and redirects execution there. It reports whether
// the frame had a handler to catch v.
func raiseInFrame(fr *Frame, v Value) bool {
	if len(fr.onerr) == 0 {
		return false
	}
	target := fr.onerr[len(fr.onerr)-1]
	fr.onerr = fr.onerr[:len(fr.onerr)-1]
	fr.special = v
	fr.pc = target
	return true
}

// getAttr reads name off v via HasAttrs, or Nil if v has no such attribute
// or doesn't support attribute access at all.
func (th *Thread) getAttr(v Value, name string) Value {
	if ha, ok := v.(HasAttrs); ok {
		if av, err := ha.Attr(name); err == nil && av != nil {
			return av
		}
	}
	return Nil
}

func cloneArgs(regs []Value, start, n int) []Value {
	if n <= 0 {
		return nil
	}
	args := make([]Value, n)
	copy(args, regs[start:start+n])
	return args
}

func poolValue(v interface{}) Value {
	switch v := v.(type) {
	case int64:
		return Int(v)
	case float64:
		return Float(v)
	case string:
		return String(v)
	default:
		return Nil
	}
}

func arithName(op compiler.Opcode) string {
	switch op {
	case compiler.ADD:
		return "+"
	case compiler.SUB:
		return "-"
	case compiler.MUL:
		return "*"
	case compiler.DIV:
		return "/"
	default:
		return "+"
	}
}

func cmpName(op compiler.Opcode) string {
	switch op {
	case compiler.LT:
		return "<"
	case compiler.LE:
		return "<="
	case compiler.GT:
		return ">"
	case compiler.GE:
		return ">="
	default:
		return "<"
	}
}
