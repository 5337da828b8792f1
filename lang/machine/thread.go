package machine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/mna/rbvm/lang/compiler"
)

// Thread is one independent execution context: its own call stack, but
// sharing the Globals/Consts/ObjectClass of whatever program spawned it.
type Thread struct {
	// Name is an optional name that describes the thread, mostly for
	// debugging.
	Name string

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// MaxSteps bounds the number of executed instructions before the thread
	// is cancelled. A value <= 0 means no limit.
	MaxSteps int

	// MaxCallStackDepth limits the number of nested function calls. A value
	// <= 0 means no limit.
	MaxCallStackDepth int

	// Globals holds $-prefixed global variables, shared by every frame on
	// every thread of a running program.
	Globals map[string]Value

	// Consts is the top-level constant table: classes, modules and
	// top-level CONST assignments.
	Consts map[string]Value

	// ObjectClass is the root of the class hierarchy; a class declared with
	// no explicit superclass inherits from it, and top-level "def" defines
	// land on it (mirroring Ruby's top-level methods becoming private
	// methods of Object).
	ObjectClass *Class

	ctx       context.Context
	ctxCancel func()
	callStack []*Frame
	cancelled atomic.Bool
	steps     uint64
	maxSteps  uint64
}

// NewThread returns a thread sharing the given program-wide state. Callers
// normally obtain Globals/Consts/ObjectClass once via
// NewObjectClassHierarchy (see universe.go) and pass the same instances to
// every thread of that program.
func NewThread(globals, consts map[string]Value, objectClass *Class) *Thread {
	return &Thread{Globals: globals, Consts: consts, ObjectClass: objectClass}
}

func (th *Thread) init() {
	if th.MaxSteps <= 0 {
		th.maxSteps--
	} else {
		th.maxSteps = uint64(th.MaxSteps)
	}
	if th.ctx == nil {
		th.ctx = context.Background()
		th.ctxCancel = func() {}
	}
	if th.Globals == nil {
		th.Globals = make(map[string]Value)
	}
	if th.Consts == nil {
		th.Consts = make(map[string]Value)
	}
}

func (th *Thread) stdout() io.Writer {
	if th.Stdout != nil {
		return th.Stdout
	}
	return os.Stdout
}
func (th *Thread) stderr() io.Writer {
	if th.Stderr != nil {
		return th.Stderr
	}
	return os.Stderr
}

// RunProcedure compiles-and-runs proc as the top-level program: it executes
// with self bound to th.ObjectClass (matching Ruby's top-level self) and no
// arguments.
func (th *Thread) RunProcedure(ctx context.Context, proc *compiler.Procedure) (Value, error) {
	th.ctx, th.ctxCancel = context.WithCancel(ctx)
	th.init()
	go func() {
		<-th.ctx.Done()
		th.cancelled.Store(true)
	}()
	fn := &Function{Proc: proc, Label: proc.Name}
	return th.call(fn, th.ObjectClass, nil, nil)
}

// haltSignal is returned internally by the STOP opcode: it unwinds every
// enclosing call frame without consulting their rescue handlers, the way a
// process-level exit does.
type haltSignal struct{ value Value }

func (haltSignal) Error() string { return "halt" }

// blockBreak is returned internally when a block's body executes a RETURN
// instruction tagged RBreak (Ruby's "break" from inside a block): it
// unwinds exactly the block's own call, to be caught by whichever SEND/
// SENDB/Invoke call site invoked the block, and becomes that call's result.
type blockBreak struct{ value Value }

func (blockBreak) Error() string { return "break" }

// RubyError wraps a raised exception Value in a Go error so it can travel
// through normal Go error-return plumbing until a matching rescue clause
// (or the top level) catches it.
type RubyError struct {
	Value     Value
	Backtrace []string
}

func (e *RubyError) Error() string {
	if e.Value == nil {
		return "error"
	}
	if o, ok := e.Value.(*Object); ok {
		if msg, ok := o.IVars["message"].(String); ok {
			return string(msg)
		}
	}
	return e.Value.String()
}

// NewRubyError wraps msg in a RuntimeError-like generic exception object.
func NewRubyError(class *Class, msg string) *RubyError {
	obj := NewObject(class)
	obj.IVars["message"] = String(msg)
	return &RubyError{Value: obj}
}

func (th *Thread) evalError(err error) error {
	if _, ok := err.(*RubyError); ok {
		return err
	}
	if _, ok := err.(haltSignal); ok {
		return err
	}
	class := th.ObjectClass
	if c, ok := th.Consts["RuntimeError"].(*Class); ok {
		class = c
	}
	return NewRubyError(class, err.Error())
}

// call pushes a new Frame for fn, binds its parameters from args, and runs
// its instruction stream to completion.
func (th *Thread) call(fn *Function, self Value, args []Value, block *Function) (Value, error) {
	if th.ctx == nil {
		th.init()
	}
	if th.MaxCallStackDepth > 0 && len(th.callStack) >= th.MaxCallStackDepth {
		return nil, fmt.Errorf("stack level too deep")
	}

	fr := &Frame{
		Fn:        fn,
		Registers: newFrameWindow(fn.Proc),
		Self:      self,
		Block:     block,
		Args:      args,
	}
	if err := bindParams(fr, fn.Proc, args); err != nil {
		return nil, th.evalError(err)
	}

	th.callStack = append(th.callStack, fr)
	defer func() { th.callStack = th.callStack[:len(th.callStack)-1] }()

	v, err := th.run(fr)
	if err != nil {
		switch err.(type) {
		case haltSignal, blockBreak:
			return nil, err
		}
		return nil, th.evalError(err)
	}
	return v, nil
}

// bindParams copies positional arguments into a fresh frame's register
// window, per the procedure's Aspec: required parameters first, then an
// optional rest array collecting any surplus.
func bindParams(fr *Frame, proc *compiler.Procedure, args []Value) error {
	required := proc.NumParams
	if proc.HasVarargs {
		required--
	}
	if len(args) < required {
		return fmt.Errorf("wrong number of arguments (given %d, expected %d)", len(args), required)
	}
	if !proc.HasVarargs && len(args) > proc.NumParams {
		return fmt.Errorf("wrong number of arguments (given %d, expected %d)", len(args), proc.NumParams)
	}
	i := 0
	for ; i < required; i++ {
		fr.Registers[i] = args[i]
	}
	if proc.HasVarargs {
		rest := make([]Value, 0, len(args)-required)
		for ; i < len(args); i++ {
			rest = append(rest, args[i])
		}
		fr.Registers[required] = NewArray(rest)
	}
	for i := proc.NumParams; i < len(fr.Registers); i++ {
		if fr.Registers[i] == nil {
			fr.Registers[i] = Nil
		}
	}
	return nil
}

// Invoke is the single call-dispatch entry point used by SEND/SENDB/CALL: it
// resolves fn against recv's runtime type/class and runs it. A blockBreak
// surfacing from anywhere in that call (whether block was invoked directly,
// by a user method's YIELD, or by a builtin like Array#each) unwinds no
// further than this call site, becoming its ordinary result - exactly the
// call that received block is the one "break" exits.
func (th *Thread) Invoke(recv Value, name string, args []Value, block *Function) (Value, error) {
	v, err := th.dispatch(recv, name, args, block)
	if bb, ok := err.(blockBreak); ok {
		return bb.value, nil
	}
	return v, err
}

func (th *Thread) dispatch(recv Value, name string, args []Value, block *Function) (Value, error) {
	if c, ok := recv.(Callable); ok && (name == "" || name == "call") {
		self := recv
		if fn, ok := recv.(*Function); ok {
			// A block/lambda's "self" is inherited from the scope it closed
			// over, not the Function value itself (only its method-dispatch
			// receiver is; a bound method would set this differently, but
			// nothing in this interpreter produces one yet).
			self = blockSelf(fn)
		}
		return c.CallInternal(th, self, args, block)
	}
	if fn, _, ok := th.lookupMethod(recv, name); ok {
		return fn.CallInternal(th, recv, args, block)
	}
	if bf, ok := lookupBuiltin(recv, name); ok {
		return bf(th, recv, args, block)
	}
	return nil, fmt.Errorf("undefined method '%s' for %s", name, recv.Type())
}

// lookupMethod finds a user-defined method named name for recv, returning
// the defining class alongside it.
func (th *Thread) lookupMethod(recv Value, name string) (*Function, *Class, bool) {
	switch r := recv.(type) {
	case *Object:
		fn, owner := r.Class.LookupMethod(name)
		return fn, owner, fn != nil
	case *Class:
		fn, owner := th.ObjectClass.LookupMethod(name)
		_ = r
		return fn, owner, fn != nil
	default:
		fn, owner := th.ObjectClass.LookupMethod(name)
		return fn, owner, fn != nil
	}
}

// classOf returns the runtime class of v, for "is_a?"/rescue-class
// matching and Object#class.
func (th *Thread) classOf(v Value) *Class {
	switch v := v.(type) {
	case *Object:
		return v.Class
	case *Class:
		return v
	default:
		if c, ok := th.Consts[builtinClassName(v)].(*Class); ok {
			return c
		}
		return th.ObjectClass
	}
}

func builtinClassName(v Value) string {
	switch v.(type) {
	case Int:
		return "Integer"
	case Float:
		return "Float"
	case String:
		return "String"
	case Symbol:
		return "Symbol"
	case Bool:
		return "Boolean"
	case NilType:
		return "NilClass"
	case *Array:
		return "Array"
	case *Map:
		return "Hash"
	case *Range:
		return "Range"
	case *Function:
		return "Proc"
	default:
		return "Object"
	}
}
