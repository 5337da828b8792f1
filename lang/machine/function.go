package machine

import (
	"fmt"

	"github.com/mna/rbvm/lang/compiler"
)

// Function is a closure: a compiled Procedure paired with the chain of
// enclosing call frames it may read and write upvars through (Upenv) and,
// once bound by METHOD, the class it was defined in (OwnerClass, used to
// resume a SUPEROP search one level up the class's ancestry).
type Function struct {
	Proc  *compiler.Procedure
	Label string
	Upenv []*Frame

	// OwnerClass is set when this closure is installed as a method body by
	// METHOD; it is nil for plain lambdas/blocks.
	OwnerClass *Class
}

var (
	_ Value    = (*Function)(nil)
	_ Callable = (*Function)(nil)
)

func (fn *Function) String() string {
	if fn.Label != "" {
		return fmt.Sprintf("function(%s)", fn.Label)
	}
	return fmt.Sprintf("function(%p)", fn)
}
func (fn *Function) Type() string { return "function" }

func (fn *Function) Name() string {
	if fn.Label != "" {
		return fn.Label
	}
	return "<anonymous>"
}

func (fn *Function) CallInternal(th *Thread, self Value, args []Value, block *Function) (Value, error) {
	return th.call(fn, self, args, block)
}
