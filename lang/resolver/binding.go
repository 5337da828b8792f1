package resolver

import (
	"fmt"

	"github.com/mna/rbvm/lang/ast"
)

// The Scope of Binding indicates what kind of scope it has.
type Scope uint8

const (
	Undefined   Scope = iota // name is not defined
	Local                    // name is local to its function
	Cell                     // name is function-local but shared with a nested function
	Free                     // name is cell of some enclosing function
	Predeclared              // name is predeclared for this module (provided to its environment)
	Universal                // name is universal (a language built-in)
	Label                    // name is a statement label, strictly local to its function
	LoopLabel                // name is a statement label associated with a loop
)

var scopeNames = [...]string{
	Undefined:   "undefined",
	Local:       "local",
	Cell:        "cell",
	Free:        "free",
	Predeclared: "predeclared",
	Universal:   "universal",
	Label:       "label",
	LoopLabel:   "loop label",
}

func (s Scope) String() string {
	if int(s) >= len(scopeNames) {
		return fmt.Sprintf("<invalid Scope %d>", s)
	}
	return scopeNames[s]
}

// A Binding contains resolver information about an identifier. The resolver
// creates a binding for each declaration and it ties together all identifiers
// that denote the same variable.
type Binding struct {
	Scope Scope

	// Const is true if this binding was declared with a constant
	// assignment (an identifier starting with an uppercase letter
	// bound via token.CONST).
	Const bool

	// Index records the index into the enclosing
	// - function's Locals, if Scope==Local
	// - function's FreeVars, if Scope==Free
	// - function's Labels, if Scope==Label or Scope==LoopLabel
	// It is zero if Scope is Predeclared, Universal, or Undefined.
	Index int

	// Decl is the identifier that declares this binding.
	Decl ast.Expr

	// BlockName is set by nameBlocks (if requested) to the name of the
	// block in which this binding was first declared.
	BlockName string
}

// Function holds the per-function resolver state: its bindings and the
// nesting counters used to validate break/continue/rescue/ensure and
// labeled jumps.
type Function struct {
	Definition ast.Node   // can be *Chunk, *ClassStmt, *ClassExpr, *FuncStmt or *FuncExpr
	Locals     []*Binding // this function's local/cell variables, parameters first
	FreeVars   []*Binding // enclosing cells to capture in closure
	Labels     []*Binding // this function's statement labels

	// HasVarArg is true if the function's signature ends with a "..." param.
	HasVarArg bool

	// loops, defers and catches count how many nested loop/defer/catch
	// blocks currently enclose the block being resolved, within this
	// function only (they reset to zero for each nested function).
	loops, defers, catches int
}

// block is a lexical scope: a linked node in the tree of nested blocks
// rooted at the file (top-level) block. Each block belongs to exactly one
// Function, though several nested blocks may share the same Function
// (e.g. an if's true/false blocks are not separate functions).
type block struct {
	fn       *Function
	parent   *block
	children []*block
	bindings map[string]*Binding

	// isDeferCatch marks a block introduced by a defer/catch statement; it
	// is a scope frontier for labels (labels do not cross it).
	isDeferCatch bool

	// name is assigned by nameBlocks, if requested.
	name string
}
