package ast

import (
	"fmt"

	"github.com/mna/rbvm/lang/token"
)

// The types in this file round out the surface that stmts.go and exprs.go
// leave as forward references (class bodies, function signatures, map
// key/value pairs) and add the node kinds needed for exception handling,
// case dispatch, super/yield calls, ranges and word/symbol array literals.

type (
	// FuncSignature describes a parameter list shared by FuncStmt and FuncExpr.
	FuncSignature struct {
		Lparen    token.Pos
		Params    []Expr // *IdentExpr
		Commas    []token.Pos
		DotDotDot token.Pos // position of trailing "...", zero if not variadic
		Rparen    token.Pos
	}

	// ClassInherit represents the optional superclass clause of a class.
	ClassInherit struct {
		Lt   token.Pos // position of the '<' token
		Expr Expr      // may be nil
	}

	// ClassBody represents the member list of a class declaration.
	ClassBody struct {
		Start   token.Pos
		Fields  []Expr // *IdentExpr, instance variable declarations
		Methods []*FuncStmt
		End     token.Pos
	}

	// KeyVal represents a single key: value pair in a MapExpr.
	KeyVal struct {
		Key   Expr
		Colon token.Pos
		Value Expr
	}

	// RescueClause represents one "rescue Class, Class => var" handler.
	RescueClause struct {
		Rescue  token.Pos
		Classes []Expr // may be empty, defaults to StandardError
		Arrow   token.Pos
		Var     *IdentExpr // may be nil
		Body    *Block
	}

	// RescueStmt represents a begin/rescue/else/ensure/end block, or the
	// implicit rescue clauses attached directly to a def/do body.
	RescueStmt struct {
		Begin    token.Pos
		Body     *Block
		Handlers []*RescueClause
		Else     token.Pos // zero if no else clause
		ElseBody *Block
		Ensure   token.Pos // zero if no ensure clause
		EnsureBody *Block
		End      token.Pos
	}

	// WhenClause represents a single "when pattern, pattern" arm of a CaseStmt.
	WhenClause struct {
		When     token.Pos
		Patterns []Expr
		Body     *Block
	}

	// CaseStmt represents a case/when/else statement. Subject may be nil for
	// the patternless "case; when cond1; ...; end" form.
	CaseStmt struct {
		Case    token.Pos
		Subject Expr
		Whens   []*WhenClause
		Else    token.Pos
		ElseBody *Block
		End     token.Pos
	}

	// SuperExpr represents a super call. When Zsuper is true and Lparen is
	// zero, the call forwards the enclosing method's own arguments untouched.
	SuperExpr struct {
		Super  token.Pos
		Zsuper bool
		Lparen token.Pos // zero for zsuper or block-only super
		Args   []Expr
		Commas []token.Pos
		Rparen token.Pos
		Block  *FuncExpr // may be nil
	}

	// YieldExpr represents a yield expression, e.g. yield(a, b).
	YieldExpr struct {
		Yield  token.Pos
		Lparen token.Pos // zero if yield has no parens
		Args   []Expr
		Commas []token.Pos
		Rparen token.Pos
	}

	// RangeExpr represents a range literal a..b or a...b.
	RangeExpr struct {
		Left      Expr // may be nil (beginless range)
		Dots      token.Pos
		Exclusive bool
		Right     Expr // may be nil (endless range)
	}

	// WordsExpr represents a %w[...] or %i[...] array literal: a sequence of
	// bare words, materialized as strings or as interned symbols.
	WordsExpr struct {
		Start   token.Pos
		Symbols bool
		Items   []Expr // *LiteralExpr(STRING)
		End     token.Pos
	}

	// UndefStmt represents an undef statement removing one or more methods.
	UndefStmt struct {
		Undef token.Pos
		Names []*IdentExpr
		Commas []token.Pos
	}
)

func (n *RescueClause) classCount() int { return len(n.Classes) }

func (n *RescueStmt) Format(f fmt.State, verb rune) {
	format(f, verb, n, "begin/rescue", map[string]int{
		"handlers": len(n.Handlers),
	})
}
func (n *RescueStmt) Span() (start, end token.Pos) {
	end = n.End + token.Pos(len(token.END.String()))
	return n.Begin, end
}
func (n *RescueStmt) Walk(v Visitor) {
	if n.Body != nil {
		Walk(v, n.Body)
	}
	for _, h := range n.Handlers {
		if h.Var != nil {
			Walk(v, h.Var)
		}
		for _, c := range h.Classes {
			Walk(v, c)
		}
		if h.Body != nil {
			Walk(v, h.Body)
		}
	}
	if n.ElseBody != nil {
		Walk(v, n.ElseBody)
	}
	if n.EnsureBody != nil {
		Walk(v, n.EnsureBody)
	}
}
func (n *RescueStmt) BlockEnding() bool { return false }
func (n *RescueStmt) IsLoop() bool      { return false }

func (n *CaseStmt) Format(f fmt.State, verb rune) {
	format(f, verb, n, "case", map[string]int{"whens": len(n.Whens)})
}
func (n *CaseStmt) Span() (start, end token.Pos) {
	end = n.End + token.Pos(len(token.END.String()))
	return n.Case, end
}
func (n *CaseStmt) Walk(v Visitor) {
	if n.Subject != nil {
		Walk(v, n.Subject)
	}
	for _, w := range n.Whens {
		for _, p := range w.Patterns {
			Walk(v, p)
		}
		if w.Body != nil {
			Walk(v, w.Body)
		}
	}
	if n.ElseBody != nil {
		Walk(v, n.ElseBody)
	}
}
func (n *CaseStmt) BlockEnding() bool { return false }
func (n *CaseStmt) IsLoop() bool      { return false }

func (n *UndefStmt) Format(f fmt.State, verb rune) {
	format(f, verb, n, "undef", map[string]int{"names": len(n.Names)})
}
func (n *UndefStmt) Span() (start, end token.Pos) {
	_, end = n.Names[len(n.Names)-1].Span()
	return n.Undef, end
}
func (n *UndefStmt) Walk(v Visitor) {
	for _, nm := range n.Names {
		Walk(v, nm)
	}
}
func (n *UndefStmt) BlockEnding() bool { return false }
func (n *UndefStmt) IsLoop() bool      { return false }

func (n *SuperExpr) Format(f fmt.State, verb rune) {
	lbl := "super"
	if n.Zsuper {
		lbl = "zsuper"
	}
	format(f, verb, n, lbl, map[string]int{"args": len(n.Args)})
}
func (n *SuperExpr) Span() (start, end token.Pos) {
	end = n.Super + token.Pos(len(token.SUPER.String()))
	if n.Rparen.IsValid() {
		end = n.Rparen + token.Pos(len(token.RPAREN.String()))
	} else if len(n.Args) > 0 {
		_, end = n.Args[len(n.Args)-1].Span()
	}
	return n.Super, end
}
func (n *SuperExpr) Walk(v Visitor) {
	for _, a := range n.Args {
		Walk(v, a)
	}
	if n.Block != nil {
		Walk(v, n.Block)
	}
}
func (n *SuperExpr) expr() {}

func (n *YieldExpr) Format(f fmt.State, verb rune) {
	format(f, verb, n, "yield", map[string]int{"args": len(n.Args)})
}
func (n *YieldExpr) Span() (start, end token.Pos) {
	end = n.Yield + token.Pos(len(token.YIELD.String()))
	if n.Rparen.IsValid() {
		end = n.Rparen + token.Pos(len(token.RPAREN.String()))
	} else if len(n.Args) > 0 {
		_, end = n.Args[len(n.Args)-1].Span()
	}
	return n.Yield, end
}
func (n *YieldExpr) Walk(v Visitor) {
	for _, a := range n.Args {
		Walk(v, a)
	}
}
func (n *YieldExpr) expr() {}

func (n *RangeExpr) Format(f fmt.State, verb rune) {
	lbl := ".."
	if n.Exclusive {
		lbl = "..."
	}
	format(f, verb, n, "range "+lbl, nil)
}
func (n *RangeExpr) Span() (start, end token.Pos) {
	if n.Left != nil {
		start, _ = n.Left.Span()
	} else {
		start = n.Dots
	}
	if n.Right != nil {
		_, end = n.Right.Span()
	} else {
		end = n.Dots + token.Pos(len(token.DOTDOT.String()))
	}
	return start, end
}
func (n *RangeExpr) Walk(v Visitor) {
	if n.Left != nil {
		Walk(v, n.Left)
	}
	if n.Right != nil {
		Walk(v, n.Right)
	}
}
func (n *RangeExpr) expr() {}

func (n *WordsExpr) Format(f fmt.State, verb rune) {
	lbl := "words"
	if n.Symbols {
		lbl = "symbols"
	}
	format(f, verb, n, lbl, map[string]int{"items": len(n.Items)})
}
func (n *WordsExpr) Span() (start, end token.Pos) {
	return n.Start, n.End + 1
}
func (n *WordsExpr) Walk(v Visitor) {
	for _, e := range n.Items {
		Walk(v, e)
	}
}
func (n *WordsExpr) expr() {}
