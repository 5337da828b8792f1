package parser

import (
	"github.com/mna/rbvm/lang/ast"
	"github.com/mna/rbvm/lang/token"
)

func (p *parser) parseExpr() ast.Expr {
	if tokenIn(p.tok, token.DOTDOT, token.DOTDOTDOT) {
		// beginless range, e.g. "..5"
		return p.parseRangeExpr(nil)
	}

	left := p.parseSubExpr(0)
	if tokenIn(p.tok, token.DOTDOT, token.DOTDOTDOT) {
		return p.parseRangeExpr(left)
	}
	return left
}

// parseRangeExpr parses the ".." or "..." suffix of a range literal. left is
// nil for a beginless range; the right operand is omitted for an endless
// one. Ranges are not part of the binop precedence climb: they don't chain
// (a..b..c is not a thing), they just wrap whatever operand is present.
func (p *parser) parseRangeExpr(left ast.Expr) *ast.RangeExpr {
	var expr ast.RangeExpr
	expr.Left = left
	expr.Exclusive = p.tok == token.DOTDOTDOT
	expr.Dots = p.expect(p.tok)
	if maybeExprStart(p.tok) {
		expr.Right = p.parseSubExpr(0)
	}
	return &expr
}

// maybeExprStart reports whether tok could begin an expression, used to
// decide whether an optional trailing operand (an endless range's right
// side, a bare yield's arguments, a return/throw's value) is present.
func maybeExprStart(tok token.Token) bool {
	if tok.IsAtom() || tok.IsUnop() {
		return true
	}
	switch tok {
	case token.IDENT, token.INT, token.FLOAT, token.STRING, token.SYMBOL, token.REGEX,
		token.LPAREN, token.LBRACK, token.LBRACE, token.FUNCTION, token.CLASS,
		token.SUPER, token.YIELD:
		return true
	}
	return false
}

var (
	binopPriority = [...]struct{ left, right int }{
		token.OR:  {1, 1},
		token.AND: {2, 2},
		token.LT:  {3, 3}, token.LE: {3, 3}, token.GT: {3, 3},
		token.GE: {3, 3}, token.EQEQ: {3, 3}, token.BANGEQ: {3, 3},
		token.PIPE:      {4, 4},
		token.TILDE:     {5, 5},
		token.AMPERSAND: {6, 6},
		token.LTLT:      {7, 7}, token.GTGT: {7, 7},
		token.PLUS: {10, 10}, token.MINUS: {10, 10},
		token.STAR: {11, 11}, token.SLASH: {11, 11},
		token.PERCENT: {11, 11}, token.SLASHSLASH: {11, 11},
		token.CIRCUMFLEX: {14, 13}, // right associative
	}
	unopPriority = 12
)

// parses a SubExpr where the binary operator has a priority higher than the
// provided priority (for precedence climbing).
func (p *parser) parseSubExpr(priority int) ast.Expr {
	var left ast.Expr

	if p.tok.IsUnop() {
		var unop ast.UnaryOpExpr
		unop.Type = p.tok
		unop.Op = p.expect(p.tok)
		unop.Right = p.parseSubExpr(unopPriority)
		left = &unop
	} else {
		left = p.parseSimpleExpr()
	}

	for p.tok.IsBinop() && binopPriority[p.tok].left > priority {
		var bin ast.BinOpExpr
		bin.Left = left
		bin.Type = p.tok
		bin.Op = p.expect(p.tok)
		bin.Right = p.parseSubExpr(binopPriority[bin.Type].right)
		left = &bin
	}

	return left
}

func (p *parser) parseSimpleExpr() ast.Expr {
	switch {
	case p.tok.IsAtom(), p.tok == token.INT, p.tok == token.FLOAT, p.tok == token.STRING,
		p.tok == token.SYMBOL, p.tok == token.REGEX:
		return p.parseAtomExpr()
	case p.tok == token.LBRACE:
		return p.parseMapExpr()
	case p.tok == token.LBRACK:
		return p.parseArrayExpr()
	case p.tok == token.FUNCTION:
		return p.parseFuncExpr()
	case p.tok == token.CLASS:
		return p.parseClassExpr()
	case p.tok == token.SUPER:
		return p.parseSuperExpr()
	case p.tok == token.YIELD:
		return p.parseYieldExpr()
	default:
		return p.parseTupleOrSuffixedExpr()
	}
}

func (p *parser) parseAtomExpr() *ast.LiteralExpr {
	var val any
	switch p.tok {
	case token.INT:
		val = p.val.Int
	case token.FLOAT:
		val = p.val.Float
	case token.STRING, token.SYMBOL:
		val = p.val.String
	}
	lit := &ast.LiteralExpr{
		Type:  p.tok,
		Raw:   p.val.Raw,
		Value: val,
	}
	lit.Start = p.expect(p.tok)
	return lit
}

func (p *parser) parseMapExpr() *ast.MapExpr {
	var expr ast.MapExpr
	expr.Lbrace = p.expect(token.LBRACE)

	var items []*ast.KeyVal
	var commas []token.Pos
	for !tokenIn(p.tok, token.RBRACE, token.EOF) {
		items = append(items, p.parseKeyVal())
		if p.tok == token.COMMA {
			// may or may not be the last, trailing comma is valid
			commas = append(commas, p.expect(token.COMMA))
		} else {
			// no comma after keyval, must be the last
			break
		}
	}

	expr.Items = items
	expr.Commas = commas
	expr.Rbrace = p.expect(token.RBRACE)
	return &expr
}

func (p *parser) parseKeyVal() *ast.KeyVal {
	var kv ast.KeyVal

	// parse the key
	switch p.tok {
	case token.LBRACK:
		kv.Key = p.parseIndexKeyExpr()
	case token.STRING:
		kv.Key = p.parseAtomExpr()
	case token.IDENT:
		kv.Key = p.parseIdentExpr()
	default:
		p.expect(token.IDENT, token.LBRACK, token.STRING)
		panic("unreachable")
	}

	kv.Colon = p.expect(token.COLON)
	kv.Value = p.parseExpr()
	return &kv
}

// parseIndexKeyExpr parses the "[expr]" computed-key form of a map literal
// entry, returning just the bracketed expression.
func (p *parser) parseIndexKeyExpr() ast.Expr {
	p.expect(token.LBRACK)
	key := p.parseExpr()
	p.expect(token.RBRACK)
	return key
}

func (p *parser) parseArrayExpr() *ast.ArrayLikeExpr {
	var expr ast.ArrayLikeExpr
	expr.Type = token.LBRACK
	expr.Left = p.expect(token.LBRACK)

	var items []ast.Expr
	var commas []token.Pos
	for !tokenIn(p.tok, token.RBRACK, token.EOF) {
		items = append(items, p.parseExpr())
		if p.tok == token.COMMA {
			// may or may not be the last, trailing comma is valid
			commas = append(commas, p.expect(token.COMMA))
		} else {
			// no comma after value, must be the last
			break
		}
	}

	expr.Items = items
	expr.Commas = commas
	expr.Right = p.expect(token.RBRACK)
	return &expr
}

func (p *parser) parseFuncExpr() *ast.FuncExpr {
	var expr ast.FuncExpr
	expr.Fn = p.expect(token.FUNCTION)
	expr.Sig = p.parseFuncSignature()
	expr.Body = p.parseFuncBody()
	expr.End = p.expect(token.END)
	return &expr
}

func (p *parser) parseClassExpr() *ast.ClassExpr {
	var expr ast.ClassExpr
	expr.Class = p.expect(token.CLASS)
	expr.Inherits = p.parseClassInherits()
	expr.Body = p.parseClassBody()
	return &expr
}

// parseSuperExpr parses a super call. A bare "super" (no parens at all)
// forwards the enclosing method's own arguments untouched (Zsuper); "super()"
// and "super(a, b)" pass an explicit (possibly empty) argument list.
func (p *parser) parseSuperExpr() *ast.SuperExpr {
	var expr ast.SuperExpr
	expr.Super = p.expect(token.SUPER)

	if p.tok == token.LPAREN {
		expr.Lparen = p.expect(token.LPAREN)
		if p.tok != token.RPAREN {
			expr.Args, expr.Commas = p.parseExprList()
		}
		expr.Rparen = p.expect(token.RPAREN)
	} else {
		expr.Zsuper = true
	}
	if p.tok == token.FUNCTION {
		expr.Block = p.parseFuncExpr()
	}
	return &expr
}

func (p *parser) parseYieldExpr() *ast.YieldExpr {
	var expr ast.YieldExpr
	expr.Yield = p.expect(token.YIELD)

	if p.tok == token.LPAREN {
		expr.Lparen = p.expect(token.LPAREN)
		if p.tok != token.RPAREN {
			expr.Args, expr.Commas = p.parseExprList()
		}
		expr.Rparen = p.expect(token.RPAREN)
	} else if maybeExprStart(p.tok) {
		expr.Args, expr.Commas = p.parseExprList()
	}
	return &expr
}

func (p *parser) parseTupleOrSuffixedExpr() ast.Expr {
	primary, isTuple := p.parseTupleOrPrimaryExpr()
	if isTuple {
		return primary
	}

loop:
	for p.tok != token.EOF {
		switch p.tok {
		case token.DOT:
			primary = p.parseDotExpr(primary)
		case token.LBRACK:
			primary = p.parseIndexExpr(primary)
		case token.LPAREN, token.LBRACE, token.STRING, token.BANG:
			primary = p.parseCallExpr(primary)
		default:
			break loop
		}
	}
	return primary
}

func (p *parser) parseTupleOrPrimaryExpr() (e ast.Expr, isTuple bool) {
	if p.tok == token.IDENT {
		return p.parseIdentExpr(), false
	}

	lparen := p.expect(token.LPAREN)
	if p.tok == token.RPAREN {
		// empty tuple
		return &ast.ArrayLikeExpr{
			Type:  token.LPAREN,
			Left:  lparen,
			Right: p.expect(token.RPAREN),
		}, true
	}

	// at this point, an expr is required
	expr := p.parseExpr()
	if p.tok == token.RPAREN {
		// paren expression, a tuple would require a trailing comma
		return &ast.ParenExpr{
			Lparen: lparen,
			Expr:   expr,
			Rparen: p.expect(token.RPAREN),
		}, false
	}

	// must be a tuple
	items := []ast.Expr{expr}
	commas := []token.Pos{p.expect(token.COMMA)}
	for !tokenIn(p.tok, token.RPAREN, token.EOF) {
		items = append(items, p.parseExpr())
		if p.tok == token.COMMA {
			// may or may not be the last, trailing comma is valid
			commas = append(commas, p.expect(token.COMMA))
		} else {
			// no comma after value, must be the last
			break
		}
	}
	return &ast.ArrayLikeExpr{
		Type:   token.LPAREN,
		Left:   lparen,
		Items:  items,
		Commas: commas,
		Right:  p.expect(token.RPAREN),
	}, true
}

func (p *parser) parseDotExpr(left ast.Expr) *ast.DotExpr {
	var expr ast.DotExpr
	expr.Left = left
	expr.Dot = p.expect(token.DOT)
	expr.Right = p.parseIdentExpr()
	return &expr
}

func (p *parser) parseIndexExpr(prefix ast.Expr) *ast.IndexExpr {
	var expr ast.IndexExpr
	expr.Prefix = prefix
	expr.Lbrack = p.expect(token.LBRACK)
	expr.Index = p.parseExpr()
	expr.Rbrack = p.expect(token.RBRACK)
	return &expr
}

func (p *parser) parseCallExpr(fn ast.Expr) *ast.CallExpr {
	var expr ast.CallExpr
	expr.Fn = fn
	switch p.tok {
	case token.LPAREN:
		expr.Lparen = p.expect(token.LPAREN)
		if p.tok != token.RPAREN {
			expr.Args, expr.Commas = p.parseExprList()
		}
		expr.Rparen = p.expect(token.RPAREN)

	case token.LBRACE:
		expr.Args = []ast.Expr{p.parseMapExpr()}

	case token.STRING:
		expr.Args = []ast.Expr{p.parseAtomExpr()}

	case token.BANG:
		expr.Bang = p.expect(token.BANG)

	default:
		p.expect(token.LPAREN, token.LBRACE, token.STRING, token.BANG)
		panic("unreachable")
	}
	return &expr
}

func (p *parser) parseIdentExpr() *ast.IdentExpr {
	var exp ast.IdentExpr
	exp.Lit = p.val.Raw
	exp.Start = p.expect(token.IDENT)
	return &exp
}

func (p *parser) parseExprList() ([]ast.Expr, []token.Pos) {
	var exprs []ast.Expr
	var commas []token.Pos

	exprs = append(exprs, p.parseExpr())
	for p.tok == token.COMMA {
		commas = append(commas, p.expect(token.COMMA))
		exprs = append(exprs, p.parseExpr())
	}
	return exprs, commas
}
