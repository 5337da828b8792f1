package parser

import (
	"github.com/mna/rbvm/lang/ast"
	"github.com/mna/rbvm/lang/token"
)

func (p *parser) parseDeclStmt() *ast.AssignStmt {
	var stmt ast.AssignStmt
	stmt.DeclType = p.tok
	stmt.DeclStart = p.expect(token.LET, token.CONST)

	var idents []ast.Expr
	var commas []token.Pos

	idents = append(idents, p.parseIdentExpr())
	for p.tok == token.COMMA {
		commas = append(commas, p.expect(token.COMMA))
		idents = append(idents, p.parseIdentExpr())
	}

	stmt.Left = idents
	stmt.LeftCommas = commas

	if p.tok == token.EQ {
		stmt.AssignTok = token.EQ
		stmt.AssignPos = p.expect(token.EQ)
		stmt.Right, stmt.RightCommas = p.parseExprList()
	}
	return &stmt
}

func (p *parser) parseIfStmt(startPos token.Pos) *ast.IfGuardStmt {
	var stmt ast.IfGuardStmt

	if !startPos.IsValid() {
		// 'if' is not already consumed, do it now
		stmt.Type = token.IF
		stmt.Start = p.expect(token.IF)
	} else {
		// 'elseif' is already consumed in parent if/elseif, but record its
		// position and type here
		stmt.Type = token.ELSEIF
		stmt.Start = startPos
	}

	expect := []token.Token{token.ELSE}
	if stmt.Type == token.IF && tokenIn(p.tok, token.LET, token.CONST) { // DeclStmt not valid in elseif
		stmt.Decl = p.parseDeclStmt()
	} else {
		stmt.Cond = p.parseExpr()
		expect = append(expect, token.ELSEIF)
	}
	stmt.Then = p.expect(token.THEN)
	// stop at ELSEIF even for an if-decl, it will be an error
	stmt.True = p.parseBlock(token.ELSEIF, token.ELSE, token.END)

	if p.tok != token.END {
		// there is an ELSE/ELSEIF, parse it
		tok := p.tok
		stmt.Else = p.expect(expect...)
		if tok == token.ELSEIF {
			var elseIfBlock ast.Block
			elseIfStmt := p.parseIfStmt(stmt.Else)
			elseIfBlock.Start, elseIfBlock.End = elseIfStmt.Span()
			elseIfBlock.Stmts = []ast.Stmt{elseIfStmt}
			stmt.False = &elseIfBlock
		} else {
			stmt.False = p.parseBlock(token.END)
		}
	}
	if stmt.Type == token.IF {
		// this is the top-level 'if', it owns the 'end' token
		stmt.End = p.expect(token.END)
	}
	return &stmt
}

func (p *parser) parseForStmt() ast.Stmt {
	forPos := p.expect(token.FOR)
	switch p.tok {
	case token.DO:
		// for [ cond ] do, no condition (loop forever)
		return p.parseForCondStmt(forPos, nil)
	case token.SEMICOLON:
		// for [ init ]; [ cond ]; [ post ] do, no init
		return p.parseForThreePartStmt(forPos, nil)
	case token.LET, token.CONST:
		// for DeclStmt ; [ cond ]; [ post ] do, init is DeclStmt
		declStmt := p.parseDeclStmt()
		return p.parseForThreePartStmt(forPos, declStmt)
	default:
		// parse the next node and decide
		firstStmt := p.parseExprOrAssignStmt(false)
		// next token disambiguates the statement
		switch p.tok {
		case token.DO:
			// for [ cond ] do, with condition - firstStmt must be ExprStmt
			var firstExpr ast.Expr
			es, ok := firstStmt.(*ast.ExprStmt)
			if ok {
				firstExpr = es.Expr
			} else {
				start, end := firstStmt.Span()
				p.errorExpected(start, "expression")
				firstExpr = &ast.BadExpr{Start: start, End: end}
			}
			return p.parseForCondStmt(forPos, firstExpr)

		case token.SEMICOLON:
			// for [ init ]; [ cond ]; [ post ] do, with init - if firstStmt is an
			// ExprStmt it must be valid.
			if es, ok := firstStmt.(*ast.ExprStmt); ok {
				if !ast.IsValidStmt(es.Expr) {
					start, end := es.Span()
					p.errorExpected(start, "function call")
					firstStmt = &ast.BadStmt{Start: start, End: end}
				}
			}
			return p.parseForThreePartStmt(forPos, firstStmt)

		case token.COMMA, token.IN:
			// for expr in exprlist, firstStmt must be an ExprStmt
			var firstExpr ast.Expr
			es, ok := firstStmt.(*ast.ExprStmt)
			if ok {
				firstExpr = es.Expr
			} else {
				start, end := firstStmt.Span()
				p.errorExpected(start, "expression")
				firstExpr = &ast.BadExpr{Start: start, End: end}
			}
			return p.parseForInStmt(forPos, firstExpr)

		default:
			p.expect(token.DO, token.SEMICOLON, token.COMMA, token.IN)
			panic("unreachable")
		}
	}
}

func (p *parser) parseForInStmt(forPos token.Pos, firstExpr ast.Expr) *ast.ForInStmt {
	var stmt ast.ForInStmt
	stmt.For = forPos

	var commas []token.Pos
	left := []ast.Expr{firstExpr}
	for p.tok == token.COMMA {
		commas = append(commas, p.expect(token.COMMA))
		left = append(left, p.parseExpr())
	}

	// left must be assignable
	for _, e := range left {
		if !ast.IsAssignable(e) {
			start, _ := e.Span()
			p.errorExpected(start, "assignable expression")
		}
	}

	stmt.Left = left
	stmt.LeftCommas = commas
	stmt.In = p.expect(token.IN)
	stmt.Right, stmt.RightCommas = p.parseExprList()
	stmt.Do = p.expect(token.DO)
	stmt.Body = p.parseBlock(token.END)
	stmt.End = p.expect(token.END)
	return &stmt
}

func (p *parser) parseForCondStmt(forPos token.Pos, cond ast.Expr) *ast.ForLoopStmt {
	var stmt ast.ForLoopStmt
	stmt.For = forPos
	stmt.Cond = cond
	stmt.Do = p.expect(token.DO)
	stmt.Body = p.parseBlock(token.END)
	stmt.End = p.expect(token.END)
	return &stmt
}

func (p *parser) parseForThreePartStmt(forPos token.Pos, init ast.Stmt) *ast.ForLoopStmt {
	var stmt ast.ForLoopStmt
	stmt.For = forPos
	stmt.Init = init
	stmt.InitSemi = p.expect(token.SEMICOLON)

	if p.tok != token.SEMICOLON {
		stmt.Cond = p.parseExpr()
	}
	stmt.CondSemi = p.expect(token.SEMICOLON)

	if p.tok != token.DO {
		stmt.Post = p.parseExprOrAssignStmt(true)
	}

	stmt.Do = p.expect(token.DO)
	stmt.Body = p.parseBlock(token.END)
	stmt.End = p.expect(token.END)
	return &stmt
}

func (p *parser) parseFuncStmt() *ast.FuncStmt {
	var stmt ast.FuncStmt
	stmt.Fn = p.expect(token.FUNCTION)
	stmt.Name = p.parseIdentExpr()
	stmt.Sig = p.parseFuncSignature()
	stmt.Body = p.parseFuncBody()
	stmt.End = p.expect(token.END)
	return &stmt
}

// parseFuncSignature parses a parameter list. The grammar has no significant
// newlines - every block is closed by an explicit keyword - so unlike bare
// top-level calls, a signature always requires parens; there is no
// unambiguous way to tell a paren-less signature from the following body.
func (p *parser) parseFuncSignature() *ast.FuncSignature {
	var sig ast.FuncSignature
	sig.Lparen = p.expect(token.LPAREN)

	if !tokenIn(p.tok, token.RPAREN, token.EOF) {
		var params []ast.Expr
		var commas []token.Pos
		for p.tok == token.IDENT {
			params = append(params, p.parseIdentExpr())
			if p.tok == token.COMMA {
				commas = append(commas, p.expect(token.COMMA))
			} else {
				break
			}
		}
		// only way it could exit loop is if it hit RPAREN or DOTDOTDOT
		if p.tok == token.DOTDOTDOT {
			sig.DotDotDot = p.expect(token.DOTDOTDOT)
			params = append(params, p.parseIdentExpr())
			// can have a trailing comma
			if p.tok == token.COMMA {
				commas = append(commas, p.expect(token.COMMA))
			}
		}
		sig.Params = params
		sig.Commas = commas
	}
	sig.Rparen = p.expect(token.RPAREN)
	return &sig
}

func (p *parser) parseSimpleStmt() *ast.SimpleBlockStmt {
	var stmt ast.SimpleBlockStmt
	stmt.Type = p.tok
	stmt.Start = p.expect(p.tok)
	stmt.Body = p.parseFuncBody()
	stmt.End = p.expect(token.END)
	return &stmt
}

func (p *parser) parseReturnLikeStmt(exprAllowed bool) *ast.ReturnLikeStmt {
	var stmt ast.ReturnLikeStmt
	stmt.Type = p.tok
	stmt.Start = p.expect(p.tok)

	switch {
	case stmt.Type == token.REDO || stmt.Type == token.RETRY:
		// no operand: redo/retry always target the current loop/handler.
	case exprAllowed && maybeExprStart(p.tok):
		stmt.Expr = p.parseExpr()
	case p.tok == token.IDENT || stmt.Type == token.GOTO:
		stmt.Expr = p.parseIdentExpr()
	}
	return &stmt
}

func (p *parser) parseClassStmt() *ast.ClassStmt {
	var stmt ast.ClassStmt
	stmt.Class = p.expect(token.CLASS)
	stmt.Name = p.parseIdentExpr()
	stmt.Inherits = p.parseClassInherits()
	stmt.Body = p.parseClassBody()
	return &stmt
}

// parseClassInherits parses the optional "< Superclass" clause. It always
// returns a non-nil ClassInherit - only its Expr may be nil - since callers
// dereference it unconditionally.
func (p *parser) parseClassInherits() *ast.ClassInherit {
	var inherits ast.ClassInherit
	if p.tok == token.LT {
		inherits.Lt = p.expect(token.LT)
		inherits.Expr = p.parseExpr()
	}
	return &inherits
}

// parseClassBody parses the member list of a class declaration. Fields are
// declared with a bare "let name[, name...]" list (no initializer, no '@'
// sigil - the scanner has no instance-variable token kind); methods are
// ordinary function declarations.
func (p *parser) parseClassBody() *ast.ClassBody {
	var body ast.ClassBody
	body.Start = p.preCommentPos

	var methods []*ast.FuncStmt
	var fields []ast.Expr
	for !tokenIn(p.tok, token.END, token.EOF) {
		switch p.tok {
		case token.FUNCTION:
			methods = append(methods, p.parseFuncStmt())
		case token.LET:
			p.expect(token.LET)
			fields = append(fields, p.parseIdentExpr())
			for p.tok == token.COMMA {
				p.expect(token.COMMA)
				fields = append(fields, p.parseIdentExpr())
			}
		default:
			// record the expected token error
			p.expect(token.FUNCTION, token.LET)
		}
	}

	body.Methods = methods
	body.Fields = fields
	body.End = p.expect(token.END)
	return &body
}

func (p *parser) parseGuardStmt() *ast.IfGuardStmt {
	var stmt ast.IfGuardStmt
	stmt.Type = token.GUARD
	stmt.Start = p.expect(token.GUARD)

	if tokenIn(p.tok, token.LET, token.CONST) {
		stmt.Decl = p.parseDeclStmt()
	} else {
		stmt.Cond = p.parseExpr()
	}
	stmt.Else = p.expect(token.ELSE)
	stmt.False = p.parseBlock(token.END)
	stmt.End = p.expect(token.END)
	return &stmt
}

func (p *parser) parseLabelStmt() *ast.LabelStmt {
	var stmt ast.LabelStmt
	stmt.Lcolon = p.expect(token.COLONCOLON)
	stmt.Name = p.parseIdentExpr()
	stmt.Rcolon = p.expect(token.COLONCOLON)
	return &stmt
}

// parseRescueHandlers parses the rescue/else/ensure clauses trailing a
// rescue-protected body, shared by an explicit begin/end block and the
// implicit form attached directly to a def/do body.
func (p *parser) parseRescueHandlers(stmt *ast.RescueStmt) {
	for p.tok == token.RESCUE {
		stmt.Handlers = append(stmt.Handlers, p.parseRescueClause())
	}
	if p.tok == token.ELSE {
		stmt.Else = p.expect(token.ELSE)
		stmt.ElseBody = p.parseBlock(token.ENSURE, token.END)
	}
	if p.tok == token.ENSURE {
		stmt.Ensure = p.expect(token.ENSURE)
		stmt.EnsureBody = p.parseBlock(token.END)
	}
}

// parseRescueClause parses a single "rescue Class, Class: var" handler. The
// bound-variable separator is ':' rather than Ruby's '=>' - the scanner has
// no fat-arrow or "as" token, so the existing map key/value colon is reused.
func (p *parser) parseRescueClause() *ast.RescueClause {
	var rc ast.RescueClause
	rc.Rescue = p.expect(token.RESCUE)

	if maybeExprStart(p.tok) {
		rc.Classes = append(rc.Classes, p.parseExpr())
		for p.tok == token.COMMA {
			p.expect(token.COMMA)
			rc.Classes = append(rc.Classes, p.parseExpr())
		}
	}
	if p.tok == token.COLON {
		rc.Arrow = p.expect(token.COLON)
		rc.Var = p.parseIdentExpr()
	}
	rc.Body = p.parseBlock(token.RESCUE, token.ELSE, token.ENSURE, token.END)
	return &rc
}

func (p *parser) parseBeginStmt() *ast.RescueStmt {
	var stmt ast.RescueStmt
	stmt.Begin = p.expect(token.BEGIN)
	stmt.Body = p.parseBlock(token.RESCUE, token.ELSE, token.ENSURE, token.END)
	p.parseRescueHandlers(&stmt)
	stmt.End = p.expect(token.END)
	return &stmt
}

// parseFuncBody parses a def/do body, folding it into a RescueStmt if
// rescue/else/ensure clauses directly follow it with no explicit "begin".
func (p *parser) parseFuncBody() *ast.Block {
	start := p.preCommentPos
	body := p.parseBlock(token.RESCUE, token.ELSE, token.ENSURE, token.END)
	if !tokenIn(p.tok, token.RESCUE, token.ELSE, token.ENSURE) {
		return body
	}

	stmt := &ast.RescueStmt{Begin: start, Body: body}
	p.parseRescueHandlers(stmt)
	stmt.End = p.val.Pos
	return &ast.Block{Start: body.Start, End: stmt.End, Stmts: []ast.Stmt{stmt}}
}

func (p *parser) parseCaseStmt() *ast.CaseStmt {
	var stmt ast.CaseStmt
	stmt.Case = p.expect(token.CASE)
	if p.tok != token.WHEN {
		stmt.Subject = p.parseExpr()
	}
	for p.tok == token.WHEN {
		stmt.Whens = append(stmt.Whens, p.parseWhenClause())
	}
	if p.tok == token.ELSE {
		stmt.Else = p.expect(token.ELSE)
		stmt.ElseBody = p.parseBlock(token.END)
	}
	stmt.End = p.expect(token.END)
	return &stmt
}

func (p *parser) parseWhenClause() *ast.WhenClause {
	var wc ast.WhenClause
	wc.When = p.expect(token.WHEN)

	wc.Patterns = append(wc.Patterns, p.parseExpr())
	for p.tok == token.COMMA {
		p.expect(token.COMMA)
		wc.Patterns = append(wc.Patterns, p.parseExpr())
	}
	wc.Body = p.parseBlock(token.WHEN, token.ELSE, token.END)
	return &wc
}

func (p *parser) parseUndefStmt() *ast.UndefStmt {
	var stmt ast.UndefStmt
	stmt.Undef = p.expect(token.UNDEF)
	stmt.Names = append(stmt.Names, p.parseIdentExpr())
	for p.tok == token.COMMA {
		stmt.Commas = append(stmt.Commas, p.expect(token.COMMA))
		stmt.Names = append(stmt.Names, p.parseIdentExpr())
	}
	return &stmt
}

func (p *parser) parseExprOrAssignStmt(validateExprStmt bool) ast.Stmt {
	expr := p.parseExpr()
	if tokenIn(p.tok, token.COMMA, token.EQ) {
		return p.parseAssignStmt(expr)
	}
	if p.tok.IsAugBinop() {
		return p.parseAugAssignStmt(expr)
	}
	if validateExprStmt && !ast.IsValidStmt(expr) {
		start, end := expr.Span()
		p.errorExpected(start, "function call")
		return &ast.BadStmt{Start: start, End: end}
	}
	return &ast.ExprStmt{Expr: expr}
}

func (p *parser) parseAssignStmt(firstExpr ast.Expr) *ast.AssignStmt {
	var stmt ast.AssignStmt

	var commas []token.Pos
	left := []ast.Expr{firstExpr}
	for p.tok == token.COMMA {
		commas = append(commas, p.expect(token.COMMA))
		left = append(left, p.parseExpr())
	}

	// left must be assignable
	for _, e := range left {
		if !ast.IsAssignable(e) {
			start, _ := e.Span()
			p.errorExpected(start, "assignable expression")
		}
	}

	stmt.Left = left
	stmt.LeftCommas = commas

	stmt.AssignTok = token.EQ
	stmt.AssignPos = p.expect(token.EQ)
	stmt.Right, stmt.RightCommas = p.parseExprList()
	return &stmt
}

// augBinops lists the augmented-assignment operators (op=).
var augBinops = []token.Token{
	token.PLUSEQ, token.MINUSEQ, token.STAREQ, token.SLASHEQ, token.SLASHSLASHEQ,
	token.PERCENTEQ, token.AMPEQ, token.PIPEEQ, token.CIRCUMFLEXEQ, token.LTLTEQ, token.GTGTEQ,
}

func (p *parser) parseAugAssignStmt(firstExpr ast.Expr) *ast.AssignStmt {
	var stmt ast.AssignStmt

	// left must be assignable
	if !ast.IsAssignable(firstExpr) {
		start, _ := firstExpr.Span()
		p.errorExpected(start, "assignable expression")
	}
	stmt.Left = []ast.Expr{firstExpr}
	stmt.AssignTok = p.tok
	stmt.AssignPos = p.expect(augBinops...)
	stmt.Right = []ast.Expr{p.parseExpr()}
	return &stmt
}
