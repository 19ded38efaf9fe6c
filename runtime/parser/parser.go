// Package parser turns a token stream into an AST. Statements are parsed
// by recursive descent dispatching on the leading keyword; expressions use
// a Pratt parser over a fixed precedence ladder.
//
// The parser never aborts: errors are recorded and it resynchronises on
// the next NEWLINE, DEDENT or EOF, so callers always receive a
// (possibly partial) Program plus the error list.
package parser

import (
	"github.com/sfenos/neba/runtime/ast"
	"github.com/sfenos/neba/runtime/lexer"
)

// Prec is a binding power in the expression precedence ladder,
// loosest first.
type Prec int

const (
	PrecNone Prec = iota
	PrecOr
	PrecAnd
	PrecNot
	PrecCompare
	PrecRange
	PrecBitOr
	PrecBitXor
	PrecBitAnd
	PrecShift
	PrecAdd
	PrecMul
	PrecUnary
	PrecPower
	PrecCall
)

// infixPrec returns the precedence of tok as an infix operator and
// whether it is right-associative. ok is false for non-infix tokens.
func infixPrec(tok lexer.TokenType) (prec Prec, rightAssoc bool, ok bool) {
	switch tok {
	case lexer.OR, lexer.OR_OR:
		return PrecOr, false, true
	case lexer.AND, lexer.AND_AND:
		return PrecAnd, false, true
	case lexer.EQ_EQ, lexer.NOT_EQ, lexer.LT, lexer.LT_EQ, lexer.GT, lexer.GT_EQ,
		lexer.IS, lexer.IN:
		return PrecCompare, false, true
	case lexer.DOT_DOT, lexer.DOT_DOT_EQ:
		return PrecRange, false, true
	case lexer.PIPE:
		return PrecBitOr, false, true
	case lexer.CARET:
		return PrecBitXor, false, true
	case lexer.AMPERSAND:
		return PrecBitAnd, false, true
	case lexer.LT_LT, lexer.GT_GT:
		return PrecShift, false, true
	case lexer.PLUS, lexer.MINUS:
		return PrecAdd, false, true
	case lexer.STAR, lexer.SLASH, lexer.SLASH_SLASH, lexer.PERCENT:
		return PrecMul, false, true
	case lexer.STAR_STAR:
		return PrecPower, true, true
	case lexer.LPAREN, lexer.LSQUARE, lexer.DOT:
		return PrecCall, false, true
	}
	return PrecNone, false, false
}

// Parser holds the token stream and accumulated errors.
type Parser struct {
	tokens []lexer.Token
	pos    int
	Errors []*ParseError
}

// New creates a Parser over a token stream (which must end in EOF).
func New(tokens []lexer.Token) *Parser {
	if len(tokens) == 0 {
		tokens = []lexer.Token{{Type: lexer.EOF}}
	}
	return &Parser{tokens: tokens}
}

// Parse tokenizes and parses source in one step, returning the program
// together with both error lists.
func Parse(source string) (*ast.Program, []*lexer.LexError, []*ParseError) {
	tokens, lexErrs := lexer.Tokenize(source)
	p := New(tokens)
	program := p.ParseProgram()
	return program, lexErrs, p.Errors
}

// ParseProgram parses the whole stream into a Program.
func (p *Parser) ParseProgram() *ast.Program {
	var stmts []ast.Stmt
	p.skipNewlines()
	for p.peek().Type != lexer.EOF {
		stmts = append(stmts, p.parseStmt())
		p.skipNewlines()
	}
	return &ast.Program{Stmts: stmts}
}

// ── Token cursor ──────────────────────────────────────────────────────────

func (p *Parser) peek() *lexer.Token {
	i := p.pos
	if i >= len(p.tokens) {
		i = len(p.tokens) - 1
	}
	return &p.tokens[i]
}

func (p *Parser) peekAt(offset int) *lexer.Token {
	i := p.pos + offset
	if i >= len(p.tokens) {
		i = len(p.tokens) - 1
	}
	return &p.tokens[i]
}

func (p *Parser) advance() *lexer.Token {
	tok := p.peek()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) match(typ lexer.TokenType) bool {
	if p.peek().Type == typ {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(typ lexer.TokenType, label string) (*lexer.Token, *ParseError) {
	if p.peek().Type == typ {
		return p.advance(), nil
	}
	return nil, &ParseError{
		Kind:     ErrUnexpectedToken,
		Expected: label,
		Found:    p.peek().Type,
		Span:     p.peek().Span,
	}
}

func (p *Parser) skipNewlines() {
	for p.peek().Type == lexer.NEWLINE || p.peek().Type == lexer.SEMICOLON {
		p.advance()
	}
}

// expectNewline consumes a statement terminator if present. Stray
// semicolons are accepted and ignored.
func (p *Parser) expectNewline() {
	for p.peek().Type == lexer.SEMICOLON {
		p.advance()
	}
	if t := p.peek().Type; t == lexer.NEWLINE || t == lexer.EOF {
		p.advance()
	}
}

// errorExpr records err and skips to the next statement boundary.
func (p *Parser) errorExpr(err *ParseError) ast.Expr {
	span := p.peek().Span
	p.Errors = append(p.Errors, err)
	for {
		t := p.peek().Type
		if t == lexer.NEWLINE || t == lexer.EOF || t == lexer.DEDENT {
			break
		}
		p.advance()
	}
	return ast.Expr{Kind: ast.BadExpr{}, Span: span}
}

func (p *Parser) errorStmt(err *ParseError) ast.Stmt {
	span := p.peek().Span
	p.Errors = append(p.Errors, err)
	for {
		t := p.peek().Type
		if t == lexer.NEWLINE || t == lexer.EOF || t == lexer.DEDENT {
			break
		}
		p.advance()
	}
	p.expectNewline()
	return ast.Stmt{
		Kind: ast.ExprStmt{Expr: ast.Expr{Kind: ast.BadExpr{}, Span: span}},
		Span: span,
	}
}

// ── Statements ────────────────────────────────────────────────────────────

func (p *Parser) parseStmt() ast.Stmt {
	span := p.peek().Span
	switch p.peek().Type {
	case lexer.LET:
		return p.parseLet(false)
	case lexer.VAR:
		return p.parseLet(true)
	case lexer.FN:
		return p.parseFn(false)
	case lexer.ASYNC:
		p.advance()
		return p.parseFn(true)
	case lexer.CLASS:
		return p.parseClass()
	case lexer.TRAIT:
		return p.parseTrait()
	case lexer.IMPL:
		return p.parseImpl()
	case lexer.WHILE:
		return p.parseWhile()
	case lexer.FOR:
		return p.parseFor()
	case lexer.RETURN:
		return p.parseReturn()
	case lexer.BREAK:
		p.advance()
		p.expectNewline()
		return ast.Stmt{Kind: ast.Break{}, Span: span}
	case lexer.CONTINUE:
		p.advance()
		p.expectNewline()
		return ast.Stmt{Kind: ast.Continue{}, Span: span}
	case lexer.PASS:
		p.advance()
		p.expectNewline()
		return ast.Stmt{Kind: ast.Pass{}, Span: span}
	case lexer.MOD:
		return p.parseMod()
	case lexer.USE:
		return p.parseUse()
	default:
		return p.parseExprOrAssign()
	}
}

func (p *Parser) parseLet(isVar bool) ast.Stmt {
	span := p.peek().Span
	p.advance()
	if p.peek().Type != lexer.IDENTIFIER {
		return p.errorStmt(&ParseError{
			Kind: ErrUnexpectedToken, Expected: "identifier",
			Found: p.peek().Type, Span: p.peek().Span,
		})
	}
	name := p.advance().Lexeme

	var ty *ast.TypeExpr
	if p.match(lexer.COLON) {
		t := p.parseType()
		ty = &t
	}
	if _, err := p.expect(lexer.EQUALS, "'='"); err != nil {
		return p.errorStmt(err)
	}
	value := p.parseExpr(PrecNone)
	p.expectNewline()

	if isVar {
		return ast.Stmt{Kind: ast.Var{Name: name, Type: ty, Value: value}, Span: span}
	}
	return ast.Stmt{Kind: ast.Let{Name: name, Type: ty, Value: value}, Span: span}
}

func (p *Parser) parseFn(isAsync bool) ast.Stmt {
	span := p.peek().Span
	p.advance()
	if p.peek().Type != lexer.IDENTIFIER {
		return p.errorStmt(&ParseError{
			Kind: ErrUnexpectedToken, Expected: "function name",
			Found: p.peek().Type, Span: p.peek().Span,
		})
	}
	name := p.advance().Lexeme

	if _, err := p.expect(lexer.LPAREN, "'('"); err != nil {
		return p.errorStmt(err)
	}
	params := p.parseParams()
	if _, err := p.expect(lexer.RPAREN, "')'"); err != nil {
		return p.errorStmt(err)
	}
	var returnTy *ast.TypeExpr
	if p.match(lexer.ARROW) {
		t := p.parseType()
		returnTy = &t
	}
	p.expectNewline()
	body := p.parseBlock()
	return ast.Stmt{
		Kind: ast.FnDef{Name: name, Params: params, ReturnTy: returnTy, Body: body, IsAsync: isAsync},
		Span: span,
	}
}

func (p *Parser) parseParams() []ast.Param {
	var params []ast.Param
	for p.peek().Type != lexer.RPAREN && p.peek().Type != lexer.EOF {
		span := p.peek().Span
		var name string
		switch p.peek().Type {
		case lexer.SELF:
			p.advance()
			name = "self"
		case lexer.IDENTIFIER:
			name = p.advance().Lexeme
		default:
			return params
		}

		var ty *ast.TypeExpr
		if p.match(lexer.COLON) {
			t := p.parseType()
			ty = &t
		}
		var def *ast.Expr
		if p.match(lexer.EQUALS) {
			e := p.parseExpr(PrecNone)
			def = &e
		}
		params = append(params, ast.Param{Name: name, Type: ty, Default: def, Span: span})
		if !p.match(lexer.COMMA) {
			break
		}
	}
	return params
}

func (p *Parser) parseClass() ast.Stmt {
	span := p.peek().Span
	p.advance()
	if p.peek().Type != lexer.IDENTIFIER {
		return p.errorStmt(&ParseError{
			Kind: ErrUnexpectedToken, Expected: "class name",
			Found: p.peek().Type, Span: p.peek().Span,
		})
	}
	name := p.advance().Lexeme
	p.expectNewline()
	if _, err := p.expect(lexer.INDENT, "indented class body"); err != nil {
		return p.errorStmt(err)
	}

	var fields []ast.FieldDef
	var methods, impls []ast.Stmt
	p.skipNewlines()
	for p.peek().Type != lexer.DEDENT && p.peek().Type != lexer.EOF {
		switch p.peek().Type {
		case lexer.FN, lexer.ASYNC:
			methods = append(methods, p.parseStmt())
		case lexer.IMPL:
			impls = append(impls, p.parseStmt())
		case lexer.NEWLINE:
			p.advance()
		default:
			fields = append(fields, p.parseField())
		}
	}
	p.match(lexer.DEDENT)
	return ast.Stmt{
		Kind: ast.ClassDef{Name: name, Fields: fields, Methods: methods, Impls: impls},
		Span: span,
	}
}

func (p *Parser) parseField() ast.FieldDef {
	span := p.peek().Span
	name := "?"
	if p.peek().Type == lexer.IDENTIFIER {
		name = p.advance().Lexeme
	} else {
		p.advance()
	}
	var ty *ast.TypeExpr
	if p.match(lexer.COLON) {
		t := p.parseType()
		ty = &t
	}
	var def *ast.Expr
	if p.match(lexer.EQUALS) {
		e := p.parseExpr(PrecNone)
		def = &e
	}
	p.expectNewline()
	return ast.FieldDef{Name: name, Type: ty, Default: def, Span: span}
}

func (p *Parser) parseTrait() ast.Stmt {
	span := p.peek().Span
	p.advance()
	if p.peek().Type != lexer.IDENTIFIER {
		return p.errorStmt(&ParseError{
			Kind: ErrUnexpectedToken, Expected: "trait name",
			Found: p.peek().Type, Span: p.peek().Span,
		})
	}
	name := p.advance().Lexeme
	p.expectNewline()
	if _, err := p.expect(lexer.INDENT, "indented trait body"); err != nil {
		return p.errorStmt(err)
	}
	var methods []ast.Stmt
	p.skipNewlines()
	for p.peek().Type != lexer.DEDENT && p.peek().Type != lexer.EOF {
		if p.peek().Type == lexer.NEWLINE {
			p.advance()
			continue
		}
		methods = append(methods, p.parseStmt())
	}
	p.match(lexer.DEDENT)
	return ast.Stmt{Kind: ast.TraitDef{Name: name, Methods: methods}, Span: span}
}

func (p *Parser) parseImpl() ast.Stmt {
	span := p.peek().Span
	p.advance()
	if p.peek().Type != lexer.IDENTIFIER {
		return p.errorStmt(&ParseError{
			Kind: ErrUnexpectedToken, Expected: "trait name",
			Found: p.peek().Type, Span: p.peek().Span,
		})
	}
	traitName := p.advance().Lexeme
	forType := ""
	if p.match(lexer.FOR) {
		if p.peek().Type == lexer.IDENTIFIER {
			forType = p.advance().Lexeme
		}
	}
	p.expectNewline()
	if _, err := p.expect(lexer.INDENT, "indented impl body"); err != nil {
		return p.errorStmt(err)
	}
	var methods []ast.Stmt
	p.skipNewlines()
	for p.peek().Type != lexer.DEDENT && p.peek().Type != lexer.EOF {
		if p.peek().Type == lexer.NEWLINE {
			p.advance()
			continue
		}
		methods = append(methods, p.parseStmt())
	}
	p.match(lexer.DEDENT)
	return ast.Stmt{
		Kind: ast.ImplBlock{TraitName: traitName, ForType: forType, Methods: methods},
		Span: span,
	}
}

func (p *Parser) parseWhile() ast.Stmt {
	span := p.peek().Span
	p.advance()
	condition := p.parseExpr(PrecNone)
	p.expectNewline()
	body := p.parseBlock()
	return ast.Stmt{Kind: ast.While{Condition: condition, Body: body}, Span: span}
}

func (p *Parser) parseFor() ast.Stmt {
	span := p.peek().Span
	p.advance()
	if p.peek().Type != lexer.IDENTIFIER {
		return p.errorStmt(&ParseError{
			Kind: ErrUnexpectedToken, Expected: "loop variable",
			Found: p.peek().Type, Span: p.peek().Span,
		})
	}
	name := p.advance().Lexeme
	if _, err := p.expect(lexer.IN, "'in'"); err != nil {
		return p.errorStmt(err)
	}
	iterable := p.parseExpr(PrecNone)
	p.expectNewline()
	body := p.parseBlock()
	return ast.Stmt{Kind: ast.For{Var: name, Iterable: iterable, Body: body}, Span: span}
}

func (p *Parser) parseReturn() ast.Stmt {
	span := p.peek().Span
	p.advance()
	var value *ast.Expr
	if t := p.peek().Type; t != lexer.NEWLINE && t != lexer.EOF && t != lexer.SEMICOLON {
		e := p.parseExpr(PrecNone)
		value = &e
	}
	p.expectNewline()
	return ast.Stmt{Kind: ast.Return{Value: value}, Span: span}
}

func (p *Parser) parseMod() ast.Stmt {
	span := p.peek().Span
	p.advance()
	name := "?"
	if p.peek().Type == lexer.IDENTIFIER {
		name = p.advance().Lexeme
	}
	p.expectNewline()
	return ast.Stmt{Kind: ast.ModDecl{Name: name}, Span: span}
}

func (p *Parser) parseUse() ast.Stmt {
	span := p.peek().Span
	p.advance()
	var path []string
	for p.peek().Type == lexer.IDENTIFIER {
		path = append(path, p.advance().Lexeme)
		if !p.match(lexer.COLON_COLON) {
			break
		}
	}
	p.expectNewline()
	return ast.Stmt{Kind: ast.UseDecl{Path: path}, Span: span}
}

func (p *Parser) parseExprOrAssign() ast.Stmt {
	span := p.peek().Span
	expr := p.parseExpr(PrecNone)

	var op ast.AssignOp
	hasAssign := true
	switch p.peek().Type {
	case lexer.EQUALS:
		op = ast.AssignPlain
	case lexer.PLUS_ASSIGN:
		op = ast.AssignAdd
	case lexer.MINUS_ASSIGN:
		op = ast.AssignSub
	case lexer.STAR_ASSIGN:
		op = ast.AssignMul
	case lexer.SLASH_ASSIGN:
		op = ast.AssignDiv
	case lexer.PERCENT_ASSIGN:
		op = ast.AssignMod
	default:
		hasAssign = false
	}

	if hasAssign {
		switch expr.Kind.(type) {
		case ast.Ident, ast.Field, ast.Index:
		default:
			p.Errors = append(p.Errors, &ParseError{Kind: ErrInvalidAssignTarget, Span: expr.Span})
		}
		p.advance()
		value := p.parseExpr(PrecNone)
		p.expectNewline()
		return ast.Stmt{Kind: ast.Assign{Target: expr, Op: op, Value: value}, Span: span}
	}

	p.expectNewline()
	return ast.Stmt{Kind: ast.ExprStmt{Expr: expr}, Span: span}
}

func (p *Parser) parseBlock() []ast.Stmt {
	if p.peek().Type != lexer.INDENT {
		p.Errors = append(p.Errors, &ParseError{Kind: ErrMissingIndent, Span: p.peek().Span})
		return nil
	}
	p.advance()
	var stmts []ast.Stmt
	p.skipNewlines()
	for p.peek().Type != lexer.DEDENT && p.peek().Type != lexer.EOF {
		if p.peek().Type == lexer.NEWLINE {
			p.advance()
			continue
		}
		stmts = append(stmts, p.parseStmt())
	}
	p.match(lexer.DEDENT)
	return stmts
}

func (p *Parser) parseType() ast.TypeExpr {
	span := p.peek().Span
	if p.peek().Type != lexer.IDENTIFIER {
		p.Errors = append(p.Errors, &ParseError{
			Kind: ErrUnexpectedToken, Expected: "type",
			Found: p.peek().Type, Span: span,
		})
		return ast.TypeExpr{Kind: ast.ErrorType{}, Span: span}
	}
	name := p.advance().Lexeme
	if p.match(lexer.LSQUARE) {
		var args []ast.TypeExpr
		for {
			args = append(args, p.parseType())
			if !p.match(lexer.COMMA) {
				break
			}
		}
		p.match(lexer.RSQUARE)
		return ast.TypeExpr{Kind: ast.GenericType{Name: name, Args: args}, Span: span}
	}
	return ast.TypeExpr{Kind: ast.NamedType{Name: name}, Span: span}
}

// ── Expressions ───────────────────────────────────────────────────────────

func (p *Parser) parseExpr(minPrec Prec) ast.Expr {
	left := p.parsePrefix()
	for {
		kind := p.peek().Type

		// "not in" is a single infix operator spelled as two tokens.
		if kind == lexer.NOT {
			span := p.peek().Span
			if p.peekAt(1).Type == lexer.IN && PrecCompare > minPrec {
				p.advance()
				p.advance()
				right := p.parseExpr(PrecCompare)
				lhs := left
				left = ast.Expr{
					Kind: ast.Binary{Op: ast.OpNotIn, Left: &lhs, Right: &right},
					Span: span,
				}
				continue
			}
		}

		prec, rightAssoc, ok := infixPrec(kind)
		if !ok {
			break
		}
		if prec <= minPrec && !rightAssoc {
			break
		}
		if prec < minPrec {
			break
		}
		left = p.parseInfix(left, prec, rightAssoc)
	}
	return left
}

func (p *Parser) parsePrefix() ast.Expr {
	span := p.peek().Span
	switch p.peek().Type {
	case lexer.INT:
		tok := p.advance()
		return ast.Expr{Kind: ast.IntLit{Value: tok.IntVal}, Span: span}
	case lexer.FLOAT:
		tok := p.advance()
		return ast.Expr{Kind: ast.FloatLit{Value: tok.FloatVal}, Span: span}
	case lexer.BOOLEAN:
		tok := p.advance()
		return ast.Expr{Kind: ast.BoolLit{Value: tok.BoolVal}, Span: span}
	case lexer.STRING:
		tok := p.advance()
		return ast.Expr{Kind: ast.StrLit{Value: tok.StrVal}, Span: span}
	case lexer.FSTRING:
		tok := p.advance()
		return ast.Expr{Kind: ast.FStrLit{Raw: tok.StrVal}, Span: span}
	case lexer.NONE:
		p.advance()
		return ast.Expr{Kind: ast.NoneLit{}, Span: span}
	case lexer.IDENTIFIER:
		tok := p.advance()
		return ast.Expr{Kind: ast.Ident{Name: tok.Lexeme}, Span: span}
	case lexer.SELF:
		p.advance()
		return ast.Expr{Kind: ast.Ident{Name: "self"}, Span: span}
	case lexer.MINUS:
		p.advance()
		operand := p.parseExpr(PrecUnary)
		return ast.Expr{Kind: ast.Unary{Op: ast.OpNeg, Operand: &operand}, Span: span}
	case lexer.NOT:
		p.advance()
		operand := p.parseExpr(PrecNot)
		return ast.Expr{Kind: ast.Unary{Op: ast.OpNot, Operand: &operand}, Span: span}
	case lexer.TILDE:
		p.advance()
		operand := p.parseExpr(PrecUnary)
		return ast.Expr{Kind: ast.Unary{Op: ast.OpBitNot, Operand: &operand}, Span: span}
	case lexer.LPAREN:
		p.advance()
		e := p.parseExpr(PrecNone)
		p.match(lexer.RPAREN)
		return e
	case lexer.LSQUARE:
		return p.parseArrayLiteral()
	case lexer.IF:
		return p.parseIfExpr()
	case lexer.MATCH:
		return p.parseMatchExpr()
	case lexer.SPAWN:
		p.advance()
		e := p.parseExpr(PrecNone)
		return ast.Expr{Kind: ast.Spawn{Inner: &e}, Span: span}
	case lexer.AWAIT:
		p.advance()
		e := p.parseExpr(PrecNone)
		return ast.Expr{Kind: ast.Await{Inner: &e}, Span: span}
	case lexer.SOME:
		p.advance()
		p.match(lexer.LPAREN)
		e := p.parseExpr(PrecNone)
		p.match(lexer.RPAREN)
		return ast.Expr{Kind: ast.SomeExpr{Inner: &e}, Span: span}
	case lexer.OK:
		p.advance()
		p.match(lexer.LPAREN)
		e := p.parseExpr(PrecNone)
		p.match(lexer.RPAREN)
		return ast.Expr{Kind: ast.OkExpr{Inner: &e}, Span: span}
	case lexer.ERR:
		p.advance()
		p.match(lexer.LPAREN)
		e := p.parseExpr(PrecNone)
		p.match(lexer.RPAREN)
		return ast.Expr{Kind: ast.ErrExpr{Inner: &e}, Span: span}
	default:
		return p.errorExpr(&ParseError{
			Kind: ErrUnexpectedToken, Expected: "expression",
			Found: p.peek().Type, Span: span,
		})
	}
}

func (p *Parser) parseInfix(left ast.Expr, prec Prec, rightAssoc bool) ast.Expr {
	span := left.Span
	switch p.peek().Type {
	case lexer.LPAREN:
		p.advance()
		args, kwargs := p.parseCallArgs()
		p.match(lexer.RPAREN)
		return ast.Expr{
			Kind: ast.Call{Callee: &left, Args: args, Kwargs: kwargs},
			Span: span,
		}
	case lexer.LSQUARE:
		p.advance()
		index := p.parseExpr(PrecNone)
		p.match(lexer.RSQUARE)
		return ast.Expr{Kind: ast.Index{Object: &left, Idx: &index}, Span: span}
	case lexer.DOT:
		p.advance()
		field := "?"
		if p.peek().Type == lexer.IDENTIFIER {
			field = p.advance().Lexeme
		}
		return ast.Expr{Kind: ast.Field{Object: &left, Name: field}, Span: span}
	case lexer.DOT_DOT:
		p.advance()
		right := p.parseExpr(PrecRange)
		return ast.Expr{
			Kind: ast.Range{Start: &left, End: &right, Inclusive: false},
			Span: span,
		}
	case lexer.DOT_DOT_EQ:
		p.advance()
		right := p.parseExpr(PrecRange)
		return ast.Expr{
			Kind: ast.Range{Start: &left, End: &right, Inclusive: true},
			Span: span,
		}
	default:
		op := tokenToBinOp(p.peek().Type)
		p.advance()
		nextPrec := prec
		if rightAssoc {
			nextPrec = prec - 1
		}
		right := p.parseExpr(nextPrec)
		return ast.Expr{
			Kind: ast.Binary{Op: op, Left: &left, Right: &right},
			Span: span,
		}
	}
}

func tokenToBinOp(typ lexer.TokenType) ast.BinOp {
	switch typ {
	case lexer.PLUS:
		return ast.OpAdd
	case lexer.MINUS:
		return ast.OpSub
	case lexer.STAR:
		return ast.OpMul
	case lexer.SLASH:
		return ast.OpDiv
	case lexer.SLASH_SLASH:
		return ast.OpIntDiv
	case lexer.PERCENT:
		return ast.OpMod
	case lexer.STAR_STAR:
		return ast.OpPow
	case lexer.EQ_EQ:
		return ast.OpEq
	case lexer.NOT_EQ:
		return ast.OpNe
	case lexer.LT:
		return ast.OpLt
	case lexer.LT_EQ:
		return ast.OpLe
	case lexer.GT:
		return ast.OpGt
	case lexer.GT_EQ:
		return ast.OpGe
	case lexer.AND, lexer.AND_AND:
		return ast.OpAnd
	case lexer.OR, lexer.OR_OR:
		return ast.OpOr
	case lexer.AMPERSAND:
		return ast.OpBitAnd
	case lexer.PIPE:
		return ast.OpBitOr
	case lexer.CARET:
		return ast.OpBitXor
	case lexer.LT_LT:
		return ast.OpShl
	case lexer.GT_GT:
		return ast.OpShr
	case lexer.IS:
		return ast.OpIs
	case lexer.IN:
		return ast.OpIn
	default:
		return ast.OpAdd
	}
}

func (p *Parser) parseCallArgs() ([]ast.Expr, []ast.Kwarg) {
	var args []ast.Expr
	var kwargs []ast.Kwarg
	for p.peek().Type != lexer.RPAREN && p.peek().Type != lexer.EOF {
		isKwarg := p.peek().Type == lexer.IDENTIFIER && p.peekAt(1).Type == lexer.EQUALS
		if isKwarg {
			name := p.advance().Lexeme
			p.advance()
			kwargs = append(kwargs, ast.Kwarg{Name: name, Value: p.parseExpr(PrecNone)})
		} else {
			args = append(args, p.parseExpr(PrecNone))
		}
		if !p.match(lexer.COMMA) {
			break
		}
	}
	return args, kwargs
}

func (p *Parser) parseArrayLiteral() ast.Expr {
	span := p.peek().Span
	p.advance()
	var items []ast.Expr
	for p.peek().Type != lexer.RSQUARE && p.peek().Type != lexer.EOF {
		items = append(items, p.parseExpr(PrecNone))
		if !p.match(lexer.COMMA) {
			break
		}
	}
	p.match(lexer.RSQUARE)
	return ast.Expr{Kind: ast.ArrayLit{Elems: items}, Span: span}
}

func (p *Parser) parseIfExpr() ast.Expr {
	span := p.peek().Span
	p.advance()
	condition := p.parseExpr(PrecNone)
	p.expectNewline()
	thenBlock := p.parseBlock()

	var elifs []ast.ElifBranch
	var elseBlock []ast.Stmt
	hasElse := false
	for {
		p.skipNewlines()
		switch p.peek().Type {
		case lexer.ELIF:
			p.advance()
			cond := p.parseExpr(PrecNone)
			p.expectNewline()
			elifs = append(elifs, ast.ElifBranch{Condition: cond, Block: p.parseBlock()})
			continue
		case lexer.ELSE:
			p.advance()
			p.expectNewline()
			elseBlock = p.parseBlock()
			hasElse = true
		}
		break
	}
	return ast.Expr{
		Kind: ast.If{Condition: &condition, Then: thenBlock, Elifs: elifs, Else: elseBlock, HasElse: hasElse},
		Span: span,
	}
}

func (p *Parser) parseMatchExpr() ast.Expr {
	span := p.peek().Span
	p.advance()
	subject := p.parseExpr(PrecNone)
	p.expectNewline()
	if p.peek().Type != lexer.INDENT {
		p.Errors = append(p.Errors, &ParseError{Kind: ErrMissingIndent, Span: p.peek().Span})
		return ast.Expr{Kind: ast.Match{Subject: &subject}, Span: span}
	}
	p.advance()

	var arms []ast.MatchArm
	p.skipNewlines()
	for p.peek().Type != lexer.DEDENT && p.peek().Type != lexer.EOF {
		if p.peek().Type == lexer.NEWLINE {
			p.advance()
			continue
		}
		if p.peek().Type != lexer.CASE {
			break
		}
		armSpan := p.peek().Span
		p.advance()
		pattern := p.parsePattern()
		var body []ast.Stmt
		if p.match(lexer.FAT_ARROW) {
			body = []ast.Stmt{p.parseStmt()}
		} else {
			p.expectNewline()
			body = p.parseBlock()
		}
		arms = append(arms, ast.MatchArm{Pattern: pattern, Body: body, Span: armSpan})
	}
	p.match(lexer.DEDENT)
	return ast.Expr{Kind: ast.Match{Subject: &subject, Arms: arms}, Span: span}
}

// ── Patterns ──────────────────────────────────────────────────────────────

func (p *Parser) parsePattern() ast.Pattern {
	pats := []ast.Pattern{p.parseSinglePattern()}
	for p.match(lexer.PIPE) {
		pats = append(pats, p.parseSinglePattern())
	}
	if len(pats) == 1 {
		return pats[0]
	}
	return ast.OrPat{Alts: pats}
}

func (p *Parser) parseSinglePattern() ast.Pattern {
	switch p.peek().Type {
	case lexer.UNDERSCORE:
		p.advance()
		return ast.WildcardPat{}
	case lexer.INT:
		tok := p.advance()
		return p.maybeRangePattern(ast.LiteralPat{Lit: ast.IntLit{Value: tok.IntVal}})
	case lexer.FLOAT:
		tok := p.advance()
		return ast.LiteralPat{Lit: ast.FloatLit{Value: tok.FloatVal}}
	case lexer.STRING:
		tok := p.advance()
		return ast.LiteralPat{Lit: ast.StrLit{Value: tok.StrVal}}
	case lexer.BOOLEAN:
		tok := p.advance()
		return ast.LiteralPat{Lit: ast.BoolLit{Value: tok.BoolVal}}
	case lexer.NONE:
		p.advance()
		return ast.LiteralPat{Lit: ast.NoneLit{}}
	case lexer.SOME, lexer.OK, lexer.ERR:
		var name string
		switch p.peek().Type {
		case lexer.SOME:
			name = "Some"
		case lexer.OK:
			name = "Ok"
		default:
			name = "Err"
		}
		p.advance()
		var inner []ast.Pattern
		if p.match(lexer.LPAREN) {
			inner = append(inner, p.parsePattern())
			p.match(lexer.RPAREN)
		}
		return ast.ConstructorPat{Name: name, Inner: inner}
	case lexer.IDENTIFIER:
		name := p.advance().Lexeme
		if p.match(lexer.LPAREN) {
			var inner []ast.Pattern
			for p.peek().Type != lexer.RPAREN && p.peek().Type != lexer.EOF {
				inner = append(inner, p.parsePattern())
				if !p.match(lexer.COMMA) {
					break
				}
			}
			p.match(lexer.RPAREN)
			return ast.ConstructorPat{Name: name, Inner: inner}
		}
		return ast.IdentPat{Name: name}
	default:
		p.Errors = append(p.Errors, &ParseError{Kind: ErrInvalidPattern, Span: p.peek().Span})
		return ast.BadPat{}
	}
}

func (p *Parser) maybeRangePattern(start ast.Pattern) ast.Pattern {
	switch p.peek().Type {
	case lexer.DOT_DOT:
		p.advance()
		end := p.parseSinglePattern()
		return ast.RangePat{Start: start, End: end, Inclusive: false}
	case lexer.DOT_DOT_EQ:
		p.advance()
		end := p.parseSinglePattern()
		return ast.RangePat{Start: start, End: end, Inclusive: true}
	default:
		return start
	}
}
