// Package frontend - Recursive descent parser for smpl
// Design: Predictive parsing, clear error messages, zero backtracking
package frontend

import (
	"fmt"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
)

// SyntaxError is a lexical or grammatical error at a source position.
type SyntaxError struct {
	Pos Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

type Parser struct {
	lexer    *Lexer
	current  Token
	err      *SyntaxError
	declared mapset.Set[string]
}

func NewParser(source string) *Parser {
	lexer := NewLexer(source)
	return &Parser{
		lexer:    lexer,
		current:  lexer.Next(),
		declared: mapset.NewThreadUnsafeSet[string](),
	}
}

// Parse parses a whole computation. Parsing stops at the first error.
func (p *Parser) Parse() (*Computation, error) {
	comp := p.computation()
	if p.err != nil {
		return nil, p.err
	}
	return comp, nil
}

// Parse is a convenience wrapper around NewParser(source).Parse().
func Parse(source string) (*Computation, error) {
	return NewParser(source).Parse()
}

func (p *Parser) computation() *Computation {
	comp := &Computation{}
	if !p.consume(MAIN, "expected 'main'") {
		return nil
	}

	for p.ok() && (p.check(VAR) || p.check(ARRAY)) {
		p.declaration(comp)
	}
	if p.check(FUNCTION) || p.check(PROCEDURE) || p.check(VOID) {
		p.error("user-defined functions are not supported")
		return nil
	}

	if !p.consume(LBRACE, "expected '{'") {
		return nil
	}
	comp.Body = p.statSequence()
	if !p.consume(RBRACE, "expected '}'") {
		return nil
	}
	if !p.consume(PERIOD, "expected '.' after main body") {
		return nil
	}
	if !p.check(EOF) {
		p.error("unexpected input after end of program")
		return nil
	}
	return comp
}

func (p *Parser) declaration(comp *Computation) {
	var dims []int
	if p.match(ARRAY) {
		p.advance()
		for {
			if !p.consume(LBRACKET, "expected '['") {
				return
			}
			tok := p.current
			n := p.number()
			if n <= 0 && p.ok() {
				p.errorAt(tok, "array dimension must be positive")
				return
			}
			dims = append(dims, n)
			if !p.consume(RBRACKET, "expected ']'") {
				return
			}
			if !p.check(LBRACKET) {
				break
			}
		}
	} else {
		p.advance()
	}

	for p.ok() {
		tok := p.current
		name := p.ident()
		if !p.ok() {
			return
		}
		if p.declared.Contains(name) {
			p.errorAt(tok, fmt.Sprintf("%s is already declared", name))
			return
		}
		p.declared.Add(name)
		if dims == nil {
			comp.Vars = append(comp.Vars, &VarDecl{Name: name, Pos: tok.Pos()})
		} else {
			comp.Arrays = append(comp.Arrays, &ArrayDecl{Name: name, Dims: dims, Pos: tok.Pos()})
		}
		if !p.match(COMMA) {
			break
		}
		p.advance()
	}
	p.consume(SEMI, "expected ';' after declaration")
}

func (p *Parser) statSequence() []Stmt {
	stmts := []Stmt{}
	if p.match(RBRACE, FI, ELSE, OD) {
		return stmts
	}
	for p.ok() {
		stmt := p.statement()
		if stmt == nil {
			return stmts
		}
		stmts = append(stmts, stmt)

		if !p.match(SEMI) {
			return stmts
		}
		p.advance()
		// trailing semicolon before a closing keyword
		if p.match(RBRACE, FI, ELSE, OD) {
			return stmts
		}
	}
	return stmts
}

func (p *Parser) statement() Stmt {
	switch p.current.Type {
	case LET:
		pos := p.advance().Pos()
		target := p.designator()
		if !p.consume(BECOMES, "expected '<-'") {
			return nil
		}
		return &Assign{Target: target, Value: p.expression(), Pos: pos}
	case CALL:
		call := p.funcCall()
		if call == nil {
			return nil
		}
		return &CallStmt{Call: call}
	case IF:
		return p.ifStatement()
	case WHILE:
		return p.whileStatement()
	case RETURN:
		p.error("return is only valid in a function body")
		return nil
	}
	p.error(fmt.Sprintf("expected statement, found %s", p.current.Type))
	return nil
}

func (p *Parser) ifStatement() Stmt {
	pos := p.advance().Pos()
	stmt := &If{Cond: p.relation(), Pos: pos}
	if !p.consume(THEN, "expected 'then'") {
		return nil
	}
	stmt.Then = p.statSequence()
	if p.match(ELSE) {
		p.advance()
		stmt.Else = p.statSequence()
	}
	if !p.consume(FI, "expected 'fi'") {
		return nil
	}
	return stmt
}

func (p *Parser) whileStatement() Stmt {
	pos := p.advance().Pos()
	stmt := &While{Cond: p.relation(), Pos: pos}
	if !p.consume(DO, "expected 'do'") {
		return nil
	}
	stmt.Body = p.statSequence()
	if !p.consume(OD, "expected 'od'") {
		return nil
	}
	return stmt
}

func (p *Parser) funcCall() *Call {
	p.advance()
	tok := p.current
	name := p.ident()
	if !p.ok() {
		return nil
	}
	fn, ok := builtins[name]
	if !ok {
		p.errorAt(tok, fmt.Sprintf("unknown function %s: user-defined functions are not supported", name))
		return nil
	}
	call := &Call{Func: fn, Pos: tok.Pos()}

	if !p.match(LPAREN) {
		if fn.arity() != 0 {
			p.error(fmt.Sprintf("expected '(' after %s", name))
			return nil
		}
		return call
	}
	p.advance()
	if !p.check(RPAREN) {
		call.Args = append(call.Args, p.expression())
		for p.ok() && p.match(COMMA) {
			p.advance()
			call.Args = append(call.Args, p.expression())
		}
	}
	if !p.consume(RPAREN, "expected ')'") {
		return nil
	}
	if len(call.Args) != fn.arity() {
		p.errorAt(tok, fmt.Sprintf("%s takes %d argument(s), got %d", name, fn.arity(), len(call.Args)))
		return nil
	}
	return call
}

func (p *Parser) relation() *Relation {
	left := p.expression()
	var op RelOp
	switch p.current.Type {
	case EQ:
		op = Eq
	case NE:
		op = Ne
	case LT:
		op = Lt
	case LE:
		op = Le
	case GT:
		op = Gt
	case GE:
		op = Ge
	default:
		p.error("expected relational operator")
		return nil
	}
	p.advance()
	return &Relation{Left: left, Op: op, Right: p.expression()}
}

func (p *Parser) expression() Expr {
	expr := p.term()

	for p.ok() && p.match(PLUS, MINUS) {
		op := p.operatorFromToken(p.current.Type)
		p.advance()
		right := p.term()
		expr = &BinOp{Left: expr, Op: op, Right: right}
	}

	return expr
}

func (p *Parser) term() Expr {
	expr := p.factor()

	for p.ok() && p.match(STAR, SLASH) {
		op := p.operatorFromToken(p.current.Type)
		p.advance()
		right := p.factor()
		expr = &BinOp{Left: expr, Op: op, Right: right}
	}

	return expr
}

func (p *Parser) factor() Expr {
	switch p.current.Type {
	case NUMBER:
		return &Num{Value: p.number()}
	case IDENT:
		return p.designator()
	case LPAREN:
		p.advance()
		expr := p.expression()
		p.consume(RPAREN, "expected ')'")
		return expr
	case CALL:
		if call := p.funcCall(); call != nil {
			return call
		}
		return nil
	}
	p.error(fmt.Sprintf("expected expression, found %s", p.current.Type))
	return nil
}

func (p *Parser) designator() *Designator {
	tok := p.current
	d := &Designator{Name: p.ident(), Pos: tok.Pos()}
	for p.ok() && p.match(LBRACKET) {
		p.advance()
		d.Indices = append(d.Indices, p.expression())
		p.consume(RBRACKET, "expected ']'")
	}
	return d
}

func (p *Parser) ident() string {
	if p.current.Type.IsKeyword() {
		p.error(fmt.Sprintf("keyword %q cannot be used as an identifier", p.current.Lexeme))
		return ""
	}
	if !p.check(IDENT) {
		p.error(fmt.Sprintf("expected identifier, found %s", p.current.Type))
		return ""
	}
	return p.advance().Lexeme
}

func (p *Parser) number() int {
	if !p.check(NUMBER) {
		p.error(fmt.Sprintf("expected number, found %s", p.current.Type))
		return 0
	}
	tok := p.advance()
	n, err := strconv.Atoi(tok.Lexeme)
	if err != nil {
		p.errorAt(tok, fmt.Sprintf("number out of range: %s", tok.Lexeme))
		return 0
	}
	return n
}

func (p *Parser) operatorFromToken(tok TokenType) Operator {
	switch tok {
	case PLUS:
		return Add
	case MINUS:
		return Sub
	case STAR:
		return Mul
	case SLASH:
		return Div
	default:
		return Add
	}
}

func (p *Parser) match(types ...TokenType) bool {
	for _, typ := range types {
		if p.current.Type == typ {
			return true
		}
	}
	return false
}

func (p *Parser) check(typ TokenType) bool {
	return p.current.Type == typ
}

func (p *Parser) ok() bool {
	return p.err == nil
}

func (p *Parser) advance() Token {
	tok := p.current
	if tok.Type != EOF && tok.Type != ERROR {
		p.current = p.lexer.Next()
	}
	return tok
}

func (p *Parser) consume(typ TokenType, msg string) bool {
	if p.check(typ) {
		p.advance()
		return true
	}
	p.error(msg)
	return false
}

func (p *Parser) error(msg string) {
	p.errorAt(p.current, msg)
}

// errorAt records the first error only; everything after it is fallout.
func (p *Parser) errorAt(tok Token, msg string) {
	if p.err != nil {
		return
	}
	if tok.Type == ERROR {
		msg = tok.Lexeme
	}
	p.err = &SyntaxError{Pos: tok.Pos(), Msg: msg}
}
