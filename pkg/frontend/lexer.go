// Package frontend - Lexer for smpl
// Design: Hand-written scanner, longest match, zero allocations in hot path
package frontend

import (
	"fmt"
	"unicode"
)

type TokenType int

const (
	EOF TokenType = iota
	ERROR

	// Literals
	NUMBER
	IDENT

	// Keywords
	MAIN
	VAR
	ARRAY
	LET
	CALL
	IF
	THEN
	ELSE
	FI
	WHILE
	DO
	OD
	RETURN
	FUNCTION
	PROCEDURE
	VOID

	// Operators
	PLUS
	MINUS
	STAR
	SLASH
	EQ      // ==
	NE      // !=
	LT      // <
	LE      // <=
	GT      // >
	GE      // >=
	BECOMES // <-

	// Delimiters
	LPAREN
	RPAREN
	LBRACKET
	RBRACKET
	LBRACE
	RBRACE
	COMMA
	SEMI
	PERIOD
)

var tokenNames = [...]string{
	EOF: "EOF", ERROR: "ERROR", NUMBER: "number", IDENT: "identifier",
	MAIN: "main", VAR: "var", ARRAY: "array", LET: "let", CALL: "call",
	IF: "if", THEN: "then", ELSE: "else", FI: "fi",
	WHILE: "while", DO: "do", OD: "od",
	RETURN: "return", FUNCTION: "function", PROCEDURE: "procedure", VOID: "void",
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/",
	EQ: "==", NE: "!=", LT: "<", LE: "<=", GT: ">", GE: ">=", BECOMES: "<-",
	LPAREN: "(", RPAREN: ")", LBRACKET: "[", RBRACKET: "]", LBRACE: "{", RBRACE: "}",
	COMMA: ",", SEMI: ";", PERIOD: ".",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("token(%d)", int(t))
}

var keywords = map[string]TokenType{
	"main":      MAIN,
	"var":       VAR,
	"array":     ARRAY,
	"let":       LET,
	"call":      CALL,
	"if":        IF,
	"then":      THEN,
	"else":      ELSE,
	"fi":        FI,
	"while":     WHILE,
	"do":        DO,
	"od":        OD,
	"return":    RETURN,
	"function":  FUNCTION,
	"procedure": PROCEDURE,
	"void":      VOID,
}

// IsKeyword reports whether t is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t >= MAIN && t <= VOID
}

type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
	Col    int
}

func (t Token) Pos() Pos {
	return Pos{Line: t.Line, Col: t.Col}
}

func (t Token) String() string {
	switch t.Type {
	case NUMBER, IDENT, ERROR:
		return fmt.Sprintf("%d:%d %s %q", t.Line, t.Col, t.Type, t.Lexeme)
	}
	return fmt.Sprintf("%d:%d %s", t.Line, t.Col, t.Type)
}

type Lexer struct {
	source []rune
	start  int
	pos    int
	line   int
	col    int
}

func NewLexer(source string) *Lexer {
	return &Lexer{
		source: []rune(source),
		line:   1,
		col:    1,
	}
}

// Next returns the next token. After the input is exhausted it keeps
// returning EOF.
func (l *Lexer) Next() Token {
	l.skipWhitespace()

	if l.isAtEnd() {
		return Token{Type: EOF, Line: l.line, Col: l.col}
	}

	l.start = l.pos
	c := l.advance()

	switch c {
	case '+':
		return l.makeToken(PLUS, "+")
	case '-':
		return l.makeToken(MINUS, "-")
	case '*':
		return l.makeToken(STAR, "*")
	case '/':
		return l.makeToken(SLASH, "/")
	case '(':
		return l.makeToken(LPAREN, "(")
	case ')':
		return l.makeToken(RPAREN, ")")
	case '[':
		return l.makeToken(LBRACKET, "[")
	case ']':
		return l.makeToken(RBRACKET, "]")
	case '{':
		return l.makeToken(LBRACE, "{")
	case '}':
		return l.makeToken(RBRACE, "}")
	case ',':
		return l.makeToken(COMMA, ",")
	case ';':
		return l.makeToken(SEMI, ";")
	case '.':
		return l.makeToken(PERIOD, ".")
	case '=':
		if l.match('=') {
			return l.makeToken(EQ, "==")
		}
		return l.error("'=' is not an operator, did you mean '==' or '<-'")
	case '!':
		if l.match('=') {
			return l.makeToken(NE, "!=")
		}
		return l.error("'!' must be followed by '='")
	case '<':
		if l.match('=') {
			return l.makeToken(LE, "<=")
		}
		if l.match('-') {
			return l.makeToken(BECOMES, "<-")
		}
		return l.makeToken(LT, "<")
	case '>':
		if l.match('=') {
			return l.makeToken(GE, ">=")
		}
		return l.makeToken(GT, ">")
	}

	if unicode.IsDigit(c) {
		return l.number()
	}

	if unicode.IsLetter(c) {
		return l.identifier()
	}

	return l.error(fmt.Sprintf("unexpected character: %c", c))
}

// Tokens lexes the whole input. The last token is EOF or the first ERROR.
func (l *Lexer) Tokens() []Token {
	var toks []Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == EOF || tok.Type == ERROR {
			return toks
		}
	}
}

func (l *Lexer) skipWhitespace() {
	for !l.isAtEnd() {
		c := l.peek()
		switch {
		case c == '\n':
			l.pos++
			l.line++
			l.col = 1
		case unicode.IsSpace(c):
			l.advance()
		case c == '/' && l.peekNext() == '/': // Comments
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) number() Token {
	for unicode.IsDigit(l.peek()) {
		l.advance()
	}
	return l.makeToken(NUMBER, string(l.source[l.start:l.pos]))
}

func (l *Lexer) identifier() Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) {
		l.advance()
	}

	text := string(l.source[l.start:l.pos])
	if typ, ok := keywords[text]; ok {
		return l.makeToken(typ, text)
	}
	return l.makeToken(IDENT, text)
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return '\x00'
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return '\x00'
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	c := l.source[l.pos]
	l.pos++
	l.col++
	return c
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.pos++
	l.col++
	return true
}

func (l *Lexer) isAtEnd() bool {
	return l.pos >= len(l.source)
}

func (l *Lexer) makeToken(typ TokenType, lexeme string) Token {
	return Token{
		Type:   typ,
		Lexeme: lexeme,
		Line:   l.line,
		Col:    l.col - len([]rune(lexeme)),
	}
}

func (l *Lexer) error(msg string) Token {
	return Token{
		Type:   ERROR,
		Lexeme: msg,
		Line:   l.line,
		Col:    l.col - (l.pos - l.start),
	}
}
