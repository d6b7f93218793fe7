package frontend

import (
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func types(toks []Token) []TokenType {
	out := make([]TokenType, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func TestLexerTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []TokenType
	}{
		{
			name:  "assignment",
			input: "let x <- 42",
			want:  []TokenType{LET, IDENT, BECOMES, NUMBER, EOF},
		},
		{
			name:  "relations",
			input: "== != < <= > >=",
			want:  []TokenType{EQ, NE, LT, LE, GT, GE, EOF},
		},
		{
			name:  "less than minus",
			input: "a < -1",
			want:  []TokenType{IDENT, LT, MINUS, NUMBER, EOF},
		},
		{
			name:  "keywords",
			input: "main var array call if then else fi while do od return",
			want:  []TokenType{MAIN, VAR, ARRAY, CALL, IF, THEN, ELSE, FI, WHILE, DO, OD, RETURN, EOF},
		},
		{
			name:  "delimiters",
			input: "{ ( [ ] ) } , ; .",
			want:  []TokenType{LBRACE, LPAREN, LBRACKET, RBRACKET, RPAREN, RBRACE, COMMA, SEMI, PERIOD, EOF},
		},
		{
			name:  "comment",
			input: "x // the rest is ignored\ny",
			want:  []TokenType{IDENT, IDENT, EOF},
		},
		{
			name:  "keyword prefix is an identifier",
			input: "iffy doit",
			want:  []TokenType{IDENT, IDENT, EOF},
		},
		{
			name:  "lone equals",
			input: "x = 1",
			want:  []TokenType{IDENT, ERROR},
		},
		{
			name:  "unexpected character",
			input: "x # y",
			want:  []TokenType{IDENT, ERROR},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := types(NewLexer(tt.input).Tokens())
			assert.Check(t, is.DeepEqual(got, tt.want))
		})
	}
}

func TestLexerPositions(t *testing.T) {
	toks := NewLexer("let x\n  <- 10").Tokens()
	assert.Assert(t, is.Len(toks, 5))

	assert.Check(t, is.Equal(toks[0].Pos(), Pos{Line: 1, Col: 1}))
	assert.Check(t, is.Equal(toks[1].Pos(), Pos{Line: 1, Col: 5}))
	assert.Check(t, is.Equal(toks[2].Pos(), Pos{Line: 2, Col: 3}))
	assert.Check(t, is.Equal(toks[3].Lexeme, "10"))
	assert.Check(t, is.Equal(toks[3].Pos(), Pos{Line: 2, Col: 6}))
	assert.Check(t, is.Equal(toks[3].String(), `2:6 number "10"`))
}

func TestLexerErrorMessage(t *testing.T) {
	toks := NewLexer("a != b ! c").Tokens()
	last := toks[len(toks)-1]
	assert.Check(t, is.Equal(last.Type, ERROR))
	assert.Check(t, is.Equal(last.Lexeme, "'!' must be followed by '='"))
	assert.Check(t, is.Equal(last.Col, 8))
}

func TestLexerEOFRepeats(t *testing.T) {
	l := NewLexer("x")
	assert.Check(t, is.Equal(l.Next().Type, IDENT))
	assert.Check(t, is.Equal(l.Next().Type, EOF))
	assert.Check(t, is.Equal(l.Next().Type, EOF))
}
