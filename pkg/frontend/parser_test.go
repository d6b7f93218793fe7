package frontend

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestParseComputation(t *testing.T) {
	comp, err := Parse(`
main
var a, b;
array[2][3] m;
{
	let a <- call InputNum();
	let m[a][1] <- a * (b + 2);
	if a >= b then call OutputNum(a) else call OutputNewLine fi;
	while a != 0 do let a <- a - 1; od
}.`)
	assert.NilError(t, err)

	assert.Assert(t, is.Len(comp.Vars, 2))
	assert.Check(t, is.Equal(comp.Vars[0].Name, "a"))
	assert.Check(t, is.Equal(comp.Vars[1].Name, "b"))
	assert.Assert(t, is.Len(comp.Arrays, 1))
	assert.Check(t, is.DeepEqual(comp.Arrays[0].Dims, []int{2, 3}))
	assert.Assert(t, is.Len(comp.Body, 4))

	read := comp.Body[0].(*Assign)
	assert.Check(t, is.Equal(read.Value.(*Call).Func, InputNum))

	store := comp.Body[1].(*Assign)
	assert.Check(t, is.Equal(store.Target.Name, "m"))
	assert.Check(t, is.Len(store.Target.Indices, 2))
	want := &BinOp{
		Left: &Designator{Name: "a"},
		Op:   Mul,
		Right: &BinOp{
			Left:  &Designator{Name: "b"},
			Op:    Add,
			Right: &Num{Value: 2},
		},
	}
	if diff := cmp.Diff(want, store.Value, cmpopts.IgnoreFields(Designator{}, "Pos")); diff != "" {
		t.Fatalf("expression mismatch (-want +got):\n%s", diff)
	}

	cond := comp.Body[2].(*If)
	assert.Check(t, is.Equal(cond.Cond.Op, Ge))
	assert.Check(t, is.Len(cond.Then, 1))
	assert.Assert(t, is.Len(cond.Else, 1))
	assert.Check(t, is.Equal(cond.Else[0].(*CallStmt).Call.Func, OutputNewLine))

	loop := comp.Body[3].(*While)
	assert.Check(t, is.Equal(loop.Cond.Op, Ne))
	assert.Check(t, is.Len(loop.Body, 1))
}

func TestParseOptionalParts(t *testing.T) {
	comp, err := Parse(`main { if 1 < 2 then fi; call OutputNewLine() }.`)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(comp.Body, 2))

	cond := comp.Body[0].(*If)
	assert.Check(t, cond.Else == nil)
	assert.Check(t, is.Len(cond.Then, 0))

	comp, err = Parse(`main { }.`)
	assert.NilError(t, err)
	assert.Check(t, is.Len(comp.Body, 0))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		pos  Pos
		msg  string
	}{
		{
			name: "missing period",
			src:  "main { }",
			pos:  Pos{Line: 1, Col: 9},
			msg:  "expected '.' after main body",
		},
		{
			name: "duplicate declaration",
			src:  "main var x, x; { }.",
			pos:  Pos{Line: 1, Col: 13},
			msg:  "x is already declared",
		},
		{
			name: "zero dimension",
			src:  "main array[0] a; { }.",
			pos:  Pos{Line: 1, Col: 12},
			msg:  "array dimension must be positive",
		},
		{
			name: "user function",
			src:  "main { call foo() }.",
			pos:  Pos{Line: 1, Col: 13},
			msg:  "unknown function foo: user-defined functions are not supported",
		},
		{
			name: "function declaration",
			src:  "main function f(); { }; { }.",
			pos:  Pos{Line: 1, Col: 6},
			msg:  "user-defined functions are not supported",
		},
		{
			name: "wrong arity",
			src:  "main { call OutputNum(1, 2) }.",
			pos:  Pos{Line: 1, Col: 13},
			msg:  "OutputNum takes 1 argument(s), got 2",
		},
		{
			name: "keyword as identifier",
			src:  "main var od; { }.",
			pos:  Pos{Line: 1, Col: 10},
			msg:  `keyword "od" cannot be used as an identifier`,
		},
		{
			name: "return outside function",
			src:  "main { return }.",
			pos:  Pos{Line: 1, Col: 8},
			msg:  "return is only valid in a function body",
		},
		{
			name: "lexical error",
			src:  "main { let x = 1 }.",
			pos:  Pos{Line: 1, Col: 14},
			msg:  "'=' is not an operator, did you mean '==' or '<-'",
		},
		{
			name: "missing relation",
			src:  "main var x; { if x then fi }.",
			pos:  Pos{Line: 1, Col: 20},
			msg:  "expected relational operator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			var serr *SyntaxError
			assert.Assert(t, errors.As(err, &serr), "got %v", err)
			assert.Check(t, is.Equal(serr.Pos, tt.pos))
			assert.Check(t, is.Equal(serr.Msg, tt.msg))
		})
	}
}
