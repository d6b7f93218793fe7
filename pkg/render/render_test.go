package render

import (
	"bytes"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/GriffinCanCode/smplc/pkg/frontend"
	"github.com/GriffinCanCode/smplc/pkg/logger"
	"github.com/GriffinCanCode/smplc/pkg/ssa"
)

const ifElse = `main var x; {
	let x <- 1;
	if x < 2 then let x <- 3 else let x <- 4 fi;
	call OutputNum(x)
}.`

func compile(t *testing.T, src string) *ssa.Program {
	t.Helper()
	comp, err := frontend.Parse(src)
	assert.NilError(t, err)
	prog, err := ssa.Build(comp, ssa.WithLogger(logger.Discard()))
	assert.NilError(t, err)
	return prog
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	assert.NilError(t, Text(&buf, compile(t, ifElse)))
	out := buf.String()

	assert.Check(t, is.Contains(out, "BB0 [entry] doms=[0] parents=[]"))
	assert.Check(t, is.Contains(out, "BB4 [join] join=if-else doms=[4 1 0] parents=[2 3]"))
	assert.Check(t, is.Contains(out, "  8: phi (5) (7)\n"))
	assert.Check(t, is.Contains(out, "  4: bge (3) (9)\n"))
	assert.Check(t, !strings.Contains(out, "warning:"))
}

func TestTextWarnings(t *testing.T) {
	var buf bytes.Buffer
	assert.NilError(t, Text(&buf, compile(t, `main var x; { call OutputNum(x) }.`)))
	assert.Check(t, is.Contains(buf.String(), "warning: BB1: x: read before assignment, using 0"))
}

func TestDot(t *testing.T) {
	var buf bytes.Buffer
	prog := compile(t, `main var x; {
		let x <- 0;
		while x < 5 do let x <- x + 1 od
	}.`)
	assert.NilError(t, Dot(&buf, prog))
	out := buf.String()

	assert.Check(t, strings.HasPrefix(out, "digraph ssa {\n"))
	assert.Check(t, strings.HasSuffix(out, "}\n"))
	assert.Check(t, is.Contains(out, `bb2 [label="{BB2 loop-header|8: phi (1) (10)|9: cmp (8) (2)|4: bge (9) (11)}"];`))
	assert.Check(t, is.Contains(out, `bb3 -> bb2 [label="back"];`))
	assert.Check(t, is.Contains(out, "bb2 -> bb4;"))
	assert.Check(t, is.Contains(out, "bb2 -> bb3 [style=dashed,color=blue];"))
}

func TestEscape(t *testing.T) {
	assert.Check(t, is.Equal(escape(`{a|b}<"c">`), `\{a\|b\}\<\"c\"\>`))
}
