package ssa

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
	"pgregory.net/rapid"

	"github.com/GriffinCanCode/smplc/pkg/frontend"
	"github.com/GriffinCanCode/smplc/pkg/ir"
	"github.com/GriffinCanCode/smplc/pkg/logger"
)

const fuel = 100000

// execute runs a finished program from the start block and returns the
// numbers it writes. Phis take the operand of the edge just followed.
func execute(p *Program) ([]int, error) {
	vals := make(map[ir.InstID]int)
	for _, in := range p.Order(p.Blocks[EntryBlock]) {
		vals[in.ID] = in.X.Value
	}
	read := func(o ir.Operand) (int, error) {
		if o.Kind == ir.OperandConst {
			return o.Value, nil
		}
		id, ok := o.Inst()
		if !ok {
			return 0, errors.Errorf("operand %s holds no value", o)
		}
		v, ok := vals[id]
		if !ok {
			return 0, errors.Errorf("(%d) read before it was computed", id)
		}
		return v, nil
	}
	target := func(o ir.Operand) (ir.BlockID, error) {
		id, ok := o.Inst()
		if in := p.Instruction(id); ok && in != nil {
			return in.Block, nil
		}
		return ir.NoBlock, errors.Errorf("bad branch target %s", o)
	}

	var out []int
	prev, cur := EntryBlock, StartBlock
	for steps := 0; steps < fuel; steps++ {
		blk := p.Blocks[cur]
		order := p.Order(blk)

		edge := slices.Index(blk.Parents, prev)
		phis := make(map[ir.InstID]int)
		for _, in := range order {
			if in.Op != ir.OpPhi {
				break
			}
			if edge < 0 || edge > 1 {
				return out, errors.Errorf("phi %d entered from BB%d", in.ID, prev)
			}
			v, err := read(in.Slot(edge))
			if err != nil {
				return out, err
			}
			phis[in.ID] = v
		}
		maps.Copy(vals, phis)

		next, skip := ir.NoBlock, ir.NoBlock
		for _, in := range order {
			switch {
			case in.Op == ir.OpPhi, in.Op == ir.OpWriteNL, in.Op == ir.OpEmpty, in.Op == ir.OpNop:
			case in.Op == ir.OpEnd:
				return out, nil
			case in.Op == ir.OpWrite:
				v, err := read(in.X)
				if err != nil {
					return out, err
				}
				out = append(out, v)
			case in.Op == ir.OpBra:
				to, err := target(in.X)
				if err != nil {
					return out, err
				}
				next = to
			case in.Op.IsConditional():
				c, err := read(in.X)
				if err != nil {
					return out, err
				}
				to, err := target(in.Y)
				if err != nil {
					return out, err
				}
				skip = to
				if holds(in.Op, c) {
					next = to
				}
			case in.Op.Arithmetic():
				x, err := read(in.X)
				if err != nil {
					return out, err
				}
				y, err := read(in.Y)
				if err != nil {
					return out, err
				}
				if in.Op == ir.OpDiv && y == 0 {
					return out, errors.Errorf("%s divides by zero", in)
				}
				vals[in.ID] = arith(in.Op, x, y)
			default:
				return out, errors.Errorf("cannot execute %s", in)
			}
			if next != ir.NoBlock {
				break
			}
		}

		if next == ir.NoBlock {
			for _, c := range blk.Children {
				if c != skip {
					next = c
					break
				}
			}
		}
		if next == ir.NoBlock {
			return out, errors.Errorf("BB%d has no successor", cur)
		}
		prev, cur = cur, next
	}
	return out, errors.New("out of fuel")
}

func arith(op ir.Opcode, x, y int) int {
	switch op {
	case ir.OpAdd, ir.OpAdda:
		return x + y
	case ir.OpSub:
		return x - y
	case ir.OpMul:
		return x * y
	case ir.OpDiv:
		return x / y
	case ir.OpCmp:
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func holds(op ir.Opcode, c int) bool {
	switch op {
	case ir.OpBeq:
		return c == 0
	case ir.OpBne:
		return c != 0
	case ir.OpBlt:
		return c < 0
	case ir.OpBle:
		return c <= 0
	case ir.OpBgt:
		return c > 0
	case ir.OpBge:
		return c >= 0
	}
	return false
}

// evaluator runs a computation directly on its syntax tree. Variables
// that were never assigned read as zero.
type evaluator struct {
	vars  map[string]int
	out   []int
	steps int
}

func evaluate(comp *frontend.Computation) ([]int, error) {
	e := &evaluator{vars: make(map[string]int)}
	err := e.stmts(comp.Body)
	return e.out, err
}

func (e *evaluator) stmts(list []frontend.Stmt) error {
	for _, s := range list {
		if err := e.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *evaluator) stmt(stmt frontend.Stmt) error {
	switch s := stmt.(type) {
	case *frontend.Assign:
		e.vars[s.Target.Name] = e.expr(s.Value)
	case *frontend.CallStmt:
		e.expr(s.Call)
	case *frontend.If:
		if e.relation(s.Cond) {
			return e.stmts(s.Then)
		}
		return e.stmts(s.Else)
	case *frontend.While:
		for e.relation(s.Cond) {
			if e.steps++; e.steps > fuel {
				return errors.New("out of fuel")
			}
			if err := e.stmts(s.Body); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("unsupported statement %T", stmt)
	}
	return nil
}

func (e *evaluator) expr(expr frontend.Expr) int {
	switch x := expr.(type) {
	case *frontend.Num:
		return x.Value
	case *frontend.Designator:
		return e.vars[x.Name]
	case *frontend.BinOp:
		l, r := e.expr(x.Left), e.expr(x.Right)
		switch x.Op {
		case frontend.Add:
			return l + r
		case frontend.Sub:
			return l - r
		case frontend.Mul:
			return l * r
		case frontend.Div:
			if r != 0 {
				return l / r
			}
		}
	case *frontend.Call:
		if x.Func == frontend.OutputNum {
			e.out = append(e.out, e.expr(x.Args[0]))
		}
	}
	return 0
}

func (e *evaluator) relation(r *frontend.Relation) bool {
	l, rv := e.expr(r.Left), e.expr(r.Right)
	switch r.Op {
	case frontend.Eq:
		return l == rv
	case frontend.Ne:
		return l != rv
	case frontend.Lt:
		return l < rv
	case frontend.Le:
		return l <= rv
	case frontend.Gt:
		return l > rv
	}
	return l >= rv
}

// compareRuns builds src, runs the graph and the syntax tree, and returns
// both outputs.
func compareRuns(src string) (got, want []int, err error) {
	comp, err := frontend.Parse(src)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse")
	}
	want, err = evaluate(comp)
	if err != nil {
		return nil, nil, errors.Wrap(err, "evaluate")
	}
	prog, err := Build(comp, WithLogger(logger.Discard()))
	if err != nil {
		return nil, want, errors.Wrap(err, "build")
	}
	if err := Verify(prog); err != nil {
		return nil, want, errors.Wrap(err, "verify")
	}
	got, err = execute(prog)
	return got, want, errors.Wrap(err, "execute")
}

func TestExecuteMatchesSyntaxTree(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []int
	}{
		{
			name: "if else",
			body: `let a <- 1; if a < 2 then let b <- 3 else let b <- 4 fi; call OutputNum(b)`,
			want: []int{3},
		},
		{
			name: "counting loop",
			body: `let a <- 0; while a < 5 do let a <- a + 1 od; call OutputNum(a)`,
			want: []int{5},
		},
		{
			name: "reassigning the held value in a loop",
			body: `let a <- 1; let c <- 3; let i <- 0;
				while i < 2 do let c <- a; let a <- 0; let c <- 1; let i <- i + 1 od;
				call OutputNum(c); call OutputNum(a)`,
			want: []int{1, 0},
		},
		{
			name: "implicit zero carried by a loop",
			body: `let i <- 0; while i < 3 do let a <- a + 1; let i <- i + 1 od; call OutputNum(a)`,
			want: []int{3},
		},
		{
			name: "implicit zero carried through an if in a loop",
			body: `let i <- 0;
				while i < 3 do if i > 0 then let a <- a + 2 fi; let a <- a + 1; let i <- i + 1 od;
				call OutputNum(a)`,
			want: []int{7},
		},
		{
			name: "sibling assignment is invisible",
			body: `let c <- 5; if c < 2 then let x <- 3 else let x <- x + 5 fi; call OutputNum(x)`,
			want: []int{5},
		},
		{
			name: "nested loops",
			body: `let i <- 0; let s <- 0;
				while i < 3 do
					let j <- 0;
					while j < i do let s <- s + j; let j <- j + 1 od;
					let i <- i + 1
				od;
				call OutputNum(s); call OutputNum(j)`,
			want: []int{1, 2},
		},
		{
			name: "swap through a temporary",
			body: `let a <- 1; let b <- 2; let i <- 0;
				while i < 3 do let t <- a; let a <- b; let b <- t; let i <- i + 1 od;
				call OutputNum(a); call OutputNum(b)`,
			want: []int{2, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "main var a, b, c, i, j, s, t, x; {\n" + tt.body + "\n}."
			got, want, err := compareRuns(src)
			assert.NilError(t, err)
			if diff := cmp.Diff(tt.want, want); diff != "" {
				t.Fatalf("syntax tree output mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("graph output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

var (
	genVars   = []string{"a", "b", "c", "d"}
	genReads  = []string{"a", "b", "c", "d", "i0", "i1", "i2"}
	genRelOps = []string{"==", "!=", "<", "<=", ">", ">="}
	genOps    = []string{"+", "-", "*"}
)

// progGen draws random smpl programs. Loop counters i0..i2 are only
// assigned by the loop that owns them, so every program terminates.
type progGen struct {
	t     *rapid.T
	loops int
}

func (g *progGen) program() string {
	var sb strings.Builder
	sb.WriteString("main var a, b, c, d, i0, i1, i2; {\n")
	sb.WriteString(g.stmts(0))
	for _, v := range genVars {
		fmt.Fprintf(&sb, ";\ncall OutputNum(%s)", v)
	}
	sb.WriteString("\n}.")
	return sb.String()
}

func (g *progGen) stmts(depth int) string {
	n := rapid.IntRange(1, 4).Draw(g.t, "statements")
	parts := make([]string, n)
	for i := range parts {
		parts[i] = g.stmt(depth)
	}
	return strings.Join(parts, ";\n")
}

func (g *progGen) stmt(depth int) string {
	kind := rapid.IntRange(0, 9).Draw(g.t, "kind")
	if depth >= 3 && kind >= 6 {
		kind = 0
	}
	switch {
	case kind == 5:
		return fmt.Sprintf("call OutputNum(%s)", g.expr(0))
	case kind == 6 || kind == 7:
		s := fmt.Sprintf("if %s then\n%s", g.relation(), g.stmts(depth+1))
		if rapid.Bool().Draw(g.t, "else") {
			s += "\nelse\n" + g.stmts(depth+1)
		}
		return s + "\nfi"
	case kind >= 8 && g.loops < 3:
		c := fmt.Sprintf("i%d", g.loops)
		bound := rapid.IntRange(0, 3).Draw(g.t, "bound")
		g.loops++
		body := g.stmts(depth + 1)
		g.loops--
		return fmt.Sprintf("let %s <- 0;\nwhile %s < %d do\n%s;\nlet %s <- %s + 1\nod", c, c, bound, body, c, c)
	}
	v := rapid.SampledFrom(genVars).Draw(g.t, "target")
	return fmt.Sprintf("let %s <- %s", v, g.expr(0))
}

func (g *progGen) expr(depth int) string {
	kinds := 2
	if depth >= 2 {
		kinds = 1
	}
	switch rapid.IntRange(0, kinds).Draw(g.t, "expr") {
	case 0:
		return fmt.Sprint(rapid.IntRange(0, 5).Draw(g.t, "num"))
	case 1:
		return rapid.SampledFrom(genReads).Draw(g.t, "var")
	}
	op := rapid.SampledFrom(genOps).Draw(g.t, "op")
	return fmt.Sprintf("(%s %s %s)", g.expr(depth+1), op, g.expr(depth+1))
}

func (g *progGen) relation() string {
	op := rapid.SampledFrom(genRelOps).Draw(g.t, "relop")
	return fmt.Sprintf("%s %s %s", g.expr(1), op, g.expr(1))
}

func TestPropExecutionMatchesSyntaxTree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		src := (&progGen{t: t}).program()
		got, want, err := compareRuns(src)
		if err != nil {
			t.Fatalf("%v\n%s", err, src)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("graph output differs from the syntax tree (-tree +graph):\n%s\n%s", diff, src)
		}
	})
}
