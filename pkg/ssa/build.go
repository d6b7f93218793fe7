// Package ssa - AST to SSA lowering
// Design: Single syntax-directed pass, the builder does all the bookkeeping
package ssa

import (
	"github.com/containerd/errdefs"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/frontend"
	"github.com/GriffinCanCode/smplc/pkg/ir"
)

// negated maps a relation to the branch taken when it does not hold.
var negated = map[frontend.RelOp]ir.Opcode{
	frontend.Lt: ir.OpBge,
	frontend.Le: ir.OpBgt,
	frontend.Gt: ir.OpBle,
	frontend.Ge: ir.OpBlt,
	frontend.Eq: ir.OpBne,
	frontend.Ne: ir.OpBeq,
}

var arithmetic = map[frontend.Operator]ir.Opcode{
	frontend.Add: ir.OpAdd,
	frontend.Sub: ir.OpSub,
	frontend.Mul: ir.OpMul,
	frontend.Div: ir.OpDiv,
}

type lowering struct {
	b        *Builder
	cur      ir.BlockID
	declared mapset.Set[string]
}

// Build lowers a parsed computation into SSA form.
func Build(comp *frontend.Computation, opts ...Option) (*Program, error) {
	b := New(opts...)
	l := &lowering{
		b:        b,
		cur:      StartBlock,
		declared: mapset.NewThreadUnsafeSet[string](),
	}
	b.log.Debug("Building SSA from AST", "vars", len(comp.Vars), "arrays", len(comp.Arrays), "statements", len(comp.Body))

	for _, d := range comp.Vars {
		l.declared.Add(d.Name)
	}
	for _, d := range comp.Arrays {
		if _, err := b.DeclareArray(d.Name, d.Dims); err != nil {
			return nil, errors.Wrapf(err, "%s", d.Pos)
		}
	}

	if err := l.statements(comp.Body); err != nil {
		b.log.Error("Failed to build SSA", "error", err)
		return nil, err
	}
	if _, _, err := b.Emit(l.cur, ir.OpEnd, Value{}, Value{}); err != nil {
		return nil, err
	}
	return b.Finish()
}

func (l *lowering) statements(stmts []frontend.Stmt) error {
	for _, stmt := range stmts {
		if err := l.statement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowering) statement(stmt frontend.Stmt) error {
	switch s := stmt.(type) {
	case *frontend.Assign:
		v, err := l.expression(s.Value)
		if err != nil {
			return err
		}
		return l.assign(s.Target, v)
	case *frontend.CallStmt:
		_, err := l.call(s.Call)
		return err
	case *frontend.If:
		return l.ifStatement(s)
	case *frontend.While:
		return l.whileStatement(s)
	default:
		return errors.Errorf("unsupported statement type: %T", stmt)
	}
}

func (l *lowering) assign(d *frontend.Designator, v Value) error {
	if len(d.Indices) > 0 {
		idx, err := l.indices(d)
		if err != nil {
			return err
		}
		return errors.Wrapf(l.b.StoreElement(l.cur, d.Name, idx, v), "%s", d.Pos)
	}
	if err := l.scalar(d); err != nil {
		return err
	}
	_, err := l.b.Assign(l.cur, d.Name, v)
	return errors.Wrapf(err, "%s", d.Pos)
}

// scalar checks that d names a variable usable without indices.
func (l *lowering) scalar(d *frontend.Designator) error {
	if _, err := l.b.Array(d.Name); err == nil {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "%s: array %s used without indices", d.Pos, d.Name)
	}
	if l.b.strict && !l.declared.Contains(d.Name) {
		return errors.Wrapf(errdefs.ErrNotFound, "%s: undeclared variable %s", d.Pos, d.Name)
	}
	return nil
}

func (l *lowering) ifStatement(s *frontend.If) error {
	branch, err := l.relation(s.Cond)
	if err != nil {
		return err
	}
	pre := l.cur
	doms, err := l.b.Dominators(pre)
	if err != nil {
		return err
	}
	kind := ir.JoinIfThen
	if s.Else != nil {
		kind = ir.JoinIfElse
	}
	l.b.OpenJoin(kind)

	then, err := l.b.NewBlock(BlockSpec{Kind: ir.BlockThen, Dominators: doms, Parents: []ir.BlockID{pre}})
	if err != nil {
		return err
	}
	l.cur = then
	if err := l.statements(s.Then); err != nil {
		return err
	}
	thenBottom := l.cur

	var join ir.BlockID
	if s.Else != nil {
		bra, _, err := l.b.Emit(thenBottom, ir.OpBra, Value{}, Value{})
		if err != nil {
			return err
		}
		els, err := l.b.NewBlock(BlockSpec{Kind: ir.BlockElse, Dominators: doms, Parents: []ir.BlockID{pre}})
		if err != nil {
			return err
		}
		if err := l.b.DeferBranch(branch, 1, els); err != nil {
			return err
		}
		l.cur = els
		if err := l.statements(s.Else); err != nil {
			return err
		}
		join, err = l.b.NewBlock(BlockSpec{
			Kind:       ir.BlockJoin,
			Join:       ir.JoinIfElse,
			Dominators: doms,
			Parents:    []ir.BlockID{thenBottom, l.cur},
		})
		if err != nil {
			return err
		}
		if err := l.b.DeferBranch(bra.ID, 0, join); err != nil {
			return err
		}
	} else {
		join, err = l.b.NewBlock(BlockSpec{
			Kind:       ir.BlockJoin,
			Join:       ir.JoinIfThen,
			Dominators: doms,
			Parents:    []ir.BlockID{thenBottom, pre},
		})
		if err != nil {
			return err
		}
		if err := l.b.DeferBranch(branch, 1, join); err != nil {
			return err
		}
	}

	if err := l.b.ReconcileIf(join); err != nil {
		return err
	}
	l.cur = join
	return l.b.ResolveBranches()
}

func (l *lowering) whileStatement(s *frontend.While) error {
	pre := l.cur
	doms, err := l.b.Dominators(pre)
	if err != nil {
		return err
	}
	l.b.OpenJoin(ir.JoinWhile)
	header, err := l.b.NewBlock(BlockSpec{
		Kind:       ir.BlockLoopHeader,
		Join:       ir.JoinWhile,
		Dominators: doms,
		Parents:    []ir.BlockID{pre},
	})
	if err != nil {
		return err
	}
	l.cur = header
	branch, err := l.relation(s.Cond)
	if err != nil {
		return err
	}

	hdoms, err := l.b.Dominators(header)
	if err != nil {
		return err
	}
	body, err := l.b.NewBlock(BlockSpec{Kind: ir.BlockLoopBody, Dominators: hdoms, Parents: []ir.BlockID{header}})
	if err != nil {
		return err
	}
	l.cur = body
	if err := l.statements(s.Body); err != nil {
		return err
	}
	bottom := l.cur
	bra, _, err := l.b.Emit(bottom, ir.OpBra, Value{}, Value{})
	if err != nil {
		return err
	}
	if err := l.b.DeferBranch(bra.ID, 0, header); err != nil {
		return err
	}

	exit, err := l.b.ReconcileWhile(header, bottom, branch)
	if err != nil {
		return err
	}
	l.cur = exit
	return l.b.ResolveBranches()
}

// relation emits the comparison and the branch taken when it is false.
// The branch target is filled in by the caller.
func (l *lowering) relation(r *frontend.Relation) (ir.InstID, error) {
	x, err := l.expression(r.Left)
	if err != nil {
		return ir.NoInst, err
	}
	y, err := l.expression(r.Right)
	if err != nil {
		return ir.NoInst, err
	}
	c, _, err := l.b.Emit(l.cur, ir.OpCmp, x, y)
	if err != nil {
		return ir.NoInst, err
	}
	br, _, err := l.b.Emit(l.cur, negated[r.Op], c, Value{})
	if err != nil {
		return ir.NoInst, err
	}
	return br.ID, nil
}

func (l *lowering) expression(expr frontend.Expr) (Value, error) {
	switch e := expr.(type) {
	case *frontend.Num:
		return l.b.Const(e.Value), nil

	case *frontend.Designator:
		if len(e.Indices) > 0 {
			idx, err := l.indices(e)
			if err != nil {
				return Value{}, err
			}
			v, err := l.b.LoadElement(l.cur, e.Name, idx)
			return v, errors.Wrapf(err, "%s", e.Pos)
		}
		if err := l.scalar(e); err != nil {
			return Value{}, err
		}
		return l.b.Lookup(l.cur, e.Name)

	case *frontend.BinOp:
		x, err := l.expression(e.Left)
		if err != nil {
			return Value{}, err
		}
		y, err := l.expression(e.Right)
		if err != nil {
			return Value{}, err
		}
		v, _, err := l.b.Emit(l.cur, arithmetic[e.Op], x, y)
		return v, err

	case *frontend.Call:
		return l.call(e)

	default:
		return Value{}, errors.Errorf("unsupported expression type: %T", expr)
	}
}

func (l *lowering) indices(d *frontend.Designator) ([]Value, error) {
	idx := make([]Value, 0, len(d.Indices))
	for _, e := range d.Indices {
		v, err := l.expression(e)
		if err != nil {
			return nil, err
		}
		idx = append(idx, v)
	}
	return idx, nil
}

func (l *lowering) call(c *frontend.Call) (Value, error) {
	switch c.Func {
	case frontend.InputNum:
		v, _, err := l.b.Emit(l.cur, ir.OpRead, Value{}, Value{})
		return v, err
	case frontend.OutputNum:
		arg, err := l.expression(c.Args[0])
		if err != nil {
			return Value{}, err
		}
		v, _, err := l.b.Emit(l.cur, ir.OpWrite, arg, Value{})
		return v, err
	case frontend.OutputNewLine:
		v, _, err := l.b.Emit(l.cur, ir.OpWriteNL, Value{}, Value{})
		return v, err
	}
	return Value{}, errors.Errorf("%s: unsupported function %s", c.Pos, c.Func)
}
