package ssa

import (
	"github.com/containerd/errdefs"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/ir"
	"github.com/GriffinCanCode/smplc/pkg/logger"
)

// joinContext collects the variables assigned while an if or while
// construct is open. Assignments are recorded in every open context, so an
// enclosing construct sees what its nested ones touched.
type joinContext struct {
	kind    ir.JoinKind
	touched mapset.Set[string]
}

// OpenJoin starts tracking assignments for a construct of the given kind.
// Opening a loop starts a new memory epoch for every array: a load inside
// the loop may observe stores from the previous iteration.
func (b *Builder) OpenJoin(kind ir.JoinKind) {
	if kind == ir.JoinWhile {
		for name := range b.arrays {
			b.epochs[name]++
		}
	}
	b.contexts = append(b.contexts, &joinContext{
		kind:    kind,
		touched: mapset.NewThreadUnsafeSet[string](),
	})
}

func (b *Builder) closeJoin(loop bool) (*joinContext, error) {
	if len(b.contexts) == 0 {
		return nil, errors.Wrap(errdefs.ErrFailedPrecondition, "no open join context")
	}
	ctx := b.contexts[len(b.contexts)-1]
	if (ctx.kind == ir.JoinWhile) != loop {
		return nil, errors.Wrapf(errdefs.ErrFailedPrecondition, "innermost join context is %s", ctx.kind)
	}
	b.contexts = b.contexts[:len(b.contexts)-1]
	return ctx, nil
}

// resolver supplies the value of a variable at the bottom of a join's
// parent. Construction reads the current state; loop fixup replays it.
type resolver interface {
	atEnd(blk *Block, name string) Value
	peek(blk *Block, name string) (ir.InstID, bool)
	retire(phi, value ir.InstID)
}

type lookupResolver struct{ b *Builder }

func (r lookupResolver) atEnd(blk *Block, name string) Value {
	v, _ := r.b.lookup(blk.ID, name, diagJoin)
	return v
}

func (r lookupResolver) peek(blk *Block, name string) (ir.InstID, bool) {
	if v := r.b.visible(blk, name, len(blk.slots)); v != nil {
		return v.Inst, true
	}
	return ir.NoInst, false
}

func (lookupResolver) retire(ir.InstID, ir.InstID) {}

// ReconcileIf closes the innermost if context and places phis at join for
// every variable assigned inside it.
func (b *Builder) ReconcileIf(join ir.BlockID) error {
	blk, err := b.block(join)
	if err != nil {
		return err
	}
	if blk.Join != ir.JoinIfThen && blk.Join != ir.JoinIfElse {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "block %d is not an if join", join)
	}
	if len(blk.Parents) != 2 {
		return errors.Wrapf(errdefs.ErrFailedPrecondition, "if join %d has %d parents", join, len(blk.Parents))
	}
	ctx, err := b.closeJoin(false)
	if err != nil {
		return err
	}
	r := lookupResolver{b}
	for _, name := range sortedNames(ctx.touched) {
		blk.joinVars.Add(name)
		b.reconcileVar(blk, name, r)
	}
	return nil
}

// PlacePhi reconciles name at join from explicit operand values, x for the
// first parent and y for the second. Equal operands leave no phi behind.
// It returns the value name holds at the top of join.
func (b *Builder) PlacePhi(join ir.BlockID, name string, x, y Value) (ir.InstID, error) {
	blk, err := b.block(join)
	if err != nil {
		return ir.NoInst, err
	}
	if blk.Join == ir.JoinNone || len(blk.Dominators) < 2 {
		return ir.NoInst, errors.Wrapf(errdefs.ErrInvalidArgument, "block %d is not a join", join)
	}
	if _, err := b.Instruction(x.ID); err != nil {
		return ir.NoInst, err
	}
	if _, err := b.Instruction(y.ID); err != nil {
		return ir.NoInst, err
	}
	blk.joinVars.Add(name)
	b.merge(blk, name, x, y, lookupResolver{b})
	if h := blk.head(name); h != nil {
		return h.Inst, nil
	}
	return x.ID, nil
}

func (b *Builder) reconcileVar(j *Block, name string, r resolver) bool {
	x := r.atEnd(b.blocks[j.Parents[0]], name)
	y := r.atEnd(b.blocks[j.Parents[1]], name)
	return b.merge(j, name, x, y, r)
}

// merge sets the head version of name at join j from the values arriving
// on its two edges and reports whether anything changed.
func (b *Builder) merge(j *Block, name string, x, y Value, r resolver) bool {
	head := j.head(name)
	if x.ID != y.ID {
		return b.setPhi(j, name, head, x, y)
	}

	if head == nil {
		if id, ok := r.peek(b.blocks[j.Dominators[1]], name); ok && id == x.ID {
			return false
		}
		head = &Version{Var: name, Number: j.nextVersion(name), Inst: x.ID, Block: j.ID, Src: x.Src, head: true}
		j.addVersion(j.leadingRun(b.insts), head)
		b.depend(head)
		return true
	}

	changed := head.Inst != x.ID
	if head.phi != ir.NoInst && b.insts[head.phi].Active {
		b.insts[head.phi].Active = false
		r.retire(head.phi, x.ID)
		logger.LogDeadPhi(b.log, int(j.ID), name, int(head.phi), int(x.ID))
		changed = true
	}
	head.Inst, head.Src = x.ID, x.Src
	if changed {
		b.depend(head)
	}
	return changed
}

func (b *Builder) setPhi(j *Block, name string, head *Version, x, y Value) bool {
	if head != nil && head.phi != ir.NoInst {
		in := b.insts[head.phi]
		xo, yo := operand(x), operand(y)
		changed := in.X != xo || in.Y != yo || !in.Active || head.Inst != in.ID
		in.X, in.Y = xo, yo
		in.Src = [2]*ir.Source{x.Src, y.Src}
		in.Active = true
		head.Inst = in.ID
		head.Src = ir.Result(ir.OpPhi, in.ID, nil, nil)
		if changed {
			b.depend(head)
			logger.LogPhi(b.log, int(j.ID), name, int(in.ID), int(x.ID), int(y.ID))
		}
		return changed
	}

	phi := b.emitPhi(j, x, y)
	if head == nil {
		head = &Version{Var: name, Number: j.nextVersion(name), Block: j.ID, head: true}
		j.addVersion(j.leadingRun(b.insts), head)
	}
	head.Inst, head.Src, head.phi = phi.ID, phi.Src, phi.ID
	b.depend(head)
	logger.LogPhi(b.log, int(j.ID), name, int(phi.ID), int(x.ID), int(y.ID))
	return true
}
