package ssa

import (
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/ir"
)

// loadTag qualifies a load for value numbering.
type loadTag struct {
	array string
	epoch int
}

func operand(v Value) ir.Operand {
	if v.ID == ir.NoInst {
		return ir.Operand{}
	}
	return ir.Ref(v.ID)
}

// Const returns the pooled constant n. Constants live in the entry block
// and are shared by every block.
func (b *Builder) Const(n int) Value {
	pool := b.blocks[EntryBlock]
	lit := ir.Literal(n)
	for _, e := range pool.tables[ir.OpConst] {
		if e.x == lit && b.live(e.id) {
			return Value{ID: e.id, Src: ir.Immediate(n, e.id)}
		}
	}
	in := b.place(pool, ir.OpConst, lit, ir.Operand{}, [2]*ir.Source{}, len(pool.slots))
	pool.record(ir.OpConst, entry{id: in.ID, x: lit})
	return Value{ID: in.ID, Src: ir.Immediate(n, in.ID)}
}

// Emit produces op applied to x and y in block. Numbered opcodes are
// looked up along the block's dominator chain first; the returned flag
// reports that a commutative match was found with swapped operands.
func (b *Builder) Emit(block ir.BlockID, op ir.Opcode, x, y Value) (Value, bool, error) {
	blk, err := b.block(block)
	if err != nil {
		return Value{}, false, err
	}
	switch {
	case op == ir.OpConst:
		if x.Src == nil || x.Src.Kind != ir.SourceImmediate {
			return Value{}, false, errors.Wrap(errdefs.ErrInvalidArgument, "const needs a literal operand")
		}
		return b.Const(x.Src.Literal), false, nil
	case op == ir.OpPhi:
		return b.emitPhi(blk, x, y), false, nil
	case !op.Numbered():
		in := b.place(blk, op, operand(x), operand(y), [2]*ir.Source{x.Src, y.Src}, len(blk.slots))
		return Value{ID: in.ID, Src: ir.Result(op, in.ID, x.Src, y.Src)}, false, nil
	}
	v, swapped := b.number(blk, op, x, y, loadTag{}, len(blk.slots))
	return v, swapped, nil
}

// number returns an existing equivalent instruction visible before
// timeline position limit, or places a new one there.
func (b *Builder) number(blk *Block, op ir.Opcode, x, y Value, tag loadTag, limit int) (Value, bool) {
	xo, yo := operand(x), operand(y)
	if id, swapped, ok := b.find(blk, op, xo, yo, tag, limit); ok {
		return Value{ID: id, Src: b.result(op, id, x.Src, y.Src, tag)}, swapped
	}
	in := b.place(blk, op, xo, yo, [2]*ir.Source{x.Src, y.Src}, limit)
	e := entry{id: in.ID, x: xo, y: yo, array: tag.array, epoch: tag.epoch}
	blk.record(op, e)
	if op == ir.OpLoad {
		b.loads[in.ID] = e
	}
	return Value{ID: in.ID, Src: b.result(op, in.ID, x.Src, y.Src, tag)}, false
}

func (b *Builder) result(op ir.Opcode, id ir.InstID, x, y *ir.Source, tag loadTag) *ir.Source {
	s := ir.Result(op, id, x, y)
	s.Array, s.Epoch = tag.array, tag.epoch
	return s
}

// find searches the dominator chain of blk, nearest block first. In blk
// itself only instructions before timeline position limit are candidates.
func (b *Builder) find(blk *Block, op ir.Opcode, x, y ir.Operand, tag loadTag, limit int) (ir.InstID, bool, bool) {
	for i, d := range blk.Dominators {
		db := b.blocks[d]
		for _, e := range db.tables[op] {
			if !b.live(e.id) {
				continue
			}
			if i == 0 && limit < len(db.slots) && db.indexOf(e.id) >= limit {
				continue
			}
			if op == ir.OpLoad && (e.array != tag.array || e.epoch != tag.epoch) {
				continue
			}
			if e.x == x && e.y == y {
				return e.id, false, true
			}
			if op.IsCommutative() && e.x == y && e.y == x {
				return e.id, true, true
			}
		}
	}
	return ir.NoInst, false, false
}

// emitPhi always allocates: a phi belongs to its join, not to its operands.
// It goes after the phis already in the block and ahead of everything else.
func (b *Builder) emitPhi(blk *Block, x, y Value) Value {
	in := b.alloc(ir.OpPhi, blk.ID, operand(x), operand(y), [2]*ir.Source{x.Src, y.Src})
	blk.insertSlot(blk.leadingRun(b.insts), slot{inst: in.ID})
	blk.record(ir.OpPhi, entry{id: in.ID, x: in.X, y: in.Y})
	return Value{ID: in.ID, Src: ir.Result(ir.OpPhi, in.ID, nil, nil)}
}
