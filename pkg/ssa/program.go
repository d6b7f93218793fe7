package ssa

import (
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/ir"
)

// Program is a finished SSA graph.
type Program struct {
	Insts       []*ir.Instruction
	Blocks      []*Block
	Diagnostics []Diagnostic
}

// Instruction returns the instruction with the given id, or nil.
func (p *Program) Instruction(id ir.InstID) *ir.Instruction {
	if id <= ir.NoInst || int(id) > len(p.Insts) {
		return nil
	}
	return p.Insts[id-1]
}

// Order returns the active instructions of a block in emission order.
func (p *Program) Order(blk *Block) []*ir.Instruction {
	var out []*ir.Instruction
	for _, id := range blk.Order() {
		if in := p.Instruction(id); in != nil && in.Active {
			out = append(out, in)
		}
	}
	return out
}

// Active returns every active instruction, block by block.
func (p *Program) Active() []*ir.Instruction {
	var out []*ir.Instruction
	for _, blk := range p.Blocks {
		out = append(out, p.Order(blk)...)
	}
	return out
}

// Verify checks the structural invariants of a finished program and
// returns the first violation found.
func Verify(p *Program) error {
	owner := make(map[ir.InstID]ir.BlockID)
	pos := make(map[ir.InstID]int)
	for _, blk := range p.Blocks {
		if len(blk.Dominators) == 0 || blk.Dominators[0] != blk.ID {
			return errors.Errorf("block %d: dominator list must start with itself", blk.ID)
		}
		for _, c := range blk.Children {
			if int(c) >= len(p.Blocks) || !contains(p.Blocks[c].Parents, blk.ID) {
				return errors.Errorf("block %d: edge to %d has no matching parent entry", blk.ID, c)
			}
		}
		if blk.Join != ir.JoinNone && len(blk.Parents) != 2 {
			return errors.Errorf("join %d has %d parents", blk.ID, len(blk.Parents))
		}

		body := false
		for i, in := range p.Order(blk) {
			owner[in.ID] = blk.ID
			pos[in.ID] = i
			if in.Block != blk.ID {
				return errors.Errorf("instruction %d is listed in block %d but owned by %d", in.ID, blk.ID, in.Block)
			}
			if in.Op == ir.OpPhi {
				if body {
					return errors.Errorf("phi %d follows a non-phi in block %d", in.ID, blk.ID)
				}
				if blk.Join == ir.JoinNone {
					return errors.Errorf("phi %d in block %d which is not a join", in.ID, blk.ID)
				}
				continue
			}
			body = true
			if in.Op == ir.OpConst && blk.ID != EntryBlock {
				return errors.Errorf("const %d outside the entry block", in.ID)
			}
		}
	}

	for _, in := range p.Insts {
		if !in.Active {
			continue
		}
		for k := 0; k < 2; k++ {
			o := in.Slot(k)
			if o.IsPending() {
				return errors.Errorf("branch %d still targets %s", in.ID, o)
			}
			id, ok := o.Inst()
			if !ok {
				continue
			}
			ref := p.Instruction(id)
			if ref == nil || !ref.Active {
				return errors.Errorf("instruction %d refers to retired instruction %d", in.ID, id)
			}
			if in.IsTarget(k) || in.Op == ir.OpPhi {
				continue
			}
			home, ok := owner[id]
			if !ok || !contains(p.Blocks[in.Block].Dominators, home) {
				return errors.Errorf("instruction %d uses %d from block %d which does not dominate it", in.ID, id, home)
			}
			if home == in.Block && pos[id] >= pos[in.ID] {
				return errors.Errorf("instruction %d uses %d before its definition in block %d", in.ID, id, home)
			}
		}
		if in.Op.IsConditional() && (in.X.IsNone() || in.Y.IsNone()) {
			return errors.Errorf("branch %d is missing an operand", in.ID)
		}
		if in.Op == ir.OpBra && in.X.IsNone() {
			return errors.Errorf("branch %d has no target", in.ID)
		}
	}
	return nil
}

func contains(ids []ir.BlockID, id ir.BlockID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
