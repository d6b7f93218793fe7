package ssa

import (
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/ir"
	"github.com/GriffinCanCode/smplc/pkg/logger"
)

// deferral is a branch operand slot waiting for its target block.
type deferral struct {
	inst   ir.InstID
	slot   int
	target ir.BlockID
}

// DeferBranch marks operand slot of branch inst as targeting block target.
// The slot holds a pending reference until ResolveBranches runs.
func (b *Builder) DeferBranch(inst ir.InstID, slot int, target ir.BlockID) error {
	in, err := b.Instruction(inst)
	if err != nil {
		return err
	}
	if !in.Op.IsBranch() {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "instruction %d (%s) is not a branch", inst, in.Op)
	}
	if slot != 0 && slot != 1 {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "branch slot %d", slot)
	}
	if _, err := b.block(target); err != nil {
		return err
	}
	in.SetSlot(slot, ir.Pending(target))
	b.branches = append(b.branches, &deferral{inst: inst, slot: slot, target: target})
	return nil
}

// ResolveBranches points every deferred branch at the first active
// instruction of its target. A target with no instruction gets an empty
// placeholder, which the next instruction placed in that block replaces.
// Branches resolved earlier are resolved again, so splices and retired
// instructions at the top of a target are picked up.
func (b *Builder) ResolveBranches() error {
	for _, d := range b.branches {
		blk, err := b.block(d.target)
		if err != nil {
			return err
		}
		first := b.firstActive(blk)
		if first == ir.NoInst {
			in := b.place(blk, ir.OpEmpty, ir.Operand{}, ir.Operand{}, [2]*ir.Source{}, len(blk.slots))
			blk.placeholder = in.ID
			first = in.ID
		}
		b.insts[d.inst].SetSlot(d.slot, ir.Ref(first))
		logger.LogBackpatch(b.log, int(d.inst), d.slot, int(d.target), int(first))
	}
	return nil
}

func (b *Builder) firstActive(blk *Block) ir.InstID {
	for _, s := range blk.slots {
		if s.inst != ir.NoInst && b.insts[s.inst].Active {
			return s.inst
		}
	}
	return ir.NoInst
}

// Pending returns the branches whose target slot is still unresolved.
func (b *Builder) Pending() []ir.InstID {
	var ids []ir.InstID
	for _, d := range b.branches {
		if b.insts[d.inst].Slot(d.slot).IsPending() {
			ids = append(ids, d.inst)
		}
	}
	return ids
}
