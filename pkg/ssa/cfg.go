package ssa

import (
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/ir"
)

// BlockSpec describes a block to create. Dominators is the dominator list
// of the block the parser is creating it from, nearest first; the source
// language only has structured control flow, so that list plus the new
// block itself is exact.
type BlockSpec struct {
	Kind       ir.BlockKind
	Join       ir.JoinKind
	Dominators []ir.BlockID
	Parents    []ir.BlockID
}

// NewBlock creates a block and wires it to its parents.
func (b *Builder) NewBlock(spec BlockSpec) (ir.BlockID, error) {
	if len(spec.Dominators) == 0 {
		return ir.NoBlock, errors.Wrap(errdefs.ErrInvalidArgument, "new block needs a dominator list")
	}
	for _, d := range spec.Dominators {
		if _, err := b.block(d); err != nil {
			return ir.NoBlock, err
		}
	}
	parents := make([]*Block, 0, len(spec.Parents))
	for _, p := range spec.Parents {
		pb, err := b.block(p)
		if err != nil {
			return ir.NoBlock, err
		}
		parents = append(parents, pb)
	}

	id := ir.BlockID(len(b.blocks))
	blk := newBlock(id, spec.Kind, spec.Join)
	blk.Dominators = append([]ir.BlockID{id}, spec.Dominators...)
	b.blocks = append(b.blocks, blk)
	for _, p := range parents {
		b.link(p, blk)
	}
	return id, nil
}

// Link adds the CFG edge parent -> child. Duplicate edges are ignored.
func (b *Builder) Link(parent, child ir.BlockID) error {
	p, err := b.block(parent)
	if err != nil {
		return err
	}
	c, err := b.block(child)
	if err != nil {
		return err
	}
	b.link(p, c)
	return nil
}

func (b *Builder) link(p, c *Block) {
	p.addChild(c.ID)
	c.addParent(p.ID)
}

// Dominators returns the dominator list of block, itself first.
func (b *Builder) Dominators(block ir.BlockID) ([]ir.BlockID, error) {
	blk, err := b.block(block)
	if err != nil {
		return nil, err
	}
	return append([]ir.BlockID(nil), blk.Dominators...), nil
}
