package ssa

import (
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/ir"
	"github.com/GriffinCanCode/smplc/pkg/logger"
)

// Latest selects the most recent visible version in LookupVersion.
const Latest = -1

// Diagnostics raised when a variable falls back to the implicit zero.
const (
	diagRead = "read before assignment, using 0"
	diagJoin = "not assigned on every path into a join, using 0"
)

// Assign makes v the current value of name in block. Outside any if or
// while construct, re-assigning the value a variable already holds in the
// same block creates no version and only refreshes its provenance. Inside
// one, every assignment is a new version: loop fixup replays versions from
// their provenance at the position they were defined.
func (b *Builder) Assign(block ir.BlockID, name string, v Value) (*Version, error) {
	if block == EntryBlock {
		return nil, errors.Wrapf(ErrEntryAssignment, "assign %s", name)
	}
	blk, err := b.block(block)
	if err != nil {
		return nil, err
	}
	if _, err := b.Instruction(v.ID); err != nil {
		return nil, errors.Wrapf(err, "assign %s", name)
	}
	if cur := b.visible(blk, name, len(blk.slots)); cur != nil && cur.Block == block && cur.Inst == v.ID && len(b.contexts) == 0 {
		cur.Src, cur.History = v.Src, v.Src.History()
		b.depend(cur)
		return cur, nil
	}
	ver := &Version{
		Var:     name,
		Number:  blk.nextVersion(name),
		Inst:    v.ID,
		Block:   block,
		Src:     v.Src,
		History: v.Src.History(),
	}
	blk.addVersion(len(blk.slots), ver)
	b.depend(ver)
	b.touch(name)
	return ver, nil
}

// Lookup returns the value of name visible at the end of block. A variable
// with no definition on the dominator chain reads as zero.
func (b *Builder) Lookup(block ir.BlockID, name string) (Value, error) {
	return b.lookup(block, name, diagRead)
}

// lookup resolves name like Lookup. A fallback to the implicit zero raises
// diag unless it is empty.
func (b *Builder) lookup(block ir.BlockID, name string, diag string) (Value, error) {
	if block == EntryBlock {
		return Value{}, errors.Wrapf(ErrEntryAssignment, "lookup %s", name)
	}
	blk, err := b.block(block)
	if err != nil {
		return Value{}, err
	}
	v := b.visible(blk, name, len(blk.slots))
	if v == nil {
		v = b.implicitZero(blk, name, diag)
	}
	return Value{ID: v.Inst, Src: ir.Variable(name, v.Number, block, v.Inst)}, nil
}

// LookupVersion returns a specific version of name searching the dominator
// chain of block nearest first, or the visible one for Latest.
func (b *Builder) LookupVersion(block ir.BlockID, name string, version int) (*Version, error) {
	blk, err := b.block(block)
	if err != nil {
		return nil, err
	}
	if version == Latest {
		if v := b.visible(blk, name, len(blk.slots)); v != nil {
			return v, nil
		}
		return nil, errors.Wrapf(errdefs.ErrNotFound, "%s has no version visible in block %d", name, block)
	}
	for _, d := range blk.Dominators {
		for _, v := range b.blocks[d].vars[name] {
			if v.Number == version {
				return v, nil
			}
		}
	}
	return nil, errors.Wrapf(errdefs.ErrNotFound, "%s has no version %d visible in block %d", name, version, block)
}

// visible returns the version of name in effect at timeline position limit
// of blk: the latest one before limit in blk, else the latest one in the
// nearest dominator that has any.
func (b *Builder) visible(blk *Block, name string, limit int) *Version {
	return b.visibleFunc(blk, name, limit, func(v *Version) bool { return b.live(v.Inst) })
}

func (b *Builder) visibleFunc(blk *Block, name string, limit int, alive func(*Version) bool) *Version {
	for i, d := range blk.Dominators {
		db := b.blocks[d]
		recs := db.vars[name]
		for j := len(recs) - 1; j >= 0; j-- {
			v := recs[j]
			if i == 0 && limit < len(db.slots) && db.indexOfDef(v) >= limit {
				continue
			}
			if !alive(v) {
				continue
			}
			return v
		}
	}
	return nil
}

// implicitZero binds version 0 of name to the constant 0 at the end of the
// start block, so every block holding code sees it through its dominators
// and a loop header phi still sits between it and the loop body. The
// diagnostic names blk, where the read happened.
func (b *Builder) implicitZero(blk *Block, name string, diag string) *Version {
	start := b.blocks[StartBlock]
	z := b.Const(0)
	v := &Version{
		Var:    name,
		Number: 0,
		Inst:   z.ID,
		Block:  StartBlock,
		Src:    z.Src,
	}
	start.addVersion(len(start.slots), v)
	b.depend(v)
	if diag != "" {
		b.warn(blk.ID, name, diag)
		logger.LogImplicitZero(b.log, name, int(blk.ID))
	}
	return v
}

// depend records v on every instruction its value was computed from.
func (b *Builder) depend(v *Version) {
	ref := v.Ref()
	seen := make(map[ir.InstID]bool)
	for _, id := range append(append([]ir.InstID{}, v.History...), v.Inst) {
		if seen[id] || id <= ir.NoInst || int(id) >= len(b.insts) {
			continue
		}
		seen[id] = true
		in := b.insts[id]
		if !containsRef(in.Deps, ref) {
			in.Deps = append(in.Deps, ref)
		}
	}
}

func containsRef(refs []ir.VarRef, r ir.VarRef) bool {
	for _, x := range refs {
		if x == r {
			return true
		}
	}
	return false
}

func (b *Builder) touch(name string) {
	for _, c := range b.contexts {
		c.touched.Add(name)
	}
}
