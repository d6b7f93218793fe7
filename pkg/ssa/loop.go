package ssa

import (
	"github.com/containerd/errdefs"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/ir"
	"github.com/GriffinCanCode/smplc/pkg/logger"
)

// ReconcileWhile closes the innermost while context. It adds the back edge
// from bodyBottom to header, places the header phis, repairs every use
// inside the loop that read a pre-loop value, and creates the exit block.
// exitBranch, the header's conditional branch, is deferred to the exit.
func (b *Builder) ReconcileWhile(header, bodyBottom ir.BlockID, exitBranch ir.InstID) (ir.BlockID, error) {
	hdr, err := b.block(header)
	if err != nil {
		return ir.NoBlock, err
	}
	bottom, err := b.block(bodyBottom)
	if err != nil {
		return ir.NoBlock, err
	}
	if hdr.Join != ir.JoinWhile {
		return ir.NoBlock, errors.Wrapf(errdefs.ErrInvalidArgument, "block %d is not a loop header", header)
	}
	ctx, err := b.closeJoin(true)
	if err != nil {
		return ir.NoBlock, err
	}
	b.link(bottom, hdr)
	if len(hdr.Parents) != 2 {
		return ir.NoBlock, errors.Wrapf(errdefs.ErrFailedPrecondition, "loop header %d has %d parents", header, len(hdr.Parents))
	}

	r := lookupResolver{b}
	for _, name := range sortedNames(ctx.touched) {
		hdr.joinVars.Add(name)
		b.reconcileVar(hdr, name, r)
	}
	newFixup(b, hdr).run()

	exit, err := b.NewBlock(BlockSpec{
		Kind:       ir.BlockExit,
		Dominators: hdr.Dominators,
		Parents:    []ir.BlockID{header},
	})
	if err != nil {
		return ir.NoBlock, err
	}
	if exitBranch != ir.NoInst {
		in, err := b.Instruction(exitBranch)
		if err != nil {
			return ir.NoBlock, err
		}
		k := 0
		if in.Op.IsConditional() {
			k = 1
		}
		if err := b.DeferBranch(exitBranch, k, exit); err != nil {
			return ir.NoBlock, err
		}
	}
	return exit, nil
}

// site is a position in a block's timeline, anchored to an instruction or a
// version marker so that it follows them when instructions are spliced in
// ahead. A site with neither anchor is the end of the block.
type site struct {
	blk  *Block
	inst ir.InstID
	def  *Version
}

func endOf(blk *Block) site { return site{blk: blk} }

func (s site) limit() int {
	switch {
	case s.inst != ir.NoInst:
		return s.blk.indexOf(s.inst)
	case s.def != nil:
		return s.blk.indexOfDef(s.def)
	}
	return len(s.blk.slots)
}

// fixup re-resolves a finished loop against its header phis.
//
// Every operand and every version carries the provenance it was parsed
// from. A round replays all of them at their current position: operands
// that now resolve differently are rewritten in place when the instruction
// has side effects, and otherwise a corrected instruction is found by value
// numbering or spliced right after the stale one. Joins inside the loop are
// then reconciled again. Rounds repeat until no join changes.
type fixup struct {
	b      *Builder
	header *Block
	order  []*Block
	loop   mapset.Set[ir.BlockID]

	subst   map[ir.InstID]ir.InstID
	memo    map[*Version]ir.InstID
	spliced int
	rounds  int
}

func newFixup(b *Builder, hdr *Block) *fixup {
	f := &fixup{
		b:      b,
		header: hdr,
		loop:   mapset.NewThreadUnsafeSet(hdr.ID),
		subst:  make(map[ir.InstID]ir.InstID),
	}
	queue := []*Block{hdr}
	for len(queue) > 0 {
		blk := queue[0]
		queue = queue[1:]
		f.order = append(f.order, blk)
		for _, c := range blk.Children {
			if f.loop.Contains(c) {
				continue
			}
			f.loop.Add(c)
			queue = append(queue, b.blocks[c])
		}
	}
	return f
}

func (f *fixup) run() {
	limit := 2*len(f.order) + 4
	for {
		f.rounds++
		f.memo = make(map[*Version]ir.InstID)
		for _, blk := range f.order {
			f.rewrite(blk)
		}

		changed := false
		f.memo = make(map[*Version]ir.InstID)
		for _, blk := range f.order {
			if blk.Join == ir.JoinNone {
				continue
			}
			for _, name := range blk.JoinVariables() {
				if f.b.reconcileVar(blk, name, f) {
					changed = true
					f.memo = make(map[*Version]ir.InstID)
				}
			}
		}
		if !changed {
			break
		}
		if f.rounds >= limit {
			f.b.log.Warn("loop fixup did not converge", "header", f.header.ID, "rounds", f.rounds)
			break
		}
	}
	f.replay()
	f.retireStale()
	logger.LogLoopFixup(f.b.log, int(f.header.ID), len(f.order), f.spliced, f.rounds)
}

// chase follows substitutions to the instruction currently standing in for id.
func (f *fixup) chase(id ir.InstID) ir.InstID {
	for i := 0; i <= len(f.subst); i++ {
		next, ok := f.subst[id]
		if !ok || next == id {
			return id
		}
		id = next
	}
	return id
}

func (f *fixup) visible(at site, name string) *Version {
	return f.b.visibleFunc(at.blk, name, at.limit(), func(v *Version) bool {
		return f.b.live(f.chase(v.Inst))
	})
}

// value is the instruction version v stands for after replay.
func (f *fixup) value(v *Version) ir.InstID {
	if id, ok := f.memo[v]; ok {
		return id
	}
	id := f.chase(v.Inst)
	f.memo[v] = id
	if !v.head && v.Src != nil && f.loop.Contains(v.Block) {
		id = f.resolve(v.Src, site{blk: f.b.blocks[v.Block], def: v})
		f.memo[v] = id
	}
	return id
}

func (f *fixup) resolve(s *ir.Source, at site) ir.InstID {
	switch s.Kind {
	case ir.SourceImmediate:
		if s.Inst == ir.NoInst {
			return f.b.Const(s.Literal).ID
		}
		return f.chase(s.Inst)
	case ir.SourceVariable:
		if s.Block != at.blk.ID {
			at = endOf(f.b.blocks[s.Block])
		}
		if v := f.visible(at, s.Var); v != nil {
			return f.value(v)
		}
		return f.chase(s.Inst)
	case ir.SourceResult:
		if s.Replayable() {
			return f.recompute(s, at)
		}
	}
	return f.chase(s.Inst)
}

// recompute evaluates a result node at a site, reusing the instruction it
// produced originally when the operands still agree.
func (f *fixup) recompute(s *ir.Source, at site) ir.InstID {
	orig := f.b.insts[s.Inst]
	var vals [2]Value
	for k := 0; k < 2; k++ {
		if s.Args[k] == nil {
			id, _ := orig.Slot(k).Inst()
			vals[k] = Value{ID: id}
			continue
		}
		vals[k] = Value{ID: f.resolve(s.Args[k], at), Src: s.Args[k]}
	}
	if cur := f.b.insts[f.chase(s.Inst)]; cur.Active && cur.Op == s.Op && sameOperands(cur, vals) {
		return cur.ID
	}
	n := len(f.b.insts)
	v, _ := f.b.number(at.blk, s.Op, vals[0], vals[1], loadTag{array: s.Array, epoch: s.Epoch}, at.limit())
	if int(v.ID) >= n {
		f.spliced++
	}
	return v.ID
}

func sameOperands(in *ir.Instruction, vals [2]Value) bool {
	x, y := operand(vals[0]), operand(vals[1])
	if in.X == x && in.Y == y {
		return true
	}
	return in.Op.IsCommutative() && in.X == y && in.Y == x
}

// rewrite re-resolves the operands of every instruction in blk.
func (f *fixup) rewrite(blk *Block) {
	for _, id := range blk.Order() {
		in := f.b.insts[id]
		if !in.Active || in.Op == ir.OpPhi || in.Op == ir.OpConst {
			continue
		}
		if _, done := f.subst[id]; done {
			continue
		}
		at := site{blk: blk, inst: id}
		ops := [2]ir.Operand{in.X, in.Y}
		changed := false
		for k := 0; k < 2; k++ {
			ref, ok := ops[k].Inst()
			if !ok || in.IsTarget(k) {
				continue
			}
			next := f.chase(ref)
			if in.Src[k] != nil {
				next = f.resolve(in.Src[k], at)
			}
			if next != ref {
				ops[k] = ir.Ref(next)
				changed = true
			}
		}
		if !changed {
			continue
		}
		if !in.Op.Numbered() {
			in.X, in.Y = ops[0], ops[1]
			continue
		}

		tag := loadTag{}
		if e, ok := f.b.loads[id]; ok {
			tag = loadTag{array: e.array, epoch: e.epoch}
		}
		pos := at.limit()
		if found, _, ok := f.b.find(blk, in.Op, ops[0], ops[1], tag, pos); ok {
			f.subst[id] = found
			continue
		}
		nin := f.b.place(blk, in.Op, ops[0], ops[1], in.Src, pos+1)
		e := entry{id: nin.ID, x: ops[0], y: ops[1], array: tag.array, epoch: tag.epoch}
		blk.record(in.Op, e)
		if in.Op == ir.OpLoad {
			f.b.loads[nin.ID] = e
		}
		f.subst[id] = nin.ID
		f.spliced++
	}
}

// atEnd, peek and retire let reconcileVar run against replayed values.
func (f *fixup) atEnd(blk *Block, name string) Value {
	v := f.visible(endOf(blk), name)
	if v == nil {
		val, _ := f.b.lookup(blk.ID, name, "")
		return val
	}
	id := f.value(v)
	return Value{ID: id, Src: ir.Variable(name, v.Number, blk.ID, id)}
}

func (f *fixup) peek(blk *Block, name string) (ir.InstID, bool) {
	if v := f.visible(endOf(blk), name); v != nil {
		return f.value(v), true
	}
	return ir.NoInst, false
}

func (f *fixup) retire(phi, value ir.InstID) {
	f.subst[phi] = value
}

// replay points every version defined in the loop at its corrected value,
// then does the same for versions outside the loop that depended on a
// superseded instruction.
func (f *fixup) replay() {
	f.memo = make(map[*Version]ir.InstID)
	for _, blk := range f.order {
		for _, name := range blk.Variables() {
			for _, v := range blk.vars[name] {
				id := f.chase(v.Inst)
				if !v.head {
					id = f.value(v)
				}
				f.rebind(v, id)
			}
		}
	}
	for old := range f.subst {
		for _, ref := range f.b.insts[old].Deps {
			if f.loop.Contains(ref.Block) {
				continue
			}
			for _, v := range f.b.blocks[ref.Block].vars[ref.Var] {
				if v.Number == ref.Version {
					f.rebind(v, f.chase(v.Inst))
				}
			}
		}
	}
}

func (f *fixup) rebind(v *Version, id ir.InstID) {
	hist := make([]ir.InstID, len(v.History))
	for i, h := range v.History {
		hist[i] = f.chase(h)
	}
	if len(hist) > 0 && v.Src.Replayable() {
		hist[len(hist)-1] = id
	}
	v.History = hist
	if id == v.Inst {
		return
	}
	v.Inst = id
	f.b.depend(v)
}

// retireStale deactivates superseded instructions nothing refers to anymore.
func (f *fixup) retireStale() {
	for {
		refs := make(map[ir.InstID]bool)
		for _, in := range f.b.insts[1:] {
			if !in.Active {
				continue
			}
			for k := 0; k < 2; k++ {
				if id, ok := in.Slot(k).Inst(); ok && !in.IsTarget(k) {
					refs[id] = true
				}
			}
		}
		for _, blk := range f.b.blocks {
			for _, recs := range blk.vars {
				for _, v := range recs {
					refs[v.Inst] = true
				}
			}
		}
		retired := false
		for old := range f.subst {
			if in := f.b.insts[old]; in.Active && !refs[old] {
				in.Active = false
				retired = true
			}
		}
		if !retired {
			return
		}
	}
}
