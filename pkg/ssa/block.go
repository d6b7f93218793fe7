package ssa

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/GriffinCanCode/smplc/pkg/ir"
)

// Block is a basic block of the control-flow graph.
//
// A block's timeline interleaves its instructions with the assignment
// markers of its variable versions, so "which version is visible at this
// instruction" is a question of relative position and survives splicing.
type Block struct {
	ID         ir.BlockID
	Kind       ir.BlockKind
	Join       ir.JoinKind
	Parents    []ir.BlockID
	Children   []ir.BlockID
	Dominators []ir.BlockID

	slots  []slot
	tables map[ir.Opcode][]entry
	vars   map[string][]*Version

	// variables reconciled at this join, replayed by enclosing loop fixups
	joinVars mapset.Set[string]
	// empty instruction synthesized as a branch target, reused by the next insertion
	placeholder ir.InstID
}

type slot struct {
	inst ir.InstID
	def  *Version
}

// entry is one value-numbering record.
type entry struct {
	id    ir.InstID
	x, y  ir.Operand
	array string
	epoch int
}

// Version is one SSA version of a variable, defined in Block.
type Version struct {
	Var     string
	Number  int
	Inst    ir.InstID
	Block   ir.BlockID
	Src     *ir.Source
	History []ir.InstID

	// head versions are the reconciled value of a join, ahead of everything else
	head bool
	// phi last synthesized for a head, kept after the phi dies so it can be revived
	phi ir.InstID
}

// Ref names the version.
func (v *Version) Ref() ir.VarRef {
	return ir.VarRef{Var: v.Var, Block: v.Block, Version: v.Number}
}

func newBlock(id ir.BlockID, kind ir.BlockKind, join ir.JoinKind) *Block {
	return &Block{
		ID:       id,
		Kind:     kind,
		Join:     join,
		tables:   make(map[ir.Opcode][]entry),
		vars:     make(map[string][]*Version),
		joinVars: mapset.NewThreadUnsafeSet[string](),
	}
}

// Order returns the block's instruction ids in emission order.
func (b *Block) Order() []ir.InstID {
	ids := make([]ir.InstID, 0, len(b.slots))
	for _, s := range b.slots {
		if s.inst != ir.NoInst {
			ids = append(ids, s.inst)
		}
	}
	return ids
}

// Versions returns the versions of name defined in this block, most recent first.
func (b *Block) Versions(name string) []*Version {
	recs := b.vars[name]
	out := make([]*Version, len(recs))
	for i, r := range recs {
		out[len(recs)-1-i] = r
	}
	return out
}

// Variables returns the names with at least one version in this block.
func (b *Block) Variables() []string {
	names := mapset.NewThreadUnsafeSet[string]()
	for name := range b.vars {
		names.Add(name)
	}
	return sortedNames(names)
}

// JoinVariables returns the variables reconciled at this join block.
func (b *Block) JoinVariables() []string {
	return sortedNames(b.joinVars)
}

func (b *Block) indexOf(id ir.InstID) int {
	for i, s := range b.slots {
		if s.inst == id {
			return i
		}
	}
	return -1
}

func (b *Block) indexOfDef(v *Version) int {
	for i, s := range b.slots {
		if s.def == v {
			return i
		}
	}
	return -1
}

// leadingRun is the length of the prefix holding phis and head versions.
func (b *Block) leadingRun(insts []*ir.Instruction) int {
	n := 0
	for _, s := range b.slots {
		switch {
		case s.def != nil && s.def.head:
		case s.inst != ir.NoInst && insts[s.inst].Op == ir.OpPhi:
		default:
			return n
		}
		n++
	}
	return n
}

func (b *Block) insertSlot(at int, s slot) {
	if at < 0 {
		at = 0
	}
	if at >= len(b.slots) {
		b.slots = append(b.slots, s)
		return
	}
	b.slots = append(b.slots, slot{})
	copy(b.slots[at+1:], b.slots[at:])
	b.slots[at] = s
}

func (b *Block) removeSlot(at int) {
	b.slots = append(b.slots[:at], b.slots[at+1:]...)
}

// addVersion records v at timeline position at, keeping vars in timeline order.
func (b *Block) addVersion(at int, v *Version) {
	b.insertSlot(at, slot{def: v})
	recs := b.vars[v.Var]
	pos := len(recs)
	for i, r := range recs {
		if b.indexOfDef(r) > at {
			pos = i
			break
		}
	}
	recs = append(recs, nil)
	copy(recs[pos+1:], recs[pos:])
	recs[pos] = v
	b.vars[v.Var] = recs
}

func (b *Block) nextVersion(name string) int {
	n := 0
	for _, r := range b.vars[name] {
		if r.Number >= n {
			n = r.Number + 1
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}

func (b *Block) head(name string) *Version {
	for _, r := range b.vars[name] {
		if r.head {
			return r
		}
	}
	return nil
}

func (b *Block) record(op ir.Opcode, e entry) {
	b.tables[op] = append([]entry{e}, b.tables[op]...)
}

func (b *Block) addParent(p ir.BlockID) {
	for _, q := range b.Parents {
		if q == p {
			return
		}
	}
	b.Parents = append(b.Parents, p)
}

func (b *Block) addChild(c ir.BlockID) {
	for _, q := range b.Children {
		if q == c {
			return
		}
	}
	b.Children = append(b.Children, c)
}

// dominatedBy reports whether d is in the block's dominator list.
func (b *Block) dominatedBy(d ir.BlockID) bool {
	for _, x := range b.Dominators {
		if x == d {
			return true
		}
	}
	return false
}
