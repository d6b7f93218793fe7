// Package ssa implements online Static Single Assignment construction.
//
// Design: One pass, driven by the parser. Blocks and instructions live in
// two append-only arenas addressed by dense ids. Dominance is derived from
// the structured nesting the parser reports, values are numbered along the
// dominator chain, and loop headers are repaired after their body is known.
package ssa

import (
	"fmt"
	"log/slog"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/ir"
	"github.com/GriffinCanCode/smplc/pkg/logger"
)

const (
	// EntryBlock owns the constant pool and never holds variables.
	EntryBlock ir.BlockID = 0
	// StartBlock is the first block that holds code.
	StartBlock ir.BlockID = 1

	defaultWordSize = 4
)

// Value is the result of a builder call: the instruction that holds the
// value and the provenance of this particular use.
type Value struct {
	ID  ir.InstID
	Src *ir.Source
}

// Lit describes a numeric literal operand for Emit(OpConst).
func Lit(n int) Value {
	return Value{Src: &ir.Source{Kind: ir.SourceImmediate, Literal: n}}
}

// IsZero reports whether v is an absent operand.
func (v Value) IsZero() bool {
	return v.ID == ir.NoInst && v.Src == nil
}

// Diagnostic is a recoverable semantic warning raised during construction.
type Diagnostic struct {
	Block   ir.BlockID
	Var     string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("BB%d: %s: %s", d.Block, d.Var, d.Message)
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger routes builder logging to l.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// WithSourceName names the source file in builder logging.
func WithSourceName(name string) Option {
	return func(b *Builder) { b.source = name }
}

// WithWordSize sets the element size used to scale array offsets.
func WithWordSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.wordSize = n
		}
	}
}

// WithBaseAddress sets the address of the first declared array.
func WithBaseAddress(addr int) Option {
	return func(b *Builder) { b.nextAddr = addr }
}

// WithStrictDeclarations makes Build reject variables missing from the
// declaration list instead of treating them as implicitly declared.
func WithStrictDeclarations(strict bool) Option {
	return func(b *Builder) { b.strict = strict }
}

// Builder owns every block and instruction of one compilation.
// It is not safe for concurrent use.
type Builder struct {
	log      *slog.Logger
	source   string
	wordSize int
	strict   bool

	insts  []*ir.Instruction
	blocks []*Block

	contexts []*joinContext
	branches []*deferral

	arrays   map[string]*Array
	nextAddr int
	epochs   map[string]int
	loads    map[ir.InstID]entry

	diags []Diagnostic
}

// New creates a builder holding the entry block and the start block.
func New(opts ...Option) *Builder {
	b := &Builder{
		wordSize: defaultWordSize,
		insts:    []*ir.Instruction{nil},
		arrays:   make(map[string]*Array),
		epochs:   make(map[string]int),
		loads:    make(map[ir.InstID]entry),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.With("component", "ssa")
	}

	entry := newBlock(EntryBlock, ir.BlockEntry, ir.JoinNone)
	entry.Dominators = []ir.BlockID{EntryBlock}
	b.blocks = append(b.blocks, entry)

	start := newBlock(StartBlock, ir.BlockMain, ir.JoinNone)
	start.Dominators = []ir.BlockID{StartBlock, EntryBlock}
	b.blocks = append(b.blocks, start)
	b.link(entry, start)
	return b
}

func (b *Builder) block(id ir.BlockID) (*Block, error) {
	if id < 0 || int(id) >= len(b.blocks) {
		return nil, invalidBlock(id)
	}
	return b.blocks[id], nil
}

// Block returns the block with the given id.
func (b *Builder) Block(id ir.BlockID) (*Block, error) {
	return b.block(id)
}

// Blocks returns every block in creation order.
func (b *Builder) Blocks() []*Block {
	return b.blocks
}

// Instruction returns the instruction with the given id.
func (b *Builder) Instruction(id ir.InstID) (*ir.Instruction, error) {
	if id <= ir.NoInst || int(id) >= len(b.insts) {
		return nil, invalidInst(id)
	}
	return b.insts[id], nil
}

// Instructions returns every instruction in id order, retired ones included.
func (b *Builder) Instructions() []*ir.Instruction {
	return b.insts[1:]
}

// Active returns the active instructions block by block, in emission order.
func (b *Builder) Active() []*ir.Instruction {
	var out []*ir.Instruction
	for _, blk := range b.blocks {
		for _, id := range blk.Order() {
			if in := b.insts[id]; in.Active {
				out = append(out, in)
			}
		}
	}
	return out
}

// Diagnostics returns the warnings raised so far.
func (b *Builder) Diagnostics() []Diagnostic {
	return b.diags
}

func (b *Builder) warn(block ir.BlockID, name, msg string) {
	b.diags = append(b.diags, Diagnostic{Block: block, Var: name, Message: msg})
}

// alloc creates an instruction without placing it in any block.
func (b *Builder) alloc(op ir.Opcode, block ir.BlockID, x, y ir.Operand, src [2]*ir.Source) *ir.Instruction {
	in := &ir.Instruction{
		ID:     ir.InstID(len(b.insts)),
		Op:     op,
		X:      x,
		Y:      y,
		Block:  block,
		Src:    src,
		Active: true,
	}
	b.insts = append(b.insts, in)
	return in
}

// place puts a new non-phi instruction at timeline position at. A pending
// empty placeholder in the block is overwritten instead of allocating.
func (b *Builder) place(blk *Block, op ir.Opcode, x, y ir.Operand, src [2]*ir.Source, at int) *ir.Instruction {
	if blk.placeholder != ir.NoInst && op != ir.OpEmpty {
		in := b.insts[blk.placeholder]
		blk.placeholder = ir.NoInst
		if in.Op == ir.OpEmpty {
			if idx := blk.indexOf(in.ID); idx >= 0 {
				blk.removeSlot(idx)
				if idx < at {
					at--
				}
			}
			in.Op, in.X, in.Y, in.Src, in.Active = op, x, y, src, true
			blk.insertSlot(at, slot{inst: in.ID})
			return in
		}
	}
	in := b.alloc(op, blk.ID, x, y, src)
	blk.insertSlot(at, slot{inst: in.ID})
	return in
}

func (b *Builder) live(id ir.InstID) bool {
	return id > ir.NoInst && int(id) < len(b.insts) && b.insts[id].Active
}

// Finish resolves every deferred branch and returns the finished program.
func (b *Builder) Finish() (*Program, error) {
	if len(b.contexts) != 0 {
		return nil, errors.Errorf("%d join contexts still open", len(b.contexts))
	}
	if err := b.ResolveBranches(); err != nil {
		return nil, err
	}
	logger.LogSSAGeneration(b.source, len(b.blocks), len(b.insts)-1)
	return &Program{
		Insts:       b.Instructions(),
		Blocks:      b.blocks,
		Diagnostics: b.diags,
	}, nil
}

func sortedNames(s mapset.Set[string]) []string {
	names := s.ToSlice()
	slices.Sort(names)
	return names
}
