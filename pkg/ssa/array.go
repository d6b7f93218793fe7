package ssa

import (
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/ir"
)

// Array is a statically sized, row-major array with a fixed base address.
type Array struct {
	Name    string
	Dims    []int
	Strides []int
	Base    int

	base    Value
	strides []Value
}

// Size is the number of elements.
func (a *Array) Size() int {
	n := 1
	for _, d := range a.Dims {
		n *= d
	}
	return n
}

// DeclareArray reserves storage for name. Base addresses are handed out in
// declaration order, each array following the previous one.
func (b *Builder) DeclareArray(name string, dims []int) (*Array, error) {
	if len(dims) == 0 {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "array %s has no dimensions", name)
	}
	for _, d := range dims {
		if d <= 0 {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "array %s has dimension %d", name, d)
		}
	}
	if _, ok := b.arrays[name]; ok {
		return nil, errors.Wrapf(errdefs.ErrAlreadyExists, "array %s", name)
	}

	a := &Array{
		Name:    name,
		Dims:    append([]int(nil), dims...),
		Strides: make([]int, len(dims)),
		Base:    b.nextAddr,
	}
	stride := 1
	for k := len(dims) - 1; k >= 0; k-- {
		a.Strides[k] = stride
		stride *= dims[k]
	}
	b.nextAddr += a.Size() * b.wordSize

	a.base = b.Const(a.Base)
	for _, s := range a.Strides {
		a.strides = append(a.strides, b.Const(s))
	}
	b.arrays[name] = a
	return a, nil
}

// Array returns a declared array.
func (b *Builder) Array(name string) (*Array, error) {
	a, ok := b.arrays[name]
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrNotFound, "array %s", name)
	}
	return a, nil
}

// address computes base + (sum of idx[k]*stride[k]) * word size.
func (b *Builder) address(blk *Block, a *Array, idx []Value) (Value, error) {
	if len(idx) != len(a.Dims) {
		return Value{}, errors.Wrapf(errdefs.ErrInvalidArgument, "array %s has %d dimensions, got %d indices", a.Name, len(a.Dims), len(idx))
	}
	var off Value
	for k, ix := range idx {
		term := ix
		if a.Strides[k] != 1 {
			term, _ = b.number(blk, ir.OpMul, ix, a.strides[k], loadTag{}, len(blk.slots))
		}
		if k == 0 {
			off = term
			continue
		}
		off, _ = b.number(blk, ir.OpAdd, off, term, loadTag{}, len(blk.slots))
	}
	scaled, _ := b.number(blk, ir.OpMul, off, b.Const(b.wordSize), loadTag{}, len(blk.slots))
	addr, _ := b.number(blk, ir.OpAdda, a.base, scaled, loadTag{}, len(blk.slots))
	return addr, nil
}

// LoadElement reads name[idx...] in block. Loads are numbered like any
// other value but only match loads of the same array in the same memory
// epoch.
func (b *Builder) LoadElement(block ir.BlockID, name string, idx []Value) (Value, error) {
	blk, a, err := b.arrayAccess(block, name)
	if err != nil {
		return Value{}, err
	}
	addr, err := b.address(blk, a, idx)
	if err != nil {
		return Value{}, err
	}
	v, _ := b.number(blk, ir.OpLoad, addr, Value{}, loadTag{array: name, epoch: b.epochs[name]}, len(blk.slots))
	return v, nil
}

// StoreElement writes v to name[idx...] in block. A store starts a new
// memory epoch for the array and forgets the loads of it recorded in block
// and in every block block dominates.
func (b *Builder) StoreElement(block ir.BlockID, name string, idx []Value, v Value) error {
	blk, a, err := b.arrayAccess(block, name)
	if err != nil {
		return err
	}
	if _, err := b.Instruction(v.ID); err != nil {
		return err
	}
	addr, err := b.address(blk, a, idx)
	if err != nil {
		return err
	}
	b.place(blk, ir.OpStore, operand(v), operand(addr), [2]*ir.Source{v.Src, addr.Src}, len(blk.slots))

	b.epochs[name]++
	for _, db := range b.blocks {
		if !db.dominatedBy(blk.ID) {
			continue
		}
		kept := db.tables[ir.OpLoad][:0]
		for _, e := range db.tables[ir.OpLoad] {
			if e.array != name {
				kept = append(kept, e)
			}
		}
		db.tables[ir.OpLoad] = kept
	}
	return nil
}

func (b *Builder) arrayAccess(block ir.BlockID, name string) (*Block, *Array, error) {
	if block == EntryBlock {
		return nil, nil, errors.Wrapf(ErrEntryAssignment, "access %s", name)
	}
	blk, err := b.block(block)
	if err != nil {
		return nil, nil, err
	}
	a, err := b.Array(name)
	if err != nil {
		return nil, nil, err
	}
	return blk, a, nil
}
