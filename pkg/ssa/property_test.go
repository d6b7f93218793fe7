package ssa

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/GriffinCanCode/smplc/pkg/ir"
)

var binaryOps = []ir.Opcode{ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpCmp}

func TestPropEmitIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := newTestBuilder()
		op := rapid.SampledFrom(binaryOps).Draw(t, "op")
		x := b.Const(rapid.IntRange(-100, 100).Draw(t, "x"))
		y := b.Const(rapid.IntRange(-100, 100).Draw(t, "y"))

		first, _, err := b.Emit(StartBlock, op, x, y)
		if err != nil {
			t.Fatalf("emit: %v", err)
		}
		second, swapped, err := b.Emit(StartBlock, op, x, y)
		if err != nil {
			t.Fatalf("emit: %v", err)
		}
		if first.ID != second.ID || swapped {
			t.Fatalf("%s emitted twice gave %d then %d (swapped=%v)", op, first.ID, second.ID, swapped)
		}
	})
}

func TestPropCommutativeSwap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := newTestBuilder()
		op := rapid.SampledFrom([]ir.Opcode{ir.OpAdd, ir.OpMul}).Draw(t, "op")
		n := rapid.IntRange(-100, 100).Draw(t, "x")
		m := rapid.IntRange(-100, 100).Filter(func(v int) bool { return v != n }).Draw(t, "y")
		x, y := b.Const(n), b.Const(m)

		first, _, _ := b.Emit(StartBlock, op, x, y)
		second, swapped, _ := b.Emit(StartBlock, op, y, x)
		if first.ID != second.ID || !swapped {
			t.Fatalf("%s(%d,%d) and %s(%d,%d) gave %d and %d (swapped=%v)", op, n, m, op, m, n, first.ID, second.ID, swapped)
		}
	})
}

func TestPropConstPool(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := newTestBuilder()
		vals := rapid.SliceOfN(rapid.IntRange(-20, 20), 1, 40).Draw(t, "vals")
		ids := make(map[int]ir.InstID)
		for _, n := range vals {
			id := b.Const(n).ID
			if prev, ok := ids[n]; ok && prev != id {
				t.Fatalf("const %d pooled as %d and %d", n, prev, id)
			}
			ids[n] = id
		}
		if got := len(b.Instructions()); got != len(ids) {
			t.Fatalf("%d distinct constants produced %d instructions", len(ids), got)
		}
	})
}

func TestPropVersionsIncrease(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := newTestBuilder()
		names := []string{"a", "b", "c"}
		last := make(map[string]*Version)

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			name := rapid.SampledFrom(names).Draw(t, "name")
			v := b.Const(rapid.IntRange(0, 5).Draw(t, "value"))

			ver, err := b.Assign(StartBlock, name, v)
			if err != nil {
				t.Fatalf("assign: %v", err)
			}
			prev := last[name]
			switch {
			case prev != nil && prev.Inst == v.ID:
				if ver != prev {
					t.Fatalf("reassigning %s to the same value created version %d", name, ver.Number)
				}
			case prev != nil && ver.Number <= prev.Number:
				t.Fatalf("%s version went from %d to %d", name, prev.Number, ver.Number)
			}
			last[name] = ver

			got, err := b.Lookup(StartBlock, name)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if got.ID != v.ID {
				t.Fatalf("%s reads %d, want %d", name, got.ID, v.ID)
			}
		}
		if len(b.Diagnostics()) != 0 {
			t.Fatalf("unexpected diagnostics: %v", b.Diagnostics())
		}
	})
}
