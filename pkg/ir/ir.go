// Package ir implements the intermediate representation.
//
// Design: Two-operand SSA instructions addressed by dense integer ids,
// explicit tagged operands, no pointers between blocks and instructions.
package ir

import (
	"fmt"
	"strings"
)

// InstID identifies an instruction. Ids start at 1; 0 is the placeholder.
type InstID int

// BlockID identifies a basic block. Block 0 is the constant/entry block.
type BlockID int

const (
	NoInst  InstID  = 0
	NoBlock BlockID = -1
)

// Opcode is the operation performed by an instruction
type Opcode int

const (
	OpConst Opcode = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpCmp
	OpAdda
	OpLoad
	OpStore
	OpPhi
	OpEnd
	OpBra
	OpBne
	OpBeq
	OpBle
	OpBlt
	OpBge
	OpBgt
	OpRead
	OpWrite
	OpWriteNL
	OpNop
	OpEmpty
)

var opNames = [...]string{
	OpConst:   "const",
	OpAdd:     "add",
	OpSub:     "sub",
	OpMul:     "mul",
	OpDiv:     "div",
	OpCmp:     "cmp",
	OpAdda:    "adda",
	OpLoad:    "load",
	OpStore:   "store",
	OpPhi:     "phi",
	OpEnd:     "end",
	OpBra:     "bra",
	OpBne:     "bne",
	OpBeq:     "beq",
	OpBle:     "ble",
	OpBlt:     "blt",
	OpBge:     "bge",
	OpBgt:     "bgt",
	OpRead:    "read",
	OpWrite:   "write",
	OpWriteNL: "writeNL",
	OpNop:     "nop",
	OpEmpty:   "empty",
}

func (o Opcode) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// IsBranch reports whether o transfers control.
func (o Opcode) IsBranch() bool {
	return o >= OpBra && o <= OpBgt
}

// IsConditional reports whether o is one of the six relation-keyed branches.
func (o Opcode) IsConditional() bool {
	return o > OpBra && o <= OpBgt
}

// IsCommutative reports whether swapping the operands preserves the value.
func (o Opcode) IsCommutative() bool {
	return o == OpAdd || o == OpMul
}

// Numbered reports whether instructions with this opcode take part in
// value numbering. Side-effecting and uniquely identified operations never do.
func (o Opcode) Numbered() bool {
	switch o {
	case OpConst, OpAdd, OpSub, OpMul, OpDiv, OpCmp, OpAdda, OpLoad:
		return true
	}
	return false
}

// Arithmetic reports whether o computes a value from two operands.
func (o Opcode) Arithmetic() bool {
	switch o {
	case OpAdd, OpSub, OpMul, OpDiv, OpCmp, OpAdda:
		return true
	}
	return false
}

// OperandKind tags the payload of an Operand
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandConst
	OperandInst
	OperandPending
)

// Operand is one instruction operand slot: a literal, an instruction id,
// or a forward reference to a block that has not been resolved yet.
type Operand struct {
	Kind  OperandKind
	Value int
}

func Literal(n int) Operand       { return Operand{Kind: OperandConst, Value: n} }
func Ref(id InstID) Operand       { return Operand{Kind: OperandInst, Value: int(id)} }
func Pending(b BlockID) Operand   { return Operand{Kind: OperandPending, Value: int(b)} }
func (o Operand) IsNone() bool    { return o.Kind == OperandNone }
func (o Operand) IsPending() bool { return o.Kind == OperandPending }

// Inst returns the referenced instruction, if any.
func (o Operand) Inst() (InstID, bool) {
	if o.Kind != OperandInst {
		return NoInst, false
	}
	return InstID(o.Value), true
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandConst:
		return fmt.Sprintf("#%d", o.Value)
	case OperandInst:
		return fmt.Sprintf("(%d)", o.Value)
	case OperandPending:
		return fmt.Sprintf("BB%d?", o.Value)
	}
	return ""
}

// VarRef names one version of a variable in one block.
type VarRef struct {
	Var     string
	Block   BlockID
	Version int
}

func (r VarRef) String() string {
	return fmt.Sprintf("%s_%d@BB%d", r.Var, r.Version, r.Block)
}

// Instruction is one IR operation. The id, opcode and owning block never
// change after creation except when an empty placeholder is overwritten.
type Instruction struct {
	ID     InstID
	Op     Opcode
	X, Y   Operand
	Block  BlockID
	Src    [2]*Source
	Deps   []VarRef
	Active bool
}

// Operands returns the non-empty operand slots.
func (i *Instruction) Operands() []Operand {
	var ops []Operand
	for _, o := range [2]Operand{i.X, i.Y} {
		if !o.IsNone() {
			ops = append(ops, o)
		}
	}
	return ops
}

// Slot returns operand slot k (0 or 1).
func (i *Instruction) Slot(k int) Operand {
	if k == 0 {
		return i.X
	}
	return i.Y
}

// SetSlot overwrites operand slot k (0 or 1).
func (i *Instruction) SetSlot(k int, o Operand) {
	if k == 0 {
		i.X = o
	} else {
		i.Y = o
	}
}

// IsTarget reports whether operand slot k holds a branch target rather
// than a value.
func (i *Instruction) IsTarget(k int) bool {
	if !i.Op.IsBranch() {
		return false
	}
	return k == 1 || i.Op == OpBra
}

// Uses returns the instruction ids referenced by the operands.
func (i *Instruction) Uses() []InstID {
	var ids []InstID
	for _, o := range [2]Operand{i.X, i.Y} {
		if id, ok := o.Inst(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (i *Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d: %s", i.ID, i.Op)
	for _, o := range i.Operands() {
		sb.WriteByte(' ')
		sb.WriteString(o.String())
	}
	return sb.String()
}

// BlockKind describes the structural role of a block.
type BlockKind int

const (
	BlockEntry BlockKind = iota
	BlockMain
	BlockThen
	BlockElse
	BlockJoin
	BlockLoopHeader
	BlockLoopBody
	BlockExit
)

var kindNames = [...]string{
	BlockEntry:      "entry",
	BlockMain:       "main",
	BlockThen:       "then",
	BlockElse:       "else",
	BlockJoin:       "join",
	BlockLoopHeader: "loop-header",
	BlockLoopBody:   "loop-body",
	BlockExit:       "exit",
}

func (k BlockKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// JoinKind selects how a join block orders its phi operands.
type JoinKind int

const (
	JoinNone JoinKind = iota
	JoinIfThen
	JoinIfElse
	JoinWhile
)

func (j JoinKind) String() string {
	switch j {
	case JoinIfThen:
		return "if-then"
	case JoinIfElse:
		return "if-else"
	case JoinWhile:
		return "while"
	}
	return "none"
}
