package ir

import (
	"fmt"
	"strings"
)

// SourceKind tags a provenance node
type SourceKind uint8

const (
	SourceNone SourceKind = iota
	SourceImmediate
	SourceVariable
	SourceResult
)

// Source records where an operand semantically came from. Inst is the
// instruction the operand resolved to when it was parsed; the rest of the
// node is what gets replayed when that resolution goes stale.
//
//   - SourceImmediate: a numeric literal, Inst is its const instruction.
//   - SourceVariable: Var at Version as read in Block.
//   - SourceResult: Op applied to Args; Array/Epoch qualify loads.
type Source struct {
	Kind    SourceKind
	Inst    InstID
	Literal int

	Var     string
	Version int
	Block   BlockID

	Op    Opcode
	Args  [2]*Source
	Array string
	Epoch int
}

func Immediate(n int, c InstID) *Source {
	return &Source{Kind: SourceImmediate, Inst: c, Literal: n}
}

func Variable(name string, version int, block BlockID, id InstID) *Source {
	return &Source{Kind: SourceVariable, Inst: id, Var: name, Version: version, Block: block}
}

func Result(op Opcode, id InstID, x, y *Source) *Source {
	return &Source{Kind: SourceResult, Inst: id, Op: op, Args: [2]*Source{x, y}}
}

// Replayable reports whether the node can be recomputed from its arguments.
func (s *Source) Replayable() bool {
	if s == nil || s.Kind != SourceResult {
		return false
	}
	return s.Op.Numbered() && s.Op != OpConst && (s.Args[0] != nil || s.Args[1] != nil)
}

// History lists the result instructions of the tree in evaluation order.
func (s *Source) History() []InstID {
	var ids []InstID
	var walk func(*Source)
	walk = func(n *Source) {
		if n == nil || n.Kind != SourceResult {
			return
		}
		walk(n.Args[0])
		walk(n.Args[1])
		ids = append(ids, n.Inst)
	}
	walk(s)
	return ids
}

func (s *Source) String() string {
	if s == nil {
		return "_"
	}
	switch s.Kind {
	case SourceImmediate:
		return fmt.Sprintf("#%d", s.Literal)
	case SourceVariable:
		return fmt.Sprintf("%s_%d", s.Var, s.Version)
	case SourceResult:
		var args []string
		for _, a := range s.Args {
			if a != nil {
				args = append(args, a.String())
			}
		}
		if len(args) == 0 {
			return fmt.Sprintf("%s(%d)", s.Op, s.Inst)
		}
		return fmt.Sprintf("%s(%s)", s.Op, strings.Join(args, ", "))
	}
	return "?"
}
