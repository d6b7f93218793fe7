// Package frontend implements smpl lexing and AST construction.
//
// Design: Minimal, focused on correctness. The AST mirrors the grammar
// one-to-one so lowering can stay a single syntax-directed walk.
package frontend

import "fmt"

type Node interface {
	node()
}

// Computation is a whole program: declarations followed by the main body.
type Computation struct {
	Vars   []*VarDecl
	Arrays []*ArrayDecl
	Body   []Stmt
}

func (Computation) node() {}

type Stmt interface {
	Node
	stmt()
}

type Expr interface {
	Node
	expr()
}

// Declarations
type VarDecl struct {
	Name string
	Pos  Pos
}

type ArrayDecl struct {
	Name string
	Dims []int
	Pos  Pos
}

// Statements
type Assign struct {
	Target *Designator
	Value  Expr
	Pos    Pos
}

func (Assign) node() {}
func (Assign) stmt() {}

type If struct {
	Cond *Relation
	Then []Stmt
	Else []Stmt // nil when there is no else branch
	Pos  Pos
}

func (If) node() {}
func (If) stmt() {}

type While struct {
	Cond *Relation
	Body []Stmt
	Pos  Pos
}

func (While) node() {}
func (While) stmt() {}

// CallStmt is a call whose result, if any, is discarded.
type CallStmt struct {
	Call *Call
}

func (CallStmt) node() {}
func (CallStmt) stmt() {}

// Expressions
type BinOp struct {
	Left  Expr
	Op    Operator
	Right Expr
}

func (BinOp) node() {}
func (BinOp) expr() {}

// Designator is a variable or an indexed array element.
type Designator struct {
	Name    string
	Indices []Expr
	Pos     Pos
}

func (Designator) node() {}
func (Designator) expr() {}

type Num struct {
	Value int
}

func (Num) node() {}
func (Num) expr() {}

type Call struct {
	Func Builtin
	Args []Expr
	Pos  Pos
}

func (Call) node() {}
func (Call) expr() {}

type Relation struct {
	Left  Expr
	Op    RelOp
	Right Expr
}

// Supporting types
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

type Operator int

const (
	Add Operator = iota
	Sub
	Mul
	Div
)

type RelOp int

const (
	Eq RelOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

var relNames = [...]string{Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">="}

func (r RelOp) String() string {
	return relNames[r]
}

// Builtin is one of the predefined I/O functions.
type Builtin int

const (
	InputNum Builtin = iota
	OutputNum
	OutputNewLine
)

var builtins = map[string]Builtin{
	"InputNum":      InputNum,
	"OutputNum":     OutputNum,
	"OutputNewLine": OutputNewLine,
}

func (b Builtin) String() string {
	for name, v := range builtins {
		if v == b {
			return name
		}
	}
	return fmt.Sprintf("builtin(%d)", int(b))
}

// arity is the number of arguments the builtin takes.
func (b Builtin) arity() int {
	if b == OutputNum {
		return 1
	}
	return 0
}
