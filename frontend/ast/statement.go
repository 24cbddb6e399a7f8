package ast

// All statement types implement the Stmt interface

// Assign binds Value to Target. Target is a *Name, a *Subscript or a *Tuple of names.
type Assign struct {
	Range
	Target Expr
	Value  Expr
}

func (*Assign) stmtNode() {}

// AugAssign is an in-place operation such as x += 1.
type AugAssign struct {
	Range
	Target Expr
	Op     BinOpKind
	Value  Expr
}

func (*AugAssign) stmtNode() {}

// AnnAssign is an annotated assignment such as x: int = 0. Value may be nil.
type AnnAssign struct {
	Range
	Target     *Name
	Annotation string
	Value      Expr
}

func (*AnnAssign) stmtNode() {}

// ExprStmt represents an expression used as a statement.
type ExprStmt struct {
	Range
	X Expr
}

func (*ExprStmt) stmtNode() {}

// If covers if/elif/else: an elif chain is an If nested as the only statement of Orelse.
type If struct {
	Range
	Test   Expr
	Body   []Stmt
	Orelse []Stmt
}

func (*If) stmtNode() {}

type While struct {
	Range
	Test   Expr
	Body   []Stmt
	Orelse []Stmt
}

func (*While) stmtNode() {}

type For struct {
	Range
	Target Expr
	Iter   Expr
	Body   []Stmt
	Orelse []Stmt
}

func (*For) stmtNode() {}

// Return may have a nil Value.
type Return struct {
	Range
	Value Expr
}

func (*Return) stmtNode() {}

type Pass struct{ Range }

func (*Pass) stmtNode() {}

type Break struct{ Range }

func (*Break) stmtNode() {}

type Continue struct{ Range }

func (*Continue) stmtNode() {}

// UnsupportedStmt stands for any statement the front end produced that lies
// outside the accepted subset (try, with, class, import, ...). Kind names it.
type UnsupportedStmt struct {
	Range
	Kind string
}

func (*UnsupportedStmt) stmtNode() {}
