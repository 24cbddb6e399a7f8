package ast

import "strconv"

type BinOpKind int

const (
	Add BinOpKind = iota
	Sub
	Mult
	Div
	FloorDiv
	Mod
	Pow
)

var binOpSyntax = [...]string{Add: "+", Sub: "-", Mult: "*", Div: "/", FloorDiv: "//", Mod: "%", Pow: "**"}

func (k BinOpKind) String() string { return binOpSyntax[k] }

type CmpOpKind int

const (
	Eq CmpOpKind = iota
	NotEq
	Lt
	LtE
	Gt
	GtE
	In
	NotIn
)

var cmpOpSyntax = [...]string{Eq: "==", NotEq: "!=", Lt: "<", LtE: "<=", Gt: ">", GtE: ">=", In: "in", NotIn: "not in"}

func (k CmpOpKind) String() string { return cmpOpSyntax[k] }

type UnaryOpKind int

const (
	USub UnaryOpKind = iota
	UAdd
	Not
)

func (k UnaryOpKind) String() string {
	switch k {
	case USub:
		return "-"
	case UAdd:
		return "+"
	default:
		return "not "
	}
}

type BoolOpKind int

const (
	And BoolOpKind = iota
	Or
)

func (k BoolOpKind) String() string {
	if k == And {
		return "and"
	}
	return "or"
}

type ConstKind int

const (
	IntConst ConstKind = iota
	FloatConst
	BoolConst
	StrConst
	NoneConst
)

// Name is a reference to a binding.
type Name struct {
	Range
	Id string
}

func (*Name) exprNode() {}

// Constant is a literal. Only the field matching Kind is meaningful.
type Constant struct {
	Range
	Kind  ConstKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

func (*Constant) exprNode() {}

func (c *Constant) String() string {
	switch c.Kind {
	case IntConst:
		return strconv.FormatInt(c.Int, 10)
	case FloatConst:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case BoolConst:
		if c.Bool {
			return "True"
		}
		return "False"
	case StrConst:
		return strconv.Quote(c.Str)
	default:
		return "None"
	}
}

type BinOp struct {
	Range
	Left  Expr
	Op    BinOpKind
	Right Expr
}

func (*BinOp) exprNode() {}

type UnaryOp struct {
	Range
	Op      UnaryOpKind
	Operand Expr
}

func (*UnaryOp) exprNode() {}

// BoolOp is a short-circuiting chain, a and b and c.
type BoolOp struct {
	Range
	Op     BoolOpKind
	Values []Expr
}

func (*BoolOp) exprNode() {}

// Compare is a possibly chained comparison: Left Ops[0] Comparators[0] Ops[1] ...
type Compare struct {
	Range
	Left        Expr
	Ops         []CmpOpKind
	Comparators []Expr
}

func (*Compare) exprNode() {}

// Call is either a call to a name (f(x)) or a method call (xs.append(x)),
// in which case Func is an *Attribute.
type Call struct {
	Range
	Func Expr
	Args []Expr
}

func (*Call) exprNode() {}

type Attribute struct {
	Range
	Value Expr
	Attr  string
}

func (*Attribute) exprNode() {}

type Subscript struct {
	Range
	Value Expr
	Index Expr
}

func (*Subscript) exprNode() {}

type List struct {
	Range
	Elts []Expr
}

func (*List) exprNode() {}

type Tuple struct {
	Range
	Elts []Expr
}

func (*Tuple) exprNode() {}

type SetDisplay struct {
	Range
	Elts []Expr
}

func (*SetDisplay) exprNode() {}

type Dict struct {
	Range
	Keys   []Expr
	Values []Expr
}

func (*Dict) exprNode() {}

// UnsupportedExpr stands for an expression outside the accepted subset
// (lambda, comprehension, f-string, ...). Kind names it.
type UnsupportedExpr struct {
	Range
	Kind string
}

func (*UnsupportedExpr) exprNode() {}

// Convenience constructors, mostly used by tests and by the decoder.

func NewName(id string) *Name { return &Name{Id: id} }

func IntLit(v int64) *Constant     { return &Constant{Kind: IntConst, Int: v} }
func FloatLit(v float64) *Constant { return &Constant{Kind: FloatConst, Float: v} }
func BoolLit(v bool) *Constant     { return &Constant{Kind: BoolConst, Bool: v} }
func StrLit(v string) *Constant    { return &Constant{Kind: StrConst, Str: v} }

func Bin(l Expr, op BinOpKind, r Expr) *BinOp { return &BinOp{Left: l, Op: op, Right: r} }

func Cmp(l Expr, op CmpOpKind, r Expr) *Compare {
	return &Compare{Left: l, Ops: []CmpOpKind{op}, Comparators: []Expr{r}}
}

func CallName(name string, args ...Expr) *Call {
	return &Call{Func: NewName(name), Args: args}
}

func CallMethod(recv Expr, method string, args ...Expr) *Call {
	return &Call{Func: &Attribute{Value: recv, Attr: method}, Args: args}
}

func AssignName(name string, value Expr) *Assign {
	return &Assign{Target: NewName(name), Value: value}
}
