package ir

import (
	"math"
	"strconv"

	"github.com/py2cppai/py2cpp/frontend/types"
)

type LitKind uint8

const (
	NoLit LitKind = iota
	LitInt
	LitFloat
	LitBool
	LitStr
	LitNone
)

// Literal is a compile-time constant. Only the field matching Kind is meaningful.
type Literal struct {
	Kind  LitKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

func (l Literal) Type() types.Type {
	switch l.Kind {
	case LitInt:
		return types.IntType
	case LitFloat:
		return types.FloatType
	case LitBool:
		return types.BoolType
	case LitStr:
		return types.StrType
	case LitNone:
		return types.NoneType
	}
	return types.Unknown
}

func (l Literal) String() string {
	switch l.Kind {
	case LitInt:
		return strconv.FormatInt(l.Int, 10)
	case LitFloat:
		if math.IsInf(l.Float, 0) || math.Trunc(l.Float) != l.Float {
			return strconv.FormatFloat(l.Float, 'g', -1, 64)
		}
		return strconv.FormatFloat(l.Float, 'f', 1, 64)
	case LitBool:
		if l.Bool {
			return "true"
		}
		return "false"
	case LitStr:
		return strconv.Quote(l.Str)
	case LitNone:
		return "none"
	}
	return "<no literal>"
}

// Operand is either a literal or a reference to an SSA value. The zero Operand is neither.
type Operand struct {
	Value ValueID
	Lit   Literal
}

func Ref(v ValueID) Operand { return Operand{Value: v} }

func IntOp(v int64) Operand     { return Operand{Lit: Literal{Kind: LitInt, Int: v}} }
func FloatOp(v float64) Operand { return Operand{Lit: Literal{Kind: LitFloat, Float: v}} }
func BoolOp(v bool) Operand     { return Operand{Lit: Literal{Kind: LitBool, Bool: v}} }
func StrOp(v string) Operand    { return Operand{Lit: Literal{Kind: LitStr, Str: v}} }
func NoneOp() Operand           { return Operand{Lit: Literal{Kind: LitNone}} }

func (o Operand) IsValue() bool { return o.Value != NoValue }
func (o Operand) IsLit() bool   { return o.Value == NoValue && o.Lit.Kind != NoLit }
func (o Operand) IsZero() bool  { return o.Value == NoValue && o.Lit.Kind == NoLit }

// IntLit returns the operand's integer value when it is an int (or bool) literal.
func (o Operand) IntLit() (int64, bool) {
	if !o.IsLit() {
		return 0, false
	}
	switch o.Lit.Kind {
	case LitInt:
		return o.Lit.Int, true
	case LitBool:
		if o.Lit.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
