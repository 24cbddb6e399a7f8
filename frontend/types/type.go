package types

import (
	"strings"
)

// when adding types here, you should add them to the switch cases in:
// - types:merge.go/Merge
// - types:parse.go/Parse
// - backend:types.go/cppType

// Type is the tagged variant of everything a binding can resolve to.
type Type interface {
	String() string
	Equals(Type) bool
	typeNode()
}

type PrimKind int

const (
	Int PrimKind = iota
	Float
	Bool
	Str
	None
	// Dynamic is the variant representation used when no concrete type could be established
	Dynamic
)

var primNames = [...]string{
	Int:     "int",
	Float:   "float",
	Bool:    "bool",
	Str:     "str",
	None:    "None",
	Dynamic: "dynamic",
}

func (k PrimKind) String() string {
	if k < 0 || int(k) >= len(primNames) {
		return "prim?"
	}
	return primNames[k]
}

type Primitive struct {
	Kind PrimKind
}

func (*Primitive) typeNode() {}
func (p *Primitive) String() string { return p.Kind.String() }
func (p *Primitive) Equals(other Type) bool {
	o, ok := other.(*Primitive)
	return ok && o.Kind == p.Kind
}

type Sequence struct {
	Elem Type
}

func (*Sequence) typeNode() {}
func (s *Sequence) String() string { return "list[" + s.Elem.String() + "]" }
func (s *Sequence) Equals(other Type) bool {
	o, ok := other.(*Sequence)
	return ok && s.Elem.Equals(o.Elem)
}

type Mapping struct {
	Key, Value Type
}

func (*Mapping) typeNode() {}
func (m *Mapping) String() string {
	return "dict[" + m.Key.String() + ", " + m.Value.String() + "]"
}
func (m *Mapping) Equals(other Type) bool {
	o, ok := other.(*Mapping)
	return ok && m.Key.Equals(o.Key) && m.Value.Equals(o.Value)
}

type Set struct {
	Elem Type
}

func (*Set) typeNode() {}
func (s *Set) String() string { return "set[" + s.Elem.String() + "]" }
func (s *Set) Equals(other Type) bool {
	o, ok := other.(*Set)
	return ok && s.Elem.Equals(o.Elem)
}

type Tuple struct {
	Elems []Type
}

func (*Tuple) typeNode() {}
func (t *Tuple) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "tuple[" + strings.Join(parts, ", ") + "]"
}
func (t *Tuple) Equals(other Type) bool {
	o, ok := other.(*Tuple)
	if !ok || len(o.Elems) != len(t.Elems) {
		return false
	}
	for i := range t.Elems {
		if !t.Elems[i].Equals(o.Elems[i]) {
			return false
		}
	}
	return true
}

// Unresolved is the bottom of the lattice: nothing is known yet.
type Unresolved struct{}

func (*Unresolved) typeNode() {}
func (*Unresolved) String() string { return "?" }
func (*Unresolved) Equals(other Type) bool {
	_, ok := other.(*Unresolved)
	return ok
}

// Conflict is the top of the lattice. It remembers the two demands
// that could not be reconciled so diagnostics can name them.
type Conflict struct {
	First, Second Type
}

func (*Conflict) typeNode() {}
func (c *Conflict) String() string {
	return "conflict(" + c.First.String() + ", " + c.Second.String() + ")"
}
func (*Conflict) Equals(other Type) bool {
	_, ok := other.(*Conflict)
	return ok
}

var (
	IntType     Type = &Primitive{Kind: Int}
	FloatType   Type = &Primitive{Kind: Float}
	BoolType    Type = &Primitive{Kind: Bool}
	StrType     Type = &Primitive{Kind: Str}
	NoneType    Type = &Primitive{Kind: None}
	DynamicType Type = &Primitive{Kind: Dynamic}
	Unknown     Type = &Unresolved{}
)

func ListOf(elem Type) Type      { return &Sequence{Elem: elem} }
func SetOf(elem Type) Type       { return &Set{Elem: elem} }
func DictOf(key, val Type) Type  { return &Mapping{Key: key, Value: val} }
func TupleOf(elems ...Type) Type { return &Tuple{Elems: elems} }

func IsPrim(t Type, kind PrimKind) bool {
	p, ok := t.(*Primitive)
	return ok && p.Kind == kind
}

func IsNumeric(t Type) bool {
	return IsPrim(t, Int) || IsPrim(t, Float) || IsPrim(t, Bool)
}

func IsUnresolved(t Type) bool {
	_, ok := t.(*Unresolved)
	return t == nil || ok
}

func IsConflict(t Type) bool {
	_, ok := t.(*Conflict)
	return ok
}

// IsResolved reports whether t contains neither holes nor conflicts.
func IsResolved(t Type) bool {
	switch t := t.(type) {
	case nil, *Unresolved, *Conflict:
		return false
	case *Primitive:
		return true
	case *Sequence:
		return IsResolved(t.Elem)
	case *Set:
		return IsResolved(t.Elem)
	case *Mapping:
		return IsResolved(t.Key) && IsResolved(t.Value)
	case *Tuple:
		for _, e := range t.Elems {
			if !IsResolved(e) {
				return false
			}
		}
		return true
	}
	return false
}

// ElementType is the type produced by iterating or indexing t with a non-literal index.
// ok is false when t is not a container.
func ElementType(t Type) (elem Type, ok bool) {
	switch t := t.(type) {
	case *Sequence:
		return t.Elem, true
	case *Set:
		return t.Elem, true
	case *Mapping:
		return t.Key, true
	case *Primitive:
		if t.Kind == Str {
			return StrType, true
		}
	}
	return nil, false
}

// FillHoles replaces every Unresolved component of t with fallback.
func FillHoles(t Type, fallback Type) Type {
	switch t := t.(type) {
	case nil, *Unresolved:
		return fallback
	case *Sequence:
		return ListOf(FillHoles(t.Elem, fallback))
	case *Set:
		return SetOf(FillHoles(t.Elem, fallback))
	case *Mapping:
		return DictOf(FillHoles(t.Key, fallback), FillHoles(t.Value, fallback))
	case *Tuple:
		elems := make([]Type, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = FillHoles(e, fallback)
		}
		return TupleOf(elems...)
	}
	return t
}
