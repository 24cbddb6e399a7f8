package types

import (
	"iter"

	"github.com/benbjohnson/immutable"
)

type BindingKind int

const (
	Local BindingKind = iota
	Param
	// OutputParam is a parameter whose writes are visible to the caller
	OutputParam
)

func (k BindingKind) String() string {
	switch k {
	case Param:
		return "param"
	case OutputParam:
		return "output"
	default:
		return "local"
	}
}

// Binding is one identifier scoped to a function together with what is known about it.
type Binding struct {
	Name string
	Kind BindingKind
	Type Type
	// Source records how Type was established
	Source Source
}

type Source int

const (
	FromNothing Source = iota
	FromHint
	FromInference
	FromAdvisor
	FromFallback
)

func (s Source) String() string {
	switch s {
	case FromHint:
		return "hint"
	case FromInference:
		return "inference"
	case FromAdvisor:
		return "advisor"
	case FromFallback:
		return "fallback"
	default:
		return "none"
	}
}

// Environment maps binding names of one function to what is known about them.
// It is persistent: every update returns a new Environment and
// leaves the receiver untouched, so each resolution round is a snapshot.
type Environment struct {
	bindings *immutable.SortedMap[string, Binding]
}

func NewEnvironment() *Environment {
	return &Environment{bindings: immutable.NewSortedMap[string, Binding](nil)}
}

func (e *Environment) Lookup(name string) (Binding, bool) {
	if e == nil || e.bindings == nil {
		return Binding{}, false
	}
	return e.bindings.Get(name)
}

// TypeOf returns the type of name, or Unknown if it is not bound.
func (e *Environment) TypeOf(name string) Type {
	b, ok := e.Lookup(name)
	if !ok || b.Type == nil {
		return Unknown
	}
	return b.Type
}

func (e *Environment) With(b Binding) *Environment {
	if b.Type == nil {
		b.Type = Unknown
	}
	return &Environment{bindings: e.bindings.Set(b.Name, b)}
}

func (e *Environment) Len() int {
	if e == nil || e.bindings == nil {
		return 0
	}
	return e.bindings.Len()
}

// All iterates bindings in name order.
func (e *Environment) All() iter.Seq[Binding] {
	return func(yield func(Binding) bool) {
		if e == nil || e.bindings == nil {
			return
		}
		itr := e.bindings.Iterator()
		for !itr.Done() {
			_, b, _ := itr.Next()
			if !yield(b) {
				return
			}
		}
	}
}

// Unresolved lists the bindings, in name order, whose type still has holes.
func (e *Environment) Unresolved() []Binding {
	var out []Binding
	for b := range e.All() {
		if !IsResolved(b.Type) && !IsConflict(b.Type) {
			out = append(out, b)
		}
	}
	return out
}

// Conflicts lists the bindings, in name order, that reached the top of the lattice.
func (e *Environment) Conflicts() []Binding {
	var out []Binding
	for b := range e.All() {
		if IsConflict(b.Type) {
			out = append(out, b)
		}
	}
	return out
}
