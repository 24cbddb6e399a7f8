package types

// Merge joins two demands on the same binding.
//
// Unresolved absorbs into the other side, equal types merge to themselves,
// containers of the same shape merge component-wise, and anything else
// is a Conflict. Conflict is absorbing: once reached it never goes back.
func Merge(a, b Type) Type {
	if IsUnresolved(a) {
		if b == nil {
			return Unknown
		}
		return b
	}
	if IsUnresolved(b) {
		return a
	}
	if c, ok := a.(*Conflict); ok {
		return c
	}
	if c, ok := b.(*Conflict); ok {
		return c
	}

	switch a := a.(type) {
	case *Primitive:
		if a.Equals(b) {
			return a
		}
	case *Sequence:
		if b, ok := b.(*Sequence); ok {
			elem := Merge(a.Elem, b.Elem)
			if IsConflict(elem) {
				break
			}
			return ListOf(elem)
		}
	case *Set:
		if b, ok := b.(*Set); ok {
			elem := Merge(a.Elem, b.Elem)
			if IsConflict(elem) {
				break
			}
			return SetOf(elem)
		}
	case *Mapping:
		if b, ok := b.(*Mapping); ok {
			key := Merge(a.Key, b.Key)
			val := Merge(a.Value, b.Value)
			if IsConflict(key) || IsConflict(val) {
				break
			}
			return DictOf(key, val)
		}
	case *Tuple:
		if b, ok := b.(*Tuple); ok && len(a.Elems) == len(b.Elems) {
			elems := make([]Type, len(a.Elems))
			conflict := false
			for i := range a.Elems {
				elems[i] = Merge(a.Elems[i], b.Elems[i])
				conflict = conflict || IsConflict(elems[i])
			}
			if conflict {
				break
			}
			return TupleOf(elems...)
		}
	}
	return &Conflict{First: a, Second: b}
}

// Promote returns the result type of an arithmetic operator applied to two numeric
// operands: int op int is int, anything involving a float is float.
// bool operands behave as int.
func Promote(a, b Type) Type {
	if IsPrim(a, Float) || IsPrim(b, Float) {
		return FloatType
	}
	return IntType
}
