package backend

import (
	"fmt"
	"strings"

	"github.com/py2cppai/py2cpp/frontend/types"
)

// cppType maps t to the C++ type values of t are declared with. None has no
// value representation and is only accepted by returnType.
func (u *usage) cppType(t types.Type) (string, error) {
	switch e := t.(type) {
	case *types.Primitive:
		switch e.Kind {
		case types.Int:
			u.include("<cstdint>")
			return "int64_t", nil
		case types.Float:
			return "double", nil
		case types.Bool:
			return "bool", nil
		case types.Str:
			u.include("<string>")
			return "std::string", nil
		case types.Dynamic:
			u.need("dynamic")
			return "py_dynamic", nil
		}

	case *types.Sequence:
		elem, err := u.cppType(e.Elem)
		if err != nil {
			return "", err
		}
		u.include("<vector>")
		return "std::vector<" + elem + ">", nil

	case *types.Set:
		elem, err := u.cppType(e.Elem)
		if err != nil {
			return "", err
		}
		u.include("<set>")
		return "std::set<" + elem + ">", nil

	case *types.Mapping:
		key, err := u.cppType(e.Key)
		if err != nil {
			return "", err
		}
		val, err := u.cppType(e.Value)
		if err != nil {
			return "", err
		}
		u.include("<map>")
		return "std::map<" + key + ", " + val + ">", nil

	case *types.Tuple:
		elems := make([]string, len(e.Elems))
		for i, elem := range e.Elems {
			s, err := u.cppType(elem)
			if err != nil {
				return "", err
			}
			elems[i] = s
		}
		u.include("<tuple>")
		return "std::tuple<" + strings.Join(elems, ", ") + ">", nil
	}
	return "", fmt.Errorf("no C++ type for %v", t)
}

func (u *usage) returnType(t types.Type) (string, error) {
	if types.IsPrim(t, types.None) {
		return "void", nil
	}
	return u.cppType(t)
}

// byReference reports whether parameters of type t are passed by reference, so
// that mutations through them reach the caller.
func byReference(t types.Type) bool {
	switch t.(type) {
	case *types.Sequence, *types.Set, *types.Mapping:
		return true
	}
	return false
}

// isContainer reports whether t is held by the emitter as a whole object rather
// than a scalar that can be folded into an expression.
func isContainer(t types.Type) bool {
	_, prim := t.(*types.Primitive)
	return !prim
}

// needRepr requests the py_repr overloads for every container kind nested in t.
func (u *usage) needRepr(t types.Type) {
	switch e := t.(type) {
	case *types.Sequence:
		u.need("repr_list")
		u.needRepr(e.Elem)
	case *types.Set:
		u.need("repr_set")
		u.needRepr(e.Elem)
	case *types.Mapping:
		u.need("repr_map")
		u.needRepr(e.Key)
		u.needRepr(e.Value)
	case *types.Tuple:
		u.need("repr_tuple")
		for _, elem := range e.Elems {
			u.needRepr(elem)
		}
	}
}
