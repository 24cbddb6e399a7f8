package resolve

import (
	"github.com/hashicorp/go-set/v3"

	"github.com/py2cppai/py2cpp/frontend/types"
	"github.com/py2cppai/py2cpp/util"
)

// Shape is one way a binding is used. The shapes of a binding are sent to the
// advisor and decide how well a suggested type fits.
type Shape string

const (
	ShapeArith     Shape = "arith"
	ShapeCompare   Shape = "compare"
	ShapeSubscript Shape = "subscripted"
	ShapeIndex     Shape = "index"
	ShapeIterated  Shape = "iterated"
	ShapeLen       Shape = "len"
	ShapeAppend    Shape = "append"
	ShapeAdd       Shape = "add"
	ShapeTruth     Shape = "truth"
	ShapeCalledArg Shape = "called-arg"
	ShapeReturned  Shape = "returned"
	ShapeStringOp  Shape = "string-op"
)

type usage map[string]*set.Set[Shape]

func (u usage) note(name string, shape Shape) {
	s, ok := u[name]
	if !ok {
		s = set.New[Shape](4)
		u[name] = s
	}
	s.Insert(shape)
}

// shapes returns the shapes of name in a stable order.
func (u usage) shapes(name string) []Shape {
	s, ok := u[name]
	if !ok {
		return nil
	}
	return util.SortedSlice(s)
}

// satisfies reports whether a value of type t supports a use of the given shape.
func satisfies(t types.Type, shape Shape) bool {
	if types.IsPrim(t, types.Dynamic) {
		return true
	}
	_, isContainer := types.ElementType(t)
	_, isTuple := t.(*types.Tuple)
	switch shape {
	case ShapeArith:
		return types.IsNumeric(t)
	case ShapeStringOp:
		return types.IsPrim(t, types.Str)
	case ShapeCompare:
		return types.IsNumeric(t) || types.IsPrim(t, types.Str)
	case ShapeSubscript:
		return isContainer || isTuple
	case ShapeIndex:
		return types.IsPrim(t, types.Int) || types.IsPrim(t, types.Str) || types.IsPrim(t, types.Bool)
	case ShapeIterated, ShapeLen:
		return isContainer || (isTuple && shape == ShapeLen)
	case ShapeAppend:
		_, ok := t.(*types.Sequence)
		return ok
	case ShapeAdd:
		_, ok := t.(*types.Set)
		return ok
	}
	return !types.IsPrim(t, types.None)
}

// UsageFit is the fraction of shapes a value of type t satisfies, 0.5 when nothing was observed.
func UsageFit(t types.Type, shapes []Shape) float64 {
	if len(shapes) == 0 {
		return 0.5
	}
	n := 0
	for _, s := range shapes {
		if satisfies(t, s) {
			n++
		}
	}
	return float64(n) / float64(len(shapes))
}
