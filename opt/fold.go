package opt

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/py2cppai/py2cpp/frontend/types"
	"github.com/py2cppai/py2cpp/ir"
)

// maxFoldedString bounds the strings folding may create.
const maxFoldedString = 4096

// ConstFold replaces every instruction whose operands are all literals by the
// literal it computes, and phis whose inputs all agree by that input, until
// nothing is left to fold. Operations that would overflow, divide by zero or
// otherwise raise at run time are left in place.
type ConstFold struct{}

func (ConstFold) Name() string    { return "constfold" }
func (ConstFold) MinLevel() Level { return LevelBasic }

func (ConstFold) Run(_ context.Context, f *ir.Function) (int, error) {
	total := 0
	for {
		folded := map[ir.Instr]bool{}
		for _, b := range f.Blocks {
			for _, i := range b.Instrs {
				lit, ok := evaluate(f, i)
				if !ok {
					continue
				}
				f.ReplaceAllUses(i.Def(), lit)
				folded[i] = true
			}
		}
		if len(folded) == 0 {
			return total, nil
		}
		f.RemoveInstrs(func(i ir.Instr) bool { return folded[i] })
		total += len(folded)
	}
}

func evaluate(f *ir.Function, instr ir.Instr) (ir.Operand, bool) {
	switch i := instr.(type) {
	case *ir.Phi:
		return samePhiInput(i)
	case *ir.BinOp:
		if !i.X.IsLit() || !i.Y.IsLit() {
			return ir.Operand{}, false
		}
		lit, ok := foldBinOp(i.Op, i.X.Lit, i.Y.Lit)
		return checked(f, i.Dst, lit, ok)
	case *ir.Call:
		if !i.Builtin || !i.Pure() || i.Dst == ir.NoValue {
			return ir.Operand{}, false
		}
		args := make([]ir.Literal, len(i.Args))
		for k, a := range i.Args {
			if !a.IsLit() {
				return ir.Operand{}, false
			}
			args[k] = a.Lit
		}
		lit, ok := foldBuiltin(i.Callee, args, f.Value(i.Dst).Type)
		return checked(f, i.Dst, lit, ok)
	}
	return ir.Operand{}, false
}

// checked only lets through literals of the type the folded value was declared with.
func checked(f *ir.Function, dst ir.ValueID, lit ir.Literal, ok bool) (ir.Operand, bool) {
	if !ok || !lit.Type().Equals(f.Value(dst).Type) {
		return ir.Operand{}, false
	}
	return ir.Operand{Lit: lit}, true
}

func samePhiInput(phi *ir.Phi) (ir.Operand, bool) {
	var same ir.Operand
	found := false
	for _, e := range phi.Edges {
		if e.Val.IsValue() && e.Val.Value == phi.Dst {
			continue
		}
		if found && e.Val != same {
			return ir.Operand{}, false
		}
		same, found = e.Val, true
	}
	return same, found
}

func intLit(v int64) ir.Literal     { return ir.Literal{Kind: ir.LitInt, Int: v} }
func floatLit(v float64) ir.Literal { return ir.Literal{Kind: ir.LitFloat, Float: v} }
func boolLit(v bool) ir.Literal     { return ir.Literal{Kind: ir.LitBool, Bool: v} }
func strLit(v string) ir.Literal    { return ir.Literal{Kind: ir.LitStr, Str: v} }

func foldBinOp(op ir.Op, x, y ir.Literal) (ir.Literal, bool) {
	switch {
	case x.Kind == ir.LitStr && y.Kind == ir.LitStr:
		return foldStr(op, x.Str, y.Str)
	case x.Kind == ir.LitStr && y.Kind == ir.LitInt && op == ir.OpMul:
		n := max(y.Int, 0)
		if n > 0 && int64(len(x.Str)) > maxFoldedString/n {
			return ir.Literal{}, false
		}
		return strLit(strings.Repeat(x.Str, int(n))), true
	case x.Kind == ir.LitFloat && y.Kind == ir.LitFloat:
		return foldFloat(op, x.Float, y.Float)
	case isIntegral(x) && isIntegral(y):
		a, _ := ir.Operand{Lit: x}.IntLit()
		b, _ := ir.Operand{Lit: y}.IntLit()
		if x.Kind == ir.LitBool || y.Kind == ir.LitBool {
			// bools only ever meet in comparisons
			if !op.IsComparison() {
				return ir.Literal{}, false
			}
		}
		return foldInt(op, a, b)
	}
	return ir.Literal{}, false
}

func isIntegral(l ir.Literal) bool { return l.Kind == ir.LitInt || l.Kind == ir.LitBool }

func foldInt(op ir.Op, a, b int64) (ir.Literal, bool) {
	switch op {
	case ir.OpAdd:
		if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
			return ir.Literal{}, false
		}
		return intLit(a + b), true
	case ir.OpSub:
		if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
			return ir.Literal{}, false
		}
		return intLit(a - b), true
	case ir.OpMul:
		r, ok := mulInt(a, b)
		return intLit(r), ok
	case ir.OpDiv:
		if b == 0 {
			return ir.Literal{}, false
		}
		return floatLit(float64(a) / float64(b)), true
	case ir.OpFloorDiv:
		if b == 0 || (a == math.MinInt64 && b == -1) {
			return ir.Literal{}, false
		}
		return intLit(floorDiv(a, b)), true
	case ir.OpMod:
		if b == 0 {
			return ir.Literal{}, false
		}
		if b == -1 {
			return intLit(0), true
		}
		return intLit(floorMod(a, b)), true
	case ir.OpPow:
		r, ok := powInt(a, b)
		return intLit(r), ok
	}
	if c, ok := compare(op, a, b); ok {
		return boolLit(c), true
	}
	return ir.Literal{}, false
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return r, true
}

func powInt(base, exp int64) (int64, bool) {
	if exp < 0 {
		return 0, false
	}
	result := int64(1)
	for exp > 0 {
		var ok bool
		if exp&1 == 1 {
			if result, ok = mulInt(result, base); !ok {
				return 0, false
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, ok = mulInt(base, base); !ok {
				return 0, false
			}
		}
	}
	return result, true
}

// floorDiv rounds toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// floorMod takes the sign of the divisor.
func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func foldFloat(op ir.Op, a, b float64) (ir.Literal, bool) {
	var r float64
	switch op {
	case ir.OpAdd:
		r = a + b
	case ir.OpSub:
		r = a - b
	case ir.OpMul:
		r = a * b
	case ir.OpDiv:
		if b == 0 {
			return ir.Literal{}, false
		}
		r = a / b
	case ir.OpFloorDiv:
		if b == 0 {
			return ir.Literal{}, false
		}
		r = math.Floor(a / b)
	case ir.OpMod:
		if b == 0 {
			return ir.Literal{}, false
		}
		r = math.Mod(a, b)
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
	case ir.OpPow:
		if a == 0 && b < 0 {
			return ir.Literal{}, false
		}
		r = math.Pow(a, b)
	default:
		if c, ok := compare(op, a, b); ok {
			return boolLit(c), true
		}
		return ir.Literal{}, false
	}
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return ir.Literal{}, false
	}
	return floatLit(r), true
}

func foldStr(op ir.Op, a, b string) (ir.Literal, bool) {
	switch op {
	case ir.OpAdd:
		if len(a)+len(b) > maxFoldedString {
			return ir.Literal{}, false
		}
		return strLit(a + b), true
	case ir.OpIn:
		return boolLit(strings.Contains(b, a)), true
	case ir.OpNotIn:
		return boolLit(!strings.Contains(b, a)), true
	}
	if c, ok := compare(op, a, b); ok {
		return boolLit(c), true
	}
	return ir.Literal{}, false
}

func compare[T int64 | float64 | string](op ir.Op, a, b T) (bool, bool) {
	switch op {
	case ir.OpEq:
		return a == b, true
	case ir.OpNe:
		return a != b, true
	case ir.OpLt:
		return a < b, true
	case ir.OpLe:
		return a <= b, true
	case ir.OpGt:
		return a > b, true
	case ir.OpGe:
		return a >= b, true
	}
	return false, false
}

func foldBuiltin(name string, args []ir.Literal, result types.Type) (ir.Literal, bool) {
	if name == ir.BuiltinZero {
		return zeroOf(result)
	}
	if len(args) == 0 {
		return ir.Literal{}, false
	}
	a := args[0]
	switch name {
	case ir.BuiltinAbs:
		switch {
		case a.Kind == ir.LitInt && a.Int != math.MinInt64:
			return intLit(max(a.Int, -a.Int)), true
		case a.Kind == ir.LitFloat:
			return floatLit(math.Abs(a.Float)), true
		}
	case ir.BuiltinMin, ir.BuiltinMax:
		return foldMinMax(name == ir.BuiltinMin, args)
	case ir.BuiltinLen:
		if a.Kind == ir.LitStr && isASCII(a.Str) {
			return intLit(int64(len(a.Str))), true
		}
	case ir.BuiltinInt:
		switch a.Kind {
		case ir.LitInt, ir.LitBool:
			v, _ := ir.Operand{Lit: a}.IntLit()
			return intLit(v), true
		case ir.LitFloat:
			t := math.Trunc(a.Float)
			if t >= -(1<<63) && t < 1<<63 {
				return intLit(int64(t)), true
			}
		}
	case ir.BuiltinFloat:
		switch a.Kind {
		case ir.LitInt, ir.LitBool:
			v, _ := ir.Operand{Lit: a}.IntLit()
			return floatLit(float64(v)), true
		case ir.LitFloat:
			return a, true
		}
	case ir.BuiltinStr:
		switch a.Kind {
		case ir.LitStr:
			return a, true
		case ir.LitInt:
			return strLit(strconv.FormatInt(a.Int, 10)), true
		case ir.LitBool:
			if a.Bool {
				return strLit("True"), true
			}
			return strLit("False"), true
		}
	case ir.BuiltinBool:
		switch a.Kind {
		case ir.LitBool:
			return a, true
		case ir.LitInt:
			return boolLit(a.Int != 0), true
		case ir.LitFloat:
			return boolLit(a.Float != 0), true
		case ir.LitStr:
			return boolLit(a.Str != ""), true
		}
	}
	return ir.Literal{}, false
}

func foldMinMax(isMin bool, args []ir.Literal) (ir.Literal, bool) {
	if len(args) < 2 {
		return ir.Literal{}, false
	}
	best := args[0]
	for _, a := range args[1:] {
		if a.Kind != best.Kind {
			return ir.Literal{}, false
		}
		var less, greater bool
		switch a.Kind {
		case ir.LitInt:
			less, greater = a.Int < best.Int, a.Int > best.Int
		case ir.LitFloat:
			less, greater = a.Float < best.Float, a.Float > best.Float
		default:
			return ir.Literal{}, false
		}
		if (isMin && less) || (!isMin && greater) {
			best = a
		}
	}
	return best, true
}

func zeroOf(t types.Type) (ir.Literal, bool) {
	p, ok := t.(*types.Primitive)
	if !ok {
		return ir.Literal{}, false
	}
	switch p.Kind {
	case types.Int:
		return intLit(0), true
	case types.Float:
		return floatLit(0), true
	case types.Bool:
		return boolLit(false), true
	case types.Str:
		return strLit(""), true
	}
	return ir.Literal{}, false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
