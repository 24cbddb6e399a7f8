package backend

import (
	"fmt"
	"strings"

	"github.com/py2cppai/py2cpp/frontend/types"
	"github.com/py2cppai/py2cpp/ir"
)

// expr is a rendered C++ expression. compound is set when it must be
// parenthesized to appear as the operand of an operator.
type expr struct {
	text     string
	compound bool
}

// operand renders o. nested is set when the result is the operand of a C++ operator.
func (fe *funcEmitter) operand(o ir.Operand, nested bool) string {
	if o.IsLit() {
		if o.Lit.Kind == ir.LitNone {
			fe.fail("None used as a value")
			return "?"
		}
		s, err := fe.use.literal(o.Lit)
		if err != nil {
			fe.fail("%v", err)
		}
		return s
	}
	if name, ok := fe.paramLoads[o.Value]; ok {
		return name
	}
	if e, ok := fe.exprs[o.Value]; ok {
		if nested && e.compound {
			return "(" + e.text + ")"
		}
		return e.text
	}
	if name, ok := fe.names[o.Value]; ok {
		return name
	}
	fe.fail("%s is used before it is defined", fe.f.ValueName(o.Value))
	return "?"
}

func (fe *funcEmitter) operands(ops []ir.Operand) string {
	out := make([]string, len(ops))
	for i, o := range ops {
		out[i] = fe.operand(o, false)
	}
	return strings.Join(out, ", ")
}

func (fe *funcEmitter) instr(i ir.Instr) {
	switch i := i.(type) {
	case *ir.Phi:
		// assigned by the predecessors
	case *ir.Load:
		if _, ok := fe.paramLoads[i.Dst]; ok {
			return
		}
		if _, ok := fe.f.Param(i.Var); !ok {
			fe.fail("load of '%s', which is not a parameter", i.Var)
			return
		}
		fe.define(i.Dst, expr{text: fe.params[i.Var]})
	case *ir.Store:
		fe.store(i)
	case *ir.BinOp:
		fe.define(i.Dst, fe.binop(i))
	case *ir.Call:
		var e expr
		if i.Builtin {
			e = fe.builtin(i)
		} else {
			e = expr{text: cppIdent(i.Callee) + "(" + fe.operands(i.Args) + ")"}
		}
		if i.Dst == ir.NoValue {
			fe.line("%s;", e.text)
			return
		}
		fe.define(i.Dst, e)
	default:
		fe.fail("instruction %T", i)
	}
}

// define gives d the value of e, either by assigning its variable or by
// keeping e for the single use.
func (fe *funcEmitter) define(d ir.ValueID, e expr) {
	if fe.folded.Contains(d) {
		fe.exprs[d] = e
		return
	}
	fe.line("%s = %s;", fe.names[d], e.text)
}

func (fe *funcEmitter) store(s *ir.Store) {
	val := fe.operand(s.Val, false)
	switch s.Kind {
	case ir.StoreLocal:
		l, ok := fe.locals[s.Var]
		if !ok {
			return
		}
		if l.atStore {
			fe.line("[[maybe_unused]] %s %s = %s;", l.typ, l.name, val)
			return
		}
		fe.line("%s = %s;", l.name, val)
	case ir.StoreOutput:
		fe.line("%s = %s;", fe.params[s.Var], val)
	case ir.StoreElement:
		c := fe.operand(s.Container, true)
		idx := fe.operand(s.Index, false)
		switch t := fe.f.TypeOf(s.Container).(type) {
		case *types.Sequence:
			fe.use.need("index")
			fe.line("py_index_ref(%s, %s) = %s;", c, idx, val)
		case *types.Mapping:
			fe.line("%s[%s] = %s;", c, idx, val)
		default:
			fe.fail("item assignment on a value of type %v", t)
		}
	}
}

func (fe *funcEmitter) binop(i *ir.BinOp) expr {
	xt, yt := fe.f.TypeOf(i.X), fe.f.TypeOf(i.Y)
	rt := fe.f.Value(i.Dst).Type
	call := func(helper, fn string, args ...ir.Operand) expr {
		if helper != "" {
			fe.use.need(helper)
		}
		return expr{text: fn + "(" + fe.operands(args) + ")"}
	}

	switch i.Op {
	case ir.OpIn:
		return call("contains", "py_contains", i.Y, i.X)
	case ir.OpNotIn:
		e := call("contains", "py_contains", i.Y, i.X)
		return expr{text: "!" + e.text}
	case ir.OpIndex:
		return call("index", "py_index", i.X, i.Y)
	}

	if types.IsPrim(xt, types.Dynamic) || types.IsPrim(yt, types.Dynamic) {
		code, ok := dynamicOpCodes[i.Op]
		if !ok {
			fe.fail("operator %s on dynamic values", i.Op)
			return expr{text: "?"}
		}
		fn := "py_dyn_arith"
		if i.Op.IsComparison() {
			fn = "py_dyn_compare"
		}
		fe.use.need("dynamic_ops")
		return expr{text: fmt.Sprintf("%s('%c', %s, %s)", fn, code, fe.operand(i.X, false), fe.operand(i.Y, false))}
	}

	switch i.Op {
	case ir.OpDiv:
		return call("truediv", "py_truediv", i.X, i.Y)
	case ir.OpFloorDiv:
		return call("floordiv", "py_floordiv", i.X, i.Y)
	case ir.OpMod:
		return call("mod", "py_mod", i.X, i.Y)
	case ir.OpPow:
		if types.IsPrim(rt, types.Int) {
			return call("ipow", "py_ipow", i.X, i.Y)
		}
		fe.use.include("<cmath>")
		return call("", "std::pow", i.X, i.Y)
	case ir.OpAdd:
		if _, ok := rt.(*types.Sequence); ok {
			return call("concat", "py_concat", i.X, i.Y)
		}
	case ir.OpMul:
		if types.IsPrim(rt, types.Str) {
			return call("str_repeat", "py_str_repeat", i.X, i.Y)
		}
	}

	op, ok := cppOperators[i.Op]
	if !ok {
		fe.fail("operator %s on %v and %v", i.Op, xt, yt)
		return expr{text: "?"}
	}
	return expr{
		text:     fmt.Sprintf("%s %s %s", fe.operand(i.X, true), op, fe.operand(i.Y, true)),
		compound: true,
	}
}

func (fe *funcEmitter) builtin(i *ir.Call) expr {
	args := i.Args
	var dst types.Type
	if i.Dst != ir.NoValue {
		dst = fe.f.Value(i.Dst).Type
	}
	arg := func(k int) string { return fe.operand(args[k], false) }
	argType := func(k int) types.Type { return fe.f.TypeOf(args[k]) }
	call := func(helper, fn string) expr {
		if helper != "" {
			fe.use.need(helper)
		}
		return expr{text: fn + "(" + fe.operands(args) + ")"}
	}
	arity := func(n int) bool {
		if len(args) != n {
			fe.fail("%s with %d arguments", i.Callee, len(args))
			return false
		}
		return true
	}

	switch i.Callee {
	case ir.BuiltinPrint:
		for k := range args {
			fe.use.needRepr(argType(k))
		}
		return call("print", "py_print")
	case ir.BuiltinLen:
		return call("len", "py_len")
	case ir.BuiltinStr:
		for k := range args {
			fe.use.needRepr(argType(k))
		}
		return call("str", "py_str")
	case ir.BuiltinKeys:
		return call("keys", "py_keys")
	case ir.BuiltinRangeContinues:
		return call("range", "py_range_continues")
	case ir.BuiltinToList:
		return call("convert", "py_to_list")
	case ir.BuiltinToSet:
		return call("convert", "py_to_set")
	case ir.BuiltinDynamic:
		return call("dynamic", "py_dynamic")

	case ir.BuiltinBool:
		if arity(1) && types.IsPrim(argType(0), types.Bool) {
			return expr{text: arg(0)}
		}
		return call("truthy", "py_truthy")

	case ir.BuiltinAbs:
		if types.IsPrim(dst, types.Dynamic) {
			break
		}
		fe.use.include("<cmath>", "<cstdlib>")
		return call("", "std::abs")

	case ir.BuiltinMin, ir.BuiltinMax:
		if len(args) == 1 {
			return call("minmax", "py_"+i.Callee)
		}
		if types.IsPrim(dst, types.Dynamic) {
			break
		}
		fe.use.include("<algorithm>")
		return expr{text: fmt.Sprintf("std::%s<%s>({%s})", i.Callee, fe.typeOf(dst), fe.operands(args))}

	case ir.BuiltinInt, ir.BuiltinFloat:
		if !arity(1) {
			break
		}
		return fe.convert(i.Callee, argType(0), dst, arg(0))

	case ir.BuiltinAppend:
		if arity(2) {
			return expr{text: fmt.Sprintf("%s.push_back(%s)", fe.operand(args[0], true), arg(1))}
		}
	case ir.BuiltinAdd:
		if arity(2) {
			return expr{text: fmt.Sprintf("%s.insert(%s)", fe.operand(args[0], true), arg(1))}
		}

	case ir.BuiltinList, ir.BuiltinSet, ir.BuiltinTuple, ir.BuiltinZero:
		return expr{text: fe.typeOf(dst) + "{" + fe.operands(args) + "}"}
	case ir.BuiltinDict:
		if len(args) == 1 {
			return expr{text: fe.typeOf(dst) + "(" + arg(0) + ")"}
		}
		pairs := make([]string, 0, len(args)/2)
		for k := 0; k+1 < len(args); k += 2 {
			pairs = append(pairs, "{"+arg(k)+", "+arg(k+1)+"}")
		}
		return expr{text: fe.typeOf(dst) + "{" + strings.Join(pairs, ", ") + "}"}

	case ir.BuiltinTupleGet:
		n, ok := args[1].IntLit()
		if !ok {
			fe.fail("tuple index that is not a literal")
			break
		}
		return expr{text: fmt.Sprintf("std::get<%d>(%s)", n, arg(0))}
	}
	fe.fail("builtin %s on %s", i.Callee, fe.describe(args))
	return expr{text: "?"}
}

// convert renders int() and float() of a value of type from.
func (fe *funcEmitter) convert(to string, from, dst types.Type, x string) expr {
	p, ok := from.(*types.Primitive)
	if !ok {
		fe.fail("%s of a value of type %v", to, from)
		return expr{text: "?"}
	}
	target := fe.typeOf(dst)
	switch p.Kind {
	case types.Int, types.Float, types.Bool:
		if from.Equals(dst) {
			return expr{text: x}
		}
		return expr{text: fmt.Sprintf("static_cast<%s>(%s)", target, x)}
	case types.Str:
		fe.use.need("parse")
		return expr{text: fmt.Sprintf("py_%s_from_str(%s)", to, x)}
	case types.Dynamic:
		fe.use.need("dynamic_ops")
		return expr{text: fmt.Sprintf("py_dyn_%s(%s)", to, x)}
	}
	fe.fail("%s of a value of type %v", to, from)
	return expr{text: "?"}
}

func (fe *funcEmitter) describe(args []ir.Operand) string {
	ts := make([]string, len(args))
	for i, a := range args {
		ts[i] = fe.f.TypeOf(a).String()
	}
	return "(" + strings.Join(ts, ", ") + ")"
}
