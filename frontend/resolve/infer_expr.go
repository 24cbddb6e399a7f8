package resolve

import (
	"fmt"

	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/types"
)

// typeOf computes the type of e and remembers it for the IR builder.
func (in *inference) typeOf(e ast.Expr) types.Type {
	t := in.expr(e)
	if t == nil {
		t = types.Unknown
	}
	in.exprs[e] = t
	return t
}

func (in *inference) expr(e ast.Expr) types.Type {
	switch e := e.(type) {
	case *ast.Name:
		if t, ok := in.bindings[e.Id]; ok {
			return t
		}
		in.report("unbound:"+e.Id, &cerr.UnboundNameError{Range: e.Range, Name: e.Id})
		return types.Unknown
	case *ast.Constant:
		return constantType(e)
	case *ast.BinOp:
		return in.binop(e, e.Op, e.Left, e.Right)
	case *ast.UnaryOp:
		return in.unary(e)
	case *ast.BoolOp:
		return in.boolop(e)
	case *ast.Compare:
		return in.compare(e)
	case *ast.Call:
		return in.call(e)
	case *ast.Subscript:
		return in.subscript(e)
	case *ast.List:
		return in.display(e, e.Elts, types.ListOf)
	case *ast.SetDisplay:
		return in.display(e, e.Elts, types.SetOf)
	case *ast.Tuple:
		elems := make([]types.Type, len(e.Elts))
		for i, elt := range e.Elts {
			elems[i] = in.typeOf(elt)
		}
		return types.TupleOf(elems...)
	case *ast.Dict:
		key := in.join(e, e.Keys)
		val := in.join(e, e.Values)
		return types.DictOf(key, val)
	}
	// attributes outside calls and unsupported expressions are reported by the IR builder
	return types.Unknown
}

func constantType(c *ast.Constant) types.Type {
	switch c.Kind {
	case ast.IntConst:
		return types.IntType
	case ast.FloatConst:
		return types.FloatType
	case ast.BoolConst:
		return types.BoolType
	case ast.StrConst:
		return types.StrType
	}
	return types.NoneType
}

// join is the element type of a display: all elements must agree,
// except that mixing int and float gives float.
func (in *inference) join(at ast.Expr, elts []ast.Expr) types.Type {
	elem := types.Unknown
	for _, elt := range elts {
		t := in.typeOf(elt)
		joined := widen(elem, t)
		if types.IsConflict(joined) {
			in.conflict(ast.FormatExpr(at), elem, t, elt)
			return types.Unknown
		}
		elem = joined
	}
	if types.IsResolved(elem) {
		for _, elt := range elts {
			in.demandExpr(elt, elem)
		}
	}
	return elem
}

func (in *inference) display(at ast.Expr, elts []ast.Expr, wrap func(types.Type) types.Type) types.Type {
	return wrap(in.join(at, elts))
}

func (in *inference) binop(at ast.Positioner, op ast.BinOpKind, left, right ast.Expr) types.Type {
	lt := in.typeOf(left)
	rt := in.typeOf(right)
	atExpr, ok := at.(ast.Expr)
	if !ok {
		// augmented assignment: charge conflicts to the target
		atExpr = &ast.BinOp{Range: ast.RangeOf(at), Left: left, Op: op, Right: right}
	}

	if types.IsConflict(lt) || types.IsConflict(rt) {
		return types.Unknown
	}
	if types.IsPrim(lt, types.Dynamic) || types.IsPrim(rt, types.Dynamic) {
		in.note(left, ShapeArith)
		in.note(right, ShapeArith)
		return types.DynamicType
	}

	switch {
	case types.IsNumeric(lt) && types.IsNumeric(rt):
		in.note(left, ShapeArith)
		in.note(right, ShapeArith)
		return arithResult(op, lt, rt, right)
	case types.IsPrim(lt, types.Str) || types.IsPrim(rt, types.Str):
		return in.stringOp(atExpr, op, left, lt, right, rt)
	}

	if ls, ok := lt.(*types.Sequence); ok && op == ast.Add {
		in.demandExpr(right, ls)
		if merged := types.Merge(lt, rt); !types.IsConflict(merged) {
			return merged
		}
		return in.noRule(atExpr, left, lt, right, rt)
	}
	if rs, ok := rt.(*types.Sequence); ok && op == ast.Add && types.IsUnresolved(lt) {
		in.demandExpr(left, rs)
		return rs
	}

	if types.IsUnresolved(lt) || types.IsUnresolved(rt) {
		known, other := lt, right
		if types.IsUnresolved(lt) {
			known, other = rt, left
		}
		if !types.IsUnresolved(known) && !types.IsNumeric(known) {
			// a container meets an unknown operand under an arithmetic operator
			return in.noRule(atExpr, left, lt, right, rt)
		}
		in.note(other, ShapeArith)
		if types.IsPrim(known, types.Float) || op == ast.Div {
			return types.FloatType
		}
		return types.Unknown
	}
	return in.noRule(atExpr, left, lt, right, rt)
}

func arithResult(op ast.BinOpKind, lt, rt types.Type, right ast.Expr) types.Type {
	switch op {
	case ast.Div:
		return types.FloatType
	case ast.Pow:
		if c, ok := right.(*ast.Constant); ok && c.Kind == ast.IntConst && c.Int < 0 {
			return types.FloatType
		}
		if u, ok := right.(*ast.UnaryOp); ok && u.Op == ast.USub {
			if c, ok := u.Operand.(*ast.Constant); ok && c.Kind == ast.IntConst && c.Int > 0 {
				return types.FloatType
			}
		}
	}
	return types.Promote(lt, rt)
}

// stringOp types + and * when at least one operand is a str.
func (in *inference) stringOp(at ast.Expr, op ast.BinOpKind, left ast.Expr, lt types.Type, right ast.Expr, rt types.Type) types.Type {
	in.note(left, ShapeStringOp)
	in.note(right, ShapeStringOp)
	isStr := func(t types.Type) bool { return types.IsPrim(t, types.Str) }
	isInt := func(t types.Type) bool { return types.IsPrim(t, types.Int) || types.IsPrim(t, types.Bool) }

	switch op {
	case ast.Add:
		switch {
		case isStr(lt) && isStr(rt):
			return types.StrType
		case isStr(lt) && types.IsUnresolved(rt):
			in.demandExpr(right, types.StrType)
			return types.StrType
		case isStr(rt) && types.IsUnresolved(lt):
			in.demandExpr(left, types.StrType)
			return types.StrType
		}
	case ast.Mult:
		switch {
		case isStr(lt) && isInt(rt), isInt(lt) && isStr(rt):
			return types.StrType
		case isStr(lt) && types.IsUnresolved(rt):
			in.demandExpr(right, types.IntType)
			return types.StrType
		case isStr(rt) && types.IsUnresolved(lt):
			in.demandExpr(left, types.IntType)
			return types.StrType
		}
	}
	return in.noRule(at, left, lt, right, rt)
}

func (in *inference) unary(e *ast.UnaryOp) types.Type {
	t := in.typeOf(e.Operand)
	if e.Op == ast.Not {
		in.note(e.Operand, ShapeTruth)
		return types.BoolType
	}
	in.note(e.Operand, ShapeArith)
	switch {
	case types.IsUnresolved(t), types.IsConflict(t):
		return types.Unknown
	case types.IsPrim(t, types.Bool):
		return types.IntType
	case types.IsNumeric(t), types.IsPrim(t, types.Dynamic):
		return t
	}
	return in.noRule(e, e.Operand, t, e, types.IntType)
}

// boolop gives a and/or chain the type of its operands when they agree, and
// bool otherwise, in which case every operand is converted to its truth value.
func (in *inference) boolop(e *ast.BoolOp) types.Type {
	var first types.Type
	same, known := true, true
	for _, v := range e.Values {
		t := in.typeOf(v)
		in.note(v, ShapeTruth)
		if types.IsUnresolved(t) || types.IsConflict(t) {
			known = false
			continue
		}
		if first == nil {
			first = t
		} else if !first.Equals(t) {
			same = false
		}
	}
	if !known {
		return types.Unknown
	}
	if same && first != nil {
		return first
	}
	return types.BoolType
}

func (in *inference) compare(e *ast.Compare) types.Type {
	left := e.Left
	lt := in.typeOf(left)
	for i, op := range e.Ops {
		right := e.Comparators[i]
		rt := in.typeOf(right)
		switch op {
		case ast.In, ast.NotIn:
			in.membership(e, left, lt, right, rt)
		default:
			in.note(left, ShapeCompare)
			in.note(right, ShapeCompare)
			if !comparable(op, lt, rt) {
				in.noRule(e, left, lt, right, rt)
			}
		}
		left, lt = right, rt
	}
	return types.BoolType
}

func comparable(op ast.CmpOpKind, lt, rt types.Type) bool {
	if !types.IsResolved(lt) || !types.IsResolved(rt) {
		return true
	}
	if types.IsPrim(lt, types.Dynamic) || types.IsPrim(rt, types.Dynamic) {
		return true
	}
	if types.IsNumeric(lt) && types.IsNumeric(rt) {
		return true
	}
	if !lt.Equals(rt) {
		return false
	}
	if op == ast.Eq || op == ast.NotEq {
		return true
	}
	switch lt.(type) {
	case *types.Mapping, *types.Set:
		return false
	}
	return true
}

func (in *inference) membership(at ast.Expr, left ast.Expr, lt types.Type, right ast.Expr, rt types.Type) {
	in.note(right, ShapeIterated)
	switch {
	case types.IsUnresolved(rt), types.IsConflict(rt), types.IsPrim(rt, types.Dynamic):
		return
	}
	elem, ok := types.ElementType(rt)
	if !ok {
		in.noRule(at, right, rt, left, lt)
		return
	}
	in.demandExpr(left, elem)
}

func (in *inference) subscript(e *ast.Subscript) types.Type {
	ct := in.typeOf(e.Value)
	it := in.typeOf(e.Index)
	in.note(e.Value, ShapeSubscript)
	in.note(e.Index, ShapeIndex)

	switch c := ct.(type) {
	case *types.Sequence:
		in.demandExpr(e.Index, types.IntType)
		return c.Elem
	case *types.Mapping:
		in.demandExpr(e.Index, c.Key)
		return c.Value
	case *types.Tuple:
		if lit, ok := e.Index.(*ast.Constant); ok && lit.Kind == ast.IntConst {
			i := lit.Int
			if i < 0 {
				i += int64(len(c.Elems))
			}
			if i >= 0 && i < int64(len(c.Elems)) {
				return c.Elems[i]
			}
			in.report("index:"+ast.FormatExpr(e), &cerr.UnsupportedConstructError{
				Range:     e.Range,
				Construct: fmt.Sprintf("tuple index %d out of range", lit.Int),
			})
			return types.Unknown
		}
		elem := types.Unknown
		for _, t := range c.Elems {
			elem = types.Merge(elem, t)
		}
		if types.IsConflict(elem) {
			return in.noRule(e, e.Value, ct, e.Index, it)
		}
		in.demandExpr(e.Index, types.IntType)
		return elem
	case *types.Primitive:
		switch c.Kind {
		case types.Str:
			in.demandExpr(e.Index, types.IntType)
			return types.StrType
		case types.Dynamic:
			return types.DynamicType
		}
	case *types.Unresolved, *types.Conflict:
		return types.Unknown
	}
	return in.noRule(e, e.Value, ct, e.Index, it)
}

func (in *inference) call(e *ast.Call) types.Type {
	if attr, ok := e.Func.(*ast.Attribute); ok {
		return in.method(e, attr)
	}
	name, ok := e.Func.(*ast.Name)
	if !ok || in.isBinding(name.Id) {
		for _, a := range e.Args {
			in.typeOf(a)
		}
		return types.Unknown
	}
	if sig, ok := in.sigs.Lookup(name.Id); ok {
		return in.callFunction(e, sig)
	}
	if t, ok := in.builtin(e, name.Id); ok {
		return t
	}
	in.report("unbound:"+name.Id, &cerr.UnboundNameError{Range: name.Range, Name: name.Id})
	for _, a := range e.Args {
		in.typeOf(a)
	}
	return types.Unknown
}

func (in *inference) callFunction(e *ast.Call, sig *Signature) types.Type {
	if len(e.Args) != sig.Arity() {
		in.report("arity:"+ast.FormatExpr(e), &cerr.InvalidSignatureError{
			Range:    e.Range,
			Function: sig.Name,
			Reason:   fmt.Sprintf("expects %d argument(s), got %d", sig.Arity(), len(e.Args)),
		})
	}
	seen := in.callArgs[sig.Name]
	for i, a := range e.Args {
		t := in.typeOf(a)
		in.note(a, ShapeCalledArg)
		if i >= sig.Arity() {
			continue
		}
		in.demandExpr(a, sig.Params[i].Type)
		if len(seen) <= i {
			seen = append(seen, make([]types.Type, i+1-len(seen))...)
		}
		if seen[i] == nil {
			seen[i] = types.Unknown
		}
		if w := widen(seen[i], t); !types.IsConflict(w) {
			seen[i] = w
		}
	}
	in.callArgs[sig.Name] = seen
	return sig.Return
}

func (in *inference) method(e *ast.Call, attr *ast.Attribute) types.Type {
	recv := in.typeOf(attr.Value)
	args := make([]types.Type, len(e.Args))
	for i, a := range e.Args {
		args[i] = in.typeOf(a)
	}
	if len(args) != 1 {
		return types.Unknown
	}
	switch attr.Attr {
	case "append":
		in.note(attr.Value, ShapeAppend)
		in.demandExpr(attr.Value, types.ListOf(args[0]))
		if s, ok := recv.(*types.Sequence); ok && types.IsResolved(s.Elem) {
			in.demandExpr(e.Args[0], s.Elem)
		}
		return types.NoneType
	case "add":
		in.note(attr.Value, ShapeAdd)
		in.demandExpr(attr.Value, types.SetOf(args[0]))
		if s, ok := recv.(*types.Set); ok && types.IsResolved(s.Elem) {
			in.demandExpr(e.Args[0], s.Elem)
		}
		return types.NoneType
	}
	return types.Unknown
}

// builtin types a call to one of the supported builtin functions.
func (in *inference) builtin(e *ast.Call, name string) (types.Type, bool) {
	args := make([]types.Type, len(e.Args))
	for i, a := range e.Args {
		args[i] = in.typeOf(a)
	}
	arg := func(i int) types.Type {
		if i < len(args) {
			return args[i]
		}
		return types.Unknown
	}

	switch name {
	case "len":
		if len(e.Args) == 1 {
			in.note(e.Args[0], ShapeLen)
			t := args[0]
			_, isContainer := types.ElementType(t)
			_, isTuple := t.(*types.Tuple)
			if types.IsResolved(t) && !isContainer && !isTuple && !types.IsPrim(t, types.Dynamic) {
				in.noRule(e, e.Args[0], t, e, types.ListOf(types.Unknown))
			}
		}
		return types.IntType, true
	case "print":
		return types.NoneType, true
	case "abs":
		t := arg(0)
		if len(e.Args) == 1 {
			in.note(e.Args[0], ShapeArith)
		}
		if types.IsPrim(t, types.Bool) {
			return types.IntType, true
		}
		return t, true
	case "min", "max":
		return in.extremum(e, args), true
	case "int":
		return types.IntType, true
	case "float":
		return types.FloatType, true
	case "str":
		return types.StrType, true
	case "bool":
		return types.BoolType, true
	case "range":
		for _, a := range e.Args {
			in.demandExpr(a, types.IntType)
		}
		return types.ListOf(types.IntType), true
	case "list", "set":
		wrap := types.ListOf
		if name == "set" {
			wrap = types.SetOf
		}
		if len(args) == 0 {
			return wrap(types.Unknown), true
		}
		in.note(e.Args[0], ShapeIterated)
		if types.IsPrim(args[0], types.Dynamic) {
			return wrap(types.DynamicType), true
		}
		elem, ok := types.ElementType(args[0])
		if !ok {
			return wrap(types.Unknown), true
		}
		return wrap(elem), true
	case "dict":
		if len(args) == 0 {
			return types.DictOf(types.Unknown, types.Unknown), true
		}
		if _, ok := args[0].(*types.Mapping); ok {
			return args[0], true
		}
		return types.DictOf(types.Unknown, types.Unknown), true
	}
	return nil, false
}

// extremum types min/max over two or more values, or over one container.
func (in *inference) extremum(e *ast.Call, args []types.Type) types.Type {
	if len(args) == 1 {
		in.note(e.Args[0], ShapeIterated)
		if elem, ok := types.ElementType(args[0]); ok {
			return elem
		}
		return types.Unknown
	}
	result := types.Unknown
	for i, t := range args {
		in.note(e.Args[i], ShapeCompare)
		if types.IsUnresolved(t) {
			return types.Unknown
		}
		w := widen(result, t)
		if types.IsConflict(w) {
			return in.noRule(e, e.Args[i], t, e.Args[0], result)
		}
		result = w
	}
	return result
}
