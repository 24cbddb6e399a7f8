package irgen

import (
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/resolve"
	"github.com/py2cppai/py2cpp/frontend/types"
	"github.com/py2cppai/py2cpp/ir"
)

// value is a lowered expression.
type value struct {
	op ir.Operand
	t  types.Type
	// failed marks poison, whose failure has already been reported
	failed bool
}

// poison stands in for an expression that failed to lower. The function is
// rejected anyway, so it only has to keep the builder going. Consumers that
// check the type of a value skip poison so each construct is reported once.
var poison = value{op: ir.NoneOp(), t: types.Unknown, failed: true}

var arithOps = map[ast.BinOpKind]ir.Op{
	ast.Add:      ir.OpAdd,
	ast.Sub:      ir.OpSub,
	ast.Mult:     ir.OpMul,
	ast.Div:      ir.OpDiv,
	ast.FloorDiv: ir.OpFloorDiv,
	ast.Mod:      ir.OpMod,
	ast.Pow:      ir.OpPow,
}

var cmpOps = map[ast.CmpOpKind]ir.Op{
	ast.Eq:    ir.OpEq,
	ast.NotEq: ir.OpNe,
	ast.Lt:    ir.OpLt,
	ast.LtE:   ir.OpLe,
	ast.Gt:    ir.OpGt,
	ast.GtE:   ir.OpGe,
	ast.In:    ir.OpIn,
	ast.NotIn: ir.OpNotIn,
}

var conversions = map[types.PrimKind]string{
	types.Int:   ir.BuiltinInt,
	types.Float: ir.BuiltinFloat,
	types.Bool:  ir.BuiltinBool,
	types.Str:   ir.BuiltinStr,
}

func (b *builder) binop(op ir.Op, x, y ir.Operand, t types.Type) value {
	dst := b.f.NewValue(t, "t")
	b.cur.Append(&ir.BinOp{Dst: dst, Op: op, X: x, Y: y})
	return value{op: ir.Ref(dst), t: t}
}

func (b *builder) call(name string, t types.Type, args ...ir.Operand) value {
	dst := b.f.NewValue(t, "t")
	b.cur.Append(&ir.Call{Dst: dst, Callee: name, Builtin: true, Args: args})
	return value{op: ir.Ref(dst), t: t}
}

func (b *builder) expr(e ast.Expr) value {
	t := b.res.TypeOf(e)
	switch e := e.(type) {
	case *ast.Name:
		if _, ok := b.vars[e.Id]; !ok {
			b.unsupported(e, "'%s' used as a value", e.Id)
			return poison
		}
		return b.loadVar(e.Id)
	case *ast.Constant:
		return constant(e)
	case *ast.BinOp:
		l := b.expr(e.Left)
		r := b.expr(e.Right)
		return b.arith(e, e.Op, l, r, t)
	case *ast.UnaryOp:
		return b.unary(e, t)
	case *ast.BoolOp:
		return b.boolOp(e, t)
	case *ast.Compare:
		return b.compare(e)
	case *ast.Call:
		return b.callExpr(e, t)
	case *ast.Subscript:
		c := b.expr(e.Value)
		return b.subscript(e, c)
	case *ast.List:
		if s, ok := t.(*types.Sequence); ok {
			return b.display(ir.BuiltinList, t, e.Elts, s.Elem)
		}
	case *ast.SetDisplay:
		if s, ok := t.(*types.Set); ok {
			return b.display(ir.BuiltinSet, t, e.Elts, s.Elem)
		}
	case *ast.Tuple:
		if tup, ok := t.(*types.Tuple); ok && len(tup.Elems) == len(e.Elts) {
			args := make([]ir.Operand, len(e.Elts))
			for i, elt := range e.Elts {
				args[i] = b.coerce(elt, b.expr(elt), tup.Elems[i])
			}
			return b.call(ir.BuiltinTuple, t, args...)
		}
	case *ast.Dict:
		if m, ok := t.(*types.Mapping); ok {
			args := make([]ir.Operand, 0, 2*len(e.Keys))
			for i := range e.Keys {
				args = append(args, b.coerce(e.Keys[i], b.expr(e.Keys[i]), m.Key))
				args = append(args, b.coerce(e.Values[i], b.expr(e.Values[i]), m.Value))
			}
			return b.call(ir.BuiltinDict, t, args...)
		}
	case *ast.Attribute:
		b.unsupported(e, "attribute access %s", ast.FormatExpr(e))
		return poison
	case *ast.UnsupportedExpr:
		b.unsupported(e, "%s expression", e.Kind)
		return poison
	}
	b.unsupported(e, "%s of type %v", ast.FormatExpr(e), t)
	return poison
}

func constant(c *ast.Constant) value {
	switch c.Kind {
	case ast.IntConst:
		return value{op: ir.IntOp(c.Int), t: types.IntType}
	case ast.FloatConst:
		return value{op: ir.FloatOp(c.Float), t: types.FloatType}
	case ast.BoolConst:
		return value{op: ir.BoolOp(c.Bool), t: types.BoolType}
	case ast.StrConst:
		return value{op: ir.StrOp(c.Str), t: types.StrType}
	}
	return value{op: ir.NoneOp(), t: types.NoneType}
}

func (b *builder) display(ctor string, t types.Type, elts []ast.Expr, elem types.Type) value {
	args := make([]ir.Operand, len(elts))
	for i, elt := range elts {
		args[i] = b.coerce(elt, b.expr(elt), elem)
	}
	return b.call(ctor, t, args...)
}

// coerce converts v to want. The resolver only lets through conversions that
// preserve meaning: int widening to float, bool to int, and boxing to or
// unboxing from dynamic.
func (b *builder) coerce(at ast.Positioner, v value, want types.Type) ir.Operand {
	if want == nil || types.IsUnresolved(v.t) || v.t.Equals(want) {
		return v.op
	}
	from, isPrim := v.t.(*types.Primitive)
	to, wantPrim := want.(*types.Primitive)
	if isPrim && wantPrim {
		switch {
		case to.Kind == types.Dynamic && from.Kind != types.None:
			return b.call(ir.BuiltinDynamic, want, v.op).op
		case from.Kind == types.Dynamic && conversions[to.Kind] != "":
			return b.call(conversions[to.Kind], want, v.op).op
		case to.Kind == types.Float && (from.Kind == types.Int || from.Kind == types.Bool):
			if n, ok := v.op.IntLit(); ok {
				return ir.FloatOp(float64(n))
			}
			return b.call(ir.BuiltinFloat, want, v.op).op
		case to.Kind == types.Int && from.Kind == types.Bool:
			if n, ok := v.op.IntLit(); ok {
				return ir.IntOp(n)
			}
			return b.call(ir.BuiltinInt, want, v.op).op
		}
	}
	b.unsupported(at, "conversion from %v to %v", v.t, want)
	return v.op
}

func (b *builder) truth(v value) ir.Operand {
	if types.IsPrim(v.t, types.Bool) {
		return v.op
	}
	return b.call(ir.BuiltinBool, types.BoolType, v.op).op
}

func (b *builder) condition(e ast.Expr) ir.Operand {
	return b.truth(b.expr(e))
}

func (b *builder) arith(at ast.Positioner, kind ast.BinOpKind, l, r value, t types.Type) value {
	op := arithOps[kind]
	switch rt := t.(type) {
	case *types.Primitive:
		switch rt.Kind {
		case types.Int, types.Float, types.Dynamic:
			return b.binop(op, b.coerce(at, l, t), b.coerce(at, r, t), t)
		case types.Str:
			if kind == ast.Mult {
				// repetition keeps the string on the left whatever the source order
				if !types.IsPrim(l.t, types.Str) {
					l, r = r, l
				}
				return b.binop(op, l.op, b.coerce(at, r, types.IntType), t)
			}
			if kind == ast.Add {
				return b.binop(op, l.op, r.op, t)
			}
		}
	case *types.Sequence:
		if kind == ast.Add {
			return b.binop(op, b.coerce(at, l, t), b.coerce(at, r, t), t)
		}
	}
	b.unsupported(at, "operator %s on %v and %v", kind, l.t, r.t)
	return poison
}

func (b *builder) unary(e *ast.UnaryOp, t types.Type) value {
	v := b.expr(e.Operand)
	switch e.Op {
	case ast.Not:
		c := b.truth(v)
		if c.IsLit() && c.Lit.Kind == ir.LitBool {
			return value{op: ir.BoolOp(!c.Lit.Bool), t: types.BoolType}
		}
		return b.binop(ir.OpEq, c, ir.BoolOp(false), types.BoolType)
	case ast.UAdd:
		return value{op: b.coerce(e, v, t), t: t}
	}
	switch {
	case v.op.IsLit() && v.op.Lit.Kind == ir.LitInt && v.op.Lit.Int != minInt64:
		return value{op: ir.IntOp(-v.op.Lit.Int), t: types.IntType}
	case v.op.IsLit() && v.op.Lit.Kind == ir.LitFloat:
		return value{op: ir.FloatOp(-v.op.Lit.Float), t: types.FloatType}
	}
	zero := b.coerce(e, value{op: ir.IntOp(0), t: types.IntType}, t)
	return b.binop(ir.OpSub, zero, b.coerce(e, v, t), t)
}

const minInt64 = -1 << 63

// boolOp lowers and/or into a chain of diamonds that store the deciding operand
// into a hidden variable.
func (b *builder) boolOp(e *ast.BoolOp, t types.Type) value {
	result := b.hiddenVar("sc", t)
	merge := b.f.NewBlock()
	for k, operand := range e.Values {
		v := b.expr(operand)
		if types.IsPrim(t, types.Bool) {
			v = value{op: b.truth(v), t: t}
		} else {
			v = value{op: b.coerce(operand, v, t), t: t}
		}
		b.storeVar(result, v.op)
		if k == len(e.Values)-1 {
			b.cur.Term = &ir.Branch{Target: merge.ID}
			break
		}
		c := b.truth(v)
		head := b.cur
		next, skip := b.f.NewBlock(), b.f.NewBlock()
		if e.Op == ast.And {
			head.Term = &ir.CondBranch{Cond: c, Then: next.ID, Else: skip.ID}
		} else {
			head.Term = &ir.CondBranch{Cond: c, Then: skip.ID, Else: next.ID}
		}
		head.IfMerge = merge.ID
		skip.Term = &ir.Branch{Target: merge.ID}
		b.cur = next
	}
	b.cur = merge
	return b.loadVar(result)
}

func (b *builder) compare(e *ast.Compare) value {
	left := b.expr(e.Left)
	if len(e.Ops) == 1 {
		return b.cmp(e, e.Ops[0], left, b.expr(e.Comparators[0]))
	}
	// a < b < c evaluates b once and stops at the first false link
	result := b.hiddenVar("sc", types.BoolType)
	merge := b.f.NewBlock()
	for k, op := range e.Ops {
		right := b.expr(e.Comparators[k])
		c := b.cmp(e, op, left, right)
		b.storeVar(result, c.op)
		if k == len(e.Ops)-1 {
			b.cur.Term = &ir.Branch{Target: merge.ID}
			break
		}
		head := b.cur
		next, skip := b.f.NewBlock(), b.f.NewBlock()
		head.Term = &ir.CondBranch{Cond: c.op, Then: next.ID, Else: skip.ID}
		head.IfMerge = merge.ID
		skip.Term = &ir.Branch{Target: merge.ID}
		b.cur = next
		left = right
	}
	b.cur = merge
	return b.loadVar(result)
}

func (b *builder) cmp(at ast.Expr, kind ast.CmpOpKind, l, r value) value {
	op := cmpOps[kind]
	if kind == ast.In || kind == ast.NotIn {
		elem, ok := types.ElementType(r.t)
		if !ok {
			b.unsupported(at, "'%s' on a value of type %v", kind, r.t)
			return poison
		}
		return b.binop(op, b.coerce(at, l, elem), r.op, types.BoolType)
	}
	common := commonType(l.t, r.t)
	return b.binop(op, b.coerce(at, l, common), b.coerce(at, r, common), types.BoolType)
}

// commonType is the type both sides of a comparison are converted to.
func commonType(a, b types.Type) types.Type {
	switch {
	case types.IsPrim(a, types.Dynamic) || types.IsPrim(b, types.Dynamic):
		return types.DynamicType
	case types.IsNumeric(a) && types.IsNumeric(b):
		if types.IsPrim(a, types.Bool) && types.IsPrim(b, types.Bool) {
			return types.BoolType
		}
		return types.Promote(a, b)
	}
	return a
}

func (b *builder) subscript(e *ast.Subscript, c value) value {
	if c.failed {
		return poison
	}
	if tup, ok := c.t.(*types.Tuple); ok {
		lit, ok := e.Index.(*ast.Constant)
		if !ok || lit.Kind != ast.IntConst {
			b.unsupported(e, "tuple subscript with a non-literal index")
			return poison
		}
		i := lit.Int
		if i < 0 {
			i += int64(len(tup.Elems))
		}
		if i < 0 || i >= int64(len(tup.Elems)) {
			b.unsupported(e, "tuple index %d out of range", lit.Int)
			return poison
		}
		return b.call(ir.BuiltinTupleGet, tup.Elems[i], c.op, ir.IntOp(i))
	}
	return b.element(e, c, b.expr(e.Index))
}

// element reads c[index] for lists, dicts and strings.
func (b *builder) element(at ast.Expr, c, index value) value {
	if c.failed {
		return poison
	}
	switch ct := c.t.(type) {
	case *types.Sequence:
		return b.binop(ir.OpIndex, c.op, b.coerce(at, index, types.IntType), ct.Elem)
	case *types.Mapping:
		return b.binop(ir.OpIndex, c.op, b.coerce(at, index, ct.Key), ct.Value)
	}
	if types.IsPrim(c.t, types.Str) {
		return b.binop(ir.OpIndex, c.op, b.coerce(at, index, types.IntType), types.StrType)
	}
	b.unsupported(at, "subscript of a value of type %v", c.t)
	return poison
}

func (b *builder) callExpr(e *ast.Call, t types.Type) value {
	switch f := e.Func.(type) {
	case *ast.Attribute:
		return b.method(e, f)
	case *ast.Name:
		if _, ok := b.vars[f.Id]; ok {
			b.unsupported(e, "calling '%s', which is a variable", f.Id)
			return poison
		}
		if sig, ok := b.sigs.Lookup(f.Id); ok {
			return b.callFunction(e, sig)
		}
		return b.builtin(e, f.Id, t)
	}
	b.unsupported(e, "call of %s", ast.FormatExpr(e.Func))
	return poison
}

func (b *builder) callFunction(e *ast.Call, sig *resolve.Signature) value {
	args := make([]ir.Operand, len(e.Args))
	for i, a := range e.Args {
		p := sig.Params[i]
		if _, prim := p.Type.(*types.Primitive); prim && p.Output {
			b.unsupported(a, "passing an argument to output parameter '%s' of primitive type %v", p.Name, p.Type)
		}
		args[i] = b.coerce(a, b.expr(a), p.Type)
	}
	if types.IsPrim(sig.Return, types.None) {
		b.cur.Append(&ir.Call{Callee: sig.Name, Args: args})
		return value{op: ir.NoneOp(), t: types.NoneType}
	}
	dst := b.f.NewValue(sig.Return, "t")
	b.cur.Append(&ir.Call{Dst: dst, Callee: sig.Name, Args: args})
	return value{op: ir.Ref(dst), t: sig.Return}
}

func (b *builder) method(e *ast.Call, attr *ast.Attribute) value {
	var builtin string
	switch attr.Attr {
	case "append":
		builtin = ir.BuiltinAppend
	case "add":
		builtin = ir.BuiltinAdd
	default:
		b.unsupported(e, "method '%s'", attr.Attr)
		return poison
	}
	if len(e.Args) != 1 {
		b.unsupported(e, "%s() with %d arguments", attr.Attr, len(e.Args))
		return poison
	}
	recv := b.receiver(attr.Value)
	if recv.failed {
		return poison
	}
	arg := b.expr(e.Args[0])
	var elem types.Type
	switch rt := recv.t.(type) {
	case *types.Sequence:
		if builtin == ir.BuiltinAppend {
			elem = rt.Elem
		}
	case *types.Set:
		if builtin == ir.BuiltinAdd {
			elem = rt.Elem
		}
	}
	if elem == nil {
		b.unsupported(e, "%s() on a value of type %v", attr.Attr, recv.t)
		return poison
	}
	b.cur.Append(&ir.Call{Callee: builtin, Builtin: true, Args: []ir.Operand{recv.op, b.coerce(e.Args[0], arg, elem)}})
	return value{op: ir.NoneOp(), t: types.NoneType}
}

func (b *builder) builtin(e *ast.Call, name string, t types.Type) value {
	args := make([]value, len(e.Args))
	for i, a := range e.Args {
		args[i] = b.expr(a)
	}
	ops := func(want types.Type) []ir.Operand {
		out := make([]ir.Operand, len(args))
		for i, a := range args {
			out[i] = a.op
			if want != nil {
				out[i] = b.coerce(e.Args[i], a, want)
			}
		}
		return out
	}

	switch name {
	case "print":
		b.cur.Append(&ir.Call{Callee: ir.BuiltinPrint, Builtin: true, Args: ops(nil)})
		return value{op: ir.NoneOp(), t: types.NoneType}
	case "len":
		if len(args) == 1 && sized(args[0].t) {
			return b.call(ir.BuiltinLen, types.IntType, args[0].op)
		}
	case "abs":
		if len(args) == 1 {
			return b.call(ir.BuiltinAbs, t, ops(t)...)
		}
	case "min", "max":
		if len(args) == 1 {
			if _, ok := types.ElementType(args[0].t); ok {
				return b.call(name, t, args[0].op)
			}
			break
		}
		if len(args) > 1 {
			return b.call(name, t, ops(t)...)
		}
	case "int", "float", "str", "bool":
		switch {
		case len(args) == 0:
			return b.call(ir.BuiltinZero, t)
		case len(args) == 1 && args[0].t.Equals(t):
			return args[0]
		case len(args) == 1:
			return b.call(name, t, args[0].op)
		}
	case "list", "set":
		switch {
		case len(args) == 0:
			return b.call(name, t)
		case len(args) == 1 && sized(args[0].t):
			if _, tuple := args[0].t.(*types.Tuple); !tuple {
				conv := ir.BuiltinToList
				if name == "set" {
					conv = ir.BuiltinToSet
				}
				return b.call(conv, t, args[0].op)
			}
		}
	case "dict":
		switch {
		case len(args) == 0:
			return b.call(ir.BuiltinDict, t)
		case len(args) == 1 && args[0].t.Equals(t):
			// a dict call with a single argument copies it
			return b.call(ir.BuiltinDict, t, args[0].op)
		}
	case "range":
		b.unsupported(e, "range() outside a for loop")
		return poison
	default:
		b.unsupported(e, "call to unknown function '%s'", name)
		return poison
	}
	b.unsupported(e, "%s", ast.FormatExpr(e))
	return poison
}

// sized reports whether len() applies to values of type t.
func sized(t types.Type) bool {
	if _, ok := types.ElementType(t); ok {
		return true
	}
	_, ok := t.(*types.Tuple)
	return ok
}
