package resolve

import (
	"fmt"

	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/types"
)

// maxRounds bounds the fixed-point iteration of static inference.
const maxRounds = 16

// returnBinding names the return value of a function in conflicts.
const returnBinding = "return value"

// inference is the static typing of one function body. It walks the body
// repeatedly until no binding changes. Each use merges what it demands into
// the binding's type; a merge reaching Conflict is recorded as a
// TypeConflictError at that use, once per binding.
type inference struct {
	fn   *ast.FunctionDef
	sigs *Signatures

	bindings map[string]types.Type
	kinds    map[string]types.BindingKind
	sources  map[string]types.Source
	// pinned bindings are only checked against demands, never refined
	pinned   map[string]bool
	order    []string
	exprs    map[ast.Expr]types.Type
	aug      map[*ast.AugAssign]types.Type
	usage    usage

	ret          types.Type
	retFixed     bool
	valueReturns bool
	// callArgs holds, per module callee, the argument types seen at call sites
	callArgs map[string][]types.Type

	errs     *cerr.Errors
	reported map[string]bool
	changed  bool
}

func newInference(fn *ast.FunctionDef, sigs *Signatures) *inference {
	in := &inference{
		fn:       fn,
		sigs:     sigs,
		bindings: map[string]types.Type{},
		kinds:    map[string]types.BindingKind{},
		sources:  map[string]types.Source{},
		pinned:   map[string]bool{},
		exprs:    map[ast.Expr]types.Type{},
		aug:      map[*ast.AugAssign]types.Type{},
		usage:    usage{},
		ret:      types.Unknown,
		callArgs: map[string][]types.Type{},
		reported: map[string]bool{},
	}
	if sig, ok := sigs.Lookup(fn.Name); ok {
		for _, p := range sig.Params {
			in.declare(p.Name, types.Param)
			if p.Output {
				in.kinds[p.Name] = types.OutputParam
			}
			switch {
			case sigs.sealed && p.Source == types.FromFallback:
				// inferred again from the body so conflicts surface; the signature type applies at the end
			case sigs.sealed:
				in.seed(p.Name, p.Type, p.Source)
				in.pinned[p.Name] = true
			case p.Source != types.FromNothing:
				in.seed(p.Name, p.Type, p.Source)
			}
		}
		in.ret = sig.Return
		in.retFixed = sigs.sealed || sig.ReturnSource == types.FromHint
	}
	for _, name := range assignedNames(fn.Body) {
		in.declare(name, types.Local)
	}
	for _, s := range ast.Flatten(fn.Body) {
		if ann, ok := s.(*ast.AnnAssign); ok {
			t, err := types.Parse(ann.Annotation)
			if err != nil {
				in.errs = in.errs.With(&cerr.InvalidSignatureError{
					Range:    ann.Range,
					Function: fn.Name,
					Reason:   fmt.Sprintf("annotation of '%s': %v", ann.Target.Id, err),
				})
				continue
			}
			if in.kinds[ann.Target.Id] == types.Local {
				in.seed(ann.Target.Id, t, types.FromHint)
			}
		}
	}
	return in
}

func (in *inference) declare(name string, kind types.BindingKind) {
	if _, ok := in.bindings[name]; ok {
		return
	}
	in.bindings[name] = types.Unknown
	in.kinds[name] = kind
	in.order = append(in.order, name)
}

// assignedNames lists, in source order, every name the body binds.
func assignedNames(body []ast.Stmt) []string {
	var names []string
	seen := map[string]bool{}
	var add func(e ast.Expr)
	add = func(e ast.Expr) {
		switch e := e.(type) {
		case *ast.Name:
			if !seen[e.Id] {
				seen[e.Id] = true
				names = append(names, e.Id)
			}
		case *ast.Tuple:
			for _, elt := range e.Elts {
				add(elt)
			}
		case *ast.List:
			for _, elt := range e.Elts {
				add(elt)
			}
		}
	}
	for _, s := range ast.Flatten(body) {
		switch s := s.(type) {
		case *ast.Assign:
			add(s.Target)
		case *ast.AugAssign:
			add(s.Target)
		case *ast.AnnAssign:
			add(s.Target)
		case *ast.For:
			add(s.Target)
		}
	}
	return names
}

func (in *inference) seed(name string, t types.Type, src types.Source) {
	in.bindings[name] = t
	in.sources[name] = src
	if src == types.FromHint || src == types.FromFallback {
		in.pinned[name] = true
	}
}

// run iterates the body until no binding changes.
func (in *inference) run() {
	for round := 0; round < maxRounds; round++ {
		in.changed = false
		in.stmts(in.fn.Body)
		if !in.changed {
			return
		}
	}
}

func (in *inference) isBinding(name string) bool {
	_, ok := in.bindings[name]
	return ok
}

// widen joins two assignments to the same binding: an int stored where a float
// is also stored makes the binding a float.
func widen(a, b types.Type) types.Type {
	if (types.IsPrim(a, types.Int) && types.IsPrim(b, types.Float)) ||
		(types.IsPrim(a, types.Float) && types.IsPrim(b, types.Int)) {
		return types.FloatType
	}
	return types.Merge(a, b)
}

// accepts reports whether a value of type have can flow where want is expected
// without a conflict: equal types, int into float, and anything to or from dynamic.
func accepts(want, have types.Type) bool {
	if types.IsPrim(want, types.Dynamic) || types.IsPrim(have, types.Dynamic) {
		return true
	}
	if types.IsPrim(want, types.Float) && (types.IsPrim(have, types.Int) || types.IsPrim(have, types.Bool)) {
		return true
	}
	return !types.IsConflict(types.Merge(want, have))
}

// demand records that name is used as a t. It is strict: a float binding
// used as an index conflicts.
func (in *inference) demand(name string, t types.Type, at ast.Positioner) {
	in.refine(name, t, at, types.Merge)
}

// bind records that a t is stored into name.
func (in *inference) bind(name string, t types.Type, at ast.Positioner) {
	in.refine(name, t, at, widen)
}

func (in *inference) refine(name string, t types.Type, at ast.Positioner, join func(a, b types.Type) types.Type) {
	cur, ok := in.bindings[name]
	if !ok || types.IsConflict(cur) || types.IsUnresolved(t) {
		return
	}
	if types.IsPrim(cur, types.Dynamic) || types.IsPrim(t, types.Dynamic) && !types.IsUnresolved(cur) {
		return
	}
	if in.pinned[name] {
		if !accepts(cur, t) {
			in.conflict(name, cur, t, at)
		}
		return
	}
	merged := join(cur, t)
	if types.IsConflict(merged) {
		in.conflict(name, cur, t, at)
		return
	}
	if !merged.Equals(cur) {
		in.bindings[name] = merged
		if in.sources[name] == types.FromNothing {
			in.sources[name] = types.FromInference
		}
		in.changed = true
	}
}

// demandExpr asks the value of e to flow where a want is expected. Names are
// refined; any other expression whose type is already known is only checked.
func (in *inference) demandExpr(e ast.Expr, want types.Type) {
	if types.IsUnresolved(want) {
		return
	}
	if name, ok := e.(*ast.Name); ok && in.isBinding(name.Id) {
		if have := in.bindings[name.Id]; types.IsResolved(have) && accepts(want, have) {
			return
		}
		in.demand(name.Id, want, name)
		return
	}
	have := in.exprs[e]
	if types.IsResolved(have) && !accepts(want, have) {
		in.conflict(ast.FormatExpr(e), want, have, e)
	}
}

func (in *inference) conflict(binding string, first, second types.Type, at ast.Positioner) {
	if _, ok := in.bindings[binding]; ok {
		in.bindings[binding] = &types.Conflict{First: first, Second: second}
		in.changed = true
	}
	if in.reported[binding] {
		return
	}
	in.reported[binding] = true
	in.errs = in.errs.With(&cerr.TypeConflictError{
		Range:   ast.RangeOf(at),
		Binding: binding,
		First:   first,
		Second:  second,
	})
}

// noRule reports an operator applied to operand types it is not defined for.
// The conflict is charged to the first operand that is a binding.
func (in *inference) noRule(at ast.Expr, left ast.Expr, lt types.Type, right ast.Expr, rt types.Type) types.Type {
	if name, ok := left.(*ast.Name); ok && in.isBinding(name.Id) {
		in.conflict(name.Id, lt, rt, at)
	} else if name, ok := right.(*ast.Name); ok && in.isBinding(name.Id) {
		in.conflict(name.Id, rt, lt, at)
	} else {
		in.conflict(ast.FormatExpr(at), lt, rt, at)
	}
	return types.Unknown
}

func (in *inference) report(key string, err cerr.CompileError) {
	if in.reported[key] {
		return
	}
	in.reported[key] = true
	in.errs = in.errs.With(err)
}

func (in *inference) note(e ast.Expr, shape Shape) {
	if name, ok := e.(*ast.Name); ok && in.isBinding(name.Id) {
		in.usage.note(name.Id, shape)
	}
}

func (in *inference) stmts(ss []ast.Stmt) {
	for _, s := range ss {
		in.stmt(s)
	}
}

func (in *inference) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Assign:
		in.assign(s.Target, in.typeOf(s.Value), s.Value)
	case *ast.AugAssign:
		t := in.binop(s, s.Op, s.Target, s.Value)
		in.aug[s] = t
		in.assign(s.Target, t, nil)
	case *ast.AnnAssign:
		if s.Value != nil {
			in.assign(s.Target, in.typeOf(s.Value), s.Value)
		}
	case *ast.ExprStmt:
		in.typeOf(s.X)
	case *ast.If:
		in.condition(s.Test)
		in.stmts(s.Body)
		in.stmts(s.Orelse)
	case *ast.While:
		in.condition(s.Test)
		in.stmts(s.Body)
		in.stmts(s.Orelse)
	case *ast.For:
		in.forTarget(s)
		in.stmts(s.Body)
		in.stmts(s.Orelse)
	case *ast.Return:
		in.returns(s)
	}
}

func (in *inference) condition(e ast.Expr) {
	in.typeOf(e)
	in.note(e, ShapeTruth)
}

func (in *inference) returns(s *ast.Return) {
	t := types.NoneType
	if s.Value != nil {
		t = in.typeOf(s.Value)
		in.note(s.Value, ShapeReturned)
		in.valueReturns = true
	}
	if in.retFixed {
		if s.Value == nil {
			if !types.IsPrim(in.ret, types.None) {
				in.report(returnBinding, &cerr.TypeConflictError{Range: s.Range, Binding: returnBinding, First: in.ret, Second: types.NoneType})
			}
			return
		}
		if types.IsPrim(in.ret, types.None) && !types.IsPrim(t, types.None) && !types.IsUnresolved(t) {
			in.report(returnBinding, &cerr.TypeConflictError{Range: s.Range, Binding: returnBinding, First: in.ret, Second: t})
			return
		}
		in.demandExpr(s.Value, in.ret)
		return
	}
	if types.IsConflict(in.ret) {
		return
	}
	merged := widen(in.ret, t)
	if types.IsConflict(merged) {
		in.report(returnBinding, &cerr.TypeConflictError{Range: s.Range, Binding: returnBinding, First: in.ret, Second: t})
		in.ret = merged
		return
	}
	if !merged.Equals(in.ret) {
		in.ret = merged
		in.changed = true
	}
}

func (in *inference) forTarget(s *ast.For) {
	if call, ok := s.Iter.(*ast.Call); ok && isName(call.Func, "range") && !in.isBinding("range") {
		in.typeOf(s.Iter)
		in.assign(s.Target, types.IntType, nil)
		return
	}
	it := in.typeOf(s.Iter)
	in.note(s.Iter, ShapeIterated)
	switch {
	case types.IsUnresolved(it), types.IsConflict(it):
		return
	case types.IsPrim(it, types.Dynamic):
		in.assign(s.Target, types.DynamicType, nil)
		return
	}
	if tup, ok := it.(*types.Tuple); ok {
		elem := types.Unknown
		for _, e := range tup.Elems {
			elem = types.Merge(elem, e)
		}
		if !types.IsConflict(elem) {
			in.assign(s.Target, elem, nil)
			return
		}
	}
	elem, ok := types.ElementType(it)
	if !ok {
		in.noRule(s.Iter, s.Iter, it, s.Target, types.ListOf(types.Unknown))
		return
	}
	in.assign(s.Target, elem, nil)
}

// assign binds target to a value of type t. value is the assigned expression when
// there is one; a name on the right then also receives the target's known type.
func (in *inference) assign(target ast.Expr, t types.Type, value ast.Expr) {
	switch target := target.(type) {
	case *ast.Name:
		if types.IsPrim(t, types.None) {
			in.report("none:"+target.Id, &cerr.UnsupportedConstructError{
				Range:     target.Range,
				Construct: fmt.Sprintf("binding '%s' to None", target.Id),
			})
			return
		}
		in.bind(target.Id, t, target)
		if value != nil {
			if bt := in.bindings[target.Id]; types.IsResolved(bt) {
				in.demandExpr(value, bt)
			}
		}
		in.exprs[target] = in.bindings[target.Id]
	case *ast.Subscript:
		ct := in.typeOf(target.Value)
		it := in.typeOf(target.Index)
		in.note(target.Value, ShapeSubscript)
		in.note(target.Index, ShapeIndex)
		switch c := ct.(type) {
		case *types.Mapping:
			in.demandExpr(target.Index, c.Key)
			in.demandExpr(target.Value, types.DictOf(it, t))
			if types.IsResolved(c.Value) && value != nil {
				in.demandExpr(value, c.Value)
			}
		case *types.Sequence:
			in.demandExpr(target.Index, types.IntType)
			in.demandExpr(target.Value, types.ListOf(t))
			if types.IsResolved(c.Elem) && value != nil {
				in.demandExpr(value, c.Elem)
			}
		case *types.Unresolved, *types.Conflict:
		default:
			if !types.IsPrim(ct, types.Dynamic) {
				in.noRule(target, target.Value, ct, target.Index, it)
			}
		}
	case *ast.Tuple:
		in.unpack(target, target.Elts, t)
	case *ast.List:
		in.unpack(target, target.Elts, t)
	}
}

func (in *inference) unpack(target ast.Expr, elts []ast.Expr, t types.Type) {
	switch t := t.(type) {
	case *types.Tuple:
		if len(t.Elems) != len(elts) {
			in.conflict(ast.FormatExpr(target), types.TupleOf(holes(len(elts))...), t, target)
			return
		}
		for i, e := range elts {
			in.assign(e, t.Elems[i], nil)
		}
	case *types.Sequence:
		for _, e := range elts {
			in.assign(e, t.Elem, nil)
		}
	}
}

func holes(n int) []types.Type {
	out := make([]types.Type, n)
	for i := range out {
		out[i] = types.Unknown
	}
	return out
}

func isName(e ast.Expr, id string) bool {
	n, ok := e.(*ast.Name)
	return ok && n.Id == id
}
