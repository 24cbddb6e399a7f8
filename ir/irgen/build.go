// Package irgen lowers a resolved function into the SSA form of package ir.
//
// Lowering happens in two steps. The body is first translated into a control
// flow graph over named variables, reading them with Load and writing them with
// Store. The variables are then renamed into SSA values, placing phis only where
// a variable is live.
package irgen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/resolve"
	"github.com/py2cppai/py2cpp/frontend/types"
	"github.com/py2cppai/py2cpp/internal/log"
	"github.com/py2cppai/py2cpp/ir"
	"github.com/py2cppai/py2cpp/util"
)

var logger = log.Section("irgen")

// hidden variables never collide with source names
const hiddenPrefix = "$"

type loopTargets struct {
	brk, cont ir.BlockID
}

type builder struct {
	res  *resolve.Result
	sigs *resolve.Signatures
	sink *diag.Sink
	f    *ir.Function

	// cur is the block being filled, nil after a jump until the next reachable statement
	cur   *ir.Block
	loops util.Stack[loopTargets]

	// vars holds the type of every variable: parameters, locals and hidden ones
	vars    map[string]types.Type
	outputs map[string]bool

	// paramLoads are the entry loads that define the parameters
	paramLoads map[ir.ValueID]bool

	hidden int
	errs   *cerr.Errors
}

// Build lowers res into SSA form. Constructs the IR has no translation for are
// returned together as a *cerr.Errors. IR failing verification is a compiler bug
// and comes back as an OptimizationInvariantViolation.
func Build(res *resolve.Result, sigs *resolve.Signatures, sink *diag.Sink) (*ir.Function, error) {
	fn := res.Function
	sig, ok := sigs.Lookup(fn.Name)
	if !ok {
		return nil, fmt.Errorf("no signature for function '%s'", fn.Name)
	}

	b := &builder{
		res:        res,
		sigs:       sigs,
		sink:       sink,
		vars:       map[string]types.Type{},
		outputs:    map[string]bool{},
		paramLoads: map[ir.ValueID]bool{},
	}
	params := make([]ir.Param, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = ir.Param{Name: p.Name, Type: p.Type, Output: p.Output}
		b.vars[p.Name] = p.Type
		b.outputs[p.Name] = p.Output
	}
	b.f = ir.NewFunction(fn.Name, params, res.Return)
	b.f.Range = fn.Range
	for binding := range res.Env.All() {
		if binding.Kind == types.Local {
			b.f.Locals = append(b.f.Locals, ir.Var{Name: binding.Name, Type: binding.Type})
			b.vars[binding.Name] = binding.Type
		}
	}

	b.cur = b.f.NewBlock()
	for _, p := range params {
		v := b.loadVar(p.Name)
		b.paramLoads[v.op.Value] = true
	}
	b.stmts(fn.Body)
	if b.cur != nil {
		b.fallOff()
	}
	if b.errs.HasError() {
		return nil, b.errs
	}

	b.f.Compact()
	b.ssa()
	if err := ir.Verify(b.f); err != nil {
		return nil, cerr.NewInvariantViolation("irgen", fn.Name, "%v", err)
	}
	logger.Debug("built", "function", fn.Name, "blocks", len(b.f.Blocks), "values", b.f.NumValues()-1)
	return b.f, nil
}

func (b *builder) unsupported(at ast.Positioner, format string, args ...any) {
	b.errs = b.errs.With(&cerr.UnsupportedConstructError{
		Range:     ast.Range{PosStart: at.Pos(), PosEnd: at.End()},
		Construct: fmt.Sprintf(format, args...),
	})
}

func (b *builder) isLocal(name string) bool {
	return !strings.HasPrefix(name, hiddenPrefix) && slices.ContainsFunc(b.f.Locals, func(v ir.Var) bool { return v.Name == name })
}

func (b *builder) hiddenVar(kind string, t types.Type) string {
	name := fmt.Sprintf("%s%s%d", hiddenPrefix, kind, b.hidden)
	b.hidden++
	b.vars[name] = t
	return name
}

func baseName(v string) string { return strings.TrimPrefix(v, hiddenPrefix) }

func (b *builder) loadVar(name string) value {
	t := b.vars[name]
	dst := b.f.NewValue(t, baseName(name))
	b.cur.Append(&ir.Load{Dst: dst, Var: name})
	return value{op: ir.Ref(dst), t: t}
}

func (b *builder) storeVar(name string, op ir.Operand) {
	kind := ir.StoreLocal
	if b.outputs[name] {
		kind = ir.StoreOutput
	}
	b.cur.Append(&ir.Store{Kind: kind, Var: name, Val: op})
}

func (b *builder) stmts(ss []ast.Stmt) {
	for _, s := range ss {
		if b.cur == nil {
			// nothing after a return, break or continue is reachable
			return
		}
		b.stmt(s)
	}
}

func (b *builder) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Assign:
		b.assign(s.Target, s.Value)
	case *ast.AnnAssign:
		if s.Value != nil {
			b.assign(s.Target, s.Value)
		}
	case *ast.AugAssign:
		b.augAssign(s)
	case *ast.ExprStmt:
		b.expr(s.X)
	case *ast.If:
		b.ifStmt(s)
	case *ast.While:
		b.whileStmt(s)
	case *ast.For:
		b.forStmt(s)
	case *ast.Return:
		b.returnStmt(s)
	case *ast.Pass:
	case *ast.Break:
		b.jump(s, "break", func(l loopTargets) ir.BlockID { return l.brk })
	case *ast.Continue:
		b.jump(s, "continue", func(l loopTargets) ir.BlockID { return l.cont })
	case *ast.UnsupportedStmt:
		b.unsupported(s, "%s statement", s.Kind)
	default:
		b.unsupported(s, "statement %T", s)
	}
}

func (b *builder) jump(at ast.Stmt, what string, target func(loopTargets) ir.BlockID) {
	inner, ok := b.loops.Peek()
	if !ok {
		b.unsupported(at, "'%s' outside a loop", what)
		return
	}
	b.cur.Term = &ir.Branch{Target: target(inner)}
	b.cur = nil
}

func (b *builder) assign(target, val ast.Expr) {
	var elts []ast.Expr
	switch t := target.(type) {
	case *ast.Tuple:
		elts = t.Elts
	case *ast.List:
		elts = t.Elts
	default:
		b.store(target, b.expr(val))
		return
	}
	// a, b = b, a evaluates the whole right side before storing anything
	if tuple, ok := val.(*ast.Tuple); ok && len(tuple.Elts) == len(elts) {
		items := make([]value, len(elts))
		for i, e := range tuple.Elts {
			items[i] = b.expr(e)
		}
		for i, e := range elts {
			b.store(e, items[i])
		}
		return
	}
	b.unpack(target, elts, b.expr(val))
}

func (b *builder) unpack(at ast.Expr, elts []ast.Expr, v value) {
	switch t := v.t.(type) {
	case *types.Tuple:
		if len(t.Elems) != len(elts) {
			b.unsupported(at, "unpacking %d values into %d targets", len(t.Elems), len(elts))
			return
		}
		for i, e := range elts {
			b.store(e, b.call(ir.BuiltinTupleGet, t.Elems[i], v.op, ir.IntOp(int64(i))))
		}
	case *types.Sequence:
		for i, e := range elts {
			b.store(e, b.binop(ir.OpIndex, v.op, ir.IntOp(int64(i)), t.Elem))
		}
	default:
		b.unsupported(at, "unpacking a value of type %v", v.t)
	}
}

// store writes v to an assignment target.
func (b *builder) store(target ast.Expr, v value) {
	switch t := target.(type) {
	case *ast.Name:
		want, ok := b.vars[t.Id]
		if !ok {
			b.unsupported(t, "assignment to '%s'", t.Id)
			return
		}
		b.storeVar(t.Id, b.coerce(t, v, want))
	case *ast.Subscript:
		c := b.receiver(t.Value)
		b.storeElement(t, c, b.expr(t.Index), v)
	case *ast.Tuple:
		b.unpack(t, t.Elts, v)
	case *ast.List:
		b.unpack(t, t.Elts, v)
	default:
		b.unsupported(target, "assignment to %s", ast.FormatExpr(target))
	}
}

func (b *builder) storeElement(at ast.Expr, c, index, v value) {
	if c.failed {
		return
	}
	var key, elem types.Type
	switch ct := c.t.(type) {
	case *types.Sequence:
		key, elem = types.IntType, ct.Elem
	case *types.Mapping:
		key, elem = ct.Key, ct.Value
	default:
		b.unsupported(at, "item assignment on a value of type %v", c.t)
		return
	}
	b.cur.Append(&ir.Store{
		Kind:      ir.StoreElement,
		Container: c.op,
		Index:     b.coerce(at, index, key),
		Val:       b.coerce(at, v, elem),
	})
}

// receiver evaluates a container about to be modified in place. Only variables
// qualify: an element of a container is a copy once lowered.
func (b *builder) receiver(e ast.Expr) value {
	if _, ok := e.(*ast.Name); !ok {
		b.unsupported(e, "modifying %s in place", ast.FormatExpr(e))
		return poison
	}
	return b.expr(e)
}

func (b *builder) augAssign(s *ast.AugAssign) {
	t := b.res.Aug[s]
	switch target := s.Target.(type) {
	case *ast.Name:
		if _, ok := b.vars[target.Id]; !ok {
			b.unsupported(target, "assignment to '%s'", target.Id)
			return
		}
		old := b.loadVar(target.Id)
		b.store(target, b.arith(s, s.Op, old, b.expr(s.Value), t))
	case *ast.Subscript:
		c := b.receiver(target.Value)
		index := b.expr(target.Index)
		old := b.element(target, c, index)
		b.storeElement(target, c, index, b.arith(s, s.Op, old, b.expr(s.Value), t))
	default:
		b.unsupported(s, "augmented assignment to %s", ast.FormatExpr(s.Target))
	}
}

func (b *builder) ifStmt(s *ast.If) {
	c := b.condition(s.Test)
	head := b.cur
	then, els := b.f.NewBlock(), b.f.NewBlock()
	head.Term = &ir.CondBranch{Cond: c, Then: then.ID, Else: els.ID}

	b.cur = then
	b.stmts(s.Body)
	thenEnd := b.cur
	b.cur = els
	b.stmts(s.Orelse)
	b.join(head, thenEnd, b.cur)
}

// join sends the arms of the diamond headed by head to a common merge block,
// created only when some arm falls through.
func (b *builder) join(head *ir.Block, ends ...*ir.Block) {
	var merge *ir.Block
	for _, end := range ends {
		if end == nil {
			continue
		}
		if merge == nil {
			merge = b.f.NewBlock()
		}
		end.Term = &ir.Branch{Target: merge.ID}
	}
	b.cur = merge
	if merge != nil {
		head.IfMerge = merge.ID
	}
}

func (b *builder) whileStmt(s *ast.While) {
	if len(s.Orelse) > 0 {
		b.unsupported(s, "while-else")
		return
	}
	header := b.f.NewBlock()
	b.cur.Term = &ir.Branch{Target: header.ID}
	b.cur = header
	c := b.condition(s.Test)
	test := b.cur
	body, exit := b.f.NewBlock(), b.f.NewBlock()
	test.Term = &ir.CondBranch{Cond: c, Then: body.ID, Else: exit.ID}
	header.Loop = &ir.LoopInfo{
		Kind:   ir.WhileLoop,
		Header: header.ID,
		Test:   test.ID,
		Body:   body.ID,
		Latch:  ir.NoBlock,
		Exit:   exit.ID,
	}
	b.loopBody(body, loopTargets{brk: exit.ID, cont: header.ID}, s.Body, nil)
	b.cur = exit
}

// loopBody lowers a loop body starting in body. prologue, when set, runs first
// to bind the loop target. Falling off the end continues the loop.
func (b *builder) loopBody(body *ir.Block, targets loopTargets, stmts []ast.Stmt, prologue func()) {
	b.cur = body
	b.loops.Push(targets)
	if prologue != nil {
		prologue()
	}
	b.stmts(stmts)
	b.loops.Pop()
	if b.cur != nil {
		b.cur.Term = &ir.Branch{Target: targets.cont}
	}
}

func (b *builder) forStmt(s *ast.For) {
	if len(s.Orelse) > 0 {
		b.unsupported(s, "for-else")
		return
	}
	if call, ok := s.Iter.(*ast.Call); ok {
		if name, ok := call.Func.(*ast.Name); ok && name.Id == "range" {
			if _, shadowed := b.vars["range"]; !shadowed {
				b.forRange(s, call)
				return
			}
		}
	}
	b.forEach(s)
}

func (b *builder) forRange(s *ast.For, call *ast.Call) {
	args := make([]ir.Operand, len(call.Args))
	for i, a := range call.Args {
		args[i] = b.coerce(a, b.expr(a), types.IntType)
	}
	start, step := ir.IntOp(0), ir.IntOp(1)
	var stop ir.Operand
	switch len(args) {
	case 1:
		stop = args[0]
	case 2:
		start, stop = args[0], args[1]
	case 3:
		start, stop, step = args[0], args[1], args[2]
	default:
		b.unsupported(call, "range() with %d arguments", len(args))
		return
	}
	if n, ok := step.IntLit(); ok && n == 0 {
		b.unsupported(call, "range() with a zero step")
		return
	}

	counter := b.hiddenVar("idx", types.IntType)
	b.storeVar(counter, start)
	b.counted(s, ir.RangeLoop, counter, start, stop, step, func(i value) value { return i })
}

func (b *builder) forEach(s *ast.For) {
	seq := b.expr(s.Iter)
	var elem types.Type
	switch t := seq.t.(type) {
	case *types.Sequence:
		elem = t.Elem
	case *types.Set:
		elem = t.Elem
		seq = b.call(ir.BuiltinKeys, types.ListOf(elem), seq.op)
	case *types.Mapping:
		elem = t.Key
		seq = b.call(ir.BuiltinKeys, types.ListOf(elem), seq.op)
	default:
		if !types.IsPrim(seq.t, types.Str) {
			b.unsupported(s.Iter, "iterating over a value of type %v", seq.t)
			return
		}
		elem = types.StrType
	}
	n := b.call(ir.BuiltinLen, types.IntType, seq.op)

	counter := b.hiddenVar("idx", types.IntType)
	b.storeVar(counter, ir.IntOp(0))
	b.counted(s, ir.EachLoop, counter, ir.IntOp(0), n.op, ir.IntOp(1), func(i value) value {
		return b.binop(ir.OpIndex, seq.op, i.op, elem)
	})
}

// counted lowers a loop driven by the hidden counter variable. item maps the
// counter to the value bound to the loop target.
func (b *builder) counted(s *ast.For, kind ir.LoopKind, counter string, start, stop, step ir.Operand, item func(value) value) {
	header := b.f.NewBlock()
	b.cur.Term = &ir.Branch{Target: header.ID}
	b.cur = header
	i := b.loadVar(counter)
	var cond value
	if n, ok := step.IntLit(); ok {
		op := ir.OpLt
		if n < 0 {
			op = ir.OpGt
		}
		cond = b.binop(op, i.op, stop, types.BoolType)
	} else {
		cond = b.call(ir.BuiltinRangeContinues, types.BoolType, i.op, stop, step)
	}

	body, latch, exit := b.f.NewBlock(), b.f.NewBlock(), b.f.NewBlock()
	header.Term = &ir.CondBranch{Cond: cond.op, Then: body.ID, Else: exit.ID}
	header.Loop = &ir.LoopInfo{
		Kind:   kind,
		Header: header.ID,
		Test:   header.ID,
		Body:   body.ID,
		Latch:  latch.ID,
		Exit:   exit.ID,
		Start:  start,
		Stop:   stop,
		Step:   step,
	}
	b.loopBody(body, loopTargets{brk: exit.ID, cont: latch.ID}, s.Body, func() {
		b.store(s.Target, item(i))
	})

	b.cur = latch
	next := b.binop(ir.OpAdd, b.loadVar(counter).op, step, types.IntType)
	b.storeVar(counter, next.op)
	latch.Term = &ir.Branch{Target: header.ID}
	b.cur = exit
}

func (b *builder) returnStmt(s *ast.Return) {
	var val ir.Operand
	if s.Value != nil {
		v := b.expr(s.Value)
		if !types.IsPrim(b.f.Return, types.None) {
			val = b.coerce(s.Value, v, b.f.Return)
		}
	}
	b.cur.Term = &ir.Return{Val: val}
	b.cur = nil
}

// fallOff ends a body whose last statement is not a jump. Functions returning a
// value give back the zero value of their return type.
func (b *builder) fallOff() {
	if types.IsPrim(b.f.Return, types.None) {
		b.cur.Term = &ir.Return{}
		return
	}
	b.cur.Term = &ir.Return{Val: b.call(ir.BuiltinZero, b.f.Return).op}
}
