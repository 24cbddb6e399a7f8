package irgen

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/resolve"
	"github.com/py2cppai/py2cpp/frontend/types"
	"github.com/py2cppai/py2cpp/ir"
)

func fn(name, returns string, params []*ast.Param, body ...ast.Stmt) *ast.FunctionDef {
	return &ast.FunctionDef{Name: name, Params: params, Returns: returns, Body: body}
}

func param(name, annotation string) *ast.Param {
	return &ast.Param{Name: name, Annotation: annotation}
}

func name(id string) *ast.Name { return ast.NewName(id) }

func ret(e ast.Expr) *ast.Return { return &ast.Return{Value: e} }

// lower resolves and builds the first function, the others are only callees.
func lower(t *testing.T, fns ...*ast.FunctionDef) (*ir.Function, error, *diag.Sink) {
	t.Helper()
	m := &ast.Module{Name: "m", File: "m.py", Functions: fns}
	sigs, failed := resolve.BuildSignatures(m, types.DynamicType)
	require.Empty(t, failed)
	sink := diag.NewSink("m.py", []string{fns[0].Name})
	r := resolve.New(sigs, nil, resolve.Options{Timeout: time.Second, Fallback: types.DynamicType}, sink)
	res, err := r.Resolve(context.Background(), fns[0])
	require.NoError(t, err)
	f, err := Build(res, sigs, sink)
	if err == nil {
		require.NoError(t, ir.Verify(f))
	}
	return f, err, sink
}

func countInstrs[T ir.Instr](f *ir.Function) int {
	n := 0
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			if _, ok := i.(T); ok {
				n++
			}
		}
	}
	return n
}

func TestStraightLineAssignment(t *testing.T) {
	f, err, _ := lower(t, fn("f", "", []*ast.Param{param("y", "int")},
		ast.AssignName("x", ast.Bin(ast.IntLit(42), ast.Add, name("y")))))
	require.NoError(t, err)

	expected := `func f(y: int) -> None {
  local x: int
b0:
  %0 = load y : int
  %1 = add 42, %0 : int
  store x, %1
  ret
}
`
	assert.Equal(t, expected, ir.CanonicalText(f))
}

func TestRangeLoopIsInSSAForm(t *testing.T) {
	f, err, _ := lower(t, fn("total", "int", []*ast.Param{param("n", "int")},
		ast.AssignName("s", ast.IntLit(0)),
		&ast.For{
			Target: name("i"),
			Iter:   ast.CallName("range", name("n")),
			Body:   []ast.Stmt{ast.AssignName("s", ast.Bin(name("s"), ast.Add, name("i")))},
		},
		ret(name("s"))))
	require.NoError(t, err)
	require.NoError(t, ir.Verify(f))

	assert.Equal(t, []ir.Var{{Name: "i", Type: types.IntType}, {Name: "s", Type: types.IntType}}, f.Locals)
	// the only remaining load defines the parameter
	assert.Equal(t, 1, countInstrs[*ir.Load](f))

	header := f.Blocks[1]
	require.NotNil(t, header.Loop)
	assert.Equal(t, ir.RangeLoop, header.Loop.Kind)
	assert.Equal(t, header.ID, header.Loop.Test)
	_, known := header.Loop.TripCount()
	assert.False(t, known)

	phis := header.Phis()
	require.Len(t, phis, 2)
	assert.Equal(t, "$idx0", phis[0].Var)
	assert.Equal(t, "s", phis[1].Var)
	entry, ok := phis[1].Incoming(ir.Entry)
	require.True(t, ok)
	assert.Equal(t, ir.IntOp(0), entry)

	exit := f.Blocks[header.Loop.Exit].Term.(*ir.Return)
	assert.Equal(t, ir.Ref(phis[1].Dst), exit.Val)
}

func TestLiteralRangeHasTripCount(t *testing.T) {
	f, err, _ := lower(t, fn("f", "int", nil,
		ast.AssignName("total", ast.IntLit(0)),
		&ast.For{
			Target: name("i"),
			Iter:   ast.CallName("range", ast.IntLit(8)),
			Body:   []ast.Stmt{&ast.AugAssign{Target: name("total"), Op: ast.Add, Value: name("i")}},
		},
		ret(name("total"))))
	require.NoError(t, err)

	loop := f.Blocks[1].Loop
	require.NotNil(t, loop)
	n, ok := loop.TripCount()
	require.True(t, ok)
	assert.EqualValues(t, 8, n)
	assert.NotEqual(t, ir.NoBlock, loop.Latch)
}

func TestPossiblyUnboundLocalReadsZero(t *testing.T) {
	f, err, sink := lower(t, fn("f", "int", []*ast.Param{param("c", "bool")},
		&ast.If{Test: name("c"), Body: []ast.Stmt{ast.AssignName("x", ast.IntLit(1))}},
		ret(name("x"))))
	require.NoError(t, err)

	entry := f.Blocks[ir.Entry]
	assert.Equal(t, ir.BlockID(3), entry.IfMerge)
	zero, ok := entry.Instrs[1].(*ir.Call)
	require.True(t, ok)
	assert.Equal(t, ir.BuiltinZero, zero.Callee)

	phis := f.Blocks[3].Phis()
	require.Len(t, phis, 1)
	fromThen, _ := phis[0].Incoming(1)
	fromElse, _ := phis[0].Incoming(2)
	assert.Equal(t, ir.IntOp(1), fromThen)
	assert.Equal(t, ir.Ref(zero.Dst), fromElse)

	var warned bool
	for _, d := range sink.Diagnostics() {
		warned = warned || (d.Severity == diag.Warning && strings.Contains(d.Message, "'x' may be used before it is assigned"))
	}
	assert.True(t, warned)
}

func TestShortCircuitBuildsDiamond(t *testing.T) {
	positive := func(v string) ast.Expr { return ast.Cmp(name(v), ast.Gt, ast.IntLit(0)) }
	f, err, _ := lower(t, fn("f", "bool", []*ast.Param{param("a", "int"), param("b", "int")},
		ret(&ast.BoolOp{Op: ast.And, Values: []ast.Expr{positive("a"), positive("b")}})))
	require.NoError(t, err)

	entry := f.Blocks[ir.Entry]
	cond := entry.Term.(*ir.CondBranch)
	assert.Equal(t, ir.BlockID(1), entry.IfMerge)
	assert.Equal(t, ir.BlockID(2), cond.Then)
	assert.Equal(t, ir.BlockID(3), cond.Else)

	phis := f.Blocks[1].Phis()
	require.Len(t, phis, 1)
	assert.Equal(t, "$sc0", phis[0].Var)
	skipped, _ := phis[0].Incoming(3)
	assert.Equal(t, cond.Cond, skipped)
	assert.Equal(t, ir.Ref(phis[0].Dst), f.Blocks[1].Term.(*ir.Return).Val)
}

func TestWhileConditionWithOwnBlocks(t *testing.T) {
	i := func() *ast.Name { return name("i") }
	f, err, _ := lower(t, fn("f", "int", []*ast.Param{param("n", "int")},
		ast.AssignName("i", ast.IntLit(0)),
		&ast.While{
			Test: &ast.BoolOp{Op: ast.And, Values: []ast.Expr{
				ast.Cmp(i(), ast.Lt, name("n")),
				ast.Cmp(i(), ast.Lt, ast.IntLit(10)),
			}},
			Body: []ast.Stmt{&ast.AugAssign{Target: i(), Op: ast.Add, Value: ast.IntLit(1)}},
		},
		ret(i())))
	require.NoError(t, err)

	header := f.Blocks[1]
	require.NotNil(t, header.Loop)
	loop := header.Loop
	assert.Equal(t, ir.WhileLoop, loop.Kind)
	assert.Equal(t, ir.BlockID(2), loop.Test)
	assert.Equal(t, ir.NoBlock, loop.Latch)
	assert.Equal(t, ir.BlockID(2), header.IfMerge)
	require.Len(t, header.Phis(), 1)
	assert.Equal(t, "i", header.Phis()[0].Var)
}

func TestIterationOverDictUsesKeys(t *testing.T) {
	f, err, _ := lower(t, fn("f", "int", []*ast.Param{param("d", "dict[str, int]")},
		ast.AssignName("t", ast.IntLit(0)),
		&ast.For{
			Target: name("k"),
			Iter:   name("d"),
			Body: []ast.Stmt{&ast.AugAssign{
				Target: name("t"), Op: ast.Add,
				Value: &ast.Subscript{Value: name("d"), Index: name("k")},
			}},
		},
		ret(name("t"))))
	require.NoError(t, err)

	var callees []string
	for _, i := range f.Blocks[ir.Entry].Instrs {
		if call, ok := i.(*ir.Call); ok {
			callees = append(callees, call.Callee)
		}
	}
	assert.Equal(t, []string{ir.BuiltinKeys, ir.BuiltinLen}, callees)
	assert.Equal(t, ir.EachLoop, f.Blocks[1].Loop.Kind)
}

func TestOutputParameterIsMutatedInPlace(t *testing.T) {
	out := &ast.Param{Name: "out", Annotation: "list[int]", Output: true}
	f, err, _ := lower(t, fn("f", "", []*ast.Param{out, param("n", "int")},
		&ast.ExprStmt{X: ast.CallMethod(name("out"), "append", name("n"))}))
	require.NoError(t, err)

	expected := `func f(out out: list[int], n: int) -> None {
b0:
  %0 = load out : list[int]
  %1 = load n : int
  call builtin.append(%0, %1)
  ret
}
`
	assert.Equal(t, expected, ir.CanonicalText(f))
}

func TestTupleSwapEvaluatesRightSideFirst(t *testing.T) {
	f, err, _ := lower(t, fn("f", "int", []*ast.Param{param("a", "int"), param("b", "int")},
		&ast.Assign{
			Target: &ast.Tuple{Elts: []ast.Expr{name("a"), name("b")}},
			Value:  &ast.Tuple{Elts: []ast.Expr{name("b"), name("a")}},
		},
		ret(ast.Bin(name("a"), ast.Sub, name("b")))))
	require.NoError(t, err)

	expected := `func f(a: int, b: int) -> int {
b0:
  %0 = load a : int
  %1 = load b : int
  %2 = sub %1, %0 : int
  ret %2
}
`
	assert.Equal(t, expected, ir.CanonicalText(f))
}

func TestIntWidensToFloatOnStore(t *testing.T) {
	f, err, _ := lower(t, fn("f", "float", []*ast.Param{param("n", "int")},
		&ast.AnnAssign{Target: name("x"), Annotation: "float", Value: ast.IntLit(1)},
		&ast.AugAssign{Target: name("x"), Op: ast.Add, Value: name("n")},
		ret(name("x"))))
	require.NoError(t, err)

	var stored []ir.Operand
	var conversions int
	for _, i := range f.Blocks[ir.Entry].Instrs {
		switch i := i.(type) {
		case *ir.Store:
			stored = append(stored, i.Val)
		case *ir.Call:
			if i.Callee == ir.BuiltinFloat {
				conversions++
			}
		}
	}
	require.Len(t, stored, 2)
	assert.Equal(t, ir.FloatOp(1), stored[0])
	assert.Equal(t, 1, conversions)
	assert.Equal(t, types.FloatType, f.TypeOf(stored[1]))
	assert.Equal(t, stored[1], f.Blocks[ir.Entry].Term.(*ir.Return).Val)
}

func TestAugmentedItemAssignment(t *testing.T) {
	f, err, _ := lower(t, fn("bump", "", []*ast.Param{param("xs", "list[int]"), param("i", "int")},
		&ast.AugAssign{
			Target: &ast.Subscript{Value: name("xs"), Index: name("i")},
			Op:     ast.Add,
			Value:  ast.IntLit(1),
		}))
	require.NoError(t, err)

	var store *ir.Store
	for _, i := range f.Blocks[ir.Entry].Instrs {
		if s, ok := i.(*ir.Store); ok && s.Kind == ir.StoreElement {
			store = s
		}
	}
	require.NotNil(t, store)
	assert.Equal(t, types.IntType, f.TypeOf(store.Val))
	assert.False(t, store.Val.IsLit())
}

func TestUnsupportedConstructs(t *testing.T) {
	tests := []struct {
		name   string
		params []*ast.Param
		body   []ast.Stmt
		want   string
	}{
		{
			name: "statement",
			body: []ast.Stmt{&ast.UnsupportedStmt{Kind: "with"}},
			want: "unsupported construct: with statement",
		},
		{
			name: "expression",
			body: []ast.Stmt{&ast.ExprStmt{X: &ast.UnsupportedExpr{Kind: "lambda"}}},
			want: "unsupported construct: lambda expression",
		},
		{
			name:   "tuple index",
			params: []*ast.Param{param("t", "tuple[int, int]"), param("i", "int")},
			body:   []ast.Stmt{ret(&ast.Subscript{Value: name("t"), Index: name("i")})},
			want:   "unsupported construct: tuple subscript with a non-literal index",
		},
		{
			name: "break outside loop",
			body: []ast.Stmt{&ast.Break{}},
			want: "unsupported construct: 'break' outside a loop",
		},
		{
			name:   "nested mutation",
			params: []*ast.Param{param("xs", "list[list[int]]")},
			body: []ast.Stmt{&ast.ExprStmt{X: ast.CallMethod(
				&ast.Subscript{Value: name("xs"), Index: ast.IntLit(0)}, "append", ast.IntLit(1))}},
			want: "unsupported construct: modifying xs[0] in place",
		},
		{
			name:   "nested item assignment",
			params: []*ast.Param{param("xs", "list[list[int]]")},
			body: []ast.Stmt{&ast.Assign{
				Target: &ast.Subscript{Value: &ast.Subscript{Value: name("xs"), Index: ast.IntLit(0)}, Index: ast.IntLit(1)},
				Value:  ast.IntLit(2),
			}},
			want: "unsupported construct: modifying xs[0] in place",
		},
		{
			name:   "nested augmented assignment",
			params: []*ast.Param{param("xs", "list[list[int]]")},
			body: []ast.Stmt{&ast.AugAssign{
				Target: &ast.Subscript{Value: &ast.Subscript{Value: name("xs"), Index: ast.IntLit(0)}, Index: ast.IntLit(1)},
				Op:     ast.Add,
				Value:  ast.IntLit(2),
			}},
			want: "unsupported construct: modifying xs[0] in place",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err, _ := lower(t, fn("f", "", tc.params, tc.body...))
			require.Error(t, err)
			var errs *cerr.Errors
			require.ErrorAs(t, err, &errs)
			require.Len(t, errs.Errors(), 1)
			assert.Equal(t, cerr.UnsupportedConstruct, errs.First().Code())
			assert.Equal(t, tc.want, errs.First().Error())
		})
	}
}
