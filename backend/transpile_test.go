package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-set/v3"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/resolve"
	"github.com/py2cppai/py2cpp/frontend/types"
	"github.com/py2cppai/py2cpp/ir"
	"github.com/py2cppai/py2cpp/ir/irgen"
)

func emit(t *testing.T, f *ir.Function) *Unit {
	t.Helper()
	require.NoError(t, ir.Verify(f))
	u, err := NewEmitter().EmitFunction(f)
	require.NoError(t, err)
	return u
}

func load(f *ir.Function, b *ir.Block, param string) ir.Operand {
	p, _ := f.Param(param)
	dst := f.NewValue(p.Type, param)
	b.Append(&ir.Load{Dst: dst, Var: param})
	return ir.Ref(dst)
}

// printLoop builds
//
//	b0: br b1
//	b1: %i = phi [b0: 0] [b3: %next]; %c = lt %i, 8; condbr %c, b2, b4
//	b2: call builtin.print(%i); br b3
//	b3: %next = add %i, 1; br b1
//	b4: ret
func printLoop() *ir.Function {
	f := ir.NewFunction("loop", nil, types.NoneType)
	b0, b1, b2, b3, b4 := f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock()
	i, c, next := f.NewValue(types.IntType, "i"), f.NewValue(types.BoolType, "t"), f.NewValue(types.IntType, "i")

	b0.Term = &ir.Branch{Target: b1.ID}
	b1.Append(&ir.Phi{Dst: i, Var: "i", Edges: []ir.PhiEdge{{Pred: b0.ID, Val: ir.IntOp(0)}, {Pred: b3.ID, Val: ir.Ref(next)}}})
	b1.Append(&ir.BinOp{Dst: c, Op: ir.OpLt, X: ir.Ref(i), Y: ir.IntOp(8)})
	b1.Term = &ir.CondBranch{Cond: ir.Ref(c), Then: b2.ID, Else: b4.ID}
	b1.Loop = &ir.LoopInfo{
		Kind: ir.RangeLoop, Header: b1.ID, Test: b1.ID, Body: b2.ID, Latch: b3.ID, Exit: b4.ID,
		Start: ir.IntOp(0), Stop: ir.IntOp(8), Step: ir.IntOp(1),
	}
	b2.Append(&ir.Call{Callee: ir.BuiltinPrint, Builtin: true, Args: []ir.Operand{ir.Ref(i)}})
	b2.Term = &ir.Branch{Target: b3.ID}
	b3.Append(&ir.BinOp{Dst: next, Op: ir.OpAdd, X: ir.Ref(i), Y: ir.IntOp(1)})
	b3.Term = &ir.Branch{Target: b1.ID}
	b4.Term = &ir.Return{}
	return f
}

func TestAssignmentDeclaresTheLocal(t *testing.T) {
	f := ir.NewFunction("f", []ir.Param{{Name: "y", Type: types.IntType}}, types.NoneType)
	f.Locals = []ir.Var{{Name: "x", Type: types.IntType}}
	b := f.NewBlock()
	y := load(f, b, "y")
	sum := f.NewValue(types.IntType, "t")
	b.Append(&ir.BinOp{Dst: sum, Op: ir.OpAdd, X: ir.IntOp(42), Y: y})
	b.Append(&ir.Store{Kind: ir.StoreLocal, Var: "x", Val: ir.Ref(sum)})
	b.Term = &ir.Return{}

	u := emit(t, f)
	expected := `void f(int64_t y) {
    [[maybe_unused]] int64_t x = INT64_C(42) + y;
}
`
	assert.Equal(t, expected, u.Definition)
	assert.Equal(t, "void f(int64_t y);", u.Prototype)
	assert.Equal(t, []string{"<cstdint>"}, u.Includes)
	assert.Empty(t, u.Helpers)
}

func TestRangeLoopBecomesWhileWithUnrollHint(t *testing.T) {
	f := printLoop()
	f.Blocks[1].Loop.Unroll = 8

	u := emit(t, f)
	expected := `void loop() {
    int64_t v0{};
    int64_t v1{};

    v0 = INT64_C(0);
    #pragma GCC unroll 8
    while (true) {
        if (!(v0 < INT64_C(8))) {
            break;
        }
        py_print(v0);
        v1 = v0 + INT64_C(1);
        v0 = v1;
    }
}
`
	assert.Equal(t, expected, u.Definition)
	assert.Equal(t, []string{"print"}, u.Helpers)
}

func TestIfDiamondAssignsThePhiInEachArm(t *testing.T) {
	f := ir.NewFunction("f", []ir.Param{{Name: "c", Type: types.BoolType}, {Name: "x", Type: types.IntType}}, types.IntType)
	b0, b1, b2, b3 := f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock()
	c, x := load(f, b0, "c"), load(f, b0, "x")
	b0.Term = &ir.CondBranch{Cond: c, Then: b1.ID, Else: b2.ID}
	b0.IfMerge = b3.ID

	inc := f.NewValue(types.IntType, "x")
	b1.Append(&ir.BinOp{Dst: inc, Op: ir.OpAdd, X: x, Y: ir.IntOp(1)})
	b1.Term = &ir.Branch{Target: b3.ID}
	b2.Term = &ir.Branch{Target: b3.ID}

	r := f.NewValue(types.IntType, "x")
	b3.Append(&ir.Phi{Dst: r, Var: "x", Edges: []ir.PhiEdge{{Pred: b1.ID, Val: ir.Ref(inc)}, {Pred: b2.ID, Val: x}}})
	b3.Term = &ir.Return{Val: ir.Ref(r)}

	u := emit(t, f)
	expected := `int64_t f(bool c, int64_t x) {
    int64_t v0{};
    int64_t v1{};

    if (c) {
        v0 = x + INT64_C(1);
        v1 = v0;
    } else {
        v1 = x;
    }
    return v1;
}
`
	assert.Equal(t, expected, u.Definition)
}

func TestEmptyElseArmIsDropped(t *testing.T) {
	f := ir.NewFunction("f", []ir.Param{{Name: "c", Type: types.BoolType}}, types.NoneType)
	b0, b1, b2, b3 := f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock()
	c := load(f, b0, "c")
	b0.Term = &ir.CondBranch{Cond: c, Then: b1.ID, Else: b2.ID}
	b0.IfMerge = b3.ID
	b1.Append(&ir.Call{Callee: ir.BuiltinPrint, Builtin: true, Args: []ir.Operand{ir.StrOp("yes")}})
	b1.Term = &ir.Branch{Target: b3.ID}
	b2.Term = &ir.Branch{Target: b3.ID}
	b3.Term = &ir.Return{}

	u := emit(t, f)
	expected := `void f(bool c) {
    if (c) {
        py_print(std::string("yes"));
    }
}
`
	assert.Equal(t, expected, u.Definition)
}

func TestSwappingPhisGoThroughTemporaries(t *testing.T) {
	f := ir.NewFunction("swap", []ir.Param{{Name: "c", Type: types.BoolType}}, types.IntType)
	b0, b1, b2, b3 := f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock()
	c := load(f, b0, "c")
	b0.Term = &ir.Branch{Target: b1.ID}

	a, b := f.NewValue(types.IntType, "a"), f.NewValue(types.IntType, "b")
	b1.Append(&ir.Phi{Dst: a, Var: "a", Edges: []ir.PhiEdge{{Pred: b0.ID, Val: ir.IntOp(1)}, {Pred: b2.ID, Val: ir.Ref(b)}}})
	b1.Append(&ir.Phi{Dst: b, Var: "b", Edges: []ir.PhiEdge{{Pred: b0.ID, Val: ir.IntOp(2)}, {Pred: b2.ID, Val: ir.Ref(a)}}})
	b1.Term = &ir.CondBranch{Cond: c, Then: b2.ID, Else: b3.ID}
	b1.Loop = &ir.LoopInfo{Kind: ir.WhileLoop, Header: b1.ID, Test: b1.ID, Body: b2.ID, Latch: ir.NoBlock, Exit: b3.ID}
	b2.Term = &ir.Branch{Target: b1.ID}
	b3.Term = &ir.Return{Val: ir.Ref(a)}

	u := emit(t, f)
	expected := `int64_t swap(bool c) {
    int64_t v0{};
    int64_t v1{};

    v0 = INT64_C(1);
    v1 = INT64_C(2);
    while (true) {
        if (!(c)) {
            break;
        }
        {
            auto t0 = v1;
            auto t1 = v0;
            v0 = t0;
            v1 = t1;
        }
    }
    return v0;
}
`
	assert.Equal(t, expected, u.Definition)
}

func TestContainersArePassedByReference(t *testing.T) {
	f := ir.NewFunction("fill", []ir.Param{
		{Name: "xs", Type: types.ListOf(types.IntType)},
		{Name: "n", Type: types.IntType, Output: true},
	}, types.NoneType)
	b := f.NewBlock()
	xs := load(f, b, "xs")
	b.Append(&ir.Call{Callee: ir.BuiltinAppend, Builtin: true, Args: []ir.Operand{xs, ir.IntOp(1)}})
	n := f.NewValue(types.IntType, "t")
	b.Append(&ir.Call{Dst: n, Callee: ir.BuiltinLen, Builtin: true, Args: []ir.Operand{xs}})
	b.Append(&ir.Store{Kind: ir.StoreOutput, Var: "n", Val: ir.Ref(n)})
	b.Term = &ir.Return{}

	u := emit(t, f)
	expected := `void fill(std::vector<int64_t>& xs, int64_t& n) {
    xs.push_back(INT64_C(1));
    n = py_len(xs);
}
`
	assert.Equal(t, expected, u.Definition)
	assert.Equal(t, []string{"<cstdint>", "<vector>"}, u.Includes)
	assert.Equal(t, []string{"len"}, u.Helpers)
}

func TestMutationKeepsEarlierReadInAVariable(t *testing.T) {
	f := ir.NewFunction("f", []ir.Param{{Name: "xs", Type: types.ListOf(types.IntType)}}, types.IntType)
	b := f.NewBlock()
	xs := load(f, b, "xs")
	n := f.NewValue(types.IntType, "t")
	b.Append(&ir.Call{Dst: n, Callee: ir.BuiltinLen, Builtin: true, Args: []ir.Operand{xs}})
	b.Append(&ir.Call{Callee: ir.BuiltinAppend, Builtin: true, Args: []ir.Operand{xs, ir.IntOp(1)}})
	b.Term = &ir.Return{Val: ir.Ref(n)}

	u := emit(t, f)
	expected := `int64_t f(std::vector<int64_t>& xs) {
    int64_t v0{};

    v0 = py_len(xs);
    xs.push_back(INT64_C(1));
    return v0;
}
`
	assert.Equal(t, expected, u.Definition)
}

func TestDynamicOperandsUseRuntimeHelpers(t *testing.T) {
	f := ir.NewFunction("f", []ir.Param{
		{Name: "a", Type: types.DynamicType},
		{Name: "b", Type: types.DynamicType},
	}, types.DynamicType)
	blk := f.NewBlock()
	a, b := load(f, blk, "a"), load(f, blk, "b")
	sum := f.NewValue(types.DynamicType, "t")
	blk.Append(&ir.BinOp{Dst: sum, Op: ir.OpFloorDiv, X: a, Y: b})
	blk.Term = &ir.Return{Val: ir.Ref(sum)}

	u := emit(t, f)
	assert.Contains(t, u.Definition, "return py_dyn_arith('f', a, b);")
	assert.Equal(t, "py_dynamic f(py_dynamic a, py_dynamic b);", u.Prototype)
	assert.Equal(t, []string{"dynamic", "dynamic_ops"}, u.Helpers)
}

func TestUnmappableTypeIsACodeGenError(t *testing.T) {
	f := ir.NewFunction("f", []ir.Param{{Name: "x", Type: types.Unknown}}, types.NoneType)
	b := f.NewBlock()
	b.Term = &ir.Return{}

	_, err := NewEmitter().EmitFunction(f)
	require.Error(t, err)
	var cg *cerr.CodeGenError
	require.True(t, errors.As(err, &cg))
	assert.Contains(t, cg.Error(), "cannot generate code: in 'f': no C++ type for ?")
}

func TestEmissionIsDeterministic(t *testing.T) {
	first := emit(t, printLoop())
	for range 5 {
		assert.Equal(t, first, emit(t, printLoop()))
	}
}

func TestAssembleAddsPreludeAndEntryPoint(t *testing.T) {
	em := NewEmitter()
	f := printLoop()
	f.Blocks[1].Loop.Unroll = 8
	u := emit(t, f)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".cpp"),
	)
	g.Assert(t, "print_loop", []byte(em.Assemble("loop.py", []*Unit{u}, "loop")))
}

func TestAssembleWithoutEntryPoint(t *testing.T) {
	em := NewEmitter()
	u := emit(t, printLoop())
	out := em.Assemble("loop.py", []*Unit{u}, "main")
	assert.NotContains(t, out, "int main()")
	assert.Contains(t, out, "void loop();\n\nvoid loop() {")
}

func TestHelpersAreClosedOverDependencies(t *testing.T) {
	names := func(hs []helper) []string {
		out := make([]string, len(hs))
		for i, h := range hs {
			out[i] = h.name
		}
		return out
	}
	assert.Equal(t, []string{"error", "floordiv"}, names(resolveHelpers(set.From([]string{"floordiv"}))))
	assert.Equal(t,
		[]string{"dynamic", "repr", "repr_dynamic", "str", "str_dynamic", "print"},
		names(resolveHelpers(set.From([]string{"print", "dynamic"}))))
	assert.Equal(t,
		[]string{"dynamic", "truthy", "truthy_dynamic"},
		names(resolveHelpers(set.From([]string{"truthy", "dynamic"}))))
}

func TestPrintPullsInOnlyTheContainersItShows(t *testing.T) {
	em := NewEmitter()
	scalars := em.Assemble("loop.py", []*Unit{emit(t, printLoop())}, "loop")
	for _, h := range []string{"<map>", "<set>", "<tuple>", "<vector>"} {
		assert.NotContains(t, scalars, "#include "+h)
	}
	assert.NotContains(t, scalars, "py_repr_items")

	pairs := types.ListOf(types.TupleOf(types.IntType, types.StrType))
	f := ir.NewFunction("show", []ir.Param{{Name: "xs", Type: pairs}}, types.NoneType)
	b := f.NewBlock()
	xs := load(f, b, "xs")
	b.Append(&ir.Call{Callee: ir.BuiltinPrint, Builtin: true, Args: []ir.Operand{xs}})
	b.Term = &ir.Return{}

	u := emit(t, f)
	assert.Equal(t, []string{"print", "repr_list", "repr_tuple"}, u.Helpers)

	out := em.Assemble("show.py", []*Unit{u}, "main")
	assert.Contains(t, out, "#include <tuple>\n#include <vector>\n")
	assert.Contains(t, out, "template <typename T> std::string py_repr(const std::vector<T>& v);\n"+
		"template <typename... Ts> std::string py_repr(const std::tuple<Ts...>& t);\n")
	assert.NotContains(t, out, "#include <map>")
	assert.NotContains(t, out, "std::set<T>")
}

func TestIdentifiers(t *testing.T) {
	tests := map[string]string{
		"total":  "total",
		"class":  "class_",
		"main":   "main_",
		"v1":     "v1_",
		"t0":     "t0_",
		"value":  "value",
		"py_len": "py_len_",
		"café":   "caf_u00E9",
	}
	for in, want := range tests {
		assert.Equal(t, want, cppIdent(in), in)
	}
}

func TestLiterals(t *testing.T) {
	u := newUsage()
	lit := func(o ir.Operand) string {
		s, err := u.literal(o.Lit)
		require.NoError(t, err)
		return s
	}
	assert.Equal(t, "INT64_C(42)", lit(ir.IntOp(42)))
	assert.Equal(t, "INT64_C(-7)", lit(ir.IntOp(-7)))
	assert.Equal(t, "INT64_MIN", lit(ir.IntOp(-1<<63)))
	assert.Equal(t, "1.0", lit(ir.FloatOp(1)))
	assert.Equal(t, "0.1", lit(ir.FloatOp(0.1)))
	assert.Equal(t, "1e+21", lit(ir.FloatOp(1e21)))
	assert.Equal(t, "true", lit(ir.BoolOp(true)))
	assert.Equal(t, `std::string("a\"b\n")`, lit(ir.StrOp("a\"b\n")))
	assert.Equal(t, `std::string("\303\251")`, lit(ir.StrOp("é")))
	assert.Equal(t, `std::string("a\000b", 3)`, lit(ir.StrOp("a\x00b")))

	_, err := u.literal(ir.NoneOp().Lit)
	assert.Error(t, err)
}

func TestSortedUniq(t *testing.T) {
	assert.Equal(t, []string{"<map>", "<string>", "<vector>"},
		sortedUniq([]string{"<vector>", "<map>", "<vector>", "<string>", "<map>"}))
}

// lower resolves and builds the first function, the others are only callees.
func lower(t *testing.T, fns ...*ast.FunctionDef) *ir.Function {
	t.Helper()
	m := &ast.Module{Name: "m", File: "m.py", Functions: fns}
	sigs, failed := resolve.BuildSignatures(m, types.DynamicType)
	require.Empty(t, failed)
	sink := diag.NewSink("m.py", []string{fns[0].Name})
	r := resolve.New(sigs, nil, resolve.Options{Timeout: time.Second, Fallback: types.DynamicType}, sink)
	res, err := r.Resolve(context.Background(), fns[0])
	require.NoError(t, err)
	f, err := irgen.Build(res, sigs, sink)
	require.NoError(t, err)
	return f
}

func TestContinueInRangeLoopJumpsToTheLatch(t *testing.T) {
	i := func() *ast.Name { return ast.NewName("i") }
	f := lower(t, &ast.FunctionDef{
		Name:    "odd_sum",
		Returns: "int",
		Params:  []*ast.Param{{Name: "n", Annotation: "int"}},
		Body: []ast.Stmt{
			ast.AssignName("s", ast.IntLit(0)),
			&ast.For{
				Target: i(),
				Iter:   ast.CallName("range", ast.NewName("n")),
				Body: []ast.Stmt{
					&ast.If{
						Test: ast.Cmp(ast.Bin(i(), ast.Mod, ast.IntLit(2)), ast.Eq, ast.IntLit(0)),
						Body: []ast.Stmt{&ast.Continue{}},
					},
					&ast.AugAssign{Target: ast.NewName("s"), Op: ast.Add, Value: i()},
				},
			},
			&ast.Return{Value: ast.NewName("s")},
		},
	})

	u := emit(t, f)
	assert.Contains(t, u.Definition, "int64_t odd_sum(int64_t n) {")
	assert.Contains(t, u.Definition, "goto latch_0;")
	assert.Contains(t, u.Definition, "latch_0:;")
	assert.Contains(t, u.Definition, " < n)) {")
	assert.Contains(t, u.Definition, "py_mod(")
	assert.NotContains(t, u.Definition, "continue;")
}

func TestBreakLeavesWhileLoop(t *testing.T) {
	f := lower(t, &ast.FunctionDef{
		Name:    "first_big",
		Returns: "int",
		Params:  []*ast.Param{{Name: "xs", Annotation: "list[int]"}},
		Body: []ast.Stmt{
			ast.AssignName("k", ast.IntLit(0)),
			&ast.While{
				Test: ast.Cmp(ast.NewName("k"), ast.Lt, ast.CallName("len", ast.NewName("xs"))),
				Body: []ast.Stmt{
					&ast.If{
						Test: ast.Cmp(&ast.Subscript{Value: ast.NewName("xs"), Index: ast.NewName("k")}, ast.Gt, ast.IntLit(100)),
						Body: []ast.Stmt{&ast.Break{}},
					},
					&ast.AugAssign{Target: ast.NewName("k"), Op: ast.Add, Value: ast.IntLit(1)},
				},
			},
			&ast.Return{Value: ast.NewName("k")},
		},
	})

	u := emit(t, f)
	assert.Contains(t, u.Definition, "int64_t first_big(std::vector<int64_t>& xs) {")
	assert.Contains(t, u.Definition, "break;")
	assert.Contains(t, u.Definition, "py_index(xs, ")
	assert.NotContains(t, u.Definition, "goto")
	assert.ElementsMatch(t, []string{"index", "len"}, u.Helpers)
}
