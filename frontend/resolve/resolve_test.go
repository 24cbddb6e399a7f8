package resolve

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/py2cppai/py2cpp/advisor"
	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/types"
)

func fn(name string, params []*ast.Param, body ...ast.Stmt) *ast.FunctionDef {
	return &ast.FunctionDef{Name: name, Params: params, Body: body}
}

func param(name, annotation string) *ast.Param {
	return &ast.Param{Name: name, Annotation: annotation}
}

func ret(e ast.Expr) *ast.Return { return &ast.Return{Value: e} }

type fixture struct {
	sigs   *Signatures
	failed map[string]*cerr.Errors
	sink   *diag.Sink
	stub   *advisor.Stub
}

func setup(t *testing.T, fns ...*ast.FunctionDef) *fixture {
	t.Helper()
	m := &ast.Module{Name: "m", File: "m.py", Functions: fns}
	sigs, failed := BuildSignatures(m, types.DynamicType)
	names := make([]string, len(fns))
	for i, f := range fns {
		names[i] = f.Name
	}
	return &fixture{sigs: sigs, failed: failed, sink: diag.NewSink("m.py", names), stub: &advisor.Stub{}}
}

func (f *fixture) resolver(ai bool) *Resolver {
	return New(f.sigs, f.stub, Options{
		AIEnabled:     ai,
		Threshold:     0.6,
		Timeout:       time.Second,
		ContextWindow: 3,
		Fallback:      types.DynamicType,
		RunID:         "run",
	}, f.sink)
}

func TestStaticResolutionMakesNoAdvisorCall(t *testing.T) {
	// x = 42 + y with y: int
	f := fn("f", []*ast.Param{param("y", "int")},
		ast.AssignName("x", ast.Bin(ast.IntLit(42), ast.Add, ast.NewName("y"))))
	fx := setup(t, f)

	res, err := fx.resolver(true).Resolve(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, types.IntType, res.Env.TypeOf("x"))
	assert.Equal(t, types.IntType, res.Env.TypeOf("y"))
	assert.Equal(t, 0, res.AdvisorCalls)
	assert.Empty(t, fx.stub.Requests())
	assert.Equal(t, types.NoneType, res.Return)

	b, _ := res.Env.Lookup("x")
	assert.Equal(t, types.FromInference, b.Source)
	assert.Equal(t, types.Local, b.Kind)
}

func TestConflictOnMapKeyAndFloatArithmetic(t *testing.T) {
	sum := ast.Bin(ast.NewName("k"), ast.Add, ast.FloatLit(1.5))
	sum.Range = ast.Range{PosStart: ast.Position{Line: 3, Col: 12}}
	f := fn("f", []*ast.Param{param("d", "dict[str, int]"), param("k", "")},
		ast.AssignName("v", &ast.Subscript{Value: ast.NewName("d"), Index: ast.NewName("k")}),
		ret(sum))
	sibling := fn("g", []*ast.Param{param("n", "int")}, ret(ast.Bin(ast.NewName("n"), ast.Mult, ast.IntLit(2))))
	fx := setup(t, f, sibling)

	_, err := fx.resolver(false).Resolve(context.Background(), f)
	require.Error(t, err)
	var conflict *cerr.TypeConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "k", conflict.Binding)
	assert.Equal(t, types.StrType, conflict.First)
	assert.Equal(t, types.FloatType, conflict.Second)
	assert.Equal(t, 3, conflict.Pos().Line)

	res, err := fx.resolver(false).Resolve(context.Background(), sibling)
	require.NoError(t, err)
	assert.Equal(t, types.IntType, res.Return)
}

func TestAdvisorTimeoutFallsBack(t *testing.T) {
	f := fn("f", nil,
		ast.AssignName("a", &ast.List{}),
		ast.AssignName("b", ast.CallName("set")),
		ret(ast.CallName("len", ast.NewName("a"))))
	fx := setup(t, f)
	fx.stub.Delay = time.Hour
	r := fx.resolver(true)
	r.opts.Timeout = 20 * time.Millisecond

	res, err := r.Resolve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AdvisorCalls)
	assert.Equal(t, types.ListOf(types.DynamicType), res.Env.TypeOf("a"))
	assert.Equal(t, types.SetOf(types.DynamicType), res.Env.TypeOf("b"))

	reqs := fx.stub.Requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Items, 2)
	assert.Equal(t, "run", reqs[0].RequestID)

	var timeouts int
	for _, d := range fx.sink.Diagnostics() {
		if d.Severity == diag.Warning && strings.Contains(d.Message, "type advisor failed") {
			timeouts++
		}
	}
	assert.Equal(t, 1, timeouts)
}

func TestAcceptedSuggestion(t *testing.T) {
	f := fn("f", nil,
		ast.AssignName("xs", &ast.List{}),
		ret(ast.CallName("len", ast.NewName("xs"))))
	fx := setup(t, f)
	fx.stub.Types = map[string]advisor.Suggestion{"xs": {SuggestedType: "list[int]", Confidence: 0.9}}

	res, err := fx.resolver(true).Resolve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, types.ListOf(types.IntType), res.Env.TypeOf("xs"))
	b, _ := res.Env.Lookup("xs")
	assert.Equal(t, types.FromAdvisor, b.Source)

	reqs := fx.stub.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"len"}, reqs[0].Items[0].Usage)
	assert.Equal(t, "xs", reqs[0].Items[0].Target)
}

func TestSuggestionBelowThresholdIsNeverUsed(t *testing.T) {
	f := fn("f", nil,
		ast.AssignName("xs", &ast.List{}),
		ret(ast.CallName("len", ast.NewName("xs"))))
	fx := setup(t, f)
	fx.stub.Types = map[string]advisor.Suggestion{"xs": {SuggestedType: "list[int]", Confidence: 0}}
	r := fx.resolver(true)
	r.opts.Threshold = 0.99

	res, err := r.Resolve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, types.ListOf(types.DynamicType), res.Env.TypeOf("xs"))
	b, _ := res.Env.Lookup("xs")
	assert.Equal(t, types.FromFallback, b.Source)

	var rejected bool
	for _, d := range fx.sink.Diagnostics() {
		rejected = rejected || strings.Contains(d.Message, "rejected suggestion 'list[int]' for 'xs'")
	}
	assert.True(t, rejected)
}

func TestContradictingSuggestionIsRejected(t *testing.T) {
	f := fn("f", nil,
		ast.AssignName("xs", &ast.List{}),
		ret(ast.CallName("len", ast.NewName("xs"))))
	fx := setup(t, f)
	fx.stub.Types = map[string]advisor.Suggestion{"xs": {SuggestedType: "int", Confidence: 1}}

	res, err := fx.resolver(true).Resolve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, types.ListOf(types.DynamicType), res.Env.TypeOf("xs"))
}

func TestAIDisabledGoesStraightToFallback(t *testing.T) {
	f := fn("f", nil, ast.AssignName("xs", &ast.List{}))
	fx := setup(t, f)
	fx.stub.Types = map[string]advisor.Suggestion{"xs": {SuggestedType: "list[int]", Confidence: 1}}

	res, err := fx.resolver(false).Resolve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 0, res.AdvisorCalls)
	assert.Empty(t, fx.stub.Requests())
	assert.Equal(t, types.ListOf(types.DynamicType), res.Env.TypeOf("xs"))
}

func TestSignaturesLearnFromCallSitesAndReturns(t *testing.T) {
	double := fn("double", []*ast.Param{param("v", "")}, ret(ast.Bin(ast.NewName("v"), ast.Mult, ast.IntLit(2))))
	main := fn("main", nil,
		ast.AssignName("x", ast.CallName("double", ast.IntLit(21))),
		&ast.ExprStmt{X: ast.CallName("print", ast.NewName("x"))})
	fx := setup(t, double, main)
	require.Empty(t, fx.failed)

	sig, ok := fx.sigs.Lookup("double")
	require.True(t, ok)
	assert.Equal(t, types.IntType, sig.Params[0].Type)
	assert.Equal(t, types.IntType, sig.Return)

	sig, _ = fx.sigs.Lookup("main")
	assert.Equal(t, types.NoneType, sig.Return)

	res, err := fx.resolver(false).Resolve(context.Background(), main)
	require.NoError(t, err)
	assert.Equal(t, types.IntType, res.Env.TypeOf("x"))
}

func TestElementAccessNarrows(t *testing.T) {
	f := fn("f", []*ast.Param{param("xs", "list[float]")},
		ast.AssignName("total", ast.IntLit(0)),
		&ast.For{Target: ast.NewName("v"), Iter: ast.NewName("xs"), Body: []ast.Stmt{
			&ast.AugAssign{Target: ast.NewName("total"), Op: ast.Add, Value: ast.NewName("v")},
		}},
		ast.AssignName("first", &ast.Subscript{Value: ast.NewName("xs"), Index: ast.IntLit(0)}),
		ret(ast.NewName("total")))
	fx := setup(t, f)

	res, err := fx.resolver(false).Resolve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, types.FloatType, res.Env.TypeOf("v"))
	assert.Equal(t, types.FloatType, res.Env.TypeOf("first"))
	assert.Equal(t, types.FloatType, res.Env.TypeOf("total"), "an int binding that also receives floats widens")
	assert.Equal(t, types.FloatType, res.Return)
}

func TestEmptyDisplaySettlesToTargetType(t *testing.T) {
	empty := &ast.List{}
	f := fn("f", []*ast.Param{param("n", "int")},
		ast.AssignName("xs", empty),
		&ast.ExprStmt{X: ast.CallMethod(ast.NewName("xs"), "append", ast.NewName("n"))},
		ret(ast.NewName("xs")))
	fx := setup(t, f)

	res, err := fx.resolver(false).Resolve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, types.ListOf(types.IntType), res.Env.TypeOf("xs"))
	assert.Equal(t, types.ListOf(types.IntType), res.TypeOf(empty))
	assert.Equal(t, types.ListOf(types.IntType), res.Return)
}

func TestUnboundNameAndArity(t *testing.T) {
	g := fn("g", []*ast.Param{param("a", "int")}, ret(ast.NewName("a")))
	f := fn("f", nil,
		ast.AssignName("x", ast.NewName("nowhere")),
		ast.AssignName("y", ast.CallName("g", ast.IntLit(1), ast.IntLit(2))))
	fx := setup(t, g, f)

	_, err := fx.resolver(false).Resolve(context.Background(), f)
	require.Error(t, err)
	var errs *cerr.Errors
	require.True(t, errors.As(err, &errs))
	codes := []cerr.ErrCode{}
	for _, e := range errs.Errors() {
		codes = append(codes, e.Code())
	}
	assert.ElementsMatch(t, []cerr.ErrCode{cerr.UnboundName, cerr.InvalidSignature}, codes)
}

func TestInvalidAnnotationFailsSignature(t *testing.T) {
	f := fn("f", []*ast.Param{param("a", "lst[int]")}, ret(ast.NewName("a")))
	fx := setup(t, f)
	require.Contains(t, fx.failed, "f")
	assert.Equal(t, cerr.InvalidSignature, fx.failed["f"].First().Code())
}

func TestStringRules(t *testing.T) {
	f := fn("f", []*ast.Param{param("s", "str"), param("n", "")},
		ast.AssignName("t", ast.Bin(ast.NewName("s"), ast.Mult, ast.NewName("n"))),
		ret(ast.Bin(ast.NewName("t"), ast.Add, ast.StrLit("!"))))
	fx := setup(t, f)

	res, err := fx.resolver(false).Resolve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, types.IntType, res.Env.TypeOf("n"))
	assert.Equal(t, types.StrType, res.Return)
}

func TestContextWindow(t *testing.T) {
	f := fn("f", []*ast.Param{param("a", "int")},
		ast.AssignName("x", ast.IntLit(1)),
		ast.AssignName("y", ast.IntLit(2)),
		ast.AssignName("z", ast.Bin(ast.NewName("x"), ast.Add, ast.NewName("a"))))

	assert.Equal(t, "def f(a: int):\n    z = (x + a)", contextWindow(f, "a", 0))
	assert.Equal(t, "def f(a: int):\n    x = 1\n    ...\n    z = (x + a)", contextWindow(f, "x", 0))
	assert.Equal(t, "def f(a: int):\n    x = 1\n    y = 2\n    z = (x + a)", contextWindow(f, "x", 1))
}

func TestUsageFit(t *testing.T) {
	assert.Equal(t, 0.5, UsageFit(types.IntType, nil))
	assert.Equal(t, 1.0, UsageFit(types.ListOf(types.IntType), []Shape{ShapeLen, ShapeAppend}))
	assert.Equal(t, 0.5, UsageFit(types.IntType, []Shape{ShapeArith, ShapeSubscript}))
	assert.Equal(t, 1.0, UsageFit(types.DynamicType, []Shape{ShapeAdd, ShapeSubscript}))
}
