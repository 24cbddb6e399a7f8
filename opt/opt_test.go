package opt

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/py2cppai/py2cpp/advisor"
	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/config"
	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/frontend/types"
	"github.com/py2cppai/py2cpp/ir"
)

// straight builds a single-block function returning the value of the last instruction.
func straight(ret types.Type, build func(f *ir.Function, b *ir.Block) ir.Operand) *ir.Function {
	f := ir.NewFunction("f", nil, ret)
	b := f.NewBlock()
	b.Term = &ir.Return{Val: build(f, b)}
	return f
}

func binop(f *ir.Function, b *ir.Block, t types.Type, op ir.Op, x, y ir.Operand) ir.Operand {
	dst := f.NewValue(t, "t")
	b.Append(&ir.BinOp{Dst: dst, Op: op, X: x, Y: y})
	return ir.Ref(dst)
}

func returned(f *ir.Function) ir.Operand {
	return f.Blocks[0].Term.(*ir.Return).Val
}

// rangeLoop builds
//
//	b0: br b1
//	b1: %i = phi [b0: start] [b3: %next]; %c = lt %i, stop; condbr %c, b2, b4
//	b2: call builtin.print(%i); br b3
//	b3: %next = add %i, 1; br b1
//	b4: ret
func rangeLoop(start, stop ir.Operand) *ir.Function {
	f := ir.NewFunction("loop", nil, types.NoneType)
	b0, b1, b2, b3, b4 := f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock()
	i, c, next := f.NewValue(types.IntType, "i"), f.NewValue(types.BoolType, "t"), f.NewValue(types.IntType, "i")

	b0.Term = &ir.Branch{Target: b1.ID}
	b1.Append(&ir.Phi{Dst: i, Var: "i", Edges: []ir.PhiEdge{{Pred: b0.ID, Val: start}, {Pred: b3.ID, Val: ir.Ref(next)}}})
	b1.Append(&ir.BinOp{Dst: c, Op: ir.OpLt, X: ir.Ref(i), Y: stop})
	b1.Term = &ir.CondBranch{Cond: ir.Ref(c), Then: b2.ID, Else: b4.ID}
	b1.Loop = &ir.LoopInfo{
		Kind: ir.RangeLoop, Header: b1.ID, Test: b1.ID, Body: b2.ID, Latch: b3.ID, Exit: b4.ID,
		Start: start, Stop: stop, Step: ir.IntOp(1),
	}
	b2.Append(&ir.Call{Callee: ir.BuiltinPrint, Builtin: true, Args: []ir.Operand{ir.Ref(i)}})
	b2.Term = &ir.Branch{Target: b3.ID}
	b3.Append(&ir.BinOp{Dst: next, Op: ir.OpAdd, X: ir.Ref(i), Y: ir.IntOp(1)})
	b3.Term = &ir.Branch{Target: b1.ID}
	b4.Term = &ir.Return{}
	return f
}

func run(t *testing.T, p Pass, f *ir.Function) int {
	t.Helper()
	require.NoError(t, ir.Verify(f))
	n, err := p.Run(context.Background(), f)
	require.NoError(t, err)
	require.NoError(t, ir.Verify(f))
	return n
}

func TestConstFoldChains(t *testing.T) {
	f := straight(types.IntType, func(f *ir.Function, b *ir.Block) ir.Operand {
		sum := binop(f, b, types.IntType, ir.OpAdd, ir.IntOp(2), ir.IntOp(3))
		return binop(f, b, types.IntType, ir.OpMul, sum, ir.IntOp(4))
	})
	assert.Equal(t, 2, run(t, ConstFold{}, f))
	assert.Empty(t, f.Blocks[0].Instrs)
	assert.Equal(t, ir.IntOp(20), returned(f))
}

func TestConstFoldFollowsPythonArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   ir.Op
		x, y ir.Operand
		t    types.Type
		want ir.Operand
	}{
		{"floor division rounds down", ir.OpFloorDiv, ir.IntOp(-7), ir.IntOp(2), types.IntType, ir.IntOp(-4)},
		{"modulo takes the divisor sign", ir.OpMod, ir.IntOp(-7), ir.IntOp(2), types.IntType, ir.IntOp(1)},
		{"negative divisor", ir.OpMod, ir.IntOp(7), ir.IntOp(-2), types.IntType, ir.IntOp(-1)},
		{"true division", ir.OpDiv, ir.IntOp(7), ir.IntOp(2), types.FloatType, ir.FloatOp(3.5)},
		{"float modulo", ir.OpMod, ir.FloatOp(-1), ir.FloatOp(3), types.FloatType, ir.FloatOp(2)},
		{"power", ir.OpPow, ir.IntOp(3), ir.IntOp(4), types.IntType, ir.IntOp(81)},
		{"string repeat", ir.OpMul, ir.StrOp("ab"), ir.IntOp(3), types.StrType, ir.StrOp("ababab")},
		{"substring", ir.OpIn, ir.StrOp("b"), ir.StrOp("abc"), types.BoolType, ir.BoolOp(true)},
		{"comparison", ir.OpLe, ir.IntOp(3), ir.IntOp(3), types.BoolType, ir.BoolOp(true)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := straight(tc.t, func(f *ir.Function, b *ir.Block) ir.Operand {
				return binop(f, b, tc.t, tc.op, tc.x, tc.y)
			})
			run(t, ConstFold{}, f)
			assert.Equal(t, tc.want, returned(f))
		})
	}
}

func TestConstFoldLeavesFaultingOperations(t *testing.T) {
	tests := []struct {
		name string
		op   ir.Op
		x, y ir.Operand
		t    types.Type
	}{
		{"division by zero", ir.OpFloorDiv, ir.IntOp(1), ir.IntOp(0), types.IntType},
		{"float division by zero", ir.OpDiv, ir.FloatOp(1), ir.FloatOp(0), types.FloatType},
		{"overflow", ir.OpAdd, ir.IntOp(math.MaxInt64), ir.IntOp(1), types.IntType},
		{"power overflow", ir.OpPow, ir.IntOp(10), ir.IntOp(30), types.IntType},
		{"declared type differs", ir.OpAdd, ir.IntOp(1), ir.IntOp(1), types.FloatType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := straight(tc.t, func(f *ir.Function, b *ir.Block) ir.Operand {
				return binop(f, b, tc.t, tc.op, tc.x, tc.y)
			})
			assert.Equal(t, 0, run(t, ConstFold{}, f))
			assert.Len(t, f.Blocks[0].Instrs, 1)
		})
	}
}

func TestConstFoldBuiltins(t *testing.T) {
	f := straight(types.StrType, func(f *ir.Function, b *ir.Block) ir.Operand {
		n := f.NewValue(types.IntType, "t")
		b.Append(&ir.Call{Dst: n, Callee: ir.BuiltinMax, Builtin: true, Args: []ir.Operand{ir.IntOp(3), ir.IntOp(9), ir.IntOp(4)}})
		s := f.NewValue(types.StrType, "t")
		b.Append(&ir.Call{Dst: s, Callee: ir.BuiltinStr, Builtin: true, Args: []ir.Operand{ir.Ref(n)}})
		return ir.Ref(s)
	})
	assert.Equal(t, 2, run(t, ConstFold{}, f))
	assert.Equal(t, ir.StrOp("9"), returned(f))
}

func TestConstFoldZeroValue(t *testing.T) {
	f := straight(types.FloatType, func(f *ir.Function, b *ir.Block) ir.Operand {
		z := f.NewValue(types.FloatType, "x")
		b.Append(&ir.Call{Dst: z, Callee: ir.BuiltinZero, Builtin: true})
		return ir.Ref(z)
	})
	run(t, ConstFold{}, f)
	assert.Equal(t, ir.FloatOp(0), returned(f))
}

func TestConstFoldKeepsImpureCalls(t *testing.T) {
	f := straight(types.NoneType, func(f *ir.Function, b *ir.Block) ir.Operand {
		b.Append(&ir.Call{Callee: ir.BuiltinPrint, Builtin: true, Args: []ir.Operand{ir.IntOp(1)}})
		return ir.Operand{}
	})
	assert.Equal(t, 0, run(t, ConstFold{}, f))
	assert.Len(t, f.Blocks[0].Instrs, 1)
}

func TestConstFoldPhiWithAgreeingInputs(t *testing.T) {
	f := ir.NewFunction("f", []ir.Param{{Name: "c", Type: types.BoolType}}, types.IntType)
	b0, b1, b2, b3 := f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock()
	c := f.NewValue(types.BoolType, "c")
	b0.Append(&ir.Load{Dst: c, Var: "c"})
	b0.Term = &ir.CondBranch{Cond: ir.Ref(c), Then: b1.ID, Else: b2.ID}
	b0.IfMerge = b3.ID
	two := binop(f, b1, types.IntType, ir.OpAdd, ir.IntOp(1), ir.IntOp(1))
	b1.Term = &ir.Branch{Target: b3.ID}
	b2.Term = &ir.Branch{Target: b3.ID}
	x := f.NewValue(types.IntType, "x")
	b3.Append(&ir.Phi{Dst: x, Var: "x", Edges: []ir.PhiEdge{{Pred: b1.ID, Val: two}, {Pred: b2.ID, Val: ir.IntOp(2)}}})
	b3.Term = &ir.Return{Val: ir.Ref(x)}

	assert.Equal(t, 2, run(t, ConstFold{}, f))
	assert.Empty(t, b3.Instrs)
	assert.Equal(t, ir.IntOp(2), b3.Term.(*ir.Return).Val)
}

func TestConstFoldIsIdempotent(t *testing.T) {
	f := rangeLoop(ir.IntOp(0), ir.IntOp(8))
	f.Blocks[2].Instrs = append([]ir.Instr{&ir.BinOp{Dst: f.NewValue(types.IntType, "t"), Op: ir.OpMul, X: ir.IntOp(6), Y: ir.IntOp(7)}}, f.Blocks[2].Instrs...)
	assert.Equal(t, 1, run(t, ConstFold{}, f))
	once := ir.CanonicalText(f)
	assert.Equal(t, 0, run(t, ConstFold{}, f))
	assert.Equal(t, once, ir.CanonicalText(f))
}

func TestDCERemovesUnusedPureInstructions(t *testing.T) {
	f := straight(types.NoneType, func(f *ir.Function, b *ir.Block) ir.Operand {
		x := f.NewValue(types.IntType, "x")
		b.Append(&ir.Load{Dst: x, Var: "x"})
		binop(f, b, types.IntType, ir.OpAdd, ir.Ref(x), ir.IntOp(1))
		b.Append(&ir.Call{Callee: ir.BuiltinPrint, Builtin: true, Args: []ir.Operand{ir.StrOp("kept")}})
		b.Append(&ir.Call{Callee: "helper", Args: nil})
		return ir.Operand{}
	})
	f.Params = []ir.Param{{Name: "x", Type: types.IntType}}
	assert.Equal(t, 2, run(t, DCE{}, f))
	require.Len(t, f.Blocks[0].Instrs, 2)
	assert.Equal(t, ir.BuiltinPrint, f.Blocks[0].Instrs[0].(*ir.Call).Callee)
	assert.Equal(t, "helper", f.Blocks[0].Instrs[1].(*ir.Call).Callee)
}

func TestDCERemovesDeadPhiCycle(t *testing.T) {
	f := rangeLoop(ir.IntOp(0), ir.IntOp(8))
	// an accumulator nothing reads: s = phi(0, s + 1)
	header, latch := f.Blocks[1], f.Blocks[3]
	s, next := f.NewValue(types.IntType, "s"), f.NewValue(types.IntType, "s")
	header.Instrs = append([]ir.Instr{&ir.Phi{Dst: s, Var: "s", Edges: []ir.PhiEdge{{Pred: 0, Val: ir.IntOp(0)}, {Pred: 3, Val: ir.Ref(next)}}}}, header.Instrs...)
	latch.Append(&ir.BinOp{Dst: next, Op: ir.OpAdd, X: ir.Ref(s), Y: ir.IntOp(1)})

	assert.Equal(t, 2, run(t, DCE{}, f))
	assert.Len(t, header.Phis(), 1)
	assert.Len(t, latch.Instrs, 1)
}

func TestDCEDeadStoreRule(t *testing.T) {
	f := ir.NewFunction("f", []ir.Param{{Name: "r", Type: types.IntType, Output: true}}, types.NoneType)
	f.Locals = []ir.Var{{Name: "x", Type: types.IntType}}
	b := f.NewBlock()
	b.Append(&ir.Store{Kind: ir.StoreLocal, Var: "x", Val: ir.IntOp(1)})
	b.Append(&ir.Store{Kind: ir.StoreOutput, Var: "r", Val: ir.IntOp(1)})
	b.Append(&ir.Store{Kind: ir.StoreLocal, Var: "x", Val: ir.IntOp(2)})
	b.Append(&ir.Store{Kind: ir.StoreOutput, Var: "r", Val: ir.IntOp(2)})
	b.Term = &ir.Return{}

	assert.Equal(t, 1, run(t, DCE{}, f))
	require.Len(t, b.Instrs, 3)
	// output stores survive with no later read in the function
	assert.Equal(t, ir.StoreOutput, b.Instrs[0].(*ir.Store).Kind)
	assert.Equal(t, ir.IntOp(2), b.Instrs[1].(*ir.Store).Val)
	assert.Equal(t, ir.StoreOutput, b.Instrs[2].(*ir.Store).Kind)
}

func TestDCEIsIdempotent(t *testing.T) {
	f := rangeLoop(ir.IntOp(0), ir.IntOp(8))
	binop(f, f.Blocks[2], types.IntType, ir.OpMul, ir.Ref(1), ir.IntOp(2))
	assert.Equal(t, 1, run(t, DCE{}, f))
	once := ir.CanonicalText(f)
	assert.Equal(t, 0, run(t, DCE{}, f))
	assert.Equal(t, once, ir.CanonicalText(f))
}

func unroller(adv advisor.UnrollAdvisor, sink *diag.Sink) *Unroll {
	return &Unroll{Config: config.Default().Unroll, Advisor: adv, Timeout: time.Second, Sink: sink, RunID: "run"}
}

func TestUnrollLiteralRange(t *testing.T) {
	tests := []struct {
		name  string
		stop  int64
		want  int
		asked bool
	}{
		{"trip count within max factor", 8, 8, false},
		{"largest divisor", 12, 6, false},
		{"single iteration", 1, 0, false},
		{"prime trip count asks the advisor", 11, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &advisor.Stub{}
			f := rangeLoop(ir.IntOp(0), ir.IntOp(tc.stop))
			run(t, unroller(stub, nil), f)
			assert.Equal(t, tc.want, f.Blocks[1].Loop.Unroll)
			assert.Equal(t, tc.asked, len(stub.UnrollQueries()) > 0)
		})
	}
}

func TestUnrollBodyAboveCeilingAsksAdvisor(t *testing.T) {
	stub := &advisor.Stub{Unrolls: map[string]advisor.UnrollAdvice{"loop": {Factor: 4, Confidence: 0.9}}}
	u := unroller(stub, nil)
	u.Config.BodyCeiling = 1
	f := rangeLoop(ir.IntOp(0), ir.IntOp(8))
	run(t, u, f)
	assert.Equal(t, 4, f.Blocks[1].Loop.Unroll)

	queries := stub.UnrollQueries()
	require.Len(t, queries, 1)
	assert.Equal(t, "run", queries[0].RequestID)
	assert.True(t, queries[0].TripKnown)
	assert.EqualValues(t, 8, queries[0].TripCount)
	assert.Equal(t, 3, queries[0].BodySize)
	assert.Contains(t, queries[0].Loop, "call builtin.print(%i.0)")
}

func TestUnrollAdvice(t *testing.T) {
	tests := []struct {
		name   string
		advice advisor.UnrollAdvice
		err    error
		want   int
		sev    diag.Severity
		note   string
	}{
		{"accepted", advisor.UnrollAdvice{Factor: 2, Confidence: 0.6}, nil, 2, 0, ""},
		{"low confidence", advisor.UnrollAdvice{Factor: 4, Confidence: 0.3}, nil, 0, diag.Info, "below"},
		{"factor above max", advisor.UnrollAdvice{Factor: 64, Confidence: 1}, nil, 0, diag.Info, "size limits"},
		{"advisor failure", advisor.UnrollAdvice{}, errors.New("boom"), 0, diag.Warning, "failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &advisor.Stub{Unrolls: map[string]advisor.UnrollAdvice{"loop": tc.advice}, Err: tc.err}
			sink := diag.NewSink("m.py", []string{"loop"})
			// the stop bound is not a literal, so no factor can be derived
			f := rangeLoop(ir.IntOp(0), ir.IntOp(8))
			n := f.NewValue(types.IntType, "n")
			f.Params = []ir.Param{{Name: "n", Type: types.IntType}}
			f.Blocks[0].Append(&ir.Load{Dst: n, Var: "n"})
			f.Blocks[1].Loop.Stop = ir.Ref(n)
			f.Blocks[1].Instrs[1].(*ir.BinOp).Y = ir.Ref(n)

			run(t, unroller(stub, sink), f)
			assert.Equal(t, tc.want, f.Blocks[1].Loop.Unroll)
			if tc.note == "" {
				assert.Empty(t, sink.Diagnostics())
				return
			}
			require.Len(t, sink.Diagnostics(), 1)
			assert.Equal(t, tc.sev, sink.Diagnostics()[0].Severity)
			assert.Contains(t, sink.Diagnostics()[0].Message, tc.note)
		})
	}
}

func TestUnrollAdvisorTimeout(t *testing.T) {
	stub := &advisor.Stub{Delay: time.Minute}
	sink := diag.NewSink("m.py", []string{"loop"})
	u := unroller(stub, sink)
	u.Timeout = 10 * time.Millisecond
	u.Config.BodyCeiling = 1

	f := rangeLoop(ir.IntOp(0), ir.IntOp(8))
	run(t, u, f)
	assert.Equal(t, 0, f.Blocks[1].Loop.Unroll)
	require.Len(t, sink.Diagnostics(), 1)
	assert.Contains(t, sink.Diagnostics()[0].Message, "timed out")
}

func TestUnrollWithoutAdvisorLeavesUnknownLoops(t *testing.T) {
	u := unroller(nil, nil)
	u.Config.BodyCeiling = 1
	f := rangeLoop(ir.IntOp(0), ir.IntOp(8))
	assert.Equal(t, 0, run(t, u, f))
	assert.Equal(t, 0, f.Blocks[1].Loop.Unroll)
}

func TestPipelineFoldsThenAnnotates(t *testing.T) {
	// range(0, 2 * 4) only has a trip count once the bound is folded
	f := rangeLoop(ir.IntOp(0), ir.IntOp(0))
	stop := binop(f, f.Blocks[0], types.IntType, ir.OpMul, ir.IntOp(2), ir.IntOp(4))
	f.Blocks[1].Loop.Stop = stop
	f.Blocks[1].Instrs[1].(*ir.BinOp).Y = stop

	p := Default(config.Default(), nil, nil, "run")
	require.NoError(t, p.Run(context.Background(), f))
	assert.Empty(t, f.Blocks[0].Instrs)
	assert.Equal(t, ir.IntOp(8), f.Blocks[1].Loop.Stop)
	assert.Equal(t, 8, f.Blocks[1].Loop.Unroll)
	assert.Contains(t, ir.FormatFunction(f), "range(0, 8, 1) unroll 8")
}

func TestPipelineLevels(t *testing.T) {
	build := func() *ir.Function {
		f := rangeLoop(ir.IntOp(0), ir.IntOp(8))
		binop(f, f.Blocks[2], types.IntType, ir.OpAdd, ir.IntOp(1), ir.IntOp(1))
		return f
	}
	cfg := config.Default()

	cfg.OptLevel = 0
	f := build()
	require.NoError(t, Default(cfg, nil, nil, "run").Run(context.Background(), f))
	assert.Len(t, f.Blocks[2].Instrs, 2)
	assert.Equal(t, 0, f.Blocks[1].Loop.Unroll)

	cfg.OptLevel = 1
	f = build()
	require.NoError(t, Default(cfg, nil, nil, "run").Run(context.Background(), f))
	assert.Len(t, f.Blocks[2].Instrs, 1)
	assert.Equal(t, 0, f.Blocks[1].Loop.Unroll)
}

func TestPipelineRejectsMalformedIR(t *testing.T) {
	f := rangeLoop(ir.IntOp(0), ir.IntOp(8))
	f.Blocks[3].Term = nil

	err := Default(config.Default(), nil, nil, "run").Run(context.Background(), f)
	require.Error(t, err)
	var violation *cerr.OptimizationInvariantViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "constfold", violation.Pass)
	assert.Equal(t, "loop", violation.Function)
	assert.True(t, cerr.Fatal(err))
}
