package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/py2cppai/py2cpp/frontend/types"
)

// diamond builds
//
//	b0: %c = load c; condbr %c, b1, b2
//	b1: %t.0 = add 1, 2; br b3
//	b2: br b3
//	b3: %x.0 = phi [b1: %t.0] [b2: 0]; ret %x.0
func diamond() (*Function, ValueID) {
	f := NewFunction("f", []Param{{Name: "c", Type: types.BoolType}}, types.IntType)
	b0, b1, b2, b3 := f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock()
	c := f.NewValue(types.BoolType, "c")
	b0.Append(&Load{Dst: c, Var: "c"})
	b0.Term = &CondBranch{Cond: Ref(c), Then: b1.ID, Else: b2.ID}
	b0.IfMerge = b3.ID

	sum := f.NewValue(types.IntType, "t")
	b1.Append(&BinOp{Dst: sum, Op: OpAdd, X: IntOp(1), Y: IntOp(2)})
	b1.Term = &Branch{Target: b3.ID}
	b2.Term = &Branch{Target: b3.ID}

	x := f.NewValue(types.IntType, "x")
	b3.Append(&Phi{Dst: x, Var: "x", Edges: []PhiEdge{{Pred: b1.ID, Val: Ref(sum)}, {Pred: b2.ID, Val: IntOp(0)}}})
	b3.Term = &Return{Val: Ref(x)}
	return f, x
}

func TestVerifyAcceptsDiamond(t *testing.T) {
	f, _ := diamond()
	require.NoError(t, Verify(f))
}

func TestDominatorsOfDiamond(t *testing.T) {
	f, _ := diamond()
	dom := Dominators(f)
	assert.Equal(t, BlockID(0), dom.IDom(3))
	assert.Equal(t, NoBlock, dom.IDom(Entry))
	assert.True(t, dom.Dominates(0, 3))
	assert.False(t, dom.Dominates(1, 3))
	assert.Equal(t, []BlockID{1, 2, 3}, dom.Children(0))

	df := dom.Frontiers()
	assert.True(t, df[1].Contains(3))
	assert.True(t, df[2].Contains(3))
	assert.Equal(t, 0, df[0].Size())
	assert.Equal(t, []BlockID{3}, IteratedFrontier(df, []BlockID{1}))
}

func TestDominatorsOfLoop(t *testing.T) {
	// b0 -> b1 (header) -> b2 (body) -> b1, b1 -> b3 (exit)
	f := NewFunction("loop", nil, types.NoneType)
	b0, b1, b2, b3 := f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock()
	b0.Term = &Branch{Target: b1.ID}
	b1.Term = &CondBranch{Cond: BoolOp(true), Then: b2.ID, Else: b3.ID}
	b2.Term = &Branch{Target: b1.ID}
	b3.Term = &Return{}

	dom := Dominators(f)
	assert.Equal(t, BlockID(1), dom.IDom(2))
	assert.Equal(t, BlockID(1), dom.IDom(3))
	df := dom.Frontiers()
	assert.True(t, df[2].Contains(1))
	assert.True(t, df[1].Contains(1))
	assert.Equal(t, []BlockID{1}, IteratedFrontier(df, []BlockID{2}))
	assert.Equal(t, []BlockID{1, 2}, dom.LoopBlocks(1))
}

func TestVerifyRejects(t *testing.T) {
	t.Run("missing terminator", func(t *testing.T) {
		f, _ := diamond()
		f.Blocks[2].Term = nil
		assert.ErrorContains(t, Verify(f), "no terminator")
	})
	t.Run("double definition", func(t *testing.T) {
		f, x := diamond()
		f.Blocks[1].Append(&BinOp{Dst: x, Op: OpAdd, X: IntOp(1), Y: IntOp(1)})
		assert.ErrorContains(t, Verify(f), "defined twice")
	})
	t.Run("use not dominated", func(t *testing.T) {
		f, _ := diamond()
		// %t.0 is defined in b1, which does not dominate b3
		f.Blocks[3].Term = &Return{Val: Ref(2)}
		assert.ErrorContains(t, Verify(f), "not dominated")
	})
	t.Run("phi missing an edge", func(t *testing.T) {
		f, _ := diamond()
		phi := f.Blocks[3].Instrs[0].(*Phi)
		phi.Edges = phi.Edges[:1]
		assert.ErrorContains(t, Verify(f), "incoming edges")
	})
	t.Run("unreachable block", func(t *testing.T) {
		f, _ := diamond()
		f.NewBlock().Term = &Return{}
		assert.ErrorContains(t, Verify(f), "unreachable")
	})
}

func TestCompactDropsUnreachable(t *testing.T) {
	f, _ := diamond()
	dead := f.NewBlock()
	dead.Term = &Branch{Target: 3}
	phi := f.Blocks[3].Instrs[0].(*Phi)
	phi.Edges = append(phi.Edges, PhiEdge{Pred: dead.ID, Val: IntOp(7)})

	f.Compact()
	require.Len(t, f.Blocks, 4)
	assert.Len(t, phi.Edges, 2)
	require.NoError(t, Verify(f))
}

func TestReplaceAllUses(t *testing.T) {
	f, x := diamond()
	sum := ValueID(2)
	n := f.ReplaceAllUses(sum, IntOp(3))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.UseCounts()[x])
	assert.Zero(t, f.UseCounts()[sum])
}

func TestTripCount(t *testing.T) {
	for _, tc := range []struct {
		start, stop, step int64
		want              int64
	}{
		{0, 8, 1, 8},
		{0, 10, 3, 4},
		{5, 0, -1, 5},
		{5, 5, 1, 0},
		{0, -3, 1, 0},
	} {
		l := &LoopInfo{Kind: RangeLoop, Start: IntOp(tc.start), Stop: IntOp(tc.stop), Step: IntOp(tc.step)}
		n, ok := l.TripCount()
		assert.True(t, ok)
		assert.Equal(t, tc.want, n, "range(%d, %d, %d)", tc.start, tc.stop, tc.step)
	}
	unknown := &LoopInfo{Kind: RangeLoop, Start: IntOp(0), Stop: Ref(1), Step: IntOp(1)}
	_, ok := unknown.TripCount()
	assert.False(t, ok)
}

func TestFormatFunction(t *testing.T) {
	f, _ := diamond()
	assert.Equal(t, `func f(c: bool) -> int {
b0: ; merge b3
  %c.0 = load c : bool
  condbr %c.0, b1, b2
b1: ; preds b0
  %t.0 = add 1, 2 : int
  br b3
b2: ; preds b0
  br b3
b3: ; preds b1 b2
  %x.0 = phi [b1: %t.0] [b2: 0] : int
  ret %x.0
}
`, FormatFunction(f))
	assert.Contains(t, CanonicalText(f), "%2 = phi [b1: %1] [b2: 0] : int")
}

func TestFormatBlocksPrintsOnlyTheGivenBlocks(t *testing.T) {
	f, _ := diamond()
	expected := `b1: ; preds b0
  %t.0 = add 1, 2 : int
  br b3
b3: ; preds b1 b2
  %x.0 = phi [b1: %t.0] [b2: 0] : int
  ret %x.0
`
	assert.Equal(t, expected, FormatBlocks(f, []BlockID{1, 3}))
}
