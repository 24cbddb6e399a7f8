package opt

import (
	"context"

	"github.com/hashicorp/go-set/v3"

	"github.com/py2cppai/py2cpp/ir"
)

// DCE removes pure instructions whose value nothing observable depends on,
// including cycles of phis that only feed each other. Calls to module
// functions, impure builtins and stores are always kept, except for a store
// to a local that the same block overwrites before anything else can see it.
type DCE struct{}

func (DCE) Name() string    { return "dce" }
func (DCE) MinLevel() Level { return LevelBasic }

func (DCE) Run(_ context.Context, f *ir.Function) (int, error) {
	n := removeDeadStores(f)
	live := liveValues(f)
	n += f.RemoveInstrs(func(i ir.Instr) bool {
		if !i.Pure() {
			return false
		}
		d := i.Def()
		return d == ir.NoValue || !live.Contains(d)
	})
	return n, nil
}

// liveValues marks every value reachable from an impure instruction, a
// terminator or a loop bound through the operands of pure instructions.
func liveValues(f *ir.Function) *set.Set[ir.ValueID] {
	defs := map[ir.ValueID]ir.Instr{}
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			if d := i.Def(); d != ir.NoValue {
				defs[d] = i
			}
		}
	}

	live := set.New[ir.ValueID](len(defs))
	var work []ir.ValueID
	mark := func(ops []*ir.Operand) {
		for _, op := range ops {
			if op.IsValue() && live.Insert(op.Value) {
				work = append(work, op.Value)
			}
		}
	}
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			if !i.Pure() {
				if d := i.Def(); d != ir.NoValue && live.Insert(d) {
					work = append(work, d)
				}
				mark(i.Uses())
			}
		}
		mark(b.Term.Uses())
		if l := b.Loop; l != nil {
			mark([]*ir.Operand{&l.Start, &l.Stop, &l.Step})
		}
	}
	for len(work) > 0 {
		v := work[len(work)-1]
		work = work[:len(work)-1]
		if i, ok := defs[v]; ok {
			mark(i.Uses())
		}
	}
	return live
}

// removeDeadStores drops a store to a local when a later store in the same
// block writes the same local. Stores to output parameters and container
// elements are visible to the caller and never dropped.
func removeDeadStores(f *ir.Function) int {
	dead := map[ir.Instr]bool{}
	for _, b := range f.Blocks {
		last := map[string]*ir.Store{}
		for _, i := range b.Instrs {
			s, ok := i.(*ir.Store)
			if !ok || s.Kind != ir.StoreLocal {
				continue
			}
			if prev, ok := last[s.Var]; ok {
				dead[prev] = true
			}
			last[s.Var] = s
		}
	}
	if len(dead) == 0 {
		return 0
	}
	return f.RemoveInstrs(func(i ir.Instr) bool { return dead[i] })
}
