package irgen

import (
	"maps"
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/ir"
)

// ssa renames the variables of b.f into SSA values.
//
// Phis go on the iterated dominance frontier of each variable's definitions,
// restricted to the blocks where the variable is live. Loads are then replaced
// by the reaching definition in a walk of the dominator tree, and phis left
// with a single distinct input are folded away.
func (b *builder) ssa() {
	f := b.f
	dom := ir.Dominators(f)
	live := liveIn(f, b.paramLoads)

	r := &renamer{b: b, dom: dom, stacks: map[string][]ir.Operand{}, replace: map[ir.ValueID]ir.Operand{}}
	defs := map[string][]ir.BlockID{}
	for _, p := range f.Params {
		defs[p.Name] = []ir.BlockID{ir.Entry}
	}
	for _, blk := range f.Blocks {
		for _, i := range blk.Instrs {
			if s, ok := i.(*ir.Store); ok && s.Kind != ir.StoreElement && !slices.Contains(defs[s.Var], blk.ID) {
				defs[s.Var] = append(defs[s.Var], blk.ID)
			}
		}
	}

	df := dom.Frontiers()
	phis := make([][]ir.Instr, len(f.Blocks))
	for _, name := range slices.Sorted(maps.Keys(b.vars)) {
		for _, at := range ir.IteratedFrontier(df, defs[name]) {
			if !live[at].Contains(name) {
				continue
			}
			phis[at] = append(phis[at], &ir.Phi{Dst: f.NewValue(b.vars[name], baseName(name)), Var: name})
		}
	}
	for id, placed := range phis {
		if len(placed) > 0 {
			f.Blocks[id].Instrs = append(placed, f.Blocks[id].Instrs...)
		}
	}

	r.block(ir.Entry)
	f.ForEachUse(func(op *ir.Operand) {
		*op = r.resolve(*op)
	})
	f.RemoveInstrs(func(i ir.Instr) bool {
		switch i := i.(type) {
		case *ir.Load:
			_, replaced := r.replace[i.Dst]
			return replaced
		case *ir.Store:
			// parameters and hidden variables have no storage of their own
			return i.Kind == ir.StoreLocal && !b.isLocal(i.Var)
		}
		return false
	})
	entry := f.Blocks[ir.Entry]
	entry.Instrs = slices.Insert(entry.Instrs, len(f.Params), r.zeros...)
	pruneTrivialPhis(f)
}

type renamer struct {
	b       *builder
	dom     *ir.DomTree
	stacks  map[string][]ir.Operand
	replace map[ir.ValueID]ir.Operand

	// zeros are the default values read where a variable may be unbound
	zeros  []ir.Instr
	zeroOf map[string]ir.Operand
}

func (r *renamer) resolve(op ir.Operand) ir.Operand {
	for op.IsValue() {
		next, ok := r.replace[op.Value]
		if !ok {
			break
		}
		op = next
	}
	return op
}

func (r *renamer) top(name string) ir.Operand {
	if s := r.stacks[name]; len(s) > 0 {
		return s[len(s)-1]
	}
	if op, ok := r.zeroOf[name]; ok {
		return op
	}
	if r.zeroOf == nil {
		r.zeroOf = map[string]ir.Operand{}
	}
	f := r.b.f
	dst := f.NewValue(r.b.vars[name], baseName(name))
	r.zeros = append(r.zeros, &ir.Call{Dst: dst, Callee: ir.BuiltinZero, Builtin: true})
	r.zeroOf[name] = ir.Ref(dst)
	if r.b.isLocal(name) && r.b.sink != nil {
		fn := r.b.res.Function
		r.b.sink.Report(diag.Warning, fn.Name, fn.Pos(), "'%s' may be used before it is assigned, it reads as the zero value of %v", name, r.b.vars[name])
	}
	return ir.Ref(dst)
}

func (r *renamer) block(id ir.BlockID) {
	f := r.b.f
	blk := f.Blocks[id]
	var pushed []string
	push := func(name string, op ir.Operand) {
		r.stacks[name] = append(r.stacks[name], op)
		pushed = append(pushed, name)
	}
	for _, instr := range blk.Instrs {
		switch i := instr.(type) {
		case *ir.Phi:
			push(i.Var, ir.Ref(i.Dst))
		case *ir.Load:
			if r.b.paramLoads[i.Dst] {
				push(i.Var, ir.Ref(i.Dst))
				continue
			}
			r.replace[i.Dst] = r.top(i.Var)
		case *ir.Store:
			if i.Kind != ir.StoreElement {
				push(i.Var, r.resolve(i.Val))
			}
		}
	}
	for _, s := range blk.Succs() {
		for _, phi := range f.Blocks[s].Phis() {
			phi.Edges = append(phi.Edges, ir.PhiEdge{Pred: id, Val: r.top(phi.Var)})
		}
	}
	for _, child := range r.dom.Children(id) {
		r.block(child)
	}
	for _, name := range pushed {
		r.stacks[name] = r.stacks[name][:len(r.stacks[name])-1]
	}
}

// liveIn computes, for every block, the variables read before being written on
// some path starting at its entry. defining marks the loads that define a variable.
func liveIn(f *ir.Function, defining map[ir.ValueID]bool) []*set.Set[string] {
	n := len(f.Blocks)
	uses := make([]*set.Set[string], n)
	kills := make([]*set.Set[string], n)
	in := make([]*set.Set[string], n)
	for _, blk := range f.Blocks {
		uses[blk.ID], kills[blk.ID], in[blk.ID] = set.New[string](4), set.New[string](4), set.New[string](4)
		for _, i := range blk.Instrs {
			switch i := i.(type) {
			case *ir.Load:
				if defining[i.Dst] {
					kills[blk.ID].Insert(i.Var)
				} else if !kills[blk.ID].Contains(i.Var) {
					uses[blk.ID].Insert(i.Var)
				}
			case *ir.Store:
				if i.Kind != ir.StoreElement {
					kills[blk.ID].Insert(i.Var)
				}
			}
		}
		in[blk.ID].InsertSet(uses[blk.ID])
	}

	for changed := true; changed; {
		changed = false
		for id := n - 1; id >= 0; id-- {
			for _, s := range f.Blocks[id].Succs() {
				for name := range in[s].Items() {
					if !kills[id].Contains(name) && in[id].Insert(name) {
						changed = true
					}
				}
			}
		}
	}
	return in
}

// pruneTrivialPhis removes phis whose inputs, ignoring the phi itself, are all
// the same operand, until none is left.
func pruneTrivialPhis(f *ir.Function) {
	for {
		dropped := map[ir.Instr]bool{}
		for _, blk := range f.Blocks {
			for _, phi := range blk.Phis() {
				same, ok := trivialInput(phi)
				if !ok {
					continue
				}
				f.ReplaceAllUses(phi.Dst, same)
				dropped[phi] = true
			}
		}
		if len(dropped) == 0 {
			return
		}
		f.RemoveInstrs(func(i ir.Instr) bool { return dropped[i] })
	}
}

func trivialInput(phi *ir.Phi) (ir.Operand, bool) {
	var same ir.Operand
	found := false
	for _, e := range phi.Edges {
		if e.Val.IsValue() && e.Val.Value == phi.Dst {
			continue
		}
		if found && e.Val != same {
			return ir.Operand{}, false
		}
		same, found = e.Val, true
	}
	return same, found
}
