package ir

import (
	"slices"
)

// Preds derives the predecessor lists of every block, each in ascending order without duplicates.
func (f *Function) Preds() [][]BlockID {
	preds := make([][]BlockID, len(f.Blocks))
	for _, b := range f.Blocks {
		for _, s := range b.Succs() {
			if s < 0 || int(s) >= len(f.Blocks) {
				continue
			}
			if !slices.Contains(preds[s], b.ID) {
				preds[s] = append(preds[s], b.ID)
			}
		}
	}
	for _, p := range preds {
		slices.Sort(p)
	}
	return preds
}

// ReversePostorder lists the blocks reachable from Entry in reverse postorder.
func (f *Function) ReversePostorder() []BlockID {
	if len(f.Blocks) == 0 {
		return nil
	}
	visited := make([]bool, len(f.Blocks))
	var post []BlockID
	var visit func(BlockID)
	visit = func(b BlockID) {
		visited[b] = true
		for _, s := range f.Blocks[b].Succs() {
			if s >= 0 && int(s) < len(f.Blocks) && !visited[s] {
				visit(s)
			}
		}
		post = append(post, b)
	}
	visit(Entry)
	slices.Reverse(post)
	return post
}

// Compact drops blocks unreachable from Entry and renumbers the rest, keeping their relative order.
// Phi edges from dropped blocks are removed.
func (f *Function) Compact() {
	reachable := make([]bool, len(f.Blocks))
	for _, b := range f.ReversePostorder() {
		reachable[b] = true
	}
	remap := make([]BlockID, len(f.Blocks))
	var kept []*Block
	for _, b := range f.Blocks {
		if !reachable[b.ID] {
			remap[b.ID] = NoBlock
			continue
		}
		remap[b.ID] = BlockID(len(kept))
		kept = append(kept, b)
	}
	renumber := func(id BlockID) BlockID {
		if id < 0 || int(id) >= len(remap) {
			return NoBlock
		}
		return remap[id]
	}
	for _, b := range kept {
		b.ID = renumber(b.ID)
		if b.Term != nil {
			b.Term.retarget(renumber)
		}
		b.IfMerge = renumber(b.IfMerge)
		if l := b.Loop; l != nil {
			l.Header, l.Test, l.Body = renumber(l.Header), renumber(l.Test), renumber(l.Body)
			l.Latch, l.Exit = renumber(l.Latch), renumber(l.Exit)
		}
		for _, phi := range b.Phis() {
			phi.Edges = slices.DeleteFunc(phi.Edges, func(e PhiEdge) bool { return renumber(e.Pred) == NoBlock })
			for k := range phi.Edges {
				phi.Edges[k].Pred = renumber(phi.Edges[k].Pred)
			}
		}
	}
	f.Blocks = kept
}

// InstrLoc is the position of an instruction inside a function.
type InstrLoc struct {
	Block BlockID
	Index int
}

// Defs maps every defined value to its defining instruction.
func (f *Function) Defs() map[ValueID]InstrLoc {
	defs := map[ValueID]InstrLoc{}
	for _, b := range f.Blocks {
		for k, i := range b.Instrs {
			if d := i.Def(); d != NoValue {
				defs[d] = InstrLoc{Block: b.ID, Index: k}
			}
		}
	}
	return defs
}

// DefInstr returns the instruction defining v, or nil.
func (f *Function) DefInstr(v ValueID) Instr {
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			if i.Def() == v {
				return i
			}
		}
	}
	return nil
}

// ForEachUse calls fn for every operand of the function, including terminators and loop bounds.
func (f *Function) ForEachUse(fn func(op *Operand)) {
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			for _, op := range i.Uses() {
				fn(op)
			}
		}
		if b.Term != nil {
			for _, op := range b.Term.Uses() {
				fn(op)
			}
		}
		if b.Loop != nil {
			for _, op := range b.Loop.uses() {
				fn(op)
			}
		}
	}
}

// UseCounts counts the references to every value.
func (f *Function) UseCounts() map[ValueID]int {
	counts := map[ValueID]int{}
	f.ForEachUse(func(op *Operand) {
		if op.IsValue() {
			counts[op.Value]++
		}
	})
	return counts
}

// ReplaceAllUses rewrites every reference to v into with.
func (f *Function) ReplaceAllUses(v ValueID, with Operand) int {
	n := 0
	f.ForEachUse(func(op *Operand) {
		if op.IsValue() && op.Value == v {
			*op = with
			n++
		}
	})
	return n
}

// RemoveInstrs deletes, in every block, the instructions for which drop returns true.
func (f *Function) RemoveInstrs(drop func(Instr) bool) int {
	n := 0
	for _, b := range f.Blocks {
		before := len(b.Instrs)
		b.Instrs = slices.DeleteFunc(b.Instrs, drop)
		n += before - len(b.Instrs)
	}
	return n
}

// InstrCount is the number of non-phi instructions of blocks.
func (f *Function) InstrCount(blocks ...BlockID) int {
	n := 0
	for _, id := range blocks {
		for _, i := range f.Blocks[id].Instrs {
			if _, ok := i.(*Phi); !ok {
				n++
			}
		}
	}
	return n
}
