package ir

import (
	"fmt"
	"slices"
)

// Verify checks that f is well-formed SSA:
//   - every block ends in exactly one terminator whose targets exist
//   - every block is reachable from the entry
//   - every value is defined exactly once and every use is dominated by its definition
//   - phis lead their block, only appear where there is more than one predecessor,
//     and have exactly one incoming operand per predecessor edge
//
// The returned error describes the first violation found.
func Verify(f *Function) error {
	if len(f.Blocks) == 0 {
		return fmt.Errorf("function has no blocks")
	}
	for i, b := range f.Blocks {
		if b.ID != BlockID(i) {
			return fmt.Errorf("block at index %d has id %d", i, b.ID)
		}
		if b.Term == nil {
			return fmt.Errorf("block b%d has no terminator", b.ID)
		}
		for _, s := range b.Succs() {
			if f.Block(s) == nil {
				return fmt.Errorf("block b%d branches to missing block b%d", b.ID, s)
			}
		}
	}

	dom := Dominators(f)
	preds := dom.Preds()
	for _, b := range f.Blocks {
		if !dom.Reachable(b.ID) {
			return fmt.Errorf("block b%d is unreachable", b.ID)
		}
	}

	defs := map[ValueID]InstrLoc{}
	for _, b := range f.Blocks {
		seenOther := false
		for k, i := range b.Instrs {
			if d := i.Def(); d != NoValue {
				if prev, ok := defs[d]; ok {
					return fmt.Errorf("%s defined twice, in b%d and b%d", f.ValueName(d), prev.Block, b.ID)
				}
				if int(d) >= f.NumValues() {
					return fmt.Errorf("b%d defines unallocated value %d", b.ID, d)
				}
				defs[d] = InstrLoc{Block: b.ID, Index: k}
			}
			phi, isPhi := i.(*Phi)
			if !isPhi {
				seenOther = true
				continue
			}
			if seenOther {
				return fmt.Errorf("phi %s in b%d follows a non-phi instruction", f.ValueName(phi.Dst), b.ID)
			}
			if len(preds[b.ID]) < 2 {
				return fmt.Errorf("phi %s in b%d which has %d predecessor(s)", f.ValueName(phi.Dst), b.ID, len(preds[b.ID]))
			}
			var incoming []BlockID
			for _, e := range phi.Edges {
				incoming = append(incoming, e.Pred)
			}
			slices.Sort(incoming)
			if !slices.Equal(incoming, preds[b.ID]) {
				return fmt.Errorf("phi %s in b%d has incoming edges %v, predecessors are %v", f.ValueName(phi.Dst), b.ID, incoming, preds[b.ID])
			}
		}
	}

	checkUse := func(op Operand, at BlockID, index int) error {
		if !op.IsValue() {
			return nil
		}
		def, ok := defs[op.Value]
		if !ok {
			return fmt.Errorf("b%d uses %s which is never defined", at, f.ValueName(op.Value))
		}
		if def.Block == at {
			if def.Index >= index {
				return fmt.Errorf("b%d uses %s before its definition", at, f.ValueName(op.Value))
			}
			return nil
		}
		if !dom.Dominates(def.Block, at) {
			return fmt.Errorf("use of %s in b%d is not dominated by its definition in b%d", f.ValueName(op.Value), at, def.Block)
		}
		return nil
	}

	for _, b := range f.Blocks {
		for k, i := range b.Instrs {
			if phi, ok := i.(*Phi); ok {
				// an incoming value must be available at the end of its predecessor
				for _, e := range phi.Edges {
					if err := checkUse(e.Val, e.Pred, len(f.Blocks[e.Pred].Instrs)); err != nil {
						return fmt.Errorf("phi %s: %w", f.ValueName(phi.Dst), err)
					}
				}
				continue
			}
			for _, op := range i.Uses() {
				if err := checkUse(*op, b.ID, k); err != nil {
					return err
				}
			}
		}
		for _, op := range b.Term.Uses() {
			if err := checkUse(*op, b.ID, len(b.Instrs)); err != nil {
				return err
			}
		}
		if err := verifyHints(f, b, dom, checkUse); err != nil {
			return err
		}
	}
	return nil
}

func verifyHints(f *Function, b *Block, dom *DomTree, checkUse func(Operand, BlockID, int) error) error {
	if b.IfMerge != NoBlock {
		if _, ok := b.Term.(*CondBranch); !ok {
			return fmt.Errorf("b%d has an if-merge hint but does not end in a conditional branch", b.ID)
		}
		if f.Block(b.IfMerge) == nil {
			return fmt.Errorf("b%d has a missing if-merge block b%d", b.ID, b.IfMerge)
		}
	}
	l := b.Loop
	if l == nil {
		return nil
	}
	test := f.Block(l.Test)
	if l.Header != b.ID || test == nil || !dom.Dominates(b.ID, l.Test) {
		return fmt.Errorf("loop hint on b%d has a bad test block b%d", b.ID, l.Test)
	}
	cond, ok := test.Term.(*CondBranch)
	if !ok || cond.Then != l.Body || cond.Else != l.Exit {
		return fmt.Errorf("loop hint on b%d does not match its conditional branch", b.ID)
	}
	if l.Latch != NoBlock && !dom.Dominates(b.ID, l.Latch) {
		return fmt.Errorf("loop header b%d does not dominate its latch b%d", b.ID, l.Latch)
	}
	for _, op := range l.uses() {
		if err := checkUse(*op, b.ID, 0); err != nil {
			return fmt.Errorf("loop bounds: %w", err)
		}
	}
	return nil
}
