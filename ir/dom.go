package ir

import (
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/py2cppai/py2cpp/util"
)

// DomTree is the dominator tree of a function, computed with the iterative
// algorithm of Cooper, Harvey and Kennedy over reverse postorder.
type DomTree struct {
	idom     []BlockID
	rpoIndex []int
	rpo      []BlockID
	preds    [][]BlockID
	children [][]BlockID
}

func Dominators(f *Function) *DomTree {
	n := len(f.Blocks)
	d := &DomTree{
		idom:     make([]BlockID, n),
		rpoIndex: make([]int, n),
		rpo:      f.ReversePostorder(),
		preds:    f.Preds(),
		children: make([][]BlockID, n),
	}
	for i := range d.idom {
		d.idom[i] = NoBlock
		d.rpoIndex[i] = -1
	}
	for i, b := range d.rpo {
		d.rpoIndex[b] = i
	}
	if n == 0 {
		return d
	}
	d.idom[Entry] = Entry

	for changed := true; changed; {
		changed = false
		for _, b := range d.rpo[1:] {
			newIdom := NoBlock
			for _, p := range d.preds[b] {
				if d.idom[p] == NoBlock {
					continue
				}
				if newIdom == NoBlock {
					newIdom = p
				} else {
					newIdom = d.intersect(p, newIdom)
				}
			}
			if d.idom[b] != newIdom {
				d.idom[b] = newIdom
				changed = true
			}
		}
	}
	for _, b := range d.rpo[1:] {
		if p := d.idom[b]; p != NoBlock {
			d.children[p] = append(d.children[p], b)
		}
	}
	for _, c := range d.children {
		slices.Sort(c)
	}
	return d
}

func (d *DomTree) intersect(a, b BlockID) BlockID {
	for a != b {
		for d.rpoIndex[a] > d.rpoIndex[b] {
			a = d.idom[a]
		}
		for d.rpoIndex[b] > d.rpoIndex[a] {
			b = d.idom[b]
		}
	}
	return a
}

// IDom is the immediate dominator of b, NoBlock for the entry and for unreachable blocks.
func (d *DomTree) IDom(b BlockID) BlockID {
	if b == Entry {
		return NoBlock
	}
	return d.idom[b]
}

func (d *DomTree) Reachable(b BlockID) bool {
	return b >= 0 && int(b) < len(d.rpoIndex) && d.rpoIndex[b] >= 0
}

// Dominates reports whether every path from the entry to b goes through a.
func (d *DomTree) Dominates(a, b BlockID) bool {
	if !d.Reachable(a) || !d.Reachable(b) {
		return false
	}
	for {
		if a == b {
			return true
		}
		if b == Entry {
			return false
		}
		b = d.idom[b]
	}
}

// Children lists the blocks b immediately dominates, in ascending order.
func (d *DomTree) Children(b BlockID) []BlockID { return d.children[b] }

// Preds are the predecessor lists the tree was computed from.
func (d *DomTree) Preds() [][]BlockID { return d.preds }

// ReversePostorder is the block order the tree was computed over.
func (d *DomTree) ReversePostorder() []BlockID { return d.rpo }

// Frontiers computes the dominance frontier of every block.
func (d *DomTree) Frontiers() []*set.Set[BlockID] {
	df := make([]*set.Set[BlockID], len(d.idom))
	for i := range df {
		df[i] = set.New[BlockID](2)
	}
	for _, b := range d.rpo {
		if len(d.preds[b]) < 2 {
			continue
		}
		for _, p := range d.preds[b] {
			if !d.Reachable(p) {
				continue
			}
			for runner := p; runner != d.idom[b] && runner != NoBlock; runner = d.IDom(runner) {
				df[runner].Insert(b)
			}
		}
	}
	return df
}

// IteratedFrontier is DF+ of blocks: the fixed point of taking dominance frontiers.
// The result is sorted.
func IteratedFrontier(df []*set.Set[BlockID], blocks []BlockID) []BlockID {
	result := set.New[BlockID](len(blocks))
	work := slices.Clone(blocks)
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for y := range df[b].Items() {
			if result.Insert(y) {
				work = append(work, y)
			}
		}
	}
	return util.SortedSlice(result)
}

// LoopBlocks returns the natural loop of header: the header and every block that
// reaches one of its back edges without going through the header. The result is sorted.
func (d *DomTree) LoopBlocks(header BlockID) []BlockID {
	body := set.From([]BlockID{header})
	var work []BlockID
	for _, p := range d.preds[header] {
		if d.Dominates(header, p) && body.Insert(p) {
			work = append(work, p)
		}
	}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, p := range d.preds[b] {
			if d.Reachable(p) && body.Insert(p) {
				work = append(work, p)
			}
		}
	}
	return util.SortedSlice(body)
}
