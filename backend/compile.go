package backend

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/py2cppai/py2cpp/frontend/types"
	"github.com/py2cppai/py2cpp/ir"
)

// The control flow graph is turned back into structured C++ using the hints the
// builder leaves on blocks: IfMerge on the block ending an if-diamond, LoopInfo
// on loop headers. Every loop becomes a while (true) whose test breaks out, and
// phis become copies at the end of each predecessor.

type loopState struct {
	info  *ir.LoopInfo
	label string
	// jumped is set once a continue has been emitted as a goto to label
	jumped bool
}

func (fe *funcEmitter) line(format string, args ...any) {
	fe.lines = append(fe.lines, strings.Repeat("    ", fe.depth+1)+fmt.Sprintf(format, args...))
}

func (fe *funcEmitter) body() {
	fe.region(ir.Entry, ir.NoBlock)
	if n := len(fe.lines); n > 0 && fe.lines[n-1] == "    return;" {
		fe.lines = fe.lines[:n-1]
	}
}

func (fe *funcEmitter) block(id ir.BlockID) *ir.Block {
	b := fe.f.Block(id)
	if b == nil {
		fe.fail("branch to missing block b%d", id)
	}
	return b
}

// region emits the blocks from b up to, and not including, stop.
func (fe *funcEmitter) region(b, stop ir.BlockID) {
	seen := set.New[ir.BlockID](4)
	for b != stop && b != ir.NoBlock {
		if !seen.Insert(b) {
			fe.fail("control flow through b%d does not nest", b)
			return
		}
		blk := fe.block(b)
		if blk == nil {
			return
		}
		if blk.Loop != nil {
			fe.loop(blk)
			b = blk.Loop.Exit
			continue
		}
		fe.instrs(blk)
		next, done := fe.term(blk, stop)
		if done {
			return
		}
		b = next
	}
}

func (fe *funcEmitter) instrs(b *ir.Block) {
	for _, i := range b.Instrs {
		fe.instr(i)
	}
}

// term emits the terminator of b and returns the block control continues at,
// or done when it does not continue within the current region.
func (fe *funcEmitter) term(b *ir.Block, stop ir.BlockID) (next ir.BlockID, done bool) {
	switch t := b.Term.(type) {
	case *ir.Return:
		if t.Val.IsZero() || types.IsPrim(fe.f.Return, types.None) {
			fe.line("return;")
		} else {
			fe.line("return %s;", fe.operand(t.Val, false))
		}
		return ir.NoBlock, true
	case *ir.Branch:
		return fe.jump(b.ID, t.Target, stop)
	case *ir.CondBranch:
		fe.ifElse(b, t)
		if b.IfMerge == ir.NoBlock {
			return ir.NoBlock, true
		}
		return b.IfMerge, false
	}
	fe.fail("block b%d has no terminator", b.ID)
	return ir.NoBlock, true
}

func (fe *funcEmitter) jump(from, to, stop ir.BlockID) (ir.BlockID, bool) {
	fe.copies(from, to)
	if to == stop {
		return ir.NoBlock, true
	}
	if l, ok := fe.loops.Peek(); ok {
		switch to {
		case l.info.ContinueTarget():
			if l.info.Latch == ir.NoBlock {
				fe.line("continue;")
			} else {
				fe.line("goto %s;", l.label)
				l.jumped = true
			}
			return ir.NoBlock, true
		case l.info.Exit:
			fe.line("break;")
			return ir.NoBlock, true
		}
	}
	return to, false
}

func (fe *funcEmitter) ifElse(b *ir.Block, t *ir.CondBranch) {
	merge := b.IfMerge
	fe.line("if (%s) {", fe.operand(t.Cond, false))
	fe.depth++
	fe.region(t.Then, merge)
	fe.depth--

	mark := len(fe.lines)
	fe.line("} else {")
	fe.depth++
	fe.region(t.Else, merge)
	fe.depth--
	if len(fe.lines) == mark+1 {
		fe.lines = fe.lines[:mark]
	}
	fe.line("}")
}

// loop emits the loop headed by h as
//
//	while (true) {
//	    header and test instructions
//	    if (!(cond)) { exit copies; break; }
//	    body
//	latch_N:;
//	    latch instructions and copies back to the header
//	}
//
// A continue in a loop with a latch jumps to latch_N so the induction
// variable still advances.
func (fe *funcEmitter) loop(h *ir.Block) {
	l := h.Loop
	st := &loopState{info: l, label: fmt.Sprintf("latch_%d", fe.labels)}
	fe.labels++
	if l.Unroll > 1 {
		fe.line("#pragma GCC unroll %d", l.Unroll)
	}
	fe.line("while (true) {")
	fe.depth++
	fe.loops.Push(st)

	fe.instrs(h)
	test := h
	if l.Test != h.ID {
		if next, done := fe.term(h, l.Test); !done {
			fe.region(next, l.Test)
		}
		if test = fe.block(l.Test); test == nil {
			return
		}
		fe.instrs(test)
	}
	if cb, ok := test.Term.(*ir.CondBranch); ok {
		if !isTrue(cb.Cond) {
			fe.line("if (!(%s)) {", fe.operand(cb.Cond, false))
			fe.depth++
			fe.copies(test.ID, cb.Else)
			fe.line("break;")
			fe.depth--
			fe.line("}")
		}
		fe.copies(test.ID, cb.Then)
		fe.region(cb.Then, l.ContinueTarget())
	} else {
		fe.fail("loop test b%d does not end in a conditional branch", l.Test)
	}

	if l.Latch != ir.NoBlock {
		if st.jumped {
			fe.line("%s:;", st.label)
		}
		if latch := fe.block(l.Latch); latch != nil {
			fe.instrs(latch)
			fe.copies(latch.ID, l.Header)
		}
	}
	fe.loops.Pop()
	fe.depth--
	fe.line("}")
}

func isTrue(o ir.Operand) bool {
	return o.IsLit() && o.Lit.Kind == ir.LitBool && o.Lit.Bool
}

// copies assigns the phis of to the values flowing in from from. When one copy
// reads a phi another copy writes, all sources are saved to temporaries first.
func (fe *funcEmitter) copies(from, to ir.BlockID) {
	target := fe.f.Block(to)
	if target == nil {
		return
	}
	var dsts, srcs []string
	for _, phi := range target.Phis() {
		val, ok := phi.Incoming(from)
		if !ok {
			fe.fail("phi %s has no value for b%d", fe.f.ValueName(phi.Dst), from)
			continue
		}
		dst, src := fe.names[phi.Dst], fe.operand(val, false)
		if dst == src {
			continue
		}
		dsts = append(dsts, dst)
		srcs = append(srcs, src)
	}

	written := set.New[string](len(dsts))
	clash := false
	for k := range dsts {
		clash = clash || written.Contains(srcs[k])
		written.Insert(dsts[k])
	}
	if !clash {
		for k := range dsts {
			fe.line("%s = %s;", dsts[k], srcs[k])
		}
		return
	}
	fe.line("{")
	fe.depth++
	for k := range srcs {
		fe.line("auto t%d = %s;", fe.temps+k, srcs[k])
	}
	for k := range dsts {
		fe.line("%s = t%d;", dsts[k], fe.temps+k)
	}
	fe.temps += len(srcs)
	fe.depth--
	fe.line("}")
}
