// Package ir is the SSA intermediate representation shared by the builder,
// the optimization passes and the emitter.
//
// A Function owns its blocks in an arena indexed by BlockID. Blocks refer to
// each other only through BlockIDs, and predecessor lists are derived from
// terminators on demand, so passes can add or drop blocks freely.
package ir

import (
	"fmt"

	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/types"
)

// ValueID names an SSA value. 0 is reserved for "no value".
type ValueID uint32

const NoValue ValueID = 0

// BlockID indexes Function.Blocks.
type BlockID int32

const NoBlock BlockID = -1

// Entry is the block every function starts in.
const Entry BlockID = 0

type Module struct {
	Name      string
	Functions []*Function
}

// Function looks a function up by name.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

type Param struct {
	Name   string
	Type   types.Type
	Output bool
}

// Var is a local of the source function, kept so the emitter can declare it.
type Var struct {
	Name string
	Type types.Type
}

// ValueInfo is what is known about an SSA value apart from its defining instruction.
// Its printed name is %Base.Version.
type ValueInfo struct {
	Type    types.Type
	Base    string
	Version int
}

type Function struct {
	Name   string
	Range  ast.Range
	Params []Param
	Return types.Type
	Locals []Var
	Blocks []*Block

	values   []ValueInfo
	versions map[string]int
}

func NewFunction(name string, params []Param, ret types.Type) *Function {
	return &Function{
		Name:     name,
		Params:   params,
		Return:   ret,
		values:   make([]ValueInfo, 1),
		versions: map[string]int{},
	}
}

// NewValue allocates a value of type t. Temporaries use base "t".
func (f *Function) NewValue(t types.Type, base string) ValueID {
	version := f.versions[base]
	f.versions[base] = version + 1
	f.values = append(f.values, ValueInfo{Type: t, Base: base, Version: version})
	return ValueID(len(f.values) - 1)
}

func (f *Function) Value(v ValueID) ValueInfo {
	if int(v) <= 0 || int(v) >= len(f.values) {
		return ValueInfo{Type: types.Unknown, Base: "?"}
	}
	return f.values[v]
}

// NumValues is one more than the largest allocated ValueID.
func (f *Function) NumValues() int { return len(f.values) }

func (f *Function) ValueName(v ValueID) string {
	info := f.Value(v)
	return fmt.Sprintf("%%%s.%d", info.Base, info.Version)
}

// TypeOf returns the type of an operand.
func (f *Function) TypeOf(o Operand) types.Type {
	if o.IsValue() {
		return f.Value(o.Value).Type
	}
	return o.Lit.Type()
}

func (f *Function) Param(name string) (Param, bool) {
	for _, p := range f.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

func (f *Function) NewBlock() *Block {
	b := &Block{ID: BlockID(len(f.Blocks)), IfMerge: NoBlock}
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Function) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(f.Blocks) {
		return nil
	}
	return f.Blocks[id]
}

type Block struct {
	ID     BlockID
	Instrs []Instr
	Term   Terminator

	// IfMerge is set on a block ending in the CondBranch of an if-diamond (or of a
	// short-circuit operator) to the block both arms rejoin at, NoBlock when no arm falls through.
	IfMerge BlockID
	// Loop is set on loop headers only
	Loop *LoopInfo
}

func (b *Block) Append(i Instr) { b.Instrs = append(b.Instrs, i) }

// Phis returns the leading phi instructions of the block.
func (b *Block) Phis() []*Phi {
	var out []*Phi
	for _, i := range b.Instrs {
		phi, ok := i.(*Phi)
		if !ok {
			break
		}
		out = append(out, phi)
	}
	return out
}

func (b *Block) Succs() []BlockID {
	if b.Term == nil {
		return nil
	}
	return b.Term.Succs()
}

type LoopKind uint8

const (
	WhileLoop LoopKind = iota
	// RangeLoop iterates an induction variable from Start to Stop by Step
	RangeLoop
	// EachLoop iterates the elements of a container through a hidden index
	EachLoop
)

func (k LoopKind) String() string {
	switch k {
	case RangeLoop:
		return "range"
	case EachLoop:
		return "each"
	default:
		return "while"
	}
}

// LoopInfo describes a loop whose header is the block carrying it.
// Test ends in CondBranch(cond, Body, Exit); it is the header itself unless the loop
// condition needs blocks of its own. Every path back to the header goes through Latch,
// or straight to the header for while loops where Latch is NoBlock.
type LoopInfo struct {
	Kind   LoopKind
	Header BlockID
	Test   BlockID
	Body   BlockID
	Latch  BlockID
	Exit   BlockID

	// Start, Stop and Step are the range bounds of RangeLoop, as evaluated once before the loop.
	Start, Stop, Step Operand

	// Unroll is the unroll factor annotated by the optimizer, 0 when the loop is left alone
	Unroll int
}

// ContinueTarget is where a continue statement jumps to.
func (l *LoopInfo) ContinueTarget() BlockID {
	if l.Latch != NoBlock {
		return l.Latch
	}
	return l.Header
}

// TripCount returns the number of iterations of a range loop whose bounds are all literals.
func (l *LoopInfo) TripCount() (int64, bool) {
	if l.Kind != RangeLoop {
		return 0, false
	}
	start, ok1 := l.Start.IntLit()
	stop, ok2 := l.Stop.IntLit()
	step, ok3 := l.Step.IntLit()
	if !ok1 || !ok2 || !ok3 || step == 0 {
		return 0, false
	}
	var n int64
	if step > 0 && stop > start {
		n = (stop - start + step - 1) / step
	} else if step < 0 && stop < start {
		n = (start - stop - step - 1) / -step
	}
	return n, true
}

func (l *LoopInfo) uses() []*Operand {
	return []*Operand{&l.Start, &l.Stop, &l.Step}
}
