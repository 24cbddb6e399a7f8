package ir

// Instr is a non-terminating instruction.
type Instr interface {
	// Def is the value the instruction produces, NoValue if none
	Def() ValueID
	// Uses returns pointers to the instruction's operands so passes can rewrite them in place
	Uses() []*Operand
	// Pure reports whether the instruction may be removed when its result is unused
	Pure() bool
	instrNode()
}

// Terminator ends a block.
type Terminator interface {
	Succs() []BlockID
	Uses() []*Operand
	retarget(func(BlockID) BlockID)
	termNode()
}

// Load reads a variable. After SSA construction only parameters are loaded.
type Load struct {
	Dst ValueID
	Var string
}

func (i *Load) Def() ValueID     { return i.Dst }
func (i *Load) Uses() []*Operand { return nil }
func (i *Load) Pure() bool       { return true }
func (*Load) instrNode()         {}

type StoreKind uint8

const (
	// StoreLocal records that Val is now the value of local Var. It has no effect of its own.
	StoreLocal StoreKind = iota
	// StoreOutput writes Val to output parameter Var, visible to the caller
	StoreOutput
	// StoreElement writes Val into Container at Index
	StoreElement
)

type Store struct {
	Kind      StoreKind
	Var       string
	Container Operand
	Index     Operand
	Val       Operand
}

func (i *Store) Def() ValueID { return NoValue }
func (i *Store) Uses() []*Operand {
	if i.Kind == StoreElement {
		return []*Operand{&i.Container, &i.Index, &i.Val}
	}
	return []*Operand{&i.Val}
}
func (i *Store) Pure() bool { return false }
func (*Store) instrNode()   {}

type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpIn
	OpNotIn
	// OpIndex reads element Y of container X
	OpIndex
)

var opNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpFloorDiv: "floordiv", OpMod: "mod", OpPow: "pow",
	OpEq: "eq", OpNe: "ne", OpLt: "lt", OpLe: "le", OpGt: "gt", OpGe: "ge", OpIn: "in", OpNotIn: "notin",
	OpIndex: "index",
}

func (o Op) String() string { return opNames[o] }

func (o Op) IsComparison() bool { return o >= OpEq && o <= OpNotIn }

type BinOp struct {
	Dst  ValueID
	Op   Op
	X, Y Operand
}

func (i *BinOp) Def() ValueID     { return i.Dst }
func (i *BinOp) Uses() []*Operand { return []*Operand{&i.X, &i.Y} }
func (i *BinOp) Pure() bool       { return true }
func (*BinOp) instrNode()         {}

// Call invokes a module function or, when Builtin is set, one of the builtins below.
type Call struct {
	Dst     ValueID
	Callee  string
	Builtin bool
	Args    []Operand
}

func (i *Call) Def() ValueID { return i.Dst }
func (i *Call) Uses() []*Operand {
	out := make([]*Operand, len(i.Args))
	for k := range i.Args {
		out[k] = &i.Args[k]
	}
	return out
}
func (i *Call) Pure() bool { return i.Builtin && BuiltinPure(i.Callee) }
func (*Call) instrNode()   {}

// Builtins understood by every stage after the resolver.
const (
	BuiltinLen   = "len"
	BuiltinPrint = "print"
	BuiltinAbs   = "abs"
	BuiltinMin   = "min"
	BuiltinMax   = "max"
	BuiltinInt   = "int"
	BuiltinFloat = "float"
	BuiltinStr   = "str"
	BuiltinBool  = "bool"

	BuiltinAppend = "append"
	BuiltinAdd    = "add"

	// constructors of displays, dict arguments alternate key and value
	BuiltinList  = "list"
	BuiltinSet   = "set"
	BuiltinDict  = "dict"
	BuiltinTuple = "tuple"

	// BuiltinZero is the default value of the result type, used for reads of possibly unbound locals
	BuiltinZero = "zero"
	// BuiltinKeys lists the keys of a dict or the elements of a set in iteration order
	BuiltinKeys = "keys"
	// BuiltinTupleGet takes a tuple and a literal index
	BuiltinTupleGet = "tuple_get"
	// BuiltinRangeContinues tests i against stop in the direction of step
	BuiltinRangeContinues = "range_continues"
	// BuiltinToList and BuiltinToSet copy the elements of any iterable into a new container
	BuiltinToList = "to_list"
	BuiltinToSet  = "to_set"
	// BuiltinDynamic boxes a primitive into the dynamic type
	BuiltinDynamic = "dynamic"
)

var impureBuiltins = map[string]bool{
	BuiltinPrint:  true,
	BuiltinAppend: true,
	BuiltinAdd:    true,
}

func BuiltinPure(name string) bool { return !impureBuiltins[name] }

type PhiEdge struct {
	Pred BlockID
	Val  Operand
}

// Phi selects Edges[k].Val when control arrives from Edges[k].Pred.
// Var is the source variable the phi merges.
type Phi struct {
	Dst   ValueID
	Var   string
	Edges []PhiEdge
}

func (i *Phi) Def() ValueID { return i.Dst }
func (i *Phi) Uses() []*Operand {
	out := make([]*Operand, len(i.Edges))
	for k := range i.Edges {
		out[k] = &i.Edges[k].Val
	}
	return out
}
func (i *Phi) Pure() bool { return true }
func (*Phi) instrNode()   {}

// Incoming returns the operand flowing in from pred.
func (i *Phi) Incoming(pred BlockID) (Operand, bool) {
	for _, e := range i.Edges {
		if e.Pred == pred {
			return e.Val, true
		}
	}
	return Operand{}, false
}

type Branch struct {
	Target BlockID
}

func (t *Branch) Succs() []BlockID                  { return []BlockID{t.Target} }
func (t *Branch) Uses() []*Operand                  { return nil }
func (t *Branch) retarget(f func(BlockID) BlockID) { t.Target = f(t.Target) }
func (*Branch) termNode()                           {}

type CondBranch struct {
	Cond Operand
	Then BlockID
	Else BlockID
}

func (t *CondBranch) Succs() []BlockID { return []BlockID{t.Then, t.Else} }
func (t *CondBranch) Uses() []*Operand { return []*Operand{&t.Cond} }
func (t *CondBranch) retarget(f func(BlockID) BlockID) {
	t.Then = f(t.Then)
	t.Else = f(t.Else)
}
func (*CondBranch) termNode() {}

// Return leaves the function. Val is the zero Operand for a bare return.
type Return struct {
	Val Operand
}

func (t *Return) Succs() []BlockID { return nil }
func (t *Return) Uses() []*Operand {
	if t.Val.IsZero() {
		return nil
	}
	return []*Operand{&t.Val}
}
func (t *Return) retarget(func(BlockID) BlockID) {}
func (*Return) termNode()                        {}
