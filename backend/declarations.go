package backend

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/frontend/types"
	"github.com/py2cppai/py2cpp/ir"
	"github.com/py2cppai/py2cpp/util"
)

// funcEmitter holds the state of emitting one function.
type funcEmitter struct {
	*Emitter
	f    *ir.Function
	use  *usage
	errs *cerr.Errors

	lines []string
	depth int

	// params maps source parameter names to their C++ names
	params map[string]string
	// paramLoads are loads read straight through the parameter's name
	paramLoads map[ir.ValueID]string
	// names are the C++ variables of values that are declared up front
	names map[ir.ValueID]string
	order []ir.ValueID
	// folded values are emitted as part of the expression that uses them
	folded *set.Set[ir.ValueID]
	exprs  map[ir.ValueID]expr

	locals     map[string]*localDecl
	localOrder []string

	loops  util.Stack[*loopState]
	labels int
	temps  int
}

// localDecl is a source local of scalar type. Locals only mirror the values
// stored to them, reads go through the SSA values.
type localDecl struct {
	name string
	typ  string
	// atStore is set when the local's only store is in the entry block,
	// where the store itself can declare it
	atStore bool
}

func newFuncEmitter(em *Emitter, f *ir.Function) *funcEmitter {
	fe := &funcEmitter{
		Emitter:    em,
		f:          f,
		use:        newUsage(),
		params:     make(map[string]string, len(f.Params)),
		paramLoads: map[ir.ValueID]string{},
		names:      map[ir.ValueID]string{},
		folded:     set.New[ir.ValueID](0),
		exprs:      map[ir.ValueID]expr{},
		locals:     map[string]*localDecl{},
	}
	for _, p := range f.Params {
		fe.params[p.Name] = cppIdent(p.Name)
	}
	return fe
}

func (fe *funcEmitter) fail(format string, args ...any) {
	fe.errs = fe.errs.With(&cerr.CodeGenError{
		Range:  fe.f.Range,
		Detail: fmt.Sprintf("in '%s': %s", fe.f.Name, fmt.Sprintf(format, args...)),
	})
}

func (fe *funcEmitter) typeOf(t types.Type) string {
	s, err := fe.use.cppType(t)
	if err != nil {
		fe.fail("%v", err)
		return "?"
	}
	return s
}

func (fe *funcEmitter) signature() string {
	ret, err := fe.use.returnType(fe.f.Return)
	if err != nil {
		fe.fail("return type: %v", err)
	}
	params := make([]string, len(fe.f.Params))
	for i, p := range fe.f.Params {
		t := fe.typeOf(p.Type)
		if p.Output || byReference(p.Type) {
			t += "&"
		}
		params[i] = t + " " + fe.params[p.Name]
	}
	return fmt.Sprintf("%s %s(%s)", ret, cppIdent(fe.f.Name), strings.Join(params, ", "))
}

// analyze decides, before anything is emitted, how every value and local is
// represented: read through a parameter, folded into its single use, or held
// in a variable declared at the top of the function.
func (fe *funcEmitter) analyze() {
	uses := fe.f.UseCounts()
	for _, b := range fe.f.Blocks {
		for k, i := range b.Instrs {
			d := i.Def()
			if d == ir.NoValue {
				continue
			}
			if l, ok := i.(*ir.Load); ok {
				if p, ok := fe.f.Param(l.Var); ok && (!p.Output || isContainer(p.Type)) {
					fe.paramLoads[d] = fe.params[p.Name]
					continue
				}
			}
			if uses[d] == 1 && foldable(fe.f, b, k) {
				fe.folded.Insert(d)
				continue
			}
			fe.names[d] = fmt.Sprintf("v%d", len(fe.order))
			fe.order = append(fe.order, d)
		}
	}

	stores := map[string]int{}
	entryStores := map[string]int{}
	for _, b := range fe.f.Blocks {
		for _, i := range b.Instrs {
			if s, ok := i.(*ir.Store); ok && s.Kind == ir.StoreLocal {
				stores[s.Var]++
				if b.ID == ir.Entry && b.Loop == nil {
					entryStores[s.Var]++
				}
			}
		}
	}
	for _, v := range fe.f.Locals {
		if isContainer(v.Type) || stores[v.Name] == 0 {
			continue
		}
		fe.locals[v.Name] = &localDecl{
			name:    cppIdent(v.Name),
			typ:     fe.typeOf(v.Type),
			atStore: stores[v.Name] == 1 && entryStores[v.Name] == 1,
		}
		fe.localOrder = append(fe.localOrder, v.Name)
	}
}

// foldable reports whether the value defined by b.Instrs[k] can be computed at
// its single use instead of where it is defined. The use must follow in the
// same block with nothing in between that writes to a container, an output
// parameter or the outside world.
func foldable(f *ir.Function, b *ir.Block, k int) bool {
	i := b.Instrs[k]
	switch i.(type) {
	case *ir.Phi, *ir.Load:
		return false
	}
	d := i.Def()
	if !i.Pure() || isContainer(f.Value(d).Type) {
		return false
	}
	usesD := func(ops []*ir.Operand) bool {
		for _, op := range ops {
			if op.IsValue() && op.Value == d {
				return true
			}
		}
		return false
	}
	for _, next := range b.Instrs[k+1:] {
		if usesD(next.Uses()) {
			return true
		}
		if s, ok := next.(*ir.Store); (ok && s.Kind != ir.StoreLocal) || (!ok && !next.Pure()) {
			return false
		}
	}
	return b.Term != nil && usesD(b.Term.Uses())
}

// declarations are the lines declaring locals and values at the top of the body.
func (fe *funcEmitter) declarations() []string {
	var out []string
	for _, name := range fe.localOrder {
		l := fe.locals[name]
		if !l.atStore {
			out = append(out, fmt.Sprintf("    [[maybe_unused]] %s %s{};", l.typ, l.name))
		}
	}
	for _, v := range fe.order {
		out = append(out, fmt.Sprintf("    %s %s{};", fe.typeOf(fe.f.Value(v).Type), fe.names[v]))
	}
	if len(out) > 0 {
		out = append(out, "")
	}
	return out
}
