// Package resolve assigns a type to every binding of a function.
//
// Resolution merges three sources, in this order: the annotations written in the
// source, static inference over the function body, and a single batched round of
// suggestions from the type advisor for whatever static inference left open.
// Bindings nobody could type receive the configured fallback type.
package resolve

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/py2cppai/py2cpp/advisor"
	"github.com/py2cppai/py2cpp/diag"
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/types"
	"github.com/py2cppai/py2cpp/internal/log"
)

var logger = log.Section("resolve")

type Options struct {
	// AIEnabled permits the advisor round. When false unresolved bindings go straight to Fallback.
	AIEnabled     bool
	Threshold     float64
	Timeout       time.Duration
	ContextWindow int
	Fallback      types.Type
	// RunID is sent to the advisor as the request ID
	RunID string
}

// Resolver resolves the functions of one module. It is safe for concurrent use:
// the signature table is read-only and every Resolve call owns its own state.
type Resolver struct {
	sigs    *Signatures
	advisor advisor.Advisor
	opts    Options
	sink    *diag.Sink
	log     *slog.Logger
}

// New creates a Resolver. adv may be nil, which disables the advisor round.
func New(sigs *Signatures, adv advisor.Advisor, opts Options, sink *diag.Sink) *Resolver {
	if opts.Fallback == nil {
		opts.Fallback = types.DynamicType
	}
	return &Resolver{sigs: sigs, advisor: adv, opts: opts, sink: sink, log: logger}
}

// Result is a typed function: the environment of its bindings plus the type of
// every expression of its body, ready for the IR builder.
type Result struct {
	Function *ast.FunctionDef
	Env      *types.Environment
	// Exprs is the resolved type of every expression node of the body
	Exprs map[ast.Expr]types.Type
	// Aug is the result type of every augmented assignment
	Aug    map[*ast.AugAssign]types.Type
	Return types.Type
	// AdvisorCalls counts the advisor rounds run for this function, 0 or 1
	AdvisorCalls int
}

// TypeOf returns the resolved type of e, or the fallback Unknown when e was never typed.
func (r *Result) TypeOf(e ast.Expr) types.Type {
	if t, ok := r.Exprs[e]; ok {
		return t
	}
	return types.Unknown
}

// Resolve types fn. Type conflicts, unbound names and call arity errors abort
// resolution of fn only and are returned together as a *cerr.Errors.
// Advisor trouble is never an error: it is reported to the sink and the
// affected bindings fall back.
func (r *Resolver) Resolve(ctx context.Context, fn *ast.FunctionDef) (*Result, error) {
	log := r.log.With("function", fn.Name)
	in := newInference(fn, r.sigs)
	in.run()
	if in.errs.HasError() {
		log.Debug("static inference failed", "errors", in.errs)
		return nil, in.errs
	}

	result := &Result{Function: fn}
	targets := in.unresolved()
	if len(targets) > 0 && r.opts.AIEnabled && r.advisor != nil {
		result.AdvisorCalls = 1
		r.consult(ctx, in, targets)
		in.run()
		if in.errs.HasError() {
			return nil, in.errs
		}
	}

	sig, _ := r.sigs.Lookup(fn.Name)
	for i, name := range in.order {
		t := in.bindings[name]
		if in.kinds[name] != types.Local {
			// parameters keep the type callers were compiled against
			if p := sig.Params[i]; p.Source == types.FromFallback {
				in.seed(name, p.Type, types.FromFallback)
				r.sink.Report(diag.Warning, fn.Name, fn.Pos(), "no type could be established for parameter '%s', using %v", name, p.Type)
			}
			continue
		}
		if types.IsResolved(t) {
			continue
		}
		in.seed(name, types.FillHoles(t, r.opts.Fallback), types.FromFallback)
		r.sink.Report(diag.Warning, fn.Name, fn.Pos(), "no type could be established for '%s', using %v", name, in.bindings[name])
	}
	// one more walk so expression types see the fallback types
	in.run()
	if in.errs.HasError() {
		return nil, in.errs
	}

	result.Return = in.ret
	if !in.retFixed {
		result.Return = types.FillHoles(in.ret, r.opts.Fallback)
		if !in.valueReturns {
			result.Return = types.NoneType
		}
	}
	in.settle(fn.Body, result.Return)
	for e, t := range in.exprs {
		in.exprs[e] = types.FillHoles(t, r.opts.Fallback)
	}
	for s, t := range in.aug {
		in.aug[s] = types.FillHoles(t, r.opts.Fallback)
	}

	env := types.NewEnvironment()
	for _, name := range in.order {
		env = env.With(types.Binding{Name: name, Kind: in.kinds[name], Type: in.bindings[name], Source: in.sources[name]})
	}
	result.Env = env
	result.Exprs = in.exprs
	result.Aug = in.aug
	log.Debug("resolved", "bindings", env.Len(), "advisor_calls", result.AdvisorCalls)
	return result, nil
}

// unresolved lists, in name order, the bindings static inference left with holes.
func (in *inference) unresolved() []pending {
	var out []pending
	for _, name := range slices.Sorted(maps.Keys(in.bindings)) {
		if in.kinds[name] != types.Local || types.IsResolved(in.bindings[name]) {
			continue
		}
		out = append(out, pending{name: name, shapes: in.usage.shapes(name)})
	}
	return out
}

// settle pushes the final binding types into expressions that flow into them,
// so that an empty display assigned to a list[int] is itself a list[int].
func (in *inference) settle(body []ast.Stmt, ret types.Type) {
	for _, s := range ast.Flatten(body) {
		switch s := s.(type) {
		case *ast.Assign:
			in.settleTarget(s.Target, s.Value)
		case *ast.AnnAssign:
			if s.Value != nil {
				in.settleTarget(s.Target, s.Value)
			}
		case *ast.Return:
			if s.Value != nil {
				in.settleExpr(s.Value, ret)
			}
		}
		ast.Inspect(s, func(n ast.Node) bool {
			call, ok := n.(*ast.Call)
			if !ok {
				return true
			}
			switch f := call.Func.(type) {
			case *ast.Name:
				if sig, ok := in.sigs.Lookup(f.Id); ok && !in.isBinding(f.Id) {
					for i, a := range call.Args {
						if i < sig.Arity() {
							in.settleExpr(a, sig.Params[i].Type)
						}
					}
				}
			case *ast.Attribute:
				if elem, ok := types.ElementType(in.exprs[f.Value]); ok && len(call.Args) == 1 {
					in.settleExpr(call.Args[0], elem)
				}
			}
			return true
		})
	}
}

func (in *inference) settleTarget(target, value ast.Expr) {
	switch target := target.(type) {
	case *ast.Name:
		in.settleExpr(value, in.bindings[target.Id])
	case *ast.Subscript:
		switch c := in.exprs[target.Value].(type) {
		case *types.Sequence:
			in.settleExpr(value, c.Elem)
		case *types.Mapping:
			in.settleExpr(value, c.Value)
		}
	}
}

// settleExpr fills the holes of e's type from want, descending into displays.
func (in *inference) settleExpr(e ast.Expr, want types.Type) {
	have, ok := in.exprs[e]
	if !ok || types.IsResolved(have) || !types.IsResolved(want) {
		return
	}
	merged := types.Merge(have, want)
	if types.IsConflict(merged) {
		return
	}
	in.exprs[e] = merged
	switch e := e.(type) {
	case *ast.List:
		if s, ok := merged.(*types.Sequence); ok {
			for _, elt := range e.Elts {
				in.settleExpr(elt, s.Elem)
			}
		}
	case *ast.SetDisplay:
		if s, ok := merged.(*types.Set); ok {
			for _, elt := range e.Elts {
				in.settleExpr(elt, s.Elem)
			}
		}
	case *ast.Dict:
		if m, ok := merged.(*types.Mapping); ok {
			for i := range e.Keys {
				in.settleExpr(e.Keys[i], m.Key)
				in.settleExpr(e.Values[i], m.Value)
			}
		}
	case *ast.Tuple:
		if t, ok := merged.(*types.Tuple); ok && len(t.Elems) == len(e.Elts) {
			for i, elt := range e.Elts {
				in.settleExpr(elt, t.Elems[i])
			}
		}
	}
}
