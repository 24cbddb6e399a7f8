package resolve

import (
	"fmt"

	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/types"
)

type ParamSig struct {
	Name   string
	Type   types.Type
	Output bool
	Source types.Source
}

// Signature is what the rest of the module may assume about one function.
type Signature struct {
	Name   string
	Range  ast.Range
	Params []ParamSig
	Return types.Type
	// ReturnSource is FromHint for an annotated return type
	ReturnSource types.Source
	// ValueReturns is set when some return statement carries a value
	ValueReturns bool
}

// Arity is the number of positional parameters.
func (s *Signature) Arity() int { return len(s.Params) }

// Signatures is the module-level function table. It is filled by BuildSignatures
// before any function is resolved and is read-only afterwards.
type Signatures struct {
	byName map[string]*Signature
	order  []string
	sealed bool
}

func (s *Signatures) Lookup(name string) (*Signature, bool) {
	if s == nil {
		return nil, false
	}
	sig, ok := s.byName[name]
	return sig, ok
}

// Names lists the functions in declaration order.
func (s *Signatures) Names() []string {
	return append([]string(nil), s.order...)
}

// BuildSignatures collects the annotated signature of every function of m, then runs
// static inference over the whole module to learn the types of unannotated
// parameters and returns, and finally fills what is still unknown with fallback.
//
// Functions with invalid signatures are returned in failed, keyed by name; they
// stay in the table with unknown types so callers can still be checked for arity.
func BuildSignatures(m *ast.Module, fallback types.Type) (sigs *Signatures, failed map[string]*cerr.Errors) {
	sigs = &Signatures{byName: map[string]*Signature{}}
	failed = map[string]*cerr.Errors{}
	fail := func(fn *ast.FunctionDef, at ast.Positioner, format string, args ...any) {
		failed[fn.Name] = failed[fn.Name].With(&cerr.InvalidSignatureError{
			Range:    ast.RangeOf(at),
			Function: fn.Name,
			Reason:   fmt.Sprintf(format, args...),
		})
	}

	for _, fn := range m.Functions {
		if _, dup := sigs.byName[fn.Name]; dup {
			fail(fn, fn, "function is defined more than once")
			continue
		}
		sig := &Signature{Name: fn.Name, Range: fn.Range, Return: types.Unknown}
		seen := map[string]bool{}
		for _, p := range fn.Params {
			ps := ParamSig{Name: p.Name, Type: types.Unknown, Output: p.Output}
			if seen[p.Name] {
				fail(fn, p, "parameter '%s' is declared twice", p.Name)
			}
			seen[p.Name] = true
			if p.Annotation != "" {
				t, err := types.Parse(p.Annotation)
				if err != nil {
					fail(fn, p, "parameter '%s': %v", p.Name, err)
				} else if types.IsPrim(t, types.None) {
					fail(fn, p, "parameter '%s' cannot have type None", p.Name)
				} else {
					ps.Type, ps.Source = t, types.FromHint
				}
			}
			sig.Params = append(sig.Params, ps)
		}
		if fn.Returns != "" {
			t, err := types.Parse(fn.Returns)
			if err != nil {
				fail(fn, fn, "return annotation: %v", err)
			} else {
				sig.Return, sig.ReturnSource = t, types.FromHint
			}
		}
		sigs.byName[fn.Name] = sig
		sigs.order = append(sigs.order, fn.Name)
	}

	sigs.learn(m, failed)
	sigs.seal(fallback)
	return sigs, failed
}

// learn runs static inference over every function until no signature changes,
// feeding back what each body reveals about its own parameters and return
// type and what each call site reveals about the callee's parameters.
func (s *Signatures) learn(m *ast.Module, failed map[string]*cerr.Errors) {
	for round := 0; round < maxRounds; round++ {
		changed := false
		for _, fn := range m.Functions {
			if failed[fn.Name].HasError() {
				continue
			}
			sig := s.byName[fn.Name]
			in := newInference(fn, s)
			in.run()

			for i, p := range sig.Params {
				if p.Source == types.FromHint {
					continue
				}
				changed = sig.Params[i].learn(in.bindings[p.Name]) || changed
			}
			if sig.ReturnSource != types.FromHint && !types.IsConflict(in.ret) && !in.ret.Equals(sig.Return) {
				sig.Return = in.ret
				sig.ReturnSource = types.FromInference
				changed = true
			}
			sig.ValueReturns = sig.ValueReturns || in.valueReturns

			for callee, args := range in.callArgs {
				target := s.byName[callee]
				for i, t := range args {
					if i < len(target.Params) && target.Params[i].Source != types.FromHint {
						changed = target.Params[i].learn(widen(target.Params[i].Type, t)) || changed
					}
				}
			}
		}
		if !changed {
			return
		}
	}
}

func (p *ParamSig) learn(t types.Type) bool {
	if types.IsUnresolved(t) || types.IsConflict(t) || t.Equals(p.Type) {
		return false
	}
	p.Type = t
	p.Source = types.FromInference
	return true
}

func (s *Signatures) seal(fallback types.Type) {
	for _, name := range s.order {
		sig := s.byName[name]
		for i, p := range sig.Params {
			if !types.IsResolved(p.Type) {
				sig.Params[i].Type = types.FillHoles(p.Type, fallback)
				sig.Params[i].Source = types.FromFallback
			}
		}
		if types.IsResolved(sig.Return) {
			continue
		}
		if !sig.ValueReturns && types.IsUnresolved(sig.Return) {
			sig.Return = types.NoneType
			sig.ReturnSource = types.FromInference
			continue
		}
		sig.Return = types.FillHoles(sig.Return, fallback)
		sig.ReturnSource = types.FromFallback
	}
	s.sealed = true
}
