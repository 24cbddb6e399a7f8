// Package backend turns optimized SSA functions into C++17 source.
//
// Each function is emitted on its own into a Unit, so functions can be emitted
// concurrently and cached independently. Assemble then joins the units of a
// module with the includes and runtime helpers they use.
package backend

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hashicorp/go-set/v3"
	xset "github.com/xtgo/set"

	"github.com/py2cppai/py2cpp/internal/log"
	"github.com/py2cppai/py2cpp/ir"
)

// Version identifies the shape of the emitted code. Cached units from another
// version are never reused.
const Version = "1.0.0"

// Unit is the C++ translation of one function.
type Unit struct {
	// Function is the source name, Name the C++ identifier it was emitted under
	Function string
	Name     string
	Arity    int

	Prototype  string
	Definition string

	Includes []string
	Helpers  []string
}

type Emitter struct {
	*slog.Logger
}

func NewEmitter() *Emitter {
	return &Emitter{
		Logger: log.Section("backend"),
	}
}

// usage records the headers and runtime helpers a unit depends on.
type usage struct {
	includes *set.Set[string]
	helpers  *set.Set[string]
}

func newUsage() *usage {
	return &usage{includes: set.New[string](8), helpers: set.New[string](8)}
}

func (u *usage) include(headers ...string) { u.includes.InsertSlice(headers) }
func (u *usage) need(names ...string)      { u.helpers.InsertSlice(names) }

// EmitFunction translates f. A function containing IR that has no C++ mapping
// yields a *cerr.Errors holding one CodeGenError per problem.
func (em *Emitter) EmitFunction(f *ir.Function) (*Unit, error) {
	fe := newFuncEmitter(em, f)
	proto := fe.signature()
	var decls []string
	if !fe.errs.HasError() {
		fe.analyze()
		fe.body()
		decls = fe.declarations()
	}
	if fe.errs.HasError() {
		em.Debug("function rejected", "function", f.Name, "errors", fe.errs)
		return nil, fe.errs
	}

	def := &strings.Builder{}
	def.WriteString(proto)
	def.WriteString(" {\n")
	for _, l := range decls {
		def.WriteString(l)
		def.WriteByte('\n')
	}
	for _, l := range fe.lines {
		def.WriteString(l)
		def.WriteByte('\n')
	}
	def.WriteString("}\n")

	unit := &Unit{
		Function:   f.Name,
		Name:       cppIdent(f.Name),
		Arity:      len(f.Params),
		Prototype:  proto + ";",
		Definition: def.String(),
		Includes:   sortedUniq(fe.use.includes.Slice()),
		Helpers:    sortedUniq(fe.use.helpers.Slice()),
	}
	em.Debug("function emitted", "function", f.Name, "lines", len(fe.lines), "helpers", len(unit.Helpers))
	return unit, nil
}

// Assemble joins units, in the given order, into one translation unit. When
// the function named entry is among them and takes no parameters, a C++ main
// calling it is appended.
func (em *Emitter) Assemble(module string, units []*Unit, entry string) string {
	var includes []string
	needed := set.New[string](len(helpers))
	var main *Unit
	for _, u := range units {
		includes = append(includes, u.Includes...)
		needed.InsertSlice(u.Helpers)
		if u.Function == entry && u.Arity == 0 {
			main = u
			includes = append(includes, "<exception>", "<iostream>")
		}
	}
	prelude := resolveHelpers(needed)
	for _, h := range prelude {
		includes = append(includes, h.includes...)
	}

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "// Code generated by py2cpp from %s. DO NOT EDIT.\n\n", module)
	for _, inc := range sortedUniq(includes) {
		fmt.Fprintf(sb, "#include %s\n", inc)
	}
	var decls []string
	for _, h := range prelude {
		if h.decl != "" {
			decls = append(decls, h.decl)
		}
	}
	if len(decls) > 0 {
		sb.WriteString("\n")
		sb.WriteString(strings.Join(decls, "\n"))
		sb.WriteString("\n")
	}
	for _, h := range prelude {
		sb.WriteString("\n")
		sb.WriteString(h.code)
		sb.WriteString("\n")
	}
	if len(units) > 0 {
		sb.WriteString("\n")
	}
	for _, u := range units {
		sb.WriteString(u.Prototype)
		sb.WriteString("\n")
	}
	for _, u := range units {
		sb.WriteString("\n")
		sb.WriteString(u.Definition)
	}
	if main != nil {
		fmt.Fprintf(sb, mainWrapper, main.Name)
	} else {
		em.Debug("no entry point wrapper", "module", module, "entry", entry)
	}
	return sb.String()
}

const mainWrapper = `
int main() {
    try {
        %s();
    } catch (const std::exception& e) {
        std::cerr << e.what() << '\n';
        return 1;
    }
    return 0;
}
`

// resolveHelpers closes names over helper dependencies and conditional helpers,
// and returns the result in emission order.
func resolveHelpers(names *set.Set[string]) []helper {
	want := set.New[string](names.Size())
	var add func(string)
	add = func(name string) {
		if !want.Insert(name) {
			return
		}
		for _, d := range helpers[helperIndex[name]].deps {
			add(d)
		}
	}
	for _, n := range names.Slice() {
		if _, ok := helperIndex[n]; ok {
			add(n)
		}
	}
	for changed := true; changed; {
		changed = false
		for _, h := range helpers {
			if len(h.when) > 0 && !want.Contains(h.name) && want.ContainsSlice(h.when) {
				add(h.name)
				changed = true
			}
		}
	}

	var out []helper
	for _, h := range helpers {
		if want.Contains(h.name) {
			out = append(out, h)
		}
	}
	return out
}

// sortedUniq sorts s in place and drops duplicates.
func sortedUniq(s []string) []string {
	sort.Strings(s)
	return s[:xset.Uniq(sort.StringSlice(s))]
}
