// Package diag collects the non-fatal findings of a compilation run.
package diag

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/py2cppai/py2cpp/cerr"
	"github.com/py2cppai/py2cpp/frontend/ast"
)

type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	default:
		return "error"
	}
}

// Diagnostic is immutable once added to a Sink.
type Diagnostic struct {
	Severity Severity
	// Function is empty for module-level findings
	Function string
	Location ast.Location
	Message  string
	Code     cerr.ErrCode
}

func (d Diagnostic) String() string {
	where := d.Location.String()
	if d.Function != "" {
		where += " in " + d.Function
	}
	if d.Code != cerr.None {
		return fmt.Sprintf("%s: %s: (E%03d) %s", d.Severity, where, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Severity, where, d.Message)
}

// Sink accepts diagnostics from concurrent workers.
// Each Add is atomic, so the fields of one diagnostic are never interleaved with another's.
type Sink struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
	file        string
	order       map[string]int
}

// NewSink creates a sink for one module. functionOrder lists functions in
// declaration order and decides the order of Diagnostics.
func NewSink(file string, functionOrder []string) *Sink {
	order := make(map[string]int, len(functionOrder))
	for i, f := range functionOrder {
		if _, ok := order[f]; !ok {
			order[f] = i + 1
		}
	}
	return &Sink{file: file, order: order}
}

func (s *Sink) Add(d Diagnostic) {
	if d.Location.File == "" {
		d.Location.File = s.file
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics = append(s.diagnostics, d)
}

func (s *Sink) Report(sev Severity, function string, at ast.Position, format string, args ...any) {
	s.Add(Diagnostic{
		Severity: sev,
		Function: function,
		Location: ast.Location{Position: at},
		Message:  fmt.Sprintf(format, args...),
	})
}

// AddError records err as an error diagnostic of function, keeping its code and position when it has them.
func (s *Sink) AddError(function string, err error) {
	d := Diagnostic{Severity: Error, Function: function, Message: err.Error()}
	var compileErr cerr.CompileError
	if errors.As(err, &compileErr) {
		d.Code = compileErr.Code()
		d.Message = compileErr.Error()
		d.Location.Position = compileErr.Pos()
	}
	s.Add(d)
}

// Diagnostics returns a copy of everything reported so far, ordered by the declaration
// order of their function, then by source position. Ties keep insertion order.
func (s *Sink) Diagnostics() []Diagnostic {
	s.mu.Lock()
	out := slices.Clone(s.diagnostics)
	s.mu.Unlock()

	slices.SortStableFunc(out, func(a, b Diagnostic) int {
		if oa, ob := s.order[a.Function], s.order[b.Function]; oa != ob {
			return oa - ob
		}
		if a.Location.Line != b.Location.Line {
			return a.Location.Line - b.Location.Line
		}
		return a.Location.Col - b.Location.Col
	})
	return out
}

func (s *Sink) Count(sev Severity) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.diagnostics {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

func (s *Sink) HasErrors() bool {
	return s.Count(Error) > 0
}

// WriteTo prints the ordered diagnostics, one per line.
func (s *Sink) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, d := range s.Diagnostics() {
		n, err := fmt.Fprintln(w, d.String())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
