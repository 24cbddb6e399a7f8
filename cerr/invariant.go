package cerr

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/py2cppai/py2cpp/frontend/ast"
)

// OptimizationInvariantViolation is raised when IR handed to (or produced by) a pass is
// not well-formed. It is a compiler bug, so it records the stack where it was detected.
type OptimizationInvariantViolation struct {
	ast.Range
	Pass     string
	Function string
	cause    error
}

// NewInvariantViolation builds the violation with a stack trace attached.
// Format it with %+v to print the stack.
func NewInvariantViolation(pass, function string, format string, args ...any) *OptimizationInvariantViolation {
	return &OptimizationInvariantViolation{
		Pass:     pass,
		Function: function,
		cause:    pkgerrors.Errorf(format, args...),
	}
}

func (e *OptimizationInvariantViolation) Error() string {
	return fmt.Sprintf("IR invariant violated before pass '%s' in function '%s': %v", e.Pass, e.Function, e.cause)
}

func (e *OptimizationInvariantViolation) Code() ErrCode { return InvariantViolation }

func (e *OptimizationInvariantViolation) Unwrap() error { return e.cause }

func (e *OptimizationInvariantViolation) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "%s\n%+v", e.Error(), e.cause)
		return
	}
	_, _ = fmt.Fprint(s, e.Error())
}
