// Package cerr holds the error taxonomy of the compiler.
//
// TypeConflictError, UnsupportedConstructError and CodeGenError are scoped to the
// function they occur in: they are recorded as diagnostics and the rest of the
// module keeps compiling. OptimizationInvariantViolation signals a defect in
// the compiler itself and always aborts the run.
package cerr

import (
	"errors"
	"fmt"

	"github.com/py2cppai/py2cpp/frontend/ast"
	"github.com/py2cppai/py2cpp/frontend/types"
)

type ErrCode int

const (
	None ErrCode = iota
	TypeConflict
	UnsupportedConstruct
	CodeGen
	InvariantViolation
	UnboundName
	InvalidSignature
	DependencyFailed
)

type CompileError interface {
	Error() string
	Code() ErrCode
	ast.Positioner
}

func FormatWithCode(e CompileError) string {
	return fmt.Sprintf("(E%03d) %s", e.Code(), e.Error())
}

// Fatal reports whether err must abort the whole compilation run.
func Fatal(err error) bool {
	var violation *OptimizationInvariantViolation
	return errors.As(err, &violation)
}

// TypeConflictError is raised at the use site where a binding received a demand
// incompatible with what was already known about it.
type TypeConflictError struct {
	ast.Range
	Binding string
	First   types.Type
	Second  types.Type
}

func (e *TypeConflictError) Error() string {
	return fmt.Sprintf("type conflict on '%s': used as '%v' and as '%v'", e.Binding, e.First, e.Second)
}
func (e *TypeConflictError) Code() ErrCode { return TypeConflict }

// UnsupportedConstructError names a node outside the accepted subset of the language.
type UnsupportedConstructError struct {
	ast.Range
	Construct string
}

func (e *UnsupportedConstructError) Error() string {
	return fmt.Sprintf("unsupported construct: %s", e.Construct)
}
func (e *UnsupportedConstructError) Code() ErrCode { return UnsupportedConstruct }

// CodeGenError is raised by the emitter for IR it has no mapping for.
type CodeGenError struct {
	ast.Range
	Detail string
}

func (e *CodeGenError) Error() string {
	return fmt.Sprintf("cannot generate code: %s", e.Detail)
}
func (e *CodeGenError) Code() ErrCode { return CodeGen }

type UnboundNameError struct {
	ast.Range
	Name string
}

func (e *UnboundNameError) Error() string {
	return fmt.Sprintf("name '%s' is not defined in this function", e.Name)
}
func (e *UnboundNameError) Code() ErrCode { return UnboundName }

// InvalidSignatureError is reported for annotations that do not parse into a type
// or calls whose arity does not match the callee.
type InvalidSignatureError struct {
	ast.Range
	Function string
	Reason   string
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid signature for '%s': %s", e.Function, e.Reason)
}
func (e *InvalidSignatureError) Code() ErrCode { return InvalidSignature }

// DependencyFailedError marks a function that calls a function which failed to compile.
type DependencyFailedError struct {
	ast.Range
	Callee string
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("calls '%s', which failed to compile", e.Callee)
}
func (e *DependencyFailedError) Code() ErrCode { return DependencyFailed }

var (
	_ CompileError = &TypeConflictError{}
	_ CompileError = &UnsupportedConstructError{}
	_ CompileError = &CodeGenError{}
	_ CompileError = &UnboundNameError{}
	_ CompileError = &InvalidSignatureError{}
	_ CompileError = &DependencyFailedError{}
	_ CompileError = &OptimizationInvariantViolation{}
)
