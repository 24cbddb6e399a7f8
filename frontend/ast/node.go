// Package ast is the input contract of the compiler: the syntax tree of one
// translation unit as handed over by the external front end.
//
// Nodes follow the shape of Python's own ast module closely enough that
// a JSON dump of it can be decoded with Decode. Every node carries its
// source Range so diagnostics can point back at the original file.
package ast

// Node is the base interface for all AST nodes.
type Node interface {
	Positioner
}

// Expr is the interface for all expression nodes in the AST.
type Expr interface {
	Node
	exprNode() // Marker method to distinguish expressions
}

// Stmt is the interface for all statement nodes in the AST.
type Stmt interface {
	Node
	stmtNode() // Marker method to distinguish statements
}

// Module is one translation unit.
type Module struct {
	Range
	Name string
	// File is the path of the source file, used to qualify diagnostic locations
	File      string
	Functions []*FunctionDef
	// Unsupported holds top-level statements other than function definitions.
	// They are reported but do not prevent the functions from compiling.
	Unsupported []*UnsupportedStmt
}

// Location qualifies p with the module's file.
func (m *Module) Location(p Position) Location {
	return Location{File: m.File, Position: p}
}

// FunctionDef is a top-level function definition.
type FunctionDef struct {
	Range
	Name   string
	Params []*Param
	// Returns is the return annotation as written, empty when absent
	Returns string
	Body    []Stmt
}

// Param is one positional parameter of a FunctionDef.
type Param struct {
	Range
	Name string
	// Annotation is the type hint as written, empty when absent.
	// An Out[T] annotation is unwrapped by the decoder into Annotation T and Output.
	Annotation string
	Output     bool
}

// FindFunction returns the function with the given name, or nil.
func (m *Module) FindFunction(name string) *FunctionDef {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
