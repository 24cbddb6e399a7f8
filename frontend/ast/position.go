package ast

import (
	"fmt"
)

// Position is a line and column in the original source file, both 1-based.
// The zero Position means the front end did not provide one.
type Position struct {
	Line int
	Col  int
}

func (p Position) IsValid() bool { return p.Line > 0 }

func (p Position) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Before reports whether p comes strictly before other in the file.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Col < other.Col
}

// Positioner allows finding the location in the original source file.
type Positioner interface {
	Pos() Position // position of first character belonging to the node
	End() Position // position of first character immediately after the node
}

// Range represents a range of positions in the source code.
type Range struct {
	PosStart Position
	PosEnd   Position
}

// Pos returns the starting position of the range.
func (r Range) Pos() Position { return r.PosStart }

// End returns the ending position of the range.
func (r Range) End() Position { return r.PosEnd }

// String returns a string representation of the range.
func (r Range) String() string {
	if r.PosStart == r.PosEnd || !r.PosEnd.IsValid() {
		return r.PosStart.String()
	}
	return fmt.Sprintf("%v-%v", r.PosStart, r.PosEnd)
}

// RangeOf creates a Range from a Positioner.
func RangeOf(n Positioner) Range {
	if n == nil {
		return Range{}
	}
	if asRange, ok := n.(Range); ok {
		return asRange
	}
	return Range{PosStart: n.Pos(), PosEnd: n.End()}
}

// Location is a Position qualified with the file it belongs to, as reported in diagnostics.
type Location struct {
	File string
	Position
}

func (l Location) String() string {
	if l.File == "" {
		return l.Position.String()
	}
	return l.File + ":" + l.Position.String()
}
