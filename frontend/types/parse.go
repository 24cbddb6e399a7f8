package types

import (
	"fmt"
	"strings"
	"unicode"
)

// Parse reads a type annotation as written in source, e.g. "dict[str, list[int]]".
// Both builtin generics (list, dict) and their typing-module aliases (List, Dict) are accepted.
func Parse(s string) (Type, error) {
	p := &typeParser{src: s}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("unexpected %q after type in %q", p.src[p.pos:], s)
	}
	return t, nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := rune(p.src[p.pos])
		if !(unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '.' || c == '?') {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) accept(c byte) bool {
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *typeParser) args() ([]Type, error) {
	if !p.accept('[') {
		return nil, nil
	}
	var out []Type
	for {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if p.accept(']') {
			return out, nil
		}
		if !p.accept(',') {
			return nil, fmt.Errorf("expected ',' or ']' at offset %d in %q", p.pos, p.src)
		}
	}
}

func (p *typeParser) parseType() (Type, error) {
	name := strings.TrimPrefix(p.ident(), "typing.")
	if name == "" {
		return nil, fmt.Errorf("expected a type name at offset %d in %q", p.pos, p.src)
	}
	args, err := p.args()
	if err != nil {
		return nil, err
	}
	arity := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s expects %d type argument(s), got %d", name, n, len(args))
		}
		return nil
	}

	switch name {
	case "int":
		return IntType, arity(0)
	case "float":
		return FloatType, arity(0)
	case "bool":
		return BoolType, arity(0)
	case "str":
		return StrType, arity(0)
	case "None", "NoneType":
		return NoneType, arity(0)
	case "dynamic", "Any", "object":
		return DynamicType, arity(0)
	case "?":
		return Unknown, arity(0)
	case "list", "List":
		if len(args) == 0 {
			return ListOf(Unknown), nil
		}
		if err := arity(1); err != nil {
			return nil, err
		}
		return ListOf(args[0]), nil
	case "set", "Set", "frozenset", "FrozenSet":
		if len(args) == 0 {
			return SetOf(Unknown), nil
		}
		if err := arity(1); err != nil {
			return nil, err
		}
		return SetOf(args[0]), nil
	case "dict", "Dict":
		if len(args) == 0 {
			return DictOf(Unknown, Unknown), nil
		}
		if err := arity(2); err != nil {
			return nil, err
		}
		return DictOf(args[0], args[1]), nil
	case "tuple", "Tuple":
		if len(args) == 0 {
			return nil, fmt.Errorf("tuple needs element types")
		}
		return TupleOf(args...), nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}
