package backend

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/py2cppai/py2cpp/ir"
	"github.com/py2cppai/py2cpp/util"
)

// cppReserved are identifiers a source name may not be emitted as.
var cppReserved = set.From([]string{
	"alignas", "alignof", "and", "and_eq", "asm", "auto", "bitand", "bitor", "bool", "break",
	"case", "catch", "char", "char16_t", "char32_t", "class", "compl", "const", "constexpr",
	"const_cast", "continue", "decltype", "default", "delete", "do", "double", "dynamic_cast",
	"else", "enum", "explicit", "export", "extern", "false", "float", "for", "friend", "goto",
	"if", "inline", "int", "long", "mutable", "namespace", "new", "noexcept", "not", "not_eq",
	"nullptr", "operator", "or", "or_eq", "private", "protected", "public", "register",
	"reinterpret_cast", "return", "short", "signed", "sizeof", "static", "static_assert",
	"static_cast", "struct", "switch", "template", "this", "thread_local", "throw", "true",
	"try", "typedef", "typeid", "typename", "union", "unsigned", "using", "virtual", "void",
	"volatile", "wchar_t", "while", "xor", "xor_eq",
	"main", "std", "size_t", "int64_t", "INT64_C", "INT64_MIN", "NULL", "assert", "errno",
})

// cppIdent turns a source name into a C++ identifier that cannot clash with
// keywords, runtime helpers, labels or the names of SSA values.
func cppIdent(name string) string {
	id := util.ASCIIIdent(name)
	if cppReserved.Contains(id) || strings.HasPrefix(id, "py_") || strings.HasPrefix(id, "latch_") || generatedName(id) {
		return id + "_"
	}
	return id
}

// generatedName matches the v0, v1, ... and t0, t1, ... names of values and temporaries.
func generatedName(id string) bool {
	if len(id) < 2 || (id[0] != 'v' && id[0] != 't') {
		return false
	}
	for _, c := range id[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (u *usage) literal(l ir.Literal) (string, error) {
	switch l.Kind {
	case ir.LitInt:
		u.include("<cstdint>")
		if l.Int == math.MinInt64 {
			return "INT64_MIN", nil
		}
		return "INT64_C(" + strconv.FormatInt(l.Int, 10) + ")", nil
	case ir.LitFloat:
		return u.floatLiteral(l.Float), nil
	case ir.LitBool:
		if l.Bool {
			return "true", nil
		}
		return "false", nil
	case ir.LitStr:
		u.include("<string>")
		return cppString(l.Str), nil
	}
	return "", fmt.Errorf("no C++ value for literal %v", l)
}

func (u *usage) floatLiteral(v float64) string {
	switch {
	case math.IsNaN(v):
		u.include("<limits>")
		return "std::numeric_limits<double>::quiet_NaN()"
	case math.IsInf(v, 1):
		u.include("<limits>")
		return "std::numeric_limits<double>::infinity()"
	case math.IsInf(v, -1):
		u.include("<limits>")
		return "-std::numeric_limits<double>::infinity()"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// cppString quotes s as a std::string. Bytes outside printable ASCII are
// written as octal escapes, which never run into a following character.
func cppString(s string) string {
	sb := &strings.Builder{}
	sb.WriteString(`std::string("`)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(sb, `\%03o`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	if strings.IndexByte(s, 0) >= 0 {
		fmt.Fprintf(sb, ", %d", len(s))
	}
	sb.WriteByte(')')
	return sb.String()
}

var cppOperators = map[ir.Op]string{
	ir.OpAdd: "+",
	ir.OpSub: "-",
	ir.OpMul: "*",
	ir.OpEq:  "==",
	ir.OpNe:  "!=",
	ir.OpLt:  "<",
	ir.OpLe:  "<=",
	ir.OpGt:  ">",
	ir.OpGe:  ">=",
}

// dynamicOpCodes are the operator codes understood by py_dyn_arith and py_dyn_compare.
var dynamicOpCodes = map[ir.Op]byte{
	ir.OpAdd:      '+',
	ir.OpSub:      '-',
	ir.OpMul:      '*',
	ir.OpDiv:      '/',
	ir.OpFloorDiv: 'f',
	ir.OpMod:      '%',
	ir.OpPow:      'p',
	ir.OpEq:       '=',
	ir.OpNe:       '!',
	ir.OpLt:       '<',
	ir.OpLe:       'l',
	ir.OpGt:       '>',
	ir.OpGe:       'g',
}
