package ast

import (
	"fmt"
	"strings"
)

// FormatExpr renders e back to Python-like source text.
func FormatExpr(e Expr) string {
	switch e := e.(type) {
	case nil:
		return ""
	case *Name:
		return e.Id
	case *Constant:
		return e.String()
	case *BinOp:
		return fmt.Sprintf("(%s %s %s)", FormatExpr(e.Left), e.Op, FormatExpr(e.Right))
	case *UnaryOp:
		return e.Op.String() + FormatExpr(e.Operand)
	case *BoolOp:
		parts := make([]string, len(e.Values))
		for i, v := range e.Values {
			parts[i] = FormatExpr(v)
		}
		return "(" + strings.Join(parts, " "+e.Op.String()+" ") + ")"
	case *Compare:
		sb := &strings.Builder{}
		sb.WriteString(FormatExpr(e.Left))
		for i, op := range e.Ops {
			fmt.Fprintf(sb, " %s %s", op, FormatExpr(e.Comparators[i]))
		}
		return sb.String()
	case *Call:
		return FormatExpr(e.Func) + "(" + formatList(e.Args) + ")"
	case *Attribute:
		return FormatExpr(e.Value) + "." + e.Attr
	case *Subscript:
		return FormatExpr(e.Value) + "[" + FormatExpr(e.Index) + "]"
	case *List:
		return "[" + formatList(e.Elts) + "]"
	case *Tuple:
		if len(e.Elts) == 1 {
			return "(" + FormatExpr(e.Elts[0]) + ",)"
		}
		return "(" + formatList(e.Elts) + ")"
	case *SetDisplay:
		return "{" + formatList(e.Elts) + "}"
	case *Dict:
		parts := make([]string, len(e.Keys))
		for i := range e.Keys {
			parts[i] = FormatExpr(e.Keys[i]) + ": " + FormatExpr(e.Values[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *UnsupportedExpr:
		return "<" + e.Kind + ">"
	}
	return fmt.Sprintf("<%T>", e)
}

func formatList(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = FormatExpr(e)
	}
	return strings.Join(parts, ", ")
}

// FormatStmt renders s, and any nested block, as indented source lines.
func FormatStmt(s Stmt, indent int) []string {
	pad := strings.Repeat("    ", indent)
	line := func(format string, args ...any) string { return pad + fmt.Sprintf(format, args...) }
	block := func(header string, body []Stmt) []string {
		out := []string{line("%s", header)}
		for _, b := range body {
			out = append(out, FormatStmt(b, indent+1)...)
		}
		return out
	}

	switch s := s.(type) {
	case *Assign:
		return []string{line("%s = %s", FormatExpr(s.Target), FormatExpr(s.Value))}
	case *AugAssign:
		return []string{line("%s %s= %s", FormatExpr(s.Target), s.Op, FormatExpr(s.Value))}
	case *AnnAssign:
		if s.Value == nil {
			return []string{line("%s: %s", s.Target.Id, s.Annotation)}
		}
		return []string{line("%s: %s = %s", s.Target.Id, s.Annotation, FormatExpr(s.Value))}
	case *ExprStmt:
		return []string{line("%s", FormatExpr(s.X))}
	case *If:
		out := block("if "+FormatExpr(s.Test)+":", s.Body)
		if len(s.Orelse) > 0 {
			out = append(out, block("else:", s.Orelse)...)
		}
		return out
	case *While:
		return block("while "+FormatExpr(s.Test)+":", s.Body)
	case *For:
		return block(fmt.Sprintf("for %s in %s:", FormatExpr(s.Target), FormatExpr(s.Iter)), s.Body)
	case *Return:
		if s.Value == nil {
			return []string{line("return")}
		}
		return []string{line("return %s", FormatExpr(s.Value))}
	case *Pass:
		return []string{line("pass")}
	case *Break:
		return []string{line("break")}
	case *Continue:
		return []string{line("continue")}
	case *UnsupportedStmt:
		return []string{line("<%s>", s.Kind)}
	}
	return []string{line("<%T>", s)}
}

// FormatFunction renders the whole function definition.
func FormatFunction(f *FunctionDef) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Name
		if p.Annotation != "" {
			params[i] += ": " + p.Annotation
		}
	}
	header := fmt.Sprintf("def %s(%s)", f.Name, strings.Join(params, ", "))
	if f.Returns != "" {
		header += " -> " + f.Returns
	}
	lines := []string{header + ":"}
	for _, s := range f.Body {
		lines = append(lines, FormatStmt(s, 1)...)
	}
	return strings.Join(lines, "\n")
}
