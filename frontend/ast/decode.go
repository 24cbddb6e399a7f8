package ast

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decode reads a syntax tree dumped by the front end.
//
// The expected document is the JSON (or YAML) serialisation of Python's ast
// module: every node is a mapping with a "_type" key naming its class, the
// fields named as in Python, and optional lineno/col_offset/end_lineno/end_col_offset.
// Nodes outside the accepted subset decode to UnsupportedStmt/UnsupportedExpr,
// so that they fail only the function containing them.
func Decode(r io.Reader, file string) (*Module, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse AST document: %w", err)
	}
	d := &decoder{}
	root, ok := doc.(map[string]any)
	if !ok || d.kind(root) != "Module" {
		return nil, fmt.Errorf("AST document root must be a Module node")
	}
	m := &Module{Range: d.rangeOf(root), File: file, Name: moduleName(file)}
	if name, ok := root["name"].(string); ok && name != "" {
		m.Name = name
	}
	for _, raw := range d.list(root, "body") {
		node := d.node(raw)
		if d.kind(node) == "FunctionDef" {
			m.Functions = append(m.Functions, d.function(node))
			continue
		}
		m.Unsupported = append(m.Unsupported, &UnsupportedStmt{Range: d.rangeOf(node), Kind: "top-level " + d.kind(node)})
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

func moduleName(file string) string {
	base := file
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if base == "" {
		return "module"
	}
	return base
}

type decoder struct {
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) node(raw any) map[string]any {
	m, ok := raw.(map[string]any)
	if !ok {
		d.fail("expected an AST node, got %T", raw)
		return map[string]any{}
	}
	return m
}

func (d *decoder) kind(n map[string]any) string {
	k, _ := n["_type"].(string)
	return k
}

func (d *decoder) list(n map[string]any, field string) []any {
	raw, ok := n[field]
	if !ok || raw == nil {
		return nil
	}
	l, ok := raw.([]any)
	if !ok {
		d.fail("%s.%s: expected a list, got %T", d.kind(n), field, raw)
		return nil
	}
	return l
}

func (d *decoder) str(n map[string]any, field string) string {
	s, _ := n[field].(string)
	return s
}

func intField(n map[string]any, field string) int {
	switch v := n[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Python column offsets are 0-based, Position columns are 1-based.
func (d *decoder) rangeOf(n map[string]any) Range {
	r := Range{
		PosStart: Position{Line: intField(n, "lineno"), Col: intField(n, "col_offset") + 1},
		PosEnd:   Position{Line: intField(n, "end_lineno"), Col: intField(n, "end_col_offset") + 1},
	}
	if r.PosStart.Line == 0 {
		r.PosStart.Col = 0
	}
	if r.PosEnd.Line == 0 {
		r.PosEnd.Col = 0
	}
	return r
}

func (d *decoder) function(n map[string]any) *FunctionDef {
	f := &FunctionDef{Range: d.rangeOf(n), Name: d.str(n, "name")}
	if args, ok := n["args"].(map[string]any); ok {
		for _, raw := range d.list(args, "args") {
			a := d.node(raw)
			p := &Param{Range: d.rangeOf(a), Name: d.str(a, "arg")}
			if ann, ok := a["annotation"].(map[string]any); ok {
				p.Annotation = d.annotation(ann)
			}
			if inner, ok := strings.CutPrefix(p.Annotation, "Out["); ok && strings.HasSuffix(inner, "]") {
				p.Annotation = strings.TrimSuffix(inner, "]")
				p.Output = true
			}
			f.Params = append(f.Params, p)
		}
		for _, unsupported := range []string{"vararg", "kwarg"} {
			if args[unsupported] != nil {
				f.Body = append(f.Body, &UnsupportedStmt{Range: f.Range, Kind: unsupported + " parameter"})
			}
		}
		if len(d.list(args, "kwonlyargs")) > 0 || len(d.list(args, "defaults")) > 0 {
			f.Body = append(f.Body, &UnsupportedStmt{Range: f.Range, Kind: "default or keyword-only parameters"})
		}
	}
	if ret, ok := n["returns"].(map[string]any); ok {
		f.Returns = d.annotation(ret)
	}
	if len(d.list(n, "decorator_list")) > 0 {
		f.Body = append(f.Body, &UnsupportedStmt{Range: f.Range, Kind: "decorator"})
	}
	f.Body = append(f.Body, d.stmts(n, "body")...)
	return f
}

// annotation turns an annotation expression back into the text form types.Parse reads.
func (d *decoder) annotation(n map[string]any) string {
	switch d.kind(n) {
	case "Name":
		return d.str(n, "id")
	case "Attribute":
		if v, ok := n["value"].(map[string]any); ok {
			return d.annotation(v) + "." + d.str(n, "attr")
		}
	case "Constant":
		switch v := n["value"].(type) {
		case nil:
			return "None"
		case string:
			return v
		}
	case "Subscript":
		v, _ := n["value"].(map[string]any)
		s, _ := n["slice"].(map[string]any)
		if d.kind(s) == "Index" {
			s, _ = s["value"].(map[string]any)
		}
		return d.annotation(v) + "[" + d.annotation(s) + "]"
	case "Tuple":
		var parts []string
		for _, e := range d.list(n, "elts") {
			parts = append(parts, d.annotation(d.node(e)))
		}
		return strings.Join(parts, ", ")
	}
	return "<" + d.kind(n) + ">"
}

func (d *decoder) stmts(n map[string]any, field string) []Stmt {
	var out []Stmt
	for _, raw := range d.list(n, field) {
		out = append(out, d.stmt(d.node(raw)))
	}
	return out
}

func (d *decoder) stmt(n map[string]any) Stmt {
	r := d.rangeOf(n)
	switch k := d.kind(n); k {
	case "Assign":
		targets := d.list(n, "targets")
		if len(targets) != 1 {
			return &UnsupportedStmt{Range: r, Kind: "chained assignment"}
		}
		return &Assign{Range: r, Target: d.expr(targets[0]), Value: d.expr(n["value"])}
	case "AugAssign":
		op, ok := binOps[d.kind(d.node(n["op"]))]
		if !ok {
			return &UnsupportedStmt{Range: r, Kind: "augmented " + d.kind(d.node(n["op"]))}
		}
		return &AugAssign{Range: r, Target: d.expr(n["target"]), Op: op, Value: d.expr(n["value"])}
	case "AnnAssign":
		target, ok := d.expr(n["target"]).(*Name)
		if !ok {
			return &UnsupportedStmt{Range: r, Kind: "annotated non-name target"}
		}
		s := &AnnAssign{Range: r, Target: target, Annotation: d.annotation(d.node(n["annotation"]))}
		if n["value"] != nil {
			s.Value = d.expr(n["value"])
		}
		return s
	case "Expr":
		return &ExprStmt{Range: r, X: d.expr(n["value"])}
	case "If":
		return &If{Range: r, Test: d.expr(n["test"]), Body: d.stmts(n, "body"), Orelse: d.stmts(n, "orelse")}
	case "While":
		return &While{Range: r, Test: d.expr(n["test"]), Body: d.stmts(n, "body"), Orelse: d.stmts(n, "orelse")}
	case "For":
		return &For{Range: r, Target: d.expr(n["target"]), Iter: d.expr(n["iter"]), Body: d.stmts(n, "body"), Orelse: d.stmts(n, "orelse")}
	case "Return":
		s := &Return{Range: r}
		if n["value"] != nil {
			s.Value = d.expr(n["value"])
		}
		return s
	case "Pass":
		return &Pass{Range: r}
	case "Break":
		return &Break{Range: r}
	case "Continue":
		return &Continue{Range: r}
	case "":
		d.fail("statement node without _type at %v", r)
		return &UnsupportedStmt{Range: r, Kind: "unknown"}
	default:
		return &UnsupportedStmt{Range: r, Kind: k}
	}
}

var binOps = map[string]BinOpKind{
	"Add": Add, "Sub": Sub, "Mult": Mult, "Div": Div, "FloorDiv": FloorDiv, "Mod": Mod, "Pow": Pow,
}

var cmpOps = map[string]CmpOpKind{
	"Eq": Eq, "NotEq": NotEq, "Lt": Lt, "LtE": LtE, "Gt": Gt, "GtE": GtE, "In": In, "NotIn": NotIn,
}

var unaryOps = map[string]UnaryOpKind{"USub": USub, "UAdd": UAdd, "Not": Not}

func (d *decoder) exprs(n map[string]any, field string) []Expr {
	var out []Expr
	for _, raw := range d.list(n, field) {
		out = append(out, d.expr(raw))
	}
	return out
}

func (d *decoder) expr(raw any) Expr {
	n := d.node(raw)
	r := d.rangeOf(n)
	switch k := d.kind(n); k {
	case "Name":
		return &Name{Range: r, Id: d.str(n, "id")}
	case "Constant", "Num", "Str", "NameConstant":
		return d.constant(n, r)
	case "BinOp":
		op, ok := binOps[d.kind(d.node(n["op"]))]
		if !ok {
			return &UnsupportedExpr{Range: r, Kind: "operator " + d.kind(d.node(n["op"]))}
		}
		return &BinOp{Range: r, Left: d.expr(n["left"]), Op: op, Right: d.expr(n["right"])}
	case "UnaryOp":
		op, ok := unaryOps[d.kind(d.node(n["op"]))]
		if !ok {
			return &UnsupportedExpr{Range: r, Kind: "operator " + d.kind(d.node(n["op"]))}
		}
		return &UnaryOp{Range: r, Op: op, Operand: d.expr(n["operand"])}
	case "BoolOp":
		op := And
		if d.kind(d.node(n["op"])) == "Or" {
			op = Or
		}
		return &BoolOp{Range: r, Op: op, Values: d.exprs(n, "values")}
	case "Compare":
		c := &Compare{Range: r, Left: d.expr(n["left"]), Comparators: d.exprs(n, "comparators")}
		for _, raw := range d.list(n, "ops") {
			op, ok := cmpOps[d.kind(d.node(raw))]
			if !ok {
				return &UnsupportedExpr{Range: r, Kind: "comparison " + d.kind(d.node(raw))}
			}
			c.Ops = append(c.Ops, op)
		}
		return c
	case "Call":
		if len(d.list(n, "keywords")) > 0 {
			return &UnsupportedExpr{Range: r, Kind: "keyword arguments"}
		}
		return &Call{Range: r, Func: d.expr(n["func"]), Args: d.exprs(n, "args")}
	case "Attribute":
		return &Attribute{Range: r, Value: d.expr(n["value"]), Attr: d.str(n, "attr")}
	case "Subscript":
		slice := d.node(n["slice"])
		if d.kind(slice) == "Index" {
			slice = d.node(slice["value"])
		}
		if d.kind(slice) == "Slice" {
			return &UnsupportedExpr{Range: r, Kind: "slice"}
		}
		return &Subscript{Range: r, Value: d.expr(n["value"]), Index: d.expr(slice)}
	case "List":
		return &List{Range: r, Elts: d.exprs(n, "elts")}
	case "Tuple":
		return &Tuple{Range: r, Elts: d.exprs(n, "elts")}
	case "Set":
		return &SetDisplay{Range: r, Elts: d.exprs(n, "elts")}
	case "Dict":
		keys := d.list(n, "keys")
		out := &Dict{Range: r}
		for i, key := range keys {
			if key == nil {
				return &UnsupportedExpr{Range: r, Kind: "dict unpacking"}
			}
			out.Keys = append(out.Keys, d.expr(key))
			out.Values = append(out.Values, d.expr(d.list(n, "values")[i]))
		}
		return out
	case "":
		d.fail("expression node without _type at %v", r)
		return &UnsupportedExpr{Range: r, Kind: "unknown"}
	default:
		return &UnsupportedExpr{Range: r, Kind: k}
	}
}

func (d *decoder) constant(n map[string]any, r Range) Expr {
	v, ok := n["value"]
	if !ok {
		v = n["n"]
	}
	switch v := v.(type) {
	case nil:
		return &Constant{Range: r, Kind: NoneConst}
	case bool:
		return &Constant{Range: r, Kind: BoolConst, Bool: v}
	case int:
		return &Constant{Range: r, Kind: IntConst, Int: int64(v)}
	case int64:
		return &Constant{Range: r, Kind: IntConst, Int: v}
	case uint64:
		if v > math.MaxInt64 {
			return &UnsupportedExpr{Range: r, Kind: "integer literal beyond 64 bits"}
		}
		return &Constant{Range: r, Kind: IntConst, Int: int64(v)}
	case float64:
		return &Constant{Range: r, Kind: FloatConst, Float: v}
	case string:
		if s, ok := n["s"].(string); ok && v == "" {
			v = s
		}
		return &Constant{Range: r, Kind: StrConst, Str: v}
	}
	return &UnsupportedExpr{Range: r, Kind: fmt.Sprintf("constant of type %T", v)}
}
