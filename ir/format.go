package ir

import (
	"fmt"
	"strings"
)

func FormatModule(m *Module) string {
	parts := make([]string, len(m.Functions))
	for i, f := range m.Functions {
		parts[i] = FormatFunction(f)
	}
	return strings.Join(parts, "\n")
}

// FormatFunction prints f with its values named %base.version.
func FormatFunction(f *Function) string {
	return formatFunction(f, f.ValueName)
}

// CanonicalText prints f with values numbered by order of definition, so two functions
// that differ only in how their values are named print identically.
func CanonicalText(f *Function) string {
	numbers := map[ValueID]int{}
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			if d := i.Def(); d != NoValue {
				numbers[d] = len(numbers)
			}
		}
	}
	return formatFunction(f, func(v ValueID) string {
		if n, ok := numbers[v]; ok {
			return fmt.Sprintf("%%%d", n)
		}
		return "%?"
	})
}

func formatFunction(f *Function, name func(ValueID) string) string {
	sb := &strings.Builder{}
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%s: %v", p.Name, p.Type)
		if p.Output {
			params[i] = "out " + params[i]
		}
	}
	fmt.Fprintf(sb, "func %s(%s) -> %v {\n", f.Name, strings.Join(params, ", "), f.Return)
	for _, v := range f.Locals {
		fmt.Fprintf(sb, "  local %s: %v\n", v.Name, v.Type)
	}

	op := func(o Operand) string {
		if o.IsValue() {
			return name(o.Value)
		}
		return o.Lit.String()
	}
	preds := f.Preds()
	for _, b := range f.Blocks {
		formatBlock(sb, f, b, preds, name, op)
	}
	sb.WriteString("}\n")
	return sb.String()
}

// FormatBlocks prints only the given blocks of f, with the naming of FormatFunction.
func FormatBlocks(f *Function, ids []BlockID) string {
	sb := &strings.Builder{}
	op := func(o Operand) string {
		if o.IsValue() {
			return f.ValueName(o.Value)
		}
		return o.Lit.String()
	}
	preds := f.Preds()
	for _, id := range ids {
		formatBlock(sb, f, f.Blocks[id], preds, f.ValueName, op)
	}
	return sb.String()
}

func formatBlock(sb *strings.Builder, f *Function, b *Block, preds [][]BlockID, name func(ValueID) string, op func(Operand) string) {
	fmt.Fprintf(sb, "b%d:", b.ID)
	if len(preds[b.ID]) > 0 {
		fmt.Fprintf(sb, " ; preds %s", blockList(preds[b.ID]))
	}
	if b.IfMerge != NoBlock {
		fmt.Fprintf(sb, " ; merge b%d", b.IfMerge)
	}
	if l := b.Loop; l != nil {
		fmt.Fprintf(sb, " ; %s loop body b%d exit b%d", l.Kind, l.Body, l.Exit)
		if l.Test != b.ID {
			fmt.Fprintf(sb, " test b%d", l.Test)
		}
		if l.Latch != NoBlock {
			fmt.Fprintf(sb, " latch b%d", l.Latch)
		}
		if l.Kind == RangeLoop {
			fmt.Fprintf(sb, " range(%s, %s, %s)", op(l.Start), op(l.Stop), op(l.Step))
		}
		if l.Unroll > 0 {
			fmt.Fprintf(sb, " unroll %d", l.Unroll)
		}
	}
	sb.WriteString("\n")
	for _, i := range b.Instrs {
		sb.WriteString("  ")
		sb.WriteString(formatInstr(f, i, name, op))
		sb.WriteString("\n")
	}
	sb.WriteString("  ")
	sb.WriteString(formatTerm(b.Term, op))
	sb.WriteString("\n")
}

func formatInstr(f *Function, i Instr, name func(ValueID) string, op func(Operand) string) string {
	def := func(v ValueID, rhs string) string {
		return fmt.Sprintf("%s = %s : %v", name(v), rhs, f.Value(v).Type)
	}
	switch i := i.(type) {
	case *Load:
		return def(i.Dst, "load "+i.Var)
	case *Store:
		switch i.Kind {
		case StoreOutput:
			return fmt.Sprintf("store out %s, %s", i.Var, op(i.Val))
		case StoreElement:
			return fmt.Sprintf("store %s[%s], %s", op(i.Container), op(i.Index), op(i.Val))
		default:
			return fmt.Sprintf("store %s, %s", i.Var, op(i.Val))
		}
	case *BinOp:
		return def(i.Dst, fmt.Sprintf("%s %s, %s", i.Op, op(i.X), op(i.Y)))
	case *Call:
		args := make([]string, len(i.Args))
		for k, a := range i.Args {
			args[k] = op(a)
		}
		callee := i.Callee
		if i.Builtin {
			callee = "builtin." + callee
		}
		rhs := fmt.Sprintf("call %s(%s)", callee, strings.Join(args, ", "))
		if i.Dst == NoValue {
			return rhs
		}
		return def(i.Dst, rhs)
	case *Phi:
		edges := make([]string, len(i.Edges))
		for k, e := range i.Edges {
			edges[k] = fmt.Sprintf("[b%d: %s]", e.Pred, op(e.Val))
		}
		return def(i.Dst, "phi "+strings.Join(edges, " "))
	}
	return fmt.Sprintf("<unknown instruction %T>", i)
}

func formatTerm(t Terminator, op func(Operand) string) string {
	switch t := t.(type) {
	case *Branch:
		return fmt.Sprintf("br b%d", t.Target)
	case *CondBranch:
		return fmt.Sprintf("condbr %s, b%d, b%d", op(t.Cond), t.Then, t.Else)
	case *Return:
		if t.Val.IsZero() {
			return "ret"
		}
		return "ret " + op(t.Val)
	case nil:
		return "<no terminator>"
	}
	return fmt.Sprintf("<unknown terminator %T>", t)
}

func blockList(ids []BlockID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("b%d", id)
	}
	return strings.Join(parts, " ")
}
