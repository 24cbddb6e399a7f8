package ast

// Inspect traverses the tree rooted at n in depth-first order, calling f for every node.
// If f returns false the children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	inspectExprs := func(es ...Expr) {
		for _, e := range es {
			if e != nil {
				Inspect(e, f)
			}
		}
	}
	inspectStmts := func(ss []Stmt) {
		for _, s := range ss {
			Inspect(s, f)
		}
	}

	switch n := n.(type) {
	case *Assign:
		inspectExprs(n.Target, n.Value)
	case *AugAssign:
		inspectExprs(n.Target, n.Value)
	case *AnnAssign:
		Inspect(n.Target, f)
		inspectExprs(n.Value)
	case *ExprStmt:
		inspectExprs(n.X)
	case *If:
		inspectExprs(n.Test)
		inspectStmts(n.Body)
		inspectStmts(n.Orelse)
	case *While:
		inspectExprs(n.Test)
		inspectStmts(n.Body)
		inspectStmts(n.Orelse)
	case *For:
		inspectExprs(n.Target, n.Iter)
		inspectStmts(n.Body)
		inspectStmts(n.Orelse)
	case *Return:
		inspectExprs(n.Value)
	case *BinOp:
		inspectExprs(n.Left, n.Right)
	case *UnaryOp:
		inspectExprs(n.Operand)
	case *BoolOp:
		inspectExprs(n.Values...)
	case *Compare:
		inspectExprs(n.Left)
		inspectExprs(n.Comparators...)
	case *Call:
		inspectExprs(n.Func)
		inspectExprs(n.Args...)
	case *Attribute:
		inspectExprs(n.Value)
	case *Subscript:
		inspectExprs(n.Value, n.Index)
	case *List:
		inspectExprs(n.Elts...)
	case *Tuple:
		inspectExprs(n.Elts...)
	case *SetDisplay:
		inspectExprs(n.Elts...)
	case *Dict:
		inspectExprs(n.Keys...)
		inspectExprs(n.Values...)
	}
}

// Flatten lists every statement of body, nested ones included, in source order.
func Flatten(body []Stmt) []Stmt {
	var out []Stmt
	var walk func([]Stmt)
	walk = func(ss []Stmt) {
		for _, s := range ss {
			out = append(out, s)
			switch s := s.(type) {
			case *If:
				walk(s.Body)
				walk(s.Orelse)
			case *While:
				walk(s.Body)
				walk(s.Orelse)
			case *For:
				walk(s.Body)
				walk(s.Orelse)
			}
		}
	}
	walk(body)
	return out
}

// Mentions reports whether name occurs anywhere inside n.
// For compound statements only the header is considered, not the nested body.
func Mentions(n Node, name string) bool {
	found := false
	Inspect(n, func(c Node) bool {
		if found {
			return false
		}
		if c != n {
			if _, isStmt := c.(Stmt); isStmt {
				return false
			}
		}
		if id, ok := c.(*Name); ok && id.Id == name {
			found = true
		}
		return true
	})
	return found
}
