package ast

// Visitor defines the interface for traversal. If Visit returns nil,
// children of the node are not visited. Otherwise, the returned Visitor
// is used to visit children.
type Visitor interface {
	Visit(node Node) (w Visitor)
}

// Walk traverses a node in depth-first order. It starts by calling
// v.Visit(node); if the returned visitor w is not nil, Walk is invoked
// recursively with visitor w for each of the non-nil children of node.
func Walk(v Visitor, node Node) {
	if node == nil {
		return
	}
	if v = v.Visit(node); v == nil {
		return
	}
	switch n := node.(type) {
	case *Element:
		for _, a := range n.Attrs {
			Walk(v, a)
		}
		for _, m := range n.Modifiers {
			Walk(v, m)
		}
		walkStmts(v, n.Children)
	case *Attr:
		Walk(v, n.Value)
	case *Modifier:
		walkExprs(v, n.Positional)
		walkNamed(v, n.Named)
	case *Append:
		Walk(v, n.Value)
	case *If:
		Walk(v, n.Cond)
		walkStmts(v, n.Then)
		walkStmts(v, n.Else)
	case *Each:
		Walk(v, n.Items)
		walkStmts(v, n.Body)
		walkStmts(v, n.Inverse)
	case *Let:
		walkNamed(v, n.Bindings)
		walkStmts(v, n.Body)
	case *WithDynamicVars:
		walkNamed(v, n.Vars)
		walkStmts(v, n.Body)
	case *Invoke:
		walkNamed(v, n.Args)
		walkStmts(v, n.Body)
		walkStmts(v, n.Inverse)
	case *Yield:
		walkExprs(v, n.Args)
	case *InElement:
		Walk(v, n.Target)
		if n.InsertBefore != nil {
			Walk(v, n.InsertBefore)
		}
		walkStmts(v, n.Body)
	case *Call:
		walkExprs(v, n.Positional)
		walkNamed(v, n.Named)
	case *Concat:
		walkExprs(v, n.Parts)
	}
}

func walkStmts(v Visitor, stmts []Stmt) {
	for _, s := range stmts {
		Walk(v, s)
	}
}

func walkExprs(v Visitor, exprs []Expr) {
	for _, e := range exprs {
		Walk(v, e)
	}
}

func walkNamed(v Visitor, args []NamedArg) {
	for _, a := range args {
		Walk(v, a.Value)
	}
}

type inspector func(Node) bool

func (f inspector) Visit(node Node) Visitor {
	if f(node) {
		return f
	}
	return nil
}

// Inspect traverses every statement of a template in depth-first order,
// calling f for each node. If f returns false, the children of that node
// are skipped.
func Inspect(t *Template, f func(Node) bool) {
	for _, s := range t.Body {
		Walk(inspector(f), s)
	}
}
