package ast

import (
	"fmt"
	"strings"
)

// Text is static text content.
type Text struct {
	Loc
	Value string
}

func (x *Text) stmtNode() {}

func (x *Text) String() string { return x.Value }

// Comment is a static comment.
type Comment struct {
	Loc
	Value string
}

func (x *Comment) stmtNode() {}

func (x *Comment) String() string { return "<!--" + x.Value + "-->" }

// Element is an element with attributes, modifiers and children. Namespace
// is the element namespace ("svg", "math") or empty for HTML; children of
// an svg element inherit its namespace unless they set their own.
type Element struct {
	Loc
	Tag       string
	Namespace string
	Attrs     []*Attr
	Modifiers []*Modifier
	Children  []Stmt
}

func (x *Element) stmtNode() {}

func (x *Element) String() string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(x.Tag)
	for _, a := range x.Attrs {
		b.WriteString(" ")
		b.WriteString(a.String())
	}
	for _, m := range x.Modifiers {
		b.WriteString(" ")
		b.WriteString(m.String())
	}
	b.WriteString(">")
	for _, c := range x.Children {
		b.WriteString(c.String())
	}
	b.WriteString("</")
	b.WriteString(x.Tag)
	b.WriteString(">")
	return b.String()
}

// Attr is an attribute. A string Literal value is emitted as a static
// attribute; anything else is evaluated at render time. Namespace is the
// attribute namespace prefix, e.g. "xlink" for xlink:href.
type Attr struct {
	Loc
	Name      string
	Namespace string
	Value     Expr
}

func (x *Attr) String() string {
	name := x.Name
	if x.Namespace != "" {
		name = x.Namespace + ":" + name
	}
	if lit, ok := x.Value.(*Literal); ok {
		return fmt.Sprintf("%s=%s", name, lit.Value.String())
	}
	return fmt.Sprintf("%s={{%s}}", name, x.Value.String())
}

// Modifier attaches element behavior that is installed once the element is
// attached to the tree.
type Modifier struct {
	Loc
	Name       string
	Positional []Expr
	Named      []NamedArg
}

func (x *Modifier) String() string {
	return "{{" + callString(x.Name, x.Positional, x.Named) + "}}"
}

// Append renders the value of an expression as a text node.
type Append struct {
	Loc
	Value Expr
}

func (x *Append) stmtNode() {}

func (x *Append) String() string { return "{{" + x.Value.String() + "}}" }

// If renders Then when Cond is truthy and Else otherwise.
type If struct {
	Loc
	Cond Expr
	Then []Stmt
	Else []Stmt
}

func (x *If) stmtNode() {}

func (x *If) String() string {
	s := "{{#if " + x.Cond.String() + "}}" + stmtsString(x.Then)
	if len(x.Else) > 0 {
		s += "{{else}}" + stmtsString(x.Else)
	}
	return s + "{{/if}}"
}

// Each renders Body once per item of Items, or Inverse when there are no
// items. Key selects item identity: "@index", "@identity" or a property
// path. Params names the item and index locals.
type Each struct {
	Loc
	Items   Expr
	Key     string
	Params  []string
	Body    []Stmt
	Inverse []Stmt
}

func (x *Each) stmtNode() {}

func (x *Each) String() string {
	s := "{{#each " + x.Items.String()
	if x.Key != "" {
		s += fmt.Sprintf(" key=%q", x.Key)
	}
	if len(x.Params) > 0 {
		s += " as |" + strings.Join(x.Params, " ") + "|"
	}
	s += "}}" + stmtsString(x.Body)
	if len(x.Inverse) > 0 {
		s += "{{else}}" + stmtsString(x.Inverse)
	}
	return s + "{{/each}}"
}

// Let binds local names for the duration of Body.
type Let struct {
	Loc
	Bindings []NamedArg
	Body     []Stmt
}

func (x *Let) stmtNode() {}

func (x *Let) String() string {
	return "{{#let " + callString("", nil, x.Bindings) + "}}" + stmtsString(x.Body) + "{{/let}}"
}

// WithDynamicVars exposes Vars through the dynamic scope to everything
// rendered by Body, including nested component layouts.
type WithDynamicVars struct {
	Loc
	Vars []NamedArg
	Body []Stmt
}

func (x *WithDynamicVars) stmtNode() {}

func (x *WithDynamicVars) String() string {
	return "{{#-with-dynamic-vars " + callString("", nil, x.Vars) + "}}" +
		stmtsString(x.Body) + "{{/-with-dynamic-vars}}"
}

// Invoke renders a component by name. Args become the layout's "@name"
// arguments. Body and Inverse become the default and inverse blocks, and
// Params names the locals a yield to the default block binds.
type Invoke struct {
	Loc
	Component string
	Args      []NamedArg
	Params    []string
	Body      []Stmt
	Inverse   []Stmt
}

func (x *Invoke) stmtNode() {}

func (x *Invoke) String() string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(x.Component)
	for _, a := range x.Args {
		fmt.Fprintf(&b, " @%s={{%s}}", a.Name, a.Value.String())
	}
	if len(x.Params) > 0 {
		b.WriteString(" as |" + strings.Join(x.Params, " ") + "|")
	}
	if len(x.Body) == 0 && len(x.Inverse) == 0 {
		b.WriteString(" />")
		return b.String()
	}
	b.WriteString(">")
	b.WriteString(stmtsString(x.Body))
	b.WriteString("</")
	b.WriteString(x.Component)
	b.WriteString(">")
	return b.String()
}

// Yield invokes one of the blocks passed to the current component: "default"
// when To is empty, or "inverse".
type Yield struct {
	Loc
	To   string
	Args []Expr
}

func (x *Yield) stmtNode() {}

func (x *Yield) String() string {
	s := "{{yield"
	for _, a := range x.Args {
		s += " " + a.String()
	}
	if x.To != "" && x.To != "default" {
		s += fmt.Sprintf(" to=%q", x.To)
	}
	return s + "}}"
}

// InElement renders Body into the element Target evaluates to, rather than
// at the current insertion point. InsertBefore, when set, evaluates to a node
// of Target that content is placed before.
type InElement struct {
	Loc
	Target       Expr
	InsertBefore Expr
	Body         []Stmt
}

func (x *InElement) stmtNode() {}

func (x *InElement) String() string {
	return "{{#in-element " + x.Target.String() + "}}" + stmtsString(x.Body) + "{{/in-element}}"
}

func stmtsString(stmts []Stmt) string {
	var b strings.Builder
	for _, s := range stmts {
		b.WriteString(s.String())
	}
	return b.String()
}
