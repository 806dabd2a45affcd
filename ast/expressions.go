package ast

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/rehydra/bytecode"
)

// Literal is a primitive value chosen at the call site.
type Literal struct {
	Loc
	Value bytecode.Primitive
}

func (x *Literal) exprNode() {}

func (x *Literal) String() string { return x.Value.String() }

// Str returns a string literal.
func Str(s string) *Literal { return &Literal{Value: bytecode.String(s)} }

// Num returns a number literal.
func Num(n float64) *Literal { return &Literal{Value: bytecode.Number(n)} }

// Bool returns a boolean literal.
func Bool(b bool) *Literal { return &Literal{Value: bytecode.Bool(b)} }

// Path reads a value and follows property names. Head is "this", a local
// symbol introduced by a block parameter or let binding, or an "@name"
// argument.
type Path struct {
	Loc
	Head string
	Tail []string
}

func (x *Path) exprNode() {}

func (x *Path) String() string {
	if len(x.Tail) == 0 {
		return x.Head
	}
	return x.Head + "." + strings.Join(x.Tail, ".")
}

// NewPath splits a dotted path such as "this.user.name" or "@title". A path
// without an explicit head reads from "this" unless its first segment is
// bound locally, which the compiler decides.
func NewPath(dotted string) *Path {
	parts := strings.Split(dotted, ".")
	return &Path{Head: parts[0], Tail: parts[1:]}
}

// Call invokes a named helper with positional and named arguments.
type Call struct {
	Loc
	Helper     string
	Positional []Expr
	Named      []NamedArg
}

func (x *Call) exprNode() {}

func (x *Call) String() string {
	return "(" + callString(x.Helper, x.Positional, x.Named) + ")"
}

// DynamicVar reads a value from the dynamic scope.
type DynamicVar struct {
	Loc
	Name string
}

func (x *DynamicVar) exprNode() {}

func (x *DynamicVar) String() string { return fmt.Sprintf("(-get-dynamic-var %q)", x.Name) }

// Concat joins the string forms of its parts, as used by interpolated
// attribute values like class="a {{b}}".
type Concat struct {
	Loc
	Parts []Expr
}

func (x *Concat) exprNode() {}

func (x *Concat) String() string {
	var b strings.Builder
	b.WriteString("(concat")
	for _, p := range x.Parts {
		b.WriteString(" ")
		b.WriteString(p.String())
	}
	b.WriteString(")")
	return b.String()
}

// Opaque embeds a host value in the program. Values are stored by identity
// in the constant pool.
type Opaque struct {
	Loc
	Value any
}

func (x *Opaque) exprNode() {}

func (x *Opaque) String() string { return fmt.Sprintf("<opaque %T>", x.Value) }

func callString(name string, positional []Expr, named []NamedArg) string {
	var b strings.Builder
	b.WriteString(name)
	for _, p := range positional {
		b.WriteString(" ")
		b.WriteString(p.String())
	}
	for _, n := range named {
		b.WriteString(" ")
		b.WriteString(n.Name)
		b.WriteString("=")
		b.WriteString(n.Value.String())
	}
	return b.String()
}
