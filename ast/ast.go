// Package ast defines the structural description of a template unit: the
// content, element and control-flow nodes that the compiler lowers into a
// program. Parsing template source into this form happens elsewhere; callers
// build the tree directly.
package ast

import "github.com/deepnoodle-ai/rehydra/bytecode"

// Node represents a portion of a template. Nodes may carry the location of
// the source they were produced from.
type Node interface {
	// Pos returns the source location of the node, which may be zero.
	Pos() bytecode.SourceLocation

	// String returns a human friendly representation of the node, close to
	// handlebars-style template source.
	String() string
}

// Stmt represents a content node: something that contributes nodes to the
// output tree or controls which nodes are produced.
type Stmt interface {
	Node
	stmtNode()
}

// Expr represents an expression node that evaluates to a value.
type Expr interface {
	Node
	exprNode()
}

// Loc is embedded by nodes to record their source location.
type Loc struct {
	Location bytecode.SourceLocation
}

// Pos returns the recorded location.
func (l Loc) Pos() bytecode.SourceLocation { return l.Location }

// Template is one compiled unit: a top-level template or a component layout.
type Template struct {
	Name string
	Body []Stmt
}

// NamedArg is a name/value pair used for hash arguments, let bindings and
// dynamic variables.
type NamedArg struct {
	Name  string
	Value Expr
}
