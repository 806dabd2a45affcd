package compiler

import (
	"strings"

	"github.com/deepnoodle-ai/rehydra/ast"
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/errors"
	"github.com/hashicorp/go-multierror"
)

// IsReservedComment reports whether comment text has the %...% form that
// rendering reserves for its own markers.
func IsReservedComment(text string) bool {
	return len(text) >= 2 && strings.HasPrefix(text, "%") && strings.HasSuffix(text, "%")
}

// validate reports every static fault of a template at once, before any
// instruction is emitted.
func validate(t *ast.Template) error {
	var result *multierror.Error
	report := func(n ast.Node, code errors.ErrorCode, format string, args ...any) {
		err := errors.NewCompileError(code, format, args...)
		err.Unit = t.Name
		if loc := n.Pos(); !loc.IsZero() {
			err.Line, err.Column = loc.Line, loc.Column
		}
		result = multierror.Append(result, err)
	}
	ast.Inspect(t, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Comment:
			if IsReservedComment(n.Value) {
				report(n, errors.E2007, "comment %q collides with the marker convention", n.Value)
			}
		case *ast.Literal:
			if n.Value.Kind() == bytecode.PrimitiveInvalid {
				report(n, errors.E2004, "unsupported literal of kind %s", n.Value.Kind())
			}
		case *ast.Element:
			if n.Tag == "" {
				report(n, errors.E2008, "element without a tag name")
			}
		case *ast.Attr:
			if n.Value == nil {
				report(n, errors.E2008, "attribute %q without a value", n.Name)
			}
		case *ast.Invoke:
			if n.Component == "" {
				report(n, errors.E2008, "component invocation without a name")
			}
		case *ast.Yield:
			if n.To != "" && n.To != "default" && n.To != "inverse" {
				report(n, errors.E2008, "yield to unknown block %q", n.To)
			}
		case *ast.If:
			if n.Cond == nil {
				report(n, errors.E2008, "if without a condition")
			}
		case *ast.Each:
			if n.Items == nil {
				report(n, errors.E2008, "each without items")
			}
			if len(n.Params) > 2 {
				report(n, errors.E2008, "each binds at most 2 parameters, got %d", len(n.Params))
			}
		case *ast.InElement:
			if n.Target == nil {
				report(n, errors.E2008, "in-element without a target")
			}
		}
		return true
	})
	if result == nil {
		return nil
	}
	result.ErrorFormat = errors.ListFormat
	return result
}
