// Package rehydra compiles templates into bytecode programs and renders them
// into an HTML document, either creating every node or rehydrating markup
// that an earlier server-side render produced.
//
// A typical round trip renders on the server:
//
//	program, _ := rehydra.Compile(tmpl)
//	markup, _, _ := rehydra.RenderToString(ctx, program, rehydra.WithSelf(data))
//
// and adopts the parsed markup on the client:
//
//	doc, root, _ := rehydra.Parse(markup)
//	result, _ := rehydra.Hydrate(ctx, doc, root, program, rehydra.WithSelf(data))
//
// The returned vm.Result re-renders the same program over its own output and
// tears it down.
package rehydra

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/rehydra/ast"
	"github.com/deepnoodle-ai/rehydra/builder"
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/compiler"
	"github.com/deepnoodle-ai/rehydra/dom"
	"github.com/deepnoodle-ai/rehydra/vm"
)

// Compile lowers a template into an executable program. The returned
// Program is immutable and safe for concurrent use.
func Compile(t *ast.Template, opts ...Option) (*bytecode.Program, error) {
	o := collectOptions(opts...)
	return compiler.Compile(t, o.compilerConfig())
}

// Render executes program into root, creating every node. No markers are
// written, so the output cannot be rehydrated later.
func Render(ctx context.Context, doc *dom.Document, root dom.Node, program *bytecode.Program, opts ...Option) (*vm.Result, error) {
	o := collectOptions(opts...)
	return vm.Render(ctx, program, builder.NewCreate(doc, root, builder.Config{Logger: o.logger}), o.vmOpts()...)
}

// RenderToString executes program into a fresh document with markers and
// returns the serialized markup along with the render handle.
func RenderToString(ctx context.Context, program *bytecode.Program, opts ...Option) (string, *vm.Result, error) {
	o := collectOptions(opts...)
	doc := dom.NewDocument()
	root := doc.CreateElement("div", "")
	b := builder.NewCreate(doc, root, builder.Config{Serialize: true, Logger: o.logger})
	result, err := vm.Render(ctx, program, b, o.vmOpts()...)
	if err != nil {
		return "", nil, err
	}
	if o.verifyMarkers {
		if err := builder.VerifyMarkers(doc, root); err != nil {
			return "", nil, fmt.Errorf("unbalanced markers in %q: %w", program.Name(), err)
		}
	}
	markup, err := doc.InnerHTML(root)
	if err != nil {
		return "", nil, err
	}
	return markup, result, nil
}

// Hydrate executes program over the children of root, which must hold the
// markup of an earlier RenderToString of the same program. Matching nodes
// are adopted in place and the rest is repaired.
func Hydrate(ctx context.Context, doc *dom.Document, root dom.Node, program *bytecode.Program, opts ...Option) (*vm.Result, error) {
	o := collectOptions(opts...)
	return vm.Render(ctx, program, builder.NewRehydrate(doc, root, o.builderConfig()), o.vmOpts()...)
}

// Parse parses markup into a new document under a div root, following the
// HTML tree construction rules a browser applies to server output.
func Parse(markup string) (*dom.Document, dom.Node, error) {
	doc := dom.NewDocument()
	root := doc.CreateElement("div", "")
	if err := doc.ParseInto(root, markup); err != nil {
		return nil, dom.Nil, err
	}
	return doc, root, nil
}
