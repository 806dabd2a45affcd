package vm

import (
	"context"

	"github.com/deepnoodle-ai/rehydra/builder"
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/dom"
	"github.com/deepnoodle-ai/rehydra/errors"
	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
)

// Result is a handle on the output of a render. It can re-render the same
// program over its own output and tear it down. A Result is not safe for
// concurrent use.
type Result struct {
	// ID identifies the render in logs.
	ID uuid.UUID

	vm          *VirtualMachine
	program     *bytecode.Program
	doc         *dom.Document
	bounds      builder.Bounds
	stats       builder.Stats
	destructors []destructor
	torn        bool
}

func newResult(vm *VirtualMachine, program *bytecode.Program, doc *dom.Document, p *pass) *Result {
	r := &Result{
		ID:      uuid.Must(uuid.NewV4()),
		vm:      vm,
		program: program,
		doc:     doc,
	}
	r.apply(p)
	vm.log.Debug().
		Str("render", r.ID.String()).
		Str("program", program.Name()).
		Int("created", p.stats.Created).
		Int("adopted", p.stats.Adopted).
		Int("removed", p.stats.Removed).
		Msg("render complete")
	return r
}

func (r *Result) apply(p *pass) {
	r.bounds = p.bounds
	r.stats = p.stats
	r.destructors = p.destructors
}

// Document returns the document the render wrote into.
func (r *Result) Document() *dom.Document {
	return r.doc
}

// Bounds returns the nodes written by the most recent pass.
func (r *Result) Bounds() builder.Bounds {
	return r.bounds
}

// Nodes returns the nodes the most recent pass wrote at its root.
func (r *Result) Nodes() []dom.Node {
	return r.bounds.Nodes(r.doc)
}

// Stats returns the builder statistics of the most recent pass.
func (r *Result) Stats() builder.Stats {
	return r.stats
}

// Rerender runs the program again over the output of the previous pass,
// adopting what still matches. Options are applied to the VM before the
// pass, so WithSelf and WithArgs change what is rendered. The destructors of
// the previous pass run first.
func (r *Result) Rerender(ctx context.Context, opts ...Option) error {
	if r.torn {
		return errors.ErrTornDown
	}
	if err := r.destroy(); err != nil {
		return err
	}
	r.vm.applyOptions(opts)
	logger := r.vm.log
	var targets []dom.Node
	for _, remote := range r.bounds.Remote {
		targets = append(targets, remote.Parent)
	}
	b := builder.NewRehydrate(r.doc, r.bounds.Parent, builder.Config{
		KeepMarkers: true,
		Targets:     targets,
		Logger:      &logger,
	})
	p, err := r.vm.render(ctx, r.program, b)
	if err != nil {
		return err
	}
	r.apply(p)
	r.vm.log.Debug().
		Str("render", r.ID.String()).
		Int("adopted", p.stats.Adopted).
		Int("removed", p.stats.Removed).
		Int("created", p.stats.Created).
		Msg("rerender complete")
	return nil
}

// Teardown runs every destructor in reverse order of registration and
// removes the rendered nodes from the document. Destructor errors are
// collected and returned together. The handle cannot be used afterwards.
func (r *Result) Teardown() error {
	if r.torn {
		return errors.ErrTornDown
	}
	r.torn = true
	err := r.destroy()
	var nodes []dom.Node
	nodes = append(nodes, r.bounds.Nodes(r.doc)...)
	for _, remote := range r.bounds.Remote {
		nodes = append(nodes, remote.Nodes(r.doc)...)
	}
	for _, n := range nodes {
		r.doc.Remove(n)
	}
	r.bounds = builder.Bounds{Parent: r.bounds.Parent}
	return err
}

func (r *Result) destroy() error {
	var result *multierror.Error
	for i := len(r.destructors) - 1; i >= 0; i-- {
		if err := r.destructors[i].fn(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	r.destructors = nil
	if result == nil {
		return nil
	}
	result.ErrorFormat = errors.ListFormat
	return result.ErrorOrNil()
}
