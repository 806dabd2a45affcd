package env

import (
	"context"

	"github.com/deepnoodle-ai/rehydra/bytecode"
)

// Args are the arguments a component or helper is invoked with.
type Args struct {
	Positional []any
	Named      map[string]any
}

// Get returns a named argument, or nil.
func (a Args) Get(name string) any {
	return a.Named[name]
}

// Definition is a resolved component: the program rendered as its layout
// and the manager that owns its state.
type Definition struct {
	Name    string
	Layout  *bytecode.Program
	Manager Manager
}

// Manager owns the lifecycle of component state. Calls happen in this order
// for each invocation: Create, Self, then DidCreate once the transaction the
// component was rendered in commits, and Destroy when the render is torn
// down.
type Manager interface {
	Create(ctx context.Context, args Args, dynamic *DynamicScope) (any, error)
	Self(state any) any
	DidCreate(state any) error
	Destroy(state any) error
}

// TemplateOnly is the manager of components that have a layout and no state.
// Their layout sees a null self and reads its arguments through @names.
type TemplateOnly struct{}

func (TemplateOnly) Create(context.Context, Args, *DynamicScope) (any, error) { return nil, nil }
func (TemplateOnly) Self(any) any                                             { return nil }
func (TemplateOnly) DidCreate(any) error                                      { return nil }
func (TemplateOnly) Destroy(any) error                                        { return nil }

// ManagerFuncs adapts plain functions to a Manager. A nil field falls back
// to a default: Create returns the named arguments, Self returns the state
// and the hooks do nothing.
type ManagerFuncs struct {
	CreateFunc    func(ctx context.Context, args Args, dynamic *DynamicScope) (any, error)
	SelfFunc      func(state any) any
	DidCreateFunc func(state any) error
	DestroyFunc   func(state any) error
}

func (m ManagerFuncs) Create(ctx context.Context, args Args, dynamic *DynamicScope) (any, error) {
	if m.CreateFunc == nil {
		return args.Named, nil
	}
	return m.CreateFunc(ctx, args, dynamic)
}

func (m ManagerFuncs) Self(state any) any {
	if m.SelfFunc == nil {
		return state
	}
	return m.SelfFunc(state)
}

func (m ManagerFuncs) DidCreate(state any) error {
	if m.DidCreateFunc == nil {
		return nil
	}
	return m.DidCreateFunc(state)
}

func (m ManagerFuncs) Destroy(state any) error {
	if m.DestroyFunc == nil {
		return nil
	}
	return m.DestroyFunc(state)
}
