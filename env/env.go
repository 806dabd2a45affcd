// Package env is the host environment a render runs against: the helpers,
// modifiers and components a program may reference by name, the arguments
// and dynamic scope passed to them, and the transactions that defer hooks
// until the structure they observe is fully attached.
package env

import (
	"context"
	"sort"

	"github.com/deepnoodle-ai/rehydra/dom"
)

// Helper computes a value from its arguments. Errors are returned to the
// caller of the render unmodified.
type Helper func(ctx context.Context, positional []any, named map[string]any) (any, error)

// Modifier is installed on an element once the transaction that created the
// element commits. The returned destroy func, if any, runs on teardown.
type Modifier func(doc *dom.Document, el dom.Node, positional []any, named map[string]any) (destroy func(), err error)

// Registry maps names to the helpers, modifiers and components available to
// a render.
type Registry struct {
	helpers    map[string]Helper
	modifiers  map[string]Modifier
	components map[string]*Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		helpers:    map[string]Helper{},
		modifiers:  map[string]Modifier{},
		components: map[string]*Definition{},
	}
}

// RegisterHelper adds or replaces a helper.
func (r *Registry) RegisterHelper(name string, fn Helper) *Registry {
	r.helpers[name] = fn
	return r
}

// RegisterModifier adds or replaces a modifier.
func (r *Registry) RegisterModifier(name string, fn Modifier) *Registry {
	r.modifiers[name] = fn
	return r
}

// RegisterComponent adds or replaces a component. The definition's Name is
// set to name.
func (r *Registry) RegisterComponent(name string, def *Definition) *Registry {
	def.Name = name
	r.components[name] = def
	return r
}

// Helper returns the helper registered under name.
func (r *Registry) Helper(name string) (Helper, bool) {
	fn, ok := r.helpers[name]
	return fn, ok
}

// Modifier returns the modifier registered under name.
func (r *Registry) Modifier(name string) (Modifier, bool) {
	fn, ok := r.modifiers[name]
	return fn, ok
}

// Component returns the component registered under name.
func (r *Registry) Component(name string) (*Definition, bool) {
	def, ok := r.components[name]
	return def, ok
}

// HelperNames returns the registered helper names in sorted order.
func (r *Registry) HelperNames() []string {
	return sortedKeys(r.helpers)
}

// ModifierNames returns the registered modifier names in sorted order.
func (r *Registry) ModifierNames() []string {
	return sortedKeys(r.modifiers)
}

// ComponentNames returns the registered component names in sorted order.
func (r *Registry) ComponentNames() []string {
	return sortedKeys(r.components)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
