package vm

import (
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/env"
)

// componentState is what a register holds while a component is invoked.
type componentState struct {
	def          *env.Definition
	defaultBlock *block
	inverseBlock *block
	args         env.Args
	state        any
	self         any
	layout       *bytecode.Program
}

// bindLayout fills the scope of a layout frame: self, the arguments the
// layout reads as @names, and the blocks it may yield to.
func (c *componentState) bindLayout(scope []any, layout *bytecode.Program) {
	for i := range scope {
		scope[i] = bytecode.UndefinedValue
	}
	scope[0] = c.self
	for name, value := range c.args.Named {
		if slot, ok := layout.Symbol("@" + name); ok {
			scope[slot] = value
		}
	}
	if slot, ok := layout.Symbol("&default"); ok {
		scope[slot] = c.defaultBlock
	}
	if slot, ok := layout.Symbol("&inverse"); ok {
		scope[slot] = c.inverseBlock
	}
}

// destructor tears down one piece of render state.
type destructor struct {
	name string
	fn   func() error
}
