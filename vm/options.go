package vm

import (
	"github.com/deepnoodle-ai/rehydra/env"
	"github.com/rs/zerolog"
)

// Option is a configuration function for a Virtual Machine.
type Option func(*VirtualMachine)

// WithSelf sets the value "this" refers to in the root program.
func WithSelf(self any) Option {
	return func(vm *VirtualMachine) {
		vm.self = self
	}
}

// WithArgs binds named arguments, read in the root program as @name.
func WithArgs(args map[string]any) Option {
	return func(vm *VirtualMachine) {
		for name, value := range args {
			vm.args[name] = value
		}
	}
}

// WithDynamicVars sets values visible through the dynamic scope everywhere
// in the render.
func WithDynamicVars(vars map[string]any) Option {
	return func(vm *VirtualMachine) {
		for name, value := range vars {
			vm.dynamicVars[name] = value
		}
	}
}

// WithRegistry sets the helpers, modifiers and components available to the
// render.
func WithRegistry(registry *env.Registry) Option {
	return func(vm *VirtualMachine) {
		vm.registry = registry
	}
}

// WithLogger sets the logger for render events. Builders created by the VM
// share it.
func WithLogger(logger zerolog.Logger) Option {
	return func(vm *VirtualMachine) {
		vm.log = logger
	}
}

// WithObserver sets an observer for render events.
//
// Observer methods are called synchronously during execution, so
// implementations should be fast to avoid impacting performance.
// Returning false from any observer method halts execution immediately.
func WithObserver(observer Observer) Option {
	return func(vm *VirtualMachine) {
		vm.observer = observer
	}
}

// WithMaxFrameDepth limits how deeply component layouts and blocks may nest.
// Values outside 1..MaxFrameDepth are ignored.
func WithMaxFrameDepth(depth int) Option {
	return func(vm *VirtualMachine) {
		if depth > 0 && depth <= MaxFrameDepth {
			vm.maxFrameDepth = depth
		}
	}
}
