package rehydra

import (
	"maps"

	"github.com/deepnoodle-ai/rehydra/builder"
	"github.com/deepnoodle-ai/rehydra/compiler"
	"github.com/deepnoodle-ai/rehydra/env"
	"github.com/deepnoodle-ai/rehydra/vm"
	"github.com/rs/zerolog"
)

// Option configures a compilation or render.
type Option func(*options)

type options struct {
	name          string
	helpers       map[string]env.Helper
	registry      *env.Registry
	self          any
	args          map[string]any
	dynamicVars   map[string]any
	logger        *zerolog.Logger
	observer      vm.Observer
	maxFrameDepth int
	keepMarkers   bool
	verifyMarkers bool
}

func collectOptions(opts ...Option) *options {
	o := &options{
		helpers:       map[string]env.Helper{},
		args:          map[string]any{},
		dynamicVars:   map[string]any{},
		keepMarkers:   true,
		verifyMarkers: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *options) compilerConfig() *compiler.Config {
	return &compiler.Config{Name: o.name, Helpers: o.helpers}
}

func (o *options) vmOpts() []vm.Option {
	opts := []vm.Option{
		vm.WithSelf(o.self),
		vm.WithArgs(o.args),
		vm.WithDynamicVars(o.dynamicVars),
	}
	if o.registry != nil {
		opts = append(opts, vm.WithRegistry(o.registry))
	}
	if o.logger != nil {
		opts = append(opts, vm.WithLogger(*o.logger))
	}
	if o.observer != nil {
		opts = append(opts, vm.WithObserver(o.observer))
	}
	if o.maxFrameDepth > 0 {
		opts = append(opts, vm.WithMaxFrameDepth(o.maxFrameDepth))
	}
	return opts
}

func (o *options) builderConfig() builder.Config {
	return builder.Config{KeepMarkers: o.keepMarkers, Logger: o.logger}
}

// WithName sets the name of the compiled unit, used in errors and
// disassembly. It defaults to the template's name.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithHelpers binds helpers into the program at compile time. This option is
// additive. Helpers not bound this way are looked up in the registry when
// the program runs.
func WithHelpers(helpers map[string]env.Helper) Option {
	return func(o *options) {
		maps.Copy(o.helpers, helpers)
	}
}

// WithRegistry supplies the helpers, modifiers and components a render can
// resolve by name.
func WithRegistry(registry *env.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithSelf sets the value "this" refers to in the root template.
func WithSelf(self any) Option {
	return func(o *options) {
		o.self = self
	}
}

// WithArgs provides the root template's @name arguments. This option is
// additive; if the same key is supplied more than once, the last value wins.
func WithArgs(args map[string]any) Option {
	return func(o *options) {
		maps.Copy(o.args, args)
	}
}

// WithDynamicVars provides values visible through the dynamic scope
// everywhere in the render. This option is additive.
func WithDynamicVars(vars map[string]any) Option {
	return func(o *options) {
		maps.Copy(o.dynamicVars, vars)
	}
}

// WithLogger sets the logger that receives render and rehydration events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithObserver sets an observer for VM execution events.
func WithObserver(observer vm.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithMaxFrameDepth limits how deeply component layouts and blocks may nest.
func WithMaxFrameDepth(depth int) Option {
	return func(o *options) {
		o.maxFrameDepth = depth
	}
}

// WithKeepMarkers controls whether Hydrate leaves marker comments in the
// document. Kept markers let the result be rehydrated again. Defaults to
// true.
func WithKeepMarkers(keep bool) Option {
	return func(o *options) {
		o.keepMarkers = keep
	}
}

// WithVerifyMarkers controls whether RenderToString checks that the markers
// it produced are balanced. Defaults to true.
func WithVerifyMarkers(verify bool) Option {
	return func(o *options) {
		o.verifyMarkers = verify
	}
}
