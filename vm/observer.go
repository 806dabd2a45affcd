package vm

import (
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/op"
)

// StepMode controls when OnStep callbacks are triggered.
type StepMode uint8

const (
	// StepAll calls OnStep for every instruction.
	StepAll StepMode = iota

	// StepNone never calls OnStep.
	StepNone

	// StepSampled calls OnStep every N instructions.
	StepSampled

	// StepOnLine calls OnStep when the source location changes.
	StepOnLine
)

// ObserverConfig specifies what events an observer wants to receive.
// Use NewObserverConfig() to create configs with safe defaults.
type ObserverConfig struct {
	// StepMode controls OnStep callback frequency.
	StepMode StepMode

	// SampleInterval is the number of instructions between OnStep calls
	// when StepMode is StepSampled. Values <= 0 are treated as 1.
	SampleInterval int

	// ObserveCalls enables OnCall callbacks.
	ObserveCalls bool

	// ObserveReturns enables OnReturn callbacks.
	ObserveReturns bool
}

// NewObserverConfig creates a config with safe defaults.
// ObserveCalls and ObserveReturns default to true.
func NewObserverConfig(mode StepMode) ObserverConfig {
	return ObserverConfig{
		StepMode:       mode,
		SampleInterval: 1000,
		ObserveCalls:   true,
		ObserveReturns: true,
	}
}

// NormalizeConfig validates and clamps config values.
func NormalizeConfig(cfg ObserverConfig) ObserverConfig {
	if cfg.StepMode == StepSampled && cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 1
	}
	return cfg
}

// Observer receives render events: instruction steps, and entry to and exit
// from component layouts and yielded blocks. Methods are called
// synchronously during the render. Returning false from any of them halts
// the render with an error.
type Observer interface {
	// Config returns the observer's configuration. Called once per render.
	Config() ObserverConfig

	OnStep(event StepEvent) bool
	OnCall(event CallEvent) bool
	OnReturn(event ReturnEvent) bool
}

// StepEvent describes a single instruction step.
type StepEvent struct {
	// Program is the name of the program being executed.
	Program string

	// PC is the offset of the instruction.
	PC int

	Opcode     op.Code
	OpcodeName string

	// Location is the template location the instruction was compiled from.
	Location bytecode.SourceLocation

	StackDepth int
	FrameDepth int
}

// CallEvent describes entry to a component layout or a yielded block.
type CallEvent struct {
	// Name is the component name, or "block" for a yielded block.
	Name string

	// ArgCount is the number of arguments passed.
	ArgCount int

	// FrameDepth is the call depth after the call.
	FrameDepth int
}

// ReturnEvent describes the end of a component layout or a yielded block.
type ReturnEvent struct {
	Name       string
	FrameDepth int
}

// NoOpObserver is an Observer implementation that does nothing. Embed it
// to provide defaults for the methods you don't need.
type NoOpObserver struct{}

func (NoOpObserver) Config() ObserverConfig {
	return NewObserverConfig(StepAll)
}

func (NoOpObserver) OnStep(StepEvent) bool     { return true }
func (NoOpObserver) OnCall(CallEvent) bool     { return true }
func (NoOpObserver) OnReturn(ReturnEvent) bool { return true }

var _ Observer = NoOpObserver{}

// stepper decides which steps are reported to an observer.
type stepper struct {
	cfg      ObserverConfig
	count    int
	location bytecode.SourceLocation
}

func (s *stepper) should(loc bytecode.SourceLocation) bool {
	switch s.cfg.StepMode {
	case StepAll:
		return true
	case StepSampled:
		s.count++
		if s.count >= s.cfg.SampleInterval {
			s.count = 0
			return true
		}
		return false
	case StepOnLine:
		if loc == s.location {
			return false
		}
		s.location = loc
		return true
	default:
		return false
	}
}
