// Package compiler lowers a template's structural description into a
// finalized bytecode program.
//
// # Emission
//
// The Compiler is an append-only instruction buffer. Low level methods emit
// one instruction each (Text, OpenElement, Primitive, ...). Structural
// helpers bound regions of output that rehydration reconciles as a unit:
//
//   - Enter wraps a region in ENTER/EXIT; at render time the region is
//     bracketed by block markers.
//   - List emits the ENTER_LIST/ITERATE/EXIT_LIST skeleton of a keyed loop,
//     with break and else targets.
//   - Labelled and Unit open a private label scope, run a callback, then
//     patch every jump emitted inside it and close the scope.
//
// # Labels
//
// Jump operands are absolute instruction offsets. While compiling, a jump
// names a label instead; the operand is patched when the label scope that was
// open at the jump site is popped. A jump to a label never placed in that
// scope is a compile error, reported when the scope is popped. Labels of a
// closed scope are not visible to later jump sites.
//
// # Registers
//
// Local registers hold state that spans non-contiguous instructions of one
// construct, such as a component's state during invocation. WithLocal scopes
// a register to a callback and releases it when the callback returns.
//
// # Finalization
//
// Instruction 0 is a HEADER reserved at construction. Finalize writes the
// register high-water mark and the symbol count into it, appends CLEANUP and
// returns the immutable program. A compiler cannot be used after Finalize.
package compiler

import (
	"github.com/deepnoodle-ai/rehydra/ast"
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/env"
	"github.com/deepnoodle-ai/rehydra/errors"
	"github.com/deepnoodle-ai/rehydra/op"
	"github.com/hashicorp/go-multierror"
)

// Placeholder is a temporary operand written for a label reference, which is
// always replaced before compilation is complete.
const Placeholder = ^uint32(0)

// Compiler is used to compile templates into bytecode programs.
type Compiler struct {
	name         string
	instructions []bytecode.Instruction
	locations    []bytecode.SourceLocation
	pool         *pool
	labels       labelTable
	symbols      *symbolTable
	registers    registerFile

	// Helpers bound into the pool at compile time
	helpers map[string]env.Helper

	// Set on a compilation error
	failure *multierror.Error

	// Location of the node currently being lowered
	location bytecode.SourceLocation

	finalized bool
}

// Config holds compiler configuration options.
type Config struct {
	// Name of the compiled unit, used in errors and disassembly.
	Name string

	// Helpers are bound into the program as function references. Helpers
	// not listed here are resolved by name when the program runs.
	Helpers map[string]env.Helper
}

// Compile lowers the template and returns its finalized program. Pass nil
// for cfg to use default settings.
func Compile(t *ast.Template, cfg *Config) (*bytecode.Program, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Name == "" {
		cfg = &Config{Name: t.Name, Helpers: cfg.Helpers}
	}
	c := New(cfg)
	if err := c.CompileTemplate(t); err != nil {
		return nil, err
	}
	return c.Finalize()
}

// New creates a Compiler with the HEADER instruction reserved. Pass nil for
// cfg to use defaults.
func New(cfg *Config) *Compiler {
	c := &Compiler{
		name:    "main",
		pool:    newPool(),
		symbols: newSymbolTable(),
		helpers: map[string]env.Helper{},
	}
	if cfg != nil {
		if cfg.Name != "" {
			c.name = cfg.Name
		}
		for name, fn := range cfg.Helpers {
			c.helpers[name] = fn
		}
	}
	c.Emit(op.Header, 0, 0)
	return c
}

// Name returns the name of the unit being compiled.
func (c *Compiler) Name() string {
	return c.name
}

// Position returns the offset the next instruction will be written at.
func (c *Compiler) Position() int {
	return len(c.instructions)
}

// Err returns the faults recorded so far, or nil.
func (c *Compiler) Err() error {
	if c.failure == nil {
		return nil
	}
	c.failure.ErrorFormat = errors.ListFormat
	return c.failure.ErrorOrNil()
}

func (c *Compiler) fail(err error) {
	if cerr, ok := err.(*errors.CompileError); ok && cerr.Unit == "" {
		cerr.Unit = c.name
		if cerr.Line == 0 && !c.location.IsZero() {
			cerr.Line, cerr.Column = c.location.Line, c.location.Column
		}
	}
	c.failure = multierror.Append(c.failure, err)
}

// Emit appends one instruction and returns its offset. A wrong operand
// count panics: it is always a defect in the caller.
func (c *Compiler) Emit(code op.Code, operands ...uint32) int {
	if c.finalized {
		c.fail(errors.NewCompileError(errors.E2009, "emit %s after finalize", code))
		return -1
	}
	pos := len(c.instructions)
	c.instructions = append(c.instructions, bytecode.NewInstruction(code, operands...))
	c.locations = append(c.locations, c.location)
	return pos
}

// emitRegister emits an instruction whose first operand is a register,
// failing when the register has already been released.
func (c *Compiler) emitRegister(code op.Code, reg Register, operands ...uint32) int {
	if !c.registers.live(reg) {
		c.fail(errors.NewCompileError(errors.E2005, "%s references released register r%d", code, reg))
	}
	return c.Emit(code, append([]uint32{uint32(reg)}, operands...)...)
}

// emitJump emits an instruction whose operands refer to labels, one label
// per operand slot. Labelled operands are written as placeholders and patched
// when the scope is popped; an empty label leaves its operand zero.
func (c *Compiler) emitJump(code op.Code, labels ...string) int {
	operands := make([]uint32, len(labels))
	for i, label := range labels {
		if label != "" {
			operands[i] = Placeholder
		}
	}
	pos := c.Emit(code, operands...)
	if pos < 0 {
		return pos
	}
	for i, label := range labels {
		if label == "" {
			continue
		}
		if err := c.labels.reference(pos, i, label); err != nil {
			c.fail(err)
		}
	}
	return pos
}

func (c *Compiler) changeOperand(at, operand int, value uint32) {
	c.instructions[at].Operands[operand] = value
}

// Label places a label at the current position in the open label scope.
func (c *Compiler) Label(name string) {
	if err := c.labels.place(name, c.Position()); err != nil {
		c.fail(err)
	}
}

// Jump emits an unconditional jump to a label.
func (c *Compiler) Jump(label string) {
	c.emitJump(op.Jump, label)
}

// JumpIf emits a jump taken when the popped value is truthy.
func (c *Compiler) JumpIf(label string) {
	c.emitJump(op.JumpIf, label)
}

// JumpUnless emits a jump taken when the popped value is falsy.
func (c *Compiler) JumpUnless(label string) {
	c.emitJump(op.JumpUnless, label)
}

func (c *Compiler) str(s string) uint32 {
	h, err := c.pool.str(s)
	if err != nil {
		c.fail(err)
	}
	return h
}

func (c *Compiler) strArray(values []string) uint32 {
	h, err := c.pool.stringArray(values)
	if err != nil {
		c.fail(err)
	}
	return h
}

// namespace encodes an optional namespace as a string handle plus one, so
// that zero means "no namespace".
func (c *Compiler) namespace(ns string) uint32 {
	if ns == "" {
		return 0
	}
	return c.str(ns) + 1
}

// Primitive emits an instruction that pushes a literal.
func (c *Compiler) Primitive(p bytecode.Primitive) {
	var tag, payload uint32
	var err error
	switch p.Kind() {
	case bytecode.PrimitiveNumber:
		n := p.NumberValue()
		if bytecode.IsImmediateNumber(n) {
			tag, payload = bytecode.TagImmediate, uint32(n)
		} else {
			tag = bytecode.TagNumber
			payload, err = c.pool.number(n)
		}
	case bytecode.PrimitiveString:
		tag = bytecode.TagString
		payload, err = c.pool.str(p.StringValue())
	case bytecode.PrimitiveBool:
		tag, payload = bytecode.TagSingleton, bytecode.SingletonFalse
		if p.BoolValue() {
			payload = bytecode.SingletonTrue
		}
	case bytecode.PrimitiveNull:
		tag, payload = bytecode.TagSingleton, bytecode.SingletonNull
	case bytecode.PrimitiveUndefined:
		tag, payload = bytecode.TagSingleton, bytecode.SingletonUndefined
	default:
		c.fail(errors.NewCompileError(errors.E2004, "unsupported literal of kind %s", p.Kind()))
		return
	}
	if err != nil {
		c.fail(err)
		return
	}
	operand, err := bytecode.EncodeOperand(tag, payload)
	if err != nil {
		c.fail(errors.NewCompileError(errors.E2004, "%s", err))
		return
	}
	c.Emit(op.Primitive, operand)
}

// Constant emits an instruction that pushes an opaque host value.
func (c *Compiler) Constant(value any) {
	h, err := c.pool.value(value)
	if err != nil {
		c.fail(err)
		return
	}
	c.Emit(op.Constant, h)
}

// Text emits static text.
func (c *Compiler) Text(s string) {
	c.Emit(op.Text, c.str(s))
}

// Comment emits a static comment.
func (c *Compiler) Comment(s string) {
	if IsReservedComment(s) {
		c.fail(errors.NewCompileError(errors.E2007, "comment %q collides with the marker convention", s))
		return
	}
	c.Emit(op.Comment, c.str(s))
}

// OpenElement emits the start of an element. ns is empty for HTML.
func (c *Compiler) OpenElement(tag, ns string) {
	c.Emit(op.OpenElement, c.str(tag), c.namespace(ns))
}

// StaticAttr emits an attribute with a constant value.
func (c *Compiler) StaticAttr(name, value, ns string) {
	c.Emit(op.StaticAttr, c.str(name), c.str(value), c.namespace(ns))
}

// DynamicAttr emits an attribute whose value is popped from the stack.
func (c *Compiler) DynamicAttr(name, ns string) {
	c.Emit(op.DynamicAttr, c.str(name), c.namespace(ns))
}

// FlushElement ends the attributes of the open element.
func (c *Compiler) FlushElement() {
	c.Emit(op.FlushElement)
}

// CloseElement ends the open element.
func (c *Compiler) CloseElement() {
	c.Emit(op.CloseElement)
}

// Append emits an instruction that pops a value and appends it as text.
func (c *Compiler) Append() {
	c.Emit(op.AppendText)
}

// GetVariable pushes the value of a symbol slot.
func (c *Compiler) GetVariable(slot uint32) {
	c.Emit(op.GetVariable, slot)
}

// SetVariable pops a value into a symbol slot.
func (c *Compiler) SetVariable(slot uint32) {
	c.Emit(op.SetVariable, slot)
}

// GetProperty replaces the top of the stack with one of its properties.
func (c *Compiler) GetProperty(name string) {
	c.Emit(op.GetProperty, c.str(name))
}

// Finalize writes the header, appends CLEANUP and returns the program. Any
// fault recorded during compilation is returned instead.
func (c *Compiler) Finalize() (*bytecode.Program, error) {
	if c.finalized {
		return nil, errors.NewCompileError(errors.E2009, "program %q is already finalized", c.name)
	}
	if depth := c.labels.depth(); depth != 0 {
		c.fail(errors.NewCompileError(errors.E2003, "%d label scope(s) still open at finalize", depth))
	}
	if c.registers.next != 0 {
		c.fail(errors.NewCompileError(errors.E2005, "%d register(s) still allocated at finalize", c.registers.next))
	}
	c.Emit(op.Cleanup)
	c.finalized = true
	if err := c.Err(); err != nil {
		return nil, err
	}
	c.instructions[0] = bytecode.NewInstruction(op.Header,
		uint32(c.registers.max), uint32(c.symbols.count()))
	return bytecode.NewProgram(bytecode.ProgramParams{
		Name:         c.name,
		Instructions: c.instructions,
		Constants:    c.pool.entries,
		Symbols:      c.symbols.names,
		Locations:    c.locations,
	})
}
