// Package vm provides a VirtualMachine that executes compiled render programs
// against a tree builder.
package vm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/rehydra/builder"
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/dom"
	"github.com/deepnoodle-ai/rehydra/env"
	"github.com/deepnoodle-ai/rehydra/errors"
	"github.com/deepnoodle-ai/rehydra/op"
	"github.com/rs/zerolog"
)

const (
	MaxFrameDepth = 1024
	MaxStackDepth = 1024
	StopSignal    = -1
)

// ErrObserverHalt is returned when an observer callback stops a render.
var ErrObserverHalt = fmt.Errorf("render halted by observer")

// region is an open ENTER/EXIT pair.
type region struct {
	end   int
	frame int
}

type VirtualMachine struct {
	pc            int // program counter
	sp            int // stack pointer
	fp            int // frame pointer
	lastPC        int
	activeFrame   *frame
	activeProgram *bytecode.Program
	stack         [MaxStackDepth]any
	frames        [MaxFrameDepth]frame
	registers     []any
	regions       []region
	lists         []*iterator
	running       bool

	// Per render
	builder     builder.Builder
	doc         *dom.Document
	dynamic     *env.DynamicScope
	tx          *env.Transaction
	destructors []destructor
	remotePaths map[string]int

	// Configured through options
	self          any
	args          map[string]any
	dynamicVars   map[string]any
	registry      *env.Registry
	log           zerolog.Logger
	maxFrameDepth int

	// observer receives callbacks for render events (steps, calls, returns).
	// If nil, no callbacks are made.
	observer Observer
	stepper  stepper
}

// New creates a new Virtual Machine.
func New(options ...Option) *VirtualMachine {
	vm := &VirtualMachine{
		sp:            -1,
		fp:            -1,
		args:          map[string]any{},
		dynamicVars:   map[string]any{},
		registry:      env.NewRegistry(),
		log:           zerolog.Nop(),
		maxFrameDepth: MaxFrameDepth,
	}
	vm.applyOptions(options)
	return vm
}

func (vm *VirtualMachine) applyOptions(options []Option) {
	for _, opt := range options {
		opt(vm)
	}
}

// Logger returns the logger the VM reports render events to.
func (vm *VirtualMachine) Logger() *zerolog.Logger {
	return &vm.log
}

// Render executes program against b and returns a handle on the result.
// Errors returned by helpers, modifiers and component managers are returned
// unmodified. Any other failure is a *errors.RenderError.
func (vm *VirtualMachine) Render(ctx context.Context, program *bytecode.Program, b builder.Builder) (*Result, error) {
	p, err := vm.render(ctx, program, b)
	if err != nil {
		return nil, err
	}
	return newResult(vm, program, b.Document(), p), nil
}

// pass is the outcome of one successful render.
type pass struct {
	bounds      builder.Bounds
	stats       builder.Stats
	destructors []destructor
}

func (vm *VirtualMachine) render(ctx context.Context, program *bytecode.Program, b builder.Builder) (p *pass, err error) {
	if vm.running {
		return nil, errors.NewRenderError(errors.E3006, "vm is already running")
	}
	vm.running = true
	vm.reset(b)

	// Set up some guarantees:
	// 1. The running flag will always be set to false when render returns
	// 2. Any panics are translated to errors
	// 3. State created by a failed render is torn down
	defer func() {
		if r := recover(); r != nil {
			err = vm.fault(r)
		}
		if err != nil {
			vm.abandon()
		}
		vm.running = false
	}()

	vm.pushFrame(rootFrame, program.Name(), program, StopSignal)
	vm.bindRoot(program)

	b.OpenBlock()
	if err := vm.eval(ctx); err != nil {
		return nil, vm.annotate(err)
	}
	b.CloseBlock()
	bounds := b.Finish()
	if vm.sp >= 0 {
		vm.log.Debug().Int("values", vm.sp+1).Str("program", program.Name()).Msg("values left on the stack")
	}
	if _, err := vm.tx.Commit(); err != nil {
		return nil, err
	}
	return &pass{bounds: bounds, stats: b.Stats(), destructors: vm.destructors}, nil
}

func (vm *VirtualMachine) reset(b builder.Builder) {
	for i := 0; i <= vm.sp && i < MaxStackDepth; i++ {
		vm.stack[i] = nil
	}
	vm.sp = -1
	vm.fp = -1
	vm.pc = 0
	vm.lastPC = 0
	vm.activeFrame = nil
	vm.activeProgram = nil
	vm.registers = vm.registers[:0]
	vm.regions = vm.regions[:0]
	vm.lists = vm.lists[:0]
	vm.builder = b
	vm.doc = b.Document()
	vm.dynamic = env.NewDynamicScope()
	for name, value := range vm.dynamicVars {
		vm.dynamic.Set(name, value)
	}
	vm.tx = env.NewTransaction()
	vm.destructors = nil
	vm.remotePaths = map[string]int{}
	if vm.observer != nil {
		vm.stepper = stepper{cfg: NormalizeConfig(vm.observer.Config())}
	}
}

// abandon runs the destructors of a render that failed part way.
func (vm *VirtualMachine) abandon() {
	for i := len(vm.destructors) - 1; i >= 0; i-- {
		d := vm.destructors[i]
		if err := d.fn(); err != nil {
			vm.log.Warn().Err(err).Str("component", d.name).Msg("destructor failed")
		}
	}
	vm.destructors = nil
}

func (vm *VirtualMachine) bindRoot(program *bytecode.Program) {
	scope := vm.activeFrame.scope
	for i := range scope {
		scope[i] = bytecode.UndefinedValue
	}
	scope[0] = vm.self
	for name, value := range vm.args {
		if slot, ok := program.Symbol("@" + name); ok {
			scope[slot] = value
		}
	}
}

// fault converts a recovered panic into an error.
func (vm *VirtualMachine) fault(r any) error {
	if err, ok := r.(*errors.RenderError); ok {
		return vm.annotate(err)
	}
	return vm.annotate(errors.NewRenderError(errors.E3006, "%v", r))
}

// annotate adds the failing instruction to a render error.
func (vm *VirtualMachine) annotate(err error) error {
	rerr, ok := err.(*errors.RenderError)
	if !ok || rerr.Offset >= 0 || vm.activeProgram == nil {
		return err
	}
	rerr.Program = vm.activeProgram.Name()
	rerr.Offset = vm.lastPC
	rerr.Opcode = vm.activeProgram.InstructionAt(vm.lastPC).Op.String()
	return rerr
}

// Evaluate the active program until the root frame ends. The root frame must
// be active with vm.pc at its first instruction.
func (vm *VirtualMachine) eval(ctx context.Context) error {
	for vm.pc != StopSignal {
		program := vm.activeProgram
		if vm.pc < 0 || vm.pc >= program.InstructionCount() {
			return errors.NewRenderError(errors.E3006, "program counter %d out of range", vm.pc)
		}
		vm.lastPC = vm.pc
		ins := program.InstructionAt(vm.pc)
		vm.pc++

		// Call observer if present
		if vm.observer != nil {
			loc := program.LocationAt(vm.lastPC)
			if vm.stepper.should(loc) {
				event := StepEvent{
					Program:    program.Name(),
					PC:         vm.lastPC,
					Opcode:     ins.Op,
					OpcodeName: ins.Op.String(),
					Location:   loc,
					StackDepth: vm.sp + 1,
					FrameDepth: vm.fp + 1,
				}
				if !vm.observer.OnStep(event) {
					return ErrObserverHalt
				}
			}
		}

		pool := program.Pool()
		b := vm.builder

		switch ins.Op {
		case op.Header, op.Nop:
		case op.Cleanup, op.Return:
			if err := vm.popFrame(); err != nil {
				return err
			}

		// Control flow
		case op.Jump:
			vm.pc = int(ins.A())
		case op.JumpIf:
			if env.Truthy(vm.pop()) {
				vm.pc = int(ins.A())
			}
		case op.JumpUnless:
			if !env.Truthy(vm.pop()) {
				vm.pc = int(ins.A())
			}
		case op.Enter:
			vm.regions = append(vm.regions, region{end: int(ins.A()), frame: vm.fp})
			b.OpenBlock()
		case op.Exit:
			if len(vm.regions) == 0 {
				return errors.NewRenderError(errors.E3006, "exit without an open region")
			}
			r := vm.regions[len(vm.regions)-1]
			vm.regions = vm.regions[:len(vm.regions)-1]
			if r.frame != vm.fp || r.end != vm.pc {
				return errors.NewRenderError(errors.E3006, "exit does not close the region ending at %d", r.end)
			}
			b.CloseBlock()
		case op.EnterList:
			value := vm.pop()
			items, ok := env.Items(value)
			if !ok {
				return errors.NewRenderError(errors.E3006, "cannot iterate over %T", value)
			}
			if len(items) == 0 {
				vm.pc = int(ins.B())
				break
			}
			it := newIterator(items, pool.String(ins.A()))
			if it.dupes > 0 {
				vm.log.Debug().Int("duplicates", it.dupes).Str("key", pool.String(ins.A())).Msg("duplicate list keys")
			}
			vm.lists = append(vm.lists, it)
			b.OpenBlock()
		case op.Iterate:
			if len(vm.lists) == 0 {
				return errors.NewRenderError(errors.E3006, "iterate without an open list")
			}
			item, index, ok := vm.lists[len(vm.lists)-1].next()
			if !ok {
				vm.pc = int(ins.A())
				break
			}
			vm.push(item)
			vm.push(float64(index))
		case op.ExitList:
			if len(vm.lists) == 0 {
				return errors.NewRenderError(errors.E3006, "exit list without an open list")
			}
			vm.lists = vm.lists[:len(vm.lists)-1]
			b.CloseBlock()

		// Values
		case op.Primitive:
			vm.push(pool.Primitive(ins.A()))
		case op.Pop:
			for i := uint32(0); i < ins.A(); i++ {
				vm.pop()
			}
		case op.Dup:
			vm.push(vm.top())
		case op.GetVariable:
			vm.push(vm.activeFrame.scope[vm.slot(ins.A())])
		case op.SetVariable:
			vm.activeFrame.scope[vm.slot(ins.A())] = vm.pop()
		case op.GetProperty:
			vm.push(env.Property(vm.pop(), pool.String(ins.A())))
		case op.Helper:
			fn, err := vm.helper(pool.At(ins.A()))
			if err != nil {
				return err
			}
			positional, named := vm.popArgs(int(ins.B()), pool.Strings(ins.C()))
			value, err := fn(ctx, positional, named)
			if err != nil {
				return err
			}
			vm.push(value)
		case op.Concat:
			parts := vm.popN(int(ins.A()))
			var sb strings.Builder
			for _, part := range parts {
				sb.WriteString(env.ToString(part))
			}
			vm.push(sb.String())
		case op.GetDynamicVar:
			value, ok := vm.dynamic.Get(pool.String(ins.A()))
			if !ok {
				value = bytecode.UndefinedValue
			}
			vm.push(value)
		case op.PushDynamicScope:
			vm.dynamic.Push()
		case op.PopDynamicScope:
			if !vm.dynamic.Pop() {
				return errors.NewRenderError(errors.E3006, "pop of the base dynamic scope")
			}
		case op.BindDynamicScope:
			names := pool.Strings(ins.A())
			values := vm.popN(len(names))
			for i, name := range names {
				vm.dynamic.Set(name, values[i])
			}
		case op.Load:
			vm.registers[vm.register(ins.A())] = vm.pop()
		case op.Fetch:
			vm.push(vm.registers[vm.register(ins.A())])
		case op.Constant:
			vm.push(pool.Value(ins.A()))

		// Tree construction
		case op.Text:
			b.AppendText(pool.String(ins.A()))
		case op.Comment:
			b.AppendComment(pool.String(ins.A()))
		case op.OpenElement:
			b.OpenElement(pool.String(ins.A()), namespace(pool, ins.B()))
		case op.StaticAttr:
			b.SetAttribute(pool.String(ins.A()), namespace(pool, ins.C()), pool.String(ins.B()))
		case op.DynamicAttr:
			name, ns := pool.String(ins.A()), namespace(pool, ins.B())
			switch value := vm.pop(); value {
			case nil, bytecode.UndefinedValue, false:
				b.RemoveAttribute(name, ns)
			case true:
				b.SetAttribute(name, ns, "")
			default:
				b.SetAttribute(name, ns, env.ToString(value))
			}
		case op.FlushElement:
			b.FlushElement()
		case op.CloseElement:
			b.CloseElement()
		case op.AppendText:
			b.AppendText(env.ToString(vm.pop()))
		case op.Modifier:
			if err := vm.modifier(pool.String(ins.A()), int(ins.B()), pool.Strings(ins.C())); err != nil {
				return err
			}
		case op.PushRemoteElement:
			insertBefore := vm.pop()
			if err := vm.pushRemote(vm.pop(), insertBefore); err != nil {
				return err
			}
		case op.PopRemoteElement:
			b.PopRemoteElement()

		// Blocks
		case op.PushBlock:
			scope := make([]any, len(vm.activeFrame.scope))
			copy(scope, vm.activeFrame.scope)
			vm.push(&block{program: program, ref: pool.Block(ins.A()), scope: scope})
		case op.PushNullBlock:
			vm.push((*block)(nil))
		case op.InvokeYield:
			args := vm.popN(int(ins.A()))
			if err := vm.yield(vm.pop(), args); err != nil {
				return err
			}

		// Components
		case op.ResolveComponent:
			name := pool.String(ins.B())
			def, ok := vm.registry.Component(name)
			if !ok {
				return errors.NewRenderError(errors.E3004, "unknown component %q%s",
					name, suggest(name, vm.registry.ComponentNames()))
			}
			vm.registers[vm.register(ins.A())] = &componentState{def: def}
		case op.SetBlocks:
			c := vm.component(ins.A())
			inverse, _ := vm.pop().(*block)
			def, _ := vm.pop().(*block)
			c.defaultBlock, c.inverseBlock = def, inverse
		case op.PushArgs:
			c := vm.component(ins.A())
			c.args.Positional, c.args.Named = vm.popArgs(int(ins.B()), pool.Strings(ins.C()))
		case op.CreateComponent:
			c := vm.component(ins.A())
			state, err := c.def.Manager.Create(ctx, c.args, vm.dynamic)
			if err != nil {
				return err
			}
			c.state = state
		case op.RegisterDestructor:
			c := vm.component(ins.A())
			manager, state := c.def.Manager, c.state
			vm.destructors = append(vm.destructors, destructor{
				name: c.def.Name,
				fn:   func() error { return manager.Destroy(state) },
			})
		case op.BeginTransaction:
			vm.tx = vm.tx.Begin()
		case op.CommitTransaction:
			if vm.tx.Parent() == nil {
				return errors.NewRenderError(errors.E3006, "commit of the render transaction")
			}
			tx, err := vm.tx.Commit()
			if err != nil {
				return err
			}
			vm.tx = tx
		case op.ResolveLayout:
			c := vm.component(ins.A())
			c.self = c.def.Manager.Self(c.state)
			c.layout = c.def.Layout
		case op.InvokeLayout:
			c := vm.component(ins.A())
			if c.layout == nil {
				break
			}
			if err := vm.call(layoutFrame, c.def.Name, c.layout, 0, len(c.args.Named)); err != nil {
				return err
			}
			c.bindLayout(vm.activeFrame.scope, c.layout)
		case op.DidRenderLayout:
			c := vm.component(ins.A())
			manager, state := c.def.Manager, c.state
			vm.tx.Schedule(func() error { return manager.DidCreate(state) })

		default:
			return errors.NewRenderError(errors.E3006, "unknown opcode %d", ins.Op)
		}
	}
	return nil
}

func namespace(pool *bytecode.Pool, operand uint32) string {
	if operand == 0 {
		return ""
	}
	return pool.String(operand - 1)
}

func suggest(name string, candidates []string) string {
	if s := errors.FormatSuggestions(errors.SuggestSimilar(name, candidates)); s != "" {
		return "; " + s
	}
	return ""
}

// helper resolves the first operand of a HELPER instruction: a function
// bound at compile time or a name looked up in the registry.
func (vm *VirtualMachine) helper(entry any) (env.Helper, error) {
	switch entry := entry.(type) {
	case *bytecode.Function:
		if fn, ok := entry.Fn.(env.Helper); ok {
			return fn, nil
		}
		if fn, ok := entry.Fn.(func(context.Context, []any, map[string]any) (any, error)); ok {
			return fn, nil
		}
		return nil, errors.NewRenderError(errors.E3003, "helper %q is a %T", entry.Name, entry.Fn)
	case string:
		if fn, ok := vm.registry.Helper(entry); ok {
			return fn, nil
		}
		return nil, errors.NewRenderError(errors.E3003, "unknown helper %q%s",
			entry, suggest(entry, vm.registry.HelperNames()))
	}
	return nil, errors.NewRenderError(errors.E3003, "invalid helper reference %T", entry)
}

func (vm *VirtualMachine) modifier(name string, argc int, names []string) error {
	fn, ok := vm.registry.Modifier(name)
	if !ok {
		return errors.NewRenderError(errors.E3005, "unknown modifier %q%s",
			name, suggest(name, vm.registry.ModifierNames()))
	}
	positional, named := vm.popArgs(argc, names)
	el := vm.builder.Constructing()
	if el == dom.Nil {
		return errors.NewRenderError(errors.E3006, "modifier %q outside an element", name)
	}
	doc := vm.doc
	vm.tx.Schedule(func() error {
		destroy, err := fn(doc, el, positional, named)
		if err != nil {
			return err
		}
		if destroy != nil {
			vm.destructors = append(vm.destructors, destructor{
				name: name,
				fn: func() error {
					destroy()
					return nil
				},
			})
		}
		return nil
	})
	return nil
}

func (vm *VirtualMachine) pushRemote(target, insertBefore any) error {
	node, ok := target.(dom.Node)
	if !ok || node == dom.Nil {
		return errors.NewRenderError(errors.E3009, "remote target is %T, not an element", target)
	}
	if vm.doc.Kind(node) != dom.ElementKind && vm.doc.Kind(node) != dom.FragmentKind {
		return errors.NewRenderError(errors.E3009, "remote target is a %s node", vm.doc.Kind(node))
	}
	var before dom.Node
	replace := false
	switch ib := insertBefore.(type) {
	case nil:
	case bytecode.UndefinedType:
		replace = true
	case dom.Node:
		before = ib
	default:
		return errors.NewRenderError(errors.E3009, "insertBefore is %T, not a node", insertBefore)
	}
	vm.builder.PushRemoteElement(vm.remoteID(), node, before, replace)
	return nil
}

// remoteID names a remote region by the path that reached it: the call
// sites of the active frames, the offset of the push instruction, and the
// position of every open list. Regions rendered earlier in the pass do not
// change the name. Repeats of one path are numbered in order.
func (vm *VirtualMachine) remoteID() string {
	var b strings.Builder
	for i := 1; i <= vm.fp; i++ {
		b.WriteString(strconv.Itoa(vm.frames[i].returnPC))
		b.WriteByte('.')
	}
	b.WriteString(strconv.Itoa(vm.lastPC))
	for _, it := range vm.lists {
		b.WriteString(".i")
		b.WriteString(strconv.Itoa(it.pos))
	}
	path := b.String()
	vm.remotePaths[path]++
	if n := vm.remotePaths[path]; n > 1 {
		return path + "#" + strconv.Itoa(n)
	}
	return path
}

func (vm *VirtualMachine) yield(value any, args []any) error {
	switch blk := value.(type) {
	case nil, bytecode.UndefinedType:
		return nil
	case *block:
		if blk == nil {
			return nil
		}
		if err := vm.call(blockFrame, "block", blk.program, blk.ref.Start, len(args)); err != nil {
			return err
		}
		blk.bind(vm.activeFrame.scope, args)
		return nil
	}
	return errors.NewRenderError(errors.E3006, "cannot yield to %T", value)
}

// call pushes a frame for a layout or a block and jumps to its first
// instruction.
func (vm *VirtualMachine) call(kind frameKind, name string, program *bytecode.Program, start, argc int) error {
	vm.pushFrame(kind, name, program, vm.pc)
	vm.pc = start
	if vm.observer != nil && vm.stepper.cfg.ObserveCalls {
		if !vm.observer.OnCall(CallEvent{Name: name, ArgCount: argc, FrameDepth: vm.fp + 1}) {
			return ErrObserverHalt
		}
	}
	return nil
}

func (vm *VirtualMachine) pushFrame(kind frameKind, name string, program *bytecode.Program, returnPC int) {
	if vm.fp+1 >= vm.maxFrameDepth {
		panic(errors.NewRenderError(errors.E3007, "frame depth %d exceeded", vm.maxFrameDepth))
	}
	vm.fp++
	f := &vm.frames[vm.fp]
	f.activate(kind, name, program, returnPC, len(vm.registers))
	for i := 0; i < f.regCount; i++ {
		vm.registers = append(vm.registers, nil)
	}
	vm.activeFrame = f
	vm.activeProgram = program
	vm.pc = 0
}

func (vm *VirtualMachine) popFrame() error {
	f := vm.activeFrame
	if f == nil {
		return errors.NewRenderError(errors.E3006, "return without an active frame")
	}
	for i := f.regBase; i < len(vm.registers); i++ {
		vm.registers[i] = nil
	}
	vm.registers = vm.registers[:f.regBase]
	kind, name := f.kind, f.name
	vm.pc = f.returnPC
	*f = frame{}
	vm.fp--
	if vm.fp >= 0 {
		vm.activeFrame = &vm.frames[vm.fp]
		vm.activeProgram = vm.activeFrame.program
	} else {
		vm.activeFrame = nil
	}
	if kind != rootFrame && vm.observer != nil && vm.stepper.cfg.ObserveReturns {
		if !vm.observer.OnReturn(ReturnEvent{Name: name, FrameDepth: vm.fp + 1}) {
			return ErrObserverHalt
		}
	}
	return nil
}

func (vm *VirtualMachine) slot(operand uint32) int {
	if int(operand) >= len(vm.activeFrame.scope) {
		panic(errors.NewRenderError(errors.E3006, "symbol slot %d out of range", operand))
	}
	return int(operand)
}

func (vm *VirtualMachine) register(operand uint32) int {
	if int(operand) >= vm.activeFrame.regCount {
		panic(errors.NewRenderError(errors.E3006, "register r%d out of range", operand))
	}
	return vm.activeFrame.regBase + int(operand)
}

func (vm *VirtualMachine) component(operand uint32) *componentState {
	c, ok := vm.registers[vm.register(operand)].(*componentState)
	if !ok {
		panic(errors.NewRenderError(errors.E3006, "register r%d does not hold a component", operand))
	}
	return c
}

// popArgs pops named values, then positional ones. Both are returned in
// the order they were pushed.
func (vm *VirtualMachine) popArgs(argc int, names []string) ([]any, map[string]any) {
	values := vm.popN(len(names))
	named := make(map[string]any, len(names))
	for i, name := range names {
		named[name] = values[i]
	}
	return vm.popN(argc), named
}

func (vm *VirtualMachine) popN(n int) []any {
	values := make([]any, n)
	for i := n - 1; i >= 0; i-- {
		values[i] = vm.pop()
	}
	return values
}

func (vm *VirtualMachine) top() any {
	if vm.sp < 0 {
		panic(errors.NewRenderError(errors.E3002, "stack underflow"))
	}
	return vm.stack[vm.sp]
}

func (vm *VirtualMachine) pop() any {
	if vm.sp < 0 {
		panic(errors.NewRenderError(errors.E3002, "stack underflow"))
	}
	obj := vm.stack[vm.sp]
	vm.stack[vm.sp] = nil
	vm.sp--
	return obj
}

func (vm *VirtualMachine) push(obj any) {
	if vm.sp+1 >= MaxStackDepth {
		panic(errors.NewRenderError(errors.E3001, "stack overflow"))
	}
	vm.sp++
	vm.stack[vm.sp] = obj
}
