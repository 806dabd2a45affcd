package vm

import (
	"github.com/deepnoodle-ai/rehydra/bytecode"
)

type frameKind uint8

const (
	rootFrame frameKind = iota
	layoutFrame
	blockFrame
)

// frame is one executing unit: the root program, a component layout, or a
// yielded block. Each frame owns its scope slots and a window of the register
// file sized by its program's header.
type frame struct {
	kind     frameKind
	name     string
	program  *bytecode.Program
	returnPC int
	scope    []any
	regBase  int
	regCount int
}

func (f *frame) activate(kind frameKind, name string, program *bytecode.Program, returnPC, regBase int) {
	f.kind = kind
	f.name = name
	f.program = program
	f.returnPC = returnPC
	f.regBase = regBase
	f.regCount = program.Registers()
	f.scope = make([]any, program.SymbolCount())
}

// block is a compiled block body together with the scope it was created in.
// Yielding to it runs the body against a copy of that scope.
type block struct {
	program *bytecode.Program
	ref     *bytecode.BlockRef
	scope   []any
}

func (b *block) bind(scope []any, args []any) {
	copy(scope, b.scope)
	for i, slot := range b.ref.Params {
		if i < len(args) {
			scope[slot] = args[i]
		} else {
			scope[slot] = bytecode.UndefinedValue
		}
	}
}
