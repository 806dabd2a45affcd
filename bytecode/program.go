package bytecode

import (
	"fmt"

	"github.com/deepnoodle-ai/rehydra/op"
)

// Program is the finalized instruction stream of one compiled template
// unit. It is immutable after creation and safe for concurrent use.
type Program struct {
	name         string
	instructions []Instruction
	pool         *Pool
	symbols      []string
	locations    []SourceLocation
}

// ProgramParams contains parameters for creating a new Program.
type ProgramParams struct {
	Name         string
	Instructions []Instruction
	Constants    []any
	Symbols      []string
	Locations    []SourceLocation
}

// NewProgram creates a new immutable Program from the given parameters.
// The first instruction must be a HEADER.
func NewProgram(params ProgramParams) (*Program, error) {
	if len(params.Instructions) == 0 || params.Instructions[0].Op != op.Header {
		return nil, fmt.Errorf("program %q is not finalized: missing header", params.Name)
	}
	instructions := make([]Instruction, len(params.Instructions))
	copy(instructions, params.Instructions)
	var locations []SourceLocation
	if len(params.Locations) > 0 {
		locations = make([]SourceLocation, len(params.Locations))
		copy(locations, params.Locations)
	}
	symbols := make([]string, len(params.Symbols))
	copy(symbols, params.Symbols)
	return &Program{
		name:         params.Name,
		instructions: instructions,
		pool:         NewPool(params.Constants),
		symbols:      symbols,
		locations:    locations,
	}, nil
}

// Name returns the name of the compiled unit.
func (p *Program) Name() string {
	return p.name
}

// InstructionCount returns the number of instructions, header included.
func (p *Program) InstructionCount() int {
	return len(p.instructions)
}

// InstructionAt returns the instruction at the given offset.
func (p *Program) InstructionAt(offset int) Instruction {
	return p.instructions[offset]
}

// Pool returns the constant pool.
func (p *Program) Pool() *Pool {
	return p.pool
}

// Registers returns the register high-water mark recorded in the header.
func (p *Program) Registers() int {
	return int(p.instructions[0].A())
}

// SymbolCount returns the size of the scope frame recorded in the header.
func (p *Program) SymbolCount() int {
	return int(p.instructions[0].B())
}

// SymbolAt returns the name of the symbol slot at index i. Slot 0 is
// always "this".
func (p *Program) SymbolAt(i int) string {
	if i < 0 || i >= len(p.symbols) {
		return ""
	}
	return p.symbols[i]
}

// Symbol returns the slot index of the named symbol.
func (p *Program) Symbol(name string) (int, bool) {
	for i, s := range p.symbols {
		if s == name {
			return i, true
		}
	}
	return 0, false
}

// LocationAt returns the source location for the instruction at offset.
func (p *Program) LocationAt(offset int) SourceLocation {
	if offset < 0 || offset >= len(p.locations) {
		return SourceLocation{}
	}
	return p.locations[offset]
}

// Stats returns statistics about the program.
func (p *Program) Stats() Stats {
	blocks := 0
	for i := 0; i < p.pool.Len(); i++ {
		if _, ok := p.pool.At(uint32(i)).(*BlockRef); ok {
			blocks++
		}
	}
	return Stats{
		InstructionCount: len(p.instructions),
		ConstantCount:    p.pool.Len(),
		SymbolCount:      p.SymbolCount(),
		RegisterCount:    p.Registers(),
		BlockCount:       blocks,
	}
}

// Stats contains statistics about a compiled program.
type Stats struct {
	InstructionCount int
	ConstantCount    int
	SymbolCount      int
	RegisterCount    int
	BlockCount       int
}
