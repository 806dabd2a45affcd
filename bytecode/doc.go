// Package bytecode provides immutable representations of compiled templates.
//
// This package defines the output of compilation: a [Program] holding a
// fixed-width instruction stream, a deduplicated constant [Pool] and the
// sizing metadata the VM needs to allocate a scope frame and a register
// window. These types are created once by the compiler and shared safely
// across goroutines and render passes.
//
// # Key Types
//
//   - [Program]: the finalized instruction stream of one template unit
//   - [Instruction]: one opcode plus up to three operands
//   - [Pool]: strings, numbers, handle arrays, opaque values, block and
//     function references, indexed by small integer handles
//   - [Primitive]: an explicit literal variant (number, string, boolean,
//     null, undefined) with its 32-bit operand encoding
//
// # Immutability Guarantees
//
// Constructors copy their input slices and all fields are unexported.
// Index-based accessors are used for every collection:
//
//	program.InstructionAt(0)
//	program.Pool().String(h)
//	program.SymbolAt(i)
package bytecode
