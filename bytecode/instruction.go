package bytecode

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/rehydra/op"
)

// MaxOperands is the number of operand slots in every instruction.
const MaxOperands = 3

// Instruction is a fixed-width instruction: an opcode and three operand
// slots. Opcodes that take fewer operands leave the trailing slots zero.
type Instruction struct {
	Op       op.Code
	Operands [MaxOperands]uint32
}

// NewInstruction builds an instruction, panicking when the operand count
// does not match the opcode. A mismatch is always a compiler defect.
func NewInstruction(code op.Code, operands ...uint32) Instruction {
	info := op.GetInfo(code)
	if info.Name == "" {
		panic(fmt.Sprintf("compile error: unknown opcode %d", code))
	}
	if len(operands) != info.OperandCount {
		panic(fmt.Sprintf("compile error: wrong operand count for %s (got %d, want %d)",
			info.Name, len(operands), info.OperandCount))
	}
	instr := Instruction{Op: code}
	copy(instr.Operands[:], operands)
	return instr
}

// A returns the first operand.
func (i Instruction) A() uint32 { return i.Operands[0] }

// B returns the second operand.
func (i Instruction) B() uint32 { return i.Operands[1] }

// C returns the third operand.
func (i Instruction) C() uint32 { return i.Operands[2] }

// String returns the instruction in assembly form, e.g. "JUMP 12".
func (i Instruction) String() string {
	info := op.GetInfo(i.Op)
	var b strings.Builder
	b.WriteString(i.Op.String())
	for j := 0; j < info.OperandCount; j++ {
		fmt.Fprintf(&b, " %d", i.Operands[j])
	}
	return b.String()
}
