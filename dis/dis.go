// Package dis supports analysis of compiled programs by disassembling them.
// Each instruction is annotated with the pool entries, symbols and jump
// targets its operands refer to.
package dis

import (
	"fmt"
	"io"
	"strings"

	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/internal/table"
	"github.com/deepnoodle-ai/rehydra/op"
	"github.com/fatih/color"
)

// Instruction represents a single instruction and its operands.
type Instruction struct {
	Offset     int
	Name       string
	Opcode     op.Code
	Operands   []uint32
	Annotation string
	Constant   any
}

// decoder resolves operands against one program, failing on handles that
// are out of range or of the wrong kind.
type decoder struct {
	program *bytecode.Program
	pool    *bytecode.Pool
}

func (d *decoder) entry(h uint32) (any, error) {
	if int(h) >= d.pool.Len() {
		return nil, fmt.Errorf("constant index out of range: %d", h)
	}
	return d.pool.At(h), nil
}

func (d *decoder) str(h uint32) (string, error) {
	e, err := d.entry(h)
	if err != nil {
		return "", err
	}
	s, ok := e.(string)
	if !ok {
		return "", fmt.Errorf("constant %d is not a string (%T)", h, e)
	}
	return s, nil
}

func (d *decoder) strs(h uint32) ([]string, error) {
	e, err := d.entry(h)
	if err != nil {
		return nil, err
	}
	handles, ok := e.([]uint32)
	if !ok {
		return nil, fmt.Errorf("constant %d is not an array (%T)", h, e)
	}
	out := make([]string, len(handles))
	for i, sh := range handles {
		if out[i], err = d.str(sh); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// namespace decodes an optional namespace operand (string handle plus one).
func (d *decoder) namespace(operand uint32) (string, error) {
	if operand == 0 {
		return "", nil
	}
	return d.str(operand - 1)
}

func (d *decoder) symbol(slot uint32) (string, error) {
	if int(slot) >= d.program.SymbolCount() {
		return "", fmt.Errorf("symbol index out of range: %d", slot)
	}
	return d.program.SymbolAt(int(slot)), nil
}

func (d *decoder) target(offset uint32) (string, error) {
	if int(offset) > d.program.InstructionCount() {
		return "", fmt.Errorf("jump target out of range: %d", offset)
	}
	return fmt.Sprintf("-> %d", offset), nil
}

func (d *decoder) primitive(operand uint32) (any, error) {
	tag, payload := bytecode.DecodeOperand(operand)
	switch tag {
	case bytecode.TagString:
		return d.str(payload)
	case bytecode.TagNumber:
		e, err := d.entry(payload)
		if err != nil {
			return nil, err
		}
		if _, ok := e.(float64); !ok {
			return nil, fmt.Errorf("constant %d is not a number (%T)", payload, e)
		}
	}
	return d.pool.Primitive(operand), nil
}

// named formats a list of named argument names.
func named(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return " named=[" + strings.Join(names, " ") + "]"
}

func (d *decoder) annotate(ins bytecode.Instruction) (string, any, error) {
	a, b, c := ins.A(), ins.B(), ins.C()
	switch ins.Op {
	case op.Header:
		return fmt.Sprintf("registers=%d symbols=%d", a, b), nil, nil
	case op.Jump, op.JumpIf, op.JumpUnless, op.Enter, op.Iterate:
		s, err := d.target(a)
		return s, nil, err
	case op.EnterList:
		key, err := d.str(a)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("key=%s else=%d end=%d", key, b, c), nil, nil
	case op.Primitive:
		v, err := d.primitive(a)
		return "", v, err
	case op.Constant:
		e, err := d.entry(a)
		if err != nil {
			return "", nil, err
		}
		if o, ok := e.(bytecode.Opaque); ok {
			return fmt.Sprintf("<%T>", o.Value), nil, nil
		}
		return "", nil, fmt.Errorf("constant %d is not an opaque value (%T)", a, e)
	case op.GetVariable, op.SetVariable:
		s, err := d.symbol(a)
		return s, nil, err
	case op.GetProperty, op.Text, op.Comment, op.GetDynamicVar:
		s, err := d.str(a)
		return "", s, err
	case op.OpenElement, op.DynamicAttr:
		name, err := d.str(a)
		if err != nil {
			return "", nil, err
		}
		ns, err := d.namespace(b)
		if err != nil || ns == "" {
			return name, nil, err
		}
		return ns + ":" + name, nil, nil
	case op.StaticAttr:
		name, err := d.str(a)
		if err != nil {
			return "", nil, err
		}
		value, err := d.str(b)
		if err != nil {
			return "", nil, err
		}
		if ns, err := d.namespace(c); err != nil {
			return "", nil, err
		} else if ns != "" {
			name = ns + ":" + name
		}
		return fmt.Sprintf("%s=%q", name, value), nil, nil
	case op.Helper, op.Modifier:
		e, err := d.entry(a)
		if err != nil {
			return "", nil, err
		}
		names, err := d.strs(c)
		if err != nil {
			return "", nil, err
		}
		switch fn := e.(type) {
		case *bytecode.Function:
			return "", fn, nil
		case string:
			return fn + named(names), nil, nil
		}
		return "", nil, fmt.Errorf("constant %d is not a helper (%T)", a, e)
	case op.BindDynamicScope:
		names, err := d.strs(a)
		return strings.Join(names, " "), nil, err
	case op.PushBlock:
		e, err := d.entry(a)
		if err != nil {
			return "", nil, err
		}
		ref, ok := e.(*bytecode.BlockRef)
		if !ok {
			return "", nil, fmt.Errorf("constant %d is not a block (%T)", a, e)
		}
		return fmt.Sprintf("block@%d params=%v", ref.Start, ref.Params), nil, nil
	case op.ResolveComponent:
		name, err := d.str(b)
		return fmt.Sprintf("r%d %s", a, name), nil, err
	case op.PushArgs:
		names, err := d.strs(c)
		return fmt.Sprintf("r%d", a) + named(names), nil, err
	case op.Load, op.Fetch, op.SetBlocks, op.CreateComponent, op.RegisterDestructor,
		op.ResolveLayout, op.InvokeLayout, op.DidRenderLayout:
		return fmt.Sprintf("r%d", a), nil, nil
	}
	return "", nil, nil
}

// Disassemble returns a parsed representation of the given program.
func Disassemble(program *bytecode.Program) ([]Instruction, error) {
	d := &decoder{program: program, pool: program.Pool()}
	instructions := make([]Instruction, 0, program.InstructionCount())
	for offset := 0; offset < program.InstructionCount(); offset++ {
		ins := program.InstructionAt(offset)
		info := op.GetInfo(ins.Op)
		if info.Name == "" {
			return nil, fmt.Errorf("unknown opcode %d at offset %d", ins.Op, offset)
		}
		annotation, constant, err := d.annotate(ins)
		if err != nil {
			return nil, fmt.Errorf("offset %d (%s): %w", offset, info.Name, err)
		}
		operands := make([]uint32, info.OperandCount)
		copy(operands, ins.Operands[:info.OperandCount])
		instructions = append(instructions, Instruction{
			Offset:     offset,
			Name:       info.Name,
			Opcode:     ins.Op,
			Operands:   operands,
			Annotation: annotation,
			Constant:   constant,
		})
	}
	return instructions, nil
}

var (
	bold    = color.New(color.Bold).SprintFunc()
	italic  = color.New(color.Italic).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	cyan    = color.New(color.FgHiCyan).SprintFunc()
)

// Print a string representation of the given instructions to the given writer.
func Print(instructions []Instruction, writer io.Writer) {
	var lines [][]string
	for _, instr := range instructions {
		var values []string
		values = append(values, fmt.Sprintf("%d", instr.Offset))
		values = append(values, bold(instr.Name))
		values = append(values, formatOperands(instr.Operands))
		switch c := instr.Constant.(type) {
		case nil:
			if instr.Annotation != "" {
				values = append(values, cyan(instr.Annotation))
			} else if instr.Opcode == op.Primitive {
				values = append(values, yellow("null"))
			} else {
				values = append(values, "")
			}
		case float64:
			values = append(values, yellow(fmt.Sprintf("%v", c)))
		case bool:
			values = append(values, yellow(fmt.Sprintf("%t", c)))
		case string:
			if len(c) > 80 {
				c = c[:77] + "..."
			}
			values = append(values, green(fmt.Sprintf("%q", c)))
		case *bytecode.Function:
			name := c.Name
			if name == "" {
				name = italic("<anonymous>")
			}
			values = append(values, magenta(fmt.Sprintf("func:%s", name)))
		default:
			values = append(values, bold(fmt.Sprintf("%v", c)))
		}
		lines = append(lines, values)
	}

	table.NewTable(writer).
		WithHeader([]string{"OFFSET", "OPCODE", "OPERANDS", "INFO"}).
		WithColumnAlignment([]table.Alignment{
			table.AlignRight,
			table.AlignLeft,
			table.AlignRight,
			table.AlignLeft,
		}).
		WithHeaderAlignment([]table.Alignment{
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
		}).
		WithRows(lines).
		Render()
}

func formatOperands(ops []uint32) string {
	var sb strings.Builder
	for i, op := range ops {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%d", op))
	}
	return sb.String()
}
