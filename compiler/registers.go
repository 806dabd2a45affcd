package compiler

import (
	"github.com/deepnoodle-ai/rehydra/errors"
	"github.com/deepnoodle-ai/rehydra/op"
)

// Register is a local register of the VM, addressed relative to the register
// window of the frame executing the program.
type Register uint32

// registerFile allocates registers with a counter. Allocation is released in
// reverse order; WithLocal enforces that by scoping each register to the
// callback that uses it.
type registerFile struct {
	next int
	max  int
}

func (r *registerFile) allocate() Register {
	reg := Register(r.next)
	r.next++
	if r.next > r.max {
		r.max = r.next
	}
	return reg
}

func (r *registerFile) release(reg Register) error {
	if int(reg) != r.next-1 {
		return errors.NewCompileError(errors.E2005,
			"register r%d released out of order (next release must be r%d)", reg, r.next-1)
	}
	r.next--
	return nil
}

func (r *registerFile) live(reg Register) bool {
	return int(reg) < r.next
}

// Local allocates a register. The caller must Release it; prefer WithLocal,
// which cannot leak or release out of order.
func (c *Compiler) Local() Register {
	return c.registers.allocate()
}

// Release frees a register allocated with Local.
func (c *Compiler) Release(reg Register) {
	if err := c.registers.release(reg); err != nil {
		c.fail(err)
	}
}

// WithLocal allocates a register for the duration of fn and releases it when
// fn returns, whether or not fn fails.
func (c *Compiler) WithLocal(fn func(reg Register) error) error {
	reg := c.registers.allocate()
	defer c.Release(reg)
	return fn(reg)
}

// Load emits an instruction that pops the top of the stack into reg.
func (c *Compiler) Load(reg Register) {
	c.emitRegister(op.Load, reg)
}

// Fetch emits an instruction that pushes the value held in reg.
func (c *Compiler) Fetch(reg Register) {
	c.emitRegister(op.Fetch, reg)
}
