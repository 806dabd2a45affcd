package compiler

import (
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/errors"
	"github.com/deepnoodle-ai/rehydra/op"
)

// Labelled opens a private label scope, runs fn, then patches every label
// reference made inside the scope and closes it.
func (c *Compiler) Labelled(fn func() error) error {
	c.labels.push()
	err := fn()
	if perr := c.labels.pop(c.changeOperand); perr != nil {
		c.fail(perr)
		if err == nil {
			err = perr
		}
	}
	return err
}

// Unit is Labelled for a whole compiled unit. It must be the outermost
// label scope.
func (c *Compiler) Unit(fn func() error) error {
	if depth := c.labels.depth(); depth != 0 {
		err := errors.NewCompileError(errors.E2003, "unit opened inside %d label scope(s)", depth)
		c.fail(err)
		return err
	}
	return c.Labelled(fn)
}

// Enter emits a region bounded by ENTER and EXIT around the instructions fn
// emits. The ENTER operand is the offset just past EXIT. fn runs in a
// private label scope in which "END" names the end of the region.
func (c *Compiler) Enter(fn func() error) error {
	return c.Labelled(func() error {
		c.emitJump(op.Enter, "END")
		if err := fn(); err != nil {
			return err
		}
		c.Emit(op.Exit)
		c.Label("END")
		return nil
	})
}

// List emits a keyed iteration over the iterable on top of the stack. body
// runs once per item, inside a fresh item region, with the item and its index
// pushed on the stack (index on top). inverse runs instead when there are no
// items and may be nil. key is "@index", "@identity" or a property path.
func (c *Compiler) List(key string, body func() error, inverse func() error) error {
	return c.Labelled(func() error {
		if at := c.emitJump(op.EnterList, "", "ELSE", "END"); at >= 0 {
			c.changeOperand(at, 0, c.str(key))
		}
		c.Label("ITER")
		c.emitJump(op.Iterate, "BREAK")
		if err := c.Enter(body); err != nil {
			return err
		}
		c.Jump("ITER")
		c.Label("BREAK")
		c.Emit(op.ExitList)
		c.Jump("END")
		c.Label("ELSE")
		if inverse != nil {
			if err := inverse(); err != nil {
				return err
			}
		}
		c.Label("END")
		return nil
	})
}

// Block compiles an inline block body that is skipped over in the normal
// flow and entered by INVOKE_YIELD. params become locals of the body. The
// returned handle is a BlockRef in the pool.
func (c *Compiler) Block(params []string, body func() error) (uint32, error) {
	var start int
	var slots []uint32
	err := c.Labelled(func() error {
		c.Jump("AFTER")
		start = c.Position()
		slots = c.symbols.pushLocals(params)
		defer c.symbols.popLocals()
		if err := c.Labelled(body); err != nil {
			return err
		}
		c.Emit(op.Return)
		c.Label("AFTER")
		return nil
	})
	if err != nil {
		return 0, err
	}
	ref := &bytecode.BlockRef{Start: start, Params: make([]int, len(slots))}
	for i, s := range slots {
		ref.Params[i] = int(s)
	}
	h, err := c.pool.block(ref)
	if err != nil {
		c.fail(err)
		return 0, err
	}
	return h, nil
}
