package vm

import (
	"context"

	"github.com/deepnoodle-ai/rehydra/builder"
	"github.com/deepnoodle-ai/rehydra/bytecode"
)

// Render the given program with a new Virtual Machine.
func Render(ctx context.Context, program *bytecode.Program, b builder.Builder, options ...Option) (*Result, error) {
	return New(options...).Render(ctx, program, b)
}
