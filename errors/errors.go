// Package errors defines the error taxonomy shared by the compiler and the
// virtual machine.
//
// Compile faults are *CompileError values, aggregated with go-multierror
// when a single pass finds more than one. Misuse of the virtual machine
// surfaces as *RenderError. Errors returned by helpers, modifiers, component
// managers and the document are never wrapped: callers see them unmodified.
package errors

import (
	"errors"
	"fmt"
)

// ErrTornDown is returned by a render handle after Teardown.
var ErrTornDown = errors.New("render handle has been torn down")

// FriendlyError is an interface for errors that have a human friendly message
// in addition to a the lower level default error message.
type FriendlyError interface {
	Error() string
	FriendlyErrorMessage() string
}

// FormattableError is an interface for errors that can be formatted with
// the enhanced error formatter (with colors, program context, etc).
type FormattableError interface {
	Error() string
	ToFormatted() *FormattedError
}

// RenderError reports a defect detected while executing a program, such as
// a stack underflow or an instruction the VM cannot execute in its current
// state. Structural mismatches during rehydration are never RenderErrors.
type RenderError struct {
	Code    ErrorCode
	Message string
	Program string
	Offset  int
	Opcode  string
}

// NewRenderError returns a RenderError with a formatted message.
func NewRenderError(code ErrorCode, format string, args ...any) *RenderError {
	return &RenderError{Code: code, Message: fmt.Sprintf(format, args...), Offset: -1}
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("render error: %s", e.Message)
	}
	return fmt.Sprintf("render error: %s (%s at %s:%d)", e.Message, e.Opcode, e.Program, e.Offset)
}

// FriendlyErrorMessage returns a human-friendly error message.
func (e *RenderError) FriendlyErrorMessage() string {
	return NewFormatter(false).Format(e.ToFormatted())
}

// ToFormatted converts to the FormattedError type for display.
func (e *RenderError) ToFormatted() *FormattedError {
	fe := &FormattedError{
		Code:     e.Code,
		Kind:     "render error",
		Message:  e.Message,
		Filename: e.Program,
	}
	if e.Offset >= 0 {
		fe.Note = fmt.Sprintf("while executing %s at offset %d", e.Opcode, e.Offset)
	}
	return fe
}

// IsFatal reports whether the error must stop the render. Render errors are
// always fatal.
func (e *RenderError) IsFatal() bool {
	return true
}

// Is reports whether the target is a RenderError with the same code.
func (e *RenderError) Is(target error) bool {
	t, ok := target.(*RenderError)
	return ok && t.Code == e.Code
}
